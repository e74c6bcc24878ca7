package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evently/pkg/mailer"
	"evently/pkg/ticket"
)

// fakeQueue 进程内队列，测试中替代 Redis
type fakeQueue struct {
	mu      sync.Mutex
	jobs    []*Job
	pushErr error
}

func (q *fakeQueue) Push(ctx context.Context, job *Job) error {
	if q.pushErr != nil {
		return q.pushErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Pop(ctx context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, nil
}

func TestNotifyOrderConfirmedEnqueuesBothJobs(t *testing.T) {
	queue := &fakeQueue{}
	d := NewDispatcher(queue, nil)

	require.NoError(t, d.NotifyOrderConfirmed(context.Background(), 42, "ord_1"))

	require.Len(t, queue.jobs, 2)
	kinds := []JobKind{queue.jobs[0].Kind, queue.jobs[1].Kind}
	assert.Contains(t, kinds, JobIssueTicket)
	assert.Contains(t, kinds, JobSendConfirmation)

	for _, job := range queue.jobs {
		assert.Equal(t, uint64(42), job.OrderID)
		assert.Equal(t, "ord_1", job.OrderNo)
		assert.NotEmpty(t, job.ID)
	}
}

func TestNotifyOrderConfirmedReportsPushError(t *testing.T) {
	queue := &fakeQueue{pushErr: errors.New("redis down")}
	d := NewDispatcher(queue, nil)

	err := d.NotifyOrderConfirmed(context.Background(), 42, "ord_1")
	assert.Error(t, err)
}

// fakeTickets / fakeMails 统计外部服务调用
type fakeTickets struct {
	mu    sync.Mutex
	calls []string
	fail  int // 前 fail 次调用返回错误
}

func (f *fakeTickets) IssueTicket(ctx context.Context, req *ticket.IssueRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("ticket service unavailable")
	}
	f.calls = append(f.calls, req.OrderNo)
	return nil
}

type fakeMails struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeMails) SendConfirmation(ctx context.Context, req *mailer.ConfirmationRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.OrderNo)
	return nil
}

func TestWorkerProcessesJobs(t *testing.T) {
	queue := &fakeQueue{}
	tickets := &fakeTickets{}
	mails := &fakeMails{}

	worker := NewWorker(queue, tickets, mails, nil, WorkerConfig{
		WorkerCount:   1,
		MaxRetries:    1,
		RetryInterval: time.Millisecond,
		JobTimeout:    time.Second,
	})

	require.NoError(t, queue.Push(context.Background(), NewJob(JobIssueTicket, 1, "ord_1")))
	require.NoError(t, queue.Push(context.Background(), NewJob(JobSendConfirmation, 1, "ord_1")))

	worker.Start()
	assert.Eventually(t, func() bool {
		tickets.mu.Lock()
		mails.mu.Lock()
		defer tickets.mu.Unlock()
		defer mails.mu.Unlock()
		return len(tickets.calls) == 1 && len(mails.calls) == 1
	}, 2*time.Second, 10*time.Millisecond)
	worker.Stop()
}

func TestWorkerRetriesFailedJob(t *testing.T) {
	queue := &fakeQueue{}
	tickets := &fakeTickets{fail: 2}

	worker := NewWorker(queue, tickets, &fakeMails{}, nil, WorkerConfig{
		WorkerCount:   1,
		MaxRetries:    3,
		RetryInterval: time.Millisecond,
		JobTimeout:    time.Second,
	})

	require.NoError(t, queue.Push(context.Background(), NewJob(JobIssueTicket, 1, "ord_retry")))

	worker.Start()
	assert.Eventually(t, func() bool {
		tickets.mu.Lock()
		defer tickets.mu.Unlock()
		return len(tickets.calls) == 1
	}, 2*time.Second, 10*time.Millisecond)
	worker.Stop()
}
