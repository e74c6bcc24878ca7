package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"evently/pkg/logger"
	"evently/pkg/mailer"
	"evently/pkg/ticket"
)

// TicketIssuer 票务签发能力
type TicketIssuer interface {
	IssueTicket(ctx context.Context, req *ticket.IssueRequest) error
}

// ConfirmationSender 确认邮件发送能力
type ConfirmationSender interface {
	SendConfirmation(ctx context.Context, req *mailer.ConfirmationRequest) error
}

// WorkerConfig 工作器配置
type WorkerConfig struct {
	WorkerCount     int           // 并发工作器数量
	MaxRetries      int           // 单个任务的最大重试次数
	RetryInterval   time.Duration // 重试间隔
	ShutdownTimeout time.Duration // 关闭超时时间
	JobTimeout      time.Duration // 单个任务的处理超时
}

// Worker 副作用工作器组
// 从队列取任务，调用外部票务/邮件服务。重试耗尽后只记日志，
// 带外补偿由运维侧基于日志与指标完成
type Worker struct {
	queue    JobQueue
	tickets  TicketIssuer
	mails    ConfirmationSender
	metrics  *Metrics
	config   WorkerConfig
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewWorker 创建工作器组
func NewWorker(queue JobQueue, tickets TicketIssuer, mails ConfirmationSender, metrics *Metrics, config WorkerConfig) *Worker {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 5
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 20 * time.Second
	}

	return &Worker{
		queue:    queue,
		tickets:  tickets,
		mails:    mails,
		metrics:  metrics,
		config:   config,
		stopChan: make(chan struct{}),
	}
}

// Start 启动工作器组
func (w *Worker) Start() {
	for i := 0; i < w.config.WorkerCount; i++ {
		w.wg.Add(1)
		go w.startWorker(i)
	}
	logger.InfoString("Dispatch", "Start",
		fmt.Sprintf("副作用工作器已启动 count=%d", w.config.WorkerCount))
}

// startWorker 单个工作器循环
func (w *Worker) startWorker(id int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopChan:
			logger.InfoString("Dispatch", "Stop", fmt.Sprintf("Worker %d stopping", id))
			return
		default:
		}

		job, err := w.queue.Pop(context.Background())
		if err != nil {
			logger.ErrorString("Dispatch", "Pop", err.Error())
			time.Sleep(time.Second) // 错误恢复延迟
			continue
		}
		if job == nil {
			continue
		}

		w.handleJob(job)
	}
}

// handleJob 处理单个任务，最多重试 MaxRetries 次
func (w *Worker) handleJob(job *Job) {
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= w.config.MaxRetries; attempt++ {
		lastErr = w.process(job)
		if lastErr == nil {
			if w.metrics != nil {
				w.metrics.RecordProcessed(job.Kind, true, time.Since(start))
			}
			return
		}
		time.Sleep(w.config.RetryInterval)
	}

	// 重试耗尽：发完即忘，留给带外补偿
	if w.metrics != nil {
		w.metrics.RecordProcessed(job.Kind, false, time.Since(start))
	}
	logger.ErrorString("Dispatch", "Exhausted",
		fmt.Sprintf("任务 %s (kind=%s, order=%s) 重试耗尽: %v", job.ID, job.Kind, job.OrderNo, lastErr))
}

// process 按任务类型调用对应的外部服务
func (w *Worker) process(job *Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.config.JobTimeout)
	defer cancel()

	switch job.Kind {
	case JobIssueTicket:
		if w.tickets == nil {
			return fmt.Errorf("ticket service not configured")
		}
		return w.tickets.IssueTicket(ctx, &ticket.IssueRequest{OrderNo: job.OrderNo})
	case JobSendConfirmation:
		if w.mails == nil {
			return fmt.Errorf("mail service not configured")
		}
		return w.mails.SendConfirmation(ctx, &mailer.ConfirmationRequest{OrderNo: job.OrderNo})
	default:
		return fmt.Errorf("unknown job kind: %s", job.Kind)
	}
}

// Stop 优雅关闭工作器组
func (w *Worker) Stop() {
	close(w.stopChan)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.InfoString("Dispatch", "Stop", "All workers stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		logger.WarnString("Dispatch", "Stop", "Worker shutdown timed out")
	}
}
