/*
	Package dispatch 副作用分发器

	订单确认提交后，把票务签发与确认邮件作为"发完即忘"的任务
	写入 Redis 队列，由工作器异步投递到外部服务。任务失败只记
	日志，绝不回滚已结算的支付状态；队列级的带外补偿重试是
	可接受的兜底手段。
*/
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"evently/pkg/config"
	"evently/pkg/redis"
)

// JobKind 副作用任务类型
type JobKind string

const (
	JobIssueTicket      JobKind = "issue_ticket"      // 签发入场票
	JobSendConfirmation JobKind = "send_confirmation" // 发送确认邮件
)

// Job 副作用任务
type Job struct {
	ID         string    `json:"id"`
	Kind       JobKind   `json:"kind"`
	OrderID    uint64    `json:"order_id"`
	OrderNo    string    `json:"order_no"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// JobQueue 任务队列接口
type JobQueue interface {
	Push(ctx context.Context, job *Job) error
	Pop(ctx context.Context) (*Job, error)
}

// Queue Redis 任务队列
// 左进右出的列表结构，Pop 带短阻塞避免忙等
type Queue struct {
	client      *redis.RedisClient
	prefix      string
	rateLimiter *rate.Limiter
	metrics     *Metrics
}

// NewQueue 创建 Redis 任务队列
func NewQueue(metrics *Metrics) *Queue {
	rateLimit := config.GetInt("dispatch.rate_limit", 1000)
	burst := config.GetInt("dispatch.rate_burst", rateLimit)

	return &Queue{
		client:      redis.GetRedis(redis.QueueDB),
		prefix:      config.GetString("redis.queue_prefix", "evently:dispatch"),
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), burst),
		metrics:     metrics,
	}
}

// Push 任务入队
func (q *Queue) Push(ctx context.Context, job *Job) error {
	// 应用限流
	if err := q.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	key := fmt.Sprintf("%s:jobs", q.prefix)
	if err := q.client.Client.LPush(ctx, key, jobJSON).Err(); err != nil {
		return fmt.Errorf("failed to push job: %w", err)
	}

	if q.metrics != nil {
		q.metrics.RecordEnqueued(job.Kind)
	}
	return nil
}

// Pop 任务出队
// 队列为空时最多阻塞 1 秒后返回 (nil, nil)，方便工作器响应关闭信号
func (q *Queue) Pop(ctx context.Context) (*Job, error) {
	key := fmt.Sprintf("%s:jobs", q.prefix)
	result, err := q.client.Client.BRPop(ctx, time.Second, key).Result()
	if err != nil {
		if err == goredis.Nil || err == context.DeadlineExceeded {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop job: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("invalid result from queue")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// NewJob 构造副作用任务
func NewJob(kind JobKind, orderID uint64, orderNo string) *Job {
	return &Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		OrderID:    orderID,
		OrderNo:    orderNo,
		EnqueuedAt: time.Now(),
	}
}
