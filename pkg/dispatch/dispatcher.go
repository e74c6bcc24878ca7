package dispatch

import (
	"context"
	"errors"
	"fmt"

	"evently/pkg/logger"
)

// Dispatcher 副作用分发器
// 实现对账引擎的 Dispatcher 接口：订单晋升为 confirmed 后，
// 把票务签发与确认邮件任务写入队列。同一次晋升只会走到这里一次
// （由幂等账本与 paid 终态保证），因此入队即满足"至多逻辑一次"
type Dispatcher struct {
	queue   JobQueue
	metrics *Metrics
}

// NewDispatcher 创建副作用分发器
func NewDispatcher(queue JobQueue, metrics *Metrics) *Dispatcher {
	return &Dispatcher{queue: queue, metrics: metrics}
}

// NotifyOrderConfirmed 订单确认后的副作用入口
// 入队失败返回错误供调用方记日志，不影响已提交的状态转移
func (d *Dispatcher) NotifyOrderConfirmed(ctx context.Context, orderID uint64, orderNo string) error {
	var errs []error

	for _, kind := range []JobKind{JobIssueTicket, JobSendConfirmation} {
		job := NewJob(kind, orderID, orderNo)
		if err := d.queue.Push(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s error: %w", kind, err))
			continue
		}
		logger.DebugString("Dispatch", "Enqueue",
			fmt.Sprintf("任务已入队 kind=%s order=%s", kind, orderNo))
	}

	return errors.Join(errs...)
}
