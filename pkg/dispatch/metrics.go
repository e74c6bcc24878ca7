package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 副作用分发指标
type Metrics struct {
	jobsEnqueued   *prometheus.CounterVec
	jobsProcessed  *prometheus.CounterVec
	processSeconds *prometheus.HistogramVec
}

// NewMetrics 创建指标收集器
// reg 为 nil 时注册到默认 Registerer；测试传入独立的 Registry
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		jobsEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evently",
			Subsystem: "dispatch",
			Name:      "jobs_enqueued_total",
			Help:      "副作用任务入队总数",
		}, []string{"kind"}),
		jobsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evently",
			Subsystem: "dispatch",
			Name:      "jobs_processed_total",
			Help:      "副作用任务处理总数，按结果区分",
		}, []string{"kind", "result"}),
		processSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "evently",
			Subsystem: "dispatch",
			Name:      "job_process_seconds",
			Help:      "副作用任务处理耗时",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}

// RecordEnqueued 记录任务入队
func (m *Metrics) RecordEnqueued(kind JobKind) {
	m.jobsEnqueued.WithLabelValues(string(kind)).Inc()
}

// RecordProcessed 记录任务处理结果
func (m *Metrics) RecordProcessed(kind JobKind, success bool, elapsed time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.jobsProcessed.WithLabelValues(string(kind), result).Inc()
	m.processSeconds.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}
