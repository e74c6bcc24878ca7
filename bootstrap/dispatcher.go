package bootstrap

import (
	"strings"
	"time"

	"evently/pkg/config"
	"evently/pkg/dispatch"
	"evently/pkg/logger"
	"evently/pkg/mailer"
	"evently/pkg/redis"
	"evently/pkg/ticket"
)

// SetupDispatcher 初始化副作用分发器
// 装配顺序：指标 -> Redis 队列 -> 票务/邮件客户端 -> 工作器组。
// 返回分发器（供对账引擎调用）和工作器组（供关停时停止）
func SetupDispatcher() (*dispatch.Dispatcher, *dispatch.Worker) {
	if redis.Manager == nil {
		logger.ErrorString("Dispatch", "Setup", "Redis 未初始化，副作用分发不可用")
		return nil, nil
	}

	metrics := dispatch.NewMetrics(nil)
	queue := dispatch.NewQueue(metrics)

	// 未配置的客户端保持接口为 nil，避免带类型的空指针
	var tickets dispatch.TicketIssuer
	if ts := setupTicketService(); ts != nil {
		tickets = ts
	}
	var mails dispatch.ConfirmationSender
	if ms := setupMailService(); ms != nil {
		mails = ms
	}

	worker := dispatch.NewWorker(queue, tickets, mails, metrics, dispatch.WorkerConfig{
		WorkerCount:     config.GetInt("dispatch.worker_count"),
		MaxRetries:      config.GetInt("dispatch.max_retries"),
		RetryInterval:   time.Duration(config.GetInt("dispatch.retry_interval")) * time.Second,
		JobTimeout:      time.Duration(config.GetInt("dispatch.job_timeout")) * time.Second,
		ShutdownTimeout: time.Duration(config.GetInt("dispatch.shutdown_timeout")) * time.Second,
	})
	worker.Start()

	logger.InfoString("Dispatch", "Setup", "副作用分发器初始化成功")
	return dispatch.NewDispatcher(queue, metrics), worker
}

// setupTicketService 初始化票务服务客户端，支持多实例轮询
func setupTicketService() *ticket.Service {
	urls := config.GetString("dispatch.ticket_urls")
	if urls == "" {
		logger.WarnString("Dispatch", "Setup", "未配置票务服务地址")
		return nil
	}

	return ticket.NewService(&ticket.Config{
		URLs:       strings.Split(urls, ","),
		APIKeys:    strings.Split(config.GetString("dispatch.ticket_api_keys"), ","),
		Timeout:    time.Duration(config.GetInt("dispatch.ticket_timeout")) * time.Second,
		MaxRetries: config.GetInt("dispatch.max_retries"),
	})
}

// setupMailService 初始化邮件服务客户端
func setupMailService() *mailer.Service {
	url := config.GetString("dispatch.mail_url")
	if url == "" {
		logger.WarnString("Dispatch", "Setup", "未配置邮件服务地址")
		return nil
	}

	return mailer.NewService(&mailer.Config{
		URL:     url,
		APIKey:  config.GetString("dispatch.mail_api_key"),
		Timeout: time.Duration(config.GetInt("dispatch.mail_timeout")) * time.Second,
	})
}
