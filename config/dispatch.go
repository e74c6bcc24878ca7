package config

import (
	"evently/pkg/config"
)

func init() {
	config.Add("dispatch", func() map[string]interface{} {
		return map[string]interface{}{
			// 每秒最多出队多少个副作用任务
			"rate_limit": config.Env("DISPATCH_RATE_LIMIT", 10),

			"worker_count":     config.Env("DISPATCH_WORKER_COUNT", 3),
			"max_retries":      config.Env("DISPATCH_MAX_RETRIES", 3),
			"retry_interval":   config.Env("DISPATCH_RETRY_INTERVAL", 2),
			"job_timeout":      config.Env("DISPATCH_JOB_TIMEOUT", 15),
			"shutdown_timeout": config.Env("DISPATCH_SHUTDOWN_TIMEOUT", 30),

			// 票务服务支持多实例，逗号分隔，与 api_keys 一一对应
			"ticket_urls":     config.Env("TICKET_SERVICE_URLS", "http://127.0.0.1:8081"),
			"ticket_api_keys": config.Env("TICKET_SERVICE_API_KEYS", ""),
			"ticket_timeout":  config.Env("TICKET_SERVICE_TIMEOUT", 10),

			"mail_url":     config.Env("MAIL_SERVICE_URL", "http://127.0.0.1:8082"),
			"mail_api_key": config.Env("MAIL_SERVICE_API_KEY", ""),
			"mail_timeout": config.Env("MAIL_SERVICE_TIMEOUT", 10),
		}
	})
}
