package config

import (
	"evently/pkg/config"
)

func init() {
	config.Add("nats", func() map[string]interface{} {
		return map[string]interface{}{
			// 留空时退化为进程内总线
			"url": config.Env("NATS_URL", ""),

			// 变更事件的主题前缀，形如 changes.orders
			"subject_prefix": config.Env("NATS_SUBJECT_PREFIX", "changes"),
		}
	})
}
