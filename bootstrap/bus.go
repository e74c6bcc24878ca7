package bootstrap

import (
	"evently/pkg/changebus"
	"evently/pkg/config"
	"evently/pkg/logger"
)

// SetupBus 初始化变更总线
// 配置了 NATS 地址时走 NATS，多实例共享变更流；
// 未配置时退化为进程内总线，只在单实例部署下使用
func SetupBus() changebus.Bus {
	url := config.GetString("nats.url")
	if url == "" {
		logger.WarnString("Bus", "Setup", "未配置 NATS_URL，使用进程内变更总线")
		return changebus.NewMemoryBus()
	}

	bus, err := changebus.NewNATSBus(url, config.GetString("nats.subject_prefix"))
	if err != nil {
		logger.ErrorString("Bus", "Setup", "NATS 连接失败，退化为进程内总线: "+err.Error())
		return changebus.NewMemoryBus()
	}

	logger.InfoString("Bus", "Setup", "NATS 变更总线初始化成功: "+url)
	return bus
}
