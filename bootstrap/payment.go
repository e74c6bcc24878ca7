package bootstrap

import (
	btsConfig "evently/config"
	"evently/pkg/logger"
	"evently/pkg/payment"
)

// SetupPaymentServices 初始化已配置的支付服务商
// 未配置 AppID 的渠道直接跳过，下单时请求该渠道会收到 400
func SetupPaymentServices() map[payment.Provider]payment.Service {
	services := make(map[payment.Provider]payment.Service)

	if cfg := btsConfig.LoadAlipayConfig(); cfg.AppID != "" {
		svc, err := payment.NewPaymentService(payment.ProviderAlipay, cfg)
		if err != nil {
			logger.ErrorString("Payment", "Setup", "支付宝初始化失败: "+err.Error())
		} else {
			services[payment.ProviderAlipay] = svc
		}
	}

	if cfg := btsConfig.LoadWechatConfig(); cfg.AppID != "" {
		svc, err := payment.NewPaymentService(payment.ProviderWechat, cfg)
		if err != nil {
			logger.ErrorString("Payment", "Setup", "微信支付初始化失败: "+err.Error())
		} else {
			services[payment.ProviderWechat] = svc
		}
	}

	if len(services) == 0 {
		logger.WarnString("Payment", "Setup", "未配置任何支付服务商")
	}

	return services
}
