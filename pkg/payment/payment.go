// Package payment 支付提供商工厂
package payment

import (
	"fmt"

	"evently/config"
	"evently/pkg/payment/alipay"
	"evently/pkg/payment/types"
	"evently/pkg/payment/wechat"
)

// 对外暴露的类型别名，调用方无需直接依赖 types 子包
type (
	Provider = types.Provider
	Request  = types.Request
	Result   = types.Result
	Service  = types.Service
)

const (
	ProviderWechat = types.ProviderWechat
	ProviderAlipay = types.ProviderAlipay
)

// NewPaymentService 创建支付服务
func NewPaymentService(provider types.Provider, cfg interface{}) (types.Service, error) {
	switch provider {
	case types.ProviderWechat:
		wcfg, ok := cfg.(config.WechatConfig)
		if !ok {
			return nil, fmt.Errorf("invalid wechat config type")
		}
		return wechat.NewWechatPayService(wcfg)

	case types.ProviderAlipay:
		acfg, ok := cfg.(config.AlipayConfig)
		if !ok {
			return nil, fmt.Errorf("invalid alipay config type")
		}
		return alipay.NewAlipayService(acfg)

	default:
		return nil, fmt.Errorf("unsupported payment provider: %s", provider)
	}
}
