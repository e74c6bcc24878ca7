package types

import (
	"context"
	"time"
)

// Provider 支付提供商类型
type Provider string

const (
	ProviderWechat Provider = "wechat"
	ProviderAlipay Provider = "alipay"
)

// Request 支付请求参数
// ProviderPaymentID 由本系统生成并传给服务商（商户侧关联键），
// 服务商异步回调时原样带回，用于定位支付记录
type Request struct {
	ProviderPaymentID string   `json:"provider_payment_id"`
	OrderNo           string   `json:"order_no"`
	Amount            int64    `json:"amount"`
	Currency          string   `json:"currency"`
	Provider          Provider `json:"provider"`
	ReturnURL         string   `json:"return_url"`
	Description       string   `json:"description"`
}

// Result 支付创建结果
type Result struct {
	ProviderPaymentID string                 `json:"provider_payment_id"`
	PaymentURL        string                 `json:"payment_url,omitempty"`
	PrepayID          string                 `json:"prepay_id,omitempty"`
	ExtraData         map[string]interface{} `json:"extra_data,omitempty"`
	ExpireAt          time.Time              `json:"expire_at"`
}

// Service 支付服务接口
// 只负责在服务商侧发起支付，状态变更一律走对账引擎
type Service interface {
	CreatePayment(ctx context.Context, req *Request) (*Result, error)
}
