package payment

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Provider 支付提供商类型
type Provider string

const (
	ProviderWechat Provider = "wechat" // 微信支付
	ProviderAlipay Provider = "alipay" // 支付宝
)

// Status 支付状态
type Status string

const (
	StatusPending Status = "pending" // 待支付
	StatusPaid    Status = "paid"    // 已支付，终态
	StatusFailed  Status = "failed"  // 支付失败
	StatusExpired Status = "expired" // 已过期
)

// JSON 自定义JSON类型
type JSON map[string]interface{}

// Value 实现 driver.Valuer 接口
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan 实现 sql.Scanner 接口
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSON)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if str, ok := value.(string); ok {
			bytes = []byte(str)
		} else {
			return errors.New("invalid scan source")
		}
	}
	return json.Unmarshal(bytes, j)
}

// RawNotification 服务商回调的原始报文，仅追加，用于审计
type RawNotification struct {
	Status     string    `json:"status"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// JSONList 自定义JSON数组类型，存储回调报文历史
type JSONList []RawNotification

// Value 实现 driver.Valuer 接口
func (l JSONList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan 实现 sql.Scanner 接口
func (l *JSONList) Scan(value interface{}) error {
	if value == nil {
		*l = JSONList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if str, ok := value.(string); ok {
			bytes = []byte(str)
		} else {
			return errors.New("invalid scan source")
		}
	}
	return json.Unmarshal(bytes, l)
}

// IsPaid 检查支付是否成功，paid 为终态
func (p *Payment) IsPaid() bool {
	return p.Status == string(StatusPaid)
}

// IsPending 检查是否待支付
func (p *Payment) IsPending() bool {
	return p.Status == string(StatusPending)
}

// IsFailed 检查是否支付失败
func (p *Payment) IsFailed() bool {
	return p.Status == string(StatusFailed)
}

// IsExpired 检查是否已过期
func (p *Payment) IsExpired() bool {
	return p.Status == string(StatusExpired)
}

// ValidateProvider 验证支付提供商
func (p *Payment) ValidateProvider() bool {
	return p.Provider == string(ProviderWechat) || p.Provider == string(ProviderAlipay)
}

// Validate 验证支付记录
func (p *Payment) Validate() error {
	if p.OrderID == 0 {
		return errors.New("order_id is required")
	}
	if p.ProviderPaymentID == "" {
		return errors.New("provider_payment_id is required")
	}
	if p.Amount <= 0 {
		return errors.New("amount must be greater than 0")
	}
	if !p.ValidateProvider() {
		return errors.New("invalid payment provider")
	}
	return nil
}
