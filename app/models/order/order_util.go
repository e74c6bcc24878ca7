package order

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Status 订单生命周期状态
type Status string

const (
	StatusPending   Status = "pending"   // 待处理
	StatusConfirmed Status = "confirmed" // 已确认
	StatusCancelled Status = "cancelled" // 已取消
)

// PaymentStatus 订单支付状态
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending" // 待支付
	PaymentPaid    PaymentStatus = "paid"    // 已支付
	PaymentFailed  PaymentStatus = "failed"  // 支付失败
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

// IsConfirmed 检查订单是否已确认
func (o *Order) IsConfirmed() bool {
	return o.Status == string(StatusConfirmed)
}

// IsCancelled 检查订单是否已取消
func (o *Order) IsCancelled() bool {
	return o.Status == string(StatusCancelled)
}

// IsPaid 检查订单是否已支付
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == string(PaymentPaid)
}

// Validate 校验不变量：已确认的订单支付状态必须为 paid
func (o *Order) Validate() error {
	if o.IsConfirmed() && !o.IsPaid() {
		return errors.New("confirmed order must be paid")
	}
	return nil
}
