package payment

import (
	"time"
)

// Payment 支付记录模型
// 一条记录对应某一支付方式对某订单的一次支付尝试。
// ProviderPaymentID 是支付服务商侧的关联键，同一服务商下唯一，
// 异步回调通过它定位到支付记录。
// Version 为乐观锁版本号：状态转移的条件更新只在版本未变时生效，
// 防止并发重复回调导致的二次应用。
type Payment struct {
	ID                uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID           uint64     `gorm:"index" json:"order_id"`
	ProviderPaymentID string     `gorm:"type:varchar(64);uniqueIndex" json:"provider_payment_id"`
	Provider          string     `gorm:"type:varchar(20);index" json:"provider"`
	Method            string     `gorm:"type:varchar(20)" json:"method"`
	Amount            int64      `gorm:"" json:"amount"`
	Currency          string     `gorm:"type:varchar(8)" json:"currency"`
	Status            string     `gorm:"type:varchar(20);index" json:"status"`
	ProviderStatus    string     `gorm:"type:varchar(64)" json:"provider_status"`
	PaidAt            *time.Time `gorm:"" json:"paid_at"`
	ExpireAt          *time.Time `gorm:"" json:"expire_at"`
	RawNotifications  JSONList   `gorm:"type:json" json:"raw_notifications"`
	Metadata          JSON       `gorm:"type:json" json:"metadata"`
	Version           uint64     `gorm:"not null;default:0" json:"version"`
	CreatedAt         time.Time  `gorm:"" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"" json:"updated_at"`
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}
