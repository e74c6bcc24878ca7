package order

import (
	"time"
)

// Order 订单模型
// 一次报名结账对应一条订单，订单通过 RegistrationID 关联唯一的报名记录，
// 一条订单下可以存在多次支付尝试（重试）
type Order struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo        string     `gorm:"type:varchar(64);uniqueIndex" json:"order_no"`
	EventID        uint64     `gorm:"index" json:"event_id"`
	RegistrationID uint64     `gorm:"index" json:"registration_id"`
	Status         string     `gorm:"type:varchar(20);index" json:"status"`
	PaymentStatus  string     `gorm:"type:varchar(20);index" json:"payment_status"`
	TotalAmount    int64      `gorm:"" json:"total_amount"`
	Metadata       JSON       `gorm:"type:json" json:"metadata"`
	ConfirmedAt    *time.Time `gorm:"" json:"confirmed_at"`
	CreatedAt      time.Time  `gorm:"" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"" json:"updated_at"`
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
