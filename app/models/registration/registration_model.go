package registration

import (
	"time"
)

// Registration 报名记录模型
// 报名记录是参与者的持久"入场凭证"，下游的票务签发依赖它的存在。
// PaymentStatus 镜像所属订单的支付状态，由对账引擎统一写入。
type Registration struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	RegistrationNo string    `gorm:"type:varchar(64);uniqueIndex" json:"registration_no"`
	EventID        uint64    `gorm:"index" json:"event_id"`
	Name           string    `gorm:"type:varchar(100)" json:"name"`
	Email          string    `gorm:"type:varchar(100);index" json:"email"`
	Status         string    `gorm:"type:varchar(20);index" json:"status"`
	PaymentStatus  string    `gorm:"type:varchar(20)" json:"payment_status"`
	CheckInStatus  string    `gorm:"type:varchar(20)" json:"check_in_status"`
	AmountPaid     int64     `gorm:"" json:"amount_paid"`
	CreatedAt      time.Time `gorm:"" json:"created_at"`
	UpdatedAt      time.Time `gorm:"" json:"updated_at"`
}

// TableName 指定表名
func (Registration) TableName() string {
	return "registrations"
}
