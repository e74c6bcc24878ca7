package ledger

import (
	"time"
)

// Entry 幂等账本条目
// 记录哪些已归一化的回调通知被应用过，用来在"至少一次投递"下
// 短路重复投递。指纹由 (服务商, 服务商支付ID, 归一化状态, 报文摘要)
// 派生，(provider, fingerprint) 上的唯一索引保证同一条通知至多落账一次。
type Entry struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Provider          string    `gorm:"type:varchar(20);not null;uniqueIndex:ux_webhook_events_fingerprint,priority:1" json:"provider"`
	Fingerprint       string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_webhook_events_fingerprint,priority:2" json:"fingerprint"`
	ProviderPaymentID string    `gorm:"type:varchar(64);index" json:"provider_payment_id"`
	Status            string    `gorm:"type:varchar(20)" json:"status"`
	Payload           string    `gorm:"type:text" json:"payload"`
	AppliedAt         time.Time `gorm:"" json:"applied_at"`
}

// TableName 指定表名
func (Entry) TableName() string {
	return "webhook_events"
}
