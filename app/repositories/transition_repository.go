package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"evently/app/models/ledger"
	"evently/app/models/order"
	"evently/app/models/payment"
	"evently/app/models/registration"
)

// ErrVersionConflict 乐观锁冲突：支付记录在读取后已被其他投递更新。
// 调用方应重读并验证收敛，而不是重试整个计算
var ErrVersionConflict = errors.New("payment version conflict")

// Transition 一次对账状态转移需要原子落库的全部内容
// 支付记录的更新以读取时的版本号为条件；订单、报名记录的更新
// 与幂等账本条目在同一事务内提交
type Transition struct {
	PaymentID      uint64
	PaymentVersion uint64 // 读取时的版本号，条件更新的依据
	PaymentUpdates map[string]interface{}

	OrderID      uint64
	OrderUpdates map[string]interface{}

	RegistrationID      uint64
	RegistrationUpdates map[string]interface{}

	Ledger *ledger.Entry
}

// TransitionRepository 状态转移仓库
// 对账引擎通过它完成三实体的条件写入，其他组件不得直写状态字段
type TransitionRepository struct {
	db *gorm.DB
}

// NewTransitionRepository 创建仓库实例
func NewTransitionRepository(db *gorm.DB) *TransitionRepository {
	return &TransitionRepository{db: db}
}

// Apply 原子应用一次状态转移
// 支付记录的更新条件为 "id 且 version 未变"，RowsAffected 为 0 即输掉
// 乐观竞争，整个事务回滚并返回 ErrVersionConflict；
// 账本条目撞唯一索引时同样回滚，由调用方按重复投递处理
func (r *TransitionRepository) Apply(ctx context.Context, t *Transition) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := make(map[string]interface{}, len(t.PaymentUpdates)+1)
		for k, v := range t.PaymentUpdates {
			updates[k] = v
		}
		updates["version"] = t.PaymentVersion + 1

		result := tx.Model(&payment.Payment{}).
			Where("id = ? AND version = ?", t.PaymentID, t.PaymentVersion).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrVersionConflict
		}

		if t.OrderID != 0 && len(t.OrderUpdates) > 0 {
			if err := tx.Model(&order.Order{}).
				Where("id = ?", t.OrderID).
				Updates(t.OrderUpdates).Error; err != nil {
				return err
			}
		}

		if t.RegistrationID != 0 && len(t.RegistrationUpdates) > 0 {
			if err := tx.Model(&registration.Registration{}).
				Where("id = ?", t.RegistrationID).
				Updates(t.RegistrationUpdates).Error; err != nil {
				return err
			}
		}

		if t.Ledger != nil {
			if err := tx.Create(t.Ledger).Error; err != nil {
				return err
			}
		}

		return nil
	})
}
