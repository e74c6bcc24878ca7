package repositories

import (
	"context"

	"gorm.io/gorm"

	"evently/app/models/payment"
)

// PaymentRepository 支付记录仓库
type PaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建仓库实例
func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create 创建支付记录
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// GetByID 根据主键获取支付记录
func (r *PaymentRepository) GetByID(ctx context.Context, id uint64) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.WithContext(ctx).First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByProviderPaymentID 根据服务商支付ID获取支付记录
// 这是异步回调定位支付记录的唯一入口
func (r *PaymentRepository) GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.WithContext(ctx).Where("provider_payment_id = ?", providerPaymentID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByOrderID 获取订单下的全部支付尝试
func (r *PaymentRepository) ListByOrderID(ctx context.Context, orderID uint64) ([]payment.Payment, error) {
	var payments []payment.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id desc").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
