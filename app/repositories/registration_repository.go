package repositories

import (
	"context"

	"gorm.io/gorm"

	"evently/app/models/registration"
)

// RegistrationRepository 报名记录仓库
type RegistrationRepository struct {
	db *gorm.DB
}

// NewRegistrationRepository 创建仓库实例
func NewRegistrationRepository(db *gorm.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// Create 创建报名记录
func (r *RegistrationRepository) Create(ctx context.Context, reg *registration.Registration) error {
	return r.db.WithContext(ctx).Create(reg).Error
}

// GetByID 根据主键获取报名记录
func (r *RegistrationRepository) GetByID(ctx context.Context, id uint64) (*registration.Registration, error) {
	var reg registration.Registration
	err := r.db.WithContext(ctx).First(&reg, id).Error
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// GetByRegistrationNo 根据报名编号获取报名记录
func (r *RegistrationRepository) GetByRegistrationNo(ctx context.Context, registrationNo string) (*registration.Registration, error) {
	var reg registration.Registration
	err := r.db.WithContext(ctx).Where("registration_no = ?", registrationNo).First(&reg).Error
	if err != nil {
		return nil, err
	}
	return &reg, nil
}
