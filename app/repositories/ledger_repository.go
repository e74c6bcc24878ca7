package repositories

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"evently/app/models/ledger"
)

// LedgerRepository 幂等账本仓库
type LedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository 创建仓库实例
func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// HasApplied 检查指纹是否已落账
func (r *LedgerRepository) HasApplied(ctx context.Context, provider, fingerprint string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ledger.Entry{}).
		Where("provider = ? AND fingerprint = ?", provider, fingerprint).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordApplied 落账
// 唯一索引兜底：并发写相同指纹时只有一条成功，调用方用 IsDuplicateEntry 识别
func (r *LedgerRepository) RecordApplied(ctx context.Context, entry *ledger.Entry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// IsDuplicateEntry 判断错误是否为唯一索引冲突
// gorm 的错误翻译并非所有方言都开启，补充字符串匹配兜底
func IsDuplicateEntry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}
	return strings.Contains(err.Error(), "duplicate key value")
}
