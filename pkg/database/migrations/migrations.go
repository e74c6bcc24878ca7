package migrations

import (
	"evently/app/models/ledger"
	"evently/app/models/order"
	"evently/app/models/payment"
	"evently/app/models/registration"
)

// RegisterTables 返回需要迁移的表的模型列表
func RegisterTables() []interface{} {
	return []interface{}{
		&registration.Registration{},
		&order.Order{},
		&payment.Payment{},
		&ledger.Entry{},
	}
}
