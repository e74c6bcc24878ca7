package bootstrap

import (
	"fmt"

	"evently/pkg/changebus"
	"evently/pkg/hooks"
	"evently/pkg/logger"
)

// SetupHooks 初始化仪表盘读模型
// 订阅三张表的变更流维护内存镜像，并注册订单确认的观察钩子
func SetupHooks(bus changebus.Bus) *hooks.Store {
	store := hooks.NewStore()

	// 订单支付状态翻转为 paid 时记录一条运营日志
	store.Watch("orders", "payment_status", "paid", func(entity hooks.Entity, from interface{}) {
		logger.InfoString("Hooks", "OrderPaid",
			fmt.Sprintf("订单 %v 支付状态 %v -> paid", entity["order_no"], from))
	})

	if err := store.Bind(bus, "orders", "payments", "registrations"); err != nil {
		logger.ErrorString("Hooks", "Setup", "订阅变更总线失败: "+err.Error())
		return store
	}

	logger.InfoString("Hooks", "Setup", "仪表盘读模型初始化成功")
	return store
}
