package bootstrap

import (
	"evently/pkg/changebus"
	"evently/pkg/database"
	"evently/pkg/logger"
	"evently/pkg/reconcile"
)

// SetupEngine 初始化对账引擎
func SetupEngine(bus changebus.Publisher, dispatcher reconcile.Dispatcher) *reconcile.Engine {
	engine := reconcile.NewEngine(database.DB, bus, dispatcher)
	logger.InfoString("Reconcile", "Setup", "对账引擎初始化成功")
	return engine
}
