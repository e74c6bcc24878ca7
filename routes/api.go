package routes

import (
	"net/http"

	"evently/app/http/controllers/api/v1/dashboard"
	"evently/app/http/controllers/api/v1/order"
	"evently/app/http/controllers/api/v1/webhook"
	"evently/app/http/middlewares"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 路由限流配置
const (
	// 全局限流：每小时每IP 30000 请求
	GlobalRateLimit = "30000-H"
	// 下单限流：每小时每IP 100 请求
	CheckoutLimit = "100-H"
	// 查询限流：每分钟每IP 300 请求
	QueryLimit = "300-M"
)

// Controllers 路由依赖的控制器集合，由 bootstrap 装配后注入
type Controllers struct {
	Webhook   *webhook.WebhookController
	Order     *order.OrderController
	Dashboard *dashboard.DashboardController
}

// RegisterAPIRoutes 注册所有 API 路由
func RegisterAPIRoutes(r *gin.Engine, cs *Controllers) {
	// Prometheus 指标端点不走业务中间件
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")

	// Recovery 与 Logger 已在引擎上全局注册
	v1.Use(
		middlewares.SecurityHeaders(),
		middlewares.LimitIP(GlobalRateLimit),
		middlewares.Cors(),
	)

	// 支付服务商异步回调
	webhookRoutes := v1.Group("/webhooks")
	{
		// POST /v1/webhooks/payments/:provider
		webhookRoutes.POST("/payments/:provider", cs.Webhook.HandleNotify)

		// 预检请求由 Cors 中间件直接回空 200，
		// 显式注册 OPTIONS 路由保证分组中间件被执行
		webhookRoutes.OPTIONS("/payments/:provider", emptyOK)
	}

	// 报名下单与订单查询
	orderRoutes := v1.Group("/orders")
	{
		// POST /v1/orders
		orderRoutes.POST("",
			middlewares.LimitIP(CheckoutLimit),
			cs.Order.Checkout,
		)

		// GET /v1/orders/:order_no
		orderRoutes.GET("/:order_no",
			middlewares.LimitIP(QueryLimit),
			cs.Order.Show,
		)

		orderRoutes.OPTIONS("", emptyOK)
		orderRoutes.OPTIONS("/:order_no", emptyOK)
	}

	// 运营仪表盘读模型
	dashboardRoutes := v1.Group("/dashboard")
	{
		// GET /v1/dashboard/:table
		dashboardRoutes.GET("/:table",
			middlewares.LimitIP(QueryLimit),
			cs.Dashboard.Index,
		)

		// GET /v1/dashboard/:table/:id
		dashboardRoutes.GET("/:table/:id",
			middlewares.LimitIP(QueryLimit),
			cs.Dashboard.Show,
		)
	}
}

// emptyOK 兜底的预检响应，正常情况下由 Cors 中间件先行返回
func emptyOK(c *gin.Context) {
	c.Status(http.StatusOK)
}
