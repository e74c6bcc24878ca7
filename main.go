package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"evently/app/http/controllers/api/v1/dashboard"
	"evently/app/http/controllers/api/v1/order"
	"evently/app/http/controllers/api/v1/webhook"
	"evently/bootstrap"
	btsConfig "evently/config"
	"evently/pkg/config"
	"evently/pkg/database"
	"evently/pkg/dispatch"
	"evently/pkg/reconcile"
	"evently/routes"
)

// 加载应用程序的基础配置
func init() {
	// 加载 config 目录下的配置信息
	btsConfig.Initialize()
}

// App 应用程序上下文，用于优雅关闭
type App struct {
	server *http.Server
	worker *dispatch.Worker
}

func main() {
	// 解析命令行参数
	env := parseFlags()

	// 初始化应用配置并装配各组件
	app, router, err := setupApplication(env)
	if err != nil {
		log.Fatalf("初始化应用程序失败: %v", err)
	}

	app.server = &http.Server{
		Addr:    ":" + config.Get("app.port"),
		Handler: router,
	}

	// 启动服务器（包含优雅关闭）
	app.start()
}

// parseFlags 解析命令行参数
// 返回环境配置参数
func parseFlags() string {
	var env string
	flag.StringVar(&env, "env", "", "加载 .env 文件，例如 --env=testing 将加载 .env.testing 文件")
	flag.Parse()
	return env
}

// setupApplication 初始化应用程序所需的各种组件
func setupApplication(env string) (*App, *gin.Engine, error) {
	// 先初始化配置
	config.InitConfig(env)

	// 然后初始化日志
	bootstrap.SetupLogger()

	// 初始化数据库
	bootstrap.SetupDB()

	// 初始化 Redis
	bootstrap.SetupRedis()

	// 变更总线与仪表盘读模型
	bus := bootstrap.SetupBus()
	store := bootstrap.SetupHooks(bus)

	// 副作用分发器与工作器组
	dispatcher, worker := bootstrap.SetupDispatcher()

	// 对账引擎；分发器缺失时保持接口为 nil
	var d reconcile.Dispatcher
	if dispatcher != nil {
		d = dispatcher
	}
	engine := bootstrap.SetupEngine(bus, d)

	// 支付服务商
	paymentServices := bootstrap.SetupPaymentServices()

	// 装配控制器并注册路由
	router := setupServer(&routes.Controllers{
		Webhook:   webhook.NewWebhookController(engine),
		Order:     order.NewOrderController(database.DB, paymentServices, bus),
		Dashboard: dashboard.NewDashboardController(store),
	})

	return &App{worker: worker}, router, nil
}

// setupServer 配置并返回 Gin 服务器实例
func setupServer(controllers *routes.Controllers) *gin.Engine {
	// 设置 gin 为生产模式，减少不必要的日志输出
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	bootstrap.SetupRoute(router, controllers)

	return router
}

// start 启动服务器并处理优雅关闭
func (a *App) start() {
	// 创建系统信号监听器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("服务器正在启动，监听端口 %s\n", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	// 等待中断信号
	<-quit
	log.Println("正在关闭服务器...")

	// 创建一个带超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 先停 HTTP 入口，再停副作用工作器
	if err := a.server.Shutdown(ctx); err != nil {
		log.Fatalf("服务器关闭异常: %v", err)
	}
	if a.worker != nil {
		a.worker.Stop()
	}

	log.Println("服务器已成功关闭")
}
