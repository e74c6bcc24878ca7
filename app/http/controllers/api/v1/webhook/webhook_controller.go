package webhook

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"evently/pkg/logger"
	"evently/pkg/reconcile"
	"evently/pkg/response"
	"evently/pkg/webhook"
)

// WebhookController 支付服务商异步回调入口
type WebhookController struct {
	engine *reconcile.Engine
}

// NewWebhookController 创建回调控制器
func NewWebhookController(engine *reconcile.Engine) *WebhookController {
	return &WebhookController{engine: engine}
}

// HandleNotify 处理支付结果通知
//
// 服务商会对非 2xx 响应不断重发，因此只有三类情况返回非 200：
// 报文无法解析（400）、找不到对应支付记录（404）、存储故障（500）。
// 重复通知和被丢弃的冲突通知一律回 200，让服务商停止重试。
func (wc *WebhookController) HandleNotify(c *gin.Context) {
	provider := c.Param("provider")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Abort400(c, "读取请求体失败")
		return
	}

	notification, err := webhook.Parse(provider, body)
	if err != nil {
		response.BadRequest(c, err, "通知报文格式错误")
		return
	}

	outcome, err := wc.engine.Apply(c.Request.Context(), notification)
	if err != nil {
		if errors.Is(err, reconcile.ErrNotFound) {
			response.Abort404(c, "支付记录不存在")
			return
		}
		response.ServerError(c, err, "通知处理失败")
		return
	}

	logger.InfoString("Webhook", "HandleNotify",
		provider+" "+notification.ProviderPaymentID+" -> "+outcome.String())

	// 服务商只认纯文本 OK
	c.String(http.StatusOK, "OK")
}
