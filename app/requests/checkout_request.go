package requests

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/thedevsaddam/govalidator"
)

// CheckoutRequest 下单请求
type CheckoutRequest struct {
	EventID   uint64 `json:"event_id" valid:"required"`
	Name      string `json:"name" valid:"required"`
	Email     string `json:"email" valid:"required"`
	Amount    int64  `json:"amount" valid:"required"`
	Provider  string `json:"provider" valid:"required"`
	ReturnURL string `json:"return_url"`
}

// ValidateCheckout 校验下单请求
func ValidateCheckout(c *gin.Context) (*CheckoutRequest, error) {
	rules := govalidator.MapData{
		"event_id":   []string{"required"},
		"name":       []string{"required", "min:1", "max:64"},
		"email":      []string{"required", "email"},
		"amount":     []string{"required"},
		"provider":   []string{"required", "in:alipay,wechat"},
		"return_url": []string{"url"},
	}

	messages := govalidator.MapData{
		"event_id": []string{
			"required:活动 ID 不能为空",
		},
		"name": []string{
			"required:报名人姓名不能为空",
			"max:姓名长度不能超过 64 个字符",
		},
		"email": []string{
			"required:邮箱不能为空",
			"email:邮箱格式不正确",
		},
		"amount": []string{
			"required:金额不能为空",
		},
		"provider": []string{
			"required:支付渠道不能为空",
			"in:支付渠道必须是 alipay 或 wechat",
		},
		"return_url": []string{
			"url:回跳地址格式不正确",
		},
	}

	req, err := ValidateRequest[CheckoutRequest](c, rules, messages)
	if err != nil {
		return nil, err
	}

	// 金额以分为单位，必须为正
	if req.Amount <= 0 {
		return nil, fmt.Errorf("金额必须大于 0")
	}

	return &req, nil
}
