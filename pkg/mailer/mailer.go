// Package mailer 确认邮件服务客户端
package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"evently/pkg/logger"
)

// Config 邮件服务配置
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Service 邮件服务客户端
// 单实例，重试交给上层的副作用队列
type Service struct {
	client *resty.Client
}

// ConfirmationRequest 确认邮件请求
type ConfirmationRequest struct {
	OrderNo string `json:"order_no"`
	Email   string `json:"email,omitempty"`
}

// NewService 创建邮件服务客户端
func NewService(config *Config) *Service {
	if config == nil || config.URL == "" {
		return nil
	}

	client := resty.New().
		SetBaseURL(config.URL).
		SetTimeout(config.Timeout).
		SetAuthToken(config.APIKey).
		SetHeader("Content-Type", "application/json")

	return &Service{client: client}
}

// SendConfirmation 发送订单确认邮件
func (s *Service) SendConfirmation(ctx context.Context, req *ConfirmationRequest) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/api/v1/mails/confirmation")

	if err != nil {
		return fmt.Errorf("send confirmation for order %s error: %w", req.OrderNo, err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("mail service returned status %d for order %s", resp.StatusCode(), req.OrderNo)
	}

	logger.InfoString("Mailer", "Confirmation",
		fmt.Sprintf("订单 %s 确认邮件已发送", req.OrderNo))
	return nil
}
