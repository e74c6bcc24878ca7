// Package ticket 票务服务 HTTP 客户端
// 支持多实例负载均衡、故障转移和自动恢复
package ticket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"evently/pkg/logger"
)

// 实例健康判定阈值
const (
	// MaxErrorCount 连续错误达到该值后标记实例不健康
	MaxErrorCount = 3
	// RecoveryInterval 不健康实例重新参与轮询的间隔
	RecoveryInterval = 1 * time.Minute
)

// Config 票务服务配置
type Config struct {
	URLs       []string
	APIKeys    []string
	Timeout    time.Duration
	MaxRetries int
}

// Instance 票务服务实例
type Instance struct {
	URL        string
	APIKey     string
	Health     bool
	Client     *resty.Client
	LastErr    error
	LastFailed time.Time
	ErrorCount int
}

// Service 票务服务客户端
// 订单确认后由副作用分发器调用，签发入场票
type Service struct {
	instances  []*Instance
	numRetries int
	timeout    time.Duration
	mu         sync.RWMutex
	next       int
}

// IssueRequest 签发请求
type IssueRequest struct {
	OrderNo        string `json:"order_no"`
	RegistrationNo string `json:"registration_no,omitempty"`
}

// NewService 创建票务服务客户端
// URL 与 APIKey 数量不匹配或为空时返回 nil
func NewService(config *Config) *Service {
	if config == nil || len(config.URLs) == 0 || len(config.URLs) != len(config.APIKeys) {
		return nil
	}

	service := &Service{
		instances:  make([]*Instance, 0, len(config.URLs)),
		numRetries: config.MaxRetries,
		timeout:    config.Timeout,
	}
	if service.numRetries <= 0 {
		service.numRetries = 3
	}

	for i := range config.URLs {
		client := resty.New().
			SetBaseURL(config.URLs[i]).
			SetTimeout(config.Timeout).
			SetAuthToken(config.APIKeys[i]).
			SetHeader("Content-Type", "application/json")

		service.instances = append(service.instances, &Instance{
			URL:    config.URLs[i],
			APIKey: config.APIKeys[i],
			Health: true,
			Client: client,
		})
	}

	return service
}

// IssueTicket 为订单签发入场票
// 在健康实例间轮询重试，全部失败时返回最后一次错误
func (s *Service) IssueTicket(ctx context.Context, req *IssueRequest) error {
	var lastErr error

	for i := 0; i < s.numRetries; i++ {
		instance, err := s.pickInstance()
		if err != nil {
			return fmt.Errorf("no available ticket instance: %w", err)
		}

		resp, err := instance.Client.R().
			SetContext(ctx).
			SetBody(req).
			Post("/api/v1/tickets")

		if err != nil {
			s.markFailure(instance, err)
			lastErr = err
			continue
		}

		if resp.StatusCode() >= 300 {
			err = fmt.Errorf("ticket service returned status %d", resp.StatusCode())
			s.markFailure(instance, err)
			lastErr = err
			continue
		}

		s.markSuccess(instance)
		logger.InfoString("Ticket", "Issue",
			fmt.Sprintf("订单 %s 出票成功 实例:%s", req.OrderNo, instance.URL))
		return nil
	}

	return fmt.Errorf("issue ticket for order %s error: %w", req.OrderNo, lastErr)
}

// pickInstance 轮询选取健康实例
// 不健康的实例超过恢复间隔后重新参与轮询
func (s *Service) pickInstance() (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < len(s.instances); i++ {
		instance := s.instances[s.next%len(s.instances)]
		s.next++

		if instance.Health {
			return instance, nil
		}
		if time.Since(instance.LastFailed) > RecoveryInterval {
			instance.Health = true
			instance.ErrorCount = 0
			return instance, nil
		}
	}

	return nil, errors.New("no healthy ticket instance available")
}

// markFailure 记录实例失败，连续失败过多则摘除
func (s *Service) markFailure(instance *Instance, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	instance.LastErr = err
	instance.LastFailed = time.Now()
	instance.ErrorCount++
	if instance.ErrorCount >= MaxErrorCount {
		instance.Health = false
		logger.ErrorString("Ticket", "Instance Unhealthy",
			fmt.Sprintf("URL: %s, Error: %v", instance.URL, err))
	}
}

// markSuccess 成功后清零错误计数
func (s *Service) markSuccess(instance *Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	instance.Health = true
	instance.ErrorCount = 0
	instance.LastErr = nil
}
