// Package webhook 解析并归一化支付服务商的异步回调
package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"evently/app/models/payment"
	"evently/pkg/logger"
)

// ErrMalformed 回调报文不合法：JSON 解析失败或缺少必填字段。
// 重试没有意义，入口应以 400 拒绝
var ErrMalformed = errors.New("malformed webhook payload")

// Envelope 服务商回调的通用信封
// id 与 status 为必填，key/value 为可选的对账追踪键值
type Envelope struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Key    string `json:"key,omitempty"`
	Value  string `json:"value,omitempty"`
}

// Notification 归一化后的支付通知
// 只在幂等账本之外短暂存在，不单独持久化
type Notification struct {
	Provider          string
	ProviderPaymentID string
	Status            payment.Status // 归一化后的内部状态
	RawStatus         string         // 服务商原始状态串，原样入库供审计
	Key               string
	Value             string
	Payload           []byte
	ReceivedAt        time.Time
}

// statusMapping 服务商状态词汇到内部状态的固定映射
// 未知状态一律归一化为 pending 并告警，绝不静默丢弃
var statusMapping = map[string]payment.Status{
	"paid":       payment.StatusPaid,
	"success":    payment.StatusPaid,
	"succeeded":  payment.StatusPaid,
	"captured":   payment.StatusPaid,
	"pending":    payment.StatusPending,
	"created":    payment.StatusPending,
	"open":       payment.StatusPending,
	"processing": payment.StatusPending,
	"failed":     payment.StatusFailed,
	"canceled":   payment.StatusFailed,
	"cancelled":  payment.StatusFailed,
	"denied":     payment.StatusFailed,
	"expired":    payment.StatusExpired,
	"timeout":    payment.StatusExpired,
}

// NormalizeStatus 归一化服务商状态串
// 返回值 known 表示该状态是否在映射表中
func NormalizeStatus(raw string) (status payment.Status, known bool) {
	if s, ok := statusMapping[raw]; ok {
		return s, true
	}
	return payment.StatusPending, false
}

// Parse 解析回调报文为归一化通知
// 报文不可解析或缺少必填字段时返回 ErrMalformed
func Parse(provider string, body []byte) (*Notification, error) {
	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if envelope.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	if envelope.Status == "" {
		return nil, fmt.Errorf("%w: missing status", ErrMalformed)
	}

	status, known := NormalizeStatus(envelope.Status)
	if !known {
		logger.WarnString("Webhook", "Normalize",
			fmt.Sprintf("未知的服务商状态 %q（provider=%s, id=%s），按 pending 处理",
				envelope.Status, provider, envelope.ID))
	}

	return &Notification{
		Provider:          provider,
		ProviderPaymentID: envelope.ID,
		Status:            status,
		RawStatus:         envelope.Status,
		Key:               envelope.Key,
		Value:             envelope.Value,
		Payload:           body,
		ReceivedAt:        time.Now(),
	}, nil
}

// Fingerprint 计算幂等指纹
// 由 (服务商, 服务商支付ID, 归一化状态, 报文摘要) 派生，
// 同一条通知的任意次投递产生相同指纹
func (n *Notification) Fingerprint() string {
	payloadHash := sha256.Sum256(n.Payload)
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s",
		n.Provider, n.ProviderPaymentID, n.Status, hex.EncodeToString(payloadHash[:]))
	return hex.EncodeToString(h.Sum(nil))
}
