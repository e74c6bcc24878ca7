package changebus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"evently/pkg/logger"
)

// NATSBus 基于 NATS 的总线实现
// 每张表一个主题（<prefix>.<table>），事件以 JSON 编码投递。
// NATS 只保证单主题内的顺序，跨表顺序与总线语义一致：不保证。
type NATSBus struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSBus 连接 NATS 并创建总线
func NewNATSBus(url, prefix string) (*NATSBus, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.ErrorString("ChangeBus", "Disconnect", err.Error())
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.InfoString("ChangeBus", "Reconnect", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats error: %w", err)
	}

	if prefix == "" {
		prefix = "changes"
	}

	return &NATSBus{conn: conn, prefix: prefix}, nil
}

// Publish 发布变更事件到 <prefix>.<table> 主题
func (b *NATSBus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event error: %w", err)
	}
	return b.conn.Publish(b.subject(event.Table), data)
}

// Subscribe 订阅某张表的变更事件，过滤在消费端完成
func (b *NATSBus) Subscribe(table string, filter *Filter, handler Handler) (Subscription, error) {
	sub, err := b.conn.Subscribe(b.subject(table), func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.ErrorString("ChangeBus", "Decode", err.Error())
			return
		}
		if filter.Match(event) {
			handler(event)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s error: %w", table, err)
	}
	return &natsSubscription{sub: sub}, nil
}

// Close 关闭 NATS 连接
func (b *NATSBus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *NATSBus) subject(table string) string {
	return b.prefix + "." + table
}

type natsSubscription struct {
	sub *nats.Subscription
}

// Unsubscribe 取消订阅
func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}
