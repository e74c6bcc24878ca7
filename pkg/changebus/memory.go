package changebus

import (
	"context"
	"sync"
)

// MemoryBus 进程内总线实现
// 单进程部署与测试场景使用；按发布顺序同步投递，
// 订阅方回调中不可再发布事件（会死锁之外还破坏顺序语义）
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]*memorySubscription
	next int
}

type memorySubscription struct {
	bus     *MemoryBus
	table   string
	filter  *Filter
	handler Handler
	id      int
}

// NewMemoryBus 创建进程内总线
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs: make(map[string][]*memorySubscription),
	}
}

// Publish 发布变更事件，同步投递给该表的全部订阅方
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]*memorySubscription, len(b.subs[event.Table]))
	copy(subs, b.subs[event.Table])
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.filter.Match(event) {
			sub.handler(event)
		}
	}
	return nil
}

// Subscribe 订阅某张表的变更事件
func (b *MemoryBus) Subscribe(table string, filter *Filter, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	sub := &memorySubscription{
		bus:     b,
		table:   table,
		filter:  filter,
		handler: handler,
		id:      b.next,
	}
	b.subs[table] = append(b.subs[table], sub)
	return sub, nil
}

// Unsubscribe 取消订阅
func (s *memorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	subs := s.bus.subs[s.table]
	for i, sub := range subs {
		if sub.id == s.id {
			s.bus.subs[s.table] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}
