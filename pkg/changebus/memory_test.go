package changebus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var received []Event
	_, err := bus.Subscribe("orders", nil, func(event Event) {
		received = append(received, event)
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Event{
		Table: "orders",
		Kind:  KindInsert,
		New:   Marshal(map[string]interface{}{"id": 1, "status": "pending"}),
	}))
	require.NoError(t, bus.Publish(ctx, Event{
		Table: "payments",
		Kind:  KindInsert,
		New:   Marshal(map[string]interface{}{"id": 9}),
	}))

	// 只收到订阅表的事件
	require.Len(t, received, 1)
	assert.Equal(t, "orders", received[0].Table)
	assert.Equal(t, KindInsert, received[0].Kind)
}

func TestMemoryBusFilter(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var hits int
	_, err := bus.Subscribe("orders", &Filter{Field: "event_id", Value: "42"}, func(Event) {
		hits++
	})
	require.NoError(t, err)

	_ = bus.Publish(ctx, Event{
		Table: "orders",
		Kind:  KindUpdate,
		New:   Marshal(map[string]interface{}{"id": 1, "event_id": 42}),
	})
	_ = bus.Publish(ctx, Event{
		Table: "orders",
		Kind:  KindUpdate,
		New:   Marshal(map[string]interface{}{"id": 2, "event_id": 7}),
	})

	assert.Equal(t, 1, hits)
}

func TestMemoryBusFilterFallsBackToOldImage(t *testing.T) {
	bus := NewMemoryBus()

	var hits int
	_, err := bus.Subscribe("orders", &Filter{Field: "event_id", Value: "42"}, func(Event) {
		hits++
	})
	require.NoError(t, err)

	// delete 事件只有旧镜像
	_ = bus.Publish(context.Background(), Event{
		Table: "orders",
		Kind:  KindDelete,
		Old:   Marshal(map[string]interface{}{"id": 1, "event_id": 42}),
	})

	assert.Equal(t, 1, hits)
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var hits int
	sub, err := bus.Subscribe("orders", nil, func(Event) { hits++ })
	require.NoError(t, err)

	_ = bus.Publish(ctx, Event{Table: "orders", Kind: KindInsert, New: Marshal(map[string]interface{}{"id": 1})})
	require.NoError(t, sub.Unsubscribe())
	_ = bus.Publish(ctx, Event{Table: "orders", Kind: KindInsert, New: Marshal(map[string]interface{}{"id": 2})})

	assert.Equal(t, 1, hits)
}

func TestFilterMatch(t *testing.T) {
	f := &Filter{Field: "status", Value: "paid"}

	assert.True(t, f.Match(Event{New: Marshal(map[string]interface{}{"status": "paid"})}))
	assert.False(t, f.Match(Event{New: Marshal(map[string]interface{}{"status": "pending"})}))
	assert.False(t, f.Match(Event{New: Marshal(map[string]interface{}{"other": 1})}))
	assert.False(t, f.Match(Event{}))

	// nil 过滤器放行一切
	var nothing *Filter
	assert.True(t, nothing.Match(Event{}))
}
