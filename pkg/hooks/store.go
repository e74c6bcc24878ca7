/*
	Package hooks 变更总线的订阅端

	把行级变更事件合并进本地读模型（仪表盘列表），并在被关注的
	字段发生目标变化时触发用户可见通知。

	合并策略是按事件到达顺序的 last-write-wins。总线不保证跨表顺序，
	三个实体的事件各走各的流：一次逻辑转移产生的 Payment/Order/
	Registration 事件可能以任意相对顺序到达，读模型允许短暂的
	跨实体不一致，事件到齐后自然自愈。
*/
package hooks

import (
	"encoding/json"
	"fmt"
	"sync"

	"evently/pkg/changebus"
	"evently/pkg/logger"
)

// Entity 读模型中的一行，以 JSON 解码后的通用形式保存
type Entity map[string]interface{}

// ID 读取实体标识，缺失时返回空串
func (e Entity) ID() string {
	if v, ok := e["id"]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

// WatchHandler 被关注字段命中目标值时的回调
// entity 为新行镜像，from 为旧值（旧镜像缺失时为 nil）
type WatchHandler func(entity Entity, from interface{})

type watcher struct {
	table   string
	field   string
	to      string
	handler WatchHandler
}

// Store 本地读模型
// 按表维护实体列表：insert 头插，update 按 id 替换，delete 按 id 移除
type Store struct {
	mu       sync.RWMutex
	tables   map[string][]Entity
	watchers []watcher
	subs     []changebus.Subscription
}

// NewStore 创建读模型
func NewStore() *Store {
	return &Store{
		tables: make(map[string][]Entity),
	}
}

// Watch 注册字段观察
// table 表的 update 事件中 field 从其他值变为 to 时触发 handler，
// 典型用法：orders.payment_status 变为 paid 时弹出用户通知
func (s *Store) Watch(table, field, to string, handler WatchHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, watcher{table: table, field: field, to: to, handler: handler})
}

// Bind 订阅总线上的若干张表,事件到达后合并进读模型
func (s *Store) Bind(bus changebus.Bus, tables ...string) error {
	for _, table := range tables {
		sub, err := bus.Subscribe(table, nil, s.Apply)
		if err != nil {
			return fmt.Errorf("subscribe %s error: %w", table, err)
		}
		s.mu.Lock()
		s.subs = append(s.subs, sub)
		s.mu.Unlock()
	}
	return nil
}

// Unbind 取消全部订阅
func (s *Store) Unbind() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			logger.ErrorString("Hooks", "Unsubscribe", err.Error())
		}
	}
}

// Apply 合并一条变更事件
func (s *Store) Apply(event changebus.Event) {
	newRow := decode(event.New)
	oldRow := decode(event.Old)

	s.mu.Lock()
	switch event.Kind {
	case changebus.KindInsert:
		if newRow != nil {
			s.tables[event.Table] = append([]Entity{newRow}, s.tables[event.Table]...)
		}
	case changebus.KindUpdate:
		if newRow != nil {
			s.replace(event.Table, newRow)
		}
	case changebus.KindDelete:
		target := oldRow
		if target == nil {
			target = newRow
		}
		if target != nil {
			s.remove(event.Table, target.ID())
		}
	}
	watchers := make([]watcher, len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()

	// 观察回调在锁外执行，回调里允许再读 Store
	if event.Kind == changebus.KindUpdate && newRow != nil {
		fireWatchers(watchers, event.Table, oldRow, newRow)
	}
}

// replace 按 id 替换，本地没有这一行时头插补齐（事件乱序时自愈）
func (s *Store) replace(table string, row Entity) {
	id := row.ID()
	for i, existing := range s.tables[table] {
		if existing.ID() == id {
			s.tables[table][i] = row
			return
		}
	}
	s.tables[table] = append([]Entity{row}, s.tables[table]...)
}

// remove 按 id 移除
func (s *Store) remove(table, id string) {
	rows := s.tables[table]
	for i, existing := range rows {
		if existing.ID() == id {
			s.tables[table] = append(rows[:i], rows[i+1:]...)
			return
		}
	}
}

// List 返回某张表读模型的快照
func (s *Store) List(table string) []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]Entity, len(s.tables[table]))
	copy(rows, s.tables[table])
	return rows
}

// Get 按 id 查找单行
func (s *Store) Get(table, id string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, row := range s.tables[table] {
		if row.ID() == id {
			return row, true
		}
	}
	return nil, false
}

// fireWatchers 检查被关注字段是否发生目标变化
func fireWatchers(watchers []watcher, table string, oldRow, newRow Entity) {
	for _, w := range watchers {
		if w.table != table {
			continue
		}

		newValue, ok := newRow[w.field]
		if !ok || fmt.Sprint(newValue) != w.to {
			continue
		}

		// 旧镜像里已经是目标值则不算变化
		var from interface{}
		if oldRow != nil {
			from = oldRow[w.field]
			if fmt.Sprint(from) == w.to {
				continue
			}
		}
		w.handler(newRow, from)
	}
}

// decode 解析行镜像
func decode(image []byte) Entity {
	if len(image) == 0 {
		return nil
	}
	var row Entity
	if err := json.Unmarshal(image, &row); err != nil {
		logger.ErrorString("Hooks", "Decode", err.Error())
		return nil
	}
	return row
}
