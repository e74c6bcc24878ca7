/*
	Package changebus 变更订阅总线

	对账引擎提交状态转移后，按表发布行级变更事件；
	订阅方（仪表盘、读模型、通知触发）按表独立消费。
	总线不保证跨表顺序，订阅方必须容忍三个实体的事件以任意相对顺序到达。
*/
package changebus

import (
	"context"
	"encoding/json"
	"fmt"
)

// Kind 变更事件类型，封闭集合
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Event 行级变更事件
// New 为新行镜像，Old 为旧行镜像（update/delete 时提供）
type Event struct {
	Table string          `json:"table"`
	Kind  Kind            `json:"kind"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// Handler 订阅方回调函数
type Handler func(event Event)

// Filter 可选的字段过滤器，如 "orders 表中 event_id = 42 的变更"
type Filter struct {
	Field string
	Value string
}

// Match 判断事件是否命中过滤器
// 优先使用新行镜像，delete 事件回退到旧行镜像
func (f *Filter) Match(event Event) bool {
	if f == nil {
		return true
	}

	image := event.New
	if len(image) == 0 {
		image = event.Old
	}
	if len(image) == 0 {
		return false
	}

	var row map[string]interface{}
	if err := json.Unmarshal(image, &row); err != nil {
		return false
	}

	value, ok := row[f.Field]
	if !ok {
		return false
	}
	return fmt.Sprint(value) == f.Value
}

// Subscription 订阅句柄
type Subscription interface {
	Unsubscribe() error
}

// Publisher 发布侧能力，对账引擎只依赖这一半
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Bus 变更总线接口
type Bus interface {
	Publisher
	Subscribe(table string, filter *Filter, handler Handler) (Subscription, error)
}

// Marshal 将行实体渲染为事件镜像
func Marshal(row interface{}) json.RawMessage {
	if row == nil {
		return nil
	}
	b, err := json.Marshal(row)
	if err != nil {
		return nil
	}
	return b
}
