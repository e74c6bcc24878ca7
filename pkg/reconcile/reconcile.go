/*
	Package reconcile 支付对账引擎

	消费归一化后的支付通知，在 Order / Payment / Registration 三实体
	状态机上计算并应用下一个合法状态。回调来源是"至少一次投递"：
	重复、乱序、并发都视为常态，通过幂等账本与乐观锁保证任意次
	投递与一次投递产生相同的最终状态。

	三张实体表的状态字段只允许本引擎写入。
*/
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"evently/app/models/ledger"
	"evently/app/models/order"
	"evently/app/models/payment"
	"evently/app/models/registration"
	"evently/app/repositories"
	"evently/pkg/changebus"
	"evently/pkg/logger"
	"evently/pkg/webhook"
)

// ErrNotFound 未找到对应实体
// 与重复投递不同，这是终态错误：不在内部重试，入口以 404 暴露，
// 留给人工排查，绝不凭空补造记录
var ErrNotFound = errors.New("reconcile: entity not found")

// Outcome 一次通知的处理结果
type Outcome int

const (
	OutcomeNone      Outcome = iota // 未处理（出错）
	OutcomeApplied                  // 状态转移已提交
	OutcomeDuplicate                // 重复投递，未重复应用
	OutcomeDiscarded                // 与终态冲突，已记录并丢弃
)

// String 实现 fmt.Stringer
func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeDiscarded:
		return "discarded"
	default:
		return "none"
	}
}

// Dispatcher 状态转移提交后的副作用分发
// 实现方必须是"发完即忘"：失败只记日志，绝不回滚已提交的转移
type Dispatcher interface {
	NotifyOrderConfirmed(ctx context.Context, orderID uint64, orderNo string) error
}

// Engine 对账引擎
// 所有依赖显式注入，不持有任何包级单例
type Engine struct {
	payments      *repositories.PaymentRepository
	orders        *repositories.OrderRepository
	registrations *repositories.RegistrationRepository
	ledger        *repositories.LedgerRepository
	transitions   *repositories.TransitionRepository
	bus           changebus.Publisher
	dispatcher    Dispatcher
}

// NewEngine 创建对账引擎
func NewEngine(db *gorm.DB, bus changebus.Publisher, dispatcher Dispatcher) *Engine {
	return &Engine{
		payments:      repositories.NewPaymentRepository(db),
		orders:        repositories.NewOrderRepository(db),
		registrations: repositories.NewRegistrationRepository(db),
		ledger:        repositories.NewLedgerRepository(db),
		transitions:   repositories.NewTransitionRepository(db),
		bus:           bus,
		dispatcher:    dispatcher,
	}
}

// Apply 将一条归一化通知应用到三实体状态机
//
// 处理流程：
//  1. 按服务商支付ID定位支付记录，找不到返回 ErrNotFound
//  2. 指纹已在幂等账本中 => 重复投递，直接返回成功
//  3. 支付已处于终态 paid => 后到的冲突通知落账后丢弃
//  4. 订单已由其他支付尝试结清 => 本次通知落账后丢弃
//  5. 在单个事务内条件更新三实体并落账指纹
//  6. 输掉乐观竞争 => 重读验证收敛，按重复投递返回成功
//  7. 提交后发布变更事件；晋升为 paid 时触发副作用分发
func (e *Engine) Apply(ctx context.Context, n *webhook.Notification) (Outcome, error) {
	p, err := e.payments.GetByProviderPaymentID(ctx, n.ProviderPaymentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return OutcomeNone, fmt.Errorf("%w: payment %s", ErrNotFound, n.ProviderPaymentID)
	}
	if err != nil {
		return OutcomeNone, fmt.Errorf("lookup payment error: %w", err)
	}

	fingerprint := n.Fingerprint()
	applied, err := e.ledger.HasApplied(ctx, n.Provider, fingerprint)
	if err != nil {
		return OutcomeNone, fmt.Errorf("ledger check error: %w", err)
	}
	if applied {
		logger.DebugString("Reconcile", "Duplicate",
			fmt.Sprintf("重复投递已短路 provider=%s id=%s status=%s", n.Provider, n.ProviderPaymentID, n.Status))
		return OutcomeDuplicate, nil
	}

	// paid 为终态：后到的任何通知都不再改变支付状态
	if p.IsPaid() {
		return e.acknowledgeTerminal(ctx, p, n, fingerprint)
	}

	o, err := e.orders.GetByID(ctx, p.OrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return OutcomeNone, fmt.Errorf("%w: order %d", ErrNotFound, p.OrderID)
	}
	if err != nil {
		return OutcomeNone, fmt.Errorf("lookup order error: %w", err)
	}

	// 一个订单可以有多次支付尝试，但订单一旦结清同样是终态：
	// 其余尝试的任何后续通知既不能把订单拉回 cancelled/pending，
	// 也不允许第二笔支付再晋升 paid
	if o.IsConfirmed() && o.IsPaid() {
		return e.acknowledgeSettledOrder(ctx, o, n, fingerprint)
	}

	// 只有晋升为 paid 才会触碰报名记录
	var reg *registration.Registration
	if n.Status == payment.StatusPaid && o.RegistrationID != 0 {
		reg, err = e.registrations.GetByID(ctx, o.RegistrationID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OutcomeNone, fmt.Errorf("%w: registration %d", ErrNotFound, o.RegistrationID)
		}
		if err != nil {
			return OutcomeNone, fmt.Errorf("lookup registration error: %w", err)
		}
	}

	t, images := buildTransition(p, o, reg, n, fingerprint)

	err = e.transitions.Apply(ctx, t)
	if errors.Is(err, repositories.ErrVersionConflict) || repositories.IsDuplicateEntry(err) {
		return e.converge(ctx, n)
	}
	if err != nil {
		return OutcomeNone, fmt.Errorf("apply transition error: %w", err)
	}

	e.publish(ctx, images)

	if n.Status == payment.StatusPaid && e.dispatcher != nil {
		if err := e.dispatcher.NotifyOrderConfirmed(ctx, o.ID, o.OrderNo); err != nil {
			// 副作用失败与已结算的支付状态显式解耦，只记日志
			logger.ErrorString("Reconcile", "Dispatch",
				fmt.Sprintf("订单 %s 副作用分发失败: %v", o.OrderNo, err))
		}
	}

	logger.InfoString("Reconcile", "Applied",
		fmt.Sprintf("provider=%s id=%s status=%s order=%s", n.Provider, n.ProviderPaymentID, n.Status, o.OrderNo))
	return OutcomeApplied, nil
}

// acknowledgeTerminal 处理已 paid 支付收到的后续通知
// 指纹照常落账（让后续重复投递在第 2 步短路），实体不做任何改动
func (e *Engine) acknowledgeTerminal(ctx context.Context, p *payment.Payment, n *webhook.Notification, fingerprint string) (Outcome, error) {
	entry := newLedgerEntry(n, fingerprint)
	if err := e.ledger.RecordApplied(ctx, entry); err != nil && !repositories.IsDuplicateEntry(err) {
		return OutcomeNone, fmt.Errorf("record ledger error: %w", err)
	}

	if n.Status == payment.StatusPaid {
		return OutcomeDuplicate, nil
	}

	logger.WarnString("Reconcile", "Discard",
		fmt.Sprintf("支付 %s 已是终态 paid，丢弃冲突通知 status=%s", n.ProviderPaymentID, n.RawStatus))
	return OutcomeDiscarded, nil
}

// acknowledgeSettledOrder 处理订单已结清后针对其余支付尝试的通知
// 指纹照常落账，三实体不做任何改动
func (e *Engine) acknowledgeSettledOrder(ctx context.Context, o *order.Order, n *webhook.Notification, fingerprint string) (Outcome, error) {
	entry := newLedgerEntry(n, fingerprint)
	if err := e.ledger.RecordApplied(ctx, entry); err != nil && !repositories.IsDuplicateEntry(err) {
		return OutcomeNone, fmt.Errorf("record ledger error: %w", err)
	}

	if n.Status == payment.StatusPaid {
		logger.WarnString("Reconcile", "Discard",
			fmt.Sprintf("订单 %s 已结清，丢弃支付尝试 %s 的重复结算通知", o.OrderNo, n.ProviderPaymentID))
	} else {
		logger.WarnString("Reconcile", "Discard",
			fmt.Sprintf("订单 %s 已结清，丢弃支付尝试 %s 的通知 status=%s", o.OrderNo, n.ProviderPaymentID, n.RawStatus))
	}
	return OutcomeDiscarded, nil
}

// converge 输掉乐观竞争后的收敛处理
// 另一次投递已先行更新，重读验证后按重复投递返回成功，
// 避免对合法竞争制造重试风暴
func (e *Engine) converge(ctx context.Context, n *webhook.Notification) (Outcome, error) {
	p, err := e.payments.GetByProviderPaymentID(ctx, n.ProviderPaymentID)
	if err != nil {
		return OutcomeNone, fmt.Errorf("re-read payment error: %w", err)
	}

	if p.Status == string(n.Status) || p.IsPaid() {
		logger.InfoString("Reconcile", "Converged",
			fmt.Sprintf("支付 %s 竞争失败后已收敛到 %s", n.ProviderPaymentID, p.Status))
	} else {
		logger.WarnString("Reconcile", "Diverged",
			fmt.Sprintf("支付 %s 竞争失败且状态未收敛：当前 %s，本次通知 %s", n.ProviderPaymentID, p.Status, n.Status))
	}
	return OutcomeDuplicate, nil
}

// images 提交后对外发布的行镜像
type images struct {
	oldPayment, newPayment           *payment.Payment
	oldOrder, newOrder               *order.Order
	oldRegistration, newRegistration *registration.Registration
}

// buildTransition 按状态机转移表计算落库内容与事件镜像
//
//	归一化状态 | Payment  | Order               | Registration
//	paid      | paid     | confirmed / paid    | active / paid
//	pending   | pending  | pending / pending   | 不变
//	failed    | failed   | cancelled / failed  | 不变
//	expired   | expired  | 不变                 | 不变
func buildTransition(p *payment.Payment, o *order.Order, reg *registration.Registration, n *webhook.Notification, fingerprint string) (*repositories.Transition, *images) {
	now := time.Now()

	raws := make(payment.JSONList, 0, len(p.RawNotifications)+1)
	raws = append(raws, p.RawNotifications...)
	raws = append(raws, payment.RawNotification{
		Status:     n.RawStatus,
		Payload:    string(n.Payload),
		ReceivedAt: n.ReceivedAt,
	})

	t := &repositories.Transition{
		PaymentID:      p.ID,
		PaymentVersion: p.Version,
		PaymentUpdates: map[string]interface{}{
			"status":            string(n.Status),
			"provider_status":   n.RawStatus,
			"raw_notifications": raws,
		},
		OrderID: o.ID,
		Ledger:  newLedgerEntry(n, fingerprint),
	}

	newP := *p
	newP.Status = string(n.Status)
	newP.ProviderStatus = n.RawStatus
	newP.RawNotifications = raws
	newP.Version = p.Version + 1

	newO := *o
	img := &images{oldPayment: p, newPayment: &newP, oldOrder: o, newOrder: &newO}

	switch n.Status {
	case payment.StatusPaid:
		t.PaymentUpdates["paid_at"] = now
		newP.PaidAt = &now

		t.OrderUpdates = map[string]interface{}{
			"status":         string(order.StatusConfirmed),
			"payment_status": string(order.PaymentPaid),
			"confirmed_at":   now,
		}
		newO.Status = string(order.StatusConfirmed)
		newO.PaymentStatus = string(order.PaymentPaid)
		newO.ConfirmedAt = &now

		if reg != nil {
			t.RegistrationID = reg.ID
			t.RegistrationUpdates = map[string]interface{}{
				"status":         string(registration.StatusActive),
				"payment_status": string(order.PaymentPaid),
				"amount_paid":    p.Amount,
			}
			newReg := *reg
			newReg.Status = string(registration.StatusActive)
			newReg.PaymentStatus = string(order.PaymentPaid)
			newReg.AmountPaid = p.Amount
			img.oldRegistration = reg
			img.newRegistration = &newReg
		}

	case payment.StatusPending:
		t.OrderUpdates = map[string]interface{}{
			"status":         string(order.StatusPending),
			"payment_status": string(order.PaymentPending),
		}
		newO.Status = string(order.StatusPending)
		newO.PaymentStatus = string(order.PaymentPending)

	case payment.StatusFailed:
		t.OrderUpdates = map[string]interface{}{
			"status":         string(order.StatusCancelled),
			"payment_status": string(order.PaymentFailed),
		}
		newO.Status = string(order.StatusCancelled)
		newO.PaymentStatus = string(order.PaymentFailed)

	case payment.StatusExpired:
		// 只标记支付尝试过期，订单与报名保持原状
	}

	return t, img
}

// newLedgerEntry 构造幂等账本条目
func newLedgerEntry(n *webhook.Notification, fingerprint string) *ledger.Entry {
	return &ledger.Entry{
		Provider:          n.Provider,
		Fingerprint:       fingerprint,
		ProviderPaymentID: n.ProviderPaymentID,
		Status:            string(n.Status),
		Payload:           string(n.Payload),
		AppliedAt:         n.ReceivedAt,
	}
}

// publish 提交后发布行级变更事件，尽力而为
// 总线故障不影响已提交的状态转移，下游靠最终一致自愈
func (e *Engine) publish(ctx context.Context, img *images) {
	events := []changebus.Event{
		{
			Table: payment.Payment{}.TableName(),
			Kind:  changebus.KindUpdate,
			New:   changebus.Marshal(img.newPayment),
			Old:   changebus.Marshal(img.oldPayment),
		},
	}

	orderChanged := img.newOrder.Status != img.oldOrder.Status ||
		img.newOrder.PaymentStatus != img.oldOrder.PaymentStatus
	if orderChanged {
		events = append(events, changebus.Event{
			Table: order.Order{}.TableName(),
			Kind:  changebus.KindUpdate,
			New:   changebus.Marshal(img.newOrder),
			Old:   changebus.Marshal(img.oldOrder),
		})
	}

	if img.newRegistration != nil {
		events = append(events, changebus.Event{
			Table: registration.Registration{}.TableName(),
			Kind:  changebus.KindUpdate,
			New:   changebus.Marshal(img.newRegistration),
			Old:   changebus.Marshal(img.oldRegistration),
		})
	}

	for _, event := range events {
		if err := e.bus.Publish(ctx, event); err != nil {
			logger.ErrorString("Reconcile", "Publish",
				fmt.Sprintf("变更事件发布失败 table=%s: %v", event.Table, err))
		}
	}
}
