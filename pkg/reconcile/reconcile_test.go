package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"evently/app/models/ledger"
	"evently/app/models/order"
	"evently/app/models/payment"
	"evently/app/models/registration"
	"evently/app/repositories"
	"evently/pkg/changebus"
	"evently/pkg/webhook"
)

// fakeDispatcher 统计副作用分发次数
type fakeDispatcher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (d *fakeDispatcher) NotifyOrderConfirmed(ctx context.Context, orderID uint64, orderNo string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, orderNo)
	return d.err
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	// 每个测试独立的内存库；单连接让并发写在驱动层排队
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&registration.Registration{},
		&order.Order{},
		&payment.Payment{},
		&ledger.Entry{},
	))
	return db
}

// seed 落一组 pending 的报名/订单/支付记录
func seed(t *testing.T, db *gorm.DB, providerPaymentID string) (*registration.Registration, *order.Order, *payment.Payment) {
	t.Helper()

	reg := &registration.Registration{
		RegistrationNo: "reg_" + providerPaymentID,
		EventID:        42,
		Name:           "张三",
		Email:          "zhangsan@example.com",
		Status:         string(registration.StatusPending),
		PaymentStatus:  string(payment.StatusPending),
		CheckInStatus:  string(registration.CheckInNone),
	}
	require.NoError(t, db.Create(reg).Error)

	o := &order.Order{
		OrderNo:        "ord_" + providerPaymentID,
		EventID:        42,
		RegistrationID: reg.ID,
		Status:         string(order.StatusPending),
		PaymentStatus:  string(order.PaymentPending),
		TotalAmount:    12800,
	}
	require.NoError(t, db.Create(o).Error)

	p := &payment.Payment{
		OrderID:           o.ID,
		ProviderPaymentID: providerPaymentID,
		Provider:          "alipay",
		Amount:            12800,
		Currency:          "CNY",
		Status:            string(payment.StatusPending),
	}
	require.NoError(t, db.Create(p).Error)

	return reg, o, p
}

func notification(t *testing.T, provider, id, status string) *webhook.Notification {
	t.Helper()
	body := fmt.Sprintf(`{"id":%q,"status":%q}`, id, status)
	n, err := webhook.Parse(provider, []byte(body))
	require.NoError(t, err)
	return n
}

func TestApplyPaid(t *testing.T) {
	db := setupDB(t)
	bus := changebus.NewMemoryBus()
	dispatcher := &fakeDispatcher{}
	engine := NewEngine(db, bus, dispatcher)

	var events []changebus.Event
	for _, table := range []string{"payments", "orders", "registrations"} {
		_, err := bus.Subscribe(table, nil, func(event changebus.Event) {
			events = append(events, event)
		})
		require.NoError(t, err)
	}

	reg, o, _ := seed(t, db, "pay_1001")

	outcome, err := engine.Apply(context.Background(), notification(t, "alipay", "pay_1001", "success"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	// 支付：paid 终态，版本号递增，原始通知入审计列表
	var p payment.Payment
	require.NoError(t, db.Where("provider_payment_id = ?", "pay_1001").First(&p).Error)
	assert.Equal(t, string(payment.StatusPaid), p.Status)
	assert.Equal(t, "success", p.ProviderStatus)
	assert.Equal(t, uint64(1), p.Version)
	assert.NotNil(t, p.PaidAt)
	require.Len(t, p.RawNotifications, 1)
	assert.Equal(t, "success", p.RawNotifications[0].Status)

	// 订单：confirmed / paid，记录确认时间
	var gotOrder order.Order
	require.NoError(t, db.First(&gotOrder, o.ID).Error)
	assert.Equal(t, string(order.StatusConfirmed), gotOrder.Status)
	assert.Equal(t, string(order.PaymentPaid), gotOrder.PaymentStatus)
	assert.NotNil(t, gotOrder.ConfirmedAt)

	// 报名：active / paid，记录实付金额
	var gotReg registration.Registration
	require.NoError(t, db.First(&gotReg, reg.ID).Error)
	assert.Equal(t, string(registration.StatusActive), gotReg.Status)
	assert.Equal(t, string(order.PaymentPaid), gotReg.PaymentStatus)
	assert.Equal(t, int64(12800), gotReg.AmountPaid)

	// 账本落了指纹
	var entries int64
	require.NoError(t, db.Model(&ledger.Entry{}).Count(&entries).Error)
	assert.Equal(t, int64(1), entries)

	// 副作用分发一次，三张表各发布一条 update 事件
	assert.Equal(t, 1, dispatcher.count())
	assert.Len(t, events, 3)
}

func TestApplyIsIdempotent(t *testing.T) {
	db := setupDB(t)
	dispatcher := &fakeDispatcher{}
	engine := NewEngine(db, changebus.NewMemoryBus(), dispatcher)

	seed(t, db, "pay_1001")
	n := notification(t, "alipay", "pay_1001", "paid")

	outcome, err := engine.Apply(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	// 同一条通知再投递任意次都按重复处理
	for i := 0; i < 3; i++ {
		outcome, err = engine.Apply(context.Background(), n)
		require.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, outcome)
	}

	var p payment.Payment
	require.NoError(t, db.Where("provider_payment_id = ?", "pay_1001").First(&p).Error)
	assert.Equal(t, uint64(1), p.Version)
	require.Len(t, p.RawNotifications, 1)

	var entries int64
	require.NoError(t, db.Model(&ledger.Entry{}).Count(&entries).Error)
	assert.Equal(t, int64(1), entries)

	assert.Equal(t, 1, dispatcher.count())
}

func TestPaidIsTerminal(t *testing.T) {
	db := setupDB(t)
	dispatcher := &fakeDispatcher{}
	engine := NewEngine(db, changebus.NewMemoryBus(), dispatcher)

	reg, o, _ := seed(t, db, "pay_1001")

	_, err := engine.Apply(context.Background(), notification(t, "alipay", "pay_1001", "paid"))
	require.NoError(t, err)

	// 后到的 failed 通知：落账后丢弃，三实体原状不动
	outcome, err := engine.Apply(context.Background(), notification(t, "alipay", "pay_1001", "failed"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDiscarded, outcome)

	var p payment.Payment
	require.NoError(t, db.Where("provider_payment_id = ?", "pay_1001").First(&p).Error)
	assert.Equal(t, string(payment.StatusPaid), p.Status)

	var gotOrder order.Order
	require.NoError(t, db.First(&gotOrder, o.ID).Error)
	assert.Equal(t, string(order.StatusConfirmed), gotOrder.Status)

	var gotReg registration.Registration
	require.NoError(t, db.First(&gotReg, reg.ID).Error)
	assert.Equal(t, string(registration.StatusActive), gotReg.Status)

	// 冲突通知的指纹也入账，重复投递能在账本短路
	var entries int64
	require.NoError(t, db.Model(&ledger.Entry{}).Count(&entries).Error)
	assert.Equal(t, int64(2), entries)

	outcome, err = engine.Apply(context.Background(), notification(t, "alipay", "pay_1001", "failed"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
}

// seedAttempt 给已有订单追加一次 pending 支付尝试
func seedAttempt(t *testing.T, db *gorm.DB, o *order.Order, providerPaymentID string) *payment.Payment {
	t.Helper()

	p := &payment.Payment{
		OrderID:           o.ID,
		ProviderPaymentID: providerPaymentID,
		Provider:          "alipay",
		Amount:            o.TotalAmount,
		Currency:          "CNY",
		Status:            string(payment.StatusPending),
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func TestSettledOrderIsTerminalAcrossAttempts(t *testing.T) {
	db := setupDB(t)
	dispatcher := &fakeDispatcher{}
	engine := NewEngine(db, changebus.NewMemoryBus(), dispatcher)

	reg, o, _ := seed(t, db, "pay_A")
	seedAttempt(t, db, o, "pay_B")

	_, err := engine.Apply(context.Background(), notification(t, "alipay", "pay_A", "paid"))
	require.NoError(t, err)

	// 尝试 B 的 failed 通知不能把已结清的订单拉回 cancelled
	outcome, err := engine.Apply(context.Background(), notification(t, "alipay", "pay_B", "failed"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDiscarded, outcome)

	var gotOrder order.Order
	require.NoError(t, db.First(&gotOrder, o.ID).Error)
	assert.Equal(t, string(order.StatusConfirmed), gotOrder.Status)
	assert.Equal(t, string(order.PaymentPaid), gotOrder.PaymentStatus)

	var gotReg registration.Registration
	require.NoError(t, db.First(&gotReg, reg.ID).Error)
	assert.Equal(t, string(registration.StatusActive), gotReg.Status)
	assert.Equal(t, string(order.PaymentPaid), gotReg.PaymentStatus)

	// 尝试 B 自身也原状不动，丢弃的指纹照常入账
	var pb payment.Payment
	require.NoError(t, db.Where("provider_payment_id = ?", "pay_B").First(&pb).Error)
	assert.Equal(t, string(payment.StatusPending), pb.Status)

	var entries int64
	require.NoError(t, db.Model(&ledger.Entry{}).Count(&entries).Error)
	assert.Equal(t, int64(2), entries)

	// 重复投递同一条 failed 通知在账本短路
	outcome, err = engine.Apply(context.Background(), notification(t, "alipay", "pay_B", "failed"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
}

func TestSettledOrderRejectsSecondPaidAttempt(t *testing.T) {
	db := setupDB(t)
	dispatcher := &fakeDispatcher{}
	engine := NewEngine(db, changebus.NewMemoryBus(), dispatcher)

	_, o, _ := seed(t, db, "pay_A")
	seedAttempt(t, db, o, "pay_B")

	_, err := engine.Apply(context.Background(), notification(t, "alipay", "pay_A", "paid"))
	require.NoError(t, err)

	// 一个订单至多一笔 paid 支付：尝试 B 的 paid 通知落账后丢弃
	outcome, err := engine.Apply(context.Background(), notification(t, "alipay", "pay_B", "paid"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDiscarded, outcome)

	var paidCount int64
	require.NoError(t, db.Model(&payment.Payment{}).
		Where("order_id = ? AND status = ?", o.ID, string(payment.StatusPaid)).
		Count(&paidCount).Error)
	assert.Equal(t, int64(1), paidCount)

	// 副作用只在第一次结清时分发一次
	assert.Equal(t, 1, dispatcher.count())
}

func TestApplyUnknownPayment(t *testing.T) {
	db := setupDB(t)
	engine := NewEngine(db, changebus.NewMemoryBus(), &fakeDispatcher{})

	_, err := engine.Apply(context.Background(), notification(t, "alipay", "pay_missing", "paid"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyPending(t *testing.T) {
	db := setupDB(t)
	dispatcher := &fakeDispatcher{}
	engine := NewEngine(db, changebus.NewMemoryBus(), dispatcher)

	reg, o, _ := seed(t, db, "pay_1001")

	outcome, err := engine.Apply(context.Background(), notification(t, "alipay", "pay_1001", "processing"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	var gotOrder order.Order
	require.NoError(t, db.First(&gotOrder, o.ID).Error)
	assert.Equal(t, string(order.StatusPending), gotOrder.Status)

	// 报名记录不受 pending 影响
	var gotReg registration.Registration
	require.NoError(t, db.First(&gotReg, reg.ID).Error)
	assert.Equal(t, string(registration.StatusPending), gotReg.Status)

	assert.Zero(t, dispatcher.count())
}

func TestApplyFailed(t *testing.T) {
	db := setupDB(t)
	dispatcher := &fakeDispatcher{}
	engine := NewEngine(db, changebus.NewMemoryBus(), dispatcher)

	reg, o, _ := seed(t, db, "pay_1001")

	outcome, err := engine.Apply(context.Background(), notification(t, "alipay", "pay_1001", "failed"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	var gotOrder order.Order
	require.NoError(t, db.First(&gotOrder, o.ID).Error)
	assert.Equal(t, string(order.StatusCancelled), gotOrder.Status)
	assert.Equal(t, string(order.PaymentFailed), gotOrder.PaymentStatus)

	// 报名记录保留，允许换支付方式重试
	var gotReg registration.Registration
	require.NoError(t, db.First(&gotReg, reg.ID).Error)
	assert.Equal(t, string(registration.StatusPending), gotReg.Status)

	assert.Zero(t, dispatcher.count())
}

func TestApplyExpired(t *testing.T) {
	db := setupDB(t)
	engine := NewEngine(db, changebus.NewMemoryBus(), &fakeDispatcher{})

	_, o, _ := seed(t, db, "pay_1001")

	outcome, err := engine.Apply(context.Background(), notification(t, "alipay", "pay_1001", "expired"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	var p payment.Payment
	require.NoError(t, db.Where("provider_payment_id = ?", "pay_1001").First(&p).Error)
	assert.Equal(t, string(payment.StatusExpired), p.Status)

	// 过期只作用于支付尝试本身
	var gotOrder order.Order
	require.NoError(t, db.First(&gotOrder, o.ID).Error)
	assert.Equal(t, string(order.StatusPending), gotOrder.Status)
}

func TestFailedCanRecoverToPaid(t *testing.T) {
	db := setupDB(t)
	dispatcher := &fakeDispatcher{}
	engine := NewEngine(db, changebus.NewMemoryBus(), dispatcher)

	reg, o, _ := seed(t, db, "pay_1001")

	// failed 不是终态：服务商侧对账纠偏后仍可晋升为 paid
	_, err := engine.Apply(context.Background(), notification(t, "alipay", "pay_1001", "failed"))
	require.NoError(t, err)

	outcome, err := engine.Apply(context.Background(), notification(t, "alipay", "pay_1001", "paid"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	var gotOrder order.Order
	require.NoError(t, db.First(&gotOrder, o.ID).Error)
	assert.Equal(t, string(order.StatusConfirmed), gotOrder.Status)

	var gotReg registration.Registration
	require.NoError(t, db.First(&gotReg, reg.ID).Error)
	assert.Equal(t, string(registration.StatusActive), gotReg.Status)

	assert.Equal(t, 1, dispatcher.count())
}

func TestConcurrentSamePaidNotification(t *testing.T) {
	db := setupDB(t)
	dispatcher := &fakeDispatcher{}
	engine := NewEngine(db, changebus.NewMemoryBus(), dispatcher)

	seed(t, db, "pay_1001")
	n := notification(t, "alipay", "pay_1001", "paid")

	// 并发投递同一条通知：输掉竞争的一方收敛为重复
	var wg sync.WaitGroup
	outcomes := make([]Outcome, 4)
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = engine.Apply(context.Background(), n)
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, err := range errs {
		require.NoError(t, err)
	}
	for _, outcome := range outcomes {
		if outcome == OutcomeApplied {
			applied++
		} else {
			assert.Equal(t, OutcomeDuplicate, outcome)
		}
	}
	assert.Equal(t, 1, applied)

	var p payment.Payment
	require.NoError(t, db.Where("provider_payment_id = ?", "pay_1001").First(&p).Error)
	assert.Equal(t, string(payment.StatusPaid), p.Status)
	assert.Equal(t, uint64(1), p.Version)

	var entries int64
	require.NoError(t, db.Model(&ledger.Entry{}).Count(&entries).Error)
	assert.Equal(t, int64(1), entries)

	assert.Equal(t, 1, dispatcher.count())
}

func TestVersionConflictConverges(t *testing.T) {
	db := setupDB(t)
	engine := NewEngine(db, changebus.NewMemoryBus(), &fakeDispatcher{})

	_, _, seeded := seed(t, db, "pay_1001")

	// 先应用一条 pending 通知，版本号走到 1
	_, err := engine.Apply(context.Background(), notification(t, "alipay", "pay_1001", "processing"))
	require.NoError(t, err)

	// 直写仓库模拟拿着过期版本号的竞争失败方
	transitions := repositories.NewTransitionRepository(db)
	err = transitions.Apply(context.Background(), &repositories.Transition{
		PaymentID:      seeded.ID,
		PaymentVersion: 0, // 已过期
		PaymentUpdates: map[string]interface{}{"status": string(payment.StatusPaid)},
	})
	assert.ErrorIs(t, err, repositories.ErrVersionConflict)

	// 事务回滚，状态仍是 pending
	var p payment.Payment
	require.NoError(t, db.Where("provider_payment_id = ?", "pay_1001").First(&p).Error)
	assert.Equal(t, string(payment.StatusPending), p.Status)
	assert.Equal(t, uint64(1), p.Version)
}

func TestDispatchFailureDoesNotFailApply(t *testing.T) {
	db := setupDB(t)
	dispatcher := &fakeDispatcher{err: fmt.Errorf("queue unavailable")}
	engine := NewEngine(db, changebus.NewMemoryBus(), dispatcher)

	_, o, _ := seed(t, db, "pay_1001")

	// 副作用失败与已结算的支付状态解耦
	outcome, err := engine.Apply(context.Background(), notification(t, "alipay", "pay_1001", "paid"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	var gotOrder order.Order
	require.NoError(t, db.First(&gotOrder, o.ID).Error)
	assert.Equal(t, string(order.StatusConfirmed), gotOrder.Status)
}
