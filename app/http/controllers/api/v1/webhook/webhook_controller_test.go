package webhook

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"evently/app/models/ledger"
	"evently/app/models/order"
	"evently/app/models/payment"
	"evently/app/models/registration"
	"evently/pkg/changebus"
	"evently/pkg/reconcile"
)

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()

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

	engine := reconcile.NewEngine(db, changebus.NewMemoryBus(), nil)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/v1/webhooks/payments/:provider", NewWebhookController(engine).HandleNotify)
	return router, db
}

func seedPayment(t *testing.T, db *gorm.DB, providerPaymentID string) {
	t.Helper()

	reg := &registration.Registration{
		RegistrationNo: "reg_" + providerPaymentID,
		EventID:        1,
		Status:         string(registration.StatusPending),
		PaymentStatus:  string(payment.StatusPending),
		CheckInStatus:  string(registration.CheckInNone),
	}
	require.NoError(t, db.Create(reg).Error)

	o := &order.Order{
		OrderNo:        "ord_" + providerPaymentID,
		EventID:        1,
		RegistrationID: reg.ID,
		Status:         string(order.StatusPending),
		PaymentStatus:  string(order.PaymentPending),
		TotalAmount:    9900,
	}
	require.NoError(t, db.Create(o).Error)

	require.NoError(t, db.Create(&payment.Payment{
		OrderID:           o.ID,
		ProviderPaymentID: providerPaymentID,
		Provider:          "alipay",
		Amount:            9900,
		Currency:          "CNY",
		Status:            string(payment.StatusPending),
	}).Error)
}

func notify(router *gin.Engine, provider, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payments/"+provider,
		bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestHandleNotifyMalformed(t *testing.T) {
	router, db := setupRouter(t)
	seedPayment(t, db, "pay_1001")

	cases := []string{
		`not json`,
		`{"status":"paid"}`,
		`{"id":"pay_1001"}`,
	}

	for _, body := range cases {
		w := notify(router, "alipay", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	// 无效报文绝不留痕
	var entries int64
	require.NoError(t, db.Model(&ledger.Entry{}).Count(&entries).Error)
	assert.Zero(t, entries)

	var p payment.Payment
	require.NoError(t, db.Where("provider_payment_id = ?", "pay_1001").First(&p).Error)
	assert.Equal(t, string(payment.StatusPending), p.Status)
}

func TestHandleNotifyUnknownPayment(t *testing.T) {
	router, _ := setupRouter(t)

	w := notify(router, "alipay", `{"id":"pay_missing","status":"paid"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleNotifyLifecycle(t *testing.T) {
	router, db := setupRouter(t)
	seedPayment(t, db, "pay_1001")

	// pending 通知
	w := notify(router, "alipay", `{"id":"pay_1001","status":"processing"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	// paid 通知
	w = notify(router, "alipay", `{"id":"pay_1001","status":"paid"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// 同一条 paid 重复投递
	w = notify(router, "alipay", `{"id":"pay_1001","status":"paid"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// paid 之后的 failed：冲突但也回 200，让服务商停止重试
	w = notify(router, "alipay", `{"id":"pay_1001","status":"failed"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var p payment.Payment
	require.NoError(t, db.Where("provider_payment_id = ?", "pay_1001").First(&p).Error)
	assert.Equal(t, string(payment.StatusPaid), p.Status)

	var o order.Order
	require.NoError(t, db.Where("order_no = ?", "ord_pay_1001").First(&o).Error)
	assert.Equal(t, string(order.StatusConfirmed), o.Status)

	var reg registration.Registration
	require.NoError(t, db.Where("registration_no = ?", "reg_pay_1001").First(&reg).Error)
	assert.Equal(t, string(registration.StatusActive), reg.Status)
	assert.Equal(t, int64(9900), reg.AmountPaid)
}
