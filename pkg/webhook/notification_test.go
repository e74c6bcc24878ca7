package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evently/app/models/payment"
)

func TestParse(t *testing.T) {
	body := []byte(`{"id":"pay_1001","status":"success","key":"trace","value":"t-1"}`)

	n, err := Parse("alipay", body)
	require.NoError(t, err)

	assert.Equal(t, "alipay", n.Provider)
	assert.Equal(t, "pay_1001", n.ProviderPaymentID)
	assert.Equal(t, payment.StatusPaid, n.Status)
	assert.Equal(t, "success", n.RawStatus)
	assert.Equal(t, "trace", n.Key)
	assert.Equal(t, "t-1", n.Value)
	assert.Equal(t, body, n.Payload)
	assert.False(t, n.ReceivedAt.IsZero())
}

func TestParseMalformed(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"非法 JSON", `{id:`},
		{"缺少 id", `{"status":"paid"}`},
		{"缺少 status", `{"id":"pay_1001"}`},
		{"空报文", ``},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("wechat", []byte(tc.body))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestParseUnknownStatusFallsBackToPending(t *testing.T) {
	n, err := Parse("wechat", []byte(`{"id":"pay_1001","status":"refund_in_review"}`))
	require.NoError(t, err)

	assert.Equal(t, payment.StatusPending, n.Status)
	assert.Equal(t, "refund_in_review", n.RawStatus)
}

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		raw    string
		status payment.Status
		known  bool
	}{
		{"paid", payment.StatusPaid, true},
		{"success", payment.StatusPaid, true},
		{"succeeded", payment.StatusPaid, true},
		{"captured", payment.StatusPaid, true},
		{"pending", payment.StatusPending, true},
		{"created", payment.StatusPending, true},
		{"processing", payment.StatusPending, true},
		{"failed", payment.StatusFailed, true},
		{"canceled", payment.StatusFailed, true},
		{"cancelled", payment.StatusFailed, true},
		{"denied", payment.StatusFailed, true},
		{"expired", payment.StatusExpired, true},
		{"timeout", payment.StatusExpired, true},
		{"whatever", payment.StatusPending, false},
	}

	for _, tc := range cases {
		status, known := NormalizeStatus(tc.raw)
		assert.Equal(t, tc.status, status, tc.raw)
		assert.Equal(t, tc.known, known, tc.raw)
	}
}

func TestFingerprint(t *testing.T) {
	body := []byte(`{"id":"pay_1001","status":"paid"}`)

	first, err := Parse("alipay", body)
	require.NoError(t, err)
	second, err := Parse("alipay", body)
	require.NoError(t, err)

	// 同一条通知的任意次投递产生相同指纹
	assert.Equal(t, first.Fingerprint(), second.Fingerprint())

	// 报文内容不同则指纹不同
	other, err := Parse("alipay", []byte(`{"id":"pay_1001","status":"paid","key":"x"}`))
	require.NoError(t, err)
	assert.NotEqual(t, first.Fingerprint(), other.Fingerprint())

	// 服务商不同则指纹不同
	crossProvider, err := Parse("wechat", body)
	require.NoError(t, err)
	assert.NotEqual(t, first.Fingerprint(), crossProvider.Fingerprint())
}
