package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// GenerateOrderNo 生成订单号
func GenerateOrderNo() string {
	return fmt.Sprintf("ord_%s%03d", time.Now().Format("20060102150405"), time.Now().UnixNano()%1000)
}

// GeneratePaymentNo 生成商户侧支付单号，服务商回调原样带回
func GeneratePaymentNo() string {
	return fmt.Sprintf("pay_%s%06d", time.Now().Format("20060102150405"), time.Now().Nanosecond()/1000)
}

// GenerateRegistrationNo 生成报名编号
func GenerateRegistrationNo() string {
	return fmt.Sprintf("reg_%s%03d", time.Now().Format("20060102150405"), time.Now().UnixNano()%1000)
}

// GenerateNonceStr 生成随机字符串
func GenerateNonceStr() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
