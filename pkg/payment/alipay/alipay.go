package alipay

import (
	"context"
	"fmt"
	"time"

	"github.com/smartwalle/alipay/v3"

	"evently/config"
	"evently/pkg/payment/types"
)

// AlipayService 支付宝支付服务
type AlipayService struct {
	client    *alipay.Client
	appID     string
	notifyURL string
	returnURL string
}

// NewAlipayService 创建支付宝支付服务
func NewAlipayService(config config.AlipayConfig) (*AlipayService, error) {
	client, err := alipay.New(config.AppID, config.PrivateKey, config.IsProduction)
	if err != nil {
		return nil, fmt.Errorf("create alipay client error: %w", err)
	}

	if err := client.LoadAliPayPublicKey(config.PublicKey); err != nil {
		return nil, fmt.Errorf("load alipay public key error: %w", err)
	}

	return &AlipayService{
		client:    client,
		appID:     config.AppID,
		notifyURL: config.NotifyURL,
		returnURL: config.ReturnURL,
	}, nil
}

// CreatePayment 创建支付
// 商户侧支付单号作为 OutTradeNo 传给支付宝，回调时原样带回
func (s *AlipayService) CreatePayment(ctx context.Context, req *types.Request) (*types.Result, error) {
	expireAt := time.Now().Add(30 * time.Minute)

	trade := alipay.TradePagePay{}
	trade.NotifyURL = s.notifyURL
	trade.ReturnURL = req.ReturnURL
	if trade.ReturnURL == "" {
		trade.ReturnURL = s.returnURL
	}
	trade.Subject = req.Description
	trade.OutTradeNo = req.ProviderPaymentID
	trade.TotalAmount = fmt.Sprintf("%.2f", float64(req.Amount)/100)
	trade.ProductCode = "FAST_INSTANT_TRADE_PAY"

	url, err := s.client.TradePagePay(trade)
	if err != nil {
		return nil, fmt.Errorf("create alipay payment error: %w", err)
	}

	return &types.Result{
		ProviderPaymentID: req.ProviderPaymentID,
		PaymentURL:        url.String(),
		ExpireAt:          expireAt,
	}, nil
}
