package wechat

import (
	"context"
	"fmt"
	"time"

	"github.com/wechatpay-apiv3/wechatpay-go/core"
	"github.com/wechatpay-apiv3/wechatpay-go/core/option"
	"github.com/wechatpay-apiv3/wechatpay-go/services/payments/jsapi"
	"github.com/wechatpay-apiv3/wechatpay-go/utils"

	"evently/config"
	"evently/pkg/payment/types"
	payutils "evently/pkg/payment/utils"
)

// WechatPayService 微信支付服务
type WechatPayService struct {
	client    *core.Client
	appID     string
	mchID     string
	notifyURL string
}

// NewWechatPayService 创建微信支付服务
func NewWechatPayService(config config.WechatConfig) (*WechatPayService, error) {
	// 1. 加载商户私钥
	mchPrivateKey, err := utils.LoadPrivateKey(config.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("load merchant private key error: %w", err)
	}

	// 2. 创建证书管理器
	opts := []core.ClientOption{
		option.WithWechatPayAutoAuthCipher(
			config.MchID,
			config.SerialNo,
			mchPrivateKey,
			config.APIv3Key,
		),
	}

	// 3. 创建客户端
	client, err := core.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create wechat pay client error: %w", err)
	}

	return &WechatPayService{
		client:    client,
		appID:     config.AppID,
		mchID:     config.MchID,
		notifyURL: config.NotifyURL,
	}, nil
}

// CreatePayment 创建支付
// 商户侧支付单号作为 OutTradeNo 传给微信，回调时原样带回
func (s *WechatPayService) CreatePayment(ctx context.Context, req *types.Request) (*types.Result, error) {
	expireAt := time.Now().Add(30 * time.Minute)

	svc := jsapi.JsapiApiService{Client: s.client}
	prepayResp, result, err := svc.Prepay(ctx, jsapi.PrepayRequest{
		Appid:       core.String(s.appID),
		Mchid:       core.String(s.mchID),
		Description: core.String(req.Description),
		OutTradeNo:  core.String(req.ProviderPaymentID),
		NotifyUrl:   core.String(s.notifyURL),
		Amount: &jsapi.Amount{
			Total:    core.Int64(req.Amount),
			Currency: core.String(req.Currency),
		},
	})

	if err != nil {
		return nil, fmt.Errorf("create wechat payment error: %w", err)
	}

	if result != nil && result.Response.StatusCode != 200 {
		return nil, fmt.Errorf("create wechat payment failed with status code: %d", result.Response.StatusCode)
	}

	// 生成前端调起支付所需的参数
	timestamp := time.Now().Unix()
	nonceStr := payutils.GenerateNonceStr()
	packageStr := fmt.Sprintf("prepay_id=%s", *prepayResp.PrepayId)

	return &types.Result{
		ProviderPaymentID: req.ProviderPaymentID,
		PrepayID:          *prepayResp.PrepayId,
		ExtraData: map[string]interface{}{
			"appId":     s.appID,
			"timeStamp": timestamp,
			"nonceStr":  nonceStr,
			"package":   packageStr,
			"signType":  "RSA",
		},
		ExpireAt: expireAt,
	}, nil
}
