package order

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	orderModel "evently/app/models/order"
	paymentModel "evently/app/models/payment"
	registrationModel "evently/app/models/registration"
	"evently/app/repositories"
	"evently/app/requests"
	"evently/pkg/changebus"
	"evently/pkg/logger"
	"evently/pkg/payment"
	"evently/pkg/payment/utils"
	"evently/pkg/response"
)

// OrderController 报名下单与订单查询
type OrderController struct {
	db            *gorm.DB
	orders        *repositories.OrderRepository
	payments      *repositories.PaymentRepository
	registrations *repositories.RegistrationRepository
	services      map[payment.Provider]payment.Service
	bus           changebus.Publisher
}

// NewOrderController 创建订单控制器
func NewOrderController(
	db *gorm.DB,
	services map[payment.Provider]payment.Service,
	bus changebus.Publisher,
) *OrderController {
	return &OrderController{
		db:            db,
		orders:        repositories.NewOrderRepository(db),
		payments:      repositories.NewPaymentRepository(db),
		registrations: repositories.NewRegistrationRepository(db),
		services:      services,
		bus:           bus,
	}
}

// Checkout 报名下单
//
// 在单个事务里落三条记录：报名记录、订单、支付记录，全部 pending，
// 并在事务内去支付服务商侧发起支付，任何一步失败整体回滚，
// 不留下回调永远无法匹配的孤儿记录。后续状态推进全部由回调
// 对账驱动，这里不做任何状态变更。
func (oc *OrderController) Checkout(c *gin.Context) {
	req, err := requests.ValidateCheckout(c)
	if err != nil {
		response.BadRequest(c, err, "下单参数错误")
		return
	}

	svc, ok := oc.services[payment.Provider(req.Provider)]
	if !ok {
		response.Abort400(c, fmt.Sprintf("不支持的支付渠道: %s", req.Provider))
		return
	}

	ctx := c.Request.Context()

	registration := &registrationModel.Registration{
		RegistrationNo: utils.GenerateRegistrationNo(),
		EventID:        req.EventID,
		Name:           req.Name,
		Email:          req.Email,
		Status:         string(registrationModel.StatusPending),
		PaymentStatus:  string(paymentModel.StatusPending),
		CheckInStatus:  string(registrationModel.CheckInNone),
	}

	ord := &orderModel.Order{
		OrderNo:       utils.GenerateOrderNo(),
		EventID:       req.EventID,
		Status:        string(orderModel.StatusPending),
		PaymentStatus: string(orderModel.PaymentPending),
		TotalAmount:   req.Amount,
	}

	// 商户侧支付单号作为服务商关联键
	pay := &paymentModel.Payment{
		ProviderPaymentID: utils.GeneratePaymentNo(),
		Provider:          req.Provider,
		Amount:            req.Amount,
		Currency:          "CNY",
		Status:            string(paymentModel.StatusPending),
	}

	var result *payment.Result
	err = oc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(registration).Error; err != nil {
			return fmt.Errorf("创建报名记录失败: %w", err)
		}

		ord.RegistrationID = registration.ID
		if err := tx.Create(ord).Error; err != nil {
			return fmt.Errorf("创建订单失败: %w", err)
		}

		var perr error
		result, perr = svc.CreatePayment(ctx, &payment.Request{
			ProviderPaymentID: pay.ProviderPaymentID,
			OrderNo:           ord.OrderNo,
			Amount:            req.Amount,
			Currency:          pay.Currency,
			Provider:          payment.Provider(req.Provider),
			ReturnURL:         req.ReturnURL,
			Description:       fmt.Sprintf("活动报名 %s", registration.RegistrationNo),
		})
		if perr != nil {
			return fmt.Errorf("发起支付失败: %w", perr)
		}

		pay.OrderID = ord.ID
		pay.ExpireAt = &result.ExpireAt
		if err := tx.Create(pay).Error; err != nil {
			return fmt.Errorf("创建支付记录失败: %w", err)
		}
		return nil
	})
	if err != nil {
		response.ServerError(c, err, "下单失败")
		return
	}

	// 三条新记录作为 insert 事件发到变更总线，发布失败只记日志
	inserts := []struct {
		table string
		row   interface{}
	}{
		{"registrations", registration},
		{"orders", ord},
		{"payments", pay},
	}
	for _, ins := range inserts {
		err := oc.bus.Publish(ctx, changebus.Event{
			Table: ins.table,
			Kind:  changebus.KindInsert,
			New:   changebus.Marshal(ins.row),
		})
		if err != nil {
			logger.ErrorString("Order", "Checkout", "发布变更事件失败: "+err.Error())
		}
	}

	response.Created(c, gin.H{
		"order_no":        ord.OrderNo,
		"registration_no": registration.RegistrationNo,
		"payment":         result,
	}, "下单成功")
}

// Show 按订单号查询订单详情，聚合其支付记录与报名记录
func (oc *OrderController) Show(c *gin.Context) {
	ctx := c.Request.Context()

	ord, err := oc.orders.GetByOrderNo(ctx, c.Param("order_no"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		response.Abort404(c, "订单不存在")
		return
	}
	if err != nil {
		response.ServerError(c, err, "查询订单失败")
		return
	}

	payments, err := oc.payments.ListByOrderID(ctx, ord.ID)
	if err != nil {
		response.ServerError(c, err, "查询支付记录失败")
		return
	}

	registration, err := oc.registrations.GetByID(ctx, ord.RegistrationID)
	if err != nil {
		response.ServerError(c, err, "查询报名记录失败")
		return
	}

	response.Data(c, gin.H{
		"order":        ord,
		"payments":     payments,
		"registration": registration,
	})
}
