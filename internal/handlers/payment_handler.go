package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/settlement-service/internal/auth"
	"github.com/akylbek/payment-system/settlement-service/internal/models"
	"github.com/akylbek/payment-system/settlement-service/internal/service"
	"github.com/akylbek/payment-system/settlement-service/internal/telemetry"
)

// PaymentService is implemented by *service.Orchestrator.
type PaymentService interface {
	InitiatePayment(ctx context.Context, principal auth.Principal, req service.InitiateRequest) (*service.InitiateResult, error)
	VerifyPayment(ctx context.Context, principal auth.Principal, req service.VerifyRequest) (*service.VerifyResult, error)
	GetPayment(ctx context.Context, principal auth.Principal, paymentID string) (*models.Payment, error)
	ListPayments(ctx context.Context, principal auth.Principal, filter models.PaymentFilter) (*service.PaymentPage, error)
}

// RefundService is implemented by *service.RefundProcessor.
type RefundService interface {
	Refund(ctx context.Context, principal auth.Principal, req service.RefundRequest) (*models.Payment, error)
}

type PaymentHandler struct {
	payments PaymentService
	refunds  RefundService
}

func NewPaymentHandler(payments PaymentService, refunds RefundService) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		refunds:  refunds,
	}
}

type initiateBody struct {
	RegistrationID string `json:"registrationId" binding:"required"`
	CouponCode     string `json:"couponCode"`
}

func (h *PaymentHandler) Initiate(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var body initiateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.payments.InitiatePayment(c.Request.Context(), p, service.InitiateRequest{
		RegistrationID: body.RegistrationID,
		CouponCode:     body.CouponCode,
		Metadata: models.RequestMetadata{
			UserAgent: c.Request.UserAgent(),
			IPAddress: c.ClientIP(),
		},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type verifyBody struct {
	PaymentID        string `json:"paymentId" binding:"required"`
	GatewayPaymentID string `json:"gatewayPaymentId" binding:"required"`
	GatewayOrderID   string `json:"gatewayOrderId" binding:"required"`
	Signature        string `json:"signature" binding:"required"`
}

func (h *PaymentHandler) Verify(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var body verifyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.payments.VerifyPayment(c.Request.Context(), p, service.VerifyRequest{
		PaymentID:        body.PaymentID,
		GatewayPaymentID: body.GatewayPaymentID,
		GatewayOrderID:   body.GatewayOrderID,
		Signature:        body.Signature,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if !res.Success {
		telemetry.Logger.Info("Payment verification rejected",
			zap.String("payment_id", body.PaymentID),
			zap.String("reason", res.Reason),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "payment signature verification failed",
			"reason":  res.Reason,
			"payment": res.Payment,
		})
		return
	}
	c.JSON(http.StatusOK, res)
}

type refundBody struct {
	PaymentID string           `json:"paymentId" binding:"required"`
	Reason    string           `json:"reason" binding:"required"`
	Amount    *decimal.Decimal `json:"amount"`
}

func (h *PaymentHandler) Refund(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var body refundBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	payment, err := h.refunds.Refund(c.Request.Context(), p, service.RefundRequest{
		PaymentID: body.PaymentID,
		Reason:    body.Reason,
		Amount:    body.Amount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

type historyQuery struct {
	Status  string `form:"status"`
	EventID string `form:"eventId"`
	Page    int    `form:"page"`
	Limit   int    `form:"limit"`
}

func (h *PaymentHandler) History(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	page, err := h.payments.ListPayments(c.Request.Context(), p, models.PaymentFilter{
		Status:  models.PaymentStatus(q.Status),
		EventID: q.EventID,
		Page:    q.Page,
		Limit:   q.Limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *PaymentHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}
