package gateway

import (
	"context"
	"errors"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	rzperrors "github.com/razorpay/razorpay-go/errors"
	"github.com/razorpay/razorpay-go/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/settlement-service/internal/apperr"
	"github.com/akylbek/payment-system/settlement-service/internal/telemetry"
)

type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	// BaseURL overrides the SDK's API host, for sandboxes and tests.
	BaseURL string
	Timeout time.Duration
}

// Razorpay settles through the Razorpay API using the official SDK.
type Razorpay struct {
	client *razorpay.Client
	secret string
}

func NewRazorpay(cfg RazorpayConfig) *Razorpay {
	client := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	if cfg.BaseURL != "" {
		client.Request.BaseURL = cfg.BaseURL
	}

	// The SDK takes whole seconds.
	seconds := int16(cfg.Timeout / time.Second)
	if cfg.Timeout <= 0 {
		seconds = 10
	} else if seconds < 1 {
		seconds = 1
	}
	client.Request.SetTimeout(seconds)

	return &Razorpay{client: client, secret: cfg.KeySecret}
}

// CreateOrder opens an order. The SDK call is bounded by the client timeout,
// not by ctx.
func (g *Razorpay) CreateOrder(_ context.Context, amount decimal.Decimal, currency, receiptID string) (*Order, error) {
	var body map[string]interface{}
	err := g.observe("create_order", func() error {
		var err error
		body, err = g.client.Order.Create(map[string]interface{}{
			"amount":   ToMinorUnits(amount),
			"currency": currency,
			"receipt":  receiptID,
		}, nil)
		return err
	})
	if err != nil {
		return nil, classify(err, apperr.Internal, "payment gateway rejected order")
	}

	order := &Order{
		ID:       stringField(body, "id"),
		Amount:   intField(body, "amount"),
		Currency: stringField(body, "currency"),
		Receipt:  stringField(body, "receipt"),
		Status:   stringField(body, "status"),
	}
	if order.ID == "" {
		return nil, apperr.New(apperr.Internal, "payment gateway returned an order without id")
	}
	return order, nil
}

func (g *Razorpay) VerifySignature(orderID, paymentID, signature string) bool {
	return utils.VerifyPaymentSignature(map[string]interface{}{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
	}, signature, g.secret)
}

func (g *Razorpay) Refund(_ context.Context, transactionID string, amount decimal.Decimal, reason string) (*RefundResult, error) {
	var body map[string]interface{}
	err := g.observe("refund", func() error {
		var err error
		body, err = g.client.Payment.Refund(transactionID, int(ToMinorUnits(amount)), map[string]interface{}{
			"notes": map[string]interface{}{"reason": reason},
		}, nil)
		return err
	})
	if err != nil {
		return nil, classify(err, apperr.RefundFailed, "payment gateway rejected the refund")
	}

	return &RefundResult{
		ID:        stringField(body, "id"),
		PaymentID: stringField(body, "payment_id"),
		Amount:    FromMinorUnits(intField(body, "amount")),
		Status:    stringField(body, "status"),
	}, nil
}

// observe times one SDK call and logs its failure.
func (g *Razorpay) observe(operation string, call func() error) error {
	start := time.Now()
	err := call()

	result := "ok"
	if err != nil {
		result = resultLabel(err)
		telemetry.Logger.Warn("Payment gateway error",
			zap.String("operation", operation),
			zap.String("result", result),
			zap.Error(err),
		)
	}
	telemetry.GatewayRequestDuration.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
	return err
}

// classify maps SDK errors onto service error kinds. A request the gateway
// refused becomes rejected; gateway faults and transport failures become
// GatewayUnavailable.
func classify(err error, rejected apperr.Kind, message string) error {
	var badRequest *rzperrors.BadRequestError
	if errors.As(err, &badRequest) {
		return apperr.Wrap(rejected, message, err)
	}
	return apperr.Wrap(apperr.GatewayUnavailable, "payment gateway unavailable", err)
}

func resultLabel(err error) string {
	var (
		badRequest *rzperrors.BadRequestError
		server     *rzperrors.ServerError
		upstream   *rzperrors.GatewayError
	)
	switch {
	case errors.As(err, &badRequest):
		return "bad_request"
	case errors.As(err, &server):
		return "server_error"
	case errors.As(err, &upstream):
		return "gateway_error"
	default:
		return "transport"
	}
}

func stringField(body map[string]interface{}, key string) string {
	if v, ok := body[key].(string); ok {
		return v
	}
	return ""
}

// intField reads a JSON number, which the SDK decodes as float64.
func intField(body map[string]interface{}, key string) int64 {
	if v, ok := body[key].(float64); ok {
		return int64(v)
	}
	return 0
}
