package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/payment-system/settlement-service/internal/auth"
	"github.com/akylbek/payment-system/settlement-service/internal/handlers"
	"github.com/akylbek/payment-system/settlement-service/internal/telemetry"
)

// Services are the domain operations exposed over HTTP.
type Services struct {
	Payments      handlers.PaymentService
	Refunds       handlers.RefundService
	Registrations handlers.RegistrationService
	Coupons       handlers.CouponService
}

func NewRouter(svc Services) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "settlement-service"})
	})

	paymentHandler := handlers.NewPaymentHandler(svc.Payments, svc.Refunds)
	registrationHandler := handlers.NewRegistrationHandler(svc.Registrations)
	couponHandler := handlers.NewCouponHandler(svc.Coupons)
	managers := auth.RequireRoles(auth.RoleAdmin, auth.RoleOrganizer)

	authed := r.Group("/", auth.Middleware())

	// Registration routes
	authed.POST("/registrations", registrationHandler.Register)
	authed.GET("/registrations/:id", registrationHandler.Get)

	// Payment routes
	payments := authed.Group("/payments")
	payments.POST("/initiate", paymentHandler.Initiate)
	payments.POST("/verify", paymentHandler.Verify)
	payments.POST("/refund", managers, paymentHandler.Refund)
	payments.GET("/history", paymentHandler.History)
	payments.GET("/:id", paymentHandler.Get)

	// Coupon routes
	coupons := authed.Group("/coupons")
	coupons.POST("", managers, couponHandler.Create)
	coupons.POST("/validate", couponHandler.Validate)
	coupons.DELETE("/:code", managers, couponHandler.Deactivate)

	return r
}
