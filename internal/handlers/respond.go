package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/settlement-service/internal/apperr"
	"github.com/akylbek/payment-system/settlement-service/internal/auth"
	"github.com/akylbek/payment-system/settlement-service/internal/telemetry"
)

func writeError(c *gin.Context, err error) {
	status, body := apperr.Response(err)
	if status >= http.StatusInternalServerError {
		telemetry.Logger.Error("Request failed",
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	telemetry.Logger.Debug("Error decoding request body", zap.Error(err))
	writeError(c, apperr.Newf(apperr.Validation, "invalid request: %v", err))
}

// principal fetches the caller set by auth.Middleware, answering 401 when absent.
func principal(c *gin.Context) (auth.Principal, bool) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		writeError(c, apperr.New(apperr.Unauthorized, "missing authenticated user"))
	}
	return p, ok
}
