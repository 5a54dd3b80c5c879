package telemetry_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/akylbek/payment-system/settlement-service/internal/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestTracingMiddleware_RecordsRequest(t *testing.T) {
	r := gin.New()
	r.Use(telemetry.TracingMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	families, err := prometheus.DefaultGatherer.Gather()
	assert.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() != "settlement_http_request_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["route"] == "/ping" && labels["status"] == "204" {
				found = true
			}
		}
	}
	assert.True(t, found, "request duration recorded for /ping")
}

func TestLoggerUsableBeforeInit(t *testing.T) {
	assert.NotNil(t, telemetry.Logger)
	assert.NotNil(t, telemetry.Tracer)
	assert.NotPanics(t, func() { telemetry.Logger.Info("noop") })
}
