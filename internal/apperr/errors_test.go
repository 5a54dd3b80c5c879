package apperr_test

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/akylbek/payment-system/settlement-service/internal/apperr"
)

func TestKindOf_WrappedError(t *testing.T) {
	base := apperr.New(apperr.NotFound, "payment not found")
	wrapped := fmt.Errorf("verify payment: %w", base)

	assert.Equal(t, apperr.NotFound, apperr.KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, apperr.E(apperr.NotFound)))
	assert.False(t, errors.Is(wrapped, apperr.E(apperr.InvalidState)))
}

func TestKindOf_PlainErrorIsInternal(t *testing.T) {
	assert.Equal(t, apperr.Internal, apperr.KindOf(errors.New("boom")))
}

func TestWrap_Unwrap(t *testing.T) {
	err := apperr.Wrap(apperr.Internal, "query payment", sql.ErrConnDone)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Contains(t, err.Error(), "query payment")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.NotFound:           http.StatusNotFound,
		apperr.Expired:            http.StatusBadRequest,
		apperr.UsageLimitExceeded: http.StatusBadRequest,
		apperr.NotApplicable:      http.StatusBadRequest,
		apperr.MinimumNotMet:      http.StatusBadRequest,
		apperr.InvalidState:       http.StatusBadRequest,
		apperr.Forbidden:          http.StatusForbidden,
		apperr.Conflict:           http.StatusConflict,
		apperr.GatewayUnavailable: http.StatusBadGateway,
		apperr.RefundFailed:       http.StatusBadGateway,
		apperr.Internal:           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, apperr.HTTPStatus(kind), string(kind))
	}
}

func TestResponse_HidesInternalCause(t *testing.T) {
	status, body := apperr.Response(apperr.Wrap(apperr.Internal, "select payments failed", errors.New("pq: secret detail")))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, apperr.Internal, body.Kind)
	assert.NotContains(t, body.Message, "secret")

	status, body = apperr.Response(apperr.New(apperr.Expired, "coupon has expired"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "coupon has expired", body.Message)
}
