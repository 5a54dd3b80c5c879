package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/settlement-service/internal/auth"
	"github.com/akylbek/payment-system/settlement-service/internal/models"
)

type RegistrationService interface {
	Register(ctx context.Context, principal auth.Principal, eventID string) (*models.Registration, error)
	Get(ctx context.Context, principal auth.Principal, registrationID string) (*models.Registration, error)
}

type RegistrationHandler struct {
	registrations RegistrationService
}

func NewRegistrationHandler(registrations RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registrations: registrations}
}

type registerBody struct {
	EventID string `json:"eventId" binding:"required"`
}

func (h *RegistrationHandler) Register(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var body registerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	reg, err := h.registrations.Register(c.Request.Context(), p, body.EventID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reg)
}

func (h *RegistrationHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	reg, err := h.registrations.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reg)
}
