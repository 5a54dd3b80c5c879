package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/settlement-service/internal/apperr"
	"github.com/akylbek/payment-system/settlement-service/internal/auth"
	"github.com/akylbek/payment-system/settlement-service/internal/interfaces"
	"github.com/akylbek/payment-system/settlement-service/internal/models"
	"github.com/akylbek/payment-system/settlement-service/internal/telemetry"
)

type RegistrationService struct {
	registrations interfaces.RegistrationRepository
	events        interfaces.EventRepository
	now           func() time.Time
}

func NewRegistrationService(registrations interfaces.RegistrationRepository, events interfaces.EventRepository) *RegistrationService {
	return &RegistrationService{registrations: registrations, events: events, now: time.Now}
}

func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	s.now = now
	return s
}

// Register signs the principal up for an event.
func (s *RegistrationService) Register(ctx context.Context, principal auth.Principal, eventID string) (*models.Registration, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status(s.now()) == models.EventCompleted {
		return nil, apperr.New(apperr.InvalidState, "registration is closed for completed events")
	}

	active, err := s.registrations.CountActive(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	status, paymentStatus := models.InitialRegistrationState(event, active)

	reg := &models.Registration{
		ID:            uuid.NewString(),
		EventID:       event.ID,
		UserID:        principal.ID,
		Status:        status,
		PaymentStatus: paymentStatus,
		AmountPaid:    decimal.Zero,
	}
	if err := s.registrations.Create(ctx, reg); err != nil {
		return nil, err
	}

	telemetry.Logger.Info("Registration created",
		zap.String("registration_id", reg.ID),
		zap.String("event_id", event.ID),
		zap.String("status", string(reg.Status)),
	)
	return reg, nil
}

func (s *RegistrationService) Get(ctx context.Context, principal auth.Principal, registrationID string) (*models.Registration, error) {
	reg, err := s.registrations.GetByID(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if err := auth.CanAccessOwned(principal, reg.UserID); err != nil {
		return nil, err
	}
	return reg, nil
}
