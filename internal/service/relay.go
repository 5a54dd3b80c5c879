package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/settlement-service/internal/events"
	"github.com/akylbek/payment-system/settlement-service/internal/interfaces"
	"github.com/akylbek/payment-system/settlement-service/internal/models"
	"github.com/akylbek/payment-system/settlement-service/internal/telemetry"
)

const (
	SubjectPaymentSuccess  = "notifications.payment.success"
	SubjectPaymentRefunded = "notifications.payment.refunded"
	SubjectPaymentFailed   = "notifications.payment.failed"
)

// NotificationRelay turns payment state changes into user notifications.
// Notification failures are logged and never retried into settlement.
type NotificationRelay struct {
	reader   events.MessageReader
	notifier interfaces.Notifier
}

func NewNotificationRelay(reader events.MessageReader, notifier interfaces.Notifier) *NotificationRelay {
	return &NotificationRelay{reader: reader, notifier: notifier}
}

// Run consumes until ctx is cancelled.
func (r *NotificationRelay) Run(ctx context.Context) error {
	telemetry.Logger.Info("Started consuming payment state changes")

	for {
		msg, err := r.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			telemetry.Logger.Error("Error reading message from Kafka", zap.Error(err))
			continue
		}

		if err := r.Handle(ctx, msg); err != nil {
			telemetry.Logger.Error("Error relaying notification",
				zap.String("key", string(msg.Key)),
				zap.Error(err),
			)
		}

		if err := r.reader.CommitMessages(ctx, msg); err != nil {
			telemetry.Logger.Warn("Failed to commit Kafka offset", zap.Error(err))
		}
	}
}

// Handle relays a single state change.
func (r *NotificationRelay) Handle(ctx context.Context, msg kafka.Message) error {
	var change models.PaymentStateChange
	if err := json.Unmarshal(msg.Value, &change); err != nil {
		return fmt.Errorf("unmarshal state change: %w", err)
	}

	subject, ok := subjectFor(change.State)
	if !ok {
		return nil
	}

	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := r.notifier.Notify(ctx, subject, payload); err != nil {
		return err
	}

	telemetry.Logger.Info("Notification relayed",
		zap.String("payment_id", change.PaymentID),
		zap.String("subject", subject),
	)
	return nil
}

func subjectFor(state models.PaymentStatus) (string, bool) {
	switch state {
	case models.PaymentSuccess:
		return SubjectPaymentSuccess, true
	case models.PaymentRefunded, models.PaymentPartialRefund:
		return SubjectPaymentRefunded, true
	case models.PaymentFailed:
		return SubjectPaymentFailed, true
	}
	return "", false
}
