package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/settlement-service/internal/models"
	"github.com/akylbek/payment-system/settlement-service/internal/telemetry"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes payment state changes keyed by payment id, so all
// changes of one payment land on one partition in order.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// NewKafkaWriter builds the writer used for the state-change topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func (p *KafkaPublisher) PublishStateChange(ctx context.Context, change models.PaymentStateChange) error {
	eventJSON, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal state change: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(change.PaymentID),
		Value: eventJSON,
	}); err != nil {
		return fmt.Errorf("publish state change: %w", err)
	}

	telemetry.Logger.Debug("Published payment state change",
		zap.String("payment_id", change.PaymentID),
		zap.String("state", string(change.State)),
	)
	return nil
}
