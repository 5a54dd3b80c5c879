package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/settlement-service/internal/interfaces"
	"github.com/akylbek/payment-system/settlement-service/internal/models"
	"github.com/akylbek/payment-system/settlement-service/internal/telemetry"
)

// EventRepository is a read-through cache in front of another
// EventRepository. Redis failures fall back to the source.
type EventRepository struct {
	source interfaces.EventRepository
	client *redis.Client
	ttl    time.Duration
}

func NewEventRepository(source interfaces.EventRepository, client *redis.Client, ttl time.Duration) *EventRepository {
	return &EventRepository{source: source, client: client, ttl: ttl}
}

func eventKey(eventID string) string {
	return fmt.Sprintf("event:%s", eventID)
}

func (r *EventRepository) GetByID(ctx context.Context, eventID string) (*models.Event, error) {
	key := eventKey(eventID)

	cached, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var e models.Event
		if jsonErr := json.Unmarshal(cached, &e); jsonErr == nil {
			return &e, nil
		}
		telemetry.Logger.Warn("Discarding undecodable cached event", zap.String("event_id", eventID))
	case !errors.Is(err, redis.Nil):
		telemetry.Logger.Warn("Event cache read failed", zap.String("event_id", eventID), zap.Error(err))
	}

	e, err := r.source.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(e); err == nil {
		if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
			telemetry.Logger.Warn("Event cache write failed", zap.String("event_id", eventID), zap.Error(err))
		}
	}
	return e, nil
}
