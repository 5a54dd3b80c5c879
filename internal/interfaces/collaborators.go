package interfaces

import (
	"context"
	"time"

	"github.com/akylbek/payment-system/settlement-service/internal/models"
)

// Locker guards a key across service instances. Acquire returns a token
// naming the holder; Release only frees the key while that token still owns it.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// StatePublisher announces applied payment transitions.
type StatePublisher interface {
	PublishStateChange(ctx context.Context, change models.PaymentStateChange) error
}

// Notifier delivers fire-and-forget notifications.
type Notifier interface {
	Notify(ctx context.Context, subject string, payload []byte) error
}
