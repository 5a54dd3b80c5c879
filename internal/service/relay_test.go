package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/settlement-service/internal/models"
	"github.com/akylbek/payment-system/settlement-service/internal/service"
)

type fakeReader struct {
	msgs      chan kafka.Message
	mu        sync.Mutex
	committed []kafka.Message
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type sentNotification struct {
	subject string
	payload []byte
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, subject string, payload []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentNotification{subject, payload})
	return nil
}

func stateMessage(t *testing.T, paymentID string, state models.PaymentStatus) kafka.Message {
	t.Helper()
	value, err := json.Marshal(models.PaymentStateChange{
		PaymentID: paymentID,
		UserID:    "user-1",
		State:     state,
		Amount:    decimal.NewFromInt(980),
		Currency:  "INR",
		Timestamp: fixedNow,
	})
	require.NoError(t, err)
	return kafka.Message{Key: []byte(paymentID), Value: value}
}

func TestRelayHandle_Subjects(t *testing.T) {
	cases := []struct {
		state   models.PaymentStatus
		subject string
	}{
		{models.PaymentSuccess, service.SubjectPaymentSuccess},
		{models.PaymentFailed, service.SubjectPaymentFailed},
		{models.PaymentRefunded, service.SubjectPaymentRefunded},
		{models.PaymentPartialRefund, service.SubjectPaymentRefunded},
	}

	for _, tc := range cases {
		t.Run(string(tc.state), func(t *testing.T) {
			notifier := &fakeNotifier{}
			relay := service.NewNotificationRelay(newFakeReader(), notifier)

			require.NoError(t, relay.Handle(context.Background(), stateMessage(t, "pay-1", tc.state)))
			require.Len(t, notifier.sent, 1)
			assert.Equal(t, tc.subject, notifier.sent[0].subject)

			var change models.PaymentStateChange
			require.NoError(t, json.Unmarshal(notifier.sent[0].payload, &change))
			assert.Equal(t, "pay-1", change.PaymentID)
		})
	}
}

func TestRelayHandle_IgnoresPendingAndRejectsGarbage(t *testing.T) {
	notifier := &fakeNotifier{}
	relay := service.NewNotificationRelay(newFakeReader(), notifier)

	require.NoError(t, relay.Handle(context.Background(), stateMessage(t, "pay-1", models.PaymentPending)))
	assert.Empty(t, notifier.sent)

	assert.Error(t, relay.Handle(context.Background(), kafka.Message{Value: []byte("{not json")}))
}

func TestRelayRun_CommitsEvenWhenNotifyFails(t *testing.T) {
	reader := newFakeReader(
		stateMessage(t, "pay-1", models.PaymentSuccess),
		stateMessage(t, "pay-2", models.PaymentFailed),
	)
	notifier := &fakeNotifier{err: errors.New("nats down")}
	relay := service.NewNotificationRelay(reader, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool { return reader.commits() == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after cancellation")
	}
}
