package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/akylbek/payment-system/settlement-service/internal/apperr"
	"github.com/akylbek/payment-system/settlement-service/internal/models"
)

type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) GetByID(ctx context.Context, eventID string) (*models.Event, error) {
	var (
		e            models.Event
		maxAttendees sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, event_code, organizer_id, amount, currency, start_date, end_date, max_attendees
		FROM events WHERE id = $1
	`, eventID).Scan(&e.ID, &e.Name, &e.EventCode, &e.OrganizerID, &e.Amount, &e.Currency,
		&e.StartDate, &e.EndDate, &maxAttendees)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "event not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	e.MaxAttendees = intPtr(maxAttendees)
	return &e, nil
}
