package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/guidelink/marketplace-backend/internal/models"
)

// ErrRefundEventNotFound is returned when a refund event does not exist
var ErrRefundEventNotFound = fmt.Errorf("refund event not found")

// RefundEventRepository handles database operations for the refund_events
// table. Append-only, like payment events; compensating entries reference the
// refund they reverse.
type RefundEventRepository struct {
	db DB
}

// NewRefundEventRepository creates a new RefundEventRepository
func NewRefundEventRepository(db DB) *RefundEventRepository {
	return &RefundEventRepository{db: db}
}

const refundEventColumns = `id, booking_id, amount, status, note, requested_by,
	   compensating, compensates_id, failure_reason, requested_at, completed_at`

// Create inserts a new refund event
func (r *RefundEventRepository) Create(event *models.RefundEvent) error {
	query := `
		INSERT INTO refund_events (
			id, booking_id, amount, status, note, requested_by,
			compensating, compensates_id, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING requested_at
	`

	err := r.db.QueryRow(
		query,
		event.ID, event.BookingID, event.Amount, event.Status, event.Note, event.RequestedBy,
		event.Compensating, event.CompensatesID, event.CompletedAt,
	).Scan(&event.RequestedAt)

	if err != nil {
		return fmt.Errorf("failed to create refund event: %w", err)
	}

	return nil
}

// GetByID retrieves a refund event by ID
func (r *RefundEventRepository) GetByID(eventID uuid.UUID) (*models.RefundEvent, error) {
	query := `SELECT ` + refundEventColumns + ` FROM refund_events WHERE id = $1`
	return r.scanEvent(r.db.QueryRow(query, eventID))
}

// ListByBookingID retrieves all refund events for a booking, oldest first
func (r *RefundEventRepository) ListByBookingID(bookingID uuid.UUID) ([]models.RefundEvent, error) {
	query := `SELECT ` + refundEventColumns + ` FROM refund_events WHERE booking_id = $1 ORDER BY requested_at`

	rows, err := r.db.Query(query, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.RefundEvent{}
	for rows.Next() {
		event, err := r.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}

	return events, rows.Err()
}

// SetStatus updates a refund event's status and failure reason
func (r *RefundEventRepository) SetStatus(eventID uuid.UUID, status models.RefundEventStatus, failureReason *string) error {
	query := `
		UPDATE refund_events
		SET status = $2, failure_reason = $3, completed_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(query, eventID, status, failureReason)
	if err != nil {
		return fmt.Errorf("failed to update refund event status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrRefundEventNotFound
	}

	return nil
}

// scanEvent scans a single refund event
func (r *RefundEventRepository) scanEvent(row scanner) (*models.RefundEvent, error) {
	event := &models.RefundEvent{}
	var compensatesID sql.NullString
	var failureReason sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&event.ID, &event.BookingID, &event.Amount, &event.Status, &event.Note, &event.RequestedBy,
		&event.Compensating, &compensatesID, &failureReason, &event.RequestedAt, &completedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrRefundEventNotFound
	}
	if err != nil {
		return nil, err
	}

	if compensatesID.Valid {
		id, err := uuid.Parse(compensatesID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid compensates_id uuid: %w", err)
		}
		event.CompensatesID = &id
	}
	if failureReason.Valid {
		event.FailureReason = &failureReason.String
	}
	if completedAt.Valid {
		event.CompletedAt = &completedAt.Time
	}

	return event, nil
}
