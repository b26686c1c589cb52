package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guidelink/marketplace-backend/internal/models"
	"github.com/jmoiron/sqlx"
)

// ErrPaymentEventNotFound is returned when a payment event does not exist
var ErrPaymentEventNotFound = fmt.Errorf("payment event not found")

// ErrEventAlreadyFinalized is returned when finalizing an event that is no
// longer pending. Gateways deliver callbacks more than once; this is the
// replay guard.
var ErrEventAlreadyFinalized = fmt.Errorf("payment event already finalized")

// PaymentEventRepository handles database operations for the payment_events
// table. Events are append-only: inserted once, finalized at most once, never
// deleted.
type PaymentEventRepository struct {
	db DB
}

// NewPaymentEventRepository creates a new PaymentEventRepository
func NewPaymentEventRepository(db DB) *PaymentEventRepository {
	return &PaymentEventRepository{db: db}
}

const paymentEventColumns = `id, booking_id, amount, method, status,
	   gateway_order_id, gateway_payment_id, proof_object_key, submitted_by,
	   failure_reason, created_at, completed_at`

const insertPaymentEventQuery = `
	INSERT INTO payment_events (
		id, booking_id, amount, method, status,
		gateway_order_id, gateway_payment_id, proof_object_key, submitted_by, completed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING created_at
`

// Create inserts a new payment event
func (r *PaymentEventRepository) Create(event *models.PaymentEvent) error {
	err := r.db.QueryRow(
		insertPaymentEventQuery,
		event.ID, event.BookingID, event.Amount, event.Method, event.Status,
		event.GatewayOrderID, event.GatewayPayID, event.ProofObjectKey, event.SubmittedBy, event.CompletedAt,
	).Scan(&event.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create payment event: %w", err)
	}

	return nil
}

// CreateInTx inserts a new payment event inside the caller's transaction.
// Manual events are born completed, so their row must commit or roll back
// together with the ledger mutation they carry.
func (r *PaymentEventRepository) CreateInTx(tx *sqlx.Tx, event *models.PaymentEvent) error {
	err := tx.QueryRow(
		insertPaymentEventQuery,
		event.ID, event.BookingID, event.Amount, event.Method, event.Status,
		event.GatewayOrderID, event.GatewayPayID, event.ProofObjectKey, event.SubmittedBy, event.CompletedAt,
	).Scan(&event.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create payment event: %w", err)
	}

	return nil
}

// GetByID retrieves a payment event by ID
func (r *PaymentEventRepository) GetByID(eventID uuid.UUID) (*models.PaymentEvent, error) {
	query := `SELECT ` + paymentEventColumns + ` FROM payment_events WHERE id = $1`
	return r.scanEvent(r.db.QueryRow(query, eventID))
}

// GetByGatewayOrderID retrieves a payment event by its gateway order id
func (r *PaymentEventRepository) GetByGatewayOrderID(orderID string) (*models.PaymentEvent, error) {
	query := `SELECT ` + paymentEventColumns + ` FROM payment_events WHERE gateway_order_id = $1`
	return r.scanEvent(r.db.QueryRow(query, orderID))
}

// ListByBookingID retrieves all payment events for a booking, oldest first
func (r *PaymentEventRepository) ListByBookingID(bookingID uuid.UUID) ([]models.PaymentEvent, error) {
	query := `SELECT ` + paymentEventColumns + ` FROM payment_events WHERE booking_id = $1 ORDER BY created_at`

	rows, err := r.db.Query(query, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.PaymentEvent{}
	for rows.Next() {
		event, err := r.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}

	return events, rows.Err()
}

// Finalize transitions a pending event to completed or failed exactly once.
// The status guard in the WHERE clause makes replays a no-op at the SQL level.
func (r *PaymentEventRepository) Finalize(tx *sqlx.Tx, eventID uuid.UUID, status models.PaymentEventStatus, gatewayPaymentID, failureReason *string) error {
	query := `
		UPDATE payment_events
		SET status = $2,
			gateway_payment_id = COALESCE($3, gateway_payment_id),
			failure_reason = $4,
			completed_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	result, err := tx.Exec(query, eventID, status, gatewayPaymentID, failureReason)
	if err != nil {
		return fmt.Errorf("failed to finalize payment event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrEventAlreadyFinalized
	}

	return nil
}

// ExpireStalePending marks gateway events pending longer than the TTL as
// failed so abandoned checkouts do not linger. Returns the number expired.
func (r *PaymentEventRepository) ExpireStalePending(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	query := `
		UPDATE payment_events
		SET status = 'failed', failure_reason = 'expired', completed_at = NOW()
		WHERE status = 'pending' AND method = 'gateway' AND created_at < $1
	`

	result, err := r.db.Exec(query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale payment events: %w", err)
	}

	return result.RowsAffected()
}

// scanEvent scans a single payment event
func (r *PaymentEventRepository) scanEvent(row scanner) (*models.PaymentEvent, error) {
	event := &models.PaymentEvent{}
	var gatewayOrderID sql.NullString
	var gatewayPayID sql.NullString
	var proofObjectKey sql.NullString
	var submittedBy sql.NullString
	var failureReason sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&event.ID, &event.BookingID, &event.Amount, &event.Method, &event.Status,
		&gatewayOrderID, &gatewayPayID, &proofObjectKey, &submittedBy,
		&failureReason, &event.CreatedAt, &completedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrPaymentEventNotFound
	}
	if err != nil {
		return nil, err
	}

	if gatewayOrderID.Valid {
		event.GatewayOrderID = &gatewayOrderID.String
	}
	if gatewayPayID.Valid {
		event.GatewayPayID = &gatewayPayID.String
	}
	if proofObjectKey.Valid {
		event.ProofObjectKey = &proofObjectKey.String
	}
	if submittedBy.Valid {
		id, err := uuid.Parse(submittedBy.String)
		if err != nil {
			return nil, fmt.Errorf("invalid submitted_by uuid: %w", err)
		}
		event.SubmittedBy = &id
	}
	if failureReason.Valid {
		event.FailureReason = &failureReason.String
	}
	if completedAt.Valid {
		event.CompletedAt = &completedAt.Time
	}

	return event, nil
}
