package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/guidelink/marketplace-backend/internal/models"
	"github.com/jmoiron/sqlx"
)

// ErrLedgerNotFound is returned when a booking has no ledger entry
var ErrLedgerNotFound = fmt.Errorf("ledger entry not found")

// LedgerRepository handles database operations for the ledger_entries table.
// All mutations run inside a caller-owned transaction holding the row lock
// taken by GetByBookingIDForUpdate.
type LedgerRepository struct {
	db DB
}

// NewLedgerRepository creates a new LedgerRepository
func NewLedgerRepository(db DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

const ledgerColumns = `booking_id, amount_due, total_paid, total_refunded,
	   payment_status, version, created_at, updated_at`

// CreateEntry inserts the ledger entry for a new booking inside the caller's
// transaction, atomically with the booking insert
func (r *LedgerRepository) CreateEntry(tx *sqlx.Tx, entry *models.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (booking_id, amount_due, total_paid, total_refunded, payment_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING version, created_at, updated_at
	`

	err := tx.QueryRow(
		query,
		entry.BookingID, entry.AmountDue, entry.TotalPaid, entry.TotalRefunded, entry.PaymentStatus,
	).Scan(&entry.Version, &entry.CreatedAt, &entry.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}

	return nil
}

// GetByBookingID retrieves a ledger entry without locking (read-only snapshot)
func (r *LedgerRepository) GetByBookingID(bookingID uuid.UUID) (*models.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE booking_id = $1`
	return r.scanEntry(r.db.QueryRow(query, bookingID))
}

// GetByBookingIDForUpdate retrieves a ledger entry under FOR UPDATE inside the
// caller's transaction. Concurrent mutators for the same booking serialize
// here; the loser re-reads totals the winner already committed.
func (r *LedgerRepository) GetByBookingIDForUpdate(tx *sqlx.Tx, bookingID uuid.UUID) (*models.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE booking_id = $1 FOR UPDATE`
	return r.scanEntry(tx.QueryRow(query, bookingID))
}

// UpdateTotals persists new totals and status inside the caller's transaction,
// bumping the version counter
func (r *LedgerRepository) UpdateTotals(tx *sqlx.Tx, entry *models.LedgerEntry) error {
	query := `
		UPDATE ledger_entries
		SET total_paid = $2, total_refunded = $3, payment_status = $4,
			version = version + 1, updated_at = NOW()
		WHERE booking_id = $1
		RETURNING version, updated_at
	`

	err := tx.QueryRow(
		query,
		entry.BookingID, entry.TotalPaid, entry.TotalRefunded, entry.PaymentStatus,
	).Scan(&entry.Version, &entry.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to update ledger totals: %w", err)
	}

	return nil
}

// RecordApplied marks an event id as applied to the booking's ledger inside
// the caller's transaction. The primary key on event_id makes application
// exactly-once: a second attempt inserts nothing and reports a duplicate.
func (r *LedgerRepository) RecordApplied(tx *sqlx.Tx, bookingID, eventID uuid.UUID, kind string) (bool, error) {
	query := `
		INSERT INTO ledger_applied_events (event_id, booking_id, kind)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING
	`

	result, err := tx.Exec(query, eventID, bookingID, kind)
	if err != nil {
		return false, fmt.Errorf("failed to record applied event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

// scanEntry scans a single ledger entry
func (r *LedgerRepository) scanEntry(row scanner) (*models.LedgerEntry, error) {
	entry := &models.LedgerEntry{}

	err := row.Scan(
		&entry.BookingID, &entry.AmountDue, &entry.TotalPaid, &entry.TotalRefunded,
		&entry.PaymentStatus, &entry.Version, &entry.CreatedAt, &entry.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrLedgerNotFound
	}
	if err != nil {
		return nil, err
	}

	return entry, nil
}
