package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guidelink/marketplace-backend/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrBookingNotFound is returned when a booking does not exist
var ErrBookingNotFound = fmt.Errorf("booking not found")

// ErrIdempotencyKeyConflict is returned when an insert loses the race on the
// idempotency key unique index to a concurrent request with the same key.
var ErrIdempotencyKeyConflict = fmt.Errorf("idempotency key already used")

// BookingRepository handles database operations for the bookings table
type BookingRepository struct {
	db DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `id, traveler_id, guide_id, start_date, end_date, amount_due,
	   pickup_location, dropoff_location, activities, status,
	   idempotency_key, cancelled_at, created_at, updated_at`

// Create inserts a new booking inside the caller's transaction. Booking and
// ledger entry are created in the same transaction; the caller owns commit.
func (r *BookingRepository) Create(tx *sqlx.Tx, booking *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, traveler_id, guide_id, start_date, end_date, amount_due,
			pickup_location, dropoff_location, activities, status, idempotency_key
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		RETURNING created_at, updated_at
	`

	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}

	err := tx.QueryRow(
		query,
		booking.ID, booking.TravelerID, booking.GuideID,
		booking.StartDate, booking.EndDate, booking.AmountDue,
		booking.PickupLocation, booking.DropoffLocation,
		models.StringArray(booking.Activities), booking.Status, booking.IdempotencyKey,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "idx_bookings_idempotency_key" {
			return ErrIdempotencyKeyConflict
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	return nil
}

// AcquireGuideLock takes the per-guide advisory lock inside the caller's
// transaction. Held until commit/rollback, it serializes every
// conflict-check-and-insert for the guide.
func (r *BookingRepository) AcquireGuideLock(tx *sqlx.Tx, guideID uuid.UUID) error {
	if _, err := tx.Exec(`SELECT pg_advisory_xact_lock(hashtext($1))`, guideID.String()); err != nil {
		return fmt.Errorf("failed to acquire guide lock: %w", err)
	}
	return nil
}

// FindOverlapping returns active bookings for the guide whose half-open date
// ranges overlap [startDate, endDate), ordered by start date. Two ranges
// [s1,e1) and [s2,e2) overlap iff s1 < e2 AND s2 < e1. Cancelled and
// completed bookings do not block.
func (r *BookingRepository) FindOverlapping(tx *sqlx.Tx, guideID uuid.UUID, startDate, endDate time.Time, excludeBookingID *uuid.UUID) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE guide_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND start_date < $3
		  AND $2 < end_date
		  AND ($4::uuid IS NULL OR id != $4)
		ORDER BY start_date
	`

	rows, err := tx.Query(query, guideID, startDate, endDate, excludeBookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query overlapping bookings: %w", err)
	}
	defer rows.Close()

	return r.scanBookings(rows)
}

// GetByID retrieves a booking by ID
func (r *BookingRepository) GetByID(bookingID uuid.UUID) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return r.scanBooking(r.db.QueryRow(query, bookingID))
}

// GetByIdempotencyKey retrieves a booking created with the given client
// idempotency key, or nil when the key has not been seen
func (r *BookingRepository) GetByIdempotencyKey(key string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE idempotency_key = $1`

	booking, err := r.scanBooking(r.db.QueryRow(query, key))
	if err == ErrBookingNotFound {
		return nil, nil
	}
	return booking, err
}

// GetByTravelerID retrieves all bookings for a traveler
func (r *BookingRepository) GetByTravelerID(travelerID uuid.UUID) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE traveler_id = $1 ORDER BY start_date DESC`

	rows, err := r.db.Query(query, travelerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanBookings(rows)
}

// GetByGuideID retrieves all bookings for a guide
func (r *BookingRepository) GetByGuideID(guideID uuid.UUID) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE guide_id = $1 ORDER BY start_date DESC`

	rows, err := r.db.Query(query, guideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanBookings(rows)
}

// UpdateStatus updates the booking status
func (r *BookingRepository) UpdateStatus(bookingID uuid.UUID, status models.BookingStatus) error {
	query := `
		UPDATE bookings
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(query, bookingID, status)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrBookingNotFound
	}

	return nil
}

// Cancel marks a booking cancelled inside the caller's transaction. The
// caller performs the eligibility check against the ledger under the same
// transaction, holding the ledger row lock until commit.
func (r *BookingRepository) Cancel(tx *sqlx.Tx, bookingID uuid.UUID) error {
	query := `
		UPDATE bookings
		SET status = 'cancelled', cancelled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status != 'completed'
	`

	result, err := tx.Exec(query, bookingID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrBookingNotFound
	}

	return nil
}

// scanBooking scans a single booking
func (r *BookingRepository) scanBooking(row scanner) (*models.Booking, error) {
	booking := &models.Booking{}
	var activities models.StringArray
	var idempotencyKey sql.NullString
	var cancelledAt sql.NullTime

	err := row.Scan(
		&booking.ID, &booking.TravelerID, &booking.GuideID,
		&booking.StartDate, &booking.EndDate, &booking.AmountDue,
		&booking.PickupLocation, &booking.DropoffLocation,
		&activities, &booking.Status,
		&idempotencyKey, &cancelledAt, &booking.CreatedAt, &booking.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}

	booking.Activities = activities
	if idempotencyKey.Valid {
		booking.IdempotencyKey = &idempotencyKey.String
	}
	if cancelledAt.Valid {
		booking.CancelledAt = &cancelledAt.Time
	}

	return booking, nil
}

// scanBookings scans multiple bookings from rows
func (r *BookingRepository) scanBookings(rows *sql.Rows) ([]models.Booking, error) {
	bookings := []models.Booking{}

	for rows.Next() {
		booking, err := r.scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *booking)
	}

	return bookings, rows.Err()
}
