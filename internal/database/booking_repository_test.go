package database

import (
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/guidelink/marketplace-backend/internal/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bookingTestColumns = []string{
	"id", "traveler_id", "guide_id", "start_date", "end_date", "amount_due",
	"pickup_location", "dropoff_location", "activities", "status",
	"idempotency_key", "cancelled_at", "created_at", "updated_at",
}

func bookingRow(id, travelerID, guideID uuid.UUID, start, end time.Time, status models.BookingStatus) []driver.Value {
	now := time.Now()
	return []driver.Value{
		id.String(), travelerID.String(), guideID.String(), start, end, int64(500000),
		"Fort Railway Station", "Ella", []byte(`{hiking,"tea factory tour"}`), status,
		nil, nil, now, now,
	}
}

func TestBookingRepository_Create(t *testing.T) {
	db, mock := newMockDatabase(t)
	repo := NewBookingRepository(db)

	now := time.Now()
	start := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 3)

	t.Run("Success", func(t *testing.T) {
		booking := &models.Booking{
			TravelerID:      uuid.New(),
			GuideID:         uuid.New(),
			StartDate:       start,
			EndDate:         end,
			AmountDue:       500000,
			PickupLocation:  "Fort Railway Station",
			DropoffLocation: "Ella",
			Activities:      []string{"hiking"},
			Status:          models.BookingStatusPending,
		}

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO bookings").
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectCommit()

		tx, err := db.Beginx()
		require.NoError(t, err)

		err = repo.Create(tx, booking)
		require.NoError(t, err)
		require.NoError(t, tx.Commit())

		assert.NotEqual(t, uuid.Nil, booking.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Idempotency Key Unique Violation", func(t *testing.T) {
		key := "client-key-3"
		booking := &models.Booking{
			TravelerID:      uuid.New(),
			GuideID:         uuid.New(),
			StartDate:       start,
			EndDate:         end,
			AmountDue:       500000,
			PickupLocation:  "Fort Railway Station",
			DropoffLocation: "Ella",
			Status:          models.BookingStatusPending,
			IdempotencyKey:  &key,
		}

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO bookings").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_bookings_idempotency_key"})
		mock.ExpectRollback()

		tx, err := db.Beginx()
		require.NoError(t, err)
		defer tx.Rollback()

		err = repo.Create(tx, booking)
		assert.ErrorIs(t, err, ErrIdempotencyKeyConflict)
	})
}

func TestBookingRepository_AcquireGuideLock(t *testing.T) {
	db, mock := newMockDatabase(t)
	repo := NewBookingRepository(db)

	guideID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs(guideID.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := db.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	err = repo.AcquireGuideLock(tx, guideID)
	assert.NoError(t, err)
}

func TestBookingRepository_FindOverlapping(t *testing.T) {
	db, mock := newMockDatabase(t)
	repo := NewBookingRepository(db)

	guideID := uuid.New()
	start := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 3)

	t.Run("Overlap Found", func(t *testing.T) {
		existingID := uuid.New()
		rows := sqlmock.NewRows(bookingTestColumns).
			AddRow(bookingRow(existingID, uuid.New(), guideID, start.AddDate(0, 0, -1), start.AddDate(0, 0, 1), models.BookingStatusConfirmed)...)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM bookings").
			WithArgs(guideID, start, end, nil).
			WillReturnRows(rows)
		mock.ExpectRollback()

		tx, err := db.Beginx()
		require.NoError(t, err)
		defer tx.Rollback()

		overlapping, err := repo.FindOverlapping(tx, guideID, start, end, nil)
		require.NoError(t, err)

		require.Len(t, overlapping, 1)
		assert.Equal(t, existingID, overlapping[0].ID)
		assert.Equal(t, []string{"hiking", "tea factory tour"}, []string(overlapping[0].Activities))
	})

	t.Run("No Overlap", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM bookings").
			WithArgs(guideID, start, end, nil).
			WillReturnRows(sqlmock.NewRows(bookingTestColumns))
		mock.ExpectRollback()

		tx, err := db.Beginx()
		require.NoError(t, err)
		defer tx.Rollback()

		overlapping, err := repo.FindOverlapping(tx, guideID, start, end, nil)
		require.NoError(t, err)
		assert.Empty(t, overlapping)
	})
}

func TestBookingRepository_GetByIdempotencyKey(t *testing.T) {
	db, mock := newMockDatabase(t)
	repo := NewBookingRepository(db)

	t.Run("Key Not Seen", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM bookings WHERE idempotency_key").
			WithArgs("key-123").
			WillReturnRows(sqlmock.NewRows(bookingTestColumns))

		booking, err := repo.GetByIdempotencyKey("key-123")
		require.NoError(t, err)
		assert.Nil(t, booking)
	})

	t.Run("Key Seen", func(t *testing.T) {
		id := uuid.New()
		start := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
		rows := sqlmock.NewRows(bookingTestColumns).
			AddRow(bookingRow(id, uuid.New(), uuid.New(), start, start.AddDate(0, 0, 2), models.BookingStatusPending)...)

		mock.ExpectQuery("SELECT (.+) FROM bookings WHERE idempotency_key").
			WithArgs("key-123").
			WillReturnRows(rows)

		booking, err := repo.GetByIdempotencyKey("key-123")
		require.NoError(t, err)
		require.NotNil(t, booking)
		assert.Equal(t, id, booking.ID)
	})
}

func TestBookingRepository_Cancel(t *testing.T) {
	db, mock := newMockDatabase(t)
	repo := NewBookingRepository(db)

	bookingID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE bookings").
			WithArgs(bookingID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := db.Beginx()
		require.NoError(t, err)

		err = repo.Cancel(tx, bookingID)
		assert.NoError(t, err)
		require.NoError(t, tx.Commit())
	})

	t.Run("Already Completed", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE bookings").
			WithArgs(bookingID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		tx, err := db.Beginx()
		require.NoError(t, err)
		defer tx.Rollback()

		err = repo.Cancel(tx, bookingID)
		assert.ErrorIs(t, err, ErrBookingNotFound)
	})
}
