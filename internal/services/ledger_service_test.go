package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidelink/marketplace-backend/internal/database"
	"github.com/guidelink/marketplace-backend/internal/models"
)

func newLedgerService(t *testing.T) (*LedgerService, database.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock := newMockDB(t)
	logger := testLogger()

	svc := NewLedgerService(
		db,
		database.NewLedgerRepository(db),
		database.NewPaymentEventRepository(db),
		database.NewPaymentAuditRepository(db, logger),
		logger,
	)
	return svc, db, mock
}

func TestLedgerService_ApplyPayment(t *testing.T) {
	bookingID := uuid.New()

	t.Run("Partial payment", func(t *testing.T) {
		svc, db, mock := newLedgerService(t)
		eventID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries (.+) FOR UPDATE").
			WithArgs(bookingID).
			WillReturnRows(ledgerRows(bookingID.String(), 500000, 0, 0, "pending"))
		mock.ExpectExec("INSERT INTO ledger_applied_events").
			WithArgs(eventID, bookingID, "payment").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("UPDATE ledger_entries").
			WithArgs(bookingID, int64(200000), int64(0), models.PaymentStatusPartial).
			WillReturnRows(versionRows(2))
		mock.ExpectExec("INSERT INTO payment_audits").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := db.Beginx()
		require.NoError(t, err)

		entry, err := svc.ApplyPayment(tx, bookingID, eventID, 200000)
		require.NoError(t, err)
		require.NoError(t, tx.Commit())

		assert.Equal(t, int64(200000), entry.TotalPaid)
		assert.Equal(t, models.PaymentStatusPartial, entry.PaymentStatus)
		assert.Equal(t, int64(300000), entry.RemainingBalance())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Final payment completes the ledger", func(t *testing.T) {
		svc, db, mock := newLedgerService(t)
		eventID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries (.+) FOR UPDATE").
			WithArgs(bookingID).
			WillReturnRows(ledgerRows(bookingID.String(), 500000, 300000, 0, "partial"))
		mock.ExpectExec("INSERT INTO ledger_applied_events").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("UPDATE ledger_entries").
			WithArgs(bookingID, int64(500000), int64(0), models.PaymentStatusCompleted).
			WillReturnRows(versionRows(3))
		mock.ExpectExec("INSERT INTO payment_audits").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := db.Beginx()
		require.NoError(t, err)

		entry, err := svc.ApplyPayment(tx, bookingID, eventID, 200000)
		require.NoError(t, err)
		require.NoError(t, tx.Commit())

		assert.Equal(t, models.PaymentStatusCompleted, entry.PaymentStatus)
		assert.Equal(t, int64(0), entry.RemainingBalance())
	})

	t.Run("Overpayment rejected whole", func(t *testing.T) {
		svc, db, mock := newLedgerService(t)
		eventID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries (.+) FOR UPDATE").
			WithArgs(bookingID).
			WillReturnRows(ledgerRows(bookingID.String(), 500000, 400000, 0, "partial"))
		mock.ExpectExec("INSERT INTO ledger_applied_events").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO payment_audits").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		tx, err := db.Beginx()
		require.NoError(t, err)
		defer tx.Rollback()

		entry, err := svc.ApplyPayment(tx, bookingID, eventID, 200000)

		var overErr *models.OverpaymentError
		require.ErrorAs(t, err, &overErr)
		assert.Equal(t, int64(200000), overErr.Amount)
		assert.Equal(t, int64(100000), overErr.Remaining)
		assert.Nil(t, entry)
	})

	t.Run("Duplicate event returns prior state", func(t *testing.T) {
		svc, db, mock := newLedgerService(t)
		eventID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries (.+) FOR UPDATE").
			WithArgs(bookingID).
			WillReturnRows(ledgerRows(bookingID.String(), 500000, 200000, 0, "partial"))
		mock.ExpectExec("INSERT INTO ledger_applied_events").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO payment_audits").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		tx, err := db.Beginx()
		require.NoError(t, err)
		defer tx.Rollback()

		_, err = svc.ApplyPayment(tx, bookingID, eventID, 200000)

		var dupErr *models.DuplicateEventError
		require.ErrorAs(t, err, &dupErr)
		assert.Equal(t, eventID.String(), dupErr.EventID)
		require.NotNil(t, dupErr.Entry)
		assert.Equal(t, int64(200000), dupErr.Entry.TotalPaid)
	})

	t.Run("Zero amount rejected before any query", func(t *testing.T) {
		svc, db, mock := newLedgerService(t)

		mock.ExpectBegin()
		mock.ExpectRollback()

		tx, err := db.Beginx()
		require.NoError(t, err)
		defer tx.Rollback()

		_, err = svc.ApplyPayment(tx, bookingID, uuid.New(), 0)

		var verr *models.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestLedgerService_ApplyRefund(t *testing.T) {
	bookingID := uuid.New()

	t.Run("Partial refund", func(t *testing.T) {
		svc, db, mock := newLedgerService(t)
		eventID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries (.+) FOR UPDATE").
			WithArgs(bookingID).
			WillReturnRows(ledgerRows(bookingID.String(), 500000, 500000, 0, "completed"))
		mock.ExpectExec("INSERT INTO ledger_applied_events").
			WithArgs(eventID, bookingID, "refund").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("UPDATE ledger_entries").
			WithArgs(bookingID, int64(500000), int64(200000), models.PaymentStatusPartial).
			WillReturnRows(versionRows(3))
		mock.ExpectExec("INSERT INTO payment_audits").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := db.Beginx()
		require.NoError(t, err)

		entry, err := svc.ApplyRefund(tx, bookingID, eventID, 200000)
		require.NoError(t, err)
		require.NoError(t, tx.Commit())

		assert.Equal(t, int64(200000), entry.TotalRefunded)
		assert.Equal(t, models.PaymentStatusPartial, entry.PaymentStatus)
	})

	t.Run("Full refund sets refunded status", func(t *testing.T) {
		svc, db, mock := newLedgerService(t)
		eventID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries (.+) FOR UPDATE").
			WithArgs(bookingID).
			WillReturnRows(ledgerRows(bookingID.String(), 500000, 500000, 300000, "partial"))
		mock.ExpectExec("INSERT INTO ledger_applied_events").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("UPDATE ledger_entries").
			WithArgs(bookingID, int64(500000), int64(500000), models.PaymentStatusRefunded).
			WillReturnRows(versionRows(4))
		mock.ExpectExec("INSERT INTO payment_audits").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := db.Beginx()
		require.NoError(t, err)

		entry, err := svc.ApplyRefund(tx, bookingID, eventID, 200000)
		require.NoError(t, err)
		require.NoError(t, tx.Commit())

		assert.Equal(t, models.PaymentStatusRefunded, entry.PaymentStatus)
		assert.Equal(t, int64(0), entry.Refundable())
	})

	t.Run("Overrefund rejected", func(t *testing.T) {
		svc, db, mock := newLedgerService(t)
		eventID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries (.+) FOR UPDATE").
			WithArgs(bookingID).
			WillReturnRows(ledgerRows(bookingID.String(), 500000, 300000, 200000, "partial"))
		mock.ExpectExec("INSERT INTO ledger_applied_events").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO payment_audits").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		tx, err := db.Beginx()
		require.NoError(t, err)
		defer tx.Rollback()

		_, err = svc.ApplyRefund(tx, bookingID, eventID, 200000)

		var overErr *models.OverrefundError
		require.ErrorAs(t, err, &overErr)
		assert.Equal(t, int64(100000), overErr.Refundable)
	})
}

func TestLedgerService_ReverseRefund(t *testing.T) {
	bookingID := uuid.New()

	t.Run("Restores refunded amount", func(t *testing.T) {
		svc, db, mock := newLedgerService(t)
		reversalID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries (.+) FOR UPDATE").
			WithArgs(bookingID).
			WillReturnRows(ledgerRows(bookingID.String(), 500000, 500000, 200000, "partial"))
		mock.ExpectExec("INSERT INTO ledger_applied_events").
			WithArgs(reversalID, bookingID, "refund_reversal").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("UPDATE ledger_entries").
			WithArgs(bookingID, int64(500000), int64(0), models.PaymentStatusCompleted).
			WillReturnRows(versionRows(4))
		mock.ExpectExec("INSERT INTO payment_audits").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := db.Beginx()
		require.NoError(t, err)

		entry, err := svc.ReverseRefund(tx, bookingID, reversalID, 200000)
		require.NoError(t, err)
		require.NoError(t, tx.Commit())

		assert.Equal(t, int64(0), entry.TotalRefunded)
		assert.Equal(t, models.PaymentStatusCompleted, entry.PaymentStatus)
	})

	t.Run("Reversal larger than total refunded fails", func(t *testing.T) {
		svc, db, mock := newLedgerService(t)
		reversalID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries (.+) FOR UPDATE").
			WithArgs(bookingID).
			WillReturnRows(ledgerRows(bookingID.String(), 500000, 500000, 100000, "partial"))
		mock.ExpectExec("INSERT INTO ledger_applied_events").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		tx, err := db.Beginx()
		require.NoError(t, err)
		defer tx.Rollback()

		_, err = svc.ReverseRefund(tx, bookingID, reversalID, 200000)
		assert.Error(t, err)
	})
}

func TestLedgerService_MarkFailed(t *testing.T) {
	svc, _, mock := newLedgerService(t)

	bookingID := uuid.New()
	eventID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payment_events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("INSERT INTO payment_audits").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.MarkFailed(bookingID, eventID, "signature mismatch")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
