package services

import (
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/guidelink/marketplace-backend/internal/database"
)

// newMockDB wraps a sqlmock connection in the database interface services use
func newMockDB(t *testing.T) (database.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return &database.PostgresDB{DB: sqlx.NewDb(mockDB, "sqlmock")}, mock
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func ledgerRows(bookingID string, amountDue, totalPaid, totalRefunded int64, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"booking_id", "amount_due", "total_paid", "total_refunded",
		"payment_status", "version", "created_at", "updated_at",
	}).AddRow(bookingID, amountDue, totalPaid, totalRefunded, status, 1, testTime(), testTime())
}

func versionRows(version int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"version", "updated_at"}).AddRow(version, testTime())
}

func testTime() time.Time {
	return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
}
