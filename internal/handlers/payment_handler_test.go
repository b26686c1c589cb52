package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidelink/marketplace-backend/internal/database"
	"github.com/guidelink/marketplace-backend/internal/models"
	"github.com/guidelink/marketplace-backend/internal/services"
	"github.com/guidelink/marketplace-backend/pkg/gateway"
)

const testWebhookSecret = "handler-test-webhook-secret"

func testTime() time.Time {
	return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
}

type nopOrderGateway struct{}

func (nopOrderGateway) CreateOrder(orderID string, amount int64, currency string) (*gateway.CreateOrderResponse, error) {
	return &gateway.CreateOrderResponse{Status: "success"}, nil
}

func setupCallbackRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := &database.PostgresDB{DB: sqlx.NewDb(mockDB, "sqlmock")}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ledgerRepo := database.NewLedgerRepository(db)
	eventRepo := database.NewPaymentEventRepository(db)
	auditRepo := database.NewPaymentAuditRepository(db, logger)
	ledger := services.NewLedgerService(db, ledgerRepo, eventRepo, auditRepo, logger)

	intentService := services.NewPaymentIntentService(
		db, database.NewBookingRepository(db), eventRepo, auditRepo,
		ledger, nopOrderGateway{}, testWebhookSecret, logger,
	)

	handler := NewPaymentHandler(intentService, nil, nil, logger)

	router := gin.New()
	router.POST("/api/v1/payments/callback", handler.Callback)
	return router, mock
}

func postCallback(t *testing.T, router *gin.Engine, payload models.GatewayCallbackRequest) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/v1/payments/callback", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func pendingEventRows(eventID, bookingID uuid.UUID, amount int64, orderID string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "booking_id", "amount", "method", "status",
		"gateway_order_id", "gateway_payment_id", "proof_object_key", "submitted_by",
		"failure_reason", "created_at", "completed_at",
	}).AddRow(
		eventID.String(), bookingID.String(), amount, "gateway", "pending",
		orderID, nil, nil, nil, nil, testTime(), nil,
	)
}

func TestPaymentHandler_Callback(t *testing.T) {
	bookingID := uuid.New()
	eventID := uuid.New()
	orderID := "GL-" + uuid.New().String()
	paymentID := "pay_42"

	t.Run("Verified callback returns the updated ledger", func(t *testing.T) {
		router, mock := setupCallbackRouter(t)

		mock.ExpectQuery("SELECT (.+) FROM payment_events WHERE gateway_order_id").
			WithArgs(orderID).
			WillReturnRows(pendingEventRows(eventID, bookingID, 200000, orderID))
		mock.ExpectExec("INSERT INTO payment_audits").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries (.+) FOR UPDATE").
			WillReturnRows(sqlmock.NewRows([]string{
				"booking_id", "amount_due", "total_paid", "total_refunded",
				"payment_status", "version", "created_at", "updated_at",
			}).AddRow(bookingID.String(), 500000, 0, 0, "pending", 1,
				testTime(), testTime()))
		mock.ExpectExec("INSERT INTO ledger_applied_events").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("UPDATE ledger_entries").
			WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}).
				AddRow(2, testTime()))
		mock.ExpectExec("INSERT INTO payment_audits").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE payment_events").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		w := postCallback(t, router, models.GatewayCallbackRequest{
			OrderID:   orderID,
			PaymentID: paymentID,
			Signature: gateway.Sign(orderID, paymentID, testWebhookSecret),
			Amount:    200000,
		})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"remaining_balance":300000`)
		assert.Contains(t, w.Body.String(), `"payment_status":"partial"`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Forged signature answers 400", func(t *testing.T) {
		router, mock := setupCallbackRouter(t)

		mock.ExpectQuery("SELECT (.+) FROM payment_events WHERE gateway_order_id").
			WithArgs(orderID).
			WillReturnRows(pendingEventRows(eventID, bookingID, 200000, orderID))
		mock.ExpectExec("INSERT INTO payment_audits").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE payment_events").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		mock.ExpectExec("INSERT INTO payment_audits").
			WillReturnResult(sqlmock.NewResult(0, 1))

		w := postCallback(t, router, models.GatewayCallbackRequest{
			OrderID:   orderID,
			PaymentID: paymentID,
			Signature: "deadbeef",
			Amount:    200000,
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "verification_failed")
		assert.Contains(t, w.Body.String(), "signature mismatch")
	})

	t.Run("Redelivered completed order answers 200", func(t *testing.T) {
		router, mock := setupCallbackRouter(t)

		completedRows := sqlmock.NewRows([]string{
			"id", "booking_id", "amount", "method", "status",
			"gateway_order_id", "gateway_payment_id", "proof_object_key", "submitted_by",
			"failure_reason", "created_at", "completed_at",
		}).AddRow(
			eventID.String(), bookingID.String(), 200000, "gateway", "completed",
			orderID, paymentID, nil, nil, nil, testTime(), testTime(),
		)

		mock.ExpectQuery("SELECT (.+) FROM payment_events WHERE gateway_order_id").
			WithArgs(orderID).
			WillReturnRows(completedRows)
		mock.ExpectExec("INSERT INTO payment_audits").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries").
			WillReturnRows(sqlmock.NewRows([]string{
				"booking_id", "amount_due", "total_paid", "total_refunded",
				"payment_status", "version", "created_at", "updated_at",
			}).AddRow(bookingID.String(), 500000, 200000, 0, "partial", 2,
				testTime(), testTime()))
		mock.ExpectExec("INSERT INTO payment_audits").
			WillReturnResult(sqlmock.NewResult(0, 1))

		w := postCallback(t, router, models.GatewayCallbackRequest{
			OrderID:   orderID,
			PaymentID: paymentID,
			Signature: gateway.Sign(orderID, paymentID, testWebhookSecret),
			Amount:    200000,
		})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "event already applied")
	})

	t.Run("Malformed body answers 400", func(t *testing.T) {
		router, _ := setupCallbackRouter(t)

		req := httptest.NewRequest("POST", "/api/v1/payments/callback", bytes.NewReader([]byte(`{"order_id":"x"}`)))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "validation_error")
	})
}
