package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guidelink/marketplace-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// PaymentAuditRepository handles payment audit operations
type PaymentAuditRepository struct {
	db     DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log creates a new payment audit entry
// This should NEVER fail silently - money events must be logged
func (r *PaymentAuditRepository) Log(audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (
			id, booking_id, event_id,
			event_type, event_source,
			expected_amount, received_amount, amounts_match,
			gateway_order_id, gateway_payment_id,
			payload, error_message,
			is_duplicate, idempotency_key,
			actor_id, ip_address, user_agent, device_info,
			created_at
		) VALUES (
			$1, $2, $3,
			$4, $5,
			$6, $7, $8,
			$9, $10,
			$11, $12,
			$13, $14,
			$15, $16, $17, $18,
			$19
		)`

	_, err := r.db.Exec(query,
		audit.ID, audit.BookingID, audit.EventID,
		audit.EventType, audit.EventSource,
		audit.ExpectedAmount, audit.ReceivedAmount, audit.AmountsMatch,
		audit.GatewayOrderID, audit.GatewayPayID,
		audit.Payload, audit.ErrorMessage,
		audit.IsDuplicate, audit.IdempotencyKey,
		audit.ActorID, audit.IPAddress, audit.UserAgent, audit.DeviceInfo,
		audit.CreatedAt,
	)

	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"booking_id": audit.BookingID,
		}).Error("CRITICAL: Failed to log payment audit - THIS SHOULD NEVER HAPPEN")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
		"booking_id": audit.BookingID,
	}).Debug("Payment audit logged")

	return nil
}

// CleanupOlderThan removes audit rows past the retention window. Returns the
// number of rows removed.
func (r *PaymentAuditRepository) CleanupOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)

	query := `DELETE FROM payment_audits WHERE created_at < $1`

	result, err := r.db.Exec(query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup payment audits: %w", err)
	}

	return result.RowsAffected()
}
