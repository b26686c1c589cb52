package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEventType represents the type of audited money event
type AuditEventType string

const (
	AuditIntentCreated     AuditEventType = "intent_created"
	AuditCallbackReceived  AuditEventType = "callback_received"
	AuditPaymentApplied    AuditEventType = "payment_applied"
	AuditPaymentRejected   AuditEventType = "payment_rejected"
	AuditPaymentFailed     AuditEventType = "payment_failed"
	AuditManualSubmitted   AuditEventType = "manual_payment_submitted"
	AuditRefundRequested   AuditEventType = "refund_requested"
	AuditRefundApplied     AuditEventType = "refund_applied"
	AuditRefundRejected    AuditEventType = "refund_rejected"
	AuditRefundCompensated AuditEventType = "refund_compensated"
	AuditEventExpired      AuditEventType = "event_expired"
)

// AuditEventSource identifies where the event originated
type AuditEventSource string

const (
	AuditSourceBackend         AuditEventSource = "backend"
	AuditSourceGatewayCallback AuditEventSource = "gateway_callback"
	AuditSourceUser            AuditEventSource = "user"
	AuditSourceSystem          AuditEventSource = "system"
)

// PaymentAudit represents an immutable audit log entry for money events.
// Every accepted or rejected monetary mutation gets a row; the full payload
// is retained for manual reconciliation.
type PaymentAudit struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	BookingID *uuid.UUID `json:"booking_id,omitempty" db:"booking_id"`
	EventID   *uuid.UUID `json:"event_id,omitempty" db:"event_id"`

	// Event info
	EventType   AuditEventType   `json:"event_type" db:"event_type"`
	EventSource AuditEventSource `json:"event_source" db:"event_source"`

	// Amount tracking - CRITICAL for verification. Paise.
	ExpectedAmount *int64 `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount *int64 `json:"received_amount,omitempty" db:"received_amount"`
	AmountsMatch   *bool  `json:"amounts_match,omitempty" db:"amounts_match"`

	// Gateway references
	GatewayOrderID *string `json:"gateway_order_id,omitempty" db:"gateway_order_id"`
	GatewayPayID   *string `json:"gateway_payment_id,omitempty" db:"gateway_payment_id"`

	// Raw payload - CRITICAL for debugging and reconciliation
	Payload JSONB `json:"payload,omitempty" db:"payload"`

	// Error tracking
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	// Processing info
	IsDuplicate    bool    `json:"is_duplicate" db:"is_duplicate"`
	IdempotencyKey *string `json:"idempotency_key,omitempty" db:"idempotency_key"`

	// Metadata
	ActorID    *uuid.UUID `json:"actor_id,omitempty" db:"actor_id"`
	IPAddress  *string    `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  *string    `json:"user_agent,omitempty" db:"user_agent"`
	DeviceInfo *string    `json:"device_info,omitempty" db:"device_info"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType AuditEventType, source AuditEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
		IsDuplicate: false,
	}
}

// SetBooking sets the booking ID for the audit
func (pa *PaymentAudit) SetBooking(bookingID uuid.UUID) *PaymentAudit {
	pa.BookingID = &bookingID
	return pa
}

// SetEvent sets the payment/refund event ID for the audit
func (pa *PaymentAudit) SetEvent(eventID uuid.UUID) *PaymentAudit {
	pa.EventID = &eventID
	return pa
}

// SetAmounts records expected vs received amounts and whether they match
func (pa *PaymentAudit) SetAmounts(expected, received int64) *PaymentAudit {
	pa.ExpectedAmount = &expected
	pa.ReceivedAmount = &received
	match := expected == received
	pa.AmountsMatch = &match
	return pa
}

// SetGatewayRefs sets the gateway order and payment ids
func (pa *PaymentAudit) SetGatewayRefs(orderID, paymentID string) *PaymentAudit {
	if orderID != "" {
		pa.GatewayOrderID = &orderID
	}
	if paymentID != "" {
		pa.GatewayPayID = &paymentID
	}
	return pa
}

// SetPayload attaches the full event payload
func (pa *PaymentAudit) SetPayload(payload JSONB) *PaymentAudit {
	pa.Payload = payload
	return pa
}

// SetError records the failure message
func (pa *PaymentAudit) SetError(err error) *PaymentAudit {
	if err != nil {
		msg := err.Error()
		pa.ErrorMessage = &msg
	}
	return pa
}

// SetDuplicate flags the entry as a duplicate delivery
func (pa *PaymentAudit) SetDuplicate(key string) *PaymentAudit {
	pa.IsDuplicate = true
	if key != "" {
		pa.IdempotencyKey = &key
	}
	return pa
}

// SetActor records who triggered the event and from where
func (pa *PaymentAudit) SetActor(actorID uuid.UUID, ipAddress, userAgent, deviceInfo string) *PaymentAudit {
	pa.ActorID = &actorID
	if ipAddress != "" {
		pa.IPAddress = &ipAddress
	}
	if userAgent != "" {
		pa.UserAgent = &userAgent
	}
	if deviceInfo != "" {
		pa.DeviceInfo = &deviceInfo
	}
	return pa
}
