package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMethod represents how money moved toward a booking
// Matches PostgreSQL ENUM: payment_method
type PaymentMethod string

const (
	PaymentMethodGateway      PaymentMethod = "gateway"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// IsManual reports whether the method has no external verification step
func (m PaymentMethod) IsManual() bool {
	return m == PaymentMethodCash || m == PaymentMethodBankTransfer
}

// PaymentEventStatus represents the status of a single payment event
// Matches PostgreSQL ENUM: payment_event_status
type PaymentEventStatus string

const (
	PaymentEventPending   PaymentEventStatus = "pending"
	PaymentEventCompleted PaymentEventStatus = "completed"
	PaymentEventFailed    PaymentEventStatus = "failed"
)

// PaymentEvent is a single attempted movement of money toward a booking.
// Append-only: created pending, finalized exactly once to completed or failed.
//
// Field discipline per method is enforced at construction: gateway events
// always carry a gateway order id and never a proof; manual events carry the
// submitting actor and optionally a proof, never gateway ids.
type PaymentEvent struct {
	ID             uuid.UUID          `json:"id"`
	BookingID      uuid.UUID          `json:"booking_id"`
	Amount         int64              `json:"amount"` // paise
	Method         PaymentMethod      `json:"method"`
	Status         PaymentEventStatus `json:"status"`
	GatewayOrderID *string            `json:"gateway_order_id,omitempty"` // gateway method only
	GatewayPayID   *string            `json:"gateway_payment_id,omitempty"`
	ProofObjectKey *string            `json:"proof_object_key,omitempty"` // manual methods only
	SubmittedBy    *uuid.UUID         `json:"submitted_by,omitempty"`     // manual methods only
	FailureReason  *string            `json:"failure_reason,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
}

// NewGatewayPaymentEvent builds a pending gateway event tied to an order id
func NewGatewayPaymentEvent(bookingID uuid.UUID, amount int64, orderID string) *PaymentEvent {
	return &PaymentEvent{
		ID:             uuid.New(),
		BookingID:      bookingID,
		Amount:         amount,
		Method:         PaymentMethodGateway,
		Status:         PaymentEventPending,
		GatewayOrderID: &orderID,
	}
}

// NewManualPaymentEvent builds a completed manual event. Manual payments have
// no external verification step, so they never pass through pending.
func NewManualPaymentEvent(bookingID uuid.UUID, amount int64, method PaymentMethod, submittedBy uuid.UUID, proofKey *string) *PaymentEvent {
	now := time.Now()
	return &PaymentEvent{
		ID:             uuid.New(),
		BookingID:      bookingID,
		Amount:         amount,
		Method:         method,
		Status:         PaymentEventCompleted,
		ProofObjectKey: proofKey,
		SubmittedBy:    &submittedBy,
		CompletedAt:    &now,
	}
}

// CreateIntentRequest represents a gateway payment intent request
type CreateIntentRequest struct {
	BookingID   string `json:"booking_id" binding:"required,uuid"`
	Amount      int64  `json:"amount" binding:"required"`
	PaymentType string `json:"payment_type" binding:"required,oneof=full installment"`
}

// GatewayCallbackRequest is the callback payload delivered by the gateway
type GatewayCallbackRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
	Amount    int64  `json:"amount" binding:"required"`
}

// IntentHandle is returned to the client so it can drive the gateway checkout
type IntentHandle struct {
	EventID        uuid.UUID `json:"event_id"`
	GatewayOrderID string    `json:"gateway_order_id"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	CheckoutURL    string    `json:"checkout_url,omitempty"`
}

// PendingReceipt acknowledges a manual payment submission
type PendingReceipt struct {
	EventID        uuid.UUID     `json:"event_id"`
	BookingID      uuid.UUID     `json:"booking_id"`
	Amount         int64         `json:"amount"`
	Method         PaymentMethod `json:"method"`
	ProofObjectKey *string       `json:"proof_object_key,omitempty"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
}
