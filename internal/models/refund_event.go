package models

import (
	"time"

	"github.com/google/uuid"
)

// RefundEventStatus represents the status of a refund event
// Matches PostgreSQL ENUM: refund_event_status
type RefundEventStatus string

const (
	RefundEventPending   RefundEventStatus = "pending"
	RefundEventCompleted RefundEventStatus = "completed"
	RefundEventFailed    RefundEventStatus = "failed"
)

// RefundEvent is a single attempted movement of money back to the payer.
// Append-only. A compensating event reverses a ledger-accepted refund whose
// external money movement failed; the pair stays in the log so operators can
// reconcile instead of the books silently shifting.
type RefundEvent struct {
	ID            uuid.UUID         `json:"id"`
	BookingID     uuid.UUID         `json:"booking_id"`
	Amount        int64             `json:"amount"` // paise
	Status        RefundEventStatus `json:"status"`
	Note          string            `json:"note"`
	RequestedBy   uuid.UUID         `json:"requested_by"`
	Compensating  bool              `json:"compensating"`
	CompensatesID *uuid.UUID        `json:"compensates_id,omitempty"`
	FailureReason *string           `json:"failure_reason,omitempty"`
	RequestedAt   time.Time         `json:"requested_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// IssueRefundRequest represents a refund request
type IssueRefundRequest struct {
	BookingID string `json:"booking_id" binding:"required,uuid"`
	Amount    int64  `json:"amount" binding:"required"`
	Note      string `json:"note" binding:"required"`
}

// RefundReceipt acknowledges an accepted refund
type RefundReceipt struct {
	RefundID      uuid.UUID     `json:"refund_id"`
	BookingID     uuid.UUID     `json:"booking_id"`
	Amount        int64         `json:"amount"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Refundable    int64         `json:"refundable"`
}
