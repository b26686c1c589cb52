package models

import (
	"fmt"
	"time"
)

// ValidationError reports malformed input. The caller's fault; never retried
// automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError for a single field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError reports a date-range overlap with an existing active booking.
// ConflictingRange is the earliest-starting overlapping range, for user-facing
// messaging.
type ConflictError struct {
	GuideID          string
	ConflictingRange DateRange
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("guide %s is already booked for %s", e.GuideID, e.ConflictingRange)
}

// OverpaymentError reports a payment that would push the net paid amount past
// the amount due. The operation is rejected whole; nothing is partially
// applied.
type OverpaymentError struct {
	BookingID string
	Amount    int64
	Remaining int64
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %d exceeds remaining balance %d for booking %s", e.Amount, e.Remaining, e.BookingID)
}

// OverrefundError reports a refund larger than the refundable amount
// (total paid minus total already refunded).
type OverrefundError struct {
	BookingID  string
	Amount     int64
	Refundable int64
}

func (e *OverrefundError) Error() string {
	return fmt.Sprintf("refund of %d exceeds refundable amount %d for booking %s", e.Amount, e.Refundable, e.BookingID)
}

// DuplicateEventError reports an event id that has already been applied to the
// ledger. Entry carries the state from the prior successful application so
// benign retries can be answered with it instead of an error response.
type DuplicateEventError struct {
	EventID string
	Entry   *LedgerEntry
}

func (e *DuplicateEventError) Error() string {
	return fmt.Sprintf("event %s was already applied", e.EventID)
}

// VerificationError reports a gateway callback that failed signature or
// amount verification. Treated as a failed payment, not a system fault.
type VerificationError struct {
	OrderID string
	Reason  string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("callback verification failed for order %s: %s", e.OrderID, e.Reason)
}

// UploadTimeoutError reports a proof upload that exceeded the blob store
// deadline. Transient; the caller should retry with a smaller payload rather
// than resubmit the payment.
type UploadTimeoutError struct {
	ObjectKey string
	Timeout   time.Duration
}

func (e *UploadTimeoutError) Error() string {
	return fmt.Sprintf("proof upload %s timed out after %s", e.ObjectKey, e.Timeout)
}
