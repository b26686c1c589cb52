package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the payment status of a ledger entry
// Matches PostgreSQL ENUM: payment_status
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // Nothing paid yet
	PaymentStatusPartial   PaymentStatus = "partial"   // Some, but not all, of the amount due is paid
	PaymentStatusCompleted PaymentStatus = "completed" // Fully paid, nothing refunded
	PaymentStatusFailed    PaymentStatus = "failed"    // Terminal failure recorded by an operator
	PaymentStatusRefunded  PaymentStatus = "refunded"  // Everything paid has been refunded
)

// LedgerEntry is the financial record for one booking. One entry per booking;
// mutated only through accepted payment and refund events.
//
// Invariants, enforced on every mutation and backstopped by DB CHECKs:
//
//	0 <= TotalPaid - TotalRefunded <= AmountDue
//	TotalRefunded <= TotalPaid
type LedgerEntry struct {
	BookingID     uuid.UUID     `json:"booking_id"`
	AmountDue     int64         `json:"amount_due"` // paise, immutable once set
	TotalPaid     int64         `json:"total_paid"`
	TotalRefunded int64         `json:"total_refunded"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Version       int64         `json:"version"` // bumped on every accepted mutation
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NetPaid returns the amount currently held against the booking
func (e *LedgerEntry) NetPaid() int64 {
	return e.TotalPaid - e.TotalRefunded
}

// RemainingBalance returns amountDue - (totalPaid - totalRefunded)
func (e *LedgerEntry) RemainingBalance() int64 {
	return e.AmountDue - e.NetPaid()
}

// Refundable returns the amount still eligible for refund
func (e *LedgerEntry) Refundable() int64 {
	return e.NetPaid()
}

// RecomputeStatus derives PaymentStatus from the totals. Status is a pure
// function of the arithmetic:
//
//	refunded:  net paid is zero and at least one refund occurred
//	completed: remaining balance is zero and nothing refunded
//	partial:   anything else with money in
//	pending:   nothing ever paid
func (e *LedgerEntry) RecomputeStatus() {
	switch {
	case e.TotalRefunded > 0 && e.NetPaid() == 0:
		e.PaymentStatus = PaymentStatusRefunded
	case e.TotalRefunded == 0 && e.RemainingBalance() == 0:
		e.PaymentStatus = PaymentStatusCompleted
	case e.NetPaid() > 0:
		e.PaymentStatus = PaymentStatusPartial
	default:
		e.PaymentStatus = PaymentStatusPending
	}
}

// CheckInvariants verifies both ledger invariants hold
func (e *LedgerEntry) CheckInvariants() bool {
	net := e.NetPaid()
	return net >= 0 && net <= e.AmountDue && e.TotalRefunded <= e.TotalPaid
}
