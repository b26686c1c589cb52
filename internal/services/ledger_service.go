package services

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/guidelink/marketplace-backend/internal/database"
	"github.com/guidelink/marketplace-backend/internal/models"
)

// Applied-event kinds recorded for idempotency tracking
const (
	appliedKindPayment        = "payment"
	appliedKindRefund         = "refund"
	appliedKindRefundReversal = "refund_reversal"
)

// LedgerService owns all mutations of ledger entries. Mutating operations
// take the caller's transaction and lock the entry row with FOR UPDATE, so
// concurrent mutations on one booking serialize at the database and the loser
// re-reads fresh totals before its own arithmetic check.
//
// Domain rejections (overpayment, overrefund, duplicate event) are returned
// as typed errors with the ledger untouched; the caller is expected to roll
// the transaction back.
type LedgerService struct {
	db         database.DB
	ledgerRepo *database.LedgerRepository
	eventRepo  *database.PaymentEventRepository
	auditRepo  *database.PaymentAuditRepository
	logger     *logrus.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	db database.DB,
	ledgerRepo *database.LedgerRepository,
	eventRepo *database.PaymentEventRepository,
	auditRepo *database.PaymentAuditRepository,
	logger *logrus.Logger,
) *LedgerService {
	return &LedgerService{
		db:         db,
		ledgerRepo: ledgerRepo,
		eventRepo:  eventRepo,
		auditRepo:  auditRepo,
		logger:     logger,
	}
}

// ApplyPayment credits amount against the booking's ledger entry.
//
// Rejects with OverpaymentError if the amount does not fit the remaining
// balance, and with DuplicateEventError (carrying the current entry) if
// eventID has already been applied. On success totalPaid grows and the
// payment status is recomputed from the totals.
func (s *LedgerService) ApplyPayment(tx *sqlx.Tx, bookingID, eventID uuid.UUID, amount int64) (*models.LedgerEntry, error) {
	if amount < 1 {
		return nil, models.NewValidationError("amount", "must be at least 1")
	}

	entry, err := s.ledgerRepo.GetByBookingIDForUpdate(tx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock ledger entry: %w", err)
	}

	applied, err := s.ledgerRepo.RecordApplied(tx, bookingID, eventID, appliedKindPayment)
	if err != nil {
		return nil, fmt.Errorf("failed to record applied event: %w", err)
	}
	if !applied {
		s.auditRepo.Log(models.NewPaymentAudit(models.AuditPaymentApplied, models.AuditSourceBackend).
			SetBooking(bookingID).
			SetEvent(eventID).
			SetAmounts(amount, amount).
			SetDuplicate(eventID.String()))
		return nil, &models.DuplicateEventError{EventID: eventID.String(), Entry: entry}
	}

	if amount > entry.RemainingBalance() {
		overErr := &models.OverpaymentError{
			BookingID: bookingID.String(),
			Amount:    amount,
			Remaining: entry.RemainingBalance(),
		}
		s.auditRepo.Log(models.NewPaymentAudit(models.AuditPaymentRejected, models.AuditSourceBackend).
			SetBooking(bookingID).
			SetEvent(eventID).
			SetAmounts(entry.RemainingBalance(), amount).
			SetError(overErr))
		return nil, overErr
	}

	entry.TotalPaid += amount
	entry.RecomputeStatus()
	if !entry.CheckInvariants() {
		return nil, fmt.Errorf("ledger invariant violated for booking %s after payment of %d", bookingID, amount)
	}

	if err := s.ledgerRepo.UpdateTotals(tx, entry); err != nil {
		return nil, fmt.Errorf("failed to update ledger totals: %w", err)
	}

	s.auditRepo.Log(models.NewPaymentAudit(models.AuditPaymentApplied, models.AuditSourceBackend).
		SetBooking(bookingID).
		SetEvent(eventID).
		SetAmounts(amount, amount))

	s.logger.WithFields(logrus.Fields{
		"booking_id":     bookingID,
		"event_id":       eventID,
		"amount":         amount,
		"total_paid":     entry.TotalPaid,
		"payment_status": entry.PaymentStatus,
	}).Info("Payment applied to ledger")

	return entry, nil
}

// ApplyRefund debits amount from the booking's ledger entry.
//
// Rejects with OverrefundError if the amount exceeds what is refundable
// (total paid minus total already refunded), and with DuplicateEventError if
// eventID has already been applied.
func (s *LedgerService) ApplyRefund(tx *sqlx.Tx, bookingID, eventID uuid.UUID, amount int64) (*models.LedgerEntry, error) {
	if amount < 1 {
		return nil, models.NewValidationError("amount", "must be at least 1")
	}

	entry, err := s.ledgerRepo.GetByBookingIDForUpdate(tx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock ledger entry: %w", err)
	}

	applied, err := s.ledgerRepo.RecordApplied(tx, bookingID, eventID, appliedKindRefund)
	if err != nil {
		return nil, fmt.Errorf("failed to record applied event: %w", err)
	}
	if !applied {
		s.auditRepo.Log(models.NewPaymentAudit(models.AuditRefundApplied, models.AuditSourceBackend).
			SetBooking(bookingID).
			SetEvent(eventID).
			SetAmounts(amount, amount).
			SetDuplicate(eventID.String()))
		return nil, &models.DuplicateEventError{EventID: eventID.String(), Entry: entry}
	}

	if amount > entry.Refundable() {
		overErr := &models.OverrefundError{
			BookingID:  bookingID.String(),
			Amount:     amount,
			Refundable: entry.Refundable(),
		}
		s.auditRepo.Log(models.NewPaymentAudit(models.AuditRefundRejected, models.AuditSourceBackend).
			SetBooking(bookingID).
			SetEvent(eventID).
			SetAmounts(entry.Refundable(), amount).
			SetError(overErr))
		return nil, overErr
	}

	entry.TotalRefunded += amount
	entry.RecomputeStatus()
	if !entry.CheckInvariants() {
		return nil, fmt.Errorf("ledger invariant violated for booking %s after refund of %d", bookingID, amount)
	}

	if err := s.ledgerRepo.UpdateTotals(tx, entry); err != nil {
		return nil, fmt.Errorf("failed to update ledger totals: %w", err)
	}

	s.auditRepo.Log(models.NewPaymentAudit(models.AuditRefundApplied, models.AuditSourceBackend).
		SetBooking(bookingID).
		SetEvent(eventID).
		SetAmounts(amount, amount))

	s.logger.WithFields(logrus.Fields{
		"booking_id":     bookingID,
		"event_id":       eventID,
		"amount":         amount,
		"total_refunded": entry.TotalRefunded,
		"payment_status": entry.PaymentStatus,
	}).Info("Refund applied to ledger")

	return entry, nil
}

// ReverseRefund backs out a previously applied refund whose external money
// movement failed. The reversal is applied under its own event id so the
// compensation itself is exactly-once; the original refund and its reversal
// both stay in the applied-event log for reconciliation.
func (s *LedgerService) ReverseRefund(tx *sqlx.Tx, bookingID, reversalEventID uuid.UUID, amount int64) (*models.LedgerEntry, error) {
	entry, err := s.ledgerRepo.GetByBookingIDForUpdate(tx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock ledger entry: %w", err)
	}

	applied, err := s.ledgerRepo.RecordApplied(tx, bookingID, reversalEventID, appliedKindRefundReversal)
	if err != nil {
		return nil, fmt.Errorf("failed to record applied event: %w", err)
	}
	if !applied {
		return nil, &models.DuplicateEventError{EventID: reversalEventID.String(), Entry: entry}
	}

	if amount < 1 || amount > entry.TotalRefunded {
		return nil, fmt.Errorf("cannot reverse refund of %d against total refunded %d for booking %s",
			amount, entry.TotalRefunded, bookingID)
	}

	entry.TotalRefunded -= amount
	entry.RecomputeStatus()
	if !entry.CheckInvariants() {
		return nil, fmt.Errorf("ledger invariant violated for booking %s after refund reversal of %d", bookingID, amount)
	}

	if err := s.ledgerRepo.UpdateTotals(tx, entry); err != nil {
		return nil, fmt.Errorf("failed to update ledger totals: %w", err)
	}

	s.auditRepo.Log(models.NewPaymentAudit(models.AuditRefundCompensated, models.AuditSourceSystem).
		SetBooking(bookingID).
		SetEvent(reversalEventID).
		SetAmounts(amount, amount))

	s.logger.WithFields(logrus.Fields{
		"booking_id":     bookingID,
		"event_id":       reversalEventID,
		"amount":         amount,
		"total_refunded": entry.TotalRefunded,
	}).Warn("Refund reversed after external movement failure")

	return entry, nil
}

// MarkFailed finalizes a payment event as failed. Totals are never touched;
// a failed event leaves the ledger exactly as it was.
func (s *LedgerService) MarkFailed(bookingID, eventID uuid.UUID, reason string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.eventRepo.Finalize(tx, eventID, models.PaymentEventFailed, nil, &reason); err != nil {
		return fmt.Errorf("failed to mark payment event failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.auditRepo.Log(models.NewPaymentAudit(models.AuditPaymentFailed, models.AuditSourceBackend).
		SetBooking(bookingID).
		SetEvent(eventID).
		SetError(fmt.Errorf("%s", reason)))

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"event_id":   eventID,
		"reason":     reason,
	}).Info("Payment event marked failed")

	return nil
}

// GetState returns a read-only snapshot of the booking's ledger entry
func (s *LedgerService) GetState(bookingID uuid.UUID) (*models.LedgerEntry, error) {
	return s.ledgerRepo.GetByBookingID(bookingID)
}
