package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/guidelink/marketplace-backend/internal/database"
	"github.com/guidelink/marketplace-backend/internal/models"
	"github.com/guidelink/marketplace-backend/pkg/blobstore"
)

// ProofUpload is an optional payment proof file attached to a manual payment
type ProofUpload struct {
	Filename    string
	Reader      io.Reader
	Size        int64
	ContentType string
}

// ManualPaymentService records cash and bank-transfer payments. Manual
// payments have no external verification step: the event is created
// completed and applied to the ledger in the same call. The proof object and
// the audit row are what later reconciliation works from.
type ManualPaymentService struct {
	db            database.DB
	bookingRepo   *database.BookingRepository
	eventRepo     *database.PaymentEventRepository
	auditRepo     *database.PaymentAuditRepository
	ledger        *LedgerService
	proofs        blobstore.Store
	uploadTimeout time.Duration
	logger        *logrus.Logger
}

// NewManualPaymentService creates a new manual payment service
func NewManualPaymentService(
	db database.DB,
	bookingRepo *database.BookingRepository,
	eventRepo *database.PaymentEventRepository,
	auditRepo *database.PaymentAuditRepository,
	ledger *LedgerService,
	proofs blobstore.Store,
	uploadTimeout time.Duration,
	logger *logrus.Logger,
) *ManualPaymentService {
	return &ManualPaymentService{
		db:            db,
		bookingRepo:   bookingRepo,
		eventRepo:     eventRepo,
		auditRepo:     auditRepo,
		ledger:        ledger,
		proofs:        proofs,
		uploadTimeout: uploadTimeout,
		logger:        logger,
	}
}

// SubmitCashPayment records a manual payment against a booking.
//
// The proof upload, when present, runs under the blob store deadline and
// happens before anything is written, so a timed-out upload leaves no
// pending event behind. A deadline exceeded surfaces as UploadTimeoutError
// so the caller can ask the user to retry with a smaller file instead of
// resubmitting the payment.
func (s *ManualPaymentService) SubmitCashPayment(actor Actor, bookingID uuid.UUID, amount int64, method models.PaymentMethod, proof *ProofUpload) (*models.PendingReceipt, error) {
	if !method.IsManual() {
		return nil, models.NewValidationError("method", "must be cash or bank_transfer")
	}

	booking, err := s.bookingRepo.GetByID(bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.BookingStatusCancelled {
		return nil, models.NewValidationError("booking_id", "cannot pay a cancelled booking")
	}

	entry, err := s.ledger.GetState(bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger entry: %w", err)
	}
	if amount < 1 {
		return nil, models.NewValidationError("amount", "must be at least 1")
	}
	if amount > entry.RemainingBalance() {
		return nil, models.NewValidationError("amount",
			fmt.Sprintf("exceeds remaining balance of %d", entry.RemainingBalance()))
	}

	var proofKey *string
	if proof != nil {
		key, err := s.uploadProof(bookingID, proof)
		if err != nil {
			return nil, err
		}
		proofKey = &key
	}

	// The completed event row and the ledger credit share one transaction:
	// if the locked re-check inside ApplyPayment rejects, the rollback
	// discards the event instead of leaving a completed-but-never-applied
	// money record behind.
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	event := models.NewManualPaymentEvent(bookingID, amount, method, actor.ID, proofKey)
	if err := s.eventRepo.CreateInTx(tx, event); err != nil {
		return nil, fmt.Errorf("failed to create payment event: %w", err)
	}

	s.auditRepo.Log(models.NewPaymentAudit(models.AuditManualSubmitted, models.AuditSourceUser).
		SetBooking(bookingID).
		SetEvent(event.ID).
		SetAmounts(amount, amount).
		SetActor(actor.ID, actor.IPAddress, actor.UserAgent, actor.DeviceInfo))

	entry, err = s.ledger.ApplyPayment(tx, bookingID, event.ID, amount)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":     bookingID,
		"event_id":       event.ID,
		"amount":         amount,
		"method":         method,
		"submitted_by":   actor.ID,
		"payment_status": entry.PaymentStatus,
	}).Info("Manual payment recorded")

	return &models.PendingReceipt{
		EventID:        event.ID,
		BookingID:      bookingID,
		Amount:         amount,
		Method:         method,
		ProofObjectKey: proofKey,
		PaymentStatus:  entry.PaymentStatus,
	}, nil
}

func (s *ManualPaymentService) uploadProof(bookingID uuid.UUID, proof *ProofUpload) (string, error) {
	objectKey := fmt.Sprintf("proofs/%s/%s-%s", bookingID, uuid.New().String(), proof.Filename)

	ctx, cancel := context.WithTimeout(context.Background(), s.uploadTimeout)
	defer cancel()

	if err := s.proofs.Put(ctx, objectKey, proof.Reader, proof.Size, proof.ContentType); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.WithFields(logrus.Fields{
				"booking_id": bookingID,
				"object_key": objectKey,
				"timeout":    s.uploadTimeout,
			}).Warn("Proof upload timed out")
			return "", &models.UploadTimeoutError{ObjectKey: objectKey, Timeout: s.uploadTimeout}
		}
		return "", fmt.Errorf("failed to upload proof: %w", err)
	}

	return objectKey, nil
}
