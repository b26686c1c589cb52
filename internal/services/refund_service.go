package services

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/guidelink/marketplace-backend/internal/database"
	"github.com/guidelink/marketplace-backend/internal/models"
	"github.com/guidelink/marketplace-backend/pkg/gateway"
)

// RefundGateway is the gateway surface used to move money back to the payer
type RefundGateway interface {
	Refund(paymentID string, amount int64, reason string) (*gateway.RefundResponse, error)
}

// RefundService issues refunds. The ledger debit is synchronous; the external
// money movement happens after the ledger accepts. If the movement fails the
// ledger debit is reversed through an explicit compensating refund event, so
// the books stay consistent and the failed pair remains visible to operators.
type RefundService struct {
	db         database.DB
	refundRepo *database.RefundEventRepository
	eventRepo  *database.PaymentEventRepository
	auditRepo  *database.PaymentAuditRepository
	ledger     *LedgerService
	gw         RefundGateway
	logger     *logrus.Logger
}

// NewRefundService creates a new refund service
func NewRefundService(
	db database.DB,
	refundRepo *database.RefundEventRepository,
	eventRepo *database.PaymentEventRepository,
	auditRepo *database.PaymentAuditRepository,
	ledger *LedgerService,
	gw RefundGateway,
	logger *logrus.Logger,
) *RefundService {
	return &RefundService{
		db:         db,
		refundRepo: refundRepo,
		eventRepo:  eventRepo,
		auditRepo:  auditRepo,
		ledger:     ledger,
		gw:         gw,
		logger:     logger,
	}
}

// IssueRefund debits the ledger and then moves the money back to the payer.
//
// Rejections (overrefund, duplicate) leave the ledger untouched and mark the
// refund event failed. Money moved through the gateway is refunded against
// the most recent completed gateway payment; bookings paid entirely by manual
// methods are returned manually by the operator, with the completed refund
// event as the work item.
func (s *RefundService) IssueRefund(actor Actor, req *models.IssueRefundRequest) (*models.RefundReceipt, error) {
	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		return nil, models.NewValidationError("booking_id", "must be a valid UUID")
	}
	if req.Amount < 1 {
		return nil, models.NewValidationError("amount", "must be at least 1")
	}

	event := &models.RefundEvent{
		ID:          uuid.New(),
		BookingID:   bookingID,
		Amount:      req.Amount,
		Status:      models.RefundEventPending,
		Note:        req.Note,
		RequestedBy: actor.ID,
	}
	if err := s.refundRepo.Create(event); err != nil {
		return nil, fmt.Errorf("failed to create refund event: %w", err)
	}

	s.auditRepo.Log(models.NewPaymentAudit(models.AuditRefundRequested, models.AuditSourceUser).
		SetBooking(bookingID).
		SetEvent(event.ID).
		SetAmounts(req.Amount, req.Amount).
		SetActor(actor.ID, actor.IPAddress, actor.UserAgent, actor.DeviceInfo))

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	entry, err := s.ledger.ApplyRefund(tx, bookingID, event.ID, req.Amount)
	if err != nil {
		reason := err.Error()
		if setErr := s.refundRepo.SetStatus(event.ID, models.RefundEventFailed, &reason); setErr != nil {
			s.logger.WithError(setErr).WithField("refund_id", event.ID).
				Error("Failed to mark refund event failed after ledger rejection")
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if err := s.moveMoney(bookingID, event, req.Note); err != nil {
		if compErr := s.compensate(bookingID, event, err); compErr != nil {
			s.logger.WithError(compErr).WithField("refund_id", event.ID).
				Error("CRITICAL: Failed to compensate refund after movement failure - books are inconsistent")
			return nil, fmt.Errorf("refund movement failed and compensation failed: %w", compErr)
		}
		return nil, fmt.Errorf("refund movement failed, ledger compensated: %w", err)
	}

	if err := s.refundRepo.SetStatus(event.ID, models.RefundEventCompleted, nil); err != nil {
		s.logger.WithError(err).WithField("refund_id", event.ID).
			Error("Failed to mark refund event completed")
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":     bookingID,
		"refund_id":      event.ID,
		"amount":         req.Amount,
		"requested_by":   actor.ID,
		"payment_status": entry.PaymentStatus,
	}).Info("Refund issued")

	return &models.RefundReceipt{
		RefundID:      event.ID,
		BookingID:     bookingID,
		Amount:        req.Amount,
		PaymentStatus: entry.PaymentStatus,
		Refundable:    entry.Refundable(),
	}, nil
}

// moveMoney performs the external return of funds. Gateway-paid bookings go
// back through the gateway refund API against the most recent completed
// gateway payment; bookings without one are settled manually by the operator.
func (s *RefundService) moveMoney(bookingID uuid.UUID, event *models.RefundEvent, note string) error {
	payments, err := s.eventRepo.ListByBookingID(bookingID)
	if err != nil {
		return fmt.Errorf("failed to list payment events: %w", err)
	}

	var gatewayPayID *string
	for i := len(payments) - 1; i >= 0; i-- {
		p := payments[i]
		if p.Method == models.PaymentMethodGateway && p.Status == models.PaymentEventCompleted && p.GatewayPayID != nil {
			gatewayPayID = p.GatewayPayID
			break
		}
	}

	if gatewayPayID == nil {
		s.logger.WithFields(logrus.Fields{
			"booking_id": bookingID,
			"refund_id":  event.ID,
		}).Info("No gateway payment on booking; refund to be settled manually")
		return nil
	}

	if _, err := s.gw.Refund(*gatewayPayID, event.Amount, note); err != nil {
		return fmt.Errorf("gateway refund failed: %w", err)
	}

	return nil
}

// compensate reverses the ledger debit of a refund whose external movement
// failed and marks the refund event failed. The compensating refund event
// stays in the log referencing the one it reverses.
func (s *RefundService) compensate(bookingID uuid.UUID, event *models.RefundEvent, cause error) error {
	reversal := &models.RefundEvent{
		ID:            uuid.New(),
		BookingID:     bookingID,
		Amount:        event.Amount,
		Status:        models.RefundEventCompleted,
		Note:          fmt.Sprintf("reversal of refund %s: %s", event.ID, cause),
		RequestedBy:   event.RequestedBy,
		Compensating:  true,
		CompensatesID: &event.ID,
	}
	if err := s.refundRepo.Create(reversal); err != nil {
		return fmt.Errorf("failed to create compensating refund event: %w", err)
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.ledger.ReverseRefund(tx, bookingID, reversal.ID, event.Amount); err != nil {
		return fmt.Errorf("failed to reverse refund on ledger: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	reason := cause.Error()
	if err := s.refundRepo.SetStatus(event.ID, models.RefundEventFailed, &reason); err != nil {
		s.logger.WithError(err).WithField("refund_id", event.ID).
			Error("Failed to mark refund event failed after compensation")
	}

	return nil
}
