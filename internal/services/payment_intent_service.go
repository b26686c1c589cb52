package services

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/guidelink/marketplace-backend/internal/database"
	"github.com/guidelink/marketplace-backend/internal/models"
	"github.com/guidelink/marketplace-backend/pkg/gateway"
)

const defaultCurrency = "INR"

// OrderGateway is the payment gateway surface used to register orders
type OrderGateway interface {
	CreateOrder(orderID string, amount int64, currency string) (*gateway.CreateOrderResponse, error)
}

// PaymentIntentService handles the gateway payment flow: intent creation
// ahead of checkout and signed callback verification afterwards.
type PaymentIntentService struct {
	db            database.DB
	bookingRepo   *database.BookingRepository
	eventRepo     *database.PaymentEventRepository
	auditRepo     *database.PaymentAuditRepository
	ledger        *LedgerService
	gw            OrderGateway
	webhookSecret string
	logger        *logrus.Logger
}

// NewPaymentIntentService creates a new payment intent service
func NewPaymentIntentService(
	db database.DB,
	bookingRepo *database.BookingRepository,
	eventRepo *database.PaymentEventRepository,
	auditRepo *database.PaymentAuditRepository,
	ledger *LedgerService,
	gw OrderGateway,
	webhookSecret string,
	logger *logrus.Logger,
) *PaymentIntentService {
	return &PaymentIntentService{
		db:            db,
		bookingRepo:   bookingRepo,
		eventRepo:     eventRepo,
		auditRepo:     auditRepo,
		ledger:        ledger,
		gw:            gw,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// CreateIntent registers a gateway payment attempt for a booking.
//
// The pending PaymentEvent is persisted before the gateway is contacted, so
// a crash between the two cannot leave a gateway charge with no local record.
// A pending event whose checkout never completes is expired later by the
// reconciliation sweep.
func (s *PaymentIntentService) CreateIntent(actor Actor, req *models.CreateIntentRequest) (*models.IntentHandle, error) {
	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		return nil, models.NewValidationError("booking_id", "must be a valid UUID")
	}

	booking, err := s.bookingRepo.GetByID(bookingID)
	if err != nil {
		return nil, err
	}
	if booking.TravelerID != actor.ID {
		return nil, ErrForbidden
	}
	if booking.Status == models.BookingStatusCancelled {
		return nil, models.NewValidationError("booking_id", "cannot pay a cancelled booking")
	}

	entry, err := s.ledger.GetState(bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger entry: %w", err)
	}
	if req.Amount < 1 {
		return nil, models.NewValidationError("amount", "must be at least 1")
	}
	if req.Amount > entry.RemainingBalance() {
		return nil, models.NewValidationError("amount",
			fmt.Sprintf("exceeds remaining balance of %d", entry.RemainingBalance()))
	}

	orderID := fmt.Sprintf("GL-%s", uuid.New().String())
	event := models.NewGatewayPaymentEvent(bookingID, req.Amount, orderID)
	if err := s.eventRepo.Create(event); err != nil {
		return nil, fmt.Errorf("failed to create payment event: %w", err)
	}

	s.auditRepo.Log(models.NewPaymentAudit(models.AuditIntentCreated, models.AuditSourceUser).
		SetBooking(bookingID).
		SetEvent(event.ID).
		SetAmounts(req.Amount, req.Amount).
		SetGatewayRefs(orderID, "").
		SetActor(actor.ID, actor.IPAddress, actor.UserAgent, actor.DeviceInfo))

	order, err := s.gw.CreateOrder(orderID, req.Amount, defaultCurrency)
	if err != nil {
		reason := fmt.Sprintf("gateway order creation failed: %s", err)
		if markErr := s.ledger.MarkFailed(bookingID, event.ID, reason); markErr != nil {
			s.logger.WithError(markErr).WithField("event_id", event.ID).
				Error("Failed to mark payment event failed after gateway error")
		}
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":       bookingID,
		"event_id":         event.ID,
		"gateway_order_id": orderID,
		"amount":           req.Amount,
	}).Info("Payment intent created")

	return &models.IntentHandle{
		EventID:        event.ID,
		GatewayOrderID: orderID,
		Amount:         req.Amount,
		Currency:       defaultCurrency,
		CheckoutURL:    order.CheckoutURL,
	}, nil
}

// VerifyCallback processes a gateway callback delivery.
//
// Verification is the signature recomputed from orderID and paymentID under
// the shared webhook secret, compared in constant time, plus an exact amount
// match against the intent. A replay of an already completed order returns
// DuplicateEventError carrying the current ledger entry so the caller can
// answer it as a benign no-op. Verification failures mark the event failed
// and never touch the ledger.
func (s *PaymentIntentService) VerifyCallback(req *models.GatewayCallbackRequest) (*models.LedgerEntry, error) {
	event, err := s.eventRepo.GetByGatewayOrderID(req.OrderID)
	if err != nil {
		verErr := &models.VerificationError{OrderID: req.OrderID, Reason: "unknown order"}
		s.auditRepo.Log(models.NewPaymentAudit(models.AuditCallbackReceived, models.AuditSourceGatewayCallback).
			SetGatewayRefs(req.OrderID, req.PaymentID).
			SetError(verErr))
		return nil, verErr
	}

	s.auditRepo.Log(models.NewPaymentAudit(models.AuditCallbackReceived, models.AuditSourceGatewayCallback).
		SetBooking(event.BookingID).
		SetEvent(event.ID).
		SetAmounts(event.Amount, req.Amount).
		SetGatewayRefs(req.OrderID, req.PaymentID))

	if !gateway.VerifySignature(req.OrderID, req.PaymentID, req.Signature, s.webhookSecret) {
		return nil, s.rejectCallback(event, req, "signature mismatch")
	}

	switch event.Status {
	case models.PaymentEventCompleted:
		entry, err := s.ledger.GetState(event.BookingID)
		if err != nil {
			return nil, fmt.Errorf("failed to load ledger entry: %w", err)
		}
		s.auditRepo.Log(models.NewPaymentAudit(models.AuditCallbackReceived, models.AuditSourceGatewayCallback).
			SetBooking(event.BookingID).
			SetEvent(event.ID).
			SetGatewayRefs(req.OrderID, req.PaymentID).
			SetDuplicate(req.OrderID))
		return nil, &models.DuplicateEventError{EventID: event.ID.String(), Entry: entry}
	case models.PaymentEventFailed:
		return nil, &models.VerificationError{OrderID: req.OrderID, Reason: "order already finalized as failed"}
	}

	if req.Amount != event.Amount {
		return nil, s.rejectCallback(event, req,
			fmt.Sprintf("amount mismatch: expected %d, got %d", event.Amount, req.Amount))
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	entry, err := s.ledger.ApplyPayment(tx, event.BookingID, event.ID, event.Amount)
	if err != nil {
		return nil, err
	}

	if err := s.eventRepo.Finalize(tx, event.ID, models.PaymentEventCompleted, &req.PaymentID, nil); err != nil {
		return nil, fmt.Errorf("failed to finalize payment event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":         event.BookingID,
		"event_id":           event.ID,
		"gateway_order_id":   req.OrderID,
		"gateway_payment_id": req.PaymentID,
		"amount":             event.Amount,
		"payment_status":     entry.PaymentStatus,
	}).Info("Gateway payment verified and applied")

	return entry, nil
}

// rejectCallback marks the event failed and returns the VerificationError.
// The ledger is never touched on a rejected callback.
func (s *PaymentIntentService) rejectCallback(event *models.PaymentEvent, req *models.GatewayCallbackRequest, reason string) error {
	verErr := &models.VerificationError{OrderID: req.OrderID, Reason: reason}

	if event.Status == models.PaymentEventPending {
		if err := s.ledger.MarkFailed(event.BookingID, event.ID, reason); err != nil {
			s.logger.WithError(err).WithField("event_id", event.ID).
				Error("Failed to mark payment event failed after rejected callback")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":       event.BookingID,
		"event_id":         event.ID,
		"gateway_order_id": req.OrderID,
		"reason":           reason,
	}).Warn("Gateway callback rejected")

	return verErr
}
