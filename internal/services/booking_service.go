package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/guidelink/marketplace-backend/internal/database"
	"github.com/guidelink/marketplace-backend/internal/models"
)

var (
	// ErrForbidden is returned when the acting user does not own the booking
	// side required for the operation.
	ErrForbidden = errors.New("not allowed to modify this booking")

	// ErrPaidBookingCancellation is returned when cancellation is attempted
	// while the ledger still holds unrefunded money.
	ErrPaidBookingCancellation = errors.New("booking has unrefunded payments; issue a refund before cancelling")
)

// BookingService drives the booking lifecycle: creation with conflict
// detection, guide-side status transitions, and cancellation under the
// paid-money rule.
type BookingService struct {
	db              database.DB
	bookingRepo     *database.BookingRepository
	ledgerRepo      *database.LedgerRepository
	conflictChecker *ConflictChecker
	logger          *logrus.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	db database.DB,
	bookingRepo *database.BookingRepository,
	ledgerRepo *database.LedgerRepository,
	conflictChecker *ConflictChecker,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		db:              db,
		bookingRepo:     bookingRepo,
		ledgerRepo:      ledgerRepo,
		conflictChecker: conflictChecker,
		logger:          logger,
	}
}

// CreateBooking validates the request, serializes against other bookings for
// the same guide, checks for date conflicts, and persists the booking with
// its ledger entry in one transaction. A booking is never observable without
// its ledger entry.
//
// If idempotencyKey was seen before for the same traveler, the original
// booking is returned with created=false and nothing is written.
func (s *BookingService) CreateBooking(travelerID uuid.UUID, req *models.CreateBookingRequest, idempotencyKey *string) (*models.Booking, bool, error) {
	if idempotencyKey != nil && *idempotencyKey != "" {
		existing, err := s.bookingRepo.GetByIdempotencyKey(*idempotencyKey)
		if err != nil {
			return nil, false, fmt.Errorf("failed to check idempotency key: %w", err)
		}
		if existing != nil {
			if existing.TravelerID != travelerID {
				return nil, false, models.NewValidationError("idempotency_key", "already used")
			}
			return existing, false, nil
		}
	}

	startDate, endDate, err := req.Validate(time.Now())
	if err != nil {
		return nil, false, err
	}

	guideID, err := uuid.Parse(req.GuideID)
	if err != nil {
		return nil, false, models.NewValidationError("guide_id", "must be a valid UUID")
	}
	if guideID == travelerID {
		return nil, false, models.NewValidationError("guide_id", "cannot book yourself")
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Serialize conflict-check-and-insert per guide. The advisory lock is
	// transaction scoped and released on commit or rollback.
	if err := s.bookingRepo.AcquireGuideLock(tx, guideID); err != nil {
		return nil, false, fmt.Errorf("failed to acquire guide lock: %w", err)
	}

	if err := s.conflictChecker.Check(tx, guideID, startDate, endDate, nil); err != nil {
		return nil, false, err
	}

	booking := &models.Booking{
		ID:              uuid.New(),
		TravelerID:      travelerID,
		GuideID:         guideID,
		StartDate:       startDate,
		EndDate:         endDate,
		AmountDue:       req.Budget,
		PickupLocation:  req.PickupLocation,
		DropoffLocation: req.DropoffLocation,
		Activities:      req.Activities,
		Status:          models.BookingStatusPending,
		IdempotencyKey:  idempotencyKey,
	}

	if err := s.bookingRepo.Create(tx, booking); err != nil {
		// A concurrent request with the same key committed first; release
		// the guide lock and replay its booking instead of surfacing the
		// unique violation.
		if errors.Is(err, database.ErrIdempotencyKeyConflict) {
			tx.Rollback()
			return s.replayIdempotentBooking(travelerID, idempotencyKey)
		}
		return nil, false, fmt.Errorf("failed to create booking: %w", err)
	}

	entry := &models.LedgerEntry{
		BookingID:     booking.ID,
		AmountDue:     req.Budget,
		PaymentStatus: models.PaymentStatusPending,
	}
	if err := s.ledgerRepo.CreateEntry(tx, entry); err != nil {
		return nil, false, fmt.Errorf("failed to create ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"traveler_id": travelerID,
		"guide_id":    guideID,
		"range":       booking.Range().String(),
		"amount_due":  booking.AmountDue,
	}).Info("Booking created")

	return booking, true, nil
}

// replayIdempotentBooking re-fetches by key after losing the unique-index
// race to a concurrent request that committed the same idempotency key first.
func (s *BookingService) replayIdempotentBooking(travelerID uuid.UUID, idempotencyKey *string) (*models.Booking, bool, error) {
	if idempotencyKey == nil || *idempotencyKey == "" {
		return nil, false, fmt.Errorf("idempotency key conflict without a key")
	}

	existing, err := s.bookingRepo.GetByIdempotencyKey(*idempotencyKey)
	if err != nil {
		return nil, false, fmt.Errorf("failed to re-check idempotency key: %w", err)
	}
	if existing == nil {
		return nil, false, fmt.Errorf("idempotency key conflict but no booking found for key")
	}
	if existing.TravelerID != travelerID {
		return nil, false, models.NewValidationError("idempotency_key", "already used")
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":  existing.ID,
		"traveler_id": travelerID,
	}).Info("Booking creation replayed after idempotency key race")

	return existing, false, nil
}

// GetBooking returns a booking by id
func (s *BookingService) GetBooking(bookingID uuid.UUID) (*models.Booking, error) {
	return s.bookingRepo.GetByID(bookingID)
}

// ListForTraveler returns the traveler's bookings, newest first
func (s *BookingService) ListForTraveler(travelerID uuid.UUID) ([]models.Booking, error) {
	return s.bookingRepo.GetByTravelerID(travelerID)
}

// ListForGuide returns the guide's bookings ordered by start date
func (s *BookingService) ListForGuide(guideID uuid.UUID) ([]models.Booking, error) {
	return s.bookingRepo.GetByGuideID(guideID)
}

// ConfirmBooking moves a pending booking to confirmed. Only the booked guide
// may confirm.
func (s *BookingService) ConfirmBooking(bookingID, guideID uuid.UUID) (*models.Booking, error) {
	return s.transition(bookingID, guideID, models.BookingStatusPending, models.BookingStatusConfirmed)
}

// CompleteBooking moves a confirmed booking to completed. Only the booked
// guide may complete.
func (s *BookingService) CompleteBooking(bookingID, guideID uuid.UUID) (*models.Booking, error) {
	return s.transition(bookingID, guideID, models.BookingStatusConfirmed, models.BookingStatusCompleted)
}

func (s *BookingService) transition(bookingID, guideID uuid.UUID, from, to models.BookingStatus) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByID(bookingID)
	if err != nil {
		return nil, err
	}
	if booking.GuideID != guideID {
		return nil, ErrForbidden
	}
	if booking.Status != from {
		return nil, models.NewValidationError("status",
			fmt.Sprintf("cannot move a %s booking to %s", booking.Status, to))
	}

	if err := s.bookingRepo.UpdateStatus(bookingID, to); err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}
	booking.Status = to

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"guide_id":   guideID,
		"status":     to,
	}).Info("Booking status updated")

	return booking, nil
}

// CancelBooking cancels a booking for the owning traveler or an admin.
//
// Cancellation is allowed only while the ledger holds no money: payment
// status pending, or net paid zero. A booking whose payments were fully
// refunded becomes cancellable again. Paid bookings must go through the
// refund flow first. Cancelling an already cancelled booking is a no-op.
func (s *BookingService) CancelBooking(bookingID, actorID uuid.UUID, isAdmin bool) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByID(bookingID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && booking.TravelerID != actorID {
		return nil, ErrForbidden
	}
	if booking.Status == models.BookingStatusCancelled {
		return booking, nil
	}
	if booking.Status == models.BookingStatusCompleted {
		return nil, models.NewValidationError("status", "a completed booking cannot be cancelled")
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Lock the ledger row for the eligibility check so a payment applying
	// concurrently cannot land between the check and the status update.
	entry, err := s.ledgerRepo.GetByBookingIDForUpdate(tx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock ledger entry: %w", err)
	}
	if entry.PaymentStatus != models.PaymentStatusPending && entry.NetPaid() != 0 {
		return nil, ErrPaidBookingCancellation
	}

	if err := s.bookingRepo.Cancel(tx, bookingID); err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	booking.Status = models.BookingStatusCancelled
	now := time.Now()
	booking.CancelledAt = &now

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"actor_id":   actorID,
		"is_admin":   isAdmin,
	}).Info("Booking cancelled")

	return booking, nil
}
