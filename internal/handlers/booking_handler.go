package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/guidelink/marketplace-backend/internal/database"
	"github.com/guidelink/marketplace-backend/internal/middleware"
	"github.com/guidelink/marketplace-backend/internal/models"
	"github.com/guidelink/marketplace-backend/internal/services"
)

// BookingHandler handles booking-related HTTP requests
type BookingHandler struct {
	bookingService *services.BookingService
	ledgerService  *services.LedgerService
	eventRepo      *database.PaymentEventRepository
	refundRepo     *database.RefundEventRepository
	logger         *logrus.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(
	bookingService *services.BookingService,
	ledgerService *services.LedgerService,
	eventRepo *database.PaymentEventRepository,
	refundRepo *database.RefundEventRepository,
	logger *logrus.Logger,
) *BookingHandler {
	return &BookingHandler{
		bookingService: bookingService,
		ledgerService:  ledgerService,
		eventRepo:      eventRepo,
		refundRepo:     refundRepo,
		logger:         logger,
	}
}

// CreateBooking handles POST /api/v1/bookings
//
// An Idempotency-Key header makes retries safe: a replay returns the
// original booking with 200 instead of creating a second one.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	var idempotencyKey *string
	if key := strings.TrimSpace(c.GetHeader("Idempotency-Key")); key != "" {
		idempotencyKey = &key
	}

	booking, created, err := h.bookingService.CreateBooking(userCtx.UserID, &req, idempotencyKey)
	if err != nil {
		h.logger.WithError(err).WithField("traveler_id", userCtx.UserID).Warn("Booking creation failed")
		respondDomainError(c, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"booking": booking})
}

// GetBooking handles GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	booking, ok := h.loadVisibleBooking(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// GetLedger handles GET /api/v1/bookings/:id/ledger
//
// Returns the ledger snapshot together with the payment and refund event
// logs, so a client can render the full money history.
func (h *BookingHandler) GetLedger(c *gin.Context) {
	booking, ok := h.loadVisibleBooking(c)
	if !ok {
		return
	}

	entry, err := h.ledgerService.GetState(booking.ID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	payments, err := h.eventRepo.ListByBookingID(booking.ID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	refunds, err := h.refundRepo.ListByBookingID(booking.ID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ledger":            entry,
		"remaining_balance": entry.RemainingBalance(),
		"payment_events":    payments,
		"refund_events":     refunds,
	})
}

// ListBookings handles GET /api/v1/bookings
//
// Returns the caller's bookings; ?as=guide switches to the guide side.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var (
		bookings []models.Booking
		err      error
	)
	if c.Query("as") == middleware.RoleGuide && userCtx.HasRole(middleware.RoleGuide) {
		bookings, err = h.bookingService.ListForGuide(userCtx.UserID)
	} else {
		bookings, err = h.bookingService.ListForTraveler(userCtx.UserID)
	}
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"total":    len(bookings),
	})
}

// ConfirmBooking handles POST /api/v1/bookings/:id/confirm
func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	h.guideTransition(c, h.bookingService.ConfirmBooking)
}

// CompleteBooking handles POST /api/v1/bookings/:id/complete
func (h *BookingHandler) CompleteBooking(c *gin.Context) {
	h.guideTransition(c, h.bookingService.CompleteBooking)
}

func (h *BookingHandler) guideTransition(c *gin.Context, fn func(bookingID, guideID uuid.UUID) (*models.Booking, error)) {
	userCtx := middleware.MustGetUserContext(c)

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid booking ID format",
		})
		return
	}

	booking, err := fn(bookingID, userCtx.UserID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid booking ID format",
		})
		return
	}

	booking, err := h.bookingService.CancelBooking(bookingID, userCtx.UserID, userCtx.HasRole(middleware.RoleAdmin))
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// loadVisibleBooking parses the :id param and enforces that the caller is
// the traveler, the guide, or an admin.
func (h *BookingHandler) loadVisibleBooking(c *gin.Context) (*models.Booking, bool) {
	userCtx := middleware.MustGetUserContext(c)

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid booking ID format",
		})
		return nil, false
	}

	booking, err := h.bookingService.GetBooking(bookingID)
	if err != nil {
		respondDomainError(c, err)
		return nil, false
	}

	if booking.TravelerID != userCtx.UserID && booking.GuideID != userCtx.UserID && !userCtx.HasRole(middleware.RoleAdmin) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: "You don't have access to this booking",
		})
		return nil, false
	}

	return booking, true
}
