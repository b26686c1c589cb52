package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/guidelink/marketplace-backend/internal/middleware"
	"github.com/guidelink/marketplace-backend/internal/models"
	"github.com/guidelink/marketplace-backend/internal/services"
)

// maxProofSize bounds proof uploads at 10 MB
const maxProofSize = 10 << 20

// PaymentHandler handles payment-related HTTP requests
type PaymentHandler struct {
	intentService  *services.PaymentIntentService
	manualService  *services.ManualPaymentService
	bookingService *services.BookingService
	logger         *logrus.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(
	intentService *services.PaymentIntentService,
	manualService *services.ManualPaymentService,
	bookingService *services.BookingService,
	logger *logrus.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		intentService:  intentService,
		manualService:  manualService,
		bookingService: bookingService,
		logger:         logger,
	}
}

// CreateIntent handles POST /api/v1/payments/intent
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	var req models.CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	handle, err := h.intentService.CreateIntent(actorFromContext(c), &req)
	if err != nil {
		h.logger.WithError(err).WithField("booking_id", req.BookingID).Warn("Payment intent creation failed")
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"intent": handle})
}

// Callback handles POST /api/v1/payments/callback
//
// Unauthenticated; trust comes from the HMAC signature, not a session.
// Duplicate deliveries answer 200 so the gateway stops retrying.
func (h *PaymentHandler) Callback(c *gin.Context) {
	var req models.GatewayCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	entry, err := h.intentService.VerifyCallback(&req)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ledger":            entry,
		"remaining_balance": entry.RemainingBalance(),
	})
}

// SubmitCash handles POST /api/v1/payments/cash
//
// Multipart form: booking_id, amount (paise), method (cash|bank_transfer),
// optional proof file. Guide or admin only; a guide can only record payments
// on their own bookings.
func (h *PaymentHandler) SubmitCash(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	bookingID, err := uuid.Parse(c.PostForm("booking_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "booking_id must be a valid UUID",
		})
		return
	}

	amount, err := strconv.ParseInt(c.PostForm("amount"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "amount must be an integer number of paise",
		})
		return
	}

	method := models.PaymentMethod(c.PostForm("method"))
	if method == "" {
		method = models.PaymentMethodCash
	}

	if !userCtx.HasRole(middleware.RoleAdmin) {
		booking, err := h.bookingService.GetBooking(bookingID)
		if err != nil {
			respondDomainError(c, err)
			return
		}
		if booking.GuideID != userCtx.UserID {
			c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "forbidden",
				Message: "You can only record payments for your own bookings",
			})
			return
		}
	}

	var proof *services.ProofUpload
	if fileHeader, err := c.FormFile("proof"); err == nil {
		if fileHeader.Size > maxProofSize {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: "proof file exceeds the 10 MB limit",
			})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: "failed to read proof file",
			})
			return
		}
		defer file.Close()

		proof = &services.ProofUpload{
			Filename:    fileHeader.Filename,
			Reader:      file,
			Size:        fileHeader.Size,
			ContentType: fileHeader.Header.Get("Content-Type"),
		}
	}

	receipt, err := h.manualService.SubmitCashPayment(actorFromContext(c), bookingID, amount, method, proof)
	if err != nil {
		h.logger.WithError(err).WithField("booking_id", bookingID).Warn("Manual payment submission failed")
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"receipt": receipt})
}
