package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/guidelink/marketplace-backend/internal/database"
	"github.com/guidelink/marketplace-backend/internal/middleware"
	"github.com/guidelink/marketplace-backend/internal/models"
	"github.com/guidelink/marketplace-backend/internal/services"
	"github.com/guidelink/marketplace-backend/internal/utils"
)

// ErrorResponse is the standard error body
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// actorFromContext builds the audit actor from the authenticated request
func actorFromContext(c *gin.Context) services.Actor {
	userCtx := middleware.MustGetUserContext(c)
	userAgent := c.Request.UserAgent()
	return services.Actor{
		ID:         userCtx.UserID,
		IPAddress:  c.ClientIP(),
		UserAgent:  userAgent,
		DeviceInfo: utils.ParseUserAgent(userAgent).Summary(),
	}
}

// respondDomainError maps domain errors to HTTP responses. A duplicate event
// is a benign retry and answered 200 with the current ledger state.
func respondDomainError(c *gin.Context, err error) {
	var (
		validationErr *models.ValidationError
		conflictErr   *models.ConflictError
		overpayErr    *models.OverpaymentError
		overrefundErr *models.OverrefundError
		duplicateErr  *models.DuplicateEventError
		verifyErr     *models.VerificationError
		timeoutErr    *models.UploadTimeoutError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: validationErr.Error(),
		})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":            "booking_conflict",
			"message":          conflictErr.Error(),
			"conflictingDates": conflictErr.ConflictingRange,
		})
	case errors.As(err, &overpayErr):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "overpayment",
			Message: overpayErr.Error(),
		})
	case errors.As(err, &overrefundErr):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "overrefund",
			Message: overrefundErr.Error(),
		})
	case errors.As(err, &duplicateErr):
		c.JSON(http.StatusOK, gin.H{
			"message": "event already applied",
			"ledger":  duplicateErr.Entry,
		})
	case errors.As(err, &verifyErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "verification_failed",
			Message: verifyErr.Error(),
		})
	case errors.As(err, &timeoutErr):
		c.JSON(http.StatusRequestTimeout, ErrorResponse{
			Error:   "upload_timeout",
			Message: timeoutErr.Error(),
		})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrPaidBookingCancellation):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "paid_booking",
			Message: err.Error(),
		})
	case errors.Is(err, database.ErrBookingNotFound),
		errors.Is(err, database.ErrLedgerNotFound),
		errors.Is(err, database.ErrPaymentEventNotFound),
		errors.Is(err, database.ErrRefundEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Something went wrong. Please try again.",
		})
	}
}
