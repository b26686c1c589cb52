package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/guidelink/marketplace-backend/internal/models"
	"github.com/guidelink/marketplace-backend/internal/services"
)

// RefundHandler handles refund-related HTTP requests
type RefundHandler struct {
	refundService *services.RefundService
	logger        *logrus.Logger
}

// NewRefundHandler creates a new refund handler
func NewRefundHandler(refundService *services.RefundService, logger *logrus.Logger) *RefundHandler {
	return &RefundHandler{
		refundService: refundService,
		logger:        logger,
	}
}

// IssueRefund handles POST /api/v1/refunds (admin only)
func (h *RefundHandler) IssueRefund(c *gin.Context) {
	var req models.IssueRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	receipt, err := h.refundService.IssueRefund(actorFromContext(c), &req)
	if err != nil {
		h.logger.WithError(err).WithField("booking_id", req.BookingID).Warn("Refund failed")
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"refund": receipt})
}
