package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/guidelink/marketplace-backend/internal/database"
	"github.com/guidelink/marketplace-backend/internal/models"
)

// RangesOverlap reports whether the half-open ranges [s1, e1) and [s2, e2)
// overlap.
func RangesOverlap(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// ConflictChecker decides whether a proposed date range collides with a
// guide's existing active bookings. Existing bookings always win; a new
// booking is never allowed to displace one.
type ConflictChecker struct {
	bookingRepo *database.BookingRepository
	logger      *logrus.Logger
}

// NewConflictChecker creates a new conflict checker
func NewConflictChecker(bookingRepo *database.BookingRepository, logger *logrus.Logger) *ConflictChecker {
	return &ConflictChecker{
		bookingRepo: bookingRepo,
		logger:      logger,
	}
}

// Check returns a ConflictError if any booking for the guide with status
// pending or confirmed overlaps [startDate, endDate). The conflicting range
// reported is the one with the earliest start date. excludeBookingID skips a
// booking, for re-checks against the caller's own record.
//
// Runs inside the caller's transaction so the check shares the caller's
// per-guide serialization point.
func (c *ConflictChecker) Check(tx *sqlx.Tx, guideID uuid.UUID, startDate, endDate time.Time, excludeBookingID *uuid.UUID) error {
	if !endDate.After(startDate) {
		return models.NewValidationError("end_date", "must be after start_date")
	}

	overlapping, err := c.bookingRepo.FindOverlapping(tx, guideID, startDate, endDate, excludeBookingID)
	if err != nil {
		return fmt.Errorf("failed to check booking conflicts: %w", err)
	}

	if len(overlapping) == 0 {
		return nil
	}

	// FindOverlapping orders by start date, so the first row is the one to report
	first := overlapping[0]
	c.logger.WithFields(logrus.Fields{
		"guide_id":         guideID,
		"requested_range":  models.DateRange{Start: startDate, End: endDate}.String(),
		"conflicting_with": first.ID,
	}).Info("Booking conflict detected")

	return &models.ConflictError{
		GuideID:          guideID.String(),
		ConflictingRange: first.Range(),
	}
}
