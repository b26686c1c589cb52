package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the status of a booking
// Matches PostgreSQL ENUM: booking_status
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"   // Created, awaiting guide acceptance
	BookingStatusConfirmed BookingStatus = "confirmed" // Guide accepted
	BookingStatusCompleted BookingStatus = "completed" // Trip finished
	BookingStatusCancelled BookingStatus = "cancelled" // Cancelled before completion
)

// ActiveBookingStatuses are the statuses that block a guide's calendar.
// Cancelled bookings never block.
var ActiveBookingStatuses = []BookingStatus{BookingStatusPending, BookingStatusConfirmed}

// DateRange is a half-open date range [Start, End)
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two half-open ranges overlap
func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
}

// Booking represents a reserved engagement between a traveler and a guide for
// a date range at an agreed price
type Booking struct {
	ID              uuid.UUID     `json:"id"`
	TravelerID      uuid.UUID     `json:"traveler_id"`
	GuideID         uuid.UUID     `json:"guide_id"`
	StartDate       time.Time     `json:"start_date"`
	EndDate         time.Time     `json:"end_date"`   // exclusive
	AmountDue       int64         `json:"amount_due"` // paise
	PickupLocation  string        `json:"pickup_location"`
	DropoffLocation string        `json:"dropoff_location"`
	Activities      []string      `json:"activities"`
	Status          BookingStatus `json:"status"`
	IdempotencyKey  *string       `json:"-"`
	CancelledAt     *time.Time    `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Range returns the booking's date range
func (b *Booking) Range() DateRange {
	return DateRange{Start: b.StartDate, End: b.EndDate}
}

// CreateBookingRequest represents a booking creation request
type CreateBookingRequest struct {
	GuideID         string   `json:"guide_id" binding:"required,uuid"`
	StartDate       string   `json:"start_date" binding:"required"` // YYYY-MM-DD
	EndDate         string   `json:"end_date" binding:"required"`   // YYYY-MM-DD
	Budget          int64    `json:"budget" binding:"required"`     // paise
	PickupLocation  string   `json:"pickup_location" binding:"required"`
	DropoffLocation string   `json:"dropoff_location" binding:"required"`
	Activities      []string `json:"activities"`
}

// Validate validates date sanity and budget beyond what binding tags cover.
// Dates are interpreted at UTC midnight; "today" is the current UTC date.
func (r *CreateBookingRequest) Validate(now time.Time) (start, end time.Time, err error) {
	start, err = time.ParseInLocation("2006-01-02", r.StartDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, NewValidationError("start_date", "must be a valid date (YYYY-MM-DD)")
	}

	end, err = time.ParseInLocation("2006-01-02", r.EndDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, NewValidationError("end_date", "must be a valid date (YYYY-MM-DD)")
	}

	if !end.After(start) {
		return time.Time{}, time.Time{}, NewValidationError("end_date", "must be after start_date")
	}

	today := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	if start.Before(today) {
		return time.Time{}, time.Time{}, NewValidationError("start_date", "must not be in the past")
	}

	if r.Budget < 1 {
		return time.Time{}, time.Time{}, NewValidationError("budget", "must be at least 1")
	}

	return start, end, nil
}
