package services

import "github.com/google/uuid"

// Actor identifies who triggered a monetary operation and from where.
// Recorded on payment audit rows.
type Actor struct {
	ID         uuid.UUID
	IPAddress  string
	UserAgent  string
	DeviceInfo string
}
