package reservations

import "time"

// Reservation status values.
const (
	StatusWaiting   = "WAITING"
	StatusNotified  = "NOTIFIED"
	StatusFulfilled = "FULFILLED"
	StatusCancelled = "CANCELLED"
	StatusExpired   = "EXPIRED"
)

// Reservation is one row in the per-book FIFO queue. Among WAITING rows of a
// book, QueuePosition is dense and 1-based; cancel and notify compact it in
// the same transaction that removes a row from the WAITING set.
type Reservation struct {
	ID              int64
	ReservationULID string
	UserID          int64
	BookID          int64
	Status          string
	QueuePosition   int
	NotifiedAt      *time.Time
	ExpiresAt       *time.Time
	CreatedAt       time.Time
}

func (r *Reservation) isActive() bool {
	return r.Status == StatusWaiting || r.Status == StatusNotified
}

func (r *Reservation) cancellable() bool {
	return r.Status == StatusWaiting || r.Status == StatusNotified
}
