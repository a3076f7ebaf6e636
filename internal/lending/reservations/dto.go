package reservations

import "time"

type ReserveRequest struct {
	BookID int64 `json:"book_id" binding:"required,gt=0"`
}

type ReservationResponse struct {
	ID              int64      `json:"id"`
	ReservationULID string     `json:"reservation_ulid"`
	UserID          int64      `json:"user_id"`
	BookID          int64      `json:"book_id"`
	Status          string     `json:"status"`
	QueuePosition   int        `json:"queue_position,omitempty"`
	NotifiedAt      *time.Time `json:"notified_at,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toDTO(r Reservation) ReservationResponse {
	res := ReservationResponse{
		ID:              r.ID,
		ReservationULID: r.ReservationULID,
		UserID:          r.UserID,
		BookID:          r.BookID,
		Status:          r.Status,
		NotifiedAt:      r.NotifiedAt,
		ExpiresAt:       r.ExpiresAt,
		CreatedAt:       r.CreatedAt,
	}
	if r.Status == StatusWaiting {
		res.QueuePosition = r.QueuePosition
	}
	return res
}
