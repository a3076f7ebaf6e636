package notify

import "time"

// Notification types mirror the lending triggers that produce them.
const (
	TypeBorrowSuccess      = "BORROW_SUCCESS"
	TypeReturnSuccess      = "RETURN_SUCCESS"
	TypeDueReminder        = "DUE_REMINDER"
	TypeOverdueNotice      = "OVERDUE_NOTICE"
	TypeFineNotice         = "FINE_NOTICE"
	TypeBookAvailable      = "BOOK_AVAILABLE"
	TypeReservationExpired = "RESERVATION_EXPIRED"
	TypeSystem             = "SYSTEM"
)

type Notification struct {
	ID        int64
	UserID    int64
	Type      string
	Title     string
	Content   string
	RelatedID *int64
	IsRead    bool
	CreatedAt time.Time
}

type NotificationResponse struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	RelatedID *int64    `json:"related_id,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

func (n Notification) toDTO() NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Content:   n.Content,
		RelatedID: n.RelatedID,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}
