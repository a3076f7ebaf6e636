package borrows

import "time"

type BorrowRequest struct {
	BookID int64 `json:"book_id" binding:"required,gt=0"`
	Days   int   `json:"days"` // 0 means the configured default
}

type BorrowResponse struct {
	ID          int64      `json:"id"`
	RecordULID  string     `json:"record_ulid"`
	UserID      int64      `json:"user_id"`
	BookID      int64      `json:"book_id"`
	BorrowedAt  time.Time  `json:"borrowed_at"`
	DueAt       time.Time  `json:"due_at"`
	ReturnedAt  *time.Time `json:"returned_at,omitempty"`
	RenewCount  int        `json:"renew_count"`
	Status      string     `json:"status"`
	OverdueDays int        `json:"overdue_days"`
	FineAmount  string     `json:"fine_amount"`
	FinePaid    bool       `json:"fine_paid"`
}

func toDTO(r BorrowRecord) BorrowResponse {
	return BorrowResponse{
		ID:          r.ID,
		RecordULID:  r.RecordULID,
		UserID:      r.UserID,
		BookID:      r.BookID,
		BorrowedAt:  r.BorrowedAt,
		DueAt:       r.DueAt,
		ReturnedAt:  r.ReturnedAt,
		RenewCount:  r.RenewCount,
		Status:      statusLabel(r.Status),
		OverdueDays: r.OverdueDays,
		FineAmount:  r.FineAmount.StringFixed(2),
		FinePaid:    r.FinePaid,
	}
}
