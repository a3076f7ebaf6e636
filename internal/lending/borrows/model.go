package borrows

import (
	"time"

	"github.com/shopspring/decimal"
)

// BorrowRecord status values.
const (
	StatusBorrowing = 0
	StatusReturned  = 1
	StatusOverdue   = 2
)

func statusLabel(s int) string {
	switch s {
	case StatusBorrowing:
		return "BORROWING"
	case StatusReturned:
		return "RETURNED"
	case StatusOverdue:
		return "OVERDUE"
	default:
		return "UNKNOWN"
	}
}

type BorrowRecord struct {
	ID          int64
	RecordULID  string
	UserID      int64
	BookID      int64
	BorrowedAt  time.Time
	DueAt       time.Time
	ReturnedAt  *time.Time
	RenewCount  int
	Status      int
	OverdueDays int
	FineAmount  decimal.Decimal
	FinePaid    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// active means the copy is still out: the record counts against the user's
// borrow limit and the book's stock.
func (r *BorrowRecord) active() bool {
	return r.Status == StatusBorrowing || r.Status == StatusOverdue
}
