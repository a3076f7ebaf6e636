package fines

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fine record status values.
const (
	StatusUnpaid = "UNPAID"
	StatusPaid   = "PAID"
	StatusWaived = "WAIVED"
)

// Rule is the configurable fine policy. A history of rows may exist but at
// most one is enabled; the lending paths always read the enabled one.
type Rule struct {
	ID          int64
	DailyAmount decimal.Decimal
	MaxAmount   decimal.Decimal // zero = uncapped
	GraceDays   int
	Description string
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Record is one fine attached to one borrow (borrow_id is UNIQUE).
type Record struct {
	ID          int64
	RecordULID  string
	UserID      int64
	BorrowID    int64
	Amount      decimal.Decimal
	OverdueDays int
	Status      string
	WaiveReason *string
	WaivedBy    *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PaidAt      *time.Time
}
