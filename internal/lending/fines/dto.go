package fines

import "time"

type UpdateRuleRequest struct {
	DailyAmount string `json:"daily_amount" binding:"required"`
	MaxAmount   string `json:"max_amount" binding:"required"` // "0" disables the cap
	GraceDays   int    `json:"grace_days"`
	Description string `json:"description,omitempty"`
}

type RuleResponse struct {
	ID          int64     `json:"id"`
	DailyAmount string    `json:"daily_amount"`
	MaxAmount   string    `json:"max_amount"`
	GraceDays   int       `json:"grace_days"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type WaiveRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type RecordResponse struct {
	ID          int64      `json:"id"`
	RecordULID  string     `json:"record_ulid"`
	UserID      int64      `json:"user_id"`
	BorrowID    int64      `json:"borrow_id"`
	Amount      string     `json:"amount"`
	OverdueDays int        `json:"overdue_days"`
	Status      string     `json:"status"`
	WaiveReason *string    `json:"waive_reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

func ruleToDTO(r Rule) RuleResponse {
	return RuleResponse{
		ID:          r.ID,
		DailyAmount: r.DailyAmount.StringFixed(2),
		MaxAmount:   r.MaxAmount.StringFixed(2),
		GraceDays:   r.GraceDays,
		Description: r.Description,
		UpdatedAt:   r.UpdatedAt,
	}
}

func recordToDTO(r Record) RecordResponse {
	return RecordResponse{
		ID:          r.ID,
		RecordULID:  r.RecordULID,
		UserID:      r.UserID,
		BorrowID:    r.BorrowID,
		Amount:      r.Amount.StringFixed(2),
		OverdueDays: r.OverdueDays,
		Status:      r.Status,
		WaiveReason: r.WaiveReason,
		CreatedAt:   r.CreatedAt,
		PaidAt:      r.PaidAt,
	}
}
