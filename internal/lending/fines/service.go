package fines

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type Service struct {
	store *Store
	clock Clock
}

func NewService(db *sql.DB) *Service {
	return &Service{store: NewStore(db), clock: realClock{}}
}

// ActiveRule returns the enabled fine rule, creating the default one lazily
// on first use.
func (s *Service) ActiveRule(ctx context.Context) (Rule, error) {
	r, err := s.store.ActiveRule(ctx)
	if err != nil {
		return Rule{}, err
	}
	if r != nil {
		return *r, nil
	}

	def := DefaultRule()
	if err := s.store.InsertRule(ctx, &def); err != nil {
		return Rule{}, err
	}
	log.Printf("[INFO] no fine rule configured, created default: daily=%s max=%s grace=%d",
		def.DailyAmount, def.MaxAmount, def.GraceDays)
	return def, nil
}

// UpdateRule overwrites the active policy (or creates the first row).
// Fines already recorded keep their amounts; only new computations see the
// new rule.
func (s *Service) UpdateRule(ctx context.Context, in UpdateRuleRequest) (RuleResponse, error) {
	daily, err := decimal.NewFromString(in.DailyAmount)
	if err != nil || daily.IsNegative() {
		return RuleResponse{}, ErrInvalid("daily_amount must be a non-negative decimal")
	}
	max, err := decimal.NewFromString(in.MaxAmount)
	if err != nil || max.IsNegative() {
		return RuleResponse{}, ErrInvalid("max_amount must be a non-negative decimal (0 = uncapped)")
	}
	if in.GraceDays < 0 {
		return RuleResponse{}, ErrInvalid("grace_days must be >= 0")
	}

	r, err := s.store.LatestRule(ctx)
	if err != nil {
		return RuleResponse{}, err
	}
	if r == nil {
		r = &Rule{}
	}
	r.DailyAmount = daily
	r.MaxAmount = max
	r.GraceDays = in.GraceDays
	r.Description = in.Description
	r.Enabled = true

	if r.ID == 0 {
		err = s.store.InsertRule(ctx, r)
	} else {
		err = s.store.UpdateRule(ctx, r)
	}
	if err != nil {
		return RuleResponse{}, err
	}

	log.Printf("[INFO] fine rule updated: daily=%s max=%s grace=%d", r.DailyAmount, r.MaxAmount, r.GraceDays)
	return ruleToDTO(*r), nil
}

func (s *Service) CurrentRule(ctx context.Context) (RuleResponse, error) {
	r, err := s.ActiveRule(ctx)
	if err != nil {
		return RuleResponse{}, err
	}
	return ruleToDTO(r), nil
}

// ---- Records ----

func (s *Service) ListRecords(ctx context.Context, f RecordFilter) ([]RecordResponse, int64, error) {
	f = normalizeFilter(f)
	rows, total, err := s.store.ListRecords(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	out := make([]RecordResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, recordToDTO(r))
	}
	return out, total, nil
}

func (s *Service) ListMyRecords(ctx context.Context, userID int64, status *string, limit, offset int) ([]RecordResponse, int64, error) {
	return s.ListRecords(ctx, RecordFilter{UserID: &userID, Status: status, Limit: limit, Offset: offset})
}

func (s *Service) Pay(ctx context.Context, id int64, actorID int64, isAdmin bool) (RecordResponse, error) {
	if id <= 0 {
		return RecordResponse{}, ErrInvalid("fine record id must be > 0")
	}
	r, err := s.store.ExecPay(ctx, id, actorID, isAdmin, s.clock.Now())
	if err != nil {
		return RecordResponse{}, err
	}
	log.Printf("[INFO] fine %d paid by user %d: amount=%s", r.ID, actorID, r.Amount)
	return recordToDTO(*r), nil
}

func (s *Service) Waive(ctx context.Context, id int64, adminID int64, reason string) (RecordResponse, error) {
	if id <= 0 {
		return RecordResponse{}, ErrInvalid("fine record id must be > 0")
	}
	if reason == "" {
		return RecordResponse{}, ErrInvalid("waive reason is required")
	}
	r, err := s.store.ExecWaive(ctx, id, adminID, reason)
	if err != nil {
		return RecordResponse{}, err
	}
	log.Printf("[INFO] fine %d waived by admin %d: amount=%s reason=%q", r.ID, adminID, r.Amount, reason)
	return recordToDTO(*r), nil
}

func (s *Service) UnpaidAmount(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return s.store.SumUnpaidByUser(ctx, userID)
}

func normalizeFilter(f RecordFilter) RecordFilter {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
