package fines

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"LIBRA-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// ---- Rules ----

const ruleColumns = `id, daily_amount, max_amount, grace_days, description, enabled, created_at, updated_at`

func scanRule(row *sql.Row) (*Rule, error) {
	var r Rule
	var enabledInt int
	err := row.Scan(&r.ID, &r.DailyAmount, &r.MaxAmount, &r.GraceDays, &r.Description, &enabledInt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Enabled = enabledInt != 0
	return &r, nil
}

// ActiveRule returns the enabled rule, or nil when none exists yet.
func (s *Store) ActiveRule(ctx context.Context) (*Rule, error) {
	q := fmt.Sprintf(`SELECT %s FROM fine_rules WHERE enabled = 1 ORDER BY id DESC LIMIT 1`, ruleColumns)
	return scanRule(s.db.QueryRowContext(ctx, q))
}

// LatestRule returns the newest rule row regardless of enabled.
func (s *Store) LatestRule(ctx context.Context) (*Rule, error) {
	q := fmt.Sprintf(`SELECT %s FROM fine_rules ORDER BY id DESC LIMIT 1`, ruleColumns)
	return scanRule(s.db.QueryRowContext(ctx, q))
}

func (s *Store) InsertRule(ctx context.Context, r *Rule) error {
	const q = `
	INSERT INTO fine_rules (daily_amount, max_amount, grace_days, description, enabled, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, NOW(6), NOW(6))`
	res, err := s.db.ExecContext(ctx, q, r.DailyAmount, r.MaxAmount, r.GraceDays, r.Description, boolToInt(r.Enabled))
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	r.ID = id
	return nil
}

func (s *Store) UpdateRule(ctx context.Context, r *Rule) error {
	const q = `
	UPDATE fine_rules
	SET daily_amount = ?, max_amount = ?, grace_days = ?, description = ?, enabled = ?, updated_at = NOW(6)
	WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, r.DailyAmount, r.MaxAmount, r.GraceDays, r.Description, boolToInt(r.Enabled), r.ID)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return ErrNotFound("fine rule not found")
	}
	return nil
}

// ---- Records ----

const recordColumns = `id, record_ulid, user_id, borrow_id, amount, overdue_days, status, waive_reason, waived_by, created_at, updated_at, paid_at`

func scanRecord(scan func(dest ...any) error) (*Record, error) {
	var r Record
	err := scan(&r.ID, &r.RecordULID, &r.UserID, &r.BorrowID, &r.Amount, &r.OverdueDays,
		&r.Status, &r.WaiveReason, &r.WaivedBy, &r.CreatedAt, &r.UpdatedAt, &r.PaidAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetRecord(ctx context.Context, id int64) (*Record, error) {
	q := fmt.Sprintf(`SELECT %s FROM fine_records WHERE id = ?`, recordColumns)
	r, err := scanRecord(s.db.QueryRowContext(ctx, q, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("fine record not found")
	}
	return r, err
}

type RecordFilter struct {
	UserID *int64
	Status *string
	Limit  int
	Offset int
}

func (s *Store) ListRecords(ctx context.Context, f RecordFilter) ([]Record, int64, error) {
	var (
		wheres []string
		args   []any
	)
	if f.UserID != nil {
		wheres = append(wheres, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Status != nil && *f.Status != "" {
		wheres = append(wheres, "status = ?")
		args = append(args, *f.Status)
	}
	where := ""
	if len(wheres) > 0 {
		where = " WHERE " + strings.Join(wheres, " AND ")
	}

	q := fmt.Sprintf(`SELECT %s FROM fine_records%s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		recordColumns, where)
	rows, err := s.db.QueryContext(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fine_records`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ExecPay settles a fine: record → PAID, linked borrow → fine_paid. The fine
// row is locked so two payments cannot both pass the UNPAID check.
func (s *Store) ExecPay(ctx context.Context, id int64, actorID int64, isAdmin bool, now time.Time) (*Record, error) {
	var out *Record
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		q := fmt.Sprintf(`SELECT %s FROM fine_records WHERE id = ? FOR UPDATE`, recordColumns)
		r, err := scanRecord(tx.QueryRowContext(ctx, q, id).Scan)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound("fine record not found")
		}
		if err != nil {
			return err
		}

		if r.UserID != actorID && !isAdmin {
			return ErrPermission("cannot operate on another user's fine")
		}
		if r.Status != StatusUnpaid {
			return ErrConflict("fine is not unpaid")
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE fine_records SET status = ?, paid_at = ?, updated_at = NOW(6) WHERE id = ?`,
			StatusPaid, now, r.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE borrow_records SET fine_paid = 1 WHERE id = ?`, r.BorrowID); err != nil {
			return err
		}

		r.Status = StatusPaid
		r.PaidAt = &now
		out = r
		return nil
	})
	return out, wrapStoreErr(err)
}

// ExecWaive forgives an UNPAID fine. Admin only (enforced by the service);
// the linked borrow is marked settled as well.
func (s *Store) ExecWaive(ctx context.Context, id int64, adminID int64, reason string) (*Record, error) {
	var out *Record
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		q := fmt.Sprintf(`SELECT %s FROM fine_records WHERE id = ? FOR UPDATE`, recordColumns)
		r, err := scanRecord(tx.QueryRowContext(ctx, q, id).Scan)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound("fine record not found")
		}
		if err != nil {
			return err
		}

		if r.Status != StatusUnpaid {
			return ErrConflict("fine is not unpaid")
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE fine_records SET status = ?, waive_reason = ?, waived_by = ?, updated_at = NOW(6) WHERE id = ?`,
			StatusWaived, reason, adminID, r.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE borrow_records SET fine_paid = 1 WHERE id = ?`, r.BorrowID); err != nil {
			return err
		}

		r.Status = StatusWaived
		r.WaiveReason = &reason
		r.WaivedBy = &adminID
		out = r
		return nil
	})
	return out, wrapStoreErr(err)
}

func (s *Store) SumUnpaidByUser(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM fine_records WHERE user_id = ? AND status = ?`,
		userID, StatusUnpaid).Scan(&sum)
	return sum, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
