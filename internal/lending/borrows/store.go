package borrows

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"LIBRA-backend/internal/lending/books"
	"LIBRA-backend/internal/lending/fines"
	"LIBRA-backend/internal/platform/db"
	"LIBRA-backend/internal/platform/notify"
)

type Store struct{}

func NewStore() *Store { return &Store{} }

const recordColumns = `id, record_ulid, user_id, book_id, borrowed_at, due_at, returned_at,
	renew_count, status, overdue_days, fine_amount, fine_paid, created_at, updated_at`

func scanRecord(scan func(dest ...any) error) (*BorrowRecord, error) {
	var r BorrowRecord
	err := scan(&r.ID, &r.RecordULID, &r.UserID, &r.BookID, &r.BorrowedAt, &r.DueAt, &r.ReturnedAt,
		&r.RenewCount, &r.Status, &r.OverdueDays, &r.FineAmount, &r.FinePaid, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LockUser pins the borrower's row for the duration of the transaction. The
// duplicate-borrow check races on the absence of a record, which no record
// row lock can cover, so concurrent borrows by the same user serialize here.
func (s *Store) LockUser(ctx context.Context, q db.DBTX, userID int64) error {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM users WHERE id = ? FOR UPDATE`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return newErr(CodeNotFound, "user not found")
	}
	return err
}

func (s *Store) GetBook(ctx context.Context, q db.DBTX, bookID int64) (*books.Book, error) {
	b, err := books.GetTx(ctx, q, bookID)
	if errors.Is(err, books.ErrNotFound) {
		return nil, newErr(CodeBookUnavailable, "book not found")
	}
	return b, err
}

func (s *Store) DecrementStock(ctx context.Context, q db.DBTX, bookID int64) (bool, error) {
	return books.TryDecrement(ctx, q, bookID)
}

func (s *Store) IncrementStock(ctx context.Context, q db.DBTX, bookID int64) (bool, error) {
	return books.TryIncrement(ctx, q, bookID)
}

func (s *Store) CountActive(ctx context.Context, q db.DBTX, userID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM borrow_records
	WHERE user_id = ? AND status IN (?, ?)`, userID, StatusBorrowing, StatusOverdue).Scan(&n)
	return n, err
}

func (s *Store) HasActive(ctx context.Context, q db.DBTX, userID, bookID int64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `
	SELECT 1 FROM borrow_records
	WHERE user_id = ? AND book_id = ? AND status IN (?, ?)
	LIMIT 1`, userID, bookID, StatusBorrowing, StatusOverdue).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Insert(ctx context.Context, q db.DBTX, r *BorrowRecord) error {
	const stmt = `
	INSERT INTO borrow_records
	(record_ulid, user_id, book_id, borrowed_at, due_at, renew_count, status,
	 overdue_days, fine_amount, fine_paid, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, 0, ?, 0, 0, 0, NOW(6), NOW(6))`
	res, err := q.ExecContext(ctx, stmt,
		r.RecordULID, r.UserID, r.BookID, r.BorrowedAt, r.DueAt, r.Status)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	r.ID = id
	return nil
}

func (s *Store) GetForUpdate(ctx context.Context, q db.DBTX, id int64) (*BorrowRecord, error) {
	stmt := fmt.Sprintf(`SELECT %s FROM borrow_records WHERE id = ? FOR UPDATE`, recordColumns)
	r, err := scanRecord(q.QueryRowContext(ctx, stmt, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newErr(CodeNotFound, "borrow record not found")
	}
	return r, err
}

func (s *Store) Get(ctx context.Context, q db.DBTX, id int64) (*BorrowRecord, error) {
	stmt := fmt.Sprintf(`SELECT %s FROM borrow_records WHERE id = ?`, recordColumns)
	r, err := scanRecord(q.QueryRowContext(ctx, stmt, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newErr(CodeNotFound, "borrow record not found")
	}
	return r, err
}

// Update writes every mutable column. Callers hold the row lock from
// GetForUpdate.
func (s *Store) Update(ctx context.Context, q db.DBTX, r *BorrowRecord) error {
	const stmt = `
	UPDATE borrow_records
	SET due_at = ?, returned_at = ?, renew_count = ?, status = ?,
	    overdue_days = ?, fine_amount = ?, fine_paid = ?, updated_at = NOW(6)
	WHERE id = ?`
	_, err := q.ExecContext(ctx, stmt,
		r.DueAt, r.ReturnedAt, r.RenewCount, r.Status,
		r.OverdueDays, r.FineAmount, r.FinePaid, r.ID)
	return err
}

// UpsertUnpaidFine creates the borrow's fine record on first accrual and
// refreshes amount/days on later sweeps, but only while the record is still
// UNPAID. borrow_id is UNIQUE in fine_records.
func (s *Store) UpsertUnpaidFine(ctx context.Context, q db.DBTX, ulid string, userID, borrowID int64, amount decimal.Decimal, overdueDays int) error {
	const stmt = `
	INSERT INTO fine_records
	(record_ulid, user_id, borrow_id, amount, overdue_days, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, NOW(6), NOW(6))
	ON DUPLICATE KEY UPDATE
	  amount       = IF(status = ?, VALUES(amount), amount),
	  overdue_days = IF(status = ?, VALUES(overdue_days), overdue_days),
	  updated_at   = IF(status = ?, NOW(6), updated_at)`
	_, err := q.ExecContext(ctx, stmt,
		ulid, userID, borrowID, amount, overdueDays, fines.StatusUnpaid,
		fines.StatusUnpaid, fines.StatusUnpaid, fines.StatusUnpaid)
	return err
}

// FineSummary is the slice of the fine record the pay path needs.
type FineSummary struct {
	ID     int64
	Amount decimal.Decimal
	Status string
}

func (s *Store) FineByBorrow(ctx context.Context, q db.DBTX, borrowID int64) (*FineSummary, error) {
	var f FineSummary
	err := q.QueryRowContext(ctx, `
	SELECT id, amount, status FROM fine_records WHERE borrow_id = ? FOR UPDATE`, borrowID).
		Scan(&f.ID, &f.Amount, &f.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Store) MarkFinePaid(ctx context.Context, q db.DBTX, fineID int64, paidAt time.Time) error {
	_, err := q.ExecContext(ctx, `
	UPDATE fine_records
	SET status = ?, paid_at = ?, updated_at = NOW(6)
	WHERE id = ? AND status = ?`, fines.StatusPaid, paidAt, fineID, fines.StatusUnpaid)
	return err
}

// ListDueForUpdate locks and returns every active record past its due date.
// OVERDUE rows are included so the sweep keeps their fine figures current.
func (s *Store) ListDueForUpdate(ctx context.Context, q db.DBTX, now time.Time) ([]BorrowRecord, error) {
	stmt := fmt.Sprintf(`
	SELECT %s FROM borrow_records
	WHERE status IN (?, ?) AND due_at < ?
	ORDER BY due_at ASC
	FOR UPDATE`, recordColumns)
	rows, err := q.QueryContext(ctx, stmt, StatusBorrowing, StatusOverdue, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BorrowRecord
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListDueSoon returns BORROWING records coming due within (from, to] that
// have not been reminded yet. The delivered reminder row in notifications is
// the dedupe marker, so a failed delivery is retried on the next pass.
func (s *Store) ListDueSoon(ctx context.Context, q db.DBTX, from, to time.Time) ([]BorrowRecord, error) {
	stmt := fmt.Sprintf(`
	SELECT %s FROM borrow_records
	WHERE status = ? AND due_at > ? AND due_at <= ?
	  AND NOT EXISTS (
	    SELECT 1 FROM notifications n
	    WHERE n.related_id = borrow_records.id AND n.type = ?
	  )
	ORDER BY due_at ASC`, recordColumns)
	rows, err := q.QueryContext(ctx, stmt, StatusBorrowing, from, to, notify.TypeDueReminder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BorrowRecord
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// RecordFilter narrows List. Zero-value fields are ignored.
type RecordFilter struct {
	UserID *int64
	BookID *int64
	Status *int
	Limit  int
	Offset int
}

func (s *Store) List(ctx context.Context, q db.DBTX, f RecordFilter) ([]BorrowRecord, int64, error) {
	where := " WHERE 1=1"
	args := []any{}
	if f.UserID != nil {
		where += " AND user_id = ?"
		args = append(args, *f.UserID)
	}
	if f.BookID != nil {
		where += " AND book_id = ?"
		args = append(args, *f.BookID)
	}
	if f.Status != nil {
		where += " AND status = ?"
		args = append(args, *f.Status)
	}

	var total int64
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM borrow_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	stmt := fmt.Sprintf("SELECT %s FROM borrow_records%s ORDER BY borrowed_at DESC, id DESC LIMIT ? OFFSET ?",
		recordColumns, where)
	rows, err := q.QueryContext(ctx, stmt, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []BorrowRecord
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}
