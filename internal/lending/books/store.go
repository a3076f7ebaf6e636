package books

import (
	"context"
	"database/sql"
	"errors"

	"LIBRA-backend/internal/platform/db"
)

// ErrNotFound is returned by lookups when the book does not exist. Callers
// translate it into their own error codes.
var ErrNotFound = errors.New("book not found")

// ---- Stock ledger primitives ----
//
// availableCount is written ONLY through TryDecrement / TryIncrement. Both
// are single conditional UPDATEs, so under N concurrent callers exactly
// min(N, available) decrements succeed and the rest observe false with no
// row lock held.

// TryDecrement takes one copy if the book is ACTIVE and a copy is available.
func TryDecrement(ctx context.Context, q db.DBTX, bookID int64) (bool, error) {
	const stmt = `
	UPDATE books
	SET available_count = available_count - 1
	WHERE id = ? AND status = ? AND available_count > 0`
	res, err := q.ExecContext(ctx, stmt, bookID, StatusActive)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff == 1, nil
}

// TryIncrement puts one copy back unless the shelf is already full.
func TryIncrement(ctx context.Context, q db.DBTX, bookID int64) (bool, error) {
	const stmt = `
	UPDATE books
	SET available_count = available_count + 1
	WHERE id = ? AND available_count < total_count`
	res, err := q.ExecContext(ctx, stmt, bookID)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff == 1, nil
}

// GetTx loads a book on the caller's transaction (plain read, no lock).
func GetTx(ctx context.Context, q db.DBTX, bookID int64) (*Book, error) {
	const stmt = `
	SELECT id, title, author, isbn, total_count, available_count, status, created_at
	FROM books
	WHERE id = ?`
	var b Book
	err := q.QueryRowContext(ctx, stmt, bookID).Scan(
		&b.ID, &b.Title, &b.Author, &b.ISBN, &b.TotalCount, &b.AvailableCount, &b.Status, &b.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ---- Store (reads outside a lending transaction) ----

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Get(ctx context.Context, bookID int64) (*Book, error) {
	return GetTx(ctx, s.db, bookID)
}

// CountWaiting returns the length of the book's WAITING reservation queue.
func (s *Store) CountWaiting(ctx context.Context, bookID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE book_id = ? AND status = 'WAITING'`, bookID).Scan(&n)
	return n, err
}
