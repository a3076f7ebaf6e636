package reservations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"LIBRA-backend/internal/platform/db"
)

// BookSummary is the slice of the book row the queue logic needs.
type BookSummary struct {
	Title          string
	AvailableCount int
	Status         int
}

type Store struct{}

func NewStore() *Store { return &Store{} }

const reservationColumns = `id, reservation_ulid, user_id, book_id, status, queue_position, notified_at, expires_at, created_at`

func scanReservation(scan func(dest ...any) error) (*Reservation, error) {
	var r Reservation
	err := scan(&r.ID, &r.ReservationULID, &r.UserID, &r.BookID, &r.Status, &r.QueuePosition,
		&r.NotifiedAt, &r.ExpiresAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) BookSummary(ctx context.Context, q db.DBTX, bookID int64) (*BookSummary, error) {
	var b BookSummary
	err := q.QueryRowContext(ctx,
		`SELECT title, available_count, status FROM books WHERE id = ?`, bookID).
		Scan(&b.Title, &b.AvailableCount, &b.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newErr(CodeBookNotFound, "book not found")
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// LockQueue serializes queue maintenance per book by locking the book's
// WAITING rows (an index-range lock), deliberately NOT the book row itself so
// the stock primitives never wait behind queue work.
func (s *Store) LockQueue(ctx context.Context, q db.DBTX, bookID int64) error {
	rows, err := q.QueryContext(ctx,
		`SELECT id FROM reservations WHERE book_id = ? AND status = ? FOR UPDATE`, bookID, StatusWaiting)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) CountWaiting(ctx context.Context, q db.DBTX, bookID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE book_id = ? AND status = ?`, bookID, StatusWaiting).Scan(&n)
	return n, err
}

func (s *Store) HasActive(ctx context.Context, q db.DBTX, userID, bookID int64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `
	SELECT 1 FROM reservations
	WHERE user_id = ? AND book_id = ? AND status IN (?, ?)
	LIMIT 1`, userID, bookID, StatusWaiting, StatusNotified).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Insert(ctx context.Context, q db.DBTX, r *Reservation) error {
	const stmt = `
	INSERT INTO reservations (reservation_ulid, user_id, book_id, status, queue_position, created_at)
	VALUES (?, ?, ?, ?, ?, NOW(6))`
	res, err := q.ExecContext(ctx, stmt, r.ReservationULID, r.UserID, r.BookID, r.Status, r.QueuePosition)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	r.ID = id
	return nil
}

func (s *Store) GetForUpdate(ctx context.Context, q db.DBTX, id int64) (*Reservation, error) {
	stmt := fmt.Sprintf(`SELECT %s FROM reservations WHERE id = ? FOR UPDATE`, reservationColumns)
	r, err := scanReservation(q.QueryRowContext(ctx, stmt, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newErr(CodeNotFound, "reservation not found")
	}
	return r, err
}

func (s *Store) MarkCancelled(ctx context.Context, q db.DBTX, id int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE reservations SET status = ? WHERE id = ?`, StatusCancelled, id)
	return err
}

// CompactAfter closes the gap left by the WAITING row that held position.
// Must run in the same transaction as the status change that removed it.
func (s *Store) CompactAfter(ctx context.Context, q db.DBTX, bookID int64, position int) error {
	_, err := q.ExecContext(ctx, `
	UPDATE reservations
	SET queue_position = queue_position - 1
	WHERE book_id = ? AND status = ? AND queue_position > ?`,
		bookID, StatusWaiting, position)
	return err
}

// HeadWaiting returns the lowest-position WAITING reservation, locked, or nil
// when the queue is empty.
func (s *Store) HeadWaiting(ctx context.Context, q db.DBTX, bookID int64) (*Reservation, error) {
	stmt := fmt.Sprintf(`
	SELECT %s FROM reservations
	WHERE book_id = ? AND status = ?
	ORDER BY queue_position ASC
	LIMIT 1
	FOR UPDATE`, reservationColumns)
	r, err := scanReservation(q.QueryRowContext(ctx, stmt, bookID, StatusWaiting).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *Store) MarkNotified(ctx context.Context, q db.DBTX, id int64, notifiedAt, expiresAt time.Time) error {
	_, err := q.ExecContext(ctx, `
	UPDATE reservations
	SET status = ?, notified_at = ?, expires_at = ?
	WHERE id = ?`, StatusNotified, notifiedAt, expiresAt, id)
	return err
}

// ListExpiredForUpdate locks and returns every NOTIFIED reservation whose
// priority window has lapsed.
func (s *Store) ListExpiredForUpdate(ctx context.Context, q db.DBTX, now time.Time) ([]Reservation, error) {
	stmt := fmt.Sprintf(`
	SELECT %s FROM reservations
	WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ?
	ORDER BY expires_at ASC
	FOR UPDATE`, reservationColumns)
	rows, err := q.QueryContext(ctx, stmt, StatusNotified, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		r, err := scanReservation(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) MarkExpired(ctx context.Context, q db.DBTX, id int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE reservations SET status = ? WHERE id = ? AND status = ?`,
		StatusExpired, id, StatusNotified)
	return err
}

// Fulfill flips the user's NOTIFIED reservation for the book, if any.
// Zero rows affected is the common case and not an error.
func (s *Store) Fulfill(ctx context.Context, q db.DBTX, userID, bookID int64) (int64, error) {
	res, err := q.ExecContext(ctx, `
	UPDATE reservations
	SET status = ?
	WHERE user_id = ? AND book_id = ? AND status = ?`,
		StatusFulfilled, userID, bookID, StatusNotified)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) ListByUser(ctx context.Context, q db.DBTX, userID int64, limit, offset int) ([]Reservation, int64, error) {
	stmt := fmt.Sprintf(`
	SELECT %s FROM reservations
	WHERE user_id = ?
	ORDER BY created_at DESC, id DESC
	LIMIT ? OFFSET ?`, reservationColumns)
	rows, err := q.QueryContext(ctx, stmt, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		r, err := scanReservation(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
