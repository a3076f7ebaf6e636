package notify

import (
	"context"
	"database/sql"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Insert(ctx context.Context, n *Notification) error {
	const q = `
	INSERT INTO notifications (user_id, type, title, content, related_id, is_read, created_at)
	VALUES (?, ?, ?, ?, ?, 0, NOW(6))`
	res, err := s.db.ExecContext(ctx, q, n.UserID, n.Type, n.Title, n.Content, relatedOrNil(n.RelatedID))
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	n.ID = id
	return nil
}

func (s *Store) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]Notification, int64, error) {
	q := `
	SELECT id, user_id, type, title, content, related_id, is_read, created_at
	FROM notifications
	WHERE user_id = ?`
	cq := `SELECT COUNT(*) FROM notifications WHERE user_id = ?`
	if unreadOnly {
		q += ` AND is_read = 0`
		cq += ` AND is_read = 0`
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var isReadInt int
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Content, &n.RelatedID, &isReadInt, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		n.IsRead = isReadInt != 0
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, cq, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID).Scan(&n)
	return n, err
}

// MarkRead flips one notification; scoped to the owner.
func (s *Store) MarkRead(ctx context.Context, id, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func relatedOrNil(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
