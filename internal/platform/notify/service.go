package notify

import (
	"context"
	"database/sql"
	"errors"
	"log"
)

var ErrNotFound = errors.New("notification not found")

type Service struct {
	store *Store
}

func NewService(db *sql.DB) *Service {
	return &Service{store: NewStore(db)}
}

// Send persists an in-app notification. Callers on the lending paths treat a
// failure here as non-fatal; Send itself never panics and logs nothing, so
// the caller decides whether the error matters.
func (s *Service) Send(ctx context.Context, userID int64, typ, title, content string, relatedID *int64) error {
	n := &Notification{
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Content:   content,
		RelatedID: relatedID,
	}
	return s.store.Insert(ctx, n)
}

// SendBestEffort is Send with the error demoted to a log line. The lending
// services use this after their primary mutation commits.
func (s *Service) SendBestEffort(ctx context.Context, userID int64, typ, title, content string, relatedID *int64) {
	if err := s.Send(ctx, userID, typ, title, content, relatedID); err != nil {
		log.Printf("[WARN] notification send failed (non-critical): user=%d type=%s: %v", userID, typ, err)
	}
}

func (s *Service) ListMy(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]NotificationResponse, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, total, err := s.store.ListByUser(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]NotificationResponse, 0, len(rows))
	for _, n := range rows {
		out = append(out, n.toDTO())
	}
	return out, total, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	return s.store.CountUnread(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, id, userID int64) error {
	n, err := s.store.MarkRead(ctx, id, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	return s.store.MarkAllRead(ctx, userID)
}
