package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
	IsDisabled   bool
	CreatedAt    time.Time
}

type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, u *User) error
	Disable(ctx context.Context, id int64) (int64, error)
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) UserStore {
	return &Store{db: db}
}

func (s *Store) GetByUsername(ctx context.Context, username string) (*User, error) {
	const q = `
SELECT id, username, password_hash, role, is_disabled, created_at
FROM users
WHERE username = ?
LIMIT 1`
	return s.scanOne(s.db.QueryRowContext(ctx, q, username))
}

func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	const q = `
SELECT id, username, password_hash, role, is_disabled, created_at
FROM users
WHERE id = ?
LIMIT 1`
	return s.scanOne(s.db.QueryRowContext(ctx, q, id))
}

func (s *Store) scanOne(row *sql.Row) (*User, error) {
	var u User
	var isDisabledInt int
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &isDisabledInt, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if isDisabledInt != 0 {
		u.IsDisabled = true
	}
	return &u, nil
}

func (s *Store) Create(ctx context.Context, u *User) error {
	const q = `
INSERT INTO users (username, password_hash, role, is_disabled, created_at)
VALUES (?, ?, ?, 0, NOW(6))`
	res, err := s.db.ExecContext(ctx, q, u.Username, u.PasswordHash, u.Role)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	u.ID = id
	return nil
}

func (s *Store) Disable(ctx context.Context, id int64) (int64, error) {
	const q = `UPDATE users SET is_disabled = 1 WHERE id = ? AND is_disabled = 0`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
