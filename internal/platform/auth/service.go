package auth

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
	ErrAuthFailed    = errors.New("authentication failed")
)

type Service struct {
	store  UserStore
	secret []byte
}

func NewService(db *sql.DB, secret []byte) *Service {
	return &Service{store: NewStore(db), secret: secret}
}

type AuthService interface {
	Login(ctx context.Context, username, password string) (string, error)
	Register(ctx context.Context, username, password, role string) (int64, error)
	Disable(ctx context.Context, id int64) error
}

func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	u, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if u == nil || u.IsDisabled {
		return "", ErrAuthFailed
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", ErrAuthFailed
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  strconv.FormatInt(u.ID, 10),
		"name": u.Username,
		"role": u.Role,
		"exp":  time.Now().Add(24 * time.Hour).Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

func (s *Service) Register(ctx context.Context, username, password, role string) (int64, error) {
	exists, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	if exists != nil {
		return 0, ErrAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}

	u := &User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return 0, err
	}
	return u.ID, nil
}

func (s *Service) Disable(ctx context.Context, id int64) error {
	n, err := s.store.Disable(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
