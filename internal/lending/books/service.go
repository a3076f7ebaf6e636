package books

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ===== Error model (same shape as the other lending packages) =====

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string      { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrMissing(msg string) *APIError  { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return 400
		case CodeNotFound:
			return 404
		default:
			return 500
		}
	}
	return 500
}

// ===== Service =====

type Service struct {
	store *Store
}

func NewService(db *sql.DB) *Service {
	return &Service{store: NewStore(db)}
}

type AvailabilityResponse struct {
	BookID         int64  `json:"book_id"`
	Title          string `json:"title"`
	TotalCount     int    `json:"total_count"`
	AvailableCount int    `json:"available_count"`
	Status         int    `json:"status"`
	WaitingCount   int    `json:"waiting_count"`
}

// Availability reports the lending-relevant view of a book: copy counts plus
// the reservation queue length.
func (s *Service) Availability(ctx context.Context, bookID int64) (AvailabilityResponse, error) {
	if bookID <= 0 {
		return AvailabilityResponse{}, ErrInvalid("book id must be > 0")
	}

	b, err := s.store.Get(ctx, bookID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AvailabilityResponse{}, ErrMissing("book not found")
		}
		return AvailabilityResponse{}, err
	}

	waiting, err := s.store.CountWaiting(ctx, bookID)
	if err != nil {
		return AvailabilityResponse{}, err
	}

	return AvailabilityResponse{
		BookID:         b.ID,
		Title:          b.Title,
		TotalCount:     b.TotalCount,
		AvailableCount: b.AvailableCount,
		Status:         b.Status,
		WaitingCount:   waiting,
	}, nil
}
