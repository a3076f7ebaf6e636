package books

import "time"

// Book status values as stored in books.status.
const (
	StatusDisabled = 0
	StatusActive   = 1
)

type Book struct {
	ID             int64
	Title          string
	Author         string
	ISBN           string
	TotalCount     int
	AvailableCount int
	Status         int
	CreatedAt      time.Time
}

func (b *Book) IsActive() bool { return b.Status == StatusActive }
