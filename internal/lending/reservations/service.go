package reservations

import (
	"context"
	"crypto/rand"
	"log"
	"time"

	"github.com/oklog/ulid/v2"

	"LIBRA-backend/internal/platform/db"
	"LIBRA-backend/internal/platform/notify"
)

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Notifier is the slice of the notification service the queue needs.
// Delivery is best-effort; queue state never depends on it.
type Notifier interface {
	SendBestEffort(ctx context.Context, userID int64, typ, title, content string, relatedID *int64)
}

type queueStore interface {
	BookSummary(ctx context.Context, q db.DBTX, bookID int64) (*BookSummary, error)
	LockQueue(ctx context.Context, q db.DBTX, bookID int64) error
	CountWaiting(ctx context.Context, q db.DBTX, bookID int64) (int, error)
	HasActive(ctx context.Context, q db.DBTX, userID, bookID int64) (bool, error)
	Insert(ctx context.Context, q db.DBTX, r *Reservation) error
	GetForUpdate(ctx context.Context, q db.DBTX, id int64) (*Reservation, error)
	MarkCancelled(ctx context.Context, q db.DBTX, id int64) error
	CompactAfter(ctx context.Context, q db.DBTX, bookID int64, position int) error
	HeadWaiting(ctx context.Context, q db.DBTX, bookID int64) (*Reservation, error)
	MarkNotified(ctx context.Context, q db.DBTX, id int64, notifiedAt, expiresAt time.Time) error
	ListExpiredForUpdate(ctx context.Context, q db.DBTX, now time.Time) ([]Reservation, error)
	MarkExpired(ctx context.Context, q db.DBTX, id int64) error
	Fulfill(ctx context.Context, q db.DBTX, userID, bookID int64) (int64, error)
	ListByUser(ctx context.Context, q db.DBTX, userID int64, limit, offset int) ([]Reservation, int64, error)
}

type Service struct {
	runner   db.TxRunner
	store    queueStore
	notifier Notifier
	clock    Clock
	idgen    IDGen

	reservationDays int
}

func NewService(runner db.TxRunner, cfg db.LendingConfig, notifier Notifier) *Service {
	return &Service{
		runner:          runner,
		store:           NewStore(),
		notifier:        notifier,
		clock:           realClock{},
		idgen:           ulidGen{},
		reservationDays: cfg.ReservationDays,
	}
}

// pendingNote is a notification decided inside a transaction and delivered
// only after commit.
type pendingNote struct {
	userID    int64
	typ       string
	title     string
	content   string
	relatedID int64
}

func (s *Service) flush(ctx context.Context, notes []pendingNote) {
	if s.notifier == nil {
		return
	}
	for _, n := range notes {
		id := n.relatedID
		s.notifier.SendBestEffort(ctx, n.userID, n.typ, n.title, n.content, &id)
	}
}

// Reserve appends the user to the book's queue. Only out-of-stock titles are
// reservable, and a user holds at most one active reservation per book.
func (s *Service) Reserve(ctx context.Context, userID, bookID int64) (*ReservationResponse, error) {
	if bookID <= 0 {
		return nil, newErr(CodeInvalidArgument, "book_id must be > 0")
	}

	var created Reservation
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		book, err := s.store.BookSummary(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if book.Status != 1 {
			return newErr(CodeInvalidArgument, "book is not active")
		}
		if book.AvailableCount > 0 {
			return newErr(CodeStockAvailable, "book has available copies, borrow it directly")
		}

		if err := s.store.LockQueue(ctx, tx, bookID); err != nil {
			return err
		}
		active, err := s.store.HasActive(ctx, tx, userID, bookID)
		if err != nil {
			return err
		}
		if active {
			return newErr(CodeAlreadyReserved, "you already have an active reservation for this book")
		}

		waiting, err := s.store.CountWaiting(ctx, tx, bookID)
		if err != nil {
			return err
		}

		created = Reservation{
			ReservationULID: s.idgen.NewULID(s.clock.Now()),
			UserID:          userID,
			BookID:          bookID,
			Status:          StatusWaiting,
			QueuePosition:   waiting + 1,
		}
		return s.store.Insert(ctx, tx, &created)
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	log.Printf("[INFO] reservation %d created: user=%d book=%d position=%d",
		created.ID, userID, bookID, created.QueuePosition)
	res := toDTO(created)
	return &res, nil
}

// Cancel removes an active reservation. Cancelling a WAITING row compacts the
// positions behind it; cancelling a NOTIFIED row passes the held copy to the
// next waiter.
func (s *Service) Cancel(ctx context.Context, id, actorID int64, isAdmin bool) error {
	var notes []pendingNote
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r, err := s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if r.UserID != actorID && !isAdmin {
			return newErr(CodePermissionDenied, "not your reservation")
		}
		if !r.cancellable() {
			return newErr(CodeNotCancellable, "reservation is not active")
		}

		if err := s.store.LockQueue(ctx, tx, r.BookID); err != nil {
			return err
		}
		wasNotified := r.Status == StatusNotified
		if err := s.store.MarkCancelled(ctx, tx, r.ID); err != nil {
			return err
		}
		if r.Status == StatusWaiting {
			if err := s.store.CompactAfter(ctx, tx, r.BookID, r.QueuePosition); err != nil {
				return err
			}
		}
		if wasNotified {
			note, err := s.notifyNextTx(ctx, tx, r.BookID)
			if err != nil {
				return err
			}
			if note != nil {
				notes = append(notes, *note)
			}
		}
		return nil
	})
	if err != nil {
		return wrapStoreErr(err)
	}

	log.Printf("[INFO] reservation %d cancelled by user %d", id, actorID)
	s.flush(ctx, notes)
	return nil
}

// NotifyNext promotes the head of the book's queue to NOTIFIED, opening its
// priority window. No-op when the queue is empty.
func (s *Service) NotifyNext(ctx context.Context, bookID int64) error {
	var notes []pendingNote
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		if err := s.store.LockQueue(ctx, tx, bookID); err != nil {
			return err
		}
		note, err := s.notifyNextTx(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if note != nil {
			notes = append(notes, *note)
		}
		return nil
	})
	if err != nil {
		return wrapStoreErr(err)
	}
	s.flush(ctx, notes)
	return nil
}

// notifyNextTx must run with the book's queue locked. Promoting the head
// removes it from the WAITING set, so the remaining positions are compacted
// in the same transaction.
func (s *Service) notifyNextTx(ctx context.Context, tx db.DBTX, bookID int64) (*pendingNote, error) {
	head, err := s.store.HeadWaiting(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, nil
	}

	now := s.clock.Now()
	expires := now.AddDate(0, 0, s.reservationDays)
	if err := s.store.MarkNotified(ctx, tx, head.ID, now, expires); err != nil {
		return nil, err
	}
	if err := s.store.CompactAfter(ctx, tx, bookID, head.QueuePosition); err != nil {
		return nil, err
	}

	log.Printf("[INFO] reservation %d notified: user=%d book=%d expires=%s",
		head.ID, head.UserID, bookID, expires.Format(time.RFC3339))
	return &pendingNote{
		userID:    head.UserID,
		typ:       notify.TypeBookAvailable,
		title:     "Reserved book available",
		content:   "A copy of your reserved book is now available. Borrow it before your priority window expires.",
		relatedID: head.ID,
	}, nil
}

// Fulfill marks the user's NOTIFIED reservation for the book as FULFILLED.
// Called after a successful borrow; returns whether a reservation was consumed.
func (s *Service) Fulfill(ctx context.Context, userID, bookID int64) (bool, error) {
	var n int64
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		var err error
		n, err = s.store.Fulfill(ctx, tx, userID, bookID)
		return err
	})
	if err != nil {
		return false, wrapStoreErr(err)
	}
	if n > 0 {
		log.Printf("[INFO] reservation fulfilled: user=%d book=%d", userID, bookID)
	}
	return n > 0, nil
}

// ProcessExpired expires every NOTIFIED reservation whose priority window has
// lapsed and passes each freed copy to the next waiter. Returns the number of
// reservations expired.
func (s *Service) ProcessExpired(ctx context.Context) (int, error) {
	var notes []pendingNote
	var expired int
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		rows, err := s.store.ListExpiredForUpdate(ctx, tx, s.clock.Now())
		if err != nil {
			return err
		}

		books := make(map[int64]struct{})
		for _, r := range rows {
			if err := s.store.MarkExpired(ctx, tx, r.ID); err != nil {
				return err
			}
			notes = append(notes, pendingNote{
				userID:    r.UserID,
				typ:       notify.TypeReservationExpired,
				title:     "Reservation expired",
				content:   "Your priority window for a reserved book has expired.",
				relatedID: r.ID,
			})
			books[r.BookID] = struct{}{}
			expired++
		}

		for bookID := range books {
			if err := s.store.LockQueue(ctx, tx, bookID); err != nil {
				return err
			}
			note, err := s.notifyNextTx(ctx, tx, bookID)
			if err != nil {
				return err
			}
			if note != nil {
				notes = append(notes, *note)
			}
		}
		return nil
	})
	if err != nil {
		return 0, wrapStoreErr(err)
	}

	if expired > 0 {
		log.Printf("[INFO] expired %d reservation(s)", expired)
	}
	s.flush(ctx, notes)
	return expired, nil
}

func (s *Service) MyReservations(ctx context.Context, userID int64, limit, offset int) ([]ReservationResponse, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var rows []Reservation
	var total int64
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		var err error
		rows, total, err = s.store.ListByUser(ctx, tx, userID, limit, offset)
		return err
	})
	if err != nil {
		return nil, 0, wrapStoreErr(err)
	}

	out := make([]ReservationResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, toDTO(r))
	}
	return out, total, nil
}
