package borrows

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"LIBRA-backend/internal/lending/books"
	"LIBRA-backend/internal/lending/fines"
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

// RuleSource yields the currently active fine policy.
type RuleSource interface {
	ActiveRule(ctx context.Context) (fines.Rule, error)
}

// ReservationHooks are the queue entry points the ledger drives after a
// commit: consume the borrower's NOTIFIED reservation, or pass a freed copy
// to the next waiter. Both are best-effort from the ledger's point of view.
type ReservationHooks interface {
	Fulfill(ctx context.Context, userID, bookID int64) (bool, error)
	NotifyNext(ctx context.Context, bookID int64) error
}

type Notifier interface {
	SendBestEffort(ctx context.Context, userID int64, typ, title, content string, relatedID *int64)
}

type borrowStore interface {
	LockUser(ctx context.Context, q db.DBTX, userID int64) error
	GetBook(ctx context.Context, q db.DBTX, bookID int64) (*books.Book, error)
	DecrementStock(ctx context.Context, q db.DBTX, bookID int64) (bool, error)
	IncrementStock(ctx context.Context, q db.DBTX, bookID int64) (bool, error)
	CountActive(ctx context.Context, q db.DBTX, userID int64) (int, error)
	HasActive(ctx context.Context, q db.DBTX, userID, bookID int64) (bool, error)
	Insert(ctx context.Context, q db.DBTX, r *BorrowRecord) error
	GetForUpdate(ctx context.Context, q db.DBTX, id int64) (*BorrowRecord, error)
	Get(ctx context.Context, q db.DBTX, id int64) (*BorrowRecord, error)
	Update(ctx context.Context, q db.DBTX, r *BorrowRecord) error
	UpsertUnpaidFine(ctx context.Context, q db.DBTX, ulid string, userID, borrowID int64, amount decimal.Decimal, overdueDays int) error
	FineByBorrow(ctx context.Context, q db.DBTX, borrowID int64) (*FineSummary, error)
	MarkFinePaid(ctx context.Context, q db.DBTX, fineID int64, paidAt time.Time) error
	ListDueForUpdate(ctx context.Context, q db.DBTX, now time.Time) ([]BorrowRecord, error)
	ListDueSoon(ctx context.Context, q db.DBTX, from, to time.Time) ([]BorrowRecord, error)
	List(ctx context.Context, q db.DBTX, f RecordFilter) ([]BorrowRecord, int64, error)
}

type Service struct {
	runner       db.TxRunner
	store        borrowStore
	rules        RuleSource
	reservations ReservationHooks
	notifier     Notifier
	clock        Clock
	idgen        IDGen
	cfg          db.LendingConfig
}

func NewService(runner db.TxRunner, cfg db.LendingConfig, rules RuleSource, reservations ReservationHooks, notifier Notifier) *Service {
	return &Service{
		runner:       runner,
		store:        NewStore(),
		rules:        rules,
		reservations: reservations,
		notifier:     notifier,
		clock:        realClock{},
		idgen:        ulidGen{},
		cfg:          cfg,
	}
}

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

// Borrow takes one copy of the book for the user. The whole check-and-take
// runs in one transaction: the user row lock serializes the duplicate and
// limit checks, the stock decrement is a single conditional update.
func (s *Service) Borrow(ctx context.Context, userID, bookID int64, days int) (*BorrowResponse, error) {
	if bookID <= 0 {
		return nil, newErr(CodeInvalidArgument, "book_id must be > 0")
	}
	if days == 0 {
		days = s.cfg.DefaultBorrowDays
	}
	if days < s.cfg.MinBorrowDays || days > s.cfg.MaxBorrowDays {
		return nil, newErr(CodeInvalidDays,
			fmt.Sprintf("borrow days must be between %d and %d", s.cfg.MinBorrowDays, s.cfg.MaxBorrowDays))
	}

	var created BorrowRecord
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		if err := s.store.LockUser(ctx, tx, userID); err != nil {
			return err
		}

		book, err := s.store.GetBook(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if !book.IsActive() {
			return newErr(CodeBookUnavailable, "book is not available for lending")
		}

		dup, err := s.store.HasActive(ctx, tx, userID, bookID)
		if err != nil {
			return err
		}
		if dup {
			return newErr(CodeAlreadyBorrowed, "you already have this book on loan")
		}

		active, err := s.store.CountActive(ctx, tx, userID)
		if err != nil {
			return err
		}
		if active >= s.cfg.MaxBorrowCount {
			return newErr(CodeLimitExceeded,
				fmt.Sprintf("borrow limit of %d reached", s.cfg.MaxBorrowCount))
		}

		ok, err := s.store.DecrementStock(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if !ok {
			// Re-read so the message carries the count the caller raced against.
			avail := 0
			if cur, rerr := s.store.GetBook(ctx, tx, bookID); rerr == nil {
				avail = cur.AvailableCount
			}
			return newErr(CodeStockExhausted,
				fmt.Sprintf("no copies available (available=%d)", avail))
		}

		now := s.clock.Now()
		created = BorrowRecord{
			RecordULID: s.idgen.NewULID(now),
			UserID:     userID,
			BookID:     bookID,
			BorrowedAt: now,
			DueAt:      now.AddDate(0, 0, days),
			Status:     StatusBorrowing,
		}
		return s.store.Insert(ctx, tx, &created)
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	log.Printf("[INFO] borrow %d created: user=%d book=%d due=%s",
		created.ID, userID, bookID, created.DueAt.Format(time.RFC3339))

	// The borrower may have held a NOTIFIED reservation for this book.
	if s.reservations != nil {
		if _, err := s.reservations.Fulfill(ctx, userID, bookID); err != nil {
			log.Printf("[WARN] reservation fulfill failed (non-critical): user=%d book=%d: %v", userID, bookID, err)
		}
	}
	s.flush(ctx, []pendingNote{{
		userID:    userID,
		typ:       notify.TypeBorrowSuccess,
		title:     "Borrow confirmed",
		content:   fmt.Sprintf("Your loan is due on %s.", created.DueAt.Format("2006-01-02")),
		relatedID: created.ID,
	}})

	res := toDTO(created)
	return &res, nil
}

// Return closes the loan. A late return freezes overdue days and the fine at
// the moment of return; the stock increment is deliberately non-fatal so a
// stock accounting glitch can never trap a user with an un-returnable book.
func (s *Service) Return(ctx context.Context, id, actorID int64, isAdmin bool) (*BorrowResponse, error) {
	var (
		updated    BorrowRecord
		stockFreed bool
		notes      []pendingNote
	)
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		stockFreed = false
		notes = notes[:0]

		r, err := s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if r.UserID != actorID && !isAdmin {
			return newErr(CodePermissionDenied, "not your borrow record")
		}
		if r.Status == StatusReturned {
			return newErr(CodeAlreadyReturned, "book already returned")
		}

		now := s.clock.Now()
		r.OverdueDays = OverdueDays(r.DueAt, now)
		if r.OverdueDays > 0 {
			rule, err := s.rules.ActiveRule(ctx)
			if err != nil {
				return err
			}
			r.FineAmount = fines.Calculate(r.OverdueDays, rule)
			if r.FineAmount.IsPositive() {
				fineULID := s.idgen.NewULID(now)
				if err := s.store.UpsertUnpaidFine(ctx, tx, fineULID, r.UserID, r.ID, r.FineAmount, r.OverdueDays); err != nil {
					return err
				}
				notes = append(notes, pendingNote{
					userID:    r.UserID,
					typ:       notify.TypeFineNotice,
					title:     "Overdue fine",
					content:   fmt.Sprintf("Returned %d day(s) late, fine %s.", r.OverdueDays, r.FineAmount.StringFixed(2)),
					relatedID: r.ID,
				})
			}
		}

		r.Status = StatusReturned
		r.ReturnedAt = &now
		if err := s.store.Update(ctx, tx, r); err != nil {
			return err
		}

		ok, err := s.store.IncrementStock(ctx, tx, r.BookID)
		if err != nil {
			return err
		}
		if !ok {
			log.Printf("[WARN] stock increment failed on return: record=%d book=%d", r.ID, r.BookID)
		}
		stockFreed = ok

		updated = *r
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	log.Printf("[INFO] borrow %d returned by user %d: overdue_days=%d fine=%s",
		updated.ID, actorID, updated.OverdueDays, updated.FineAmount.StringFixed(2))

	if stockFreed && s.reservations != nil {
		if err := s.reservations.NotifyNext(ctx, updated.BookID); err != nil {
			log.Printf("[WARN] reservation notify failed (non-critical): book=%d: %v", updated.BookID, err)
		}
	}
	notes = append(notes, pendingNote{
		userID:    updated.UserID,
		typ:       notify.TypeReturnSuccess,
		title:     "Return confirmed",
		content:   "Thanks, your book is back on the shelf.",
		relatedID: updated.ID,
	})
	s.flush(ctx, notes)

	res := toDTO(updated)
	return &res, nil
}

// Renew extends the due date. Overdue loans must be returned, not renewed.
func (s *Service) Renew(ctx context.Context, id, actorID int64, isAdmin bool) (*BorrowResponse, error) {
	var updated BorrowRecord
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r, err := s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if r.UserID != actorID && !isAdmin {
			return newErr(CodePermissionDenied, "not your borrow record")
		}
		if r.Status == StatusReturned {
			return newErr(CodeAlreadyReturned, "book already returned")
		}
		now := s.clock.Now()
		if r.Status == StatusOverdue || now.After(r.DueAt) {
			return newErr(CodeOverdueNotAllowed, "overdue loans cannot be renewed")
		}
		if r.RenewCount >= s.cfg.MaxRenewCount {
			return newErr(CodeLimitExceeded,
				fmt.Sprintf("renew limit of %d reached", s.cfg.MaxRenewCount))
		}

		r.DueAt = r.DueAt.AddDate(0, 0, s.cfg.RenewDays)
		r.RenewCount++
		if err := s.store.Update(ctx, tx, r); err != nil {
			return err
		}
		updated = *r
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	log.Printf("[INFO] borrow %d renewed by user %d: renew_count=%d due=%s",
		updated.ID, actorID, updated.RenewCount, updated.DueAt.Format(time.RFC3339))
	res := toDTO(updated)
	return &res, nil
}

// PayFine settles the loan's fine, marking both the borrow record and the
// linked fine record in one transaction.
func (s *Service) PayFine(ctx context.Context, id, actorID int64, isAdmin bool) (*BorrowResponse, error) {
	var updated BorrowRecord
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r, err := s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if r.UserID != actorID && !isAdmin {
			return newErr(CodePermissionDenied, "not your borrow record")
		}

		f, err := s.store.FineByBorrow(ctx, tx, r.ID)
		if err != nil {
			return err
		}
		if f == nil || !r.FineAmount.IsPositive() {
			return newErr(CodeNoFine, "no fine on this loan")
		}
		if r.FinePaid || f.Status != fines.StatusUnpaid {
			return newErr(CodeAlreadyPaid, "fine already settled")
		}

		if err := s.store.MarkFinePaid(ctx, tx, f.ID, s.clock.Now()); err != nil {
			return err
		}
		r.FinePaid = true
		if err := s.store.Update(ctx, tx, r); err != nil {
			return err
		}
		updated = *r
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	log.Printf("[INFO] fine on borrow %d paid by user %d: amount=%s",
		updated.ID, actorID, updated.FineAmount.StringFixed(2))
	s.flush(ctx, []pendingNote{{
		userID:    updated.UserID,
		typ:       notify.TypeFineNotice,
		title:     "Fine paid",
		content:   fmt.Sprintf("Payment of %s received.", updated.FineAmount.StringFixed(2)),
		relatedID: updated.ID,
	}})
	res := toDTO(updated)
	return &res, nil
}

// SweepOverdue re-evaluates every active loan past its due date: flags it
// OVERDUE and refreshes overdue days and the accrued fine while the fine is
// still unpaid. Returns the number of records processed.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	rule, err := s.rules.ActiveRule(ctx)
	if err != nil {
		return 0, err
	}

	var (
		processed int
		notes     []pendingNote
	)
	err = s.runner.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		processed = 0
		notes = notes[:0]

		now := s.clock.Now()
		rows, err := s.store.ListDueForUpdate(ctx, tx, now)
		if err != nil {
			return err
		}

		for i := range rows {
			r := &rows[i]
			newlyOverdue := r.Status == StatusBorrowing

			r.Status = StatusOverdue
			r.OverdueDays = OverdueDays(r.DueAt, now)
			r.FineAmount = fines.Calculate(r.OverdueDays, rule)
			if err := s.store.Update(ctx, tx, r); err != nil {
				return err
			}
			if r.FineAmount.IsPositive() && !r.FinePaid {
				fineULID := s.idgen.NewULID(now)
				if err := s.store.UpsertUnpaidFine(ctx, tx, fineULID, r.UserID, r.ID, r.FineAmount, r.OverdueDays); err != nil {
					return err
				}
			}
			if newlyOverdue {
				notes = append(notes, pendingNote{
					userID:    r.UserID,
					typ:       notify.TypeOverdueNotice,
					title:     "Loan overdue",
					content:   fmt.Sprintf("Your loan is %d day(s) overdue. Please return the book.", r.OverdueDays),
					relatedID: r.ID,
				})
			}
			processed++
		}
		return nil
	})
	if err != nil {
		return 0, wrapStoreErr(err)
	}

	if processed > 0 {
		log.Printf("[INFO] overdue sweep processed %d record(s), %d newly flagged", processed, len(notes))
	}
	s.flush(ctx, notes)
	return processed, nil
}

// RemindDueSoon sends DUE_REMINDER for loans coming due within the
// configured window. A loan is reminded once; the delivered notification row
// is the dedupe marker. Returns the number of reminders sent.
func (s *Service) RemindDueSoon(ctx context.Context) (int, error) {
	var notes []pendingNote
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		notes = notes[:0]

		now := s.clock.Now()
		rows, err := s.store.ListDueSoon(ctx, tx, now, now.AddDate(0, 0, s.cfg.DueReminderDays))
		if err != nil {
			return err
		}
		for _, r := range rows {
			notes = append(notes, pendingNote{
				userID:    r.UserID,
				typ:       notify.TypeDueReminder,
				title:     "Loan due soon",
				content:   fmt.Sprintf("Your loan is due on %s. Return or renew it in time.", r.DueAt.Format("2006-01-02")),
				relatedID: r.ID,
			})
		}
		return nil
	})
	if err != nil {
		return 0, wrapStoreErr(err)
	}

	if len(notes) > 0 {
		log.Printf("[INFO] sent %d due reminder(s)", len(notes))
	}
	s.flush(ctx, notes)
	return len(notes), nil
}

func (s *Service) Get(ctx context.Context, id, actorID int64, isAdmin bool) (*BorrowResponse, error) {
	var rec *BorrowRecord
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		var err error
		rec, err = s.store.Get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if rec.UserID != actorID && !isAdmin {
		return nil, newErr(CodePermissionDenied, "not your borrow record")
	}
	res := toDTO(*rec)
	return &res, nil
}

func (s *Service) List(ctx context.Context, f RecordFilter) ([]BorrowResponse, int64, error) {
	f = normalizeFilter(f)
	var (
		rows  []BorrowRecord
		total int64
	)
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		var err error
		rows, total, err = s.store.List(ctx, tx, f)
		return err
	})
	if err != nil {
		return nil, 0, wrapStoreErr(err)
	}

	out := make([]BorrowResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, toDTO(r))
	}
	return out, total, nil
}

func (s *Service) MyBorrows(ctx context.Context, userID int64, status *int, limit, offset int) ([]BorrowResponse, int64, error) {
	return s.List(ctx, RecordFilter{UserID: &userID, Status: status, Limit: limit, Offset: offset})
}

func normalizeFilter(f RecordFilter) RecordFilter {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
