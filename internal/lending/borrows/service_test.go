package borrows

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LIBRA-backend/internal/lending/books"
	"LIBRA-backend/internal/lending/fines"
	"LIBRA-backend/internal/platform/db"
	"LIBRA-backend/internal/platform/notify"
)

// serialRunner stands in for the real transaction runner. A mutex gives the
// same effect the row locks give in MySQL: conflicting operations execute one
// after the other.
type serialRunner struct{ mu sync.Mutex }

func (r *serialRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, nil)
}

type fakeStore struct {
	users    map[int64]bool
	bookRows map[int64]*books.Book
	records  map[int64]*BorrowRecord
	fineRecs map[int64]*FineSummary // keyed by borrow id
	reminded map[int64]bool         // borrow ids with a delivered reminder row
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[int64]bool{},
		bookRows: map[int64]*books.Book{},
		records:  map[int64]*BorrowRecord{},
		fineRecs: map[int64]*FineSummary{},
		reminded: map[int64]bool{},
	}
}

func (f *fakeStore) addUser(id int64) { f.users[id] = true }

func (f *fakeStore) addBook(id int64, total, available int) {
	f.bookRows[id] = &books.Book{
		ID: id, Title: fmt.Sprintf("book-%d", id),
		TotalCount: total, AvailableCount: available, Status: books.StatusActive,
	}
}

func (f *fakeStore) LockUser(_ context.Context, _ db.DBTX, userID int64) error {
	if !f.users[userID] {
		return newErr(CodeNotFound, "user not found")
	}
	return nil
}

func (f *fakeStore) GetBook(_ context.Context, _ db.DBTX, bookID int64) (*books.Book, error) {
	b, ok := f.bookRows[bookID]
	if !ok {
		return nil, newErr(CodeBookUnavailable, "book not found")
	}
	return b, nil
}

func (f *fakeStore) DecrementStock(_ context.Context, _ db.DBTX, bookID int64) (bool, error) {
	b, ok := f.bookRows[bookID]
	if !ok || !b.IsActive() || b.AvailableCount <= 0 {
		return false, nil
	}
	b.AvailableCount--
	return true, nil
}

func (f *fakeStore) IncrementStock(_ context.Context, _ db.DBTX, bookID int64) (bool, error) {
	b, ok := f.bookRows[bookID]
	if !ok || b.AvailableCount >= b.TotalCount {
		return false, nil
	}
	b.AvailableCount++
	return true, nil
}

func (f *fakeStore) CountActive(_ context.Context, _ db.DBTX, userID int64) (int, error) {
	n := 0
	for _, r := range f.records {
		if r.UserID == userID && r.active() {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) HasActive(_ context.Context, _ db.DBTX, userID, bookID int64) (bool, error) {
	for _, r := range f.records {
		if r.UserID == userID && r.BookID == bookID && r.active() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) Insert(_ context.Context, _ db.DBTX, r *BorrowRecord) error {
	f.nextID++
	r.ID = f.nextID
	cp := *r
	f.records[r.ID] = &cp
	return nil
}

func (f *fakeStore) GetForUpdate(_ context.Context, _ db.DBTX, id int64) (*BorrowRecord, error) {
	r, ok := f.records[id]
	if !ok {
		return nil, newErr(CodeNotFound, "borrow record not found")
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) Get(ctx context.Context, q db.DBTX, id int64) (*BorrowRecord, error) {
	return f.GetForUpdate(ctx, q, id)
}

func (f *fakeStore) Update(_ context.Context, _ db.DBTX, r *BorrowRecord) error {
	cp := *r
	f.records[r.ID] = &cp
	return nil
}

func (f *fakeStore) UpsertUnpaidFine(_ context.Context, _ db.DBTX, _ string, _, borrowID int64, amount decimal.Decimal, _ int) error {
	if cur, ok := f.fineRecs[borrowID]; ok {
		if cur.Status == fines.StatusUnpaid {
			cur.Amount = amount
		}
		return nil
	}
	f.nextID++
	f.fineRecs[borrowID] = &FineSummary{ID: f.nextID, Amount: amount, Status: fines.StatusUnpaid}
	return nil
}

func (f *fakeStore) FineByBorrow(_ context.Context, _ db.DBTX, borrowID int64) (*FineSummary, error) {
	fr, ok := f.fineRecs[borrowID]
	if !ok {
		return nil, nil
	}
	cp := *fr
	return &cp, nil
}

func (f *fakeStore) MarkFinePaid(_ context.Context, _ db.DBTX, fineID int64, _ time.Time) error {
	for _, fr := range f.fineRecs {
		if fr.ID == fineID && fr.Status == fines.StatusUnpaid {
			fr.Status = fines.StatusPaid
		}
	}
	return nil
}

func (f *fakeStore) ListDueForUpdate(_ context.Context, _ db.DBTX, now time.Time) ([]BorrowRecord, error) {
	var out []BorrowRecord
	for _, r := range f.records {
		if r.active() && r.DueAt.Before(now) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListDueSoon(_ context.Context, _ db.DBTX, from, to time.Time) ([]BorrowRecord, error) {
	var out []BorrowRecord
	for _, r := range f.records {
		if r.Status == StatusBorrowing && r.DueAt.After(from) && !r.DueAt.After(to) && !f.reminded[r.ID] {
			f.reminded[r.ID] = true // the delivered notification row dedupes in production
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) List(_ context.Context, _ db.DBTX, flt RecordFilter) ([]BorrowRecord, int64, error) {
	var out []BorrowRecord
	for _, r := range f.records {
		if flt.UserID != nil && r.UserID != *flt.UserID {
			continue
		}
		if flt.BookID != nil && r.BookID != *flt.BookID {
			continue
		}
		if flt.Status != nil && r.Status != *flt.Status {
			continue
		}
		out = append(out, *r)
	}
	return out, int64(len(out)), nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type seqGen struct{ n int }

func (g *seqGen) NewULID(time.Time) string {
	g.n++
	return fmt.Sprintf("01TESTULID%016d", g.n)
}

type stubRules struct{ rule fines.Rule }

func (s stubRules) ActiveRule(context.Context) (fines.Rule, error) { return s.rule, nil }

type fakeHooks struct {
	mu         sync.Mutex
	fulfilled  []int64 // book ids
	notifyNext []int64 // book ids
}

func (h *fakeHooks) Fulfill(_ context.Context, _, bookID int64) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fulfilled = append(h.fulfilled, bookID)
	return false, nil
}

func (h *fakeHooks) NotifyNext(_ context.Context, bookID int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifyNext = append(h.notifyNext, bookID)
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	types []string
}

func (n *fakeNotifier) SendBestEffort(_ context.Context, _ int64, typ, _, _ string, _ *int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.types = append(n.types, typ)
}

func (n *fakeNotifier) sent(typ string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, t := range n.types {
		if t == typ {
			c++
		}
	}
	return c
}

func testConfig() db.LendingConfig {
	return db.LendingConfig{
		MaxBorrowCount:    5,
		MinBorrowDays:     1,
		MaxBorrowDays:     90,
		DefaultBorrowDays: 30,
		MaxRenewCount:     2,
		RenewDays:         30,
		ReservationDays:   3,
		DueReminderDays:   3,
	}
}

func newTestService(fs *fakeStore, clk *testClock) (*Service, *fakeHooks, *fakeNotifier) {
	hooks := &fakeHooks{}
	notes := &fakeNotifier{}
	svc := &Service{
		runner:       &serialRunner{},
		store:        fs,
		rules:        stubRules{rule: fines.DefaultRule()},
		reservations: hooks,
		notifier:     notes,
		clock:        clk,
		idgen:        &seqGen{},
		cfg:          testConfig(),
	}
	return svc, hooks, notes
}

func baseTime() time.Time {
	return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func TestBorrowValidation(t *testing.T) {
	fs := newFakeStore()
	fs.addUser(1)
	fs.addBook(10, 2, 2)
	svc, _, _ := newTestService(fs, &testClock{now: baseTime()})
	ctx := context.Background()

	_, err := svc.Borrow(ctx, 1, 0, 30)
	assertCode(t, err, CodeInvalidArgument)

	_, err = svc.Borrow(ctx, 1, 10, 91)
	assertCode(t, err, CodeInvalidDays)

	_, err = svc.Borrow(ctx, 1, 10, -1)
	assertCode(t, err, CodeInvalidDays)

	res, err := svc.Borrow(ctx, 1, 10, 0) // zero picks the default
	require.NoError(t, err)
	assert.Equal(t, baseTime().AddDate(0, 0, 30), res.DueAt)
}

func TestBorrowUnknownBookAndUser(t *testing.T) {
	fs := newFakeStore()
	fs.addUser(1)
	svc, _, _ := newTestService(fs, &testClock{now: baseTime()})
	ctx := context.Background()

	_, err := svc.Borrow(ctx, 1, 99, 30)
	assertCode(t, err, CodeBookUnavailable)

	_, err = svc.Borrow(ctx, 42, 99, 30)
	assertCode(t, err, CodeNotFound)
}

func TestBorrowDuplicatePrevented(t *testing.T) {
	fs := newFakeStore()
	fs.addUser(1)
	fs.addBook(10, 3, 3)
	svc, _, _ := newTestService(fs, &testClock{now: baseTime()})
	ctx := context.Background()

	_, err := svc.Borrow(ctx, 1, 10, 30)
	require.NoError(t, err)

	_, err = svc.Borrow(ctx, 1, 10, 30)
	assertCode(t, err, CodeAlreadyBorrowed)
	assert.Equal(t, 2, fs.bookRows[10].AvailableCount, "failed borrow must not touch stock")
}

func TestBorrowLimit(t *testing.T) {
	fs := newFakeStore()
	fs.addUser(1)
	for b := int64(1); b <= 6; b++ {
		fs.addBook(b, 1, 1)
	}
	svc, _, _ := newTestService(fs, &testClock{now: baseTime()})
	ctx := context.Background()

	for b := int64(1); b <= 5; b++ {
		_, err := svc.Borrow(ctx, 1, b, 30)
		require.NoError(t, err)
	}
	_, err := svc.Borrow(ctx, 1, 6, 30)
	assertCode(t, err, CodeLimitExceeded)
}

func TestStockRaceExactlyKSucceed(t *testing.T) {
	const (
		copies  = 3
		callers = 20
	)
	fs := newFakeStore()
	fs.addBook(10, copies, copies)
	for u := int64(1); u <= callers; u++ {
		fs.addUser(u)
	}
	svc, _, _ := newTestService(fs, &testClock{now: baseTime()})

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for u := int64(1); u <= callers; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, errs[userID-1] = svc.Borrow(context.Background(), userID, 10, 30)
		}(u)
	}
	wg.Wait()

	succeeded, exhausted := 0, 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var api *APIError
		require.ErrorAs(t, err, &api)
		require.Equal(t, CodeStockExhausted, api.Code)
		require.Contains(t, api.Message, "available=", "message carries the current count")
		exhausted++
	}
	assert.Equal(t, copies, succeeded)
	assert.Equal(t, callers-copies, exhausted)
	assert.Equal(t, 0, fs.bookRows[10].AvailableCount)
}

func TestConcurrentDuplicateBorrowSingleWinner(t *testing.T) {
	const callers = 10
	fs := newFakeStore()
	fs.addUser(1)
	fs.addBook(10, 5, 5)
	svc, _, _ := newTestService(fs, &testClock{now: baseTime()})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Borrow(context.Background(), 1, 10, 30); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 4, fs.bookRows[10].AvailableCount)
}

func TestReturnIdempotent(t *testing.T) {
	fs := newFakeStore()
	fs.addUser(1)
	fs.addBook(10, 1, 1)
	svc, hooks, _ := newTestService(fs, &testClock{now: baseTime()})
	ctx := context.Background()

	res, err := svc.Borrow(ctx, 1, 10, 30)
	require.NoError(t, err)
	assert.Equal(t, 0, fs.bookRows[10].AvailableCount)

	ret, err := svc.Return(ctx, res.ID, 1, false)
	require.NoError(t, err)
	assert.Equal(t, "RETURNED", ret.Status)
	assert.Equal(t, 1, fs.bookRows[10].AvailableCount)

	_, err = svc.Return(ctx, res.ID, 1, false)
	assertCode(t, err, CodeAlreadyReturned)
	assert.Equal(t, 1, fs.bookRows[10].AvailableCount, "stock must increment exactly once")

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	assert.Equal(t, []int64{10}, hooks.notifyNext, "freed copy passes to the queue once")
}

func TestReturnPermission(t *testing.T) {
	fs := newFakeStore()
	fs.addUser(1)
	fs.addUser(2)
	fs.addBook(10, 1, 1)
	svc, _, _ := newTestService(fs, &testClock{now: baseTime()})
	ctx := context.Background()

	res, err := svc.Borrow(ctx, 1, 10, 30)
	require.NoError(t, err)

	_, err = svc.Return(ctx, res.ID, 2, false)
	assertCode(t, err, CodePermissionDenied)

	_, err = svc.Return(ctx, res.ID, 2, true) // admin may return on behalf
	require.NoError(t, err)
}

func TestReturnLateCreatesFine(t *testing.T) {
	fs := newFakeStore()
	fs.addUser(1)
	fs.addBook(10, 1, 1)
	clk := &testClock{now: baseTime()}
	svc, _, notes := newTestService(fs, clk)
	ctx := context.Background()

	res, err := svc.Borrow(ctx, 1, 10, 30)
	require.NoError(t, err)

	clk.advance(35 * 24 * time.Hour) // 5 days past due

	ret, err := svc.Return(ctx, res.ID, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 5, ret.OverdueDays)
	assert.Equal(t, "2.50", ret.FineAmount)
	assert.False(t, ret.FinePaid)

	fr := fs.fineRecs[res.ID]
	require.NotNil(t, fr)
	assert.True(t, fr.Amount.Equal(decimal.RequireFromString("2.50")))
	assert.Equal(t, fines.StatusUnpaid, fr.Status)

	assert.Equal(t, 1, notes.sent(notify.TypeFineNotice))
	assert.Equal(t, 1, notes.sent(notify.TypeReturnSuccess))
}

func TestRenewRules(t *testing.T) {
	fs := newFakeStore()
	fs.addUser(1)
	fs.addBook(10, 1, 1)
	clk := &testClock{now: baseTime()}
	svc, _, _ := newTestService(fs, clk)
	ctx := context.Background()

	res, err := svc.Borrow(ctx, 1, 10, 30)
	require.NoError(t, err)

	r1, err := svc.Renew(ctx, res.ID, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 1, r1.RenewCount)
	assert.Equal(t, res.DueAt.AddDate(0, 0, 30), r1.DueAt)

	r2, err := svc.Renew(ctx, res.ID, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 2, r2.RenewCount)

	_, err = svc.Renew(ctx, res.ID, 1, false)
	assertCode(t, err, CodeLimitExceeded)
}

func TestRenewOverdueNotAllowed(t *testing.T) {
	fs := newFakeStore()
	fs.addUser(1)
	fs.addBook(10, 1, 1)
	clk := &testClock{now: baseTime()}
	svc, _, _ := newTestService(fs, clk)
	ctx := context.Background()

	res, err := svc.Borrow(ctx, 1, 10, 30)
	require.NoError(t, err)

	clk.advance(31 * 24 * time.Hour)
	_, err = svc.Renew(ctx, res.ID, 1, false)
	assertCode(t, err, CodeOverdueNotAllowed)
}

func TestPayFine(t *testing.T) {
	fs := newFakeStore()
	fs.addUser(1)
	fs.addBook(10, 1, 1)
	clk := &testClock{now: baseTime()}
	svc, _, _ := newTestService(fs, clk)
	ctx := context.Background()

	res, err := svc.Borrow(ctx, 1, 10, 30)
	require.NoError(t, err)

	// No fine while the loan is on time.
	_, err = svc.PayFine(ctx, res.ID, 1, false)
	assertCode(t, err, CodeNoFine)

	clk.advance(35 * 24 * time.Hour)
	_, err = svc.Return(ctx, res.ID, 1, false)
	require.NoError(t, err)

	paid, err := svc.PayFine(ctx, res.ID, 1, false)
	require.NoError(t, err)
	assert.True(t, paid.FinePaid)
	assert.Equal(t, fines.StatusPaid, fs.fineRecs[res.ID].Status)

	_, err = svc.PayFine(ctx, res.ID, 1, false)
	assertCode(t, err, CodeAlreadyPaid)
}

func TestSweepOverdue(t *testing.T) {
	fs := newFakeStore()
	fs.addUser(1)
	fs.addUser(2)
	fs.addBook(10, 2, 2)
	fs.addBook(11, 1, 1)
	clk := &testClock{now: baseTime()}
	svc, _, notes := newTestService(fs, clk)
	ctx := context.Background()

	late, err := svc.Borrow(ctx, 1, 10, 10)
	require.NoError(t, err)
	_, err = svc.Borrow(ctx, 2, 11, 60)
	require.NoError(t, err)

	clk.advance(14 * 24 * time.Hour) // first loan 4 days late, second on time

	n, err := svc.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := svc.Get(ctx, late.ID, 1, false)
	require.NoError(t, err)
	assert.Equal(t, "OVERDUE", got.Status)
	assert.Equal(t, 4, got.OverdueDays)
	assert.Equal(t, "2.00", got.FineAmount)
	assert.Equal(t, 1, notes.sent(notify.TypeOverdueNotice))

	// A later pass refreshes the figures without re-notifying.
	clk.advance(2 * 24 * time.Hour)
	n, err = svc.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = svc.Get(ctx, late.ID, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 6, got.OverdueDays)
	assert.Equal(t, "3.00", got.FineAmount)
	assert.Equal(t, 1, notes.sent(notify.TypeOverdueNotice))
}

func TestRemindDueSoon(t *testing.T) {
	fs := newFakeStore()
	fs.addUser(1)
	fs.addUser(2)
	fs.addBook(10, 1, 1)
	fs.addBook(11, 1, 1)
	clk := &testClock{now: baseTime()}
	svc, _, notes := newTestService(fs, clk)
	ctx := context.Background()

	soon, err := svc.Borrow(ctx, 1, 10, 2) // due within the 3-day window
	require.NoError(t, err)
	_, err = svc.Borrow(ctx, 2, 11, 30) // not due for a month
	require.NoError(t, err)

	n, err := svc.RemindDueSoon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, notes.sent(notify.TypeDueReminder))

	// The same loan is not reminded twice.
	n, err = svc.RemindDueSoon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, notes.sent(notify.TypeDueReminder))

	// A returned loan never reminds.
	_, err = svc.Return(ctx, soon.ID, 1, false)
	require.NoError(t, err)
	n, err = svc.RemindDueSoon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBorrowTriggersFulfillAndNotice(t *testing.T) {
	fs := newFakeStore()
	fs.addUser(1)
	fs.addBook(10, 1, 1)
	svc, hooks, notes := newTestService(fs, &testClock{now: baseTime()})

	_, err := svc.Borrow(context.Background(), 1, 10, 30)
	require.NoError(t, err)

	hooks.mu.Lock()
	assert.Equal(t, []int64{10}, hooks.fulfilled)
	hooks.mu.Unlock()
	assert.Equal(t, 1, notes.sent(notify.TypeBorrowSuccess))
}

func assertCode(t *testing.T, err error, want Code) {
	t.Helper()
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, want, api.Code)
	assert.GreaterOrEqual(t, ToHTTPStatus(err), 400)
}
