package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubBorrows struct {
	calls   int32
	reminds int32
	err     error
}

func (s *stubBorrows) SweepOverdue(context.Context) (int, error) {
	atomic.AddInt32(&s.calls, 1)
	return 2, s.err
}

func (s *stubBorrows) RemindDueSoon(context.Context) (int, error) {
	atomic.AddInt32(&s.reminds, 1)
	return 1, nil
}

type stubReservations struct {
	calls int32
}

func (s *stubReservations) ProcessExpired(context.Context) (int, error) {
	atomic.AddInt32(&s.calls, 1)
	return 1, nil
}

func TestRunOnceDrivesBothPasses(t *testing.T) {
	b := &stubBorrows{}
	r := &stubReservations{}
	s := New(b, r, time.Hour)

	s.RunOnce(context.Background())

	assert.EqualValues(t, 1, atomic.LoadInt32(&b.calls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&b.reminds))
	assert.EqualValues(t, 1, atomic.LoadInt32(&r.calls))
}

func TestRunOnceContinuesAfterOverdueFailure(t *testing.T) {
	b := &stubBorrows{err: errors.New("boom")}
	r := &stubReservations{}
	s := New(b, r, time.Hour)

	s.RunOnce(context.Background())

	assert.EqualValues(t, 1, atomic.LoadInt32(&r.calls), "reservation pass runs even when the overdue pass fails")
}

func TestStartStopRunsInitialPass(t *testing.T) {
	b := &stubBorrows{}
	r := &stubReservations{}
	s := New(b, r, time.Hour)

	s.Start()
	s.Stop()

	assert.EqualValues(t, 1, atomic.LoadInt32(&b.calls), "startup pass runs without waiting a full interval")
	assert.EqualValues(t, 1, atomic.LoadInt32(&r.calls))

	// Stop is safe to call again.
	s.Stop()
}
