// Package sweeper runs the periodic maintenance passes: flag late loans and
// refresh their fines, remind borrowers of loans coming due, and expire
// lapsed reservation windows.
package sweeper

import (
	"context"
	"log"
	"sync"
	"time"
)

// OverdueSweeper is the slice of the borrow ledger the sweeper drives.
type OverdueSweeper interface {
	SweepOverdue(ctx context.Context) (int, error)
	RemindDueSoon(ctx context.Context) (int, error)
}

// ReservationExpirer is the slice of the reservation queue the sweeper drives.
type ReservationExpirer interface {
	ProcessExpired(ctx context.Context) (int, error)
}

type Sweeper struct {
	borrows      OverdueSweeper
	reservations ReservationExpirer
	interval     time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func New(borrows OverdueSweeper, reservations ReservationExpirer, interval time.Duration) *Sweeper {
	return &Sweeper{
		borrows:      borrows,
		reservations: reservations,
		interval:     interval,
		stop:         make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticker = time.NewTicker(s.interval)
	s.wg.Add(1)
	go s.run()

	log.Printf("[INFO] sweeper started: interval=%v", s.interval)
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil

	log.Printf("[INFO] sweeper stopped")
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	// One pass at startup so a restart never delays overdue detection by a
	// full interval.
	s.RunOnce(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.RunOnce(context.Background())
		case <-s.stop:
			return
		}
	}
}

// RunOnce executes a single sweep pass. Each half runs in its own
// transaction; a failure in one does not block the other.
func (s *Sweeper) RunOnce(ctx context.Context) {
	overdue, err := s.borrows.SweepOverdue(ctx)
	if err != nil {
		log.Printf("[ERROR] overdue sweep failed: %v", err)
	}

	reminded, err := s.borrows.RemindDueSoon(ctx)
	if err != nil {
		log.Printf("[ERROR] due reminder sweep failed: %v", err)
	}

	expired, err := s.reservations.ProcessExpired(ctx)
	if err != nil {
		log.Printf("[ERROR] reservation expiry sweep failed: %v", err)
	}

	if overdue > 0 || reminded > 0 || expired > 0 {
		log.Printf("[INFO] sweep pass: overdue=%d reminded=%d expired_reservations=%d", overdue, reminded, expired)
	}
}
