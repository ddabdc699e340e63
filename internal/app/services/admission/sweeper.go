package admission

import (
	"context"
	"sync"
	"time"

	"github.com/drsui/gas-station/internal/app/system"
	"github.com/drsui/gas-station/pkg/logger"
)

// Sweeper periodically evicts elapsed per-account windows from the ledger.
type Sweeper struct {
	ledger   *Ledger
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*Sweeper)(nil)

// NewSweeper creates a sweeper for the given ledger.
func NewSweeper(ledger *Ledger, interval time.Duration, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("admission-sweeper")
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		ledger:   ledger,
		interval: interval,
		log:      log,
	}
}

func (s *Sweeper) Name() string { return "admission-sweeper" }

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if evicted := s.ledger.SweepExpired(); evicted > 0 {
					s.log.WithField("evicted", evicted).Debug("admission windows swept")
				}
			}
		}
	}()

	s.log.Info("admission sweeper started")
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}
