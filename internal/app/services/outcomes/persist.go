package outcomes

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/drsui/gas-station/internal/app/domain/sponsorship"
	"github.com/drsui/gas-station/internal/app/system"
	"github.com/drsui/gas-station/pkg/logger"
)

// Persister appends new records to a JSONL file on an interval so
// ring-evicted history survives restarts. It tracks the last persisted
// Seq and writes each record at most once.
type Persister struct {
	recorder *Recorder
	path     string
	interval time.Duration
	log      *logger.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
	lastSeq  uint64
}

var _ system.Service = (*Persister)(nil)

// NewPersister creates a persister writing to path. A non-positive
// interval defaults to one minute.
func NewPersister(recorder *Recorder, path string, interval time.Duration, log *logger.Logger) *Persister {
	if log == nil {
		log = logger.NewDefault("outcome-persister")
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Persister{
		recorder: recorder,
		path:     path,
		interval: interval,
		log:      log,
	}
}

func (p *Persister) Name() string { return "outcome-persister" }

func (p *Persister) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("creating record directory: %w", err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				// Final sweep so records landed since the last tick
				// are not lost on shutdown.
				if err := p.Sweep(); err != nil {
					p.log.WithError(err).Error("final record sweep failed")
				}
				return
			case <-ticker.C:
				if err := p.Sweep(); err != nil {
					p.log.WithError(err).Error("record sweep failed")
				}
			}
		}
	}()

	p.log.WithField("path", p.path).Info("outcome persister started")
	return nil
}

func (p *Persister) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

// Sweep writes records newer than the persisted cursor to the JSONL
// file and advances the cursor. Pending records are skipped so they are
// written once, with their terminal status.
func (p *Persister) Sweep() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending := p.recorder.Since(p.lastSeq)
	if len(pending) == 0 {
		return nil
	}

	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening record file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	written := 0
	for _, rec := range pending {
		if rec.Status == sponsorship.StatusPending {
			// Still in flight. Stop here so the cursor does not skip
			// past it before resolution.
			break
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encoding record %s: %w", rec.ID, err)
		}
		p.lastSeq = rec.Seq
		written++
	}
	if written > 0 {
		p.log.WithField("written", written).Debug("records persisted")
	}
	return nil
}
