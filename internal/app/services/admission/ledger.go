// Package admission enforces the global and per-account sponsorship quotas.
//
// Quota accounting uses fixed windows, not sliding ones: a burst across a
// window boundary can briefly double the apparent rate. That approximation is
// accepted and matches the documented policy.
//
// Admission is reserve-and-rollback: Reserve atomically takes one slot from
// both tiers before any I/O happens, and Rollback returns the slot if the
// request later fails. Interleaving at I/O suspension points therefore cannot
// push an account past its cap.
package admission

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Tier names used in errors and metrics.
const (
	TierGlobal  = "global"
	TierAccount = "account"
)

// ErrLimitExceeded marks any admission rejection regardless of tier.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// LimitError carries which tier rejected and when it resets.
type LimitError struct {
	Tier    string
	ResetAt time.Time
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded, resets at %s", e.Tier, e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *LimitError) Unwrap() error { return ErrLimitExceeded }

// Policy holds the fixed-window thresholds.
type Policy struct {
	Window     time.Duration
	Global     int
	PerAccount int
	Disabled   bool
}

// Window is one admission window. Count only grows until ResetAt passes, at
// which point the whole window is replaced.
type Window struct {
	Count   int
	ResetAt time.Time
}

// Decision is a point-in-time view of one tier for one caller.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Snapshot is a monitoring read of both tiers.
type Snapshot struct {
	Global  Decision `json:"global"`
	Account Decision `json:"account"`
}

// Ledger tracks the global window and one lazily-created window per account.
// All mutation goes through its methods; windows are never handed out.
type Ledger struct {
	mu       sync.Mutex
	policy   Policy
	now      func() time.Time
	global   Window
	accounts map[string]*Window
}

// NewLedger creates a ledger with empty windows.
func NewLedger(policy Policy) *Ledger {
	return &Ledger{
		policy:   policy,
		now:      time.Now,
		accounts: make(map[string]*Window),
	}
}

// roll replaces an elapsed window in place. Callers hold l.mu.
func (l *Ledger) roll(w *Window, now time.Time) {
	if w.ResetAt.IsZero() || !now.Before(w.ResetAt) {
		w.Count = 0
		w.ResetAt = now.Add(l.policy.Window)
	}
}

func decision(w Window, limit int) Decision {
	remaining := limit - w.Count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   w.Count < limit,
		Remaining: remaining,
		ResetAt:   w.ResetAt,
	}
}

// CheckGlobal is a pure read of the global tier. It never mutates counters;
// repeated calls return the same remaining value absent a Reserve.
func (l *Ledger) CheckGlobal() Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkGlobalLocked(l.now())
}

func (l *Ledger) checkGlobalLocked(now time.Time) Decision {
	if l.policy.Disabled {
		return Decision{Allowed: true, Remaining: l.policy.Global}
	}
	w := l.global
	if w.ResetAt.IsZero() || !now.Before(w.ResetAt) {
		// elapsed window reads as empty without being replaced
		w = Window{ResetAt: now.Add(l.policy.Window)}
	}
	return decision(w, l.policy.Global)
}

// CheckAccount is a pure read of one account's tier.
func (l *Ledger) CheckAccount(addr string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkAccountLocked(addr, l.now())
}

func (l *Ledger) checkAccountLocked(addr string, now time.Time) Decision {
	if l.policy.Disabled {
		return Decision{Allowed: true, Remaining: l.policy.PerAccount}
	}
	w := Window{ResetAt: now.Add(l.policy.Window)}
	if existing, ok := l.accounts[addr]; ok && now.Before(existing.ResetAt) {
		w = *existing
	}
	return decision(w, l.policy.PerAccount)
}

// Reserve atomically takes one admission slot from the global tier and one
// from the account tier, or neither. The returned snapshot identifies the
// granted windows by their reset times; the caller must pass it back to
// Rollback on any downstream failure so failed requests never consume quota.
func (l *Ledger) Reserve(addr string) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.policy.Disabled {
		return Snapshot{
			Global:  Decision{Allowed: true, Remaining: l.policy.Global},
			Account: Decision{Allowed: true, Remaining: l.policy.PerAccount},
		}, nil
	}

	l.roll(&l.global, now)
	if l.global.Count >= l.policy.Global {
		return l.snapshotLocked(addr, now), &LimitError{Tier: TierGlobal, ResetAt: l.global.ResetAt}
	}

	acct, ok := l.accounts[addr]
	if !ok {
		acct = &Window{ResetAt: now.Add(l.policy.Window)}
		l.accounts[addr] = acct
	} else {
		l.roll(acct, now)
	}
	if acct.Count >= l.policy.PerAccount {
		return l.snapshotLocked(addr, now), &LimitError{Tier: TierAccount, ResetAt: acct.ResetAt}
	}

	l.global.Count++
	acct.Count++
	return l.snapshotLocked(addr, now), nil
}

// Rollback returns a previously reserved slot to both tiers. Each tier is
// credited only while the window the slot came from is still live, keyed by
// the reset time in the Reserve snapshot; slots whose window has elapsed or
// been replaced are simply dropped.
func (l *Ledger) Rollback(addr string, reserved Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.policy.Disabled {
		return
	}
	if l.global.ResetAt.Equal(reserved.Global.ResetAt) && l.global.Count > 0 {
		l.global.Count--
	}
	if acct, ok := l.accounts[addr]; ok && acct.ResetAt.Equal(reserved.Account.ResetAt) && acct.Count > 0 {
		acct.Count--
	}
}

// Snapshot returns both tiers for monitoring.
func (l *Ledger) Snapshot(addr string) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked(addr, l.now())
}

func (l *Ledger) snapshotLocked(addr string, now time.Time) Snapshot {
	return Snapshot{
		Global:  l.checkGlobalLocked(now),
		Account: l.checkAccountLocked(addr, now),
	}
}

// SweepExpired drops per-account windows whose window has elapsed, bounding
// memory to accounts active within the current window. Returns the number of
// evicted entries.
func (l *Ledger) SweepExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	evicted := 0
	for addr, w := range l.accounts {
		if !now.Before(w.ResetAt) {
			delete(l.accounts, addr)
			evicted++
		}
	}
	return evicted
}

// TrackedAccounts reports how many per-account windows are live.
func (l *Ledger) TrackedAccounts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.accounts)
}
