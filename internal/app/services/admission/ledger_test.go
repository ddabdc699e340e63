package admission

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func testLedger(global, perAccount int) (*Ledger, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewLedger(Policy{Window: time.Hour, Global: global, PerAccount: perAccount})
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLedger_AccountCapSequential(t *testing.T) {
	l, _ := testLedger(50, 5)

	for i := 0; i < 5; i++ {
		if _, err := l.Reserve("0xalice"); err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
	}

	snap, err := l.Reserve("0xalice")
	if err == nil {
		t.Fatal("expected account limit rejection")
	}
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	var limitErr *LimitError
	if !errors.As(err, &limitErr) || limitErr.Tier != TierAccount {
		t.Fatalf("expected account tier, got %v", err)
	}
	if snap.Account.Remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", snap.Account.Remaining)
	}

	// another account is unaffected
	if _, err := l.Reserve("0xbob"); err != nil {
		t.Fatalf("reserve other account: %v", err)
	}
}

func TestLedger_GlobalCap(t *testing.T) {
	l, _ := testLedger(3, 5)

	for i := 0; i < 3; i++ {
		if _, err := l.Reserve("0xalice"); err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
	}

	_, err := l.Reserve("0xbob")
	var limitErr *LimitError
	if !errors.As(err, &limitErr) || limitErr.Tier != TierGlobal {
		t.Fatalf("expected global tier rejection, got %v", err)
	}
}

func TestLedger_ChecksAreIdempotent(t *testing.T) {
	l, _ := testLedger(50, 5)
	if _, err := l.Reserve("0xalice"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	first := l.CheckAccount("0xalice")
	for i := 0; i < 10; i++ {
		if got := l.CheckAccount("0xalice"); got.Remaining != first.Remaining {
			t.Fatalf("check mutated remaining: %d != %d", got.Remaining, first.Remaining)
		}
		if got := l.CheckGlobal(); got.Remaining != 49 {
			t.Fatalf("global check mutated remaining: %d", got.Remaining)
		}
	}
	if first.Remaining != 4 {
		t.Fatalf("expected 4 remaining, got %d", first.Remaining)
	}
}

func TestLedger_RollbackRestoresBothTiers(t *testing.T) {
	l, _ := testLedger(50, 5)

	reserved, err := l.Reserve("0xalice")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	l.Rollback("0xalice", reserved)

	if got := l.CheckAccount("0xalice"); got.Remaining != 5 {
		t.Fatalf("account not restored: %d", got.Remaining)
	}
	if got := l.CheckGlobal(); got.Remaining != 50 {
		t.Fatalf("global not restored: %d", got.Remaining)
	}
}

func TestLedger_RollbackIgnoresSuccessorWindow(t *testing.T) {
	l, now := testLedger(50, 5)

	stale, err := l.Reserve("0xalice")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	*now = now.Add(time.Hour + time.Second)
	if _, err := l.Reserve("0xalice"); err != nil {
		t.Fatalf("reserve in fresh window: %v", err)
	}

	// The stale slot's window was replaced; dropping it must not free a
	// slot in the successor window.
	l.Rollback("0xalice", stale)

	if got := l.CheckAccount("0xalice"); got.Remaining != 4 {
		t.Fatalf("successor account window credited: remaining %d, want 4", got.Remaining)
	}
	if got := l.CheckGlobal(); got.Remaining != 49 {
		t.Fatalf("successor global window credited: remaining %d, want 49", got.Remaining)
	}
}

func TestLedger_WindowReset(t *testing.T) {
	l, now := testLedger(50, 5)

	for i := 0; i < 5; i++ {
		if _, err := l.Reserve("0xalice"); err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
	}
	if _, err := l.Reserve("0xalice"); err == nil {
		t.Fatal("expected rejection at cap")
	}

	*now = now.Add(time.Hour + time.Second)

	snap, err := l.Reserve("0xalice")
	if err != nil {
		t.Fatalf("reserve after window elapsed: %v", err)
	}
	if snap.Account.Remaining != 4 {
		t.Fatalf("expected fresh window with 4 remaining, got %d", snap.Account.Remaining)
	}
}

func TestLedger_ConcurrentReserveNeverExceedsCap(t *testing.T) {
	l := NewLedger(Policy{Window: time.Hour, Global: 1000, PerAccount: 5})

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Reserve("0xalice"); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 5 {
		t.Fatalf("expected exactly 5 admissions under concurrency, got %d", admitted)
	}
}

func TestLedger_SweepEvictsElapsedWindows(t *testing.T) {
	l, now := testLedger(50, 5)

	if _, err := l.Reserve("0xalice"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := l.Reserve("0xbob"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if got := l.TrackedAccounts(); got != 2 {
		t.Fatalf("expected 2 tracked accounts, got %d", got)
	}

	if evicted := l.SweepExpired(); evicted != 0 {
		t.Fatalf("expected no eviction inside window, got %d", evicted)
	}

	*now = now.Add(2 * time.Hour)
	if evicted := l.SweepExpired(); evicted != 2 {
		t.Fatalf("expected 2 evictions, got %d", evicted)
	}
	if got := l.TrackedAccounts(); got != 0 {
		t.Fatalf("expected 0 tracked accounts, got %d", got)
	}
}

func TestLedger_DisabledBypassesCounting(t *testing.T) {
	l := NewLedger(Policy{Window: time.Hour, Global: 1, PerAccount: 1, Disabled: true})

	for i := 0; i < 10; i++ {
		if _, err := l.Reserve("0xalice"); err != nil {
			t.Fatalf("reserve with limiting disabled: %v", err)
		}
	}
	if got := l.CheckAccount("0xalice"); !got.Allowed {
		t.Fatal("disabled ledger should always allow")
	}
}
