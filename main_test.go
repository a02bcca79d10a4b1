package main

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evanofslack/dns-ip-sync/internal/config"
	"github.com/evanofslack/dns-ip-sync/internal/metrics"
	"github.com/evanofslack/dns-ip-sync/internal/publicip"
	"github.com/evanofslack/dns-ip-sync/internal/reconcile"
	"github.com/evanofslack/dns-ip-sync/internal/state"
)

type mockResolver struct {
	addr netip.Addr
	ok   bool
}

func (m *mockResolver) Resolve(ctx context.Context) (netip.Addr, bool) { return m.addr, m.ok }

type mockEngine struct {
	results reconcile.Results
	err     error
	panics  bool
	calls   int
	addr    netip.Addr
}

func (m *mockEngine) Reconcile(ctx context.Context, records []reconcile.DesiredRecord, addr netip.Addr) (reconcile.Results, error) {
	m.calls++
	m.addr = addr
	if m.panics {
		panic("provider client exploded")
	}
	return m.results, m.err
}

type mockLedger struct {
	saved []state.State
	err   error
}

func (m *mockLedger) LoadState(ctx context.Context) (state.State, error) { return state.State{}, nil }
func (m *mockLedger) SaveState(ctx context.Context, s state.State) error {
	m.saved = append(m.saved, s)
	return m.err
}
func (m *mockLedger) Close() error { return nil }

func TestPerformSync(t *testing.T) {
	addr := netip.MustParseAddr("1.2.3.4")
	updated := reconcile.Results{Outcomes: []reconcile.Outcome{
		{Name: "home.example.com", Status: reconcile.StatusUpdated, NewData: "1.2.3.4", NewTTL: 3600},
	}}

	tests := []struct {
		name        string
		resolver    *mockResolver
		engine      *mockEngine
		ledgerErr   error
		expectError bool
		expectCalls int
		expectSaved int
	}{
		{
			name:        "resolved and reconciled",
			resolver:    &mockResolver{addr: addr, ok: true},
			engine:      &mockEngine{results: updated},
			expectCalls: 1,
			expectSaved: 1,
		},
		{
			name:     "no address skips reconcile",
			resolver: &mockResolver{},
			engine:   &mockEngine{},
		},
		{
			name:        "engine error fails cycle",
			resolver:    &mockResolver{addr: addr, ok: true},
			engine:      &mockEngine{err: errors.New("list zones: unauthorized")},
			expectError: true,
			expectCalls: 1,
		},
		{
			name:        "panic becomes error",
			resolver:    &mockResolver{addr: addr, ok: true},
			engine:      &mockEngine{panics: true},
			expectError: true,
			expectCalls: 1,
		},
		{
			name:        "ledger failure does not fail cycle",
			resolver:    &mockResolver{addr: addr, ok: true},
			engine:      &mockEngine{results: updated},
			ledgerErr:   errors.New("disk full"),
			expectCalls: 1,
			expectSaved: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &mockLedger{err: tt.ledgerErr}
			s := &syncer{
				resolver: tt.resolver,
				engine:   tt.engine,
				records:  reconcile.DesiredRecords([]string{"home.example.com"}, 3600),
				ledger:   ledger,
				metrics:  metrics.New(false),
			}

			err := s.performSync(context.Background())
			if tt.expectError && err == nil {
				t.Fatal("expected error but got nil")
			}
			if !tt.expectError && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.engine.calls != tt.expectCalls {
				t.Errorf("expected %d reconcile calls, got %d", tt.expectCalls, tt.engine.calls)
			}
			if len(ledger.saved) != tt.expectSaved {
				t.Errorf("expected %d saved states, got %d", tt.expectSaved, len(ledger.saved))
			}
			if tt.expectSaved > 0 {
				rs := ledger.saved[0].Records["home.example.com"]
				if ledger.saved[0].Address != "1.2.3.4" || rs.Status != "updated" {
					t.Errorf("unexpected saved state %+v", ledger.saved[0])
				}
			}
		})
	}
}

type countingCycle struct {
	calls atomic.Int32
	fail  bool
}

func (c *countingCycle) performSync(ctx context.Context) error {
	c.calls.Add(1)
	if c.fail {
		return errors.New("cycle failed")
	}
	return nil
}

func TestRunSyncLoopContinuesAfterErrors(t *testing.T) {
	c := &countingCycle{fail: true}
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go runSyncLoop(ctx, wg, c, 5*time.Millisecond)

	deadline := time.After(2 * time.Second)
	for c.calls.Load() < 3 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("loop stopped after %d cycles", c.calls.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	wg.Wait()
}

type slowCycle struct {
	duration time.Duration

	mu     sync.Mutex
	starts []time.Time
	ends   []time.Time
}

func (c *slowCycle) performSync(ctx context.Context) error {
	c.mu.Lock()
	c.starts = append(c.starts, time.Now())
	c.mu.Unlock()
	time.Sleep(c.duration)
	c.mu.Lock()
	c.ends = append(c.ends, time.Now())
	c.mu.Unlock()
	return nil
}

func (c *slowCycle) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.starts)
}

func TestRunSyncLoopWaitsFullIntervalAfterSlowCycle(t *testing.T) {
	interval := 50 * time.Millisecond
	c := &slowCycle{duration: 60 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go runSyncLoop(ctx, wg, c, interval)

	deadline := time.After(5 * time.Second)
	for c.count() < 3 {
		select {
		case <-deadline:
			cancel()
			wg.Wait()
			t.Fatalf("loop ran only %d cycles", c.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 1; i < len(c.starts) && i <= len(c.ends); i++ {
		if gap := c.starts[i].Sub(c.ends[i-1]); gap < interval {
			t.Errorf("cycle %d started %s after the previous one ended, expected at least %s", i, gap, interval)
		}
	}
}

func TestRunSyncLoopStopsOnCancel(t *testing.T) {
	c := &countingCycle{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	wg := &sync.WaitGroup{}
	wg.Add(1)

	done := make(chan struct{})
	go func() {
		runSyncLoop(ctx, wg, c, time.Hour)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}
	if c.calls.Load() != 1 {
		t.Errorf("expected one cycle before stopping, got %d", c.calls.Load())
	}
}

func TestNewRegistry(t *testing.T) {
	if got := newRegistry(nil).Len(); got != len(publicip.DefaultSources()) {
		t.Errorf("expected default sources, got %d", got)
	}
	r := newRegistry([]config.Source{
		{Endpoint: "https://a.example"},
		{Endpoint: "https://b.example", KeyPath: "ip"},
	})
	expected := []publicip.Source{
		{Endpoint: "https://a.example"},
		{Endpoint: "https://b.example", KeyPath: "ip"},
	}
	got := r.Sources()
	if len(got) != len(expected) {
		t.Fatalf("expected %d sources, got %d", len(expected), len(got))
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("source %d: expected %+v, got %+v", i, expected[i], got[i])
		}
	}
}
