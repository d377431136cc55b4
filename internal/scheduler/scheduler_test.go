package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"vkwatch/internal/monitor"
	"vkwatch/pkg/logx"
)

type countingRunner struct {
	mu       sync.Mutex
	triggers []string
	fired    chan string
}

func newCountingRunner() *countingRunner {
	return &countingRunner{fired: make(chan string, 16)}
}

func (r *countingRunner) Run(_ context.Context, trigger string) monitor.CycleResult {
	r.mu.Lock()
	r.triggers = append(r.triggers, trigger)
	r.mu.Unlock()
	r.fired <- trigger
	return monitor.CycleResult{Trigger: trigger}
}

func TestParseSpecVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw   string
		kind  SpecKind
		every time.Duration
	}{
		{raw: "10m", kind: SpecInterval, every: 10 * time.Minute},
		{raw: "every:45s", kind: SpecInterval, every: 45 * time.Second},
		{raw: "00:10", kind: SpecInterval, every: 10 * time.Minute},
		{raw: "*/10 * * * *", kind: SpecCron},
		{raw: "0 */10 * * * *", kind: SpecCron},
		{raw: "@every 10m", kind: SpecCron},
		{raw: "cron:@hourly", kind: SpecCron},
	}
	for _, tt := range tests {
		got, err := ParseSpec(tt.raw)
		if err != nil {
			t.Fatalf("ParseSpec(%q) error: %v", tt.raw, err)
		}
		if got.Kind != tt.kind {
			t.Fatalf("ParseSpec(%q) kind = %v, want %v", tt.raw, got.Kind, tt.kind)
		}
		if tt.kind == SpecInterval && got.Every != tt.every {
			t.Fatalf("ParseSpec(%q) every = %v, want %v", tt.raw, got.Every, tt.every)
		}
	}
}

func TestParseSpecInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "soon", "0s", "00:75", "cron:", "* * *"} {
		if _, err := ParseSpec(raw); err == nil {
			t.Fatalf("ParseSpec(%q): expected error", raw)
		}
	}
}

func TestStartRunsFirstCycleAfterDelay(t *testing.T) {
	t.Parallel()
	r := newCountingRunner()
	s := New(Config{Schedule: "1h", FirstDelay: 20 * time.Millisecond}, r, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	select {
	case got := <-r.fired:
		if got != TriggerStartup {
			t.Fatalf("trigger = %q, want %q", got, TriggerStartup)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("startup run did not fire")
	}

	next := s.Next()
	if next.IsZero() || time.Until(next) < 50*time.Minute {
		t.Fatalf("unexpected next run %v", next)
	}
}

func TestIntervalTicks(t *testing.T) {
	t.Parallel()
	r := newCountingRunner()
	s := New(Config{Schedule: "every:1s", FirstDelay: time.Hour}, r, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	select {
	case got := <-r.fired:
		if got != TriggerSchedule {
			t.Fatalf("trigger = %q, want %q", got, TriggerSchedule)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled run did not fire")
	}
}

func TestTriggerNowIsSynchronous(t *testing.T) {
	t.Parallel()
	r := newCountingRunner()
	s := New(Config{}, r, logx.Nop())
	res := s.TriggerNow(context.Background())
	if res.Trigger != TriggerManual {
		t.Fatalf("trigger = %q", res.Trigger)
	}
	if len(r.fired) != 1 {
		t.Fatalf("runner called %d times, want 1", len(r.fired))
	}
}

func TestStopPreventsPendingFirstRun(t *testing.T) {
	t.Parallel()
	r := newCountingRunner()
	s := New(Config{Schedule: "1h", FirstDelay: 50 * time.Millisecond}, r, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop(context.Background())
	time.Sleep(100 * time.Millisecond)
	if len(r.fired) != 0 {
		t.Fatal("run fired after Stop")
	}
	if !s.Next().IsZero() {
		t.Fatal("Next should be zero after Stop")
	}
}

func TestApplyReschedules(t *testing.T) {
	t.Parallel()
	r := newCountingRunner()
	s := New(Config{Schedule: "1h", FirstDelay: time.Hour}, r, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	if err := s.Apply(context.Background(), Config{Schedule: "bogus"}); err == nil {
		t.Fatal("Apply accepted an invalid schedule")
	}
	if err := s.Apply(context.Background(), Config{Schedule: "2h", FirstDelay: time.Hour}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if d := time.Until(s.Next()); d < 110*time.Minute {
		t.Fatalf("next run in %v, want ~2h", d)
	}
}

// blockingRunner holds each cycle open until release is closed and reports
// whether the cycle's context was canceled meanwhile.
type blockingRunner struct {
	started  chan struct{}
	release  chan struct{}
	canceled chan bool
}

func (r *blockingRunner) Run(ctx context.Context, trigger string) monitor.CycleResult {
	r.started <- struct{}{}
	select {
	case <-r.release:
		r.canceled <- false
	case <-ctx.Done():
		r.canceled <- true
	}
	return monitor.CycleResult{Trigger: trigger}
}

func TestApplyKeepsRunningCycle(t *testing.T) {
	t.Parallel()
	r := &blockingRunner{started: make(chan struct{}, 1), release: make(chan struct{}), canceled: make(chan bool, 1)}
	s := New(Config{Schedule: "1h"}, r, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	select {
	case <-r.started:
	case <-time.After(2 * time.Second):
		t.Fatal("startup run did not fire")
	}
	if err := s.Apply(context.Background(), Config{Schedule: "5m", Timezone: "UTC"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	close(r.release)
	if <-r.canceled {
		t.Fatal("rescheduling canceled the running cycle")
	}
	if d := time.Until(s.Next()); d > 6*time.Minute || d <= 0 {
		t.Fatalf("next run in %v, want ~5m", d)
	}
}

func TestStopCancelsRunningCycle(t *testing.T) {
	t.Parallel()
	r := &blockingRunner{started: make(chan struct{}, 1), release: make(chan struct{}), canceled: make(chan bool, 1)}
	s := New(Config{Schedule: "1h"}, r, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-r.started
	s.Stop(context.Background())
	if !<-r.canceled {
		t.Fatal("Stop left the cycle running")
	}
}
