// Package scheduler triggers monitoring cycles on a recurring schedule and on demand.
//
// Scheduled and manual runs share the monitor's single-flight guard, so a tick
// that lands while a manual check is running is reported as busy and skipped.
package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"vkwatch/internal/monitor"
	"vkwatch/pkg/logx"
)

const (
	TriggerSchedule = "schedule"
	TriggerStartup  = "startup"
	TriggerManual   = "manual"
)

type Config struct {
	// Schedule is an interval ("10m") or cron expression.
	Schedule   string
	FirstDelay time.Duration
	Timezone   string
}

// Runner executes one cycle.
type Runner interface {
	Run(ctx context.Context, trigger string) monitor.CycleResult
}

type Service struct {
	mu     sync.Mutex
	cfg    Config
	runner Runner
	log    logx.Logger

	parent  context.Context
	c       *cron.Cron
	entry   cron.EntryID
	first   *time.Timer
	runCtx  context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

func New(cfg Config, r Runner, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, runner: r, log: log.With(logx.String("comp", "scheduler"))}
}

func (s *Service) spec() (Spec, error) {
	raw := strings.TrimSpace(s.cfg.Schedule)
	if raw == "" {
		raw = "10m"
	}
	return ParseSpec(raw)
}

func (s *Service) location() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Start registers the recurring job and arms the first delayed run.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parent = ctx
	return s.startLocked(true)
}

func (s *Service) startLocked(armFirst bool) error {
	if s.c != nil {
		return nil
	}
	c, entry, spec, err := s.newCronLocked()
	if err != nil {
		return err
	}
	s.runCtx, s.cancel = context.WithCancel(s.parent)
	s.c, s.entry = c, entry
	s.c.Start()

	fields := []logx.Field{logx.String("schedule", spec.String())}
	if armFirst {
		delay := max(s.cfg.FirstDelay, 0)
		s.first = time.AfterFunc(delay, func() { s.fire(TriggerStartup) })
		fields = append(fields, logx.Duration("first_run_in", delay))
	}
	s.log.Info("scheduler started", fields...)
	return nil
}

// newCronLocked builds an unstarted cron for the current config.
func (s *Service) newCronLocked() (*cron.Cron, cron.EntryID, Spec, error) {
	spec, err := s.spec()
	if err != nil {
		return nil, 0, Spec{}, err
	}
	sched, err := spec.schedule()
	if err != nil {
		return nil, 0, Spec{}, err
	}
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(s.location()),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	entry := c.Schedule(sched, cron.FuncJob(func() { s.fire(TriggerSchedule) }))
	return c, entry, spec, nil
}

func (s *Service) fire(trigger string) {
	s.mu.Lock()
	ctx := s.runCtx
	if ctx == nil || ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	res := s.runner.Run(ctx, trigger)
	if res.Busy {
		s.log.Info("tick skipped; cycle in progress", logx.String("trigger", trigger))
	}
}

// TriggerNow runs a cycle synchronously through the same guard.
func (s *Service) TriggerNow(ctx context.Context) monitor.CycleResult {
	return s.runner.Run(ctx, TriggerManual)
}

// Next returns the next scheduled run, or zero when stopped.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	return s.c.Entry(s.entry).Next
}

// Stop cancels in-flight runs and waits for them, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	if s.first != nil {
		s.first.Stop()
		s.first = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	if c == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("stop timed out; cycle still finishing")
		return
	}
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

// Apply swaps the schedule when it changed. Only the cron is replaced: a
// cycle already running keeps its context and finishes, and no extra
// startup run is armed.
func (s *Service) Apply(_ context.Context, cfg Config) error {
	if _, err := ParseSpec(orDefault(cfg.Schedule)); err != nil {
		return err
	}
	s.mu.Lock()
	changed := orDefault(s.cfg.Schedule) != orDefault(cfg.Schedule) || s.cfg.Timezone != cfg.Timezone
	prev := s.cfg
	s.cfg = cfg
	if !changed || s.c == nil {
		s.mu.Unlock()
		return nil
	}
	c, entry, spec, err := s.newCronLocked()
	if err != nil {
		s.cfg = prev
		s.mu.Unlock()
		return err
	}
	old := s.c
	s.c, s.entry = c, entry
	c.Start()
	s.mu.Unlock()

	// stops ticking; jobs already started are not interrupted
	old.Stop()
	s.log.Info("scheduler rescheduled", logx.String("schedule", spec.String()), logx.Time("next", c.Entry(entry).Next))
	return nil
}

func orDefault(sched string) string {
	if strings.TrimSpace(sched) == "" {
		return "10m"
	}
	return strings.TrimSpace(sched)
}

// cronLogger routes robfig/cron's logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
