package config

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"vkwatch/internal/retry"
	logx "vkwatch/pkg/logx"
)

const reloadDebounce = 250 * time.Millisecond

// watchRestart paces watcher re-creation after fsnotify breaks.
var watchRestart = retry.Policy{Base: 250 * time.Millisecond, Multiplier: 2, Max: 5 * time.Second}

var errWatcherBroken = errors.New("config watcher broken")

// Watch reloads the config whenever its file changes, until ctx is done.
// The parent directory is watched so editors that replace the file on save
// are still seen. Watcher failures are retried; Watch itself only returns nil.
func (m *ConfigManager) Watch(ctx context.Context) error {
	d := newDebouncer(reloadDebounce, func() { m.reloadAndLog(ctx) })
	defer d.stop()

	failures := 0
	for ctx.Err() == nil {
		err := m.watchOnce(ctx, d.trigger)
		if err == nil {
			return nil
		}
		failures++
		wait := watchRestart.Delay(failures)
		if !m.log.IsZero() {
			m.log.Warn("config watcher stopped; restarting",
				logx.Err(err), logx.String("path", m.path), logx.Duration("backoff", wait))
		}
		if retry.Sleep(ctx, wait) != nil {
			return nil
		}
		// the last watcher did start, so the next failure begins a new backoff
		if errors.Is(err, errWatcherBroken) {
			failures = 0
		}
	}
	return nil
}

// watchOnce runs a single fsnotify watcher. It returns nil when ctx ends and
// an error when the watcher could not start or stopped delivering.
func (m *ConfigManager) watchOnce(ctx context.Context, changed func()) error {
	dir, file := filepath.Dir(m.path), filepath.Base(m.path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	if !m.log.IsZero() {
		m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errWatcherBroken
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) && ev.Op != 0 {
				changed()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errWatcherBroken
			}
			if err == nil {
				continue
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// events were lost; assume the file changed
				changed()
				continue
			}
			if !m.log.IsZero() {
				m.log.Warn("config watch error", logx.Err(err), logx.String("dir", dir))
			}
		}
	}
}

func (m *ConfigManager) reloadAndLog(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	err := m.Reload(ctx)
	if m.log.IsZero() {
		return
	}
	switch {
	case err == nil:
	case errors.Is(err, ErrUnchanged):
		m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
	default:
		m.log.Warn("config reload failed; keeping previous", logx.String("path", m.path), logx.Err(err))
	}
}

// debouncer collapses a burst of triggers into one call after a quiet period.
type debouncer struct {
	wait time.Duration
	fn   func()

	mu    sync.Mutex
	timer *time.Timer
}

func newDebouncer(wait time.Duration, fn func()) *debouncer {
	return &debouncer{wait: wait, fn: fn}
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		d.timer = time.AfterFunc(d.wait, d.fn)
		return
	}
	d.timer.Reset(d.wait)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}
