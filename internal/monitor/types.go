package monitor

import (
	"context"
	"time"

	"vkwatch/internal/fanout"
	"vkwatch/internal/storage"
)

type Config struct {
	PostsLimit      int
	CommentsLimit   int
	PagePause       time.Duration
	PageConcurrency int
}

func (c Config) withDefaults() Config {
	if c.PostsLimit <= 0 {
		c.PostsLimit = 20
	}
	if c.CommentsLimit <= 0 {
		c.CommentsLimit = 100
	}
	if c.PagePause < 0 {
		c.PagePause = 0
	}
	if c.PageConcurrency <= 0 {
		c.PageConcurrency = 1
	}
	return c
}

// Store is the persistence the cycle reads and writes.
type Store interface {
	ListPages(ctx context.Context) ([]storage.Page, error)
	ListKeywords(ctx context.Context) ([]string, error)
	storage.DedupStore
	IncrementMatches(ctx context.Context, n int64) (int64, error)
	TotalMatches(ctx context.Context) (int64, error)
}

// Notifier delivers one alert to all subscribers.
type Notifier interface {
	Broadcast(ctx context.Context, a fanout.Alert) (fanout.Report, error)
}

// Skip reasons for a cycle that made no progress.
const (
	SkipNoSource   = "no_source"
	SkipNoPages    = "no_pages"
	SkipNoKeywords = "no_keywords"
)

// CycleResult summarises one monitoring run.
type CycleResult struct {
	Trigger   string
	StartedAt time.Time
	Duration  time.Duration

	// Busy is set when another cycle held the guard; all counts are zero.
	Busy bool
	// Skipped names why nothing was fetched, if so.
	Skipped string
	// Err is a cycle-level fault (configuration could not be loaded).
	Err error

	PagesProcessed  int
	PagesFailed     int
	PostsChecked    int
	CommentsChecked int
	MatchesFound    int
}

// Stats is the process-wide run statistics.
type Stats struct {
	TotalMatches int64
	StartedAt    time.Time
	Running      bool
	LastCycle    *CycleResult
}
