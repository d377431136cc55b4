package bot

import (
	"context"
	"time"

	"vkwatch/internal/export"
	"vkwatch/internal/fetcher"
	"vkwatch/internal/monitor"
	"vkwatch/internal/storage"
	"vkwatch/internal/transport"
)

// Store is the slice of persistence the operator commands touch.
type Store interface {
	storage.PageStore
	storage.KeywordStore
	storage.ChatStore
	storage.StatsStore
	storage.AuditStore
}

type PageResolver interface {
	ResolvePage(ctx context.Context, handle string) (fetcher.Page, error)
}

// Checker runs a cycle on demand and reports the schedule.
type Checker interface {
	TriggerNow(ctx context.Context) monitor.CycleResult
	Next() time.Time
}

type StatsSource interface {
	Stats() monitor.Stats
}

type Exporter interface {
	Posts(ctx context.Context) (export.File, error)
	Comments(ctx context.Context) (export.File, error)
}

type Deps struct {
	Store    Store
	Resolver PageResolver
	Checker  Checker
	Stats    StatsSource
	Exporter Exporter
	Sender   transport.Sender
}

// Config tunes the command front end.
//
// Defaults: 2 workers, 30s per command, 30m for a manual check,
// 5m before a prompted input is forgotten.
type Config struct {
	// Owners may run mutating commands. Empty allows everyone.
	Owners         []int64
	Workers        int
	CommandTimeout time.Duration
	PendingTTL     time.Duration
	// PostsLimit is quoted in the greeting.
	PostsLimit int
	Location   *time.Location
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 30 * time.Second
	}
	if c.PendingTTL <= 0 {
		c.PendingTTL = 5 * time.Minute
	}
	if c.PostsLimit <= 0 {
		c.PostsLimit = 20
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c
}
