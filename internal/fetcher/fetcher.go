// Package fetcher reads community walls through a Source, retrying transient failures.
package fetcher

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"vkwatch/internal/retry"
	"vkwatch/internal/vk"
	"vkwatch/pkg/logx"
)

var ErrNoSource = errors.New("fetcher: no content source configured")

type Page struct {
	Domain  string
	GroupID int64
	Name    string
}

type Post struct {
	ID           int64
	Text         string
	CommentCount int
}

type Comment struct {
	ID       int64
	AuthorID int64
	Text     string
}

// Author holds best-effort profile data. Empty fields mean "unknown".
type Author struct {
	ID          int64
	DisplayName string
	City        string
	PhotoURL    string
}

// Source is the remote capability set the monitor depends on.
type Source interface {
	WallPosts(ctx context.Context, groupID int64, count int) ([]Post, error)
	WallComments(ctx context.Context, groupID, postID int64, count int) ([]Comment, error)
	User(ctx context.Context, userID int64) (Author, error)
	Group(ctx context.Context, handle string) (Page, error)
}

type Config struct {
	Policy retry.Policy
}

type Fetcher struct {
	src    Source
	policy atomic.Pointer[retry.Policy]
	log    logx.Logger
	opts   []retry.Option
}

func New(src Source, cfg Config, log logx.Logger, opts ...retry.Option) *Fetcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	f := &Fetcher{src: src, log: log.With(logx.String("comp", "fetcher"))}
	f.SetPolicy(cfg.Policy)
	f.opts = append([]retry.Option{retry.OnRetry(f.logRetry)}, opts...)
	return f
}

// SetPolicy replaces the retry policy for calls started afterwards.
// Zero fields fall back to retry.Default.
func (f *Fetcher) SetPolicy(p retry.Policy) {
	if p.Attempts <= 0 {
		p.Attempts = retry.Default.Attempts
	}
	if p.Base <= 0 {
		p.Base = retry.Default.Base
	}
	if p.Multiplier == 0 {
		p.Multiplier = retry.Default.Multiplier
	}
	f.policy.Store(&p)
}

func (f *Fetcher) currentPolicy() retry.Policy { return *f.policy.Load() }

func (f *Fetcher) logRetry(attempt int, delay time.Duration, err error) {
	f.log.Warn("transient fetch error; retrying",
		logx.Int("attempt", attempt),
		logx.Duration("wait", delay),
		logx.Err(err),
	)
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return vk.IsTransient(err)
}

// Ready reports whether a source is attached.
func (f *Fetcher) Ready() bool { return f != nil && f.src != nil }

// Posts returns up to limit most recent posts authored by the page itself.
func (f *Fetcher) Posts(ctx context.Context, page Page, limit int) ([]Post, error) {
	if !f.Ready() {
		return nil, ErrNoSource
	}
	return retry.Do(ctx, f.currentPolicy(), IsTransient, func(ctx context.Context) ([]Post, error) {
		return f.src.WallPosts(ctx, page.GroupID, limit)
	}, f.opts...)
}

// Comments returns up to limit comments on one post.
func (f *Fetcher) Comments(ctx context.Context, page Page, postID int64, limit int) ([]Comment, error) {
	if !f.Ready() {
		return nil, ErrNoSource
	}
	return retry.Do(ctx, f.currentPolicy(), IsTransient, func(ctx context.Context) ([]Comment, error) {
		return f.src.WallComments(ctx, page.GroupID, postID, limit)
	}, f.opts...)
}

func (f *Fetcher) Author(ctx context.Context, authorID int64) (Author, error) {
	if !f.Ready() {
		return Author{}, ErrNoSource
	}
	return retry.Do(ctx, f.currentPolicy(), IsTransient, func(ctx context.Context) (Author, error) {
		return f.src.User(ctx, authorID)
	}, f.opts...)
}

// ResolvePage looks a community up by screen name.
func (f *Fetcher) ResolvePage(ctx context.Context, handle string) (Page, error) {
	if !f.Ready() {
		return Page{}, ErrNoSource
	}
	return retry.Do(ctx, f.currentPolicy(), IsTransient, func(ctx context.Context) (Page, error) {
		return f.src.Group(ctx, handle)
	}, f.opts...)
}
