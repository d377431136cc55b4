// Package monitor runs the comment-monitoring cycle: fetch recent posts and
// comments of every tracked page, match keywords, record new matches and fan
// alerts out to subscribers.
//
// At most one cycle runs at a time. A concurrent Run returns immediately with
// CycleResult.Busy set.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"vkwatch/internal/fetcher"
	"vkwatch/internal/match"
	"vkwatch/internal/retry"
	"vkwatch/internal/storage"
	"vkwatch/pkg/logx"
	"vkwatch/pkg/tgui"
)

type Monitor struct {
	cfg      atomic.Pointer[Config]
	store    Store
	fetch    *fetcher.Fetcher
	notifier Notifier
	log      logx.Logger
	sleep    retry.Sleeper
	now      func() time.Time

	running   atomic.Bool
	total     atomic.Int64
	startedAt time.Time

	mu   sync.Mutex
	last *CycleResult
}

type Option func(*Monitor)

// WithSleeper replaces the inter-page pause, mainly for tests.
func WithSleeper(s retry.Sleeper) Option { return func(m *Monitor) { m.sleep = s } }

func WithClock(now func() time.Time) Option { return func(m *Monitor) { m.now = now } }

// New builds a Monitor and seeds run statistics from the store.
func New(ctx context.Context, cfg Config, st Store, f *fetcher.Fetcher, n Notifier, log logx.Logger, opts ...Option) *Monitor {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Monitor{
		store:    st,
		fetch:    f,
		notifier: n,
		log:      log.With(logx.String("comp", "monitor")),
		sleep:    retry.Sleep,
		now:      time.Now,
	}
	m.Apply(cfg)
	for _, o := range opts {
		o(m)
	}
	m.startedAt = m.now()
	if total, err := st.TotalMatches(ctx); err != nil {
		m.log.Warn("cannot load total matches; starting from zero", logx.Err(err))
	} else {
		m.total.Store(total)
	}
	return m
}

// Stats returns a snapshot of the run statistics.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	var last *CycleResult
	if m.last != nil {
		cp := *m.last
		last = &cp
	}
	m.mu.Unlock()
	return Stats{
		TotalMatches: m.total.Load(),
		StartedAt:    m.startedAt,
		Running:      m.running.Load(),
		LastCycle:    last,
	}
}

// Apply swaps limits and pacing. A cycle in progress keeps the values it started with.
func (m *Monitor) Apply(cfg Config) {
	c := cfg.withDefaults()
	m.cfg.Store(&c)
}

// Running reports whether a cycle holds the guard.
func (m *Monitor) Running() bool { return m.running.Load() }

type counters struct {
	pages, pagesFailed, posts, comments, matches atomic.Int64
}

// Run executes one cycle unless another is in progress.
func (m *Monitor) Run(ctx context.Context, trigger string) CycleResult {
	if !m.running.CompareAndSwap(false, true) {
		m.log.Info("cycle already running; skipped", logx.String("trigger", trigger))
		return CycleResult{Trigger: trigger, Busy: true}
	}
	defer m.running.Store(false)

	res := CycleResult{Trigger: trigger, StartedAt: m.now()}
	start := time.Now()
	var c counters

	func() {
		defer func() {
			if r := recover(); r != nil {
				res.Err = fmt.Errorf("cycle panic: %v", r)
				m.log.Error("panic in monitoring cycle", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		res.Skipped, res.Err = m.cycle(ctx, &c)
	}()

	res.Duration = time.Since(start)
	res.PagesProcessed = int(c.pages.Load())
	res.PagesFailed = int(c.pagesFailed.Load())
	res.PostsChecked = int(c.posts.Load())
	res.CommentsChecked = int(c.comments.Load())
	res.MatchesFound = int(c.matches.Load())

	fields := []logx.Field{
		logx.String("trigger", trigger),
		logx.Int("pages", res.PagesProcessed),
		logx.Int("posts", res.PostsChecked),
		logx.Int("comments", res.CommentsChecked),
		logx.Int("matches", res.MatchesFound),
		logx.Duration("dur", res.Duration),
	}
	switch {
	case res.Err != nil:
		m.log.Error("cycle failed", append(fields, logx.Err(res.Err))...)
	case res.Skipped != "":
		m.log.Info("cycle skipped", append(fields, logx.String("reason", res.Skipped))...)
	case res.PagesFailed > 0:
		m.log.Warn("cycle finished with page failures", append(fields, logx.Int("failed_pages", res.PagesFailed))...)
	default:
		m.log.Info("cycle finished", fields...)
	}

	cp := res
	m.mu.Lock()
	m.last = &cp
	m.mu.Unlock()
	return res
}

func (m *Monitor) cycle(ctx context.Context, c *counters) (string, error) {
	if !m.fetch.Ready() {
		return SkipNoSource, nil
	}
	pages, err := m.store.ListPages(ctx)
	if err != nil {
		return "", fmt.Errorf("load pages: %w", err)
	}
	if len(pages) == 0 {
		return SkipNoPages, nil
	}
	keywords, err := m.store.ListKeywords(ctx)
	if err != nil {
		return "", fmt.Errorf("load keywords: %w", err)
	}
	matcher := match.New(keywords)
	if matcher.Len() == 0 {
		return SkipNoKeywords, nil
	}

	cfg := *m.cfg.Load()
	var g errgroup.Group
	g.SetLimit(cfg.PageConcurrency)
	for i, p := range pages {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && cfg.PagePause > 0 {
			if err := m.sleep(ctx, cfg.PagePause); err != nil {
				break
			}
		}
		g.Go(func() error {
			// attempted pages count, failed or not
			c.pages.Add(1)
			if err := m.processPage(ctx, cfg, p, matcher, c); err != nil {
				c.pagesFailed.Add(1)
				m.log.Warn("page failed", logx.String("page", p.Domain), logx.Err(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return "", err
	}
	return "", nil
}

func (m *Monitor) processPage(ctx context.Context, cfg Config, p storage.Page, matcher *match.Matcher, c *counters) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			m.log.Error("panic while processing page", logx.String("page", p.Domain), logx.String("stack", string(debug.Stack())))
		}
	}()

	page := fetcher.Page{Domain: p.Domain, GroupID: p.GroupID}
	posts, err := m.fetch.Posts(ctx, page, cfg.PostsLimit)
	if err != nil {
		return fmt.Errorf("fetch posts: %w", err)
	}
	log := m.log.With(logx.String("page", p.Domain))
	log.Debug("posts fetched", logx.Int("count", len(posts)))

	for _, post := range posts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.posts.Add(1)
		if _, err := m.store.RecordCheckedPost(ctx, storage.CheckedPost{
			Domain:  p.Domain,
			GroupID: p.GroupID,
			PostID:  post.ID,
			Preview: tgui.TruncRunes(post.Text, previewRunes, "..."),
		}); err != nil {
			log.Warn("record checked post failed", logx.Int64("post_id", post.ID), logx.Err(err))
		}
		if post.CommentCount <= 0 {
			continue
		}
		comments, err := m.fetch.Comments(ctx, page, post.ID, cfg.CommentsLimit)
		if err != nil {
			log.Warn("fetch comments failed", logx.Int64("post_id", post.ID), logx.Err(err))
			continue
		}
		c.comments.Add(int64(len(comments)))
		for _, cm := range comments {
			// Negative ids are communities; zero means deleted or unknown.
			if cm.AuthorID <= 0 {
				continue
			}
			m.handleComment(ctx, p, post.ID, cm, matcher, c, log)
		}
	}
	return nil
}

func (m *Monitor) handleComment(ctx context.Context, p storage.Page, postID int64, cm fetcher.Comment, matcher *match.Matcher, c *counters, log logx.Logger) {
	kw, ok := matcher.First(cm.Text)
	if !ok {
		return
	}
	link := Permalink(p.GroupID, postID, cm.ID)
	if seen, err := m.store.SeenMatch(ctx, link); err == nil && seen {
		return
	}

	author, err := m.fetch.Author(ctx, cm.AuthorID)
	if err != nil {
		log.Warn("author lookup failed; using placeholders", logx.Int64("author_id", cm.AuthorID), logx.Err(err))
		author = fetcher.Author{ID: cm.AuthorID}
	}
	author = withPlaceholders(author)

	rec := storage.MatchedComment{
		Permalink:  link,
		Domain:     p.Domain,
		GroupID:    p.GroupID,
		PostID:     postID,
		CommentID:  cm.ID,
		AuthorID:   cm.AuthorID,
		AuthorName: author.DisplayName,
		AuthorLink: UserLink(cm.AuthorID),
		City:       author.City,
		Text:       cm.Text,
		Keyword:    kw,
		DetectedAt: m.now(),
	}
	isNew, err := m.store.RecordMatchIfNew(ctx, rec)
	if err != nil {
		log.Warn("record match failed", logx.String("permalink", link), logx.Err(err))
		return
	}
	if !isNew {
		return
	}

	log.Info("keyword match", logx.String("keyword", kw), logx.String("permalink", link))
	rep, err := m.notifier.Broadcast(ctx, RenderAlert(rec, author.PhotoURL))
	if err != nil {
		log.Error("alert fanout failed", logx.String("permalink", link), logx.Err(err))
	} else if rep.Delivered == 0 {
		log.Warn("alert delivered to no chat", logx.String("permalink", link), logx.Int("chats", rep.Total))
	}

	c.matches.Add(1)
	m.total.Add(1)
	if _, err := m.store.IncrementMatches(ctx, 1); err != nil {
		log.Warn("persist match counter failed", logx.Err(err))
	}
}
