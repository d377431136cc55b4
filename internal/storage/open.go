package storage

import (
	"context"
	"errors"
	"strings"

	"vkwatch/pkg/logx"
)

type PageStore interface {
	ListPages(ctx context.Context) ([]Page, error)
	AddPage(ctx context.Context, p Page) (bool, error)
	DeletePage(ctx context.Context, domain string) (bool, error)
}

// KeywordStore keeps keywords unique case-insensitively, in insertion order.
type KeywordStore interface {
	ListKeywords(ctx context.Context) ([]string, error)
	AddKeyword(ctx context.Context, kw string) (bool, error)
	DeleteKeyword(ctx context.Context, kw string) (bool, error)
	DeleteAllKeywords(ctx context.Context) (int, error)
}

type ChatStore interface {
	ListChats(ctx context.Context) ([]Chat, error)
	AddChat(ctx context.Context, c Chat) (bool, error)
	DeleteChat(ctx context.Context, chatID int64) (bool, error)
	HasChat(ctx context.Context, chatID int64) (bool, error)
}

// DedupStore is the previously-seen record.
type DedupStore interface {
	// RecordCheckedPost reports true the first time (domain, post) is recorded.
	RecordCheckedPost(ctx context.Context, p CheckedPost) (bool, error)
	// SeenMatch is a read-only pre-check; RecordMatchIfNew stays authoritative.
	SeenMatch(ctx context.Context, permalink string) (bool, error)
	// RecordMatchIfNew atomically inserts m and reports true only on first insert
	// of m.Permalink.
	RecordMatchIfNew(ctx context.Context, m MatchedComment) (bool, error)
}

type StatsStore interface {
	IncrementMatches(ctx context.Context, n int64) (int64, error)
	TotalMatches(ctx context.Context) (int64, error)
	Counts(ctx context.Context) (Counts, error)
}

// ReportStore feeds exports. limit <= 0 means everything, oldest first.
type ReportStore interface {
	ListCheckedPosts(ctx context.Context, limit int) ([]CheckedPost, error)
	ListMatchedComments(ctx context.Context, limit int) ([]MatchedComment, error)
}

type AuditStore interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
}

// Store is the full persistence API.
type Store interface {
	PageStore
	KeywordStore
	ChatStore
	DedupStore
	StatsStore
	ReportStore
	AuditStore
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver {
	case "", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Path) == "" {
			cfg.Path = "./data/vkwatch.db"
		}
		return openSQLite(cfg, log)
	case "file":
		return openFile(cfg, log)
	case "none":
		return nil, ErrDisabled
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
