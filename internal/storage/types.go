package storage

import (
	"errors"
	"strings"
	"time"

	"vkwatch/internal/match"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite" (default): SQLite database file
//   - "file": journal + snapshot files sharing Path as prefix
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Page is a tracked VK community wall.
type Page struct {
	Domain    string    `json:"domain"`
	GroupID   int64     `json:"group_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Chat is a Telegram chat subscribed to alerts.
type Chat struct {
	ChatID    int64     `json:"chat_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// CheckedPost records that a post was inspected. One row per (page, post);
// later checks bump LastCheckedAt and Checks.
type CheckedPost struct {
	Domain         string    `json:"domain"`
	GroupID        int64     `json:"group_id"`
	PostID         int64     `json:"post_id"`
	Preview        string    `json:"preview"`
	FirstCheckedAt time.Time `json:"first_checked_at"`
	LastCheckedAt  time.Time `json:"last_checked_at"`
	Checks         int       `json:"checks"`
}

// MatchedComment is the durable dedup record of an alerted comment, keyed by Permalink.
type MatchedComment struct {
	Permalink  string    `json:"permalink"`
	Domain     string    `json:"domain"`
	GroupID    int64     `json:"group_id"`
	PostID     int64     `json:"post_id"`
	CommentID  int64     `json:"comment_id"`
	AuthorID   int64     `json:"author_id"`
	AuthorName string    `json:"author_name"`
	AuthorLink string    `json:"author_link"`
	City       string    `json:"city"`
	Text       string    `json:"text"`
	Keyword    string    `json:"keyword"`
	DetectedAt time.Time `json:"detected_at"`
}

// Counts summarises table sizes for status output.
type Counts struct {
	Pages           int
	Keywords        int
	Chats           int
	CheckedPosts    int
	MatchedComments int
	TotalMatches    int64
}

// AuditEntry records an operator action.
type AuditEntry struct {
	At        time.Time `json:"at"`
	ActorID   int64     `json:"actor_id"`
	ActorName string    `json:"actor_name,omitempty"`
	ChatID    int64     `json:"chat_id"`
	Action    string    `json:"action"`
	Target    string    `json:"target,omitempty"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
}

// keywordKey is the uniqueness key for keywords; it folds the way matching does.
func keywordKey(kw string) string {
	return match.Key(kw)
}

func normDomain(d string) string {
	return strings.ToLower(strings.TrimSpace(d))
}
