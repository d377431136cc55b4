package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"vkwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsSQL string

const counterTotalMatches = "total_matches"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers, which makes insert-if-absent atomic.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if _, err := db.ExecContext(context.Background(), migrationsSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- pages ----

func (s *sqliteStore) ListPages(ctx context.Context) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT domain, group_id, created_at FROM pages ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Page
	for rows.Next() {
		var p Page
		var at string
		if err := rows.Scan(&p.Domain, &p.GroupID, &at); err != nil {
			return nil, err
		}
		p.CreatedAt = parseTime(at)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AddPage(ctx context.Context, p Page) (bool, error) {
	domain := normDomain(p.Domain)
	if domain == "" {
		return false, errors.New("page domain is empty")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pages(domain, group_id, created_at) VALUES(?,?,?) ON CONFLICT(domain) DO NOTHING`,
		domain, p.GroupID, formatTime(p.CreatedAt))
	return affected(res, err)
}

func (s *sqliteStore) DeletePage(ctx context.Context, domain string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE domain = ?`, normDomain(domain))
	return affected(res, err)
}

// ---- keywords ----

func (s *sqliteStore) ListKeywords(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT keyword FROM keywords ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return nil, err
		}
		out = append(out, kw)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AddKeyword(ctx context.Context, kw string) (bool, error) {
	key := keywordKey(kw)
	if key == "" {
		return false, errors.New("keyword is empty")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO keywords(keyword, key, created_at) VALUES(?,?,?) ON CONFLICT(key) DO NOTHING`,
		strings.Join(strings.Fields(kw), " "), key, formatTime(time.Now()))
	return affected(res, err)
}

func (s *sqliteStore) DeleteKeyword(ctx context.Context, kw string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM keywords WHERE key = ?`, keywordKey(kw))
	return affected(res, err)
}

func (s *sqliteStore) DeleteAllKeywords(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM keywords`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ---- chats ----

func (s *sqliteStore) ListChats(ctx context.Context) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, chat_type, title, created_at FROM chats ORDER BY created_at, chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Chat
	for rows.Next() {
		var c Chat
		var at string
		if err := rows.Scan(&c.ChatID, &c.Type, &c.Title, &at); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(at)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AddChat(ctx context.Context, c Chat) (bool, error) {
	if c.ChatID == 0 {
		return false, errors.New("chat id is zero")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chats(chat_id, chat_type, title, created_at) VALUES(?,?,?,?) ON CONFLICT(chat_id) DO NOTHING`,
		c.ChatID, c.Type, c.Title, formatTime(c.CreatedAt))
	return affected(res, err)
}

func (s *sqliteStore) DeleteChat(ctx context.Context, chatID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE chat_id = ?`, chatID)
	return affected(res, err)
}

func (s *sqliteStore) HasChat(ctx context.Context, chatID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM chats WHERE chat_id = ?`, chatID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// ---- dedup ----

func (s *sqliteStore) RecordCheckedPost(ctx context.Context, p CheckedPost) (bool, error) {
	at := p.LastCheckedAt
	if at.IsZero() {
		at = time.Now()
	}
	var checks int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO checked_posts(domain, post_id, group_id, preview, first_checked_at, last_checked_at, checks)
		 VALUES(?,?,?,?,?,?,1)
		 ON CONFLICT(domain, post_id) DO UPDATE SET
		   last_checked_at = excluded.last_checked_at,
		   preview = excluded.preview,
		   checks = checks + 1
		 RETURNING checks`,
		normDomain(p.Domain), p.PostID, p.GroupID, p.Preview, formatTime(at), formatTime(at),
	).Scan(&checks)
	if err != nil {
		return false, err
	}
	return checks == 1, nil
}

func (s *sqliteStore) SeenMatch(ctx context.Context, permalink string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM matched_comments WHERE permalink = ?`, permalink).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *sqliteStore) RecordMatchIfNew(ctx context.Context, m MatchedComment) (bool, error) {
	if strings.TrimSpace(m.Permalink) == "" {
		return false, errors.New("matched comment permalink is empty")
	}
	if m.DetectedAt.IsZero() {
		m.DetectedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO matched_comments(permalink, domain, group_id, post_id, comment_id, author_id,
		   author_name, author_link, city, text, keyword, detected_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(permalink) DO NOTHING`,
		m.Permalink, normDomain(m.Domain), m.GroupID, m.PostID, m.CommentID, m.AuthorID,
		m.AuthorName, m.AuthorLink, m.City, m.Text, m.Keyword, formatTime(m.DetectedAt))
	return affected(res, err)
}

// ---- stats ----

func (s *sqliteStore) IncrementMatches(ctx context.Context, n int64) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO counters(name, value) VALUES(?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = value + excluded.value
		 RETURNING value`, counterTotalMatches, n).Scan(&total)
	return total, err
}

func (s *sqliteStore) TotalMatches(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM counters WHERE name = ?`, counterTotalMatches).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return total, err
}

func (s *sqliteStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM pages),
		(SELECT COUNT(*) FROM keywords),
		(SELECT COUNT(*) FROM chats),
		(SELECT COUNT(*) FROM checked_posts),
		(SELECT COUNT(*) FROM matched_comments),
		COALESCE((SELECT value FROM counters WHERE name = ?), 0)`, counterTotalMatches,
	).Scan(&c.Pages, &c.Keywords, &c.Chats, &c.CheckedPosts, &c.MatchedComments, &c.TotalMatches)
	return c, err
}

// ---- reports ----

func (s *sqliteStore) ListCheckedPosts(ctx context.Context, limit int) ([]CheckedPost, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, group_id, post_id, preview, first_checked_at, last_checked_at, checks
		 FROM checked_posts ORDER BY seq LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CheckedPost
	for rows.Next() {
		var p CheckedPost
		var first, last string
		if err := rows.Scan(&p.Domain, &p.GroupID, &p.PostID, &p.Preview, &first, &last, &p.Checks); err != nil {
			return nil, err
		}
		p.FirstCheckedAt = parseTime(first)
		p.LastCheckedAt = parseTime(last)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListMatchedComments(ctx context.Context, limit int) ([]MatchedComment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT permalink, domain, group_id, post_id, comment_id, author_id, author_name,
		   author_link, city, text, keyword, detected_at
		 FROM matched_comments ORDER BY seq LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MatchedComment
	for rows.Next() {
		var m MatchedComment
		var at string
		if err := rows.Scan(&m.Permalink, &m.Domain, &m.GroupID, &m.PostID, &m.CommentID, &m.AuthorID,
			&m.AuthorName, &m.AuthorLink, &m.City, &m.Text, &m.Keyword, &at); err != nil {
			return nil, err
		}
		m.DetectedAt = parseTime(at)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ---- audit ----

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor_id, actor_name, chat_id, action, target, ok, err) VALUES(?,?,?,?,?,?,?,?)`,
		formatTime(e.At), e.ActorID, nullStr(e.ActorName), e.ChatID, e.Action, nullStr(e.Target), e.OK, nullStr(e.Error))
	return err
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// sqlLimit maps "no limit" onto SQLite's LIMIT -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
