package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"vkwatch/pkg/logx"
)

// fileStore keeps all state in memory and persists it as:
//   - <prefix>.snapshot.json  (full state, replaced atomically on compaction)
//   - <prefix>.journal.jsonl  (append-only mutations since the snapshot)
//   - <prefix>.audit.jsonl    (append-only operator log)
//
// Every mutation is journaled and fsynced before the call returns. Journal
// records carry a sequence number and the snapshot remembers the last one it
// contains, so replaying a journal that outlived its compaction is a no-op.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File
	audit        *os.File
	writes       int
	compactEvery int

	st fileState
}

type fileState struct {
	Pages    []Page           `json:"pages"`
	Keywords []string         `json:"keywords"`
	Chats    []Chat           `json:"chats"`
	Checked  []CheckedPost    `json:"checked"`
	Matched  []MatchedComment `json:"matched"`
	Total    int64            `json:"total_matches"`
	Seq      uint64           `json:"seq"`

	checkedIdx map[string]int
	matchedIdx map[string]struct{}
}

// journalOp is one persisted mutation. Exactly one payload field is set per Op.
type journalOp struct {
	Seq     uint64          `json:"seq,omitempty"`
	Op      string          `json:"op"`
	Page    *Page           `json:"page,omitempty"`
	Domain  string          `json:"domain,omitempty"`
	Keyword string          `json:"keyword,omitempty"`
	Chat    *Chat           `json:"chat,omitempty"`
	ChatID  int64           `json:"chat_id,omitempty"`
	Checked *CheckedPost    `json:"checked,omitempty"`
	Matched *MatchedComment `json:"matched,omitempty"`
	N       int64           `json:"n,omitempty"`
}

const (
	opPageAdd     = "page.add"
	opPageDel     = "page.del"
	opKeywordAdd  = "keyword.add"
	opKeywordDel  = "keyword.del"
	opKeywordWipe = "keyword.wipe"
	opChatAdd     = "chat.add"
	opChatDel     = "chat.del"
	opChecked     = "checked"
	opMatched     = "matched"
	opTotal       = "total.add"
)

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		snapshotPath: prefix + ".snapshot.json",
		compactEvery: 500,
	}
	if err := s.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	s.st.reindex()
	jf, err := os.OpenFile(prefix+".journal.jsonl", os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := s.replay(jf); err != nil {
		_ = jf.Close()
		return nil, err
	}
	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = jf.Close()
		return nil, err
	}
	s.journal = jf
	s.audit = af
	return s, nil
}

func (s *fileStore) loadSnapshot() error {
	b, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, &s.st)
}

// replay applies every complete journal line and cuts off a torn tail, so
// the next append starts on a fresh line.
func (s *fileStore) replay(f *os.File) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r := bufio.NewReaderSize(f, 64*1024)
	var good int64
	n := 0
	for {
		line, err := r.ReadBytes('\n')
		if err == io.EOF {
			if len(line) > 0 {
				s.log.Warn("journal torn tail dropped", logx.Int("bytes", len(line)))
				if terr := f.Truncate(good); terr != nil {
					return terr
				}
			}
			break
		}
		if err != nil {
			return err
		}
		good += int64(len(line))
		var op journalOp
		if err := json.Unmarshal(line, &op); err != nil {
			s.log.Warn("journal record skipped", logx.Err(err))
			continue
		}
		s.st.apply(op)
		n++
	}
	s.log.Debug("journal replayed", logx.Int("records", n), logx.Int64("seq", int64(s.st.Seq)))
	return nil
}

func (st *fileState) reindex() {
	st.checkedIdx = make(map[string]int, len(st.Checked))
	for i, p := range st.Checked {
		st.checkedIdx[checkedKey(p.Domain, p.PostID)] = i
	}
	st.matchedIdx = make(map[string]struct{}, len(st.Matched))
	for _, m := range st.Matched {
		st.matchedIdx[m.Permalink] = struct{}{}
	}
}

func checkedKey(domain string, postID int64) string {
	b, _ := json.Marshal([]any{domain, postID})
	return string(b)
}

// apply mutates state for one journal record. Records at or below the
// snapshot sequence are already part of the state and are ignored.
func (st *fileState) apply(op journalOp) {
	if op.Seq != 0 {
		if op.Seq <= st.Seq {
			return
		}
		st.Seq = op.Seq
	}
	switch op.Op {
	case opPageAdd:
		if op.Page != nil && st.pageIndex(op.Page.Domain) < 0 {
			st.Pages = append(st.Pages, *op.Page)
		}
	case opPageDel:
		if i := st.pageIndex(op.Domain); i >= 0 {
			st.Pages = append(st.Pages[:i], st.Pages[i+1:]...)
		}
	case opKeywordAdd:
		if st.keywordIndex(op.Keyword) < 0 {
			st.Keywords = append(st.Keywords, op.Keyword)
		}
	case opKeywordDel:
		if i := st.keywordIndex(op.Keyword); i >= 0 {
			st.Keywords = append(st.Keywords[:i], st.Keywords[i+1:]...)
		}
	case opKeywordWipe:
		st.Keywords = nil
	case opChatAdd:
		if op.Chat != nil && st.chatIndex(op.Chat.ChatID) < 0 {
			st.Chats = append(st.Chats, *op.Chat)
		}
	case opChatDel:
		if i := st.chatIndex(op.ChatID); i >= 0 {
			st.Chats = append(st.Chats[:i], st.Chats[i+1:]...)
		}
	case opChecked:
		if op.Checked == nil {
			return
		}
		p := *op.Checked
		k := checkedKey(p.Domain, p.PostID)
		if i, ok := st.checkedIdx[k]; ok {
			cur := &st.Checked[i]
			cur.LastCheckedAt = p.LastCheckedAt
			cur.Preview = p.Preview
			cur.Checks++
			return
		}
		p.FirstCheckedAt = p.LastCheckedAt
		p.Checks = 1
		st.checkedIdx[k] = len(st.Checked)
		st.Checked = append(st.Checked, p)
	case opMatched:
		if op.Matched == nil {
			return
		}
		if _, ok := st.matchedIdx[op.Matched.Permalink]; ok {
			return
		}
		st.matchedIdx[op.Matched.Permalink] = struct{}{}
		st.Matched = append(st.Matched, *op.Matched)
	case opTotal:
		st.Total += op.N
	}
}

func (st *fileState) pageIndex(domain string) int {
	domain = normDomain(domain)
	for i, p := range st.Pages {
		if p.Domain == domain {
			return i
		}
	}
	return -1
}

func (st *fileState) keywordIndex(kw string) int {
	key := keywordKey(kw)
	for i, k := range st.Keywords {
		if keywordKey(k) == key {
			return i
		}
	}
	return -1
}

func (st *fileState) chatIndex(id int64) int {
	for i, c := range st.Chats {
		if c.ChatID == id {
			return i
		}
	}
	return -1
}

// commitLocked journals op, fsyncs, then applies it.
func (s *fileStore) commitLocked(op journalOp) error {
	if s.journal == nil {
		return ErrClosed
	}
	op.Seq = s.st.Seq + 1
	b, err := json.Marshal(op)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	fi, err := s.journal.Stat()
	if err != nil {
		return err
	}
	if _, err := s.journal.Write(b); err != nil {
		// a partial record would glue itself to the next one
		_ = s.journal.Truncate(fi.Size())
		return err
	}
	if err := s.journal.Sync(); err != nil {
		return err
	}
	s.st.apply(op)
	s.writes++
	if s.compactEvery > 0 && s.writes%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("store compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	b, err := json.Marshal(&s.st)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(s.snapshotPath, bytes.NewReader(b)); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 0)
	return err
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	if cerr := s.audit.Close(); err == nil {
		err = cerr
	}
	s.journal, s.audit = nil, nil
	return err
}

// ---- pages ----

func (s *fileStore) ListPages(ctx context.Context) ([]Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Page(nil), s.st.Pages...), nil
}

func (s *fileStore) AddPage(ctx context.Context, p Page) (bool, error) {
	p.Domain = normDomain(p.Domain)
	if p.Domain == "" {
		return false, errors.New("page domain is empty")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.pageIndex(p.Domain) >= 0 {
		return false, nil
	}
	return true, s.commitLocked(journalOp{Op: opPageAdd, Page: &p})
}

func (s *fileStore) DeletePage(ctx context.Context, domain string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.pageIndex(domain) < 0 {
		return false, nil
	}
	return true, s.commitLocked(journalOp{Op: opPageDel, Domain: normDomain(domain)})
}

// ---- keywords ----

func (s *fileStore) ListKeywords(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.st.Keywords...), nil
}

func (s *fileStore) AddKeyword(ctx context.Context, kw string) (bool, error) {
	kw = strings.Join(strings.Fields(kw), " ")
	if kw == "" {
		return false, errors.New("keyword is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.keywordIndex(kw) >= 0 {
		return false, nil
	}
	return true, s.commitLocked(journalOp{Op: opKeywordAdd, Keyword: kw})
}

func (s *fileStore) DeleteKeyword(ctx context.Context, kw string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.keywordIndex(kw) < 0 {
		return false, nil
	}
	return true, s.commitLocked(journalOp{Op: opKeywordDel, Keyword: kw})
}

func (s *fileStore) DeleteAllKeywords(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.st.Keywords)
	if n == 0 {
		return 0, nil
	}
	return n, s.commitLocked(journalOp{Op: opKeywordWipe})
}

// ---- chats ----

func (s *fileStore) ListChats(ctx context.Context) ([]Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Chat(nil), s.st.Chats...), nil
}

func (s *fileStore) AddChat(ctx context.Context, c Chat) (bool, error) {
	if c.ChatID == 0 {
		return false, errors.New("chat id is zero")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.chatIndex(c.ChatID) >= 0 {
		return false, nil
	}
	return true, s.commitLocked(journalOp{Op: opChatAdd, Chat: &c})
}

func (s *fileStore) DeleteChat(ctx context.Context, chatID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.chatIndex(chatID) < 0 {
		return false, nil
	}
	return true, s.commitLocked(journalOp{Op: opChatDel, ChatID: chatID})
}

func (s *fileStore) HasChat(ctx context.Context, chatID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.chatIndex(chatID) >= 0, nil
}

// ---- dedup ----

func (s *fileStore) RecordCheckedPost(ctx context.Context, p CheckedPost) (bool, error) {
	p.Domain = normDomain(p.Domain)
	if p.LastCheckedAt.IsZero() {
		p.LastCheckedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, seen := s.st.checkedIdx[checkedKey(p.Domain, p.PostID)]
	if err := s.commitLocked(journalOp{Op: opChecked, Checked: &p}); err != nil {
		return false, err
	}
	return !seen, nil
}

func (s *fileStore) SeenMatch(ctx context.Context, permalink string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, seen := s.st.matchedIdx[permalink]
	return seen, nil
}

func (s *fileStore) RecordMatchIfNew(ctx context.Context, m MatchedComment) (bool, error) {
	if strings.TrimSpace(m.Permalink) == "" {
		return false, errors.New("matched comment permalink is empty")
	}
	m.Domain = normDomain(m.Domain)
	if m.DetectedAt.IsZero() {
		m.DetectedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.st.matchedIdx[m.Permalink]; seen {
		return false, nil
	}
	if err := s.commitLocked(journalOp{Op: opMatched, Matched: &m}); err != nil {
		return false, err
	}
	return true, nil
}

// ---- stats ----

func (s *fileStore) IncrementMatches(ctx context.Context, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commitLocked(journalOp{Op: opTotal, N: n}); err != nil {
		return 0, err
	}
	return s.st.Total, nil
}

func (s *fileStore) TotalMatches(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Total, nil
}

func (s *fileStore) Counts(ctx context.Context) (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{
		Pages:           len(s.st.Pages),
		Keywords:        len(s.st.Keywords),
		Chats:           len(s.st.Chats),
		CheckedPosts:    len(s.st.Checked),
		MatchedComments: len(s.st.Matched),
		TotalMatches:    s.st.Total,
	}, nil
}

// ---- reports ----

func (s *fileStore) ListCheckedPosts(ctx context.Context, limit int) ([]CheckedPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return headCopy(s.st.Checked, limit), nil
}

func (s *fileStore) ListMatchedComments(ctx context.Context, limit int) ([]MatchedComment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return headCopy(s.st.Matched, limit), nil
}

func headCopy[T any](in []T, limit int) []T {
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return append([]T(nil), in...)
}

// ---- audit ----

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.audit).Encode(e)
}
