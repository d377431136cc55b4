package bot

import (
	"sync"
	"time"
)

// pendingKey scopes a prompt to one user in one chat.
type pendingKey struct {
	chatID int64
	userID int64
}

type pendingEntry struct {
	route   string
	expires time.Time
}

// pendingInputs remembers which command prompted a user for free text.
type pendingInputs struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[pendingKey]pendingEntry
}

func newPendingInputs(ttl time.Duration) *pendingInputs {
	return &pendingInputs{ttl: ttl, m: map[pendingKey]pendingEntry{}}
}

func (p *pendingInputs) set(k pendingKey, route string, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, e := range p.m {
		if now.After(e.expires) {
			delete(p.m, key)
		}
	}
	p.m[k] = pendingEntry{route: route, expires: now.Add(p.ttl)}
}

// take returns and forgets the prompt for k.
func (p *pendingInputs) take(k pendingKey, now time.Time) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[k]
	if !ok {
		return "", false
	}
	delete(p.m, k)
	if now.After(e.expires) {
		return "", false
	}
	return e.route, true
}

func (p *pendingInputs) clear(k pendingKey) {
	p.mu.Lock()
	delete(p.m, k)
	p.mu.Unlock()
}
