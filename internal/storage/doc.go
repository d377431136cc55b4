// Package storage persists vkwatch state: tracked pages, keywords, subscriber
// chats, the checked-post log, the matched-comment dedup record, run counters
// and the operator audit log.
//
// Two drivers share one contract:
//   - "sqlite": a single SQLite file (default)
//   - "file": JSON snapshot plus an append-only journal, compacted periodically
package storage
