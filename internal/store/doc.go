// Package store persists SpecSessions.
//
// Three backends implement the same contract:
//   - FileStore: one JSON document per session, atomic temp-file replacement
//   - SQLiteStore: a sessions table plus an append-only session_history mirror
//   - RedisStore: one key per session plus an index set
//
// Contract:
//   - Create fails with INVALID_INPUT if the id already exists
//   - Get and Put fail with SESSION_NOT_FOUND for unknown ids; Put never creates
//   - Every write replaces the whole document atomically
//   - List returns summaries sorted by session id
//
// There is no optimistic concurrency check: overlapping Puts on one id race
// and the last writer wins. Callers needing single-writer semantics wrap
// the orchestrator with per-session locks.
//
// # SQLite configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: history rows cascade with their session
package store
