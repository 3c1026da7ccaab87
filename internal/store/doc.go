// Package store provides the SQLite-backed reaction store for engage.
//
// One database holds both sides of the engagement fact:
//   - reactions: the per-user reaction record, one row per (post_id, user_id)
//   - posts: the post repository, including the cached reaction_count and comment_count
//   - post_reaction_kinds: the per-kind histogram behind reaction_count
//   - reaction_events: append-only audit log of record changes
//
// # Write Patterns
//
// SwapUserReaction reads the previous entry and writes the new one inside a
// single transaction, so the caller's delta is always computed from the value
// that was actually replaced. Other users' rows are never touched.
//
// ApplyDelta performs its read-modify-write of the counter inside its own
// transaction and clamps at zero. It retries on SQLITE_BUSY/SQLITE_LOCKED a
// bounded number of times, then reports STORE_UNAVAILABLE.
//
// The two writes are deliberately separate: the reaction rows are the durable
// fact and the counter is a cache that Reset can rebuild from them.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - _txlock=immediate: Transactions take the write lock up front
package store
