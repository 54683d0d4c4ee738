// Package store provides the SQLite connection used by storage engines.
//
// A Conn wraps a single-connection database/sql pool and adds:
//   - Nested transactions collapsed to one reference count: only the
//     outermost Begin and Commit touch the database, Rollback at any depth
//     rolls back the whole transaction
//   - Statement execution routed through the active transaction
//   - An LRU cache of prepared statements, re-bound to the active transaction
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// A Conn is not safe for concurrent use; it belongs to one unit of work.
package store
