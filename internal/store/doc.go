// Package store provides SQLite-backed storage for the state the engine
// owns: status history, conflicts, sent notifications and scheduled
// auto-progress transitions.
//
// Booking, table and assignment records are never written here; they are
// read from the record store through package source.
//
// # Idempotency
//
//   - status_history is keyed by the logical sequence number
//   - conflicts are unique per (walk_in_booking_id, upcoming_booking_id)
//   - notifications are unique per (conflict_id, threshold), which is what
//     makes escalation record-then-emit safe across restarts
//   - at most one scheduled transition per (booking_id, from_status)
//
// # Time
//
// Timestamps are stored as fixed-width UTC text so that string comparison
// in SQL orders them correctly.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
