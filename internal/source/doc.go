// Package source reads restaurant snapshots from the record store and
// writes back the only two things the engine owns there: booking status
// (with its check-in and seating stamps) and table assignments.
//
// SQLSource speaks plain database/sql with '?' placeholders and runs
// against MySQL in production (github.com/go-sql-driver/mysql) and SQLite
// locally and in tests (github.com/mattn/go-sqlite3). MemorySource backs
// simulations.
package source
