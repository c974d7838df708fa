// Package conflict reconciles seated walk-ins against upcoming confirmed
// reservations on the same table.
//
// A conflict exists while a table is occupied by a physically-present
// booking and a confirmed booking on that table arrives within the
// lookahead horizon (3 hours). Conflicts are keyed by the pair
// (walk-in id, upcoming id) so detection is idempotent; urgency is derived
// from the current time on every evaluation.
//
// Conflicts are never dropped once created. When the walk-in leaves, is
// moved off the shared tables, or the reservation is released, the
// conflict is marked resolved and kept for audit.
package conflict
