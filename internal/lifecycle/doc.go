// Package lifecycle validates and applies dining-status transitions for a
// single booking.
//
// Two transition policies coexist and the caller picks one per call site:
//
//   - StrictPolicy: the declared lifecycle graph (pending -> confirmed ->
//     arrived -> seated -> ... -> completed, plus cancellations).
//   - OverridePolicy: staff corrections. Any non-terminal status may be set
//     from a non-terminal status; a terminal status may only be reverted to
//     pending, confirmed, arrived or seated.
//
// A rejected transition returns *InvalidTransitionError and never coerces
// the booking into a different status. Every accepted transition yields an
// immutable HistoryEntry stamped with a monotonic sequence number.
package lifecycle
