// Package occupancy computes, for a restaurant at an instant, whether each
// active table is occupied, by which booking, and which confirmed booking
// is next.
//
// Resolve is a pure function of (tables, bookings, now). It performs no I/O
// and keeps no state between calls; callers inject the snapshot.
//
// A table is occupied by a booking when either
//
//	(a) the booking is physically present (arrived .. payment), irrespective
//	    of the clock, or
//	(b) booking_time <= now <= booking_time + turn_time.
//
// At most one booking may satisfy (a) per table. When several do, the
// earliest-present one is reported and the rest surface as issues.
package occupancy
