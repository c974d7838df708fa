// Package domain defines the shared types of the tableflow engine.
//
// Bookings, tables and table assignments are owned by the external record
// store; the engine only reads them as a Snapshot. Occupancy records,
// conflicts and notifications are derived here and carried between the
// pipeline stages:
//
//	ChangeEvent -> lifecycle -> occupancy -> conflict -> escalation
//
// CRITICAL PATTERNS:
//
// Physically present: a booking whose status is one of arrived, seated,
// ordered, appetizers, main_course, dessert or payment occupies its tables
// regardless of the clock. At most one such booking may hold a table.
//
// Stable identity: conflict ids are content-addressed from the pair of
// booking ids, so repeated detection yields the same key.
package domain
