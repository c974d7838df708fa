// Package engine runs the recompute pipeline for each restaurant.
//
// ARCHITECTURE:
//
// Single-Writer Worker Per Restaurant:
// Every restaurant id gets one worker goroutine with its own FIFO queue.
// All cycles for a restaurant run in that goroutine (or under its lock for
// synchronous calls), so history, conflicts and notifications for one
// restaurant are written by exactly one writer at a time. Different
// restaurants run concurrently.
//
// Triggers:
// Change events from the record store and periodic ticks both feed the
// same queue. Ticks coalesce: at most one tick is pending per worker. A
// worker drains everything queued and runs a single cycle for the batch.
//
// Cycle (strict order):
//  1. Load the snapshot from the SnapshotSource
//  2. Observe status changes against the last snapshot, append history
//  3. Apply due auto-progress transitions
//  4. Resolve occupancy
//  5. Detect conflicts against the stored set, persist the result
//  6. Run the escalation ladder, deliver new notifications
//  7. Publish the board to the cache
//
// Each cycle runs under a hard deadline. Failures are logged with their
// RuntimeError code and the worker continues with the next trigger.
package engine
