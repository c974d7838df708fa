// Package escalation turns open conflicts into staff notifications on a
// fixed ladder: warning at 60 minutes before arrival, urgent at 30, and
// overdue once the arrival time has passed.
//
// A conflict only moves forward on the ladder. Each tick sends at most the
// highest threshold crossed since the last send; a threshold skipped over
// (for example when the engine was down) is never sent later. The sent
// record is written before the notification is handed to delivery, keyed by
// (conflict id, threshold), so a restart or a repeated tick cannot send the
// same threshold twice.
//
// The package also carries the auto-progress task queue that replaces the
// client-side "arrived for two minutes, mark seated" timer.
package escalation
