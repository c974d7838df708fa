// Package simulate replays scripted service periods against the engine.
//
// A scenario seeds tables and bookings into an in-memory record store,
// then walks a list of steps on a fake clock: ticks run one synchronous
// recompute, transitions go through the engine's lifecycle policy, and
// assign/unassign edit table assignments behind the engine's back the way
// a host stand would. Expect steps check the board, conflicts and
// notifications left by the latest tick.
//
// Every run is deterministic: notification ids come from a sequence
// generator and all times are UTC on the scenario date. The trace is
// compared with golden files in tests and printed by `tableflow simulate`.
package simulate
