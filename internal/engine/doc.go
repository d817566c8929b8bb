// Package engine runs the tower simulation.
//
// An Engine owns the arena tables of one session (floors, passengers, the car) and the
// subsystems that act on them. Everything happens inside Tick, in a fixed order:
// queued inputs, car movement, boarding and delivery, patience and spawning, the
// disaster triggers, disaster updates, then scoring and balance read back whatever the
// tick appended to the event log. Nothing else mutates the tables, so a session is
// reproducible from its seed and its input stream.
package engine
