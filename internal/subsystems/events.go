// Package subsystems implements the twelve per-tick steps the Turn Pipeline
// Scheduler drives in fixed order (§4.1). Each step function takes the
// shared World and Config and mutates World in place; a step never blocks,
// never spawns goroutines, and never returns a fatal error — soft failures
// are logged and the step continues (§7).
package subsystems

import "github.com/talgya/shadow-scale/internal/fixedpoint"

// EventKind discriminates the events a tick can emit for the script bridge
// and broadcast layer to observe (§4.1, §4.6, §4.7, §4.5).
type EventKind uint8

const (
	EventDiffusion EventKind = iota
	EventMigration
	EventDriftWarning
	EventAssimilationPush
	EventSchismRisk
	EventCrisisIncident
	EventGreatDiscovery
	EventEspionageProbe
	EventCounterIntelSweep
	EventLeak
	EventCascade
	EventCorruptionExposed
)

// Event is a single tick-scoped occurrence produced by a subsystem step.
// Fields not relevant to Kind are left zero.
type Event struct {
	Kind         EventKind
	Tick         uint64
	OwnerFaction uint32
	TargetFaction uint32
	DiscoveryID  string
	Entity       uint64
	Magnitude    fixedpoint.Scalar
	Detail       string
}

// Sink collects events emitted during one tick. The scheduler owns the
// Sink's lifetime (fresh each tick) and hands the accumulated slice to
// snapshot assembly and the script bridge after step 13.
type Sink struct {
	Events []Event
}

// Emit appends an event to the sink.
func (s *Sink) Emit(ev Event) {
	s.Events = append(s.Events, ev)
}
