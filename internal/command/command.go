// Package command defines the typed command values the ingress decodes
// from framed envelopes (§6.1) and the unbounded MPSC queue that delivers
// them to the simulation thread (§4.2, §5).
package command

import "github.com/talgya/shadow-scale/internal/simstate"

// Command is the decoded form of one ingress envelope payload. Each
// variant mirrors one row of the §6.1 wire table.
type Command interface {
	isCommand()
}

// Turn submits end-turn orders for every still-pending faction, then
// resolves a ready turn exactly Steps times (§4.2).
type Turn struct {
	Steps uint32
}

// ResetMap rebuilds the world at the requested dimensions. Zero or
// unchanged dims are rejected at apply time.
type ResetMap struct {
	Width, Height uint32
}

// Heat adds DeltaRaw (raw fixed-point) to a tile's temperature.
type Heat struct {
	Entity   uint64
	DeltaRaw int64
}

// OrdersDirective is the directive payload of an Orders command. Ready is
// the only directive the wire currently carries.
type OrdersDirective uint8

const (
	DirectiveReady OrdersDirective = iota
)

// Orders submits one faction's orders to the turn queue (§4.3).
type Orders struct {
	FactionID uint32
	Directive OrdersDirective
}

// Rollback restores the world from the stored snapshot at Tick (§4.11).
type Rollback struct {
	Tick uint64
}

// AxisBias sets one sentiment policy axis (§6.1, axis in [0,4),
// value in [-1,1]).
type AxisBias struct {
	Axis  uint32
	Value float32
}

// SupportInfluencer raises an influencer's notoriety.
type SupportInfluencer struct {
	ID        uint32
	Magnitude float32
}

// SuppressInfluencer lowers an influencer's notoriety.
type SuppressInfluencer struct {
	ID        uint32
	Magnitude float32
}

// SupportInfluencerChannel boosts one of an influencer's four support
// channels.
type SupportInfluencerChannel struct {
	ID        uint32
	Channel   simstate.InfluencerChannel
	Magnitude float32
}

// SpawnInfluencer adds a Potential influencer to the roster. Scope and
// Generation are optional on the wire; nil means "let the roster pick".
type SpawnInfluencer struct {
	Scope      *simstate.InfluencerScope
	Generation *uint32
}

// InjectCorruption adds an incident to the corruption ledger.
type InjectCorruption struct {
	Subsystem     simstate.CorruptionSubsystem
	Intensity     float32
	ExposureTimer uint32
}

// GeneratorUpdate is one entry of an UpdateEspionageGenerators command;
// nil fields were absent on the wire and leave the current value alone.
type GeneratorUpdate struct {
	TemplateID string
	Enabled    *bool
	PerFaction *uint32
}

// UpdateEspionageGenerators adjusts the espionage generator settings.
type UpdateEspionageGenerators struct {
	Updates []GeneratorUpdate
}

// QueueEspionageMission enqueues a mission request; TargetTier and
// ScheduledTick fall back to the queue defaults when absent (§4.5).
type QueueEspionageMission struct {
	MissionID         string
	OwnerFaction      uint32
	TargetOwnerFaction uint32
	DiscoveryID       string
	AgentHandle       string
	TargetTier        *uint8
	ScheduledTick     *uint64
}

// UpdateEspionageQueueDefaults changes the fallbacks QueueEspionageMission
// uses for absent optional fields.
type UpdateEspionageQueueDefaults struct {
	ScheduledTickOffset *uint64
	TargetTier          *uint8
}

// ReloadKind selects which reloadable config a ReloadConfig targets.
type ReloadKind uint8

const (
	ReloadSimulation ReloadKind = iota
	ReloadTurnPipeline
	ReloadSnapshotOverlays
)

// ReloadConfig parses the file at Path (or the builtin default when Path
// is empty) and hot-swaps the named config resource (§4.2).
type ReloadConfig struct {
	Kind ReloadKind
	Path string
}

func (Turn) isCommand()                         {}
func (ResetMap) isCommand()                     {}
func (Heat) isCommand()                         {}
func (Orders) isCommand()                       {}
func (Rollback) isCommand()                     {}
func (AxisBias) isCommand()                     {}
func (SupportInfluencer) isCommand()            {}
func (SuppressInfluencer) isCommand()           {}
func (SupportInfluencerChannel) isCommand()     {}
func (SpawnInfluencer) isCommand()              {}
func (InjectCorruption) isCommand()             {}
func (UpdateEspionageGenerators) isCommand()    {}
func (QueueEspionageMission) isCommand()        {}
func (UpdateEspionageQueueDefaults) isCommand() {}
func (ReloadConfig) isCommand()                 {}
