package simstate

import (
	"github.com/talgya/shadow-scale/internal/ecs"
	"github.com/talgya/shadow-scale/internal/fixedpoint"
)

// Config is the Simulation Config singleton (§3.3).
type Config struct {
	GridWidth, GridHeight int
	Seed                  int64
	AmbientTemperature    fixedpoint.Scalar
	DefaultLinkCapacity   fixedpoint.Scalar
	PopulationGrowthRate  fixedpoint.Scalar
	StabilityWarnThreshold    fixedpoint.Scalar
	StabilityCriticalThreshold fixedpoint.Scalar
	CommandBindAddr       string
	SnapshotBindAddr      string
	SnapshotFlatBindAddr  string
	LogBindAddr           string
	SnapshotHistoryLimit  int
	TemperatureLerp       fixedpoint.Scalar
	Conductivity          fixedpoint.Scalar
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		GridWidth:            64,
		GridHeight:           64,
		Seed:                 1,
		AmbientTemperature:   fixedpoint.FromFloat32(0.5),
		DefaultLinkCapacity:  fixedpoint.FromFloat32(1.0),
		PopulationGrowthRate: fixedpoint.FromFloat32(0.01),
		StabilityWarnThreshold:     fixedpoint.FromFloat32(0.4),
		StabilityCriticalThreshold: fixedpoint.FromFloat32(0.15),
		CommandBindAddr:      "127.0.0.1:7301",
		SnapshotBindAddr:     "127.0.0.1:7302",
		SnapshotFlatBindAddr: "127.0.0.1:7303",
		LogBindAddr:          "127.0.0.1:7304",
		SnapshotHistoryLimit: 256,
		TemperatureLerp:      fixedpoint.FromFloat32(0.35),
		Conductivity:         fixedpoint.FromFloat32(0.2),
	}
}

// SmallTestConfig returns a tiny configuration for fast, deterministic
// tests.
func SmallTestConfig() Config {
	c := DefaultConfig()
	c.GridWidth, c.GridHeight = 4, 4
	c.SnapshotHistoryLimit = 32
	return c
}

// Tick is the Simulation Tick singleton: monotonic except on rollback
// (§3.4, invariant 5).
type Tick struct {
	Value uint64
}

// FactionRegistry, GenerationRegistry, and TileRegistry hold ordered id
// lists so iteration is always canonical (§3.3, §4.1 tie-breaks).
type FactionRegistry struct{ IDs []uint32 }
type GenerationRegistry struct{ IDs []uint32 }
type TileRegistry struct{ IDs []ecs.EntityID }

// KnowledgeEntryFlag is the bitmask carried on each KnowledgeEntry (§4.4).
type KnowledgeEntryFlag uint8

const (
	FlagCommonKnowledge KnowledgeEntryFlag = 1 << iota
	FlagCascadePending
)

// Countermeasure is an active defensive measure against espionage on a
// knowledge ledger entry (§4.4, §4.5).
type Countermeasure struct {
	Kind            string
	Potency         fixedpoint.Scalar
	RemainingTicks  uint32
}

// Infiltration records an active or decaying espionage foothold (§4.4).
type Infiltration struct {
	AgentHandle string
	Suspicion   fixedpoint.Scalar
	Fidelity    fixedpoint.Scalar
	Cells       uint32
}

// KnowledgeOwnerDiscovery is the composite key for the Knowledge Ledger.
type KnowledgeOwnerDiscovery struct {
	OwnerFaction uint32
	DiscoveryID  string
}

// KnowledgeEntry is a single ledger row (§4.4).
type KnowledgeEntry struct {
	Tier            uint8
	ProgressPercent fixedpoint.Scalar // 0..100
	BaseHalfLife    uint32
	TimeToCascade   uint32
	SecurityPosture fixedpoint.Scalar
	Countermeasures []Countermeasure
	Infiltrations   []Infiltration
	ModifierDeltas  []int32
	Flags           KnowledgeEntryFlag
}

// TimelineEventKind enumerates the knowledge-ledger timeline event types.
type TimelineEventKind uint8

const (
	TimelineLeak TimelineEventKind = iota
	TimelineCounterIntel
	TimelineProbe
	TimelineCascade
)

// TimelineEvent is one entry in the bounded circular timeline (§4.4).
type TimelineEvent struct {
	Tick        uint64
	Kind        TimelineEventKind
	OwnerFaction uint32
	DiscoveryID string
	Detail      string
}

// DefaultTimelineCapacity is the default bounded ring size (§4.4).
const DefaultTimelineCapacity = 64

// KnowledgeLedger is the Knowledge Ledger singleton (§3.3, §4.4).
type KnowledgeLedger struct {
	Entries  map[KnowledgeOwnerDiscovery]*KnowledgeEntry
	Timeline []TimelineEvent // ring buffer, oldest overwritten at capacity
	Capacity int
}

// NewKnowledgeLedger creates an empty ledger with the default timeline size.
func NewKnowledgeLedger() *KnowledgeLedger {
	return &KnowledgeLedger{
		Entries:  make(map[KnowledgeOwnerDiscovery]*KnowledgeEntry),
		Capacity: DefaultTimelineCapacity,
	}
}

// PushTimeline appends an event, dropping the oldest once Capacity is
// exceeded.
func (l *KnowledgeLedger) PushTimeline(ev TimelineEvent) {
	l.Timeline = append(l.Timeline, ev)
	if len(l.Timeline) > l.Capacity {
		l.Timeline = l.Timeline[len(l.Timeline)-l.Capacity:]
	}
}

// DiscoveryProgressLedger is the nested faction→discovery progress map
// (§3.3, §4.1 step 3/4).
type DiscoveryProgressLedger struct {
	Progress map[uint32]map[string]fixedpoint.Scalar
}

// NewDiscoveryProgressLedger creates an empty ledger.
func NewDiscoveryProgressLedger() *DiscoveryProgressLedger {
	return &DiscoveryProgressLedger{Progress: make(map[uint32]map[string]fixedpoint.Scalar)}
}

// Add accumulates progress for (faction, discovery), clamped to [0,1].
func (l *DiscoveryProgressLedger) Add(faction uint32, discovery string, delta fixedpoint.Scalar) fixedpoint.Scalar {
	byDiscovery, ok := l.Progress[faction]
	if !ok {
		byDiscovery = make(map[string]fixedpoint.Scalar)
		l.Progress[faction] = byDiscovery
	}
	updated := byDiscovery[discovery].Add(delta).Clamp(fixedpoint.Zero, fixedpoint.One)
	byDiscovery[discovery] = updated
	return updated
}

// CorruptionSubsystem enumerates the subsystems a CorruptionIncident can
// target (§6.1).
type CorruptionSubsystem uint8

const (
	CorruptionLogistics CorruptionSubsystem = iota
	CorruptionTrade
	CorruptionMilitary
	CorruptionGovernance
)

// CorruptionIncident is a single active corruption event (§3.3, §4.1 step 12).
type CorruptionIncident struct {
	Intensity     fixedpoint.Scalar // -5..5
	ExposureTimer uint32
}

// CorruptionLedger is the per-subsystem incident list singleton (§3.3).
type CorruptionLedger struct {
	BySubsystem map[CorruptionSubsystem][]*CorruptionIncident
}

// NewCorruptionLedger creates an empty ledger.
func NewCorruptionLedger() *CorruptionLedger {
	return &CorruptionLedger{BySubsystem: make(map[CorruptionSubsystem][]*CorruptionIncident)}
}

// Multiplier returns the corruption multiplier applied by the power grid
// step (§4.9) for the given subsystem: 1 minus 0.05 per point of summed
// positive intensity, floored at 0.2.
func (l *CorruptionLedger) Multiplier(sub CorruptionSubsystem) fixedpoint.Scalar {
	total := fixedpoint.Zero
	for _, inc := range l.BySubsystem[sub] {
		if inc.Intensity.Gt(fixedpoint.Zero) {
			total = total.Add(inc.Intensity)
		}
	}
	penalty := total.Mul(fixedpoint.FromFloat32(0.05))
	return fixedpoint.One.Sub(penalty).Clamp(fixedpoint.FromFloat32(0.2), fixedpoint.One)
}

// CrisisTelemetry and TradeTelemetry hold per-tick gauge history (§3.3,
// §4.7).
type CrisisTelemetry struct {
	Gauges map[string]*TelemetryGauge
}

// TelemetryGauge maintains an EMA, a bounded trend window, and the last
// classified severity band (§4.7).
type TelemetryGauge struct {
	EMA      fixedpoint.Scalar
	Alpha    fixedpoint.Scalar
	Window   []fixedpoint.Scalar
	Capacity int
	Band     string
}

// Update folds a new sample into the EMA and trend window, returning the
// updated EMA.
func (g *TelemetryGauge) Update(sample fixedpoint.Scalar) fixedpoint.Scalar {
	g.EMA = g.EMA.Mul(fixedpoint.One.Sub(g.Alpha)).Add(sample.Mul(g.Alpha))
	g.Window = append(g.Window, sample)
	if g.Capacity <= 0 {
		g.Capacity = 32
	}
	if len(g.Window) > g.Capacity {
		g.Window = g.Window[len(g.Window)-g.Capacity:]
	}
	return g.EMA
}

// NewCrisisTelemetry creates an empty telemetry resource.
func NewCrisisTelemetry() *CrisisTelemetry {
	return &CrisisTelemetry{Gauges: make(map[string]*TelemetryGauge)}
}

// TradeTelemetry tracks aggregate trade volume and a Gini-style spread
// gauge per faction.
type TradeTelemetry struct {
	TotalVolume     fixedpoint.Scalar
	WealthGiniByFaction map[uint32]fixedpoint.Scalar
}

// NewTradeTelemetry creates an empty telemetry resource.
func NewTradeTelemetry() *TradeTelemetry {
	return &TradeTelemetry{WealthGiniByFaction: make(map[uint32]fixedpoint.Scalar)}
}

// SentimentBias holds the four policy axis biases set by AxisBias commands
// (§6.1).
type SentimentBias struct {
	Axes [4]fixedpoint.Scalar
}

// InfluencerImpacts is the per-tick aggregate output of the influencer step
// (§4.1 step 6), consumed by culture reconcile (step 7).
type InfluencerImpacts struct {
	SentimentDelta fixedpoint.Scalar
	LogisticsDelta fixedpoint.Scalar
	MoraleDelta    fixedpoint.Scalar
	PowerDelta     fixedpoint.Scalar
	CultureResonance [NumCultureAxes]fixedpoint.Scalar
}

// DiplomacyLeverage is a placeholder resource for cross-faction leverage
// accounting, read by governance-adjacent steps.
type DiplomacyLeverage struct {
	ByFactionPair map[[2]uint32]fixedpoint.Scalar
}

// NewDiplomacyLeverage creates an empty resource.
func NewDiplomacyLeverage() *DiplomacyLeverage {
	return &DiplomacyLeverage{ByFactionPair: make(map[[2]uint32]fixedpoint.Scalar)}
}

// PowerTopology is built once at world-spawn: 4-neighborhood adjacency over
// the tile grid with a uniform default link capacity (§4.9).
type PowerTopology struct {
	Adjacency map[uint64][]uint64
	DefaultCapacity fixedpoint.Scalar
}

// NewPowerTopology creates an empty topology.
func NewPowerTopology() *PowerTopology {
	return &PowerTopology{Adjacency: make(map[uint64][]uint64)}
}

// PowerGridState is the set of active incidents/classifications derived
// each tick from PowerNode stability (§4.9).
type PowerGridState struct {
	Incidents []PowerIncident
}

// PowerIncident classifies a node crossing a warn/critical threshold.
type PowerIncident struct {
	NodeID   uint64
	Severity string
	Tick     uint64
}

// --- Crisis Engine (§4.7) ---

// IncidentTemplate describes a severity threshold inside a crisis
// archetype's incident catalog, with a cooldown between firings.
type IncidentTemplate struct {
	Name            string
	SeverityThreshold fixedpoint.Scalar
	CooldownTicks   uint32
}

// CrisisArchetype declares the propagation parameters, telemetry weights,
// and incident templates for one kind of crisis (§4.7).
type CrisisArchetype struct {
	Kind              string
	BaseGrowth        fixedpoint.Scalar
	IncidentAccel     fixedpoint.Scalar
	R0Weight          fixedpoint.Scalar
	GridStressWeight  fixedpoint.Scalar
	QueuePressureWeight fixedpoint.Scalar
	SwarmWeight       fixedpoint.Scalar
	PhageWeight       fixedpoint.Scalar
	Incidents         []IncidentTemplate
	MinHotspots, MaxHotspots int
	MinRadius, MaxRadius     fixedpoint.Scalar
}

// CrisisModifier is a catalog-level adjustment applied on top of an
// archetype's base weights (e.g. policy or seasonal modifiers).
type CrisisModifier struct {
	Name              string
	GrowthDelta       fixedpoint.Scalar
	R0Delta           fixedpoint.Scalar
	GridStressDelta   fixedpoint.Scalar
}

// CrisisCatalog is the static archetype/modifier/auto-seed policy set
// loaded at startup (§4.7).
type CrisisCatalog struct {
	Archetypes map[string]*CrisisArchetype
	Modifiers  []CrisisModifier
	AutoSeedIntervalTicks uint32
}

// NewCrisisCatalog creates an empty catalog.
func NewCrisisCatalog() *CrisisCatalog {
	return &CrisisCatalog{Archetypes: make(map[string]*CrisisArchetype)}
}

// Hotspot is one Gaussian center of an active crisis's overlay raster.
type Hotspot struct {
	X, Y   int32
	Radius fixedpoint.Scalar
}

// IncidentCooldown tracks ticks remaining before an archetype's incident
// template can fire again for one active crisis.
type IncidentCooldown struct {
	Name           string
	TicksRemaining uint32
}

// ActiveCrisis is a seeded, currently-propagating crisis instance (§4.7).
type ActiveCrisis struct {
	ID          uint64
	Archetype   string
	Intensity   fixedpoint.Scalar // 0..1
	Hotspots    []Hotspot
	Cooldowns   []IncidentCooldown
	SpawnedTick uint64
}

// PendingCrisisSpawn is a not-yet-materialized crisis waiting to be seeded
// with hotspots on the next crisis-advance step.
type PendingCrisisSpawn struct {
	Archetype string
}

// CrisisState is the Crisis Engine's mutable singleton: active crises,
// pending spawns, and the next free crisis id (§4.7, §3.3).
type CrisisState struct {
	Active      []*ActiveCrisis
	Pending     []PendingCrisisSpawn
	NextID      uint64
	TicksSinceAutoSeed uint32
	Overlay     *ScalarRaster
}

// NewCrisisState creates an empty crisis state, NextID starting at 1.
func NewCrisisState() *CrisisState {
	return &CrisisState{NextID: 1}
}

// ScalarRaster is a width*height grid of fixed-point samples, the in-memory
// form of the snapshot codec's scalar-raster wire table (§4.10).
type ScalarRaster struct {
	Width, Height int
	Samples       []fixedpoint.Scalar
}

// NewScalarRaster creates a zeroed raster.
func NewScalarRaster(w, h int) *ScalarRaster {
	return &ScalarRaster{Width: w, Height: h, Samples: make([]fixedpoint.Scalar, w*h)}
}

func (r *ScalarRaster) At(x, y int) fixedpoint.Scalar { return r.Samples[y*r.Width+x] }
func (r *ScalarRaster) Set(x, y int, v fixedpoint.Scalar) { r.Samples[y*r.Width+x] = v }

// --- Espionage (§4.5) ---

// AgentTemplate is a handcrafted or generator-expanded agent archetype.
type AgentTemplate struct {
	ID          string
	Stealth     fixedpoint.Scalar
	Recon       fixedpoint.Scalar
	CounterIntel fixedpoint.Scalar
}

// MissionKind distinguishes Probe from CounterIntel missions (§4.5, §6.1).
type MissionKind uint8

const (
	MissionProbe MissionKind = iota
	MissionCounterIntel
)

// MissionTemplate is a handcrafted or generator-expanded mission archetype.
type MissionTemplate struct {
	ID                string
	Kind              MissionKind
	ResolutionTicks   uint32
	BaseSuccess       fixedpoint.Scalar
	SuccessThreshold  fixedpoint.Scalar // 0 means the 0.5 default
	WeightStealth     fixedpoint.Scalar
	WeightRecon       fixedpoint.Scalar
	WeightCounter     fixedpoint.Scalar
	FidelityGain      fixedpoint.Scalar
	SuspicionOnSuccess fixedpoint.Scalar
	SuspicionOnFailure fixedpoint.Scalar
	CountermeasureKind string
	CountermeasurePotency fixedpoint.Scalar
	CountermeasureTicks uint32
	TierGuard         uint8
	PartialMargin          fixedpoint.Scalar
	PartialScale           fixedpoint.Scalar // fidelity/cells scale on partial success
	PartialSuspicionScale  fixedpoint.Scalar // 0 falls back to PartialScale
}

// EspionageCatalog holds the static agent/mission templates generators
// expand from (§4.5).
type EspionageCatalog struct {
	AgentTemplates   map[string]*AgentTemplate
	MissionTemplates map[string]*MissionTemplate
}

// NewEspionageCatalog creates an empty catalog.
func NewEspionageCatalog() *EspionageCatalog {
	return &EspionageCatalog{
		AgentTemplates:   make(map[string]*AgentTemplate),
		MissionTemplates: make(map[string]*MissionTemplate),
	}
}

// AgentStatus is Available or Assigned, the only two states an agent can
// ever be in (§3.4 invariant).
type AgentStatus uint8

const (
	AgentAvailable AgentStatus = iota
	AgentAssigned
)

// AgentInstance is one roster seat: a faction's copy of a template,
// identified by a stable handle.
type AgentInstance struct {
	Handle   string
	Template string
	Faction  uint32
	Status   AgentStatus
	MissionID string // set only while Assigned
}

// EspionageRoster is the per-faction seeded agent pool (§4.5).
type EspionageRoster struct {
	Agents map[string]*AgentInstance // keyed by Handle
}

// NewEspionageRoster creates an empty roster.
func NewEspionageRoster() *EspionageRoster {
	return &EspionageRoster{Agents: make(map[string]*AgentInstance)}
}

// QueuedMission is a scheduled-but-not-yet-resolved mission (§4.5).
type QueuedMission struct {
	MissionID      string
	Template       string
	Owner          uint32
	TargetOwner    uint32
	DiscoveryID    string
	AgentHandle    string
	TargetTier     uint8
	ScheduledTick  uint64
	TicksRemaining uint32
	Started        bool
}

// EspionageMissionState holds the live mission queue (§4.5, §3.3).
type EspionageMissionState struct {
	Queue map[string]*QueuedMission // keyed by MissionID
}

// NewEspionageMissionState creates an empty mission state.
func NewEspionageMissionState() *EspionageMissionState {
	return &EspionageMissionState{Queue: make(map[string]*QueuedMission)}
}

// SecurityPolicy governs a faction's counter-intel auto-scheduler gating
// (§4.5).
type SecurityPolicy uint8

const (
	PolicyLenient SecurityPolicy = iota
	PolicyStandard
	PolicyHardened
	PolicyCrisis
)

// EspionageBudgets tracks each faction's counter-intel spend pool and
// policy (§4.5, §3.3). The reserve regenerates each tick up to MaxReserve
// when RegenPerTick is set; MinReserve is the floor non-Crisis policies
// may not spend below.
type EspionageBudgets struct {
	CounterIntelBudget map[uint32]fixedpoint.Scalar
	Policy             map[uint32]SecurityPolicy
	SweepCost          fixedpoint.Scalar
	RegenPerTick       fixedpoint.Scalar
	MaxReserve         fixedpoint.Scalar
	MinReserve         fixedpoint.Scalar
}

// NewEspionageBudgets creates an empty budgets resource with the default
// sweep cost and regeneration disabled.
func NewEspionageBudgets() *EspionageBudgets {
	return &EspionageBudgets{
		CounterIntelBudget: make(map[uint32]fixedpoint.Scalar),
		Policy:             make(map[uint32]SecurityPolicy),
		SweepCost:          fixedpoint.FromFloat32(2.0),
	}
}

// EspionageGeneratorSetting controls one generator template's expansion:
// whether it is enabled at roster-seed time and how many variants each
// faction receives (§4.5, §6.1 UpdateEspionageGenerators).
type EspionageGeneratorSetting struct {
	Enabled    bool
	PerFaction uint32
}

// EspionageGeneratorSettings is the per-template generator configuration
// singleton.
type EspionageGeneratorSettings struct {
	ByTemplate map[string]*EspionageGeneratorSetting
}

// NewEspionageGeneratorSettings creates an empty settings resource.
func NewEspionageGeneratorSettings() *EspionageGeneratorSettings {
	return &EspionageGeneratorSettings{ByTemplate: make(map[string]*EspionageGeneratorSetting)}
}

// EspionageQueueDefaults holds the fallbacks a QueueEspionageMission
// command uses when its optional fields are absent (§6.1).
type EspionageQueueDefaults struct {
	ScheduledTickOffset uint64
	TargetTier          uint8
}

// --- Great-discovery constellation (§4.1 step 9) ---

// DiscoveryRequirement is one weighted contributor to a great discovery:
// progress below MinimumProgress contributes nothing, and the span above
// it is normalized before weighting.
type DiscoveryRequirement struct {
	DiscoveryID     string
	Weight          fixedpoint.Scalar
	MinimumProgress fixedpoint.Scalar
}

// GreatDiscovery is a high-tier discovery whose progress accumulates from
// multiple weighted requirement entries before it can publish.
type GreatDiscovery struct {
	ID                   string
	ObservationThreshold fixedpoint.Scalar
	Requirements         []DiscoveryRequirement
	WeightedProgress     fixedpoint.Scalar
	Published            bool
	PublishedTick        uint64
}

// GreatDiscoveryState is the constellation's singleton progress tracker.
type GreatDiscoveryState struct {
	Discoveries map[string]*GreatDiscovery
}

// NewGreatDiscoveryState creates an empty state.
func NewGreatDiscoveryState() *GreatDiscoveryState {
	return &GreatDiscoveryState{Discoveries: make(map[string]*GreatDiscovery)}
}

// --- SimClock ---

// SimClock is a read-only resource recomputed each tick from the
// simulation tick, carried on snapshots so consumers get a human clock
// string alongside the raw tick. Nothing in the deterministic steps
// reads it.
type SimClock struct {
	Label string
}

// CommandSender is the thread-safe handle the simulation thread installs so
// subsystem steps (and the script bridge) can enqueue outbound replies
// without holding a reference to the network layer directly (§3.3).
type CommandSender struct {
	Send func(clientID uint64, payload []byte)
}
