// Package snapshot implements the wire envelope that carries world state to
// visualization clients: a full WorldSnapshot or an incremental Delta,
// plus the bounded history ring that enables deterministic rollback
// (§4.10, §4.11, §6.2).
package snapshot

// RasterSample is the wire form of a scalar-raster table: width, height,
// and i64 samples in scaled fixed-point (§4.10, §6.2, 1e-6 scale factor).
type RasterSample struct {
	Width, Height int
	Samples       []int64
}

// TerrainSample is one cell of the terrain overlay raster: a terrain id
// alongside its 12-flag tag bitmask (§4.10, §6.2).
type TerrainSample struct {
	TerrainID uint16
	TagMask   uint16
}

// TerrainOverlay is the wire form of the terrain raster (§4.10).
type TerrainOverlay struct {
	Width, Height int
	Samples       []TerrainSample
}

// TileUpdate is one tile's wire-encoded state.
type TileUpdate struct {
	ID                uint64
	X, Y              int32
	Element           uint8
	Mass, Temperature int64
	Terrain           uint16
	Tags              uint32
}

// LogisticsLinkUpdate is one logistics link's wire-encoded state. Carried
// so a stored snapshot can rebuild the link graph on rollback (§4.11).
type LogisticsLinkUpdate struct {
	ID       uint64
	From, To uint64
	Capacity int64
	Flow     int64
}

// FragmentUpdate is one knowledge fragment in flight (trade-link queue or
// cohort set).
type FragmentUpdate struct {
	DiscoveryID string
	Progress    int64
	Fidelity    int64
}

// MigrationUpdate is a cohort's in-flight migration order.
type MigrationUpdate struct {
	DestinationFaction uint32
	ETA                uint32
	CarriedFragments   []FragmentUpdate
}

// InfluencerUpdate is one influencer's wire-encoded state.
type InfluencerUpdate struct {
	ID                  uint64
	Name                string
	Scope               uint8
	GenerationScope     *uint32
	AudienceGenerations []uint32
	Domains             uint8
	SentimentWeight     int64
	LogisticsWeight     int64
	MoraleWeight        int64
	PowerWeight         int64
	ChannelWeights      [4]int64
	ChannelValues       [4]int64
	ChannelBoosts       [4]int64
	Notoriety           int64
	Coherence           int64
	Status              uint8
	TicksInStatus       uint32
	CultureResonance    [15]int64
}

// PopulationUpdate is one cohort's wire-encoded state.
type PopulationUpdate struct {
	ID           uint64
	HomeTile     uint64
	Size         uint32
	Morale       int64
	GenerationID uint32
	FactionID    uint32
	Fragments    []FragmentUpdate
	Migration    *MigrationUpdate
}

// TradeLinkUpdate is one trade link's wire-encoded state.
type TradeLinkUpdate struct {
	ID                    uint64
	FromFaction           uint32
	ToFaction             uint32
	Throughput            int64
	Tariff                int64
	Openness              int64
	Decay                 int64
	LeakTimer             uint32
	LastDiffusedDiscovery string
	PendingFragments      []FragmentUpdate
}

// PowerNodeUpdate is one power node's wire-encoded state.
type PowerNodeUpdate struct {
	ID              uint64
	NodeID          uint64
	BaseGeneration  int64
	BaseDemand      int64
	LiveGeneration  int64
	LiveDemand      int64
	Efficiency      int64
	StorageLevel    int64
	StorageCapacity int64
	Stability       int64
	IncidentCounter uint32
}

// PowerMetricsUpdate aggregates grid-wide power telemetry.
type PowerMetricsUpdate struct {
	IncidentCount int
}

// CultureLayerUpdate is one culture layer's wire-encoded state. Version
// lets a delta elide re-emission of an unchanged layer (§9 design notes).
type CultureLayerUpdate struct {
	ID             uint64
	OwnerID        uint64
	ParentID       uint64
	Scope          uint8
	Baselines      [15]int64
	Modifiers      [15]int64
	Values         [15]int64
	Divergence     int64
	SoftThreshold  int64
	HardThreshold  int64
	TicksAboveSoft uint32
	TicksAboveHard uint32
	Version        uint32
}

// TensionUpdate reports a culture layer crossing a soft/hard threshold.
type TensionUpdate struct {
	LayerID   uint64
	Kind      uint8 // 0=drift,1=assimilation,2=schism
	Magnitude int64
}

// CorruptionEntryUpdate is one active corruption incident.
type CorruptionEntryUpdate struct {
	Subsystem     uint8
	Intensity     int64
	ExposureTimer uint32
}

// DiscoveryProgressEntry is one (faction,discovery) progress sample.
type DiscoveryProgressEntry struct {
	Faction     uint32
	DiscoveryID string
	Progress    int64
}

// CountermeasureUpdate is one active countermeasure on a knowledge entry.
type CountermeasureUpdate struct {
	Kind           string
	Potency        int64
	RemainingTicks uint32
}

// InfiltrationUpdate is one infiltration record on a knowledge entry.
type InfiltrationUpdate struct {
	AgentHandle string
	Suspicion   int64
	Fidelity    int64
	Cells       uint32
}

// KnowledgeEntryUpdate is one knowledge ledger row, carried so rollback
// can rebuild the ledger bit-for-bit (§4.11).
type KnowledgeEntryUpdate struct {
	OwnerFaction    uint32
	DiscoveryID     string
	Tier            uint8
	ProgressPercent int64
	BaseHalfLife    uint32
	TimeToCascade   uint32
	SecurityPosture int64
	Flags           uint8
	Countermeasures []CountermeasureUpdate
	Infiltrations   []InfiltrationUpdate
	ModifierDeltas  []int32
}

// EspionageAgentUpdate is one roster seat's live state.
type EspionageAgentUpdate struct {
	Handle    string
	Template  string
	Faction   uint32
	Status    uint8
	MissionID string
}

// QueuedMissionUpdate is one scheduled-but-unresolved mission.
type QueuedMissionUpdate struct {
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

// EspionageBudgetUpdate is one faction's counter-intel budget and policy.
type EspionageBudgetUpdate struct {
	Faction uint32
	Budget  int64
	Policy  uint8
}

// HotspotUpdate is one Gaussian center of an active crisis.
type HotspotUpdate struct {
	X, Y   int32
	Radius int64
}

// ActiveCrisisUpdate is one propagating crisis instance.
type ActiveCrisisUpdate struct {
	ID          uint64
	Archetype   string
	Intensity   int64
	Hotspots    []HotspotUpdate
	SpawnedTick uint64
}

// RequirementUpdate is one weighted contributor to a great discovery.
type RequirementUpdate struct {
	DiscoveryID     string
	Weight          int64
	MinimumProgress int64
}

// GreatDiscoveryUpdate is one constellation candidate's progress.
type GreatDiscoveryUpdate struct {
	ID                   string
	ObservationThreshold int64
	Requirements         []RequirementUpdate
	WeightedProgress     int64
	Published            bool
	PublishedTick        uint64
}

// WorldSnapshot is the full-state payload variant of the snapshot envelope
// (§4.10). It carries everything needed both to render a frame and to
// deserialize the world back from history on rollback (§4.11).
type WorldSnapshot struct {
	Tick uint64

	Overlays       map[string]RasterSample
	TerrainOverlay TerrainOverlay

	Tiles             []TileUpdate
	LogisticsLinks    []LogisticsLinkUpdate
	Influencers       []InfluencerUpdate
	Corruption        []CorruptionEntryUpdate
	Populations       []PopulationUpdate
	TradeLinks        []TradeLinkUpdate
	PowerNodes        []PowerNodeUpdate
	PowerMetrics      PowerMetricsUpdate
	Generations       []uint32
	Factions          []uint32
	CultureLayers     []CultureLayerUpdate
	Tensions          []TensionUpdate
	DiscoveryProgress []DiscoveryProgressEntry
	KnowledgeEntries  []KnowledgeEntryUpdate
	EspionageAgents   []EspionageAgentUpdate
	EspionageMissions []QueuedMissionUpdate
	EspionageBudgets  []EspionageBudgetUpdate
	ActiveCrises      []ActiveCrisisUpdate
	NextCrisisID      uint64
	GreatDiscoveries  []GreatDiscoveryUpdate
	SentimentAxes     [4]int64

	ClockLabel string
}

// Delta is the incremental-update payload variant of the snapshot
// envelope: the renderable fields of WorldSnapshot, all optional, plus
// removed-id vectors for every incremental collection (§4.10).
type Delta struct {
	Tick uint64

	Overlays       map[string]RasterSample
	TerrainOverlay *TerrainOverlay

	Tiles             []TileUpdate
	Influencers       []InfluencerUpdate
	Corruption        []CorruptionEntryUpdate
	Populations       []PopulationUpdate
	TradeLinks        []TradeLinkUpdate
	PowerNodes        []PowerNodeUpdate
	PowerMetrics      *PowerMetricsUpdate
	Generations       []uint32
	CultureLayers     []CultureLayerUpdate
	Tensions          []TensionUpdate
	DiscoveryProgress []DiscoveryProgressEntry
	SentimentAxes     *[4]int64

	RemovedInfluencers   []uint64
	RemovedPopulations   []uint64
	RemovedTradeLinks    []uint64
	RemovedPowerNodes    []uint64
	RemovedTiles         []uint64
	RemovedGenerations   []uint32
	RemovedCultureLayers []uint64

	ClockLabel string
}
