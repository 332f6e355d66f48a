// Package simstate defines the component and resource types that make up
// the simulated world: tiles, logistics/trade links, population cohorts,
// power nodes, culture layers, and influencers (§3.2), plus the shared
// singleton resources (§3.3). See also internal/ecs for the storage model.
package simstate

import (
	"github.com/talgya/shadow-scale/internal/ecs"
	"github.com/talgya/shadow-scale/internal/fixedpoint"
)

// EntityRef is a nullable reference to another entity; zero means absent.
type EntityRef = ecs.EntityID

// ElementKind is the discrete material/element classification of a tile.
type ElementKind uint8

const (
	ElementEarth ElementKind = iota
	ElementWater
	ElementAir
	ElementFire
	ElementAether
)

// TerrainType enumerates the 38 terrain classes world generation can stamp
// (§3.2). Every one of the 38 values, 0 through 37, has a named constant
// below.
type TerrainType uint8

const (
	TerrainOcean TerrainType = iota
	TerrainDeepOcean
	TerrainContinentalShelf
	TerrainContinentalSlope
	TerrainInlandSea
	TerrainCoast
	TerrainBeach
	TerrainPlains
	TerrainGrassland
	TerrainSavanna
	TerrainForest
	TerrainRainforest
	TerrainTaiga
	TerrainTundra
	TerrainIceCap
	TerrainDesert
	TerrainDuneSea
	TerrainSteppe
	TerrainWetland
	TerrainMarsh
	TerrainMangrove
	TerrainHighland
	TerrainPlateau
	TerrainMountain
	TerrainAlpine
	TerrainVolcanic
	TerrainLavaField
	TerrainFjord
	TerrainRiverDelta
	TerrainFloodplain
	TerrainOasis
	TerrainKarst
	TerrainBadlands
	TerrainSaltFlat
	TerrainGlacier
	TerrainHotSpring
	TerrainCaveMouth
	TerrainReef
)

// TerrainTagBit indexes the 12-flag terrain tag bitmask (§3.2).
type TerrainTagBit uint32

const (
	TagWater TerrainTagBit = 1 << iota
	TagFreshwater
	TagCoastal
	TagWetland
	TagFertile
	TagArid
	TagPolar
	TagHighland
	TagVolcanic
	TagHazardous
	TagSubsurface
	TagHydrothermal
)

// Tile is the component attached to every grid-position entity.
type Tile struct {
	X, Y        int32
	Element     ElementKind
	Mass        fixedpoint.Scalar
	Temperature fixedpoint.Scalar
	Terrain     TerrainType
	Tags        uint32 // bitmask of TerrainTagBit
}

// LogisticsLink connects two tiles for materials flow (§4.1 step 2).
type LogisticsLink struct {
	From, To    ecs.EntityID
	Capacity    fixedpoint.Scalar
	CurrentFlow fixedpoint.Scalar
}

// TradeLink is co-attached to a LogisticsLink entity and carries the
// faction-to-faction trade/diffusion state (§3.2, §4.1 step 3).
type TradeLink struct {
	FromFaction, ToFaction uint32
	Throughput             fixedpoint.Scalar
	Tariff                 fixedpoint.Scalar
	Openness               fixedpoint.Scalar // 0..1
	Decay                  fixedpoint.Scalar // per-tick openness decay
	LeakTimer              uint32            // ticks until next diffusion
	LastDiffusedDiscovery  string
	PendingFragments       []Fragment
}

// Fragment is a piece of knowledge about a specific discovery in flight
// between factions or cohorts.
type Fragment struct {
	DiscoveryID string
	Progress    fixedpoint.Scalar // 0..1
	Fidelity    fixedpoint.Scalar // 0..1
}

// MigrationOrder describes a cohort in flight between factions.
type MigrationOrder struct {
	DestinationFaction uint32
	ETA                uint32
	CarriedFragments   []Fragment
}

// PopulationCohort is a group of population sharing a home tile and faction.
type PopulationCohort struct {
	HomeTile   ecs.EntityID
	Size       uint32
	Morale     fixedpoint.Scalar
	GenerationID uint32
	FactionID  uint32
	Fragments  map[string]Fragment
	Migration  *MigrationOrder
}

// PowerNode is a single node in the power grid topology (§4.9).
type PowerNode struct {
	NodeID            uint64
	BaseGeneration     fixedpoint.Scalar
	BaseDemand         fixedpoint.Scalar
	LiveGeneration     fixedpoint.Scalar
	LiveDemand         fixedpoint.Scalar
	Efficiency         fixedpoint.Scalar // 0..1
	StorageCapacity    fixedpoint.Scalar
	StorageLevel       fixedpoint.Scalar
	Stability          fixedpoint.Scalar // 0..1
	LastSurplus        fixedpoint.Scalar
	LastDeficit        fixedpoint.Scalar
	IncidentCounter    uint32
}

// CultureScope distinguishes the tree depth of a CultureLayer.
type CultureScope uint8

const (
	CultureGlobal CultureScope = iota
	CultureRegional
	CultureLocal
)

// NumCultureAxes is the fixed count of orthogonal culture axes (§3.2, §4.6).
const NumCultureAxes = 15

// CultureAxisState holds one axis's baseline/modifier/value triple.
type CultureAxisState struct {
	Baseline fixedpoint.Scalar
	Modifier fixedpoint.Scalar
	Value    fixedpoint.Scalar // clamp(baseline+modifier, [-1,1])
}

// CultureLayer is a node in the global→regional→local culture tree (§4.6).
type CultureLayer struct {
	OwnerID        ecs.EntityID
	ParentID       ecs.EntityID // 0 for the global root
	Scope          CultureScope
	Axes           [NumCultureAxes]CultureAxisState
	Divergence     fixedpoint.Scalar
	SoftThreshold  fixedpoint.Scalar
	HardThreshold  fixedpoint.Scalar
	TicksAboveSoft uint32
	TicksAboveHard uint32
	LastUpdatedTick uint64
	Version        uint32 // bumped whenever Axes change, for delta elision
}

// InfluencerScope mirrors the wire enum in §6.1.
type InfluencerScope uint8

const (
	ScopeLocal InfluencerScope = iota
	ScopeRegional
	ScopeGlobal
	ScopeGeneration
)

// InfluencerStatus is the roster lifecycle state (§3.5).
type InfluencerStatus uint8

const (
	InfluencerPotential InfluencerStatus = iota
	InfluencerActive
	InfluencerDormant
)

// InfluencerChannel indexes the four support channels (§6.1).
type InfluencerChannel uint8

const (
	ChannelPopular InfluencerChannel = iota
	ChannelPeer
	ChannelInstitutional
	ChannelHumanitarian
	NumInfluencerChannels = 4
)

// DomainMask is a 5-bit bitmask of the policy domains an Influencer affects.
type DomainMask uint8

// Influencer is a social actor that accumulates notoriety and shifts
// sentiment/logistics/morale/power/culture over its lifecycle (§3.2, §4.1
// step 6).
type Influencer struct {
	ID                ecs.EntityID
	Name              string
	Scope             InfluencerScope
	GenerationScope   *uint32
	AudienceGenerations []uint32
	Domains           DomainMask
	SentimentWeight   fixedpoint.Scalar
	LogisticsWeight   fixedpoint.Scalar
	MoraleWeight      fixedpoint.Scalar
	PowerWeight       fixedpoint.Scalar
	ChannelWeights    [NumInfluencerChannels]fixedpoint.Scalar
	ChannelValues     [NumInfluencerChannels]fixedpoint.Scalar
	ChannelBoosts     [NumInfluencerChannels]fixedpoint.Scalar
	Notoriety         fixedpoint.Scalar
	Coherence         fixedpoint.Scalar
	Status            InfluencerStatus
	TicksInStatus     uint32
	CultureResonance  [NumCultureAxes]fixedpoint.Scalar
}
