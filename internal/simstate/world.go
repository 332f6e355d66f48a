package simstate

import "github.com/talgya/shadow-scale/internal/ecs"

// World is the concrete World Store: entity allocator, one Column per
// component type, and the Resources singleton registry (§3.2, §3.3, §9).
type World struct {
	IDs *ecs.IDAllocator

	Tiles          *ecs.Column[*Tile]
	LogisticsLinks *ecs.Column[*LogisticsLink]
	TradeLinks     *ecs.Column[*TradeLink]
	Cohorts        *ecs.Column[*PopulationCohort]
	PowerNodes     *ecs.Column[*PowerNode]
	CultureLayers  *ecs.Column[*CultureLayer]
	Influencers    *ecs.Column[*Influencer]

	Resources *ecs.Resources

	// posIndex maps grid position to tile entity id, maintained alongside
	// Tiles since tile position never mutates once created (§3.4).
	posIndex map[[2]int32]ecs.EntityID
}

// New creates an empty World with all columns initialized and the default
// resource set installed.
func New() *World {
	w := &World{
		IDs:            ecs.NewIDAllocator(),
		Tiles:          ecs.NewColumn[*Tile](),
		LogisticsLinks: ecs.NewColumn[*LogisticsLink](),
		TradeLinks:     ecs.NewColumn[*TradeLink](),
		Cohorts:        ecs.NewColumn[*PopulationCohort](),
		PowerNodes:     ecs.NewColumn[*PowerNode](),
		CultureLayers:  ecs.NewColumn[*CultureLayer](),
		Influencers:    ecs.NewColumn[*Influencer](),
		Resources:      ecs.NewResources(),
		posIndex:       make(map[[2]int32]ecs.EntityID),
	}
	ecs.Put(w.Resources, DefaultConfig())
	ecs.Put(w.Resources, &Tick{})
	ecs.Put(w.Resources, &FactionRegistry{})
	ecs.Put(w.Resources, &GenerationRegistry{})
	ecs.Put(w.Resources, &TileRegistry{})
	ecs.Put(w.Resources, NewKnowledgeLedger())
	ecs.Put(w.Resources, NewDiscoveryProgressLedger())
	ecs.Put(w.Resources, NewCorruptionLedger())
	ecs.Put(w.Resources, NewCrisisTelemetry())
	ecs.Put(w.Resources, NewTradeTelemetry())
	ecs.Put(w.Resources, &SentimentBias{})
	ecs.Put(w.Resources, &InfluencerImpacts{})
	ecs.Put(w.Resources, NewDiplomacyLeverage())
	ecs.Put(w.Resources, NewPowerTopology())
	ecs.Put(w.Resources, &PowerGridState{})
	ecs.Put(w.Resources, NewCrisisCatalog())
	ecs.Put(w.Resources, NewCrisisState())
	ecs.Put(w.Resources, NewEspionageCatalog())
	ecs.Put(w.Resources, NewEspionageRoster())
	ecs.Put(w.Resources, NewEspionageMissionState())
	ecs.Put(w.Resources, NewEspionageBudgets())
	ecs.Put(w.Resources, NewEspionageGeneratorSettings())
	ecs.Put(w.Resources, &EspionageQueueDefaults{ScheduledTickOffset: 1})
	ecs.Put(w.Resources, NewGreatDiscoveryState())
	ecs.Put(w.Resources, &SimClock{})
	ecs.Put(w.Resources, &CommandSender{})
	return w
}

// Reset rebuilds the world in place for map-reset (§3.5): every column is
// cleared and the id allocator restarts, but the Resources map itself is
// kept (individual resources are overwritten by the caller as needed).
func (w *World) Reset() {
	w.IDs.Reset()
	w.Tiles.Clear()
	w.LogisticsLinks.Clear()
	w.TradeLinks.Clear()
	w.Cohorts.Clear()
	w.PowerNodes.Clear()
	w.CultureLayers.Clear()
	w.Influencers.Clear()
	w.posIndex = make(map[[2]int32]ecs.EntityID)
}

// SpawnTile allocates a new tile entity at (x,y) and indexes it for
// TileAt lookups.
func (w *World) SpawnTile(t *Tile) ecs.EntityID {
	id := w.IDs.Next()
	w.Tiles.Set(id, t)
	w.posIndex[[2]int32{t.X, t.Y}] = id
	return id
}

// RestoreTile reinstalls a tile under its original entity id during
// snapshot deserialization, keeping the position index and the allocator
// consistent with the stored world.
func (w *World) RestoreTile(id ecs.EntityID, t *Tile) {
	w.Tiles.Set(id, t)
	w.posIndex[[2]int32{t.X, t.Y}] = id
	w.IDs.Advance(id)
}

// TileAt returns the tile entity id at grid position (x,y), or 0 if none.
func (w *World) TileAt(x, y int32) ecs.EntityID {
	return w.posIndex[[2]int32{x, y}]
}
