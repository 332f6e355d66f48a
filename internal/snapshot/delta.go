package snapshot

import "reflect"

// Diff computes the incremental Delta that transforms prev into next. A
// client that applies the returned delta on top of prev sees next exactly,
// for every field the delta covers (§4.10).
func Diff(prev, next *WorldSnapshot) *Delta {
	d := &Delta{Tick: next.Tick, ClockLabel: next.ClockLabel}

	d.Overlays = diffOverlays(prev.Overlays, next.Overlays)
	if !reflect.DeepEqual(prev.TerrainOverlay, next.TerrainOverlay) {
		overlay := next.TerrainOverlay
		d.TerrainOverlay = &overlay
	}

	d.Tiles, d.RemovedTiles = diffByID(
		prev.Tiles, next.Tiles,
		func(t TileUpdate) uint64 { return t.ID },
	)
	d.Influencers, d.RemovedInfluencers = diffByID(
		prev.Influencers, next.Influencers,
		func(i InfluencerUpdate) uint64 { return i.ID },
	)
	d.Populations, d.RemovedPopulations = diffByID(
		prev.Populations, next.Populations,
		func(p PopulationUpdate) uint64 { return p.ID },
	)
	d.TradeLinks, d.RemovedTradeLinks = diffByID(
		prev.TradeLinks, next.TradeLinks,
		func(t TradeLinkUpdate) uint64 { return t.ID },
	)
	d.PowerNodes, d.RemovedPowerNodes = diffByID(
		prev.PowerNodes, next.PowerNodes,
		func(p PowerNodeUpdate) uint64 { return p.ID },
	)
	d.CultureLayers, d.RemovedCultureLayers = diffCultureLayers(prev.CultureLayers, next.CultureLayers)

	if !reflect.DeepEqual(prev.Corruption, next.Corruption) {
		d.Corruption = next.Corruption
		if d.Corruption == nil {
			d.Corruption = []CorruptionEntryUpdate{}
		}
	}
	if prev.PowerMetrics != next.PowerMetrics {
		metrics := next.PowerMetrics
		d.PowerMetrics = &metrics
	}
	if !reflect.DeepEqual(prev.Generations, next.Generations) {
		d.Generations = next.Generations
		if d.Generations == nil {
			d.Generations = []uint32{}
		}
		d.RemovedGenerations = removedU32(prev.Generations, next.Generations)
	}
	if !reflect.DeepEqual(prev.DiscoveryProgress, next.DiscoveryProgress) {
		d.DiscoveryProgress = next.DiscoveryProgress
		if d.DiscoveryProgress == nil {
			d.DiscoveryProgress = []DiscoveryProgressEntry{}
		}
	}
	if !reflect.DeepEqual(prev.Tensions, next.Tensions) {
		d.Tensions = next.Tensions
		if d.Tensions == nil {
			d.Tensions = []TensionUpdate{}
		}
	}
	if prev.SentimentAxes != next.SentimentAxes {
		axes := next.SentimentAxes
		d.SentimentAxes = &axes
	}
	return d
}

func diffOverlays(prev, next map[string]RasterSample) map[string]RasterSample {
	changed := map[string]RasterSample{}
	for name, raster := range next {
		if !reflect.DeepEqual(prev[name], raster) {
			changed[name] = raster
		}
	}
	return changed
}

// diffByID returns the entries of next that are new or changed relative
// to prev, plus the ids present in prev but absent from next. Both inputs
// are already in ascending id order from assembly, so output order is
// canonical without re-sorting.
func diffByID[T any](prev, next []T, id func(T) uint64) (changed []T, removed []uint64) {
	prevByID := make(map[uint64]T, len(prev))
	for _, v := range prev {
		prevByID[id(v)] = v
	}
	seen := make(map[uint64]bool, len(next))
	for _, v := range next {
		seen[id(v)] = true
		old, existed := prevByID[id(v)]
		if !existed || !reflect.DeepEqual(old, v) {
			changed = append(changed, v)
		}
	}
	for _, v := range prev {
		if !seen[id(v)] {
			removed = append(removed, id(v))
		}
	}
	return changed, removed
}

// diffCultureLayers elides unchanged layers by Version before falling
// back to a deep compare, per the §9 design note.
func diffCultureLayers(prev, next []CultureLayerUpdate) (changed []CultureLayerUpdate, removed []uint64) {
	prevByID := make(map[uint64]CultureLayerUpdate, len(prev))
	for _, v := range prev {
		prevByID[v.ID] = v
	}
	seen := make(map[uint64]bool, len(next))
	for _, v := range next {
		seen[v.ID] = true
		old, existed := prevByID[v.ID]
		if !existed {
			changed = append(changed, v)
			continue
		}
		if old.Version == v.Version && reflect.DeepEqual(old, v) {
			continue
		}
		changed = append(changed, v)
	}
	for _, v := range prev {
		if !seen[v.ID] {
			removed = append(removed, v.ID)
		}
	}
	return changed, removed
}

func removedU32(prev, next []uint32) []uint32 {
	seen := make(map[uint32]bool, len(next))
	for _, v := range next {
		seen[v] = true
	}
	var removed []uint32
	for _, v := range prev {
		if !seen[v] {
			removed = append(removed, v)
		}
	}
	return removed
}

// Apply overlays a delta onto base, returning the reconstructed full
// snapshot. The inverse check of Diff: Apply(prev, Diff(prev, next))
// equals next for every field the delta covers.
func Apply(base *WorldSnapshot, d *Delta) *WorldSnapshot {
	next := &WorldSnapshot{
		Tick:       d.Tick,
		ClockLabel: d.ClockLabel,
		Overlays:   map[string]RasterSample{},
	}
	for name, raster := range base.Overlays {
		next.Overlays[name] = raster
	}
	for name, raster := range d.Overlays {
		next.Overlays[name] = raster
	}
	next.TerrainOverlay = base.TerrainOverlay
	if d.TerrainOverlay != nil {
		next.TerrainOverlay = *d.TerrainOverlay
	}

	next.Tiles = mergeByID(base.Tiles, d.Tiles, d.RemovedTiles, func(t TileUpdate) uint64 { return t.ID })
	next.Influencers = mergeByID(base.Influencers, d.Influencers, d.RemovedInfluencers, func(i InfluencerUpdate) uint64 { return i.ID })
	next.Populations = mergeByID(base.Populations, d.Populations, d.RemovedPopulations, func(p PopulationUpdate) uint64 { return p.ID })
	next.TradeLinks = mergeByID(base.TradeLinks, d.TradeLinks, d.RemovedTradeLinks, func(t TradeLinkUpdate) uint64 { return t.ID })
	next.PowerNodes = mergeByID(base.PowerNodes, d.PowerNodes, d.RemovedPowerNodes, func(p PowerNodeUpdate) uint64 { return p.ID })
	next.CultureLayers = mergeByID(base.CultureLayers, d.CultureLayers, d.RemovedCultureLayers, func(c CultureLayerUpdate) uint64 { return c.ID })

	next.Corruption = base.Corruption
	if d.Corruption != nil {
		next.Corruption = nilIfEmpty(d.Corruption)
	}
	next.PowerMetrics = base.PowerMetrics
	if d.PowerMetrics != nil {
		next.PowerMetrics = *d.PowerMetrics
	}
	next.Generations = base.Generations
	if d.Generations != nil {
		next.Generations = nilIfEmpty(d.Generations)
	}
	next.DiscoveryProgress = base.DiscoveryProgress
	if d.DiscoveryProgress != nil {
		next.DiscoveryProgress = nilIfEmpty(d.DiscoveryProgress)
	}
	next.Tensions = base.Tensions
	if d.Tensions != nil {
		next.Tensions = nilIfEmpty(d.Tensions)
	}
	next.SentimentAxes = base.SentimentAxes
	if d.SentimentAxes != nil {
		next.SentimentAxes = *d.SentimentAxes
	}

	// Fields the delta does not cover carry forward unchanged.
	next.LogisticsLinks = base.LogisticsLinks
	next.Factions = base.Factions
	next.KnowledgeEntries = base.KnowledgeEntries
	next.EspionageAgents = base.EspionageAgents
	next.EspionageMissions = base.EspionageMissions
	next.EspionageBudgets = base.EspionageBudgets
	next.ActiveCrises = base.ActiveCrises
	next.NextCrisisID = base.NextCrisisID
	next.GreatDiscoveries = base.GreatDiscoveries
	return next
}

// mergeByID overlays changed entries and drops removed ids, keeping
// ascending id order.
func mergeByID[T any](base, changed []T, removed []uint64, id func(T) uint64) []T {
	dropped := make(map[uint64]bool, len(removed))
	for _, r := range removed {
		dropped[r] = true
	}
	changedByID := make(map[uint64]T, len(changed))
	for _, v := range changed {
		changedByID[id(v)] = v
	}
	var out []T
	seen := make(map[uint64]bool, len(base))
	for _, v := range base {
		key := id(v)
		seen[key] = true
		if dropped[key] {
			continue
		}
		if nv, ok := changedByID[key]; ok {
			out = append(out, nv)
			continue
		}
		out = append(out, v)
	}
	for _, v := range changed {
		if !seen[id(v)] && !dropped[id(v)] {
			out = append(out, v)
		}
	}
	return out
}
