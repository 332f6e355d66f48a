package snapshot

import "fmt"

// Decode parses an envelope payload into either a *WorldSnapshot or a
// *Delta depending on the discriminant byte. Exactly one return value is
// non-nil on success.
func Decode(payload []byte) (*WorldSnapshot, *Delta, error) {
	r := &binReader{buf: payload}
	disc, err := r.u8()
	if err != nil {
		return nil, nil, err
	}
	switch disc {
	case envelopeSnapshot:
		s, err := decodeSnapshot(r)
		return s, nil, err
	case envelopeDelta:
		d, err := decodeDelta(r)
		return nil, d, err
	default:
		return nil, nil, fmt.Errorf("snapshot: unknown envelope discriminant %d", disc)
	}
}

// DecodeSnapshot parses a payload known to carry a full snapshot.
func DecodeSnapshot(payload []byte) (*WorldSnapshot, error) {
	s, _, err := Decode(payload)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("snapshot: payload carries a delta, not a full snapshot")
	}
	return s, nil
}

func decodeSnapshot(r *binReader) (*WorldSnapshot, error) {
	s := &WorldSnapshot{}
	var err error
	if s.Tick, err = r.u64(); err != nil {
		return nil, err
	}
	if s.Overlays, err = decodeOverlays(r); err != nil {
		return nil, err
	}
	terrain, err := decodeTerrainOverlay(r)
	if err != nil {
		return nil, err
	}
	s.TerrainOverlay = *terrain

	n, err := r.count(maxCollection)
	if err != nil {
		return nil, err
	}
	s.Tiles = make([]TileUpdate, n)
	for i := range s.Tiles {
		if err := decodeTile(r, &s.Tiles[i]); err != nil {
			return nil, err
		}
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	s.LogisticsLinks = make([]LogisticsLinkUpdate, n)
	for i := range s.LogisticsLinks {
		if err := decodeLogisticsLink(r, &s.LogisticsLinks[i]); err != nil {
			return nil, err
		}
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	s.Influencers = make([]InfluencerUpdate, n)
	for i := range s.Influencers {
		if err := decodeInfluencer(r, &s.Influencers[i]); err != nil {
			return nil, err
		}
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	s.Corruption = make([]CorruptionEntryUpdate, n)
	for i := range s.Corruption {
		if err := decodeCorruption(r, &s.Corruption[i]); err != nil {
			return nil, err
		}
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	s.Populations = make([]PopulationUpdate, n)
	for i := range s.Populations {
		if err := decodePopulation(r, &s.Populations[i]); err != nil {
			return nil, err
		}
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	s.TradeLinks = make([]TradeLinkUpdate, n)
	for i := range s.TradeLinks {
		if err := decodeTradeLink(r, &s.TradeLinks[i]); err != nil {
			return nil, err
		}
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	s.PowerNodes = make([]PowerNodeUpdate, n)
	for i := range s.PowerNodes {
		if err := decodePowerNode(r, &s.PowerNodes[i]); err != nil {
			return nil, err
		}
	}
	incidents, err := r.i32()
	if err != nil {
		return nil, err
	}
	s.PowerMetrics.IncidentCount = int(incidents)

	if s.Generations, err = decodeU32Slice(r); err != nil {
		return nil, err
	}
	if s.Factions, err = decodeU32Slice(r); err != nil {
		return nil, err
	}

	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	s.CultureLayers = make([]CultureLayerUpdate, n)
	for i := range s.CultureLayers {
		if err := decodeCultureLayer(r, &s.CultureLayers[i]); err != nil {
			return nil, err
		}
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	s.Tensions = make([]TensionUpdate, n)
	for i := range s.Tensions {
		if err := decodeTension(r, &s.Tensions[i]); err != nil {
			return nil, err
		}
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	s.DiscoveryProgress = make([]DiscoveryProgressEntry, n)
	for i := range s.DiscoveryProgress {
		if err := decodeDiscoveryProgress(r, &s.DiscoveryProgress[i]); err != nil {
			return nil, err
		}
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	s.KnowledgeEntries = make([]KnowledgeEntryUpdate, n)
	for i := range s.KnowledgeEntries {
		if err := decodeKnowledgeEntry(r, &s.KnowledgeEntries[i]); err != nil {
			return nil, err
		}
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	s.EspionageAgents = make([]EspionageAgentUpdate, n)
	for i := range s.EspionageAgents {
		if err := decodeEspionageAgent(r, &s.EspionageAgents[i]); err != nil {
			return nil, err
		}
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	s.EspionageMissions = make([]QueuedMissionUpdate, n)
	for i := range s.EspionageMissions {
		if err := decodeQueuedMission(r, &s.EspionageMissions[i]); err != nil {
			return nil, err
		}
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	s.EspionageBudgets = make([]EspionageBudgetUpdate, n)
	for i := range s.EspionageBudgets {
		if err := decodeEspionageBudget(r, &s.EspionageBudgets[i]); err != nil {
			return nil, err
		}
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	s.ActiveCrises = make([]ActiveCrisisUpdate, n)
	for i := range s.ActiveCrises {
		if err := decodeActiveCrisis(r, &s.ActiveCrises[i]); err != nil {
			return nil, err
		}
	}
	if s.NextCrisisID, err = r.u64(); err != nil {
		return nil, err
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	s.GreatDiscoveries = make([]GreatDiscoveryUpdate, n)
	for i := range s.GreatDiscoveries {
		if err := decodeGreatDiscovery(r, &s.GreatDiscoveries[i]); err != nil {
			return nil, err
		}
	}
	for i := range s.SentimentAxes {
		if s.SentimentAxes[i], err = r.i64(); err != nil {
			return nil, err
		}
	}
	if s.ClockLabel, err = r.str(); err != nil {
		return nil, err
	}
	normalizeSnapshot(s)
	return s, nil
}

// normalizeSnapshot and normalizeDelta collapse zero-length decoded
// collections to nil so a decoded envelope compares equal to the one that
// was encoded, and so a delta field that was absent stays distinguishable
// from one that was replaced with an empty list.
func normalizeSnapshot(s *WorldSnapshot) {
	s.TerrainOverlay.Samples = nilIfEmpty(s.TerrainOverlay.Samples)
	s.Tiles = nilIfEmpty(s.Tiles)
	s.LogisticsLinks = nilIfEmpty(s.LogisticsLinks)
	s.Influencers = nilIfEmpty(s.Influencers)
	s.Corruption = nilIfEmpty(s.Corruption)
	s.Populations = nilIfEmpty(s.Populations)
	s.TradeLinks = nilIfEmpty(s.TradeLinks)
	s.PowerNodes = nilIfEmpty(s.PowerNodes)
	s.CultureLayers = nilIfEmpty(s.CultureLayers)
	s.Tensions = nilIfEmpty(s.Tensions)
	s.DiscoveryProgress = nilIfEmpty(s.DiscoveryProgress)
	s.KnowledgeEntries = nilIfEmpty(s.KnowledgeEntries)
	s.EspionageAgents = nilIfEmpty(s.EspionageAgents)
	s.EspionageMissions = nilIfEmpty(s.EspionageMissions)
	s.EspionageBudgets = nilIfEmpty(s.EspionageBudgets)
	s.ActiveCrises = nilIfEmpty(s.ActiveCrises)
	s.GreatDiscoveries = nilIfEmpty(s.GreatDiscoveries)
}

func normalizeDelta(d *Delta) {
	if d.TerrainOverlay != nil {
		d.TerrainOverlay.Samples = nilIfEmpty(d.TerrainOverlay.Samples)
	}
	d.Tiles = nilIfEmpty(d.Tiles)
	d.Influencers = nilIfEmpty(d.Influencers)
	d.Populations = nilIfEmpty(d.Populations)
	d.TradeLinks = nilIfEmpty(d.TradeLinks)
	d.PowerNodes = nilIfEmpty(d.PowerNodes)
	d.CultureLayers = nilIfEmpty(d.CultureLayers)
}

func nilIfEmpty[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return s
}

func decodeDelta(r *binReader) (*Delta, error) {
	d := &Delta{}
	var err error
	if d.Tick, err = r.u64(); err != nil {
		return nil, err
	}
	if d.Overlays, err = decodeOverlays(r); err != nil {
		return nil, err
	}
	hasTerrain, err := r.boolean()
	if err != nil {
		return nil, err
	}
	if hasTerrain {
		if d.TerrainOverlay, err = decodeTerrainOverlay(r); err != nil {
			return nil, err
		}
	}

	n, err := r.count(maxCollection)
	if err != nil {
		return nil, err
	}
	d.Tiles = make([]TileUpdate, n)
	for i := range d.Tiles {
		if err := decodeTile(r, &d.Tiles[i]); err != nil {
			return nil, err
		}
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	d.Influencers = make([]InfluencerUpdate, n)
	for i := range d.Influencers {
		if err := decodeInfluencer(r, &d.Influencers[i]); err != nil {
			return nil, err
		}
	}
	hasCorruption, err := r.boolean()
	if err != nil {
		return nil, err
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	if hasCorruption {
		d.Corruption = make([]CorruptionEntryUpdate, 0, n)
	}
	for i := 0; i < n; i++ {
		var c CorruptionEntryUpdate
		if err := decodeCorruption(r, &c); err != nil {
			return nil, err
		}
		d.Corruption = append(d.Corruption, c)
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	d.Populations = make([]PopulationUpdate, n)
	for i := range d.Populations {
		if err := decodePopulation(r, &d.Populations[i]); err != nil {
			return nil, err
		}
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	d.TradeLinks = make([]TradeLinkUpdate, n)
	for i := range d.TradeLinks {
		if err := decodeTradeLink(r, &d.TradeLinks[i]); err != nil {
			return nil, err
		}
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	d.PowerNodes = make([]PowerNodeUpdate, n)
	for i := range d.PowerNodes {
		if err := decodePowerNode(r, &d.PowerNodes[i]); err != nil {
			return nil, err
		}
	}
	hasMetrics, err := r.boolean()
	if err != nil {
		return nil, err
	}
	if hasMetrics {
		incidents, err := r.i32()
		if err != nil {
			return nil, err
		}
		d.PowerMetrics = &PowerMetricsUpdate{IncidentCount: int(incidents)}
	}
	hasGenerations, err := r.boolean()
	if err != nil {
		return nil, err
	}
	if d.Generations, err = decodeU32Slice(r); err != nil {
		return nil, err
	}
	if hasGenerations && d.Generations == nil {
		d.Generations = []uint32{}
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	d.CultureLayers = make([]CultureLayerUpdate, n)
	for i := range d.CultureLayers {
		if err := decodeCultureLayer(r, &d.CultureLayers[i]); err != nil {
			return nil, err
		}
	}
	hasTensions, err := r.boolean()
	if err != nil {
		return nil, err
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	if hasTensions {
		d.Tensions = make([]TensionUpdate, 0, n)
	}
	for i := 0; i < n; i++ {
		var t TensionUpdate
		if err := decodeTension(r, &t); err != nil {
			return nil, err
		}
		d.Tensions = append(d.Tensions, t)
	}
	hasProgress, err := r.boolean()
	if err != nil {
		return nil, err
	}
	if n, err = r.count(maxCollection); err != nil {
		return nil, err
	}
	if hasProgress {
		d.DiscoveryProgress = make([]DiscoveryProgressEntry, 0, n)
	}
	for i := 0; i < n; i++ {
		var p DiscoveryProgressEntry
		if err := decodeDiscoveryProgress(r, &p); err != nil {
			return nil, err
		}
		d.DiscoveryProgress = append(d.DiscoveryProgress, p)
	}
	hasAxes, err := r.boolean()
	if err != nil {
		return nil, err
	}
	if hasAxes {
		var axes [4]int64
		for i := range axes {
			if axes[i], err = r.i64(); err != nil {
				return nil, err
			}
		}
		d.SentimentAxes = &axes
	}

	if d.RemovedInfluencers, err = decodeU64Slice(r); err != nil {
		return nil, err
	}
	if d.RemovedPopulations, err = decodeU64Slice(r); err != nil {
		return nil, err
	}
	if d.RemovedTradeLinks, err = decodeU64Slice(r); err != nil {
		return nil, err
	}
	if d.RemovedPowerNodes, err = decodeU64Slice(r); err != nil {
		return nil, err
	}
	if d.RemovedTiles, err = decodeU64Slice(r); err != nil {
		return nil, err
	}
	if d.RemovedGenerations, err = decodeU32Slice(r); err != nil {
		return nil, err
	}
	if d.RemovedCultureLayers, err = decodeU64Slice(r); err != nil {
		return nil, err
	}
	if d.ClockLabel, err = r.str(); err != nil {
		return nil, err
	}
	normalizeDelta(d)
	return d, nil
}

func decodeOverlays(r *binReader) (map[string]RasterSample, error) {
	n, err := r.count(256)
	if err != nil {
		return nil, err
	}
	overlays := make(map[string]RasterSample, n)
	for i := 0; i < n; i++ {
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		width, err := r.u32()
		if err != nil {
			return nil, err
		}
		height, err := r.u32()
		if err != nil {
			return nil, err
		}
		count, err := r.count(maxCollection)
		if err != nil {
			return nil, err
		}
		samples := make([]int64, count)
		for j := range samples {
			if samples[j], err = r.i64(); err != nil {
				return nil, err
			}
		}
		overlays[name] = RasterSample{Width: int(width), Height: int(height), Samples: samples}
	}
	return overlays, nil
}

func decodeTerrainOverlay(r *binReader) (*TerrainOverlay, error) {
	width, err := r.u32()
	if err != nil {
		return nil, err
	}
	height, err := r.u32()
	if err != nil {
		return nil, err
	}
	count, err := r.count(maxCollection)
	if err != nil {
		return nil, err
	}
	t := &TerrainOverlay{Width: int(width), Height: int(height), Samples: make([]TerrainSample, count)}
	for i := range t.Samples {
		if t.Samples[i].TerrainID, err = r.u16(); err != nil {
			return nil, err
		}
		if t.Samples[i].TagMask, err = r.u16(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func decodeTile(r *binReader, t *TileUpdate) error {
	var err error
	if t.ID, err = r.u64(); err != nil {
		return err
	}
	if t.X, err = r.i32(); err != nil {
		return err
	}
	if t.Y, err = r.i32(); err != nil {
		return err
	}
	if t.Element, err = r.u8(); err != nil {
		return err
	}
	if t.Mass, err = r.i64(); err != nil {
		return err
	}
	if t.Temperature, err = r.i64(); err != nil {
		return err
	}
	if t.Terrain, err = r.u16(); err != nil {
		return err
	}
	if t.Tags, err = r.u32(); err != nil {
		return err
	}
	return nil
}

func decodeLogisticsLink(r *binReader, l *LogisticsLinkUpdate) error {
	var err error
	if l.ID, err = r.u64(); err != nil {
		return err
	}
	if l.From, err = r.u64(); err != nil {
		return err
	}
	if l.To, err = r.u64(); err != nil {
		return err
	}
	if l.Capacity, err = r.i64(); err != nil {
		return err
	}
	if l.Flow, err = r.i64(); err != nil {
		return err
	}
	return nil
}

func decodeFragments(r *binReader) ([]FragmentUpdate, error) {
	n, err := r.count(maxCollection)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	frags := make([]FragmentUpdate, n)
	for i := range frags {
		if frags[i].DiscoveryID, err = r.str(); err != nil {
			return nil, err
		}
		if frags[i].Progress, err = r.i64(); err != nil {
			return nil, err
		}
		if frags[i].Fidelity, err = r.i64(); err != nil {
			return nil, err
		}
	}
	return frags, nil
}

func decodeInfluencer(r *binReader, inf *InfluencerUpdate) error {
	var err error
	if inf.ID, err = r.u64(); err != nil {
		return err
	}
	if inf.Name, err = r.str(); err != nil {
		return err
	}
	if inf.Scope, err = r.u8(); err != nil {
		return err
	}
	hasGen, err := r.boolean()
	if err != nil {
		return err
	}
	if hasGen {
		gen, err := r.u32()
		if err != nil {
			return err
		}
		inf.GenerationScope = &gen
	}
	if inf.AudienceGenerations, err = decodeU32Slice(r); err != nil {
		return err
	}
	if inf.Domains, err = r.u8(); err != nil {
		return err
	}
	if inf.SentimentWeight, err = r.i64(); err != nil {
		return err
	}
	if inf.LogisticsWeight, err = r.i64(); err != nil {
		return err
	}
	if inf.MoraleWeight, err = r.i64(); err != nil {
		return err
	}
	if inf.PowerWeight, err = r.i64(); err != nil {
		return err
	}
	for i := range inf.ChannelWeights {
		if inf.ChannelWeights[i], err = r.i64(); err != nil {
			return err
		}
	}
	for i := range inf.ChannelValues {
		if inf.ChannelValues[i], err = r.i64(); err != nil {
			return err
		}
	}
	for i := range inf.ChannelBoosts {
		if inf.ChannelBoosts[i], err = r.i64(); err != nil {
			return err
		}
	}
	if inf.Notoriety, err = r.i64(); err != nil {
		return err
	}
	if inf.Coherence, err = r.i64(); err != nil {
		return err
	}
	if inf.Status, err = r.u8(); err != nil {
		return err
	}
	if inf.TicksInStatus, err = r.u32(); err != nil {
		return err
	}
	for i := range inf.CultureResonance {
		if inf.CultureResonance[i], err = r.i64(); err != nil {
			return err
		}
	}
	return nil
}

func decodeCorruption(r *binReader, c *CorruptionEntryUpdate) error {
	var err error
	if c.Subsystem, err = r.u8(); err != nil {
		return err
	}
	if c.Intensity, err = r.i64(); err != nil {
		return err
	}
	if c.ExposureTimer, err = r.u32(); err != nil {
		return err
	}
	return nil
}

func decodePopulation(r *binReader, p *PopulationUpdate) error {
	var err error
	if p.ID, err = r.u64(); err != nil {
		return err
	}
	if p.HomeTile, err = r.u64(); err != nil {
		return err
	}
	if p.Size, err = r.u32(); err != nil {
		return err
	}
	if p.Morale, err = r.i64(); err != nil {
		return err
	}
	if p.GenerationID, err = r.u32(); err != nil {
		return err
	}
	if p.FactionID, err = r.u32(); err != nil {
		return err
	}
	if p.Fragments, err = decodeFragments(r); err != nil {
		return err
	}
	hasMigration, err := r.boolean()
	if err != nil {
		return err
	}
	if hasMigration {
		mig := &MigrationUpdate{}
		if mig.DestinationFaction, err = r.u32(); err != nil {
			return err
		}
		if mig.ETA, err = r.u32(); err != nil {
			return err
		}
		if mig.CarriedFragments, err = decodeFragments(r); err != nil {
			return err
		}
		p.Migration = mig
	}
	return nil
}

func decodeTradeLink(r *binReader, t *TradeLinkUpdate) error {
	var err error
	if t.ID, err = r.u64(); err != nil {
		return err
	}
	if t.FromFaction, err = r.u32(); err != nil {
		return err
	}
	if t.ToFaction, err = r.u32(); err != nil {
		return err
	}
	if t.Throughput, err = r.i64(); err != nil {
		return err
	}
	if t.Tariff, err = r.i64(); err != nil {
		return err
	}
	if t.Openness, err = r.i64(); err != nil {
		return err
	}
	if t.Decay, err = r.i64(); err != nil {
		return err
	}
	if t.LeakTimer, err = r.u32(); err != nil {
		return err
	}
	if t.LastDiffusedDiscovery, err = r.str(); err != nil {
		return err
	}
	if t.PendingFragments, err = decodeFragments(r); err != nil {
		return err
	}
	return nil
}

func decodePowerNode(r *binReader, p *PowerNodeUpdate) error {
	var err error
	if p.ID, err = r.u64(); err != nil {
		return err
	}
	if p.NodeID, err = r.u64(); err != nil {
		return err
	}
	if p.BaseGeneration, err = r.i64(); err != nil {
		return err
	}
	if p.BaseDemand, err = r.i64(); err != nil {
		return err
	}
	if p.LiveGeneration, err = r.i64(); err != nil {
		return err
	}
	if p.LiveDemand, err = r.i64(); err != nil {
		return err
	}
	if p.Efficiency, err = r.i64(); err != nil {
		return err
	}
	if p.StorageLevel, err = r.i64(); err != nil {
		return err
	}
	if p.StorageCapacity, err = r.i64(); err != nil {
		return err
	}
	if p.Stability, err = r.i64(); err != nil {
		return err
	}
	if p.IncidentCounter, err = r.u32(); err != nil {
		return err
	}
	return nil
}

func decodeCultureLayer(r *binReader, c *CultureLayerUpdate) error {
	var err error
	if c.ID, err = r.u64(); err != nil {
		return err
	}
	if c.OwnerID, err = r.u64(); err != nil {
		return err
	}
	if c.ParentID, err = r.u64(); err != nil {
		return err
	}
	if c.Scope, err = r.u8(); err != nil {
		return err
	}
	for i := range c.Baselines {
		if c.Baselines[i], err = r.i64(); err != nil {
			return err
		}
	}
	for i := range c.Modifiers {
		if c.Modifiers[i], err = r.i64(); err != nil {
			return err
		}
	}
	for i := range c.Values {
		if c.Values[i], err = r.i64(); err != nil {
			return err
		}
	}
	if c.Divergence, err = r.i64(); err != nil {
		return err
	}
	if c.SoftThreshold, err = r.i64(); err != nil {
		return err
	}
	if c.HardThreshold, err = r.i64(); err != nil {
		return err
	}
	if c.TicksAboveSoft, err = r.u32(); err != nil {
		return err
	}
	if c.TicksAboveHard, err = r.u32(); err != nil {
		return err
	}
	if c.Version, err = r.u32(); err != nil {
		return err
	}
	return nil
}

func decodeTension(r *binReader, t *TensionUpdate) error {
	var err error
	if t.LayerID, err = r.u64(); err != nil {
		return err
	}
	if t.Kind, err = r.u8(); err != nil {
		return err
	}
	if t.Magnitude, err = r.i64(); err != nil {
		return err
	}
	return nil
}

func decodeDiscoveryProgress(r *binReader, d *DiscoveryProgressEntry) error {
	var err error
	if d.Faction, err = r.u32(); err != nil {
		return err
	}
	if d.DiscoveryID, err = r.str(); err != nil {
		return err
	}
	if d.Progress, err = r.i64(); err != nil {
		return err
	}
	return nil
}

func decodeKnowledgeEntry(r *binReader, k *KnowledgeEntryUpdate) error {
	var err error
	if k.OwnerFaction, err = r.u32(); err != nil {
		return err
	}
	if k.DiscoveryID, err = r.str(); err != nil {
		return err
	}
	if k.Tier, err = r.u8(); err != nil {
		return err
	}
	if k.ProgressPercent, err = r.i64(); err != nil {
		return err
	}
	if k.BaseHalfLife, err = r.u32(); err != nil {
		return err
	}
	if k.TimeToCascade, err = r.u32(); err != nil {
		return err
	}
	if k.SecurityPosture, err = r.i64(); err != nil {
		return err
	}
	if k.Flags, err = r.u8(); err != nil {
		return err
	}
	n, err := r.count(maxCollection)
	if err != nil {
		return err
	}
	if n > 0 {
		k.Countermeasures = make([]CountermeasureUpdate, n)
		for i := range k.Countermeasures {
			if k.Countermeasures[i].Kind, err = r.str(); err != nil {
				return err
			}
			if k.Countermeasures[i].Potency, err = r.i64(); err != nil {
				return err
			}
			if k.Countermeasures[i].RemainingTicks, err = r.u32(); err != nil {
				return err
			}
		}
	}
	if n, err = r.count(maxCollection); err != nil {
		return err
	}
	if n > 0 {
		k.Infiltrations = make([]InfiltrationUpdate, n)
		for i := range k.Infiltrations {
			if k.Infiltrations[i].AgentHandle, err = r.str(); err != nil {
				return err
			}
			if k.Infiltrations[i].Suspicion, err = r.i64(); err != nil {
				return err
			}
			if k.Infiltrations[i].Fidelity, err = r.i64(); err != nil {
				return err
			}
			if k.Infiltrations[i].Cells, err = r.u32(); err != nil {
				return err
			}
		}
	}
	if n, err = r.count(maxCollection); err != nil {
		return err
	}
	if n > 0 {
		k.ModifierDeltas = make([]int32, n)
		for i := range k.ModifierDeltas {
			if k.ModifierDeltas[i], err = r.i32(); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeEspionageAgent(r *binReader, a *EspionageAgentUpdate) error {
	var err error
	if a.Handle, err = r.str(); err != nil {
		return err
	}
	if a.Template, err = r.str(); err != nil {
		return err
	}
	if a.Faction, err = r.u32(); err != nil {
		return err
	}
	if a.Status, err = r.u8(); err != nil {
		return err
	}
	if a.MissionID, err = r.str(); err != nil {
		return err
	}
	return nil
}

func decodeQueuedMission(r *binReader, m *QueuedMissionUpdate) error {
	var err error
	if m.MissionID, err = r.str(); err != nil {
		return err
	}
	if m.Template, err = r.str(); err != nil {
		return err
	}
	if m.Owner, err = r.u32(); err != nil {
		return err
	}
	if m.TargetOwner, err = r.u32(); err != nil {
		return err
	}
	if m.DiscoveryID, err = r.str(); err != nil {
		return err
	}
	if m.AgentHandle, err = r.str(); err != nil {
		return err
	}
	if m.TargetTier, err = r.u8(); err != nil {
		return err
	}
	if m.ScheduledTick, err = r.u64(); err != nil {
		return err
	}
	if m.TicksRemaining, err = r.u32(); err != nil {
		return err
	}
	if m.Started, err = r.boolean(); err != nil {
		return err
	}
	return nil
}

func decodeEspionageBudget(r *binReader, b *EspionageBudgetUpdate) error {
	var err error
	if b.Faction, err = r.u32(); err != nil {
		return err
	}
	if b.Budget, err = r.i64(); err != nil {
		return err
	}
	if b.Policy, err = r.u8(); err != nil {
		return err
	}
	return nil
}

func decodeActiveCrisis(r *binReader, c *ActiveCrisisUpdate) error {
	var err error
	if c.ID, err = r.u64(); err != nil {
		return err
	}
	if c.Archetype, err = r.str(); err != nil {
		return err
	}
	if c.Intensity, err = r.i64(); err != nil {
		return err
	}
	n, err := r.count(maxCollection)
	if err != nil {
		return err
	}
	if n > 0 {
		c.Hotspots = make([]HotspotUpdate, n)
		for i := range c.Hotspots {
			if c.Hotspots[i].X, err = r.i32(); err != nil {
				return err
			}
			if c.Hotspots[i].Y, err = r.i32(); err != nil {
				return err
			}
			if c.Hotspots[i].Radius, err = r.i64(); err != nil {
				return err
			}
		}
	}
	if c.SpawnedTick, err = r.u64(); err != nil {
		return err
	}
	return nil
}

func decodeGreatDiscovery(r *binReader, g *GreatDiscoveryUpdate) error {
	var err error
	if g.ID, err = r.str(); err != nil {
		return err
	}
	if g.ObservationThreshold, err = r.i64(); err != nil {
		return err
	}
	n, err := r.count(maxCollection)
	if err != nil {
		return err
	}
	if n > 0 {
		g.Requirements = make([]RequirementUpdate, n)
		for i := range g.Requirements {
			if g.Requirements[i].DiscoveryID, err = r.str(); err != nil {
				return err
			}
			if g.Requirements[i].Weight, err = r.i64(); err != nil {
				return err
			}
			if g.Requirements[i].MinimumProgress, err = r.i64(); err != nil {
				return err
			}
		}
	}
	if g.WeightedProgress, err = r.i64(); err != nil {
		return err
	}
	if g.Published, err = r.boolean(); err != nil {
		return err
	}
	if g.PublishedTick, err = r.u64(); err != nil {
		return err
	}
	return nil
}

func decodeU32Slice(r *binReader) ([]uint32, error) {
	n, err := r.count(maxCollection)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	vs := make([]uint32, n)
	for i := range vs {
		if vs[i], err = r.u32(); err != nil {
			return nil, err
		}
	}
	return vs, nil
}

func decodeU64Slice(r *binReader) ([]uint64, error) {
	n, err := r.count(maxCollection)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	vs := make([]uint64, n)
	for i := range vs {
		if vs[i], err = r.u64(); err != nil {
			return nil, err
		}
	}
	return vs, nil
}
