package snapshot

import "sort"

// Envelope discriminants (§6.2): the first payload byte selects the
// variant.
const (
	envelopeSnapshot uint8 = iota
	envelopeDelta
)

// maxCollection bounds any decoded collection length; a frame claiming
// more than this is treated as corrupt.
const maxCollection = 1 << 22

// EncodeSnapshot serializes a full WorldSnapshot into an envelope payload
// (the bytes inside the length-prefixed frame).
func EncodeSnapshot(s *WorldSnapshot) []byte {
	w := &binWriter{}
	w.u8(envelopeSnapshot)
	w.u64(s.Tick)

	encodeOverlays(w, s.Overlays)
	encodeTerrainOverlay(w, &s.TerrainOverlay)

	w.u32(uint32(len(s.Tiles)))
	for i := range s.Tiles {
		encodeTile(w, &s.Tiles[i])
	}
	w.u32(uint32(len(s.LogisticsLinks)))
	for i := range s.LogisticsLinks {
		encodeLogisticsLink(w, &s.LogisticsLinks[i])
	}
	w.u32(uint32(len(s.Influencers)))
	for i := range s.Influencers {
		encodeInfluencer(w, &s.Influencers[i])
	}
	w.u32(uint32(len(s.Corruption)))
	for i := range s.Corruption {
		encodeCorruption(w, &s.Corruption[i])
	}
	w.u32(uint32(len(s.Populations)))
	for i := range s.Populations {
		encodePopulation(w, &s.Populations[i])
	}
	w.u32(uint32(len(s.TradeLinks)))
	for i := range s.TradeLinks {
		encodeTradeLink(w, &s.TradeLinks[i])
	}
	w.u32(uint32(len(s.PowerNodes)))
	for i := range s.PowerNodes {
		encodePowerNode(w, &s.PowerNodes[i])
	}
	w.i32(int32(s.PowerMetrics.IncidentCount))

	encodeU32Slice(w, s.Generations)
	encodeU32Slice(w, s.Factions)

	w.u32(uint32(len(s.CultureLayers)))
	for i := range s.CultureLayers {
		encodeCultureLayer(w, &s.CultureLayers[i])
	}
	w.u32(uint32(len(s.Tensions)))
	for i := range s.Tensions {
		encodeTension(w, &s.Tensions[i])
	}
	w.u32(uint32(len(s.DiscoveryProgress)))
	for i := range s.DiscoveryProgress {
		encodeDiscoveryProgress(w, &s.DiscoveryProgress[i])
	}
	w.u32(uint32(len(s.KnowledgeEntries)))
	for i := range s.KnowledgeEntries {
		encodeKnowledgeEntry(w, &s.KnowledgeEntries[i])
	}
	w.u32(uint32(len(s.EspionageAgents)))
	for i := range s.EspionageAgents {
		encodeEspionageAgent(w, &s.EspionageAgents[i])
	}
	w.u32(uint32(len(s.EspionageMissions)))
	for i := range s.EspionageMissions {
		encodeQueuedMission(w, &s.EspionageMissions[i])
	}
	w.u32(uint32(len(s.EspionageBudgets)))
	for i := range s.EspionageBudgets {
		encodeEspionageBudget(w, &s.EspionageBudgets[i])
	}
	w.u32(uint32(len(s.ActiveCrises)))
	for i := range s.ActiveCrises {
		encodeActiveCrisis(w, &s.ActiveCrises[i])
	}
	w.u64(s.NextCrisisID)
	w.u32(uint32(len(s.GreatDiscoveries)))
	for i := range s.GreatDiscoveries {
		encodeGreatDiscovery(w, &s.GreatDiscoveries[i])
	}
	for _, axis := range s.SentimentAxes {
		w.i64(axis)
	}
	w.str(s.ClockLabel)
	return w.bytes()
}

// EncodeDelta serializes a Delta into an envelope payload.
func EncodeDelta(d *Delta) []byte {
	w := &binWriter{}
	w.u8(envelopeDelta)
	w.u64(d.Tick)

	encodeOverlays(w, d.Overlays)
	w.boolean(d.TerrainOverlay != nil)
	if d.TerrainOverlay != nil {
		encodeTerrainOverlay(w, d.TerrainOverlay)
	}

	w.u32(uint32(len(d.Tiles)))
	for i := range d.Tiles {
		encodeTile(w, &d.Tiles[i])
	}
	w.u32(uint32(len(d.Influencers)))
	for i := range d.Influencers {
		encodeInfluencer(w, &d.Influencers[i])
	}
	w.boolean(d.Corruption != nil)
	w.u32(uint32(len(d.Corruption)))
	for i := range d.Corruption {
		encodeCorruption(w, &d.Corruption[i])
	}
	w.u32(uint32(len(d.Populations)))
	for i := range d.Populations {
		encodePopulation(w, &d.Populations[i])
	}
	w.u32(uint32(len(d.TradeLinks)))
	for i := range d.TradeLinks {
		encodeTradeLink(w, &d.TradeLinks[i])
	}
	w.u32(uint32(len(d.PowerNodes)))
	for i := range d.PowerNodes {
		encodePowerNode(w, &d.PowerNodes[i])
	}
	w.boolean(d.PowerMetrics != nil)
	if d.PowerMetrics != nil {
		w.i32(int32(d.PowerMetrics.IncidentCount))
	}
	w.boolean(d.Generations != nil)
	encodeU32Slice(w, d.Generations)
	w.u32(uint32(len(d.CultureLayers)))
	for i := range d.CultureLayers {
		encodeCultureLayer(w, &d.CultureLayers[i])
	}
	w.boolean(d.Tensions != nil)
	w.u32(uint32(len(d.Tensions)))
	for i := range d.Tensions {
		encodeTension(w, &d.Tensions[i])
	}
	w.boolean(d.DiscoveryProgress != nil)
	w.u32(uint32(len(d.DiscoveryProgress)))
	for i := range d.DiscoveryProgress {
		encodeDiscoveryProgress(w, &d.DiscoveryProgress[i])
	}
	w.boolean(d.SentimentAxes != nil)
	if d.SentimentAxes != nil {
		for _, axis := range d.SentimentAxes {
			w.i64(axis)
		}
	}

	encodeU64Slice(w, d.RemovedInfluencers)
	encodeU64Slice(w, d.RemovedPopulations)
	encodeU64Slice(w, d.RemovedTradeLinks)
	encodeU64Slice(w, d.RemovedPowerNodes)
	encodeU64Slice(w, d.RemovedTiles)
	encodeU32Slice(w, d.RemovedGenerations)
	encodeU64Slice(w, d.RemovedCultureLayers)

	w.str(d.ClockLabel)
	return w.bytes()
}

func encodeOverlays(w *binWriter, overlays map[string]RasterSample) {
	names := make([]string, 0, len(overlays))
	for name := range overlays {
		names = append(names, name)
	}
	sort.Strings(names)
	w.u32(uint32(len(names)))
	for _, name := range names {
		raster := overlays[name]
		w.str(name)
		w.u32(uint32(raster.Width))
		w.u32(uint32(raster.Height))
		w.u32(uint32(len(raster.Samples)))
		for _, sample := range raster.Samples {
			w.i64(sample)
		}
	}
}

func encodeTerrainOverlay(w *binWriter, t *TerrainOverlay) {
	w.u32(uint32(t.Width))
	w.u32(uint32(t.Height))
	w.u32(uint32(len(t.Samples)))
	for _, s := range t.Samples {
		w.u16(s.TerrainID)
		w.u16(s.TagMask)
	}
}

func encodeTile(w *binWriter, t *TileUpdate) {
	w.u64(t.ID)
	w.i32(t.X)
	w.i32(t.Y)
	w.u8(t.Element)
	w.i64(t.Mass)
	w.i64(t.Temperature)
	w.u16(t.Terrain)
	w.u32(t.Tags)
}

func encodeLogisticsLink(w *binWriter, l *LogisticsLinkUpdate) {
	w.u64(l.ID)
	w.u64(l.From)
	w.u64(l.To)
	w.i64(l.Capacity)
	w.i64(l.Flow)
}

func encodeFragments(w *binWriter, frags []FragmentUpdate) {
	w.u32(uint32(len(frags)))
	for _, f := range frags {
		w.str(f.DiscoveryID)
		w.i64(f.Progress)
		w.i64(f.Fidelity)
	}
}

func encodeInfluencer(w *binWriter, inf *InfluencerUpdate) {
	w.u64(inf.ID)
	w.str(inf.Name)
	w.u8(inf.Scope)
	w.boolean(inf.GenerationScope != nil)
	if inf.GenerationScope != nil {
		w.u32(*inf.GenerationScope)
	}
	encodeU32Slice(w, inf.AudienceGenerations)
	w.u8(inf.Domains)
	w.i64(inf.SentimentWeight)
	w.i64(inf.LogisticsWeight)
	w.i64(inf.MoraleWeight)
	w.i64(inf.PowerWeight)
	for _, v := range inf.ChannelWeights {
		w.i64(v)
	}
	for _, v := range inf.ChannelValues {
		w.i64(v)
	}
	for _, v := range inf.ChannelBoosts {
		w.i64(v)
	}
	w.i64(inf.Notoriety)
	w.i64(inf.Coherence)
	w.u8(inf.Status)
	w.u32(inf.TicksInStatus)
	for _, v := range inf.CultureResonance {
		w.i64(v)
	}
}

func encodeCorruption(w *binWriter, c *CorruptionEntryUpdate) {
	w.u8(c.Subsystem)
	w.i64(c.Intensity)
	w.u32(c.ExposureTimer)
}

func encodePopulation(w *binWriter, p *PopulationUpdate) {
	w.u64(p.ID)
	w.u64(p.HomeTile)
	w.u32(p.Size)
	w.i64(p.Morale)
	w.u32(p.GenerationID)
	w.u32(p.FactionID)
	encodeFragments(w, p.Fragments)
	w.boolean(p.Migration != nil)
	if p.Migration != nil {
		w.u32(p.Migration.DestinationFaction)
		w.u32(p.Migration.ETA)
		encodeFragments(w, p.Migration.CarriedFragments)
	}
}

func encodeTradeLink(w *binWriter, t *TradeLinkUpdate) {
	w.u64(t.ID)
	w.u32(t.FromFaction)
	w.u32(t.ToFaction)
	w.i64(t.Throughput)
	w.i64(t.Tariff)
	w.i64(t.Openness)
	w.i64(t.Decay)
	w.u32(t.LeakTimer)
	w.str(t.LastDiffusedDiscovery)
	encodeFragments(w, t.PendingFragments)
}

func encodePowerNode(w *binWriter, p *PowerNodeUpdate) {
	w.u64(p.ID)
	w.u64(p.NodeID)
	w.i64(p.BaseGeneration)
	w.i64(p.BaseDemand)
	w.i64(p.LiveGeneration)
	w.i64(p.LiveDemand)
	w.i64(p.Efficiency)
	w.i64(p.StorageLevel)
	w.i64(p.StorageCapacity)
	w.i64(p.Stability)
	w.u32(p.IncidentCounter)
}

func encodeCultureLayer(w *binWriter, c *CultureLayerUpdate) {
	w.u64(c.ID)
	w.u64(c.OwnerID)
	w.u64(c.ParentID)
	w.u8(c.Scope)
	for _, v := range c.Baselines {
		w.i64(v)
	}
	for _, v := range c.Modifiers {
		w.i64(v)
	}
	for _, v := range c.Values {
		w.i64(v)
	}
	w.i64(c.Divergence)
	w.i64(c.SoftThreshold)
	w.i64(c.HardThreshold)
	w.u32(c.TicksAboveSoft)
	w.u32(c.TicksAboveHard)
	w.u32(c.Version)
}

func encodeTension(w *binWriter, t *TensionUpdate) {
	w.u64(t.LayerID)
	w.u8(t.Kind)
	w.i64(t.Magnitude)
}

func encodeDiscoveryProgress(w *binWriter, d *DiscoveryProgressEntry) {
	w.u32(d.Faction)
	w.str(d.DiscoveryID)
	w.i64(d.Progress)
}

func encodeKnowledgeEntry(w *binWriter, k *KnowledgeEntryUpdate) {
	w.u32(k.OwnerFaction)
	w.str(k.DiscoveryID)
	w.u8(k.Tier)
	w.i64(k.ProgressPercent)
	w.u32(k.BaseHalfLife)
	w.u32(k.TimeToCascade)
	w.i64(k.SecurityPosture)
	w.u8(k.Flags)
	w.u32(uint32(len(k.Countermeasures)))
	for _, cm := range k.Countermeasures {
		w.str(cm.Kind)
		w.i64(cm.Potency)
		w.u32(cm.RemainingTicks)
	}
	w.u32(uint32(len(k.Infiltrations)))
	for _, inf := range k.Infiltrations {
		w.str(inf.AgentHandle)
		w.i64(inf.Suspicion)
		w.i64(inf.Fidelity)
		w.u32(inf.Cells)
	}
	w.u32(uint32(len(k.ModifierDeltas)))
	for _, d := range k.ModifierDeltas {
		w.i32(d)
	}
}

func encodeEspionageAgent(w *binWriter, a *EspionageAgentUpdate) {
	w.str(a.Handle)
	w.str(a.Template)
	w.u32(a.Faction)
	w.u8(a.Status)
	w.str(a.MissionID)
}

func encodeQueuedMission(w *binWriter, m *QueuedMissionUpdate) {
	w.str(m.MissionID)
	w.str(m.Template)
	w.u32(m.Owner)
	w.u32(m.TargetOwner)
	w.str(m.DiscoveryID)
	w.str(m.AgentHandle)
	w.u8(m.TargetTier)
	w.u64(m.ScheduledTick)
	w.u32(m.TicksRemaining)
	w.boolean(m.Started)
}

func encodeEspionageBudget(w *binWriter, b *EspionageBudgetUpdate) {
	w.u32(b.Faction)
	w.i64(b.Budget)
	w.u8(b.Policy)
}

func encodeActiveCrisis(w *binWriter, c *ActiveCrisisUpdate) {
	w.u64(c.ID)
	w.str(c.Archetype)
	w.i64(c.Intensity)
	w.u32(uint32(len(c.Hotspots)))
	for _, h := range c.Hotspots {
		w.i32(h.X)
		w.i32(h.Y)
		w.i64(h.Radius)
	}
	w.u64(c.SpawnedTick)
}

func encodeGreatDiscovery(w *binWriter, g *GreatDiscoveryUpdate) {
	w.str(g.ID)
	w.i64(g.ObservationThreshold)
	w.u32(uint32(len(g.Requirements)))
	for _, req := range g.Requirements {
		w.str(req.DiscoveryID)
		w.i64(req.Weight)
		w.i64(req.MinimumProgress)
	}
	w.i64(g.WeightedProgress)
	w.boolean(g.Published)
	w.u64(g.PublishedTick)
}

func encodeU32Slice(w *binWriter, vs []uint32) {
	w.u32(uint32(len(vs)))
	for _, v := range vs {
		w.u32(v)
	}
}

func encodeU64Slice(w *binWriter, vs []uint64) {
	w.u32(uint32(len(vs)))
	for _, v := range vs {
		w.u64(v)
	}
}
