package snapshot

import (
	"sort"

	"github.com/talgya/shadow-scale/internal/ecs"
	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
	"github.com/talgya/shadow-scale/internal/worldconfig"
)

// Assemble captures the world's full state at the current tick into a
// WorldSnapshot (§4.1 step 13, §4.10). Iteration is in ascending entity id
// order throughout so two runs over identical state produce byte-identical
// envelopes (bit-identical output across runs).
func Assemble(w *simstate.World, overlayCfg *worldconfig.SnapshotOverlayConfig, tensions []TensionUpdate, clockLabel string, tick uint64) *WorldSnapshot {
	cfg := ecs.MustGet[simstate.Config](w.Resources)
	s := &WorldSnapshot{
		Tick:       tick,
		Overlays:   map[string]RasterSample{},
		Tensions:   tensions,
		ClockLabel: clockLabel,
	}

	assembleTiles(w, s)
	assembleLinks(w, s)
	assembleInfluencers(w, s)
	assemblePopulations(w, s)
	assemblePowerNodes(w, s)
	assembleCultureLayers(w, s)
	assembleResources(w, s)
	assembleOverlays(w, s, overlayCfg, cfg.GridWidth, cfg.GridHeight)

	return s
}

func assembleTiles(w *simstate.World, s *WorldSnapshot) {
	for _, id := range w.Tiles.SortedIDs() {
		t := w.Tiles.MustGet(id)
		s.Tiles = append(s.Tiles, TileUpdate{
			ID:          uint64(id),
			X:           t.X,
			Y:           t.Y,
			Element:     uint8(t.Element),
			Mass:        t.Mass.Raw(),
			Temperature: t.Temperature.Raw(),
			Terrain:     uint16(t.Terrain),
			Tags:        t.Tags,
		})
	}
}

func assembleLinks(w *simstate.World, s *WorldSnapshot) {
	for _, id := range w.LogisticsLinks.SortedIDs() {
		l := w.LogisticsLinks.MustGet(id)
		s.LogisticsLinks = append(s.LogisticsLinks, LogisticsLinkUpdate{
			ID:       uint64(id),
			From:     uint64(l.From),
			To:       uint64(l.To),
			Capacity: l.Capacity.Raw(),
			Flow:     l.CurrentFlow.Raw(),
		})
	}
	for _, id := range w.TradeLinks.SortedIDs() {
		t := w.TradeLinks.MustGet(id)
		s.TradeLinks = append(s.TradeLinks, TradeLinkUpdate{
			ID:                    uint64(id),
			FromFaction:           t.FromFaction,
			ToFaction:             t.ToFaction,
			Throughput:            t.Throughput.Raw(),
			Tariff:                t.Tariff.Raw(),
			Openness:              t.Openness.Raw(),
			Decay:                 t.Decay.Raw(),
			LeakTimer:             t.LeakTimer,
			LastDiffusedDiscovery: t.LastDiffusedDiscovery,
			PendingFragments:      fragmentsToWire(t.PendingFragments),
		})
	}
}

func assembleInfluencers(w *simstate.World, s *WorldSnapshot) {
	for _, id := range w.Influencers.SortedIDs() {
		inf := w.Influencers.MustGet(id)
		u := InfluencerUpdate{
			ID:            uint64(id),
			Name:          inf.Name,
			Scope:         uint8(inf.Scope),
			Domains:       uint8(inf.Domains),
			SentimentWeight: inf.SentimentWeight.Raw(),
			LogisticsWeight: inf.LogisticsWeight.Raw(),
			MoraleWeight:  inf.MoraleWeight.Raw(),
			PowerWeight:   inf.PowerWeight.Raw(),
			Notoriety:     inf.Notoriety.Raw(),
			Coherence:     inf.Coherence.Raw(),
			Status:        uint8(inf.Status),
			TicksInStatus: inf.TicksInStatus,
		}
		if inf.GenerationScope != nil {
			gen := *inf.GenerationScope
			u.GenerationScope = &gen
		}
		u.AudienceGenerations = append(u.AudienceGenerations, inf.AudienceGenerations...)
		for i := range inf.ChannelWeights {
			u.ChannelWeights[i] = inf.ChannelWeights[i].Raw()
			u.ChannelValues[i] = inf.ChannelValues[i].Raw()
			u.ChannelBoosts[i] = inf.ChannelBoosts[i].Raw()
		}
		for i := range inf.CultureResonance {
			u.CultureResonance[i] = inf.CultureResonance[i].Raw()
		}
		s.Influencers = append(s.Influencers, u)
	}
}

func assemblePopulations(w *simstate.World, s *WorldSnapshot) {
	for _, id := range w.Cohorts.SortedIDs() {
		c := w.Cohorts.MustGet(id)
		u := PopulationUpdate{
			ID:           uint64(id),
			HomeTile:     uint64(c.HomeTile),
			Size:         c.Size,
			Morale:       c.Morale.Raw(),
			GenerationID: c.GenerationID,
			FactionID:    c.FactionID,
			Fragments:    cohortFragmentsToWire(c.Fragments),
		}
		if c.Migration != nil {
			u.Migration = &MigrationUpdate{
				DestinationFaction: c.Migration.DestinationFaction,
				ETA:                c.Migration.ETA,
				CarriedFragments:   fragmentsToWire(c.Migration.CarriedFragments),
			}
		}
		s.Populations = append(s.Populations, u)
	}
}

func assemblePowerNodes(w *simstate.World, s *WorldSnapshot) {
	for _, id := range w.PowerNodes.SortedIDs() {
		p := w.PowerNodes.MustGet(id)
		s.PowerNodes = append(s.PowerNodes, PowerNodeUpdate{
			ID:              uint64(id),
			NodeID:          p.NodeID,
			BaseGeneration:  p.BaseGeneration.Raw(),
			BaseDemand:      p.BaseDemand.Raw(),
			LiveGeneration:  p.LiveGeneration.Raw(),
			LiveDemand:      p.LiveDemand.Raw(),
			Efficiency:      p.Efficiency.Raw(),
			StorageLevel:    p.StorageLevel.Raw(),
			StorageCapacity: p.StorageCapacity.Raw(),
			Stability:       p.Stability.Raw(),
			IncidentCounter: p.IncidentCounter,
		})
	}
	grid := ecs.MustGet[*simstate.PowerGridState](w.Resources)
	s.PowerMetrics = PowerMetricsUpdate{IncidentCount: len(grid.Incidents)}
}

func assembleCultureLayers(w *simstate.World, s *WorldSnapshot) {
	for _, id := range w.CultureLayers.SortedIDs() {
		c := w.CultureLayers.MustGet(id)
		u := CultureLayerUpdate{
			ID:             uint64(id),
			OwnerID:        uint64(c.OwnerID),
			ParentID:       uint64(c.ParentID),
			Scope:          uint8(c.Scope),
			Divergence:     c.Divergence.Raw(),
			SoftThreshold:  c.SoftThreshold.Raw(),
			HardThreshold:  c.HardThreshold.Raw(),
			TicksAboveSoft: c.TicksAboveSoft,
			TicksAboveHard: c.TicksAboveHard,
			Version:        c.Version,
		}
		for i := range c.Axes {
			u.Baselines[i] = c.Axes[i].Baseline.Raw()
			u.Modifiers[i] = c.Axes[i].Modifier.Raw()
			u.Values[i] = c.Axes[i].Value.Raw()
		}
		s.CultureLayers = append(s.CultureLayers, u)
	}
}

func assembleResources(w *simstate.World, s *WorldSnapshot) {
	factions := ecs.MustGet[*simstate.FactionRegistry](w.Resources)
	s.Factions = append(s.Factions, factions.IDs...)
	generations := ecs.MustGet[*simstate.GenerationRegistry](w.Resources)
	s.Generations = append(s.Generations, generations.IDs...)

	corruption := ecs.MustGet[*simstate.CorruptionLedger](w.Resources)
	for _, sub := range []simstate.CorruptionSubsystem{
		simstate.CorruptionLogistics, simstate.CorruptionTrade,
		simstate.CorruptionMilitary, simstate.CorruptionGovernance,
	} {
		for _, inc := range corruption.BySubsystem[sub] {
			s.Corruption = append(s.Corruption, CorruptionEntryUpdate{
				Subsystem:     uint8(sub),
				Intensity:     inc.Intensity.Raw(),
				ExposureTimer: inc.ExposureTimer,
			})
		}
	}

	progress := ecs.MustGet[*simstate.DiscoveryProgressLedger](w.Resources)
	factionIDs := make([]uint32, 0, len(progress.Progress))
	for f := range progress.Progress {
		factionIDs = append(factionIDs, f)
	}
	sort.Slice(factionIDs, func(i, j int) bool { return factionIDs[i] < factionIDs[j] })
	for _, f := range factionIDs {
		ids := make([]string, 0, len(progress.Progress[f]))
		for d := range progress.Progress[f] {
			ids = append(ids, d)
		}
		sort.Strings(ids)
		for _, d := range ids {
			s.DiscoveryProgress = append(s.DiscoveryProgress, DiscoveryProgressEntry{
				Faction: f, DiscoveryID: d, Progress: progress.Progress[f][d].Raw(),
			})
		}
	}

	ledger := ecs.MustGet[*simstate.KnowledgeLedger](w.Resources)
	keys := make([]simstate.KnowledgeOwnerDiscovery, 0, len(ledger.Entries))
	for k := range ledger.Entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].OwnerFaction != keys[j].OwnerFaction {
			return keys[i].OwnerFaction < keys[j].OwnerFaction
		}
		return keys[i].DiscoveryID < keys[j].DiscoveryID
	})
	for _, k := range keys {
		e := ledger.Entries[k]
		u := KnowledgeEntryUpdate{
			OwnerFaction:    k.OwnerFaction,
			DiscoveryID:     k.DiscoveryID,
			Tier:            e.Tier,
			ProgressPercent: e.ProgressPercent.Raw(),
			BaseHalfLife:    e.BaseHalfLife,
			TimeToCascade:   e.TimeToCascade,
			SecurityPosture: e.SecurityPosture.Raw(),
			Flags:           uint8(e.Flags),
		}
		for _, cm := range e.Countermeasures {
			u.Countermeasures = append(u.Countermeasures, CountermeasureUpdate{
				Kind: cm.Kind, Potency: cm.Potency.Raw(), RemainingTicks: cm.RemainingTicks,
			})
		}
		for _, inf := range e.Infiltrations {
			u.Infiltrations = append(u.Infiltrations, InfiltrationUpdate{
				AgentHandle: inf.AgentHandle, Suspicion: inf.Suspicion.Raw(),
				Fidelity: inf.Fidelity.Raw(), Cells: inf.Cells,
			})
		}
		u.ModifierDeltas = append(u.ModifierDeltas, e.ModifierDeltas...)
		s.KnowledgeEntries = append(s.KnowledgeEntries, u)
	}

	roster := ecs.MustGet[*simstate.EspionageRoster](w.Resources)
	handles := make([]string, 0, len(roster.Agents))
	for h := range roster.Agents {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	for _, h := range handles {
		a := roster.Agents[h]
		s.EspionageAgents = append(s.EspionageAgents, EspionageAgentUpdate{
			Handle: a.Handle, Template: a.Template, Faction: a.Faction,
			Status: uint8(a.Status), MissionID: a.MissionID,
		})
	}

	missions := ecs.MustGet[*simstate.EspionageMissionState](w.Resources)
	missionIDs := make([]string, 0, len(missions.Queue))
	for id := range missions.Queue {
		missionIDs = append(missionIDs, id)
	}
	sort.Strings(missionIDs)
	for _, id := range missionIDs {
		m := missions.Queue[id]
		s.EspionageMissions = append(s.EspionageMissions, QueuedMissionUpdate{
			MissionID: m.MissionID, Template: m.Template, Owner: m.Owner,
			TargetOwner: m.TargetOwner, DiscoveryID: m.DiscoveryID,
			AgentHandle: m.AgentHandle, TargetTier: m.TargetTier,
			ScheduledTick: m.ScheduledTick, TicksRemaining: m.TicksRemaining,
			Started: m.Started,
		})
	}

	budgets := ecs.MustGet[*simstate.EspionageBudgets](w.Resources)
	budgetFactions := make([]uint32, 0, len(budgets.CounterIntelBudget))
	for f := range budgets.CounterIntelBudget {
		budgetFactions = append(budgetFactions, f)
	}
	sort.Slice(budgetFactions, func(i, j int) bool { return budgetFactions[i] < budgetFactions[j] })
	for _, f := range budgetFactions {
		s.EspionageBudgets = append(s.EspionageBudgets, EspionageBudgetUpdate{
			Faction: f, Budget: budgets.CounterIntelBudget[f].Raw(), Policy: uint8(budgets.Policy[f]),
		})
	}

	crises := ecs.MustGet[*simstate.CrisisState](w.Resources)
	for _, c := range crises.Active {
		u := ActiveCrisisUpdate{
			ID: c.ID, Archetype: c.Archetype, Intensity: c.Intensity.Raw(),
			SpawnedTick: c.SpawnedTick,
		}
		for _, h := range c.Hotspots {
			u.Hotspots = append(u.Hotspots, HotspotUpdate{X: h.X, Y: h.Y, Radius: h.Radius.Raw()})
		}
		s.ActiveCrises = append(s.ActiveCrises, u)
	}
	s.NextCrisisID = crises.NextID

	great := ecs.MustGet[*simstate.GreatDiscoveryState](w.Resources)
	gdIDs := make([]string, 0, len(great.Discoveries))
	for id := range great.Discoveries {
		gdIDs = append(gdIDs, id)
	}
	sort.Strings(gdIDs)
	for _, id := range gdIDs {
		g := great.Discoveries[id]
		u := GreatDiscoveryUpdate{
			ID: g.ID, ObservationThreshold: g.ObservationThreshold.Raw(),
			WeightedProgress: g.WeightedProgress.Raw(),
			Published:        g.Published, PublishedTick: g.PublishedTick,
		}
		for _, req := range g.Requirements {
			u.Requirements = append(u.Requirements, RequirementUpdate{
				DiscoveryID:     req.DiscoveryID,
				Weight:          req.Weight.Raw(),
				MinimumProgress: req.MinimumProgress.Raw(),
			})
		}
		s.GreatDiscoveries = append(s.GreatDiscoveries, u)
	}

	bias := ecs.MustGet[*simstate.SentimentBias](w.Resources)
	for i := range bias.Axes {
		s.SentimentAxes[i] = bias.Axes[i].Raw()
	}
}

// assembleOverlays rebuilds the per-channel scalar rasters. Normalization
// stays in fixed-point end to end; floats appear only in the samples'
// final i64 raw form, which is already fixed-point (§9 open question (c)).
func assembleOverlays(w *simstate.World, s *WorldSnapshot, cfg *worldconfig.SnapshotOverlayConfig, gridW, gridH int) {
	if cfg.IncludeTerrain {
		s.TerrainOverlay = terrainOverlay(w, gridW, gridH)
	}
	if cfg.IncludeLogistics {
		s.Overlays["logistics"] = logisticsOverlay(w, gridW, gridH)
	}
	if cfg.IncludeSentiment {
		s.Overlays["sentiment"] = sentimentOverlay(w, gridW, gridH)
	}
	if cfg.IncludeCorruption {
		s.Overlays["corruption"] = corruptionOverlay(w, gridW, gridH)
	}
	if cfg.IncludeFog {
		s.Overlays["fog"] = fogOverlay(w, gridW, gridH)
	}
	if cfg.IncludeCulture {
		s.Overlays["culture"] = cultureOverlay(w, gridW, gridH)
	}
	if cfg.IncludeMilitary {
		s.Overlays["military"] = militaryOverlay(w, gridW, gridH)
	}
	crises := ecs.MustGet[*simstate.CrisisState](w.Resources)
	if crises.Overlay != nil {
		samples := make([]int64, len(crises.Overlay.Samples))
		for i, v := range crises.Overlay.Samples {
			samples[i] = v.Raw()
		}
		s.Overlays["crisis"] = RasterSample{Width: crises.Overlay.Width, Height: crises.Overlay.Height, Samples: samples}
	}
}

func terrainOverlay(w *simstate.World, gridW, gridH int) TerrainOverlay {
	overlay := TerrainOverlay{Width: gridW, Height: gridH, Samples: make([]TerrainSample, gridW*gridH)}
	for _, id := range w.Tiles.SortedIDs() {
		t := w.Tiles.MustGet(id)
		if int(t.X) >= gridW || int(t.Y) >= gridH {
			continue
		}
		overlay.Samples[int(t.Y)*gridW+int(t.X)] = TerrainSample{
			TerrainID: uint16(t.Terrain),
			TagMask:   uint16(t.Tags),
		}
	}
	return overlay
}

func logisticsOverlay(w *simstate.World, gridW, gridH int) RasterSample {
	raster := newRawRaster(gridW, gridH)
	for _, id := range w.LogisticsLinks.SortedIDs() {
		l := w.LogisticsLinks.MustGet(id)
		if tile, ok := w.Tiles.Get(l.From); ok {
			stamp(raster, gridW, gridH, tile.X, tile.Y, l.CurrentFlow)
		}
	}
	return raster
}

func sentimentOverlay(w *simstate.World, gridW, gridH int) RasterSample {
	bias := ecs.MustGet[*simstate.SentimentBias](w.Resources)
	mean := fixedpoint.Zero
	for _, axis := range bias.Axes {
		mean = mean.Add(axis)
	}
	mean = mean.Div(fixedpoint.FromInt(int64(len(bias.Axes))))

	raster := newRawRaster(gridW, gridH)
	for i := range raster.Samples {
		raster.Samples[i] = mean.Raw()
	}
	for _, id := range w.Cohorts.SortedIDs() {
		c := w.Cohorts.MustGet(id)
		if tile, ok := w.Tiles.Get(c.HomeTile); ok {
			stamp(raster, gridW, gridH, tile.X, tile.Y, c.Morale.Sub(fixedpoint.FromFloat32(0.5)))
		}
	}
	return raster
}

func corruptionOverlay(w *simstate.World, gridW, gridH int) RasterSample {
	ledger := ecs.MustGet[*simstate.CorruptionLedger](w.Resources)
	total := fixedpoint.Zero
	for _, sub := range []simstate.CorruptionSubsystem{
		simstate.CorruptionLogistics, simstate.CorruptionTrade,
		simstate.CorruptionMilitary, simstate.CorruptionGovernance,
	} {
		for _, inc := range ledger.BySubsystem[sub] {
			if inc.Intensity.Gt(fixedpoint.Zero) {
				total = total.Add(inc.Intensity)
			}
		}
	}
	level := total.Div(fixedpoint.FromInt(20)).Clamp(fixedpoint.Zero, fixedpoint.One)
	raster := newRawRaster(gridW, gridH)
	for i := range raster.Samples {
		raster.Samples[i] = level.Raw()
	}
	return raster
}

func fogOverlay(w *simstate.World, gridW, gridH int) RasterSample {
	raster := newRawRaster(gridW, gridH)
	for i := range raster.Samples {
		raster.Samples[i] = fixedpoint.One.Raw()
	}
	for _, id := range w.Cohorts.SortedIDs() {
		c := w.Cohorts.MustGet(id)
		if tile, ok := w.Tiles.Get(c.HomeTile); ok {
			if in(gridW, gridH, tile.X, tile.Y) {
				raster.Samples[int(tile.Y)*gridW+int(tile.X)] = 0
			}
		}
	}
	return raster
}

func cultureOverlay(w *simstate.World, gridW, gridH int) RasterSample {
	raster := newRawRaster(gridW, gridH)
	for _, id := range w.CultureLayers.SortedIDs() {
		layer := w.CultureLayers.MustGet(id)
		if layer.Scope != simstate.CultureLocal {
			continue
		}
		if tile, ok := w.Tiles.Get(layer.OwnerID); ok {
			stamp(raster, gridW, gridH, tile.X, tile.Y, layer.Divergence)
		}
	}
	return raster
}

func militaryOverlay(w *simstate.World, gridW, gridH int) RasterSample {
	raster := newRawRaster(gridW, gridH)
	for _, id := range w.PowerNodes.SortedIDs() {
		node := w.PowerNodes.MustGet(id)
		if tile, ok := w.Tiles.Get(ecs.EntityID(node.NodeID)); ok {
			stamp(raster, gridW, gridH, tile.X, tile.Y, node.Stability)
		}
	}
	return raster
}

func newRawRaster(w, h int) RasterSample {
	return RasterSample{Width: w, Height: h, Samples: make([]int64, w*h)}
}

func stamp(raster RasterSample, gridW, gridH int, x, y int32, v fixedpoint.Scalar) {
	if !in(gridW, gridH, x, y) {
		return
	}
	idx := int(y)*gridW + int(x)
	raster.Samples[idx] = fixedpoint.FromRaw(raster.Samples[idx]).Add(v).Raw()
}

func in(gridW, gridH int, x, y int32) bool {
	return x >= 0 && y >= 0 && int(x) < gridW && int(y) < gridH
}

func fragmentsToWire(frags []simstate.Fragment) []FragmentUpdate {
	if len(frags) == 0 {
		return nil
	}
	out := make([]FragmentUpdate, 0, len(frags))
	for _, f := range frags {
		out = append(out, FragmentUpdate{
			DiscoveryID: f.DiscoveryID, Progress: f.Progress.Raw(), Fidelity: f.Fidelity.Raw(),
		})
	}
	return out
}

func cohortFragmentsToWire(frags map[string]simstate.Fragment) []FragmentUpdate {
	if len(frags) == 0 {
		return nil
	}
	ids := make([]string, 0, len(frags))
	for id := range frags {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]FragmentUpdate, 0, len(ids))
	for _, id := range ids {
		f := frags[id]
		out = append(out, FragmentUpdate{
			DiscoveryID: f.DiscoveryID, Progress: f.Progress.Raw(), Fidelity: f.Fidelity.Raw(),
		})
	}
	return out
}
