package snapshot

import (
	"github.com/talgya/shadow-scale/internal/ecs"
	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
)

// ApplyToWorld deserializes a stored full snapshot back into w,
// reconstructing every entity, component, and snapshot-carried resource
// (§4.11 rollback path). The caller resets SimulationTick and telemetry
// and rebuilds derived topology afterwards.
func ApplyToWorld(w *simstate.World, s *WorldSnapshot) {
	w.Reset()

	for i := range s.Tiles {
		t := &s.Tiles[i]
		w.RestoreTile(ecs.EntityID(t.ID), &simstate.Tile{
			X:           t.X,
			Y:           t.Y,
			Element:     simstate.ElementKind(t.Element),
			Mass:        fixedpoint.FromRaw(t.Mass),
			Temperature: fixedpoint.FromRaw(t.Temperature),
			Terrain:     simstate.TerrainType(t.Terrain),
			Tags:        t.Tags,
		})
	}
	for i := range s.LogisticsLinks {
		l := &s.LogisticsLinks[i]
		w.LogisticsLinks.Set(ecs.EntityID(l.ID), &simstate.LogisticsLink{
			From:        ecs.EntityID(l.From),
			To:          ecs.EntityID(l.To),
			Capacity:    fixedpoint.FromRaw(l.Capacity),
			CurrentFlow: fixedpoint.FromRaw(l.Flow),
		})
		w.IDs.Advance(ecs.EntityID(l.ID))
	}
	for i := range s.TradeLinks {
		t := &s.TradeLinks[i]
		w.TradeLinks.Set(ecs.EntityID(t.ID), &simstate.TradeLink{
			FromFaction:           t.FromFaction,
			ToFaction:             t.ToFaction,
			Throughput:            fixedpoint.FromRaw(t.Throughput),
			Tariff:                fixedpoint.FromRaw(t.Tariff),
			Openness:              fixedpoint.FromRaw(t.Openness),
			Decay:                 fixedpoint.FromRaw(t.Decay),
			LeakTimer:             t.LeakTimer,
			LastDiffusedDiscovery: t.LastDiffusedDiscovery,
			PendingFragments:      fragmentsFromWire(t.PendingFragments),
		})
		w.IDs.Advance(ecs.EntityID(t.ID))
	}
	for i := range s.Populations {
		p := &s.Populations[i]
		cohort := &simstate.PopulationCohort{
			HomeTile:     ecs.EntityID(p.HomeTile),
			Size:         p.Size,
			Morale:       fixedpoint.FromRaw(p.Morale),
			GenerationID: p.GenerationID,
			FactionID:    p.FactionID,
		}
		if len(p.Fragments) > 0 {
			cohort.Fragments = make(map[string]simstate.Fragment, len(p.Fragments))
			for _, f := range p.Fragments {
				cohort.Fragments[f.DiscoveryID] = fragmentFromWire(f)
			}
		}
		if p.Migration != nil {
			cohort.Migration = &simstate.MigrationOrder{
				DestinationFaction: p.Migration.DestinationFaction,
				ETA:                p.Migration.ETA,
				CarriedFragments:   fragmentsFromWire(p.Migration.CarriedFragments),
			}
		}
		w.Cohorts.Set(ecs.EntityID(p.ID), cohort)
		w.IDs.Advance(ecs.EntityID(p.ID))
	}
	for i := range s.PowerNodes {
		p := &s.PowerNodes[i]
		w.PowerNodes.Set(ecs.EntityID(p.ID), &simstate.PowerNode{
			NodeID:          p.NodeID,
			BaseGeneration:  fixedpoint.FromRaw(p.BaseGeneration),
			BaseDemand:      fixedpoint.FromRaw(p.BaseDemand),
			LiveGeneration:  fixedpoint.FromRaw(p.LiveGeneration),
			LiveDemand:      fixedpoint.FromRaw(p.LiveDemand),
			Efficiency:      fixedpoint.FromRaw(p.Efficiency),
			StorageCapacity: fixedpoint.FromRaw(p.StorageCapacity),
			StorageLevel:    fixedpoint.FromRaw(p.StorageLevel),
			Stability:       fixedpoint.FromRaw(p.Stability),
			IncidentCounter: p.IncidentCounter,
		})
		w.IDs.Advance(ecs.EntityID(p.ID))
	}
	for i := range s.CultureLayers {
		c := &s.CultureLayers[i]
		layer := &simstate.CultureLayer{
			OwnerID:        ecs.EntityID(c.OwnerID),
			ParentID:       ecs.EntityID(c.ParentID),
			Scope:          simstate.CultureScope(c.Scope),
			Divergence:     fixedpoint.FromRaw(c.Divergence),
			SoftThreshold:  fixedpoint.FromRaw(c.SoftThreshold),
			HardThreshold:  fixedpoint.FromRaw(c.HardThreshold),
			TicksAboveSoft: c.TicksAboveSoft,
			TicksAboveHard: c.TicksAboveHard,
			Version:        c.Version,
		}
		for j := range layer.Axes {
			layer.Axes[j] = simstate.CultureAxisState{
				Baseline: fixedpoint.FromRaw(c.Baselines[j]),
				Modifier: fixedpoint.FromRaw(c.Modifiers[j]),
				Value:    fixedpoint.FromRaw(c.Values[j]),
			}
		}
		w.CultureLayers.Set(ecs.EntityID(c.ID), layer)
		w.IDs.Advance(ecs.EntityID(c.ID))
	}
	for i := range s.Influencers {
		u := &s.Influencers[i]
		inf := &simstate.Influencer{
			ID:              ecs.EntityID(u.ID),
			Name:            u.Name,
			Scope:           simstate.InfluencerScope(u.Scope),
			Domains:         simstate.DomainMask(u.Domains),
			SentimentWeight: fixedpoint.FromRaw(u.SentimentWeight),
			LogisticsWeight: fixedpoint.FromRaw(u.LogisticsWeight),
			MoraleWeight:    fixedpoint.FromRaw(u.MoraleWeight),
			PowerWeight:     fixedpoint.FromRaw(u.PowerWeight),
			Notoriety:       fixedpoint.FromRaw(u.Notoriety),
			Coherence:       fixedpoint.FromRaw(u.Coherence),
			Status:          simstate.InfluencerStatus(u.Status),
			TicksInStatus:   u.TicksInStatus,
		}
		if u.GenerationScope != nil {
			gen := *u.GenerationScope
			inf.GenerationScope = &gen
		}
		inf.AudienceGenerations = append(inf.AudienceGenerations, u.AudienceGenerations...)
		for j := range inf.ChannelWeights {
			inf.ChannelWeights[j] = fixedpoint.FromRaw(u.ChannelWeights[j])
			inf.ChannelValues[j] = fixedpoint.FromRaw(u.ChannelValues[j])
			inf.ChannelBoosts[j] = fixedpoint.FromRaw(u.ChannelBoosts[j])
		}
		for j := range inf.CultureResonance {
			inf.CultureResonance[j] = fixedpoint.FromRaw(u.CultureResonance[j])
		}
		w.Influencers.Set(ecs.EntityID(u.ID), inf)
		w.IDs.Advance(ecs.EntityID(u.ID))
	}

	applyResources(w, s)
}

func applyResources(w *simstate.World, s *WorldSnapshot) {
	factions := ecs.MustGet[*simstate.FactionRegistry](w.Resources)
	factions.IDs = append(factions.IDs[:0], s.Factions...)
	generations := ecs.MustGet[*simstate.GenerationRegistry](w.Resources)
	generations.IDs = append(generations.IDs[:0], s.Generations...)
	tiles := ecs.MustGet[*simstate.TileRegistry](w.Resources)
	tiles.IDs = w.Tiles.SortedIDs()

	corruption := simstate.NewCorruptionLedger()
	for _, c := range s.Corruption {
		corruption.BySubsystem[simstate.CorruptionSubsystem(c.Subsystem)] = append(
			corruption.BySubsystem[simstate.CorruptionSubsystem(c.Subsystem)],
			&simstate.CorruptionIncident{
				Intensity:     fixedpoint.FromRaw(c.Intensity),
				ExposureTimer: c.ExposureTimer,
			})
	}
	ecs.Put(w.Resources, corruption)

	progress := simstate.NewDiscoveryProgressLedger()
	for _, e := range s.DiscoveryProgress {
		byDiscovery, ok := progress.Progress[e.Faction]
		if !ok {
			byDiscovery = make(map[string]fixedpoint.Scalar)
			progress.Progress[e.Faction] = byDiscovery
		}
		byDiscovery[e.DiscoveryID] = fixedpoint.FromRaw(e.Progress)
	}
	ecs.Put(w.Resources, progress)

	ledger := ecs.MustGet[*simstate.KnowledgeLedger](w.Resources)
	ledger.Entries = make(map[simstate.KnowledgeOwnerDiscovery]*simstate.KnowledgeEntry, len(s.KnowledgeEntries))
	ledger.Timeline = nil
	for _, k := range s.KnowledgeEntries {
		entry := &simstate.KnowledgeEntry{
			Tier:            k.Tier,
			ProgressPercent: fixedpoint.FromRaw(k.ProgressPercent),
			BaseHalfLife:    k.BaseHalfLife,
			TimeToCascade:   k.TimeToCascade,
			SecurityPosture: fixedpoint.FromRaw(k.SecurityPosture),
			Flags:           simstate.KnowledgeEntryFlag(k.Flags),
		}
		for _, cm := range k.Countermeasures {
			entry.Countermeasures = append(entry.Countermeasures, simstate.Countermeasure{
				Kind: cm.Kind, Potency: fixedpoint.FromRaw(cm.Potency), RemainingTicks: cm.RemainingTicks,
			})
		}
		for _, inf := range k.Infiltrations {
			entry.Infiltrations = append(entry.Infiltrations, simstate.Infiltration{
				AgentHandle: inf.AgentHandle,
				Suspicion:   fixedpoint.FromRaw(inf.Suspicion),
				Fidelity:    fixedpoint.FromRaw(inf.Fidelity),
				Cells:       inf.Cells,
			})
		}
		entry.ModifierDeltas = append(entry.ModifierDeltas, k.ModifierDeltas...)
		ledger.Entries[simstate.KnowledgeOwnerDiscovery{OwnerFaction: k.OwnerFaction, DiscoveryID: k.DiscoveryID}] = entry
	}

	roster := ecs.MustGet[*simstate.EspionageRoster](w.Resources)
	roster.Agents = make(map[string]*simstate.AgentInstance, len(s.EspionageAgents))
	for _, a := range s.EspionageAgents {
		roster.Agents[a.Handle] = &simstate.AgentInstance{
			Handle:    a.Handle,
			Template:  a.Template,
			Faction:   a.Faction,
			Status:    simstate.AgentStatus(a.Status),
			MissionID: a.MissionID,
		}
	}
	missions := ecs.MustGet[*simstate.EspionageMissionState](w.Resources)
	missions.Queue = make(map[string]*simstate.QueuedMission, len(s.EspionageMissions))
	for _, m := range s.EspionageMissions {
		missions.Queue[m.MissionID] = &simstate.QueuedMission{
			MissionID:      m.MissionID,
			Template:       m.Template,
			Owner:          m.Owner,
			TargetOwner:    m.TargetOwner,
			DiscoveryID:    m.DiscoveryID,
			AgentHandle:    m.AgentHandle,
			TargetTier:     m.TargetTier,
			ScheduledTick:  m.ScheduledTick,
			TicksRemaining: m.TicksRemaining,
			Started:        m.Started,
		}
	}
	budgets := ecs.MustGet[*simstate.EspionageBudgets](w.Resources)
	budgets.CounterIntelBudget = make(map[uint32]fixedpoint.Scalar, len(s.EspionageBudgets))
	budgets.Policy = make(map[uint32]simstate.SecurityPolicy, len(s.EspionageBudgets))
	for _, b := range s.EspionageBudgets {
		budgets.CounterIntelBudget[b.Faction] = fixedpoint.FromRaw(b.Budget)
		budgets.Policy[b.Faction] = simstate.SecurityPolicy(b.Policy)
	}

	crises := ecs.MustGet[*simstate.CrisisState](w.Resources)
	crises.Active = nil
	crises.Pending = nil
	crises.Overlay = nil
	crises.NextID = s.NextCrisisID
	if crises.NextID == 0 {
		crises.NextID = 1
	}
	for _, c := range s.ActiveCrises {
		crisis := &simstate.ActiveCrisis{
			ID:          c.ID,
			Archetype:   c.Archetype,
			Intensity:   fixedpoint.FromRaw(c.Intensity),
			SpawnedTick: c.SpawnedTick,
		}
		for _, h := range c.Hotspots {
			crisis.Hotspots = append(crisis.Hotspots, simstate.Hotspot{
				X: h.X, Y: h.Y, Radius: fixedpoint.FromRaw(h.Radius),
			})
		}
		crises.Active = append(crises.Active, crisis)
	}

	great := ecs.MustGet[*simstate.GreatDiscoveryState](w.Resources)
	great.Discoveries = make(map[string]*simstate.GreatDiscovery, len(s.GreatDiscoveries))
	for _, g := range s.GreatDiscoveries {
		gd := &simstate.GreatDiscovery{
			ID:                   g.ID,
			ObservationThreshold: fixedpoint.FromRaw(g.ObservationThreshold),
			WeightedProgress:     fixedpoint.FromRaw(g.WeightedProgress),
			Published:            g.Published,
			PublishedTick:        g.PublishedTick,
		}
		for _, req := range g.Requirements {
			gd.Requirements = append(gd.Requirements, simstate.DiscoveryRequirement{
				DiscoveryID:     req.DiscoveryID,
				Weight:          fixedpoint.FromRaw(req.Weight),
				MinimumProgress: fixedpoint.FromRaw(req.MinimumProgress),
			})
		}
		great.Discoveries[g.ID] = gd
	}

	bias := ecs.MustGet[*simstate.SentimentBias](w.Resources)
	for i := range bias.Axes {
		bias.Axes[i] = fixedpoint.FromRaw(s.SentimentAxes[i])
	}
}

func fragmentsFromWire(frags []FragmentUpdate) []simstate.Fragment {
	if len(frags) == 0 {
		return nil
	}
	out := make([]simstate.Fragment, 0, len(frags))
	for _, f := range frags {
		out = append(out, fragmentFromWire(f))
	}
	return out
}

func fragmentFromWire(f FragmentUpdate) simstate.Fragment {
	return simstate.Fragment{
		DiscoveryID: f.DiscoveryID,
		Progress:    fixedpoint.FromRaw(f.Progress),
		Fidelity:    fixedpoint.FromRaw(f.Fidelity),
	}
}
