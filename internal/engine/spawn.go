// Package engine drives the deterministic simulation: world spawn, the
// turn pipeline scheduler, the command loop, and rollback (§4.1-§4.3,
// §4.11, §5).
package engine

import (
	"log/slog"
	"sort"

	"github.com/talgya/shadow-scale/internal/ecs"
	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/hashutil"
	"github.com/talgya/shadow-scale/internal/simstate"
	"github.com/talgya/shadow-scale/internal/subsystems"
	"github.com/talgya/shadow-scale/internal/worldgen"
)

const (
	spawnFactionCount    = 4
	spawnGenerationCount = 3

	cultureSoftThreshold = 0.3
	cultureHardThreshold = 0.9
)

// SpawnWorld builds the entire initial world from the config's seed and
// grid size: terrain via the generation pipeline, then logistics links,
// power nodes and topology, culture layers, population cohorts, and the
// espionage roster. Everything downstream of the seed is deterministic
// (§4.8).
func SpawnWorld(w *simstate.World, cfg simstate.Config) {
	params := worldgen.DefaultParams(cfg.Seed)
	params.Width, params.Height = cfg.GridWidth, cfg.GridHeight
	tiles := worldgen.Generate(params)

	for _, t := range tiles {
		w.SpawnTile(t)
	}

	registry := ecs.MustGet[*simstate.TileRegistry](w.Resources)
	registry.IDs = w.Tiles.SortedIDs()

	factions := ecs.MustGet[*simstate.FactionRegistry](w.Resources)
	factions.IDs = factions.IDs[:0]
	for f := uint32(1); f <= spawnFactionCount; f++ {
		factions.IDs = append(factions.IDs, f)
	}
	generations := ecs.MustGet[*simstate.GenerationRegistry](w.Resources)
	generations.IDs = generations.IDs[:0]
	for g := uint32(1); g <= spawnGenerationCount; g++ {
		generations.IDs = append(generations.IDs, g)
	}

	spawnLinks(w, cfg)
	spawnPowerNodes(w, cfg)
	BuildPowerTopology(w, cfg)
	spawnCulture(w, cfg)
	spawnCohorts(w, cfg)
	seedEspionage(w)
	seedCrisisCatalog(w)

	slog.Info("world spawned",
		"grid", cfg.GridWidth*cfg.GridHeight,
		"seed", cfg.Seed,
		"links", w.LogisticsLinks.Len(),
		"cohorts", w.Cohorts.Len(),
		"power_nodes", w.PowerNodes.Len(),
	)
}

// factionFor assigns tiles to factions by grid quadrant, the simplest
// deterministic partition that still produces cross-faction borders for
// trade links to attach to.
func factionFor(x, y int32, cfg simstate.Config) uint32 {
	f := uint32(1)
	if int(x) >= cfg.GridWidth/2 {
		f++
	}
	if int(y) >= cfg.GridHeight/2 {
		f += 2
	}
	return f
}

// spawnLinks connects every pair of 4-adjacent land tiles with a
// logistics link; links crossing a faction border additionally carry a
// trade link on the same entity (§3.2).
func spawnLinks(w *simstate.World, cfg simstate.Config) {
	for _, id := range w.Tiles.SortedIDs() {
		t := w.Tiles.MustGet(id)
		if t.Tags&uint32(simstate.TagWater) != 0 {
			continue
		}
		// East and south neighbors only, so each adjacent pair links once.
		for _, d := range [2][2]int32{{1, 0}, {0, 1}} {
			nid := w.TileAt(t.X+d[0], t.Y+d[1])
			if nid == 0 {
				continue
			}
			n := w.Tiles.MustGet(nid)
			if n.Tags&uint32(simstate.TagWater) != 0 {
				continue
			}
			linkID := w.IDs.Next()
			w.LogisticsLinks.Set(linkID, &simstate.LogisticsLink{
				From:     id,
				To:       nid,
				Capacity: cfg.DefaultLinkCapacity,
			})
			fromFaction := factionFor(t.X, t.Y, cfg)
			toFaction := factionFor(n.X, n.Y, cfg)
			if fromFaction != toFaction {
				w.TradeLinks.Set(linkID, &simstate.TradeLink{
					FromFaction: fromFaction,
					ToFaction:   toFaction,
					Openness:    fixedpoint.FromFloat32(0.5),
					Decay:       fixedpoint.FromFloat32(0.002),
					LeakTimer:   4,
				})
			}
		}
	}
}

// spawnPowerNodes attaches one power node per land tile. Base generation
// and demand derive from terrain and a stable per-tile hash so layouts
// vary by seed but never by run.
func spawnPowerNodes(w *simstate.World, cfg simstate.Config) {
	for _, id := range w.Tiles.SortedIDs() {
		t := w.Tiles.MustGet(id)
		if t.Tags&uint32(simstate.TagWater) != 0 {
			continue
		}
		h := hashutil.TileSeed(cfg.Seed, t.X, t.Y)
		jitter := fixedpoint.FromRaw(int64(h%400_000) + 800_000) // 0.8..1.2

		gen := fixedpoint.One
		if t.Tags&uint32(simstate.TagVolcanic) != 0 {
			gen = fixedpoint.FromFloat32(1.6)
		} else if t.Tags&uint32(simstate.TagHighland) != 0 {
			gen = fixedpoint.FromFloat32(1.2)
		}
		demand := fixedpoint.FromFloat32(0.8)
		if t.Tags&uint32(simstate.TagFertile) != 0 {
			demand = fixedpoint.One
		}

		nodeID := w.IDs.Next()
		w.PowerNodes.Set(nodeID, &simstate.PowerNode{
			NodeID:          uint64(id),
			BaseGeneration:  gen.Mul(jitter),
			BaseDemand:      demand,
			Efficiency:      fixedpoint.FromFloat32(0.5),
			StorageCapacity: fixedpoint.FromInt(2),
		})
	}
}

// BuildPowerTopology derives the 4-neighborhood adjacency graph over the
// tile grid once at world-spawn (§4.9); node ids are the underlying tile
// entity ids.
func BuildPowerTopology(w *simstate.World, cfg simstate.Config) {
	topo := ecs.MustGet[*simstate.PowerTopology](w.Resources)
	topo.Adjacency = make(map[uint64][]uint64)
	topo.DefaultCapacity = cfg.DefaultLinkCapacity

	for _, id := range w.PowerNodes.SortedIDs() {
		node := w.PowerNodes.MustGet(id)
		tile, ok := w.Tiles.Get(ecs.EntityID(node.NodeID))
		if !ok {
			continue
		}
		var neighbors []uint64
		for _, d := range [4][2]int32{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nid := w.TileAt(tile.X+d[0], tile.Y+d[1])
			if nid == 0 {
				continue
			}
			neighbors = append(neighbors, uint64(nid))
		}
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })
		topo.Adjacency[node.NodeID] = neighbors
	}
}

// spawnCulture builds the layer tree: one global root, one regional layer
// per faction under it, and a local layer for every fertile tile under
// its faction's regional layer (§4.6, §3.5).
func spawnCulture(w *simstate.World, cfg simstate.Config) {
	soft := fixedpoint.FromFloat32(cultureSoftThreshold)
	hard := fixedpoint.FromFloat32(cultureHardThreshold)

	rootID := w.IDs.Next()
	root := &simstate.CultureLayer{
		OwnerID:       rootID,
		Scope:         simstate.CultureGlobal,
		SoftThreshold: soft,
		HardThreshold: hard,
	}
	for i := range root.Axes {
		h := hashutil.SeedFor("culture-root", uint64(i)^uint64(cfg.Seed))
		baseline := fixedpoint.FromRaw(int64(h%400_000) - 200_000) // -0.2..0.2
		root.Axes[i] = simstate.CultureAxisState{Baseline: baseline, Value: baseline}
	}
	w.CultureLayers.Set(rootID, root)

	regionalByFaction := make(map[uint32]ecs.EntityID)
	factions := ecs.MustGet[*simstate.FactionRegistry](w.Resources)
	for _, f := range factions.IDs {
		id := w.IDs.Next()
		layer := &simstate.CultureLayer{
			OwnerID:       id,
			ParentID:      rootID,
			Scope:         simstate.CultureRegional,
			SoftThreshold: soft,
			HardThreshold: hard,
		}
		for i := range layer.Axes {
			h := hashutil.SeedFor("culture-regional", uint64(f)<<8|uint64(i)^uint64(cfg.Seed))
			baseline := root.Axes[i].Baseline.Add(fixedpoint.FromRaw(int64(h%200_000) - 100_000))
			layer.Axes[i] = simstate.CultureAxisState{Baseline: baseline, Value: baseline.Clamp(fixedpoint.FromInt(-1), fixedpoint.One)}
		}
		w.CultureLayers.Set(id, layer)
		regionalByFaction[f] = id
	}

	for _, tileID := range w.Tiles.SortedIDs() {
		t := w.Tiles.MustGet(tileID)
		if t.Tags&uint32(simstate.TagFertile) == 0 {
			continue
		}
		parent := regionalByFaction[factionFor(t.X, t.Y, cfg)]
		parentLayer := w.CultureLayers.MustGet(parent)
		layer := &simstate.CultureLayer{
			OwnerID:       tileID,
			ParentID:      parent,
			Scope:         simstate.CultureLocal,
			SoftThreshold: soft,
			HardThreshold: hard,
		}
		for i := range layer.Axes {
			layer.Axes[i] = simstate.CultureAxisState{
				Baseline: parentLayer.Axes[i].Baseline,
				Value:    parentLayer.Axes[i].Value,
			}
		}
		w.CultureLayers.Set(w.IDs.Next(), layer)
	}
}

// spawnCohorts seeds one population cohort per fertile tile, sized by a
// stable hash and assigned to the tile's quadrant faction.
func spawnCohorts(w *simstate.World, cfg simstate.Config) {
	generations := ecs.MustGet[*simstate.GenerationRegistry](w.Resources)
	for _, tileID := range w.Tiles.SortedIDs() {
		t := w.Tiles.MustGet(tileID)
		if t.Tags&uint32(simstate.TagFertile) == 0 {
			continue
		}
		h := hashutil.TileSeed(cfg.Seed+1, t.X, t.Y)
		gen := uint32(1)
		if len(generations.IDs) > 0 {
			gen = generations.IDs[h%uint64(len(generations.IDs))]
		}
		w.Cohorts.Set(w.IDs.Next(), &simstate.PopulationCohort{
			HomeTile:     tileID,
			Size:         uint32(100 + h%300),
			Morale:       fixedpoint.FromFloat32(0.6),
			GenerationID: gen,
			FactionID:    factionFor(t.X, t.Y, cfg),
		})
	}
}

// seedEspionage installs the builtin catalog, expands enabled generators,
// and stamps every faction's roster (§4.5).
func seedEspionage(w *simstate.World) {
	catalog := ecs.MustGet[*simstate.EspionageCatalog](w.Resources)
	settings := ecs.MustGet[*simstate.EspionageGeneratorSettings](w.Resources)
	roster := ecs.MustGet[*simstate.EspionageRoster](w.Resources)
	budgets := ecs.MustGet[*simstate.EspionageBudgets](w.Resources)
	factions := ecs.MustGet[*simstate.FactionRegistry](w.Resources)

	handcrafted := []*simstate.AgentTemplate{
		{ID: "veiled-courier", Stealth: fixedpoint.FromFloat32(0.7), Recon: fixedpoint.FromFloat32(0.3)},
		{ID: "field-cartographer", Stealth: fixedpoint.FromFloat32(0.3), Recon: fixedpoint.FromFloat32(0.7)},
		{ID: "warden", CounterIntel: fixedpoint.FromFloat32(0.8)},
	}
	for _, tmpl := range handcrafted {
		catalog.AgentTemplates[tmpl.ID] = tmpl
		if _, ok := settings.ByTemplate[tmpl.ID]; !ok {
			settings.ByTemplate[tmpl.ID] = &simstate.EspionageGeneratorSetting{Enabled: true, PerFaction: 1}
		}
	}

	catalog.MissionTemplates["quiet-probe"] = &simstate.MissionTemplate{
		ID: "quiet-probe", Kind: simstate.MissionProbe, ResolutionTicks: 3,
		BaseSuccess:   fixedpoint.FromFloat32(0.2),
		WeightStealth: fixedpoint.FromFloat32(0.3), WeightRecon: fixedpoint.FromFloat32(0.3),
		FidelityGain:       fixedpoint.FromFloat32(0.4),
		SuspicionOnSuccess: fixedpoint.FromFloat32(0.15),
		SuspicionOnFailure: fixedpoint.FromFloat32(0.3),
		PartialMargin:         fixedpoint.FromFloat32(0.15),
		PartialScale:          fixedpoint.FromFloat32(0.5),
		PartialSuspicionScale: fixedpoint.FromFloat32(0.6),
	}
	catalog.MissionTemplates["deep-sounding"] = &simstate.MissionTemplate{
		ID: "deep-sounding", Kind: simstate.MissionProbe, ResolutionTicks: 6,
		BaseSuccess:   fixedpoint.FromFloat32(0.1),
		WeightStealth: fixedpoint.FromFloat32(0.5), WeightRecon: fixedpoint.FromFloat32(0.4),
		FidelityGain:       fixedpoint.FromFloat32(0.7),
		SuspicionOnSuccess: fixedpoint.FromFloat32(0.25),
		SuspicionOnFailure: fixedpoint.FromFloat32(0.45),
		TierGuard:          2,
		PartialMargin:         fixedpoint.FromFloat32(0.1),
		PartialScale:          fixedpoint.FromFloat32(0.4),
		PartialSuspicionScale: fixedpoint.FromFloat32(0.5),
	}
	catalog.MissionTemplates["counter-sweep"] = &simstate.MissionTemplate{
		ID: "counter-sweep", Kind: simstate.MissionCounterIntel, ResolutionTicks: 2,
		BaseSuccess:   fixedpoint.FromFloat32(0.35),
		WeightCounter: fixedpoint.FromFloat32(0.5),
		CountermeasureKind:    "CounterIntelSweep",
		CountermeasurePotency: fixedpoint.FromFloat32(0.3),
		CountermeasureTicks:   10,
	}

	for _, tmpl := range handcrafted {
		setting := settings.ByTemplate[tmpl.ID]
		if setting == nil || !setting.Enabled || setting.PerFaction == 0 {
			continue
		}
		subsystems.ExpandAgentGenerator(catalog, tmpl, int(setting.PerFaction))
	}

	budgets.RegenPerTick = fixedpoint.One
	budgets.MaxReserve = fixedpoint.FromInt(8)
	budgets.MinReserve = fixedpoint.One
	for _, f := range factions.IDs {
		subsystems.SeedRoster(roster, catalog, f)
		budgets.CounterIntelBudget[f] = fixedpoint.FromInt(4)
		budgets.Policy[f] = simstate.PolicyStandard
	}
}

// seedCrisisCatalog installs the builtin archetype set; archetypes are
// inert until a pending spawn references them.
func seedCrisisCatalog(w *simstate.World) {
	catalog := ecs.MustGet[*simstate.CrisisCatalog](w.Resources)
	if len(catalog.Archetypes) > 0 {
		return
	}
	catalog.Archetypes["blight"] = &simstate.CrisisArchetype{
		Kind:        "blight",
		BaseGrowth:  fixedpoint.FromFloat32(0.01),
		IncidentAccel: fixedpoint.FromFloat32(0.05),
		R0Weight:    fixedpoint.FromFloat32(0.8),
		GridStressWeight: fixedpoint.FromFloat32(0.2),
		QueuePressureWeight: fixedpoint.FromFloat32(0.1),
		SwarmWeight: fixedpoint.FromFloat32(0.6),
		PhageWeight: fixedpoint.FromFloat32(0.9),
		Incidents: []simstate.IncidentTemplate{
			{Name: "crop-failure", SeverityThreshold: fixedpoint.FromFloat32(0.3), CooldownTicks: 20},
			{Name: "famine", SeverityThreshold: fixedpoint.FromFloat32(0.7), CooldownTicks: 50},
		},
		MinHotspots: 1, MaxHotspots: 3,
		MinRadius: fixedpoint.FromFloat32(1.5), MaxRadius: fixedpoint.FromFloat32(4.5),
	}
	catalog.Archetypes["grid-failure"] = &simstate.CrisisArchetype{
		Kind:        "grid-failure",
		BaseGrowth:  fixedpoint.FromFloat32(0.02),
		IncidentAccel: fixedpoint.FromFloat32(0.08),
		R0Weight:    fixedpoint.FromFloat32(0.2),
		GridStressWeight: fixedpoint.FromFloat32(0.9),
		QueuePressureWeight: fixedpoint.FromFloat32(0.7),
		SwarmWeight: fixedpoint.FromFloat32(0.1),
		PhageWeight: fixedpoint.FromFloat32(0.1),
		Incidents: []simstate.IncidentTemplate{
			{Name: "brownout", SeverityThreshold: fixedpoint.FromFloat32(0.4), CooldownTicks: 15},
			{Name: "cascade-blackout", SeverityThreshold: fixedpoint.FromFloat32(0.8), CooldownTicks: 60},
		},
		MinHotspots: 1, MaxHotspots: 2,
		MinRadius: fixedpoint.FromFloat32(2), MaxRadius: fixedpoint.FromFloat32(4),
	}
}
