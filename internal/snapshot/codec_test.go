package snapshot

import (
	"reflect"
	"testing"
)

func sampleSnapshot(tick uint64) *WorldSnapshot {
	gen := uint32(1)
	return &WorldSnapshot{
		Tick: tick,
		Overlays: map[string]RasterSample{
			"logistics": {Width: 2, Height: 2, Samples: []int64{0, 90_000, 0, 0}},
			"sentiment": {Width: 2, Height: 2, Samples: []int64{10, 20, 30, 40}},
		},
		TerrainOverlay: TerrainOverlay{Width: 2, Height: 2, Samples: []TerrainSample{
			{TerrainID: 7, TagMask: 0x11}, {TerrainID: 1, TagMask: 0x1}, {TerrainID: 7, TagMask: 0}, {TerrainID: 23, TagMask: 0x80},
		}},
		Tiles: []TileUpdate{
			{ID: 1, X: 0, Y: 0, Element: 0, Mass: 2_000_000, Temperature: 500_000, Terrain: 7, Tags: 0x11},
			{ID: 2, X: 1, Y: 0, Element: 1, Mass: 1_000_000, Temperature: 480_000, Terrain: 1, Tags: 0x1},
		},
		LogisticsLinks: []LogisticsLinkUpdate{{ID: 5, From: 1, To: 2, Capacity: 500_000, Flow: 90_000}},
		Influencers: []InfluencerUpdate{{
			ID: 9, Name: "voice-of-the-shelf", Scope: 1, GenerationScope: &gen,
			AudienceGenerations: []uint32{1, 2}, Domains: 0x5,
			SentimentWeight: 100_000, Notoriety: 250_000, Coherence: 900_000,
			Status: 1, TicksInStatus: 4,
		}},
		Corruption: []CorruptionEntryUpdate{{Subsystem: 2, Intensity: 2_500_000, ExposureTimer: 12}},
		Populations: []PopulationUpdate{{
			ID: 3, HomeTile: 1, Size: 120, Morale: 700_000, GenerationID: 1, FactionID: 2,
			Fragments: []FragmentUpdate{{DiscoveryID: "alloys", Progress: 400_000, Fidelity: 900_000}},
			Migration: &MigrationUpdate{DestinationFaction: 3, ETA: 2,
				CarriedFragments: []FragmentUpdate{{DiscoveryID: "alloys", Progress: 400_000, Fidelity: 900_000}}},
		}},
		TradeLinks: []TradeLinkUpdate{{
			ID: 5, FromFaction: 1, ToFaction: 2, Throughput: 300_000, Tariff: 50_000,
			Openness: 800_000, Decay: 10_000, LeakTimer: 3, LastDiffusedDiscovery: "alloys",
			PendingFragments: []FragmentUpdate{{DiscoveryID: "ceramics", Progress: 100_000, Fidelity: 600_000}},
		}},
		PowerNodes: []PowerNodeUpdate{{
			ID: 1, NodeID: 1, BaseGeneration: 1_000_000, BaseDemand: 800_000,
			LiveGeneration: 950_000, LiveDemand: 800_000, Efficiency: 950_000,
			StorageLevel: 120_000, StorageCapacity: 2_000_000, Stability: 1_000_000,
		}},
		PowerMetrics: PowerMetricsUpdate{IncidentCount: 1},
		Generations:  []uint32{1, 2},
		Factions:     []uint32{1, 2, 3},
		CultureLayers: []CultureLayerUpdate{{
			ID: 11, OwnerID: 1, ParentID: 10, Scope: 2,
			Divergence: 150_000, SoftThreshold: 300_000, HardThreshold: 900_000,
			TicksAboveSoft: 0, TicksAboveHard: 0, Version: 2,
		}},
		Tensions: []TensionUpdate{{LayerID: 11, Kind: 0, Magnitude: 320_000}},
		DiscoveryProgress: []DiscoveryProgressEntry{
			{Faction: 2, DiscoveryID: "alloys", Progress: 350_000},
		},
		KnowledgeEntries: []KnowledgeEntryUpdate{{
			OwnerFaction: 1, DiscoveryID: "alloys", Tier: 2, ProgressPercent: 65_000_000,
			BaseHalfLife: 40, TimeToCascade: 12, SecurityPosture: 200_000, Flags: 0,
			Countermeasures: []CountermeasureUpdate{{Kind: "CounterIntelSweep", Potency: 300_000, RemainingTicks: 5}},
			Infiltrations:   []InfiltrationUpdate{{AgentHandle: "a-1", Suspicion: 150_000, Fidelity: 700_000, Cells: 2}},
			ModifierDeltas:  []int32{-2, 5},
		}},
		EspionageAgents: []EspionageAgentUpdate{
			{Handle: "a-1", Template: "stealth", Faction: 1, Status: 1, MissionID: "m-1"},
		},
		EspionageMissions: []QueuedMissionUpdate{{
			MissionID: "m-1", Template: "probe", Owner: 2, TargetOwner: 1,
			DiscoveryID: "alloys", AgentHandle: "a-1", TargetTier: 2,
			ScheduledTick: tick, TicksRemaining: 3, Started: true,
		}},
		EspionageBudgets: []EspionageBudgetUpdate{{Faction: 1, Budget: 5_000_000, Policy: 2}},
		ActiveCrises: []ActiveCrisisUpdate{{
			ID: 1, Archetype: "blight", Intensity: 400_000,
			Hotspots: []HotspotUpdate{{X: 1, Y: 1, Radius: 2_500_000}}, SpawnedTick: 2,
		}},
		NextCrisisID: 2,
		GreatDiscoveries: []GreatDiscoveryUpdate{{
			ID: "grand-unification", ObservationThreshold: 900_000, WeightedProgress: 350_000,
			Requirements: []RequirementUpdate{
				{DiscoveryID: "alloys", Weight: 1_000_000, MinimumProgress: 500_000},
				{DiscoveryID: "ceramics", Weight: 2_000_000},
			},
		}},
		SentimentAxes: [4]int64{100_000, 0, -200_000, 0},
		ClockLabel:    "Spring Day 1, 0:05 Year 1",
	}
}

func TestSnapshotBinaryRoundTrip(t *testing.T) {
	want := sampleSnapshot(5)
	payload := EncodeSnapshot(want)
	got, err := DecodeSnapshot(payload)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot round trip mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestSnapshotFlatRoundTrip(t *testing.T) {
	want := sampleSnapshot(5)
	payload, err := EncodeSnapshotFlat(want)
	if err != nil {
		t.Fatalf("EncodeSnapshotFlat: %v", err)
	}
	got, _, err := DecodeFlat(payload)
	if err != nil {
		t.Fatalf("DecodeFlat: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("flat round trip mismatch")
	}
}

func TestDeltaRoundTripAndApply(t *testing.T) {
	prev := sampleSnapshot(5)
	next := sampleSnapshot(6)
	next.Tiles[0].Temperature = 510_000
	next.Influencers = nil
	next.Populations[0].Size = 121
	next.CultureLayers[0].Version = 3
	next.CultureLayers[0].Divergence = 180_000
	next.Tensions = nil
	next.SentimentAxes[1] = 50_000
	next.Overlays["logistics"] = RasterSample{Width: 2, Height: 2, Samples: []int64{0, 91_000, 0, 0}}

	d := Diff(prev, next)
	if len(d.Tiles) != 1 || d.Tiles[0].ID != 1 {
		t.Fatalf("expected exactly tile 1 in delta, got %+v", d.Tiles)
	}
	if len(d.RemovedInfluencers) != 1 || d.RemovedInfluencers[0] != 9 {
		t.Fatalf("expected influencer 9 removed, got %v", d.RemovedInfluencers)
	}
	if _, ok := d.Overlays["sentiment"]; ok {
		t.Fatal("unchanged overlay should be elided from the delta")
	}

	payload := EncodeDelta(d)
	_, decoded, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode delta: %v", err)
	}
	if decoded == nil {
		t.Fatal("expected a delta payload")
	}

	applied := Apply(prev, decoded)
	for name, raster := range next.Overlays {
		if !reflect.DeepEqual(applied.Overlays[name], raster) {
			t.Fatalf("overlay %q not reconstructed", name)
		}
	}
	if !reflect.DeepEqual(applied.Tiles, next.Tiles) {
		t.Fatalf("tiles not reconstructed:\ngot  %+v\nwant %+v", applied.Tiles, next.Tiles)
	}
	if !reflect.DeepEqual(applied.Influencers, next.Influencers) {
		t.Fatalf("influencers not reconstructed")
	}
	if !reflect.DeepEqual(applied.Populations, next.Populations) {
		t.Fatalf("populations not reconstructed")
	}
	if !reflect.DeepEqual(applied.CultureLayers, next.CultureLayers) {
		t.Fatalf("culture layers not reconstructed")
	}
	if !reflect.DeepEqual(applied.Tensions, next.Tensions) {
		t.Fatalf("tensions not reconstructed: got %+v want %+v", applied.Tensions, next.Tensions)
	}
	if applied.SentimentAxes != next.SentimentAxes {
		t.Fatalf("sentiment axes not reconstructed")
	}
	if applied.Tick != next.Tick {
		t.Fatalf("tick not carried: got %d want %d", applied.Tick, next.Tick)
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	payload := EncodeSnapshot(sampleSnapshot(1))
	for _, cut := range []int{0, 1, 9, len(payload) / 2, len(payload) - 1} {
		if _, _, err := Decode(payload[:cut]); err == nil {
			t.Errorf("expected error decoding %d-byte prefix", cut)
		}
	}
}

func TestDecodeRejectsUnknownDiscriminant(t *testing.T) {
	if _, _, err := Decode([]byte{0xEE, 0, 0}); err == nil {
		t.Fatal("expected discriminant error")
	}
}

func TestHistoryRingBoundsAndRollbackLookup(t *testing.T) {
	h := NewHistory(3)
	for tick := uint64(1); tick <= 5; tick++ {
		h.Push(tick, []byte{byte(tick)}, []byte{byte(tick), 0xF})
	}
	if h.Len() != 3 {
		t.Fatalf("expected ring bounded to 3, got %d", h.Len())
	}
	if _, ok := h.Get(1); ok {
		t.Fatal("tick 1 should have been evicted")
	}
	entry, ok := h.Get(4)
	if !ok || entry.Binary[0] != 4 {
		t.Fatalf("expected entry for tick 4, got %+v ok=%v", entry, ok)
	}
	h.TruncateAfter(3)
	if _, ok := h.Get(4); ok {
		t.Fatal("tick 4 should have been truncated")
	}
	if _, ok := h.Get(3); !ok {
		t.Fatal("tick 3 should survive truncation")
	}
}
