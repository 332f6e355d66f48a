package engine

import (
	"bytes"
	"testing"

	"github.com/talgya/shadow-scale/internal/command"
	"github.com/talgya/shadow-scale/internal/ecs"
	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
	"github.com/talgya/shadow-scale/internal/snapshot"
	"github.com/talgya/shadow-scale/internal/worldconfig"
)

type capturedFrame struct {
	binary, flat []byte
}

func newTestSim(t *testing.T) (*Simulation, *[]capturedFrame) {
	t.Helper()
	configs := worldconfig.NewRegistry()
	configs.SetSimulation(simstate.SmallTestConfig())
	sim := New(configs, command.NewQueue())
	frames := &[]capturedFrame{}
	sim.Broadcast = func(binary, flat []byte) {
		*frames = append(*frames, capturedFrame{
			binary: append([]byte(nil), binary...),
			flat:   append([]byte(nil), flat...),
		})
	}
	return sim, frames
}

// a single forced turn on a 4x4 seed-1 grid produces tick 1 and one
// full snapshot per port, decoding with the configured grid size and zero
// influencers.
func TestEmptyTurn(t *testing.T) {
	sim, frames := newTestSim(t)

	sim.Apply(command.Turn{Steps: 1})

	if got := sim.Tick(); got != 1 {
		t.Fatalf("tick = %d, want 1", got)
	}
	if len(*frames) != 1 {
		t.Fatalf("expected 1 broadcast frame pair, got %d", len(*frames))
	}
	snap, err := snapshot.DecodeSnapshot((*frames)[0].binary)
	if err != nil {
		t.Fatalf("decode binary snapshot: %v", err)
	}
	if snap.TerrainOverlay.Width != 4 || snap.TerrainOverlay.Height != 4 {
		t.Errorf("terrain overlay %dx%d, want 4x4", snap.TerrainOverlay.Width, snap.TerrainOverlay.Height)
	}
	if len(snap.Influencers) != 0 {
		t.Errorf("expected zero influencers, got %d", len(snap.Influencers))
	}
	flatSnap, _, err := snapshot.DecodeFlat((*frames)[0].flat)
	if err != nil {
		t.Fatalf("decode flat snapshot: %v", err)
	}
	if flatSnap == nil || flatSnap.Tick != 1 {
		t.Fatalf("flat snapshot tick mismatch: %+v", flatSnap)
	}
}

// Heat raises a tile's temperature; the next materials step relaxes
// it partway back toward ambient at rate lerp*conductivity.
func TestHeatPropagation(t *testing.T) {
	sim, _ := newTestSim(t)
	cfg := sim.Configs.Simulation()

	tileID := sim.World.TileAt(1, 1)
	if tileID == 0 {
		t.Fatal("tile (1,1) missing")
	}
	before := sim.World.Tiles.MustGet(tileID).Temperature

	delta := int64(500_000)
	sim.Apply(command.Heat{Entity: uint64(tileID), DeltaRaw: delta})

	heated := sim.World.Tiles.MustGet(tileID).Temperature
	if !heated.Eq(before.Add(fixedpoint.FromRaw(delta))) {
		t.Fatalf("heat not applied: before %d after %d", before.Raw(), heated.Raw())
	}

	sim.Apply(command.Turn{Steps: 1})

	rate := cfg.TemperatureLerp.Mul(cfg.Conductivity)
	want := heated.Add(cfg.AmbientTemperature.Sub(heated).Mul(rate))
	got := sim.World.Tiles.MustGet(tileID).Temperature
	if !got.Eq(want) {
		t.Fatalf("relaxed temperature = %d, want %d", got.Raw(), want.Raw())
	}
	if got.Gte(heated) {
		t.Fatal("temperature should relax back toward ambient")
	}
}

// rollback to a stored tick re-broadcasts the stored frame verbatim
// and resets the tick.
func TestRollback(t *testing.T) {
	sim, frames := newTestSim(t)

	sim.Apply(command.Turn{Steps: 3})
	entry, ok := sim.History.Get(3)
	if !ok {
		t.Fatal("tick 3 missing from history")
	}
	s3 := append([]byte(nil), entry.Binary...)

	sim.Apply(command.Turn{Steps: 2})
	if got := sim.Tick(); got != 5 {
		t.Fatalf("tick = %d, want 5", got)
	}

	*frames = nil
	sim.Apply(command.Rollback{Tick: 3})

	if got := sim.Tick(); got != 3 {
		t.Fatalf("tick after rollback = %d, want 3", got)
	}
	if len(*frames) != 1 {
		t.Fatalf("expected re-broadcast of one frame, got %d", len(*frames))
	}
	if !bytes.Equal((*frames)[0].binary, s3) {
		t.Fatal("re-broadcast frame differs from stored S3")
	}
	if _, ok := sim.History.Get(5); ok {
		t.Fatal("history should be truncated past the rollback tick")
	}
}

// Rollback fidelity: replaying the ticks after a rollback
// reproduces the same snapshot bytes the original run produced.
func TestRollbackReplayFidelity(t *testing.T) {
	sim, _ := newTestSim(t)

	sim.Apply(command.Turn{Steps: 5})
	original, ok := sim.History.Get(5)
	if !ok {
		t.Fatal("tick 5 missing from history")
	}
	originalBytes := append([]byte(nil), original.Binary...)

	sim.Apply(command.Rollback{Tick: 3})
	sim.Apply(command.Turn{Steps: 2})

	replayed, ok := sim.History.Get(5)
	if !ok {
		t.Fatal("tick 5 missing after replay")
	}
	if !bytes.Equal(replayed.Binary, originalBytes) {
		t.Fatal("replayed snapshot bytes differ from original run")
	}
}

// Determinism: two independent runs over the same seed
// and command sequence produce byte-identical snapshots at every tick.
func TestDeterminismAcrossRuns(t *testing.T) {
	run := func() [][]byte {
		configs := worldconfig.NewRegistry()
		configs.SetSimulation(simstate.SmallTestConfig())
		sim := New(configs, command.NewQueue())
		sim.Apply(command.InjectCorruption{Subsystem: simstate.CorruptionMilitary, Intensity: 2, ExposureTimer: 4})
		sim.Apply(command.Turn{Steps: 4})
		var out [][]byte
		for tick := uint64(1); tick <= 4; tick++ {
			entry, ok := sim.History.Get(tick)
			if !ok {
				t.Fatalf("tick %d missing", tick)
			}
			out = append(out, entry.Binary)
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			t.Fatalf("snapshots diverge at tick %d", i+1)
		}
	}
}

// Monotonic tick across ordinary turns and map resets.
func TestTickMonotonicAndResetMap(t *testing.T) {
	sim, _ := newTestSim(t)
	var last uint64
	for i := 0; i < 3; i++ {
		sim.Apply(command.Turn{Steps: 1})
		if got := sim.Tick(); got != last+1 {
			t.Fatalf("tick jumped from %d to %d", last, got)
		}
		last = sim.Tick()
	}

	sim.Apply(command.ResetMap{Width: 0, Height: 4})
	if sim.Tick() != last {
		t.Fatal("zero-dim reset must be rejected")
	}
	sim.Apply(command.ResetMap{Width: 4, Height: 4})
	if sim.Tick() != last {
		t.Fatal("unchanged-dim reset must be rejected")
	}

	sim.Apply(command.ResetMap{Width: 6, Height: 6})
	if sim.Tick() != 0 {
		t.Fatalf("tick after reset = %d, want 0", sim.Tick())
	}
	cfg := sim.Configs.Simulation()
	if cfg.GridWidth != 6 || cfg.GridHeight != 6 {
		t.Fatalf("config grid = %dx%d, want 6x6", cfg.GridWidth, cfg.GridHeight)
	}
	if sim.History.Len() != 0 {
		t.Fatal("history should be cleared by map reset")
	}
}

// Orders submissions cascade into a resolved turn once every faction is
// ready, and duplicates within the same tick are rejected (§4.3).
func TestOrdersReadyCascade(t *testing.T) {
	sim, _ := newTestSim(t)
	factions := ecs.MustGet[*simstate.FactionRegistry](sim.World.Resources)
	if len(factions.IDs) == 0 {
		t.Fatal("expected seeded factions")
	}

	for _, f := range factions.IDs[:len(factions.IDs)-1] {
		sim.Apply(command.Orders{FactionID: f, Directive: command.DirectiveReady})
		if sim.Tick() != 0 {
			t.Fatalf("turn resolved before all factions ready (faction %d)", f)
		}
	}
	// Duplicate from the first faction is rejected without resolving.
	sim.Apply(command.Orders{FactionID: factions.IDs[0], Directive: command.DirectiveReady})
	if sim.Tick() != 0 {
		t.Fatal("duplicate submission must not resolve the turn")
	}
	sim.Apply(command.Orders{FactionID: factions.IDs[len(factions.IDs)-1], Directive: command.DirectiveReady})
	if sim.Tick() != 1 {
		t.Fatalf("tick = %d, want 1 after all factions ready", sim.Tick())
	}
}

// Clamp ranges and power-balance bounds hold
// after a burst of ticks.
func TestInvariantBoundsAfterTicks(t *testing.T) {
	sim, _ := newTestSim(t)
	sim.Apply(command.Turn{Steps: 10})

	for _, id := range sim.World.Cohorts.SortedIDs() {
		c := sim.World.Cohorts.MustGet(id)
		if c.Morale.Lt(fixedpoint.Zero) || c.Morale.Gt(fixedpoint.One) {
			t.Fatalf("cohort %d morale out of range: %d", id, c.Morale.Raw())
		}
	}
	for _, id := range sim.World.PowerNodes.SortedIDs() {
		n := sim.World.PowerNodes.MustGet(id)
		if n.LiveGeneration.Lt(fixedpoint.Zero) || n.LiveDemand.Lt(fixedpoint.Zero) {
			t.Fatalf("node %d negative generation/demand", id)
		}
		if n.StorageLevel.Lt(fixedpoint.Zero) || n.StorageLevel.Gt(n.StorageCapacity) {
			t.Fatalf("node %d storage out of bounds", id)
		}
		if n.Stability.Lt(fixedpoint.Zero) || n.Stability.Gt(fixedpoint.One) {
			t.Fatalf("node %d stability out of range", id)
		}
		if n.LastSurplus.Gt(fixedpoint.Zero) && n.LastDeficit.Gt(fixedpoint.Zero) {
			t.Fatalf("node %d has both surplus and deficit", id)
		}
	}
	for _, id := range sim.World.TradeLinks.SortedIDs() {
		l := sim.World.TradeLinks.MustGet(id)
		if l.Openness.Lt(fixedpoint.Zero) || l.Openness.Gt(fixedpoint.One) {
			t.Fatalf("trade link %d openness out of range", id)
		}
	}
}

func TestAxisBiasBroadcastsMinimalDelta(t *testing.T) {
	sim, frames := newTestSim(t)

	sim.Apply(command.AxisBias{Axis: 2, Value: -0.5})

	bias := ecs.MustGet[*simstate.SentimentBias](sim.World.Resources)
	if !bias.Axes[2].Eq(fixedpoint.FromFloat32(-0.5)) {
		t.Fatalf("axis 2 = %d, want -500000", bias.Axes[2].Raw())
	}
	if len(*frames) != 1 {
		t.Fatalf("expected 1 delta frame, got %d", len(*frames))
	}
	_, delta, err := snapshot.Decode((*frames)[0].binary)
	if err != nil || delta == nil {
		t.Fatalf("expected a delta frame: %v", err)
	}
	if delta.SentimentAxes == nil || delta.SentimentAxes[2] != -500_000 {
		t.Fatalf("delta axes = %+v", delta.SentimentAxes)
	}
	if len(delta.Tiles) != 0 || len(delta.Influencers) != 0 {
		t.Fatal("axis-bias delta should carry nothing but the axes")
	}
}

func TestSpawnAndSupportInfluencer(t *testing.T) {
	sim, frames := newTestSim(t)

	scope := simstate.ScopeGlobal
	sim.Apply(command.SpawnInfluencer{Scope: &scope})
	if sim.World.Influencers.Len() != 1 {
		t.Fatalf("expected 1 influencer, got %d", sim.World.Influencers.Len())
	}
	id := sim.World.Influencers.SortedIDs()[0]
	before := sim.World.Influencers.MustGet(id).Notoriety

	sim.Apply(command.SupportInfluencer{ID: uint32(id), Magnitude: 0.3})
	after := sim.World.Influencers.MustGet(id).Notoriety
	if !after.Gt(before) {
		t.Fatal("support should raise notoriety")
	}
	if len(*frames) != 2 {
		t.Fatalf("expected 2 influencer delta frames, got %d", len(*frames))
	}
	_, delta, err := snapshot.Decode((*frames)[1].binary)
	if err != nil || delta == nil || len(delta.Influencers) != 1 {
		t.Fatalf("expected single-influencer delta, err=%v", err)
	}

	sim.Apply(command.SuppressInfluencer{ID: 9999, Magnitude: 0.3})
	if len(*frames) != 2 {
		t.Fatal("unknown influencer id must not broadcast")
	}
}
