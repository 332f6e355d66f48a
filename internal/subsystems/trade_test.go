package subsystems

import (
	"testing"

	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
	"github.com/talgya/shadow-scale/internal/worldconfig"
)

func tradeFixture() (*simstate.World, *simstate.TradeLink) {
	w := simstate.New()
	fromID := w.SpawnTile(&simstate.Tile{X: 0, Y: 0, Mass: fixedpoint.FromInt(2)})
	toID := w.SpawnTile(&simstate.Tile{X: 1, Y: 0, Mass: fixedpoint.FromInt(1)})
	linkID := w.IDs.Next()
	w.LogisticsLinks.Set(linkID, &simstate.LogisticsLink{
		From: fromID, To: toID,
		Capacity:    fixedpoint.One,
		CurrentFlow: fixedpoint.FromFloat32(0.1),
	})
	trade := &simstate.TradeLink{
		FromFaction: 1, ToFaction: 2,
		Openness: fixedpoint.FromFloat32(0.8),
		PendingFragments: []simstate.Fragment{
			{DiscoveryID: "alloys", Progress: fixedpoint.FromFloat32(0.5), Fidelity: fixedpoint.FromFloat32(0.8)},
		},
	}
	w.TradeLinks.Set(linkID, trade)
	return w, trade
}

func TestDiffusionCreditsReceivingFaction(t *testing.T) {
	w, trade := tradeFixture()
	progress := simstate.NewDiscoveryProgressLedger()
	telemetry := simstate.NewTradeTelemetry()
	pipeline := worldconfig.DefaultTurnPipelineConfig()
	sink := &Sink{}

	TradeKnowledgeDiffusion(w, progress, telemetry, &pipeline, 1, sink)

	if progress.Progress[2]["alloys"].IsZero() {
		t.Fatal("receiving faction should gain discovery progress")
	}
	if trade.LastDiffusedDiscovery != "alloys" {
		t.Fatalf("last diffused = %q", trade.LastDiffusedDiscovery)
	}
	if len(trade.PendingFragments) != 0 {
		t.Fatal("diffused fragment must leave the pending queue")
	}
	if trade.LeakTimer == 0 {
		t.Fatal("leak timer must reset after diffusion")
	}
	diffusions := 0
	for _, ev := range sink.Events {
		if ev.Kind == EventDiffusion {
			diffusions++
		}
	}
	if diffusions != 1 {
		t.Fatalf("expected one diffusion event, got %d", diffusions)
	}
}

func TestIdleLinkDoesNotLeak(t *testing.T) {
	w, trade := tradeFixture()
	for _, id := range w.LogisticsLinks.SortedIDs() {
		w.LogisticsLinks.MustGet(id).CurrentFlow = fixedpoint.Zero
	}
	progress := simstate.NewDiscoveryProgressLedger()
	pipeline := worldconfig.DefaultTurnPipelineConfig()

	TradeKnowledgeDiffusion(w, progress, simstate.NewTradeTelemetry(), &pipeline, 1, &Sink{})

	if len(trade.PendingFragments) != 1 {
		t.Fatal("an idle link must not diffuse knowledge")
	}
	if len(progress.Progress) != 0 {
		t.Fatal("no progress expected without flow")
	}
}

func TestOpennessDecaysEachTick(t *testing.T) {
	w, trade := tradeFixture()
	pipeline := worldconfig.DefaultTurnPipelineConfig()
	pipeline.TradeOpennessDecay = 0.1
	before := trade.Openness

	TradeKnowledgeDiffusion(w, simstate.NewDiscoveryProgressLedger(), simstate.NewTradeTelemetry(), &pipeline, 1, &Sink{})

	want := before.Sub(fixedpoint.FromFloat32(0.1))
	if !trade.Openness.Eq(want) {
		t.Fatalf("openness = %d, want %d", trade.Openness.Raw(), want.Raw())
	}
}

func TestGiniGauge(t *testing.T) {
	if !gini(nil).IsZero() {
		t.Fatal("empty population has zero Gini")
	}
	if !gini([]int64{5, 5, 5, 5}).IsZero() {
		t.Fatal("equal sizes have zero Gini")
	}
	unequal := gini([]int64{0, 0, 0, 100})
	if !unequal.Gt(fixedpoint.FromFloat32(0.7)) {
		t.Fatalf("concentrated wealth should score high, got %d", unequal.Raw())
	}
	if unequal.Gt(fixedpoint.One) {
		t.Fatal("Gini must stay within [0,1]")
	}
}
