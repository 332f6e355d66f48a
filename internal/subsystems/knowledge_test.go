package subsystems

import (
	"testing"

	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
)

func ledgerWith(entry *simstate.KnowledgeEntry) (*simstate.KnowledgeLedger, simstate.KnowledgeOwnerDiscovery) {
	ledger := simstate.NewKnowledgeLedger()
	key := simstate.KnowledgeOwnerDiscovery{OwnerFaction: 1, DiscoveryID: "alloys"}
	ledger.Entries[key] = entry
	return ledger, key
}

func TestKnowledgeProgressAdvancesByHalfLife(t *testing.T) {
	ledger, key := ledgerWith(&simstate.KnowledgeEntry{BaseHalfLife: 50})
	sink := &Sink{}

	KnowledgeLedgerTick(ledger, 1, sink)

	// ceil(100/50) = 2 percent per tick.
	if got, want := ledger.Entries[key].ProgressPercent.Raw(), int64(2_000_000); got != want {
		t.Fatalf("progress = %d, want %d", got, want)
	}
}

func TestKnowledgeCascadeFlags(t *testing.T) {
	entry := &simstate.KnowledgeEntry{
		BaseHalfLife:    2,
		ProgressPercent: fixedpoint.FromInt(45),
	}
	ledger, key := ledgerWith(entry)
	sink := &Sink{}

	// 50 percent per tick: one tick to 95 sets CASCADE_PENDING, the next
	// caps at 100, flips COMMON_KNOWLEDGE, and emits the cascade.
	KnowledgeLedgerTick(ledger, 1, sink)
	if ledger.Entries[key].Flags&simstate.FlagCascadePending == 0 {
		t.Fatal("expected CASCADE_PENDING at >=90%")
	}
	KnowledgeLedgerTick(ledger, 2, sink)
	e := ledger.Entries[key]
	if e.Flags&simstate.FlagCommonKnowledge == 0 {
		t.Fatal("expected COMMON_KNOWLEDGE at 100%")
	}
	if e.Flags&simstate.FlagCascadePending != 0 {
		t.Fatal("CASCADE_PENDING must clear on cascade")
	}

	cascades := 0
	for _, ev := range sink.Events {
		if ev.Kind == EventCascade {
			cascades++
		}
	}
	if cascades != 1 {
		t.Fatalf("expected exactly one cascade event, got %d", cascades)
	}
	if len(ledger.Timeline) == 0 || ledger.Timeline[len(ledger.Timeline)-1].Kind != simstate.TimelineCascade {
		t.Fatal("expected a Cascade timeline event")
	}

	// Once common knowledge, progress stays put.
	KnowledgeLedgerTick(ledger, 3, sink)
	if !e.ProgressPercent.Eq(fixedpoint.FromInt(100)) {
		t.Fatal("progress must freeze at 100")
	}
}

func TestCountermeasureExpiry(t *testing.T) {
	entry := &simstate.KnowledgeEntry{
		BaseHalfLife: 100,
		Countermeasures: []simstate.Countermeasure{
			{Kind: "CounterIntelSweep", Potency: fixedpoint.FromFloat32(0.5), RemainingTicks: 2},
		},
	}
	ledger, key := ledgerWith(entry)
	sink := &Sink{}

	KnowledgeLedgerTick(ledger, 1, sink)
	if len(ledger.Entries[key].Countermeasures) != 1 {
		t.Fatal("countermeasure should survive the first tick")
	}
	KnowledgeLedgerTick(ledger, 2, sink)
	if len(ledger.Entries[key].Countermeasures) != 0 {
		t.Fatal("countermeasure should expire at zero remaining ticks")
	}
	found := false
	for _, ev := range ledger.Timeline {
		if ev.Kind == simstate.TimelineCounterIntel {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an expiry timeline event")
	}
}

func TestInfiltrationDecayAndRetention(t *testing.T) {
	entry := &simstate.KnowledgeEntry{
		BaseHalfLife: 100,
		Infiltrations: []simstate.Infiltration{
			{AgentHandle: "fading", Suspicion: fixedpoint.FromFloat32(0.015), Fidelity: fixedpoint.FromFloat32(0.01)},
			{AgentHandle: "active", Suspicion: fixedpoint.FromFloat32(0.5), Fidelity: fixedpoint.FromFloat32(0.8)},
		},
	}
	ledger, key := ledgerWith(entry)

	KnowledgeLedgerTick(ledger, 1, &Sink{})

	infs := ledger.Entries[key].Infiltrations
	if len(infs) != 1 || infs[0].AgentHandle != "active" {
		t.Fatalf("expected only the active record to survive, got %+v", infs)
	}
	if got, want := infs[0].Suspicion.Raw(), int64(450_000); got != want {
		t.Fatalf("suspicion = %d, want %d", got, want)
	}
}

// Progress never decreases unless a countermeasure's
// potency outweighs the tick's gain.
func TestKnowledgeMonotonicityWithoutSuppression(t *testing.T) {
	entry := &simstate.KnowledgeEntry{BaseHalfLife: 10}
	ledger, key := ledgerWith(entry)
	prev := fixedpoint.Zero
	for tick := uint64(1); tick <= 20; tick++ {
		KnowledgeLedgerTick(ledger, tick, &Sink{})
		cur := ledger.Entries[key].ProgressPercent
		if cur.Lt(prev) {
			t.Fatalf("progress decreased at tick %d without suppression", tick)
		}
		prev = cur
	}
}
