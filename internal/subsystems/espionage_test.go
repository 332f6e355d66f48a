package subsystems

import (
	"errors"
	"testing"

	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
)

func espionageFixture() (*simstate.EspionageCatalog, *simstate.EspionageRoster, *simstate.EspionageMissionState, *simstate.KnowledgeLedger) {
	catalog := simstate.NewEspionageCatalog()
	catalog.AgentTemplates["shade"] = &simstate.AgentTemplate{
		ID: "shade", Stealth: fixedpoint.FromFloat32(0.8), Recon: fixedpoint.FromFloat32(0.8),
	}
	catalog.AgentTemplates["sweeper"] = &simstate.AgentTemplate{
		ID: "sweeper", CounterIntel: fixedpoint.FromFloat32(0.9),
	}
	catalog.MissionTemplates["probe"] = &simstate.MissionTemplate{
		ID: "probe", Kind: simstate.MissionProbe, ResolutionTicks: 2,
		BaseSuccess:   fixedpoint.FromFloat32(0.2),
		WeightStealth: fixedpoint.FromFloat32(0.25), WeightRecon: fixedpoint.FromFloat32(0.25),
		FidelityGain:       fixedpoint.FromFloat32(0.4),
		SuspicionOnSuccess: fixedpoint.FromFloat32(0.2),
		PartialMargin:      fixedpoint.FromFloat32(0.1),
		PartialScale:       fixedpoint.FromFloat32(0.5),
	}
	catalog.MissionTemplates["sweep"] = &simstate.MissionTemplate{
		ID: "sweep", Kind: simstate.MissionCounterIntel, ResolutionTicks: 1,
		BaseSuccess:   fixedpoint.FromFloat32(0.3),
		WeightCounter: fixedpoint.FromFloat32(0.5),
		CountermeasureKind:    "CounterIntelSweep",
		CountermeasurePotency: fixedpoint.FromFloat32(0.3),
		CountermeasureTicks:   8,
	}
	catalog.MissionTemplates["guarded"] = &simstate.MissionTemplate{
		ID: "guarded", Kind: simstate.MissionProbe, ResolutionTicks: 1, TierGuard: 3,
	}

	roster := simstate.NewEspionageRoster()
	roster.Agents["a-shade"] = &simstate.AgentInstance{Handle: "a-shade", Template: "shade", Faction: 2, Status: simstate.AgentAvailable}
	roster.Agents["a-sweeper"] = &simstate.AgentInstance{Handle: "a-sweeper", Template: "sweeper", Faction: 1, Status: simstate.AgentAvailable}

	ledger := simstate.NewKnowledgeLedger()
	ledger.Entries[simstate.KnowledgeOwnerDiscovery{OwnerFaction: 1, DiscoveryID: "alloys"}] = &simstate.KnowledgeEntry{
		Tier: 2, ProgressPercent: fixedpoint.FromInt(65), BaseHalfLife: 40,
	}
	return catalog, roster, simstate.NewEspionageMissionState(), ledger
}

func TestQueueMissionRejections(t *testing.T) {
	catalog, roster, state, _ := espionageFixture()

	base := simstate.QueuedMission{
		MissionID: "m-1", Template: "probe", Owner: 2, TargetOwner: 1,
		DiscoveryID: "alloys", AgentHandle: "a-shade",
	}

	bad := base
	bad.Template = "nope"
	if err := QueueMission(catalog, roster, state, bad); !errors.Is(err, ErrUnknownMission) {
		t.Fatalf("expected ErrUnknownMission, got %v", err)
	}
	bad = base
	bad.AgentHandle = "ghost"
	if err := QueueMission(catalog, roster, state, bad); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("expected ErrUnknownAgent, got %v", err)
	}
	bad = base
	bad.Template = "guarded"
	bad.TargetTier = 2
	if err := QueueMission(catalog, roster, state, bad); !errors.Is(err, ErrTierMismatch) {
		t.Fatalf("expected ErrTierMismatch, got %v", err)
	}

	if err := QueueMission(catalog, roster, state, base); err != nil {
		t.Fatalf("valid mission rejected: %v", err)
	}
	if roster.Agents["a-shade"].Status != simstate.AgentAssigned {
		t.Fatal("agent must move to Assigned on queue")
	}
	second := base
	second.MissionID = "m-2"
	if err := QueueMission(catalog, roster, state, second); !errors.Is(err, ErrAgentOccupied) {
		t.Fatalf("expected ErrAgentOccupied, got %v", err)
	}
}

// a well-equipped probe against an unguarded entry resolves as a full
// success, plants an infiltration, and returns the agent to Available.
func TestProbeResolvesSuccessfully(t *testing.T) {
	catalog, roster, state, ledger := espionageFixture()
	sink := &Sink{}

	err := QueueMission(catalog, roster, state, simstate.QueuedMission{
		MissionID: "m-1", Template: "probe", Owner: 2, TargetOwner: 1,
		DiscoveryID: "alloys", AgentHandle: "a-shade", ScheduledTick: 1,
	})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}

	for tick := uint64(1); tick <= 4; tick++ {
		EspionageResolve(catalog, roster, state, ledger, tick, sink)
	}

	var probe *Event
	for i := range sink.Events {
		if sink.Events[i].Kind == EventEspionageProbe {
			probe = &sink.Events[i]
		}
	}
	if probe == nil {
		t.Fatal("expected an EspionageProbeEvent")
	}
	if probe.Detail != "success" {
		t.Fatalf("probe detail = %q, want success", probe.Detail)
	}
	if !probe.Magnitude.Gt(fixedpoint.Zero) {
		t.Fatal("fidelity gain must be positive on success")
	}

	entry := ledger.Entries[simstate.KnowledgeOwnerDiscovery{OwnerFaction: 1, DiscoveryID: "alloys"}]
	if len(entry.Infiltrations) != 1 || entry.Infiltrations[0].Cells == 0 {
		t.Fatalf("expected one infiltration with cells > 0, got %+v", entry.Infiltrations)
	}
	if roster.Agents["a-shade"].Status != simstate.AgentAvailable {
		t.Fatal("agent must return to Available after resolution")
	}
	if len(state.Queue) != 0 {
		t.Fatal("resolved mission must leave the queue")
	}
}

// a Hardened-policy faction with a tier-2 entry at 65% progress and
// no infiltration auto-schedules exactly one counter-intel sweep and pays
// for it.
func TestCounterIntelAutoSchedule(t *testing.T) {
	catalog, roster, state, ledger := espionageFixture()
	budgets := simstate.NewEspionageBudgets()
	budgets.CounterIntelBudget[1] = fixedpoint.FromInt(10)
	budgets.Policy[1] = simstate.PolicyHardened
	sink := &Sink{}

	EspionageAutoSchedule(ledger, catalog, roster, state, budgets, 1, sink)

	if len(state.Queue) != 1 {
		t.Fatalf("expected exactly one queued mission, got %d", len(state.Queue))
	}
	want := fixedpoint.FromInt(10).Sub(budgets.SweepCost)
	if !budgets.CounterIntelBudget[1].Eq(want) {
		t.Fatalf("budget = %d, want %d", budgets.CounterIntelBudget[1].Raw(), want.Raw())
	}
	if roster.Agents["a-sweeper"].Status != simstate.AgentAssigned {
		t.Fatal("counter-intel agent must be reserved")
	}
}

// A Hardened faction sweeps tier>=2 assets on tier alone: no
// infiltration and progress well under the progress trigger must still
// queue a mission.
func TestCounterIntelHardenedTriggersOnTierAlone(t *testing.T) {
	catalog, roster, state, ledger := espionageFixture()
	key := simstate.KnowledgeOwnerDiscovery{OwnerFaction: 1, DiscoveryID: "alloys"}
	ledger.Entries[key].ProgressPercent = fixedpoint.FromInt(30)
	budgets := simstate.NewEspionageBudgets()
	budgets.CounterIntelBudget[1] = fixedpoint.FromInt(10)
	budgets.Policy[1] = simstate.PolicyHardened

	EspionageAutoSchedule(ledger, catalog, roster, state, budgets, 1, &Sink{})

	if len(state.Queue) != 1 {
		t.Fatalf("tier-2 entry at 30%% must still be swept under Hardened, queue=%d", len(state.Queue))
	}
}

// Crisis policy keeps the Hardened trigger formula; its overdraft
// allowance is about budget, not about sweeping everything.
func TestCounterIntelCrisisGate(t *testing.T) {
	catalog, roster, state, ledger := espionageFixture()
	key := simstate.KnowledgeOwnerDiscovery{OwnerFaction: 1, DiscoveryID: "alloys"}
	entry := ledger.Entries[key]
	entry.Tier = 0
	entry.ProgressPercent = fixedpoint.FromInt(30)
	budgets := simstate.NewEspionageBudgets()
	budgets.Policy[1] = simstate.PolicyCrisis

	EspionageAutoSchedule(ledger, catalog, roster, state, budgets, 1, &Sink{})
	if len(state.Queue) != 0 {
		t.Fatal("quiet low-progress entry must not trigger under Crisis")
	}

	// An active infiltration trips the gate, and Crisis may overdraw the
	// empty budget.
	entry.Infiltrations = append(entry.Infiltrations, simstate.Infiltration{
		AgentHandle: "x", Suspicion: fixedpoint.FromFloat32(0.1), Fidelity: fixedpoint.FromFloat32(0.2), Cells: 1,
	})
	EspionageAutoSchedule(ledger, catalog, roster, state, budgets, 2, &Sink{})
	if len(state.Queue) != 1 {
		t.Fatalf("infiltrated entry must be swept under Crisis, queue=%d", len(state.Queue))
	}
	if !budgets.CounterIntelBudget[1].IsNeg() {
		t.Fatal("Crisis should have overdrawn the budget")
	}
}

// The reserve regenerates before scheduling, capped at the max, and
// non-Crisis policies may not dip below the min reserve.
func TestCounterIntelBudgetRegenAndMinReserve(t *testing.T) {
	catalog, roster, state, ledger := espionageFixture()
	budgets := simstate.NewEspionageBudgets()
	budgets.RegenPerTick = fixedpoint.One
	budgets.MaxReserve = fixedpoint.FromInt(8)
	budgets.MinReserve = fixedpoint.FromInt(3)
	budgets.CounterIntelBudget[1] = fixedpoint.FromInt(8)
	budgets.Policy[1] = simstate.PolicyHardened

	EspionageAutoSchedule(ledger, catalog, roster, state, budgets, 1, &Sink{})

	// Regen is capped at 8; the sweep spends 2 down to 6, still above the
	// min reserve.
	if len(state.Queue) != 1 {
		t.Fatalf("expected one mission, got %d", len(state.Queue))
	}
	if !budgets.CounterIntelBudget[1].Eq(fixedpoint.FromInt(6)) {
		t.Fatalf("budget = %d, want 6000000", budgets.CounterIntelBudget[1].Raw())
	}

	// A reserve that would fall below the floor blocks the spend.
	catalog2, roster2, state2, ledger2 := espionageFixture()
	budgets2 := simstate.NewEspionageBudgets()
	budgets2.MinReserve = fixedpoint.FromInt(3)
	budgets2.CounterIntelBudget[1] = fixedpoint.FromInt(4)
	budgets2.Policy[1] = simstate.PolicyHardened

	EspionageAutoSchedule(ledger2, catalog2, roster2, state2, budgets2, 1, &Sink{})
	if len(state2.Queue) != 0 {
		t.Fatal("spend below the min reserve must be refused")
	}
	if !budgets2.CounterIntelBudget[1].Eq(fixedpoint.FromInt(4)) {
		t.Fatal("refused spend must leave the reserve untouched")
	}
}

func TestAutoScheduleSkipsActiveSweepAndLenient(t *testing.T) {
	catalog, roster, state, ledger := espionageFixture()
	budgets := simstate.NewEspionageBudgets()
	budgets.CounterIntelBudget[1] = fixedpoint.FromInt(10)

	// Lenient at 65% progress with no suspicion must not trigger.
	budgets.Policy[1] = simstate.PolicyLenient
	EspionageAutoSchedule(ledger, catalog, roster, state, budgets, 1, &Sink{})
	if len(state.Queue) != 0 {
		t.Fatal("lenient policy must not schedule at 65% with no suspicion")
	}

	// An entry already under an active sweep is skipped even by Crisis.
	key := simstate.KnowledgeOwnerDiscovery{OwnerFaction: 1, DiscoveryID: "alloys"}
	ledger.Entries[key].Countermeasures = append(ledger.Entries[key].Countermeasures,
		simstate.Countermeasure{Kind: "CounterIntelSweep", RemainingTicks: 5})
	budgets.Policy[1] = simstate.PolicyCrisis
	EspionageAutoSchedule(ledger, catalog, roster, state, budgets, 2, &Sink{})
	if len(state.Queue) != 0 {
		t.Fatal("active sweep must gate re-scheduling")
	}
	if !budgets.CounterIntelBudget[1].Eq(fixedpoint.FromInt(10)) {
		t.Fatal("no spend expected when nothing is scheduled")
	}
}

// an agent handle never appears in two live missions.
func TestAgentExclusivity(t *testing.T) {
	catalog, roster, state, _ := espionageFixture()

	QueueMission(catalog, roster, state, simstate.QueuedMission{
		MissionID: "m-1", Template: "probe", Owner: 2, TargetOwner: 1,
		DiscoveryID: "alloys", AgentHandle: "a-shade", ScheduledTick: 5,
	})
	err := QueueMission(catalog, roster, state, simstate.QueuedMission{
		MissionID: "m-2", Template: "probe", Owner: 2, TargetOwner: 1,
		DiscoveryID: "alloys", AgentHandle: "a-shade", ScheduledTick: 5,
	})
	if err == nil {
		t.Fatal("double assignment must be rejected")
	}
	seen := map[string]int{}
	for _, m := range state.Queue {
		seen[m.AgentHandle]++
	}
	if seen["a-shade"] != 1 {
		t.Fatalf("agent appears in %d missions", seen["a-shade"])
	}
}

func TestGeneratorExpansionDeterministic(t *testing.T) {
	catalogA := simstate.NewEspionageCatalog()
	catalogB := simstate.NewEspionageCatalog()
	base := &simstate.AgentTemplate{ID: "shade", Stealth: fixedpoint.FromFloat32(0.5)}

	a := ExpandAgentGenerator(catalogA, base, 3)
	b := ExpandAgentGenerator(catalogB, base, 3)
	if len(a) != 3 || len(b) != 3 {
		t.Fatalf("expected 3 variants, got %d/%d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("variant %d ids diverge: %s vs %s", i, a[i].ID, b[i].ID)
		}
	}
	ids := map[string]bool{}
	for _, v := range a {
		if ids[v.ID] {
			t.Fatalf("duplicate variant id %s", v.ID)
		}
		ids[v.ID] = true
	}
}
