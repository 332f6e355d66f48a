package engine

import (
	"log/slog"

	"github.com/talgya/shadow-scale/internal/ecs"
	"github.com/talgya/shadow-scale/internal/simstate"
	"github.com/talgya/shadow-scale/internal/subsystems"
)

// step is one entry of the turn pipeline: a name for logging and the
// function the scheduler invokes. Steps run strictly in declaration
// order; nothing here is ever parallelized (§4.1).
type step struct {
	name string
	run  func(s *Simulation, tick uint64)
}

// pipeline is the declared step order (§4.1). The scheduler never
// reorders it.
var pipeline = []step{
	{"materials_relax", func(s *Simulation, _ uint64) {
		cfg := s.Configs.Simulation()
		subsystems.MaterialsRelax(s.World, cfg)
	}},
	{"logistics_flow", func(s *Simulation, _ uint64) {
		subsystems.LogisticsFlow(s.World, s.Configs.Pipeline())
	}},
	{"trade_diffusion", func(s *Simulation, tick uint64) {
		progress := ecs.MustGet[*simstate.DiscoveryProgressLedger](s.World.Resources)
		telemetry := ecs.MustGet[*simstate.TradeTelemetry](s.World.Resources)
		subsystems.TradeKnowledgeDiffusion(s.World, progress, telemetry, s.Configs.Pipeline(), tick, s.sink)
	}},
	{"population", func(s *Simulation, tick uint64) {
		progress := ecs.MustGet[*simstate.DiscoveryProgressLedger](s.World.Resources)
		subsystems.PopulationStep(s.World, progress, s.Configs.Pipeline(), tick, s.sink)
	}},
	{"power_balance", func(s *Simulation, tick uint64) {
		topo := ecs.MustGet[*simstate.PowerTopology](s.World.Resources)
		grid := ecs.MustGet[*simstate.PowerGridState](s.World.Resources)
		corruption := ecs.MustGet[*simstate.CorruptionLedger](s.World.Resources)
		impacts := ecs.MustGet[*simstate.InfluencerImpacts](s.World.Resources)
		cfg := s.Configs.Simulation()
		subsystems.PowerBalance(s.World, topo, grid, corruption, impacts, s.Configs.Pipeline(), cfg, tick, s.sink)
	}},
	{"influencer", func(s *Simulation, _ uint64) {
		impacts := ecs.MustGet[*simstate.InfluencerImpacts](s.World.Resources)
		subsystems.InfluencerTick(s.World, impacts)
	}},
	{"culture_reconcile", func(s *Simulation, tick uint64) {
		impacts := ecs.MustGet[*simstate.InfluencerImpacts](s.World.Resources)
		subsystems.CultureReconcile(s.World, impacts, tick, s.sink)
	}},
	{"crisis_advance", func(s *Simulation, tick uint64) {
		state := ecs.MustGet[*simstate.CrisisState](s.World.Resources)
		catalog := ecs.MustGet[*simstate.CrisisCatalog](s.World.Resources)
		telemetry := ecs.MustGet[*simstate.CrisisTelemetry](s.World.Resources)
		cfg := s.Configs.Simulation()
		subsystems.CrisisAdvance(state, catalog, telemetry, cfg.GridWidth, cfg.GridHeight, tick, s.sink)
	}},
	{"great_discovery", func(s *Simulation, tick uint64) {
		state := ecs.MustGet[*simstate.GreatDiscoveryState](s.World.Resources)
		progress := ecs.MustGet[*simstate.DiscoveryProgressLedger](s.World.Resources)
		subsystems.GreatDiscoveryTick(state, progress, tick, s.sink)
	}},
	{"espionage", func(s *Simulation, tick uint64) {
		ledger := ecs.MustGet[*simstate.KnowledgeLedger](s.World.Resources)
		catalog := ecs.MustGet[*simstate.EspionageCatalog](s.World.Resources)
		roster := ecs.MustGet[*simstate.EspionageRoster](s.World.Resources)
		missions := ecs.MustGet[*simstate.EspionageMissionState](s.World.Resources)
		budgets := ecs.MustGet[*simstate.EspionageBudgets](s.World.Resources)
		subsystems.EspionageAutoSchedule(ledger, catalog, roster, missions, budgets, tick, s.sink)
		subsystems.EspionageResolve(catalog, roster, missions, ledger, tick, s.sink)
	}},
	{"knowledge_ledger", func(s *Simulation, tick uint64) {
		ledger := ecs.MustGet[*simstate.KnowledgeLedger](s.World.Resources)
		subsystems.KnowledgeLedgerTick(ledger, tick, s.sink)
	}},
	{"corruption", func(s *Simulation, tick uint64) {
		ledger := ecs.MustGet[*simstate.CorruptionLedger](s.World.Resources)
		bias := ecs.MustGet[*simstate.SentimentBias](s.World.Resources)
		subsystems.CorruptionProcess(ledger, bias, tick, s.sink)
	}},
	{"snapshot", func(s *Simulation, tick uint64) {
		s.captureSnapshot(tick)
	}},
}

// runStep executes one pipeline step, containing any panic so a faulty
// subsystem degrades to a logged soft failure instead of aborting the
// tick (§4.1, §7).
func runStep(s *Simulation, st step, tick uint64) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("subsystem step panicked", "step", st.name, "tick", tick, "panic", r)
		}
	}()
	st.run(s, tick)
}
