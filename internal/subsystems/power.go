package subsystems

import (
	"sort"

	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
	"github.com/talgya/shadow-scale/internal/worldconfig"
)

// PowerBalance is pipeline step 5 (§4.1 step 5, §4.9).
//
// Per node: efficiency drifts toward an ambient equilibrium; effective
// generation/demand fold in the influencer power delta; net =
// (gen-dem)*corruption_multiplier(Military). A single donor->receiver pass
// over the topology's adjacency redistributes positive net into adjacent
// negative net, bounded by default_capacity per edge, donors visited in
// ascending node-id order. Remaining positive net charges storage;
// remaining negative net discharges it. Storage always bleeds a fraction.
// Stability and incident classification close out the step.
func PowerBalance(w *simstate.World, topo *simstate.PowerTopology, grid *simstate.PowerGridState, corruption *simstate.CorruptionLedger, impacts *simstate.InfluencerImpacts, pipeline *worldconfig.TurnPipelineConfig, cfg *simstate.Config, tick uint64, sink *Sink) {
	storageEff := fixedpoint.FromFloat32(float32(pipeline.PowerStorageEfficiency))
	bleed := fixedpoint.FromFloat32(float32(pipeline.PowerStorageBleed))
	militaryMult := corruption.Multiplier(simstate.CorruptionMilitary)

	net := make(map[uint64]fixedpoint.Scalar, w.PowerNodes.Len())

	for _, id := range w.PowerNodes.SortedIDs() {
		node := w.PowerNodes.MustGet(id)

		equilibrium := cfg.AmbientTemperature
		node.Efficiency = node.Efficiency.Add(equilibrium.Sub(node.Efficiency).Mul(fixedpoint.FromFloat32(0.1))).Clamp(fixedpoint.Zero, fixedpoint.One)

		influenceBonus := impacts.PowerDelta
		node.LiveGeneration = node.BaseGeneration.Mul(node.Efficiency).Add(influenceBonus)
		node.LiveDemand = fixedpoint.Max(fixedpoint.Zero, node.BaseDemand.Sub(influenceBonus.Mul(fixedpoint.FromFloat32(0.25))))

		n := node.LiveGeneration.Sub(node.LiveDemand).Mul(militaryMult)
		net[node.NodeID] = n
	}

	var donorIDs []uint64
	for id := range net {
		donorIDs = append(donorIDs, id)
	}
	sort.Slice(donorIDs, func(i, j int) bool { return donorIDs[i] < donorIDs[j] })

	for _, donorID := range donorIDs {
		if net[donorID].Lte(fixedpoint.Zero) {
			continue
		}
		for _, receiverID := range topo.Adjacency[donorID] {
			if net[donorID].Lte(fixedpoint.Zero) {
				break
			}
			if net[receiverID].Gte(fixedpoint.Zero) {
				continue
			}
			need := net[receiverID].Neg()
			transfer := fixedpoint.Min(fixedpoint.Min(net[donorID], need), topo.DefaultCapacity)
			net[donorID] = net[donorID].Sub(transfer)
			net[receiverID] = net[receiverID].Add(transfer)
		}
	}

	for _, id := range w.PowerNodes.SortedIDs() {
		node := w.PowerNodes.MustGet(id)
		n := net[node.NodeID]

		if n.Gt(fixedpoint.Zero) {
			charge := n.Mul(storageEff)
			node.StorageLevel = fixedpoint.Min(node.StorageCapacity, node.StorageLevel.Add(charge))
			node.LastSurplus = n
			node.LastDeficit = fixedpoint.Zero
		} else if n.Lt(fixedpoint.Zero) {
			deficit := n.Neg()
			discharge := fixedpoint.Min(node.StorageLevel, deficit).Mul(storageEff)
			node.StorageLevel = fixedpoint.Max(fixedpoint.Zero, node.StorageLevel.Sub(discharge))
			node.LastDeficit = deficit
			node.LastSurplus = fixedpoint.Zero
		} else {
			node.LastSurplus, node.LastDeficit = fixedpoint.Zero, fixedpoint.Zero
		}

		node.StorageLevel = node.StorageLevel.Sub(node.StorageLevel.Mul(bleed)).Clamp(fixedpoint.Zero, node.StorageCapacity)

		fulfilled := node.LiveDemand
		if node.LastDeficit.Gt(fixedpoint.Zero) {
			fulfilled = node.LiveDemand.Sub(node.LastDeficit)
		}
		var demandRatio fixedpoint.Scalar
		if node.LiveDemand.Gt(fixedpoint.Zero) {
			demandRatio = fulfilled.Div(node.LiveDemand)
		} else {
			demandRatio = fixedpoint.One
		}
		reserveBonus := fixedpoint.Zero
		if node.StorageCapacity.Gt(fixedpoint.Zero) {
			reserveBonus = node.StorageLevel.Div(node.StorageCapacity).Mul(fixedpoint.FromFloat32(0.25))
		}
		node.Stability = demandRatio.Add(reserveBonus).Clamp(fixedpoint.Zero, fixedpoint.FromFloat32(1.25))
		if node.Stability.Gt(fixedpoint.One) {
			node.Stability = fixedpoint.One
		}

		classifyPowerIncident(grid, node, cfg, tick, sink)
	}
}

func classifyPowerIncident(grid *simstate.PowerGridState, node *simstate.PowerNode, cfg *simstate.Config, tick uint64, sink *Sink) {
	var severity string
	switch {
	case node.Stability.Lte(cfg.StabilityCriticalThreshold):
		severity = "critical"
	case node.Stability.Lte(cfg.StabilityWarnThreshold):
		severity = "warn"
	default:
		node.IncidentCounter = 0
		return
	}
	node.IncidentCounter++
	grid.Incidents = append(grid.Incidents, simstate.PowerIncident{NodeID: node.NodeID, Severity: severity, Tick: tick})
	sink.Emit(Event{Kind: EventCrisisIncident, Tick: tick, Entity: node.NodeID, Detail: "power:" + severity})
}
