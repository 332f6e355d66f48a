package subsystems

import (
	"sort"

	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
	"github.com/talgya/shadow-scale/internal/worldconfig"
)

// TradeKnowledgeDiffusion is pipeline step 3: reads link.flow, mutates
// trade-link state and the Discovery Progress Ledger, and emits diffusion
// events (§4.1 step 3, GLOSSARY "Openness", "Fragment").
//
// Each tick a trade link's openness decays by the configured rate; its
// leak timer counts down only while flow is actually moving through the
// underlying logistics link (an idle link doesn't leak knowledge). When
// the timer reaches zero, the oldest pending fragment diffuses into the
// Discovery Progress Ledger for the receiving faction, scaled by the
// link's current openness, and the timer resets proportional to
// (1-openness): a more open link leaks again sooner.
func TradeKnowledgeDiffusion(w *simstate.World, progress *simstate.DiscoveryProgressLedger, telemetry *simstate.TradeTelemetry, pipeline *worldconfig.TurnPipelineConfig, tick uint64, sink *Sink) {
	decay := fixedpoint.FromFloat32(float32(pipeline.TradeOpennessDecay))

	for _, id := range w.TradeLinks.SortedIDs() {
		trade := w.TradeLinks.MustGet(id)
		trade.Openness = trade.Openness.Sub(decay).Clamp(fixedpoint.Zero, fixedpoint.One)

		link, hasLink := w.LogisticsLinks.Get(id)
		flowing := hasLink && link.CurrentFlow.Gt(fixedpoint.Zero)
		if !flowing {
			continue
		}

		if trade.LeakTimer > 0 {
			trade.LeakTimer--
			continue
		}
		if len(trade.PendingFragments) == 0 {
			trade.LeakTimer = resetLeakTimer(trade.Openness)
			continue
		}

		frag := trade.PendingFragments[0]
		trade.PendingFragments = trade.PendingFragments[1:]

		gain := frag.Progress.Mul(trade.Openness).Mul(frag.Fidelity)
		progress.Add(trade.ToFaction, frag.DiscoveryID, gain)
		trade.LastDiffusedDiscovery = frag.DiscoveryID
		trade.LeakTimer = resetLeakTimer(trade.Openness)

		sink.Emit(Event{
			Kind:          EventDiffusion,
			Tick:          tick,
			OwnerFaction:  trade.FromFaction,
			TargetFaction: trade.ToFaction,
			DiscoveryID:   frag.DiscoveryID,
			Magnitude:     gain,
		})
	}

	updateTradeTelemetry(w, telemetry)
}

// updateTradeTelemetry recomputes the tick's aggregate trade volume and
// the per-faction knowledge-spread Gini gauge over cohort sizes.
func updateTradeTelemetry(w *simstate.World, telemetry *simstate.TradeTelemetry) {
	total := fixedpoint.Zero
	for _, id := range w.TradeLinks.SortedIDs() {
		if link, ok := w.LogisticsLinks.Get(id); ok {
			total = total.Add(link.CurrentFlow)
		}
	}
	telemetry.TotalVolume = total

	sizesByFaction := make(map[uint32][]int64)
	for _, id := range w.Cohorts.SortedIDs() {
		c := w.Cohorts.MustGet(id)
		sizesByFaction[c.FactionID] = append(sizesByFaction[c.FactionID], int64(c.Size))
	}
	for faction, sizes := range sizesByFaction {
		telemetry.WealthGiniByFaction[faction] = gini(sizes)
	}
}

// gini computes the Gini coefficient of sizes in fixed point via the
// sorted prefix-sum formula: G = 2*Σ(i*x_i)/(n*Σx) - (n+1)/n.
func gini(sizes []int64) fixedpoint.Scalar {
	n := int64(len(sizes))
	if n == 0 {
		return fixedpoint.Zero
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })
	var sum, weighted int64
	for i, x := range sizes {
		sum += x
		weighted += int64(i+1) * x
	}
	if sum == 0 {
		return fixedpoint.Zero
	}
	lhs := fixedpoint.FromInt(2 * weighted).Div(fixedpoint.FromInt(n * sum))
	rhs := fixedpoint.FromInt(n + 1).Div(fixedpoint.FromInt(n))
	return lhs.Sub(rhs).Clamp(fixedpoint.Zero, fixedpoint.One)
}

// resetLeakTimer returns a countdown inversely proportional to openness: a
// fully open link (1.0) resets to 2 ticks, a closed link (0.0) to 20.
func resetLeakTimer(openness fixedpoint.Scalar) uint32 {
	span := fixedpoint.FromInt(18)
	inv := fixedpoint.One.Sub(openness)
	extra := inv.Mul(span)
	return 2 + uint32(extra.Raw()/fixedpoint.Scale)
}
