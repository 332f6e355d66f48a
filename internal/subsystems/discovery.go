package subsystems

import (
	"sort"

	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
)

// GreatDiscoveryTick is pipeline step 9: accumulate weighted requirement
// progress for every tracked great discovery, screen candidates whose
// best faction clears the observation threshold, publish, and fire the
// effect hook (§4.1 step 9).
func GreatDiscoveryTick(state *simstate.GreatDiscoveryState, progress *simstate.DiscoveryProgressLedger, tick uint64, sink *Sink) {
	factions := make([]uint32, 0, len(progress.Progress))
	for f := range progress.Progress {
		factions = append(factions, f)
	}
	sort.Slice(factions, func(i, j int) bool { return factions[i] < factions[j] })

	ids := make([]string, 0, len(state.Discoveries))
	for id := range state.Discoveries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		gd := state.Discoveries[id]
		if gd.Published {
			continue
		}

		best := fixedpoint.Zero
		for _, faction := range factions {
			w := weightedProgress(gd, progress.Progress[faction])
			if w.Gt(best) {
				best = w
			}
		}
		gd.WeightedProgress = best

		if gd.WeightedProgress.Gte(gd.ObservationThreshold) {
			gd.Published = true
			gd.PublishedTick = tick
			sink.Emit(Event{
				Kind:        EventGreatDiscovery,
				Tick:        tick,
				DiscoveryID: gd.ID,
				Magnitude:   gd.WeightedProgress,
			})
		}
	}
}

// weightedProgress folds one faction's ledger into a discovery's
// requirements: each requirement contributes its weight scaled by how far
// the faction's progress sits above the requirement's minimum, normalized
// over the remaining span, all divided by the total weight.
func weightedProgress(gd *simstate.GreatDiscovery, byDiscovery map[string]fixedpoint.Scalar) fixedpoint.Scalar {
	if len(gd.Requirements) == 0 {
		// A discovery with no requirements tracks its own id directly.
		return byDiscovery[gd.ID]
	}

	accum := fixedpoint.Zero
	weightTotal := fixedpoint.Zero
	for _, req := range gd.Requirements {
		weight := req.Weight
		if weight.Lte(fixedpoint.Zero) {
			weight = fixedpoint.One
		}
		weightTotal = weightTotal.Add(weight)

		p := byDiscovery[req.DiscoveryID]
		if p.Lte(req.MinimumProgress) {
			continue
		}
		span := fixedpoint.One.Sub(req.MinimumProgress)
		if span.Lte(fixedpoint.Zero) {
			accum = accum.Add(weight)
			continue
		}
		delta := p.Sub(req.MinimumProgress)
		normalized := delta.Clamp(fixedpoint.Zero, span).Div(span)
		accum = accum.Add(normalized.Mul(weight).Clamp(fixedpoint.Zero, weight))
	}
	if weightTotal.Lte(fixedpoint.Zero) {
		weightTotal = fixedpoint.One
	}
	return accum.Div(weightTotal).Clamp(fixedpoint.Zero, fixedpoint.One)
}

// RegisterGreatDiscovery tracks a new candidate discovery for the
// constellation to accumulate toward (catalog-loading helper, not itself a
// pipeline step).
func RegisterGreatDiscovery(state *simstate.GreatDiscoveryState, id string, observationThreshold fixedpoint.Scalar, requirements ...simstate.DiscoveryRequirement) {
	if _, exists := state.Discoveries[id]; exists {
		return
	}
	state.Discoveries[id] = &simstate.GreatDiscovery{
		ID:                   id,
		ObservationThreshold: observationThreshold,
		Requirements:         requirements,
	}
}
