package subsystems

import (
	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
)

// schismTensionDecay is how much a parent layer's modifiers relax toward
// zero on the axes that triggered a schism, once the sibling has split off.
var schismTensionDecay = fixedpoint.FromFloat32(0.5)

// CultureReconcile is pipeline step 7: consume the influencer step's
// resonance output, drift every layer's axis values toward their updated
// modifiers, recompute divergence against each layer's parent, and emit
// DriftWarning/AssimilationPush/SchismRisk events as tension thresholds are
// crossed (§4.1 step 7, §4.6).
func CultureReconcile(w *simstate.World, impacts *simstate.InfluencerImpacts, tick uint64, sink *Sink) {
	byOwner := make(map[simstate.EntityRef]*simstate.CultureLayer, w.CultureLayers.Len())
	for _, id := range w.CultureLayers.SortedIDs() {
		byOwner[id] = w.CultureLayers.MustGet(id)
	}

	for _, id := range w.CultureLayers.SortedIDs() {
		layer := w.CultureLayers.MustGet(id)
		applyResonance(layer, impacts)

		parent, hasParent := byOwner[layer.ParentID]
		layer.Divergence = divergence(layer, parent, hasParent)

		advanceTension(w, layer, parent, hasParent, tick, sink)
	}
}

// applyResonance folds the influencer step's per-axis resonance delta into
// every layer's modifier and recomputes the clamped value, per the one-way
// influencer->culture pipeline (§9 design notes).
func applyResonance(layer *simstate.CultureLayer, impacts *simstate.InfluencerImpacts) {
	changed := false
	for i := range layer.Axes {
		delta := impacts.CultureResonance[i]
		if delta.IsZero() {
			continue
		}
		axis := &layer.Axes[i]
		axis.Modifier = axis.Modifier.Add(delta)
		newValue := axis.Baseline.Add(axis.Modifier).Clamp(fixedpoint.FromInt(-1), fixedpoint.One)
		if !newValue.Eq(axis.Value) {
			axis.Value = newValue
			changed = true
		}
	}
	if changed {
		layer.Version++
	}
}

// divergence is the L1 distance between a layer's axis values and its
// parent's (global root layers have no parent and zero divergence).
func divergence(layer, parent *simstate.CultureLayer, hasParent bool) fixedpoint.Scalar {
	if !hasParent {
		return fixedpoint.Zero
	}
	total := fixedpoint.Zero
	for i := range layer.Axes {
		total = total.Add(layer.Axes[i].Value.Sub(parent.Axes[i].Value).Abs())
	}
	return total
}

// advanceTension ages the soft/hard ticks-above counters and emits the
// corresponding event exactly once per threshold crossing, spawning a
// sibling regional layer on sustained schism.
func advanceTension(w *simstate.World, layer, parent *simstate.CultureLayer, hasParent bool, tick uint64, sink *Sink) {
	if layer.Divergence.Gt(layer.SoftThreshold) {
		wasZero := layer.TicksAboveSoft == 0
		layer.TicksAboveSoft++
		if wasZero {
			sink.Emit(Event{Kind: EventDriftWarning, Tick: tick, Entity: uint64(layer.OwnerID), Magnitude: layer.Divergence})
		}
	} else {
		layer.TicksAboveSoft = 0
	}

	if layer.Divergence.Lte(layer.HardThreshold) {
		layer.TicksAboveHard = 0
		return
	}

	layer.TicksAboveHard++
	if layer.TicksAboveHard == 1 {
		sink.Emit(Event{Kind: EventAssimilationPush, Tick: tick, Entity: uint64(layer.OwnerID), Magnitude: layer.Divergence})
	}

	const schismTicks = 50
	if layer.TicksAboveHard < schismTicks || !hasParent || layer.Scope == simstate.CultureGlobal {
		return
	}

	sink.Emit(Event{Kind: EventSchismRisk, Tick: tick, Entity: uint64(layer.OwnerID), Magnitude: layer.Divergence})
	spawnSchismSibling(w, layer, parent, tick)
	layer.TicksAboveHard = 0
	for i := range parent.Axes {
		parent.Axes[i].Modifier = parent.Axes[i].Modifier.Mul(schismTensionDecay)
	}
}

// spawnSchismSibling creates a new regional layer rebased on the divergent
// layer's modifiers, decaying the originating layer's tension so it does
// not immediately schism again (§4.6).
func spawnSchismSibling(w *simstate.World, origin, parent *simstate.CultureLayer, tick uint64) {
	sibling := &simstate.CultureLayer{
		ParentID:        origin.ParentID,
		Scope:           origin.Scope,
		SoftThreshold:   origin.SoftThreshold,
		HardThreshold:   origin.HardThreshold,
		LastUpdatedTick: tick,
	}
	for i := range sibling.Axes {
		sibling.Axes[i] = simstate.CultureAxisState{
			Baseline: origin.Axes[i].Value,
			Modifier: fixedpoint.Zero,
			Value:    origin.Axes[i].Value,
		}
	}
	id := w.IDs.Next()
	sibling.OwnerID = id
	w.CultureLayers.Set(id, sibling)

	for i := range origin.Axes {
		origin.Axes[i].Modifier = origin.Axes[i].Modifier.Mul(schismTensionDecay)
	}
}
