package subsystems

import (
	"sort"

	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
)

// retentionThreshold is the suspicion/fidelity floor below which an
// infiltration record is dropped (§4.4).
var retentionThreshold = fixedpoint.FromFloat32(0.05)

// suspicionDecayPerTick is the constant every infiltration's suspicion
// decays by each tick (§4.4).
var suspicionDecayPerTick = fixedpoint.FromFloat32(0.05)

const (
	cascadePendingThreshold = 90 // progress_percent >= 90 sets CASCADE_PENDING
	minEffectiveHalfLife    = 2
)

// KnowledgeLedgerTick is pipeline step 11: apply per-entry progress decay
// and countermeasure effects, age countermeasure/infiltration timers, and
// emit timeline events (§4.1 step 11, §4.4).
func KnowledgeLedgerTick(ledger *simstate.KnowledgeLedger, tick uint64, sink *Sink) {
	keys := make([]simstate.KnowledgeOwnerDiscovery, 0, len(ledger.Entries))
	for k := range ledger.Entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].OwnerFaction != keys[j].OwnerFaction {
			return keys[i].OwnerFaction < keys[j].OwnerFaction
		}
		return keys[i].DiscoveryID < keys[j].DiscoveryID
	})

	for _, key := range keys {
		entry := ledger.Entries[key]
		advanceEntry(ledger, key, entry, tick, sink)
		ageCountermeasures(ledger, key, entry, tick, sink)
		decayInfiltrations(entry)
	}
}

// advanceEntry computes effective_half_life and applies the tick's
// progress delta (minus any countermeasure-derived fidelity suppression),
// then handles the cascade/common-knowledge flag transitions (§4.4).
func advanceEntry(ledger *simstate.KnowledgeLedger, key simstate.KnowledgeOwnerDiscovery, entry *simstate.KnowledgeEntry, tick uint64, sink *Sink) {
	if entry.Flags&simstate.FlagCommonKnowledge != 0 {
		return
	}

	halfLife := effectiveHalfLife(entry)
	base := fixedpoint.FromFloat32(ceilDiv(100, halfLife))

	modifierProgress := fixedpoint.Zero
	for _, d := range entry.ModifierDeltas {
		if d > 0 {
			modifierProgress = modifierProgress.Add(fixedpoint.FromInt(int64(d)).Mul(fixedpoint.FromFloat32(0.01)))
		}
	}

	penalty := fixedpoint.Zero
	for _, cm := range entry.Countermeasures {
		penalty = penalty.Add(cm.Potency)
	}

	delta := base.Add(modifierProgress).Sub(penalty)
	entry.ProgressPercent = entry.ProgressPercent.Add(delta).Clamp(fixedpoint.Zero, fixedpoint.FromInt(100))

	switch {
	case entry.ProgressPercent.Gte(fixedpoint.FromInt(100)):
		entry.Flags |= simstate.FlagCommonKnowledge
		entry.Flags &^= simstate.FlagCascadePending
		ledger.PushTimeline(simstate.TimelineEvent{Tick: tick, Kind: simstate.TimelineCascade, OwnerFaction: key.OwnerFaction, DiscoveryID: key.DiscoveryID})
		sink.Emit(Event{Kind: EventCascade, Tick: tick, OwnerFaction: key.OwnerFaction, DiscoveryID: key.DiscoveryID})
	case entry.ProgressPercent.Gte(fixedpoint.FromInt(cascadePendingThreshold)):
		entry.Flags |= simstate.FlagCascadePending
	}
}

// effectiveHalfLife = base_half_life + sum(modifier_delta) +
// sum(floor(countermeasure.potency*bonus_scale)) -
// sum(cells*w_cells + fidelity*w_fidelity), clamped to >=2 (§4.4).
func effectiveHalfLife(entry *simstate.KnowledgeEntry) uint32 {
	const wCells = 0.5
	const wFidelity = 1.0

	total := int64(entry.BaseHalfLife)
	for _, d := range entry.ModifierDeltas {
		total += int64(d)
	}
	for _, cm := range entry.Countermeasures {
		bonus := cm.Potency.Mul(fixedpoint.FromFloat32(10))
		total += int64(bonus.Raw() / fixedpoint.Scale)
	}
	for _, inf := range entry.Infiltrations {
		reduction := float64(inf.Cells)*wCells + float64(inf.Fidelity.Float32())*wFidelity
		total -= int64(reduction)
	}
	if total < minEffectiveHalfLife {
		total = minEffectiveHalfLife
	}
	return uint32(total)
}

func ceilDiv(num int64, denom uint32) float32 {
	if denom == 0 {
		return 0
	}
	q := num / int64(denom)
	if num%int64(denom) != 0 {
		q++
	}
	return float32(q)
}

// ageCountermeasures decrements each countermeasure's remaining-ticks
// counter and removes it (with an expiry event) at zero (§4.4).
func ageCountermeasures(ledger *simstate.KnowledgeLedger, key simstate.KnowledgeOwnerDiscovery, entry *simstate.KnowledgeEntry, tick uint64, sink *Sink) {
	kept := entry.Countermeasures[:0]
	for _, cm := range entry.Countermeasures {
		if cm.RemainingTicks > 0 {
			cm.RemainingTicks--
		}
		if cm.RemainingTicks == 0 {
			ledger.PushTimeline(simstate.TimelineEvent{Tick: tick, Kind: simstate.TimelineCounterIntel, OwnerFaction: key.OwnerFaction, DiscoveryID: key.DiscoveryID, Detail: cm.Kind + ":expired"})
			continue
		}
		kept = append(kept, cm)
	}
	entry.Countermeasures = kept
}

// decayInfiltrations decays suspicion by a constant each tick and drops
// any record whose suspicion and fidelity both fall below the retention
// threshold (§4.4).
func decayInfiltrations(entry *simstate.KnowledgeEntry) {
	kept := entry.Infiltrations[:0]
	for _, inf := range entry.Infiltrations {
		inf.Suspicion = inf.Suspicion.Sub(suspicionDecayPerTick).Clamp(fixedpoint.Zero, fixedpoint.One)
		if inf.Suspicion.Lt(retentionThreshold) && inf.Fidelity.Lt(retentionThreshold) {
			continue
		}
		kept = append(kept, inf)
	}
	entry.Infiltrations = kept
}
