package subsystems

import (
	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
)

// corruptionSubsystemOrder is the canonical iteration order over
// CorruptionSubsystem keys (§4.1 tie-break rule: map-backed collections
// always iterate in a fixed, declared order, never map order).
var corruptionSubsystemOrder = []simstate.CorruptionSubsystem{
	simstate.CorruptionLogistics,
	simstate.CorruptionTrade,
	simstate.CorruptionMilitary,
	simstate.CorruptionGovernance,
}

// CorruptionProcess is pipeline step 12: age every incident's exposure
// timer and, on expiration, apply a sentiment penalty and drop the
// incident (§4.1 step 12, §4.7 "Incident").
func CorruptionProcess(ledger *simstate.CorruptionLedger, bias *simstate.SentimentBias, tick uint64, sink *Sink) {
	for _, sub := range corruptionSubsystemOrder {
		incidents := ledger.BySubsystem[sub]
		kept := incidents[:0]
		for _, inc := range incidents {
			if inc.ExposureTimer > 0 {
				inc.ExposureTimer--
			}
			if inc.ExposureTimer == 0 {
				applyExposurePenalty(bias, inc)
				sink.Emit(Event{
					Kind:      EventCorruptionExposed,
					Tick:      tick,
					Magnitude: inc.Intensity,
					Detail:    subsystemName(sub),
				})
				continue
			}
			kept = append(kept, inc)
		}
		ledger.BySubsystem[sub] = kept
	}
}

// applyExposurePenalty nudges every sentiment policy axis toward
// disapproval proportional to the incident's intensity, once per exposure.
func applyExposurePenalty(bias *simstate.SentimentBias, inc *simstate.CorruptionIncident) {
	penalty := inc.Intensity.Mul(fixedpoint.FromFloat32(0.02))
	for i := range bias.Axes {
		bias.Axes[i] = bias.Axes[i].Sub(penalty).Clamp(fixedpoint.FromInt(-1), fixedpoint.One)
	}
}

func subsystemName(sub simstate.CorruptionSubsystem) string {
	switch sub {
	case simstate.CorruptionLogistics:
		return "logistics"
	case simstate.CorruptionTrade:
		return "trade"
	case simstate.CorruptionMilitary:
		return "military"
	case simstate.CorruptionGovernance:
		return "governance"
	default:
		return "unknown"
	}
}

// InjectCorruption adds an incident to the ledger (§6.1 InjectCorruption,
// §4.1 step 12). Intensity is clamped to [-5,5] per the wire contract.
func InjectCorruption(ledger *simstate.CorruptionLedger, sub simstate.CorruptionSubsystem, intensity fixedpoint.Scalar, exposureTimer uint32) {
	clamped := intensity.Clamp(fixedpoint.FromInt(-5), fixedpoint.FromInt(5))
	ledger.BySubsystem[sub] = append(ledger.BySubsystem[sub], &simstate.CorruptionIncident{
		Intensity:     clamped,
		ExposureTimer: exposureTimer,
	})
}
