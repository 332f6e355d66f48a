package subsystems

import (
	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
)

// influencerDormancyLimit is the number of ticks a Dormant influencer
// persists before the roster lifecycle removes it (§3.5).
const influencerDormancyLimit = 2000

// InfluencerTick is pipeline step 6: advance each influencer's status
// (Potential->Active->Dormant, removal after influencerDormancyLimit
// dormant ticks), decay notoriety and channels, and aggregate active
// influencers' sentiment/logistics/morale/power/culture deltas. It does
// not spawn influencers or change their scopes. The deltas go
// into InfluencerImpacts for the culture-reconcile step to consume next
// (§4.1 step 6, §9 design note on one-way resonance pipelines).
func InfluencerTick(w *simstate.World, impacts *simstate.InfluencerImpacts) {
	*impacts = simstate.InfluencerImpacts{}

	var toRemove []simstate.EntityRef
	for _, id := range w.Influencers.SortedIDs() {
		inf := w.Influencers.MustGet(id)
		inf.TicksInStatus++

		switch inf.Status {
		case simstate.InfluencerPotential:
			if inf.Notoriety.Gt(fixedpoint.FromFloat32(0.2)) {
				inf.Status = simstate.InfluencerActive
				inf.TicksInStatus = 0
			}
		case simstate.InfluencerActive:
			decayChannels(inf)
			if inf.Notoriety.Lt(fixedpoint.FromFloat32(0.05)) {
				inf.Status = simstate.InfluencerDormant
				inf.TicksInStatus = 0
			}
			accumulateImpacts(inf, impacts)
		case simstate.InfluencerDormant:
			if inf.TicksInStatus > influencerDormancyLimit {
				toRemove = append(toRemove, id)
			}
		}

		inf.Notoriety = inf.Notoriety.Sub(fixedpoint.FromFloat32(0.01)).Clamp(fixedpoint.Zero, fixedpoint.One)
	}

	for _, id := range toRemove {
		w.Influencers.Delete(id)
	}
}

func decayChannels(inf *simstate.Influencer) {
	for i := range inf.ChannelValues {
		target := inf.ChannelWeights[i].Add(inf.ChannelBoosts[i])
		inf.ChannelValues[i] = inf.ChannelValues[i].Add(target.Sub(inf.ChannelValues[i]).Mul(fixedpoint.FromFloat32(0.1)))
	}
}

func accumulateImpacts(inf *simstate.Influencer, impacts *simstate.InfluencerImpacts) {
	weight := inf.Coherence.Mul(inf.Notoriety)
	impacts.SentimentDelta = impacts.SentimentDelta.Add(inf.SentimentWeight.Mul(weight))
	impacts.LogisticsDelta = impacts.LogisticsDelta.Add(inf.LogisticsWeight.Mul(weight))
	impacts.MoraleDelta = impacts.MoraleDelta.Add(inf.MoraleWeight.Mul(weight))
	impacts.PowerDelta = impacts.PowerDelta.Add(inf.PowerWeight.Mul(weight))
	for i := range inf.CultureResonance {
		impacts.CultureResonance[i] = impacts.CultureResonance[i].Add(inf.CultureResonance[i].Mul(weight))
	}
}

// SupportInfluencer raises notoriety by magnitude (§6.1 SupportInfluencer).
func SupportInfluencer(inf *simstate.Influencer, magnitude fixedpoint.Scalar) {
	inf.Notoriety = inf.Notoriety.Add(magnitude).Clamp(fixedpoint.Zero, fixedpoint.One)
}

// SuppressInfluencer lowers notoriety by magnitude (§6.1 SuppressInfluencer).
func SuppressInfluencer(inf *simstate.Influencer, magnitude fixedpoint.Scalar) {
	inf.Notoriety = inf.Notoriety.Sub(magnitude).Clamp(fixedpoint.Zero, fixedpoint.One)
}

// SupportInfluencerChannel boosts a single support channel (§6.1).
func SupportInfluencerChannel(inf *simstate.Influencer, channel simstate.InfluencerChannel, magnitude fixedpoint.Scalar) {
	inf.ChannelBoosts[channel] = inf.ChannelBoosts[channel].Add(magnitude)
}
