package subsystems

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/hashutil"
	"github.com/talgya/shadow-scale/internal/simstate"
)

// espionageNamespace seeds uuid.NewSHA1 so generator-expanded agent/mission
// handles are deterministic content hashes rather than random uuids,
// keeping runs replayable while still getting a collision-free external
// handle format.
var espionageNamespace = uuid.MustParse("6c7e6a9e-6fd6-4e58-9f2e-3f6c2f9a9b41")

// Errors returned by mission-queue validation (§4.5, §7 policy rejection).
var (
	ErrUnknownMission  = errors.New("espionage: unknown mission template")
	ErrUnknownAgent    = errors.New("espionage: unknown agent handle")
	ErrAgentOccupied   = errors.New("espionage: agent already assigned")
	ErrTierMismatch    = errors.New("espionage: target tier below template guard")
)

// ExpandMissionGenerator deterministically expands a mission template id
// into count variants, seeded by FNV-1a(baseID) XOR a per-variant offset,
// with handles minted via uuid.NewSHA1 over the same seed material (§4.5).
func ExpandMissionGenerator(catalog *simstate.EspionageCatalog, base *simstate.MissionTemplate, count int) []*simstate.MissionTemplate {
	out := make([]*simstate.MissionTemplate, 0, count)
	for i := 0; i < count; i++ {
		seed := hashutil.SeedFor(base.ID, uint64(i))
		variant := *base
		variant.ID = variantID(base.ID, seed)
		catalog.MissionTemplates[variant.ID] = &variant
		out = append(out, &variant)
	}
	return out
}

// ExpandAgentGenerator is the agent-template analogue of
// ExpandMissionGenerator (§4.5).
func ExpandAgentGenerator(catalog *simstate.EspionageCatalog, base *simstate.AgentTemplate, count int) []*simstate.AgentTemplate {
	out := make([]*simstate.AgentTemplate, 0, count)
	for i := 0; i < count; i++ {
		seed := hashutil.SeedFor(base.ID, uint64(i))
		variant := *base
		variant.ID = variantID(base.ID, seed)
		catalog.AgentTemplates[variant.ID] = &variant
		out = append(out, &variant)
	}
	return out
}

func variantID(baseID string, seed uint64) string {
	name := baseID
	for i := 0; i < 8; i++ {
		name += string(rune('a' + (seed>>(uint(i)*8))&0xF))
	}
	return uuid.NewSHA1(espionageNamespace, []byte(name)).String()
}

// SeedRoster stamps faction with one of each handcrafted template plus the
// per-faction count of each generator variant already present in catalog
// (§4.5). Handles fold the faction id into the hash so two factions'
// seats never collide.
func SeedRoster(roster *simstate.EspionageRoster, catalog *simstate.EspionageCatalog, faction uint32) {
	names := make([]string, 0, len(catalog.AgentTemplates))
	for name := range catalog.AgentTemplates {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, tmplID := range names {
		handle := uuid.NewSHA1(espionageNamespace, []byte(fmt.Sprintf("%s|faction-%d", tmplID, faction))).String()
		roster.Agents[handle] = &simstate.AgentInstance{
			Handle:   handle,
			Template: tmplID,
			Faction:  faction,
			Status:   simstate.AgentAvailable,
		}
	}
}

// QueueMission validates and enqueues a mission request, rejecting unknown
// mission/agent, an occupied agent, or a tier mismatch (§4.5).
func QueueMission(catalog *simstate.EspionageCatalog, roster *simstate.EspionageRoster, state *simstate.EspionageMissionState, req simstate.QueuedMission) error {
	tmpl, ok := catalog.MissionTemplates[req.Template]
	if !ok {
		return ErrUnknownMission
	}
	agent, ok := roster.Agents[req.AgentHandle]
	if !ok {
		return ErrUnknownAgent
	}
	if agent.Status != simstate.AgentAvailable {
		return ErrAgentOccupied
	}
	if tmpl.TierGuard > 0 && req.TargetTier < tmpl.TierGuard {
		return ErrTierMismatch
	}

	agent.Status = simstate.AgentAssigned
	agent.MissionID = req.MissionID
	req.TicksRemaining = tmpl.ResolutionTicks
	state.Queue[req.MissionID] = &req
	return nil
}

// EspionageResolve is pipeline step 10's second half: for every scheduled
// mission at tick>=scheduled_tick, decrement ticks_remaining and, at zero,
// compute success and emit the corresponding probe/sweep event (§4.1 step
// 10, §4.5).
func EspionageResolve(
	catalog *simstate.EspionageCatalog,
	roster *simstate.EspionageRoster,
	state *simstate.EspionageMissionState,
	ledger *simstate.KnowledgeLedger,
	tick uint64,
	sink *Sink,
) {
	ids := make([]string, 0, len(state.Queue))
	for id := range state.Queue {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		mission := state.Queue[id]
		if tick < mission.ScheduledTick {
			continue
		}
		if !mission.Started {
			mission.Started = true
		} else if mission.TicksRemaining > 0 {
			mission.TicksRemaining--
		}
		if mission.TicksRemaining > 0 {
			continue
		}

		tmpl, okT := catalog.MissionTemplates[mission.Template]
		agent, okA := roster.Agents[mission.AgentHandle]
		if okT && okA {
			agentTmpl := catalog.AgentTemplates[agent.Template]
			if agentTmpl == nil {
				agentTmpl = &simstate.AgentTemplate{}
			}
			resolveMission(tmpl, agentTmpl, mission, ledger, tick, sink)
		}
		if okA {
			agent.Status = simstate.AgentAvailable
			agent.MissionID = ""
		}
		delete(state.Queue, id)
	}
}

func resolveMission(tmpl *simstate.MissionTemplate, agent *simstate.AgentTemplate, mission *simstate.QueuedMission, ledger *simstate.KnowledgeLedger, tick uint64, sink *Sink) {
	key := simstate.KnowledgeOwnerDiscovery{OwnerFaction: mission.TargetOwner, DiscoveryID: mission.DiscoveryID}
	entry := ledger.Entries[key]
	securityPenalty := fixedpoint.Zero
	suspicionPenalty := fixedpoint.Zero
	if entry != nil {
		securityPenalty = entry.SecurityPosture
		for _, inf := range entry.Infiltrations {
			suspicionPenalty = suspicionPenalty.Add(inf.Suspicion)
		}
	}

	switch tmpl.Kind {
	case simstate.MissionProbe:
		resolveProbe(tmpl, agent, mission, entry, securityPenalty, suspicionPenalty, tick, sink)
	case simstate.MissionCounterIntel:
		resolveCounterIntel(tmpl, agent, mission, entry, securityPenalty, tick, sink)
	}
}

func resolveProbe(tmpl *simstate.MissionTemplate, agent *simstate.AgentTemplate, mission *simstate.QueuedMission, entry *simstate.KnowledgeEntry, securityPenalty, suspicionPenalty fixedpoint.Scalar, tick uint64, sink *Sink) {
	success := tmpl.BaseSuccess.
		Add(agent.Stealth.Mul(tmpl.WeightStealth)).
		Add(agent.Recon.Mul(tmpl.WeightRecon)).
		Sub(securityPenalty).
		Sub(suspicionPenalty)

	threshold := tmpl.SuccessThreshold
	if threshold.IsZero() {
		threshold = fixedpoint.FromFloat32(0.5)
	}
	margin := tmpl.PartialMargin

	switch {
	case success.Gte(threshold):
		if entry != nil {
			entry.Infiltrations = append(entry.Infiltrations, simstate.Infiltration{
				AgentHandle: mission.AgentHandle,
				Suspicion:   tmpl.SuspicionOnSuccess,
				Fidelity:    tmpl.FidelityGain,
				Cells:       1,
			})
		}
		sink.Emit(Event{
			Kind: EventEspionageProbe, Tick: tick,
			OwnerFaction: mission.Owner, TargetFaction: mission.TargetOwner,
			DiscoveryID: mission.DiscoveryID, Magnitude: tmpl.FidelityGain,
			Detail: "success",
		})
	case success.Add(margin).Gte(threshold):
		scaled := tmpl.FidelityGain.Mul(tmpl.PartialScale)
		suspicionScale := tmpl.PartialSuspicionScale
		if suspicionScale.IsZero() {
			suspicionScale = tmpl.PartialScale
		}
		if entry != nil {
			entry.Infiltrations = append(entry.Infiltrations, simstate.Infiltration{
				AgentHandle: mission.AgentHandle,
				Suspicion:   tmpl.SuspicionOnSuccess.Mul(suspicionScale),
				Fidelity:    scaled,
				Cells:       1,
			})
		}
		sink.Emit(Event{
			Kind: EventEspionageProbe, Tick: tick,
			OwnerFaction: mission.Owner, TargetFaction: mission.TargetOwner,
			DiscoveryID: mission.DiscoveryID, Magnitude: scaled,
			Detail: "partial",
		})
	default:
		sink.Emit(Event{
			Kind: EventEspionageProbe, Tick: tick,
			OwnerFaction: mission.Owner, TargetFaction: mission.TargetOwner,
			DiscoveryID: mission.DiscoveryID, Magnitude: tmpl.FidelityGain.Neg(),
			Detail: "failure",
		})
	}
}

func resolveCounterIntel(tmpl *simstate.MissionTemplate, agent *simstate.AgentTemplate, mission *simstate.QueuedMission, entry *simstate.KnowledgeEntry, securityPenalty fixedpoint.Scalar, tick uint64, sink *Sink) {
	success := tmpl.BaseSuccess.Add(agent.CounterIntel.Mul(tmpl.WeightCounter)).Sub(securityPenalty.Mul(fixedpoint.FromFloat32(0.5)))
	threshold := tmpl.SuccessThreshold
	if threshold.IsZero() {
		threshold = fixedpoint.FromFloat32(0.5)
	}
	if success.Lt(threshold) {
		return
	}

	if entry != nil {
		entry.Countermeasures = append(entry.Countermeasures, simstate.Countermeasure{
			Kind:           tmpl.CountermeasureKind,
			Potency:        tmpl.CountermeasurePotency,
			RemainingTicks: tmpl.CountermeasureTicks,
		})
		if len(entry.Infiltrations) > 0 {
			entry.Infiltrations = entry.Infiltrations[:len(entry.Infiltrations)-1]
		}
	}

	sink.Emit(Event{
		Kind: EventCounterIntelSweep, Tick: tick,
		OwnerFaction: mission.Owner, TargetFaction: mission.TargetOwner,
		DiscoveryID: mission.DiscoveryID, Detail: tmpl.CountermeasureKind,
	})
}

// hasActiveCounterIntelSweep reports whether entry already carries a
// CounterIntelSweep-kind countermeasure, the auto-scheduler's skip gate
// (§4.5).
func hasActiveCounterIntelSweep(entry *simstate.KnowledgeEntry) bool {
	for _, cm := range entry.Countermeasures {
		if cm.Kind == "CounterIntelSweep" && cm.RemainingTicks > 0 {
			return true
		}
	}
	return false
}

// candidate holds the auto-scheduler's ranking keys for one ledger entry;
// EspionageAutoSchedule visits entries by (infiltration active, total
// suspicion, max suspicion, progress, discovery id) descending (§4.5).
type candidate struct {
	key           simstate.KnowledgeOwnerDiscovery
	hasInfil      bool
	totalSuspicion fixedpoint.Scalar
	maxSuspicion  fixedpoint.Scalar
	progress      fixedpoint.Scalar
}

// Auto-scheduler trigger thresholds per security policy. Crisis shares
// Hardened's progress bar; its special treatment is budget overdraft,
// not an always-on trigger.
var (
	lenientSuspicionThreshold = fixedpoint.FromFloat32(0.6)
	lenientProgressThreshold  = fixedpoint.FromInt(95)
	standardProgressThreshold = fixedpoint.FromInt(70)
	hardenedProgressThreshold = fixedpoint.FromInt(60)
)

func policyTriggers(policy simstate.SecurityPolicy, c candidate, tier uint8) bool {
	switch policy {
	case simstate.PolicyLenient:
		return (c.hasInfil && c.maxSuspicion.Gte(lenientSuspicionThreshold)) ||
			c.progress.Gte(lenientProgressThreshold)
	case simstate.PolicyStandard:
		return c.hasInfil || c.progress.Gte(standardProgressThreshold)
	case simstate.PolicyHardened:
		return c.hasInfil || c.progress.Gte(hardenedProgressThreshold) || tier >= 2
	case simstate.PolicyCrisis:
		return c.hasInfil || c.progress.Gte(hardenedProgressThreshold)
	default:
		return false
	}
}

// EspionageAutoSchedule is pipeline step 10's first half: rank candidate
// ledger entries with no active sweep, and for each that its owning
// faction's policy gates, reserve the best available counter-intel agent
// and deduct sweep_cost, refunding on queue rejection (§4.1 step 10, §4.5).
func EspionageAutoSchedule(
	ledger *simstate.KnowledgeLedger,
	catalog *simstate.EspionageCatalog,
	roster *simstate.EspionageRoster,
	state *simstate.EspionageMissionState,
	budgets *simstate.EspionageBudgets,
	tick uint64,
	sink *Sink,
) {
	regenBudgets(budgets)

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
	rank := func(k simstate.KnowledgeOwnerDiscovery) candidate { return buildCandidate(k, ledger.Entries[k]) }
	sort.SliceStable(keys, func(i, j int) bool {
		a, b := rank(keys[i]), rank(keys[j])
		if a.hasInfil != b.hasInfil {
			return a.hasInfil
		}
		for _, p := range [][2]fixedpoint.Scalar{{a.totalSuspicion, b.totalSuspicion}, {a.maxSuspicion, b.maxSuspicion}, {a.progress, b.progress}} {
			if !p[0].Eq(p[1]) {
				return p[0].Gt(p[1])
			}
		}
		return a.key.DiscoveryID > b.key.DiscoveryID
	})

	for _, key := range keys {
		entry := ledger.Entries[key]
		if hasActiveCounterIntelSweep(entry) {
			continue
		}
		c := buildCandidate(key, entry)
		policy := budgets.Policy[key.OwnerFaction]
		if !policyTriggers(policy, c, entry.Tier) {
			continue
		}

		agentHandle, ok := bestAvailableCounterAgent(roster, catalog, key.OwnerFaction)
		if !ok {
			continue
		}

		// Crisis is the only policy allowed to overdraw the reserve; the
		// rest must keep MinReserve intact after the spend.
		spend := budgets.SweepCost
		allow := policy == simstate.PolicyCrisis
		remaining := budgets.CounterIntelBudget[key.OwnerFaction].Sub(spend)
		if remaining.Gte(budgets.MinReserve) || allow {
			budgets.CounterIntelBudget[key.OwnerFaction] = remaining
		} else {
			continue
		}

		missionID := uuid.NewSHA1(espionageNamespace, []byte(key.DiscoveryID+agentHandle)).String()
		tmplID, ok := bestCounterIntelTemplate(catalog)
		if !ok {
			budgets.CounterIntelBudget[key.OwnerFaction] = budgets.CounterIntelBudget[key.OwnerFaction].Add(spend)
			continue
		}
		err := QueueMission(catalog, roster, state, simstate.QueuedMission{
			MissionID:     missionID,
			Template:      tmplID,
			Owner:         key.OwnerFaction,
			TargetOwner:   key.OwnerFaction,
			DiscoveryID:   key.DiscoveryID,
			AgentHandle:   agentHandle,
			TargetTier:    entry.Tier,
			ScheduledTick: tick,
		})
		if err != nil {
			// Refund: queue rejected the reservation (§4.5, §7 policy
			// rejection "on budget shortfall any partial spend is refunded").
			budgets.CounterIntelBudget[key.OwnerFaction] = budgets.CounterIntelBudget[key.OwnerFaction].Add(spend)
		}
	}
}

// regenBudgets tops every faction's counter-intel reserve up by the
// per-tick regeneration, capped at MaxReserve. Disabled when either
// tuning is zero.
func regenBudgets(budgets *simstate.EspionageBudgets) {
	if budgets.RegenPerTick.Lte(fixedpoint.Zero) || budgets.MaxReserve.Lte(fixedpoint.Zero) {
		return
	}
	factions := make([]uint32, 0, len(budgets.CounterIntelBudget))
	for f := range budgets.CounterIntelBudget {
		factions = append(factions, f)
	}
	sort.Slice(factions, func(i, j int) bool { return factions[i] < factions[j] })
	for _, f := range factions {
		topped := budgets.CounterIntelBudget[f].Add(budgets.RegenPerTick)
		budgets.CounterIntelBudget[f] = fixedpoint.Min(topped, budgets.MaxReserve)
	}
}

func buildCandidate(key simstate.KnowledgeOwnerDiscovery, entry *simstate.KnowledgeEntry) candidate {
	c := candidate{key: key, progress: entry.ProgressPercent}
	for _, inf := range entry.Infiltrations {
		c.hasInfil = true
		c.totalSuspicion = c.totalSuspicion.Add(inf.Suspicion)
		if inf.Suspicion.Gt(c.maxSuspicion) {
			c.maxSuspicion = inf.Suspicion
		}
	}
	return c
}

func bestAvailableCounterAgent(roster *simstate.EspionageRoster, catalog *simstate.EspionageCatalog, faction uint32) (string, bool) {
	handles := make([]string, 0)
	for h := range roster.Agents {
		handles = append(handles, h)
	}
	sort.Strings(handles)

	best := ""
	bestCounter := fixedpoint.Scalar{}
	found := false
	for _, h := range handles {
		agent := roster.Agents[h]
		if agent.Faction != faction || agent.Status != simstate.AgentAvailable {
			continue
		}
		tmpl, ok := catalog.AgentTemplates[agent.Template]
		if !ok || tmpl.CounterIntel.IsZero() {
			continue
		}
		if !found || tmpl.CounterIntel.Gt(bestCounter) {
			best, bestCounter, found = h, tmpl.CounterIntel, true
		}
	}
	return best, found
}

func bestCounterIntelTemplate(catalog *simstate.EspionageCatalog) (string, bool) {
	ids := make([]string, 0, len(catalog.MissionTemplates))
	for id, tmpl := range catalog.MissionTemplates {
		if tmpl.Kind == simstate.MissionCounterIntel {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", false
	}
	sort.Strings(ids)
	return ids[0], true
}
