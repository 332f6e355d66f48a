package engine

import (
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/talgya/shadow-scale/internal/command"
	"github.com/talgya/shadow-scale/internal/ecs"
	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
	"github.com/talgya/shadow-scale/internal/snapshot"
	"github.com/talgya/shadow-scale/internal/subsystems"
	"github.com/talgya/shadow-scale/internal/worldconfig"
)

// Broadcaster publishes an encoded frame pair to every attached snapshot
// client. The binary payload goes to the binary listener's clients, the
// flat payload to the flat listener's (§4.12).
type Broadcaster func(binary, flat []byte)

// Simulation owns the world exclusively: no other goroutine ever mutates
// simulation state (§5). I/O reaches it only through the command queue,
// and it reaches I/O only through Broadcast and OnEvents.
type Simulation struct {
	World   *simstate.World
	Configs *worldconfig.Registry
	History *snapshot.History
	Turns   *TurnQueue
	Queue   *command.Queue

	// Broadcast publishes each tick's frames; nil disables broadcasting.
	Broadcast Broadcaster
	// OnEvents receives the tick's accumulated events after step 13, for
	// the script bridge. Nil disables dispatch.
	OnEvents func(tick uint64, events []subsystems.Event)
	// OnCommandApplied fires after each command is applied, resolving the
	// script bridge's synchronous send path. Nil disables it.
	OnCommandApplied func(cmd command.Command)

	sink *subsystems.Sink
	prev *snapshot.WorldSnapshot
}

// New builds a Simulation over a freshly spawned world.
func New(configs *worldconfig.Registry, queue *command.Queue) *Simulation {
	cfg := *configs.Simulation()
	w := simstate.New()
	ecs.Put(w.Resources, cfg)
	SpawnWorld(w, cfg)
	return &Simulation{
		World:   w,
		Configs: configs,
		History: snapshot.NewHistory(cfg.SnapshotHistoryLimit),
		Turns:   NewTurnQueue(),
		Queue:   queue,
	}
}

// Run is the simulation thread's outer loop: block on the command
// channel between ticks, apply the drained batch in receive order, and
// repeat until the queue closes (§4.2, §5). The pipeline is purely
// pull-driven; there is no implicit clock.
func (s *Simulation) Run() {
	for {
		batch := s.Queue.Recv()
		if batch == nil {
			slog.Info("command queue closed, simulation loop exiting")
			return
		}
		for _, cmd := range batch {
			s.Apply(cmd)
			if s.OnCommandApplied != nil {
				s.OnCommandApplied(cmd)
			}
		}
	}
}

// Tick returns the current simulation tick.
func (s *Simulation) Tick() uint64 {
	return ecs.MustGet[*simstate.Tick](s.World.Resources).Value
}

// RunTick executes exactly one deterministic pass of the pipeline:
// advance the tick, run the thirteen steps in declared order, then hand
// the tick's events to the observer (§4.1).
func (s *Simulation) RunTick() {
	tick := ecs.MustGet[*simstate.Tick](s.World.Resources)
	tick.Value++

	clock := ecs.MustGet[*simstate.SimClock](s.World.Resources)
	clock.Label = SimTime(tick.Value)

	grid := ecs.MustGet[*simstate.PowerGridState](s.World.Resources)
	grid.Incidents = grid.Incidents[:0]

	s.sink = &subsystems.Sink{}
	for _, st := range pipeline {
		runStep(s, st, tick.Value)
	}

	if s.OnEvents != nil && len(s.sink.Events) > 0 {
		s.OnEvents(tick.Value, s.sink.Events)
	}
}

// captureSnapshot is pipeline step 13: assemble the world into a full
// snapshot, encode both envelopes, store them in history, and broadcast
// (§4.1 step 13, §4.10, §4.11).
func (s *Simulation) captureSnapshot(tick uint64) {
	clock := ecs.MustGet[*simstate.SimClock](s.World.Resources)
	snap := snapshot.Assemble(s.World, s.Configs.Overlays(), s.tensionsFromSink(), clock.Label, tick)

	binary := snapshot.EncodeSnapshot(snap)
	flat, err := snapshot.EncodeSnapshotFlat(snap)
	if err != nil {
		slog.Warn("flat snapshot encode failed", "tick", tick, "error", err)
		return
	}

	s.History.Push(tick, binary, flat)
	s.prev = snap
	if s.Broadcast != nil {
		s.Broadcast(binary, flat)
	}
	slog.Debug("snapshot captured",
		"tick", tick,
		"binary", humanize.Bytes(uint64(len(binary))),
		"flat", humanize.Bytes(uint64(len(flat))),
	)
}

// tensionsFromSink extracts this tick's culture tension events for the
// snapshot's tensions table.
func (s *Simulation) tensionsFromSink() []snapshot.TensionUpdate {
	var tensions []snapshot.TensionUpdate
	for _, ev := range s.sink.Events {
		var kind uint8
		switch ev.Kind {
		case subsystems.EventDriftWarning:
			kind = 0
		case subsystems.EventAssimilationPush:
			kind = 1
		case subsystems.EventSchismRisk:
			kind = 2
		default:
			continue
		}
		tensions = append(tensions, snapshot.TensionUpdate{
			LayerID:   ev.Entity,
			Kind:      kind,
			Magnitude: ev.Magnitude.Raw(),
		})
	}
	return tensions
}

// Apply executes one decoded command against the world (§4.2). Every
// failure path is a log entry, never an abort: malformed or unknown
// references drop the command (§7).
func (s *Simulation) Apply(cmd command.Command) {
	switch c := cmd.(type) {
	case command.Turn:
		s.applyTurn(c)
	case command.ResetMap:
		s.applyResetMap(c)
	case command.Heat:
		s.applyHeat(c)
	case command.Orders:
		s.applyOrders(c)
	case command.Rollback:
		s.applyRollback(c)
	case command.AxisBias:
		s.applyAxisBias(c)
	case command.SupportInfluencer:
		s.adjustInfluencer(c.ID, func(inf *simstate.Influencer) {
			subsystems.SupportInfluencer(inf, fixedpoint.FromFloat32(c.Magnitude))
		})
	case command.SuppressInfluencer:
		s.adjustInfluencer(c.ID, func(inf *simstate.Influencer) {
			subsystems.SuppressInfluencer(inf, fixedpoint.FromFloat32(c.Magnitude))
		})
	case command.SupportInfluencerChannel:
		s.adjustInfluencer(c.ID, func(inf *simstate.Influencer) {
			subsystems.SupportInfluencerChannel(inf, c.Channel, fixedpoint.FromFloat32(c.Magnitude))
		})
	case command.SpawnInfluencer:
		s.applySpawnInfluencer(c)
	case command.InjectCorruption:
		ledger := ecs.MustGet[*simstate.CorruptionLedger](s.World.Resources)
		subsystems.InjectCorruption(ledger, c.Subsystem, fixedpoint.FromFloat32(c.Intensity), c.ExposureTimer)
	case command.UpdateEspionageGenerators:
		s.applyGeneratorUpdates(c)
	case command.QueueEspionageMission:
		s.applyQueueMission(c)
	case command.UpdateEspionageQueueDefaults:
		defaults := ecs.MustGet[*simstate.EspionageQueueDefaults](s.World.Resources)
		if c.ScheduledTickOffset != nil {
			defaults.ScheduledTickOffset = *c.ScheduledTickOffset
		}
		if c.TargetTier != nil {
			defaults.TargetTier = *c.TargetTier
		}
	case command.ReloadConfig:
		s.applyReloadConfig(c)
	default:
		slog.Warn("unhandled command", "type", fmt.Sprintf("%T", cmd))
	}
}

// applyTurn submits end-turn orders for every still-pending faction, then
// resolves a ready turn exactly c.Steps times (§4.2).
func (s *Simulation) applyTurn(c command.Turn) {
	for n := uint32(0); n < c.Steps; n++ {
		factions := ecs.MustGet[*simstate.FactionRegistry](s.World.Resources)
		tick := s.Tick()
		for _, f := range s.Turns.Pending(tick, factions.IDs) {
			if err := s.Turns.Submit(tick, f); err != nil {
				slog.Warn("forced end-turn submission rejected", "faction", f, "error", err)
			}
		}
		s.resolveTurn()
	}
}

// resolveTurn drains the submitted orders, applies them, and advances one
// tick (§4.3).
func (s *Simulation) resolveTurn() {
	orders := s.Turns.Drain()
	for range orders {
		// A Ready directive carries no further payload; draining it is
		// the application.
	}
	s.RunTick()
}

func (s *Simulation) applyOrders(c command.Orders) {
	factions := ecs.MustGet[*simstate.FactionRegistry](s.World.Resources)
	known := false
	for _, f := range factions.IDs {
		if f == c.FactionID {
			known = true
			break
		}
	}
	if !known {
		slog.Warn("orders from unknown faction", "faction", c.FactionID)
		return
	}
	tick := s.Tick()
	if err := s.Turns.Submit(tick, c.FactionID); err != nil {
		slog.Warn("order submission rejected", "faction", c.FactionID, "tick", tick, "error", err)
		return
	}
	if s.Turns.Ready(tick, factions.IDs) {
		s.resolveTurn()
	}
}

func (s *Simulation) applyHeat(c command.Heat) {
	tile, ok := s.World.Tiles.Get(ecs.EntityID(c.Entity))
	if !ok {
		slog.Warn("heat command for missing entity", "entity", c.Entity)
		return
	}
	tile.Temperature = tile.Temperature.Add(fixedpoint.FromRaw(c.DeltaRaw))
}

func (s *Simulation) applyResetMap(c command.ResetMap) {
	cfg := *s.Configs.Simulation()
	if c.Width == 0 || c.Height == 0 {
		slog.Warn("reset map rejected: zero dimensions", "width", c.Width, "height", c.Height)
		return
	}
	if int(c.Width) == cfg.GridWidth && int(c.Height) == cfg.GridHeight {
		slog.Warn("reset map rejected: dimensions unchanged", "width", c.Width, "height", c.Height)
		return
	}
	cfg.GridWidth, cfg.GridHeight = int(c.Width), int(c.Height)
	s.Configs.SetSimulation(cfg)
	ecs.Put(s.World.Resources, cfg)

	s.World.Reset()
	s.resetTelemetry()
	SpawnWorld(s.World, cfg)

	tick := ecs.MustGet[*simstate.Tick](s.World.Resources)
	tick.Value = 0
	s.History.Reset()
	s.prev = nil
	s.Turns = NewTurnQueue()
	slog.Info("map reset", "width", c.Width, "height", c.Height)
}

// applyRollback restores the world from the stored snapshot entry with
// matching tick, resets telemetry, and re-broadcasts the entry so every
// client resynchronizes from a known-good frame (§4.11).
func (s *Simulation) applyRollback(c command.Rollback) {
	entry, ok := s.History.Get(c.Tick)
	if !ok {
		slog.Warn("rollback target tick not in history", "tick", c.Tick)
		return
	}
	snap, err := snapshot.DecodeSnapshot(entry.Binary)
	if err != nil {
		slog.Warn("rollback snapshot undecodable", "tick", c.Tick, "error", err)
		return
	}

	snapshot.ApplyToWorld(s.World, snap)
	BuildPowerTopology(s.World, *s.Configs.Simulation())
	s.resetTelemetry()

	tick := ecs.MustGet[*simstate.Tick](s.World.Resources)
	tick.Value = c.Tick
	clock := ecs.MustGet[*simstate.SimClock](s.World.Resources)
	clock.Label = snap.ClockLabel

	s.History.TruncateAfter(c.Tick)
	s.prev = snap
	s.Turns = NewTurnQueue()

	if s.Broadcast != nil {
		s.Broadcast(entry.Binary, entry.Flat)
	}
	slog.Info("rolled back", "tick", c.Tick)
}

// resetTelemetry discards in-flight gauge and incident state; the command
// channel is untouched (§7 "a rollback discards in-flight telemetry but
// preserves the command channel").
func (s *Simulation) resetTelemetry() {
	ecs.Put(s.World.Resources, simstate.NewCrisisTelemetry())
	ecs.Put(s.World.Resources, simstate.NewTradeTelemetry())
	grid := ecs.MustGet[*simstate.PowerGridState](s.World.Resources)
	grid.Incidents = nil
	impacts := ecs.MustGet[*simstate.InfluencerImpacts](s.World.Resources)
	*impacts = simstate.InfluencerImpacts{}
}

func (s *Simulation) applyAxisBias(c command.AxisBias) {
	if c.Axis >= 4 || c.Value < -1 || c.Value > 1 {
		slog.Warn("axis bias rejected", "axis", c.Axis, "value", c.Value)
		return
	}
	bias := ecs.MustGet[*simstate.SentimentBias](s.World.Resources)
	bias.Axes[c.Axis] = fixedpoint.FromFloat32(c.Value).Clamp(fixedpoint.FromInt(-1), fixedpoint.One)

	var axes [4]int64
	for i := range bias.Axes {
		axes[i] = bias.Axes[i].Raw()
	}
	s.broadcastDelta(&snapshot.Delta{Tick: s.Tick(), SentimentAxes: &axes})
}

// adjustInfluencer applies fn to the influencer with the given wire id
// and broadcasts a single-influencer delta (§4.2).
func (s *Simulation) adjustInfluencer(id uint32, fn func(*simstate.Influencer)) {
	inf, ok := s.World.Influencers.Get(ecs.EntityID(id))
	if !ok {
		slog.Warn("influencer command for unknown id", "id", id)
		return
	}
	fn(inf)
	s.broadcastInfluencerDelta(ecs.EntityID(id), inf)
}

func (s *Simulation) applySpawnInfluencer(c command.SpawnInfluencer) {
	scope := simstate.ScopeLocal
	if c.Scope != nil {
		scope = *c.Scope
	}
	id := s.World.IDs.Next()
	inf := &simstate.Influencer{
		ID:        id,
		Name:      fmt.Sprintf("influencer-%d", id),
		Scope:     scope,
		Status:    simstate.InfluencerPotential,
		Notoriety: fixedpoint.FromFloat32(0.25),
		Coherence: fixedpoint.FromFloat32(0.5),
	}
	if scope == simstate.ScopeGeneration && c.Generation != nil {
		gen := *c.Generation
		inf.GenerationScope = &gen
		inf.AudienceGenerations = []uint32{gen}
	}
	s.World.Influencers.Set(id, inf)
	slog.Info("influencer spawned", "id", uint64(id), "scope", scope)
	s.broadcastInfluencerDelta(id, inf)
}

// broadcastInfluencerDelta publishes a minimal delta carrying just the
// one changed influencer.
func (s *Simulation) broadcastInfluencerDelta(id ecs.EntityID, inf *simstate.Influencer) {
	u := snapshot.InfluencerUpdate{
		ID:              uint64(id),
		Name:            inf.Name,
		Scope:           uint8(inf.Scope),
		Domains:         uint8(inf.Domains),
		SentimentWeight: inf.SentimentWeight.Raw(),
		LogisticsWeight: inf.LogisticsWeight.Raw(),
		MoraleWeight:    inf.MoraleWeight.Raw(),
		PowerWeight:     inf.PowerWeight.Raw(),
		Notoriety:       inf.Notoriety.Raw(),
		Coherence:       inf.Coherence.Raw(),
		Status:          uint8(inf.Status),
		TicksInStatus:   inf.TicksInStatus,
	}
	if inf.GenerationScope != nil {
		gen := *inf.GenerationScope
		u.GenerationScope = &gen
	}
	u.AudienceGenerations = append(u.AudienceGenerations, inf.AudienceGenerations...)
	for i := range inf.ChannelWeights {
		u.ChannelWeights[i] = inf.ChannelWeights[i].Raw()
		u.ChannelValues[i] = inf.ChannelValues[i].Raw()
		u.ChannelBoosts[i] = inf.ChannelBoosts[i].Raw()
	}
	for i := range inf.CultureResonance {
		u.CultureResonance[i] = inf.CultureResonance[i].Raw()
	}
	s.broadcastDelta(&snapshot.Delta{Tick: s.Tick(), Influencers: []snapshot.InfluencerUpdate{u}})
}

func (s *Simulation) broadcastDelta(d *snapshot.Delta) {
	if s.Broadcast == nil {
		return
	}
	binary := snapshot.EncodeDelta(d)
	flat, err := snapshot.EncodeDeltaFlat(d)
	if err != nil {
		slog.Warn("flat delta encode failed", "tick", d.Tick, "error", err)
		return
	}
	s.Broadcast(binary, flat)
}

func (s *Simulation) applyGeneratorUpdates(c command.UpdateEspionageGenerators) {
	settings := ecs.MustGet[*simstate.EspionageGeneratorSettings](s.World.Resources)
	for _, u := range c.Updates {
		setting, ok := settings.ByTemplate[u.TemplateID]
		if !ok {
			setting = &simstate.EspionageGeneratorSetting{Enabled: true, PerFaction: 1}
			settings.ByTemplate[u.TemplateID] = setting
		}
		if u.Enabled != nil {
			setting.Enabled = *u.Enabled
		}
		if u.PerFaction != nil {
			setting.PerFaction = *u.PerFaction
		}
	}
}

func (s *Simulation) applyQueueMission(c command.QueueEspionageMission) {
	catalog := ecs.MustGet[*simstate.EspionageCatalog](s.World.Resources)
	roster := ecs.MustGet[*simstate.EspionageRoster](s.World.Resources)
	missions := ecs.MustGet[*simstate.EspionageMissionState](s.World.Resources)
	defaults := ecs.MustGet[*simstate.EspionageQueueDefaults](s.World.Resources)

	tier := defaults.TargetTier
	if c.TargetTier != nil {
		tier = *c.TargetTier
	}
	scheduled := s.Tick() + defaults.ScheduledTickOffset
	if c.ScheduledTick != nil {
		scheduled = *c.ScheduledTick
	}

	err := subsystems.QueueMission(catalog, roster, missions, simstate.QueuedMission{
		MissionID:     c.MissionID,
		Template:      c.MissionID,
		Owner:         c.OwnerFaction,
		TargetOwner:   c.TargetOwnerFaction,
		DiscoveryID:   c.DiscoveryID,
		AgentHandle:   c.AgentHandle,
		TargetTier:    tier,
		ScheduledTick: scheduled,
	})
	if err != nil {
		slog.Warn("espionage mission rejected", "mission", c.MissionID, "error", err)
	}
}

func (s *Simulation) applyReloadConfig(c command.ReloadConfig) {
	var kind worldconfig.Kind
	switch c.Kind {
	case command.ReloadSimulation:
		kind = worldconfig.KindSimulation
	case command.ReloadTurnPipeline:
		kind = worldconfig.KindTurnPipeline
	case command.ReloadSnapshotOverlays:
		kind = worldconfig.KindSnapshotOverlays
	default:
		slog.Warn("reload config rejected: unknown kind", "kind", c.Kind)
		return
	}
	if err := s.Configs.Reload(kind, c.Path); err != nil {
		slog.Warn("config reload failed", "kind", c.Kind, "path", c.Path, "error", err)
		return
	}
	if kind == worldconfig.KindSimulation {
		ecs.Put(s.World.Resources, *s.Configs.Simulation())
	}
	slog.Info("config reloaded", "kind", c.Kind, "path", c.Path)
}
