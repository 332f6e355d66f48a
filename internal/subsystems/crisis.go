package subsystems

import (
	"math"
	"math/rand"
	"sort"

	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/hashutil"
	"github.com/talgya/shadow-scale/internal/simstate"
)

// CrisisAdvance is pipeline step 8: seed pending spawns into active
// crises, grow and age every active crisis, rebuild the overlay raster,
// and update telemetry gauges (§4.1 step 8, §4.7).
func CrisisAdvance(state *simstate.CrisisState, catalog *simstate.CrisisCatalog, telemetry *simstate.CrisisTelemetry, gridW, gridH int, tick uint64, sink *Sink) {
	autoSeed(state, catalog, tick)
	seedPendingSpawns(state, catalog, gridW, gridH, tick)

	for _, crisis := range state.Active {
		archetype, ok := catalog.Archetypes[crisis.Archetype]
		if !ok {
			// Soft failure: archetype removed from catalog after the
			// crisis was seeded (§7 "crisis archetype unknown").
			continue
		}
		growCrisis(crisis, archetype)
		ageCooldowns(crisis)
		checkIncidents(crisis, archetype, tick, sink)
		updateGauges(crisis, archetype, telemetry, tick)
	}

	state.Overlay = rebuildOverlay(state, gridW, gridH)
}

// autoSeed queues a new pending spawn whenever the catalog's auto-seed
// interval elapses, picking an archetype from the canonically sorted names
// by a hash of the tick (not a round-robin cycle). An interval of zero
// disables auto-seeding.
func autoSeed(state *simstate.CrisisState, catalog *simstate.CrisisCatalog, tick uint64) {
	if catalog.AutoSeedIntervalTicks == 0 {
		return
	}
	state.TicksSinceAutoSeed++
	if state.TicksSinceAutoSeed < catalog.AutoSeedIntervalTicks {
		return
	}
	state.TicksSinceAutoSeed = 0
	names := sortedArchetypeNames(catalog)
	if len(names) == 0 {
		return
	}
	pick := names[int(hashutil.SeedFor("crisis-autoseed", tick)%uint64(len(names)))]
	state.Pending = append(state.Pending, simstate.PendingCrisisSpawn{Archetype: pick})
}

// seedPendingSpawns materializes queued crisis spawns into active
// crises, each seeded with a clustered hotspot group drawn from a
// deterministic RNG over the grid (§4.7).
func seedPendingSpawns(state *simstate.CrisisState, catalog *simstate.CrisisCatalog, gridW, gridH int, tick uint64) {
	if len(state.Pending) == 0 {
		return
	}
	for _, pending := range state.Pending {
		archetype, ok := catalog.Archetypes[pending.Archetype]
		if !ok {
			continue
		}
		rng := rand.New(rand.NewSource(int64(hashutil.SeedFor(pending.Archetype, state.NextID^tick))))

		hotspots := generateHotspots(rng, archetype, gridW, gridH)

		crisis := &simstate.ActiveCrisis{
			ID:          state.NextID,
			Archetype:   pending.Archetype,
			Intensity:   fixedpoint.FromFloat32(0.05),
			Hotspots:    hotspots,
			SpawnedTick: tick,
		}
		state.NextID++
		state.Active = append(state.Active, crisis)
	}
	state.Pending = state.Pending[:0]
}

// generateHotspots places one primary hotspot anywhere on the grid plus
// one or two clustered ones within four tiles of it; the primary carries
// a larger radius band than its satellites. Archetype radius bounds,
// when set, override the default bands; the hotspot count is capped at the
// archetype's MaxHotspots (3 when unset). MinHotspots is not consulted.
func generateHotspots(rng *rand.Rand, archetype *simstate.CrisisArchetype, gridW, gridH int) []simstate.Hotspot {
	primaryMin, primaryMax := fixedpoint.FromFloat32(2.0), fixedpoint.FromFloat32(4.5)
	satelliteMin, satelliteMax := fixedpoint.FromFloat32(1.5), fixedpoint.FromFloat32(3.5)
	if !archetype.MinRadius.IsZero() || !archetype.MaxRadius.IsZero() {
		primaryMin, primaryMax = archetype.MinRadius, archetype.MaxRadius
		satelliteMin, satelliteMax = archetype.MinRadius, archetype.MaxRadius
	}

	cx := rng.Intn(gridW)
	cy := rng.Intn(gridH)
	hotspots := []simstate.Hotspot{{
		X: int32(cx), Y: int32(cy),
		Radius: radiusIn(rng, primaryMin, primaryMax),
	}}

	additional := 1 + rng.Intn(2)
	maxHot := archetype.MaxHotspots
	if maxHot <= 0 {
		maxHot = 3
	}
	if len(hotspots)+additional > maxHot {
		additional = maxHot - len(hotspots)
	}
	for i := 0; i < additional; i++ {
		x := clampCoord(cx+rng.Intn(9)-4, gridW)
		y := clampCoord(cy+rng.Intn(9)-4, gridH)
		hotspots = append(hotspots, simstate.Hotspot{
			X: int32(x), Y: int32(y),
			Radius: radiusIn(rng, satelliteMin, satelliteMax),
		})
	}
	return hotspots
}

func radiusIn(rng *rand.Rand, lo, hi fixedpoint.Scalar) fixedpoint.Scalar {
	span := hi.Sub(lo)
	return lo.Add(span.Mul(fixedpoint.FromFloat32(rng.Float32())))
}

func clampCoord(v, limit int) int {
	if v < 0 {
		return 0
	}
	if v >= limit {
		return limit - 1
	}
	return v
}

// growCrisis advances intensity by base_growth + incident_acceleration *
// intensity, clamped to [0,1] (§4.7).
func growCrisis(crisis *simstate.ActiveCrisis, archetype *simstate.CrisisArchetype) {
	growth := archetype.BaseGrowth.Add(archetype.IncidentAccel.Mul(crisis.Intensity))
	crisis.Intensity = crisis.Intensity.Add(growth).Clamp(fixedpoint.Zero, fixedpoint.One)
}

func ageCooldowns(crisis *simstate.ActiveCrisis) {
	for i := range crisis.Cooldowns {
		if crisis.Cooldowns[i].TicksRemaining > 0 {
			crisis.Cooldowns[i].TicksRemaining--
		}
	}
}

// checkIncidents fires incident annotations when intensity passes a
// template's severity threshold and its per-template cooldown has elapsed.
func checkIncidents(crisis *simstate.ActiveCrisis, archetype *simstate.CrisisArchetype, tick uint64, sink *Sink) {
	for _, tmpl := range archetype.Incidents {
		if crisis.Intensity.Lt(tmpl.SeverityThreshold) {
			continue
		}
		if cooldownActive(crisis, tmpl.Name) {
			continue
		}
		crisis.Cooldowns = appendCooldown(crisis.Cooldowns, tmpl.Name, tmpl.CooldownTicks)
		sink.Emit(Event{
			Kind:      EventCrisisIncident,
			Tick:      tick,
			Entity:    crisis.ID,
			Magnitude: crisis.Intensity,
			Detail:    archetype.Kind + ":" + tmpl.Name,
		})
	}
}

func cooldownActive(crisis *simstate.ActiveCrisis, name string) bool {
	for _, c := range crisis.Cooldowns {
		if c.Name == name && c.TicksRemaining > 0 {
			return true
		}
	}
	return false
}

func appendCooldown(cooldowns []simstate.IncidentCooldown, name string, ticks uint32) []simstate.IncidentCooldown {
	for i := range cooldowns {
		if cooldowns[i].Name == name {
			cooldowns[i].TicksRemaining = ticks
			return cooldowns
		}
	}
	return append(cooldowns, simstate.IncidentCooldown{Name: name, TicksRemaining: ticks})
}

// updateGauges folds r0/grid-stress/queue-pressure/swarm/phage samples
// (weighted per archetype) into the shared telemetry gauges, classifying
// severity bands on EMA crossing (§4.7).
func updateGauges(crisis *simstate.ActiveCrisis, archetype *simstate.CrisisArchetype, telemetry *simstate.CrisisTelemetry, tick uint64) {
	samples := map[string]fixedpoint.Scalar{
		"r0":            crisis.Intensity.Mul(archetype.R0Weight),
		"grid_stress":   crisis.Intensity.Mul(archetype.GridStressWeight),
		"queue_pressure": crisis.Intensity.Mul(archetype.QueuePressureWeight),
		"swarms":        crisis.Intensity.Mul(archetype.SwarmWeight),
		"phage":         crisis.Intensity.Mul(archetype.PhageWeight),
	}
	for name, sample := range samples {
		key := archetype.Kind + ":" + name
		gauge, ok := telemetry.Gauges[key]
		if !ok {
			gauge = &simstate.TelemetryGauge{Alpha: fixedpoint.FromFloat32(0.2), Capacity: 32}
			telemetry.Gauges[key] = gauge
		}
		ema := gauge.Update(sample)
		classifyBand(gauge, ema)
	}
}

func classifyBand(gauge *simstate.TelemetryGauge, ema fixedpoint.Scalar) {
	var band string
	switch {
	case ema.Gte(fixedpoint.FromFloat32(0.75)):
		band = "severe"
	case ema.Gte(fixedpoint.FromFloat32(0.4)):
		band = "elevated"
	default:
		band = "nominal"
	}
	gauge.Band = band
}

// rebuildOverlay sums per-crisis 2-D Gaussians centered on each hotspot
// into a single raster, normalized so the overall peak sample is <=1
// (§4.7).
func rebuildOverlay(state *simstate.CrisisState, w, h int) *simstate.ScalarRaster {
	raster := simstate.NewScalarRaster(w, h)
	peak := fixedpoint.Zero

	for _, crisis := range state.Active {
		for _, hot := range crisis.Hotspots {
			radius := hot.Radius.Float32()
			if radius <= 0 {
				continue
			}
			// Sigma widens with intensity so a maturing crisis bleeds
			// further past its hotspots, floored so point crises still
			// render.
			sigma := radius * (0.5 + crisis.Intensity.Float32())
			if sigma < 1.2 {
				sigma = 1.2
			}
			twoSigmaSq := 2 * sigma * sigma
			minX, maxX := clampRange(int(hot.X)-int(sigma*3), w)
			minY, maxY := clampRange(int(hot.Y)-int(sigma*3), h)
			spanX := int(sigma * 6)
			spanY := int(sigma * 6)
			for y := minY; y <= maxY && y <= minY+spanY; y++ {
				for x := minX; x <= maxX && x <= minX+spanX; x++ {
					dx := float64(x) - float64(hot.X)
					dy := float64(y) - float64(hot.Y)
					g := math.Exp(-(dx*dx + dy*dy) / float64(twoSigmaSq))
					sample := crisis.Intensity.Mul(fixedpoint.FromFloat32(float32(g)))
					cur := raster.At(x, y).Add(sample)
					raster.Set(x, y, cur)
					if cur.Gt(peak) {
						peak = cur
					}
				}
			}
		}
	}

	if peak.Gt(fixedpoint.One) {
		for i, s := range raster.Samples {
			raster.Samples[i] = s.Div(peak)
		}
	}
	return raster
}

func clampRange(v, limit int) (int, int) {
	if v < 0 {
		v = 0
	}
	if v >= limit {
		v = limit - 1
	}
	return v, limit - 1
}

// sortedArchetypeNames returns catalog archetype keys in canonical order,
// used wherever crisis iteration must not depend on Go's randomized map
// order (§4.1 tie-break rule).
func sortedArchetypeNames(catalog *simstate.CrisisCatalog) []string {
	names := make([]string, 0, len(catalog.Archetypes))
	for name := range catalog.Archetypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
