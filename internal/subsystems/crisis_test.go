package subsystems

import (
	"reflect"
	"testing"

	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
)

func crisisFixture() (*simstate.CrisisState, *simstate.CrisisCatalog, *simstate.CrisisTelemetry) {
	catalog := simstate.NewCrisisCatalog()
	catalog.Archetypes["blight"] = &simstate.CrisisArchetype{
		Kind:          "blight",
		BaseGrowth:    fixedpoint.FromFloat32(0.1),
		IncidentAccel: fixedpoint.FromFloat32(0.05),
		R0Weight:      fixedpoint.FromFloat32(0.8),
		Incidents: []simstate.IncidentTemplate{
			{Name: "outbreak", SeverityThreshold: fixedpoint.FromFloat32(0.2), CooldownTicks: 5},
		},
		MinHotspots: 1, MaxHotspots: 3,
		MinRadius: fixedpoint.FromFloat32(1.5), MaxRadius: fixedpoint.FromFloat32(4.5),
	}
	return simstate.NewCrisisState(), catalog, simstate.NewCrisisTelemetry()
}

func TestCrisisSeedingIsDeterministic(t *testing.T) {
	seed := func() []simstate.Hotspot {
		state, catalog, telemetry := crisisFixture()
		state.Pending = append(state.Pending, simstate.PendingCrisisSpawn{Archetype: "blight"})
		CrisisAdvance(state, catalog, telemetry, 16, 16, 3, &Sink{})
		if len(state.Active) != 1 {
			t.Fatalf("expected one active crisis, got %d", len(state.Active))
		}
		return state.Active[0].Hotspots
	}
	a, b := seed(), seed()
	if !reflect.DeepEqual(a, b) {
		t.Fatal("hotspot placement must be a pure function of the seed inputs")
	}
	for _, h := range a {
		if h.Radius.Lt(fixedpoint.FromFloat32(1.5)) || h.Radius.Gt(fixedpoint.FromFloat32(4.5)) {
			t.Fatalf("hotspot radius %d outside [1.5,4.5]", h.Radius.Raw())
		}
		if h.X < 0 || h.X >= 16 || h.Y < 0 || h.Y >= 16 {
			t.Fatalf("hotspot (%d,%d) off grid", h.X, h.Y)
		}
	}
	if len(a) < 1 || len(a) > 3 {
		t.Fatalf("hotspot count %d outside archetype bounds", len(a))
	}
}

func TestCrisisGrowthClampAndOverlayPeak(t *testing.T) {
	state, catalog, telemetry := crisisFixture()
	state.Pending = append(state.Pending, simstate.PendingCrisisSpawn{Archetype: "blight"})

	for tick := uint64(1); tick <= 40; tick++ {
		CrisisAdvance(state, catalog, telemetry, 16, 16, tick, &Sink{})
	}

	crisis := state.Active[0]
	if crisis.Intensity.Gt(fixedpoint.One) {
		t.Fatalf("intensity %d exceeds clamp", crisis.Intensity.Raw())
	}
	if state.Overlay == nil {
		t.Fatal("overlay raster must be rebuilt each tick")
	}
	for _, s := range state.Overlay.Samples {
		if s.Gt(fixedpoint.One) {
			t.Fatalf("overlay sample %d above normalized peak", s.Raw())
		}
	}
}

func TestCrisisIncidentCooldown(t *testing.T) {
	state, catalog, telemetry := crisisFixture()
	state.Pending = append(state.Pending, simstate.PendingCrisisSpawn{Archetype: "blight"})

	sink := &Sink{}
	for tick := uint64(1); tick <= 6; tick++ {
		CrisisAdvance(state, catalog, telemetry, 16, 16, tick, sink)
	}
	incidents := 0
	for _, ev := range sink.Events {
		if ev.Kind == EventCrisisIncident {
			incidents++
		}
	}
	// Threshold crossed around tick 2; the 5-tick cooldown allows at most
	// two firings in six ticks.
	if incidents == 0 || incidents > 2 {
		t.Fatalf("expected 1-2 incidents under cooldown, got %d", incidents)
	}
}

func TestCrisisUnknownArchetypeIsSoftFailure(t *testing.T) {
	state, catalog, telemetry := crisisFixture()
	state.Pending = append(state.Pending, simstate.PendingCrisisSpawn{Archetype: "phantom"})

	CrisisAdvance(state, catalog, telemetry, 16, 16, 1, &Sink{})

	if len(state.Active) != 0 {
		t.Fatal("unknown archetype must not materialize")
	}
	if len(state.Pending) != 0 {
		t.Fatal("pending list must drain even on soft failure")
	}
}

func TestTelemetryGaugeBands(t *testing.T) {
	state, catalog, telemetry := crisisFixture()
	state.Pending = append(state.Pending, simstate.PendingCrisisSpawn{Archetype: "blight"})

	for tick := uint64(1); tick <= 60; tick++ {
		CrisisAdvance(state, catalog, telemetry, 16, 16, tick, &Sink{})
	}
	gauge, ok := telemetry.Gauges["blight:r0"]
	if !ok {
		t.Fatal("expected an r0 gauge")
	}
	if gauge.Band != "severe" && gauge.Band != "elevated" {
		t.Fatalf("band = %q after sustained growth", gauge.Band)
	}
	if len(gauge.Window) > gauge.Capacity {
		t.Fatal("trend window must stay bounded")
	}
}
