package subsystems

import (
	"testing"

	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
)

func cultureWorld() (*simstate.World, *simstate.CultureLayer, *simstate.CultureLayer) {
	w := simstate.New()
	parentID := w.IDs.Next()
	parent := &simstate.CultureLayer{
		OwnerID:       parentID,
		Scope:         simstate.CultureRegional,
		SoftThreshold: fixedpoint.FromFloat32(0.3),
		HardThreshold: fixedpoint.FromFloat32(0.9),
	}
	w.CultureLayers.Set(parentID, parent)

	childID := w.IDs.Next()
	child := &simstate.CultureLayer{
		OwnerID:       childID,
		ParentID:      parentID,
		Scope:         simstate.CultureLocal,
		SoftThreshold: fixedpoint.FromFloat32(0.3),
		HardThreshold: fixedpoint.FromFloat32(0.9),
	}
	w.CultureLayers.Set(childID, child)
	return w, parent, child
}

func TestDivergenceIsL1Distance(t *testing.T) {
	w, parent, child := cultureWorld()
	parent.Axes[0].Value = fixedpoint.FromFloat32(0.5)
	child.Axes[0].Value = fixedpoint.FromFloat32(0.1)
	child.Axes[1].Value = fixedpoint.FromFloat32(-0.2)

	impacts := &simstate.InfluencerImpacts{}
	CultureReconcile(w, impacts, 1, &Sink{})

	// |0.1-0.5| + |-0.2-0| = 0.6
	if got, want := child.Divergence.Raw(), int64(600_000); got != want {
		t.Fatalf("divergence = %d, want %d", got, want)
	}
	if parent.Divergence.Raw() != 0 {
		t.Fatal("root layer has no parent and zero divergence")
	}
}

func TestDriftWarningEmittedOnceOnCrossing(t *testing.T) {
	w, _, child := cultureWorld()
	child.Axes[0].Value = fixedpoint.FromFloat32(0.4)

	impacts := &simstate.InfluencerImpacts{}
	sink := &Sink{}
	CultureReconcile(w, impacts, 1, sink)
	CultureReconcile(w, impacts, 2, sink)

	warnings := 0
	for _, ev := range sink.Events {
		if ev.Kind == EventDriftWarning {
			warnings++
		}
	}
	if warnings != 1 {
		t.Fatalf("expected exactly one drift warning, got %d", warnings)
	}
	if child.TicksAboveSoft != 2 {
		t.Fatalf("ticks above soft = %d, want 2", child.TicksAboveSoft)
	}
}

func TestResonanceBumpsVersionOnlyOnChange(t *testing.T) {
	w, _, child := cultureWorld()
	impacts := &simstate.InfluencerImpacts{}
	impacts.CultureResonance[3] = fixedpoint.FromFloat32(0.05)

	CultureReconcile(w, impacts, 1, &Sink{})
	if child.Version != 1 {
		t.Fatalf("version = %d, want 1 after resonance", child.Version)
	}
	if got, want := child.Axes[3].Value.Raw(), int64(50_000); got != want {
		t.Fatalf("axis value = %d, want %d", got, want)
	}

	quiet := &simstate.InfluencerImpacts{}
	CultureReconcile(w, quiet, 2, &Sink{})
	if child.Version != 1 {
		t.Fatal("version must not bump without a value change")
	}
}

func TestSustainedHardDivergenceSpawnsSchismSibling(t *testing.T) {
	w, _, child := cultureWorld()
	for i := 0; i < 5; i++ {
		child.Axes[i].Value = fixedpoint.FromFloat32(0.5)
	}

	impacts := &simstate.InfluencerImpacts{}
	sink := &Sink{}
	before := w.CultureLayers.Len()
	for tick := uint64(1); tick <= 60; tick++ {
		CultureReconcile(w, impacts, tick, sink)
	}

	schisms := 0
	for _, ev := range sink.Events {
		if ev.Kind == EventSchismRisk {
			schisms++
		}
	}
	if schisms == 0 {
		t.Fatal("expected a schism event after sustained hard divergence")
	}
	if w.CultureLayers.Len() <= before {
		t.Fatal("schism must spawn a sibling layer")
	}
}
