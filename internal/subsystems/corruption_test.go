package subsystems

import (
	"testing"

	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
)

func TestCorruptionExposureAgesAndPenalizes(t *testing.T) {
	ledger := simstate.NewCorruptionLedger()
	bias := &simstate.SentimentBias{}
	InjectCorruption(ledger, simstate.CorruptionTrade, fixedpoint.FromInt(3), 2)

	sink := &Sink{}
	CorruptionProcess(ledger, bias, 1, sink)
	if len(ledger.BySubsystem[simstate.CorruptionTrade]) != 1 {
		t.Fatal("incident should survive while its timer runs")
	}
	if !bias.Axes[0].IsZero() {
		t.Fatal("no penalty before exposure")
	}

	CorruptionProcess(ledger, bias, 2, sink)
	if len(ledger.BySubsystem[simstate.CorruptionTrade]) != 0 {
		t.Fatal("incident should be dropped on exposure")
	}
	// 3 * 0.02 = 0.06 disapproval on every axis.
	for i, axis := range bias.Axes {
		if got, want := axis.Raw(), int64(-60_000); got != want {
			t.Fatalf("axis %d = %d, want %d", i, got, want)
		}
	}
	exposed := 0
	for _, ev := range sink.Events {
		if ev.Kind == EventCorruptionExposed {
			exposed++
		}
	}
	if exposed != 1 {
		t.Fatalf("expected one exposure event, got %d", exposed)
	}
}

func TestInjectCorruptionClampsIntensity(t *testing.T) {
	ledger := simstate.NewCorruptionLedger()
	InjectCorruption(ledger, simstate.CorruptionLogistics, fixedpoint.FromInt(40), 10)
	inc := ledger.BySubsystem[simstate.CorruptionLogistics][0]
	if !inc.Intensity.Eq(fixedpoint.FromInt(5)) {
		t.Fatalf("intensity = %d, want clamp to 5", inc.Intensity.Raw())
	}
}

func TestCorruptionMultiplierFloor(t *testing.T) {
	ledger := simstate.NewCorruptionLedger()
	for i := 0; i < 10; i++ {
		InjectCorruption(ledger, simstate.CorruptionMilitary, fixedpoint.FromInt(5), 100)
	}
	m := ledger.Multiplier(simstate.CorruptionMilitary)
	if !m.Eq(fixedpoint.FromFloat32(0.2)) {
		t.Fatalf("multiplier = %d, want floor 200000", m.Raw())
	}
}
