package subsystems

import (
	"testing"

	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
	"github.com/talgya/shadow-scale/internal/worldconfig"
)

func linkedWorld(fromMass, toMass, capacity float32) (*simstate.World, *simstate.LogisticsLink, *simstate.Tile, *simstate.Tile) {
	w := simstate.New()
	from := &simstate.Tile{X: 0, Y: 0, Mass: fixedpoint.FromFloat32(fromMass)}
	to := &simstate.Tile{X: 1, Y: 0, Mass: fixedpoint.FromFloat32(toMass)}
	fromID := w.SpawnTile(from)
	toID := w.SpawnTile(to)
	link := &simstate.LogisticsLink{From: fromID, To: toID, Capacity: fixedpoint.FromFloat32(capacity)}
	w.LogisticsLinks.Set(w.IDs.Next(), link)
	return w, link, from, to
}

// The two-tile reference scenario: masses 2.0 and 1.0, capacity 0.5,
// attrition 0.1, flow gain 0.1. One step moves 0.1, loses 0.01 to
// terrain, delivers 0.09.
func TestLogisticsFlowReferenceScenario(t *testing.T) {
	w, link, from, to := linkedWorld(2.0, 1.0, 0.5)
	pipeline := worldconfig.DefaultTurnPipelineConfig()
	pipeline.LogisticsAttrition = 0.1
	pipeline.LogisticsFlowGain = 0.1

	LogisticsFlow(w, &pipeline)

	if got, want := from.Mass.Raw(), int64(1_900_000); got != want {
		t.Errorf("source mass = %d, want %d", got, want)
	}
	if got, want := to.Mass.Raw(), int64(1_090_000); got != want {
		t.Errorf("target mass = %d, want %d", got, want)
	}
	if got, want := link.CurrentFlow.Raw(), int64(90_000); got != want {
		t.Errorf("link flow = %d, want %d", got, want)
	}
}

// Conservation: Σ mass + Σ attrition is constant across
// the step, and transfer never exceeds capacity.
func TestLogisticsFlowConservesMass(t *testing.T) {
	w, link, from, to := linkedWorld(8.0, 0.5, 0.25)
	pipeline := worldconfig.DefaultTurnPipelineConfig()
	pipeline.LogisticsAttrition = 0.2
	pipeline.LogisticsFlowGain = 0.5

	before := from.Mass.Add(to.Mass)
	LogisticsFlow(w, &pipeline)

	// transfer = min(0.25, 7.5*0.5) = 0.25 (capacity-bound)
	transfer := fixedpoint.FromFloat32(0.25)
	attrition := transfer.Mul(fixedpoint.FromFloat32(0.2))
	after := from.Mass.Add(to.Mass)
	if !after.Add(attrition).Eq(before) {
		t.Errorf("mass not conserved: before %d, after+attrition %d", before.Raw(), after.Add(attrition).Raw())
	}
	if link.CurrentFlow.Gt(link.Capacity) {
		t.Error("flow exceeds capacity")
	}
}

func TestLogisticsFlowIdleWhenDownhill(t *testing.T) {
	w, link, from, to := linkedWorld(1.0, 3.0, 0.5)
	pipeline := worldconfig.DefaultTurnPipelineConfig()

	LogisticsFlow(w, &pipeline)

	if !link.CurrentFlow.IsZero() {
		t.Error("no flow expected against the gradient")
	}
	if from.Mass.Raw() != 1_000_000 || to.Mass.Raw() != 3_000_000 {
		t.Error("masses must be untouched on an idle link")
	}
}
