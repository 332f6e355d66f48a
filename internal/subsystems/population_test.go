package subsystems

import (
	"testing"

	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
	"github.com/talgya/shadow-scale/internal/worldconfig"
)

func TestMigrationCarriesImmutableFragmentsAndMerges(t *testing.T) {
	w := simstate.New()
	progress := simstate.NewDiscoveryProgressLedger()
	tileID := w.SpawnTile(&simstate.Tile{X: 0, Y: 0, Temperature: fixedpoint.FromFloat32(0.5)})

	cohort := &simstate.PopulationCohort{
		HomeTile: tileID, Size: 100, Morale: fixedpoint.FromFloat32(0.5),
		FactionID: 1,
		Fragments: map[string]simstate.Fragment{
			"alloys": {DiscoveryID: "alloys", Progress: fixedpoint.FromFloat32(0.6), Fidelity: fixedpoint.FromFloat32(0.9)},
		},
	}
	w.Cohorts.Set(w.IDs.Next(), cohort)

	QueueMigration(cohort, 2, 2)
	if cohort.Migration == nil || len(cohort.Migration.CarriedFragments) != 1 {
		t.Fatal("migration must carry a copy of the cohort's fragments")
	}

	// Mutating the live set after queueing must not touch the carried copy.
	cohort.Fragments["alloys"] = simstate.Fragment{DiscoveryID: "alloys", Progress: fixedpoint.Zero, Fidelity: fixedpoint.Zero}
	if cohort.Migration.CarriedFragments[0].Progress.IsZero() {
		t.Fatal("carried fragments must be immutable once queued")
	}

	pipeline := worldconfig.DefaultTurnPipelineConfig()
	sink := &Sink{}
	// Two ticks of travel, third tick arrives.
	for tick := uint64(1); tick <= 3; tick++ {
		PopulationStep(w, progress, &pipeline, tick, sink)
	}

	if cohort.Migration != nil {
		t.Fatal("migration must clear on arrival")
	}
	if cohort.FactionID != 2 {
		t.Fatalf("faction = %d, want destination 2", cohort.FactionID)
	}
	if progress.Progress[2]["alloys"].IsZero() {
		t.Fatal("arrival must credit the destination's discovery progress")
	}
	migrated := false
	for _, ev := range sink.Events {
		if ev.Kind == EventMigration {
			migrated = true
		}
	}
	if !migrated {
		t.Fatal("expected a migration event")
	}
}

func TestPopulationGrowthScalesWithMorale(t *testing.T) {
	w := simstate.New()
	progress := simstate.NewDiscoveryProgressLedger()
	tileID := w.SpawnTile(&simstate.Tile{X: 0, Y: 0, Temperature: fixedpoint.FromFloat32(0.5)})

	happy := &simstate.PopulationCohort{HomeTile: tileID, Size: 1000, Morale: fixedpoint.One, FactionID: 1}
	glum := &simstate.PopulationCohort{HomeTile: tileID, Size: 1000, Morale: fixedpoint.Zero, FactionID: 1}
	w.Cohorts.Set(w.IDs.Next(), happy)
	w.Cohorts.Set(w.IDs.Next(), glum)

	pipeline := worldconfig.DefaultTurnPipelineConfig()
	pipeline.PopulationGrowthRate = 0.05
	PopulationStep(w, progress, &pipeline, 1, &Sink{})

	if happy.Size <= 1000 {
		t.Fatal("high-morale cohort should grow")
	}
	if glum.Size != 1000 {
		t.Fatalf("zero-morale cohort should not grow, got %d", glum.Size)
	}
	if happy.Morale.Gt(fixedpoint.One) || glum.Morale.Lt(fixedpoint.Zero) {
		t.Fatal("morale must stay clamped")
	}
}
