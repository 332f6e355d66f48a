package subsystems

import (
	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
	"github.com/talgya/shadow-scale/internal/worldconfig"
)

// PopulationStep is pipeline step 4: reads tiles, writes cohort size/morale,
// creates migrations, and on arrival merges carried fragments into the
// cohort's own set and into the Discovery Progress Ledger (§4.1 step 4,
// §3.2 "a cohort's migration.fragments is immutable once queued").
func PopulationStep(w *simstate.World, progress *simstate.DiscoveryProgressLedger, pipeline *worldconfig.TurnPipelineConfig, tick uint64, sink *Sink) {
	growth := fixedpoint.FromFloat32(float32(pipeline.PopulationGrowthRate))

	for _, id := range w.Cohorts.SortedIDs() {
		cohort := w.Cohorts.MustGet(id)

		if cohort.Migration != nil {
			if cohort.Migration.ETA > 0 {
				cohort.Migration.ETA--
				continue
			}
			arriveMigration(cohort, progress, tick, sink)
			continue
		}

		tile, ok := w.Tiles.Get(cohort.HomeTile)
		if !ok {
			continue
		}
		moraleFactor := cohort.Morale.Clamp(fixedpoint.Zero, fixedpoint.One)
		deltaSize := fixedpoint.FromInt(int64(cohort.Size)).Mul(growth).Mul(moraleFactor)
		cohort.Size += uint32(deltaSize.Raw() / fixedpoint.Scale)

		// Morale tracks ambient tile temperature loosely: too cold or too
		// hot tiles wear on morale; comfortable tiles restore it.
		comfort := fixedpoint.One.Sub(tile.Temperature.Sub(fixedpoint.FromFloat32(0.5)).Abs())
		cohort.Morale = cohort.Morale.Add(comfort.Sub(fixedpoint.FromFloat32(0.5)).Mul(fixedpoint.FromFloat32(0.05)))
		cohort.Morale = cohort.Morale.Clamp(fixedpoint.Zero, fixedpoint.One)
	}
}

// arriveMigration merges a migrated cohort's carried fragments into its own
// knowledge set and the Discovery Progress Ledger, then clears the
// migration order, changing the cohort's faction to the destination.
func arriveMigration(cohort *simstate.PopulationCohort, progress *simstate.DiscoveryProgressLedger, tick uint64, sink *Sink) {
	mig := cohort.Migration
	if cohort.Fragments == nil {
		cohort.Fragments = make(map[string]simstate.Fragment)
	}
	for _, frag := range mig.CarriedFragments {
		existing, ok := cohort.Fragments[frag.DiscoveryID]
		if !ok || frag.Progress.Gt(existing.Progress) {
			cohort.Fragments[frag.DiscoveryID] = frag
		}
		progress.Add(mig.DestinationFaction, frag.DiscoveryID, frag.Progress.Mul(frag.Fidelity))
	}

	cohort.FactionID = mig.DestinationFaction
	cohort.Migration = nil

	sink.Emit(Event{
		Kind:         EventMigration,
		Tick:         tick,
		TargetFaction: mig.DestinationFaction,
		Entity:       uint64(cohort.HomeTile),
		Magnitude:    fixedpoint.FromInt(int64(cohort.Size)),
	})
}

// QueueMigration creates a migration order for cohort, carrying an
// immutable copy of its current fragments (§3.4 invariant).
func QueueMigration(cohort *simstate.PopulationCohort, destFaction uint32, eta uint32) {
	carried := make([]simstate.Fragment, 0, len(cohort.Fragments))
	for _, f := range cohort.Fragments {
		carried = append(carried, f)
	}
	cohort.Migration = &simstate.MigrationOrder{
		DestinationFaction: destFaction,
		ETA:                eta,
		CarriedFragments:   carried,
	}
}
