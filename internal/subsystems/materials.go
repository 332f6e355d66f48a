package subsystems

import (
	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
)

// MaterialsRelax is pipeline step 1: every tile's temperature drifts toward
// ambient, independent of its neighbors (§4.1 step 1).
//
// new_temp = temp + (ambient - temp) * lerp * conductivity
func MaterialsRelax(w *simstate.World, cfg *simstate.Config) {
	ambient := cfg.AmbientTemperature
	lerp := cfg.TemperatureLerp
	conductivity := cfg.Conductivity
	rate := lerp.Mul(conductivity)

	for _, id := range w.Tiles.SortedIDs() {
		tile := w.Tiles.MustGet(id)
		delta := ambient.Sub(tile.Temperature).Mul(rate)
		tile.Temperature = tile.Temperature.Add(delta)
		tile.Mass = tile.Mass.Clamp(fixedpoint.Zero, fixedpoint.FromInt(1_000_000))
	}
}
