package subsystems

import (
	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
	"github.com/talgya/shadow-scale/internal/worldconfig"
)

// LogisticsFlow is pipeline step 2: reads tiles, writes link.flow, mutates
// tile.mass (§4.1 step 2).
//
// Links are directional: mass moves from a link's From tile to its To
// tile, and only while From holds more mass (otherwise the link idles):
//
//	transfer   = min(capacity, max(0, from.mass-to.mass) * flow_gain)
//	attrition  = transfer * attrition_fraction
//	delivered  = transfer - attrition
//	from.mass -= transfer
//	to.mass   += delivered
//	link.flow  = delivered
//
// Transfer never exceeds capacity and never creates mass: the amount
// removed from the source always equals transfer, and delivered is always
// <= transfer, so Σmass + Σattrition is conserved up to fixed-point
// rounding.
func LogisticsFlow(w *simstate.World, pipeline *worldconfig.TurnPipelineConfig) {
	attritionFrac := fixedpoint.FromFloat32(float32(pipeline.LogisticsAttrition))
	flowGain := fixedpoint.FromFloat32(float32(pipeline.LogisticsFlowGain))

	for _, id := range w.LogisticsLinks.SortedIDs() {
		link := w.LogisticsLinks.MustGet(id)
		fromTile, ok := w.Tiles.Get(link.From)
		if !ok {
			continue
		}
		toTile, ok := w.Tiles.Get(link.To)
		if !ok {
			continue
		}

		diff := fromTile.Mass.Sub(toTile.Mass)
		if diff.Lte(fixedpoint.Zero) {
			link.CurrentFlow = fixedpoint.Zero
			continue
		}

		transfer := fixedpoint.Min(link.Capacity, diff.Mul(flowGain))
		attrition := transfer.Mul(attritionFrac)
		delivered := transfer.Sub(attrition)

		fromTile.Mass = fromTile.Mass.Sub(transfer)
		toTile.Mass = toTile.Mass.Add(delivered)
		link.CurrentFlow = delivered
	}
}
