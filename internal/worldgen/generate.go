// Package worldgen builds the deterministic tile grid from a single 64-bit
// seed: elevation -> land mask -> islands -> plate fold belts -> coastal
// smoothing -> bands -> moisture -> hydrology -> terrain and tags (§4.8).
// Every downstream choice uses a
// seeded RNG or a local stable hash of (seed,x,y) — never the host's
// randomized map iteration order or an unseeded global RNG.
package worldgen

import (
	"math"
	"math/rand"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/hashutil"
	"github.com/talgya/shadow-scale/internal/simstate"
)

// Params controls grid size and the seed driving every derived choice.
type Params struct {
	Width, Height int
	Seed          int64
	SeaLevel      float64
	MountainLevel float64
	TargetLandRatio float64
	ContinentCount  int
}

// DefaultParams returns the reference generation parameters for seed.
func DefaultParams(seed int64) Params {
	return Params{
		Width: 64, Height: 64,
		Seed:            seed,
		SeaLevel:        0.32,
		MountainLevel:   0.78,
		TargetLandRatio: 0.35,
		ContinentCount:  3,
	}
}

// Band classifies a tile's position relative to the ocean (§4.8).
type Band uint8

const (
	BandLand Band = iota
	BandContinentalShelf
	BandContinentalSlope
	BandDeepOcean
	BandInlandSea
)

// field is a plain width*height float64 raster, the working representation
// used throughout generation before the final fixed-point stamp.
type field struct {
	w, h int
	v    []float64
}

func newField(w, h int) *field {
	return &field{w: w, h: h, v: make([]float64, w*h)}
}
func (f *field) at(x, y int) float64    { return f.v[y*f.w+x] }
func (f *field) set(x, y int, v float64) { f.v[y*f.w+x] = v }
func (f *field) in(x, y int) bool        { return x >= 0 && y >= 0 && x < f.w && y < f.h }

// Generate runs the full deterministic pipeline and returns populated tile
// components in row-major (y,x) order, ready for World.SpawnTile.
func Generate(p Params) []*simstate.Tile {
	elev := generateElevation(p)
	landMask := deriveLandMask(elev, p)
	placeIslands(elev, landMask, p)
	stampPlates(elev, landMask, p)
	smoothCoast(elev, landMask, p)
	bands := classifyBands(landMask, p)
	moisture := generateMoisture(elev, p)
	flowAccum := hydrology(elev, landMask, p)

	tiles := make([]*simstate.Tile, 0, p.Width*p.Height)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			e := elev.at(x, y)
			m := moisture.at(x, y)
			band := bands[y*p.Width+x]
			terrain, tags := classifyTerrain(e, m, band, flowAccum.at(x, y), p)

			tile := &simstate.Tile{
				X:           int32(x),
				Y:           int32(y),
				Element:     elementFor(terrain),
				Mass:        fixedpoint.FromFloat32(1.0),
				Temperature: fixedpoint.FromFloat32(float32(temperatureAt(y, e, p))),
				Terrain:     terrain,
				Tags:        tags,
			}
			tiles = append(tiles, tile)
		}
	}
	return tiles
}

// generateElevation produces the height field via layered simplex noise
// with a radial falloff that keeps continents off the map edge.
func generateElevation(p Params) *field {
	noise := opensimplex.NewNormalized(p.Seed)
	f := newField(p.Width, p.Height)
	cx, cy := float64(p.Width)/2, float64(p.Height)/2
	maxDist := math.Hypot(cx, cy)

	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			e := octaveNoise(noise, float64(x), float64(y), 5, 0.04, 0.5)
			dist := math.Hypot(float64(x)-cx, float64(y)-cy) / maxDist
			falloff := 1.0 - math.Pow(dist, 3.0)
			if falloff < 0 {
				falloff = 0
			}
			f.set(x, y, e*falloff)
		}
	}
	return f
}

// deriveLandMask takes the elevation at the TargetLandRatio quantile,
// blends it 60/40 with SeaLevel into a threshold, and returns a []bool
// mask (true = land) with small islets removed. The elevation field is not
// modified. The realized land ratio is not checked or rebalanced against
// TargetLandRatio; the SeaLevel blend and islet removal move it off target.
func deriveLandMask(elev *field, p Params) []bool {
	n := p.Width * p.Height
	sorted := make([]float64, n)
	copy(sorted, elev.v)
	sort.Float64s(sorted)

	targetIdx := int((1.0 - p.TargetLandRatio) * float64(n-1))
	if targetIdx < 0 {
		targetIdx = 0
	}
	threshold := sorted[targetIdx]
	// Blend toward the configured SeaLevel so TargetLandRatio nudges the
	// shoreline without discarding the authored SeaLevel entirely.
	threshold = threshold*0.6 + p.SeaLevel*0.4

	mask := make([]bool, n)
	for i, e := range elev.v {
		mask[i] = e >= threshold
	}
	enforceMinArea(mask, p)
	return mask
}

// enforceMinArea removes land components below a minimum tile count via
// flood fill, folding stray single-tile islets back into ocean so bands
// classification doesn't need to special-case them.
func enforceMinArea(mask []bool, p Params) {
	const minArea = 3
	visited := make([]bool, len(mask))
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			idx := y*p.Width + x
			if !mask[idx] || visited[idx] {
				continue
			}
			comp := floodComponent(mask, visited, x, y, p)
			if len(comp) < minArea {
				for _, i := range comp {
					mask[i] = false
				}
			}
		}
	}
}

func floodComponent(mask, visited []bool, sx, sy int, p Params) []int {
	stack := [][2]int{{sx, sy}}
	visited[sy*p.Width+sx] = true
	var comp []int
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		idx := c[1]*p.Width + c[0]
		comp = append(comp, idx)
		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := c[0]+d[0], c[1]+d[1]
			if nx < 0 || ny < 0 || nx >= p.Width || ny >= p.Height {
				continue
			}
			nidx := ny*p.Width + nx
			if !mask[nidx] || visited[nidx] {
				continue
			}
			visited[nidx] = true
			stack = append(stack, [2]int{nx, ny})
		}
	}
	return comp
}

// classifyBands runs a BFS outward from ocean tiles to classify
// shelf/slope/deep-ocean distance bands (§4.8).
func classifyBands(landMask []bool, p Params) []Band {
	n := p.Width * p.Height
	dist := make([]int, n)
	for i := range dist {
		dist[i] = -1
	}
	var queue [][2]int
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			idx := y*p.Width + x
			if !landMask[idx] {
				dist[idx] = 0
				queue = append(queue, [2]int{x, y})
			}
		}
	}
	for qi := 0; qi < len(queue); qi++ {
		c := queue[qi]
		idx := c[1]*p.Width + c[0]
		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := c[0]+d[0], c[1]+d[1]
			if nx < 0 || ny < 0 || nx >= p.Width || ny >= p.Height {
				continue
			}
			nidx := ny*p.Width + nx
			if dist[nidx] != -1 {
				continue
			}
			dist[nidx] = dist[idx] + 1
			queue = append(queue, [2]int{nx, ny})
		}
	}

	open := openOcean(landMask, p)
	bands := make([]Band, n)
	for i, land := range landMask {
		if land {
			bands[i] = BandLand
			continue
		}
		if !open[i] {
			bands[i] = BandInlandSea
			continue
		}
		switch {
		case dist[i] <= 1:
			bands[i] = BandContinentalShelf
		case dist[i] <= 3:
			bands[i] = BandContinentalSlope
		default:
			bands[i] = BandDeepOcean
		}
	}
	return bands
}

// openOcean flood-fills ocean from the map border; water not reachable
// from the border is landlocked and classifies as inland sea.
func openOcean(landMask []bool, p Params) []bool {
	n := p.Width * p.Height
	open := make([]bool, n)
	var queue [][2]int
	push := func(x, y int) {
		idx := y*p.Width + x
		if landMask[idx] || open[idx] {
			return
		}
		open[idx] = true
		queue = append(queue, [2]int{x, y})
	}
	for x := 0; x < p.Width; x++ {
		push(x, 0)
		push(x, p.Height-1)
	}
	for y := 0; y < p.Height; y++ {
		push(0, y)
		push(p.Width-1, y)
	}
	for qi := 0; qi < len(queue); qi++ {
		c := queue[qi]
		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := c[0]+d[0], c[1]+d[1]
			if nx < 0 || ny < 0 || nx >= p.Width || ny >= p.Height {
				continue
			}
			push(nx, ny)
		}
	}
	return open
}

// generateMoisture layers a prevailing-wind rain-shadow model onto a noise
// base: each row accumulates moisture moving west-to-east, losing some to
// elevation (orographic rainout) and gaining a latitude humidity bonus.
func generateMoisture(elev *field, p Params) *field {
	noise := opensimplex.NewNormalized(p.Seed + 7)
	f := newField(p.Width, p.Height)
	for y := 0; y < p.Height; y++ {
		carried := 0.6
		latitude := math.Abs(float64(y)/float64(p.Height)-0.5) * 2
		humidity := 1.0 - latitude*0.5
		for x := 0; x < p.Width; x++ {
			base := octaveNoise(noise, float64(x), float64(y), 3, 0.06, 0.5)
			e := elev.at(x, y)
			orographic := 0.0
			if e > p.MountainLevel*0.6 {
				orographic = (e - p.MountainLevel*0.6) * 0.8
			}
			carried = carried*0.92 + base*0.2 + orographic
			if carried > 1 {
				carried = 1
			}
			if carried < 0 {
				carried = 0
			}
			m := carried*0.7 + humidity*0.3
			f.set(x, y, clamp01(m))
		}
	}
	return f
}

// hydrology builds a priority-BFS cost map from the ocean, derives flow
// directions toward the minimal-cost neighbor, then accumulates discharge
// in a reverse-order sweep.
func hydrology(elev *field, landMask []bool, p Params) *field {
	n := p.Width * p.Height
	cost := make([]float64, n)
	for i := range cost {
		cost[i] = math.Inf(1)
	}
	type node struct {
		idx  int
		cost float64
	}
	var frontier []node
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			idx := y*p.Width + x
			if !landMask[idx] {
				cost[idx] = 0
				frontier = append(frontier, node{idx, 0})
			}
		}
	}
	flowTo := make([]int, n)
	for i := range flowTo {
		flowTo[i] = -1
	}

	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool { return frontier[i].cost < frontier[j].cost })
		cur := frontier[0]
		frontier = frontier[1:]
		if cur.cost > cost[cur.idx] {
			continue
		}
		cx, cy := cur.idx%p.Width, cur.idx/p.Width
		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := cx+d[0], cy+d[1]
			if nx < 0 || ny < 0 || nx >= p.Width || ny >= p.Height {
				continue
			}
			nidx := ny*p.Width + nx
			step := 1.0 + elev.at(nx, ny)*2
			nc := cur.cost + step
			if nc < cost[nidx] {
				cost[nidx] = nc
				flowTo[nidx] = cur.idx
				frontier = append(frontier, node{nidx, nc})
			}
		}
	}

	accum := newField(p.Width, p.Height)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return cost[order[i]] > cost[order[j]] })
	for _, idx := range order {
		x, y := idx%p.Width, idx/p.Width
		accum.set(x, y, accum.at(x, y)+1)
		if to := flowTo[idx]; to >= 0 {
			tx, ty := to%p.Width, to/p.Width
			accum.set(tx, ty, accum.at(tx, ty)+accum.at(x, y))
		}
	}
	return accum
}

// classifyTerrain derives the final terrain type and tag bitmask from the
// environmental fields at one tile.
func classifyTerrain(elev, moisture float64, band Band, flow float64, p Params) (simstate.TerrainType, uint32) {
	var tags uint32
	if band != BandLand {
		tags |= uint32(simstate.TagWater)
		switch band {
		case BandContinentalShelf:
			return simstate.TerrainContinentalShelf, tags
		case BandContinentalSlope:
			return simstate.TerrainContinentalSlope, tags
		case BandInlandSea:
			tags |= uint32(simstate.TagFreshwater)
			return simstate.TerrainInlandSea, tags
		default:
			return simstate.TerrainDeepOcean, tags
		}
	}

	if elev > p.MountainLevel {
		tags |= uint32(simstate.TagHighland)
		if elev > p.MountainLevel+0.12 {
			tags |= uint32(simstate.TagVolcanic) | uint32(simstate.TagHazardous)
			return simstate.TerrainVolcanic, tags
		}
		return simstate.TerrainMountain, tags
	}

	if flow > 40 {
		tags |= uint32(simstate.TagFreshwater) | uint32(simstate.TagFertile)
		return simstate.TerrainRiverDelta, tags
	}

	switch {
	case moisture < 0.2:
		tags |= uint32(simstate.TagArid)
		return simstate.TerrainDesert, tags
	case moisture > 0.75 && elev < 0.45:
		tags |= uint32(simstate.TagWetland) | uint32(simstate.TagFreshwater)
		return simstate.TerrainWetland, tags
	case moisture > 0.55:
		tags |= uint32(simstate.TagFertile)
		return simstate.TerrainForest, tags
	default:
		tags |= uint32(simstate.TagFertile)
		return simstate.TerrainPlains, tags
	}
}

func elementFor(t simstate.TerrainType) simstate.ElementKind {
	switch t {
	case simstate.TerrainDeepOcean, simstate.TerrainContinentalShelf, simstate.TerrainContinentalSlope, simstate.TerrainWetland, simstate.TerrainRiverDelta:
		return simstate.ElementWater
	case simstate.TerrainVolcanic:
		return simstate.ElementFire
	case simstate.TerrainMountain:
		return simstate.ElementEarth
	default:
		return simstate.ElementEarth
	}
}

func temperatureAt(y int, elev float64, p Params) float64 {
	latitude := math.Abs(float64(y)/float64(p.Height) - 0.5)
	base := 1.0 - latitude*1.4
	base -= elev * 0.3
	return clamp01(base)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// octaveNoise layers multiple noise frequencies into one fractal sample.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return (total/maxVal + 1) / 2
}

// plateSeedRNG returns a deterministic RNG for plate/hotspot placement
// decisions, seeded from the world seed plus a stable per-purpose offset
// rather than the shared stream, so reordering generation stages never
// perturbs unrelated random draws.
func plateSeedRNG(seed int64, purpose string) *rand.Rand {
	s := int64(hashutil.SeedFor(purpose, uint64(seed)))
	return rand.New(rand.NewSource(s))
}

// placeIslands drops small island clusters onto the continental fringe
// and the deep ocean, lifting a few ocean tiles above the shoreline.
func placeIslands(elev *field, mask []bool, p Params) {
	rng := plateSeedRNG(p.Seed, "islands")
	count := (p.Width * p.Height) / 256
	for i := 0; i < count; i++ {
		x := rng.Intn(p.Width)
		y := rng.Intn(p.Height)
		idx := y*p.Width + x
		if mask[idx] {
			continue
		}
		// Fringe islands (near land) are common; deep-ocean islands rare.
		near := nearLand(mask, x, y, 3, p)
		if !near && rng.Float64() > 0.25 {
			continue
		}
		mask[idx] = true
		elev.set(x, y, p.SeaLevel+0.05+rng.Float64()*0.1)
	}
}

func nearLand(mask []bool, x, y, radius int, p Params) bool {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			nx, ny := x+dx, y+dy
			if nx < 0 || ny < 0 || nx >= p.Width || ny >= p.Height {
				continue
			}
			if mask[ny*p.Width+nx] {
				return true
			}
		}
	}
	return false
}

// stampPlates seeds tectonic plates, assigns every land tile to its
// nearest seed by priority BFS over tile scores, then uplifts fold belts
// along plate boundaries and raises capped volcanic chains on them.
func stampPlates(elev *field, mask []bool, p Params) {
	rng := plateSeedRNG(p.Seed, "plates")
	plateCount := p.ContinentCount + 2
	if plateCount < 3 {
		plateCount = 3
	}

	n := p.Width * p.Height
	owner := make([]int, n)
	for i := range owner {
		owner[i] = -1
	}
	type frontierNode struct {
		idx   int
		plate int
		cost  float64
	}
	var frontier []frontierNode
	for plate := 0; plate < plateCount; plate++ {
		x := rng.Intn(p.Width)
		y := rng.Intn(p.Height)
		frontier = append(frontier, frontierNode{y*p.Width + x, plate, 0})
	}

	for len(frontier) > 0 {
		sort.SliceStable(frontier, func(i, j int) bool { return frontier[i].cost < frontier[j].cost })
		cur := frontier[0]
		frontier = frontier[1:]
		if owner[cur.idx] != -1 {
			continue
		}
		owner[cur.idx] = cur.plate
		cx, cy := cur.idx%p.Width, cur.idx/p.Width
		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := cx+d[0], cy+d[1]
			if nx < 0 || ny < 0 || nx >= p.Width || ny >= p.Height {
				continue
			}
			nidx := ny*p.Width + nx
			if owner[nidx] != -1 {
				continue
			}
			// Tile score biases plate growth along existing relief, so
			// boundaries tend to follow ridges rather than cut basins.
			score := 1.0 + (1.0-elev.at(nx, ny))*0.5
			frontier = append(frontier, frontierNode{nidx, cur.plate, cur.cost + score})
		}
	}

	// Fold-belt uplift along land boundaries, with volcanic chains capped
	// per plate.
	volcanoBudget := make(map[int]int, plateCount)
	for plate := 0; plate < plateCount; plate++ {
		volcanoBudget[plate] = 2
	}
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			idx := y*p.Width + x
			if !mask[idx] {
				continue
			}
			boundary := false
			for _, d := range [2][2]int{{1, 0}, {0, 1}} {
				nx, ny := x+d[0], y+d[1]
				if nx >= p.Width || ny >= p.Height {
					continue
				}
				if owner[ny*p.Width+nx] != owner[idx] {
					boundary = true
					break
				}
			}
			if !boundary {
				continue
			}
			uplift := 0.12 + rng.Float64()*0.08
			elev.set(x, y, clamp01(elev.at(x, y)+uplift))
			if volcanoBudget[owner[idx]] > 0 && rng.Float64() < 0.1 {
				volcanoBudget[owner[idx]]--
				elev.set(x, y, clamp01(p.MountainLevel+0.15+rng.Float64()*0.05))
			}
		}
	}
}

// smoothCoast runs a 3x3 blur over tiles within three steps of the
// shoreline, weighted by land distance so interiors keep their relief.
func smoothCoast(elev *field, mask []bool, p Params) {
	dist := landDistance(mask, p)
	out := newField(p.Width, p.Height)
	copy(out.v, elev.v)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			d := dist[y*p.Width+x]
			if d > 3 {
				continue
			}
			sum, count := 0.0, 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= p.Width || ny >= p.Height {
						continue
					}
					sum += elev.at(nx, ny)
					count++
				}
			}
			blend := float64(3-d) / 3 * 0.6
			smoothed := sum / float64(count)
			out.set(x, y, elev.at(x, y)*(1-blend)+smoothed*blend)
		}
	}
	copy(elev.v, out.v)
}

// landDistance is steps-from-ocean for land tiles (0 for ocean), uncapped;
// smoothCoast ignores distances above 3.
func landDistance(mask []bool, p Params) []int {
	n := p.Width * p.Height
	dist := make([]int, n)
	var queue [][2]int
	for i := range dist {
		if mask[i] {
			dist[i] = -1
		} else {
			queue = append(queue, [2]int{i % p.Width, i / p.Width})
		}
	}
	for qi := 0; qi < len(queue); qi++ {
		c := queue[qi]
		idx := c[1]*p.Width + c[0]
		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := c[0]+d[0], c[1]+d[1]
			if nx < 0 || ny < 0 || nx >= p.Width || ny >= p.Height {
				continue
			}
			nidx := ny*p.Width + nx
			if dist[nidx] != -1 {
				continue
			}
			dist[nidx] = dist[idx] + 1
			queue = append(queue, [2]int{nx, ny})
		}
	}
	return dist
}
