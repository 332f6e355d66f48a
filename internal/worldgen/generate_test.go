package worldgen

import "testing"

func TestGenerateDeterministic(t *testing.T) {
	p := DefaultParams(42)
	p.Width, p.Height = 16, 16

	a := Generate(p)
	b := Generate(p)

	if len(a) != len(b) || len(a) != p.Width*p.Height {
		t.Fatalf("tile count mismatch: %d vs %d (want %d)", len(a), len(b), p.Width*p.Height)
	}
	for i := range a {
		if a[i].Terrain != b[i].Terrain || a[i].Tags != b[i].Tags || a[i].Temperature != b[i].Temperature {
			t.Fatalf("tile %d differs between identical runs", i)
		}
	}
}

func TestGenerateDifferentSeeds(t *testing.T) {
	p1 := DefaultParams(1)
	p1.Width, p1.Height = 16, 16
	p2 := p1
	p2.Seed = 2

	a := Generate(p1)
	b := Generate(p2)

	diff := 0
	for i := range a {
		if a[i].Terrain != b[i].Terrain {
			diff++
		}
	}
	if diff == 0 {
		t.Fatalf("expected different seeds to produce different terrain")
	}
}

func TestGenerateCoversGrid(t *testing.T) {
	p := DefaultParams(7)
	p.Width, p.Height = 8, 8
	tiles := Generate(p)
	seen := make(map[[2]int32]bool)
	for _, tile := range tiles {
		seen[[2]int32{tile.X, tile.Y}] = true
	}
	if len(seen) != p.Width*p.Height {
		t.Fatalf("expected %d distinct positions, got %d", p.Width*p.Height, len(seen))
	}
}
