package subsystems

import (
	"testing"

	"github.com/talgya/shadow-scale/internal/fixedpoint"
	"github.com/talgya/shadow-scale/internal/simstate"
)

func TestWeightedRequirementProgress(t *testing.T) {
	state := simstate.NewGreatDiscoveryState()
	RegisterGreatDiscovery(state, "grand-unification", fixedpoint.FromFloat32(0.9),
		simstate.DiscoveryRequirement{
			DiscoveryID: "alloys", Weight: fixedpoint.One,
			MinimumProgress: fixedpoint.FromFloat32(0.5),
		},
		simstate.DiscoveryRequirement{
			DiscoveryID: "ceramics", Weight: fixedpoint.FromInt(3),
		},
	)
	progress := simstate.NewDiscoveryProgressLedger()
	progress.Add(1, "alloys", fixedpoint.FromFloat32(0.75))
	progress.Add(1, "ceramics", fixedpoint.FromFloat32(0.5))

	GreatDiscoveryTick(state, progress, 1, &Sink{})

	// alloys: (0.75-0.5)/(1-0.5) = 0.5, weight 1; ceramics: 0.5, weight 3.
	// weighted = (0.5 + 1.5) / 4 = 0.5.
	gd := state.Discoveries["grand-unification"]
	if got, want := gd.WeightedProgress.Raw(), int64(500_000); got != want {
		t.Fatalf("weighted progress = %d, want %d", got, want)
	}
	if gd.Published {
		t.Fatal("must not publish below the observation threshold")
	}
}

func TestRequirementBelowMinimumContributesNothing(t *testing.T) {
	state := simstate.NewGreatDiscoveryState()
	RegisterGreatDiscovery(state, "gd", fixedpoint.FromFloat32(0.1),
		simstate.DiscoveryRequirement{
			DiscoveryID: "alloys", Weight: fixedpoint.One,
			MinimumProgress: fixedpoint.FromFloat32(0.6),
		},
	)
	progress := simstate.NewDiscoveryProgressLedger()
	progress.Add(2, "alloys", fixedpoint.FromFloat32(0.6))

	GreatDiscoveryTick(state, progress, 1, &Sink{})

	if !state.Discoveries["gd"].WeightedProgress.IsZero() {
		t.Fatal("progress at the minimum floor must contribute nothing")
	}
}

func TestPublishFiresOnceAtThreshold(t *testing.T) {
	state := simstate.NewGreatDiscoveryState()
	RegisterGreatDiscovery(state, "gd", fixedpoint.FromFloat32(0.5),
		simstate.DiscoveryRequirement{DiscoveryID: "alloys", Weight: fixedpoint.One},
	)
	progress := simstate.NewDiscoveryProgressLedger()
	progress.Add(1, "alloys", fixedpoint.FromFloat32(0.8))

	sink := &Sink{}
	GreatDiscoveryTick(state, progress, 1, sink)
	GreatDiscoveryTick(state, progress, 2, sink)

	published := 0
	for _, ev := range sink.Events {
		if ev.Kind == EventGreatDiscovery {
			published++
		}
	}
	if published != 1 {
		t.Fatalf("expected one publication event, got %d", published)
	}
	gd := state.Discoveries["gd"]
	if !gd.Published || gd.PublishedTick != 1 {
		t.Fatalf("publication state wrong: %+v", gd)
	}
}
