package command

import (
	"reflect"
	"testing"

	"github.com/talgya/shadow-scale/internal/simstate"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tier := uint8(2)
	tick := uint64(40)
	offset := uint64(3)
	enabled := true
	perFaction := uint32(2)
	scope := simstate.ScopeRegional
	gen := uint32(5)

	cases := []Command{
		Turn{Steps: 3},
		ResetMap{Width: 8, Height: 8},
		Heat{Entity: 17, DeltaRaw: 500_000},
		Orders{FactionID: 2, Directive: DirectiveReady},
		Rollback{Tick: 12},
		AxisBias{Axis: 1, Value: -0.5},
		SupportInfluencer{ID: 4, Magnitude: 0.25},
		SuppressInfluencer{ID: 4, Magnitude: 0.25},
		SupportInfluencerChannel{ID: 4, Channel: simstate.ChannelInstitutional, Magnitude: 0.5},
		SpawnInfluencer{},
		SpawnInfluencer{Scope: &scope, Generation: &gen},
		InjectCorruption{Subsystem: simstate.CorruptionMilitary, Intensity: 2.5, ExposureTimer: 30},
		UpdateEspionageGenerators{Updates: []GeneratorUpdate{
			{TemplateID: "recon-sweep"},
			{TemplateID: "deep-cover", Enabled: &enabled, PerFaction: &perFaction},
		}},
		QueueEspionageMission{
			MissionID: "m-1", OwnerFaction: 1, TargetOwnerFaction: 2,
			DiscoveryID: "alloys", AgentHandle: "agent-a",
			TargetTier: &tier, ScheduledTick: &tick,
		},
		QueueEspionageMission{MissionID: "m-2", OwnerFaction: 1, TargetOwnerFaction: 2, DiscoveryID: "alloys", AgentHandle: "agent-b"},
		UpdateEspionageQueueDefaults{ScheduledTickOffset: &offset, TargetTier: &tier},
		UpdateEspionageQueueDefaults{},
		ReloadConfig{Kind: ReloadTurnPipeline, Path: "configs/pipeline.json"},
		ReloadConfig{Kind: ReloadSimulation},
	}

	for _, want := range cases {
		payload := Encode(want)
		got, err := Decode(payload)
		if err != nil {
			t.Fatalf("Decode(%T): %v", want, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round trip %T: got %+v want %+v", want, got, want)
		}
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":            {},
		"unknown tag":      {0xFF},
		"truncated turn":   {0, 1, 0},
		"axis out of range": Encode(AxisBias{Axis: 7, Value: 0}),
		"bad directive":    {3, 1, 0, 0, 0, 9},
	}
	for name, payload := range cases {
		if _, err := Decode(payload); err == nil {
			t.Errorf("%s: expected decode error", name)
		}
	}
}

func TestQueueFIFOAndClose(t *testing.T) {
	q := NewQueue()
	q.Push(Turn{Steps: 1})
	q.Push(Rollback{Tick: 9})

	got := q.Recv()
	if len(got) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(got))
	}
	if _, ok := got[0].(Turn); !ok {
		t.Errorf("expected Turn first, got %T", got[0])
	}
	if _, ok := got[1].(Rollback); !ok {
		t.Errorf("expected Rollback second, got %T", got[1])
	}

	q.Close()
	if got := q.Recv(); got != nil {
		t.Errorf("expected nil from closed empty queue, got %v", got)
	}
	q.Push(Turn{Steps: 1})
	if got := q.Drain(); got != nil {
		t.Errorf("push after close should be dropped, got %v", got)
	}
}
