package scriptbridge

import (
	"errors"
	"testing"
	"time"

	"github.com/talgya/shadow-scale/internal/command"
	"github.com/talgya/shadow-scale/internal/subsystems"
)

func TestDispatchAndPollOrdering(t *testing.T) {
	m := NewManager(command.NewQueue())
	m.Register("beta", func(tick uint64, ev subsystems.Event) [][]byte {
		return [][]byte{[]byte("beta")}
	})
	m.Register("alpha", func(tick uint64, ev subsystems.Event) [][]byte {
		return [][]byte{[]byte("alpha")}
	})

	m.Dispatch(3, []subsystems.Event{{Kind: subsystems.EventCascade, Tick: 3}})

	if got := m.Poll("alpha"); len(got) != 1 || string(got[0]) != "alpha" {
		t.Fatalf("alpha responses = %v", got)
	}
	if got := m.Poll("alpha"); got != nil {
		t.Fatal("poll must drain")
	}
	all := m.PollAll()
	if len(all) != 1 || len(all["beta"]) != 1 {
		t.Fatalf("poll all = %v", all)
	}
}

func TestUnregisterDiscardsResponses(t *testing.T) {
	m := NewManager(command.NewQueue())
	m.Register("s", func(tick uint64, ev subsystems.Event) [][]byte {
		return [][]byte{[]byte("x")}
	})
	m.Dispatch(1, []subsystems.Event{{}})
	m.Unregister("s")
	if got := m.Poll("s"); got != nil {
		t.Fatalf("expected no responses after unregister, got %v", got)
	}
	// A second dispatch must not invoke the removed handler.
	m.Dispatch(2, []subsystems.Event{{}})
	if got := m.Poll("s"); got != nil {
		t.Fatal("removed script still receiving events")
	}
}

func TestSendCommandResolvesOnApply(t *testing.T) {
	queue := command.NewQueue()
	m := NewManager(queue)

	// Simulate the simulation thread: drain and acknowledge.
	go func() {
		batch := queue.Recv()
		for _, cmd := range batch {
			m.NotifyApplied(cmd)
		}
	}()

	if err := m.SendCommand(command.Turn{Steps: 1}, time.Second); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
}

func TestSendCommandTimesOut(t *testing.T) {
	m := NewManager(command.NewQueue())
	err := m.SendCommand(command.Turn{Steps: 1}, 20*time.Millisecond)
	if !errors.Is(err, ErrCommandTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}
