// Package scriptbridge is the thread-safe manager that dispatches
// simulation events to sandboxed scripts and returns their queued
// responses to the thin client (§2, §5). Script hosting itself is an
// external collaborator; this package only owns the event/response shape
// and the synchronous command path.
package scriptbridge

import (
	"errors"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/talgya/shadow-scale/internal/command"
	"github.com/talgya/shadow-scale/internal/subsystems"
)

// DefaultCommandTimeout is how long a synchronous command send waits for
// the simulation thread's applied callback before surfacing a timeout
// (§5, §3.5 command lifetime <500 ms).
const DefaultCommandTimeout = 500 * time.Millisecond

// ErrCommandTimeout is returned when the simulation thread does not apply
// a synchronously sent command within the timeout.
var ErrCommandTimeout = errors.New("scriptbridge: command not applied within timeout")

// Handler is one sandboxed script's event entrypoint. It runs on the
// simulation thread during dispatch and must not block; responses it
// returns are queued for the script's client to poll.
type Handler func(tick uint64, ev subsystems.Event) [][]byte

// Manager multiplexes events to registered scripts and accumulates their
// responses. All methods are safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	handlers  map[string]Handler
	responses map[string][][]byte

	queue   *command.Queue
	pending []pendingSend
}

type pendingSend struct {
	cmd  command.Command
	done chan struct{}
}

// NewManager creates an empty manager bound to the simulation's command
// queue.
func NewManager(queue *command.Queue) *Manager {
	return &Manager{
		handlers:  make(map[string]Handler),
		responses: make(map[string][][]byte),
		queue:     queue,
	}
}

// Register attaches (or replaces) a script's handler.
func (m *Manager) Register(scriptID string, h Handler) {
	m.mu.Lock()
	m.handlers[scriptID] = h
	m.mu.Unlock()
}

// Unregister removes a script and discards its queued responses.
func (m *Manager) Unregister(scriptID string) {
	m.mu.Lock()
	delete(m.handlers, scriptID)
	delete(m.responses, scriptID)
	m.mu.Unlock()
}

// Dispatch hands one tick's events to every registered script in script-id
// order (deterministic by design; §9 open question (b)) and queues the
// responses. The simulation thread calls this after step 13.
func (m *Manager) Dispatch(tick uint64, events []subsystems.Event) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.handlers))
	for id := range m.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	handlers := make([]Handler, len(ids))
	for i, id := range ids {
		handlers[i] = m.handlers[id]
	}
	m.mu.Unlock()

	for i, id := range ids {
		for _, ev := range events {
			out := handlers[i](tick, ev)
			if len(out) == 0 {
				continue
			}
			m.mu.Lock()
			m.responses[id] = append(m.responses[id], out...)
			m.mu.Unlock()
		}
	}
}

// Poll drains one script's queued responses.
func (m *Manager) Poll(scriptID string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.responses[scriptID]
	delete(m.responses, scriptID)
	return out
}

// PollAll drains every script's responses, returned as a map keyed by
// script id (nil when nothing is queued). The map carries no ordering;
// callers that need one sort the keys themselves.
func (m *Manager) PollAll() map[string][][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responses) == 0 {
		return nil
	}
	out := m.responses
	m.responses = make(map[string][][]byte)
	return out
}

// SendCommand pushes cmd onto the simulation queue and blocks until the
// simulation thread reports it applied, or the timeout elapses (§5). Wire
// the simulation's applied hook to NotifyApplied for this to resolve.
func (m *Manager) SendCommand(cmd command.Command, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	done := make(chan struct{})
	m.mu.Lock()
	m.pending = append(m.pending, pendingSend{cmd: cmd, done: done})
	m.mu.Unlock()

	m.queue.Push(cmd)

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		m.mu.Lock()
		for i := range m.pending {
			if m.pending[i].done == done {
				m.pending = append(m.pending[:i], m.pending[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		return ErrCommandTimeout
	}
}

// NotifyApplied is the simulation thread's applied callback: it resolves
// the oldest pending send whose command matches.
func (m *Manager) NotifyApplied(cmd command.Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.pending {
		if reflect.DeepEqual(m.pending[i].cmd, cmd) {
			close(m.pending[i].done)
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}
