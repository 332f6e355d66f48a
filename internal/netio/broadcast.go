package netio

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/talgya/shadow-scale/internal/wire"
)

// clientQueueDepth bounds each snapshot client's outbound queue; a client
// that falls this many frames behind is dropped silently (§4.12).
const clientQueueDepth = 16

// BroadcastServer pushes encoded envelope payloads to every attached
// client. One instance serves the binary envelope, a second the flat
// envelope (§4.12).
type BroadcastServer struct {
	Name string

	listener net.Listener

	mu      sync.Mutex
	clients map[uint64]chan []byte
	nextID  uint64
}

// Listen binds the broadcast socket.
func (s *BroadcastServer) Listen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = l
	s.clients = make(map[uint64]chan []byte)
	slog.Info("snapshot broadcast listening", "name", s.Name, "addr", addr)
	return nil
}

// Serve accepts clients until ctx is canceled.
func (s *BroadcastServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
		s.closeAll()
	}()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.attach(conn)
	}
}

func (s *BroadcastServer) attach(conn net.Conn) {
	queue := make(chan []byte, clientQueueDepth)
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.clients[id] = queue
	s.mu.Unlock()
	slog.Info("snapshot client attached", "name", s.Name, "remote", conn.RemoteAddr().String())

	go s.writeClient(id, conn, queue)
}

// writeClient flushes the per-client queue until a write fails or the
// queue closes; either way the client detaches (§4.12).
func (s *BroadcastServer) writeClient(id uint64, conn net.Conn, queue chan []byte) {
	defer conn.Close()
	for payload := range queue {
		if err := wire.WriteFrame(conn, payload); err != nil {
			s.detach(id)
			return
		}
	}
}

// Publish enqueues payload for every attached client. A client whose
// queue is full is dropped rather than allowed to stall the simulation
// thread (§4.12 backpressure).
func (s *BroadcastServer) Publish(payload []byte) {
	s.mu.Lock()
	var dropped []uint64
	for id, queue := range s.clients {
		select {
		case queue <- payload:
		default:
			dropped = append(dropped, id)
		}
	}
	for _, id := range dropped {
		close(s.clients[id])
		delete(s.clients, id)
	}
	n := len(s.clients)
	s.mu.Unlock()

	if len(dropped) > 0 {
		slog.Warn("dropped slow snapshot clients",
			"name", s.Name, "dropped", len(dropped), "remaining", n,
			"frame", humanize.Bytes(uint64(len(payload))),
		)
	}
}

func (s *BroadcastServer) detach(id uint64) {
	s.mu.Lock()
	if queue, ok := s.clients[id]; ok {
		close(queue)
		delete(s.clients, id)
	}
	s.mu.Unlock()
}

func (s *BroadcastServer) closeAll() {
	s.mu.Lock()
	for id, queue := range s.clients {
		close(queue)
		delete(s.clients, id)
	}
	s.mu.Unlock()
}
