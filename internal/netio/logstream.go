package netio

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
)

// LogStreamServer optionally serves the structured log stream (§6.3): it
// is an io.Writer suitable for teeing the slog handler's output, fanning
// every line out to attached clients. A client that can't keep up is
// dropped, same policy as the snapshot broadcasters.
type LogStreamServer struct {
	listener net.Listener

	mu      sync.Mutex
	clients map[uint64]chan []byte
	nextID  uint64
}

// Listen binds the log socket.
func (s *LogStreamServer) Listen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = l
	s.clients = make(map[uint64]chan []byte)
	slog.Info("log stream listening", "addr", addr)
	return nil
}

// Serve accepts clients until ctx is canceled.
func (s *LogStreamServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
		s.mu.Lock()
		for id, queue := range s.clients {
			close(queue)
			delete(s.clients, id)
		}
		s.mu.Unlock()
	}()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		queue := make(chan []byte, 64)
		s.mu.Lock()
		s.nextID++
		id := s.nextID
		s.clients[id] = queue
		s.mu.Unlock()
		go func() {
			defer conn.Close()
			for line := range queue {
				if _, err := conn.Write(line); err != nil {
					s.mu.Lock()
					if q, ok := s.clients[id]; ok {
						close(q)
						delete(s.clients, id)
					}
					s.mu.Unlock()
					return
				}
			}
		}()
	}
}

// Write implements io.Writer: each handler write is one log line, copied
// and fanned out without blocking the logger.
func (s *LogStreamServer) Write(p []byte) (int, error) {
	line := append([]byte(nil), p...)
	s.mu.Lock()
	var dropped []uint64
	for id, queue := range s.clients {
		select {
		case queue <- line:
		default:
			dropped = append(dropped, id)
		}
	}
	for _, id := range dropped {
		close(s.clients[id])
		delete(s.clients, id)
	}
	s.mu.Unlock()
	return len(p), nil
}
