// Package netio implements the TCP surfaces: the command ingress, the two
// snapshot broadcast listeners, and the structured log stream (§4.2,
// §4.12, §6.3). Listeners only accept; every accepted client gets its own
// reader or writer goroutine, and all simulation-bound traffic funnels
// through the command queue (§5).
package netio

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/talgya/shadow-scale/internal/command"
	"github.com/talgya/shadow-scale/internal/wire"
)

// CommandServer accepts framed command envelopes and enqueues the decoded
// commands on the simulation's queue (§4.2).
type CommandServer struct {
	Queue *command.Queue

	listener net.Listener
}

// Listen binds the ingress socket. Failure to bind is the one genuinely
// fatal startup condition (§7); the caller decides to exit.
func (s *CommandServer) Listen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = l
	slog.Info("command ingress listening", "addr", addr)
	return nil
}

// Serve accepts clients until ctx is canceled or the listener closes.
// The accept loop never parses commands itself; each client gets a
// dedicated reader goroutine (§4.2).
func (s *CommandServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.readClient(conn)
	}
}

// readClient decodes frames off one connection. Oversize or zero-length
// frames drop the connection; undecodable payloads are logged and skipped
// without closing (§6.1, §7).
func (s *CommandServer) readClient(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	slog.Info("command client connected", "remote", remote)

	r := bufio.NewReader(conn)
	for {
		payload, err := wire.ReadFrame(r, wire.MaxFrameBytes)
		if err != nil {
			if errors.Is(err, wire.ErrOversizeFrame) {
				slog.Warn("dropping command client: oversize frame", "remote", remote)
			} else {
				slog.Info("command client disconnected", "remote", remote, "error", err)
			}
			return
		}
		cmd, err := command.Decode(payload)
		if err != nil {
			slog.Warn("skipping undecodable command frame", "remote", remote, "error", err)
			continue
		}
		s.Queue.Push(cmd)
	}
}
