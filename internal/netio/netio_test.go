package netio

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/talgya/shadow-scale/internal/command"
	"github.com/talgya/shadow-scale/internal/wire"
)

func TestCommandServerDecodesFrames(t *testing.T) {
	queue := command.NewQueue()
	srv := &CommandServer{Queue: queue}
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, command.Encode(command.Turn{Steps: 2})); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	// Undecodable payload: logged and skipped, connection stays open.
	if err := wire.WriteFrame(conn, []byte{0xFF, 1, 2, 3}); err != nil {
		t.Fatalf("write bad frame: %v", err)
	}
	if err := wire.WriteFrame(conn, command.Encode(command.Rollback{Tick: 7})); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	var got []command.Command
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out, received %d commands", len(got))
		default:
			got = append(got, queue.Drain()...)
			time.Sleep(5 * time.Millisecond)
		}
	}
	if _, ok := got[0].(command.Turn); !ok {
		t.Fatalf("expected Turn first, got %T", got[0])
	}
	if rb, ok := got[1].(command.Rollback); !ok || rb.Tick != 7 {
		t.Fatalf("expected Rollback{7}, got %+v", got[1])
	}
}

func TestCommandServerDropsOversizeFrame(t *testing.T) {
	queue := command.NewQueue()
	srv := &CommandServer{Queue: queue}
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Length header claiming 1 MiB: the server must close on us.
	header := []byte{0, 0, 16, 0}
	if _, err := conn.Write(header); err != nil {
		t.Fatalf("write header: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err != io.EOF {
		t.Fatalf("expected EOF after oversize frame, got %v", err)
	}
}

func TestBroadcastPublishReachesClient(t *testing.T) {
	srv := &BroadcastServer{Name: "binary"}
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	payload := []byte{1, 2, 3, 4, 5}
	deadline := time.Now().Add(2 * time.Second)
	for {
		srv.mu.Lock()
		attached := len(srv.clients) > 0
		srv.mu.Unlock()
		if attached {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}
	srv.Publish(payload)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := wire.ReadFrame(bufio.NewReader(conn), wire.MaxFrameBytes)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("frame = %v, want %v", got, payload)
	}
}
