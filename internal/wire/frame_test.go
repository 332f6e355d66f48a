package wire

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payloads := [][]byte{
		{1},
		[]byte("hello"),
		bytes.Repeat([]byte{0xAB}, 4096),
	}
	for _, p := range payloads {
		if err := WriteFrame(&buf, p); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	r := bufio.NewReader(&buf)
	for i, want := range payloads {
		got, err := ReadFrame(r, MaxFrameBytes)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d mismatch", i)
		}
	}
	if _, err := ReadFrame(r, MaxFrameBytes); err != io.EOF {
		t.Fatalf("expected EOF at stream end, got %v", err)
	}
}

func TestReadFrameRejectsZeroAndOversize(t *testing.T) {
	zero := []byte{0, 0, 0, 0}
	if _, err := ReadFrame(bufio.NewReader(bytes.NewReader(zero)), MaxFrameBytes); !errors.Is(err, ErrOversizeFrame) {
		t.Fatalf("zero-length: expected ErrOversizeFrame, got %v", err)
	}
	oversize := []byte{0, 0, 16, 0} // 1 MiB claimed
	if _, err := ReadFrame(bufio.NewReader(bytes.NewReader(oversize)), MaxFrameBytes); !errors.Is(err, ErrOversizeFrame) {
		t.Fatalf("oversize: expected ErrOversizeFrame, got %v", err)
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, []byte("full payload"))
	truncated := buf.Bytes()[:buf.Len()-4]
	if _, err := ReadFrame(bufio.NewReader(bytes.NewReader(truncated)), MaxFrameBytes); err == nil {
		t.Fatal("expected error on truncated payload")
	}
}
