// Package wire implements the length-prefixed framing shared by the
// command-ingress and snapshot-broadcast sockets (§6.1, §6.2): a 4-byte
// little-endian length N followed by N bytes of payload.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameBytes is the oversize cutoff the command ingress enforces;
// frames with N=0 or N>MaxFrameBytes are rejected and the connection is
// dropped (§4.2, §6.1).
const MaxFrameBytes = 64 * 1024

// WriteFrame writes payload length-prefixed to w.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: write length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r. maxBytes bounds the
// accepted payload length; a frame of length 0 or > maxBytes returns
// ErrOversizeFrame so the caller can close the connection (§4.2, §7).
func ReadFrame(r *bufio.Reader, maxBytes int) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 || n > uint32(maxBytes) {
		return nil, ErrOversizeFrame
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("wire: read payload: %w", err)
	}
	return payload, nil
}

// ErrOversizeFrame is returned by ReadFrame for a zero-length or oversize
// frame (§4.2, §6.1): the caller must close the connection.
var ErrOversizeFrame = fmt.Errorf("wire: frame length zero or exceeds %d bytes", MaxFrameBytes)
