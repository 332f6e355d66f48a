package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// binWriter accumulates the little-endian binary envelope payload. All
// multi-byte values are LE to match the frame header (§6.2).
type binWriter struct {
	b bytes.Buffer
}

func (w *binWriter) u8(v uint8)   { w.b.WriteByte(v) }
func (w *binWriter) boolean(v bool) {
	if v {
		w.b.WriteByte(1)
	} else {
		w.b.WriteByte(0)
	}
}

func (w *binWriter) u16(v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	w.b.Write(buf[:])
}

func (w *binWriter) u32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.b.Write(buf[:])
}

func (w *binWriter) u64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	w.b.Write(buf[:])
}

func (w *binWriter) i32(v int32) { w.u32(uint32(v)) }
func (w *binWriter) i64(v int64) { w.u64(uint64(v)) }

func (w *binWriter) str(s string) {
	w.u32(uint32(len(s)))
	w.b.WriteString(s)
}

func (w *binWriter) bytes() []byte { return w.b.Bytes() }

// binReader is a bounds-checked cursor over an envelope payload. Every
// accessor returns an error on truncation so decode failures surface as
// malformed-input errors instead of panics (§7).
type binReader struct {
	buf []byte
	off int
}

func (r *binReader) need(n int) error {
	if r.off+n > len(r.buf) {
		return fmt.Errorf("snapshot: truncated payload at offset %d (need %d of %d)", r.off, n, len(r.buf))
	}
	return nil
}

func (r *binReader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *binReader) boolean() (bool, error) {
	v, err := r.u8()
	return v == 1, err
}

func (r *binReader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *binReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *binReader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *binReader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err
}

func (r *binReader) i64() (int64, error) {
	v, err := r.u64()
	return int64(v), err
}

func (r *binReader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

// count reads a collection length, guarding against absurd values from a
// corrupt frame before any allocation happens.
func (r *binReader) count(limit int) (int, error) {
	n, err := r.u32()
	if err != nil {
		return 0, err
	}
	if int(n) > limit {
		return 0, fmt.Errorf("snapshot: collection length %d exceeds limit %d", n, limit)
	}
	return int(n), nil
}
