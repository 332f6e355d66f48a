package snapshot

// Entry is one stored tick: the binary and flat envelope payloads, kept
// together so rollback can both re-broadcast and deserialize (§4.11).
type Entry struct {
	Tick    uint64
	Binary  []byte
	Flat    []byte
}

// History is the bounded snapshot ring (§4.11, §3.4): at most Limit
// entries, oldest evicted first. It lives on the simulation thread as a
// world resource; no locking.
type History struct {
	Limit   int
	entries []Entry
}

// NewHistory creates an empty ring bounded to limit entries. A limit of
// zero or less disables retention entirely.
func NewHistory(limit int) *History {
	return &History{Limit: limit}
}

// Push stores the encoded pair for tick, evicting the oldest entry once
// the ring is full.
func (h *History) Push(tick uint64, binary, flat []byte) {
	if h.Limit <= 0 {
		return
	}
	h.entries = append(h.entries, Entry{Tick: tick, Binary: binary, Flat: flat})
	if len(h.entries) > h.Limit {
		h.entries = h.entries[len(h.entries)-h.Limit:]
	}
}

// Get returns the stored entry for tick, if retained.
func (h *History) Get(tick uint64) (Entry, bool) {
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].Tick == tick {
			return h.entries[i], true
		}
	}
	return Entry{}, false
}

// Latest returns the most recent entry, if any.
func (h *History) Latest() (Entry, bool) {
	if len(h.entries) == 0 {
		return Entry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Len reports the number of retained entries.
func (h *History) Len() int { return len(h.entries) }

// TruncateAfter drops every entry newer than tick, so post-rollback
// re-simulation repopulates the ring without stale future frames.
func (h *History) TruncateAfter(tick uint64) {
	kept := h.entries[:0]
	for _, e := range h.entries {
		if e.Tick <= tick {
			kept = append(kept, e)
		}
	}
	h.entries = kept
}

// Reset drops every entry, used by map reset.
func (h *History) Reset() {
	h.entries = nil
}
