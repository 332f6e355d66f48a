package engine

import (
	"errors"
	"sort"
)

// ErrDuplicateSubmission is returned when a faction submits orders twice
// in the same tick (§4.3).
var ErrDuplicateSubmission = errors.New("engine: duplicate order submission for faction this turn")

// ErrUnknownFaction is returned for a submission from a faction id absent
// from the registry.
var ErrUnknownFaction = errors.New("engine: unknown faction")

// SubmittedOrder is one faction's drained end-turn order.
type SubmittedOrder struct {
	FactionID uint32
}

// TurnQueue tracks which factions have submitted orders this turn (§4.3).
// Submissions are idempotent per (tick, faction): a second submission is
// rejected with ErrDuplicateSubmission.
type TurnQueue struct {
	submitted map[uint32]bool
	tick      uint64
}

// NewTurnQueue creates an empty queue.
func NewTurnQueue() *TurnQueue {
	return &TurnQueue{submitted: make(map[uint32]bool)}
}

// Submit records faction's orders for the given tick. Known-faction
// validation is the caller's job; the queue only enforces idempotency.
func (q *TurnQueue) Submit(tick uint64, faction uint32) error {
	if tick != q.tick {
		// A new tick started since the last submission; prior pending
		// state is stale.
		q.submitted = make(map[uint32]bool)
		q.tick = tick
	}
	if q.submitted[faction] {
		return ErrDuplicateSubmission
	}
	q.submitted[faction] = true
	return nil
}

// Pending returns the factions of all that have NOT yet submitted this
// tick, in ascending id order.
func (q *TurnQueue) Pending(tick uint64, all []uint32) []uint32 {
	var pending []uint32
	for _, f := range all {
		if tick != q.tick || !q.submitted[f] {
			pending = append(pending, f)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })
	return pending
}

// Ready reports whether every faction in all has submitted for tick.
func (q *TurnQueue) Ready(tick uint64, all []uint32) bool {
	if tick != q.tick {
		return len(all) == 0
	}
	for _, f := range all {
		if !q.submitted[f] {
			return false
		}
	}
	return true
}

// Drain empties the queue into a canonical-order vector of orders and
// resets submission state for the next turn.
func (q *TurnQueue) Drain() []SubmittedOrder {
	ids := make([]uint32, 0, len(q.submitted))
	for f := range q.submitted {
		ids = append(ids, f)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	orders := make([]SubmittedOrder, 0, len(ids))
	for _, f := range ids {
		orders = append(orders, SubmittedOrder{FactionID: f})
	}
	q.submitted = make(map[uint32]bool)
	return orders
}
