// Package ecs provides the World Store: a typed entity+component repository
// where every tile, logistics link, trade link, population cohort, power
// node, culture layer, and influencer is an entity identified by a stable
// 64-bit id, with its components stored in contiguous arrays keyed by
// entity. See design doc Section 3.2 and Section 9.
package ecs

import "golang.org/x/exp/slices"

// EntityID is an opaque stable identifier. Zero is never a valid id.
type EntityID uint64

// IDAllocator mints monotonically increasing entity ids. It is itself part
// of a World's resources so that map-reset can rebuild it deterministically.
type IDAllocator struct {
	next EntityID
}

// NewIDAllocator starts an allocator at 1 (0 is reserved as "no entity").
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{next: 1}
}

// Next returns the next unused id and advances the allocator.
func (a *IDAllocator) Next() EntityID {
	id := a.next
	a.next++
	return id
}

// Reset rewinds the allocator, used only by full map reset (§3.5).
func (a *IDAllocator) Reset() {
	a.next = 1
}

// Advance moves the allocator past id if it isn't already, so entities
// restored from a snapshot keep their stored ids without colliding with
// future allocations.
func (a *IDAllocator) Advance(id EntityID) {
	if id >= a.next {
		a.next = id + 1
	}
}

// Column is a column-store of a single component type keyed by entity id.
// Iteration always goes through SortedIDs so that subsystem steps observe
// entities in ascending id order, per the scheduler's determinism contract
// (§4.1 tie-breaks).
type Column[T any] struct {
	data map[EntityID]T
}

// NewColumn creates an empty component column.
func NewColumn[T any]() *Column[T] {
	return &Column[T]{data: make(map[EntityID]T)}
}

// Get returns the component for id and whether it exists.
func (c *Column[T]) Get(id EntityID) (T, bool) {
	v, ok := c.data[id]
	return v, ok
}

// MustGet returns the component for id, panicking if absent. Only used in
// paths already guarded by a prior existence check, matching the "no
// defensive validation at internal boundaries" rule.
func (c *Column[T]) MustGet(id EntityID) T {
	v, ok := c.data[id]
	if !ok {
		panic("ecs: MustGet on an entity without this component")
	}
	return v
}

// Set writes (or overwrites) the component for id.
func (c *Column[T]) Set(id EntityID, v T) {
	c.data[id] = v
}

// Delete removes the component for id, if present.
func (c *Column[T]) Delete(id EntityID) {
	delete(c.data, id)
}

// Len returns the number of entities carrying this component.
func (c *Column[T]) Len() int {
	return len(c.data)
}

// SortedIDs returns all entity ids with this component, in ascending order.
func (c *Column[T]) SortedIDs() []EntityID {
	ids := make([]EntityID, 0, len(c.data))
	for id := range c.data {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Each visits every (id, component) pair in ascending id order.
func (c *Column[T]) Each(fn func(id EntityID, v T)) {
	for _, id := range c.SortedIDs() {
		fn(id, c.data[id])
	}
}

// Clear empties the column, used by map reset.
func (c *Column[T]) Clear() {
	c.data = make(map[EntityID]T)
}
