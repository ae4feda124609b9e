// Package seqbuf implements the fixed-capacity, sequence-indexed ring
// buffer used throughout the reliability engine: the received-packet
// window, the retained sent-packet set's congestion timestamps, and the
// fragment reassembly table are all instances of the same structure.
package seqbuf

import "github.com/ventosilenzioso/reliant/internal/seqnum"

// Buffer is a ring of N slots, each holding a value tagged with the
// sequence number it was inserted under. It tracks the highest sequence
// number seen so that stale inserts (older than the window) can be
// rejected and stale slots cleared lazily as the window advances.
type Buffer[T any] struct {
	values    []T
	sequences []uint32 // sequence number of each slot, or noSlot if empty
	current   uint16   // one past the highest sequence number inserted
	hasEntry  bool
}

// noSlot marks a slot as empty. Sequence numbers are 16-bit, so a 32-bit
// sentinel can never collide with a real value.
const noSlot = 1 << 32 - 1

// New constructs a Buffer with the given capacity. Capacity is typically
// the redundancy window size plus one, or the configured reassembly
// buffer size.
func New[T any](capacity int) *Buffer[T] {
	b := &Buffer[T]{
		values:    make([]T, capacity),
		sequences: make([]uint32, capacity),
	}
	for i := range b.sequences {
		b.sequences[i] = noSlot
	}
	return b
}

func (b *Buffer[T]) index(seq uint16) int {
	return int(seq) % len(b.values)
}

// Current returns the next expected sequence number: one past the
// highest sequence number ever inserted, modulo 1<<16.
func (b *Buffer[T]) Current() uint16 {
	return b.current
}

// removeRange clears every slot whose sequence falls in (from, to], or
// the whole buffer if that span exceeds capacity.
func (b *Buffer[T]) removeRange(from, to uint16) {
	if from == to {
		return
	}
	span := uint32(to) - uint32(from)
	if int(span) >= len(b.values) {
		for i := range b.sequences {
			b.sequences[i] = noSlot
			var zero T
			b.values[i] = zero
		}
		return
	}
	for s := from + 1; ; s++ {
		b.sequences[b.index(s)] = noSlot
		var zero T
		b.values[b.index(s)] = zero
		if s == to {
			break
		}
	}
}

// Insert stores value under seq, returning false if seq is older than
// the trailing edge of the window (current - capacity) and should be
// rejected outright. Inserting advances the window: every sequence
// between the old current and seq is cleared so stale entries can never
// be mistaken for the new one once the ring wraps back around.
func (b *Buffer[T]) Insert(seq uint16, value T) bool {
	if b.hasEntry && !seqnum.GreaterOrEqual(seq, b.current-uint16(len(b.values))) {
		return false
	}
	if !b.hasEntry || seqnum.Greater(seq+1, b.current) {
		old := b.current
		b.current = seq + 1
		b.hasEntry = true
		b.removeRange(old, seq)
	}
	b.values[b.index(seq)] = value
	b.sequences[b.index(seq)] = uint32(seq)
	return true
}

// Get returns the value stored at seq and whether it is present.
func (b *Buffer[T]) Get(seq uint16) (T, bool) {
	idx := b.index(seq)
	if b.sequences[idx] != uint32(seq) {
		var zero T
		return zero, false
	}
	return b.values[idx], true
}

// Exists reports whether seq currently has a stored value.
func (b *Buffer[T]) Exists(seq uint16) bool {
	idx := b.index(seq)
	return b.sequences[idx] == uint32(seq)
}

// Remove clears the slot for seq, returning the value that was stored
// there (if any).
func (b *Buffer[T]) Remove(seq uint16) (T, bool) {
	v, ok := b.Get(seq)
	if !ok {
		return v, false
	}
	idx := b.index(seq)
	b.sequences[idx] = noSlot
	var zero T
	b.values[idx] = zero
	return v, true
}

// Len returns the buffer's fixed capacity.
func (b *Buffer[T]) Len() int {
	return len(b.values)
}

// Occupied returns the number of slots currently holding a value.
func (b *Buffer[T]) Occupied() int {
	n := 0
	for _, s := range b.sequences {
		if s != noSlot {
			n++
		}
	}
	return n
}
