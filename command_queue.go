// command_queue.go - Bounded wait-free SPSC command queue with admission control

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

import "sync/atomic"

// Command kinds carried by queue entries. Write entries are due-cycle
// stamped; administrative entries apply at the next due check (due 0) but
// keep FIFO order with the writes queued around them.
const (
	CmdWrite = iota
	CmdReset
	CmdSetModel
	CmdSetClockRate
	CmdMute
)

// QueueEntry is one decoded command plus its absolute due-cycle.
type QueueEntry struct {
	Due   uint64
	Kind  uint8
	Reg   uint8
	Value uint8
	Aux   uint32 // model selector, clock rate, or mute voice/flag
	gen   uint32
}

// Admission results for TryEnqueue.
const (
	Accepted = iota
	Busy
)

// commandQueue is a bounded single-producer/single-consumer ring. The
// decoder enqueues, the render pipeline dequeues; neither side ever blocks
// on the other. Flush is producer-initiated but consumer-executed: stale
// generations are discarded on the next dequeue pass, which keeps the ring
// strictly SPSC.
type commandQueue struct {
	buf  []QueueEntry
	mask uint64

	head atomic.Uint64 // consumer position
	tail atomic.Uint64 // producer position

	gen  atomic.Uint32 // bumped by Flush; entries from older gens are stale
	live atomic.Int64  // entries belonging to the current generation
}

// newCommandQueue rounds the capacity up to a power of two.
func newCommandQueue(capacity int) *commandQueue {
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &commandQueue{
		buf:  make([]QueueEntry, size),
		mask: uint64(size - 1),
	}
}

func (q *commandQueue) Cap() int {
	return len(q.buf)
}

// Len reports live occupancy: entries invalidated by a Flush no longer
// count even before the consumer has discarded them.
func (q *commandQueue) Len() int {
	n := q.live.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// TryEnqueue offers an entry and reports Accepted or Busy. It never blocks
// and never overwrites; a Busy result is the client's signal to retry.
func (q *commandQueue) TryEnqueue(e QueueEntry) int {
	tail := q.tail.Load()
	if tail-q.head.Load() >= uint64(len(q.buf)) {
		return Busy
	}
	e.gen = q.gen.Load()
	q.buf[tail&q.mask] = e
	q.tail.Store(tail + 1)
	q.live.Add(1)
	return Accepted
}

// DequeueDue pops entries in FIFO order while their due-cycle is within
// upTo, invoking apply for each. Entries from flushed generations are
// discarded without being applied. Returns the number applied.
func (q *commandQueue) DequeueDue(upTo uint64, apply func(QueueEntry)) int {
	applied := 0
	for {
		head := q.head.Load()
		if head == q.tail.Load() {
			return applied
		}
		e := q.buf[head&q.mask]
		if e.gen != q.gen.Load() {
			// Stale entry from before a Flush
			q.head.Store(head + 1)
			continue
		}
		if e.Due > upTo {
			return applied
		}
		q.head.Store(head + 1)
		q.live.Add(-1)
		apply(e)
		applied++
	}
}

// PeekDue reports whether the next live entry is due within upTo.
func (q *commandQueue) PeekDue(upTo uint64) (QueueEntry, bool) {
	for {
		head := q.head.Load()
		if head == q.tail.Load() {
			return QueueEntry{}, false
		}
		e := q.buf[head&q.mask]
		if e.gen != q.gen.Load() {
			q.head.Store(head + 1)
			continue
		}
		if e.Due > upTo {
			return QueueEntry{}, false
		}
		return e, true
	}
}

// PopFront removes the head entry. Meant to follow a successful PeekDue;
// if a Flush landed in between, the now-stale entry is removed but not
// returned.
func (q *commandQueue) PopFront() (QueueEntry, bool) {
	head := q.head.Load()
	if head == q.tail.Load() {
		return QueueEntry{}, false
	}
	e := q.buf[head&q.mask]
	q.head.Store(head + 1)
	if e.gen != q.gen.Load() {
		return QueueEntry{}, false
	}
	q.live.Add(-1)
	return e, true
}

// Flush invalidates all pending entries without touching chip register
// state. Safe to call from the producer side while the consumer is
// draining: invalidation is by generation, physical removal happens on the
// consumer's next pass.
func (q *commandQueue) Flush() {
	q.gen.Add(1)
	q.live.Store(0)
}
