// virtual_chip.go - Chip slots, occupancy and shared chip state

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

import (
	"fmt"
	"sync/atomic"
)

// Queue and admission tuning. Capacity absorbs realistic network jitter;
// the cycle bound caps worst-case catch-up latency at roughly three seconds
// of chip time. Draining waits for a minimum backlog so playback does not
// stutter on the very first write.
const (
	DEFAULT_QUEUE_CAPACITY = 1024
	MAX_CYCLES_IN_FLIGHT   = 63 * 312 * 50 * 3 // ~3 seconds of PAL cycles
	MIN_CYCLES_TO_DRAIN    = 500_000
	MIN_WRITES_TO_DRAIN    = 300
)

// VirtualChip is one emulated SID slot. The engine, clock render-side and
// fractional cycle accumulator are owned exclusively by the render pipeline;
// the session side interacts only through the command queue, the clock's
// producer half, and the atomic fields below.
type VirtualChip struct {
	slot   int
	engine ChipEngine
	clock  VirtualClock
	queue  *commandQueue

	owned        atomic.Bool
	muted        atomic.Bool
	drainStarted atomic.Bool

	clockHz  atomic.Uint32
	posLeft  atomic.Int32 // stereo weight 0-100
	posRight atomic.Int32

	// Render-published register bank: the session's synchronous read-back
	// path. Only the render side stores; stores happen only while applying
	// a due write.
	regs [SID_REG_COUNT]atomic.Uint32
	osc3 atomic.Uint32
	env3 atomic.Uint32

	// Render-owned fractional cycle accumulator (Bresenham remainder)
	cycleFrac uint64
}

func newVirtualChip(slot, queueCapacity, sampleRate int) *VirtualChip {
	c := &VirtualChip{
		slot:   slot,
		engine: NewSidChip(sampleRate),
		queue:  newCommandQueue(queueCapacity),
	}
	c.clockHz.Store(SID_CLOCK_PAL)
	c.posLeft.Store(100)
	c.posRight.Store(100)
	return c
}

// ReadRegister is the session-side synchronous register read-back. OSC3 and
// ENV3 come from the render-published voice 3 state; everything else from
// the shadow bank.
func (c *VirtualChip) ReadRegister(reg uint8) uint8 {
	switch reg {
	case SID_OSC3:
		return uint8(c.osc3.Load())
	case SID_ENV3:
		return uint8(c.env3.Load())
	case SID_POT_X, SID_POT_Y:
		return 0xFF
	}
	if reg < SID_REG_COUNT {
		return uint8(c.regs[reg].Load())
	}
	return 0
}

// AtCapacity reports whether admission control should answer Busy: the ring
// is full past its high-water mark or too much virtual time is in flight.
func (c *VirtualChip) AtCapacity() bool {
	full := c.queue.Len() >= c.queue.Cap()/2 || c.clock.PendingCycles() > MAX_CYCLES_IN_FLIGHT
	if full {
		// The backlog is clearly sufficient; let the render side drain.
		c.drainStarted.Store(true)
	}
	return full
}

// HasMinBacklog reports whether enough data has accumulated to start
// draining without the stream immediately running dry.
func (c *VirtualChip) HasMinBacklog() bool {
	return c.clock.PendingCycles() > MIN_CYCLES_TO_DRAIN || c.queue.Len() > MIN_WRITES_TO_DRAIN
}

// StartDraining releases the render side to consume this chip's queue.
func (c *VirtualChip) StartDraining() {
	c.drainStarted.Store(true)
}

// FlushQueue discards pending commands without touching register state and
// rebases the due-cycle stamp to the current render position.
func (c *VirtualChip) FlushQueue() {
	c.queue.Flush()
	c.clock.Rebase()
	c.drainStarted.Store(false)
}

// ChipBank owns every chip slot for the process lifetime and hands
// contiguous-free sets to sessions. Occupancy is per-slot atomic; there are
// no cross-session locks.
type ChipBank struct {
	chips []*VirtualChip
}

func NewChipBank(maxChips, queueCapacity, sampleRate int) *ChipBank {
	b := &ChipBank{chips: make([]*VirtualChip, maxChips)}
	for i := range b.chips {
		b.chips[i] = newVirtualChip(i, queueCapacity, sampleRate)
	}
	return b
}

func (b *ChipBank) Size() int {
	return len(b.chips)
}

// Chips returns all slots; the render pipeline iterates these every frame.
func (b *ChipBank) Chips() []*VirtualChip {
	return b.chips
}

// ConfigureEngines applies the startup engine knobs to every slot. Must be
// called before the render pipeline starts; the engines are render-owned
// after that.
func (b *ChipBank) ConfigureEngines(filterBias float64, digiBoost bool) {
	for _, c := range b.chips {
		c.engine.SetFilterBias(filterBias)
		c.engine.SetDigiBoost(digiBoost)
	}
}

// Acquire claims count free chips for a session. Claimed slots are left in
// their reset state; the caller releases them with Release.
func (b *ChipBank) Acquire(count int) ([]*VirtualChip, error) {
	if count < 1 || count > len(b.chips) {
		return nil, fmt.Errorf("sid count %d out of range 1..%d", count, len(b.chips))
	}
	claimed := make([]*VirtualChip, 0, count)
	for _, c := range b.chips {
		if c.owned.CompareAndSwap(false, true) {
			claimed = append(claimed, c)
			if len(claimed) == count {
				return claimed, nil
			}
		}
	}
	for _, c := range claimed {
		c.owned.Store(false)
	}
	return nil, fmt.Errorf("no free chip slots for sid count %d", count)
}

// Release returns chips to the pool: pending commands are discarded, a
// reset is queued so the render side restores default register state, and
// the slot is muted until claimed again.
func (b *ChipBank) Release(chips []*VirtualChip) {
	for _, c := range chips {
		c.FlushQueue()
		c.clock.ResetProducer()
		c.queue.TryEnqueue(QueueEntry{Kind: CmdReset})
		c.StartDraining() // let the reset apply even with no backlog
		c.muted.Store(true)
		c.posLeft.Store(100)
		c.posRight.Store(100)
		c.owned.Store(false)
	}
}
