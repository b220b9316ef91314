// virtual_clock.go - Per-chip virtual cycle clock and due-cycle stamping

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

import "sync/atomic"

// VirtualClock tracks one chip's position on the virtual cycle axis.
//
// The decoder side is the only writer of nextDue: relative delays accumulate
// into it and each decoded write is stamped with the running total. The
// render side owns current and advances it as samples are produced; the
// fixed output sample rate is what ties virtual cycles to wall-clock time.
// Both fields are atomic because each side reads the other's counter for
// admission and drain decisions.
type VirtualClock struct {
	current atomic.Uint64
	nextDue atomic.Uint64
}

// AddDelay folds a relative delay into the next due-cycle stamp. Delays are
// not queued themselves; the following stamped command carries their sum.
func (c *VirtualClock) AddDelay(cycles uint32) {
	c.nextDue.Add(uint64(cycles))
}

// NextDue returns the due-cycle stamp for the next decoded command.
func (c *VirtualClock) NextDue() uint64 {
	return c.nextDue.Load()
}

// Current returns the cycle the render side has advanced the chip to.
func (c *VirtualClock) Current() uint64 {
	return c.current.Load()
}

// Advance moves the render-side cycle position forward.
func (c *VirtualClock) Advance(cycles uint32) {
	c.current.Add(uint64(cycles))
}

// PendingCycles is the distance between the last stamped command and the
// render position: the virtual time still owed to the chip. Used alongside
// queue occupancy for admission control.
func (c *VirtualClock) PendingCycles() uint64 {
	due := c.nextDue.Load()
	cur := c.current.Load()
	if due <= cur {
		return 0
	}
	return due - cur
}

// Rebase aligns the decoder-side stamp with the current render position.
// Used on Flush so that new delays accumulate from "now" rather than from
// a discarded future.
func (c *VirtualClock) Rebase() {
	c.nextDue.Store(c.current.Load())
}

// ResetProducer zeroes the decoder-side stamp. The render side zeroes
// current when it applies the matching Reset command.
func (c *VirtualClock) ResetProducer() {
	c.nextDue.Store(0)
}

// ResetRender zeroes the render-side position.
func (c *VirtualClock) ResetRender() {
	c.current.Store(0)
}
