// audio_renderer.go - Real-time render pipeline: queue drain, chip advance, stereo mix

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

import (
	"fmt"
	"sync/atomic"
	"time"
)

// AudioRenderer is the single consumer of every chip's command queue. The
// audio backend pulls interleaved stereo int16 frames from RenderFrames on
// its callback path; everything here runs on that one goroutine.
type AudioRenderer struct {
	bank       *ChipBank
	sampleRate int

	recorder atomic.Pointer[WavRecorder]

	lastActive atomic.Int64 // unix nanos of last frame with pending work

	ditherSeed uint32
}

func NewAudioRenderer(bank *ChipBank, sampleRate int) *AudioRenderer {
	r := &AudioRenderer{
		bank:       bank,
		sampleRate: sampleRate,
		ditherSeed: 0x1234567,
	}
	r.lastActive.Store(time.Now().UnixNano())
	return r
}

// SetRecorder attaches (or detaches, with nil) a WAV capture tee.
func (r *AudioRenderer) SetRecorder(rec *WavRecorder) {
	r.recorder.Store(rec)
}

// MarkActive records client activity. Sessions call this on every accepted
// command so a paused audio device wakes up even though the render callback
// is not running.
func (r *AudioRenderer) MarkActive() {
	r.lastActive.Store(time.Now().UnixNano())
}

// IdleFor reports whether no chip has had pending work for at least d.
// The audio backend uses this to pause the device between tunes.
func (r *AudioRenderer) IdleFor(d time.Duration) bool {
	return time.Since(time.Unix(0, r.lastActive.Load())) >= d
}

// RenderFrames fills buf with interleaved stereo samples. len(buf) must be
// even; len(buf)/2 frames are produced.
func (r *AudioRenderer) RenderFrames(buf []int16) {
	chips := r.bank.Chips()
	busy := false

	for frame := 0; frame < len(buf)/2; frame++ {
		var left, right int32

		for _, c := range chips {
			s := r.renderChipSample(c)
			if s != 0 {
				busy = true
			}
			if c.owned.Load() && !c.muted.Load() {
				left += int32(s) * c.posLeft.Load() / 100
				right += int32(s) * c.posRight.Load() / 100
			}
		}

		buf[frame*2] = r.ditherClamp(left)
		buf[frame*2+1] = r.ditherClamp(right)
	}

	for _, c := range chips {
		if c.queue.Len() > 0 || c.clock.PendingCycles() > 0 {
			busy = true
		}
	}
	if busy {
		r.lastActive.Store(time.Now().UnixNano())
	}

	if rec := r.recorder.Load(); rec != nil {
		rec.WriteFrames(buf)
	}
}

// renderChipSample advances one chip by its per-sample cycle budget,
// applying due commands at their exact offsets, and returns its sample.
func (r *AudioRenderer) renderChipSample(c *VirtualChip) int16 {
	if !c.drainStarted.Load() {
		if !c.HasMinBacklog() {
			// Hold the chip clock until enough data has queued up,
			// otherwise the first writes of a tune play out of sync.
			return 0
		}
		c.drainStarted.Store(true)
	}

	// Bresenham cycle budget: clockHz cycles per sampleRate samples,
	// remainder carried across frames so long-run drift stays within one
	// cycle.
	c.cycleFrac += uint64(c.clockHz.Load())
	budget := uint32(c.cycleFrac / uint64(r.sampleRate))
	c.cycleFrac %= uint64(r.sampleRate)

	remaining := budget
	for {
		cur := c.clock.Current()
		e, ok := c.queue.PeekDue(cur + uint64(remaining))
		if !ok {
			break
		}
		if e.Due > cur {
			step := uint32(e.Due - cur)
			c.engine.Advance(step)
			c.clock.Advance(step)
			remaining -= step
		}
		if e, ok = c.queue.PopFront(); ok {
			r.applyEntry(c, e)
		}
	}
	if remaining > 0 {
		c.engine.Advance(remaining)
		c.clock.Advance(remaining)
	}

	c.osc3.Store(uint32(c.engine.ReadRegister(SID_OSC3)))
	c.env3.Store(uint32(c.engine.ReadRegister(SID_ENV3)))
	return c.engine.Sample()
}

func (r *AudioRenderer) applyEntry(c *VirtualChip, e QueueEntry) {
	switch e.Kind {
	case CmdWrite:
		c.engine.WriteRegister(e.Reg, e.Value)
		if e.Reg < SID_REG_COUNT {
			c.regs[e.Reg].Store(uint32(e.Value))
		}
	case CmdReset:
		c.engine.Reset()
		c.engine.WriteRegister(SID_MODE_VOL, e.Value)
		for i := range c.regs {
			c.regs[i].Store(0)
		}
		c.regs[SID_MODE_VOL].Store(uint32(e.Value))
		c.osc3.Store(0)
		c.env3.Store(0)
		c.clock.ResetRender()
	case CmdSetModel:
		if err := c.engine.SetModel(int(e.Aux)); err != nil {
			// Should have been rejected at the protocol layer; recover
			// with a clean chip rather than undefined filter state.
			fmt.Printf("chip %d: %v; resetting\n", c.slot, err)
			c.engine.Reset()
		}
	case CmdSetClockRate:
		c.engine.SetClockRate(e.Aux)
	case CmdMute:
		voice := int(e.Reg)
		muted := e.Value != 0
		if voice < 3 {
			c.engine.SetVoiceMute(voice, muted)
		} else {
			for v := 0; v < 3; v++ {
				c.engine.SetVoiceMute(v, muted)
			}
		}
	}
}

// ditherClamp adds one LSB of triangular-ish noise to mask quantization of
// the mixed-down sum, then saturates to int16.
func (r *AudioRenderer) ditherClamp(v int32) int16 {
	r.ditherSeed = r.ditherSeed*1103515245 + 12345
	v += int32(r.ditherSeed>>30) - 1
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
