// chip_engine.go - Capability set for the wrapped SID emulation core

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

import "fmt"

// ChipEngine is the fixed capability set through which the render pipeline
// drives one emulated SID. The engine's internal filter and waveform state is
// opaque; it is only ever mutated through these calls, and only ever from the
// render side. An alternative emulation core (e.g. a cgo reSID build) can be
// swapped in by implementing this interface.
type ChipEngine interface {
	// WriteRegister sets a chip register (0x00-0x1C).
	WriteRegister(reg, value uint8)
	// ReadRegister returns the live value of a readable register
	// (OSC3/ENV3 read back oscillator and envelope state of voice 3).
	ReadRegister(reg uint8) uint8
	// Advance clocks the engine forward by the given number of chip cycles.
	Advance(cycles uint32)
	// Sample returns the output amplitude for the sample period that the
	// preceding Advance calls just completed.
	Sample() int16
	// Reset restores the default register and envelope state.
	Reset()
	// SetModel selects the chip variant, invalidating internal filter state.
	SetModel(model int) error
	// SetVoiceMute silences one of the three voices without touching its
	// oscillator or envelope state.
	SetVoiceMute(voice int, muted bool)
	// SetClockRate sets the master clock the register frequency values are
	// relative to (PAL or NTSC rate).
	SetClockRate(hz uint32)
	// SetFilterBias adjusts the 6581 filter DAC bias (no effect on 8580).
	SetFilterBias(bias float64)
	// SetDigiBoost toggles boosted volume-register sample playback (8580).
	SetDigiBoost(enabled bool)
}

// errUnknownModel is returned by SetModel for selectors other than the two
// supported chip variants. Sessions reject bad selectors before they reach
// the engine, so seeing this at render time is an engine fault: the chip is
// reset to its default state and the condition is logged.
var errUnknownModel = fmt.Errorf("unsupported SID model")
