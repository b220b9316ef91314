// sid_chip.go - Vendored MOS 6581/8580 SID synthesis core

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

/*
Cycle-driven three-voice SID model. Oscillators are 24-bit phase accumulators
clocked at the chip rate, envelopes use the hardware rate-counter periods with
the exponential decay segments, and the filter applies per-model cutoff curves
and resonance tables at sample granularity. Combined waveforms are approximated
by ANDing the selected outputs rather than by die-level tables.

The core is only ever driven through the ChipEngine capability set and only
from the render side; it carries no locks.
*/

package main

import "math"

const (
	sidAccumMask = 0xFFFFFF // 24-bit oscillator accumulator
	sidAccumMSB  = 0x800000
	sidNoiseBit  = 1 << 20 // noise LFSR clocks on bit 19 rising edges
)

// Envelope phases
const (
	envAttack = iota
	envDecaySustain
	envRelease
)

type sidVoice struct {
	freq uint16 // Oscillator frequency registers
	pw   uint16 // Pulse width (12-bit)
	ctrl uint8  // Control register

	attack  uint8
	decay   uint8
	sustain uint8
	release uint8

	accum     uint32 // 24-bit phase accumulator
	noiseSR   uint32 // 23-bit noise shift register
	msbRising bool   // MSB rose during the last Advance (drives hard sync)

	envLevel    uint8
	envPhase    int
	rateCounter uint32
	expCounter  uint8
	holdZero    bool

	muted bool
}

// SidChip implements ChipEngine with a self-contained synthesis model.
type SidChip struct {
	voices [3]sidVoice
	regs   [SID_REG_COUNT]uint8

	model     int
	clockHz   uint32
	sampleHz  int
	digiBoost bool
	bias      float64

	// Filter state (sample-rate granularity)
	filterLP float32
	filterBP float32
	filterHP float32
}

// NewSidChip returns a chip in 6581 PAL configuration.
func NewSidChip(sampleRate int) *SidChip {
	c := &SidChip{
		model:    SID_MODEL_6581,
		clockHz:  SID_CLOCK_PAL,
		sampleHz: sampleRate,
	}
	c.Reset()
	return c
}

func (c *SidChip) Reset() {
	for i := range c.regs {
		c.regs[i] = 0
	}
	for v := range c.voices {
		c.voices[v] = sidVoice{noiseSR: NOISE_LFSR_SEED}
	}
	c.filterLP = 0
	c.filterBP = 0
	c.filterHP = 0
}

func (c *SidChip) SetModel(model int) error {
	if model != SID_MODEL_6581 && model != SID_MODEL_8580 {
		return errUnknownModel
	}
	c.model = model
	// Model swap invalidates filter state
	c.filterLP = 0
	c.filterBP = 0
	c.filterHP = 0
	return nil
}

func (c *SidChip) SetClockRate(hz uint32) {
	if hz != 0 {
		c.clockHz = hz
	}
}

func (c *SidChip) SetFilterBias(bias float64) {
	c.bias = bias
}

func (c *SidChip) SetDigiBoost(enabled bool) {
	c.digiBoost = enabled
}

// SetVoiceMute silences one voice without touching its register state.
func (c *SidChip) SetVoiceMute(voice int, muted bool) {
	if voice >= 0 && voice < 3 {
		c.voices[voice].muted = muted
	}
}

func (c *SidChip) WriteRegister(reg, value uint8) {
	if reg >= SID_REG_COUNT {
		return
	}
	c.regs[reg] = value

	if reg < 0x15 {
		voice := int(reg) / SID_VOICE_STRIDE
		v := &c.voices[voice]
		switch reg % SID_VOICE_STRIDE {
		case SID_V1_FREQ_LO:
			v.freq = (v.freq & 0xFF00) | uint16(value)
		case SID_V1_FREQ_HI:
			v.freq = (v.freq & 0x00FF) | (uint16(value) << 8)
		case SID_V1_PW_LO:
			v.pw = (v.pw & 0x0F00) | uint16(value)
		case SID_V1_PW_HI:
			v.pw = (v.pw & 0x00FF) | (uint16(value&0x0F) << 8)
		case SID_V1_CTRL:
			prev := v.ctrl
			v.ctrl = value
			if value&SID_CTRL_TEST != 0 {
				v.accum = 0
				v.noiseSR = NOISE_LFSR_SEED
			}
			gateOn := value&SID_CTRL_GATE != 0
			wasOn := prev&SID_CTRL_GATE != 0
			if gateOn && !wasOn {
				v.envPhase = envAttack
				v.holdZero = false
			} else if !gateOn && wasOn {
				v.envPhase = envRelease
			}
		case SID_V1_AD:
			v.attack = value >> 4
			v.decay = value & 0x0F
		case SID_V1_SR:
			v.sustain = value >> 4
			v.release = value & 0x0F
		}
	}
}

func (c *SidChip) ReadRegister(reg uint8) uint8 {
	switch reg {
	case SID_POT_X, SID_POT_Y:
		return 0xFF
	case SID_OSC3:
		return uint8(c.waveOutput(2) >> 4)
	case SID_ENV3:
		return c.voices[2].envLevel
	}
	if reg < SID_REG_COUNT {
		return c.regs[reg]
	}
	return 0
}

// Advance clocks all three oscillators and envelopes forward. Oscillator
// phase and noise shifts are computed in closed form so large cycle deltas
// stay O(1).
func (c *SidChip) Advance(cycles uint32) {
	if cycles == 0 {
		return
	}
	for i := range c.voices {
		v := &c.voices[i]

		if v.ctrl&SID_CTRL_TEST != 0 {
			v.msbRising = false
		} else {
			old := uint64(v.accum)
			next := old + uint64(v.freq)*uint64(cycles)
			v.msbRising = (old&sidAccumMSB == 0) && (next&sidAccumMSB != 0) ||
				next >= (1<<24) && (next&sidAccumMSB != 0)

			// Noise LFSR steps once per bit-19 rising edge
			steps := uint32((next / sidNoiseBit) - (old / sidNoiseBit))
			for s := uint32(0); s < steps; s++ {
				bit := ((v.noiseSR >> 22) ^ (v.noiseSR >> 17)) & 1
				v.noiseSR = ((v.noiseSR << 1) | bit) & NOISE_LFSR_MASK
			}
			v.accum = uint32(next) & sidAccumMask
		}

		c.advanceEnvelope(v, cycles)
	}

	// Hard sync: a master MSB rise resets the slave accumulator.
	// Voice N is synced by voice N-1 (voice 0 by voice 2).
	for i := range c.voices {
		v := &c.voices[i]
		if v.ctrl&SID_CTRL_SYNC != 0 && c.voices[(i+2)%3].msbRising {
			v.accum = 0
		}
	}
}

func (c *SidChip) advanceEnvelope(v *sidVoice, cycles uint32) {
	var period uint32
	switch v.envPhase {
	case envAttack:
		period = sidADSRRatePeriods[v.attack]
	case envDecaySustain:
		period = sidADSRRatePeriods[v.decay]
	case envRelease:
		period = sidADSRRatePeriods[v.release]
	}

	v.rateCounter += cycles
	for v.rateCounter >= period {
		v.rateCounter -= period

		switch v.envPhase {
		case envAttack:
			if v.envLevel < 255 {
				v.envLevel++
			}
			if v.envLevel == 255 {
				v.envPhase = envDecaySustain
				v.expCounter = 0
			}
		case envDecaySustain:
			sustainLevel := v.sustain<<4 | v.sustain
			if v.envLevel > sustainLevel {
				if c.expStep(v) {
					v.envLevel--
				}
			}
		case envRelease:
			if v.envLevel > 0 && !v.holdZero {
				if c.expStep(v) {
					v.envLevel--
				}
			}
			if v.envLevel == 0 {
				v.holdZero = true
			}
		}
	}
}

// expStep implements the exponential segment slowdown: below each threshold
// the counter must wrap the matching multiplier before the level drops again.
func (c *SidChip) expStep(v *sidVoice) bool {
	mult := sidEnvExpMultipliers[0]
	for i, threshold := range sidEnvExpThresholds {
		if v.envLevel <= threshold {
			mult = sidEnvExpMultipliers[i]
		}
	}
	v.expCounter++
	if v.expCounter >= mult {
		v.expCounter = 0
		return true
	}
	return false
}

// waveOutput returns the 12-bit waveform DAC value for a voice.
func (c *SidChip) waveOutput(voice int) uint16 {
	v := &c.voices[voice]
	wave := v.ctrl & (SID_CTRL_TRIANGLE | SID_CTRL_SAWTOOTH | SID_CTRL_PULSE | SID_CTRL_NOISE)
	if wave == 0 {
		return 0
	}

	out := uint16(0xFFF)

	if wave&SID_CTRL_TRIANGLE != 0 {
		msbSource := v.accum
		if v.ctrl&SID_CTRL_RINGMOD != 0 {
			msbSource ^= c.voices[(voice+2)%3].accum
		}
		tri := v.accum
		if msbSource&sidAccumMSB != 0 {
			tri = ^tri
		}
		out &= uint16((tri >> 11) & 0xFFF)
	}
	if wave&SID_CTRL_SAWTOOTH != 0 {
		out &= uint16(v.accum >> 12)
	}
	if wave&SID_CTRL_PULSE != 0 {
		if v.ctrl&SID_CTRL_TEST != 0 || uint16(v.accum>>12) >= v.pw {
			out &= 0xFFF
		} else {
			out &= 0
		}
	}
	if wave&SID_CTRL_NOISE != 0 {
		sr := v.noiseSR
		noise := uint16(sr>>15&0x1)<<11 | uint16(sr>>13&0x1)<<10 |
			uint16(sr>>11&0x1)<<9 | uint16(sr>>7&0x1)<<8 |
			uint16(sr>>5&0x1)<<7 | uint16(sr>>3&0x1)<<6 |
			uint16(sr>>1&0x1)<<5 | uint16(sr&0x1)<<4
		out &= noise
	}

	return out
}

// Sample mixes the three voices through the filter and master volume and
// returns the amplitude for the just-completed sample period.
func (c *SidChip) Sample() int16 {
	modeVol := c.regs[SID_MODE_VOL]
	volume := float32(modeVol&SID_MODE_VOL_MASK) / 15.0

	resFilt := c.regs[SID_RES_FILT]

	var direct, filtered float32
	for i := range c.voices {
		v := &c.voices[i]
		if v.muted {
			continue
		}
		if i == 2 && modeVol&SID_MODE_3OFF != 0 && resFilt&SID_FILT_V3 == 0 {
			// Voice 3 disconnect only applies to the unfiltered path
			continue
		}

		wave := float32(int32(c.waveOutput(i))-0x800) / 2048.0
		level := wave * float32(v.envLevel) / 255.0
		if c.model == SID_MODEL_6581 {
			level += SID_6581_DC_OFFSET * float32(v.envLevel) / 255.0 / 8.0
		}

		if resFilt&(1<<i) != 0 {
			filtered += level
		} else {
			direct += level
		}
	}

	// External input path (digi-boost on the 8580)
	if c.digiBoost && c.model == SID_MODEL_8580 {
		if resFilt&SID_FILT_EXT != 0 {
			filtered += SID_DIGIBOOST_INPUT
		} else {
			direct += SID_DIGIBOOST_INPUT
		}
	}

	sample := direct + c.runFilter(filtered)
	sample = sample / 3.0 * volume

	if sample > 1.0 {
		sample = 1.0
	} else if sample < -1.0 {
		sample = -1.0
	}
	return int16(sample * 28000)
}

// runFilter applies the state-variable filter to the routed voices at sample
// granularity, using the per-model cutoff and resonance tables.
func (c *SidChip) runFilter(input float32) float32 {
	modeVol := c.regs[SID_MODE_VOL]
	mode := modeVol & (SID_MODE_LP | SID_MODE_BP | SID_MODE_HP)
	if mode == 0 {
		return input
	}

	fcReg := int(c.regs[SID_FC_LO]&0x07) | int(c.regs[SID_FC_HI])<<3
	var cutoffHz float64
	var res float32
	resIndex := (c.regs[SID_RES_FILT] & SID_FILT_RES) >> 4
	if c.model == SID_MODEL_8580 {
		cutoffHz = float64(sidFilterCutoff8580Table[fcReg])
		res = sid8580ResonanceTable[resIndex]
	} else {
		// Filter bias shifts the effective 6581 cutoff curve
		cutoffHz = float64(sidFilterCutoff6581Table[fcReg]) * (1.0 + c.bias)
		res = sid6581ResonanceTable[resIndex]
	}

	f := float32(2.0 * math.Sin(math.Pi*math.Min(cutoffHz/float64(c.sampleHz), 0.25)))
	q := 1.0 / res

	c.filterLP += f * c.filterBP
	c.filterHP = input - c.filterLP - q*c.filterBP
	c.filterBP += f * c.filterHP

	clampF := func(x float32) float32 {
		if x > 1.5 {
			return 1.5
		}
		if x < -1.5 {
			return -1.5
		}
		return x
	}
	c.filterLP = clampF(c.filterLP)
	c.filterBP = clampF(c.filterBP)
	c.filterHP = clampF(c.filterHP)

	var out float32
	if mode&SID_MODE_LP != 0 {
		out += c.filterLP
	}
	if mode&SID_MODE_BP != 0 {
		out += c.filterBP
	}
	if mode&SID_MODE_HP != 0 {
		out += c.filterHP
	}
	return out
}
