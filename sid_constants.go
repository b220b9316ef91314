// sid_constants.go - MOS 6581/8580 SID register addresses, timing tables and chip constants

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

import "math"

// SID register offsets (0x00-0x1C)
const (
	// Voice 1 registers (0x00-0x06)
	SID_V1_FREQ_LO = 0x00 // Voice 1 frequency low byte
	SID_V1_FREQ_HI = 0x01 // Voice 1 frequency high byte
	SID_V1_PW_LO   = 0x02 // Voice 1 pulse width low byte
	SID_V1_PW_HI   = 0x03 // Voice 1 pulse width high byte (bits 0-3 only)
	SID_V1_CTRL    = 0x04 // Voice 1 control register
	SID_V1_AD      = 0x05 // Voice 1 attack/decay
	SID_V1_SR      = 0x06 // Voice 1 sustain/release

	// Voices 2 and 3 repeat the same layout at a 7-register stride
	SID_VOICE_STRIDE = 7

	// Filter registers (0x15-0x17)
	SID_FC_LO    = 0x15 // Filter cutoff low (bits 0-2 only)
	SID_FC_HI    = 0x16 // Filter cutoff high byte
	SID_RES_FILT = 0x17 // Filter resonance (bits 4-7) and routing (bits 0-3)

	// Volume and filter mode (0x18)
	SID_MODE_VOL = 0x18

	// Read-only registers
	SID_POT_X = 0x19 // Potentiometer X (not implemented, reads 0xFF)
	SID_POT_Y = 0x1A // Potentiometer Y (not implemented, reads 0xFF)
	SID_OSC3  = 0x1B // Oscillator 3 output
	SID_ENV3  = 0x1C // Envelope 3 output

	SID_REG_COUNT = 0x20
)

// SID clock frequencies
const (
	SID_CLOCK_PAL  = 985248  // PAL C64 clock (Hz)
	SID_CLOCK_NTSC = 1022727 // NTSC C64 clock (Hz)
)

// SID chip model types
const (
	SID_MODEL_6581 = 0 // Original SID (non-linear filter, warmer sound)
	SID_MODEL_8580 = 1 // Revised SID (linear filter, cleaner sound)
)

// Voice control register bits
const (
	SID_CTRL_GATE     = 0x01 // Bit 0: Gate (trigger envelope)
	SID_CTRL_SYNC     = 0x02 // Bit 1: Sync with previous voice
	SID_CTRL_RINGMOD  = 0x04 // Bit 2: Ring modulation with previous voice
	SID_CTRL_TEST     = 0x08 // Bit 3: Test bit (resets oscillator)
	SID_CTRL_TRIANGLE = 0x10 // Bit 4: Triangle waveform
	SID_CTRL_SAWTOOTH = 0x20 // Bit 5: Sawtooth waveform
	SID_CTRL_PULSE    = 0x40 // Bit 6: Pulse waveform
	SID_CTRL_NOISE    = 0x80 // Bit 7: Noise waveform
)

// Filter resonance/routing register bits
const (
	SID_FILT_V1  = 0x01 // Bit 0: Route voice 1 through filter
	SID_FILT_V2  = 0x02 // Bit 1: Route voice 2 through filter
	SID_FILT_V3  = 0x04 // Bit 2: Route voice 3 through filter
	SID_FILT_EXT = 0x08 // Bit 3: Route external input through filter
	SID_FILT_RES = 0xF0 // Bits 4-7: Filter resonance (0-15)
)

// Mode/volume register bits
const (
	SID_MODE_VOL_MASK = 0x0F // Bits 0-3: Master volume (0-15)
	SID_MODE_LP       = 0x10 // Bit 4: Low-pass filter
	SID_MODE_BP       = 0x20 // Bit 5: Band-pass filter
	SID_MODE_HP       = 0x40 // Bit 6: High-pass filter
	SID_MODE_3OFF     = 0x80 // Bit 7: Voice 3 off (disconnect from output)
)

// SID DC offset constants (normalized to [-1, 1] output range)
// The 6581 has significant DC offset that creates characteristic "pumping"
// when combined with volume modulation. The 8580 is much cleaner.
const (
	SID_6581_DC_OFFSET = 0.38
	SID_8580_DC_OFFSET = 0.0
)

// Digi-boost input level for the 8580. Biases the external input path so
// volume-register sample playback comes out at 6581-like loudness.
const SID_DIGIBOOST_INPUT = -0.5

// SID ADSR rate counter periods (clock cycles)
// Base periods for each 4-bit ADSR value, indexed 0-15.
var sidADSRRatePeriods = [16]uint32{
	9, 32, 63, 95, 149, 220, 267, 313,
	392, 977, 1954, 3126, 3907, 11720, 19532, 31251,
}

// SID envelope exponential decay thresholds
// When the envelope level falls below a threshold, the decay/release rate
// slows by the matching multiplier, giving the characteristic bent curve.
var sidEnvExpThresholds = [6]uint8{93, 54, 26, 14, 6, 0}

// SID envelope exponential rate multipliers at each threshold
var sidEnvExpMultipliers = [6]uint8{1, 2, 4, 8, 16, 30}

// sid6581ResonanceTable provides non-linear resonance for the 6581 chip.
// The 6581 has a "wilder" resonance response with earlier self-oscillation.
var sid6581ResonanceTable = [16]float32{
	0.50, 0.55, 0.62, 0.72, 0.85, 1.00, 1.20, 1.50,
	1.90, 2.40, 3.00, 3.80, 4.80, 6.00, 8.00, 12.0,
}

// sid8580ResonanceTable provides more linear resonance for the 8580 chip.
var sid8580ResonanceTable = [16]float32{
	0.50, 0.60, 0.70, 0.82, 0.95, 1.10, 1.30, 1.50,
	1.75, 2.00, 2.30, 2.65, 3.00, 3.50, 4.20, 5.00,
}

// Filter cutoff lookup table size (11-bit cutoff register)
const (
	sidFilterCutoffTableSize = 2048
	sidFilterMaxCutoff6581   = 12000.0
	sidFilterMaxCutoff8580   = 18000.0
	sidFilterMinCutoff       = 30.0
)

// sidFilterCutoff6581Table provides pre-computed cutoff frequencies for 6581.
// Index is the 11-bit cutoff register value. The 6581 curve is non-linear,
// compressed at low register values and expanding at high ones.
var sidFilterCutoff6581Table [sidFilterCutoffTableSize]float32

// sidFilterCutoff8580Table provides pre-computed cutoff frequencies for 8580.
// The 8580 responds close to linearly across the register range.
var sidFilterCutoff8580Table [sidFilterCutoffTableSize]float32

func init() {
	for i := 0; i < sidFilterCutoffTableSize; i++ {
		hz6581 := sidFilterMinCutoff + math.Pow(float64(i), 1.35)*0.22
		if hz6581 > sidFilterMaxCutoff6581 {
			hz6581 = sidFilterMaxCutoff6581
		}
		sidFilterCutoff6581Table[i] = float32(hz6581)

		hz8580 := sidFilterMinCutoff + float64(i)*5.8
		if hz8580 > sidFilterMaxCutoff8580 {
			hz8580 = sidFilterMaxCutoff8580
		}
		sidFilterCutoff8580Table[i] = float32(hz8580)
	}
}

// Noise LFSR constants (23-bit shift register, clocked from oscillator bit 19)
const (
	NOISE_LFSR_SEED = 0x7FFFF8
	NOISE_LFSR_MASK = 0x7FFFFF
)
