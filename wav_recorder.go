// wav_recorder.go - WAV capture of the rendered stereo output

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavRecorder tees the render output into a 16-bit stereo WAV file. Writes
// come from the audio callback; Close can come from the shutdown path, so
// the encoder is guarded by a mutex.
type WavRecorder struct {
	mu     sync.Mutex
	file   *os.File
	enc    *wav.Encoder
	closed bool
}

func NewWavRecorder(path string, sampleRate int) (*WavRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording %s: %w", path, err)
	}
	return &WavRecorder{
		file: f,
		enc:  wav.NewEncoder(f, sampleRate, 16, 2, 1),
	}, nil
}

// WriteFrames appends interleaved stereo samples. Errors are reported once
// and further writes are dropped; a failing disk must not stall playback.
func (r *WavRecorder) WriteFrames(frames []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	data := make([]int, len(frames))
	for i, s := range frames {
		data[i] = int(s)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: r.enc.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := r.enc.Write(buf); err != nil {
		fmt.Printf("recording failed, stopping capture: %v\n", err)
		r.closeLocked()
	}
}

// Close finalizes the WAV header and closes the file.
func (r *WavRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *WavRecorder) closeLocked() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.enc.Close(); err != nil {
		r.file.Close()
		return fmt.Errorf("finalize recording: %w", err)
	}
	return r.file.Close()
}
