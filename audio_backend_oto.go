//go:build !headless

// audio_backend_oto.go - oto v3 audio device bridge

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

const (
	AUDIO_CHANNELS     = 2
	IDLE_PAUSE_AFTER   = 2 * time.Second
	DEVICE_RETRY_EVERY = 5 * time.Second
	WATCHDOG_INTERVAL  = 250 * time.Millisecond
)

// AudioOutput drives the render pipeline from the platform audio device.
// oto pulls sample data through Read on its own callback goroutine; that
// makes the audio device the clock source for the whole server. When no
// device is available the silent pump takes over as clock source so
// sessions still drain, and the device is retried in the background.
type AudioOutput struct {
	renderer   *AudioRenderer
	events     *DeviceEvents
	sampleRate int

	mutex   sync.Mutex
	ctx     *oto.Context
	player  *oto.Player
	paused  bool
	stop    chan struct{}
	stopped sync.WaitGroup

	frameBuf []int16
}

func NewAudioOutput(renderer *AudioRenderer, sampleRate int, events *DeviceEvents) *AudioOutput {
	return &AudioOutput{
		renderer:   renderer,
		events:     events,
		sampleRate: sampleRate,
		stop:       make(chan struct{}),
	}
}

// Start opens the audio device and begins playback. If the device cannot
// be opened the server keeps running on the silent pump and retries.
func (a *AudioOutput) Start() error {
	if err := a.openDevice(); err != nil {
		a.events.notifyDeviceError(err)
		a.stopped.Add(1)
		go a.silentPump()
		return nil
	}
	a.stopped.Add(1)
	go a.watchdog()
	return nil
}

func (a *AudioOutput) openDevice() error {
	op := &oto.NewContextOptions{
		SampleRate:   a.sampleRate,
		ChannelCount: AUDIO_CHANNELS,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	a.mutex.Lock()
	a.ctx = ctx
	a.player = ctx.NewPlayer(a)
	a.player.Play()
	a.paused = false
	a.mutex.Unlock()

	a.events.notifyDeviceReady()
	return nil
}

// Read is the oto callback. It renders whole stereo frames and encodes
// them little-endian; a trailing odd byte count is zero padded.
func (a *AudioOutput) Read(p []byte) (int, error) {
	frames := len(p) / 4
	if frames == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	if len(a.frameBuf) < frames*2 {
		a.frameBuf = make([]int16, frames*2)
	}
	samples := a.frameBuf[:frames*2]
	a.renderer.RenderFrames(samples)

	for i, s := range samples {
		p[i*2] = byte(s)
		p[i*2+1] = byte(uint16(s) >> 8)
	}
	for i := frames * 4; i < len(p); i++ {
		p[i] = 0
	}
	return len(p), nil
}

// watchdog pauses the device after a stretch of inactivity and resumes it
// when a session queues new work. Keeps the process off the CPU and the
// mixer quiet between tunes.
func (a *AudioOutput) watchdog() {
	defer a.stopped.Done()
	ticker := time.NewTicker(WATCHDOG_INTERVAL)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
		}

		idle := a.renderer.IdleFor(IDLE_PAUSE_AFTER)
		a.mutex.Lock()
		if a.player != nil {
			if idle && !a.paused {
				a.player.Pause()
				a.paused = true
			} else if !idle && a.paused {
				a.player.Play()
				a.paused = false
			}
		}
		a.mutex.Unlock()
	}
}

// silentPump consumes the render pipeline at real-time rate when no audio
// device is available, so clients still get their queues drained. Retries
// the device periodically and hands over when it comes back.
func (a *AudioOutput) silentPump() {
	defer a.stopped.Done()

	const pumpInterval = 20 * time.Millisecond
	frames := a.sampleRate / 50
	scratch := make([]int16, frames*2)

	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()
	retry := time.NewTicker(DEVICE_RETRY_EVERY)
	defer retry.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			a.renderer.RenderFrames(scratch)
		case <-retry.C:
			if err := a.openDevice(); err == nil {
				a.stopped.Add(1)
				go a.watchdog()
				return
			}
		}
	}
}

// Close stops playback and releases the device.
func (a *AudioOutput) Close() {
	close(a.stop)
	a.stopped.Wait()

	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.player != nil {
		a.player.Close()
		a.player = nil
	}
	if a.ctx != nil {
		a.ctx.Suspend()
		a.ctx = nil
	}
}
