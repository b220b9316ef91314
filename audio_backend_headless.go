//go:build headless

// audio_backend_headless.go - Silent audio bridge for headless builds

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

import (
	"sync"
	"time"
)

// AudioOutput in headless builds pumps the render pipeline at real-time
// rate and discards the samples. Sessions behave exactly as with a device,
// minus the sound.
type AudioOutput struct {
	renderer   *AudioRenderer
	events     *DeviceEvents
	sampleRate int

	stop    chan struct{}
	stopped sync.WaitGroup
}

func NewAudioOutput(renderer *AudioRenderer, sampleRate int, events *DeviceEvents) *AudioOutput {
	return &AudioOutput{
		renderer:   renderer,
		events:     events,
		sampleRate: sampleRate,
		stop:       make(chan struct{}),
	}
}

func (a *AudioOutput) Start() error {
	a.events.notifyDeviceReady()
	a.stopped.Add(1)
	go func() {
		defer a.stopped.Done()

		frames := a.sampleRate / 50
		scratch := make([]int16, frames*2)
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-a.stop:
				return
			case <-ticker.C:
				a.renderer.RenderFrames(scratch)
			}
		}
	}()
	return nil
}

func (a *AudioOutput) Close() {
	close(a.stop)
	a.stopped.Wait()
}
