// events.go - Nil-safe lifecycle notification hooks

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

// DeviceEvents carries optional callbacks for device and session lifecycle
// transitions. Any field may be nil; the notify methods are safe on a nil
// receiver too, so plumbing code never needs to guard.
type DeviceEvents struct {
	DeviceReady         func()
	DeviceError         func(err error)
	SessionConnected    func(remote string)
	SessionDisconnected func(remote string)
}

func (e *DeviceEvents) notifyDeviceReady() {
	if e != nil && e.DeviceReady != nil {
		e.DeviceReady()
	}
}

func (e *DeviceEvents) notifyDeviceError(err error) {
	if e != nil && e.DeviceError != nil {
		e.DeviceError(err)
	}
}

func (e *DeviceEvents) notifySessionConnected(remote string) {
	if e != nil && e.SessionConnected != nil {
		e.SessionConnected(remote)
	}
}

func (e *DeviceEvents) notifySessionDisconnected(remote string) {
	if e != nil && e.SessionDisconnected != nil {
		e.SessionDisconnected(remote)
	}
}
