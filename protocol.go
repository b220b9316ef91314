// protocol.go - Network SID Device protocol constants and framing

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

import "fmt"

// Network SID Device protocol, version 4. Requests are framed as
// [command u8][sidNum u8][dataLen u16 BE][payload]; every request gets a
// synchronous response starting with one of the RESP_ status bytes.
const (
	CMD_FLUSH             = 0
	CMD_TRY_SET_SID_COUNT = 1
	CMD_MUTE              = 2
	CMD_TRY_RESET         = 3
	CMD_TRY_DELAY         = 4
	CMD_TRY_WRITE         = 5
	CMD_TRY_READ          = 6
	CMD_GET_VERSION       = 7
	CMD_TRY_SET_SAMPLING  = 8
	CMD_TRY_SET_CLOCK     = 9
	CMD_GET_CONFIG_COUNT  = 10
	CMD_GET_CONFIG_INFO   = 11
	CMD_SET_SID_POSITION  = 12
	CMD_SET_SID_LEVEL     = 13
	CMD_TRY_SET_SID_MODEL = 14
	CMD_SET_DELAY         = 15
	CMD_SET_FADE_IN       = 16
	CMD_SET_FADE_OUT      = 17
	CMD_SET_PSID_HEADER   = 18
)

const (
	RESP_OK      = 0
	RESP_BUSY    = 1
	RESP_ERR     = 2
	RESP_READ    = 3
	RESP_VERSION = 4
	RESP_COUNT   = 5
	RESP_INFO    = 6
)

const (
	PROTOCOL_VERSION  = 4
	NUMBER_OF_DEVICES = 2 // advertised device configs: 6581 and 8580

	NETWORK_PORT = 6581

	// Largest payload a client may send in one frame. Large enough for any
	// realistic write burst, small enough to bound per-session memory.
	MAX_FRAME_PAYLOAD = 64 * 1024

	// Write quads are [cycles u16 BE][reg u8][val u8].
	WRITE_QUAD_SIZE = 4
	// The read trailer is [cycles u16 BE][reg u8].
	READ_TRAILER_SIZE = 3
)

// Advertised config names, one per device config. The trailing NUL is part
// of the wire format.
var deviceConfigNames = [NUMBER_OF_DEVICES]string{
	"reSID Device (6581)\x00",
	"reSID Device (8580)\x00",
}

// deviceConfigModels maps config index to the model bit sent in the
// GET_CONFIG_INFO response.
var deviceConfigModels = [NUMBER_OF_DEVICES]uint8{SID_MODEL_6581, SID_MODEL_8580}

// frameHeader is a decoded request header.
type frameHeader struct {
	command uint8
	sidNum  uint8
	dataLen uint16
}

// ProtocolError is fatal for the session that produced it: the connection
// is closed after an ERROR response, other sessions are unaffected.
type ProtocolError struct {
	Command uint8
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error (command %d): %s", e.Command, e.Reason)
}

func protoErrf(command uint8, format string, args ...any) *ProtocolError {
	return &ProtocolError{Command: command, Reason: fmt.Sprintf(format, args...)}
}
