// session_test.go - Protocol session decoding over an in-memory connection

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sessionRig struct {
	bank   *ChipBank
	client net.Conn
	done   chan struct{}
}

func newSessionRig(t *testing.T, maxSids int) *sessionRig {
	t.Helper()
	return newSessionRigWithBank(t, NewChipBank(maxSids, DEFAULT_QUEUE_CAPACITY, DEFAULT_SAMPLE_RATE))
}

// newSessionRigWithBank attaches a session to an existing bank, so tests
// can run several sessions against the same chip pool.
func newSessionRigWithBank(t *testing.T, bank *ChipBank) *sessionRig {
	t.Helper()
	renderer := NewAudioRenderer(bank, DEFAULT_SAMPLE_RATE)

	client, server := net.Pipe()
	sess := NewSession(server, bank, renderer, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Run()
	}()
	t.Cleanup(func() {
		client.Close()
		<-done
	})
	return &sessionRig{bank: bank, client: client, done: done}
}

func (rig *sessionRig) send(t *testing.T, command, sidNum uint8, payload []byte) {
	t.Helper()
	frame := []byte{command, sidNum, byte(len(payload) >> 8), byte(len(payload))}
	frame = append(frame, payload...)
	require.NoError(t, rig.client.SetWriteDeadline(time.Now().Add(time.Second)))
	_, err := rig.client.Write(frame)
	require.NoError(t, err)
}

func (rig *sessionRig) recv(t *testing.T, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	require.NoError(t, rig.client.SetReadDeadline(time.Now().Add(time.Second)))
	_, err := io.ReadFull(rig.client, buf)
	require.NoError(t, err)
	return buf
}

func (rig *sessionRig) roundTrip(t *testing.T, command, sidNum uint8, payload []byte, respLen int) []byte {
	rig.send(t, command, sidNum, payload)
	return rig.recv(t, respLen)
}

func TestSessionHandshakeQueries(t *testing.T) {
	rig := newSessionRig(t, 2)

	resp := rig.roundTrip(t, CMD_GET_VERSION, 0, nil, 2)
	require.Equal(t, []byte{RESP_VERSION, PROTOCOL_VERSION}, resp)

	resp = rig.roundTrip(t, CMD_GET_CONFIG_COUNT, 0, nil, 2)
	require.Equal(t, []byte{RESP_COUNT, NUMBER_OF_DEVICES}, resp)

	resp = rig.roundTrip(t, CMD_GET_CONFIG_INFO, 0, nil, 2+len(deviceConfigNames[0]))
	require.Equal(t, uint8(RESP_INFO), resp[0])
	require.Equal(t, uint8(SID_MODEL_6581), resp[1])
	require.Equal(t, "reSID Device (6581)\x00", string(resp[2:]))

	resp = rig.roundTrip(t, CMD_GET_CONFIG_INFO, 1, nil, 2+len(deviceConfigNames[1]))
	require.Equal(t, uint8(SID_MODEL_8580), resp[1])
	require.Equal(t, "reSID Device (8580)\x00", string(resp[2:]))
}

func TestSessionWriteBeforeHandshakeCloses(t *testing.T) {
	rig := newSessionRig(t, 1)

	resp := rig.roundTrip(t, CMD_TRY_WRITE, 0, []byte{0, 10, SID_MODE_VOL, 0x0F}, 1)
	require.Equal(t, uint8(RESP_ERR), resp[0])

	select {
	case <-rig.done:
	case <-time.After(time.Second):
		t.Fatal("session still alive after protocol error")
	}
	require.False(t, rig.bank.Chips()[0].owned.Load(), "chip left claimed by a dead session")
}

func TestSessionWriteFlow(t *testing.T) {
	rig := newSessionRig(t, 1)

	resp := rig.roundTrip(t, CMD_TRY_SET_SID_COUNT, 1, nil, 1)
	require.Equal(t, uint8(RESP_OK), resp[0])
	c := rig.bank.Chips()[0]
	require.True(t, c.owned.Load())

	// Two cycle-stamped writes in one frame.
	payload := []byte{
		0x00, 0x0A, SID_MODE_VOL, 0x0F,
		0x01, 0x00, 0x04, SID_CTRL_SAWTOOTH | SID_CTRL_GATE,
	}
	resp = rig.roundTrip(t, CMD_TRY_WRITE, 0, payload, 1)
	require.Equal(t, uint8(RESP_OK), resp[0])
	require.Equal(t, uint64(0x0A+0x100), c.clock.NextDue())

	resp = rig.roundTrip(t, CMD_TRY_DELAY, 0, []byte{0x10, 0x00}, 1)
	require.Equal(t, uint8(RESP_OK), resp[0])
	require.Equal(t, uint64(0x0A+0x100+0x1000), c.clock.NextDue())
}

func TestSessionBusyOnFullQueue(t *testing.T) {
	rig := newSessionRig(t, 1)
	resp := rig.roundTrip(t, CMD_TRY_SET_SID_COUNT, 1, nil, 1)
	require.Equal(t, uint8(RESP_OK), resp[0])

	c := rig.bank.Chips()[0]
	for c.queue.Len() < c.queue.Cap()/2 {
		require.Equal(t, Accepted, c.queue.TryEnqueue(QueueEntry{Kind: CmdWrite}))
	}

	resp = rig.roundTrip(t, CMD_TRY_WRITE, 0, []byte{0, 1, 0x00, 0x42}, 1)
	require.Equal(t, uint8(RESP_BUSY), resp[0])

	// Draining the queue makes the same request admissible.
	c.queue.DequeueDue(^uint64(0), func(QueueEntry) {})
	resp = rig.roundTrip(t, CMD_TRY_WRITE, 0, []byte{0, 1, 0x00, 0x42}, 1)
	require.Equal(t, uint8(RESP_OK), resp[0])
}

func TestSessionPositionMapping(t *testing.T) {
	tests := []struct {
		name      string
		pos       int8
		wantLeft  int32
		wantRight int32
	}{
		{"hard left", -100, 100, 0},
		{"center", 0, 100, 100},
		{"hard right", 100, 0, 100},
		{"half left", -50, 100, 50},
		{"half right", 50, 50, 100},
	}

	rig := newSessionRig(t, 1)
	resp := rig.roundTrip(t, CMD_TRY_SET_SID_COUNT, 1, nil, 1)
	require.Equal(t, uint8(RESP_OK), resp[0])
	c := rig.bank.Chips()[0]

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rig.roundTrip(t, CMD_SET_SID_POSITION, 0, []byte{uint8(tt.pos)}, 1)
			require.Equal(t, uint8(RESP_OK), resp[0])
			require.Equal(t, tt.wantLeft, c.posLeft.Load())
			require.Equal(t, tt.wantRight, c.posRight.Load())
		})
	}
}

func TestSessionReadAnswersFromRegisterBank(t *testing.T) {
	rig := newSessionRig(t, 1)
	resp := rig.roundTrip(t, CMD_TRY_SET_SID_COUNT, 1, nil, 1)
	require.Equal(t, uint8(RESP_OK), resp[0])

	// POT X reads back 0xFF without any rendering having happened.
	resp = rig.roundTrip(t, CMD_TRY_READ, 0, []byte{0x00, 0x05, SID_POT_X}, 2)
	require.Equal(t, []byte{RESP_READ, 0xFF}, resp)
}

func TestSessionIgnoredCommandsAckOK(t *testing.T) {
	rig := newSessionRig(t, 1)

	for _, command := range []uint8{CMD_SET_SID_LEVEL, CMD_SET_DELAY, CMD_SET_FADE_IN, CMD_SET_FADE_OUT, CMD_SET_PSID_HEADER} {
		resp := rig.roundTrip(t, command, 0, []byte{0x00}, 1)
		require.Equal(t, uint8(RESP_OK), resp[0], "command %d", command)
	}
}

func TestSessionReleasesChipsOnDisconnect(t *testing.T) {
	rig := newSessionRig(t, 2)
	resp := rig.roundTrip(t, CMD_TRY_SET_SID_COUNT, 2, nil, 1)
	require.Equal(t, uint8(RESP_OK), resp[0])
	require.True(t, rig.bank.Chips()[0].owned.Load())
	require.True(t, rig.bank.Chips()[1].owned.Load())

	rig.client.Close()
	select {
	case <-rig.done:
	case <-time.After(time.Second):
		t.Fatal("session did not exit on disconnect")
	}
	require.False(t, rig.bank.Chips()[0].owned.Load())
	require.False(t, rig.bank.Chips()[1].owned.Load())
}

func TestSetClockAllOrNothing(t *testing.T) {
	rig := newSessionRig(t, 2)
	resp := rig.roundTrip(t, CMD_TRY_SET_SID_COUNT, 2, nil, 1)
	require.Equal(t, uint8(RESP_OK), resp[0])

	first, second := rig.bank.Chips()[0], rig.bank.Chips()[1]
	for second.queue.Cap()-second.queue.Len() > 0 {
		require.Equal(t, Accepted, second.queue.TryEnqueue(QueueEntry{Kind: CmdWrite}))
	}
	baseline := first.queue.Len()

	// One chip cannot accept the clock entry, so neither may receive it.
	resp = rig.roundTrip(t, CMD_TRY_SET_CLOCK, 0, []byte{1}, 1)
	require.Equal(t, uint8(RESP_BUSY), resp[0])
	require.Equal(t, baseline, first.queue.Len())
	require.Equal(t, uint32(SID_CLOCK_PAL), first.clockHz.Load())

	// With space restored the same request lands on every chip.
	second.queue.DequeueDue(^uint64(0), func(QueueEntry) {})
	resp = rig.roundTrip(t, CMD_TRY_SET_CLOCK, 0, []byte{1}, 1)
	require.Equal(t, uint8(RESP_OK), resp[0])
	require.Equal(t, baseline+1, first.queue.Len())
	require.Equal(t, uint32(SID_CLOCK_NTSC), first.clockHz.Load())
}

func TestDisconnectLeavesOtherSessionsQueuesIntact(t *testing.T) {
	bank := NewChipBank(2, DEFAULT_QUEUE_CAPACITY, DEFAULT_SAMPLE_RATE)
	rigA := newSessionRigWithBank(t, bank)
	rigB := newSessionRigWithBank(t, bank)

	resp := rigA.roundTrip(t, CMD_TRY_SET_SID_COUNT, 1, nil, 1)
	require.Equal(t, uint8(RESP_OK), resp[0])
	resp = rigB.roundTrip(t, CMD_TRY_SET_SID_COUNT, 1, nil, 1)
	require.Equal(t, uint8(RESP_OK), resp[0])

	// Slots are claimed in order: A holds slot 0, B holds slot 1.
	chipA, chipB := bank.Chips()[0], bank.Chips()[1]
	require.True(t, chipA.owned.Load())
	require.True(t, chipB.owned.Load())

	// Queue work on session B's chip, stamped half a frame apart.
	resp = rigB.roundTrip(t, CMD_TRY_WRITE, 0, []byte{
		0x00, 0x20, SID_MODE_VOL, 0x0F,
		0x00, 0x20, 0x04, SID_CTRL_SAWTOOTH | SID_CTRL_GATE,
	}, 1)
	require.Equal(t, uint8(RESP_OK), resp[0])
	pendingB := chipB.queue.Len()
	dueB := chipB.clock.NextDue()

	rigA.client.Close()
	select {
	case <-rigA.done:
	case <-time.After(time.Second):
		t.Fatal("session A did not exit on disconnect")
	}
	require.False(t, chipA.owned.Load())

	// B's chip is untouched: same backlog, same stamps, entries delivered
	// unchanged when the render side drains.
	require.True(t, chipB.owned.Load())
	require.Equal(t, pendingB, chipB.queue.Len())
	require.Equal(t, dueB, chipB.clock.NextDue())

	var writes []QueueEntry
	chipB.queue.DequeueDue(^uint64(0), func(e QueueEntry) {
		if e.Kind == CmdWrite {
			writes = append(writes, e)
		}
	})
	require.Len(t, writes, 2)
	require.Equal(t, uint8(SID_MODE_VOL), writes[0].Reg)
	require.Equal(t, uint8(0x0F), writes[0].Value)
	require.Equal(t, uint8(0x04), writes[1].Reg)

	// And session B is still serviceable.
	resp = rigB.roundTrip(t, CMD_GET_VERSION, 0, nil, 2)
	require.Equal(t, []byte{RESP_VERSION, PROTOCOL_VERSION}, resp)
}

func TestSessionUnknownCommandCloses(t *testing.T) {
	rig := newSessionRig(t, 1)
	resp := rig.roundTrip(t, 0xEE, 0, nil, 1)
	require.Equal(t, uint8(RESP_ERR), resp[0])

	select {
	case <-rig.done:
	case <-time.After(time.Second):
		t.Fatal("session still alive after unknown command")
	}
}
