// session.go - Per-connection protocol session and command decoder

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

type sessionState int

const (
	stateAwaitingHandshake sessionState = iota
	stateReady
	stateClosed
)

// Session decodes one client connection. All decoding runs on the
// connection's goroutine; the only contact with the render side is through
// the chips' queues, clocks and atomic state.
type Session struct {
	conn     net.Conn
	r        *bufio.Reader
	bank     *ChipBank
	renderer *AudioRenderer
	events   *DeviceEvents

	state sessionState
	chips []*VirtualChip

	// Settings received before the sid count handshake, replayed onto the
	// chips once they are acquired.
	pendingModel map[int]uint8
	pendingClock uint32
}

func NewSession(conn net.Conn, bank *ChipBank, renderer *AudioRenderer, events *DeviceEvents) *Session {
	return &Session{
		conn:         conn,
		r:            bufio.NewReader(conn),
		bank:         bank,
		renderer:     renderer,
		events:       events,
		pendingModel: make(map[int]uint8),
		pendingClock: SID_CLOCK_PAL,
	}
}

// Run services the connection until EOF or a fatal protocol error.
func (s *Session) Run() {
	s.events.notifySessionConnected(s.conn.RemoteAddr().String())
	defer s.close()

	for s.state != stateClosed {
		hdr, payload, err := s.readFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.failProtocol(err)
			}
			return
		}
		if err := s.handle(hdr, payload); err != nil {
			s.failProtocol(err)
			return
		}
	}
}

func (s *Session) failProtocol(err error) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		fmt.Printf("session %s: %v\n", s.conn.RemoteAddr(), pe)
		s.respond(RESP_ERR)
	}
	s.state = stateClosed
}

func (s *Session) close() {
	if s.chips != nil {
		s.bank.Release(s.chips)
		s.chips = nil
	}
	s.conn.Close()
	s.events.notifySessionDisconnected(s.conn.RemoteAddr().String())
}

func (s *Session) readFrame() (frameHeader, []byte, error) {
	var raw [4]byte
	if _, err := io.ReadFull(s.r, raw[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return frameHeader{}, nil, io.EOF
		}
		return frameHeader{}, nil, err
	}
	hdr := frameHeader{
		command: raw[0],
		sidNum:  raw[1],
		dataLen: binary.BigEndian.Uint16(raw[2:4]),
	}
	if int(hdr.dataLen) > MAX_FRAME_PAYLOAD {
		return frameHeader{}, nil, protoErrf(hdr.command, "payload length %d exceeds limit", hdr.dataLen)
	}
	payload := make([]byte, hdr.dataLen)
	if _, err := io.ReadFull(s.r, payload); err != nil {
		return frameHeader{}, nil, fmt.Errorf("read payload: %w", err)
	}
	return hdr, payload, nil
}

func (s *Session) respond(status uint8, rest ...byte) error {
	buf := append([]byte{status}, rest...)
	if _, err := s.conn.Write(buf); err != nil {
		s.state = stateClosed
		return err
	}
	return nil
}

func (s *Session) handle(hdr frameHeader, payload []byte) error {
	switch hdr.command {
	case CMD_GET_VERSION:
		return s.respond(RESP_VERSION, PROTOCOL_VERSION)

	case CMD_GET_CONFIG_COUNT:
		return s.respond(RESP_COUNT, NUMBER_OF_DEVICES)

	case CMD_GET_CONFIG_INFO:
		idx := int(hdr.sidNum)
		if idx >= NUMBER_OF_DEVICES {
			idx = NUMBER_OF_DEVICES - 1
		}
		resp := append([]byte{deviceConfigModels[idx]}, deviceConfigNames[idx]...)
		return s.respond(RESP_INFO, resp...)

	case CMD_TRY_SET_SID_COUNT:
		return s.setSidCount(int(hdr.sidNum))

	case CMD_TRY_SET_SID_MODEL:
		if len(payload) < 1 {
			return protoErrf(hdr.command, "missing model byte")
		}
		return s.setModel(int(hdr.sidNum), payload[0])

	case CMD_TRY_SET_CLOCK:
		if len(payload) < 1 {
			return protoErrf(hdr.command, "missing clock byte")
		}
		return s.setClock(payload[0])

	case CMD_TRY_SET_SAMPLING:
		// Resampling method selection; the render pipeline has one.
		if len(payload) < 1 {
			return protoErrf(hdr.command, "missing sampling byte")
		}
		return s.respond(RESP_OK)

	case CMD_TRY_RESET:
		volume := uint8(0x0F)
		if len(payload) > 0 {
			volume = payload[0] & SID_MODE_VOL_MASK
		}
		return s.reset(volume)

	case CMD_FLUSH:
		for _, c := range s.chips {
			c.FlushQueue()
		}
		return s.respond(RESP_OK)

	case CMD_MUTE:
		if len(payload) < 2 {
			return protoErrf(hdr.command, "mute needs voice and enable bytes")
		}
		return s.mute(int(hdr.sidNum), payload[0], payload[1])

	case CMD_SET_SID_POSITION:
		if len(payload) < 1 {
			return protoErrf(hdr.command, "missing position byte")
		}
		return s.setPosition(int(hdr.sidNum), int8(payload[0]))

	case CMD_TRY_DELAY:
		if len(payload) < 2 {
			return protoErrf(hdr.command, "delay needs a 16-bit cycle count")
		}
		return s.delay(binary.BigEndian.Uint16(payload))

	case CMD_TRY_WRITE:
		return s.write(payload)

	case CMD_TRY_READ:
		return s.read(payload)

	case CMD_SET_SID_LEVEL, CMD_SET_DELAY, CMD_SET_FADE_IN, CMD_SET_FADE_OUT, CMD_SET_PSID_HEADER:
		// Accepted for compatibility, not acted on.
		return s.respond(RESP_OK)

	default:
		return protoErrf(hdr.command, "unknown command")
	}
}

// setSidCount acquires chips and completes the handshake. A repeat call
// releases the current set first, so clients can renegotiate.
func (s *Session) setSidCount(count int) error {
	if count < 1 || count > s.bank.Size() {
		return protoErrf(CMD_TRY_SET_SID_COUNT, "sid count %d out of range", count)
	}
	if s.chips != nil {
		s.bank.Release(s.chips)
		s.chips = nil
		s.state = stateAwaitingHandshake
	}

	chips, err := s.bank.Acquire(count)
	if err != nil {
		// Slots are held by other sessions; the client may retry.
		return s.respond(RESP_BUSY)
	}
	s.chips = chips

	for i, c := range s.chips {
		c.muted.Store(false)
		c.clockHz.Store(s.pendingClock)
		c.queue.TryEnqueue(QueueEntry{Kind: CmdSetClockRate, Aux: s.pendingClock})
		if model, ok := s.pendingModel[i]; ok {
			c.queue.TryEnqueue(QueueEntry{Kind: CmdSetModel, Aux: uint32(model)})
		}
	}
	s.state = stateReady
	return s.respond(RESP_OK)
}

func (s *Session) setModel(sidNum int, model uint8) error {
	if model != SID_MODEL_6581 && model != SID_MODEL_8580 {
		return protoErrf(CMD_TRY_SET_SID_MODEL, "unknown model %d", model)
	}
	if s.state != stateReady {
		s.pendingModel[sidNum] = model
		return s.respond(RESP_OK)
	}
	c, err := s.chip(sidNum)
	if err != nil {
		return err
	}
	e := QueueEntry{Kind: CmdSetModel, Due: c.clock.NextDue(), Aux: uint32(model)}
	if c.queue.TryEnqueue(e) == Busy {
		return s.respond(RESP_BUSY)
	}
	return s.respond(RESP_OK)
}

func (s *Session) setClock(val uint8) error {
	var hz uint32
	switch val {
	case 0:
		hz = SID_CLOCK_PAL
	case 1:
		hz = SID_CLOCK_NTSC
	default:
		return protoErrf(CMD_TRY_SET_CLOCK, "unknown clock selector %d", val)
	}
	// All chips take the entry or none do; a partial apply would leave the
	// retry enqueueing duplicates on the chips that already accepted.
	for _, c := range s.chips {
		if c.queue.Cap()-c.queue.Len() < 1 {
			return s.respond(RESP_BUSY)
		}
	}
	s.pendingClock = hz
	for _, c := range s.chips {
		c.clockHz.Store(hz)
		c.queue.TryEnqueue(QueueEntry{Kind: CmdSetClockRate, Due: c.clock.NextDue(), Aux: hz})
	}
	return s.respond(RESP_OK)
}

// reset discards pending commands on every session chip and queues a chip
// reset carrying the new master volume.
func (s *Session) reset(volume uint8) error {
	for _, c := range s.chips {
		c.FlushQueue()
		c.clock.ResetProducer()
		c.queue.TryEnqueue(QueueEntry{Kind: CmdReset, Value: volume})
		c.StartDraining()
	}
	return s.respond(RESP_OK)
}

func (s *Session) mute(sidNum int, voice, enable uint8) error {
	if s.state != stateReady {
		return s.respond(RESP_OK)
	}
	c, err := s.chip(sidNum)
	if err != nil {
		return err
	}
	c.queue.TryEnqueue(QueueEntry{
		Kind:  CmdMute,
		Due:   c.clock.NextDue(),
		Reg:   voice,
		Value: enable,
	})
	return s.respond(RESP_OK)
}

// setPosition maps the signed position byte (-100..100) onto left/right
// percentage weights: center keeps both at 100, panning attenuates the far
// channel only.
func (s *Session) setPosition(sidNum int, pos int8) error {
	if s.state != stateReady {
		return s.respond(RESP_OK)
	}
	c, err := s.chip(sidNum)
	if err != nil {
		return err
	}
	if pos < -100 {
		pos = -100
	} else if pos > 100 {
		pos = 100
	}
	left, right := int32(100), int32(100)
	if pos > 0 {
		left = 100 - int32(pos)
	} else {
		right = 100 + int32(pos)
	}
	c.posLeft.Store(left)
	c.posRight.Store(right)
	return s.respond(RESP_OK)
}

// delay advances every session chip's due-cycle stamp. Chips share the
// stream's time axis, so the delta applies to all of them.
func (s *Session) delay(cycles uint16) error {
	if s.state != stateReady {
		return protoErrf(CMD_TRY_DELAY, "delay before sid count handshake")
	}
	for _, c := range s.chips {
		if c.AtCapacity() {
			return s.respond(RESP_BUSY)
		}
	}
	for _, c := range s.chips {
		c.clock.AddDelay(uint32(cycles))
	}
	s.renderer.MarkActive()
	return s.respond(RESP_OK)
}

// write decodes a burst of cycle-stamped register writes. Each quad's cycle
// delta advances all session chips; the write itself lands on the chip
// selected by the register's high bits.
func (s *Session) write(payload []byte) error {
	if s.state != stateReady {
		return protoErrf(CMD_TRY_WRITE, "write before sid count handshake")
	}
	if len(payload) == 0 || len(payload)%WRITE_QUAD_SIZE != 0 {
		return protoErrf(CMD_TRY_WRITE, "write payload length %d not a multiple of %d", len(payload), WRITE_QUAD_SIZE)
	}
	if !s.admit(len(payload) / WRITE_QUAD_SIZE) {
		return s.respond(RESP_BUSY)
	}
	s.enqueueWrites(payload)
	s.renderer.MarkActive()
	return s.respond(RESP_OK)
}

// read is write plus a trailing register read. The leading writes are
// queued as usual; the read answers synchronously from the chip's live
// register bank rather than waiting for the stream to catch up.
func (s *Session) read(payload []byte) error {
	if s.state != stateReady {
		return protoErrf(CMD_TRY_READ, "read before sid count handshake")
	}
	if len(payload) < READ_TRAILER_SIZE || (len(payload)-READ_TRAILER_SIZE)%WRITE_QUAD_SIZE != 0 {
		return protoErrf(CMD_TRY_READ, "read payload length %d malformed", len(payload))
	}
	writes := payload[:len(payload)-READ_TRAILER_SIZE]
	if !s.admit(len(writes) / WRITE_QUAD_SIZE) {
		return s.respond(RESP_BUSY)
	}
	s.enqueueWrites(writes)

	trailer := payload[len(payload)-READ_TRAILER_SIZE:]
	cycles := binary.BigEndian.Uint16(trailer[:2])
	reg := trailer[2]
	for _, c := range s.chips {
		c.clock.AddDelay(uint32(cycles))
	}
	c := s.chipForReg(reg)
	s.renderer.MarkActive()
	return s.respond(RESP_READ, c.ReadRegister(reg&0x1F))
}

// admit decides whether a burst of n writes may enter the queues. The
// whole burst must fit: admitting half a frame and rejecting the rest
// would double-apply the leading delays when the client retries.
func (s *Session) admit(n int) bool {
	for _, c := range s.chips {
		if c.AtCapacity() || c.queue.Cap()-c.queue.Len() < n {
			return false
		}
	}
	return true
}

func (s *Session) enqueueWrites(quads []byte) {
	for i := 0; i+WRITE_QUAD_SIZE <= len(quads); i += WRITE_QUAD_SIZE {
		cycles := binary.BigEndian.Uint16(quads[i : i+2])
		reg := quads[i+2]
		val := quads[i+3]

		for _, c := range s.chips {
			c.clock.AddDelay(uint32(cycles))
		}
		c := s.chipForReg(reg)
		e := QueueEntry{
			Kind:  CmdWrite,
			Due:   c.clock.NextDue(),
			Reg:   reg & 0x1F,
			Value: val,
		}
		c.queue.TryEnqueue(e)
		if c.HasMinBacklog() {
			c.StartDraining()
		}
	}
}

// chipForReg resolves the chip addressed by a write quad: bits 5 and up
// select the chip, clamped to the session's allocation.
func (s *Session) chipForReg(reg uint8) *VirtualChip {
	idx := int(reg >> 5)
	if idx >= len(s.chips) {
		idx = len(s.chips) - 1
	}
	return s.chips[idx]
}

func (s *Session) chip(sidNum int) (*VirtualChip, error) {
	if sidNum < 0 || sidNum >= len(s.chips) {
		return nil, protoErrf(0, "sid number %d out of range 0..%d", sidNum, len(s.chips)-1)
	}
	return s.chips[sidNum], nil
}
