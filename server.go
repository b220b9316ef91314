// server.go - TCP listener and session dispatch

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
)

// ErrAlreadyRunning signals that the device port is taken, almost always by
// another instance of this server.
var ErrAlreadyRunning = errors.New("another SID device seems to be already running on this port")

// Server accepts client connections and runs a Session per connection.
// Sessions are independent; a failing one never takes down its neighbours.
type Server struct {
	cfg      Config
	bank     *ChipBank
	renderer *AudioRenderer
	events   *DeviceEvents

	ln       net.Listener
	sessions sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

func NewServer(cfg Config, bank *ChipBank, renderer *AudioRenderer, events *DeviceEvents) *Server {
	return &Server{
		cfg:      cfg,
		bank:     bank,
		renderer: renderer,
		events:   events,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Listen binds the TCP port. Loopback only unless external connections are
// allowed by configuration.
func (s *Server) Listen() error {
	host := "127.0.0.1"
	if s.cfg.AllowExternal {
		host = "0.0.0.0"
	}
	addr := net.JoinHostPort(host, fmt.Sprint(s.cfg.Port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("%w (port %d)", ErrAlreadyRunning, s.cfg.Port)
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound listener address. Valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until ctx is cancelled, then waits for the
// active sessions to wind down.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
		s.connMu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.connMu.Unlock()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.sessions.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			// Response latency matters more than packet efficiency here.
			tcp.SetNoDelay(true)
		}
		s.connMu.Lock()
		s.conns[conn] = struct{}{}
		s.connMu.Unlock()

		sess := NewSession(conn, s.bank, s.renderer, s.events)
		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			sess.Run()
			s.connMu.Lock()
			delete(s.conns, conn)
			s.connMu.Unlock()
		}()
	}
}
