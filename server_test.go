// server_test.go - Listener lifecycle and end-to-end request handling

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func startTestServer(t *testing.T) (*Server, context.CancelFunc) {
	t.Helper()
	cfg := Config{
		Port:       freePort(t),
		MaxSids:    2,
		SampleRate: DEFAULT_SAMPLE_RATE,
	}
	bank := NewChipBank(cfg.MaxSids, DEFAULT_QUEUE_CAPACITY, cfg.SampleRate)
	renderer := NewAudioRenderer(bank, cfg.SampleRate)
	server := NewServer(cfg, bank, renderer, nil)
	if err := server.Listen(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return server, cancel
}

func TestServerAnswersVersionOverTCP(t *testing.T) {
	server, _ := startTestServer(t)

	conn, err := net.DialTimeout("tcp", server.Addr().String(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(time.Second))

	if _, err := conn.Write([]byte{CMD_GET_VERSION, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		t.Fatal(err)
	}
	if resp[0] != RESP_VERSION || resp[1] != PROTOCOL_VERSION {
		t.Fatalf("version response = %v, want [%d %d]", resp, RESP_VERSION, PROTOCOL_VERSION)
	}
}

func TestServerRejectsSecondInstance(t *testing.T) {
	server, _ := startTestServer(t)
	port := server.Addr().(*net.TCPAddr).Port

	second := NewServer(Config{Port: port, MaxSids: 1, SampleRate: DEFAULT_SAMPLE_RATE}, nil, nil, nil)
	err := second.Listen()
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Listen() = %v, want ErrAlreadyRunning", err)
	}
}

func TestServerSessionsAreIndependent(t *testing.T) {
	server, _ := startTestServer(t)

	good, err := net.DialTimeout("tcp", server.Addr().String(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer good.Close()
	good.SetDeadline(time.Now().Add(2 * time.Second))

	bad, err := net.DialTimeout("tcp", server.Addr().String(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer bad.Close()
	bad.SetDeadline(time.Now().Add(2 * time.Second))

	// Kill the second session with a protocol error.
	if _, err := bad.Write([]byte{0xEE, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	resp := make([]byte, 1)
	if _, err := io.ReadFull(bad, resp); err != nil {
		t.Fatal(err)
	}
	if resp[0] != RESP_ERR {
		t.Fatalf("bad session response = %d, want ERROR", resp[0])
	}

	// The first session still works.
	if _, err := good.Write([]byte{CMD_GET_CONFIG_COUNT, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	resp = make([]byte, 2)
	if _, err := io.ReadFull(good, resp); err != nil {
		t.Fatal(err)
	}
	if resp[0] != RESP_COUNT || resp[1] != NUMBER_OF_DEVICES {
		t.Fatalf("config count response = %v", resp)
	}
}
