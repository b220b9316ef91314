// discovery.go - UDP discovery responder

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"
)

// DISCOVERY_MAGIC prefixes both the probe datagram players broadcast on the
// local network and our reply.
const DISCOVERY_MAGIC = "SidDevice"

// DiscoveryResponder answers UDP broadcasts so players can find the device
// without manual configuration. It shares the TCP port number and only runs
// when external connections are allowed.
type DiscoveryResponder struct {
	port int
	conn net.PacketConn
}

func NewDiscoveryResponder(port int) *DiscoveryResponder {
	return &DiscoveryResponder{port: port}
}

// discoveryReply is "SidDevice,<hostname>,<os>".
func discoveryReply() []byte {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return []byte(fmt.Sprintf("%s,%s,%s", DISCOVERY_MAGIC, hostname, runtime.GOOS))
}

// Serve answers probes until ctx is cancelled. Bind failure is not fatal
// for the device: discovery is a convenience, the TCP port still works.
func (d *DiscoveryResponder) Serve(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", d.port))
	if err != nil {
		fmt.Printf("discovery disabled: %v\n", err)
		<-ctx.Done()
		return nil
	}
	d.conn = conn

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	reply := discoveryReply()
	buf := make([]byte, 256)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("discovery read: %w", err)
		}
		if !strings.HasPrefix(string(buf[:n]), DISCOVERY_MAGIC) {
			continue
		}
		if _, err := conn.WriteTo(reply, addr); err != nil {
			fmt.Printf("discovery reply to %s: %v\n", addr, err)
		}
	}
}
