// command_queue_test.go - SPSC queue admission, ordering and flush

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

import "testing"

func TestQueueAdmission(t *testing.T) {
	q := newCommandQueue(8)

	for i := 0; i < 8; i++ {
		if got := q.TryEnqueue(QueueEntry{Kind: CmdWrite, Value: uint8(i)}); got != Accepted {
			t.Fatalf("enqueue %d: got %d, want Accepted", i, got)
		}
	}
	if got := q.TryEnqueue(QueueEntry{Kind: CmdWrite}); got != Busy {
		t.Fatalf("enqueue into full queue: got %d, want Busy", got)
	}

	// One dequeue frees one slot; the next offer succeeds again.
	n := q.DequeueDue(0, func(QueueEntry) {})
	if n != 8 {
		t.Fatalf("DequeueDue applied %d entries, want 8", n)
	}
	if got := q.TryEnqueue(QueueEntry{Kind: CmdWrite}); got != Accepted {
		t.Fatalf("enqueue after drain: got %d, want Accepted", got)
	}
}

func TestQueueFIFOWithinDue(t *testing.T) {
	q := newCommandQueue(16)
	for i := 0; i < 5; i++ {
		q.TryEnqueue(QueueEntry{Kind: CmdWrite, Due: uint64(i * 10), Value: uint8(i)})
	}

	var got []uint8
	q.DequeueDue(25, func(e QueueEntry) {
		got = append(got, e.Value)
	})
	want := []uint8{0, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("applied %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: value %d, want %d", i, got[i], want[i])
		}
	}

	// The remaining entries become due later.
	n := q.DequeueDue(100, func(QueueEntry) {})
	if n != 2 {
		t.Fatalf("second pass applied %d, want 2", n)
	}
}

func TestQueueFlushDiscardsWithoutApplying(t *testing.T) {
	q := newCommandQueue(8)
	for i := 0; i < 4; i++ {
		q.TryEnqueue(QueueEntry{Kind: CmdWrite, Value: uint8(i)})
	}

	q.Flush()
	if got := q.Len(); got != 0 {
		t.Fatalf("Len() after Flush = %d, want 0", got)
	}

	// Entries queued after the flush survive; the stale ones are skipped.
	q.TryEnqueue(QueueEntry{Kind: CmdWrite, Value: 99})
	var applied []uint8
	q.DequeueDue(0, func(e QueueEntry) {
		applied = append(applied, e.Value)
	})
	if len(applied) != 1 || applied[0] != 99 {
		t.Fatalf("applied %v, want [99]", applied)
	}
}

func TestQueuePeekAndPop(t *testing.T) {
	q := newCommandQueue(8)
	q.TryEnqueue(QueueEntry{Kind: CmdWrite, Due: 50, Value: 7})

	if _, ok := q.PeekDue(49); ok {
		t.Fatal("PeekDue(49) found an entry due at 50")
	}
	e, ok := q.PeekDue(50)
	if !ok || e.Value != 7 {
		t.Fatalf("PeekDue(50) = %+v, %v", e, ok)
	}

	// Peek does not consume.
	if q.Len() != 1 {
		t.Fatalf("Len() after peek = %d, want 1", q.Len())
	}
	if e, ok = q.PopFront(); !ok || e.Value != 7 {
		t.Fatalf("PopFront() = %+v, %v", e, ok)
	}
	if q.Len() != 0 {
		t.Fatalf("Len() after pop = %d, want 0", q.Len())
	}
}

func TestQueueCapacityRoundsUp(t *testing.T) {
	tests := []struct {
		request int
		want    int
	}{
		{1, 1},
		{3, 4},
		{1000, 1024},
		{1024, 1024},
	}
	for _, tt := range tests {
		if got := newCommandQueue(tt.request).Cap(); got != tt.want {
			t.Errorf("Cap() for request %d = %d, want %d", tt.request, got, tt.want)
		}
	}
}
