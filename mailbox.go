// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package dsqdata

import "sync"

// mailbox is a single-slot handoff between two pipeline stages: EMPTY
// ⇄ FULL. A writer blocks in put while the slot is FULL; a reader
// blocks in take while it is EMPTY. Choosing a single slot over a
// bounded queue keeps backpressure tight -- at most one chunk is ever
// "in flight" at this stage.
//
// Signals are emitted after the mutex is released, so a goroutine
// never wakes up only to immediately block again reacquiring the same
// lock its waker still holds.
type mailbox struct {
	mu      sync.Mutex
	full    sync.Cond
	empty   sync.Cond
	chunk   *Chunk
	hasItem bool
	closed  bool
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.full.L = &m.mu
	m.empty.L = &m.mu
	return m
}

// put blocks while the slot is occupied, then deposits chunk and wakes
// one waiting taker. It returns false without blocking if the mailbox
// has been closed (used during shutdown to unstick a stalled peer).
func (m *mailbox) put(chunk *Chunk) bool {
	m.mu.Lock()
	for m.hasItem && !m.closed {
		m.empty.Wait()
	}
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.chunk = chunk
	m.hasItem = true
	m.mu.Unlock()
	m.full.Signal()
	return true
}

// take blocks while the slot is empty, then removes and returns the
// chunk, waking one waiting putter. ok is false if the mailbox was
// closed while waiting and never received an item.
func (m *mailbox) take() (chunk *Chunk, ok bool) {
	m.mu.Lock()
	for !m.hasItem && !m.closed {
		m.full.Wait()
	}
	if !m.hasItem {
		m.mu.Unlock()
		return nil, false
	}
	chunk = m.chunk
	m.chunk = nil
	m.hasItem = false
	m.mu.Unlock()
	m.empty.Signal()
	return chunk, true
}

// close wakes every goroutine blocked in put or take so they can
// observe shutdown instead of waiting forever. Used whenever no further
// chunk will ever arrive: after the unpacker relays the end-of-data
// sentinel, on a sticky pipeline error, and by Reader.Close.
func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.full.Broadcast()
	m.empty.Broadcast()
}
