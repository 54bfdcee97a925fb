// Package fake
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fake implementations for testing netloop consumers, adapted from the
// teacher's fake/transport.go: predictable, inspectable doubles instead
// of mocks, guarded by a mutex even though the manager itself is single
// threaded, because test goroutines (the one driving Poll) and assertion
// code may observe a RecordingHandler's state from outside that loop.
package fake

import "sync"

// EventRecord captures one HandleEvent call: the tag and a shallow copy
// of any payload that is safe to retain past the call (ints, strings,
// errors). Byte-slice payloads (EvRecv/EvSend counts are ints, so this
// never applies to the core events) are copied defensively by callers
// that construct one from a protocol message.
type EventRecord struct {
	Event   int
	Payload any
}

// RecordingHandler is a fake netloop.EventHandler: it appends every
// delivered event to an in-memory log instead of driving application
// logic, so a test can assert on the exact event sequence spec §8
// requires: "(ACCEPT|CONNECT)? (RECV|SEND|POLL|protocol)* CLOSE".
type RecordingHandler struct {
	mu      sync.Mutex
	records []EventRecord
	onEvent func(ev int, payload any) // optional hook, e.g. to queue a reply
}

// NewRecordingHandler returns an empty RecordingHandler. onEvent, if
// non-nil, is invoked synchronously for every event after it is recorded
// — tests use it to script a response (e.g. echo bytes back) without a
// second type.
func NewRecordingHandler(onEvent func(ev int, payload any)) *RecordingHandler {
	return &RecordingHandler{onEvent: onEvent}
}

// Handle implements the shape netloop.EventHandlerFunc adapts: call this
// from a small wrapper closure so the fake package need not import
// netloop (avoiding an import cycle with netloop's own tests).
func (h *RecordingHandler) Handle(ev int, payload any) {
	h.mu.Lock()
	h.records = append(h.records, EventRecord{Event: ev, Payload: payload})
	h.mu.Unlock()
	if h.onEvent != nil {
		h.onEvent(ev, payload)
	}
}

// Records returns a snapshot of every event recorded so far, in order.
func (h *RecordingHandler) Records() []EventRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]EventRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Count returns how many times ev was delivered.
func (h *RecordingHandler) Count(ev int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.Event == ev {
			n++
		}
	}
	return n
}

// Reset clears the recorded log.
func (h *RecordingHandler) Reset() {
	h.mu.Lock()
	h.records = h.records[:0]
	h.mu.Unlock()
}
