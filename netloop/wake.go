//go:build !windows

// File: netloop/wake.go
// The cross-thread wake-up channel and broadcast delivery, spec §4.4.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package netloop

import (
	"fmt"
	"sync"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"
)

// broadcastRecord is the fixed control record spec §4.4 describes as
// "(callback_pointer, data_pointer, length)"; in Go, callback and data
// are simply a closure and an any value, so "length" is implicit in the
// value itself.
type broadcastRecord struct {
	callback func(c *Conn, data any)
	data     any
}

// wakeChannel is a loopback unix-domain socket pair: the reader end is
// registered with the reactor so that a write wakes the poll loop (the
// bytes themselves are discarded); the writer end is safe to use from any
// thread.
//
// Pending records are queued in an eapache/queue.Queue (a ring-buffer
// backed FIFO) rather than relying on the pipe's own buffering: this
// resolves the §9 Open Question ("behavior when the control pipe is
// full") by never blocking the sender. push appends to the queue, which
// grows without a fixed bound, and makes a best-effort non-blocking
// one-byte write, instead of blocking on a kernel pipe, which could
// deadlock a Broadcast caller against a slow-draining manager.
type wakeChannel struct {
	writerFD int
	readerFD int

	mu      sync.Mutex
	pending *queue.Queue
}

func newWakeChannel() (*wakeChannel, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("netloop: wake channel socketpair: %w", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, fmt.Errorf("netloop: wake channel nonblock: %w", err)
		}
	}
	return &wakeChannel{
		writerFD: fds[0],
		readerFD: fds[1],
		pending:  queue.New(),
	}, nil
}

// push enqueues a record and pokes the reader fd so the poll loop wakes
// up even if it is currently blocked in epoll_wait. Safe from any thread.
func (w *wakeChannel) push(rec broadcastRecord) {
	w.mu.Lock()
	w.pending.Add(rec)
	w.mu.Unlock()

	// One byte is enough to make the reader fd readable; the dispatcher
	// drains the queue, not the byte stream, so short writes or EAGAIN
	// here are harmless — the next push (or a byte already pending) will
	// still wake the loop.
	var b [1]byte
	unix.Write(w.writerFD, b[:])
}

// drainOne pops one pending record, or returns ok=false if none remain.
func (w *wakeChannel) drainOne() (broadcastRecord, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending.Length() == 0 {
		return broadcastRecord{}, false
	}
	rec := w.pending.Peek().(broadcastRecord)
	w.pending.Remove()
	return rec, true
}

// drainWakeBytes empties the control socket's byte stream so it stops
// reporting readable once every queued record has been processed.
func (w *wakeChannel) drainWakeBytes() {
	var buf [256]byte
	for {
		n, err := unix.Read(w.readerFD, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (w *wakeChannel) close() {
	unix.Close(w.writerFD)
	unix.Close(w.readerFD)
}
