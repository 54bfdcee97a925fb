// File: internal/reactor/reactor.go
// Package reactor wraps the platform readiness primitive used by the
// dispatcher's poll loop. Two backends are provided, both via
// golang.org/x/sys/unix: Linux epoll (reactor_linux.go, matching the
// teacher's reactor_linux.go) and a poll(2) fallback for other unix
// platforms (reactor_other.go); the manager is POSIX/unix-scoped per
// spec §1 (OS portability shims are out of scope).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package reactor

// Interest is a bitset of the readiness conditions a registered descriptor
// cares about.
type Interest uint8

const (
	// Read requests notification when the descriptor is readable.
	Read Interest = 1 << iota
	// Write requests notification when the descriptor is writable.
	Write
)

// Event is one readiness notification returned from Wait.
type Event struct {
	Fd     int
	Ready  Interest
	Err    bool // EPOLLERR or EPOLLHUP was set
}

// Reactor is the minimal level-triggered readiness multiplexer the
// dispatcher drives each iteration: register/modify/unregister sockets of
// interest, then block in Wait up to a caller-supplied timeout.
type Reactor interface {
	Add(fd int, interest Interest) error
	Modify(fd int, interest Interest) error
	Remove(fd int) error
	// Wait blocks up to timeoutMs (0 = return immediately, <0 = block
	// indefinitely) and returns the ready events, reusing the storage in
	// scratch across calls where convenient to the implementation.
	Wait(timeoutMs int, scratch []Event) ([]Event, error)
	Close() error
}
