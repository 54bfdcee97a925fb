//go:build !linux && !windows

// File: internal/reactor/reactor_other.go
// Portable poll(2)-based Reactor for non-Linux unix platforms (darwin,
// *bsd). Windows is not targeted: OS portability shims are explicitly out
// of scope per spec §1.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// pollReactor tracks interest per fd and re-evaluates the whole set with
// poll(2) each Wait call; simpler than epoll and adequate off the hot
// platform, at O(n) per wait instead of O(ready).
type pollReactor struct {
	interest map[int]Interest
}

// New constructs the portable poll(2)-backed Reactor.
func New() (Reactor, error) {
	return &pollReactor{interest: make(map[int]Interest)}, nil
}

func (r *pollReactor) Add(fd int, interest Interest) error {
	r.interest[fd] = interest
	return nil
}

func (r *pollReactor) Modify(fd int, interest Interest) error {
	if _, ok := r.interest[fd]; !ok {
		return fmt.Errorf("reactor: modify unknown fd=%d", fd)
	}
	r.interest[fd] = interest
	return nil
}

func (r *pollReactor) Remove(fd int) error {
	delete(r.interest, fd)
	return nil
}

func (r *pollReactor) Wait(timeoutMs int, scratch []Event) ([]Event, error) {
	fds := make([]unix.PollFd, 0, len(r.interest))
	for fd, interest := range r.interest {
		var events int16
		if interest&Read != 0 {
			events |= unix.POLLIN
		}
		if interest&Write != 0 {
			events |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events})
	}
	_, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return scratch[:0], nil
		}
		return nil, fmt.Errorf("reactor: poll: %w", err)
	}
	out := scratch[:0]
	for _, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		var ready Interest
		if pfd.Revents&unix.POLLIN != 0 {
			ready |= Read
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			ready |= Write
		}
		isErr := pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0
		out = append(out, Event{Fd: int(pfd.Fd), Ready: ready, Err: isErr})
	}
	return out, nil
}

func (r *pollReactor) Close() error {
	return nil
}
