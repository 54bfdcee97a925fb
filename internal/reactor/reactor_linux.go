//go:build linux

// File: internal/reactor/reactor_linux.go
// Linux epoll(7)-based Reactor implementation.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// epollReactor is a level-triggered epoll(7) readiness set. Level-triggered
// (as opposed to the teacher's EPOLLET) is the correct choice here: the
// dispatcher re-arms interest every iteration based on current buffer
// state (spec §4.3 step 2), so edge-triggered semantics would require the
// exact same "drain until EAGAIN" discipline for no benefit.
type epollReactor struct {
	epfd int
}

// New constructs the Linux epoll-backed Reactor.
func New() (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &epollReactor{epfd: epfd}, nil
}

func toEpollEvents(i Interest) uint32 {
	var ev uint32
	if i&Read != 0 {
		ev |= unix.EPOLLIN
	}
	if i&Write != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (r *epollReactor) Add(fd int, interest Interest) error {
	ev := &unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl add fd=%d: %w", fd, err)
	}
	return nil
}

func (r *epollReactor) Modify(fd int, interest Interest) error {
	ev := &unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl mod fd=%d: %w", fd, err)
	}
	return nil
}

func (r *epollReactor) Remove(fd int) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("reactor: epoll_ctl del fd=%d: %w", fd, err)
	}
	return nil
}

func (r *epollReactor) Wait(timeoutMs int, scratch []Event) ([]Event, error) {
	raw := make([]unix.EpollEvent, cap(scratch))
	if len(raw) == 0 {
		raw = make([]unix.EpollEvent, 128)
	}
	n, err := unix.EpollWait(r.epfd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return scratch[:0], nil
		}
		return nil, fmt.Errorf("reactor: epoll_wait: %w", err)
	}
	out := scratch[:0]
	for i := 0; i < n; i++ {
		var ready Interest
		if raw[i].Events&unix.EPOLLIN != 0 {
			ready |= Read
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			ready |= Write
		}
		isErr := raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0
		out = append(out, Event{Fd: int(raw[i].Fd), Ready: ready, Err: isErr})
	}
	return out, nil
}

func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}
