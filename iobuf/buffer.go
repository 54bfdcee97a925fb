// File: iobuf/buffer.go
// Package iobuf implements the append-and-consume byte buffer shared by
// every connection's receive and send paths.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package iobuf

import "fmt"

// minCapacity is the smallest capacity a fresh Buffer grows to on first use.
const minCapacity = 64

// maxGrow caps a single growth step so a pathological Reserve call cannot
// overflow int arithmetic or request an unreasonable allocation in one shot.
const maxGrow = 1 << 30

// Buffer is a simple ring-less byte stream: appenders write to the tail,
// consumers remove from the head. It is not safe for concurrent use; each
// Conn owns exactly two (Recv and Send) and only the manager's poll thread
// touches them.
type Buffer struct {
	data   []byte
	length int
}

// New returns an empty Buffer with no backing storage; the first Append or
// Reserve allocates it.
func New() *Buffer {
	return &Buffer{}
}

// NewWithCapacity returns an empty Buffer with at least the given capacity
// pre-allocated.
func NewWithCapacity(capacity int) *Buffer {
	b := &Buffer{}
	if capacity > 0 {
		b.data = make([]byte, capacity)
	}
	return b
}

// Len returns the number of valid bytes currently held.
func (b *Buffer) Len() int { return b.length }

// Cap returns the current backing capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Bytes returns the valid region [0:Len()). The returned slice aliases the
// buffer's storage and is invalidated by the next Append, Reserve, or
// RemoveHead call.
func (b *Buffer) Bytes() []byte { return b.data[:b.length] }

// Tail returns the writable region [Len():Cap()), sized by reserve, for
// direct reads (e.g. a raw socket Read) into the buffer without an extra
// copy. Callers must follow a successful read with Commit(n).
func (b *Buffer) Tail() []byte { return b.data[b.length:] }

// Commit records that n bytes were written directly into Tail(); it must
// not be called with n greater than len(Tail()).
func (b *Buffer) Commit(n int) {
	if n < 0 || b.length+n > len(b.data) {
		panic("iobuf: Commit out of range")
	}
	b.length += n
}

// Append copies p onto the tail, growing the backing array if needed.
// It always appends all of p or returns a non-nil error; a short append
// never happens.
func (b *Buffer) Append(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := b.Reserve(len(p)); err != nil {
		return 0, err
	}
	n := copy(b.data[b.length:], p)
	b.length += n
	return n, nil
}

// Reserve ensures capacity for at least n more bytes beyond the current
// length, growing geometrically: newCap = max(length+n, 2*cap, 64).
func (b *Buffer) Reserve(n int) error {
	if n < 0 {
		return fmt.Errorf("iobuf: negative reserve size %d", n)
	}
	need := b.length + n
	if need < 0 || need > maxGrow {
		return fmt.Errorf("iobuf: reserve of %d bytes exceeds allowed growth", n)
	}
	if need <= len(b.data) {
		return nil
	}
	newCap := len(b.data) * 2
	if newCap < need {
		newCap = need
	}
	if newCap < minCapacity {
		newCap = minCapacity
	}
	grown := make([]byte, newCap)
	copy(grown, b.data[:b.length])
	b.data = grown
	return nil
}

// RemoveHead discards the first n bytes, shifting the remainder down to
// offset zero. It is O(length-n) and does not shrink the backing capacity.
func (b *Buffer) RemoveHead(n int) {
	if n < 0 || n > b.length {
		panic("iobuf: RemoveHead out of range")
	}
	if n == 0 {
		return
	}
	remaining := b.length - n
	copy(b.data[:remaining], b.data[n:b.length])
	b.length = remaining
}

// Reset discards all valid bytes without releasing the backing capacity.
func (b *Buffer) Reset() { b.length = 0 }
