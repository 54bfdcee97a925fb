// File: netloop/flags.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package netloop

// Flags is the per-connection bitset described in spec §4.2. Only
// FlagBufferButDontSend, FlagFinishedSendingData, FlagCloseImmediately,
// and the four user bits are user-settable; the rest are manager-owned.
type Flags uint32

const (
	// FlagListening marks a passive listener socket; the dispatcher
	// services accept events only.
	FlagListening Flags = 1 << iota
	// FlagUDP marks a datagram socket; framing differs (spec §5).
	FlagUDP
	// FlagConnecting marks a pending non-blocking client connect.
	FlagConnecting
	// FlagTLSHandshakeDone marks a completed TLS handshake; until set,
	// reads/writes are routed through handshake pumping.
	FlagTLSHandshakeDone
	// FlagFinishedSendingData marks a pending graceful close: once the
	// send buffer drains, the dispatcher sets FlagCloseImmediately.
	FlagFinishedSendingData
	// FlagBufferButDontSend holds output; the dispatcher must not write
	// to the socket while this is set.
	FlagBufferButDontSend
	// FlagCloseImmediately marks a connection for closing at the end of
	// the current iteration.
	FlagCloseImmediately
	// FlagUser1..FlagUser4 are reserved for caller-defined state.
	FlagUser1
	FlagUser2
	FlagUser3
	FlagUser4
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// Set returns f with mask's bits set.
func (f Flags) Set(mask Flags) Flags { return f | mask }

// Clear returns f with mask's bits cleared.
func (f Flags) Clear(mask Flags) Flags { return f &^ mask }
