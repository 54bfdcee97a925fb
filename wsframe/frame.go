// File: wsframe/frame.go
// Package wsframe implements the RFC-6455 WebSocket frame codec spec §4.7
// describes: a stateful Decoder that consumes from a connection's receive
// buffer and reassembles fragmented messages, and a stateless Encode for
// building outbound frames. Grounded on the teacher's frame_codec.go (bit
// layout, masking, continuation handling) and constants.go (opcode
// values), reworked to decode in place over an *iobuf.Buffer rather than
// the teacher's own ring-buffer transport.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package wsframe

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/momentics/netloop/iobuf"
)

// Opcode identifies a WebSocket frame's payload interpretation.
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

func (o Opcode) isControl() bool { return o >= OpClose }

// Message is a fully reassembled logical WebSocket message.
type Message struct {
	Opcode  Opcode
	Fin     bool
	Payload []byte
}

// Decoder is a stateful frame parser over a connection's receive buffer.
// It is not safe for concurrent use; like everything else in this module
// it is driven by exactly one thread per connection.
type Decoder struct {
	isServer bool

	reassembling bool
	msgOpcode    Opcode
	msgPayload   []byte
}

// NewDecoder constructs a Decoder. isServer controls masking enforcement:
// clients mask their frames and servers do not, so a server decoder
// rejects client frames that are not masked, and a client decoder rejects
// frames that are masked (spec §4.7).
func NewDecoder(isServer bool) *Decoder {
	return &Decoder{isServer: isServer}
}

// Decode consumes as many complete frames as are available from buf,
// removing their bytes, and returns reassembled messages as they
// complete. A partial trailing frame is left untouched in buf for the
// next call. An error indicates a framing violation; the caller should
// close the connection without processing further frames.
func (d *Decoder) Decode(buf *iobuf.Buffer) ([]Message, error) {
	var out []Message
	for {
		msg, consumed, err := d.decodeOne(buf.Bytes())
		if err != nil {
			return out, err
		}
		if consumed == 0 {
			return out, nil
		}
		buf.RemoveHead(consumed)
		if msg != nil {
			out = append(out, *msg)
		}
	}
}

// decodeOne attempts to decode a single frame from data, returning a
// completed Message (nil if reassembly is still in progress) and the
// number of bytes consumed (0 meaning "need more data").
func (d *Decoder) decodeOne(data []byte) (*Message, int, error) {
	if len(data) < 2 {
		return nil, 0, nil
	}
	b0, b1 := data[0], data[1]
	fin := b0&0x80 != 0
	opcode := Opcode(b0 & 0x0F)
	masked := b1&0x80 != 0
	lenField := int(b1 & 0x7F)

	if d.isServer && !masked {
		return nil, 0, fmt.Errorf("wsframe: server received unmasked frame")
	}
	if !d.isServer && masked {
		return nil, 0, fmt.Errorf("wsframe: client received masked frame")
	}

	cursor := 2
	payloadLen := int64(lenField)
	switch lenField {
	case 126:
		if len(data) < cursor+2 {
			return nil, 0, nil
		}
		payloadLen = int64(binary.BigEndian.Uint16(data[cursor:]))
		cursor += 2
	case 127:
		if len(data) < cursor+8 {
			return nil, 0, nil
		}
		payloadLen = int64(binary.BigEndian.Uint64(data[cursor:]))
		cursor += 8
	}

	var maskKey [4]byte
	if masked {
		if len(data) < cursor+4 {
			return nil, 0, nil
		}
		copy(maskKey[:], data[cursor:cursor+4])
		cursor += 4
	}

	if opcode.isControl() && (payloadLen > 125 || !fin) {
		return nil, 0, fmt.Errorf("wsframe: control frame fragmented or oversized")
	}

	if int64(len(data)-cursor) < payloadLen {
		return nil, 0, nil
	}

	payload := make([]byte, payloadLen)
	copy(payload, data[cursor:int64(cursor)+payloadLen])
	if masked {
		for i := range payload {
			payload[i] ^= maskKey[i%4]
		}
	}
	total := cursor + int(payloadLen)

	if opcode.isControl() {
		return &Message{Opcode: opcode, Fin: true, Payload: payload}, total, nil
	}

	if !d.reassembling {
		if opcode == OpContinuation {
			return nil, 0, fmt.Errorf("wsframe: continuation frame with no active message")
		}
		d.reassembling = true
		d.msgOpcode = opcode
		d.msgPayload = append(d.msgPayload[:0], payload...)
	} else {
		if opcode != OpContinuation {
			return nil, 0, fmt.Errorf("wsframe: new data frame opcode while reassembling")
		}
		d.msgPayload = append(d.msgPayload, payload...)
	}

	if !fin {
		return nil, total, nil
	}

	full := make([]byte, len(d.msgPayload))
	copy(full, d.msgPayload)
	effectiveOp := d.msgOpcode
	d.reassembling = false
	d.msgPayload = nil
	return &Message{Opcode: effectiveOp, Fin: true, Payload: full}, total, nil
}

// Encode builds one complete frame: header immediately followed by
// payload, matching spec §4.7's "one contiguous write" requirement for
// send_frame. mask selects client-side masking with a fresh random key.
func Encode(op Opcode, payload []byte, mask bool) []byte {
	return EncodeParts(op, [][]byte{payload}, mask)
}

// EncodeParts builds one frame whose payload is the concatenation of
// parts, computing the total length up front so header and payload are
// written as a single contiguous buffer (send_framev, spec §4.7).
func EncodeParts(op Opcode, parts [][]byte, mask bool) []byte {
	total := 0
	for _, p := range parts {
		total += len(p)
	}

	header := make([]byte, 0, 14)
	b0 := byte(0x80) | byte(op&0x0F) // FIN always set; fragmentation across calls is the caller's concern
	header = append(header, b0)

	maskBit := byte(0)
	if mask {
		maskBit = 0x80
	}
	switch {
	case total <= 125:
		header = append(header, maskBit|byte(total))
	case total <= 0xFFFF:
		header = append(header, maskBit|126)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(total))
		header = append(header, ext[:]...)
	default:
		header = append(header, maskBit|127)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(total))
		header = append(header, ext[:]...)
	}

	var maskKey [4]byte
	if mask {
		rand.Read(maskKey[:])
		header = append(header, maskKey[:]...)
	}

	out := make([]byte, 0, len(header)+total)
	out = append(out, header...)
	idx := 0
	for _, p := range parts {
		start := len(out)
		out = append(out, p...)
		if mask {
			for i := start; i < len(out); i++ {
				out[i] ^= maskKey[idx%4]
				idx++
			}
		}
	}
	return out
}
