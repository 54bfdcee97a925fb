// File: wsframe/frame_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package wsframe_test

import (
	"bytes"
	"testing"

	"github.com/momentics/netloop/iobuf"
	"github.com/momentics/netloop/wsframe"
)

func TestEncodeDecodeRoundTripUnmasked(t *testing.T) {
	for _, op := range []wsframe.Opcode{wsframe.OpText, wsframe.OpBinary} {
		payload := bytes.Repeat([]byte("ab"), 100)
		frame := wsframe.Encode(op, payload, false)

		buf := iobuf.New()
		buf.Append(frame)

		dec := wsframe.NewDecoder(false)
		msgs, err := dec.Decode(buf)
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if len(msgs) != 1 {
			t.Fatalf("got %d messages, want 1", len(msgs))
		}
		if msgs[0].Opcode != op || !bytes.Equal(msgs[0].Payload, payload) {
			t.Fatalf("round trip mismatch for opcode %v", op)
		}
	}
}

func TestEncodeDecodeRoundTripMasked(t *testing.T) {
	payload := []byte("the quick brown fox")
	frame := wsframe.Encode(wsframe.OpText, payload, true)

	buf := iobuf.New()
	buf.Append(frame)

	dec := wsframe.NewDecoder(true)
	msgs, err := dec.Decode(buf)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(msgs) != 1 || !bytes.Equal(msgs[0].Payload, payload) {
		t.Fatalf("masked round trip mismatch: %+v", msgs)
	}
}

// TestFragmentationReassembly mirrors spec scenario 5: three fragments
// reassemble into one WS_FRAME carrying the first fragment's opcode.
func TestFragmentationReassembly(t *testing.T) {
	buf := iobuf.New()
	buf.Append(encodeFragment(wsframe.OpText, "He", false, false))
	buf.Append(encodeFragment(wsframe.OpContinuation, "ll", false, false))
	buf.Append(encodeFragment(wsframe.OpContinuation, "o", true, false))

	dec := wsframe.NewDecoder(false)
	msgs, err := dec.Decode(buf)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Opcode != wsframe.OpText || string(msgs[0].Payload) != "Hello" {
		t.Fatalf("got opcode=%v payload=%q", msgs[0].Opcode, msgs[0].Payload)
	}
}

func TestFragmentedControlFrameRejected(t *testing.T) {
	buf := iobuf.New()
	buf.Append(encodeFragment(wsframe.OpPing, "x", false, false))

	dec := wsframe.NewDecoder(false)
	if _, err := dec.Decode(buf); err == nil {
		t.Fatalf("expected an error for a fragmented control frame")
	}
}

func TestServerRejectsUnmaskedClientFrame(t *testing.T) {
	buf := iobuf.New()
	buf.Append(wsframe.Encode(wsframe.OpText, []byte("hi"), false))

	dec := wsframe.NewDecoder(true)
	if _, err := dec.Decode(buf); err == nil {
		t.Fatalf("expected server decoder to reject an unmasked frame")
	}
}

// encodeFragment builds one raw (possibly non-FIN) frame by hand, since
// Encode always sets FIN.
func encodeFragment(op wsframe.Opcode, payload string, fin, mask bool) []byte {
	p := []byte(payload)
	b0 := byte(op & 0x0F)
	if fin {
		b0 |= 0x80
	}
	frame := []byte{b0, byte(len(p))}
	frame = append(frame, p...)
	return frame
}
