// File: httpmsg/message_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package httpmsg_test

import (
	"testing"

	"github.com/momentics/netloop/httpmsg"
)

func TestParseCompleteRequestInOneShot(t *testing.T) {
	raw := []byte("GET /a HTTP/1.1\r\nHost: h\r\nContent-Length: 3\r\n\r\nxyz")
	msg, n, err := httpmsg.Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg == nil {
		t.Fatalf("expected a parsed message")
	}
	if string(msg.Method()) != "GET" || string(msg.URI()) != "/a" {
		t.Fatalf("got method=%q uri=%q", msg.Method(), msg.URI())
	}
	if string(msg.Body) != "xyz" {
		t.Fatalf("got body %q", msg.Body)
	}
	if n != len(raw) {
		t.Fatalf("consumed %d, want %d", n, len(raw))
	}
}

// TestParsePartialChunksFireOnce mirrors spec scenario 3: the same request
// is fed in three partial chunks, and only the final chunk yields Ok.
func TestParsePartialChunksFireOnce(t *testing.T) {
	full := "GET /a HTTP/1.1\r\nHost: h\r\nContent-Length: 3\r\n\r\nxyz"
	chunks := []string{
		full[:10],
		full[:30],
		full,
	}
	oks := 0
	for _, c := range chunks {
		msg, _, err := httpmsg.Parse([]byte(c))
		if err != nil {
			t.Fatalf("unexpected error on chunk %q: %v", c, err)
		}
		if msg != nil {
			oks++
			if string(msg.Body) != "xyz" {
				t.Fatalf("got body %q", msg.Body)
			}
		}
	}
	if oks != 1 {
		t.Fatalf("expected exactly one Ok, got %d", oks)
	}
}

func TestParseNeedMoreOnPartialStartLine(t *testing.T) {
	msg, n, err := httpmsg.Parse([]byte("GET /a HTTP/1"))
	if msg != nil || n != 0 || err != nil {
		t.Fatalf("expected Need, got msg=%v n=%d err=%v", msg, n, err)
	}
}

func TestParseResponseStartLine(t *testing.T) {
	raw := []byte("HTTP/1.1 404 Not Found\r\n\r\n")
	msg, _, err := httpmsg.Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.IsRequest {
		t.Fatalf("expected a response")
	}
	if msg.StatusCode() != 404 {
		t.Fatalf("got status %d", msg.StatusCode())
	}
}

func TestParseRejectsHeaderContinuation(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\nX-A: 1\r\n continuation\r\n\r\n")
	_, _, err := httpmsg.Parse(raw)
	if err == nil {
		t.Fatalf("expected an error for header continuation")
	}
}

func TestParseRejectsTooManyHeaders(t *testing.T) {
	raw := "GET / HTTP/1.1\r\n"
	for i := 0; i < 41; i++ {
		raw += "X-H: v\r\n"
	}
	raw += "\r\n"
	_, _, err := httpmsg.Parse([]byte(raw))
	if err == nil {
		t.Fatalf("expected an error for exceeding header bound")
	}
}

// TestParseIdempotentUnderPrefixGrowth checks the property from spec §8:
// Need never regresses to Err as more bytes of a valid prefix arrive.
func TestParseIdempotentUnderPrefixGrowth(t *testing.T) {
	full := []byte("POST /x HTTP/1.1\r\nHost: h\r\nContent-Length: 5\r\n\r\nhello")
	for n := 1; n < len(full); n++ {
		_, _, err := httpmsg.Parse(full[:n])
		if err != nil {
			t.Fatalf("prefix length %d: got error %v, want Need or Ok", n, err)
		}
	}
}

func TestIsWebSocketUpgrade(t *testing.T) {
	raw := []byte("GET /chat HTTP/1.1\r\nHost: h\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n")
	msg, _, err := httpmsg.Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !msg.IsWebSocketUpgrade() {
		t.Fatalf("expected upgrade request to be recognized")
	}
}

func TestAcceptKeyFixture(t *testing.T) {
	got := httpmsg.AcceptKey([]byte("dGhlIHNhbXBsZSBub25jZQ=="))
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
