// File: httpmsg/message.go
// Package httpmsg implements the HTTP/1.1 message parser spec §4.6
// describes: a pure function over a byte slice that never blocks and
// never mutates its input, returning one of Need (more bytes required),
// a parsed Message plus the consumed byte count, or a parse error.
// Grounded on the hand-rolled status-line/header-line scanning in
// the rawhttp client (readLine/parseStatusLine/readHeaders/readBody),
// reworked here as a restartable function over a slice instead of a
// consuming bufio.Reader, since the dispatcher re-invokes it against a
// growing receive buffer rather than a byte stream it owns.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package httpmsg

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// maxHeaders bounds the header count a single message may carry; exceeding
// it is a parse error (spec §4.6).
const maxHeaders = 40

// Header is one ordered (name, value) pair. Name and Value are views into
// the source slice passed to Parse and become invalid once that buffer is
// compacted (spec §3's "data model" note on HTTP message slices).
type Header struct {
	Name  []byte
	Value []byte
}

// Message is either a request or a response start line plus headers and,
// once Complete, a body. StartLine always holds exactly three fields:
// method/URI/version for a request, version/code/reason for a response.
type Message struct {
	IsRequest bool
	StartLine [3][]byte
	Headers   []Header
	Body      []byte
	Complete  bool

	// BodyMode records how the body length was determined, so callers can
	// decide when Complete should flip true once more bytes arrive.
	BodyMode      BodyMode
	ContentLength int64
}

// BodyMode classifies how a message's body boundary is determined.
type BodyMode int

const (
	// BodyNone: no body is expected (e.g. most requests without a length header).
	BodyNone BodyMode = iota
	// BodyFixedLength: Content-Length gives the exact byte count.
	BodyFixedLength
	// BodyChunked: Transfer-Encoding: chunked: framing described §4.6 leaves to the caller.
	BodyChunked
	// BodyUntilClose: no length indicator; a response body runs to connection close.
	BodyUntilClose
)

var errNeedMore = fmt.Errorf("httpmsg: need more bytes")

// Method returns the request method, or nil for a response.
func (m *Message) Method() []byte {
	if m.IsRequest {
		return m.StartLine[0]
	}
	return nil
}

// URI returns the request target, or nil for a response.
func (m *Message) URI() []byte {
	if m.IsRequest {
		return m.StartLine[1]
	}
	return nil
}

// StatusCode returns the numeric status code, or 0 for a request or an
// unparseable status line.
func (m *Message) StatusCode() int {
	if m.IsRequest {
		return 0
	}
	code, _ := strconv.Atoi(string(m.StartLine[1]))
	return code
}

// HeaderValue returns the first header value matching name
// (case-insensitive), or nil if absent.
func (m *Message) HeaderValue(name string) []byte {
	for _, h := range m.Headers {
		if bytes.EqualFold(h.Name, []byte(name)) {
			return h.Value
		}
	}
	return nil
}

// Parse scans data for one complete start-line-plus-headers message,
// consuming the fixed-length body too when Content-Length is present. It
// never mutates data and never blocks.
//
// Return contract (spec §4.6):
//   - (nil, 0, nil):        need more bytes — data is a valid but incomplete prefix
//   - (msg, consumed, nil): a complete message; consumed bytes may be dropped from the buffer
//   - (nil, 0, err):        malformed input — the connection should close immediately
func Parse(data []byte) (*Message, int, error) {
	lineEnd := indexCRLF(data)
	if lineEnd < 0 {
		if len(data) > 8*1024 {
			return nil, 0, fmt.Errorf("httpmsg: start line too long")
		}
		return nil, 0, nil
	}
	startLine := data[:lineEnd]
	cursor := lineEnd + 2

	msg := &Message{}
	if err := parseStartLine(startLine, msg); err != nil {
		return nil, 0, err
	}

	for {
		headerEnd := indexCRLF(data[cursor:])
		if headerEnd < 0 {
			if len(data)-cursor > 64*1024 {
				return nil, 0, fmt.Errorf("httpmsg: headers too large")
			}
			return nil, 0, nil
		}
		line := data[cursor : cursor+headerEnd]
		cursor += headerEnd + 2

		if len(line) == 0 {
			break // blank line terminates the header block
		}
		if line[0] == ' ' || line[0] == '\t' {
			// RFC 7230 Section 3.2.4: obsolete line folding, rejected.
			return nil, 0, fmt.Errorf("httpmsg: header line continuation not supported")
		}
		if len(msg.Headers) >= maxHeaders {
			return nil, 0, fmt.Errorf("httpmsg: too many headers (max %d)", maxHeaders)
		}
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return nil, 0, fmt.Errorf("httpmsg: malformed header line %q", line)
		}
		name := trimOWS(line[:colon])
		value := trimOWS(line[colon+1:])
		msg.Headers = append(msg.Headers, Header{Name: name, Value: value})
	}

	determineBodyMode(msg)

	switch msg.BodyMode {
	case BodyFixedLength:
		want := int(msg.ContentLength)
		avail := len(data) - cursor
		if avail < want {
			return nil, 0, nil
		}
		msg.Body = data[cursor : cursor+want]
		msg.Complete = true
		return msg, cursor + want, nil
	case BodyChunked:
		// Chunk framing itself is left to the caller (protocol handler
		// streams chunks as they arrive); the parser reports the
		// boundary between headers and the chunked body it owns.
		msg.Complete = true
		return msg, cursor, nil
	default:
		msg.Complete = true
		return msg, cursor, nil
	}
}

func parseStartLine(line []byte, msg *Message) error {
	fields := splitN(line, ' ', 3)
	if len(fields) != 3 {
		return fmt.Errorf("httpmsg: malformed start line %q", line)
	}
	msg.IsRequest = !bytes.HasPrefix(fields[0], []byte("HTTP/"))
	msg.StartLine[0] = fields[0]
	msg.StartLine[1] = fields[1]
	msg.StartLine[2] = fields[2]
	return nil
}

func determineBodyMode(msg *Message) {
	if te := msg.HeaderValue("Transfer-Encoding"); te != nil && bytes.Contains(bytes.ToLower(te), []byte("chunked")) {
		msg.BodyMode = BodyChunked
		return
	}
	if cl := msg.HeaderValue("Content-Length"); cl != nil {
		n, err := strconv.ParseInt(strings.TrimSpace(string(cl)), 10, 64)
		if err == nil && n >= 0 {
			msg.BodyMode = BodyFixedLength
			msg.ContentLength = n
			return
		}
	}
	if !msg.IsRequest {
		msg.BodyMode = BodyUntilClose
		return
	}
	msg.BodyMode = BodyNone
}

// indexCRLF returns the index of the first "\r\n" in b, or -1.
func indexCRLF(b []byte) int {
	return bytes.Index(b, []byte("\r\n"))
}

// trimOWS strips leading/trailing optional whitespace (RFC 7230 OWS).
func trimOWS(b []byte) []byte {
	return bytes.Trim(b, " \t")
}

// splitN splits b on single-byte sep into exactly n fields, the last one
// absorbing any remaining separators (mirrors an HTTP start line, where
// the URI or reason phrase may itself contain spaces).
func splitN(b []byte, sep byte, n int) [][]byte {
	out := make([][]byte, 0, n)
	start := 0
	for len(out) < n-1 {
		idx := bytes.IndexByte(b[start:], sep)
		if idx < 0 {
			break
		}
		out = append(out, b[start:start+idx])
		start += idx + 1
	}
	out = append(out, b[start:])
	return out
}
