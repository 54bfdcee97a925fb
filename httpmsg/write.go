// File: httpmsg/write.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package httpmsg

import "fmt"

// WriteStatusLine formats an HTTP/1.1 status line plus CRLF.
func WriteStatusLine(code int, reason string) []byte {
	return []byte(fmt.Sprintf("HTTP/1.1 %d %s\r\n", code, reason))
}

// WriteHeader formats one "Name: Value\r\n" header line.
func WriteHeader(name, value string) []byte {
	return []byte(fmt.Sprintf("%s: %s\r\n", name, value))
}

// WebSocketAccept101 builds the full 101 Switching Protocols response for
// a validated upgrade request's Sec-WebSocket-Key (spec §4.6).
func WebSocketAccept101(clientKey []byte) []byte {
	buf := make([]byte, 0, 160)
	buf = append(buf, WriteStatusLine(101, "Switching Protocols")...)
	buf = append(buf, WriteHeader("Upgrade", "websocket")...)
	buf = append(buf, WriteHeader("Connection", "Upgrade")...)
	buf = append(buf, WriteHeader("Sec-WebSocket-Accept", AcceptKey(clientKey))...)
	buf = append(buf, '\r', '\n')
	return buf
}
