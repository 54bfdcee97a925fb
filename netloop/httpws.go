// File: netloop/httpws.go
// The built-in HTTP/1.1 + WebSocket ProtocolHandler (spec §4.6, §9):
// wraps a connection's raw receive buffer, parses complete HTTP messages,
// recognizes WebSocket upgrade requests, and after a successful handshake
// switches the same connection to WebSocket frame decoding. Composable:
// it suppresses the raw EvRecv delivery for bytes it has fully consumed,
// per the "protocol handler ... may suppress raw RECV delivery" note.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package netloop

import (
	"github.com/momentics/netloop/control"
	"github.com/momentics/netloop/httpmsg"
	"github.com/momentics/netloop/wsframe"
)

// httpWSMode tracks which framing a connection is currently speaking.
type httpWSMode int

const (
	modeHTTP httpWSMode = iota
	modeWebSocket
)

// httpWSHandler is the ProtocolHandler installed by
// SetProtocolHTTPWebSocket.
type httpWSHandler struct {
	isServer  bool
	mode      httpWSMode
	ws        *wsframe.Decoder
	handshake bool // true once a WS_HANDSHAKE_REQUEST has been delivered, awaiting SendWebSocketHandshake
}

// SetProtocolHTTPWebSocket installs the built-in HTTP/1.1 + WebSocket
// protocol handler on c. isServer controls both which half of the upgrade
// handshake is expected and the masking direction once framing switches
// to WebSocket (spec §4.7: "server-side ... do not mask").
func SetProtocolHTTPWebSocket(c *Conn, isServer bool) {
	c.SetProtocolHandler(&httpWSHandler{isServer: isServer})
}

// OnRecv implements ProtocolHandler.
func (h *httpWSHandler) OnRecv(c *Conn, n int) bool {
	if h.mode == modeWebSocket {
		h.decodeWebSocket(c)
		return true
	}
	return h.decodeHTTP(c)
}

func (h *httpWSHandler) decodeHTTP(c *Conn) bool {
	for {
		msg, consumed, err := httpmsg.Parse(c.Recv.Bytes())
		if err != nil {
			c.mgr.metric(control.MetricProtocolErrors, 1)
			c.deliver(EvProtocolError, newError(ErrCodeProtocol, "http parse", err))
			c.flags = c.flags.Set(FlagCloseImmediately)
			return true
		}
		if msg == nil {
			return true // need more bytes; raw RECV stays suppressed while a message is in flight
		}

		c.Recv.RemoveHead(consumed)

		if msg.IsWebSocketUpgrade() {
			h.handshake = true
			c.deliver(EvWSHandshakeRequest, msg)
			continue
		}
		if msg.IsRequest {
			c.deliver(EvHTTPRequest, msg)
		} else {
			c.deliver(EvHTTPReply, msg)
		}
	}
}

func (h *httpWSHandler) decodeWebSocket(c *Conn) {
	if h.ws == nil {
		h.ws = wsframe.NewDecoder(h.isServer)
	}
	msgs, err := h.ws.Decode(c.Recv)
	if err != nil {
		c.mgr.metric(control.MetricProtocolErrors, 1)
		c.deliver(EvProtocolError, newError(ErrCodeProtocol, "websocket framing", err))
		c.flags = c.flags.Set(FlagCloseImmediately)
		return
	}
	for i := range msgs {
		c.deliver(EvWSFrame, &msgs[i])
	}
}

// SendWebSocketHandshake writes the 101 Switching Protocols response for
// the client key carried by a just-delivered WS_HANDSHAKE_REQUEST message,
// then switches c to WebSocket frame decoding and delivers
// WS_HANDSHAKE_DONE (spec §4.6).
func SendWebSocketHandshake(c *Conn, req *httpmsg.Message) error {
	h, ok := c.proto.(*httpWSHandler)
	if !ok {
		return newError(ErrCodeProtocol, "send websocket handshake", nil).
			WithContext("reason", "connection has no HTTP/WebSocket protocol handler installed")
	}
	key := req.HeaderValue("Sec-WebSocket-Key")
	if len(key) == 0 {
		return newError(ErrCodeProtocol, "send websocket handshake", nil).
			WithContext("reason", "request carries no Sec-WebSocket-Key")
	}
	if _, err := c.SendBytes(httpmsg.WebSocketAccept101(key)); err != nil {
		return err
	}
	h.mode = modeWebSocket
	h.handshake = false
	c.deliver(EvWSHandshakeDone, nil)
	return nil
}

// IsWebSocketMode reports whether c's built-in protocol handler has
// completed the upgrade handshake and is decoding WebSocket frames.
func IsWebSocketMode(c *Conn) bool {
	h, ok := c.proto.(*httpWSHandler)
	return ok && h.mode == modeWebSocket
}

// SendWebSocketFrame encodes and queues one complete WebSocket frame,
// masking it when the connection is acting as a client (spec §4.7).
func SendWebSocketFrame(c *Conn, op wsframe.Opcode, payload []byte) (int, error) {
	h, ok := c.proto.(*httpWSHandler)
	if !ok {
		return 0, newError(ErrCodeProtocol, "send websocket frame", nil).
			WithContext("reason", "connection has no HTTP/WebSocket protocol handler installed")
	}
	frame := wsframe.Encode(op, payload, !h.isServer)
	return c.SendBytes(frame)
}

// SendWebSocketFrameParts encodes parts as the single payload of one
// frame, computing the total length up front so all parts share one
// header and one contiguous send-buffer write (send_framev, spec §4.7).
func SendWebSocketFrameParts(c *Conn, op wsframe.Opcode, parts [][]byte) (int, error) {
	h, ok := c.proto.(*httpWSHandler)
	if !ok {
		return 0, newError(ErrCodeProtocol, "send websocket frame", nil).
			WithContext("reason", "connection has no HTTP/WebSocket protocol handler installed")
	}
	frame := wsframe.EncodeParts(op, parts, !h.isServer)
	return c.SendBytes(frame)
}
