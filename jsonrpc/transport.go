// File: jsonrpc/transport.go
// Attach wires a Handler onto a netloop.Conn over whichever transport the
// connection is already speaking: newline-delimited JSON over a plain
// TCP/TLS connection, or JSON text frames over an already-upgraded
// WebSocket connection.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package jsonrpc

import (
	"bytes"

	"github.com/momentics/netloop/netloop"
	"github.com/momentics/netloop/wsframe"
)

// Handler answers one JSON-RPC request. A notification (req.Notification()
// true) ignores the returned result/err; Attach does not write a response
// for it, per the JSON-RPC 2.0 spec.
type Handler interface {
	HandleRequest(req *Request) (result any, rpcErr *Error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(req *Request) (result any, rpcErr *Error)

// HandleRequest implements Handler.
func (f HandlerFunc) HandleRequest(req *Request) (any, *Error) { return f(req) }

// Attach installs handler on conn. If conn is already in WebSocket mode
// (netloop.IsWebSocketMode), requests/responses travel as JSON text
// frames; otherwise Attach installs a newline-delimited protocol handler
// directly on the connection's raw byte stream.
func Attach(conn *netloop.Conn, handler Handler) {
	if netloop.IsWebSocketMode(conn) {
		attachWebSocket(conn, handler)
		return
	}
	conn.SetProtocolHandler(&lineHandler{handler: handler})
}

// lineHandler is a netloop.ProtocolHandler that splits the receive buffer
// on '\n', decoding and dispatching one JSON-RPC request per line.
type lineHandler struct {
	handler Handler
}

// OnRecv implements netloop.ProtocolHandler.
func (l *lineHandler) OnRecv(c *netloop.Conn, n int) bool {
	for {
		data := c.Recv.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			return true
		}
		line := data[:idx]
		c.Recv.RemoveHead(idx + 1)
		dispatch(c, l.handler, line, writeLineDelimited)
	}
}

func writeLineDelimited(c *netloop.Conn, payload []byte) {
	c.SendBytes(append(append([]byte{}, payload...), '\n'))
}

// attachWebSocket wraps conn's EventHandler so that text frames are
// decoded as JSON-RPC requests; every other event passes through
// unchanged to the original handler.
func attachWebSocket(conn *netloop.Conn, handler Handler) {
	inner := conn.Handler
	conn.Handler = netloop.EventHandlerFunc(func(c *netloop.Conn, ev netloop.Event, payload any) {
		if ev == netloop.EvWSFrame {
			if msg, ok := payload.(*wsframe.Message); ok && msg.Opcode == wsframe.OpText {
				dispatch(c, handler, msg.Payload, writeWebSocketText)
				return
			}
		}
		if inner != nil {
			inner.HandleEvent(c, ev, payload)
		}
	})
}

func writeWebSocketText(c *netloop.Conn, payload []byte) {
	netloop.SendWebSocketFrame(c, wsframe.OpText, payload)
}

// dispatch decodes one request, invokes handler, and (unless it was a
// notification) writes the response via write.
func dispatch(c *netloop.Conn, handler Handler, raw []byte, write func(*netloop.Conn, []byte)) {
	req, err := DecodeRequest(raw)
	if err != nil {
		resp := NewErrorResponse(nil, CodeParseError, err.Error())
		if b, encErr := Encode(resp); encErr == nil {
			write(c, b)
		}
		return
	}

	result, rpcErr := handler.HandleRequest(req)
	if req.Notification() {
		return
	}

	var resp *Response
	if rpcErr != nil {
		resp = &Response{JSONRPC: Version, Error: rpcErr, ID: req.ID}
	} else {
		resp, err = NewResultResponse(req.ID, result)
		if err != nil {
			resp = NewErrorResponse(req.ID, CodeInternalError, err.Error())
		}
	}
	if b, err := Encode(resp); err == nil {
		write(c, b)
	}
}
