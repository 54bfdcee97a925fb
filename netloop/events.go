// File: netloop/events.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package netloop

// Event tags the kind of notification delivered to a connection's
// EventHandler, per spec §3.
type Event int

const (
	// EvPoll is emitted to every connection each loop iteration. Payload: nil.
	EvPoll Event = iota
	// EvAccept: a new accepted connection was created. Payload: netaddr.Endpoint (peer).
	EvAccept
	// EvConnect: a client connection's non-blocking connect resolved. Payload: error (nil on success).
	EvConnect
	// EvRecv: bytes were just appended to the receive buffer. Payload: int (count).
	EvRecv
	// EvSend: bytes were just drained from the send buffer. Payload: int (count).
	EvSend
	// EvClose: the socket is about to be freed. Payload: error (nil for an
	// ordinary close, otherwise the failure that caused it).
	EvClose
	// EvHTTPRequest: a complete HTTP request is available. Payload: *httpmsg.Message.
	EvHTTPRequest
	// EvHTTPReply: a complete HTTP response is available. Payload: *httpmsg.Message.
	EvHTTPReply
	// EvWSHandshakeRequest: a validated WebSocket upgrade request arrived. Payload: *httpmsg.Message.
	EvWSHandshakeRequest
	// EvWSHandshakeDone: the 101 response was written and framing begins. Payload: nil.
	EvWSHandshakeDone
	// EvWSFrame: a reassembled WebSocket message is available. Payload: *wsframe.Message.
	EvWSFrame
	// EvProtocolError: a parse/framing violation was observed; delivered
	// immediately before CLOSE, resolving the observability Open Question
	// in spec §9. It is also delivered to a listening connection when
	// accept or recvfrom fails with anything other than EAGAIN; the
	// listener stays open in that case. Payload: error.
	EvProtocolError
)

func (e Event) String() string {
	switch e {
	case EvPoll:
		return "POLL"
	case EvAccept:
		return "ACCEPT"
	case EvConnect:
		return "CONNECT"
	case EvRecv:
		return "RECV"
	case EvSend:
		return "SEND"
	case EvClose:
		return "CLOSE"
	case EvHTTPRequest:
		return "HTTP_REQUEST"
	case EvHTTPReply:
		return "HTTP_REPLY"
	case EvWSHandshakeRequest:
		return "WS_HANDSHAKE_REQUEST"
	case EvWSHandshakeDone:
		return "WS_HANDSHAKE_DONE"
	case EvWSFrame:
		return "WS_FRAME"
	case EvProtocolError:
		return "PROTOCOL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// EventHandler is the per-connection application callback. Handlers are
// synchronous and must not block (spec §5): the dispatcher calls them
// in-line on the single poll thread. c must not be retained past the
// matching EvClose delivery.
type EventHandler interface {
	HandleEvent(c *Conn, ev Event, payload any)
}

// EventHandlerFunc adapts a plain function to EventHandler.
type EventHandlerFunc func(c *Conn, ev Event, payload any)

// HandleEvent implements EventHandler.
func (f EventHandlerFunc) HandleEvent(c *Conn, ev Event, payload any) { f(c, ev, payload) }

// ProtocolHandler is the optional inner layer that consumes the receive
// buffer and synthesizes higher-level events (HTTP, WebSocket, ...),
// composable in front of a connection's raw EventHandler. When present,
// it may suppress the raw EvRecv delivery for bytes it has consumed,
// per design note §9 ("protocol handler ... may suppress raw RECV
// delivery").
type ProtocolHandler interface {
	// OnRecv is invoked after n raw bytes have been appended to c.Recv.
	// It returns suppressRaw=true if it fully owns interpretation of
	// those bytes (the caller then skips the plain EvRecv(n) delivery).
	OnRecv(c *Conn, n int) (suppressRaw bool)
}
