// File: jsonrpc/envelope.go
// Package jsonrpc is a transport-agnostic JSON-RPC 2.0 helper layer
// (spec.md §1's "optional JSON-RPC helper layer" line item, expanded in
// SPEC_FULL.md): request/response/notification envelopes over either a
// plain connection (newline-delimited) or a WebSocket text-frame
// transport. The wire codec is the standard library's encoding/json —
// no third-party JSON codec appears anywhere in the reference corpus —
// but envelope validation follows the corpus's own shape for validated
// structs, grounded on nabbar-golib's certificates/config.go use of
// go-playground/validator's `libval.New().Struct(v)` pattern.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package jsonrpc

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Version is the only JSON-RPC version this package speaks.
const Version = "2.0"

var validate = validator.New()

// ID is a request identifier: per the JSON-RPC 2.0 spec it may be a
// string, a number, or null (absent for notifications). json.RawMessage
// preserves whichever the peer sent without forcing a type decision here.
type ID = json.RawMessage

// Request is one JSON-RPC request or notification (Notification is true
// when ID is empty).
type Request struct {
	JSONRPC string          `json:"jsonrpc" validate:"required,eq=2.0"`
	Method  string          `json:"method" validate:"required"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      ID              `json:"id,omitempty"`
}

// Notification reports whether r carries no id (a one-way call).
func (r *Request) Notification() bool { return len(r.ID) == 0 }

// Response is one JSON-RPC response: exactly one of Result/Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc" validate:"required,eq=2.0"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      ID              `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string { return fmt.Sprintf("jsonrpc: %d %s", e.Code, e.Message) }

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// NewRequest builds a Request with params marshaled from v (nil for no
// params) and the given raw id (nil for a notification).
func NewRequest(method string, v any, id ID) (*Request, error) {
	req := &Request{JSONRPC: Version, Method: method, ID: id}
	if v != nil {
		p, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("jsonrpc: marshal params: %w", err)
		}
		req.Params = p
	}
	return req, nil
}

// DecodeRequest parses and validates one JSON-RPC request from raw bytes.
func DecodeRequest(raw []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("jsonrpc: decode request: %w", err)
	}
	if err := validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("jsonrpc: invalid request: %w", err)
	}
	return &req, nil
}

// NewResultResponse builds a success Response for id with result marshaled
// from v.
func NewResultResponse(id ID, v any) (*Response, error) {
	r, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: marshal result: %w", err)
	}
	return &Response{JSONRPC: Version, Result: r, ID: id}, nil
}

// NewErrorResponse builds a failure Response for id.
func NewErrorResponse(id ID, code int, message string) *Response {
	return &Response{JSONRPC: Version, Error: &Error{Code: code, Message: message}, ID: id}
}

// Encode marshals any Request or Response to its wire form.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: encode: %w", err)
	}
	return b, nil
}
