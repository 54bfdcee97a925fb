// File: jsonrpc/envelope_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package jsonrpc_test

import (
	"encoding/json"
	"testing"

	"github.com/momentics/netloop/jsonrpc"
)

func TestDecodeRequestValid(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","method":"ping","id":1}`)
	req, err := jsonrpc.DecodeRequest(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != "ping" {
		t.Fatalf("got method %q", req.Method)
	}
	if req.Notification() {
		t.Fatalf("request with id should not be a notification")
	}
}

func TestDecodeRequestNotification(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","method":"log"}`)
	req, err := jsonrpc.DecodeRequest(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !req.Notification() {
		t.Fatalf("request without id should be a notification")
	}
}

func TestDecodeRequestRejectsWrongVersion(t *testing.T) {
	raw := []byte(`{"jsonrpc":"1.0","method":"ping","id":1}`)
	if _, err := jsonrpc.DecodeRequest(raw); err == nil {
		t.Fatalf("expected a validation error for wrong jsonrpc version")
	}
}

func TestDecodeRequestRejectsMissingMethod(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":1}`)
	if _, err := jsonrpc.DecodeRequest(raw); err == nil {
		t.Fatalf("expected a validation error for missing method")
	}
}

func TestNewResultResponseRoundTrips(t *testing.T) {
	resp, err := jsonrpc.NewResultResponse(json.RawMessage(`1`), map[string]int{"pong": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := jsonrpc.Encode(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded jsonrpc.Response
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.JSONRPC != jsonrpc.Version {
		t.Fatalf("got jsonrpc=%q", decoded.JSONRPC)
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := jsonrpc.NewErrorResponse(json.RawMessage(`2`), jsonrpc.CodeMethodNotFound, "no such method")
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeMethodNotFound {
		t.Fatalf("got %+v", resp)
	}
}
