// File: staticfile/serve_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package staticfile_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/momentics/netloop/httpmsg"
	"github.com/momentics/netloop/netloop"
	"github.com/momentics/netloop/staticfile"
)

// newConnPair builds a Manager-owned Conn wrapping one end of a unix
// socketpair, returning the raw peer fd for the test to read from.
func newConnPair(t *testing.T) (*netloop.Manager, *netloop.Conn, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	m, err := netloop.NewManager()
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	c, err := m.AddSocket(fds[0], nil)
	if err != nil {
		t.Fatalf("add socket: %v", err)
	}
	return m, c, fds[1]
}

func TestServeReturns200ForExistingFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hi there"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, c, peerFD := newConnPair(t)
	defer unix.Close(peerFD)

	raw := []byte("GET /hello.txt HTTP/1.1\r\nHost: h\r\n\r\n")
	msg, _, err := httpmsg.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if err := staticfile.Serve(c, msg, root); err != nil {
		t.Fatalf("serve: %v", err)
	}

	out := c.Send.Bytes()
	if !bytes.Contains(out, []byte("200 OK")) {
		t.Fatalf("got %q, want 200 OK", out)
	}
	if !bytes.Contains(out, []byte("hi there")) {
		t.Fatalf("got %q, want body present", out)
	}
}

func TestServeReturns404ForMissingFile(t *testing.T) {
	root := t.TempDir()
	_, c, peerFD := newConnPair(t)
	defer unix.Close(peerFD)

	raw := []byte("GET /missing.txt HTTP/1.1\r\nHost: h\r\n\r\n")
	msg, _, err := httpmsg.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := staticfile.Serve(c, msg, root); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !bytes.Contains(c.Send.Bytes(), []byte("404 Not Found")) {
		t.Fatalf("got %q", c.Send.Bytes())
	}
}

func TestServeRejectsPathTraversal(t *testing.T) {
	root := t.TempDir()
	_, c, peerFD := newConnPair(t)
	defer unix.Close(peerFD)

	raw := []byte("GET /../../etc/passwd HTTP/1.1\r\nHost: h\r\n\r\n")
	msg, _, err := httpmsg.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := staticfile.Serve(c, msg, root); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !bytes.Contains(c.Send.Bytes(), []byte("400 Bad Request")) {
		t.Fatalf("got %q", c.Send.Bytes())
	}
}

func TestServeRejectsNonGET(t *testing.T) {
	root := t.TempDir()
	_, c, peerFD := newConnPair(t)
	defer unix.Close(peerFD)

	raw := []byte("POST /hello.txt HTTP/1.1\r\nHost: h\r\nContent-Length: 0\r\n\r\n")
	msg, _, err := httpmsg.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := staticfile.Serve(c, msg, root); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !bytes.Contains(c.Send.Bytes(), []byte("405 Method Not Allowed")) {
		t.Fatalf("got %q", c.Send.Bytes())
	}
}
