// File: staticfile/serve.go
// Package staticfile is the convenience-layer static file server spec.md
// §1 scopes as "not the hard part": it writes one complete HTTP response
// for a GET request against a root directory, with the MIME type looked up
// from the file extension via the standard library's mime package and
// path traversal rejected outright.
// Grounded on httpmsg's request/response shapes and the teacher's
// examples/highlevel/http_methods GET-route texture (adapted: a single
// Serve call in place of a registered route handler, since this module
// has no router of its own).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package staticfile

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/momentics/netloop/httpmsg"
	"github.com/momentics/netloop/netloop"
)

// Serve resolves req's URI against root and writes a complete HTTP
// response to conn's send buffer: 200 with the file's bytes and a
// Content-Type/Content-Length pair, 404 if no matching file exists, or
// 400 if the URI attempts to escape root. Only GET is served; any other
// method gets 405.
func Serve(conn *netloop.Conn, req *httpmsg.Message, root string) error {
	if !req.IsRequest {
		return fmt.Errorf("staticfile: not a request message")
	}
	if string(req.Method()) != "GET" {
		writeStatus(conn, 405, "Method Not Allowed", nil, "")
		return nil
	}

	rel, err := sanitizeURI(string(req.URI()))
	if err != nil {
		writeStatus(conn, 400, "Bad Request", nil, "")
		return nil
	}

	path := filepath.Join(root, rel)
	f, err := os.Open(path)
	if err != nil {
		writeStatus(conn, 404, "Not Found", nil, "")
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeStatus(conn, 404, "Not Found", nil, "")
		return nil
	}

	body, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("staticfile: read %q: %w", path, err)
	}

	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = "application/octet-stream"
	}
	writeStatus(conn, 200, "OK", body, ct)
	return nil
}

// sanitizeURI strips query/fragment and rejects any path that escapes the
// served root once cleaned (blocking "../" traversal).
func sanitizeURI(uri string) (string, error) {
	if idx := strings.IndexAny(uri, "?#"); idx >= 0 {
		uri = uri[:idx]
	}
	depth := 0
	for _, seg := range strings.Split(uri, "/") {
		switch seg {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return "", fmt.Errorf("staticfile: path traversal rejected")
			}
		default:
			depth++
		}
	}
	clean := filepath.Clean("/" + uri)
	if clean == "/" {
		clean = "/index.html"
	}
	return strings.TrimPrefix(clean, "/"), nil
}

func writeStatus(conn *netloop.Conn, code int, reason string, body []byte, contentType string) {
	conn.SendBytes(httpmsg.WriteStatusLine(code, reason))
	if len(body) > 0 {
		conn.SendBytes(httpmsg.WriteHeader("Content-Type", contentType))
		conn.SendBytes(httpmsg.WriteHeader("Content-Length", strconv.Itoa(len(body))))
	} else {
		conn.SendBytes(httpmsg.WriteHeader("Content-Length", "0"))
	}
	conn.SendBytes([]byte("\r\n"))
	if len(body) > 0 {
		conn.SendBytes(body)
	}
}
