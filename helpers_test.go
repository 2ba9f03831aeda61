package main

import (
	"bytes"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wesnick/gshell/pkg/gshell"
	"github.com/wesnick/gshell/pkg/gshell/oauth2store"
)

// roundTripFunc makes it easy to stub HTTP responses in tests.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func notFound() *http.Response {
	return jsonResponse(http.StatusNotFound, `{"error": {"code": 404, "message": "Not Found"}}`)
}

// newFakeConn builds a connection whose every request is served by fn.
func newFakeConn(t *testing.T, fn roundTripFunc) *gshell.Connection {
	t.Helper()
	conn, err := gshell.NewFake(&http.Client{Transport: fn})
	if err != nil {
		t.Fatalf("NewFake() error = %v", err)
	}
	return conn
}

func jsonOut(buf *bytes.Buffer) *outputWriter {
	return &outputWriter{json: true, noColor: true, writer: buf, errOut: io.Discard}
}

func textOut(buf *bytes.Buffer) *outputWriter {
	return &outputWriter{noColor: true, writer: buf, errOut: io.Discard}
}

func newTestStore(t *testing.T) *oauth2store.Consumer {
	t.Helper()
	store, err := oauth2store.Open(oauth2store.NewJSONDataStore(filepath.Join(t.TempDir(), "tokens.json")))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return store
}

func readBody(t *testing.T, req *http.Request) string {
	t.Helper()
	if req.Body == nil {
		return ""
	}
	b, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("reading request body: %v", err)
	}
	return string(b)
}
