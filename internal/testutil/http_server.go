package testutil

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

// startLoopback serves handler on 127.0.0.1. Sandboxes without IPv6 break
// httptest's default listener, and sandboxes without any loopback TCP skip
// the test.
func startLoopback(t testing.TB, handler http.Handler) *httptest.Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("loopback listener unavailable: %v", err)
	}
	srv := &httptest.Server{Listener: ln, Config: &http.Server{Handler: handler}}
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}
