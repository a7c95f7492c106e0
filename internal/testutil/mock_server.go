// Package testutil provides testing utilities for sideassist.
package testutil

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// MockServer is a configurable HTTP test server standing in for the game CDN.
type MockServer struct {
	Server *httptest.Server

	// Configuration
	FileSize          int64         // Size of the served file
	ContentType       string        // Content-Type header value
	Filename          string        // Filename in Content-Disposition header
	RandomData        bool          // If true, serve random data; otherwise serve zeros
	ByteLatency       time.Duration // Latency per 32KB chunk (simulates slow connection)
	FailAfterBytes    int64         // Drop the connection after this many bytes (0 = no fail)
	FailRequests      int           // Only the first N requests drop (0 = every request)
	StatusOnRequest   map[int]int   // Request number -> status code to answer with
	RetryAfter        string        // Retry-After header sent with StatusOnRequest answers
	OmitContentLength bool          // Stream without Content-Length

	// Tracking
	RequestCount   atomic.Int64
	BytesServed    atomic.Int64
	ActiveRequests atomic.Int64
	FailedRequests atomic.Int64
	requestCountMu sync.Mutex
	internalReqNum int

	// Internal
	data          []byte
	CustomHandler http.HandlerFunc
}

// MockServerOption is a function that configures a MockServer.
type MockServerOption func(*MockServer)

// WithHandler sets a custom request handler.
func WithHandler(h http.HandlerFunc) MockServerOption {
	return func(m *MockServer) {
		m.CustomHandler = h
	}
}

// WithFileSize sets the file size to serve.
func WithFileSize(size int64) MockServerOption {
	return func(m *MockServer) {
		m.FileSize = size
	}
}

// WithData serves exactly data (overrides WithFileSize).
func WithData(data []byte) MockServerOption {
	return func(m *MockServer) {
		m.data = data
		m.FileSize = int64(len(data))
	}
}

// WithContentType sets the Content-Type header.
func WithContentType(ct string) MockServerOption {
	return func(m *MockServer) {
		m.ContentType = ct
	}
}

// WithFilename sets the filename in Content-Disposition header.
func WithFilename(name string) MockServerOption {
	return func(m *MockServer) {
		m.Filename = name
	}
}

// WithRandomData enables serving random bytes instead of zeros.
func WithRandomData(random bool) MockServerOption {
	return func(m *MockServer) {
		m.RandomData = random
	}
}

// WithByteLatency adds artificial latency per chunk served.
func WithByteLatency(d time.Duration) MockServerOption {
	return func(m *MockServer) {
		m.ByteLatency = d
	}
}

// WithFailAfterBytes drops the connection after serving n bytes on the
// first `requests` requests (0 = all requests).
func WithFailAfterBytes(n int64, requests int) MockServerOption {
	return func(m *MockServer) {
		m.FailAfterBytes = n
		m.FailRequests = requests
	}
}

// WithStatusOnRequest answers the nth request (1-based) with status.
func WithStatusOnRequest(n, status int) MockServerOption {
	return func(m *MockServer) {
		if m.StatusOnRequest == nil {
			m.StatusOnRequest = make(map[int]int)
		}
		m.StatusOnRequest[n] = status
	}
}

// WithRetryAfter sets the Retry-After header for WithStatusOnRequest answers.
func WithRetryAfter(v string) MockServerOption {
	return func(m *MockServer) {
		m.RetryAfter = v
	}
}

func newMockServer(opts []MockServerOption) *MockServer {
	m := &MockServer{
		FileSize:    1024 * 1024, // 1MB default
		ContentType: "application/octet-stream",
		Filename:    "testfile.bin",
	}

	for _, opt := range opts {
		opt(m)
	}

	// Pre-generate data
	if m.data == nil {
		m.data = make([]byte, m.FileSize)
		if m.RandomData {
			_, _ = rand.Read(m.data)
		}
	}
	return m
}

// NewMockServerT creates a new mock HTTP server and skips the test if binding fails.
func NewMockServerT(t *testing.T, opts ...MockServerOption) *MockServer {
	t.Helper()
	m := newMockServer(opts)
	m.Server = startLoopback(t, http.HandlerFunc(m.handleRequest))
	return m
}

// URL returns the server's URL.
func (m *MockServer) URL() string {
	return m.Server.URL
}

// Data returns the bytes the server serves.
func (m *MockServer) Data() []byte {
	return m.data
}

// Close shuts down the mock server.
func (m *MockServer) Close() {
	if m.Server != nil {
		m.Server.Close()
	}
}

// Stats returns a summary of server statistics.
func (m *MockServer) Stats() MockServerStats {
	return MockServerStats{
		TotalRequests:  m.RequestCount.Load(),
		BytesServed:    m.BytesServed.Load(),
		FailedRequests: m.FailedRequests.Load(),
	}
}

// MockServerStats contains server statistics.
type MockServerStats struct {
	TotalRequests  int64
	BytesServed    int64
	FailedRequests int64
}

func (m *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	if m.CustomHandler != nil {
		m.CustomHandler(w, r)
		return
	}

	m.ActiveRequests.Add(1)
	defer m.ActiveRequests.Add(-1)

	// HEAD probes (grab) are not counted as transfer attempts
	if r.Method == http.MethodHead {
		m.setCommonHeaders(w)
		w.WriteHeader(http.StatusOK)
		return
	}

	m.RequestCount.Add(1)
	m.requestCountMu.Lock()
	m.internalReqNum++
	reqNum := m.internalReqNum
	m.requestCountMu.Unlock()

	if status, ok := m.StatusOnRequest[reqNum]; ok {
		m.FailedRequests.Add(1)
		if m.RetryAfter != "" {
			w.Header().Set("Retry-After", m.RetryAfter)
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	m.setCommonHeaders(w)
	w.WriteHeader(http.StatusOK)

	failThis := m.FailAfterBytes > 0 && (m.FailRequests == 0 || reqNum <= m.FailRequests)
	flusher, _ := w.(http.Flusher)

	// Write in chunks to support byte latency and fail-after-bytes
	length := m.FileSize
	written := int64(0)
	chunkSize := int64(32 * 1024)
	for written < length {
		if failThis && written >= m.FailAfterBytes {
			m.FailedRequests.Add(1)
			// Abruptly stop; the client sees an unexpected EOF
			panic(http.ErrAbortHandler)
		}

		end := written + chunkSize
		if end > length {
			end = length
		}
		if failThis && end > m.FailAfterBytes {
			end = m.FailAfterBytes
		}

		n, err := w.Write(m.data[written:end])
		if err != nil {
			return // Client disconnected
		}
		written += int64(n)
		m.BytesServed.Add(int64(n))
		if flusher != nil {
			flusher.Flush()
		}

		if m.ByteLatency > 0 {
			select {
			case <-time.After(m.ByteLatency):
			case <-r.Context().Done():
				return
			}
		}
	}
}

func (m *MockServer) setCommonHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", m.ContentType)
	if !m.OmitContentLength {
		w.Header().Set("Content-Length", strconv.FormatInt(m.FileSize, 10))
	}
	if m.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, m.Filename))
	}
}
