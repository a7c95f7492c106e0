package testutil

import (
	"io"
	"net/http"
	"testing"
)

func TestMockServer_BasicDownload(t *testing.T) {
	server := NewMockServerT(t,
		WithFileSize(1024*1024), // 1MB
	)

	resp, err := http.Get(server.URL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}

	if int64(len(data)) != 1024*1024 {
		t.Errorf("Expected 1MB, got %d bytes", len(data))
	}

	stats := server.Stats()
	if stats.TotalRequests != 1 {
		t.Errorf("Expected 1 request, got %d", stats.TotalRequests)
	}
	if stats.BytesServed != 1024*1024 {
		t.Errorf("Expected 1MB served, got %d", stats.BytesServed)
	}
}

func TestMockServer_HeadNotCounted(t *testing.T) {
	server := NewMockServerT(t, WithFileSize(100))

	resp, err := http.Head(server.URL())
	if err != nil {
		t.Fatalf("HEAD failed: %v", err)
	}
	_ = resp.Body.Close()

	if resp.ContentLength != 100 {
		t.Errorf("Expected Content-Length 100, got %d", resp.ContentLength)
	}
	if server.Stats().TotalRequests != 0 {
		t.Errorf("HEAD should not count as a request")
	}
}

func TestMockServer_WithData(t *testing.T) {
	payload := []byte("hello world")
	server := NewMockServerT(t, WithData(payload))

	resp, err := http.Get(server.URL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, _ := io.ReadAll(resp.Body)
	if string(data) != "hello world" {
		t.Errorf("got %q", data)
	}
}

func TestMockServer_FailAfterBytes(t *testing.T) {
	server := NewMockServerT(t,
		WithFileSize(200*1024),
		WithFailAfterBytes(64*1024, 1),
	)

	// First request is cut short
	resp, err := http.Get(server.URL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	_, err = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err == nil {
		t.Error("Expected a truncated body error on the first request")
	}

	// Second request succeeds
	resp, err = http.Get(server.URL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("Second request failed: %v", err)
	}
	if len(data) != 200*1024 {
		t.Errorf("Expected full body, got %d", len(data))
	}
	if server.Stats().FailedRequests != 1 {
		t.Errorf("Expected 1 failed request, got %d", server.Stats().FailedRequests)
	}
}

func TestMockServer_StatusOnRequest(t *testing.T) {
	server := NewMockServerT(t,
		WithFileSize(10),
		WithStatusOnRequest(1, http.StatusServiceUnavailable),
		WithRetryAfter("3"),
	)

	resp, err := http.Get(server.URL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") != "3" {
		t.Errorf("Expected Retry-After header, got %q", resp.Header.Get("Retry-After"))
	}

	resp, err = http.Get(server.URL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 on second request, got %d", resp.StatusCode)
	}
}

func TestMockServer_CustomHandler(t *testing.T) {
	server := NewMockServerT(t, WithHandler(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	resp, err := http.Get(server.URL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("Expected 418, got %d", resp.StatusCode)
	}
}
