package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/testutil"
)

func newTestExecutor(t *testing.T) (*Executor, string) {
	t.Helper()
	dir := t.TempDir()
	return NewExecutor(&types.NetworkConfig{}, filepath.Join(dir, "transfers", "session")), dir
}

func taskFor(server *testutil.MockServer, dir, rel string, size int64) types.PendingDownloadTask {
	return types.PendingDownloadTask{
		SourceURL:    server.URL() + "/" + rel,
		RelativePath: rel,
		FullPath:     filepath.Join(dir, "Resources", filepath.FromSlash(rel)),
		ExpectedSize: size,
		Kind:         types.KindChunkDB,
	}
}

func TestTransfer_Success(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(512*1024), testutil.WithRandomData(true))
	exec, dir := newTestExecutor(t)
	task := taskFor(server, dir, "res/pak1_1.db", 512*1024)

	var mu sync.Mutex
	var updates []Progress
	err := exec.Transfer(context.Background(), task, 1000, func(p Progress) {
		mu.Lock()
		updates = append(updates, p)
		mu.Unlock()
	})
	require.NoError(t, err)

	testutil.VerifyFileSize(t, task.FullPath, 512*1024)
	got, _ := os.ReadFile(task.FullPath)
	assert.Equal(t, server.Data(), got)

	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	assert.Equal(t, int64(512*1024), last.Written)
	assert.Equal(t, int64(512*1024+1000), last.BatchWritten())
	assert.Empty(t, testutil.DirEntries(exec.TempDir), "temp file must be gone after commit")
	assert.False(t, exec.Active())
}

func TestTransfer_ReplacesExistingFile(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(1024))
	exec, dir := newTestExecutor(t)
	task := taskFor(server, dir, "a/b/realname.bin", 1024)

	_, err := testutil.CreateTestFile(filepath.Dir(task.FullPath), "realname.bin", 10, true)
	require.NoError(t, err)

	require.NoError(t, exec.Transfer(context.Background(), task, 0, nil))
	testutil.VerifyFileSize(t, task.FullPath, 1024)
}

func TestTransfer_SecondCallRejected(t *testing.T) {
	server := testutil.NewMockServerT(t,
		testutil.WithFileSize(256*1024),
		testutil.WithByteLatency(20*time.Millisecond),
	)
	exec, dir := newTestExecutor(t)

	done := make(chan error, 1)
	go func() {
		done <- exec.Transfer(context.Background(), taskFor(server, dir, "one.bin", 256*1024), 0, nil)
	}()

	require.Eventually(t, func() bool { return server.Stats().TotalRequests == 1 }, 2*time.Second, time.Millisecond)
	require.True(t, exec.Active())

	err := exec.Transfer(context.Background(), taskFor(server, dir, "two.bin", 256*1024), 0, nil)
	assert.ErrorIs(t, err, ErrTransferActive)
	assert.Equal(t, int64(1), server.Stats().TotalRequests, "no second network operation")

	require.NoError(t, <-done)
	assert.False(t, testutil.FileExists(filepath.Join(dir, "Resources", "two.bin")))
}

func TestTransfer_CancelActive(t *testing.T) {
	server := testutil.NewMockServerT(t,
		testutil.WithFileSize(1024*1024),
		testutil.WithByteLatency(20*time.Millisecond),
	)
	exec, dir := newTestExecutor(t)
	task := taskFor(server, dir, "big.bin", 1024*1024)

	done := make(chan error, 1)
	go func() { done <- exec.Transfer(context.Background(), task, 0, nil) }()

	require.Eventually(t, exec.Active, 2*time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	exec.CancelActive()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("transfer did not stop after cancel")
	}
	assert.False(t, testutil.FileExists(task.FullPath))
	assert.Empty(t, testutil.DirEntries(exec.TempDir))

	// No-op when idle
	exec.CancelActive()
}

func TestTransfer_PauseResume(t *testing.T) {
	server := testutil.NewMockServerT(t,
		testutil.WithFileSize(256*1024),
		testutil.WithByteLatency(10*time.Millisecond),
	)
	exec, dir := newTestExecutor(t)
	task := taskFor(server, dir, "p.bin", 256*1024)

	assert.False(t, exec.Pause(), "pause is a no-op while idle")

	done := make(chan error, 1)
	go func() { done <- exec.Transfer(context.Background(), task, 0, nil) }()
	require.Eventually(t, exec.Active, 2*time.Second, time.Millisecond)

	require.True(t, exec.Pause())
	assert.True(t, exec.Paused())

	select {
	case err := <-done:
		t.Fatalf("transfer finished while paused: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	require.True(t, exec.Resume())
	require.NoError(t, <-done)
	testutil.VerifyFileSize(t, task.FullPath, 256*1024)
	assert.False(t, exec.Resume(), "resume is a no-op once finished")
}

func TestTransfer_StatusErrors(t *testing.T) {
	t.Run("503 with Retry-After is retryable", func(t *testing.T) {
		server := testutil.NewMockServerT(t,
			testutil.WithFileSize(10),
			testutil.WithStatusOnRequest(1, http.StatusServiceUnavailable),
			testutil.WithRetryAfter("120"),
		)
		exec, dir := newTestExecutor(t)

		err := exec.Transfer(context.Background(), taskFor(server, dir, "x.bin", 10), 0, nil)
		var te *Error
		require.ErrorAs(t, err, &te)
		assert.True(t, te.Retryable)
		assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
		assert.Greater(t, te.RetryAfter, 100*time.Second)
	})

	t.Run("404 is permanent", func(t *testing.T) {
		server := testutil.NewMockServerT(t,
			testutil.WithFileSize(10),
			testutil.WithStatusOnRequest(1, http.StatusNotFound),
		)
		exec, dir := newTestExecutor(t)

		err := exec.Transfer(context.Background(), taskFor(server, dir, "x.bin", 10), 0, nil)
		assert.False(t, IsRetryable(err))
		assert.Error(t, err)
	})
}

func TestTransfer_DroppedConnectionIsRetryable(t *testing.T) {
	server := testutil.NewMockServerT(t,
		testutil.WithFileSize(200*1024),
		testutil.WithFailAfterBytes(64*1024, 0),
	)
	exec, dir := newTestExecutor(t)
	task := taskFor(server, dir, "drop.bin", 200*1024)

	err := exec.Transfer(context.Background(), task, 0, nil)
	assert.True(t, IsRetryable(err), "got %v", err)
	assert.False(t, testutil.FileExists(task.FullPath))
	assert.Empty(t, testutil.DirEntries(exec.TempDir))
}

// stallingHandler sends the headers and the first 100 of 1000 bytes, then
// holds the connection open without sending more. Requests after the first
// `stalls` are served in full.
func stallingHandler(t *testing.T, stalls int64) (http.HandlerFunc, *atomic.Int64) {
	t.Helper()
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	var requests atomic.Int64
	payload := bytes.Repeat([]byte("x"), 1000)
	return func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		if n > stalls {
			_, _ = w.Write(payload)
			return
		}
		_, _ = w.Write(payload[:100])
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}, &requests
}

func TestTransfer_Stall(t *testing.T) {
	t.Run("idle body is aborted as retryable", func(t *testing.T) {
		handler, _ := stallingHandler(t, 1)
		server := testutil.NewMockServerT(t, testutil.WithHandler(handler))
		exec, dir := newTestExecutor(t)
		exec.StallTimeout = 200 * time.Millisecond
		task := taskFor(server, dir, "stall.bin", 1000)

		start := time.Now()
		err := exec.Transfer(context.Background(), task, 0, nil)
		require.Error(t, err)
		assert.Less(t, time.Since(start), 5*time.Second)
		assert.True(t, IsRetryable(err), "got %v", err)
		assert.ErrorIs(t, err, ErrStalled)
		assert.NotErrorIs(t, err, ErrCancelled)
		assert.False(t, testutil.FileExists(task.FullPath))
		assert.Empty(t, testutil.DirEntries(exec.TempDir))
		assert.False(t, exec.Active())
	})

	t.Run("retry completes after a stall", func(t *testing.T) {
		handler, requests := stallingHandler(t, 1)
		server := testutil.NewMockServerT(t, testutil.WithHandler(handler))
		exec, dir := newTestExecutor(t)
		exec.StallTimeout = 200 * time.Millisecond
		task := taskFor(server, dir, "stall.bin", 1000)

		err := RunWithRetry(context.Background(), exec, task, 0, nil, RetryOptions{
			Timings: &types.Timings{RetryDelay: time.Millisecond},
			Clock:   testutil.NewFakeClock(),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), requests.Load())
		testutil.VerifyFileSize(t, task.FullPath, 1000)
	})

	t.Run("time spent paused is not a stall", func(t *testing.T) {
		server := testutil.NewMockServerT(t,
			testutil.WithFileSize(64*1024),
			testutil.WithByteLatency(5*time.Millisecond),
		)
		exec, dir := newTestExecutor(t)
		exec.StallTimeout = 100 * time.Millisecond
		task := taskFor(server, dir, "paused.bin", 64*1024)

		done := make(chan error, 1)
		go func() { done <- exec.Transfer(context.Background(), task, 0, nil) }()
		require.Eventually(t, exec.Active, 2*time.Second, time.Millisecond)

		require.True(t, exec.Pause())
		time.Sleep(400 * time.Millisecond)
		require.True(t, exec.Resume())

		require.NoError(t, <-done)
		testutil.VerifyFileSize(t, task.FullPath, 64*1024)
	})
}

func TestTransfer_SizeMismatch(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(100))
	exec, dir := newTestExecutor(t)
	task := taskFor(server, dir, "m.bin", 50)

	err := exec.Transfer(context.Background(), task, 0, nil)
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.False(t, testutil.FileExists(task.FullPath))
}

func TestRunWithRetry(t *testing.T) {
	t.Run("recovers after a dropped connection", func(t *testing.T) {
		server := testutil.NewMockServerT(t,
			testutil.WithFileSize(200*1024),
			testutil.WithFailAfterBytes(64*1024, 1),
		)
		exec, dir := newTestExecutor(t)
		task := taskFor(server, dir, "r.bin", 200*1024)

		err := RunWithRetry(context.Background(), exec, task, 0, nil, RetryOptions{
			Timings: &types.Timings{RetryDelay: time.Millisecond},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), server.Stats().TotalRequests)
		testutil.VerifyFileSize(t, task.FullPath, 200*1024)
	})

	t.Run("bounded retries", func(t *testing.T) {
		server := testutil.NewMockServerT(t,
			testutil.WithFileSize(200*1024),
			testutil.WithFailAfterBytes(1024, 0),
		)
		exec, dir := newTestExecutor(t)

		err := RunWithRetry(context.Background(), exec, taskFor(server, dir, "r.bin", 200*1024), 0, nil, RetryOptions{
			Timings: &types.Timings{RetryDelay: time.Millisecond, MaxTransferRetries: 2},
			Clock:   testutil.NewFakeClock(),
		})
		assert.True(t, IsRetryable(err))
		assert.Equal(t, int64(3), server.Stats().TotalRequests)
	})

	t.Run("permanent error stops", func(t *testing.T) {
		server := testutil.NewMockServerT(t,
			testutil.WithFileSize(10),
			testutil.WithStatusOnRequest(1, http.StatusForbidden),
		)
		exec, dir := newTestExecutor(t)

		err := RunWithRetry(context.Background(), exec, taskFor(server, dir, "r.bin", 10), 0, nil, RetryOptions{})
		assert.False(t, IsRetryable(err))
		assert.Equal(t, int64(1), server.Stats().TotalRequests)
	})

	t.Run("cancelled during backoff", func(t *testing.T) {
		server := testutil.NewMockServerT(t,
			testutil.WithFileSize(10),
			testutil.WithStatusOnRequest(1, http.StatusServiceUnavailable),
		)
		exec, dir := newTestExecutor(t)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := RunWithRetry(ctx, exec, taskFor(server, dir, "r.bin", 10), 0, nil, RetryOptions{
			Timings: &types.Timings{RetryDelay: time.Hour},
		})
		assert.ErrorIs(t, err, ErrCancelled)
	})
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"dns", &net.DNSError{Err: "no such host", Name: "cdn.example.com"}, true},
		{"timeout", fmt.Errorf("read: %w", timeoutErr{}), true},
		{"reset", &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, true},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"unreachable", fmt.Errorf("dial: %w", syscall.ENETUNREACH), true},
		{"unexpected eof", fmt.Errorf("read error: %w", io.ErrUnexpectedEOF), true},
		{"other", errors.New("x509: certificate signed by unknown authority"), false},
		{"disk", &os.PathError{Op: "write", Path: "/x", Err: syscall.ENOSPC}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err).Retryable)
		})
	}
	assert.Nil(t, Classify(nil))
}

func TestAlreadyPresent(t *testing.T) {
	dir := t.TempDir()
	path, err := testutil.CreateTestFile(dir, "a/file.bin", 100, false)
	require.NoError(t, err)

	assert.True(t, AlreadyPresent(types.PendingDownloadTask{FullPath: path, ExpectedSize: 100}))
	assert.False(t, AlreadyPresent(types.PendingDownloadTask{FullPath: path, ExpectedSize: 101}))
	assert.False(t, AlreadyPresent(types.PendingDownloadTask{FullPath: path}))
	assert.False(t, AlreadyPresent(types.PendingDownloadTask{FullPath: filepath.Join(dir, "none"), ExpectedSize: 1}))
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src, err := testutil.CreateTestFile(dir, "src.bin", 1024, true)
	require.NoError(t, err)
	dst := filepath.Join(dir, "dst.bin")

	require.NoError(t, copyFile(src, dst))
	match, err := testutil.CompareFiles(src, dst)
	require.NoError(t, err)
	assert.True(t, match)

	assert.Error(t, copyFile(filepath.Join(dir, "missing"), dst))
}
