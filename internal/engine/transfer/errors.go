package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/vfaronov/httpheader"
)

var (
	// ErrTransferActive is returned when Transfer is called while another transfer runs
	ErrTransferActive = errors.New("a transfer is already active")
	// ErrCancelled is returned when the active transfer was cancelled
	ErrCancelled = errors.New("transfer cancelled")
	// ErrStalled is wrapped by the retryable Error of a transfer that stopped receiving data
	ErrStalled = errors.New("transfer stalled")
)

// Error is a failed transfer, classified for the retry policy
type Error struct {
	Retryable  bool
	RetryAfter time.Duration // Server-requested delay, 0 if none
	StatusCode int           // HTTP status, 0 for transport errors
	Err        error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "transient"
	}
	return fmt.Sprintf("%s transfer error: %v", kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient transfer failure
func IsRetryable(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Retryable
}

var retryableErrnos = []syscall.Errno{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.ECONNABORTED,
	syscall.ENETUNREACH,
	syscall.EHOSTUNREACH,
	syscall.ENETDOWN,
	syscall.EPIPE,
	syscall.ETIMEDOUT,
}

// Classify wraps a transport-level error. Timeouts, DNS failures, dropped
// connections and an unreachable network are retryable; anything else is not.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Retryable: isTransient(err), Err: err}
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	for _, errno := range retryableErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// statusError classifies a non-200 response. 429 and 503 mean the server is
// temporarily unavailable and are retried after any Retry-After delay.
func statusError(resp *http.Response, now time.Time) *Error {
	e := &Error{
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("unexpected status code: %d", resp.StatusCode),
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		e.Retryable = true
		if at := httpheader.RetryAfter(resp.Header); !at.IsZero() {
			if d := at.Sub(now); d > 0 {
				e.RetryAfter = d
			}
		}
	}
	return e
}
