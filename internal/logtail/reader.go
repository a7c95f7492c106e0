// Package logtail reads lines appended to a growing log file.
package logtail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/utils"
)

// maxReadPerPoll bounds a single ReadNewLines call
const maxReadPerPoll = 8 * types.MB

// Reader tails one file. Each ReadNewLines call returns the complete lines
// appended since the previous call; a trailing partial line is held back.
type Reader struct {
	mu      sync.Mutex
	path    string
	offset  int64
	partial []byte
}

// OpenAt starts tailing path from its beginning
func OpenAt(path string) *Reader {
	r := &Reader{}
	r.OpenAt(path)
	return r
}

// OpenAt resets the reader onto path at offset 0
func (r *Reader) OpenAt(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = path
	r.offset = 0
	r.partial = nil
}

// SeekEnd skips everything currently in the file
func (r *Reader) SeekEnd() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, err := os.Stat(r.path)
	if err != nil {
		return err
	}
	r.offset = info.Size()
	r.partial = nil
	return nil
}

// Offset returns the number of bytes consumed so far
func (r *Reader) Offset() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offset
}

// ReadNewLines returns complete lines appended since the last call.
// A missing file yields no lines. A file smaller than the current offset
// is treated as rotated and read again from the start.
func (r *Reader) ReadNewLines() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()

	if size < r.offset {
		utils.Debug("logtail: %s shrank from %d to %d bytes, restarting", r.path, r.offset, size)
		r.offset = 0
		r.partial = nil
	}
	if size == r.offset {
		return nil, nil
	}

	n := size - r.offset
	if n > maxReadPerPoll {
		n = maxReadPerPoll
	}
	buf := make([]byte, n)
	read, err := f.ReadAt(buf, r.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	buf = buf[:read]
	r.offset += int64(read)

	data := append(r.partial, buf...)
	last := bytes.LastIndexByte(data, '\n')
	if last < 0 {
		r.partial = data
		return nil, nil
	}

	complete := data[:last]
	r.partial = append([]byte(nil), data[last+1:]...)

	raw := strings.Split(string(complete), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		lines = append(lines, strings.TrimSuffix(l, "\r"))
	}
	return lines, nil
}

// Snapshot returns up to the first SnapshotPrefixLength bytes of path.
// A missing file yields an empty snapshot.
func Snapshot(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, types.SnapshotPrefixLength)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf[:n], nil
}

// IsReset reports whether current no longer starts with the original snapshot.
// An empty original counts as reset as soon as any content appears.
func IsReset(original, current []byte) bool {
	if len(original) == 0 {
		return len(current) > 0
	}
	if len(current) < len(original) {
		return true
	}
	return !bytes.Equal(current[:len(original)], original)
}

// WaitForReset polls path until its content stops starting with what it held
// when the wait began, meaning another process truncated or rewrote it.
func WaitForReset(ctx context.Context, clock utils.Clock, path string, interval, timeout time.Duration) (bool, error) {
	original, err := Snapshot(path)
	if err != nil {
		return false, err
	}
	return WaitForResetSince(ctx, clock, path, original, interval, timeout)
}

// WaitForResetSince is WaitForReset against a snapshot taken earlier, e.g.
// just before launching the process that rewrites the file.
func WaitForResetSince(ctx context.Context, clock utils.Clock, path string, original []byte, interval, timeout time.Duration) (bool, error) {
	return utils.PollUntil(ctx, clock, interval, timeout, func() bool {
		current, err := Snapshot(path)
		if err != nil {
			utils.Debug("logtail: snapshot %s: %v", path, err)
			return false
		}
		return IsReset(original, current)
	})
}
