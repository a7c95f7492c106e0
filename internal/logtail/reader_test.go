package logtail

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sideassist/sideassist/internal/testutil"
	"github.com/sideassist/sideassist/internal/utils"
)

func TestReadNewLines_PartialLineHeldBack(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "Client.log", "line1\nline2\npartial")

	r := OpenAt(path)
	lines, err := r.ReadNewLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"line1", "line2"}, lines)

	lines, err = r.ReadNewLines()
	require.NoError(t, err)
	assert.Empty(t, lines)

	testutil.AppendFile(t, path, "-rest\n")
	lines, err = r.ReadNewLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"partial-rest"}, lines)
}

func TestReadNewLines_Truncation(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "Client.log", "aaaaaaaaaa\nbbbbbbbbbb\n")

	r := OpenAt(path)
	_, err := r.ReadNewLines()
	require.NoError(t, err)
	assert.Equal(t, int64(22), r.Offset())

	require.NoError(t, os.WriteFile(path, []byte("new\n"), 0o644))
	lines, err := r.ReadNewLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, lines)
	assert.Equal(t, int64(4), r.Offset())
}

func TestReadNewLines_MissingFile(t *testing.T) {
	r := OpenAt(filepath.Join(t.TempDir(), "absent.log"))
	lines, err := r.ReadNewLines()
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestReadNewLines_CRLFAndSeekEnd(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "Client.log", "old\r\n")

	r := OpenAt(path)
	require.NoError(t, r.SeekEnd())
	testutil.AppendFile(t, path, "fresh\r\n")

	lines, err := r.ReadNewLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, lines)
}

func TestOpenAt_ResetsState(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteFile(t, dir, "a.log", "one\ntail")
	b := testutil.WriteFile(t, dir, "b.log", "two\n")

	r := OpenAt(a)
	_, _ = r.ReadNewLines()
	r.OpenAt(b)
	assert.Equal(t, int64(0), r.Offset())

	lines, err := r.ReadNewLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"two"}, lines, "partial line from the previous file must be dropped")
}

func TestIsReset(t *testing.T) {
	tests := []struct {
		name     string
		original string
		current  string
		want     bool
	}{
		{"unchanged", "abc", "abc", false},
		{"appended", "abc", "abcdef", false},
		{"rewritten", "abc", "xyz", true},
		{"truncated", "abcdef", "ab", true},
		{"empty original gains content", "", "a", true},
		{"empty stays empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsReset([]byte(tt.original), []byte(tt.current)))
		})
	}
}

func TestWaitForReset(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "Client.log", "previous session\n")

	t.Run("times out", func(t *testing.T) {
		ok, err := WaitForReset(context.Background(), testutil.NewFakeClock(), path, 500*time.Millisecond, 40*time.Second)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("detects rewrite", func(t *testing.T) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			_ = os.WriteFile(path, []byte("new session\n"), 0o644)
		}()
		ok, err := WaitForReset(context.Background(), utils.RealClock{}, path, 5*time.Millisecond, 2*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
