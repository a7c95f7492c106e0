package utils

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_Bounded(t *testing.T) {
	c := NewConsole(3)
	for i := 0; i < 5; i++ {
		c.Logf("line %d", i)
	}
	lines := c.Lines()
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[0], "line 2"))
	assert.True(t, strings.HasSuffix(c.Latest(), "line 4"))
}

func TestConsole_ErrorPrefix(t *testing.T) {
	c := NewConsole(10)
	c.Errorf("disk full")
	assert.Contains(t, c.Latest(), "error: disk full")
}

func TestConsole_EmptyLatest(t *testing.T) {
	assert.Equal(t, "", NewConsole(1).Latest())
}

func TestConsole_Since(t *testing.T) {
	c := NewConsole(3)
	c.Logf("a")
	lines, seq := c.Since(0)
	require.Len(t, lines, 1)
	assert.Equal(t, 1, seq)

	lines, seq = c.Since(seq)
	assert.Empty(t, lines)

	for _, s := range []string{"b", "c", "d", "e"} {
		c.Logf("%s", s)
	}
	// Only the buffered tail survives eviction
	lines, seq = c.Since(seq)
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[0], "] c"))
	assert.Equal(t, 5, seq)
}

func TestPollUntil(t *testing.T) {
	t.Run("becomes true", func(t *testing.T) {
		n := 0
		ok, err := PollUntil(context.Background(), RealClock{}, time.Millisecond, time.Second, func() bool {
			n++
			return n >= 3
		})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 3, n)
	})

	t.Run("times out", func(t *testing.T) {
		ok, err := PollUntil(context.Background(), RealClock{}, time.Millisecond, 20*time.Millisecond, func() bool {
			return false
		})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ok, err := PollUntil(ctx, RealClock{}, time.Millisecond, time.Second, func() bool {
			return false
		})
		assert.False(t, ok)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFormatProgress(t *testing.T) {
	assert.Equal(t, "1.0 kB", ConvertBytesToHumanReadable(1000))
	assert.Equal(t, "500 B / 1.0 kB (50.0%)", FormatProgress(500, 1000))
	assert.Equal(t, "2.0 kB / 1.0 kB (100.0%)", FormatProgress(2000, 1000))
	assert.Equal(t, "500 B", FormatProgress(500, 0))
}
