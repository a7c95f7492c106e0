package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sideassist/sideassist/internal/config"
	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/history"
	"github.com/sideassist/sideassist/internal/testutil"
)

// resetFlags restores every flag to its default; cobra keeps values between executions
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSettingsCommand(t *testing.T) {
	out, err := execute(t, "settings", "set", "console_lines", "50")
	require.NoError(t, err)
	assert.Contains(t, out, "console_lines = 50")

	s, err := config.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, 50, s.General.ConsoleLines)

	out, err = execute(t, "settings")
	require.NoError(t, err)
	assert.Contains(t, out, "[Timings]")
	assert.Regexp(t, `console_lines\s+50`, out)

	_, err = execute(t, "settings", "set", "no_such_key", "1")
	assert.ErrorContains(t, err, "unknown setting")

	out, err = execute(t, "settings", "path")
	require.NoError(t, err)
	assert.Equal(t, config.GetSettingsPath(), strings.TrimSpace(out))
}

func TestHistoryCommand(t *testing.T) {
	_, err := execute(t, "history", "--clear")
	require.NoError(t, err)

	out, err := execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions recorded yet")

	store, err := history.Open(filepath.Join(config.GetStateDir(), "history.db"))
	require.NoError(t, err)
	start := time.Now().Add(-time.Minute)
	require.NoError(t, store.Record(context.Background(), history.Entry{
		ID:         "s1",
		Flow:       "update",
		Status:     types.StatusDone,
		Files:      3,
		Bytes:      2048,
		Message:    "Updated 3 file(s)",
		StartedAt:  start,
		FinishedAt: start.Add(42 * time.Second),
	}))
	require.NoError(t, store.Close())

	out, err = execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated 3 file(s)")
	assert.Contains(t, out, "42s")

	out, err = execute(t, "history", "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "History cleared")
}

func TestInstanceLock(t *testing.T) {
	require.NoError(t, config.EnsureDirs())

	ok, err := AcquireLock()
	require.NoError(t, err)
	require.True(t, ok)

	other := flock.New(lockPath())
	locked, err := other.TryLock()
	require.NoError(t, err)
	assert.False(t, locked, "second holder got the lock")

	require.NoError(t, ReleaseLock())
	require.NoError(t, ReleaseLock()) // Idempotent

	locked, err = other.TryLock()
	require.NoError(t, err)
	assert.True(t, locked)

	// A session command refuses to start while another instance holds the lock
	_, err = execute(t, "track")
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	require.NoError(t, other.Unlock())
}

func TestPrintStatus(t *testing.T) {
	root := t.TempDir()
	settings := config.DefaultSettings()
	settings.Paths.SignalFile = "progress.json"
	settings.Paths.CacheDir = "Cache"
	testutil.WriteFile(t, root, "progress.json", `{"Items":[{"DownloadSize":4000,"DownloadedSize":1000}]}`)
	testutil.WriteFile(t, filepath.Join(root, "Cache"), "blob", strings.Repeat("x", 2048))

	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)
	c.SetContext(context.Background())

	err := printStatus(c, settings, &config.StaticLocator{Override: root}, testutil.NewFakeSupervisor(true))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Running:     yes")
	assert.Contains(t, out.String(), "Container:   "+root)
	assert.Contains(t, out.String(), "(25.0%)")
	assert.Contains(t, out.String(), "Cache:       2.0 kB")

	out.Reset()
	err = printStatus(c, settings, &config.StaticLocator{Override: filepath.Join(root, "missing")}, testutil.NewFakeSupervisor(false))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Running:     no")
	assert.Contains(t, out.String(), "Container:   not found")
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"", "(default)"},
		{"com.example.game", "com.example.game"},
		{time.Duration(0), "(default)"},
		{90 * time.Second, "1m30s"},
		{true, "true"},
		{5, "5"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatValue(tt.in))
	}
}

func TestTrackHelp(t *testing.T) {
	out, err := execute(t, "track", "--help")
	require.NoError(t, err)
	// Only the nudge launch is silent
	assert.NotContains(t, out, "launches the game silently")
	assert.Contains(t, out, "relaunching the game silently")
}
