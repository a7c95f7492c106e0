package types

import (
	"testing"
	"time"

	"github.com/sideassist/sideassist/internal/config"
)

// TestConvertTimings_AllFieldsCopied verifies that every engine-relevant timing
// setting reaches types.Timings.
func TestConvertTimings_AllFieldsCopied(t *testing.T) {
	input := config.TimingSettings{
		LogResetWait:        41 * time.Second,
		SignalWait:          42 * time.Second,
		BundleDetectionWait: 4 * time.Second,
		IncompleteChunkWait: 6 * time.Second,
		NoTaskGiveUp:        90 * time.Second,
		StuckRecovery:       20 * time.Second,
		PendingFinishSettle: 7 * time.Second,
		ReopenPollInterval:  2 * time.Second,
		RetryDelay:          3 * time.Second,
		MaxTransferRetries:  9,
	}

	result := ConvertTimings(input)

	if result == nil {
		t.Fatal("ConvertTimings returned nil")
	}
	if result.GetLogResetWait() != input.LogResetWait {
		t.Errorf("LogResetWait: got %v, want %v", result.GetLogResetWait(), input.LogResetWait)
	}
	if result.GetSignalWait() != input.SignalWait {
		t.Errorf("SignalWait: got %v, want %v", result.GetSignalWait(), input.SignalWait)
	}
	if result.GetBundleDetectionWait() != input.BundleDetectionWait {
		t.Errorf("BundleDetectionWait: got %v, want %v", result.GetBundleDetectionWait(), input.BundleDetectionWait)
	}
	if result.GetIncompleteChunkWait() != input.IncompleteChunkWait {
		t.Errorf("IncompleteChunkWait: got %v, want %v", result.GetIncompleteChunkWait(), input.IncompleteChunkWait)
	}
	if result.GetNoTaskGiveUp() != input.NoTaskGiveUp {
		t.Errorf("NoTaskGiveUp: got %v, want %v", result.GetNoTaskGiveUp(), input.NoTaskGiveUp)
	}
	if result.GetStuckRecovery() != input.StuckRecovery {
		t.Errorf("StuckRecovery: got %v, want %v", result.GetStuckRecovery(), input.StuckRecovery)
	}
	if result.GetPendingFinishSettle() != input.PendingFinishSettle {
		t.Errorf("PendingFinishSettle: got %v, want %v", result.GetPendingFinishSettle(), input.PendingFinishSettle)
	}
	if result.GetReopenPollInterval() != input.ReopenPollInterval {
		t.Errorf("ReopenPollInterval: got %v, want %v", result.GetReopenPollInterval(), input.ReopenPollInterval)
	}
	if result.GetRetryDelay() != input.RetryDelay {
		t.Errorf("RetryDelay: got %v, want %v", result.GetRetryDelay(), input.RetryDelay)
	}
	if result.GetMaxTransferRetries() != input.MaxTransferRetries {
		t.Errorf("MaxTransferRetries: got %d, want %d", result.GetMaxTransferRetries(), input.MaxTransferRetries)
	}
}

func TestConvertTimings_ZeroUsesDefaults(t *testing.T) {
	result := ConvertTimings(config.TimingSettings{})

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"LogResetWait", result.GetLogResetWait(), LogResetWait},
		{"SignalWait", result.GetSignalWait(), SignalWait},
		{"BundleDetectionWait", result.GetBundleDetectionWait(), BundleDetectionWait},
		{"IncompleteChunkWait", result.GetIncompleteChunkWait(), IncompleteChunkWait},
		{"NoTaskGiveUp", result.GetNoTaskGiveUp(), NoTaskGiveUp},
		{"StuckRecovery", result.GetStuckRecovery(), StuckRecovery},
		{"PendingFinishSettle", result.GetPendingFinishSettle(), PendingFinishSettle},
		{"RetryDelay", result.GetRetryDelay(), RetryDelay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestTimings_NilSafe(t *testing.T) {
	var timings *Timings
	if timings.GetStuckRecovery() != StuckRecovery {
		t.Error("nil Timings should return defaults")
	}
	if timings.GetMaxTransferRetries() != DefaultTransferRetries {
		t.Error("nil Timings should return default retry bound")
	}
}

func TestConvertNetwork(t *testing.T) {
	input := config.NetworkSettings{
		UserAgent:           "TestAgent/1.0",
		ProxyURL:            "http://127.0.0.1:8080",
		SkipTLSVerification: true,
		WorkerBufferSize:    64 * KB,
	}
	result := ConvertNetwork(input)

	if result.GetUserAgent() != input.UserAgent {
		t.Errorf("UserAgent: got %q, want %q", result.GetUserAgent(), input.UserAgent)
	}
	if result.ProxyURL != input.ProxyURL {
		t.Errorf("ProxyURL: got %q, want %q", result.ProxyURL, input.ProxyURL)
	}
	if !result.SkipTLSVerification {
		t.Error("SkipTLSVerification not copied")
	}
	if result.GetWorkerBufferSize() != input.WorkerBufferSize {
		t.Errorf("WorkerBufferSize: got %d, want %d", result.GetWorkerBufferSize(), input.WorkerBufferSize)
	}

	var empty *NetworkConfig
	if empty.GetUserAgent() == "" {
		t.Error("nil NetworkConfig should return default user agent")
	}
}

func TestProgressState_AdvanceIsMonotonic(t *testing.T) {
	ps := NewProgressState("id", 100)
	ps.Advance(20)
	ps.Advance(50)
	ps.Advance(30)
	if got := ps.Downloaded.Load(); got != 50 {
		t.Errorf("Downloaded = %d, want 50", got)
	}
	if got := ps.Fraction(); got != 0.5 {
		t.Errorf("Fraction = %v, want 0.5", got)
	}
}

func TestBackgroundDownloadState_FileProgressClamped(t *testing.T) {
	s := BackgroundDownloadState{TotalExpectedBytes: 100, CumulativeObservedBytes: 150}
	if s.FileProgress() != 1 {
		t.Errorf("FileProgress = %v, want 1", s.FileProgress())
	}
	s.TotalExpectedBytes = 0
	if s.FileProgress() != 0 {
		t.Errorf("FileProgress with unknown total = %v, want 0", s.FileProgress())
	}
}
