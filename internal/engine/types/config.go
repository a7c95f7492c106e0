package types

import (
	"time"
)

// Size constants
const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB

	// IncompleteSuffix is appended to temp files while a transfer is in flight
	IncompleteSuffix = ".part"
)

// Buffer and throttle constants for transfers
const (
	WorkerBuffer         = 256 * KB
	ProgressInterval     = 500 * time.Millisecond // ~2 progress callbacks per second
	ProgressLogInterval  = 5 * time.Second        // Console line cadence while transferring
	SnapshotPrefixLength = 4 * KB                 // Bytes kept when snapshotting a log for reset detection
)

// HTTP Client Tuning
const (
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 30 * time.Second
	DialTimeout                  = 10 * time.Second
	KeepAliveDuration            = 30 * time.Second
)

// Channel buffer sizes
const (
	EventChannelBuffer = 100
	ConsoleLines       = 200
)

// Default timings. These are heuristics tuned against the tracked application,
// not protocol guarantees.
const (
	LogResetWait         = 40 * time.Second
	SignalWait           = 40 * time.Second
	BundleDetectionWait  = 3 * time.Second
	IncompleteChunkWait  = 5 * time.Second
	NoTaskGiveUp         = 120 * time.Second
	StuckRecovery        = 15 * time.Second
	PendingFinishSettle  = 5 * time.Second
	ReopenPollInterval   = 1 * time.Second
	ReopenSuppressShort  = 2 * time.Second
	ReopenSuppressLong   = 6 * time.Second
	TrackerPollInterval  = 500 * time.Millisecond
	LogPollInterval      = 500 * time.Millisecond
	StopPollInterval     = 100 * time.Millisecond
	StopWaitTimeout      = 5 * time.Second
	RetryDelay           = 2 * time.Second
	NudgeLaunchDwell     = 3 * time.Second
	ExternalStallTimeout = 60 * time.Second
	TransferStallTimeout = 30 * time.Second
	ExternalMaxRestarts  = 5
)

// DefaultTransferRetries of 0 retries until cancelled or a non-retryable error.
const DefaultTransferRetries = 0

// Timings holds the tunable durations used by the engine.
// Zero values fall back to the defaults above.
type Timings struct {
	LogResetWait        time.Duration
	SignalWait          time.Duration
	BundleDetectionWait time.Duration
	IncompleteChunkWait time.Duration
	NoTaskGiveUp        time.Duration
	StuckRecovery       time.Duration
	PendingFinishSettle time.Duration
	ReopenPollInterval  time.Duration
	ReopenSuppressShort time.Duration
	ReopenSuppressLong  time.Duration
	TrackerPollInterval time.Duration
	LogPollInterval     time.Duration
	StopPollInterval    time.Duration
	StopWaitTimeout     time.Duration
	RetryDelay          time.Duration
	TransferStall       time.Duration
	NudgeLaunchDwell    time.Duration
	MaxTransferRetries  int
	ExternalStall       time.Duration
	ExternalMaxRestarts int
}

func pick(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// GetLogResetWait returns configured value or default
func (t *Timings) GetLogResetWait() time.Duration {
	if t == nil {
		return LogResetWait
	}
	return pick(t.LogResetWait, LogResetWait)
}

// GetSignalWait returns configured value or default
func (t *Timings) GetSignalWait() time.Duration {
	if t == nil {
		return SignalWait
	}
	return pick(t.SignalWait, SignalWait)
}

// GetBundleDetectionWait returns configured value or default
func (t *Timings) GetBundleDetectionWait() time.Duration {
	if t == nil {
		return BundleDetectionWait
	}
	return pick(t.BundleDetectionWait, BundleDetectionWait)
}

// GetIncompleteChunkWait returns configured value or default
func (t *Timings) GetIncompleteChunkWait() time.Duration {
	if t == nil {
		return IncompleteChunkWait
	}
	return pick(t.IncompleteChunkWait, IncompleteChunkWait)
}

// GetNoTaskGiveUp returns configured value or default
func (t *Timings) GetNoTaskGiveUp() time.Duration {
	if t == nil {
		return NoTaskGiveUp
	}
	return pick(t.NoTaskGiveUp, NoTaskGiveUp)
}

// GetStuckRecovery returns configured value or default
func (t *Timings) GetStuckRecovery() time.Duration {
	if t == nil {
		return StuckRecovery
	}
	return pick(t.StuckRecovery, StuckRecovery)
}

// GetPendingFinishSettle returns configured value or default
func (t *Timings) GetPendingFinishSettle() time.Duration {
	if t == nil {
		return PendingFinishSettle
	}
	return pick(t.PendingFinishSettle, PendingFinishSettle)
}

// GetReopenPollInterval returns configured value or default
func (t *Timings) GetReopenPollInterval() time.Duration {
	if t == nil {
		return ReopenPollInterval
	}
	return pick(t.ReopenPollInterval, ReopenPollInterval)
}

// GetReopenSuppressShort returns configured value or default
func (t *Timings) GetReopenSuppressShort() time.Duration {
	if t == nil {
		return ReopenSuppressShort
	}
	return pick(t.ReopenSuppressShort, ReopenSuppressShort)
}

// GetReopenSuppressLong returns configured value or default
func (t *Timings) GetReopenSuppressLong() time.Duration {
	if t == nil {
		return ReopenSuppressLong
	}
	return pick(t.ReopenSuppressLong, ReopenSuppressLong)
}

// GetTrackerPollInterval returns configured value or default
func (t *Timings) GetTrackerPollInterval() time.Duration {
	if t == nil {
		return TrackerPollInterval
	}
	return pick(t.TrackerPollInterval, TrackerPollInterval)
}

// GetLogPollInterval returns configured value or default
func (t *Timings) GetLogPollInterval() time.Duration {
	if t == nil {
		return LogPollInterval
	}
	return pick(t.LogPollInterval, LogPollInterval)
}

// GetStopPollInterval returns configured value or default
func (t *Timings) GetStopPollInterval() time.Duration {
	if t == nil {
		return StopPollInterval
	}
	return pick(t.StopPollInterval, StopPollInterval)
}

// GetStopWaitTimeout returns configured value or default
func (t *Timings) GetStopWaitTimeout() time.Duration {
	if t == nil {
		return StopWaitTimeout
	}
	return pick(t.StopWaitTimeout, StopWaitTimeout)
}

// GetRetryDelay returns configured value or default
func (t *Timings) GetRetryDelay() time.Duration {
	if t == nil {
		return RetryDelay
	}
	return pick(t.RetryDelay, RetryDelay)
}

// GetNudgeLaunchDwell returns configured value or default
func (t *Timings) GetNudgeLaunchDwell() time.Duration {
	if t == nil {
		return NudgeLaunchDwell
	}
	return pick(t.NudgeLaunchDwell, NudgeLaunchDwell)
}

// GetTransferStall is how long a transfer may receive no data before it is
// aborted and retried
func (t *Timings) GetTransferStall() time.Duration {
	if t == nil {
		return TransferStallTimeout
	}
	return pick(t.TransferStall, TransferStallTimeout)
}

// GetMaxTransferRetries returns the retry bound. Zero means unbounded.
func (t *Timings) GetMaxTransferRetries() int {
	if t == nil || t.MaxTransferRetries < 0 {
		return DefaultTransferRetries
	}
	return t.MaxTransferRetries
}

// GetExternalStall returns configured value or default
func (t *Timings) GetExternalStall() time.Duration {
	if t == nil {
		return ExternalStallTimeout
	}
	return pick(t.ExternalStall, ExternalStallTimeout)
}

// GetExternalMaxRestarts returns the restart bound for the external downloader
func (t *Timings) GetExternalMaxRestarts() int {
	if t == nil || t.ExternalMaxRestarts <= 0 {
		return ExternalMaxRestarts
	}
	return t.ExternalMaxRestarts
}

// NetworkConfig holds HTTP client settings for the transfer engine
type NetworkConfig struct {
	UserAgent           string
	ProxyURL            string
	SkipTLSVerification bool
	WorkerBufferSize    int
}

// GetUserAgent returns the configured user agent or the default
func (n *NetworkConfig) GetUserAgent() string {
	if n == nil || n.UserAgent == "" {
		return "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 (KHTML, like Gecko)"
	}
	return n.UserAgent
}

// GetWorkerBufferSize returns configured value or default
func (n *NetworkConfig) GetWorkerBufferSize() int {
	if n == nil || n.WorkerBufferSize <= 0 {
		return WorkerBuffer
	}
	return n.WorkerBufferSize
}
