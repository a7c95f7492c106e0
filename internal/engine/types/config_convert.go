package types

import "github.com/sideassist/sideassist/internal/config"

// ConvertTimings converts the app-level timing settings to the engine-level Timings.
func ConvertTimings(ts config.TimingSettings) *Timings {
	return &Timings{
		LogResetWait:        ts.LogResetWait,
		SignalWait:          ts.SignalWait,
		BundleDetectionWait: ts.BundleDetectionWait,
		IncompleteChunkWait: ts.IncompleteChunkWait,
		NoTaskGiveUp:        ts.NoTaskGiveUp,
		StuckRecovery:       ts.StuckRecovery,
		PendingFinishSettle: ts.PendingFinishSettle,
		ReopenPollInterval:  ts.ReopenPollInterval,
		RetryDelay:          ts.RetryDelay,
		TransferStall:       ts.TransferStall,
		MaxTransferRetries:  ts.MaxTransferRetries,
		ExternalStall:       ts.ExternalStall,
		ExternalMaxRestarts: ts.ExternalMaxRestarts,
	}
}

// ConvertNetwork converts the app-level network settings to the engine-level NetworkConfig.
func ConvertNetwork(ns config.NetworkSettings) *NetworkConfig {
	return &NetworkConfig{
		UserAgent:           ns.UserAgent,
		ProxyURL:            ns.ProxyURL,
		SkipTLSVerification: ns.SkipTLSVerification,
		WorkerBufferSize:    ns.WorkerBufferSize,
	}
}
