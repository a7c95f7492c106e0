package types

import (
	"time"
)

// TaskKind distinguishes how a requested file is delivered by the tracked application
type TaskKind int

const (
	KindChunkDB TaskKind = iota
	KindDirectInstall
)

func (k TaskKind) String() string {
	switch k {
	case KindChunkDB:
		return "chunk"
	case KindDirectInstall:
		return "direct"
	default:
		return "unknown"
	}
}

// PendingDownloadTask is one file to fetch on behalf of the tracked application
type PendingDownloadTask struct {
	SourceURL     string   `json:"source_url"`
	RelativePath  string   `json:"relative_path"` // Relative to the download root inside the container
	FullPath      string   `json:"full_path"`
	ExpectedSize  int64    `json:"expected_size"` // 0 when unknown
	Kind          TaskKind `json:"kind"`
	TargetGroupID string   `json:"target_group_id"`
}

// Key returns the deduplication key (source URL, relative path)
func (t PendingDownloadTask) Key() string {
	return t.SourceURL + "|" + t.RelativePath
}

// TargetGroupProgress tracks which chunk parts of one target group were requested
type TargetGroupProgress struct {
	ExpectedPartCount int
	ObservedParts     map[int]struct{}
	LastSeenAt        time.Time
}

// Complete reports whether every expected part has been observed
func (g *TargetGroupProgress) Complete() bool {
	return g.ExpectedPartCount > 0 && len(g.ObservedParts) >= g.ExpectedPartCount
}

// DownloadBatch is the set of tasks observed since the last batch closure
type DownloadBatch struct {
	Tasks             []PendingDownloadTask
	LastRequestSeenAt time.Time
}

// TotalExpected sums the known expected sizes of the batch
func (b DownloadBatch) TotalExpected() int64 {
	var total int64
	for _, t := range b.Tasks {
		total += t.ExpectedSize
	}
	return total
}

// BackgroundDownloadState is the tracker's view of a download it does not control
type BackgroundDownloadState struct {
	TotalExpectedBytes      int64
	CumulativeObservedBytes int64 // Never decreases within one session
	LastProgressValue       int64
	LastProgressAt          time.Time
	PendingFinish           bool
	PendingFinishStartedAt  time.Time
	LibrarySizeAtTrigger    int64
	LastLibrarySize         int64
}

// FileProgress returns observed/expected clamped to [0, 1]
func (s BackgroundDownloadState) FileProgress() float64 {
	if s.TotalExpectedBytes <= 0 {
		return 0
	}
	p := float64(s.CumulativeObservedBytes) / float64(s.TotalExpectedBytes)
	if p > 1 {
		return 1
	}
	return p
}

// ReopenGuardState is owned by the interference monitor for one protected operation
type ReopenGuardState struct {
	SuppressWarningsUntil         time.Time
	PromptInFlight                bool
	AllowExternalRelaunchOverride bool
}

// ReopenChoice is the user's answer when the tracked app reappears mid-operation
type ReopenChoice int

const (
	ReopenCancel ReopenChoice = iota
	ReopenProceed
	ReopenKeepClosed
)

// ReopenChoiceLabels are presented to the user in ReopenChoice order
var ReopenChoiceLabels = []string{
	"Cancel the download",
	"Continue and let the app stay open",
	"Keep the app closed",
}
