// Package extract turns the tracked application's download requests, as
// written to its log, into batches of files to fetch.
package extract

import (
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/utils"
)

// requestRe matches one request record:
//
//	... DownloadRequest target=<group> [part=<cur>/<total>] size=<bytes> url=<url> kind=<chunk|direct>
var requestRe = regexp.MustCompile(`(?i)\bDownloadRequest\b.*?\btarget=(\S+)(?:\s+part=(\d+)/(\d+))?\s+size=(\d+)\s+url=(\S+)\s+kind=(chunk|direct)\b`)

// Request is one parsed log record
type Request struct {
	TargetGroupID string
	Part          int // 0 for direct transfers
	PartTotal     int
	Size          int64
	URL           string
	Kind          types.TaskKind
}

// ParseLine parses a single log line. ok is false for non-request lines.
func ParseLine(line string) (req Request, ok bool) {
	m := requestRe.FindStringSubmatch(line)
	if m == nil {
		return Request{}, false
	}

	req.TargetGroupID = m[1]
	if m[2] != "" {
		req.Part, _ = strconv.Atoi(m[2])
		req.PartTotal, _ = strconv.Atoi(m[3])
	}
	size, err := strconv.ParseInt(m[4], 10, 64)
	if err != nil {
		return Request{}, false
	}
	req.Size = size
	req.URL = m[5]
	if strings.EqualFold(m[6], "direct") {
		req.Kind = types.KindDirectInstall
	} else {
		req.Kind = types.KindChunkDB
	}
	return req, true
}

// Options configures an Extractor
type Options struct {
	DownloadRoot   string          // Absolute directory tasks are written under
	ConfigPath     string          // Transfer-config document, reloaded when a lookup misses
	TransferConfig *TransferConfig // Preloaded document; optional
	Timings        *types.Timings
	Console        *utils.Console
}

// Extractor accumulates requests into the open batch.
// It is safe for concurrent use, but callers normally drive it from one loop.
type Extractor struct {
	opts Options

	mu         sync.Mutex
	batch      types.DownloadBatch
	keys       map[string]struct{}
	groups     map[string]*types.TargetGroupProgress
	everOpened bool
	config     *TransferConfig
}

// New creates an extractor with an empty batch
func New(opts Options) *Extractor {
	return &Extractor{
		opts:   opts,
		keys:   make(map[string]struct{}),
		groups: make(map[string]*types.TargetGroupProgress),
		config: opts.TransferConfig,
	}
}

func (e *Extractor) logf(format string, args ...any) {
	if e.opts.Console != nil {
		e.opts.Console.Logf(format, args...)
		return
	}
	utils.Debug(format, args...)
}

// Ingest parses lines in order and returns the tasks newly added to the batch.
// now is the time the lines were observed.
func (e *Extractor) Ingest(lines []string, now time.Time) []types.PendingDownloadTask {
	e.mu.Lock()
	defer e.mu.Unlock()

	var added []types.PendingDownloadTask
	reloaded := false
	for _, line := range lines {
		req, ok := ParseLine(line)
		if !ok {
			continue
		}
		e.batch.LastRequestSeenAt = now

		if req.Kind == types.KindChunkDB && req.PartTotal > 0 {
			g := e.groups[req.TargetGroupID]
			if g == nil {
				g = &types.TargetGroupProgress{ObservedParts: make(map[int]struct{})}
				e.groups[req.TargetGroupID] = g
			}
			g.ExpectedPartCount = req.PartTotal
			g.ObservedParts[req.Part] = struct{}{}
			g.LastSeenAt = now
		}

		task, ok := e.resolve(req, &reloaded)
		if !ok {
			continue
		}
		if _, dup := e.keys[task.Key()]; dup {
			continue
		}
		e.keys[task.Key()] = struct{}{}
		e.batch.Tasks = append(e.batch.Tasks, task)
		e.everOpened = true
		added = append(added, task)
	}
	return added
}

// resolve maps a request to a task. reloaded tracks whether the transfer
// config was already re-read during this Ingest call.
func (e *Extractor) resolve(req Request, reloaded *bool) (types.PendingDownloadTask, bool) {
	urlPath, err := utils.URLRelativePath(req.URL)
	if err != nil {
		e.logf("Skipping request for %s: %v", req.URL, err)
		return types.PendingDownloadTask{}, false
	}

	task := types.PendingDownloadTask{
		SourceURL:     req.URL,
		ExpectedSize:  req.Size,
		Kind:          req.Kind,
		TargetGroupID: req.TargetGroupID,
	}

	switch req.Kind {
	case types.KindDirectInstall:
		rec, ok := e.config.Lookup(urlPath)
		if !ok && !*reloaded && e.opts.ConfigPath != "" {
			*reloaded = true
			cfg, err := LoadTransferConfig(e.opts.ConfigPath)
			if err != nil {
				utils.Debug("extract: load transfer config: %v", err)
			} else {
				e.config = cfg
				rec, ok = e.config.Lookup(urlPath)
			}
		}
		if !ok {
			e.logf("No transfer config entry for %s, skipping", urlPath)
			return types.PendingDownloadTask{}, false
		}
		task.RelativePath = path.Join(path.Dir(urlPath), rec.Filename)
		task.ExpectedSize = rec.Size
	default:
		task.RelativePath = urlPath
	}

	task.FullPath = filepath.Join(e.opts.DownloadRoot, filepath.FromSlash(task.RelativePath))
	return task, true
}

// IsBatchReadyToClose reports whether the open batch should be handed off.
// It requires a non-empty batch, BundleDetectionWait without a new request,
// and every chunk group either complete or idle for IncompleteChunkWait.
func (e *Extractor) IsBatchReadyToClose(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.batch.Tasks) == 0 {
		return false
	}
	if now.Sub(e.batch.LastRequestSeenAt) < e.opts.Timings.GetBundleDetectionWait() {
		return false
	}
	grace := e.opts.Timings.GetIncompleteChunkWait()
	for id, g := range e.groups {
		if g.Complete() {
			continue
		}
		if now.Sub(g.LastSeenAt) < grace {
			return false
		}
		utils.Debug("extract: forcing close with group %s at %d/%d parts", id, len(g.ObservedParts), g.ExpectedPartCount)
	}
	return true
}

// DrainBatch returns the open batch and starts a new one
func (e *Extractor) DrainBatch() types.DownloadBatch {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.batch
	e.batch = types.DownloadBatch{}
	e.keys = make(map[string]struct{})
	e.groups = make(map[string]*types.TargetGroupProgress)
	return b
}

// Pending returns the number of tasks in the open batch
func (e *Extractor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.batch.Tasks)
}

// NothingToUpdate reports whether no request has been seen at all for
// NoTaskGiveUp since start, meaning there is nothing to download.
func (e *Extractor) NothingToUpdate(now, start time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.everOpened && now.Sub(start) >= e.opts.Timings.GetNoTaskGiveUp()
}
