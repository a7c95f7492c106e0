// Package fetch downloads distributable game packages.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cavaliercoder/grab"
	"github.com/h2non/filetype"

	"github.com/sideassist/sideassist/internal/engine/transfer"
	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/utils"
)

// ErrNotArchive is returned when the downloaded file is not a recognised archive
var ErrNotArchive = errors.New("downloaded file is not an archive")

// headerSize is how much of the file filetype needs to match every kind
const headerSize = 262

// Options configures a package fetch
type Options struct {
	Dir      string // Destination directory; the file name comes from the server
	Network  *types.NetworkConfig
	Interval time.Duration // Progress poll interval, default 500ms
	AnyType  bool          // Skip archive validation
	Console  *utils.Console
}

// Result describes a completed fetch
type Result struct {
	Path      string
	Size      int64
	Extension string
	MIME      string
	Duration  time.Duration
	Resumed   bool
}

// Progress is reported while the package downloads
type Progress struct {
	Done        int64
	Total       int64 // 0 when unknown
	BytesPerSec float64
}

// Package downloads url into opts.Dir and checks it is an archive.
// A partial file from an earlier attempt is resumed when the server allows it.
func Package(ctx context.Context, url string, opts Options, progress func(Progress)) (Result, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return Result{}, err
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	client := grab.NewClient()
	client.HTTPClient = transfer.NewHTTPClient(opts.Network)
	client.UserAgent = opts.Network.GetUserAgent()

	req, err := grab.NewRequest(opts.Dir, url)
	if err != nil {
		return Result{}, err
	}
	req = req.WithContext(ctx)

	utils.Debug("Fetch: %s -> %s", url, opts.Dir)
	resp := client.Do(req)

	t := time.NewTicker(interval)
	defer t.Stop()
loop:
	for {
		select {
		case <-t.C:
			if progress != nil {
				progress(Progress{Done: resp.BytesComplete(), Total: resp.Size, BytesPerSec: resp.BytesPerSecond()})
			}
		case <-resp.Done:
			break loop
		}
	}

	if err := resp.Err(); err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	if progress != nil {
		progress(Progress{Done: resp.BytesComplete(), Total: resp.Size})
	}

	res := Result{
		Path:     resp.Filename,
		Size:     resp.BytesComplete(),
		Duration: resp.Duration(),
		Resumed:  resp.DidResume,
	}
	if err := identify(&res); err != nil {
		return res, err
	}
	if !opts.AnyType && res.Extension == "" {
		if rmErr := os.Remove(res.Path); rmErr != nil {
			utils.Debug("Fetch: remove %s: %v", res.Path, rmErr)
		}
		return res, fmt.Errorf("%s: %w", res.Path, ErrNotArchive)
	}
	if opts.Console != nil {
		opts.Console.Logf("Fetched %s (%s)", res.Path, utils.ConvertBytesToHumanReadable(res.Size))
	}
	return res, nil
}

// identify fills Extension and MIME for archives. Other kinds leave them empty.
func identify(res *Result) error {
	f, err := os.Open(res.Path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, headerSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	head = head[:n]

	if !filetype.IsArchive(head) {
		return nil
	}
	kind, err := filetype.Match(head)
	if err != nil {
		return err
	}
	res.Extension = kind.Extension
	res.MIME = kind.MIME.Value
	return nil
}
