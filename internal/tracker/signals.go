package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Signal is one reading of the progress-signal document
type Signal struct {
	Downloaded  int64  // Sum of every DownloadedSize field
	Total       int64  // Sum of every DownloadSize field
	Fingerprint string // Changes whenever the file content or mtime changes; "" if absent
}

// SignalReader reads the tracked app's progress counters
type SignalReader interface {
	Read() (Signal, error)
}

// CacheSizer measures the aggregate size of the download cache
type CacheSizer interface {
	Size() (int64, error)
}

// JSONSignal reads a JSON document with DownloadSize/DownloadedSize
// fields at any depth
type JSONSignal struct {
	Path string
}

// Read sums the counters. A missing file is an empty signal, not an error.
func (j JSONSignal) Read() (Signal, error) {
	info, err := os.Stat(j.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Signal{}, nil
	}
	if err != nil {
		return Signal{}, err
	}
	data, err := os.ReadFile(j.Path)
	if err != nil {
		return Signal{}, err
	}

	h := fnv.New64a()
	_, _ = h.Write(data)
	sig := Signal{Fingerprint: fmt.Sprintf("%d-%d-%x", info.ModTime().UnixNano(), len(data), h.Sum64())}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return sig, fmt.Errorf("parse %s: %w", filepath.Base(j.Path), err)
	}
	sig.Downloaded = SumKey(doc, "DownloadedSize")
	sig.Total = SumKey(doc, "DownloadSize")
	return sig, nil
}

// SumKey adds up every numeric value stored under key (case-insensitive)
// anywhere in a decoded JSON document
func SumKey(doc any, key string) int64 {
	var sum int64
	switch v := doc.(type) {
	case map[string]any:
		for k, child := range v {
			if strings.EqualFold(k, key) {
				if n, ok := child.(float64); ok {
					sum += int64(n)
					continue
				}
			}
			sum += SumKey(child, key)
		}
	case []any:
		for _, child := range v {
			sum += SumKey(child, key)
		}
	}
	return sum
}

// DirSize sums regular file sizes below Path
type DirSize struct {
	Path string
}

// Size walks the directory. A missing directory has size 0.
func (d DirSize) Size() (int64, error) {
	var total int64
	err := filepath.WalkDir(d.Path, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			// Files vanish while the app installs them
			return nil
		}
		total += info.Size()
		return nil
	})
	return total, err
}
