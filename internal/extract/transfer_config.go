package extract

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/sideassist/sideassist/internal/utils"
)

// ErrBadRecord is returned for a DirectFile record that cannot be parsed
var ErrBadRecord = errors.New("malformed DirectFile record")

var directFileRe = regexp.MustCompile(`(?i)DirectFile\s*=\s*"([^"]*)"`)

// DirectFile maps a URL path to the file the app installs from it
type DirectFile struct {
	URLPath   string
	Filename  string
	PartCount int // 0 when the record has no part count
	Size      int64
}

// TransferConfig is the parsed transfer-configuration document
type TransferConfig struct {
	Records []DirectFile
}

// ParseDirectFile parses "path,filename[,partcount],size"
func ParseDirectFile(value string) (DirectFile, error) {
	fields := strings.Split(value, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) != 3 && len(fields) != 4 {
		return DirectFile{}, fmt.Errorf("%w: %q", ErrBadRecord, value)
	}

	rec := DirectFile{
		URLPath:  strings.Trim(fields[0], "/"),
		Filename: fields[1],
	}
	if rec.URLPath == "" || rec.Filename == "" {
		return DirectFile{}, fmt.Errorf("%w: %q", ErrBadRecord, value)
	}
	if strings.ContainsAny(rec.Filename, `/\`) || rec.Filename == ".." {
		return DirectFile{}, fmt.Errorf("%w: filename %q", ErrBadRecord, rec.Filename)
	}

	size, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil || size < 0 {
		return DirectFile{}, fmt.Errorf("%w: size in %q", ErrBadRecord, value)
	}
	rec.Size = size

	if len(fields) == 4 {
		parts, err := strconv.Atoi(fields[2])
		if err != nil || parts < 0 {
			return DirectFile{}, fmt.Errorf("%w: part count in %q", ErrBadRecord, value)
		}
		rec.PartCount = parts
	}
	return rec, nil
}

// ParseTransferConfig collects every DirectFile record in r.
// Malformed records are logged and skipped.
func ParseTransferConfig(r io.Reader) (*TransferConfig, error) {
	cfg := &TransferConfig{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		for _, m := range directFileRe.FindAllStringSubmatch(scanner.Text(), -1) {
			rec, err := ParseDirectFile(m[1])
			if err != nil {
				utils.Debug("transfer config: skipping record: %v", err)
				continue
			}
			cfg.Records = append(cfg.Records, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTransferConfig reads and parses the document at path
func LoadTransferConfig(path string) (*TransferConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ParseTransferConfig(f)
}

// Lookup finds the record for urlPath. A record matches when its path equals
// urlPath or is a "/"-bounded suffix of it; the longest match wins.
func (c *TransferConfig) Lookup(urlPath string) (DirectFile, bool) {
	if c == nil {
		return DirectFile{}, false
	}
	var best DirectFile
	found := false
	for _, rec := range c.Records {
		if !utils.HasPathSuffix(urlPath, rec.URLPath) {
			continue
		}
		if !found || len(rec.URLPath) > len(best.URLPath) {
			best, found = rec, true
		}
	}
	return best, found
}
