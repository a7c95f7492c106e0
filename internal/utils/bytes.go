package utils

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// ConvertBytesToHumanReadable formats a byte count, e.g. 1.5 MB
func ConvertBytesToHumanReadable(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return humanize.Bytes(uint64(n))
}

// FormatProgress renders "done / total (pct%)"
func FormatProgress(done, total int64) string {
	if total <= 0 {
		return ConvertBytesToHumanReadable(done)
	}
	pct := float64(done) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	return fmt.Sprintf("%s / %s (%.1f%%)", ConvertBytesToHumanReadable(done), ConvertBytesToHumanReadable(total), pct)
}
