package utils

import (
	"fmt"
	"sync"
	"time"
)

// Console is a bounded, thread-safe buffer of user-facing log lines
type Console struct {
	mu    sync.Mutex
	lines []string
	max   int
	seq   int // Lines appended so far
	now   func() time.Time
}

// NewConsole keeps at most max lines
func NewConsole(max int) *Console {
	if max <= 0 {
		max = 200
	}
	return &Console{max: max, now: time.Now}
}

// Logf appends a formatted line and mirrors it to debug.log
func (c *Console) Logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	Debug("%s", msg)
	c.append(msg)
}

// Errorf appends an error line and mirrors it to debug.log at error level
func (c *Console) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	Error("%s", msg)
	c.append("error: " + msg)
}

func (c *Console) append(msg string) {
	line := fmt.Sprintf("[%s] %s", c.now().Format("15:04:05"), msg)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
	c.seq++
	if over := len(c.lines) - c.max; over > 0 {
		c.lines = append([]string(nil), c.lines[over:]...)
	}
}

// Lines returns a copy of the buffered lines, oldest first
func (c *Console) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// Latest returns the newest line, or "" if empty
func (c *Console) Latest() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) == 0 {
		return ""
	}
	return c.lines[len(c.lines)-1]
}

// Since returns the lines appended after sequence number after, and the
// current sequence number. Lines already evicted are skipped.
func (c *Console) Since(after int) ([]string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.seq - after
	if n <= 0 {
		return nil, c.seq
	}
	if n > len(c.lines) {
		n = len(c.lines)
	}
	return append([]string(nil), c.lines[len(c.lines)-n:]...), c.seq
}
