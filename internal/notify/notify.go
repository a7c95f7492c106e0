// Package notify posts user notifications when a session finishes.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sideassist/sideassist/internal/utils"
)

// Sink posts a notification. Posting is fire-and-forget.
type Sink interface {
	Post(title, body string)
}

// Runner executes a command; replaced in tests
type Runner func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Desktop posts through the macOS notification center via osascript
type Desktop struct {
	Run     Runner
	Timeout time.Duration
}

// NewDesktop creates a desktop sink
func NewDesktop() *Desktop {
	return &Desktop{Run: runCommand, Timeout: 5 * time.Second}
}

func (d *Desktop) Post(title, body string) {
	script := fmt.Sprintf("display notification %s with title %s", quote(body), quote(title))
	ctx, cancel := context.WithTimeout(context.Background(), d.Timeout)
	defer cancel()
	if err := d.Run(ctx, "osascript", "-e", script); err != nil {
		utils.Warn("Notify: osascript failed: %v", err)
	}
}

// quote renders s as an AppleScript string literal
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// Console writes notifications to the console buffer
type Console struct {
	Console *utils.Console
}

func (c Console) Post(title, body string) {
	c.Console.Logf("%s: %s", title, body)
}

// Multi posts to every sink
type Multi []Sink

func (m Multi) Post(title, body string) {
	for _, s := range m {
		s.Post(title, body)
	}
}

// Discard drops every notification (notifications disabled)
type Discard struct{}

func (Discard) Post(title, body string) {}

// Recorder keeps posted notifications in memory
type Recorder struct {
	mu    sync.Mutex
	posts []string
}

func (r *Recorder) Post(title, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, title+": "+body)
}

// Posts returns "title: body" for every notification so far
func (r *Recorder) Posts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.posts...)
}

// New builds the sink used by the CLI
func New(enabled bool, console *utils.Console) Sink {
	if !enabled {
		return Discard{}
	}
	sinks := Multi{NewDesktop()}
	if console != nil {
		sinks = append(sinks, Console{Console: console})
	}
	return sinks
}
