// Package prompt asks the user to make decisions on behalf of the engine.
package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/sideassist/sideassist/internal/engine/events"
)

// Dismissed is returned by Choose when the user gave no usable answer
const Dismissed = -1

// Prompter surfaces a decision to the user and blocks until it is answered.
// Implementations must be safe for concurrent use.
type Prompter interface {
	Confirm(ctx context.Context, title, message string) bool
	Choose(ctx context.Context, title, message string, options []string) int
}

// Terminal reads answers from a line-oriented reader (stdin)
type Terminal struct {
	In  io.Reader
	Out io.Writer

	mu    sync.Mutex
	once  sync.Once
	lines chan string // Closed once In is exhausted
}

// NewTerminal creates a prompter on the given streams
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{In: in, Out: out}
}

// readLoop is the only reader of In. A line read after its prompt was
// cancelled answers the next prompt.
func (t *Terminal) readLoop() {
	defer close(t.lines)
	reader := bufio.NewReader(t.In)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			t.lines <- strings.TrimSpace(line)
		}
		if err != nil {
			return
		}
	}
}

func (t *Terminal) readLine(ctx context.Context) (string, bool) {
	t.once.Do(func() {
		t.lines = make(chan string)
		go t.readLoop()
	})

	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-t.lines:
		return line, ok
	}
}

// Confirm asks a yes/no question. Anything but y/yes is a no.
func (t *Terminal) Confirm(ctx context.Context, title, message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.Out, "\n%s\n%s\n[y/N]: ", title, message)
	line, ok := t.readLine(ctx)
	if !ok {
		return false
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true
	}
	return false
}

// Choose lists options numbered from 1 and returns the chosen index
func (t *Terminal) Choose(ctx context.Context, title, message string, options []string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.Out, "\n%s\n%s\n", title, message)
	for i, opt := range options {
		fmt.Fprintf(t.Out, "  %d) %s\n", i+1, opt)
	}
	fmt.Fprint(t.Out, "Choice: ")

	line, ok := t.readLine(ctx)
	if !ok {
		return Dismissed
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(options) {
		return Dismissed
	}
	return n - 1
}

// Channel forwards prompts to a UI goroutine as events.PromptMsg
type Channel struct {
	Events chan<- any

	mu sync.Mutex
}

// NewChannel creates a prompter that publishes on ch
func NewChannel(ch chan<- any) *Channel {
	return &Channel{Events: ch}
}

func (c *Channel) ask(ctx context.Context, title, message string, options []string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply := make(chan int, 1)
	msg := events.PromptMsg{Title: title, Message: message, Options: options, Reply: reply}
	select {
	case c.Events <- msg:
	case <-ctx.Done():
		return Dismissed
	}

	select {
	case n := <-reply:
		if n < 0 || n >= len(options) {
			return Dismissed
		}
		return n
	case <-ctx.Done():
		return Dismissed
	}
}

// Confirm presents Yes/No options
func (c *Channel) Confirm(ctx context.Context, title, message string) bool {
	return c.ask(ctx, title, message, []string{"Yes", "No"}) == 0
}

// Choose presents the given options
func (c *Channel) Choose(ctx context.Context, title, message string, options []string) int {
	return c.ask(ctx, title, message, options)
}

// Fixed answers every prompt the same way (--yes, non-interactive runs)
type Fixed struct {
	Answer bool
	Choice int
}

func (f Fixed) Confirm(ctx context.Context, title, message string) bool { return f.Answer }

func (f Fixed) Choose(ctx context.Context, title, message string, options []string) int {
	if f.Choice < 0 || f.Choice >= len(options) {
		return Dismissed
	}
	return f.Choice
}
