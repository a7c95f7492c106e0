package testutil

import (
	"context"
	"sync"
	"time"
)

// FakeSupervisor is an in-memory process supervisor.
// OnLaunch, if set, runs after each launch is recorded and may flip Running.
type FakeSupervisor struct {
	mu          sync.Mutex
	running     bool
	launches    []bool // silent flag per launch
	terminates  int
	LaunchErr   error
	StayRunning bool // TerminateAll has no effect
	OnLaunch    func(silent bool)
}

// NewFakeSupervisor creates a supervisor reporting the given running state.
func NewFakeSupervisor(running bool) *FakeSupervisor {
	return &FakeSupervisor{running: running}
}

func (f *FakeSupervisor) IsRunning(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// SetRunning simulates the app starting or exiting on its own.
func (f *FakeSupervisor) SetRunning(v bool) {
	f.mu.Lock()
	f.running = v
	f.mu.Unlock()
}

func (f *FakeSupervisor) Launch(ctx context.Context, silent bool) error {
	f.mu.Lock()
	if f.LaunchErr != nil {
		f.mu.Unlock()
		return f.LaunchErr
	}
	f.launches = append(f.launches, silent)
	f.running = true
	hook := f.OnLaunch
	f.mu.Unlock()

	if hook != nil {
		hook(silent)
	}
	return nil
}

func (f *FakeSupervisor) TerminateAll(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminates++
	if !f.StayRunning {
		f.running = false
	}
}

func (f *FakeSupervisor) WaitUntilStopped(ctx context.Context, timeout time.Duration) bool {
	return !f.IsRunning(ctx)
}

// Launches returns the silent flag of every launch so far.
func (f *FakeSupervisor) Launches() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.launches...)
}

// Terminations returns how many times TerminateAll was called.
func (f *FakeSupervisor) Terminations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminates
}

// FakeClock is a clock whose After fires immediately and advances Now by
// the requested duration, so poll loops run without real waiting.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock starts at a fixed instant.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ScriptedPrompter answers prompts from queued answers and records what was asked.
// When a queue is empty Confirm returns false and Choose returns -1.
type ScriptedPrompter struct {
	mu       sync.Mutex
	confirms []bool
	choices  []int
	asked    []string
	OnAsk    func(title string)
}

// NewScriptedPrompter queues the given choices for Choose.
func NewScriptedPrompter(choices ...int) *ScriptedPrompter {
	return &ScriptedPrompter{choices: choices}
}

// QueueConfirm appends answers for Confirm.
func (p *ScriptedPrompter) QueueConfirm(answers ...bool) *ScriptedPrompter {
	p.mu.Lock()
	p.confirms = append(p.confirms, answers...)
	p.mu.Unlock()
	return p
}

func (p *ScriptedPrompter) record(title string) {
	p.mu.Lock()
	p.asked = append(p.asked, title)
	hook := p.OnAsk
	p.mu.Unlock()
	if hook != nil {
		hook(title)
	}
}

func (p *ScriptedPrompter) Confirm(ctx context.Context, title, message string) bool {
	p.record(title)
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.confirms) == 0 {
		return false
	}
	v := p.confirms[0]
	p.confirms = p.confirms[1:]
	return v
}

func (p *ScriptedPrompter) Choose(ctx context.Context, title, message string, options []string) int {
	p.record(title)
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.choices) == 0 {
		return -1
	}
	v := p.choices[0]
	p.choices = p.choices[1:]
	return v
}

// Asked returns the titles of every prompt shown so far.
func (p *ScriptedPrompter) Asked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.asked...)
}
