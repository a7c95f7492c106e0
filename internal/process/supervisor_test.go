package process

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sideassist/sideassist/internal/utils"
)

type fakeProc struct {
	pid     int32
	exe     string
	name    string
	killErr error
	table   *fakeTable
}

func (p *fakeProc) PID() int32                               { return p.pid }
func (p *fakeProc) Exe(ctx context.Context) (string, error)  { return p.exe, nil }
func (p *fakeProc) Name(ctx context.Context) (string, error) { return p.name, nil }
func (p *fakeProc) Kill(ctx context.Context) error {
	if p.killErr != nil {
		return p.killErr
	}
	p.table.remove(p.pid)
	return nil
}

type fakeTable struct {
	mu    sync.Mutex
	procs []*fakeProc
}

func (t *fakeTable) add(p *fakeProc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p.table = t
	t.procs = append(t.procs, p)
}

func (t *fakeTable) remove(pid int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, p := range t.procs {
		if p.pid == pid {
			t.procs = append(t.procs[:i], t.procs[i+1:]...)
			return
		}
	}
}

func (t *fakeTable) List(ctx context.Context) ([]Proc, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Proc, 0, len(t.procs))
	for _, p := range t.procs {
		out = append(out, p)
	}
	return out, nil
}

const appPath = "/Users/me/Library/Containers/io.playcover.PlayCover/Applications/com.example.game.app"

func newTestSupervisor(table *fakeTable, run Runner) *Local {
	l := NewLocal("com.example.game", appPath, []string{"/Applications/Legacy Game.app/Wrapper/Game"})
	l.Lister = table
	l.Run = run
	l.Poll = time.Millisecond
	return l
}

func TestMatcher(t *testing.T) {
	m := Matcher{
		AppPath:           appPath,
		ExecutableName:    "com.example.game",
		LegacyExecutables: []string{"/legacy/Game"},
	}

	tests := []struct {
		name string
		exe  string
		proc string
		want bool
	}{
		{"inside bundle", appPath + "/Client", "Client", true},
		{"bundle prefix sibling", appPath + "x/Client", "Client", false},
		{"legacy path", "/legacy/Game", "Game", true},
		{"name only", "", "com.example.game", true},
		{"unrelated", "/bin/zsh", "zsh", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Matches(tt.exe, tt.proc))
		})
	}
}

func TestLocal_IsRunningAndTerminate(t *testing.T) {
	table := &fakeTable{}
	table.add(&fakeProc{pid: 1, exe: "/bin/zsh", name: "zsh"})
	table.add(&fakeProc{pid: 2, exe: appPath + "/Client", name: "Client"})
	table.add(&fakeProc{pid: 3, exe: "/Applications/Legacy Game.app/Wrapper/Game", name: "Game"})

	sup := newTestSupervisor(table, nil)
	ctx := context.Background()

	require.True(t, sup.IsRunning(ctx))
	sup.TerminateAll(ctx)
	assert.False(t, sup.IsRunning(ctx))

	procs, _ := table.List(ctx)
	assert.Len(t, procs, 1, "unrelated process must survive")
}

func TestLocal_TerminatePartialFailureDoesNotPanic(t *testing.T) {
	table := &fakeTable{}
	table.add(&fakeProc{pid: 2, exe: appPath + "/Client", name: "Client", killErr: errors.New("not permitted")})

	sup := newTestSupervisor(table, nil)
	sup.TerminateAll(context.Background())
	assert.True(t, sup.IsRunning(context.Background()))
}

func TestLocal_WaitUntilStopped(t *testing.T) {
	table := &fakeTable{}
	table.add(&fakeProc{pid: 2, exe: appPath + "/Client", name: "Client"})
	sup := newTestSupervisor(table, nil)

	assert.False(t, sup.WaitUntilStopped(context.Background(), 20*time.Millisecond))

	go func() {
		time.Sleep(10 * time.Millisecond)
		table.remove(2)
	}()
	assert.True(t, sup.WaitUntilStopped(context.Background(), time.Second))
}

func TestLocal_Launch(t *testing.T) {
	var gotName string
	var gotArgs []string
	run := func(ctx context.Context, name string, args ...string) error {
		gotName, gotArgs = name, args
		return nil
	}
	sup := newTestSupervisor(&fakeTable{}, run)

	require.NoError(t, sup.Launch(context.Background(), true))
	assert.Equal(t, "open", gotName)
	assert.Equal(t, []string{"-g", "-b", "com.example.game"}, gotArgs)

	require.NoError(t, sup.Launch(context.Background(), false))
	assert.Equal(t, []string{"-b", "com.example.game"}, gotArgs)
}

func TestLocal_LaunchError(t *testing.T) {
	run := func(ctx context.Context, name string, args ...string) error {
		return errors.New("exit status 1")
	}
	sup := newTestSupervisor(&fakeTable{}, run)

	err := sup.Launch(context.Background(), false)
	var le *LaunchError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "com.example.game", le.Target)
}

func TestLocal_ClockIsReal(t *testing.T) {
	sup := NewLocal("b", "/x.app", nil)
	_, ok := sup.Clock.(utils.RealClock)
	assert.True(t, ok)
	assert.Equal(t, "x", sup.Matcher.ExecutableName)
}
