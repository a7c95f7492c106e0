package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sideassist/sideassist/internal/utils"
)

func TestDesktop_Post(t *testing.T) {
	var gotName string
	var gotArgs []string
	d := NewDesktop()
	d.Run = func(ctx context.Context, name string, args ...string) error {
		gotName, gotArgs = name, args
		return nil
	}

	d.Post(`Done "now"`, `C:\path`)
	assert.Equal(t, "osascript", gotName)
	if assert.Len(t, gotArgs, 2) {
		assert.Equal(t, "-e", gotArgs[0])
		assert.Equal(t, `display notification "C:\\path" with title "Done \"now\""`, gotArgs[1])
	}

	// Failures are only logged
	d.Run = func(ctx context.Context, name string, args ...string) error { return errors.New("no osascript") }
	d.Post("a", "b")
}

func TestMultiAndConsole(t *testing.T) {
	console := utils.NewConsole(10)
	rec := &Recorder{}
	sink := Multi{rec, Console{Console: console}}

	sink.Post("Update complete", "3 files")
	assert.Equal(t, []string{"Update complete: 3 files"}, rec.Posts())
	assert.True(t, strings.HasSuffix(console.Latest(), "Update complete: 3 files"))
}

func TestNew(t *testing.T) {
	assert.IsType(t, Discard{}, New(false, nil))
	m, ok := New(true, utils.NewConsole(1)).(Multi)
	if assert.True(t, ok) {
		assert.Len(t, m, 2)
	}
}
