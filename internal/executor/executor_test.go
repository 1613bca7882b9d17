package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buzzy/internal/usererr"
)

func TestRunCapturesOutputOnFailure(t *testing.T) {
	e := New(false, nil)
	err := e.Run(context.Background(), Cmd("sh", "-c", "echo broken; echo worse >&2; exit 3"))
	require.Error(t, err)

	ue, ok := usererr.As(err)
	require.True(t, ok)
	assert.Equal(t, "Error running sh -c echo broken; echo worse >&2; exit 3", ue.Msg)
	assert.Equal(t, "broken\nworse", ue.Detail)
	assert.Equal(t, 3, ExitCode(err))
}

func TestRunPassesEnvAndDir(t *testing.T) {
	dir := t.TempDir()
	e := New(false, nil)
	out, err := e.Output(context.Background(), &Command{
		Name: "sh",
		Args: []string{"-c", `printf '%s %s' "$BUZZY_TEST" "$(pwd)"`},
		Dir:  dir,
		Env:  []string{"BUZZY_TEST=yes"},
	})
	require.NoError(t, err)
	assert.Equal(t, "yes "+dir, out)
}

func TestRunKilledOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	e := New(false, nil)
	start := time.Now()
	err := e.Run(ctx, Cmd("sh", "-c", "sleep 10"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNiceWrapsCommands(t *testing.T) {
	e := New(false, nil)
	assert.Equal(t, []string{"make", "-j4"}, e.command(context.Background(), Cmd("make", "-j4")).Args)

	e.Nice = true
	assert.Equal(t, []string{"nice", "-n", "19", "make", "-j4"}, e.command(context.Background(), Cmd("make", "-j4")).Args)

	// nice without arguments prints the niceness it runs at.
	out, err := e.Output(context.Background(), Cmd("nice"))
	require.NoError(t, err)
	assert.Equal(t, "19\n", out)
}

func TestInteractiveStaysInForeground(t *testing.T) {
	e := New(false, nil)
	assert.NotNil(t, e.command(context.Background(), Cmd("true")).SysProcAttr)
	assert.Nil(t, e.command(context.Background(), &Command{Name: "true", Interactive: true}).SysProcAttr)
}

func TestRecorder(t *testing.T) {
	r := &Recorder{Respond: func(c *Command) (string, error) {
		if c.Name == "false" {
			return "", errors.New("exit status 1")
		}
		return "ok", nil
	}}
	out, err := r.Output(context.Background(), Cmd("pacman", "-T", "zlib"))
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Error(t, r.Run(context.Background(), Cmd("false")))
	assert.Equal(t, []string{"pacman -T zlib", "false"}, r.Lines())
}
