// Package executor runs external tools (pacman, makepkg, bash) on behalf of
// the backends.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"buzzy/internal/logging"
	"buzzy/internal/usererr"
)

// Runner runs a command. Backends take a Runner so tests can record the
// commands instead of running them.
type Runner interface {
	Run(ctx context.Context, c *Command) error
	Output(ctx context.Context, c *Command) (string, error)
}

// Command describes one external invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env is added to the inherited environment.
	Env []string
	// Root runs the command through sudo unless already root.
	Root bool
	// Interactive attaches the terminal and keeps the command in the
	// foreground process group.
	Interactive bool
}

// Cmd is a shorthand for a plain command.
func Cmd(name string, args ...string) *Command {
	return &Command{Name: name, Args: args}
}

func (c *Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Executor runs commands on the host.
type Executor struct {
	// Verbose streams output instead of capturing it.
	Verbose bool
	// Nice runs commands with nice -n 19.
	Nice bool
	Log  *zap.Logger
}

// New returns an executor; verbose streams command output to the terminal.
func New(verbose bool, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{Verbose: verbose, Log: log}
}

func interactive(ctx context.Context, name string, arg ...string) error {
	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// ensureSudo refreshes the sudo ticket, prompting on the terminal only when
// the non-interactive check fails.
func (e *Executor) ensureSudo(ctx context.Context, c *Command) error {
	if os.Geteuid() == 0 || !c.Root {
		return nil
	}
	check := exec.CommandContext(ctx, "sudo", "-nv")
	check.Stdout = io.Discard
	check.Stderr = io.Discard
	if err := check.Run(); err == nil {
		return nil
	}

	logging.Step("Sudo ticket has expired. Re-authenticating")
	if err := interactive(ctx, "sudo", "-v"); err != nil {
		return fmt.Errorf("sudo re-authentication failed: %w", err)
	}
	return nil
}

func (e *Executor) command(ctx context.Context, c *Command) *exec.Cmd {
	path, args := c.Name, c.Args
	if e.Nice {
		args = append([]string{"-n", "19", path}, args...)
		path = "nice"
	}
	if c.Root && os.Geteuid() != 0 {
		args = append([]string{"-E", path}, args...)
		path = "sudo"
	}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	if !c.Interactive {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
	return cmd
}

// start runs cmd, killing its whole process group when ctx is canceled.
func start(ctx context.Context, cmd *exec.Cmd, interactive bool) error {
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}
	if !interactive {
		pgid := cmd.Process.Pid
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				_ = syscall.Kill(-pgid, syscall.SIGKILL)
			case <-done:
			}
		}()
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			time.Sleep(100 * time.Millisecond)
			return fmt.Errorf("command aborted: %w", ctx.Err())
		}
		return err
	}
	return nil
}

// Run executes c. Unless the executor is verbose or the command is
// interactive, its output is captured and attached to the error as detail.
func (e *Executor) Run(ctx context.Context, c *Command) error {
	if err := e.ensureSudo(ctx, c); err != nil {
		return err
	}
	e.Log.Debug("running command", zap.Stringer("command", c), zap.String("dir", c.Dir))

	cmd := e.command(ctx, c)
	var captured bytes.Buffer
	if e.Verbose || c.Interactive {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		cmd.Stdout = &captured
		cmd.Stderr = &captured
	}

	err := start(ctx, cmd, c.Interactive)
	if err == nil {
		return nil
	}
	return commandError(ctx, c, err, captured.String())
}

// Output executes c and returns its standard output.
func (e *Executor) Output(ctx context.Context, c *Command) (string, error) {
	if err := e.ensureSudo(ctx, c); err != nil {
		return "", err
	}
	e.Log.Debug("running command", zap.Stringer("command", c), zap.String("dir", c.Dir))

	cmd := e.command(ctx, c)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := start(ctx, cmd, false); err != nil {
		return stdout.String(), commandError(ctx, c, err, stderr.String())
	}
	return stdout.String(), nil
}

func commandError(ctx context.Context, c *Command, err error, output string) error {
	if ctx.Err() != nil {
		return err
	}
	ue := usererr.WithDetail("Error running "+c.String(), strings.TrimRight(output, "\n"))
	ue.Err = err
	return ue
}

// ExitCode returns the exit status carried by err, or -1.
func ExitCode(err error) int {
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		return exit.ExitCode()
	}
	return -1
}
