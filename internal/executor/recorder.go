package executor

import (
	"context"
	"sync"
)

// Recorder is a Runner that records commands instead of running them.
// Respond, when set, decides the output and error of each command.
type Recorder struct {
	mu       sync.Mutex
	Commands []*Command
	Respond  func(c *Command) (string, error)
}

func (r *Recorder) Run(ctx context.Context, c *Command) error {
	_, err := r.Output(ctx, c)
	return err
}

func (r *Recorder) Output(ctx context.Context, c *Command) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	r.Commands = append(r.Commands, c)
	r.mu.Unlock()
	if r.Respond == nil {
		return "", nil
	}
	return r.Respond(c)
}

// Lines returns the recorded commands as strings.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Commands))
	for i, c := range r.Commands {
		out[i] = c.String()
	}
	return out
}

var (
	_ Runner = (*Executor)(nil)
	_ Runner = (*Recorder)(nil)
)
