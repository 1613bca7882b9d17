package env

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"golang.org/x/term"

	"buzzy/internal/usererr"
)

// Asker supplies values for newly introduced environment fields. Ask returns
// the answer after q.Check has accepted it.
type Asker interface {
	Ask(q Question) (string, error)
}

func check(q Question, answer string) (string, error) {
	if q.Check == nil {
		return answer, nil
	}
	return q.Check(answer)
}

// TerminalAsker prompts on a terminal. When In is not a terminal it falls
// back to printing "prompt [default]: " and reading a line.
type TerminalAsker struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

// NewTerminalAsker returns an asker bound to the process stdio.
func NewTerminalAsker() *TerminalAsker {
	return &TerminalAsker{In: os.Stdin, Out: os.Stdout}
}

func (a *TerminalAsker) interactive() bool {
	f, ok := a.In.(*os.File)
	return ok && f == os.Stdin && term.IsTerminal(int(f.Fd()))
}

func (a *TerminalAsker) Ask(q Question) (string, error) {
	if a.interactive() {
		return a.survey(q)
	}
	return a.line(q)
}

func (a *TerminalAsker) survey(q Question) (string, error) {
	prompt := &survey.Input{Message: q.Prompt}
	if q.HasDefault {
		prompt.Default = q.Default
	}
	validate := func(ans any) error {
		s, _ := ans.(string)
		if s == "" && !q.HasDefault {
			return errors.New("a value is required")
		}
		_, err := check(q, s)
		return err
	}
	var answer string
	if err := survey.AskOne(prompt, &answer, survey.WithValidator(validate)); err != nil {
		return "", fmt.Errorf("asking for %s: %w", q.Key, err)
	}
	return check(q, answer)
}

func (a *TerminalAsker) line(q Question) (string, error) {
	if a.reader == nil {
		a.reader = bufio.NewReader(a.In)
	}
	for {
		if q.HasDefault {
			fmt.Fprintf(a.Out, "%s [%s]: ", q.Prompt, q.Default)
		} else {
			fmt.Fprintf(a.Out, "%s: ", q.Prompt)
		}
		response, err := a.reader.ReadString('\n')
		if err != nil && (err != io.EOF || response == "") {
			if err == io.EOF {
				return "", usererr.Errorf("no value given for %s", q.Key)
			}
			return "", fmt.Errorf("reading %s: %w", q.Key, err)
		}
		response = strings.TrimSpace(response)
		if response == "" {
			if !q.HasDefault {
				continue
			}
			response = q.Default
		}
		answer, cerr := check(q, response)
		if cerr != nil {
			fmt.Fprintf(a.Out, "Invalid input: %v\n", cerr)
			if err == io.EOF {
				return "", cerr
			}
			continue
		}
		return answer, nil
	}
}

// ScriptedAsker answers from a fixed map and records every key it was asked.
// Unknown keys take the question's default.
type ScriptedAsker struct {
	Answers map[string]string
	Asked   []string
}

func (a *ScriptedAsker) Ask(q Question) (string, error) {
	a.Asked = append(a.Asked, q.Key)
	answer, ok := a.Answers[q.Key]
	if !ok {
		if !q.HasDefault {
			return "", usererr.Errorf("no scripted answer for %s", q.Key)
		}
		answer = q.Default
	}
	return check(q, answer)
}

// NoninteractiveAsker accepts every default and fails on fields without one.
type NoninteractiveAsker struct{}

func (NoninteractiveAsker) Ask(q Question) (string, error) {
	if !q.HasDefault {
		return "", usererr.Errorf("%s has no default; run \"buzzy configure\" interactively", q.Key)
	}
	return check(q, q.Default)
}
