// Package descriptor assembles packaging descriptors (PKGBUILD-style shell
// files) from fragments contributed by independent producers.
//
// A document holds named variables of three kinds: scalars, lists and code
// blocks. Code blocks collect snippets at numeric priorities; snippets are
// emitted in ascending priority, and in insertion order within a priority.
// Variables are emitted sorted by name.
package descriptor

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"buzzy/internal/schema"
)

// Priorities of the build stage.
const (
	BuildCD        = 0
	BuildUnpack    = 10
	BuildPre       = 20
	BuildConfigure = 30
	BuildMake      = 40
	BuildPost      = 50
)

// Priorities of the install stage.
const (
	InstallCD    = 0
	InstallPre   = 10
	InstallStage = 20
	InstallPost  = 30
)

// Producer contributes fragments to a document.
type Producer interface {
	Produce(doc *Document) error
}

// ProducerFunc adapts a function to Producer.
type ProducerFunc func(doc *Document) error

func (f ProducerFunc) Produce(doc *Document) error { return f(doc) }

type variable interface {
	empty() bool
	render(w *strings.Builder, name string)
}

// Document is a packaging descriptor under construction.
type Document struct {
	vars map[string]variable
}

// New returns an empty document.
func New() *Document {
	return &Document{vars: make(map[string]variable)}
}

// Make runs every producer against a new document.
func Make(producers ...Producer) (*Document, error) {
	doc := New()
	for _, p := range producers {
		if err := p.Produce(doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func get[V variable](d *Document, name string, create func() V) V {
	v, ok := d.vars[name]
	if !ok {
		nv := create()
		d.vars[name] = nv
		return nv
	}
	typed, ok := v.(V)
	if !ok {
		panic(fmt.Sprintf("descriptor variable %s is a %T", name, v))
	}
	return typed
}

// Scalar returns the scalar variable name, creating it if needed.
func (d *Document) Scalar(name string) *Scalar {
	return get(d, name, func() *Scalar { return &Scalar{} })
}

// List returns the list variable name, creating it if needed.
func (d *Document) List(name string) *List {
	return get(d, name, func() *List { return &List{} })
}

// Code returns the code block name, creating it if needed.
func (d *Document) Code(name string) *Code {
	return get(d, name, func() *Code { return &Code{} })
}

// Names returns the names of the variables that will be emitted, sorted.
func (d *Document) Names() []string {
	names := make([]string, 0, len(d.vars))
	for name, v := range d.vars {
		if !v.empty() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (d *Document) String() string {
	var b strings.Builder
	for _, name := range d.Names() {
		d.vars[name].render(&b, name)
	}
	return b.String()
}

// WriteTo writes the rendered document.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, d.String())
	return int64(n), err
}

// Scalar is a single quoted value.
type Scalar struct {
	value string
	set   bool
}

// Set replaces the value.
func (s *Scalar) Set(value string) {
	s.value, s.set = value, true
}

func (s *Scalar) empty() bool { return !s.set }

func (s *Scalar) render(w *strings.Builder, name string) {
	fmt.Fprintf(w, "%s=%s\n", name, Quote(s.value))
}

// List is a shell array.
type List struct {
	items []string
}

// Append adds items in order.
func (l *List) Append(items ...string) {
	l.items = append(l.items, items...)
}

// Items returns the current items.
func (l *List) Items() []string { return l.items }

func (l *List) empty() bool { return len(l.items) == 0 }

func (l *List) render(w *strings.Builder, name string) {
	quoted := make([]string, len(l.items))
	for i, item := range l.items {
		quoted[i] = Quote(item)
	}
	fmt.Fprintf(w, "%s=(%s)\n", name, strings.Join(quoted, " "))
}

// Code is a shell function assembled from prioritized snippets.
type Code struct {
	lines map[int][]string
}

// Append adds a snippet at priority. The snippet is dedented and stripped of
// leading and trailing blank lines. When vars is non-nil, %(name)s
// placeholders are substituted from it first.
func (c *Code) Append(priority int, text string, vars func(string) (string, bool)) error {
	if vars != nil {
		var err error
		if text, err = schema.Interpolate(text, vars); err != nil {
			return err
		}
	}
	if c.lines == nil {
		c.lines = make(map[int][]string)
	}
	c.lines[priority] = append(c.lines[priority], Trim(text)...)
	return nil
}

// Lines returns the code lines in emission order.
func (c *Code) Lines() []string {
	priorities := make([]int, 0, len(c.lines))
	for p := range c.lines {
		priorities = append(priorities, p)
	}
	sort.Ints(priorities)
	var out []string
	for _, p := range priorities {
		out = append(out, c.lines[p]...)
	}
	return out
}

func (c *Code) empty() bool { return len(c.lines) == 0 }

func (c *Code) render(w *strings.Builder, name string) {
	fmt.Fprintf(w, "%s () {\n", name)
	for _, line := range c.Lines() {
		if line == "" {
			w.WriteString("\n")
			continue
		}
		w.WriteString("  " + line + "\n")
	}
	w.WriteString("}\n")
}

// Vars builds a placeholder lookup from a map.
func Vars(m map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

// Quote renders s as a single-quoted shell word.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Trim dedents text by its common leading whitespace and drops leading and
// trailing blank lines.
func Trim(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\t", "    "), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	indent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " "))
		if indent < 0 || n < indent {
			indent = n
		}
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out[i] = strings.TrimRight(line[indent:], " ")
	}
	return out
}
