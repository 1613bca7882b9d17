// Package distro selects the OS backend that builds and installs packages.
//
// Backends register themselves from their package init functions; the
// command line imports them for side effects and picks one by name or by
// detection.
package distro

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"buzzy/internal/descriptor"
	"buzzy/internal/env"
	"buzzy/internal/executor"
	"buzzy/internal/fetch"
	"buzzy/internal/recipe"
	"buzzy/internal/usererr"
)

// Backend is a recipe backend that can also render packaging descriptors.
type Backend interface {
	recipe.Backend
	// Label describes the backend for the info command.
	Label() string
	// Descriptor renders the packaging descriptor of a built package.
	Descriptor(pkg *recipe.Package) (*descriptor.Document, error)
}

// Archiver is implemented by artifacts that produce a package file.
type Archiver interface {
	ArchivePath() string
}

// Config is what a backend needs from the environment.
type Config struct {
	Env     *env.Record
	Runner  executor.Runner
	Fetcher *fetch.Fetcher
	// Root is where the local backend installs packages.
	Root string
	Log  *zap.Logger
}

// Factory creates a configured backend.
type Factory func(cfg Config) (Backend, error)

type entry struct {
	name     string
	priority int
	detect   func() bool
	factory  Factory
}

var registry = map[string]*entry{}

// Register adds a backend. Detection tries backends in ascending priority.
func Register(name string, priority int, detect func() bool, factory Factory) {
	if _, dup := registry[name]; dup {
		panic("distro: backend registered twice: " + name)
	}
	registry[name] = &entry{name: name, priority: priority, detect: detect, factory: factory}
}

// Names lists the registered backends.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Detect returns the name of the first backend that recognizes this host.
func Detect() (string, error) {
	entries := make([]*entry, 0, len(registry))
	for _, e := range registry {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority < entries[j].priority
		}
		return entries[i].name < entries[j].name
	})
	for _, e := range entries {
		if e.detect() {
			return e.name, nil
		}
	}
	return "", usererr.New("Cannot determine which OS distribution this is")
}

// New creates the backend name; an empty name detects one.
func New(name string, cfg Config) (Backend, error) {
	if name == "" {
		var err error
		if name, err = Detect(); err != nil {
			return nil, err
		}
	}
	e, ok := registry[name]
	if !ok {
		return nil, usererr.Errorf("unknown backend %s (known: %s)", name, strings.Join(Names(), ", "))
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Env == nil {
		return nil, fmt.Errorf("backend %s needs an environment", name)
	}
	return e.factory(cfg)
}

// Machine returns the hardware name reported by uname.
func Machine() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "unknown"
	}
	return unix.ByteSliceToString(u.Machine[:])
}
