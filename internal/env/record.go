// Package env manages the persisted buzzy environment: where recipes live,
// where packages are built and collected, and who signs them. The record is
// versioned; each version adds fields and configure migrates an older record
// forward by asking only for what is new.
package env

import (
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	"buzzy/internal/schema"
	"buzzy/internal/usererr"
)

// Record is the persisted environment.
type Record struct {
	Version int

	// version 1
	RecipeDatabase string
	BuildDir       string

	// version 2
	RepoDir  string
	RepoName string

	// version 3
	Name  string
	Email string

	// version 4
	MirrorEndpoint string
	MirrorBucket   string
}

// Packager renders the packager identity as "Name <email>".
func (r *Record) Packager() string {
	return fmt.Sprintf("%s <%s>", r.Name, r.Email)
}

// MirrorEnabled reports whether built packages can be published.
func (r *Record) MirrorEnabled() bool { return r.MirrorBucket != "" }

// Question is one field an upgrade step asks for.
type Question struct {
	Key    string
	Prompt string
	// Default is offered when HasDefault is set; an empty default is valid.
	Default    string
	HasDefault bool
	// Check validates an answer and returns its normalized form.
	Check func(string) (string, error)
}

type envField struct {
	key      string
	prompt   string
	optional bool
	def      func(dir string) (string, bool)
	check    func(string) (string, error)
	ptr      func(*Record) *string
}

// Latest is the current environment version.
const Latest = 4

// fieldsByVersion lists the fields introduced at each version.
var fieldsByVersion = [Latest + 1][]envField{
	1: {
		{
			key:    "recipe_database",
			prompt: "Location of recipe database",
			def: func(string) (string, bool) {
				wd, err := os.Getwd()
				return wd, err == nil
			},
			check: checkPath,
			ptr:   func(r *Record) *string { return &r.RecipeDatabase },
		},
		{
			key:    "build_dir",
			prompt: "Directory for build products",
			def:    func(dir string) (string, bool) { return filepath.Join(dir, "build"), true },
			check:  checkPath,
			ptr:    func(r *Record) *string { return &r.BuildDir },
		},
	},
	2: {
		{
			key:    "repo_dir",
			prompt: "Directory for the local package repository",
			def:    func(dir string) (string, bool) { return filepath.Join(dir, "repo"), true },
			check:  checkPath,
			ptr:    func(r *Record) *string { return &r.RepoDir },
		},
		{
			key:    "repo_name",
			prompt: "Name of the local package repository",
			def:    func(string) (string, bool) { return "buzzy", true },
			check:  checkIdentifier,
			ptr:    func(r *Record) *string { return &r.RepoName },
		},
	},
	3: {
		{
			key:    "name",
			prompt: "Packager name",
			check:  checkNonEmpty,
			ptr:    func(r *Record) *string { return &r.Name },
		},
		{
			key:    "email",
			prompt: "Packager email",
			check:  checkEmail,
			ptr:    func(r *Record) *string { return &r.Email },
		},
	},
	4: {
		{
			key:      "mirror_endpoint",
			prompt:   "S3 endpoint for the package mirror (empty for AWS)",
			optional: true,
			def:      func(string) (string, bool) { return "", true },
			check:    checkOptional,
			ptr:      func(r *Record) *string { return &r.MirrorEndpoint },
		},
		{
			key:      "mirror_bucket",
			prompt:   "Bucket for the package mirror (empty to disable publishing)",
			optional: true,
			def:      func(string) (string, bool) { return "", true },
			check:    checkOptional,
			ptr:      func(r *Record) *string { return &r.MirrorBucket },
		},
	},
}

// specs[v] decodes a record persisted at version v.
var specs = func() [Latest + 1]*schema.Record[Record] {
	var out [Latest + 1]*schema.Record[Record]
	for v := 0; v <= Latest; v++ {
		rec := schema.NewRecord[Record](fmt.Sprintf("environment (version %d)", v))
		rec.MustAdd(schema.Int("version", func(r *Record) *int { return &r.Version }).Required())
		for introduced := 1; introduced <= v; introduced++ {
			for _, f := range fieldsByVersion[introduced] {
				field := schema.String(f.key, f.ptr)
				if f.optional {
					field.Default(schema.Str(""))
				} else {
					field.Required()
				}
				rec.MustAdd(field)
			}
		}
		out[v] = rec
	}
	return out
}()

// questions returns the fields introduced at version v as questions.
func questions(v int, dir string) []Question {
	var qs []Question
	for _, f := range fieldsByVersion[v] {
		q := Question{Key: f.key, Prompt: f.prompt, Check: f.check}
		if f.def != nil {
			q.Default, q.HasDefault = f.def(dir)
		}
		qs = append(qs, q)
	}
	return qs
}

// upgrade builds the version v record from its predecessor.
func upgrade(prev *Record, v int, dir string, asker Asker) (*Record, error) {
	next := *prev
	next.Version = v
	for i, q := range questions(v, dir) {
		answer, err := asker.Ask(q)
		if err != nil {
			return nil, err
		}
		*fieldsByVersion[v][i].ptr(&next) = answer
	}
	return &next, nil
}

func checkNonEmpty(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", usererr.New("a value is required")
	}
	return s, nil
}

func checkOptional(s string) (string, error) { return strings.TrimSpace(s), nil }

func checkPath(s string) (string, error) {
	s, err := checkNonEmpty(s)
	if err != nil {
		return "", err
	}
	if s == "~" || strings.HasPrefix(s, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding %s: %w", s, err)
		}
		s = filepath.Join(home, strings.TrimPrefix(s, "~"))
	}
	return filepath.Abs(s)
}

func checkIdentifier(s string) (string, error) {
	s, err := checkNonEmpty(s)
	if err != nil {
		return "", err
	}
	if strings.ContainsAny(s, "/ \t") {
		return "", usererr.Errorf("%q may not contain slashes or spaces", s)
	}
	return s, nil
}

func checkEmail(s string) (string, error) {
	s, err := checkNonEmpty(s)
	if err != nil {
		return "", err
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", usererr.Errorf("%q is not an email address", s)
	}
	return s, nil
}
