// Package recipe loads recipe descriptions, orders them by dependency and
// expands each one into the packages a backend builds and installs.
package recipe

import (
	"context"
	"fmt"

	"buzzy/internal/schema"
	"buzzy/internal/usererr"
)

// Recipe is one buildable unit, loaded from <database>/<Name>.yaml.
type Recipe struct {
	// Name is the path of the description under the recipe database,
	// without the .yaml extension and with "/" separators.
	Name string
	// DeclaredName is the optional "name" key of the description.
	DeclaredName string

	Version      string
	Revision     string
	License      string
	LicenseFile  schema.Text
	Description  string
	URL          schema.Text
	Depends      []string
	BuildDepends []string
	Builder      Builder
	Sources      []Source

	// Native is the backend-scoped override read from <backend>.native.
	Native NativeOverride

	packages  []*Package
	pkgsState visitState
}

// NativeOverride says whether a recipe's packages come from the native
// package manager. When Set is false the backend decides.
type NativeOverride struct {
	Set  bool
	Name string // non-empty: native under this name
}

// Never reports an explicit "native: false".
func (o NativeOverride) Never() bool { return o.Set && o.Name == "" }

// Relation selects which dependency list a traversal follows.
type Relation int

const (
	Depends Relation = iota
	BuildDepends
)

func (rel Relation) String() string {
	if rel == BuildDepends {
		return "build_depends"
	}
	return "depends"
}

// Deps returns the recipe names r depends on through rel.
func (r *Recipe) Deps(rel Relation) []string {
	if rel == BuildDepends {
		return r.BuildDepends
	}
	return r.Depends
}

// DevBuild reports whether any source tracks a moving branch.
func (r *Recipe) DevBuild() bool {
	for _, src := range r.Sources {
		if g, ok := src.(*Git); ok && g.DevBuild() {
			return true
		}
	}
	return false
}

func (r *Recipe) String() string { return r.Name }

// newSpec builds the recipe field specification. backend scopes the native
// override field; it may be empty.
func newSpec(backend string, sources *schema.Variants[Source], builders *schema.Variants[Builder]) *schema.Record[Recipe] {
	rec := schema.NewRecord[Recipe]("recipe").MustAdd(
		schema.String("name", func(r *Recipe) *string { return &r.DeclaredName }),
		schema.String("version", func(r *Recipe) *string { return &r.Version }).Required(),
		schema.String("revision", func(r *Recipe) *string { return &r.Revision }).Required(),
		schema.String("license", func(r *Recipe) *string { return &r.License }).Required(),
		schema.TextField("license_file", func(r *Recipe) *schema.Text { return &r.LicenseFile }).Templated(),
		schema.String("description", func(r *Recipe) *string { return &r.Description }),
		schema.TextField("url", func(r *Recipe) *schema.Text { return &r.URL }).Templated(),
		schema.Strings("depends", func(r *Recipe) *[]string { return &r.Depends }),
		schema.Strings("build_depends", func(r *Recipe) *[]string { return &r.BuildDepends }),
		schema.One("build", builders, func(r *Recipe) *Builder { return &r.Builder }).Default(schema.Str("none")),
		schema.Many("sources", sources, func(r *Recipe) *[]Source { return &r.Sources }),
	)
	if backend != "" {
		rec.MustAdd(nativeField(backend + ".native"))
	}
	return rec
}

func nativeField(path string) *schema.Field[Recipe] {
	return schema.NewField(path,
		func(r *Recipe, n *schema.Node, _ *schema.Context) error {
			if n.Kind != schema.ScalarNode {
				return fmt.Errorf("expected false or a package name, got a %s", n.Kind)
			}
			if b, err := schema.ParseBool(n.Value); err == nil || n.Tag == schema.BoolTag {
				if err != nil || b {
					return usererr.Errorf("unexpected value for %s: %s", path, n.Value)
				}
				r.Native = NativeOverride{Set: true}
				return nil
			}
			if n.Value == "" {
				return usererr.Errorf("empty package name for %s", path)
			}
			r.Native = NativeOverride{Set: true, Name: n.Value}
			return nil
		},
		func(r *Recipe) (*schema.Node, error) {
			switch {
			case !r.Native.Set:
				return nil, nil
			case r.Native.Name == "":
				return schema.BoolNode(false), nil
			}
			return schema.Str(r.Native.Name), nil
		})
}

// Source describes how to fetch the code of a recipe.
type Source interface {
	schema.Tagged
	// UpdatePackages lets the source rename or retag the packages the
	// builder created.
	UpdatePackages(r *Recipe, pkgs []*Package)
}

// Builder describes how to turn fetched code into packages.
type Builder interface {
	schema.Tagged
	// Packages creates the package variants of r.
	Packages(ctx context.Context, s *Store, r *Recipe) ([]*Package, error)
}
