package recipe

import (
	"context"
	"path"

	"buzzy/internal/schema"
	"buzzy/internal/usererr"
)

// NoBuild packages nothing beyond what the sources provide.
type NoBuild struct{}

func (*NoBuild) Type() string { return "none" }

func (*NoBuild) Packages(ctx context.Context, s *Store, r *Recipe) ([]*Package, error) {
	return compiledPackages(ctx, s, r)
}

// Autotools runs configure, make and make install.
type Autotools struct{}

func (*Autotools) Type() string { return "autotools" }

func (*Autotools) Packages(ctx context.Context, s *Store, r *Recipe) ([]*Package, error) {
	return compiledPackages(ctx, s, r)
}

// Cmake configures in a separate build tree.
type Cmake struct{}

func (*Cmake) Type() string { return "cmake" }

func (*Cmake) Packages(ctx context.Context, s *Store, r *Recipe) ([]*Package, error) {
	return compiledPackages(ctx, s, r)
}

// Python installers.
const (
	Distutils  = "distutils"
	Setuptools = "setuptools"
	Distribute = "distribute"
)

// Python builds one package per supported interpreter.
type Python struct {
	Installer string
}

func (*Python) Type() string { return "python" }

// NeedsSetuptools reports whether the install step imports setuptools.
func (p *Python) NeedsSetuptools() bool {
	return p.Installer == Setuptools || p.Installer == Distribute
}

// Packages creates the python3 package, tagged default, and the python2
// package.
func (*Python) Packages(ctx context.Context, s *Store, r *Recipe) ([]*Package, error) {
	var pkgs []*Package
	for _, major := range []int{3, 2} {
		naming := func(base string) string { return s.Backend().PythonPackageName(major, base) }
		name, native, err := s.ResolveNative(ctx, r, naming)
		if err != nil {
			return nil, err
		}
		tag := "python2"
		tags := []string{tag}
		if major == 3 {
			tag = "python3"
			tags = []string{tag, DefaultTag}
		}
		pkg, err := s.NewPackage(ctx, r, name, native, tags, tag)
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

var pythonSpec = schema.NewRecord[Python]("python builder").MustAdd(
	schema.String("installer", func(p *Python) *string { return &p.Installer }).Default(schema.Str(Distutils)),
).Validate(func(p *Python) error {
	switch p.Installer {
	case Distutils, Setuptools, Distribute:
		return nil
	}
	return usererr.Errorf("unknown python installer %q", p.Installer)
})

// compiledPackages creates the single default package named after the last
// segment of the recipe name.
func compiledPackages(ctx context.Context, s *Store, r *Recipe) ([]*Package, error) {
	name, native, err := s.ResolveNative(ctx, r, func(base string) string { return base })
	if err != nil {
		return nil, err
	}
	pkg, err := s.NewPackage(ctx, r, name, native, []string{DefaultTag}, "")
	if err != nil {
		return nil, err
	}
	return []*Package{pkg}, nil
}

func registerBuilders(v *schema.Variants[Builder]) error {
	if err := schema.RegisterRecord(v, "none", schema.NewRecord[NoBuild]("none builder")); err != nil {
		return err
	}
	if err := schema.RegisterRecord(v, "autotools", schema.NewRecord[Autotools]("autotools builder")); err != nil {
		return err
	}
	if err := schema.RegisterRecord(v, "cmake", schema.NewRecord[Cmake]("cmake builder")); err != nil {
		return err
	}
	return schema.RegisterRecord(v, "python", pythonSpec)
}

// baseName is the last segment of a recipe name.
func baseName(r *Recipe) string { return path.Base(r.Name) }
