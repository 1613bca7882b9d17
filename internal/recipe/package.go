package recipe

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"buzzy/internal/usererr"
)

// DefaultTag marks the package a dependency edge picks when it asks for no
// particular variant.
const DefaultTag = "default"

// Backend is the OS-specific side of package handling.
type Backend interface {
	// Name scopes backend-specific recipe fields ("arch" reads arch.native).
	Name() string
	// NativePackageExists reports whether the native package manager
	// provides name.
	NativePackageExists(ctx context.Context, name string) (bool, error)
	// PythonPackageName names the package of a python module for one
	// interpreter major version.
	PythonPackageName(major int, base string) string
	// NewArtifact returns the build/install handle for a resolved package.
	NewArtifact(pkg *Package) (Artifact, error)
}

// Artifact reports and changes the built and installed state of a package.
// Both predicates query real state every time.
type Artifact interface {
	Built(ctx context.Context) (bool, error)
	Installed(ctx context.Context) (bool, error)
	PerformBuild(ctx context.Context) error
	PerformInstall(ctx context.Context) error
}

// Package is one concrete artifact of a recipe.
type Package struct {
	Name   string
	Tags   []string
	DepTag string
	Recipe *Recipe
	Native bool

	// Depends and BuildDepends are already resolved to the variant this
	// package needs.
	Depends      []*Package
	BuildDepends []*Package

	Artifact Artifact
}

// HasTag reports whether p carries tag.
func (p *Package) HasTag(tag string) bool { return slices.Contains(p.Tags, tag) }

func (p *Package) String() string { return p.Name }

// FullName identifies the package in progress output.
func (p *Package) FullName() string {
	if p.Name == baseName(p.Recipe) {
		return p.Recipe.Name
	}
	return fmt.Sprintf("%s (%s)", p.Recipe.Name, p.Name)
}

// Built reports whether the package file exists.
func (p *Package) Built(ctx context.Context) (bool, error) { return p.Artifact.Built(ctx) }

// Installed reports whether this version is installed.
func (p *Package) Installed(ctx context.Context) (bool, error) { return p.Artifact.Installed(ctx) }

// PerformBuild builds the package unconditionally.
func (p *Package) PerformBuild(ctx context.Context) error { return p.Artifact.PerformBuild(ctx) }

// PerformInstall installs the package unconditionally.
func (p *Package) PerformInstall(ctx context.Context) error { return p.Artifact.PerformInstall(ctx) }

// ResolveNative decides the name and nativeness of a package. naming maps a
// base name (the last recipe name segment, or the override from
// <backend>.native) to a package name.
func (s *Store) ResolveNative(ctx context.Context, r *Recipe, naming func(base string) string) (string, bool, error) {
	switch {
	case r.Native.Name != "":
		return naming(r.Native.Name), true, nil
	case r.Native.Never():
		return naming(baseName(r)), false, nil
	}
	name := naming(baseName(r))
	native, err := s.backend.NativePackageExists(ctx, name)
	if err != nil {
		return "", false, fmt.Errorf("checking for native package %s: %w", name, err)
	}
	return name, native, nil
}

// NewPackage creates a package of r and resolves its dependency edges
// through depTag.
func (s *Store) NewPackage(ctx context.Context, r *Recipe, name string, native bool, tags []string, depTag string) (*Package, error) {
	p := &Package{Name: name, Tags: tags, DepTag: depTag, Recipe: r, Native: native}
	var err error
	if p.Depends, err = s.resolveEdges(ctx, r.Depends, depTag); err != nil {
		return nil, err
	}
	if p.BuildDepends, err = s.resolveEdges(ctx, r.BuildDepends, depTag); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) resolveEdges(ctx context.Context, names []string, tag string) ([]*Package, error) {
	var out []*Package
	for _, name := range names {
		dep, err := s.Load(name)
		if err != nil {
			return nil, err
		}
		pkgs, err := s.PackagesWithTag(ctx, dep, tag)
		if err != nil {
			return nil, err
		}
		out = append(out, pkgs...)
	}
	return out, nil
}

// Packages returns the package variants of r, creating them on first use.
// The builder creates them, each source may then adjust them, and finally
// the backend attaches their artifacts.
func (s *Store) Packages(ctx context.Context, r *Recipe) ([]*Package, error) {
	switch r.pkgsState {
	case finished:
		return r.packages, nil
	case inProgress:
		return nil, cycleError(r.Name)
	}
	if s.backend == nil {
		return nil, fmt.Errorf("no backend to create packages of %s", r.Name)
	}

	r.pkgsState = inProgress
	pkgs, err := s.createPackages(ctx, r)
	if err != nil {
		r.pkgsState = unvisited
		return nil, err
	}
	r.packages = pkgs
	r.pkgsState = finished
	return pkgs, nil
}

func (s *Store) createPackages(ctx context.Context, r *Recipe) ([]*Package, error) {
	pkgs, err := r.Builder.Packages(ctx, s, r)
	if err != nil {
		return nil, err
	}
	for _, src := range r.Sources {
		src.UpdatePackages(r, pkgs)
	}
	for _, p := range pkgs {
		if p.Artifact, err = s.backend.NewArtifact(p); err != nil {
			return nil, err
		}
		s.log.Debug("resolved package",
			zap.String("recipe", r.Name),
			zap.String("package", p.Name),
			zap.Strings("tags", p.Tags),
			zap.Bool("native", p.Native))
	}
	return pkgs, nil
}

// PackagesWithTag returns the packages of r carrying tag, else those tagged
// default. An empty tag asks for the default packages.
func (s *Store) PackagesWithTag(ctx context.Context, r *Recipe, tag string) ([]*Package, error) {
	pkgs, err := s.Packages(ctx, r)
	if err != nil {
		return nil, err
	}
	if tag != "" {
		if out := withTag(pkgs, tag); len(out) > 0 {
			return out, nil
		}
	}
	if out := withTag(pkgs, DefaultTag); len(out) > 0 {
		return out, nil
	}
	want := tag
	if want == "" {
		want = DefaultTag
	}
	return nil, usererr.Errorf("can't find %s package for %s", want, r.Name)
}

func withTag(pkgs []*Package, tag string) []*Package {
	var out []*Package
	for _, p := range pkgs {
		if p.HasTag(tag) {
			out = append(out, p)
		}
	}
	return out
}
