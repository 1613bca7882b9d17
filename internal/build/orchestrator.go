// Package build drives packages through their build and install steps.
//
// The orchestrator keeps no state of its own: whether a package is built or
// installed is asked from the backend every time, so an interrupted run can
// simply be started again.
package build

import (
	"context"

	"go.uber.org/zap"

	"buzzy/internal/logging"
	"buzzy/internal/recipe"
	"buzzy/internal/usererr"
)

// Orchestrator builds and installs packages, dependencies first.
//
// The force argument of BuildPackage and InstallPackage applies to the
// package it is called with. Dependency edges always use ForceAll, so a
// single package can be rebuilt without rebuilding everything below it.
type Orchestrator struct {
	ForceAll bool
	Log      *zap.Logger
}

func (o *Orchestrator) log() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}
	return o.Log
}

// BuildPackage builds pkg unless it is already built and force is unset.
// Its build dependencies are installed first.
func (o *Orchestrator) BuildPackage(ctx context.Context, pkg *recipe.Package, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !force {
		built, err := pkg.Built(ctx)
		if err != nil {
			return usererr.Wrap(err, "checking whether "+pkg.Name+" is built")
		}
		if built {
			o.log().Debug("package is already built", zap.String("package", pkg.Name))
			return nil
		}
	}

	for _, dep := range pkg.BuildDepends {
		if err := o.InstallPackage(ctx, dep, o.ForceAll); err != nil {
			return err
		}
	}

	logging.Step("Building %s", pkg.FullName())
	if err := pkg.PerformBuild(ctx); err != nil {
		return usererr.Wrap(err, "building "+pkg.Name)
	}
	return nil
}

// InstallPackage installs pkg unless it is already installed and force is
// unset. Its run-time dependencies are installed and pkg itself is built
// before the install step.
func (o *Orchestrator) InstallPackage(ctx context.Context, pkg *recipe.Package, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !force {
		installed, err := pkg.Installed(ctx)
		if err != nil {
			return usererr.Wrap(err, "checking whether "+pkg.Name+" is installed")
		}
		if installed {
			o.log().Debug("package is already installed", zap.String("package", pkg.Name))
			return nil
		}
	}

	for _, dep := range pkg.Depends {
		if err := o.InstallPackage(ctx, dep, o.ForceAll); err != nil {
			return err
		}
	}

	if err := o.BuildPackage(ctx, pkg, force); err != nil {
		return err
	}

	logging.Step("Installing %s", pkg.FullName())
	if err := pkg.PerformInstall(ctx); err != nil {
		return usererr.Wrap(err, "installing "+pkg.Name)
	}
	return nil
}

// BuildRecipe builds every package variant of r.
func (o *Orchestrator) BuildRecipe(ctx context.Context, s *recipe.Store, r *recipe.Recipe, force bool) error {
	pkgs, err := s.Packages(ctx, r)
	if err != nil {
		return err
	}
	for _, pkg := range pkgs {
		if err := o.BuildPackage(ctx, pkg, force); err != nil {
			return err
		}
	}
	return nil
}

// InstallRecipe installs the packages of r selected by tag; an empty tag
// selects the default packages.
func (o *Orchestrator) InstallRecipe(ctx context.Context, s *recipe.Store, r *recipe.Recipe, tag string, force bool) error {
	pkgs, err := s.PackagesWithTag(ctx, r, tag)
	if err != nil {
		return err
	}
	for _, pkg := range pkgs {
		if err := o.InstallPackage(ctx, pkg, force); err != nil {
			return err
		}
	}
	return nil
}
