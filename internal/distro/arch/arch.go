// Package arch builds packages with makepkg and installs them with pacman.
//
// Built packages land in the environment's repository directory, which is
// also kept up to date as a pacman repository with repo-add.
package arch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"buzzy/internal/descriptor"
	"buzzy/internal/distro"
	"buzzy/internal/executor"
	"buzzy/internal/logging"
	"buzzy/internal/recipe"
)

// Name is the backend name, and scopes the arch.native recipe field.
const Name = "arch"

const releaseFile = "/etc/arch-release"

func init() {
	distro.Register(Name, 0, detect, func(cfg distro.Config) (distro.Backend, error) {
		return New(cfg)
	})
}

func detect() bool {
	_, err := os.Stat(releaseFile)
	return err == nil
}

// Backend is the Arch Linux backend.
type Backend struct {
	arch     string
	pkgdest  string
	buildDir string
	repoDB   string
	filesDB  string
	packager string
	run      executor.Runner
	log      *zap.Logger
}

// New configures the backend from the environment.
func New(cfg distro.Config) (*Backend, error) {
	pkgdest, err := filepath.Abs(cfg.Env.RepoDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository directory: %w", err)
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{
		arch:     distro.Machine(),
		pkgdest:  pkgdest,
		buildDir: cfg.Env.BuildDir,
		repoDB:   filepath.Join(pkgdest, cfg.Env.RepoName+".db.tar.xz"),
		filesDB:  filepath.Join(pkgdest, cfg.Env.RepoName+".files.tar.xz"),
		packager: cfg.Env.Packager(),
		run:      cfg.Runner,
		log:      log,
	}, nil
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Label() string { return "linux (arch), " + b.arch }

// NativePackageExists asks the sync databases for name.
func (b *Backend) NativePackageExists(ctx context.Context, name string) (bool, error) {
	return b.succeeds(ctx, executor.Cmd("pacman", "-Si", name))
}

// succeeds runs c and reports whether it exited cleanly. Only cancellation
// is an error.
func (b *Backend) succeeds(ctx context.Context, c *executor.Command) (bool, error) {
	if _, err := b.run.Output(ctx, c); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		b.log.Debug("command failed", zap.Stringer("command", c), zap.Error(err))
		return false, nil
	}
	return true, nil
}

// PythonPackageName follows the Arch convention: python- for python3,
// python2- for python2.
func (b *Backend) PythonPackageName(major int, base string) string {
	if major == 2 {
		return "python2-" + base
	}
	return "python-" + base
}

func (b *Backend) python(major int) string {
	if major == 2 {
		return "python2"
	}
	return "python"
}

func (b *Backend) NewArtifact(pkg *recipe.Package) (recipe.Artifact, error) {
	if pkg.Native {
		return &nativePackage{b: b, pkg: pkg}, nil
	}
	return &builtPackage{b: b, pkg: pkg}, nil
}

// Descriptor renders the PKGBUILD of pkg.
func (b *Backend) Descriptor(pkg *recipe.Package) (*descriptor.Document, error) {
	if pkg.Native {
		return nil, fmt.Errorf("%s is a native package", pkg.Name)
	}
	producers, err := distro.Producers(pkg, distro.Flavor{
		Arch:         b.arch,
		Python:       b.python,
		CloneInBuild: true,
	})
	if err != nil {
		return nil, err
	}
	all := []descriptor.Producer{producers[0], licenseChecker(pkg.Recipe)}
	return descriptor.Make(append(all, producers[1:]...)...)
}

// nativePackage comes from the sync repositories.
type nativePackage struct {
	b   *Backend
	pkg *recipe.Package
}

func (n *nativePackage) spec() string {
	return n.pkg.Name + "=" + n.pkg.Recipe.Version
}

// Built is always true; there is nothing to build.
func (n *nativePackage) Built(context.Context) (bool, error) { return true, nil }

func (n *nativePackage) Installed(ctx context.Context) (bool, error) {
	return n.b.succeeds(ctx, executor.Cmd("pacman", "-T", n.spec()))
}

func (n *nativePackage) PerformBuild(context.Context) error { return nil }

func (n *nativePackage) PerformInstall(ctx context.Context) error {
	// pacman must see ^C itself to release its database lock.
	return n.b.run.Run(ctx, &executor.Command{
		Name:        "pacman",
		Args:        []string{"-S", "--noconfirm", n.spec()},
		Root:        true,
		Interactive: true,
	})
}

// builtPackage is built from its recipe with makepkg.
type builtPackage struct {
	b   *Backend
	pkg *recipe.Package
}

func (p *builtPackage) buildPath() string {
	return filepath.Join(p.b.buildDir, p.pkg.Name, "build")
}

// PackageExt is the package file extension makepkg is told to produce.
const PackageExt = ".pkg.tar.xz"

func (p *builtPackage) filename() string {
	r := p.pkg.Recipe
	return fmt.Sprintf("%s-%s-%s-%s%s", p.pkg.Name, r.Version, r.Revision, p.b.arch, PackageExt)
}

// ArchivePath is where makepkg leaves the package file.
func (p *builtPackage) ArchivePath() string {
	return filepath.Join(p.b.pkgdest, p.filename())
}

func (p *builtPackage) spec() string {
	return p.pkg.Name + "=" + p.pkg.Recipe.FullVersion()
}

func (p *builtPackage) Built(context.Context) (bool, error) {
	_, err := os.Stat(p.ArchivePath())
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	}
	return false, err
}

func (p *builtPackage) Installed(ctx context.Context) (bool, error) {
	return p.b.succeeds(ctx, executor.Cmd("pacman", "-T", p.spec()))
}

func (p *builtPackage) clean() error {
	if err := os.RemoveAll(filepath.Join(p.buildPath(), "src")); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(p.buildPath(), p.filename())); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (p *builtPackage) writePKGBUILD() error {
	doc, err := p.b.Descriptor(p.pkg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p.buildPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create build directory: %w", err)
	}
	return os.WriteFile(filepath.Join(p.buildPath(), "PKGBUILD"), []byte(doc.String()), 0o644)
}

func (p *builtPackage) PerformBuild(ctx context.Context) error {
	name := p.pkg.FullName()
	logging.Note("[%s] Cleaning build directory", name)
	if err := p.clean(); err != nil {
		return fmt.Errorf("failed to clean build directory: %w", err)
	}
	logging.Note("[%s] Creating PKGBUILD file", name)
	if err := p.writePKGBUILD(); err != nil {
		return err
	}
	if err := os.MkdirAll(p.b.pkgdest, 0o755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}

	logging.Note("[%s] Building package", name)
	env := []string{"PKGDEST=" + p.b.pkgdest, "PKGEXT=" + PackageExt, "PACKAGER=" + p.b.packager}
	makepkg := &executor.Command{Name: "makepkg", Args: []string{"-s", "-f", "--noconfirm"}, Dir: p.buildPath(), Env: env}
	if err := p.b.run.Run(ctx, makepkg); err != nil {
		return err
	}

	logging.Note("[%s] Updating repository database", name)
	for _, args := range [][]string{
		{"-d", p.b.repoDB, p.ArchivePath()},
		{"-d", "-f", p.b.filesDB, p.ArchivePath()},
	} {
		if err := p.b.run.Run(ctx, &executor.Command{Name: "repo-add", Args: args, Env: env}); err != nil {
			return err
		}
	}
	return nil
}

func (p *builtPackage) PerformInstall(ctx context.Context) error {
	return p.b.run.Run(ctx, &executor.Command{
		Name:        "pacman",
		Args:        []string{"-U", "--noconfirm", p.ArchivePath()},
		Root:        true,
		Interactive: true,
	})
}
