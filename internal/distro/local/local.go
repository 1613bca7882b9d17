// Package local builds packages on any host with bash and installs them
// into a private root.
//
// It renders the same descriptor as the Arch backend, runs its build and
// package functions directly, and archives the staged tree as .tar.zst.
// Installed versions are recorded under <root>/var/lib/buzzy.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"buzzy/internal/descriptor"
	"buzzy/internal/distro"
	"buzzy/internal/executor"
	"buzzy/internal/fetch"
	"buzzy/internal/logging"
	"buzzy/internal/recipe"
)

// Name is the backend name, and scopes the local.native recipe field.
const Name = "local"

// DescriptorFile is the name of the rendered descriptor in the build path.
const DescriptorFile = "BUZZYBUILD"

func init() {
	distro.Register(Name, 100, func() bool { return true }, func(cfg distro.Config) (distro.Backend, error) {
		return New(cfg)
	})
}

// Backend is the portable backend.
type Backend struct {
	arch     string
	repoDir  string
	buildDir string
	root     string
	packager string
	run      executor.Runner
	fetcher  *fetch.Fetcher
	log      *zap.Logger
}

// New configures the backend from the environment.
func New(cfg distro.Config) (*Backend, error) {
	if cfg.Root == "" {
		return nil, errors.New("local backend needs an install root")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("local backend needs a fetcher")
	}
	repoDir, err := filepath.Abs(cfg.Env.RepoDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository directory: %w", err)
	}
	buildDir, err := filepath.Abs(cfg.Env.BuildDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve build directory: %w", err)
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{
		arch:     distro.Machine(),
		repoDir:  repoDir,
		buildDir: buildDir,
		root:     cfg.Root,
		packager: cfg.Env.Packager(),
		run:      cfg.Runner,
		fetcher:  cfg.Fetcher,
		log:      log,
	}, nil
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Label() string { return fmt.Sprintf("local, %s, root %s", b.arch, b.root) }

// NativePackageExists is always false: the host package manager is not
// consulted. Recipes mark host-provided packages with local.native.
func (b *Backend) NativePackageExists(context.Context, string) (bool, error) {
	return false, nil
}

func (b *Backend) PythonPackageName(major int, base string) string {
	return b.python(major) + "-" + base
}

func (b *Backend) python(major int) string {
	if major == 2 {
		return "python2"
	}
	return "python3"
}

func (b *Backend) NewArtifact(pkg *recipe.Package) (recipe.Artifact, error) {
	if pkg.Native {
		return hostPackage{}, nil
	}
	return &builtPackage{b: b, pkg: pkg}, nil
}

// Descriptor renders the build script of pkg.
func (b *Backend) Descriptor(pkg *recipe.Package) (*descriptor.Document, error) {
	if pkg.Native {
		return nil, fmt.Errorf("%s is provided by the host", pkg.Name)
	}
	producers, err := distro.Producers(pkg, distro.Flavor{Arch: b.arch, Python: b.python})
	if err != nil {
		return nil, err
	}
	return descriptor.Make(producers...)
}

func (b *Backend) stateDir(kind string) string {
	return filepath.Join(b.root, "var", "lib", "buzzy", kind)
}

// InstalledVersion returns the recorded full version of name, or "".
func (b *Backend) InstalledVersion(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(b.stateDir("installed"), name))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// hostPackage is provided by the host and needs nothing.
type hostPackage struct{}

func (hostPackage) Built(context.Context) (bool, error)     { return true, nil }
func (hostPackage) Installed(context.Context) (bool, error) { return true, nil }
func (hostPackage) PerformBuild(context.Context) error      { return nil }
func (hostPackage) PerformInstall(context.Context) error    { return nil }

type builtPackage struct {
	b   *Backend
	pkg *recipe.Package
}

func (p *builtPackage) buildPath() string {
	return filepath.Join(p.b.buildDir, p.pkg.Name, "build")
}

// ArchivePath is the package archive in the repository directory.
func (p *builtPackage) ArchivePath() string {
	r := p.pkg.Recipe
	return filepath.Join(p.b.repoDir, fmt.Sprintf("%s-%s-%s-%s.tar.zst", p.pkg.Name, r.Version, r.Revision, p.b.arch))
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

// Installed compares the recorded version with the recipe's.
func (p *builtPackage) Installed(context.Context) (bool, error) {
	v, err := p.b.InstalledVersion(p.pkg.Name)
	if err != nil || v == "" {
		return false, err
	}
	return recipe.CompareFullVersions(v, p.pkg.Recipe.FullVersion()) == 0, nil
}

// script runs the descriptor's functions the way makepkg would.
const script = `set -e
source "$startdir/` + DescriptorFile + `"
if declare -F build >/dev/null; then
  cd "$srcdir"
  build
fi
if declare -F package >/dev/null; then
  cd "$srcdir"
  package
fi
`

func (p *builtPackage) PerformBuild(ctx context.Context) error {
	name := p.pkg.FullName()
	build := p.buildPath()
	srcdir := filepath.Join(build, "src")
	pkgdir := filepath.Join(build, "pkg")

	logging.Note("[%s] Cleaning build directory", name)
	for _, dir := range []string{srcdir, pkgdir} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to clean build directory: %w", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create build directory: %w", err)
		}
	}

	logging.Note("[%s] Creating %s file", name, DescriptorFile)
	doc, err := p.b.Descriptor(p.pkg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(build, DescriptorFile), []byte(doc.String()), 0o644); err != nil {
		return err
	}

	logging.Note("[%s] Fetching sources", name)
	if err := p.b.fetcher.Unpack(ctx, p.pkg.Recipe, srcdir); err != nil {
		return err
	}

	logging.Note("[%s] Building package", name)
	err = p.b.run.Run(ctx, &executor.Command{
		Name: "bash",
		Args: []string{"-c", script},
		Dir:  build,
		Env: []string{
			"startdir=" + build,
			"srcdir=" + srcdir,
			"pkgdir=" + pkgdir,
			"PACKAGER=" + p.b.packager,
		},
	})
	if err != nil {
		return err
	}

	logging.Note("[%s] Creating package archive", name)
	if err := os.MkdirAll(p.b.repoDir, 0o755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}
	return fetch.CreateTarball(pkgdir, p.ArchivePath())
}

// PerformInstall unpacks the archive into the root and records the version
// and the file list.
func (p *builtPackage) PerformInstall(context.Context) error {
	archive := p.ArchivePath()
	files, err := fetch.ListTarball(archive)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p.b.root, 0o755); err != nil {
		return err
	}
	if err := fetch.Extract(archive, p.b.root, filepath.Base(archive)); err != nil {
		return fmt.Errorf("failed to install %s: %w", archive, err)
	}
	for kind, content := range map[string]string{
		"installed": p.pkg.Recipe.FullVersion() + "\n",
		"files":     strings.Join(files, "\n") + "\n",
	} {
		dir := p.b.stateDir(kind)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, p.pkg.Name), []byte(content), 0o644); err != nil {
			return err
		}
	}
	p.b.log.Debug("installed package", zap.String("package", p.pkg.Name), zap.Int("files", len(files)))
	return nil
}
