package build

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buzzy/internal/recipe"
	"buzzy/internal/usererr"
)

type recorder struct {
	calls   []string
	queries int
}

type stubArtifact struct {
	name      string
	built     bool
	installed bool
	buildErr  error
	rec       *recorder
}

func (a *stubArtifact) Built(context.Context) (bool, error) {
	a.rec.queries++
	return a.built, nil
}

func (a *stubArtifact) Installed(context.Context) (bool, error) {
	a.rec.queries++
	return a.installed, nil
}

func (a *stubArtifact) PerformBuild(context.Context) error {
	a.rec.calls = append(a.rec.calls, "build "+a.name)
	if a.buildErr != nil {
		return a.buildErr
	}
	a.built = true
	return nil
}

func (a *stubArtifact) PerformInstall(context.Context) error {
	a.rec.calls = append(a.rec.calls, "install "+a.name)
	a.installed = true
	return nil
}

func newPkg(rec *recorder, name string) (*recipe.Package, *stubArtifact) {
	a := &stubArtifact{name: name, rec: rec}
	return &recipe.Package{
		Name:     name,
		Tags:     []string{recipe.DefaultTag},
		Recipe:   &recipe.Recipe{Name: name},
		Artifact: a,
	}, a
}

func TestBuildPackageSkipsBuiltPackages(t *testing.T) {
	rec := &recorder{}
	pkg, art := newPkg(rec, "app")
	tool, _ := newPkg(rec, "tool")
	pkg.BuildDepends = []*recipe.Package{tool}
	art.built = true

	o := &Orchestrator{}
	require.NoError(t, o.BuildPackage(context.Background(), pkg, false))
	assert.Empty(t, rec.calls)

	require.NoError(t, o.BuildPackage(context.Background(), pkg, true))
	assert.Equal(t, []string{"build tool", "install tool", "build app"}, rec.calls)
}

func TestInstallPackageOrder(t *testing.T) {
	rec := &recorder{}
	app, _ := newPkg(rec, "app")
	lib, _ := newPkg(rec, "lib")
	tool, _ := newPkg(rec, "tool")
	app.Depends = []*recipe.Package{lib}
	app.BuildDepends = []*recipe.Package{tool}

	o := &Orchestrator{}
	require.NoError(t, o.InstallPackage(context.Background(), app, false))
	assert.Equal(t, []string{
		"build lib", "install lib",
		"build tool", "install tool",
		"build app", "install app",
	}, rec.calls)

	// Everything is in place now; a second run does nothing.
	rec.calls = nil
	require.NoError(t, o.InstallPackage(context.Background(), app, false))
	assert.Empty(t, rec.calls)
}

func TestForceDoesNotCascade(t *testing.T) {
	tests := []struct {
		name     string
		forceAll bool
		want     []string
	}{
		{"force", false, []string{"build app", "install app"}},
		{"force all", true, []string{"build lib", "install lib", "build tool", "install tool", "build app", "install app"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			app, appArt := newPkg(rec, "app")
			lib, libArt := newPkg(rec, "lib")
			tool, toolArt := newPkg(rec, "tool")
			app.Depends = []*recipe.Package{lib}
			app.BuildDepends = []*recipe.Package{tool}
			for _, a := range []*stubArtifact{appArt, libArt, toolArt} {
				a.built, a.installed = true, true
			}

			o := &Orchestrator{ForceAll: tt.forceAll}
			require.NoError(t, o.InstallPackage(context.Background(), app, true))
			assert.Equal(t, tt.want, rec.calls)
		})
	}
}

func TestBuildFailureStopsChain(t *testing.T) {
	rec := &recorder{}
	app, _ := newPkg(rec, "app")
	lib, libArt := newPkg(rec, "lib")
	app.Depends = []*recipe.Package{lib}
	libArt.buildErr = usererr.WithDetail("Error running makepkg", "==> ERROR: missing file")

	o := &Orchestrator{}
	err := o.InstallPackage(context.Background(), app, false)
	require.Error(t, err)
	assert.Equal(t, []string{"build lib"}, rec.calls)

	ue, ok := usererr.As(err)
	require.True(t, ok)
	assert.Contains(t, ue.Msg, "Error running makepkg")
	assert.Equal(t, "==> ERROR: missing file", ue.Detail)
}

func TestCanceledContext(t *testing.T) {
	rec := &recorder{}
	app, _ := newPkg(rec, "app")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := &Orchestrator{}
	assert.ErrorIs(t, o.InstallPackage(ctx, app, true), context.Canceled)
	assert.Empty(t, rec.calls)
}
