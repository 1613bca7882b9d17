package recipe

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buzzy/internal/schema"
)

type nopArtifact struct{}

func (nopArtifact) Built(context.Context) (bool, error)     { return false, nil }
func (nopArtifact) Installed(context.Context) (bool, error) { return false, nil }
func (nopArtifact) PerformBuild(context.Context) error      { return nil }
func (nopArtifact) PerformInstall(context.Context) error    { return nil }

type fakeBackend struct {
	native  map[string]bool
	checked []string
}

func (*fakeBackend) Name() string { return "test" }

func (b *fakeBackend) NativePackageExists(_ context.Context, name string) (bool, error) {
	b.checked = append(b.checked, name)
	return b.native[name], nil
}

func (*fakeBackend) PythonPackageName(major int, base string) string {
	if major == 2 {
		return "python2-" + base
	}
	return "python-" + base
}

func (*fakeBackend) NewArtifact(*Package) (Artifact, error) { return nopArtifact{}, nil }

// legacyBuilder only produces a python2 package.
type legacyBuilder struct{}

func (*legacyBuilder) Type() string { return "legacy" }

func (*legacyBuilder) Packages(ctx context.Context, s *Store, r *Recipe) ([]*Package, error) {
	pkg, err := s.NewPackage(ctx, r, "python2-"+baseName(r), false, []string{"python2"}, "python2")
	if err != nil {
		return nil, err
	}
	return []*Package{pkg}, nil
}

type registeringBackend struct{ fakeBackend }

func (*registeringBackend) Register(s *Store) error {
	return schema.RegisterRecord(s.Builders(), "legacy", schema.NewRecord[legacyBuilder]("legacy builder"))
}

func writeRecipes(t *testing.T, recipes map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range recipes {
		file := filepath.Join(dir, filepath.FromSlash(name)+".yaml")
		require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
		require.NoError(t, os.WriteFile(file, []byte(body), 0o644))
	}
	return dir
}

func newTestStore(t *testing.T, backend Backend, recipes map[string]string) *Store {
	t.Helper()
	s, err := NewStore(writeRecipes(t, recipes), backend)
	require.NoError(t, err)
	return s
}

const minimal = "version: '1.0'\nrevision: '1'\nlicense: MIT\n"

func names(rs []*Recipe) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Name
	}
	return out
}

func pkgNames(ps []*Package) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}

func TestLoad(t *testing.T) {
	s := newTestStore(t, &fakeBackend{}, map[string]string{
		"libfoo":     minimal + "description: Foo library\nurl: https://example.org/%(name)s\n",
		"lib/bar":    minimal,
		"misnamed":   "name: other\n" + minimal,
		"incomplete": "version: '1'\n",
	})

	r, err := s.Load("libfoo")
	require.NoError(t, err)
	assert.Equal(t, "1.0", r.Version)
	assert.Equal(t, "https://example.org/libfoo", r.URL.Value)
	assert.IsType(t, &NoBuild{}, r.Builder)

	again, err := s.Load("libfoo")
	require.NoError(t, err)
	assert.Same(t, r, again)

	bar, err := s.Load("lib/bar")
	require.NoError(t, err)
	assert.Equal(t, "lib/bar", bar.Name)

	_, err = s.Load("missing")
	assert.EqualError(t, err, "no recipe named missing")

	_, err = s.Load("../escape")
	assert.EqualError(t, err, "no recipe named ../escape")

	_, err = s.Load("misnamed")
	assert.EqualError(t, err, "invalid recipe description, name must be misnamed")

	_, err = s.Load("incomplete")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected revision in recipe")
}

func TestAllNames(t *testing.T) {
	s := newTestStore(t, nil, map[string]string{
		"app":         minimal,
		"lib/foo":     minimal,
		"lib/sub/bar": minimal,
	})
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "README"), []byte("x"), 0o644))

	var got []string
	for name, err := range s.AllNames() {
		require.NoError(t, err)
		got = append(got, name)
	}
	slices.Sort(got)
	assert.Equal(t, []string{"app", "lib/foo", "lib/sub/bar"}, got)

	// Each call walks again; stopping early is allowed.
	count := 0
	for range s.AllNames() {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestDependencyChainSample(t *testing.T) {
	s := newTestStore(t, nil, map[string]string{
		"libfoo": minimal + "depends: []\n",
		"app":    minimal + "depends: [libfoo]\nbuild_depends: []\n",
	})
	chain, err := s.DependencyChain([]string{"app"}, Depends)
	require.NoError(t, err)
	assert.Equal(t, []string{"libfoo", "app"}, names(chain))
}

func TestDependencyChainOrder(t *testing.T) {
	graph := map[string][]string{
		"app":    {"net", "log"},
		"net":    {"ssl", "zlib"},
		"log":    {"zlib"},
		"ssl":    {"zlib"},
		"zlib":   nil,
		"tool":   {"log"},
		"island": nil,
	}
	recipes := map[string]string{}
	for name, deps := range graph {
		body := minimal + "build_depends: [" + strings.Join(deps, ", ") + "]\n"
		recipes[name] = body
	}
	s := newTestStore(t, nil, recipes)

	roots := []string{"tool", "app", "island", "zlib"}
	chain, err := s.DependencyChain(roots, BuildDepends)
	require.NoError(t, err)

	got := names(chain)
	assert.Len(t, got, len(graph))
	pos := map[string]int{}
	for i, name := range got {
		_, dup := pos[name]
		assert.False(t, dup, "%s listed twice", name)
		pos[name] = i
	}
	for name, deps := range graph {
		for _, dep := range deps {
			assert.Less(t, pos[dep], pos[name], "%s must follow %s", name, dep)
		}
	}
	assert.Equal(t, []string{"zlib", "log", "tool", "ssl", "net", "app", "island"}, got)

	// The other relation ignores build_depends entirely.
	chain, err = s.DependencyChain([]string{"app"}, Depends)
	require.NoError(t, err)
	assert.Equal(t, []string{"app"}, names(chain))
}

func TestDependencyChainCycle(t *testing.T) {
	s := newTestStore(t, nil, map[string]string{
		"a": minimal + "depends: [b]\n",
		"b": minimal + "depends: [a]\n",
		"c": minimal + "depends: [c]\n",
	})
	_, err := s.DependencyChain([]string{"a"}, Depends)
	assert.EqualError(t, err, "dependency cycle when processing a")

	_, err = s.DependencyChain([]string{"c"}, Depends)
	assert.EqualError(t, err, "dependency cycle when processing c")

	_, err = s.DependencyChain([]string{"a"}, BuildDepends)
	assert.NoError(t, err)
}

func TestDependencyChainMissingRecipe(t *testing.T) {
	s := newTestStore(t, nil, map[string]string{"app": minimal + "depends: [ghost]\n"})
	_, err := s.DependencyChain([]string{"app"}, Depends)
	assert.EqualError(t, err, "no recipe named ghost")
}

func TestRoundTripMinimalForm(t *testing.T) {
	doc := `
version: "2.1"
revision: "3"
license: BSD
license_file: COPYING
description: A compression library
url: https://example.org/%(version)s
depends: [zlib]
build: {type: python, installer: setuptools}
sources:
  - type: download
    url: https://example.org/foo-%(version)s.tar.gz
    md5: d41d8cd98f00b204e9800998ecf8427e
  - type: git
    url: https://example.org/foo.git
    tag: v%(version)s
    deep: true
test:
  native: false
`
	s := newTestStore(t, &fakeBackend{}, nil)
	orig, err := schema.Parse([]byte(doc))
	require.NoError(t, err)
	r, err := s.Decode("foo", []byte(doc))
	require.NoError(t, err)

	out, err := s.Encode(r)
	require.NoError(t, err)
	assert.True(t, schema.Equal(orig, out), "round trip changed the document")

	data, err := schema.Marshal(out)
	require.NoError(t, err)
	again, err := s.Decode("foo", data)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/foo-2.1.tar.gz", again.Sources[0].(*Download).URL.Value)
	assert.Equal(t, "v2.1", again.Sources[1].(*Git).Commit())
}

func TestRoundTripOmitsDefaults(t *testing.T) {
	s := newTestStore(t, &fakeBackend{}, nil)
	r, err := s.Decode("foo", []byte(minimal+`
build: none
sources:
  - type: git
    url: https://example.org/foo.git
    branch: main
    deep: false
  - type: download
    url: https://example.org/foo.tgz
    md5: abc
`))
	require.NoError(t, err)
	out, err := s.Encode(r)
	require.NoError(t, err)

	assert.Nil(t, out.Get("build"))
	git := out.Get("sources").Items[0]
	assert.Nil(t, git.Get("deep"))
	assert.Equal(t, []string{"type", "url", "branch"}, git.Keys())
	assert.Equal(t, "foo", r.Sources[1].(*Download).ExtractedDir())

	py, err := s.Decode("py", []byte(minimal+"build: {type: python, installer: distutils}\n"))
	require.NoError(t, err)
	out, err = s.Encode(py)
	require.NoError(t, err)
	assert.Equal(t, "python", out.Get("build").Value)
}

func TestGitSourceValidation(t *testing.T) {
	s := newTestStore(t, &fakeBackend{}, nil)
	tests := []struct {
		source string
		want   string
	}{
		{"{type: git, url: u, branch: main, tag: v1}", "cannot give both"},
		{"{type: git, url: u}", "must give one of"},
		{"git", "expected url in git source"},
		{"{type: svn, url: u}", "don't know how to process a svn source"},
		{"{type: download, url: u}", "expected md5 in download source"},
	}
	for _, tt := range tests {
		_, err := s.Decode("x", []byte(minimal+"sources: ["+tt.source+"]\n"))
		require.Error(t, err, tt.source)
		assert.Contains(t, err.Error(), tt.want, tt.source)
	}
}

func TestDownloadSHA1Optional(t *testing.T) {
	s := newTestStore(t, &fakeBackend{}, nil)
	r, err := s.Decode("x", []byte(minimal+"sources: [{type: download, url: 'https://x/x-1.0.tar.gz', md5: abc}]\n"))
	require.NoError(t, err)
	require.Len(t, r.Sources, 1)
	d := r.Sources[0].(*Download)
	assert.Equal(t, "abc", d.MD5)
	assert.Empty(t, d.SHA1)

	r, err = s.Decode("x", []byte(minimal+"sources: [{type: download, url: 'https://x/x-1.0.tar.gz', md5: abc, sha1: def}]\n"))
	require.NoError(t, err)
	assert.Equal(t, "def", r.Sources[0].(*Download).SHA1)
}

func TestTarballBasename(t *testing.T) {
	for in, want := range map[string]string{
		"foo-1.0.tar.gz":  "foo-1.0",
		"foo-1.0.tgz":     "foo-1.0",
		"foo-1.0.tar.xz":  "foo-1.0",
		"foo-1.0.tar.zst": "foo-1.0",
		"foo-1.0.zip":     "foo-1.0",
		"foo":             "foo",
	} {
		assert.Equal(t, want, TarballBasename(in), in)
	}
}

func TestPackagesWithTag(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, &fakeBackend{}, map[string]string{
		"python/six": minimal + "build: python\n",
		"python/app": minimal + "build: python\ndepends: [python/six]\n",
		"tool":       minimal + "build: autotools\ndepends: [python/six]\n",
	})

	six, err := s.Load("python/six")
	require.NoError(t, err)
	pkgs, err := s.Packages(ctx, six)
	require.NoError(t, err)
	assert.Equal(t, []string{"python-six", "python2-six"}, pkgNames(pkgs))

	def, err := s.PackagesWithTag(ctx, six, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"python-six"}, pkgNames(def))

	py2, err := s.PackagesWithTag(ctx, six, "python2")
	require.NoError(t, err)
	assert.Equal(t, []string{"python2-six"}, pkgNames(py2))

	fallback, err := s.PackagesWithTag(ctx, six, "ruby")
	require.NoError(t, err)
	assert.Equal(t, []string{"python-six"}, pkgNames(fallback))

	// Edges follow the constructing package's tag.
	app, err := s.Load("python/app")
	require.NoError(t, err)
	appPkgs, err := s.Packages(ctx, app)
	require.NoError(t, err)
	require.Len(t, appPkgs, 2)
	assert.Equal(t, []string{"python-six"}, pkgNames(appPkgs[0].Depends))
	assert.Equal(t, []string{"python2-six"}, pkgNames(appPkgs[1].Depends))
	assert.Same(t, pkgs[1], appPkgs[1].Depends[0])

	tool, err := s.Load("tool")
	require.NoError(t, err)
	toolPkgs, err := s.Packages(ctx, tool)
	require.NoError(t, err)
	assert.Equal(t, []string{"python-six"}, pkgNames(toolPkgs[0].Depends))
}

func TestPackagesWithTagWithoutDefault(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, &registeringBackend{}, map[string]string{
		"old": minimal + "build: legacy\n",
	})
	r, err := s.Load("old")
	require.NoError(t, err)

	_, err = s.PackagesWithTag(ctx, r, "")
	assert.EqualError(t, err, "can't find default package for old")

	_, err = s.PackagesWithTag(ctx, r, "python3")
	assert.EqualError(t, err, "can't find python3 package for old")

	pkgs, err := s.PackagesWithTag(ctx, r, "python2")
	require.NoError(t, err)
	assert.Equal(t, []string{"python2-old"}, pkgNames(pkgs))
}

func TestNativeResolution(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{native: map[string]bool{"zlib": true}}
	s := newTestStore(t, backend, map[string]string{
		"zlib":     minimal,
		"mylib":    minimal,
		"forced":   minimal + "test:\n  native: false\n",
		"renamed":  minimal + "test:\n  native: libpng16\n",
		"devel":    minimal + "sources: [{type: git, url: 'https://x/devel.git', branch: main}]\n",
		"sys/zlib": minimal + "sources: [{type: git, url: 'https://x/zlib.git', branch: main}]\n",
	})

	check := func(name, wantPkg string, wantNative bool) {
		t.Helper()
		r, err := s.Load(name)
		require.NoError(t, err)
		pkgs, err := s.Packages(ctx, r)
		require.NoError(t, err)
		require.Len(t, pkgs, 1)
		assert.Equal(t, wantPkg, pkgs[0].Name, name)
		assert.Equal(t, wantNative, pkgs[0].Native, name)
		assert.NotNil(t, pkgs[0].Artifact)
	}
	check("zlib", "zlib", true)
	check("mylib", "mylib", false)
	check("forced", "forced", false)
	check("renamed", "libpng16", true)
	check("devel", "devel-git", false)
	check("sys/zlib", "zlib", true)

	assert.NotContains(t, backend.checked, "forced")
	assert.NotContains(t, backend.checked, "libpng16")

	_, err := s.Decode("bad", []byte(minimal+"test:\n  native: true\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected value for test.native")

	for _, spelling := range []string{"no", "off", "False", "NO"} {
		r, err := s.Decode("spelled", []byte(minimal+"test:\n  native: "+spelling+"\n"))
		require.NoError(t, err, spelling)
		assert.Equal(t, NativeOverride{Set: true}, r.Native, spelling)
	}
	_, err = s.Decode("bad", []byte(minimal+"test:\n  native: yes\n"))
	assert.ErrorContains(t, err, "unexpected value for test.native")
}

func TestPackagesCycle(t *testing.T) {
	s := newTestStore(t, &fakeBackend{}, map[string]string{
		"a": minimal + "build_depends: [b]\n",
		"b": minimal + "depends: [a]\n",
	})
	a, err := s.Load("a")
	require.NoError(t, err)
	_, err = s.Packages(context.Background(), a)
	assert.EqualError(t, err, "dependency cycle when processing a")

	// A failed computation is not cached as a success.
	_, err = s.Packages(context.Background(), a)
	assert.Error(t, err)
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0", 0},
		{"1.0", "1.0.0", 0},
		{"1.2", "1.10", -1},
		{"2.0", "1.99", 1},
		{"1.0a", "1.0b", -1},
		{"1.0~rc1", "1.0", -1},
		{"1.0~rc1", "1.0~rc2", -1},
		{"1.0+git1", "1.0", 1},
		{"1.0+git1", "1.0.1", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
		assert.Equal(t, -tt.want, CompareVersions(tt.b, tt.a), "%s vs %s", tt.b, tt.a)
	}
	assert.Equal(t, -1, CompareFullVersions("1.0-1", "1.0-2"))
	assert.Equal(t, 1, CompareFullVersions("1.1-1", "1.0-9"))
}
