package fetch

import (
	"archive/tar"
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buzzy/internal/executor"
	"buzzy/internal/recipe"
	"buzzy/internal/schema"
	"buzzy/internal/usererr"
)

func md5hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func newFetcher(t *testing.T, runner executor.Runner) *Fetcher {
	f := New(t.TempDir(), runner, nil)
	f.Quiet = true
	return f
}

func TestDownloadCachesVerifiedFiles(t *testing.T) {
	body := []byte("release contents")
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := newFetcher(t, nil)
	d := &recipe.Download{URL: schema.Plain(srv.URL + "/libfoo-1.0.tar.gz"), MD5: md5hex(body)}

	path, err := f.Download(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "libfoo-1.0.tar.gz", filepath.Base(path)[17:])
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, got)
	assert.FileExists(t, path+".b3")

	_, err = f.Download(context.Background(), d)
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())

	// A corrupted cache entry is fetched again.
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	_, err = f.Download(context.Background(), d)
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestDownloadRechecksChangedDigests(t *testing.T) {
	var body atomic.Value
	body.Store([]byte("release v1"))
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(body.Load().([]byte))
	}))
	defer srv.Close()

	f := newFetcher(t, nil)
	url := schema.Plain(srv.URL + "/libfoo-1.0.tar.gz")
	_, err := f.Download(context.Background(), &recipe.Download{URL: url, MD5: md5hex([]byte("release v1"))})
	require.NoError(t, err)

	// The cached file does not match the new digest and upstream still
	// serves the old release.
	v2 := &recipe.Download{URL: url, MD5: md5hex([]byte("release v2"))}
	_, err = f.Download(context.Background(), v2)
	assert.ErrorContains(t, err, "md5 checksum mismatch")
	assert.EqualValues(t, 2, hits.Load())

	body.Store([]byte("release v2"))
	path, err := f.Download(context.Background(), v2)
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "release v2", string(got))
	assert.EqualValues(t, 3, hits.Load())

	_, err = f.Download(context.Background(), v2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, hits.Load())
}

func TestDownloadChecksumMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tampered"))
	}))
	defer srv.Close()

	f := newFetcher(t, nil)
	d := &recipe.Download{URL: schema.Plain(srv.URL + "/x.tar"), MD5: md5hex([]byte("original"))}
	_, err := f.Download(context.Background(), d)
	require.Error(t, err)
	ue, ok := usererr.As(err)
	require.True(t, ok)
	assert.Contains(t, ue.Msg, "md5 checksum mismatch")
	assert.NoFileExists(t, f.CachePath(d))
}

func TestDownloadHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := newFetcher(t, nil)
	_, err := f.Download(context.Background(), &recipe.Download{URL: schema.Plain(srv.URL + "/x.tar"), MD5: "00"})
	assert.ErrorContains(t, err, "404")
}

func TestVerifySHA1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	assert.NoError(t, Verify(path, Digests{SHA1: "a9993e364706816aba3e25717850c26c9cd0d89d"}))
	assert.Error(t, Verify(path, Digests{SHA1: "a9993e364706816aba3e25717850c26c9cd0d89e"}))
	assert.NoError(t, Verify(path, Digests{}))
}

func writeTarGz(t *testing.T, path string, files map[string]string) {
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	gz := pgzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}

func TestExtractTarGz(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "cached")
	writeTarGz(t, archive, map[string]string{"libfoo-1.0/configure": "#!/bin/sh\n"})

	dest := filepath.Join(dir, "src")
	require.NoError(t, Extract(archive, dest, "libfoo-1.0.tar.gz"))
	assert.FileExists(t, filepath.Join(dest, "libfoo-1.0", "configure"))
}

func TestExtractRejectsEscapingPaths(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tgz")
	writeTarGz(t, archive, map[string]string{"../escape": "x"})
	assert.ErrorContains(t, Extract(archive, filepath.Join(dir, "src"), "evil.tgz"), "illegal file path")
}

func writeTar(t *testing.T, path string, headers ...*tar.Header) {
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	tw := tar.NewWriter(f)
	for _, hdr := range headers {
		body := []byte("owned")
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(body))
			hdr.Mode = 0o644
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write(body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
}

func TestExtractRefusesWritingThroughSymlinks(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(dir, "outside")
	require.NoError(t, os.MkdirAll(outside, 0o755))

	archive := filepath.Join(dir, "evil.tar")
	writeTar(t, archive,
		&tar.Header{Name: "pkg/evil", Typeflag: tar.TypeSymlink, Linkname: outside},
		&tar.Header{Name: "pkg/evil/owned.txt", Typeflag: tar.TypeReg},
	)
	err := Extract(archive, filepath.Join(dir, "src"), "evil.tar")
	assert.ErrorContains(t, err, "illegal file path")
	assert.NoFileExists(t, filepath.Join(outside, "owned.txt"))
}

func TestExtractReplacesSymlinkedFiles(t *testing.T) {
	dir := t.TempDir()
	victim := filepath.Join(dir, "victim")
	require.NoError(t, os.WriteFile(victim, []byte("keep"), 0o644))

	archive := filepath.Join(dir, "swap.tar")
	writeTar(t, archive,
		&tar.Header{Name: "link", Typeflag: tar.TypeSymlink, Linkname: victim},
		&tar.Header{Name: "link", Typeflag: tar.TypeReg},
	)
	dest := filepath.Join(dir, "src")
	require.NoError(t, Extract(archive, dest, "swap.tar"))

	got, err := os.ReadFile(victim)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(got))
	got, err = os.ReadFile(filepath.Join(dest, "link"))
	require.NoError(t, err)
	assert.Equal(t, "owned", string(got))
}

func TestExtractFollowsInternalSymlinks(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "ok.tar")
	writeTar(t, archive,
		&tar.Header{Name: "usr/lib/", Typeflag: tar.TypeDir, Mode: 0o755},
		&tar.Header{Name: "usr/lib64", Typeflag: tar.TypeSymlink, Linkname: "lib"},
		&tar.Header{Name: "usr/lib64/libfoo.so", Typeflag: tar.TypeReg},
	)
	dest := filepath.Join(dir, "root")
	require.NoError(t, Extract(archive, dest, "ok.tar"))
	assert.FileExists(t, filepath.Join(dest, "usr", "lib", "libfoo.so"))
}

func TestExtractUnsupported(t *testing.T) {
	assert.ErrorContains(t, Extract("/nonexistent", t.TempDir(), "x.rar"), "unsupported archive format")
}

func TestTarballRoundTrip(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "root")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "usr", "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "usr", "bin", "tool"), []byte("bin"), 0o755))
	require.NoError(t, os.Symlink("tool", filepath.Join(root, "usr", "bin", "t")))

	out := filepath.Join(dir, "tool-1.0-1.tar.zst")
	require.NoError(t, CreateTarball(root, out))

	names, err := ListTarball(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"usr/", "usr/bin/", "usr/bin/t", "usr/bin/tool"}, names)

	dest := filepath.Join(dir, "dest")
	require.NoError(t, Extract(out, dest, filepath.Base(out)))
	target, err := os.Readlink(filepath.Join(dest, "usr", "bin", "t"))
	require.NoError(t, err)
	assert.Equal(t, "tool", target)
	info, err := os.Stat(filepath.Join(dest, "usr", "bin", "tool"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestCloneCommands(t *testing.T) {
	rec := &executor.Recorder{}
	f := newFetcher(t, rec)
	dir := t.TempDir()

	shallow := &recipe.Git{URL: schema.Plain("https://example.com/org/libbar.git"), Tag: schema.Plain("v1.2")}
	dest, err := f.Clone(context.Background(), shallow, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "libbar"), dest)

	deep := &recipe.Git{URL: schema.Plain("https://example.com/org/libbar"), Branch: schema.Plain("main"), Deep: true}
	_, err = f.Clone(context.Background(), deep, dir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"git clone --depth 1 --branch v1.2 https://example.com/org/libbar.git libbar",
		"git clone https://example.com/org/libbar libbar",
		"git checkout main",
	}, rec.Lines())
}
