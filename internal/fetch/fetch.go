// Package fetch downloads recipe sources into a shared cache and unpacks
// them.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"buzzy/internal/executor"
	"buzzy/internal/logging"
	"buzzy/internal/recipe"
	"buzzy/internal/usererr"
)

// Fetcher retrieves sources.
type Fetcher struct {
	CacheDir string
	Client   *http.Client
	// Quiet hides the progress bar.
	Quiet bool
	// Runner runs git.
	Runner executor.Runner
	Log    *zap.Logger
}

// New returns a fetcher caching downloads under cacheDir.
func New(cacheDir string, runner executor.Runner, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{
		CacheDir: cacheDir,
		Client:   newHTTPClient(),
		Runner:   runner,
		Log:      log,
	}
}

func newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSHandshakeTimeout = 30 * time.Second
	return &http.Client{Transport: transport, Timeout: 300 * time.Second}
}

// CachePath is where the download of d is kept.
func (f *Fetcher) CachePath(d *recipe.Download) string {
	return filepath.Join(f.CacheDir, hashString(d.URL.Value)[:16]+"-"+d.Filename())
}

func lock(path string) (func(), error) {
	lf, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	if err := unix.Flock(int(lf.Fd()), unix.LOCK_EX); err != nil {
		lf.Close()
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", path, err)
	}
	return func() {
		_ = unix.Flock(int(lf.Fd()), unix.LOCK_UN)
		lf.Close()
	}, nil
}

// Download returns the cached, verified file of d, downloading it when
// missing or corrupt.
func (f *Fetcher) Download(ctx context.Context, d *recipe.Download) (string, error) {
	if err := os.MkdirAll(f.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory %s: %w", f.CacheDir, err)
	}
	path := f.CachePath(d)
	unlock, err := lock(path)
	if err != nil {
		return "", err
	}
	defer unlock()

	want := Digests{MD5: d.MD5, SHA1: d.SHA1}
	if _, err := os.Stat(path); err == nil {
		if verifiedBefore(path, want) {
			f.Log.Debug("using cached download", zap.String("path", path))
			return path, nil
		}
		if err := Verify(path, want); err == nil {
			return path, writeSidecar(path, want)
		}
		logging.Warn("Cached %s is corrupt, downloading it again", d.Filename())
		_ = os.Remove(path)
	}

	if !f.Quiet {
		logging.Step("Downloading %s", d.URL.Value)
	}
	tmp := path + ".part"
	if err := f.get(ctx, d.URL.Value, tmp, d.Filename()); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := Verify(tmp, want); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to move download into cache: %w", err)
	}
	return path, writeSidecar(path, want)
}

func (f *Fetcher) get(ctx context.Context, url, dest, label string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return usererr.Errorf("invalid download URL %s: %v", url, err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return usererr.Wrap(err, "downloading "+url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return usererr.Errorf("downloading %s failed with status: %s", url, resp.Status)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", dest, err)
	}
	defer out.Close()

	var w io.Writer = out
	if !f.Quiet {
		bar := progressbar.DefaultBytes(resp.ContentLength, label)
		defer bar.Close()
		w = io.MultiWriter(out, bar)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to write to destination file: %w", err)
	}
	return out.Close()
}

// Clone checks g out into dir/<repo>, replacing any earlier checkout.
func (f *Fetcher) Clone(ctx context.Context, g *recipe.Git, dir string) (string, error) {
	dest := filepath.Join(dir, g.RepoName())
	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("failed to remove old checkout %s: %w", dest, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	args := []string{"clone"}
	if !g.Deep {
		args = append(args, "--depth", "1", "--branch", g.Commit())
	}
	args = append(args, g.URL.Value, g.RepoName())
	if err := f.Runner.Run(ctx, &executor.Command{Name: "git", Args: args, Dir: dir}); err != nil {
		return "", err
	}
	if g.Deep {
		checkout := &executor.Command{Name: "git", Args: []string{"checkout", g.Commit()}, Dir: dest}
		if err := f.Runner.Run(ctx, checkout); err != nil {
			return "", err
		}
	}
	return dest, nil
}

// Unpack places the sources of r in dir: downloads are extracted and git
// repositories cloned.
func (f *Fetcher) Unpack(ctx context.Context, r *recipe.Recipe, dir string) error {
	for _, src := range r.Sources {
		switch src := src.(type) {
		case *recipe.Download:
			path, err := f.Download(ctx, src)
			if err != nil {
				return err
			}
			dest := filepath.Join(dir, src.ExtractedDir())
			if err := os.RemoveAll(dest); err != nil {
				return err
			}
			if err := Extract(path, dir, src.Filename()); err != nil {
				return usererr.Wrap(err, "unpacking "+src.Filename())
			}
		case *recipe.Git:
			if _, err := f.Clone(ctx, src, dir); err != nil {
				return err
			}
		default:
			return fmt.Errorf("don't know how to fetch a %s source", src.Type())
		}
	}
	return nil
}

// Prefetch downloads every download source of r without unpacking.
func (f *Fetcher) Prefetch(ctx context.Context, r *recipe.Recipe) ([]string, error) {
	var paths []string
	for _, src := range r.Sources {
		if d, ok := src.(*recipe.Download); ok {
			path, err := f.Download(ctx, d)
			if err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}
