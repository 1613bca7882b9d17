package recipe

import (
	"path"
	"strings"

	"buzzy/internal/schema"
	"buzzy/internal/usererr"
)

// Download fetches a release archive and checks it against its digests.
type Download struct {
	URL  schema.Text
	MD5  string
	// SHA1 is optional; when set it is checked as well.
	SHA1 string
	// Extracted is the directory the archive unpacks into. Empty means the
	// archive name without its extension.
	Extracted string
}

func (*Download) Type() string { return "download" }

func (*Download) UpdatePackages(*Recipe, []*Package) {}

// Filename is the last path segment of the URL.
func (d *Download) Filename() string {
	u := d.URL.Value
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return path.Base(u)
}

// ExtractedDir returns Extracted or its default.
func (d *Download) ExtractedDir() string {
	if d.Extracted != "" {
		return d.Extracted
	}
	return TarballBasename(d.Filename())
}

var archiveExtensions = []string{
	".tar.gz", ".tgz", ".tar.bz2", ".tbz2", ".tbz", ".tar.xz", ".txz",
	".tar.zst", ".tzst", ".tar.lz", ".tar", ".zip",
}

// TarballBasename strips a known archive extension from name.
func TarballBasename(name string) string {
	for _, ext := range archiveExtensions {
		if strings.HasSuffix(name, ext) && len(name) > len(ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

var downloadSpec = schema.NewRecord[Download]("download source").MustAdd(
	schema.TextField("url", func(d *Download) *schema.Text { return &d.URL }).Templated().Required(),
	schema.String("md5", func(d *Download) *string { return &d.MD5 }).Required(),
	schema.String("sha1", func(d *Download) *string { return &d.SHA1 }),
	schema.String("extracted", func(d *Download) *string { return &d.Extracted }),
)

// Git checks out a branch or a tag of a repository.
type Git struct {
	URL    schema.Text
	Branch schema.Text
	Tag    schema.Text
	// Deep clones the full history instead of a single revision.
	Deep bool
}

func (*Git) Type() string { return "git" }

// Commit is the branch or tag to check out.
func (g *Git) Commit() string {
	if g.Branch.Value != "" {
		return g.Branch.Value
	}
	return g.Tag.Value
}

// DevBuild reports whether the source follows a branch.
func (g *Git) DevBuild() bool { return g.Branch.Raw != "" }

// RepoName is the directory git clone creates.
func (g *Git) RepoName() string {
	return strings.TrimSuffix(path.Base(strings.TrimRight(g.URL.Value, "/")), ".git")
}

// UpdatePackages marks development builds: every non-native package of the
// recipe gets a "-git" suffix.
func (g *Git) UpdatePackages(_ *Recipe, pkgs []*Package) {
	if !g.DevBuild() {
		return
	}
	for _, p := range pkgs {
		if !p.Native && !strings.HasSuffix(p.Name, "-git") {
			p.Name += "-git"
		}
	}
}

var gitSpec = schema.NewRecord[Git]("git source").MustAdd(
	schema.TextField("url", func(g *Git) *schema.Text { return &g.URL }).Templated().Required(),
	schema.TextField("branch", func(g *Git) *schema.Text { return &g.Branch }).Templated(),
	schema.TextField("tag", func(g *Git) *schema.Text { return &g.Tag }).Templated(),
	schema.Bool("deep", func(g *Git) *bool { return &g.Deep }).Default(schema.BoolNode(false)),
).Validate(func(g *Git) error {
	switch {
	case g.Branch.Raw != "" && g.Tag.Raw != "":
		return usererr.New("cannot give both branch and tag in git source")
	case g.Branch.Raw == "" && g.Tag.Raw == "":
		return usererr.New("must give one of branch or tag in git source")
	}
	return nil
})

func registerSources(v *schema.Variants[Source]) error {
	if err := schema.RegisterRecord(v, "download", downloadSpec); err != nil {
		return err
	}
	return schema.RegisterRecord(v, "git", gitSpec)
}
