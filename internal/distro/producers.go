package distro

import (
	"fmt"
	"strings"

	"buzzy/internal/descriptor"
	"buzzy/internal/recipe"
)

// Flavor holds what differs between backends rendering the same kind of
// descriptor.
type Flavor struct {
	// Arch is the machine architecture.
	Arch string
	// Python names the interpreter, and its package, for a major version.
	Python func(major int) string
	// CloneInBuild clones git sources from the build function. When false
	// the backend checks them out before running it.
	CloneInBuild bool
}

// Producers returns the producers shared by every descriptor of pkg:
// metadata, then one per source, then the builder.
func Producers(pkg *recipe.Package, fl Flavor) ([]descriptor.Producer, error) {
	producers := []descriptor.Producer{Metadata(pkg, fl.Arch)}
	for _, src := range pkg.Recipe.Sources {
		p, err := SourceProducer(src, fl)
		if err != nil {
			return nil, err
		}
		producers = append(producers, p)
	}
	p, err := BuilderProducer(pkg, fl)
	if err != nil {
		return nil, err
	}
	return append(producers, p), nil
}

// Metadata sets the package identity and its resolved dependencies.
func Metadata(pkg *recipe.Package, arch string) descriptor.Producer {
	return descriptor.ProducerFunc(func(doc *descriptor.Document) error {
		r := pkg.Recipe
		doc.List("arch").Append(arch)
		doc.Scalar("pkgname").Set(pkg.Name)
		doc.Scalar("pkgver").Set(r.Version)
		doc.Scalar("pkgrel").Set(r.Revision)
		doc.Scalar("pkgdesc").Set(strings.TrimSpace(r.Description))
		doc.Scalar("url").Set(r.URL.Value)
		for _, dep := range pkg.Depends {
			doc.List("depends").Append(dep.Name)
		}
		for _, dep := range pkg.BuildDepends {
			doc.List("makedepends").Append(dep.Name)
		}
		return nil
	})
}

// SourceProducer adds the fetch and change-directory steps of src.
func SourceProducer(src recipe.Source, fl Flavor) (descriptor.Producer, error) {
	switch src := src.(type) {
	case *recipe.Download:
		return descriptor.ProducerFunc(func(doc *descriptor.Document) error {
			doc.List("source").Append(src.URL.Value)
			doc.List("md5sums").Append(src.MD5)
			if src.SHA1 != "" {
				doc.List("sha1sums").Append(src.SHA1)
			}
			vars := descriptor.Vars(map[string]string{"dir": src.ExtractedDir()})
			if err := doc.Code("build").Append(descriptor.BuildCD, `cd "$srcdir/%(dir)s"`, vars); err != nil {
				return err
			}
			return doc.Code("package").Append(descriptor.InstallCD, `cd "$srcdir/%(dir)s"`, vars)
		}), nil
	case *recipe.Git:
		return descriptor.ProducerFunc(func(doc *descriptor.Document) error {
			vars := descriptor.Vars(map[string]string{
				"repo":   src.RepoName(),
				"url":    src.URL.Value,
				"commit": src.Commit(),
			})
			build := doc.Code("build")
			if fl.CloneInBuild {
				doc.List("makedepends").Append("git")
				args := `--depth 1 --branch "%(commit)s" `
				if src.Deep {
					args = ""
				}
				err := build.Append(descriptor.BuildUnpack, `
					rm -rf "${srcdir}/%(repo)s"
					cd "${srcdir}"
					git clone `+args+`"%(url)s"
					cd "${srcdir}/%(repo)s"
					git checkout -b buzzy-build origin/"%(commit)s"
				`, vars)
				if err != nil {
					return err
				}
			} else if err := build.Append(descriptor.BuildCD, `cd "$srcdir/%(repo)s"`, vars); err != nil {
				return err
			}
			return doc.Code("package").Append(descriptor.InstallCD, `cd "$srcdir/%(repo)s"`, vars)
		}), nil
	}
	return nil, fmt.Errorf("no descriptor producer for %s sources", src.Type())
}

// BuilderProducer adds the build and install steps of the recipe's builder.
func BuilderProducer(pkg *recipe.Package, fl Flavor) (descriptor.Producer, error) {
	switch b := pkg.Recipe.Builder.(type) {
	case *recipe.NoBuild:
		return descriptor.ProducerFunc(func(*descriptor.Document) error { return nil }), nil
	case *recipe.Autotools:
		return descriptor.ProducerFunc(autotools), nil
	case *recipe.Cmake:
		return descriptor.ProducerFunc(cmake), nil
	case *recipe.Python:
		major := 3
		if pkg.DepTag == "python2" {
			major = 2
		}
		return descriptor.ProducerFunc(func(doc *descriptor.Document) error {
			return python(doc, b, fl.Python(major), major)
		}), nil
	}
	return nil, fmt.Errorf("no descriptor producer for %s builder", pkg.Recipe.Builder.Type())
}

func autotools(doc *descriptor.Document) error {
	doc.List("options").Append("!libtool")
	build := doc.Code("build")
	if err := build.Append(descriptor.BuildConfigure, "./configure --prefix=/usr", nil); err != nil {
		return err
	}
	if err := build.Append(descriptor.BuildMake, "make", nil); err != nil {
		return err
	}
	return doc.Code("package").Append(descriptor.InstallStage, `make DESTDIR="$pkgdir" install`, nil)
}

func cmake(doc *descriptor.Document) error {
	doc.List("makedepends").Append("cmake")
	build := doc.Code("build")
	err := build.Append(descriptor.BuildConfigure, `
		cmake_src=$(pwd)
		mkdir -p "${startdir}/cmake-build"
		pushd "${startdir}/cmake-build"
		cmake -DCMAKE_INSTALL_PREFIX=/usr "${cmake_src}"
		popd
	`, nil)
	if err != nil {
		return err
	}
	err = build.Append(descriptor.BuildMake, `
		pushd "${startdir}/cmake-build"
		make
		popd
	`, nil)
	if err != nil {
		return err
	}
	return doc.Code("package").Append(descriptor.InstallStage, `
		pushd "${startdir}/cmake-build"
		make DESTDIR="$pkgdir" install
		popd
	`, nil)
}

func python(doc *descriptor.Document, b *recipe.Python, interp string, major int) error {
	doc.List("depends").Append(interp)
	if b.NeedsSetuptools() {
		doc.List("depends").Append(interp + "-distribute")
	}
	vars := descriptor.Vars(map[string]string{"python": interp})
	pkg := doc.Code("package")
	if err := pkg.Append(descriptor.InstallStage, `%(python)s setup.py install --root="$pkgdir/" --optimize=1`, vars); err != nil {
		return err
	}
	if major != 2 {
		return nil
	}
	// python2 scripts share /usr/bin with the python3 package.
	return pkg.Append(descriptor.InstallStage, `
		for c in "$pkgdir/usr/bin/"*; do
			[ -e "${c}" ] || continue
			mv "${c}" "${c}2"
		done
	`, nil)
}
