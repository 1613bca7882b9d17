package arch

import (
	"buzzy/internal/descriptor"
	"buzzy/internal/recipe"
	"buzzy/internal/usererr"
)

// licenses maps recipe license names to the names Arch uses. Anything else
// is "custom".
var licenses = map[string]string{
	"AGPL":    "AGPL",
	"AGPL3":   "AGPL3",
	"Apache":  "Apache",
	"BSD":     "BSD",
	"BSD3":    "BSD",
	"GPL":     "GPL",
	"GPL2":    "GPL2",
	"GPL3":    "GPL3",
	"LGPL":    "LGPL",
	"LGPL2.1": "LGPL2.1",
	"LGPL3":   "LGPL3",
	"MIT":     "MIT",
	"Perl":    "PerlArtistic",
	"PHP":     "PHP",
	"Python":  "Python",
	"Ruby":    "RUBY",
	"zlib":    "ZLIB",
}

// licenseFileNeeded lists the Arch licenses whose text must ship with the
// package.
var licenseFileNeeded = map[string]bool{
	"custom": true,
	"BSD":    true,
	"MIT":    true,
	"Python": true,
	"ZLIB":   true,
}

// License returns the Arch name of a recipe license.
func License(name string) string {
	if l, ok := licenses[name]; ok {
		return l
	}
	return "custom"
}

func licenseChecker(r *recipe.Recipe) descriptor.Producer {
	return descriptor.ProducerFunc(func(doc *descriptor.Document) error {
		license := License(r.License)
		doc.List("license").Append(license)
		if !licenseFileNeeded[license] {
			return nil
		}
		if r.LicenseFile.Value == "" {
			return usererr.Errorf("Need a license_file for %s license", license)
		}
		return doc.Code("package").Append(descriptor.InstallPost, `
			install -Dm644 "%(license_file)s" \
			    "$pkgdir/usr/share/licenses/$pkgname/LICENSE"
		`, descriptor.Vars(map[string]string{"license_file": r.LicenseFile.Value}))
	})
}
