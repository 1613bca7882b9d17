package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentRendering(t *testing.T) {
	doc, err := Make(
		ProducerFunc(func(d *Document) error {
			d.Scalar("pkgname").Set("libfoo")
			d.Scalar("pkgdesc").Set("Foo's library")
			d.List("arch").Append("x86_64")
			d.List("depends").Append("zlib", "openssl")
			return nil
		}),
		ProducerFunc(func(d *Document) error {
			build := d.Code("build")
			require.NoError(t, build.Append(BuildMake, "make", nil))
			require.NoError(t, build.Append(BuildConfigure, "./configure --prefix=/usr", nil))
			require.NoError(t, build.Append(BuildCD, `cd "$srcdir/%(dir)s"`, Vars(map[string]string{"dir": "libfoo-1.0"})))
			return d.Code("package").Append(InstallStage, `
				make DESTDIR="$pkgdir" install
				if true; then
				    echo 100%%
				fi
			`, Vars(nil))
		}),
	)
	require.NoError(t, err)
	doc.List("empty")

	assert.Equal(t, `arch=('x86_64')
build () {
  cd "$srcdir/libfoo-1.0"
  ./configure --prefix=/usr
  make
}
depends=('zlib' 'openssl')
package () {
  make DESTDIR="$pkgdir" install
  if true; then
      echo 100%
  fi
}
pkgdesc='Foo'\''s library'
pkgname='libfoo'
`, doc.String())
}

func TestCodeKeepsInsertionOrderWithinPriority(t *testing.T) {
	c := &Code{}
	require.NoError(t, c.Append(InstallPost, "b", nil))
	require.NoError(t, c.Append(InstallCD, "a", nil))
	require.NoError(t, c.Append(InstallPost, "c", nil))
	assert.Equal(t, []string{"a", "b", "c"}, c.Lines())
}

func TestCodeUnknownPlaceholder(t *testing.T) {
	c := &Code{}
	err := c.Append(BuildUnpack, "git clone %(url)s", Vars(map[string]string{}))
	assert.ErrorContains(t, err, "unknown template variable url")
}

func TestVariableKindMismatchPanics(t *testing.T) {
	d := New()
	d.List("depends")
	assert.Panics(t, func() { d.Scalar("depends") })
}

func TestTrim(t *testing.T) {
	assert.Equal(t, []string{"a", "  b", "", "c"}, Trim("\n\n    a\n      b\n\n    c\n  \n"))
}
