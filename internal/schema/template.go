package schema

import (
	"strings"

	"buzzy/internal/usererr"
)

// Interpolate substitutes %(name)s placeholders using lookup. "%%" is a
// literal percent sign and any other "%" is copied through unchanged.
func Interpolate(s string, lookup func(name string) (string, bool)) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case '%':
			b.WriteByte('%')
			i++
		case '(':
			end := strings.IndexByte(s[i+2:], ')')
			if end < 0 {
				return "", usererr.Errorf("unterminated placeholder in %q", s)
			}
			name := s[i+2 : i+2+end]
			next := i + 2 + end + 1
			if next >= len(s) || s[next] != 's' {
				return "", usererr.Errorf("placeholder %%(%s) in %q must be followed by s", name, s)
			}
			value, ok := lookup(name)
			if !ok {
				return "", usererr.Errorf("unknown template variable %s in %q", name, s)
			}
			b.WriteString(value)
			i = next
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// ScalarVars collects the top-level non-null scalar entries of a mapping.
func ScalarVars(n *Node) map[string]string {
	vars := make(map[string]string)
	if n == nil || n.Kind != MappingNode {
		return vars
	}
	for _, p := range n.Pairs {
		if p.Value.Kind == ScalarNode && !p.Value.IsNull() {
			vars[p.Key] = p.Value.Value
		}
	}
	return vars
}

// Context is the state shared by one decode pass over a document.
type Context struct {
	// Root is the document being decoded. Templated fields draw their
	// placeholders from its top-level scalars.
	Root *Node
	// Extra supplies placeholders the document does not declare itself.
	Extra map[string]string

	vars map[string]string
}

// Lookup resolves a template variable.
func (c *Context) Lookup(name string) (string, bool) {
	if c.vars == nil {
		c.vars = ScalarVars(c.Root)
	}
	if v, ok := c.vars[name]; ok {
		return v, true
	}
	v, ok := c.Extra[name]
	return v, ok
}

// Expand interpolates s against the document root.
func (c *Context) Expand(s string) (string, error) {
	return Interpolate(s, c.Lookup)
}
