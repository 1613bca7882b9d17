package schema

import (
	"fmt"
	"strings"

	"buzzy/internal/usererr"
)

// Field describes one dotted path of a Record and how to decode and encode
// its value.
type Field[T any] struct {
	path      string
	segments  []string
	required  bool
	def       *Node
	templated bool

	// rawTemplate marks fields that expand placeholders themselves and keep
	// the unexpanded text for encoding.
	rawTemplate bool

	decode func(dst *T, n *Node, c *Context) error
	encode func(src *T) (*Node, error)
}

// NewField builds a field from a decode and an encode function. encode may
// return nil to leave the field out of the encoded document.
func NewField[T any](path string, decode func(dst *T, n *Node, c *Context) error, encode func(src *T) (*Node, error)) *Field[T] {
	return &Field[T]{
		path:     path,
		segments: strings.Split(path, "."),
		decode:   decode,
		encode:   encode,
	}
}

// Required marks the field as mandatory.
func (f *Field[T]) Required() *Field[T] {
	f.required = true
	return f
}

// Default sets the value decoded when the field is absent. Encoding omits the
// field whenever it equals this value.
func (f *Field[T]) Default(n *Node) *Field[T] {
	f.def = n
	return f
}

// Templated enables %(name)s substitution on the field's scalar value.
func (f *Field[T]) Templated() *Field[T] {
	f.templated = true
	return f
}

// Path returns the dotted path of the field.
func (f *Field[T]) Path() string { return f.path }

type trieNode[T any] struct {
	children map[string]*trieNode[T]
	field    *Field[T]
}

// Record is the field specification of a typed record T.
type Record[T any] struct {
	kind     string
	fields   []*Field[T]
	root     *trieNode[T]
	validate func(*T) error
}

// NewRecord returns an empty specification. kind names the record in
// validation errors ("recipe", "git source", ...).
func NewRecord[T any](kind string) *Record[T] {
	return &Record[T]{kind: kind, root: &trieNode[T]{children: map[string]*trieNode[T]{}}}
}

// Kind returns the record name used in error messages.
func (r *Record[T]) Kind() string { return r.kind }

// Add registers a field. A path that repeats or nests under an existing
// field path is rejected.
func (r *Record[T]) Add(f *Field[T]) error {
	if f.path == "" {
		return fmt.Errorf("%s: empty field path", r.kind)
	}
	node := r.root
	for i, seg := range f.segments {
		if seg == "" {
			return fmt.Errorf("%s: invalid field path %q", r.kind, f.path)
		}
		if node.field != nil {
			return fmt.Errorf("%s: field %s conflicts with %s", r.kind, f.path, node.field.path)
		}
		child, ok := node.children[seg]
		if !ok {
			child = &trieNode[T]{children: map[string]*trieNode[T]{}}
			node.children[seg] = child
		}
		node = child
		if i == len(f.segments)-1 {
			if node.field != nil {
				return fmt.Errorf("%s: duplicate field %s", r.kind, f.path)
			}
			if len(node.children) > 0 {
				return fmt.Errorf("%s: field %s conflicts with nested fields", r.kind, f.path)
			}
		}
	}
	node.field = f
	r.fields = append(r.fields, f)
	return nil
}

// MustAdd registers fields and panics on a conflict. It is meant for
// package-level specifications whose paths are fixed at compile time.
func (r *Record[T]) MustAdd(fields ...*Field[T]) *Record[T] {
	for _, f := range fields {
		if err := r.Add(f); err != nil {
			panic(err)
		}
	}
	return r
}

// Validate installs a check that runs after every successful decode.
func (r *Record[T]) Validate(fn func(*T) error) *Record[T] {
	r.validate = fn
	return r
}

// Decode fills dst from n. A null node decodes as an empty mapping. When c is
// nil, n itself is the document root for templating.
func (r *Record[T]) Decode(n *Node, c *Context, dst *T) error {
	if n.IsNull() {
		n = Map()
	}
	if c == nil {
		c = &Context{Root: n}
	}
	set := make(map[*Field[T]]bool, len(r.fields))
	if err := r.visit(r.root, n, c, dst, set); err != nil {
		return err
	}
	for _, f := range r.fields {
		if set[f] {
			continue
		}
		if f.required {
			return usererr.Errorf("expected %s in %s%s", f.path, r.kind, n.at())
		}
		if f.def != nil {
			if err := r.apply(f, f.def.Clone(), c, dst); err != nil {
				return err
			}
		}
	}
	if r.validate != nil {
		return r.validate(dst)
	}
	return nil
}

func (r *Record[T]) visit(t *trieNode[T], n *Node, c *Context, dst *T, set map[*Field[T]]bool) error {
	if n.Kind != MappingNode {
		return usererr.Errorf("expected a map for %s, got a %s%s", r.kind, n.kindName(), n.at())
	}
	for _, p := range n.Pairs {
		child, ok := t.children[p.Key]
		if !ok {
			continue
		}
		if child.field != nil {
			if p.Value.IsNull() {
				continue
			}
			if err := r.apply(child.field, p.Value, c, dst); err != nil {
				return err
			}
			set[child.field] = true
			continue
		}
		if p.Value.IsNull() {
			continue
		}
		if p.Value.Kind != MappingNode {
			return usererr.Errorf("expected a map for %s in %s, got a %s%s", p.Key, r.kind, p.Value.kindName(), p.Value.at())
		}
		if err := r.visit(child, p.Value, c, dst, set); err != nil {
			return err
		}
	}
	return nil
}

func (r *Record[T]) apply(f *Field[T], n *Node, c *Context, dst *T) error {
	if f.templated && !f.rawTemplate {
		if n.Kind != ScalarNode {
			return usererr.Errorf("expected a string for %s in %s, got a %s%s", f.path, r.kind, n.kindName(), n.at())
		}
		value, err := c.Expand(n.Value)
		if err != nil {
			return usererr.Wrap(err, fmt.Sprintf("%s in %s%s", f.path, r.kind, n.at()))
		}
		expanded := *n
		expanded.Value = value
		n = &expanded
	}
	if err := f.decode(dst, n, c); err != nil {
		if _, ok := usererr.As(err); ok {
			return err
		}
		return usererr.Errorf("%s in %s%s: %w", f.path, r.kind, n.at(), err)
	}
	return nil
}

// Encode renders src in minimal form: absent fields and fields equal to their
// default are left out.
func (r *Record[T]) Encode(src *T) (*Node, error) {
	out := Map()
	for _, f := range r.fields {
		if f.encode == nil {
			continue
		}
		v, err := f.encode(src)
		if err != nil {
			return nil, fmt.Errorf("encoding %s of %s: %w", f.path, r.kind, err)
		}
		if v == nil {
			continue
		}
		if f.def != nil && Equal(v, f.def) {
			continue
		}
		out.SetPath(f.segments, v)
	}
	return out, nil
}
