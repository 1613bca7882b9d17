package schema

import (
	"fmt"

	"buzzy/internal/usererr"
)

// Tagged is implemented by every value handled by a Variants registry.
type Tagged interface {
	Type() string
}

type variant[T Tagged] struct {
	decode func(n *Node, c *Context) (T, error)
	encode func(v T) (*Node, error)
}

// Variants dispatches a node to the decoder registered for its type tag.
// The node is either a bare scalar naming the tag or a mapping with a
// "type" key.
type Variants[T Tagged] struct {
	kind     string
	variants map[string]variant[T]
}

// NewVariants returns an empty registry; kind names the value family in
// errors ("source", "builder").
func NewVariants[T Tagged](kind string) *Variants[T] {
	return &Variants[T]{kind: kind, variants: map[string]variant[T]{}}
}

// Register adds a decoder and encoder for tag.
func (v *Variants[T]) Register(tag string, decode func(n *Node, c *Context) (T, error), encode func(T) (*Node, error)) error {
	if _, ok := v.variants[tag]; ok {
		return fmt.Errorf("%s type %q is already registered", v.kind, tag)
	}
	v.variants[tag] = variant[T]{decode: decode, encode: encode}
	return nil
}

// Decode reads the type tag of n and delegates to its decoder. A bare scalar
// is decoded as a mapping holding only the type.
func (v *Variants[T]) Decode(n *Node, c *Context) (T, error) {
	var zero T
	var tag string
	switch {
	case n.IsNull():
		return zero, usererr.Errorf("expected a %s, got null%s", v.kind, n.at())
	case n.Kind == ScalarNode:
		tag = n.Value
		n = &Node{Kind: MappingNode, Line: n.Line, Column: n.Column, Pairs: []Pair{{Key: "type", Value: n}}}
	case n.Kind == MappingNode:
		t := n.Get("type")
		if t == nil || t.Kind != ScalarNode {
			return zero, usererr.Errorf("expected type in %s%s", v.kind, n.at())
		}
		tag = t.Value
	default:
		return zero, usererr.Errorf("expected a %s, got a %s%s", v.kind, n.kindName(), n.at())
	}
	entry, ok := v.variants[tag]
	if !ok {
		return zero, usererr.Errorf("don't know how to process a %s %s%s", tag, v.kind, n.at())
	}
	if c == nil {
		c = &Context{Root: n}
	}
	return entry.decode(n, c)
}

// Encode renders val with its type tag first. A value with no other fields
// is rendered as a bare scalar.
func (v *Variants[T]) Encode(val T) (*Node, error) {
	tag := val.Type()
	entry, ok := v.variants[tag]
	if !ok {
		return nil, fmt.Errorf("don't know how to encode a %s %s", tag, v.kind)
	}
	body := Map()
	if entry.encode != nil {
		var err error
		if body, err = entry.encode(val); err != nil {
			return nil, err
		}
	}
	out := Map().Set("type", Str(tag))
	for _, p := range body.Pairs {
		if p.Key != "type" {
			out.Pairs = append(out.Pairs, p)
		}
	}
	if len(out.Pairs) == 1 {
		return Str(tag), nil
	}
	return out, nil
}

// DecodeSeq decodes a sequence of variants.
func (v *Variants[T]) DecodeSeq(n *Node, c *Context) ([]T, error) {
	return DecodeSeq(n, c, v.Decode)
}

// EncodeSeq encodes a sequence of variants.
func (v *Variants[T]) EncodeSeq(items []T) (*Node, error) {
	return EncodeSeq(items, v.Encode)
}

// RegisterRecord registers a variant whose fields are described by rec. P is
// the pointer type of the record that implements T.
func RegisterRecord[T Tagged, U any, P interface {
	*U
	Tagged
}](v *Variants[T], tag string, rec *Record[U]) error {
	return v.Register(tag,
		func(n *Node, c *Context) (T, error) {
			var zero T
			u := new(U)
			if err := rec.Decode(n, c, u); err != nil {
				return zero, err
			}
			t, ok := any(P(u)).(T)
			if !ok {
				return zero, fmt.Errorf("%T does not implement the %s interface", u, v.kind)
			}
			return t, nil
		},
		func(val T) (*Node, error) {
			p, ok := any(val).(P)
			if !ok {
				return nil, fmt.Errorf("cannot encode %T as a %s %s", val, tag, v.kind)
			}
			return rec.Encode((*U)(p))
		})
}

// One decodes a single variant stored at path.
func One[T any, V Tagged](path string, v *Variants[V], ptr func(*T) *V) *Field[T] {
	return NewField(path,
		func(dst *T, n *Node, c *Context) error {
			val, err := v.Decode(n, c)
			if err != nil {
				return err
			}
			*ptr(dst) = val
			return nil
		},
		func(src *T) (*Node, error) {
			val := *ptr(src)
			if any(val) == nil {
				return nil, nil
			}
			return v.Encode(val)
		})
}

// Many decodes a sequence of variants stored at path.
func Many[T any, V Tagged](path string, v *Variants[V], ptr func(*T) *[]V) *Field[T] {
	return NewField(path,
		func(dst *T, n *Node, c *Context) error {
			items, err := v.DecodeSeq(n, c)
			if err != nil {
				return err
			}
			*ptr(dst) = items
			return nil
		},
		func(src *T) (*Node, error) {
			items := *ptr(src)
			if len(items) == 0 {
				return nil, nil
			}
			return v.EncodeSeq(items)
		})
}
