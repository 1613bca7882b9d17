package schema

import (
	"fmt"
	"strconv"
)

// Text is a templated string that remembers its unexpanded form.
type Text struct {
	Raw   string
	Value string
}

// Plain returns a Text with no placeholders.
func Plain(s string) Text { return Text{Raw: s, Value: s} }

func (t Text) String() string { return t.Value }

func scalar(n *Node, want string) (string, error) {
	if n.Kind != ScalarNode {
		return "", fmt.Errorf("expected %s, got a %s", want, n.kindName())
	}
	return n.Value, nil
}

// String decodes a scalar into a string.
func String[T any](path string, ptr func(*T) *string) *Field[T] {
	return NewField(path,
		func(dst *T, n *Node, _ *Context) error {
			s, err := scalar(n, "a string")
			if err != nil {
				return err
			}
			*ptr(dst) = s
			return nil
		},
		func(src *T) (*Node, error) {
			if s := *ptr(src); s != "" {
				return Str(s), nil
			}
			return nil, nil
		})
}

// TextField decodes a templated scalar and keeps the raw text so encoding
// reproduces the placeholders.
func TextField[T any](path string, ptr func(*T) *Text) *Field[T] {
	f := NewField[T](path, nil, func(src *T) (*Node, error) {
		if t := *ptr(src); t.Raw != "" {
			return Str(t.Raw), nil
		}
		return nil, nil
	})
	f.rawTemplate = true
	f.decode = func(dst *T, n *Node, c *Context) error {
		raw, err := scalar(n, "a string")
		if err != nil {
			return err
		}
		value := raw
		if f.templated {
			if value, err = c.Expand(raw); err != nil {
				return err
			}
		}
		*ptr(dst) = Text{Raw: raw, Value: value}
		return nil
	}
	return f
}

// Strings decodes a sequence of scalars.
func Strings[T any](path string, ptr func(*T) *[]string) *Field[T] {
	return NewField(path,
		func(dst *T, n *Node, c *Context) error {
			items, err := DecodeSeq(n, c, func(item *Node, _ *Context) (string, error) {
				return scalar(item, "a string")
			})
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
			return EncodeSeq(items, func(s string) (*Node, error) { return Str(s), nil })
		})
}

// Bool decodes a YAML boolean.
func Bool[T any](path string, ptr func(*T) *bool) *Field[T] {
	return NewField(path,
		func(dst *T, n *Node, _ *Context) error {
			s, err := scalar(n, "a boolean")
			if err != nil {
				return err
			}
			b, err := ParseBool(s)
			if err != nil {
				return err
			}
			*ptr(dst) = b
			return nil
		},
		func(src *T) (*Node, error) {
			return BoolNode(*ptr(src)), nil
		})
}

// BoolNode returns a boolean scalar.
func BoolNode(b bool) *Node {
	return &Node{Kind: ScalarNode, Tag: BoolTag, Value: strconv.FormatBool(b)}
}

// ParseBool accepts the YAML 1.1 spellings of true and false.
func ParseBool(s string) (bool, error) {
	switch s {
	case "true", "True", "TRUE", "yes", "Yes", "YES", "on", "On", "ON":
		return true, nil
	case "false", "False", "FALSE", "no", "No", "NO", "off", "Off", "OFF":
		return false, nil
	}
	return false, fmt.Errorf("expected a boolean, got %q", s)
}

// Int decodes an integer scalar.
func Int[T any](path string, ptr func(*T) *int) *Field[T] {
	return NewField(path,
		func(dst *T, n *Node, _ *Context) error {
			s, err := scalar(n, "an integer")
			if err != nil {
				return err
			}
			i, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("expected an integer, got %q", s)
			}
			*ptr(dst) = i
			return nil
		},
		func(src *T) (*Node, error) {
			return IntNode(*ptr(src)), nil
		})
}

// IntNode returns an integer scalar.
func IntNode(i int) *Node { return &Node{Kind: ScalarNode, Tag: IntTag, Value: strconv.Itoa(i)} }

// Nested decodes a mapping through another record specification sharing the
// same document root.
func Nested[T, U any](path string, rec *Record[U], ptr func(*T) *U) *Field[T] {
	return NewField(path,
		func(dst *T, n *Node, c *Context) error {
			return rec.Decode(n, c, ptr(dst))
		},
		func(src *T) (*Node, error) {
			n, err := rec.Encode(ptr(src))
			if err != nil || len(n.Pairs) == 0 {
				return nil, err
			}
			return n, nil
		})
}

// DecodeSeq decodes every item of a sequence with elem.
func DecodeSeq[E any](n *Node, c *Context, elem func(*Node, *Context) (E, error)) ([]E, error) {
	if n.Kind != SequenceNode {
		return nil, fmt.Errorf("expected a list, got a %s", n.kindName())
	}
	out := make([]E, 0, len(n.Items))
	for _, item := range n.Items {
		v, err := elem(item, c)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// EncodeSeq encodes items into a sequence node.
func EncodeSeq[E any](items []E, elem func(E) (*Node, error)) (*Node, error) {
	out := Seq()
	for _, item := range items {
		n, err := elem(item)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, n)
	}
	return out, nil
}
