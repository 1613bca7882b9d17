// Package schema turns tree-shaped YAML documents into typed records.
//
// Documents are first converted into a small AST with exactly three node
// kinds (scalar, sequence, mapping). Records are then described by a list of
// fields addressed by dotted paths; each field owns the function that decodes
// its value, so decoding never relies on reflection. Polymorphic values
// (sources, builders) go through a Variants registry keyed by their "type" tag.
package schema

import "fmt"

// Kind is the shape of a Node.
type Kind int

const (
	ScalarNode Kind = iota + 1
	SequenceNode
	MappingNode
)

func (k Kind) String() string {
	switch k {
	case ScalarNode:
		return "scalar"
	case SequenceNode:
		return "list"
	case MappingNode:
		return "map"
	default:
		return "unknown node"
	}
}

// Resolved YAML tags for scalar nodes.
const (
	StrTag   = "!!str"
	IntTag   = "!!int"
	FloatTag = "!!float"
	BoolTag  = "!!bool"
	NullTag  = "!!null"
)

// Node is one element of a parsed document.
type Node struct {
	Kind  Kind
	Tag   string // scalars only
	Value string // scalars only
	Items []*Node
	Pairs []Pair

	Line   int
	Column int
}

// Pair is a mapping entry. Mapping keys are always scalars.
type Pair struct {
	Key   string
	Value *Node
}

// Str returns a string scalar.
func Str(s string) *Node { return &Node{Kind: ScalarNode, Tag: StrTag, Value: s} }

// Null returns the null scalar.
func Null() *Node { return &Node{Kind: ScalarNode, Tag: NullTag, Value: "null"} }

// Seq returns a sequence holding items.
func Seq(items ...*Node) *Node { return &Node{Kind: SequenceNode, Items: items} }

// Map returns an empty mapping.
func Map() *Node { return &Node{Kind: MappingNode} }

// IsNull reports whether n is missing or an explicit null.
func (n *Node) IsNull() bool {
	return n == nil || (n.Kind == ScalarNode && n.Tag == NullTag)
}

// Get returns the value stored under key in a mapping, or nil.
func (n *Node) Get(key string) *Node {
	if n == nil || n.Kind != MappingNode {
		return nil
	}
	for _, p := range n.Pairs {
		if p.Key == key {
			return p.Value
		}
	}
	return nil
}

// Set stores value under key, replacing an existing entry in place.
func (n *Node) Set(key string, value *Node) *Node {
	for i := range n.Pairs {
		if n.Pairs[i].Key == key {
			n.Pairs[i].Value = value
			return n
		}
	}
	n.Pairs = append(n.Pairs, Pair{Key: key, Value: value})
	return n
}

// SetPath stores value under a dotted path, creating intermediate mappings.
func (n *Node) SetPath(path []string, value *Node) {
	cur := n
	for _, seg := range path[:len(path)-1] {
		next := cur.Get(seg)
		if next == nil || next.Kind != MappingNode {
			next = Map()
			cur.Set(seg, next)
		}
		cur = next
	}
	cur.Set(path[len(path)-1], value)
}

// Keys returns the mapping keys in document order.
func (n *Node) Keys() []string {
	keys := make([]string, 0, len(n.Pairs))
	for _, p := range n.Pairs {
		keys = append(keys, p.Key)
	}
	return keys
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Items != nil {
		c.Items = make([]*Node, len(n.Items))
		for i, item := range n.Items {
			c.Items[i] = item.Clone()
		}
	}
	if n.Pairs != nil {
		c.Pairs = make([]Pair, len(n.Pairs))
		for i, p := range n.Pairs {
			c.Pairs[i] = Pair{Key: p.Key, Value: p.Value.Clone()}
		}
	}
	return &c
}

// Equal compares two trees by shape and scalar text. Mapping order is not
// significant; scalar tags are, only to tell null apart from the string "null".
func Equal(a, b *Node) bool {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() == b.IsNull()
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ScalarNode:
		return a.Value == b.Value
	case SequenceNode:
		if len(a.Items) != len(b.Items) {
			return false
		}
		for i := range a.Items {
			if !Equal(a.Items[i], b.Items[i]) {
				return false
			}
		}
		return true
	case MappingNode:
		if len(a.Pairs) != len(b.Pairs) {
			return false
		}
		for _, p := range a.Pairs {
			other := b.Get(p.Key)
			if other == nil || !Equal(p.Value, other) {
				return false
			}
		}
		return true
	}
	return false
}

// at renders the node position for error messages.
func (n *Node) at() string {
	if n == nil || n.Line == 0 {
		return ""
	}
	return fmt.Sprintf(" (line %d, column %d)", n.Line, n.Column)
}

func (n *Node) kindName() string {
	if n.IsNull() {
		return "null"
	}
	return n.Kind.String()
}
