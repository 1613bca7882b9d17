package schema

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"buzzy/internal/usererr"
)

// Parse reads a single YAML document. An empty document parses as null.
func Parse(data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, usererr.Errorf("invalid YAML: %w", err)
	}
	if doc.Kind == 0 {
		return Null(), nil
	}
	return fromYAML(&doc)
}

func fromYAML(y *yaml.Node) (*Node, error) {
	switch y.Kind {
	case yaml.DocumentNode:
		if len(y.Content) == 0 {
			return Null(), nil
		}
		return fromYAML(y.Content[0])

	case yaml.AliasNode:
		return fromYAML(y.Alias)

	case yaml.ScalarNode:
		return &Node{
			Kind:   ScalarNode,
			Tag:    y.ShortTag(),
			Value:  y.Value,
			Line:   y.Line,
			Column: y.Column,
		}, nil

	case yaml.SequenceNode:
		n := &Node{Kind: SequenceNode, Items: make([]*Node, 0, len(y.Content)), Line: y.Line, Column: y.Column}
		for _, c := range y.Content {
			item, err := fromYAML(c)
			if err != nil {
				return nil, err
			}
			n.Items = append(n.Items, item)
		}
		return n, nil

	case yaml.MappingNode:
		n := &Node{Kind: MappingNode, Line: y.Line, Column: y.Column}
		seen := make(map[string]bool, len(y.Content)/2)
		for i := 0; i+1 < len(y.Content); i += 2 {
			k, v := y.Content[i], y.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, usererr.Errorf("map keys must be scalars (line %d, column %d)", k.Line, k.Column)
			}
			if seen[k.Value] {
				return nil, usererr.Errorf("duplicate key %q (line %d, column %d)", k.Value, k.Line, k.Column)
			}
			seen[k.Value] = true
			value, err := fromYAML(v)
			if err != nil {
				return nil, err
			}
			n.Pairs = append(n.Pairs, Pair{Key: k.Value, Value: value})
		}
		return n, nil
	}
	return nil, usererr.Errorf("unsupported YAML node (line %d, column %d)", y.Line, y.Column)
}

// Marshal renders n as a YAML document.
func Marshal(n *Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(toYAML(n)); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toYAML(n *Node) *yaml.Node {
	if n.IsNull() {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: NullTag, Value: "null"}
	}
	switch n.Kind {
	case SequenceNode:
		y := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range n.Items {
			y.Content = append(y.Content, toYAML(item))
		}
		return y
	case MappingNode:
		y := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, p := range n.Pairs {
			y.Content = append(y.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: StrTag, Value: p.Key},
				toYAML(p.Value))
		}
		return y
	}
	tag := n.Tag
	if tag == "" {
		tag = StrTag
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: n.Value}
}
