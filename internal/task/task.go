// Package task implements the build task orchestration graph.
//
// A graph is made of transform nodes, which run a Tool, and composite nodes
// (sequence or parallel) which own an ordered list of child nodes. Graphs are
// assembled once by a Builder, which resolves every child reference to a
// *Node and rejects unknown names, duplicates, empty composites and cycles.
// After Build the nodes are immutable and a Runner walks them directly; no
// name is looked up at run time.
package task

import (
	"context"
	"fmt"
)

// Kind is the execution kind of a node.
type Kind int

const (
	KindTransform Kind = iota
	KindSequence
	KindParallel
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindTransform:
		return "transform"
	case KindSequence:
		return "sequence"
	case KindParallel:
		return "parallel"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Tool performs the work of a transform node.
type Tool interface {
	Run(ctx context.Context) error
}

// ToolFunc adapts a function to the Tool interface.
type ToolFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f ToolFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Node is one task in a built graph.
type Node struct {
	Name        string
	Kind        Kind
	Description string

	tool     Tool
	children []*Node
}

// Tool returns the tool of a transform node, nil for composites.
func (n *Node) Tool() Tool { return n.tool }

// Children returns the ordered children of a composite node. The returned
// slice is a copy.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// IsComposite reports whether the node is a sequence or parallel group.
func (n *Node) IsComposite() bool {
	return n.Kind == KindSequence || n.Kind == KindParallel
}

// Walk calls fn for n and every node reachable from it, depth first, parents
// before children. A node shared by several parents is visited once per
// reference.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// Transforms returns the names of the transform nodes reachable from n in
// execution order, without duplicates.
func (n *Node) Transforms() []string {
	seen := make(map[string]bool)
	var names []string
	n.Walk(func(c *Node) {
		if c.Kind == KindTransform && !seen[c.Name] {
			seen[c.Name] = true
			names = append(names, c.Name)
		}
	})
	return names
}
