package task

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conneroisu/sitepipe/internal/errors"
)

// Definition declares a node by name. Composite definitions reference their
// children by name; the references are resolved by Builder.Build.
type Definition struct {
	Name        string
	Kind        Kind
	Description string
	Tool        Tool
	Children    []string
}

// Builder collects definitions and turns them into an immutable graph.
type Builder struct {
	defs  map[string]Definition
	order []string
	errs  []error
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{defs: make(map[string]Definition)}
}

// Add registers a definition. Registration errors are reported by Build.
func (b *Builder) Add(def Definition) *Builder {
	if def.Name == "" {
		b.errs = append(b.errs, errors.NewValidationError(errors.ErrCodeValidationFailed, "task with empty name"))
		return b
	}
	if _, exists := b.defs[def.Name]; exists {
		b.errs = append(b.errs, errors.NewValidationError(errors.ErrCodeDuplicateTask,
			"task registered twice").WithTask(def.Name))
		return b
	}
	b.defs[def.Name] = def
	b.order = append(b.order, def.Name)
	return b
}

// Transform registers a transform node.
func (b *Builder) Transform(name, description string, tool Tool) *Builder {
	return b.Add(Definition{Name: name, Kind: KindTransform, Description: description, Tool: tool})
}

// Sequence registers a sequence node.
func (b *Builder) Sequence(name, description string, children ...string) *Builder {
	return b.Add(Definition{Name: name, Kind: KindSequence, Description: description, Children: children})
}

// Parallel registers a parallel node.
func (b *Builder) Parallel(name, description string, children ...string) *Builder {
	return b.Add(Definition{Name: name, Kind: KindParallel, Description: description, Children: children})
}

// Build validates the definitions and resolves them into a Graph.
func (b *Builder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}

	for _, name := range b.order {
		def := b.defs[name]
		switch def.Kind {
		case KindTransform:
			if def.Tool == nil {
				return nil, errors.NewValidationError(errors.ErrCodeValidationFailed,
					"transform task has no tool").WithTask(name)
			}
			if len(def.Children) > 0 {
				return nil, errors.NewValidationError(errors.ErrCodeValidationFailed,
					"transform task cannot have children").WithTask(name)
			}
		case KindSequence, KindParallel:
			if len(def.Children) == 0 {
				return nil, errors.NewValidationError(errors.ErrCodeEmptyComposite,
					fmt.Sprintf("%s task has no children", def.Kind)).WithTask(name)
			}
			for _, child := range def.Children {
				if _, ok := b.defs[child]; !ok {
					return nil, errors.NewValidationError(errors.ErrCodeTaskNotFound,
						fmt.Sprintf("unknown task %q referenced", child)).WithTask(name)
				}
			}
		default:
			return nil, errors.NewValidationError(errors.ErrCodeValidationFailed,
				fmt.Sprintf("unknown task kind %d", int(def.Kind))).WithTask(name)
		}
	}

	if cycle := b.findCycle(); cycle != nil {
		return nil, errors.NewValidationError(errors.ErrCodeCycle,
			"task graph has a cycle: "+strings.Join(cycle, " -> ")).WithContext("cycle", cycle)
	}

	nodes := make(map[string]*Node, len(b.defs))
	for _, name := range b.order {
		def := b.defs[name]
		nodes[name] = &Node{
			Name:        def.Name,
			Kind:        def.Kind,
			Description: def.Description,
			tool:        def.Tool,
		}
	}
	for _, name := range b.order {
		n := nodes[name]
		for _, child := range b.defs[name].Children {
			n.children = append(n.children, nodes[child])
		}
	}

	order := make([]string, len(b.order))
	copy(order, b.order)

	return &Graph{nodes: nodes, order: order}, nil
}

// findCycle runs a DFS over the definitions in sorted name order and returns
// one cycle as a closed path (first name repeated at the end), or nil.
func (b *Builder) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	names := make([]string, 0, len(b.defs))
	for name := range b.defs {
		names = append(names, name)
	}
	sort.Strings(names)

	color := make(map[string]int, len(names))
	var stack []string
	var cycle []string

	var dfs func(u string) bool
	dfs = func(u string) bool {
		color[u] = gray
		stack = append(stack, u)
		for _, v := range b.defs[u].Children {
			switch color[v] {
			case white:
				if dfs(v) {
					return true
				}
			case gray:
				for i, s := range stack {
					if s == v {
						cycle = append(cycle, stack[i:]...)
						cycle = append(cycle, v)
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[u] = black
		return false
	}

	for _, name := range names {
		if color[name] != white {
			continue
		}
		if dfs(name) {
			return cycle
		}
	}
	return nil
}

// Graph is a resolved, immutable set of nodes.
type Graph struct {
	nodes map[string]*Node
	order []string
}

// Node returns the node registered under name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// MustNode returns the node registered under name or panics. Used while
// wiring fixed graphs whose names are compile-time constants.
func (g *Graph) MustNode(name string) *Node {
	n, ok := g.nodes[name]
	if !ok {
		panic(fmt.Sprintf("task %q not in graph", name))
	}
	return n
}

// Names returns node names in registration order.
func (g *Graph) Names() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }
