package task

import (
	"time"
)

// Result is the outcome of running a node. Composite results hold one child
// result per child, in child order.
type Result struct {
	Name     string
	Kind     Kind
	Err      error
	Duration time.Duration
	Skipped  bool
	Children []*Result
}

// Failed reports whether the node failed.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// Walk calls fn for r and every nested result, parents first.
func (r *Result) Walk(fn func(*Result)) {
	fn(r)
	for _, c := range r.Children {
		c.Walk(fn)
	}
}

// Find returns the first result named name, or nil.
func (r *Result) Find(name string) *Result {
	var found *Result
	r.Walk(func(c *Result) {
		if found == nil && c.Name == name {
			found = c
		}
	})
	return found
}

// Ran returns the names of transform nodes that actually executed, in the
// order they appear in the tree.
func (r *Result) Ran() []string {
	var names []string
	r.Walk(func(c *Result) {
		if c.Kind == KindTransform && !c.Skipped {
			names = append(names, c.Name)
		}
	})
	return names
}

// Failures returns every failed transform result.
func (r *Result) Failures() []*Result {
	var out []*Result
	r.Walk(func(c *Result) {
		if c.Kind == KindTransform && c.Failed() {
			out = append(out, c)
		}
	})
	return out
}

func skippedResult(n *Node) *Result {
	res := &Result{Name: n.Name, Kind: n.Kind, Skipped: true}
	for _, c := range n.children {
		res.Children = append(res.Children, skippedResult(c))
	}
	return res
}
