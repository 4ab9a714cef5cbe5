package tree

import (
	"errors"
	"fmt"
	"iter"

	"github.com/riskforge/attree/internal/attr"
)

// RootID is the fixed id of the single root node of every tree.
const RootID = "root"

var (
	// ErrNodeNotFound is returned when an operation references a node id
	// that is not in the tree.
	ErrNodeNotFound = errors.New("node not found")
	// ErrRootDeletion is returned when attempting to delete the root.
	ErrRootDeletion = errors.New("cannot delete the root node")
	// ErrNotALeaf is returned when editing an attribute on an internal
	// node; internal values are derived, never set directly.
	ErrNotALeaf = errors.New("node is not a leaf")
)

// Kind is the AND/OR decomposition of a node's children. It only has a
// combination effect on nodes with two or more children.
type Kind string

const (
	KindAND Kind = "AND"
	KindOR  Kind = "OR"
)

// Toggle flips AND to OR and back.
func (k Kind) Toggle() Kind {
	if k == KindAND {
		return KindOR
	}
	return KindAND
}

// Node is one goal in the decomposition. Leaves hold authoritative,
// user-editable values; internal node values are always derived from
// children by propagation.
type Node struct {
	ID       string
	Kind     Kind
	Label    string
	Values   map[string]attr.Value
	ParentID string // empty for the root
	ChildIDs []string
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.ChildIDs) == 0 }

// Tree owns all nodes of one attack tree plus the attribute registry used
// to interpret their values. It is not safe for concurrent use; each
// editing session owns its tree.
type Tree struct {
	nodes map[string]*Node
	reg   *attr.Registry
}

// New creates a tree holding only the root goal, with every registered
// attribute at its default.
func New(reg *attr.Registry, rootLabel string) *Tree {
	if rootLabel == "" {
		rootLabel = "Root Goal"
	}
	t := &Tree{nodes: make(map[string]*Node), reg: reg}
	root := &Node{
		ID:     RootID,
		Kind:   KindOR,
		Label:  rootLabel,
		Values: make(map[string]attr.Value),
	}
	for _, s := range reg.List() {
		root.Values[s.Name] = s.DefaultValue()
	}
	t.nodes[RootID] = root
	return t
}

// Registry returns the attribute registry the tree's values are read with.
func (t *Tree) Registry() *attr.Registry { return t.reg }

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns the node with the given id.
func (t *Tree) Node(id string) (*Node, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	return n, nil
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.nodes[RootID] }

// Children returns the node's children in edge insertion order.
func (t *Tree) Children(id string) []*Node {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	out := make([]*Node, 0, len(n.ChildIDs))
	for _, cid := range n.ChildIDs {
		if c, ok := t.nodes[cid]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Parent returns the node's parent, or nil for the root.
func (t *Tree) Parent(id string) *Node {
	n, ok := t.nodes[id]
	if !ok || n.ParentID == "" {
		return nil
	}
	return t.nodes[n.ParentID]
}

// Walk returns a pre-order traversal starting at startID: each parent is
// yielded before its children, children in insertion order. The sequence
// is restartable and yields nothing for unknown ids.
func (t *Tree) Walk(startID string) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		start, ok := t.nodes[startID]
		if !ok {
			return
		}
		stack := []*Node{start}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !yield(n) {
				return
			}
			// Push children reversed so they pop in insertion order.
			for i := len(n.ChildIDs) - 1; i >= 0; i-- {
				if c, ok := t.nodes[n.ChildIDs[i]]; ok {
					stack = append(stack, c)
				}
			}
		}
	}
}

// AttachNode inserts a node with an explicit id under an existing parent,
// without propagation. This is the rebuild path used when importing a
// serialized document, where every value is already present and pre-order
// guarantees the parent was attached first.
func (t *Tree) AttachNode(id, parentID string, kind Kind, label string, values map[string]attr.Value) error {
	if _, exists := t.nodes[id]; exists {
		return fmt.Errorf("duplicate node id %q", id)
	}
	parent, ok := t.nodes[parentID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, parentID)
	}
	if values == nil {
		values = make(map[string]attr.Value)
	}
	n := &Node{
		ID:       id,
		Kind:     kind,
		Label:    label,
		Values:   values,
		ParentID: parentID,
	}
	t.nodes[id] = n
	parent.ChildIDs = append(parent.ChildIDs, id)
	return nil
}

// backfill sets v for name on every node. Used when defining an attribute
// so that propagation never encounters a node without a value.
func (t *Tree) backfill(name string, v attr.Value) {
	for _, n := range t.nodes {
		n.Values[name] = v
	}
}

// resetToDefaults overwrites every registered attribute on n with its
// default. Structural edits reset the affected parent before propagating
// so stale derived values cannot leak into the fold.
func (t *Tree) resetToDefaults(n *Node) {
	for _, s := range t.reg.List() {
		n.Values[s.Name] = s.DefaultValue()
	}
}
