package tree

import (
	"fmt"
	"log"

	"github.com/riskforge/attree/internal/attr"
)

// PropagateUp recomputes the named attribute on the node with id startID
// and on every ancestor up to the root. The walk is iterative, so tree
// depth never threatens the stack.
//
// At each node: a leaf is left untouched (leaf values are authoritative), a
// single child is copied verbatim (a one-child node is a pass-through, not
// a combination point), and two or more children are folded strictly
// left-to-right in insertion order with the attribute's AND or OR rule.
func (t *Tree) PropagateUp(startID, name string) error {
	n, ok := t.nodes[startID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, startID)
	}

	schema, err := t.reg.Get(name)
	if err != nil {
		return err
	}

	for n != nil {
		children := t.Children(n.ID)
		switch len(children) {
		case 0:
			// Leaf: authoritative, never derived.
		case 1:
			v, ok := childValue(children[0], name)
			if !ok {
				return nil
			}
			n.Values[name] = v
		default:
			rule := schema.RuleFor(n.Kind == KindAND)
			acc, ok := childValue(children[0], name)
			if !ok {
				return nil
			}
			for _, c := range children[1:] {
				v, ok := childValue(c, name)
				if !ok {
					return nil
				}
				acc.Num = rule.Apply(acc.Num, v.Num)
			}
			n.Values[name] = acc
		}

		if n.ParentID == "" {
			break
		}
		n = t.nodes[n.ParentID]
	}
	return nil
}

// propagateAll re-propagates every registered attribute from startID.
func (t *Tree) propagateAll(startID string) {
	for _, name := range t.reg.Names() {
		if err := t.PropagateUp(startID, name); err != nil {
			log.Printf("tree: propagate %q from %s: %v", name, startID, err)
		}
	}
}

// childValue fetches a child's value for name. A missing or tombstoned
// value means the registry and tree are out of sync, which is an invariant
// violation, not user error: the attribute is skipped and logged rather
// than folded from a silent default that would corrupt ancestors.
func childValue(c *Node, name string) (attr.Value, bool) {
	got, present := c.Values[name]
	if !present || got.Deleted {
		log.Printf("tree: node %s has no value for attribute %q, skipping propagation", c.ID, name)
		return attr.Value{}, false
	}
	return got, true
}
