package tree

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/riskforge/attree/internal/attr"
)

// Mutation operations. Each one validates every precondition before the
// first write, so a rejected operation leaves the tree untouched, and ends
// by re-propagating the affected attributes so ancestors stay consistent.

// AddChild creates a new leaf under parentID with every attribute at its
// domain default and returns the new node's id.
func (t *Tree) AddChild(parentID, label string) (string, error) {
	parent, ok := t.nodes[parentID]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNodeNotFound, parentID)
	}
	if label == "" {
		label = "New Goal"
	}

	child := &Node{
		ID:       uuid.NewString(),
		Kind:     KindOR,
		Label:    label,
		Values:   make(map[string]attr.Value),
		ParentID: parentID,
	}
	for _, s := range t.reg.List() {
		child.Values[s.Name] = s.DefaultValue()
	}

	// A parent gaining its second (or later) child stops being a simple
	// pass-through; reset it to defaults first so its stale derived value
	// cannot leak into the fold.
	if len(parent.ChildIDs) >= 1 {
		t.resetToDefaults(parent)
	}

	t.nodes[child.ID] = child
	parent.ChildIDs = append(parent.ChildIDs, child.ID)
	t.propagateAll(parentID)
	return child.ID, nil
}

// DeleteSubtree removes the node and all of its descendants. The former
// parent is reset to defaults and re-propagated; if it ends up with a
// single remaining child its stored kind is kept (the AND/OR distinction
// simply stops being display-relevant).
func (t *Tree) DeleteSubtree(nodeID string) error {
	if nodeID == RootID {
		return ErrRootDeletion
	}
	n, ok := t.nodes[nodeID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, nodeID)
	}
	parent := t.nodes[n.ParentID]

	var doomed []string
	for d := range t.Walk(nodeID) {
		doomed = append(doomed, d.ID)
	}
	for _, id := range doomed {
		delete(t.nodes, id)
	}

	for i, cid := range parent.ChildIDs {
		if cid == nodeID {
			parent.ChildIDs = append(parent.ChildIDs[:i], parent.ChildIDs[i+1:]...)
			break
		}
	}

	t.resetToDefaults(parent)
	t.propagateAll(parent.ID)
	return nil
}

// ToggleKind flips the node between AND and OR and re-propagates every
// attribute. Nodes with fewer than two children are left alone: their kind
// has no combination effect, so flipping it is a no-op, not an error.
func (t *Tree) ToggleKind(nodeID string) error {
	n, ok := t.nodes[nodeID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, nodeID)
	}
	if len(n.ChildIDs) < 2 {
		return nil
	}
	n.Kind = n.Kind.Toggle()
	t.propagateAll(nodeID)
	return nil
}

// EditLeafAttribute validates raw input against the attribute's domain,
// stores it on the leaf, and propagates that one attribute upward. Only
// leaves are editable; internal values are derived.
func (t *Tree) EditLeafAttribute(nodeID, name, raw string) error {
	n, ok := t.nodes[nodeID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, nodeID)
	}
	if !n.IsLeaf() {
		return fmt.Errorf("%w: %q", ErrNotALeaf, nodeID)
	}
	schema, err := t.reg.Get(name)
	if err != nil {
		return err
	}
	v, err := schema.Domain.Parse(raw)
	if err != nil {
		return err
	}

	n.Values[name] = v
	if n.ParentID != "" {
		return t.PropagateUp(n.ParentID, name)
	}
	return nil
}

// DefineAttribute registers a new attribute and back-fills its default
// onto every node, so propagation never sees a node without a value.
func (t *Tree) DefineAttribute(s attr.Schema) (*attr.Schema, error) {
	schema, err := t.reg.Define(s)
	if err != nil {
		return nil, err
	}
	t.backfill(schema.Name, schema.DefaultValue())
	return schema, nil
}

// DeleteAttribute removes an attribute from the registry and tombstones it
// on every node. The field survives in serialized documents as a DELETED
// marker so stale collaborator snapshots cannot revive it.
func (t *Tree) DeleteAttribute(name string) error {
	if err := t.reg.Delete(name); err != nil {
		return err
	}
	t.backfill(name, attr.DeletedValue())
	return nil
}
