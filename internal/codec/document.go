// Package codec converts trees and their attribute registries to and from
// the flat document form used for file export/import and for collaboration
// snapshots. Documents carry values as strings and rule names as
// identifiers; no executable code ever crosses the wire.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/riskforge/attree/internal/attr"
	"github.com/riskforge/attree/internal/tree"
)

// ErrMalformedDocument is returned when a document cannot be rebuilt into
// a tree. Import is all-or-nothing: a malformed document never leaves a
// partially built tree behind.
var ErrMalformedDocument = errors.New("malformed tree document")

// Cell is one node record. Cells appear in pre-order, root first, so a
// cell's parent is always imported before the cell itself. Data holds the
// display label and AND/OR kind under their reserved keys plus every
// attribute value in its formatted string form.
type Cell struct {
	ID     string            `json:"id"`
	Parent *string           `json:"parent"`
	Data   map[string]string `json:"data"`
}

// Document is the transmissible form of a tree plus its attribute schemas.
type Document struct {
	Cells      []Cell                 `json:"cells"`
	Attributes map[string]attr.Schema `json:"attributes"`
}

// Export flattens the tree into a document. The cell sequence is the
// tree's pre-order walk, so the root record always comes first.
func Export(t *tree.Tree) *Document {
	reg := t.Registry()
	doc := &Document{Attributes: make(map[string]attr.Schema)}
	for _, s := range reg.List() {
		doc.Attributes[s.Name] = *s
	}

	for n := range t.Walk(tree.RootID) {
		data := map[string]string{
			attr.ReservedLabel:    n.Label,
			attr.ReservedNodeType: string(n.Kind),
		}
		for name, v := range n.Values {
			if v.Deleted {
				data[name] = attr.Tombstone
				continue
			}
			s, err := reg.Get(name)
			if err != nil {
				// Value without a schema and without a tombstone:
				// should not happen, drop it rather than guess a format.
				continue
			}
			data[name] = s.Domain.Format(v)
		}
		cell := Cell{ID: n.ID, Data: data}
		if n.ParentID != "" {
			p := n.ParentID
			cell.Parent = &p
		}
		doc.Cells = append(doc.Cells, cell)
	}
	return doc
}

// Import rebuilds a tree from a document. It relies on the document's
// pre-order: the first cell must be the root and every later cell must
// reference an already-imported parent.
func Import(doc *Document) (*tree.Tree, error) {
	if doc == nil || len(doc.Cells) == 0 {
		return nil, fmt.Errorf("%w: no cells", ErrMalformedDocument)
	}
	rootCell := doc.Cells[0]
	if rootCell.ID != tree.RootID || rootCell.Parent != nil {
		return nil, fmt.Errorf("%w: first cell must be the root", ErrMalformedDocument)
	}

	reg := attr.NewRegistry()
	for _, name := range sortedNames(doc.Attributes) {
		if _, err := reg.Define(doc.Attributes[name]); err != nil {
			return nil, fmt.Errorf("%w: attribute %q: %v", ErrMalformedDocument, name, err)
		}
	}

	t := tree.New(reg, cellLabel(rootCell))
	root := t.Root()
	root.Kind = cellKind(rootCell)
	values, err := cellValues(reg, rootCell)
	if err != nil {
		return nil, err
	}
	root.Values = values

	for _, cell := range doc.Cells[1:] {
		if cell.Parent == nil {
			return nil, fmt.Errorf("%w: cell %q has no parent and is not the root", ErrMalformedDocument, cell.ID)
		}
		if cell.ID == tree.RootID {
			return nil, fmt.Errorf("%w: duplicate root cell", ErrMalformedDocument)
		}
		values, err := cellValues(reg, cell)
		if err != nil {
			return nil, err
		}
		if err := t.AttachNode(cell.ID, *cell.Parent, cellKind(cell), cellLabel(cell), values); err != nil {
			return nil, fmt.Errorf("%w: cell %q: %v", ErrMalformedDocument, cell.ID, err)
		}
	}
	return t, nil
}

// Marshal serializes a document as indented JSON, the form offered to
// users as a downloadable file.
func Marshal(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// Unmarshal parses raw JSON into a document.
func Unmarshal(raw []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return &doc, nil
}

// Decode parses and rebuilds in one step, for callers that only need to
// know whether a snapshot is usable.
func Decode(raw []byte) (*tree.Tree, error) {
	doc, err := Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	return Import(doc)
}

func sortedNames(schemas map[string]attr.Schema) []string {
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cellLabel(c Cell) string { return c.Data[attr.ReservedLabel] }

func cellKind(c Cell) tree.Kind {
	if c.Data[attr.ReservedNodeType] == string(tree.KindAND) {
		return tree.KindAND
	}
	return tree.KindOR
}

// cellValues parses a cell's attribute values. Registered attributes fall
// back to their default when absent; unregistered keys are kept only as
// tombstones, so deleted attributes stay dead across collaborators while
// unknown junk is dropped.
func cellValues(reg *attr.Registry, c Cell) (map[string]attr.Value, error) {
	values := make(map[string]attr.Value)
	for _, s := range reg.List() {
		raw, ok := c.Data[s.Name]
		if !ok {
			values[s.Name] = s.DefaultValue()
			continue
		}
		if raw == attr.Tombstone {
			values[s.Name] = attr.DeletedValue()
			continue
		}
		v, err := s.Domain.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: cell %q attribute %q: %v", ErrMalformedDocument, c.ID, s.Name, err)
		}
		values[s.Name] = v
	}
	for name, raw := range c.Data {
		if name == attr.ReservedLabel || name == attr.ReservedNodeType || reg.Has(name) {
			continue
		}
		if raw == attr.Tombstone {
			values[name] = attr.DeletedValue()
		}
	}
	return values, nil
}
