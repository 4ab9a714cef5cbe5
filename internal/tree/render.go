package tree

import (
	"fmt"
	"strings"
)

// Outline renders the tree as an indented textual outline, one node per
// line, with the AND/OR marker on combination points and every displayed
// attribute's formatted value. This is the text-mode counterpart of the
// graphical view.
func (t *Tree) Outline() string {
	var b strings.Builder
	t.outline(&b, t.Root(), 0)
	return b.String()
}

func (t *Tree) outline(b *strings.Builder, n *Node, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(n.Label)
	if len(n.ChildIDs) >= 2 {
		fmt.Fprintf(b, " [%s]", n.Kind)
	}
	for _, s := range t.reg.List() {
		if !s.Display {
			continue
		}
		if v, ok := n.Values[s.Name]; ok && !v.Deleted {
			fmt.Fprintf(b, " (%s: %s)", s.Name, s.Domain.Format(v))
		}
	}
	b.WriteByte('\n')
	for _, c := range t.Children(n.ID) {
		t.outline(b, c, depth+1)
	}
}
