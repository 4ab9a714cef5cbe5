package tree

import (
	"log"

	"github.com/riskforge/attree/internal/attr"
)

// Example builds the classic open-the-safe attack tree with the starter
// attribute set. It is served to clients as a demo and used as a seed for
// new groups.
func Example() *Tree {
	t := New(attr.DefaultRegistry(), "Open Safe")

	pick, _ := t.AddChild(RootID, "Pick Lock")
	combo, _ := t.AddChild(RootID, "Learn Combination")
	cut, _ := t.AddChild(RootID, "Cut Open Safe")

	find, _ := t.AddChild(combo, "Find Written Combination")
	extract, _ := t.AddChild(combo, "Get Combination From Target")

	befriend, _ := t.AddChild(extract, "Befriend Safe Owner")
	reveal, _ := t.AddChild(extract, "Get Owner To Reveal Combination")

	// Extracting the combination needs both access and leverage.
	if err := t.ToggleKind(extract); err != nil {
		log.Printf("tree: example setup: %v", err)
	}

	seed := map[string][2]string{
		pick:     {"30", "0.1"},
		cut:      {"80", "0.7"},
		find:     {"5", "0.2"},
		befriend: {"20", "0.4"},
		reveal:   {"60", "0.3"},
	}
	for id, vals := range seed {
		if err := t.EditLeafAttribute(id, "cost", vals[0]); err != nil {
			log.Printf("tree: example setup: %v", err)
		}
		if err := t.EditLeafAttribute(id, "probability", vals[1]); err != nil {
			log.Printf("tree: example setup: %v", err)
		}
	}
	return t
}
