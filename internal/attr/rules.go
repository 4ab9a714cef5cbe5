package attr

// RuleKind names a binary combination rule used to fold a node's children
// into the node's own value. Rules are a closed table: collaboration
// snapshots carry rule names, never executable rule bodies.
type RuleKind string

const (
	RuleSum     RuleKind = "sum"
	RuleMin     RuleKind = "min"
	RuleMax     RuleKind = "max"
	RuleProduct RuleKind = "product"
	// RuleNoisyOr is a+b-a*b, the probability that at least one of two
	// independent events occurs.
	RuleNoisyOr RuleKind = "noisy-or"
)

// Valid reports whether r names a known rule.
func (r RuleKind) Valid() bool {
	switch r {
	case RuleSum, RuleMin, RuleMax, RuleProduct, RuleNoisyOr:
		return true
	}
	return false
}

// Apply folds one child value into the accumulator. Folds are strictly
// left-to-right in child insertion order; callers must not reorder.
func (r RuleKind) Apply(acc, child float64) float64 {
	switch r {
	case RuleSum:
		return acc + child
	case RuleMin:
		if child < acc {
			return child
		}
		return acc
	case RuleMax:
		if child > acc {
			return child
		}
		return acc
	case RuleProduct:
		return acc * child
	case RuleNoisyOr:
		return acc + child - acc*child
	}
	return acc
}
