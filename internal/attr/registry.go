package attr

import (
	"errors"
	"fmt"
)

// Reserved cell data keys that attributes may not shadow. They carry node
// structure (display label and AND/OR kind) in serialized documents.
const (
	ReservedLabel    = "label"
	ReservedNodeType = "nodetype"
)

var (
	// ErrDuplicateAttribute is returned when defining a name that is
	// already registered.
	ErrDuplicateAttribute = errors.New("attribute already defined")
	// ErrUnknownAttribute is returned when looking up a name that is not
	// registered (including previously deleted attributes).
	ErrUnknownAttribute = errors.New("unknown attribute")
	// ErrReservedName is returned when an attribute name collides with a
	// structural cell field.
	ErrReservedName = errors.New("reserved attribute name")
)

// Schema describes one attribute: its value domain, the default every node
// starts from, and the combination rules used at AND/OR nodes.
type Schema struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Domain      DomainKind `json:"domain" yaml:"domain"`
	Default     float64    `json:"default" yaml:"default"`
	// Display toggles showing the value on node labels. Presentation hint
	// only; it never affects propagation.
	Display bool `json:"display" yaml:"display"`
	// ANDRule and ORRule override the domain defaults. Only attributes
	// over the RATIONAL family may set them.
	ANDRule RuleKind `json:"and_rule,omitempty" yaml:"and_rule,omitempty"`
	ORRule  RuleKind `json:"or_rule,omitempty" yaml:"or_rule,omitempty"`
}

// DefaultValue returns the value new and back-filled nodes receive.
func (s *Schema) DefaultValue() Value { return Num(s.Default) }

// RuleFor resolves the combination rule for an AND or OR node, honouring
// per-attribute overrides where the domain permits them.
func (s *Schema) RuleFor(and bool) RuleKind {
	spec := domainSpecs[s.Domain]
	if and {
		if spec.overridable && s.ANDRule != "" {
			return s.ANDRule
		}
		return spec.defaultAND
	}
	if spec.overridable && s.ORRule != "" {
		return s.ORRule
	}
	return spec.defaultOR
}

// Registry is the ordered set of attribute schemas interpreted by a tree.
// It is owned by a session, not shared process-wide, so multiple trees can
// coexist with different attribute sets.
type Registry struct {
	schemas map[string]*Schema
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// DefaultRegistry returns the starter attribute set every new editing
// session begins with.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Define(Schema{
		Name:        "cost",
		Description: "Cheapest way to achieve the goal",
		Domain:      DomainPositiveRational,
		Display:     true,
	})
	r.Define(Schema{
		Name:        "probability",
		Description: "Likelihood the attack step succeeds",
		Domain:      DomainUnitInterval,
		Display:     true,
	})
	return r
}

// Define registers a new attribute schema. Callers holding a tree must
// back-fill every existing node with the default value afterwards.
func (r *Registry) Define(s Schema) (*Schema, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrReservedName)
	}
	if s.Name == ReservedLabel || s.Name == ReservedNodeType {
		return nil, fmt.Errorf("%w: %q", ErrReservedName, s.Name)
	}
	if _, ok := r.schemas[s.Name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateAttribute, s.Name)
	}
	if !s.Domain.Valid() {
		return nil, fmt.Errorf("unknown domain %q for attribute %q", s.Domain, s.Name)
	}
	// Round-trip the default through the domain so it is both in range
	// and normalized (e.g. TRUE_FALSE collapses to exactly 0 or 1).
	normalized, err := s.Domain.Parse(s.Domain.Format(Num(s.Default)))
	if err != nil {
		return nil, fmt.Errorf("default for %q: %w", s.Name, err)
	}
	s.Default = normalized.Num
	if err := checkOverride(s.Domain, s.ANDRule); err != nil {
		return nil, fmt.Errorf("AND rule for %q: %w", s.Name, err)
	}
	if err := checkOverride(s.Domain, s.ORRule); err != nil {
		return nil, fmt.Errorf("OR rule for %q: %w", s.Name, err)
	}

	sc := s
	r.schemas[s.Name] = &sc
	r.order = append(r.order, s.Name)
	return &sc, nil
}

func checkOverride(d DomainKind, rule RuleKind) error {
	if rule == "" {
		return nil
	}
	if !d.Overridable() {
		return fmt.Errorf("domain %s does not allow rule overrides", d)
	}
	if !rule.Valid() {
		return fmt.Errorf("unknown rule %q", rule)
	}
	return nil
}

// Delete removes an attribute schema. Callers holding a tree must tombstone
// the attribute on every node afterwards; the field stays in serialized
// documents as a DELETED marker.
func (r *Registry) Delete(name string) error {
	if _, ok := r.schemas[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
	}
	delete(r.schemas, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetDisplay toggles whether the attribute is shown on node labels.
func (r *Registry) SetDisplay(name string, enabled bool) error {
	s, ok := r.schemas[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
	}
	s.Display = enabled
	return nil
}

// Get returns the schema for name.
func (r *Registry) Get(name string) (*Schema, error) {
	s, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
	}
	return s, nil
}

// Has reports whether name is currently registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.schemas[name]
	return ok
}

// List returns every schema in insertion order.
func (r *Registry) List() []*Schema {
	out := make([]*Schema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.schemas[name])
	}
	return out
}

// Names returns every attribute name in insertion order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
