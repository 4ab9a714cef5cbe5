package attr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DomainKind identifies the value space an attribute draws from. Each
// domain knows how to parse raw input, how to format values for display,
// and which combination rules apply by default at AND/OR nodes.
type DomainKind string

const (
	DomainTrueFalse        DomainKind = "TRUE_FALSE"
	DomainUnitInterval     DomainKind = "UNIT_INTERVAL"
	DomainRational         DomainKind = "RATIONAL"
	DomainPositiveRational DomainKind = "POSITIVE_RATIONAL"
	DomainInteger          DomainKind = "INTEGER"
	DomainPositiveInteger  DomainKind = "POSITIVE_INTEGER"
)

// Tombstone is the serialized marker for values of deleted attributes.
// Keeping the field with a marker, instead of removing it, prevents stale
// snapshots from collaborators from silently reviving the attribute.
const Tombstone = "DELETED"

// Value is a typed attribute value. Every domain is float64-backed:
// TRUE_FALSE uses 0 and 1, the integer domains hold whole numbers.
type Value struct {
	Num     float64
	Deleted bool
}

// Num returns a live value holding n.
func Num(n float64) Value { return Value{Num: n} }

// DeletedValue returns the tombstone left behind when an attribute is
// removed from the registry.
func DeletedValue() Value { return Value{Deleted: true} }

// domainSpec holds the per-domain behaviour. The set of domains is closed;
// combination rules are identified by name and never transmitted as code.
type domainSpec struct {
	defaultAND RuleKind
	defaultOR  RuleKind
	overridable bool // RATIONAL family: attributes may pick their own rules
}

var domainSpecs = map[DomainKind]domainSpec{
	DomainTrueFalse:        {defaultAND: RuleMin, defaultOR: RuleMax},
	DomainUnitInterval:     {defaultAND: RuleProduct, defaultOR: RuleNoisyOr},
	DomainRational:         {defaultAND: RuleSum, defaultOR: RuleMin, overridable: true},
	DomainPositiveRational: {defaultAND: RuleSum, defaultOR: RuleMin, overridable: true},
	DomainInteger:          {defaultAND: RuleSum, defaultOR: RuleMin},
	DomainPositiveInteger:  {defaultAND: RuleSum, defaultOR: RuleMin},
}

// Valid reports whether d names a known domain.
func (d DomainKind) Valid() bool {
	_, ok := domainSpecs[d]
	return ok
}

// Overridable reports whether attributes over this domain may select their
// own AND/OR rules instead of the domain defaults.
func (d DomainKind) Overridable() bool {
	return domainSpecs[d].overridable
}

// Default returns the domain's default value, used to back-fill nodes when
// an attribute is defined without an explicit default.
func (d DomainKind) Default() Value { return Value{} }

// ValidationError reports raw input rejected by a domain. The tree is left
// unchanged when it occurs.
type ValidationError struct {
	Domain DomainKind
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s value %q: %s", e.Domain, e.Input, e.Reason)
}

func invalid(d DomainKind, raw, reason string) error {
	return &ValidationError{Domain: d, Input: raw, Reason: reason}
}

// Parse validates raw input against the domain and returns the typed value.
// Empty input is invalid for every domain.
func (d DomainKind) Parse(raw string) (Value, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Value{}, invalid(d, raw, "empty input")
	}

	switch d {
	case DomainTrueFalse:
		if strings.EqualFold(raw, "true") {
			return Num(1), nil
		}
		if strings.EqualFold(raw, "false") {
			return Num(0), nil
		}
		return Value{}, invalid(d, raw, "expected TRUE or FALSE")

	case DomainUnitInterval:
		v, err := parseFinite(raw)
		if err != nil {
			return Value{}, invalid(d, raw, "not a finite number")
		}
		if v < 0 || v > 1 {
			return Value{}, invalid(d, raw, "outside [0, 1]")
		}
		return Num(v), nil

	case DomainRational:
		v, err := parseFinite(raw)
		if err != nil {
			return Value{}, invalid(d, raw, "not a finite number")
		}
		return Num(v), nil

	case DomainPositiveRational:
		v, err := parseFinite(raw)
		if err != nil {
			return Value{}, invalid(d, raw, "not a finite number")
		}
		if v < 0 {
			return Value{}, invalid(d, raw, "must be >= 0")
		}
		return Num(v), nil

	case DomainInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, invalid(d, raw, "not an integer")
		}
		return Num(float64(n)), nil

	case DomainPositiveInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, invalid(d, raw, "not an integer")
		}
		if n < 0 {
			return Value{}, invalid(d, raw, "must be >= 0")
		}
		return Num(float64(n)), nil
	}

	return Value{}, invalid(d, raw, "unknown domain")
}

// Format renders a value for display or serialization: the inverse of Parse.
func (d DomainKind) Format(v Value) string {
	if v.Deleted {
		return Tombstone
	}
	switch d {
	case DomainTrueFalse:
		if v.Num != 0 {
			return "True"
		}
		return "False"
	case DomainInteger, DomainPositiveInteger:
		return strconv.FormatInt(int64(v.Num), 10)
	default:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	}
}

func parseFinite(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value")
	}
	return v, nil
}
