// Package ldap implements the RFC-style LDAP filter engine used throughout
// service lookup, event listener subscriptions and component requirements
// (spec.md §4.A).
//
// Grounded on pelix/ldapfilter.py (original_source), restructured around a
// single Expr interface (Filter and Criterion both implement it) instead of
// Python's duck typing, and on giantswarm-muster's sentinel-error style for
// ParseError.
package ldap

import "fmt"

// Operator is the boolean combinator of a Filter node.
type Operator int

const (
	AND Operator = iota
	OR
	NOT
)

func (op Operator) String() string {
	switch op {
	case AND:
		return "&"
	case OR:
		return "|"
	case NOT:
		return "!"
	default:
		return "?"
	}
}

// Comparator identifies the kind of test an LDAPCriteria performs.
type Comparator int

const (
	ComparatorEq Comparator = iota
	ComparatorLt
	ComparatorLe
	ComparatorGt
	ComparatorGe
	ComparatorApproximate
	ComparatorPresence
	ComparatorSubstring
	ComparatorApproximateSubstring
)

func (c Comparator) String() string {
	switch c {
	case ComparatorLe:
		return "<="
	case ComparatorLt:
		return "<"
	case ComparatorGe:
		return ">="
	case ComparatorGt:
		return ">"
	case ComparatorApproximate, ComparatorApproximateSubstring:
		return "~="
	default:
		return "="
	}
}

// Expr is satisfied by both Filter and Criterion, matching spec.md §3
// "LDAPFilter. Tree node... " and "LDAPCriteria. Triple...".
type Expr interface {
	// Matches tests the expression against a property lookup function.
	Matches(props Properties) bool
	// Normalize returns the canonical, idempotent form of the expression
	// (spec.md §4.A "Normalization").
	Normalize() Expr
	// Equal reports structural equality, used by Normalize to drop
	// duplicate children.
	Equal(other Expr) bool
	String() string
}

// Properties is the minimal read interface the filter engine needs from a
// property map; internal/property.Map satisfies it.
type Properties interface {
	Get(key string) (any, bool)
}

// ParseError reports a malformed filter string (spec.md §7 "Bad filter").
type ParseError struct {
	Filter string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("bad LDAP filter %q: %s", e.Filter, e.Reason)
}

// Combine ANDs/ORs a set of filters, skipping absent (nil) members. An empty
// or all-nil input returns nil; a single non-nil member is returned
// unchanged; otherwise the members are wrapped in a new Filter and
// normalized (spec.md §4.A "combine").
func Combine(exprs []Expr, op Operator) Expr {
	var kept []Expr
	for _, e := range exprs {
		if e != nil {
			kept = append(kept, e)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		f := &Filter{Operator: op, Children: kept}
		return f.Normalize()
	}
}
