package ldap

import "strings"

// Filter is a boolean tree node: AND/OR accept one or more children, NOT
// accepts exactly one (spec.md §3 "LDAPFilter").
type Filter struct {
	Operator Operator
	Children []Expr
}

var _ Expr = (*Filter)(nil)

// Matches implements Expr.
func (f *Filter) Matches(props Properties) bool {
	switch f.Operator {
	case OR:
		for _, c := range f.Children {
			if c.Matches(props) {
				return true
			}
		}
		return false
	case NOT:
		if len(f.Children) != 1 {
			return false
		}
		return !f.Children[0].Matches(props)
	default: // AND
		for _, c := range f.Children {
			if !c.Matches(props) {
				return false
			}
		}
		return true
	}
}

// Normalize collapses empty filters to nil, single-child non-NOT filters to
// their child, and removes duplicate children (spec.md §3 "Filters are
// normalized").
func (f *Filter) Normalize() Expr {
	if len(f.Children) == 0 {
		return nil
	}

	var kept []Expr
	for _, c := range f.Children {
		norm := c.Normalize()
		if norm == nil {
			continue
		}
		duplicate := false
		for _, existing := range kept {
			if existing.Equal(norm) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, norm)
		}
	}
	f.Children = kept

	if len(kept) > 1 || f.Operator == NOT {
		return f
	}
	if len(kept) == 1 {
		return kept[0].Normalize()
	}
	return nil
}

// Equal reports structural equality: same operator, same children
// (order-independent), pairwise equal.
func (f *Filter) Equal(other Expr) bool {
	o, ok := other.(*Filter)
	if !ok {
		return false
	}
	if f.Operator != o.Operator || len(f.Children) != len(o.Children) {
		return false
	}
	for _, c := range f.Children {
		found := false
		for _, oc := range o.Children {
			if c.Equal(oc) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (f *Filter) String() string {
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(f.Operator.String())
	for _, c := range f.Children {
		b.WriteString(c.String())
	}
	b.WriteByte(')')
	return b.String()
}
