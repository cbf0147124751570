package ldap

import (
	"fmt"
	"strconv"
	"strings"
)

// Criterion is a single (name, value, comparator) leaf (spec.md §3
// "LDAPCriteria").
type Criterion struct {
	Name       string
	Value      string
	Comparator Comparator
}

var _ Expr = (*Criterion)(nil)

// Matches implements Expr. A missing property key never matches, regardless
// of comparator (mirrors pelix's KeyError -> False).
func (c *Criterion) Matches(props Properties) bool {
	v, ok := props.Get(c.Name)
	if !ok {
		return false
	}
	switch c.Comparator {
	case ComparatorPresence:
		return matchPresence(v)
	case ComparatorEq:
		return matchEquality(c.Value, v, false)
	case ComparatorSubstring:
		return matchSubstring(c.Value, v, false)
	case ComparatorApproximate:
		return matchEquality(c.Value, v, true)
	case ComparatorApproximateSubstring:
		return matchSubstring(c.Value, v, true)
	case ComparatorLt:
		ok, cmp := compareOrdered(c.Value, v)
		return ok && cmp < 0
	case ComparatorLe:
		ok, cmp := compareOrdered(c.Value, v)
		return ok && cmp <= 0
	case ComparatorGt:
		ok, cmp := compareOrdered(c.Value, v)
		return ok && cmp > 0
	case ComparatorGe:
		ok, cmp := compareOrdered(c.Value, v)
		return ok && cmp >= 0
	default:
		return false
	}
}

// Normalize returns the criterion unchanged (leaves are already canonical).
func (c *Criterion) Normalize() Expr {
	return c
}

// Equal reports value equality of all three fields.
func (c *Criterion) Equal(other Expr) bool {
	o, ok := other.(*Criterion)
	if !ok {
		return false
	}
	return c.Name == o.Name && c.Value == o.Value && c.Comparator == o.Comparator
}

func (c *Criterion) String() string {
	return fmt.Sprintf("(%s%s%s)", Escape(c.Name), c.Comparator.String(), Escape(c.Value))
}

func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	default:
		return "", false
	}
}

func toSequence(v any) ([]any, bool) {
	seq, ok := v.([]any)
	return seq, ok
}

// matchPresence implements comparator "*": present, not empty string, not
// empty sequence (spec.md §4.A "Presence").
func matchPresence(v any) bool {
	switch t := v.(type) {
	case string:
		return t != ""
	case []any:
		return len(t) != 0
	case nil:
		return false
	default:
		return true
	}
}

// elementStrings renders a scalar or sequence value as a list of strings for
// element-wise comparison.
func elementStrings(v any) []string {
	if seq, ok := toSequence(v); ok {
		out := make([]string, 0, len(seq))
		for _, e := range seq {
			out = append(out, elementString(e))
		}
		return out
	}
	return []string{elementString(v)}
}

func elementString(v any) string {
	if s, ok := stringify(v); ok {
		return s
	}
	switch t := v.(type) {
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// matchEquality implements comparator "=" (and its approximate variant),
// with sequence membership semantics (spec.md §4.A "Equality").
func matchEquality(filterValue string, tested any, approximate bool) bool {
	fv := filterValue
	if approximate {
		fv = strings.ToLower(fv)
	}
	for _, s := range elementStrings(tested) {
		if approximate {
			s = strings.ToLower(s)
		}
		if s == fv {
			return true
		}
	}
	if !approximate {
		return false
	}
	// Approximate also falls back to a raw (non-lowered) comparison, per
	// pelix's _comparator_approximate.
	for _, s := range elementStrings(tested) {
		if s == filterValue {
			return true
		}
	}
	return false
}

// matchSubstring implements comparator "=a*b*c" (and its approximate
// variant), applied element-wise to sequences (spec.md §4.A "Substring").
func matchSubstring(filterValue string, tested any, approximate bool) bool {
	fv := filterValue
	if approximate {
		fv = strings.ToLower(fv)
	}
	for _, s := range elementStrings(tested) {
		if approximate {
			s = strings.ToLower(s)
		}
		if substringMatch(fv, s) {
			return true
		}
	}
	return false
}

// substringMatch implements the ordered-hole substring test: a leading
// non-"*" segment must start at position 0, a trailing segment must end the
// value, interior segments must appear in order.
func substringMatch(filterValue, tested string) bool {
	parts := strings.Split(filterValue, "*")
	idx := 0
	last := len(parts) - 1
	for i, part := range parts {
		pos := strings.Index(tested[idx:], part)
		if i == last && i != 0 {
			pos = strings.LastIndex(tested[idx:], part)
		}
		if pos == -1 {
			return false
		}
		pos += idx
		if i == 0 && len(part) != 0 && pos != 0 {
			return false
		}
		if i == last && len(part) != 0 && pos != len(tested)-len(part) {
			return false
		}
		idx = pos + len(part)
	}
	return true
}

// compareOrdered implements "<", "<=", ">", ">=" coercion: the filter value
// is coerced to the tested value's type; failing that, a float coercion is
// tried if the tested value is an integer; failing both, ok is false and the
// comparison returns false rather than raising (spec.md §4.A "Ordering").
func compareOrdered(filterValue string, tested any) (ok bool, cmp int) {
	switch t := tested.(type) {
	case string:
		return true, strings.Compare(t, filterValue)
	case int:
		return compareInt(int64(t), filterValue)
	case int64:
		return compareInt(t, filterValue)
	case float64:
		return compareFloat(t, filterValue)
	case bool:
		return false, 0
	default:
		return false, 0
	}
}

func compareInt(tested int64, filterValue string) (bool, int) {
	n, err := strconv.ParseInt(filterValue, 10, 64)
	if err == nil {
		switch {
		case tested < n:
			return true, -1
		case tested > n:
			return true, 1
		default:
			return true, 0
		}
	}
	f, ferr := strconv.ParseFloat(filterValue, 64)
	if ferr != nil {
		return false, 0
	}
	tf := float64(tested)
	switch {
	case tf < f:
		return true, -1
	case tf > f:
		return true, 1
	default:
		return true, 0
	}
}

func compareFloat(tested float64, filterValue string) (bool, int) {
	f, err := strconv.ParseFloat(filterValue, 64)
	if err != nil {
		return false, 0
	}
	switch {
	case tested < f:
		return true, -1
	case tested > f:
		return true, 1
	default:
		return true, 0
	}
}
