package ldap

import "strings"

// Parse parses an LDAP filter string, returning nil on blank input and a
// *ParseError on unmatched parentheses, empty attribute name, unknown
// comparator, or a "not" with other than one operand (spec.md §4.A
// "parse(s)").
func Parse(s string) (Expr, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, nil
	}

	p := &parser{src: trimmed}
	root, err := p.parse()
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, &ParseError{Filter: s, Reason: "empty filter tree"}
	}
	return root.Normalize(), nil
}

type parser struct {
	src string
}

// parse walks the string iteratively with an explicit stack, mirroring
// pelix's _parse_ldap loop (original_source/pelix/ldapfilter.py).
func (p *parser) parse() (Expr, error) {
	var root Expr
	var stack []*Filter
	var criterionStart []int

	escaped := false
	n := len(p.src)
	idx := 0

	for idx < n {
		ch := p.src[idx]
		if !escaped {
			switch ch {
			case '(':
				next := p.skipSpaces(idx + 1)
				if next == -1 {
					return nil, &ParseError{Filter: p.src, Reason: "missing filter operator"}
				}
				op, isOp := p.operatorAt(next)
				if isOp {
					stack = append(stack, &Filter{Operator: op})
				} else {
					criterionStart = append(criterionStart, next)
				}
			case ')':
				switch {
				case len(criterionStart) > 0:
					start := criterionStart[len(criterionStart)-1]
					criterionStart = criterionStart[:len(criterionStart)-1]
					crit, err := p.parseCriterion(start, idx)
					if err != nil {
						return nil, err
					}
					if len(stack) > 0 {
						top := stack[len(stack)-1]
						top.Children = append(top.Children, crit)
					} else {
						root = &Filter{Operator: AND, Children: []Expr{crit}}
					}
				case len(stack) > 0:
					ended := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					if err := p.validateOperandCount(ended); err != nil {
						return nil, err
					}
					if len(stack) > 0 {
						top := stack[len(stack)-1]
						top.Children = append(top.Children, ended)
					} else {
						root = ended
					}
				default:
					return nil, &ParseError{Filter: p.src, Reason: "too many closing parentheses"}
				}
			case '\\':
				escaped = true
			}
		} else {
			escaped = false
		}
		idx++
	}

	if root == nil {
		return nil, &ParseError{Filter: p.src, Reason: "invalid filter string"}
	}
	return root, nil
}

func (p *parser) validateOperandCount(f *Filter) error {
	if f.Operator == NOT && len(f.Children) != 1 {
		return &ParseError{Filter: p.src, Reason: "'not' must have exactly one operand"}
	}
	if len(f.Children) == 0 {
		return &ParseError{Filter: p.src, Reason: "empty sub-filter"}
	}
	return nil
}

func (p *parser) operatorAt(idx int) (Operator, bool) {
	switch p.src[idx] {
	case '&':
		return AND, true
	case '|':
		return OR, true
	case '!':
		return NOT, true
	default:
		return 0, false
	}
}

func (p *parser) skipSpaces(idx int) int {
	for i := idx; i < len(p.src); i++ {
		if p.src[i] != ' ' && p.src[i] != '\t' && p.src[i] != '\n' && p.src[i] != '\r' {
			return i
		}
	}
	return -1
}

// parseCriterion parses a single "(name<cmp>value)" body, where start:end is
// the span strictly between the parentheses.
func (p *parser) parseCriterion(start, end int) (*Criterion, error) {
	const comparatorChars = "=<>~"

	escaped := false
	idx := start
	found := false
	for ; idx < end; idx++ {
		ch := p.src[idx]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if strings.ContainsRune(comparatorChars, rune(ch)) {
			found = true
			break
		}
	}
	if !found {
		return nil, &ParseError{Filter: p.src, Reason: "comparator not found in '" + p.src[start:end] + "'"}
	}

	name := strings.TrimSpace(p.src[start:idx])
	if name == "" {
		return nil, &ParseError{Filter: p.src, Reason: "attribute name is missing"}
	}

	comparator, width, ok := p.comparatorAt(idx)
	if !ok {
		return nil, &ParseError{Filter: p.src, Reason: "unknown comparator at '" + p.src[idx:end] + "'"}
	}
	idx += width

	valStart := p.skipSpacesBounded(idx, end)
	value := strings.TrimSpace(p.src[valStart:end])

	if value == "*" {
		comparator = ComparatorPresence
	} else if strings.Contains(value, "*") {
		switch comparator {
		case ComparatorEq:
			comparator = ComparatorSubstring
		case ComparatorApproximate:
			comparator = ComparatorApproximateSubstring
		}
	}

	return &Criterion{
		Name:       Unescape(name),
		Value:      Unescape(value),
		Comparator: comparator,
	}, nil
}

func (p *parser) skipSpacesBounded(idx, end int) int {
	for idx < end && (p.src[idx] == ' ' || p.src[idx] == '\t') {
		idx++
	}
	return idx
}

// comparatorAt identifies the comparator starting at idx and returns its
// width in bytes (1 for single-character operators, 2 for <=, >=, ~=).
func (p *parser) comparatorAt(idx int) (Comparator, int, bool) {
	c1 := p.src[idx]
	if idx+1 >= len(p.src) {
		return 0, 0, false
	}
	c2 := p.src[idx+1]

	if c1 == '=' {
		return ComparatorEq, 1, true
	}
	if c2 == '=' {
		switch c1 {
		case '<':
			return ComparatorLe, 2, true
		case '>':
			return ComparatorGe, 2, true
		case '~':
			return ComparatorApproximate, 2, true
		}
		return 0, 0, false
	}
	switch c1 {
	case '<':
		return ComparatorLt, 1, true
	case '>':
		return ComparatorGt, 1, true
	}
	return 0, 0, false
}
