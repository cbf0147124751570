package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type propMap map[string]any

func (m propMap) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

func TestParseSimpleEquality(t *testing.T) {
	f, err := Parse("(a=1)")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.True(t, f.Matches(propMap{"a": "1"}))
	assert.False(t, f.Matches(propMap{"a": "2"}))
	assert.False(t, f.Matches(propMap{}))
}

func TestParseBlankIsAbsent(t *testing.T) {
	f, err := Parse("   ")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestParseAndOr(t *testing.T) {
	f, err := Parse("(&(a=1)(b=2))")
	require.NoError(t, err)
	assert.True(t, f.Matches(propMap{"a": "1", "b": "2"}))
	assert.False(t, f.Matches(propMap{"a": "1", "b": "3"}))

	f, err = Parse("(|(a=1)(b=2))")
	require.NoError(t, err)
	assert.True(t, f.Matches(propMap{"a": "1", "b": "9"}))
	assert.False(t, f.Matches(propMap{"a": "9", "b": "9"}))
}

func TestParseNotRequiresOneOperand(t *testing.T) {
	f, err := Parse("(!(a=1))")
	require.NoError(t, err)
	assert.False(t, f.Matches(propMap{"a": "1"}))
	assert.True(t, f.Matches(propMap{"a": "2"}))

	_, err = Parse("(!(a=1)(b=2))")
	require.Error(t, err)
	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestParseUnmatchedParens(t *testing.T) {
	_, err := Parse("(a=1")
	assert.Error(t, err)

	_, err = Parse("a=1)")
	assert.Error(t, err)
}

func TestParseEmptyAttributeName(t *testing.T) {
	_, err := Parse("(=1)")
	assert.Error(t, err)
}

func TestParseUnknownComparator(t *testing.T) {
	_, err := Parse("(a?1)")
	assert.Error(t, err)
}

func TestPresence(t *testing.T) {
	f, err := Parse("(a=*)")
	require.NoError(t, err)
	assert.True(t, f.Matches(propMap{"a": "anything"}))
	assert.False(t, f.Matches(propMap{"a": ""}))
	assert.False(t, f.Matches(propMap{"a": []any{}}))
	assert.False(t, f.Matches(propMap{}))
}

func TestSubstring(t *testing.T) {
	f, err := Parse("(a=h*o)")
	require.NoError(t, err)
	assert.True(t, f.Matches(propMap{"a": "hello"}))
	assert.False(t, f.Matches(propMap{"a": "goodbye"}))

	f, err = Parse("(a=*ell*)")
	require.NoError(t, err)
	assert.True(t, f.Matches(propMap{"a": "hello"}))
}

func TestSubstringSequence(t *testing.T) {
	f, err := Parse("(a=h*o)")
	require.NoError(t, err)
	assert.True(t, f.Matches(propMap{"a": []any{"goodbye", "hello"}}))
}

func TestApproximate(t *testing.T) {
	f, err := Parse("(a~=HELLO)")
	require.NoError(t, err)
	assert.True(t, f.Matches(propMap{"a": "hello"}))
}

func TestOrdering(t *testing.T) {
	f, err := Parse("(a<=5)")
	require.NoError(t, err)
	assert.True(t, f.Matches(propMap{"a": 3}))
	assert.True(t, f.Matches(propMap{"a": 5}))
	assert.False(t, f.Matches(propMap{"a": 9}))

	f, err = Parse("(a>3)")
	require.NoError(t, err)
	assert.True(t, f.Matches(propMap{"a": 5}))
	assert.False(t, f.Matches(propMap{"a": 3}))
}

func TestOrderingNonCoercibleReturnsFalse(t *testing.T) {
	f, err := Parse("(a<5)")
	require.NoError(t, err)
	assert.False(t, f.Matches(propMap{"a": true}))
}

func TestOrderingIntFallsBackToFloat(t *testing.T) {
	f, err := Parse("(a<5.5)")
	require.NoError(t, err)
	assert.True(t, f.Matches(propMap{"a": 5}))
}

func TestNormalizationRoundTrip(t *testing.T) {
	cases := []string{
		"(a=1)",
		"(&(a=1)(b=2))",
		"(|(a=1)(b=2)(c=3))",
		"(!(a=1))",
		"(&(a=1))",
	}
	for _, c := range cases {
		f1, err := Parse(c)
		require.NoError(t, err)
		f2, err := Parse(f1.String())
		require.NoError(t, err)
		assert.True(t, f1.Equal(f2), "round trip mismatch for %s: %s vs %s", c, f1, f2)
	}
}

func TestDuplicateChildrenRemoved(t *testing.T) {
	f, err := Parse("(&(a=1)(a=1)(b=2))")
	require.NoError(t, err)
	ff, ok := f.(*Filter)
	require.True(t, ok)
	assert.Len(t, ff.Children, 2)
}

func TestCombine(t *testing.T) {
	assert.Nil(t, Combine(nil, AND))

	f1, _ := Parse("(a=1)")
	assert.True(t, Combine([]Expr{nil, f1}, AND).Equal(f1))

	f2, _ := Parse("(b=2)")
	combined := Combine([]Expr{f1, f2}, AND)
	ff, ok := combined.(*Filter)
	require.True(t, ok)
	assert.Equal(t, AND, ff.Operator)
	assert.Len(t, ff.Children, 2)
}

func TestEscapeUnescape(t *testing.T) {
	s := ` a(b)c\d `
	esc := Escape(s)
	assert.Equal(t, s, Unescape(esc))
}
