package grammar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rule(name, expr string) Rule {
	return Pattern(name, MustCompile(expr, ""))
}

// =============================================================================
// Grammar: ordered rules, in-place replacement, rest expansion
// =============================================================================

func TestNew_PreservesOrder(t *testing.T) {
	g := New(rule("a", "a"), rule("b", "b"), rule("c", "c"))
	assert.Equal(t, []string{"a", "b", "c"}, g.Names())
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, "[a b c]", g.String())
}

func TestNew_DuplicateNameReplacesInPlace(t *testing.T) {
	g := New(rule("a", "a"), rule("b", "b"), rule("a", "x"))
	assert.Equal(t, []string{"a", "b"}, g.Names())

	r, ok := g.Rule("a")
	require.True(t, ok)
	assert.Equal(t, "x", r.Pattern.String())
}

func TestRules_ReturnsCopy(t *testing.T) {
	g := New(rule("a", "a"))
	rules := g.Rules()
	rules[0].Name = "changed"
	assert.Equal(t, []string{"a"}, g.Names())
}

func TestNilGrammar_IsEmpty(t *testing.T) {
	var g *Grammar
	assert.Equal(t, 0, g.Len())
	assert.Nil(t, g.Rules())
	assert.Equal(t, -1, g.Index("a"))
	assert.Nil(t, g.Clone())
	assert.Nil(t, g.Expanded())
}

func TestExpanded_AppendsRestWithoutMutating(t *testing.T) {
	rest := New(rule("x", "x"), rule("b", "B"))
	g := New(rule("a", "a"), rule("b", "b"))
	g.Rest = rest

	e := g.Expanded()
	assert.Equal(t, []string{"a", "b", "x"}, e.Names())
	assert.Nil(t, e.Rest)

	b, _ := e.Rule("b")
	assert.Equal(t, "B", b.Pattern.String(), "rest rule replaces same-named rule in place")

	// receiver untouched
	assert.Equal(t, []string{"a", "b"}, g.Names())
	assert.Same(t, rest, g.Rest)
	orig, _ := g.Rule("b")
	assert.Equal(t, "b", orig.Pattern.String())
}

func TestDisabled(t *testing.T) {
	assert.True(t, Rule{Name: "off"}.Disabled())
	assert.False(t, rule("on", "x").Disabled())
}

// =============================================================================
// Compile: JavaScript-style flags on top of the ECMAScript engine mode
// =============================================================================

func TestCompile_Flags(t *testing.T) {
	re, err := Compile("abc", "gi")
	require.NoError(t, err)
	ok, err := re.MatchString("xABCx")
	require.NoError(t, err)
	assert.True(t, ok)

	re, err = Compile("^b", "m")
	require.NoError(t, err)
	ok, err = re.MatchString("a\nb")
	require.NoError(t, err)
	assert.True(t, ok)

	re, err = Compile("a.b", "s")
	require.NoError(t, err)
	ok, err = re.MatchString("a\nb")
	require.NoError(t, err)
	assert.True(t, ok)

	re, err = Compile("a.b", "")
	require.NoError(t, err)
	ok, err = re.MatchString("a\nb")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompile_ECMAScriptClasses(t *testing.T) {
	// \w is ASCII-only in ECMAScript mode
	re, err := Compile(`^\w+$`, "")
	require.NoError(t, err)
	ok, err := re.MatchString("héllo")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompile_Backreference(t *testing.T) {
	re, err := Compile(`("|')(\\?.)*?\1`, "")
	require.NoError(t, err)
	m, err := re.FindStringMatch(`x = 'it"s' y`)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, `'it"s'`, m.String())
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile("a", "y")
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = Compile("(unclosed", "")
	assert.ErrorIs(t, err, ErrInvalidPattern)

	assert.Panics(t, func() { MustCompile("[", "") })
}

func TestSetMatchTimeout_ReachesNestedRules(t *testing.T) {
	inner := New(rule("punct", "="))
	outer := New(Rule{Name: "attr", Pattern: MustCompile("=x", ""), Inside: inner})

	SetMatchTimeout(outer, 250*time.Millisecond)

	r, _ := outer.Rule("attr")
	assert.Equal(t, 250*time.Millisecond, r.Pattern.MatchTimeout)
	p, _ := inner.Rule("punct")
	assert.Equal(t, 250*time.Millisecond, p.Pattern.MatchTimeout)
}
