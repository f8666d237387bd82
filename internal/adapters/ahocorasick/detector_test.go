package ahocorasick

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Signature detector: one pass over the snippet, every language scored
// =============================================================================

var sigs = map[string][]string{
	"css":        {"margin:", "padding:", "px;"},
	"javascript": {"function ", "console.log", "var "},
	"java":       {"public class", "System.out", "private final"},
}

func TestDetect_SingleLanguage(t *testing.T) {
	d, err := NewDetector(sigs)
	require.NoError(t, err)
	assert.Equal(t, "css", d.Detect("a { margin: 0; padding: 2px; }"))
	assert.Equal(t, "java", d.Detect("public class A { void f() { System.out.println(1); } }"))
}

func TestDetect_MostDistinctSignaturesWins(t *testing.T) {
	d, err := NewDetector(sigs)
	require.NoError(t, err)
	// one css signature, two javascript ones
	assert.Equal(t, "javascript", d.Detect("var m = 'margin:'; function go() {}"))
}

func TestDetect_NoMatch(t *testing.T) {
	d, err := NewDetector(sigs)
	require.NoError(t, err)
	assert.Equal(t, "", d.Detect("plain words only"))
	assert.Equal(t, "", d.Detect(""))
	assert.Nil(t, d.Scores("plain words only"))
	assert.Nil(t, d.Scores(""))
}

func TestScores_CountsHitsAndDistinct(t *testing.T) {
	d, err := NewDetector(sigs)
	require.NoError(t, err)

	scores := d.Scores("var a; var b; console.log(a)")
	require.Len(t, scores, 1)
	assert.Equal(t, Score{Language: "javascript", Distinct: 2, Hits: 3}, scores[0])
}

func TestScores_SharedSignature(t *testing.T) {
	d, err := NewDetector(map[string][]string{
		"a": {"shared"},
		"b": {"shared", "only-b"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, d.PatternCount())

	scores := d.Scores("shared")
	require.Len(t, scores, 2)
	assert.Equal(t, "a", scores[0].Language, "tie broken by name")

	assert.Equal(t, "b", d.Detect("shared only-b"))
}

func TestRebuild(t *testing.T) {
	d, err := NewDetector(sigs)
	require.NoError(t, err)

	require.NoError(t, d.Rebuild(map[string][]string{"ini": {"[section]"}}))
	assert.Equal(t, "", d.Detect("margin: 0"))
	assert.Equal(t, "ini", d.Detect("[section]\nk=v"))

	assert.Error(t, d.Rebuild(map[string][]string{"bad": {""}}))
}

func TestEmptyDetector(t *testing.T) {
	d, err := NewDetector(nil)
	require.NoError(t, err)
	assert.Equal(t, "", d.Detect("anything"))
}
