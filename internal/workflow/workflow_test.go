package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStateExactSynonyms(t *testing.T) {
	assert.Equal(t, Conversation, ParseState("chat"))
	assert.Equal(t, Debug, ParseState("Debugging"))
	assert.Equal(t, Build, ParseState("BUILD"))
	assert.Equal(t, Stuck, ParseState("blocked"))
	assert.Equal(t, Review, ParseState("review"))
}

func TestParseStateEmptyDefaultsToConversation(t *testing.T) {
	assert.Equal(t, Conversation, ParseState(""))
	assert.Equal(t, Conversation, ParseState("   "))
}

func TestParseStatePrefixMatch(t *testing.T) {
	assert.Equal(t, Debug, ParseState("deb"))
}

func TestParseStateAmbiguousPrefixIsDeterministic(t *testing.T) {
	// "b" is a prefix of both "build" and "blocked"; repeated calls must
	// always resolve to the same state regardless of map iteration order.
	want := ParseState("b")
	for i := 0; i < 20; i++ {
		assert.Equal(t, want, ParseState("b"))
	}
}

func TestParseStateTypoFallsBackToLevenshtein(t *testing.T) {
	assert.Equal(t, Stuck, ParseState("stuk"))
	assert.Equal(t, Review, ParseState("reviw"))
}

func TestParseStateFarOffInputDefaultsToConversation(t *testing.T) {
	assert.Equal(t, Conversation, ParseState("xyzzyplugh"))
}

func TestParseStateIgnoresPunctuationAndCase(t *testing.T) {
	assert.Equal(t, Debug, ParseState("  De-Bug!! "))
}

func TestRecommendedModesKnownStates(t *testing.T) {
	assert.Equal(t, []Mode{FirstPrinciples, Systems, Swot}, RecommendedModes(Conversation))
	assert.Equal(t, []Mode{RootCause, Ooda, Socratic}, RecommendedModes(Debug))
	assert.Empty(t, RecommendedModes(Build))
}

func TestRecommendedModesUnknownStateReturnsNil(t *testing.T) {
	assert.Nil(t, RecommendedModes(State("bogus")))
}
