package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveWeightsKnownPresets(t *testing.T) {
	for name, want := range Presets {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, ResolveWeights(name))
		})
	}
}

func TestResolveWeightsUnknownFallsBackToBalanced(t *testing.T) {
	assert.Equal(t, Presets["balanced-default"], ResolveWeights("not-a-preset"))
	assert.Equal(t, Presets["balanced-default"], ResolveWeights(""))
}

func TestWeightsValid(t *testing.T) {
	assert.True(t, Weights{Semantic: 0.5, Text: 0.3, Recency: 0.2}.Valid())
	assert.False(t, Weights{Semantic: 1.5, Text: 0.3, Recency: 0.2}.Valid())
	assert.False(t, Weights{Semantic: -0.1, Text: 0.3, Recency: 0.2}.Valid())
}

func TestAllPresetsAreValid(t *testing.T) {
	for name, w := range Presets {
		assert.True(t, w.Valid(), "preset %s should be valid", name)
	}
}
