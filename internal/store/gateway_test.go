package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpireNoOpForNonPositiveTTL(t *testing.T) {
	g := &Gateway{}
	assert.NoError(t, g.Expire(context.Background(), "some:key", 0))
	assert.NoError(t, g.Expire(context.Background(), "some:key", -5))
}

func TestEncodeDecodeVectorRoundTrips(t *testing.T) {
	original := []float32{0.1, -2.5, 3.333, 0, 1e10}
	decoded := DecodeVector(EncodeVector(original))
	assert.Equal(t, original, decoded)
}

func TestEncodeVectorEmpty(t *testing.T) {
	assert.Empty(t, DecodeVector(EncodeVector(nil)))
}

func TestIsAlreadyExists(t *testing.T) {
	assert.True(t, isAlreadyExists(errors.New("Index already exists")))
	assert.False(t, isAlreadyExists(errors.New("unknown error")))
	assert.False(t, isAlreadyExists(nil))
}

func TestIsUnknownIndex(t *testing.T) {
	assert.True(t, isUnknownIndex(errors.New("Unknown Index name")))
	assert.True(t, isUnknownIndex(errors.New("no such index")))
	assert.False(t, isUnknownIndex(errors.New("connection refused")))
	assert.False(t, isUnknownIndex(nil))
}
