package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/8agana/unified-intelligence/internal/apperr"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"validation", apperr.Validation("content required", nil), "invalid_params"},
		{"duplicate", apperr.Duplicate("already exists", nil), "invalid_params"},
		{"rate limited", apperr.RateLimited("too many requests", nil), "invalid_params"},
		{"not found", apperr.NotFound("chain not found", nil), "invalid_params"},
		{"store failure", apperr.Store("redis down", nil), "internal_error"},
		{"unclassified", errors.New("boom"), "internal_error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := MapError(tc.err)
			assert.Equal(t, tc.wantCode, got.Code)
			assert.Equal(t, tc.err.Error(), got.Message)
		})
	}
}
