package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8agana/unified-intelligence/internal/scripts"
)

func TestScriptCacheLoadsAllScriptsAndExecutes(t *testing.T) {
	skipIfNoDocker(t)
	setup := SetupRedis(t)
	defer setup.Cleanup()

	gw := setup.Gateway(t)
	sc := setup.Scripts(t, gw)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := sc.Exec(ctx, scripts.StoreThought,
		[]string{"agent-a:Thoughts:t1", "agent-a:Thoughts:dedup", "agent-a:Thoughts:counter", ""},
		`{"id":"t1","content":"hello"}`, "t1", "2026-01-01T00:00:00Z", "")
	require.NoError(t, err)
	assert.Equal(t, "OK", res)

	res, err = sc.Exec(ctx, scripts.StoreThought,
		[]string{"agent-a:Thoughts:t1", "agent-a:Thoughts:dedup", "agent-a:Thoughts:counter", ""},
		`{"id":"t1","content":"hello"}`, "t1", "2026-01-01T00:00:00Z", "")
	require.NoError(t, err)
	assert.Equal(t, "DUPLICATE", res)
}

func TestScriptCacheSurvivesScriptFlush(t *testing.T) {
	skipIfNoDocker(t)
	setup := SetupRedis(t)
	defer setup.Cleanup()

	gw := setup.Gateway(t)
	sc := setup.Scripts(t, gw)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, gw.Raw().ScriptFlush(ctx).Err())

	// A NOSCRIPT error on the first EVALSHA must be transparently reloaded
	// and retried rather than surfaced to the caller.
	res, err := sc.Exec(ctx, scripts.GetThought, []string{"agent-a:Thoughts:does-not-exist"})
	require.NoError(t, err)
	assert.Nil(t, res)
}
