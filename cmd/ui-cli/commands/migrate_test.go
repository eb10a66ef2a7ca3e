package commands

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8agana/unified-intelligence/internal/store"
)

func TestRecoverChunkReadsSummaryAtOffset(t *testing.T) {
	addr := startRedisStack(t)
	t.Setenv("REDIS_URL", "redis://"+addr)
	t.Setenv("INSTANCE_ID", "cli-migrate")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	d, err := bootstrap(ctx)
	require.NoError(t, err)
	defer d.Close()

	chainID := "legacy-chain"
	sumKey := fmt.Sprintf("%s:ui_start:summary:%s", d.cfg.InstanceID, chainID)
	require.NoError(t, d.gw.JSONSet(ctx, sumKey, "$", `{"summary":"the full recovered summary text","created_at":"2026-01-01T00:00:00Z"}`))

	chunk, ts := recoverChunk(ctx, d, chainID, 0)
	assert.Equal(t, "the full recovered summary text", chunk)
	assert.Greater(t, ts, int64(0))
}

func TestRecoverChunkFallsBackWhenSummaryMissing(t *testing.T) {
	addr := startRedisStack(t)
	t.Setenv("REDIS_URL", "redis://"+addr)
	t.Setenv("INSTANCE_ID", "cli-migrate-2")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	d, err := bootstrap(ctx)
	require.NoError(t, err)
	defer d.Close()

	chunk, ts := recoverChunk(ctx, d, "no-such-chain", 0)
	assert.Equal(t, "", chunk)
	assert.Greater(t, ts, int64(0))
}

func TestMigrateOneRewritesLegacyKeyIntoHashDocument(t *testing.T) {
	addr := startRedisStack(t)
	t.Setenv("REDIS_URL", "redis://"+addr)
	t.Setenv("INSTANCE_ID", "cli-migrate-3")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	d, err := bootstrap(ctx)
	require.NoError(t, err)
	defer d.Close()

	chainID := "legacy-chain-3"
	sumKey := fmt.Sprintf("%s:ui_start:summary:%s", d.cfg.InstanceID, chainID)
	require.NoError(t, d.gw.JSONSet(ctx, sumKey, "$", `{"summary":"migrated chunk text","created_at":"2026-01-02T00:00:00Z"}`))

	legacyKey := fmt.Sprintf("%s:ui_start:emb:%s:0", d.cfg.InstanceID, chainID)
	require.NoError(t, d.gw.StringSet(ctx, legacyKey, store.EncodeVector([]float32{0.1, 0.2, 0.3})))

	prefix := fmt.Sprintf("%s:embeddings:session-summaries:", d.cfg.InstanceID)
	ok, err := migrateOne(ctx, d, legacyKey, prefix)
	require.NoError(t, err)
	assert.True(t, ok)

	targetKey := prefix + chainID + ":0"
	fields, err := d.gw.HashGetAll(ctx, targetKey)
	require.NoError(t, err)
	assert.Equal(t, "migrated chunk text", fields["content"])

	_, found, err := d.gw.StringGet(ctx, legacyKey)
	require.NoError(t, err)
	assert.False(t, found, "legacy key should be deleted after migration")
}

func TestMigrateOneSkipsWhenTargetAlreadyMigrated(t *testing.T) {
	addr := startRedisStack(t)
	t.Setenv("REDIS_URL", "redis://"+addr)
	t.Setenv("INSTANCE_ID", "cli-migrate-4")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	d, err := bootstrap(ctx)
	require.NoError(t, err)
	defer d.Close()

	chainID := "legacy-chain-4"
	legacyKey := fmt.Sprintf("%s:ui_start:emb:%s:0", d.cfg.InstanceID, chainID)
	require.NoError(t, d.gw.StringSet(ctx, legacyKey, store.EncodeVector([]float32{0.1})))

	prefix := fmt.Sprintf("%s:embeddings:session-summaries:", d.cfg.InstanceID)
	targetKey := prefix + chainID + ":0"
	require.NoError(t, d.gw.HashUpsert(ctx, targetKey, map[string]interface{}{"content": "already migrated"}))

	ok, err := migrateOne(ctx, d, legacyKey, prefix)
	require.NoError(t, err)
	assert.False(t, ok)
}
