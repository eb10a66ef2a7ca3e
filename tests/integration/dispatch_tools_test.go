package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8agana/unified-intelligence/internal/dispatch"
	"github.com/8agana/unified-intelligence/internal/embedding"
	"github.com/8agana/unified-intelligence/internal/knowledge"
	"github.com/8agana/unified-intelligence/internal/ratelimit"
	"github.com/8agana/unified-intelligence/internal/retrieval"
	"github.com/8agana/unified-intelligence/internal/session"
	"github.com/8agana/unified-intelligence/internal/synthesis"
	"github.com/8agana/unified-intelligence/internal/thought"
	"github.com/8agana/unified-intelligence/pkg/uid"
)

func newFullDispatcher(t *testing.T, setup *TestContainerSetup) *dispatch.Dispatcher {
	t.Helper()
	gw := setup.Gateway(t)
	sc := setup.Scripts(t, gw)

	thoughts := thought.New(gw, sc, testLogger())
	require.NoError(t, thoughts.EnsureTextIndex(context.Background(), "agent-tools"))
	kg := knowledge.New(gw, sc, nil, testLogger())

	transport := &fakeEmbedTransport{dims: 8}
	embeddings := embedding.New(gw, transport, embedding.Config{Dims: 8, HNSWM: 8, HNSWEFConstruct: 100}, testLogger())
	textSearch := thought.TextSearchAdapter{Repo: thoughts}
	retrievalEngine := retrieval.New(gw, embeddings, testLogger())

	chat := &fakeChatTransport{}
	synth := synthesis.New(thoughts, retrievalEngine, textSearch, chat, gw, testLogger())
	bootstrapper := session.New(thoughts, kg, embeddings, fakeSummarizer{}, gw, testLogger())

	return &dispatch.Dispatcher{
		Thoughts:       thoughts,
		Knowledge:      kg,
		Embeddings:     embeddings,
		Retrieval:      retrievalEngine,
		TextIndex:      textSearch,
		Synthesis:      synth,
		Session:        bootstrapper,
		Gateway:        gw,
		Log:            testLogger(),
		Limiter:        ratelimit.New(1000, time.Minute),
		DefaultWeights: retrieval.ResolveWeights("balanced-default"),
	}
}

func TestDispatchUiRecallThoughtAndChainModes(t *testing.T) {
	skipIfNoDocker(t)
	setup := SetupRedis(t)
	defer setup.Cleanup()
	d := newFullDispatcher(t, setup)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	stored, err := d.Dispatch(ctx, "agent-tools", "ui_think", dispatch.Params{
		"thought": "recall target", "thought_number": 1, "total_thoughts": 1,
		"chain_id": "remember:recall-chain", "next_thought_needed": false,
	})
	require.NoError(t, err)
	thoughtID := stored["thought_id"].(string)

	byID, err := d.Dispatch(ctx, "agent-tools", "ui_recall", dispatch.Params{"mode": "thought", "id": thoughtID})
	require.NoError(t, err)
	assert.NotNil(t, byID["thought"])

	byChain, err := d.Dispatch(ctx, "agent-tools", "ui_recall", dispatch.Params{"mode": "chain", "id": "remember:recall-chain"})
	require.NoError(t, err)
	assert.NotNil(t, byChain["thoughts"])
}

func TestDispatchUiRememberQueryThenFeedback(t *testing.T) {
	skipIfNoDocker(t)
	setup := SetupRedis(t)
	defer setup.Cleanup()
	d := newFullDispatcher(t, setup)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	chainID := "remember:remember-tool-chain"
	query, err := d.Dispatch(ctx, "agent-tools", "ui_remember", dispatch.Params{
		"action": "query", "thought": "what was decided last time?", "chain_id": chainID,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, query["thought1_id"])
	assert.NotEmpty(t, query["thought2_id"])

	feedback, err := d.Dispatch(ctx, "agent-tools", "ui_remember", dispatch.Params{
		"action": "feedback", "chain_id": chainID, "feedback": "that's helpful",
	})
	require.NoError(t, err)
	assert.Equal(t, "feedback_saved", feedback["status"])
}

func TestDispatchUiStartBootstrapsNewChain(t *testing.T) {
	skipIfNoDocker(t)
	setup := SetupRedis(t)
	defer setup.Cleanup()
	d := newFullDispatcher(t, setup)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	require.NoError(t, d.Knowledge.CreateEntity(ctx, knowledge.Node{
		ID:         uid.New(),
		Name:       "start-user",
		EntityType: knowledge.EntityType{Kind: "person"},
		Scope:      knowledge.ScopePersonal,
		CreatedAt:  uid.NowRFC3339(),
	}))

	result, err := d.Dispatch(ctx, "agent-tools", "ui_start", dispatch.Params{"user": "start-user"})
	require.NoError(t, err)
	assert.NotEmpty(t, result["new_chain_id"])
}

func TestDispatchUiKnowledgeCreateAndGet(t *testing.T) {
	skipIfNoDocker(t)
	setup := SetupRedis(t)
	defer setup.Cleanup()
	d := newFullDispatcher(t, setup)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	created, err := d.Dispatch(ctx, "agent-tools", "ui_knowledge", dispatch.Params{
		"mode": "create", "name": "widget-service", "entity_type": "system",
	})
	require.NoError(t, err)
	entityID := created["entity_id"].(string)
	require.NotEmpty(t, entityID)

	got, err := d.Dispatch(ctx, "agent-tools", "ui_knowledge", dispatch.Params{"mode": "get_entity", "id": entityID})
	require.NoError(t, err)
	assert.Equal(t, entityID, got["entity_id"])
}

func TestDispatchUiContextUpsertsImportant(t *testing.T) {
	skipIfNoDocker(t)
	setup := SetupRedis(t)
	defer setup.Cleanup()
	d := newFullDispatcher(t, setup)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := d.Dispatch(ctx, "agent-tools", "ui_context", dispatch.Params{
		"type": "important", "content": "the deploy window is Sundays at 2am",
	})
	require.NoError(t, err)
	assert.Equal(t, true, result["upserted"])
	assert.NotEmpty(t, result["key"])
}

func TestDispatchUiContextTTLSecondsExpiresKey(t *testing.T) {
	skipIfNoDocker(t)
	setup := SetupRedis(t)
	defer setup.Cleanup()
	d := newFullDispatcher(t, setup)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := d.Dispatch(ctx, "agent-tools", "ui_context", dispatch.Params{
		"type": "important", "content": "ephemeral deploy note", "ttl_seconds": 1,
	})
	require.NoError(t, err)
	key := result["key"].(string)

	ttl, err := d.Gateway.Raw().TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Second)
}

func TestDispatchUiMemoryUpdateTTLSecondsExpiresKey(t *testing.T) {
	skipIfNoDocker(t)
	setup := SetupRedis(t)
	defer setup.Cleanup()
	d := newFullDispatcher(t, setup)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	upserted, err := d.Dispatch(ctx, "agent-tools", "ui_context", dispatch.Params{
		"type": "important", "content": "note that will get a ttl later",
	})
	require.NoError(t, err)
	key := upserted["key"].(string)

	_, err = d.Dispatch(ctx, "agent-tools", "ui_memory", dispatch.Params{
		"action": "update", "key": key, "importance": "high", "ttl_seconds": 1,
	})
	require.NoError(t, err)

	ttl, err := d.Gateway.Raw().TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Second)
}

func TestDispatchUiMemorySearchAndRead(t *testing.T) {
	skipIfNoDocker(t)
	setup := SetupRedis(t)
	defer setup.Cleanup()
	d := newFullDispatcher(t, setup)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	upserted, err := d.Dispatch(ctx, "agent-tools", "ui_context", dispatch.Params{
		"type": "important", "content": "the on-call rotation starts Mondays",
	})
	require.NoError(t, err)
	key := upserted["key"].(string)

	time.Sleep(300 * time.Millisecond)

	read, err := d.Dispatch(ctx, "agent-tools", "ui_memory", dispatch.Params{
		"action": "read", "keys": []interface{}{key},
	})
	require.NoError(t, err)
	results, ok := read["results"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, "the on-call rotation starts Mondays", results[0]["content"])
}

func TestDispatchUiHelpReturnsDocument(t *testing.T) {
	skipIfNoDocker(t)
	setup := SetupRedis(t)
	defer setup.Cleanup()
	d := newFullDispatcher(t, setup)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := d.Dispatch(ctx, "agent-tools", "ui_help", dispatch.Params{"tool": "ui_think"})
	require.NoError(t, err)
	assert.NotEmpty(t, result)
}
