package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8agana/unified-intelligence/internal/retrieval"
	"github.com/8agana/unified-intelligence/internal/synthesis"
	"github.com/8agana/unified-intelligence/internal/thought"
)

type fakeChatTransport struct {
	replies []string
	calls   int
}

func (f *fakeChatTransport) Synthesize(ctx context.Context, intent synthesis.Intent, context []string) (string, string, error) {
	reply := "a synthesized answer"
	if f.calls < len(f.replies) {
		reply = f.replies[f.calls]
	}
	f.calls++
	return reply, "fake-chat-model", nil
}

func TestSynthesisQueryStoresThoughtPairAndSeedsFeedback(t *testing.T) {
	skipIfNoDocker(t)
	setup := SetupRedis(t)
	defer setup.Cleanup()

	gw := setup.Gateway(t)
	sc := setup.Scripts(t, gw)
	thoughts := thought.New(gw, sc, testLogger())

	chat := &fakeChatTransport{replies: []string{"first reply"}}
	orch := synthesis.New(thoughts, nil, nil, chat, gw, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := orch.Query(ctx, synthesis.QueryRequest{
		Instance: "agent-synth",
		ChainID:  "remember:synth-chain",
		Thought:  "what did we decide about the rollout plan?",
		Weights:  retrieval.ResolveWeights("balanced-default"),
	})
	require.NoError(t, err)
	assert.Equal(t, "first reply", result.AssistantText)
	assert.Equal(t, "fake-chat-model", result.ModelUsed)
	assert.NotEmpty(t, result.Thought1ID)
	assert.NotEmpty(t, result.Thought2ID)
	assert.Equal(t, "ui_remember", result.NextAction.Tool)
	assert.Equal(t, "feedback", result.NextAction.Action)

	chain, err := thoughts.GetChain(ctx, "agent-synth", "remember:synth-chain")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "ui_remember:user", chain[0].Category)
	assert.Equal(t, "ui_remember:assistant", chain[1].Category)
}

func TestSynthesisFeedbackRequiresExistingAssistantThought(t *testing.T) {
	skipIfNoDocker(t)
	setup := SetupRedis(t)
	defer setup.Cleanup()

	gw := setup.Gateway(t)
	sc := setup.Scripts(t, gw)
	thoughts := thought.New(gw, sc, testLogger())

	chat := &fakeChatTransport{}
	orch := synthesis.New(thoughts, nil, nil, chat, gw, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	_, err := orch.Feedback(ctx, synthesis.FeedbackRequest{
		Instance: "agent-synth-2",
		ChainID:  "remember:empty-chain",
		Feedback: "that was helpful",
	})
	assert.Error(t, err)
}

func TestSynthesisFeedbackAfterQuerySavesT3AndOffersContinuation(t *testing.T) {
	skipIfNoDocker(t)
	setup := SetupRedis(t)
	defer setup.Cleanup()

	gw := setup.Gateway(t)
	sc := setup.Scripts(t, gw)
	thoughts := thought.New(gw, sc, testLogger())

	chat := &fakeChatTransport{replies: []string{"an answer worth critiquing"}}
	orch := synthesis.New(thoughts, nil, nil, chat, gw, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	chainID := "remember:synth-feedback-chain"
	_, err := orch.Query(ctx, synthesis.QueryRequest{
		Instance: "agent-synth-3",
		ChainID:  chainID,
		Thought:  "summarize the incident",
	})
	require.NoError(t, err)

	result, err := orch.Feedback(ctx, synthesis.FeedbackRequest{
		Instance:     "agent-synth-3",
		ChainID:      chainID,
		Feedback:     "actually that's not quite right",
		ContinueNext: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "feedback_saved", result.Status)
	assert.NotEmpty(t, result.Thought3ID)
	require.NotNil(t, result.NextAction)
	assert.Equal(t, "query", result.NextAction.Action)

	chain, err := thoughts.GetChain(ctx, "agent-synth-3", chainID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "ui_remember:feedback", chain[2].Category)
}
