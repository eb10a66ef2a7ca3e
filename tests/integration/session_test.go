package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8agana/unified-intelligence/internal/knowledge"
	"github.com/8agana/unified-intelligence/internal/session"
	"github.com/8agana/unified-intelligence/internal/thought"
	"github.com/8agana/unified-intelligence/pkg/uid"
)

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(ctx context.Context, sections []string, thoughts []string, targetTokens int) (string, string, error) {
	return "a fake structured summary of the prior session", "fake-model", nil
}

func TestSessionStartMintsNewChainAndWritesSummary(t *testing.T) {
	skipIfNoDocker(t)
	setup := SetupRedis(t)
	defer setup.Cleanup()

	gw := setup.Gateway(t)
	sc := setup.Scripts(t, gw)
	thoughts := thought.New(gw, sc, testLogger())
	kg := knowledge.New(gw, sc, nil, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	instance := "agent-session"
	user := knowledge.Node{
		ID:          uid.New(),
		Name:        "operator-one",
		DisplayName: "Operator One",
		EntityType:  knowledge.EntityType{Kind: "person"},
		Scope:       knowledge.ScopePersonal,
		CreatedAt:   uid.NowRFC3339(),
	}
	require.NoError(t, kg.CreateEntity(ctx, user))

	bootstrapper := session.New(thoughts, kg, nil, fakeSummarizer{}, gw, testLogger())

	result, err := bootstrapper.Start(ctx, session.Request{Instance: instance, User: user.Name, Scope: knowledge.ScopePersonal})
	require.NoError(t, err)
	assert.NotEmpty(t, result.NewChainID)
	assert.Contains(t, result.SummaryText, "fake structured summary")
	assert.Equal(t, "fake-model", result.ModelUsed)

	updated, err := kg.GetEntityByName(ctx, knowledge.ScopePersonal, user.Name)
	require.NoError(t, err)
	assert.Equal(t, result.NewChainID, updated.Attributes["current_session_chain_id"])
}

func TestSessionStartSummarizesPriorChain(t *testing.T) {
	skipIfNoDocker(t)
	setup := SetupRedis(t)
	defer setup.Cleanup()

	gw := setup.Gateway(t)
	sc := setup.Scripts(t, gw)
	thoughts := thought.New(gw, sc, testLogger())
	kg := knowledge.New(gw, sc, nil, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	instance := "agent-session-2"
	priorChain := "session:prior-chain"
	tt := thought.NewThought(instance, "decided to ship the migration tonight")
	tt.ChainID = priorChain
	require.NoError(t, thoughts.Save(ctx, tt))

	user := knowledge.Node{
		ID:          uid.New(),
		Name:        "operator-two",
		DisplayName: "Operator Two",
		EntityType:  knowledge.EntityType{Kind: "person"},
		Scope:       knowledge.ScopePersonal,
		CreatedAt:   uid.NowRFC3339(),
		Attributes:  map[string]string{"current_session_chain_id": priorChain},
	}
	require.NoError(t, kg.CreateEntity(ctx, user))

	bootstrapper := session.New(thoughts, kg, nil, fakeSummarizer{}, gw, testLogger())
	result, err := bootstrapper.Start(ctx, session.Request{Instance: instance, User: user.Name, Scope: knowledge.ScopePersonal})
	require.NoError(t, err)
	assert.Contains(t, result.SummaryKey, priorChain)

	updated, err := kg.GetEntityByName(ctx, knowledge.ScopePersonal, user.Name)
	require.NoError(t, err)
	assert.Contains(t, updated.Attributes["session_history"], priorChain)
}
