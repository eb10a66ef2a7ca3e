// Package session implements the Session Bootstrapper: ui_start's prior
// chain summarization, chunked embedding, KG attribute rotation, and new
// chain minting.
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/8agana/unified-intelligence/internal/apperr"
	"github.com/8agana/unified-intelligence/internal/embedding"
	"github.com/8agana/unified-intelligence/internal/knowledge"
	"github.com/8agana/unified-intelligence/internal/observability"
	"github.com/8agana/unified-intelligence/internal/store"
	"github.com/8agana/unified-intelligence/internal/thought"
	"github.com/8agana/unified-intelligence/pkg/uid"
)

// sectionTemplate is the fixed ten-section structured summary template the
// LLM is asked to fill in.
var sectionTemplate = []string{
	"Critical Status & Warnings",
	"Key Decisions",
	"Open Threads",
	"Blockers",
	"Completed Work",
	"In-Progress Work",
	"Dependencies & Risks",
	"Stakeholder Notes",
	"Lessons Learned",
	"Next Actions & Continuation Points",
}

// Summarizer is the external LLM collaborator capability this bootstrapper
// depends on for structured chain summarization.
type Summarizer interface {
	Summarize(ctx context.Context, sections []string, thoughts []string, targetTokens int) (summary string, modelUsed string, err error)
}

// Bootstrapper runs the ui_start flow.
type Bootstrapper struct {
	thoughts   *thought.Repository
	knowledge  *knowledge.Repository
	embeddings *embedding.Pipeline
	summarizer Summarizer
	gw         *store.Gateway
	log        *observability.Logger
}

// New builds a Bootstrapper.
func New(thoughts *thought.Repository, kg *knowledge.Repository, embeddings *embedding.Pipeline, summarizer Summarizer, gw *store.Gateway, log *observability.Logger) *Bootstrapper {
	return &Bootstrapper{thoughts: thoughts, knowledge: kg, embeddings: embeddings, summarizer: summarizer, gw: gw, log: log}
}

func summaryKey(instance, prevChainOrNone string) string {
	return fmt.Sprintf("%s:ui_start:summary:%s", instance, prevChainOrNone)
}

// Result is returned to the ui_start caller.
type Result struct {
	NewChainID  string
	SummaryKey  string
	SummaryText string
	ModelUsed   string
}

// Request carries the fields relevant to a Start call.
type Request struct {
	Instance      string
	User          string
	Scope         knowledge.Scope
	SummaryTokens int
}

const defaultSummaryTokens = 10000

// Start resolves the user's KG node, summarizes the prior chain if any,
// chunk-embeds the summary, mints a new chain id, and rotates the node's
// session attributes.
func (b *Bootstrapper) Start(ctx context.Context, req Request) (*Result, error) {
	scope := req.Scope
	if scope == "" {
		scope = knowledge.ScopePersonal
	}
	targetTokens := req.SummaryTokens
	if targetTokens <= 0 {
		targetTokens = defaultSummaryTokens
	}

	node, err := b.knowledge.GetEntityByName(ctx, scope, req.User)
	if err != nil {
		return nil, err
	}

	prevChainOrNone := "none"
	var prevThoughts []thought.Thought
	if prevChain, ok := node.Attributes["current_session_chain_id"]; ok && prevChain != "" {
		prevChainOrNone = prevChain
		prevThoughts, err = b.thoughts.GetChain(ctx, req.Instance, prevChain)
		if err != nil {
			return nil, err
		}
	}

	contents := make([]string, 0, len(prevThoughts))
	for _, t := range prevThoughts {
		contents = append(contents, t.Content)
	}

	summaryText, modelUsed, err := b.summarizer.Summarize(ctx, sectionTemplate, contents, targetTokens)
	if err != nil {
		return nil, apperr.Upstream("session summarization failed", err)
	}

	sKey := summaryKey(req.Instance, prevChainOrNone)
	body, err := marshalSummary(summaryText, modelUsed)
	if err != nil {
		return nil, apperr.Internal("marshal summary", err)
	}
	if err := b.gw.JSONSet(ctx, sKey, "$", body); err != nil {
		return nil, apperr.Store("summary write failed", err)
	}

	if b.embeddings != nil {
		b.embeddings.UpsertSessionSummaryChunks(ctx, req.Instance, prevChainOrNone, summaryText)
	}

	newChainID := uid.SessionChainID()
	b.rotateAttributes(ctx, node, scope, prevChainOrNone, newChainID, sKey)

	return &Result{
		NewChainID:  newChainID,
		SummaryKey:  sKey,
		SummaryText: summaryText,
		ModelUsed:   modelUsed,
	}, nil
}

// summaryDoc is the JSON shape written at sKey.
type summaryDoc struct {
	Summary   string `json:"summary"`
	ModelUsed string `json:"model_used"`
}

func marshalSummary(text, modelUsed string) (string, error) {
	body, err := json.Marshal(summaryDoc{Summary: text, ModelUsed: modelUsed})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// rotateAttributes prepends prevChainOrNone to session_history, points
// current_session_chain_id at newChainID, and records the summary key,
// then persists the node best-effort (a failure here does not fail the
// overall ui_start call since the summary has already been durably
// written).
func (b *Bootstrapper) rotateAttributes(ctx context.Context, node *knowledge.Node, scope knowledge.Scope, prevChainOrNone, newChainID, sKey string) {
	if node.Attributes == nil {
		node.Attributes = map[string]string{}
	}

	history := node.Attributes["session_history"]
	if prevChainOrNone != "none" {
		if history == "" {
			history = prevChainOrNone
		} else {
			history = prevChainOrNone + "," + history
		}
	}
	node.Attributes["session_history"] = history
	node.Attributes["current_session_chain_id"] = newChainID

	summaryKeysField := "summary_keys"
	existing := node.Attributes[summaryKeysField]
	node.Attributes[summaryKeysField] = existing + ";" + prevChainOrNone + "=" + sKey
	node.Scope = scope

	if err := b.knowledge.UpdateEntity(ctx, *node); err != nil {
		b.log.WithInstance(node.ID).Warn().Err(err).Msg("session attribute rotation failed")
	}
}
