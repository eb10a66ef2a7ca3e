// Package synthesis implements the Synthesis Orchestrator: the
// ui_remember state machine (query/feedback), retroactive feedback
// scoring, and assistant thought storage.
package synthesis

import (
	"context"
	"strings"
	"time"

	"github.com/8agana/unified-intelligence/internal/apperr"
	"github.com/8agana/unified-intelligence/internal/observability"
	"github.com/8agana/unified-intelligence/internal/retrieval"
	"github.com/8agana/unified-intelligence/internal/store"
	"github.com/8agana/unified-intelligence/internal/thought"
	"github.com/8agana/unified-intelligence/pkg/uid"
)

// Action selects which half of the ui_remember state machine runs.
type Action string

const (
	ActionQuery    Action = "query"
	ActionFeedback Action = "feedback"
	ActionHelp     Action = "help"
)

// ParseAction maps the raw request action to a tagged Action: "feedback"
// and its synonyms fb/critique/review select Feedback, "help" selects Help,
// an empty or "query" action selects Feedback when a feedback field is
// present and Query otherwise, and anything else defaults to Query.
func ParseAction(raw string, hasFeedbackField bool) Action {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "feedback", "fb", "critique", "review":
		return ActionFeedback
	case "help":
		return ActionHelp
	case "query", "":
		if hasFeedbackField {
			return ActionFeedback
		}
		return ActionQuery
	default:
		return ActionQuery
	}
}

// Intent is the synthesis request handed to the external LLM collaborator.
type Intent struct {
	OriginalQuery  string
	TemporalFilter string
	SynthesisStyle string
}

// ChatTransport is the external LLM collaborator capability this
// orchestrator depends on.
type ChatTransport interface {
	Synthesize(ctx context.Context, intent Intent, context []string) (text string, modelUsed string, err error)
}

var correctionPhrases = []string{"actually", "no,", "that's not", "incorrect", "correction", "wrong", "not true", "should be"}
var positiveAckPhrases = []string{"thanks", "thank you", "got it", "great", "perfect", "that works", "awesome", "nice"}

// NextAction describes the follow-up call contract returned to clients.
type NextAction struct {
	Tool     string
	Action   string
	Required []string
}

// QueryResult is the response to a Query action.
type QueryResult struct {
	AssistantText          string
	Thought1ID             string
	Thought2ID             string
	ModelUsed              string
	RetrievedTextCount     int
	RetrievedEmbeddingCount int
	NextAction             NextAction
}

// FeedbackResult is the response to a Feedback action.
type FeedbackResult struct {
	Status      string
	Thought3ID  string
	NextAction  *NextAction
}

// Orchestrator runs the ui_remember state machine.
type Orchestrator struct {
	thoughts  *thought.Repository
	retrieval *retrieval.Engine
	textIndex retrieval.TextSearcher
	chat      ChatTransport
	gw        *store.Gateway
	log       *observability.Logger
}

// New builds an Orchestrator.
func New(thoughts *thought.Repository, retr *retrieval.Engine, textIndex retrieval.TextSearcher, chat ChatTransport, gw *store.Gateway, log *observability.Logger) *Orchestrator {
	return &Orchestrator{thoughts: thoughts, retrieval: retr, textIndex: textIndex, chat: chat, gw: gw, log: log}
}

func feedbackKey(assistantThoughtID string) string { return "voice:feedback:" + assistantThoughtID }

// QueryRequest carries the fields relevant to a Query action.
type QueryRequest struct {
	Instance string
	ChainID  string
	Thought  string
	Style    string
	TopK     int
	Weights  retrieval.Weights
}

// Query runs the full Query path contract: retroactive scoring of the
// prior assistant thought, chain numbering, T1 save, retrieval, LLM
// synthesis, and T2 save with a seeded feedback hash.
func (o *Orchestrator) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	chainID := req.ChainID
	if chainID == "" {
		chainID = uid.RememberChainID()
	}

	existing, err := o.thoughts.GetChain(ctx, req.Instance, chainID)
	if err != nil {
		return nil, err
	}

	if prevAssistant := lastAssistantThought(existing); prevAssistant != nil {
		o.retroactivelyScore(ctx, *prevAssistant, req.Thought)
	}

	t1Number := maxThoughtNumber(existing) + 1
	t1 := thought.Thought{
		ID:                uid.New(),
		Instance:          req.Instance,
		ChainID:           chainID,
		ThoughtNumber:     t1Number,
		TotalThoughts:     t1Number + 1,
		Timestamp:         uid.NowRFC3339(),
		Content:           req.Thought,
		NextThoughtNeeded: true,
		Category:          "ui_remember:user",
	}
	if err := o.thoughts.Save(ctx, t1); err != nil {
		return nil, err
	}

	var candidates []retrieval.Candidate
	if o.retrieval != nil {
		candidates, err = o.retrieval.Retrieve(ctx, req.Instance, req.Thought, req.TopK, req.Weights, o.textIndex)
		if err != nil {
			return nil, err
		}
	}

	contextText := make([]string, 0, len(candidates))
	for _, c := range candidates {
		contextText = append(contextText, c.Content)
	}

	intent := Intent{OriginalQuery: req.Thought, SynthesisStyle: req.Style}
	assistantText, modelUsed, err := o.chat.Synthesize(ctx, intent, contextText)
	if err != nil {
		return nil, apperr.Upstream("synthesis failed", err)
	}

	t2 := thought.Thought{
		ID:                uid.New(),
		Instance:          req.Instance,
		ChainID:           chainID,
		ThoughtNumber:     t1Number + 1,
		TotalThoughts:     t1Number + 1,
		Timestamp:         uid.NowRFC3339(),
		Content:           assistantText,
		NextThoughtNeeded: false,
		Category:          "ui_remember:assistant",
	}
	if err := o.thoughts.Save(ctx, t2); err != nil {
		return nil, err
	}

	o.seedFeedback(ctx, t2.ID)

	return &QueryResult{
		AssistantText:          assistantText,
		Thought1ID:             t1.ID,
		Thought2ID:             t2.ID,
		ModelUsed:              modelUsed,
		RetrievedTextCount:     countTextHits(candidates),
		RetrievedEmbeddingCount: len(candidates) - countTextHits(candidates),
		NextAction: NextAction{
			Tool:     "ui_remember",
			Action:   "feedback",
			Required: []string{"chain_id", "feedback"},
		},
	}, nil
}

func countTextHits(candidates []retrieval.Candidate) int {
	n := 0
	for _, c := range candidates {
		if c.Tags != "" || c.Category != "" {
			n++
		}
	}
	return n
}

func (o *Orchestrator) seedFeedback(ctx context.Context, assistantThoughtID string) {
	err := o.gw.HashUpsert(ctx, feedbackKey(assistantThoughtID), map[string]interface{}{
		"synthesis_quality": 0,
		"continued":         0,
		"abandoned":         0,
		"corrected":         0,
		"time_to_next":      0,
		"feedback_score":    0,
	})
	if err != nil {
		o.log.Debug().Err(err).Str("thought_id", assistantThoughtID).Msg("feedback seed failed")
	}
}

// retroactivelyScore derives a feedback score for prevAssistant from the
// current user behavior and persists it best-effort.
func (o *Orchestrator) retroactivelyScore(ctx context.Context, prevAssistant thought.Thought, userText string) {
	prevTs := uid.ParseRFC3339(prevAssistant.Timestamp)
	delta := time.Since(prevTs).Seconds()
	if delta < 0 {
		delta = 0
	}

	lower := strings.ToLower(userText)
	corrected := containsAny(lower, correctionPhrases)
	positiveAck := containsAny(lower, positiveAckPhrases)

	var base float64
	switch {
	case corrected:
		base = 0.3
	case delta < 30:
		base = 0.9
	case delta < 120:
		base = 0.7
	default:
		base = 0.5
	}
	if positiveAck {
		base = minFloat(base+0.1, 1)
	}
	if corrected {
		base = maxFloat(base-0.1, 0)
	}

	abandoned := 0
	if delta >= 600 {
		abandoned = 1
	}

	correctedInt := 0
	if corrected {
		correctedInt = 1
	}

	err := o.gw.HashUpsert(ctx, feedbackKey(prevAssistant.ID), map[string]interface{}{
		"feedback_score": base,
		"corrected":      correctedInt,
		"abandoned":      abandoned,
		"continued":      1,
		"time_to_next":   delta,
	})
	if err != nil {
		o.log.Debug().Err(err).Str("thought_id", prevAssistant.ID).Msg("retroactive scoring failed")
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func lastAssistantThought(chain []thought.Thought) *thought.Thought {
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].Category == "ui_remember:assistant" {
			return &chain[i]
		}
	}
	return nil
}

func maxThoughtNumber(chain []thought.Thought) int {
	max := 0
	for _, t := range chain {
		if t.ThoughtNumber > max {
			max = t.ThoughtNumber
		}
	}
	return max
}

// FeedbackRequest carries the fields relevant to a Feedback action.
type FeedbackRequest struct {
	Instance     string
	ChainID      string
	Feedback     string
	ContinueNext bool
}

// Feedback stores T3 on the chain and updates the feedback hash of the
// most recent assistant thought.
func (o *Orchestrator) Feedback(ctx context.Context, req FeedbackRequest) (*FeedbackResult, error) {
	if req.ChainID == "" {
		return nil, apperr.Validation("chain_id is required for feedback", nil)
	}

	existing, err := o.thoughts.GetChain(ctx, req.Instance, req.ChainID)
	if err != nil {
		return nil, err
	}
	prevAssistant := lastAssistantThought(existing)
	if prevAssistant == nil {
		return nil, apperr.NotFound("no assistant thought on this chain to give feedback on", nil)
	}

	t3Number := maxThoughtNumber(existing) + 1
	t3 := thought.Thought{
		ID:                uid.New(),
		Instance:          req.Instance,
		ChainID:           req.ChainID,
		ThoughtNumber:     t3Number,
		TotalThoughts:     t3Number,
		Timestamp:         uid.NowRFC3339(),
		Content:           req.Feedback,
		NextThoughtNeeded: false,
		Category:          "ui_remember:feedback",
	}
	if err := o.thoughts.Save(ctx, t3); err != nil {
		return nil, err
	}

	if err := o.gw.HashUpsert(ctx, feedbackKey(prevAssistant.ID), map[string]interface{}{
		"llm_feedback":  req.Feedback,
		"continue_next": boolToInt(req.ContinueNext),
	}); err != nil {
		o.log.Debug().Err(err).Str("thought_id", prevAssistant.ID).Msg("feedback hash update failed")
	}

	result := &FeedbackResult{Status: "feedback_saved", Thought3ID: t3.ID}
	if req.ContinueNext {
		result.NextAction = &NextAction{Tool: "ui_remember", Action: "query"}
	}
	return result, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
