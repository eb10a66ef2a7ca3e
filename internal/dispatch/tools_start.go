package dispatch

import (
	"context"

	"github.com/8agana/unified-intelligence/internal/knowledge"
	"github.com/8agana/unified-intelligence/internal/session"
)

// handleStart implements ui_start: previous chain summarization, chunked
// embedding of the summary, KG attribute rotation, and new chain mint.
func (d *Dispatcher) handleStart(ctx context.Context, instance string, p Params) (map[string]interface{}, error) {
	user, err := p.RequireString("user")
	if err != nil {
		return nil, err
	}

	scope := knowledge.ScopePersonal
	if p.String("scope") == string(knowledge.ScopeFederation) {
		scope = knowledge.ScopeFederation
	}

	tokens, _ := p.Int("summary_tokens")

	result, err := d.Session.Start(ctx, session.Request{
		Instance:      instance,
		User:          user,
		Scope:         scope,
		SummaryTokens: tokens,
	})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"new_chain_id": result.NewChainID,
		"summary_key":  result.SummaryKey,
		"summary_text": result.SummaryText,
		"model_used":   result.ModelUsed,
	}, nil
}
