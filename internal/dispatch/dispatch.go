package dispatch

import (
	"context"

	"github.com/8agana/unified-intelligence/internal/apperr"
	"github.com/8agana/unified-intelligence/internal/embedding"
	"github.com/8agana/unified-intelligence/internal/knowledge"
	"github.com/8agana/unified-intelligence/internal/observability"
	"github.com/8agana/unified-intelligence/internal/ratelimit"
	"github.com/8agana/unified-intelligence/internal/retrieval"
	"github.com/8agana/unified-intelligence/internal/session"
	"github.com/8agana/unified-intelligence/internal/store"
	"github.com/8agana/unified-intelligence/internal/synthesis"
	"github.com/8agana/unified-intelligence/internal/thought"
	"github.com/8agana/unified-intelligence/internal/workflow"
)

// Dispatcher registers the tool surface and routes each call to its
// handler, applying the rate limiter ahead of every call.
type Dispatcher struct {
	Thoughts   *thought.Repository
	Knowledge  *knowledge.Repository
	Embeddings *embedding.Pipeline
	Retrieval  *retrieval.Engine
	TextIndex  retrieval.TextSearcher
	Synthesis  *synthesis.Orchestrator
	Session    *session.Bootstrapper
	Rotator    *workflow.Rotator
	Limiter    *ratelimit.Limiter
	Gateway    *store.Gateway
	Log        *observability.Logger

	DefaultWeights retrieval.Weights
}

// Dispatch routes a tool call by name. instance identifies the tenant
// (resolved by the transport from INSTANCE_ID or config default).
func (d *Dispatcher) Dispatch(ctx context.Context, instance, tool string, params Params) (map[string]interface{}, error) {
	if err := d.Limiter.CheckAndError(instance); err != nil {
		return nil, err
	}

	switch tool {
	case "ui_think":
		return d.handleThink(ctx, instance, params)
	case "ui_recall":
		return d.handleRecall(ctx, instance, params)
	case "ui_remember":
		return d.handleRemember(ctx, instance, params)
	case "ui_start":
		return d.handleStart(ctx, instance, params)
	case "ui_knowledge":
		return d.handleKnowledge(ctx, instance, params)
	case "ui_context":
		return d.handleContext(ctx, instance, params)
	case "ui_memory":
		return d.handleMemory(ctx, instance, params)
	case "ui_help":
		return HelpDocument(params.String("tool"), params.String("topic")), nil
	default:
		return nil, unknownTool(tool)
	}
}

func unknownTool(tool string) error {
	return apperr.Validation("unknown tool: "+tool, nil)
}
