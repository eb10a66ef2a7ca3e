package dispatch

import (
	"context"

	"github.com/8agana/unified-intelligence/internal/retrieval"
	"github.com/8agana/unified-intelligence/internal/synthesis"
)

// handleRemember implements ui_remember's query/feedback state machine.
func (d *Dispatcher) handleRemember(ctx context.Context, instance string, p Params) (map[string]interface{}, error) {
	_, hasFeedback := p["feedback"]
	action := synthesis.ParseAction(p.String("action"), hasFeedback)

	switch action {
	case synthesis.ActionHelp:
		return HelpDocument("ui_remember", p.String("topic")), nil
	case synthesis.ActionFeedback:
		return d.rememberFeedback(ctx, instance, p)
	default:
		return d.rememberQuery(ctx, instance, p)
	}
}

func (d *Dispatcher) rememberQuery(ctx context.Context, instance string, p Params) (map[string]interface{}, error) {
	weights := d.DefaultWeights
	if topKOverride, ok := p["weights"].(map[string]interface{}); ok {
		if sem, ok := FlexFloat(topKOverride["semantic"]); ok {
			weights.Semantic = sem
		}
		if txt, ok := FlexFloat(topKOverride["text"]); ok {
			weights.Text = txt
		}
		if rec, ok := FlexFloat(topKOverride["recency"]); ok {
			weights.Recency = rec
		}
	} else if preset := p.String("style"); preset != "" {
		if w, ok := retrieval.Presets[preset]; ok {
			weights = w
		}
	}

	topK, _ := p.Int("top_k")
	content, err := p.RequireString("thought")
	if err != nil {
		return nil, err
	}

	result, err := d.Synthesis.Query(ctx, synthesis.QueryRequest{
		Instance: instance,
		ChainID:  p.String("chain_id"),
		Thought:  content,
		Style:    p.String("style"),
		TopK:     topK,
		Weights:  weights,
	})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"assistant_text":           result.AssistantText,
		"thought1_id":              result.Thought1ID,
		"thought2_id":              result.Thought2ID,
		"model_used":               result.ModelUsed,
		"retrieved_text_count":     result.RetrievedTextCount,
		"retrieved_embedding_count": result.RetrievedEmbeddingCount,
		"next_action": map[string]interface{}{
			"tool":     result.NextAction.Tool,
			"action":   result.NextAction.Action,
			"required": result.NextAction.Required,
		},
	}, nil
}

func (d *Dispatcher) rememberFeedback(ctx context.Context, instance string, p Params) (map[string]interface{}, error) {
	chainID, err := p.RequireString("chain_id")
	if err != nil {
		return nil, err
	}
	feedback := p.String("feedback")

	result, err := d.Synthesis.Feedback(ctx, synthesis.FeedbackRequest{
		Instance:     instance,
		ChainID:      chainID,
		Feedback:     feedback,
		ContinueNext: p.Bool("continue_next"),
	})
	if err != nil {
		return nil, err
	}

	out := map[string]interface{}{
		"status":      result.Status,
		"thought3_id": result.Thought3ID,
	}
	if result.NextAction != nil {
		out["next_action"] = map[string]interface{}{
			"tool":   result.NextAction.Tool,
			"action": result.NextAction.Action,
		}
	}
	return out, nil
}
