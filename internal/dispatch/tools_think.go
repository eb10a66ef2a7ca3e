package dispatch

import (
	"context"
	"strings"

	"github.com/8agana/unified-intelligence/internal/ratelimit"
	"github.com/8agana/unified-intelligence/internal/thought"
	"github.com/8agana/unified-intelligence/internal/workflow"
	"github.com/8agana/unified-intelligence/pkg/uid"
)

// handleThink implements ui_think: K -> J (validate) -> I (mode selection,
// persist tracker) -> C (atomic ingest) -> E (best-effort embed).
func (d *Dispatcher) handleThink(ctx context.Context, instance string, p Params) (map[string]interface{}, error) {
	content, err := p.RequireString("thought")
	if err != nil {
		return nil, err
	}
	thoughtNumber, err := p.RequireInt("thought_number")
	if err != nil {
		return nil, err
	}
	totalThoughts, err := p.RequireInt("total_thoughts")
	if err != nil {
		return nil, err
	}
	chainID := p.String("chain_id")
	importance := p.OptionalIntPtr("importance")
	relevance := p.OptionalIntPtr("relevance")

	if err := ratelimit.ValidateThought(content, thoughtNumber, totalThoughts, chainID, importance, relevance); err != nil {
		return nil, err
	}

	state := workflow.ParseState(p.String("framework_state"))
	mode, autoGenerated := d.selectMode(ctx, instance, state, chainID, thoughtNumber)

	t := thought.Thought{
		ID:                uid.New(),
		Instance:          instance,
		ChainID:           chainID,
		ThoughtNumber:     thoughtNumber,
		TotalThoughts:     totalThoughts,
		Timestamp:         uid.NowRFC3339(),
		Content:           content,
		NextThoughtNeeded: p.Bool("next_thought_needed"),
		Category:          p.String("category"),
		Tags:              p.StringSlice("tags"),
	}
	if mode != "" {
		t.Framework = string(mode)
	}
	if importance != nil {
		t.Importance = *importance
	}
	if relevance != nil {
		t.Relevance = *relevance
	}

	if err := d.Thoughts.Save(ctx, t); err != nil {
		return nil, err
	}

	if d.Embeddings != nil {
		d.Embeddings.UpsertThought(ctx, instance, t.ID, t.Content, strings.Join(t.Tags, ","), t.Category, t.ChainID)
	}

	result := map[string]interface{}{
		"status":              "stored",
		"thought_id":          t.ID,
		"next_thought_needed": t.NextThoughtNeeded,
	}
	if autoGenerated != "" {
		result["auto_generated_thought"] = autoGenerated
	}
	return result, nil
}

// selectMode chooses the ThinkingMode for this ingest: on Stuck with a
// chain_id it rotates via the stuck tracker; otherwise it takes the first
// recommended mode for the state, if any. Returns the mode and its
// deterministic prompt text (empty if no mode applies).
func (d *Dispatcher) selectMode(ctx context.Context, instance string, state workflow.State, chainID string, thoughtNumber int) (workflow.Mode, string) {
	if state == workflow.Stuck && chainID != "" && d.Rotator != nil {
		mode, err := d.Rotator.NextMode(ctx, instance, chainID)
		if err != nil {
			d.Log.WithInstance(instance).Debug().Err(err).Msg("stuck rotation failed")
			return "", ""
		}
		return mode, workflow.Prompt(mode, thoughtNumber)
	}

	recommended := workflow.RecommendedModes(state)
	if len(recommended) == 0 {
		return "", ""
	}
	mode := recommended[0]
	return mode, workflow.Prompt(mode, thoughtNumber)
}
