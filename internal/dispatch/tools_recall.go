package dispatch

import (
	"context"

	"github.com/8agana/unified-intelligence/internal/apperr"
)

// handleRecall implements ui_recall: fetch a single thought by id, an
// entire chain in append order, or the help document.
func (d *Dispatcher) handleRecall(ctx context.Context, instance string, p Params) (map[string]interface{}, error) {
	mode := p.String("mode")
	if mode == "" {
		mode = "thought"
	}

	switch mode {
	case "help":
		return HelpDocument("ui_recall", p.String("topic")), nil
	case "thought":
		id, err := p.RequireString("id")
		if err != nil {
			return nil, err
		}
		t, err := d.Thoughts.Get(ctx, instance, id)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"thought": t}, nil
	case "chain":
		id, err := p.RequireString("id")
		if err != nil {
			return nil, err
		}
		chain, err := d.Thoughts.GetChain(ctx, instance, id)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"thoughts": chain}, nil
	default:
		return nil, apperr.Validation("unknown ui_recall mode: "+mode, nil)
	}
}
