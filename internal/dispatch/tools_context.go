package dispatch

import (
	"context"
	"strings"

	"github.com/8agana/unified-intelligence/internal/apperr"
)

// handleContext implements ui_context: ad-hoc embedding writes into the
// session-summaries, important, or federation prefixes outside the
// regular ingest path.
func (d *Dispatcher) handleContext(ctx context.Context, instance string, p Params) (map[string]interface{}, error) {
	kind := p.String("type")

	if kind == "help" || kind == "" {
		return HelpDocument("ui_context", p.String("topic")), nil
	}
	if kind != "session-summaries" && kind != "important" && kind != "federation" {
		return nil, apperr.Validation("unsupported type: "+kind+" (expected: session-summaries|important|federation|help)", nil)
	}

	content, err := p.RequireString("content")
	if err != nil {
		return nil, err
	}

	ttlSeconds, _ := p.Int("ttl_seconds")

	key, index, dims, createdIndex, err := d.Embeddings.UpsertContext(
		ctx, instance, kind, content,
		strings.Join(p.StringSlice("tags"), ","),
		p.String("importance"),
		p.String("chain_id"),
		p.String("thought_id"),
		int64(ttlSeconds),
	)
	if err != nil {
		return nil, apperr.Store("ui_context upsert failed", err)
	}

	return map[string]interface{}{
		"mode":          kind,
		"key":           key,
		"index":         index,
		"dims":          dims,
		"upserted":      true,
		"created_index": createdIndex,
	}, nil
}
