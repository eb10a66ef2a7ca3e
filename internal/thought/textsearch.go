package thought

import (
	"context"

	"github.com/8agana/unified-intelligence/internal/retrieval"
	"github.com/8agana/unified-intelligence/pkg/uid"
)

// TextSearchAdapter adapts Repository.Search to retrieval.TextSearcher,
// converting the persisted Thought shape to the engine's narrow TextHit.
type TextSearchAdapter struct {
	Repo *Repository
}

// Search satisfies retrieval.TextSearcher.
func (a TextSearchAdapter) Search(ctx context.Context, instance, query string, offset, limit int) ([]retrieval.TextHit, error) {
	thoughts, err := a.Repo.Search(ctx, instance, query, offset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]retrieval.TextHit, 0, len(thoughts))
	for _, t := range thoughts {
		out = append(out, retrieval.TextHit{
			Content:   t.Content,
			CreatedAt: uid.ParseRFC3339(t.Timestamp),
			Tags:      joinTags(t.Tags),
			Category:  t.Category,
		})
	}
	return out, nil
}

func joinTags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}
