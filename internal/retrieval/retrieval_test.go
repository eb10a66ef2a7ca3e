package retrieval

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/8agana/unified-intelligence/internal/observability"
)

type fakeTextSearcher struct {
	hits []TextHit
}

func (f *fakeTextSearcher) Search(ctx context.Context, instance, query string, offset, limit int) ([]TextHit, error) {
	return f.hits, nil
}

// failingEmbedder always errors, forcing Retrieve to fall back to the
// text-only pass so fusion ordering can be tested without a live store.
type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedder unavailable")
}

func testLog() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard})
}

func TestRetrieveOrdersTextOnlyCandidatesByRecencyWhenEmbedderFails(t *testing.T) {
	now := time.Now()
	searcher := &fakeTextSearcher{hits: []TextHit{
		{Content: "oldest match", CreatedAt: now.Add(-72 * time.Hour)},
		{Content: "newest match", CreatedAt: now},
		{Content: "middle match", CreatedAt: now.Add(-24 * time.Hour)},
	}}

	engine := New(nil, failingEmbedder{}, testLog())
	weights := Weights{Semantic: 0, Text: 0, Recency: 1}

	candidates, err := engine.Retrieve(context.Background(), "agent-a", "query", 5, weights, searcher)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}

	got := make([]string, len(candidates))
	for i, c := range candidates {
		got[i] = c.Content
	}
	want := []string{"newest match", "middle match", "oldest match"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("candidate order mismatch (-want +got):\n%s", diff)
	}
}

func TestRetrieveTruncatesToTopK(t *testing.T) {
	now := time.Now()
	searcher := &fakeTextSearcher{hits: []TextHit{
		{Content: "a", CreatedAt: now},
		{Content: "b", CreatedAt: now},
		{Content: "c", CreatedAt: now},
	}}

	engine := New(nil, failingEmbedder{}, testLog())
	candidates, err := engine.Retrieve(context.Background(), "agent-a", "query", 2, Weights{Recency: 1}, searcher)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
}

func TestRetrieveRejectsOutOfRangeWeights(t *testing.T) {
	engine := New(nil, failingEmbedder{}, testLog())
	_, err := engine.Retrieve(context.Background(), "agent-a", "query", 5, Weights{Semantic: 1.5}, nil)
	if err == nil {
		t.Fatal("expected an error for out-of-range weights")
	}
}

func TestNewWithRecencyHalfLifeAppliesSlowerDecay(t *testing.T) {
	now := time.Now()
	searcher := &fakeTextSearcher{hits: []TextHit{
		{Content: "a week old", CreatedAt: now.Add(-7 * 24 * time.Hour)},
	}}

	shortHalfLife := New(nil, failingEmbedder{}, testLog())
	longHalfLife := NewWithRecencyHalfLife(nil, failingEmbedder{}, testLog(), 30*24*60*60)

	weights := Weights{Recency: 1}
	short, err := shortHalfLife.Retrieve(context.Background(), "agent-a", "q", 1, weights, searcher)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	long, err := longHalfLife.Retrieve(context.Background(), "agent-a", "q", 1, weights, searcher)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}

	if len(short) != 1 || len(long) != 1 {
		t.Fatalf("expected one candidate from each engine, got %d and %d", len(short), len(long))
	}
	if long[0].combined <= short[0].combined {
		t.Errorf("expected a longer half-life to decay the same age more slowly: short=%v long=%v", short[0].combined, long[0].combined)
	}
}

func TestNewWithRecencyHalfLifeIgnoresNonPositiveOverride(t *testing.T) {
	e := NewWithRecencyHalfLife(nil, failingEmbedder{}, testLog(), -5)
	if e.recencyTauSecs != defaultRecencyTauSeconds {
		t.Errorf("expected non-positive override to fall back to default, got %v", e.recencyTauSecs)
	}
}

func TestRetrieveDefaultsTopKWhenNonPositive(t *testing.T) {
	now := time.Now()
	searcher := &fakeTextSearcher{hits: []TextHit{
		{Content: "a", CreatedAt: now}, {Content: "b", CreatedAt: now},
		{Content: "c", CreatedAt: now}, {Content: "d", CreatedAt: now},
		{Content: "e", CreatedAt: now}, {Content: "f", CreatedAt: now},
	}}
	engine := New(nil, failingEmbedder{}, testLog())
	candidates, err := engine.Retrieve(context.Background(), "agent-a", "query", 0, Weights{Recency: 1}, searcher)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(candidates) != 5 {
		t.Fatalf("expected default topK of 5, got %d", len(candidates))
	}
}
