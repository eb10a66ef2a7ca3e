// Package retrieval implements the Retrieval Engine: text search plus
// k-NN vector search over the embedding prefixes, fused into a single
// ranked candidate list by recency-weighted hybrid scoring.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/8agana/unified-intelligence/internal/apperr"
	"github.com/8agana/unified-intelligence/internal/observability"
	"github.com/8agana/unified-intelligence/internal/store"
)

const defaultRecencyTauSeconds = 86400

// Candidate is a single scored retrieval result.
type Candidate struct {
	Content   string
	CreatedAt time.Time
	Tags      string
	Category  string

	semantic float64
	text     float64
	combined float64
}

// Embedder is the narrow query-embedding contract this engine depends on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TextSearcher is satisfied by the Thought Repository's keyword search.
type TextSearcher interface {
	Search(ctx context.Context, instance, query string, offset, limit int) ([]TextHit, error)
}

// TextHit is a single text-search match.
type TextHit struct {
	Content   string
	CreatedAt time.Time
	Tags      string
	Category  string
}

// Engine runs the hybrid retrieval algorithm.
type Engine struct {
	gw             *store.Gateway
	embedder       Embedder
	log            *observability.Logger
	recencyTauSecs float64
}

// New builds an Engine with the default recency decay constant.
func New(gw *store.Gateway, embedder Embedder, log *observability.Logger) *Engine {
	return &Engine{gw: gw, embedder: embedder, log: log, recencyTauSecs: defaultRecencyTauSeconds}
}

// NewWithRecencyHalfLife builds an Engine whose recency decay uses
// halfLifeSeconds instead of the built-in default. The value is used as the
// time constant τ in exp(-age/τ), so the recency contribution falls to 1/e
// (not one half) at that age. A non-positive value falls back to the
// default.
func NewWithRecencyHalfLife(gw *store.Gateway, embedder Embedder, log *observability.Logger, halfLifeSeconds float64) *Engine {
	e := New(gw, embedder, log)
	if halfLifeSeconds > 0 {
		e.recencyTauSecs = halfLifeSeconds
	}
	return e
}

// vectorPrefixIndexes maps the fixed prefixes the vector pass scans to
// their index names. Map iteration leaves the scan order unspecified.
func vectorPrefixIndexes(instance string) map[string]string {
	return map[string]string{
		fmt.Sprintf("%s:session-summaries", instance): fmt.Sprintf("%s:session_summaries_vec_idx", instance),
		fmt.Sprintf("%s:important", instance):         fmt.Sprintf("%s:important_vec_idx", instance),
		"Federation:embeddings":                       "federation_vec_idx",
	}
}

// Retrieve runs the text pass, the vector pass, fuses scores, and returns
// up to topK candidates sorted descending by combined score.
func (e *Engine) Retrieve(ctx context.Context, instance, query string, topK int, weights Weights, textSearch TextSearcher) ([]Candidate, error) {
	if !weights.Valid() {
		return nil, apperr.Validation("hybrid weights must be within [0,1]", nil)
	}
	if topK <= 0 {
		topK = 5
	}

	var candidates []Candidate

	if textSearch != nil {
		hits, err := textSearch.Search(ctx, instance, query, 0, 5)
		if err != nil {
			e.log.WithInstance(instance).Warn().Err(err).Msg("text pass failed, continuing with vector pass only")
		}
		for _, h := range hits {
			candidates = append(candidates, Candidate{
				Content:   h.Content,
				CreatedAt: h.CreatedAt,
				Tags:      h.Tags,
				Category:  h.Category,
				text:      1,
			})
		}
	}

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.log.WithInstance(instance).Warn().Err(err).Msg("query embed failed, returning text-only candidates")
	} else {
		for prefix, index := range vectorPrefixIndexes(instance) {
			hits, err := e.knnSearch(ctx, index, prefix, queryVec, 5)
			if err != nil {
				e.log.WithInstance(instance).Debug().Err(err).Str("index", index).Msg("vector pass skipped")
				continue
			}
			candidates = append(candidates, hits...)
		}
	}

	now := time.Now()
	for i := range candidates {
		age := now.Sub(candidates[i].CreatedAt).Seconds()
		if age < 0 {
			age = 0
		}
		recency := math.Exp(-age / e.recencyTauSecs)
		candidates[i].combined = weights.Semantic*candidates[i].semantic +
			weights.Text*candidates[i].text +
			weights.Recency*recency
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].combined > candidates[j].combined
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// knnSearch issues a single k-NN query against index, keyed as
// *=>[KNN $k @vector $vec AS score], and batch-reads only the text fields
// of each hit via HMGET -- the raw vector bytes are never fetched back.
func (e *Engine) knnSearch(ctx context.Context, index, keyPrefix string, queryVec []float32, k int) ([]Candidate, error) {
	vecBytes := store.EncodeVector(queryVec)
	query := fmt.Sprintf("*=>[KNN %d @vector $vec AS score]", k)

	reply, err := e.gw.Search(ctx, index, query,
		"PARAMS", 2, "vec", vecBytes,
		"SORTBY", "score",
		"LIMIT", 0, k,
		"RETURN", 1, "score",
		"DIALECT", 2,
	)
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(reply.Docs))
	for _, doc := range reply.Docs {
		distance, err := strconv.ParseFloat(doc.Fields["score"], 64)
		if err != nil {
			continue
		}
		fields, err := e.gw.HashMGet(ctx, doc.ID, []string{"content", "ts", "tags", "category"})
		if err != nil || len(fields) < 2 || fields[0] == "" {
			continue
		}
		createdAt := time.Now()
		if tsUnix, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
			createdAt = time.Unix(tsUnix, 0)
		}
		cand := Candidate{
			Content:   fields[0],
			CreatedAt: createdAt,
			semantic:  1 / (1 + distance),
		}
		if len(fields) > 2 {
			cand.Tags = fields[2]
		}
		if len(fields) > 3 {
			cand.Category = fields[3]
		}
		out = append(out, cand)
	}
	return out, nil
}
