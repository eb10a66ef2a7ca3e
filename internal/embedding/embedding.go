// Package embedding implements the Embedding Pipeline: cache-first
// embedding, hash-document upsert with a vector field, and vector index
// lifecycle management. All work here is best-effort: failures are logged
// and swallowed so the ingest path is never corrupted.
package embedding

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"

	"github.com/8agana/unified-intelligence/internal/observability"
	"github.com/8agana/unified-intelligence/internal/store"
	"github.com/8agana/unified-intelligence/pkg/uid"
)

const chunkWindowBytes = 2000

// EmbedTransport is the external LLM collaborator capability this pipeline
// depends on.
type EmbedTransport interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Pipeline composes, embeds, and indexes documents across the fixed set of
// embedding prefixes.
type Pipeline struct {
	gw        *store.Gateway
	transport EmbedTransport
	log       *observability.Logger
	dims      int
	hnsw      store.VectorSchema

	indexedPrefixes map[string]bool
}

// Config configures dimensionality and HNSW parameters.
type Config struct {
	Dims           int
	HNSWM          int
	HNSWEFConstruct int
}

// New builds a Pipeline.
func New(gw *store.Gateway, transport EmbedTransport, cfg Config, log *observability.Logger) *Pipeline {
	return &Pipeline{
		gw:        gw,
		transport: transport,
		log:       log,
		dims:      cfg.Dims,
		hnsw: store.VectorSchema{
			Dims:           cfg.Dims,
			DistanceMetric: "COSINE",
			M:              cfg.HNSWM,
			EFConstruction: cfg.HNSWEFConstruct,
		},
		indexedPrefixes: map[string]bool{},
	}
}

func embeddingCacheKey(text string) string { return "embedding:" + uid.SHA256Hex(text) }

// embedWithRetry calls the transport with bounded exponential backoff and
// jitter: the wait between attempts grows to at most 30s, and retrying
// stops after 5 minutes of total wall time. Each attempt's own duration is
// bounded only by the transport.
func (p *Pipeline) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 5 * time.Minute

	var vec []float32
	err := backoff.Retry(func() error {
		v, err := p.transport.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	}, backoff.WithContext(b, ctx))
	return vec, err
}

// embed is cache-first: on a cache hit the cached vector is returned; on a
// miss the transport is called and the result is cached best-effort.
func (p *Pipeline) embed(ctx context.Context, text string) ([]float32, error) {
	cacheKey := embeddingCacheKey(text)
	if raw, found, err := p.gw.StringGet(ctx, cacheKey); err == nil && found {
		return store.DecodeVector(raw), nil
	}

	vec, err := p.embedWithRetry(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := p.gw.StringSet(ctx, cacheKey, store.EncodeVector(vec)); err != nil {
		p.log.Debug().Err(err).Msg("embedding cache write skipped")
	}
	return vec, nil
}

// upsert composes the document, embeds it, validates dimensionality, and
// writes a single hash with all schema fields. Any failure is logged and
// swallowed.
func (p *Pipeline) upsert(ctx context.Context, prefix, index, key, content, tags, category, chainID, thoughtID string) {
	if err := p.ensureIndex(ctx, prefix, index); err != nil {
		p.log.Warn().Err(err).Str("index", index).Msg("embedding upsert skipped: index unavailable")
		return
	}

	vec, err := p.embed(ctx, content)
	if err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("embedding upsert skipped: embed failed")
		return
	}
	if len(vec) != p.dims {
		p.log.Warn().Int("got", len(vec)).Int("want", p.dims).Msg("embedding upsert skipped: dimension mismatch")
		return
	}

	fields := map[string]interface{}{
		"content":    content,
		"tags":       tags,
		"category":   category,
		"importance": "",
		"chain_id":   chainID,
		"thought_id": thoughtID,
		"ts":         time.Now().Unix(),
		"vector":     store.EncodeVector(vec),
	}
	if err := p.gw.HashUpsert(ctx, key, fields); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("embedding upsert skipped: hash write failed")
	}
}

func (p *Pipeline) ensureIndex(ctx context.Context, prefix, index string) error {
	if p.indexedPrefixes[prefix] {
		return nil
	}
	if _, err := p.gw.EnsureVectorIndex(ctx, index, prefix, p.hnsw); err != nil {
		return err
	}
	p.indexedPrefixes[prefix] = true
	return nil
}

// UpsertContext embeds and indexes an arbitrary context document under
// kind (one of "session-summaries", "important", "federation"), returning
// the write's key/index/dims and whether the index was freshly created.
// Unlike the best-effort prefix upserts, this surfaces errors directly:
// ui_context is an explicit write call, not a side-effect of ingest.
// ttlSeconds, when positive, is applied as the key's expiry; this is the
// one write path where a TTL is allowed by design.
func (p *Pipeline) UpsertContext(ctx context.Context, instance, kind, content, tags, importance, chainID, thoughtID string, ttlSeconds int64) (key, index string, dims int, createdIndex bool, err error) {
	var prefix string
	switch kind {
	case "session-summaries":
		prefix = fmt.Sprintf("%s:embeddings:session-summaries:", instance)
		index = fmt.Sprintf("idx:%s:session-summaries", instance)
	case "important":
		prefix = fmt.Sprintf("%s:embeddings:important:", instance)
		index = fmt.Sprintf("idx:%s:important", instance)
	case "federation":
		prefix = "Federation:embeddings:"
		index = "idx:Federation:embeddings"
	default:
		return "", "", 0, false, fmt.Errorf("unsupported context type: %s", kind)
	}

	createdIndex, err = p.gw.EnsureVectorIndex(ctx, index, prefix, p.hnsw)
	if err != nil {
		return "", "", 0, false, err
	}

	vec, err := p.embed(ctx, content)
	if err != nil {
		return "", "", 0, false, err
	}
	if len(vec) != p.dims {
		return "", "", 0, false, fmt.Errorf("embedding dims mismatch: got %d, expected %d", len(vec), p.dims)
	}

	key = prefix + uid.SHA256Hex(content)
	fields := map[string]interface{}{
		"content":    content,
		"tags":       tags,
		"importance": importance,
		"chain_id":   chainID,
		"thought_id": thoughtID,
		"ts":         time.Now().Unix(),
		"vector":     store.EncodeVector(vec),
	}
	if err := p.gw.HashUpsert(ctx, key, fields); err != nil {
		return "", "", 0, false, err
	}
	if err := p.gw.Expire(ctx, key, ttlSeconds); err != nil {
		return "", "", 0, false, err
	}

	return key, index, p.dims, createdIndex, nil
}

// Embed returns the cache-first embedding of text, for callers (the
// Retrieval Engine) that need a raw vector rather than an indexed document.
func (p *Pipeline) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, text)
}

// UpsertThought embeds and indexes a thought's raw content.
func (p *Pipeline) UpsertThought(ctx context.Context, instance, thoughtID, content, tags, category, chainID string) {
	prefix := fmt.Sprintf("%s:embeddings:thought:", instance)
	key := prefix + thoughtID
	index := fmt.Sprintf("%s:thought_vec_idx", instance)
	p.upsert(ctx, prefix, index, key, content, tags, category, chainID, thoughtID)
}

// UpsertEntity embeds and indexes a knowledge entity's compact synthesis
// text. Satisfies knowledge.Embedder.
func (p *Pipeline) UpsertEntity(ctx context.Context, scope, entityID, text string) error {
	prefix := fmt.Sprintf("%s:embeddings:kg_entity:", scope)
	key := prefix + entityID
	index := fmt.Sprintf("%s:kg_entity_vec_idx", scope)
	p.upsert(ctx, prefix, index, key, text, "", "", "", "")
	return nil
}

// UpsertImportant embeds and indexes an "important" document keyed by the
// content hash.
func (p *Pipeline) UpsertImportant(ctx context.Context, instance, content, tags, category, chainID, thoughtID string) {
	prefix := fmt.Sprintf("%s:embeddings:important:", instance)
	key := prefix + uid.SHA256Hex(content)
	index := fmt.Sprintf("%s:important_vec_idx", instance)
	p.upsert(ctx, prefix, index, key, content, tags, category, chainID, thoughtID)
}

// UpsertFederation embeds and indexes a shared, instance-independent
// document.
func (p *Pipeline) UpsertFederation(ctx context.Context, content, tags, category string) {
	prefix := "Federation:embeddings:"
	key := prefix + uid.SHA256Hex(content)
	index := "federation_vec_idx"
	p.upsert(ctx, prefix, index, key, content, tags, category, "", "")
}

// UpsertSessionSummaryChunks splits summary into UTF-8-safe windows and
// upserts each as its own embedding document under
// {instance}:embeddings:session-summaries:{chainOrNone}:{offset}.
func (p *Pipeline) UpsertSessionSummaryChunks(ctx context.Context, instance, chainOrNone, summary string) {
	prefix := fmt.Sprintf("%s:embeddings:session-summaries:", instance)
	index := fmt.Sprintf("%s:session_summaries_vec_idx", instance)

	for offset, chunk := range Chunk(summary, chunkWindowBytes) {
		key := fmt.Sprintf("%s%s:%d", prefix, chainOrNone, offset)
		p.upsert(ctx, prefix, index, key, chunk, "", "", chainOrNone, "")
	}
}

// Chunk walks text in windowBytes windows, advancing/retreating to the
// nearest UTF-8 character boundary so no window slices a partial code
// point. Returns chunks keyed by byte offset.
func Chunk(text string, windowBytes int) map[int]string {
	out := map[int]string{}
	b := []byte(text)
	start := 0
	for start < len(b) {
		end := start + windowBytes
		if end >= len(b) {
			end = len(b)
		} else {
			for end > start && !utf8.RuneStart(b[end]) {
				end--
			}
			if end == start {
				end = start + windowBytes
			}
		}
		out[start] = string(b[start:end])
		start = end
	}
	return out
}

