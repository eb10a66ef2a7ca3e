// Package thought implements the Thought Repository: atomic thought
// ingest (dedup + chain append + event emit), chain fetch, and keyword
// search over the per-instance text index.
package thought

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/8agana/unified-intelligence/internal/apperr"
	"github.com/8agana/unified-intelligence/internal/observability"
	"github.com/8agana/unified-intelligence/internal/scripts"
	"github.com/8agana/unified-intelligence/internal/store"
	"github.com/8agana/unified-intelligence/pkg/uid"
)

const eventStreamMaxLen = 10000

// Thought is the atomic unit of capture.
type Thought struct {
	ID                string   `json:"id"`
	Instance          string   `json:"instance"`
	ChainID           string   `json:"chain_id,omitempty"`
	ThoughtNumber     int      `json:"thought_number"`
	TotalThoughts     int      `json:"total_thoughts"`
	Timestamp         string   `json:"timestamp"`
	Content           string   `json:"content"`
	NextThoughtNeeded bool     `json:"next_thought_needed"`
	Framework         string   `json:"framework,omitempty"`
	Importance        int      `json:"importance,omitempty"`
	Relevance         int      `json:"relevance,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	Category          string   `json:"category,omitempty"`
}

// ChainMetadata describes an ordered sequence of thoughts sharing ChainID.
type ChainMetadata struct {
	ChainID      string `json:"chain_id"`
	CreatedAt    string `json:"created_at"`
	ThoughtCount int    `json:"thought_count"`
	Instance     string `json:"instance"`
}

// Repository exclusively owns thought keys, chain lists, and event
// emission.
type Repository struct {
	gw      *store.Gateway
	scripts *scripts.Cache
	log     *observability.Logger
}

// New builds a Repository over gw/scriptCache. The per-instance keyword
// index is not created here since it is instance-scoped; EnsureTextIndex
// must be called once per instance before Search is used against it.
func New(gw *store.Gateway, scriptCache *scripts.Cache, log *observability.Logger) *Repository {
	return &Repository{gw: gw, scripts: scriptCache, log: log}
}

func thoughtKey(instance, id string) string { return fmt.Sprintf("%s:Thoughts:%s", instance, id) }
func chainKey(instance, chainID string) string { return fmt.Sprintf("%s:chains:%s", instance, chainID) }
func chainMetaKey(chainID string) string       { return fmt.Sprintf("Chains:metadata:%s", chainID) }
func dedupKey(instance string) string          { return fmt.Sprintf("%s:Thoughts:dedup", instance) }
func counterKey(instance string) string        { return fmt.Sprintf("%s:Thoughts:counter", instance) }
func textIndex(instance string) string         { return fmt.Sprintf("%s:thoughts_idx", instance) }
func eventsKey(instance string) string         { return fmt.Sprintf("%s:events", instance) }

// DuplicateThought is returned by Save when the store's dedup script
// reports the id has already been committed.
type DuplicateThought struct {
	Instance string
	Preview  string
}

func (e *DuplicateThought) Error() string {
	return fmt.Sprintf("duplicate thought in instance %q: %s", e.Instance, e.Preview)
}

// Save performs the atomic ingest: dedup check, JSON write, chain append,
// all under the store_thought script. On success it best-effort publishes
// a thought_created event.
func (r *Repository) Save(ctx context.Context, t Thought) error {
	body, err := json.Marshal(t)
	if err != nil {
		return apperr.Internal("marshal thought", err)
	}

	keys := []string{
		thoughtKey(t.Instance, t.ID),
		dedupKey(t.Instance),
		counterKey(t.Instance),
	}
	chain := ""
	if t.ChainID != "" {
		chain = chainKey(t.Instance, t.ChainID)
	}
	keys = append(keys, chain)

	res, err := r.scripts.Exec(ctx, scripts.StoreThought, keys, string(body), t.ID, t.Timestamp, t.ChainID)
	if err != nil {
		return apperr.Store("store_thought failed", err)
	}

	status, _ := res.(string)
	if status == "DUPLICATE" {
		preview := t.Content
		if len(preview) > 80 {
			preview = preview[:80]
		}
		return apperr.Duplicate("thought already ingested", &DuplicateThought{Instance: t.Instance, Preview: preview})
	}

	r.publishThoughtCreated(ctx, t, body)
	return nil
}

func (r *Repository) publishThoughtCreated(ctx context.Context, t Thought, body []byte) {
	err := r.gw.StreamAppend(ctx, eventsKey(t.Instance), map[string]interface{}{
		"event_type": "thought_created",
		"instance":   t.Instance,
		"timestamp":  t.Timestamp,
		"thought_id": t.ID,
		"chain_id":   t.ChainID,
		"body":       string(body),
	}, eventStreamMaxLen)
	if err != nil {
		r.log.WithInstance(t.Instance).Debug().Err(err).Str("thought_id", t.ID).Msg("thought_created event publish failed")
	}
}

// SaveChainMetadata is idempotent; it emits chain_created if the key was
// absent, chain_updated otherwise.
func (r *Repository) SaveChainMetadata(ctx context.Context, meta ChainMetadata) error {
	existed, err := r.ChainExists(ctx, meta.ChainID)
	if err != nil {
		return err
	}

	body, err := json.Marshal(meta)
	if err != nil {
		return apperr.Internal("marshal chain metadata", err)
	}

	if _, err := r.scripts.Exec(ctx, scripts.UpdateChain, []string{chainMetaKey(meta.ChainID)}, string(body)); err != nil {
		return apperr.Store("update_chain failed", err)
	}

	eventType := "chain_updated"
	if !existed {
		eventType = "chain_created"
	}
	if err := r.gw.StreamAppend(ctx, eventsKey(meta.Instance), map[string]interface{}{
		"event_type": eventType,
		"instance":   meta.Instance,
		"chain_id":   meta.ChainID,
	}, eventStreamMaxLen); err != nil {
		r.log.WithInstance(meta.Instance).Debug().Err(err).Str("chain_id", meta.ChainID).Msg("chain event publish failed")
	}
	return nil
}

// ChainExists probes the chain metadata key.
func (r *Repository) ChainExists(ctx context.Context, chainID string) (bool, error) {
	_, found, err := r.gw.JSONGet(ctx, chainMetaKey(chainID), "$")
	if err != nil {
		return false, apperr.Store("chain_exists probe failed", err)
	}
	return found, nil
}

// EnsureTextIndex creates instance's keyword index over its Thoughts
// keyspace if it doesn't already exist. Idempotent; safe to call on every
// startup.
func (r *Repository) EnsureTextIndex(ctx context.Context, instance string) error {
	_, err := r.gw.EnsureTextIndex(ctx, textIndex(instance), fmt.Sprintf("%s:Thoughts:", instance), map[string]string{
		"content":    "TEXT",
		"tags":       "TAG",
		"category":   "TEXT",
		"chain_id":   "TEXT",
		"importance": "NUMERIC",
	})
	return err
}

// Get fetches a single thought by id.
func (r *Repository) Get(ctx context.Context, instance, id string) (*Thought, error) {
	res, err := r.scripts.Exec(ctx, scripts.GetThought, []string{thoughtKey(instance, id)})
	if err != nil {
		return nil, apperr.Store("get_thought failed", err)
	}
	raw, ok := asJSONString(res)
	if !ok {
		return nil, apperr.NotFound("thought not found", nil)
	}
	var t Thought
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, apperr.Internal("unmarshal thought", err)
	}
	return &t, nil
}

// GetChain returns every thought in chainID in append order.
func (r *Repository) GetChain(ctx context.Context, instance, chainID string) ([]Thought, error) {
	res, err := r.scripts.Exec(ctx, scripts.GetChainThoughts, []string{chainKey(instance, chainID)}, instance)
	if err != nil {
		return nil, apperr.Store("get_chain_thoughts failed", err)
	}
	items, _ := res.([]interface{})
	out := make([]Thought, 0, len(items))
	for _, item := range items {
		raw, ok := asJSONString(item)
		if !ok {
			continue
		}
		var t Thought
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			r.log.WithInstance(instance).Debug().Err(err).Msg("skipping malformed chain thought")
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Search runs a keyword query over the instance's text index, discarding
// the raw reply's leading total-count element.
func (r *Repository) Search(ctx context.Context, instance, query string, offset, limit int) ([]Thought, error) {
	res, err := r.scripts.Exec(ctx, scripts.SearchThoughts, []string{textIndex(instance)}, query, offset, limit)
	if err != nil {
		return nil, apperr.Store("search_thoughts failed", err)
	}
	items, _ := res.([]interface{})
	if len(items) == 0 {
		return nil, nil
	}
	// items[0] is the total count; the rest alternate a document key and
	// its field array, which for a JSON index holds the document under "$".
	out := make([]Thought, 0, limit)
	for i := 1; i < len(items); i++ {
		fields, ok := items[i].([]interface{})
		if !ok {
			continue
		}
		for j := 0; j+1 < len(fields); j += 2 {
			if name, _ := fields[j].(string); name != "$" {
				continue
			}
			raw, ok := asJSONString(fields[j+1])
			if !ok {
				continue
			}
			var t Thought
			if err := json.Unmarshal([]byte(raw), &t); err == nil {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func asJSONString(v interface{}) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	// JSON.GET at the root path "$" wraps the document in a one-element array.
	if t := strings.TrimSpace(s); len(t) >= 2 && t[0] == '[' && t[len(t)-1] == ']' {
		s = strings.TrimSpace(t[1 : len(t)-1])
	}
	return s, true
}

// NewThought builds a Thought with a minted id and the current timestamp;
// the remaining fields are left at their zero values for the caller to set.
func NewThought(instance, content string) Thought {
	return Thought{
		ID:        uid.New(),
		Instance:  instance,
		Content:   content,
		Timestamp: uid.NowRFC3339(),
	}
}
