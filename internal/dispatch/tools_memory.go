package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/8agana/unified-intelligence/internal/apperr"
	"github.com/8agana/unified-intelligence/internal/store"
	"github.com/8agana/unified-intelligence/pkg/uid"
)

// memoryTarget pairs a vector-search index with the hash key prefix its
// documents live under.
type memoryTarget struct {
	index  string
	prefix string
}

// determineMemoryIndexes resolves the (index, prefix) pairs ui_memory should
// fan out across for scope: "session-summaries", "important", "federation",
// or "all" (every prefix).
func determineMemoryIndexes(instance, scope string) []memoryTarget {
	all := map[string]memoryTarget{
		"session-summaries": {index: fmt.Sprintf("idx:%s:session-summaries", instance), prefix: fmt.Sprintf("%s:embeddings:session-summaries:", instance)},
		"important":         {index: fmt.Sprintf("idx:%s:important", instance), prefix: fmt.Sprintf("%s:embeddings:important:", instance)},
		"federation":        {index: "idx:Federation:embeddings", prefix: "Federation:embeddings:"},
	}
	if scope == "" || scope == "all" {
		return []memoryTarget{all["session-summaries"], all["important"], all["federation"]}
	}
	if t, ok := all[scope]; ok {
		return []memoryTarget{t}
	}
	return nil
}

// handleMemory implements ui_memory: cross-index search, bulk read, update
// (with re-embed-and-rekey when content changes), and delete over ad hoc
// context documents.
func (d *Dispatcher) handleMemory(ctx context.Context, instance string, p Params) (map[string]interface{}, error) {
	action := p.String("action")

	switch action {
	case "help", "":
		return HelpDocument("ui_memory", p.String("topic")), nil
	case "search":
		return d.memorySearch(ctx, instance, p)
	case "read":
		return d.memoryRead(ctx, p)
	case "update":
		return d.memoryUpdate(ctx, instance, p)
	case "delete":
		return d.memoryDelete(ctx, p)
	default:
		return nil, apperr.Validation("unknown ui_memory action: "+action, nil)
	}
}

func (d *Dispatcher) memorySearch(ctx context.Context, instance string, p Params) (map[string]interface{}, error) {
	scope := p.String("scope")
	limit, ok := p.Int("limit")
	if !ok || limit <= 0 {
		limit = 10
	}
	offset, _ := p.Int("offset")

	var clauses []string
	if tags := p.StringSlice("tags"); len(tags) > 0 {
		clauses = append(clauses, "@tags:{"+strings.Join(tags, "|")+"}")
	}
	if v := p.String("importance"); v != "" {
		clauses = append(clauses, "@importance:"+v)
	}
	if v := p.String("chain_id"); v != "" {
		clauses = append(clauses, "@chain_id:"+v)
	}
	if v := p.String("thought_id"); v != "" {
		clauses = append(clauses, "@thought_id:"+v)
	}
	if q := p.String("query"); q != "" {
		clauses = append(clauses, q)
	}
	query := "*"
	if len(clauses) > 0 {
		query = strings.Join(clauses, " ")
	}

	targets := determineMemoryIndexes(instance, scope)
	var results []map[string]interface{}
	for _, t := range targets {
		reply, err := d.Gateway.Search(ctx, t.index, query, "NOCONTENT", "LIMIT", offset, limit)
		if err != nil {
			d.Log.Warn().Err(err).Str("index", t.index).Msg("ui_memory search skipped: index unavailable")
			continue
		}
		for _, doc := range reply.Docs {
			fields, err := d.Gateway.HashGetAll(ctx, doc.ID)
			if err != nil {
				continue
			}
			results = append(results, memoryItem(doc.ID, fields))
			if len(results) >= limit {
				break
			}
		}
		if len(results) >= limit {
			break
		}
	}

	return map[string]interface{}{"status": "ok", "results": results}, nil
}

func memoryItem(key string, fields map[string]string) map[string]interface{} {
	return map[string]interface{}{
		"key":        key,
		"content":    fields["content"],
		"tags":       fields["tags"],
		"importance": fields["importance"],
		"chain_id":   fields["chain_id"],
		"thought_id": fields["thought_id"],
		"ts":         fields["ts"],
	}
}

func (d *Dispatcher) memoryRead(ctx context.Context, p Params) (map[string]interface{}, error) {
	keys := p.StringSlice("keys")
	if len(keys) == 0 {
		return nil, apperr.Validation("keys is required and must be a non-empty array", nil)
	}
	var results []map[string]interface{}
	for _, key := range keys {
		fields, err := d.Gateway.HashGetAll(ctx, key)
		if err != nil {
			return nil, apperr.Store("ui_memory read failed", err)
		}
		if len(fields) == 0 {
			continue
		}
		results = append(results, memoryItem(key, fields))
	}
	return map[string]interface{}{"status": "ok", "results": results}, nil
}

func (d *Dispatcher) memoryDelete(ctx context.Context, p Params) (map[string]interface{}, error) {
	keys := p.StringSlice("keys")
	if len(keys) == 0 {
		return nil, apperr.Validation("keys is required and must be a non-empty array", nil)
	}
	if err := d.Gateway.Del(ctx, keys...); err != nil {
		return nil, apperr.Store("ui_memory delete failed", err)
	}
	return map[string]interface{}{"status": "ok", "deleted": len(keys)}, nil
}

// memoryUpdate applies a field-level update in place, unless content
// changes: a content change re-embeds and writes a fresh key under the same
// prefix, deleting the old one, since the key is a content hash.
func (d *Dispatcher) memoryUpdate(ctx context.Context, instance string, p Params) (map[string]interface{}, error) {
	key, err := p.RequireString("key")
	if err != nil {
		return nil, err
	}

	ttlSeconds, _ := p.Int("ttl_seconds")

	newContent := p.String("content")
	if newContent == "" {
		fields := map[string]interface{}{}
		if tags := p.StringSlice("tags"); tags != nil {
			fields["tags"] = strings.Join(tags, ",")
		}
		if v := p.String("importance"); v != "" {
			fields["importance"] = v
		}
		if len(fields) > 0 {
			if err := d.Gateway.HashUpsert(ctx, key, fields); err != nil {
				return nil, apperr.Store("ui_memory update failed", err)
			}
		}
		if err := d.Gateway.Expire(ctx, key, int64(ttlSeconds)); err != nil {
			return nil, apperr.Store("ui_memory update ttl failed", err)
		}
		return map[string]interface{}{"status": "ok", "updated": key}, nil
	}

	prefix := memoryKeyPrefix(instance, key)
	if prefix == "" {
		return nil, apperr.Validation("key does not belong to a recognized ui_memory prefix", nil)
	}

	existing, err := d.Gateway.HashGetAll(ctx, key)
	if err != nil {
		return nil, apperr.Store("ui_memory update failed", err)
	}

	vec, err := d.Embeddings.Embed(ctx, newContent)
	if err != nil {
		return nil, apperr.Upstream("ui_memory re-embed failed", err)
	}

	newKey := prefix + uid.SHA256Hex(newContent)
	fields := map[string]interface{}{
		"content":    newContent,
		"tags":       existing["tags"],
		"importance": existing["importance"],
		"chain_id":   existing["chain_id"],
		"thought_id": existing["thought_id"],
		"ts":         existing["ts"],
		"vector":     store.EncodeVector(vec),
	}
	if tags := p.StringSlice("tags"); tags != nil {
		fields["tags"] = strings.Join(tags, ",")
	}
	if v := p.String("importance"); v != "" {
		fields["importance"] = v
	}

	if err := d.Gateway.HashUpsert(ctx, newKey, fields); err != nil {
		return nil, apperr.Store("ui_memory update failed", err)
	}
	if err := d.Gateway.Expire(ctx, newKey, int64(ttlSeconds)); err != nil {
		return nil, apperr.Store("ui_memory update ttl failed", err)
	}
	if newKey != key {
		_ = d.Gateway.Del(ctx, key)
	}

	return map[string]interface{}{"status": "ok", "updated": newKey, "previous_key": key}, nil
}

func memoryKeyPrefix(instance, key string) string {
	for _, t := range determineMemoryIndexes(instance, "all") {
		if strings.HasPrefix(key, t.prefix) {
			return t.prefix
		}
	}
	return ""
}
