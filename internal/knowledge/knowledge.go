// Package knowledge implements the Knowledge Repository: entity/relation
// CRUD, the scoped name->id index, the per-entity relation index, and
// best-effort entity embedding.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/8agana/unified-intelligence/internal/apperr"
	"github.com/8agana/unified-intelligence/internal/observability"
	"github.com/8agana/unified-intelligence/internal/scripts"
	"github.com/8agana/unified-intelligence/internal/store"
)

const scanBatchSize = 100

// Scope partitions the knowledge graph.
type Scope string

const (
	ScopeFederation Scope = "Federation"
	ScopePersonal   Scope = "Personal"
)

// EntityType is a tagged variant: the fixed set plus an open "custom" string.
type EntityType struct {
	Kind   string // issue, person, system, concept, tool, framework, custom
	Custom string // set only when Kind == "custom"
}

// MarshalJSON renders the built-in kinds as their bare string and custom
// kinds as the custom value itself, matching the source's tagged encoding.
func (e EntityType) MarshalJSON() ([]byte, error) {
	if e.Kind == "custom" {
		return json.Marshal(e.Custom)
	}
	return json.Marshal(e.Kind)
}

func (e *EntityType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "issue", "person", "system", "concept", "tool", "framework":
		e.Kind = s
	default:
		e.Kind = "custom"
		e.Custom = s
	}
	return nil
}

// Matches reports whether e equals other under tagged-variant semantics:
// built-in kinds compare by kind, custom kinds compare by their string.
func (e EntityType) Matches(other EntityType) bool {
	if e.Kind == "custom" && other.Kind == "custom" {
		return e.Custom == other.Custom
	}
	return e.Kind == other.Kind
}

// Node is a knowledge-graph entity.
type Node struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	EntityType  EntityType        `json:"entity_type"`
	Scope       Scope             `json:"scope"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
	CreatedBy   string            `json:"created_by"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	ThoughtIDs  []string          `json:"thought_ids,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Relation connects two nodes.
type Relation struct {
	ID               string            `json:"id"`
	From             string            `json:"from"`
	To               string            `json:"to"`
	RelationshipType string            `json:"relationship_type"`
	Scope            Scope             `json:"scope"`
	Attributes       map[string]string `json:"attributes,omitempty"`
	Metadata         RelationMetadata  `json:"metadata"`
}

// RelationMetadata carries the bidirectional/weight flags.
type RelationMetadata struct {
	Bidirectional bool    `json:"bidirectional"`
	Weight        float64 `json:"weight"`
}

// Embedder is the narrow best-effort embedding contract the Knowledge
// Repository depends on; satisfied by the Embedding Pipeline.
type Embedder interface {
	UpsertEntity(ctx context.Context, scope, entityID, text string) error
}

// Repository exclusively owns KG:* keys.
type Repository struct {
	gw       *store.Gateway
	scripts  *scripts.Cache
	embedder Embedder
	log      *observability.Logger
}

// New builds a Repository. embedder may be nil, in which case embedding is
// skipped entirely (still best-effort, per contract).
func New(gw *store.Gateway, scriptCache *scripts.Cache, embedder Embedder, log *observability.Logger) *Repository {
	return &Repository{gw: gw, scripts: scriptCache, embedder: embedder, log: log}
}

func entityKey(scope Scope, id string) string   { return fmt.Sprintf("%s:KG:entity:%s", scope, id) }
func nameIndexKey(scope Scope) string            { return fmt.Sprintf("%s:KG:index:name_to_id", scope) }
func relationKey(scope Scope, id string) string  { return fmt.Sprintf("%s:KG:relation:%s", scope, id) }
func relationIndexKey(scope Scope, entityID string) string {
	return fmt.Sprintf("%s:KG:index:entity_relations:%s", scope, entityID)
}

// CreateEntity writes the node and its name-index entry atomically, then
// best-effort embeds a compact synthesis of the node.
func (r *Repository) CreateEntity(ctx context.Context, node Node) error {
	body, err := json.Marshal(node)
	if err != nil {
		return apperr.Internal("marshal entity", err)
	}

	keys := []string{entityKey(node.Scope, node.ID), nameIndexKey(node.Scope)}
	if _, err := r.scripts.Exec(ctx, scripts.CreateEntity, keys, string(body), node.Name, node.ID); err != nil {
		return apperr.Store("create_entity failed", err)
	}

	r.bestEffortEmbed(ctx, node)
	return nil
}

func (r *Repository) bestEffortEmbed(ctx context.Context, node Node) {
	if r.embedder == nil {
		return
	}
	text := synthesizeEntityText(node)
	if err := r.embedder.UpsertEntity(ctx, string(node.Scope), node.ID, text); err != nil {
		r.log.Debug().Err(err).Str("entity_id", node.ID).Msg("entity embedding skipped")
	}
}

// synthesizeEntityText builds the compact text used to embed an entity:
// display name, then optional tag/attribute summaries.
func synthesizeEntityText(node Node) string {
	var b strings.Builder
	b.WriteString(node.DisplayName)
	if len(node.Tags) > 0 {
		b.WriteString(" | tags: ")
		b.WriteString(strings.Join(node.Tags, ","))
	}
	if len(node.Attributes) > 0 {
		attrs, err := json.Marshal(node.Attributes)
		if err == nil {
			s := string(attrs)
			if len(s) > 400 {
				s = s[:400]
			}
			b.WriteString(" | attrs: ")
			b.WriteString(s)
		}
	}
	return b.String()
}

// GetEntity reads a node by id, failing with NotFound when absent.
func (r *Repository) GetEntity(ctx context.Context, scope Scope, id string) (*Node, error) {
	raw, found, err := r.gw.JSONGet(ctx, entityKey(scope, id), "$")
	if err != nil {
		return nil, apperr.Store("get_entity failed", err)
	}
	if !found {
		return nil, apperr.NotFound("entity not found", nil)
	}
	var n Node
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return nil, apperr.Internal("unmarshal entity", err)
	}
	return &n, nil
}

// GetEntityByName resolves name through the scoped name index, then reads
// the node.
func (r *Repository) GetEntityByName(ctx context.Context, scope Scope, name string) (*Node, error) {
	vals, err := r.gw.HashMGet(ctx, nameIndexKey(scope), []string{name})
	if err != nil {
		return nil, apperr.Store("name index lookup failed", err)
	}
	if len(vals) == 0 || vals[0] == "" {
		return nil, apperr.NotFound("entity not found by name", nil)
	}
	return r.GetEntity(ctx, scope, vals[0])
}

// UpdateEntity overwrites the node root and re-embeds best-effort.
func (r *Repository) UpdateEntity(ctx context.Context, node Node) error {
	body, err := json.Marshal(node)
	if err != nil {
		return apperr.Internal("marshal entity", err)
	}
	if err := r.gw.JSONSet(ctx, entityKey(node.Scope, node.ID), "$", string(body)); err != nil {
		return apperr.Store("update_entity failed", err)
	}
	r.bestEffortEmbed(ctx, node)
	return nil
}

// DeleteEntity removes the node and its name-index entry.
func (r *Repository) DeleteEntity(ctx context.Context, scope Scope, id, name string) error {
	node, err := r.GetEntity(ctx, scope, id)
	if err != nil {
		return err
	}
	resolvedName := name
	if resolvedName == "" && node != nil {
		resolvedName = node.Name
	}
	if err := r.gw.Del(ctx, entityKey(scope, id)); err != nil {
		return apperr.Store("delete_entity failed", err)
	}
	if resolvedName != "" {
		if err := r.gw.HDel(ctx, nameIndexKey(scope), resolvedName); err != nil {
			r.log.Debug().Err(err).Str("entity_id", id).Msg("name index cleanup failed")
		}
	}
	return nil
}

// SearchEntities is a production-safe SCAN: it iterates entity keys in
// batches of 100, filters in application memory, and short-circuits at
// limit. It never issues the blocking "all keys" command.
func (r *Repository) SearchEntities(ctx context.Context, scope Scope, query string, entityType *EntityType, limit int) ([]Node, error) {
	pattern := fmt.Sprintf("%s:KG:entity:*", scope)
	query = strings.ToLower(query)

	var out []Node
	err := r.gw.Scan(ctx, pattern, scanBatchSize, func(keys []string) error {
		for _, key := range keys {
			if len(out) >= limit {
				return nil
			}
			raw, found, err := r.gw.JSONGet(ctx, key, "$")
			if err != nil || !found {
				continue
			}
			var n Node
			if err := json.Unmarshal([]byte(raw), &n); err != nil {
				continue
			}
			if entityType != nil && !n.EntityType.Matches(*entityType) {
				continue
			}
			if query != "" && !matchesQuery(n, query) {
				continue
			}
			out = append(out, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesQuery(n Node, query string) bool {
	haystack := strings.ToLower(n.Name + " " + n.DisplayName + " " + strings.Join(n.Tags, " "))
	return strings.Contains(haystack, query)
}

// CreateRelation stores the relation and updates the per-entity relation
// index hashes for both endpoints with direction markers.
func (r *Repository) CreateRelation(ctx context.Context, rel Relation) error {
	body, err := json.Marshal(rel)
	if err != nil {
		return apperr.Internal("marshal relation", err)
	}
	if err := r.gw.JSONSet(ctx, relationKey(rel.Scope, rel.ID), "$", string(body)); err != nil {
		return apperr.Store("create_relation write failed", err)
	}

	outField := fmt.Sprintf("outgoing:%s", rel.ID)
	inField := fmt.Sprintf("incoming:%s", rel.ID)
	if err := r.gw.HashUpsert(ctx, relationIndexKey(rel.Scope, rel.From), map[string]interface{}{outField: rel.ID}); err != nil {
		return apperr.Store("relation index update failed (from)", err)
	}
	if err := r.gw.HashUpsert(ctx, relationIndexKey(rel.Scope, rel.To), map[string]interface{}{inField: rel.ID}); err != nil {
		return apperr.Store("relation index update failed (to)", err)
	}
	return nil
}

// GetRelations reads the per-entity relation hash and batch-reads each
// relation. Hash fields are "{direction}:{relation_id}"; only the id
// suffix is needed to look up the relation body.
func (r *Repository) GetRelations(ctx context.Context, scope Scope, entityID string) ([]Relation, error) {
	fields, err := r.gw.HashGetAll(ctx, relationIndexKey(scope, entityID))
	if err != nil {
		return nil, apperr.Store("relation index read failed", err)
	}

	out := make([]Relation, 0, len(fields))
	for field := range fields {
		parts := strings.SplitN(field, ":", 2)
		if len(parts) != 2 {
			continue
		}
		relID := parts[1]
		raw, found, err := r.gw.JSONGet(ctx, relationKey(scope, relID), "$")
		if err != nil || !found {
			continue
		}
		var rel Relation
		if err := json.Unmarshal([]byte(raw), &rel); err != nil {
			continue
		}
		out = append(out, rel)
	}
	return out, nil
}

// AddThoughtToEntity JSON array-appends thoughtID onto the node's
// thought_ids via a single-key Lua script, so two concurrent appends to the
// same entity can't race and drop one of them.
func (r *Repository) AddThoughtToEntity(ctx context.Context, scope Scope, name, thoughtID string) error {
	node, err := r.GetEntityByName(ctx, scope, name)
	if err != nil {
		return err
	}
	res, err := r.scripts.Exec(ctx, scripts.AppendThoughtID, []string{entityKey(scope, node.ID)}, thoughtID)
	if err != nil {
		return apperr.Store("append_thought_id failed", err)
	}
	if s, _ := res.(string); s == "NOTFOUND" {
		return apperr.NotFound("entity not found", nil)
	}
	return nil
}
