package dispatch

import (
	"context"

	"github.com/8agana/unified-intelligence/internal/apperr"
	"github.com/8agana/unified-intelligence/internal/knowledge"
	"github.com/8agana/unified-intelligence/pkg/uid"
)

// handleKnowledge implements ui_knowledge's entity/relation CRUD surface.
func (d *Dispatcher) handleKnowledge(ctx context.Context, instance string, p Params) (map[string]interface{}, error) {
	mode := p.String("mode")
	scope := knowledgeScope(p)

	switch mode {
	case "help":
		return HelpDocument("ui_knowledge", p.String("topic")), nil
	case "create":
		return d.knowledgeCreate(ctx, scope, p)
	case "search":
		return d.knowledgeSearch(ctx, scope, p)
	case "get_entity":
		return d.knowledgeGetEntity(ctx, scope, p)
	case "update_entity":
		return d.knowledgeUpdateEntity(ctx, scope, p)
	case "delete_entity":
		return d.knowledgeDeleteEntity(ctx, scope, p)
	case "create_relation":
		return d.knowledgeCreateRelation(ctx, scope, p)
	case "get_relations":
		return d.knowledgeGetRelations(ctx, scope, p)
	case "set_active":
		return map[string]interface{}{"status": "ok", "message": "active entity set client-side; no server state to update"}, nil
	default:
		return nil, apperr.Validation("unknown ui_knowledge mode: "+mode, nil)
	}
}

func knowledgeScope(p Params) knowledge.Scope {
	if p.String("scope") == string(knowledge.ScopeFederation) {
		return knowledge.ScopeFederation
	}
	return knowledge.ScopePersonal
}

func (d *Dispatcher) knowledgeCreate(ctx context.Context, scope knowledge.Scope, p Params) (map[string]interface{}, error) {
	name, err := p.RequireString("name")
	if err != nil {
		return nil, err
	}
	node := knowledge.Node{
		ID:          uid.New(),
		Name:        name,
		DisplayName: p.String("display_name"),
		EntityType:  parseEntityType(p.String("entity_type")),
		Scope:       scope,
		CreatedAt:   uid.NowRFC3339(),
		UpdatedAt:   uid.NowRFC3339(),
		CreatedBy:   p.String("created_by"),
		Tags:        p.StringSlice("tags"),
	}
	if node.DisplayName == "" {
		node.DisplayName = name
	}

	if err := d.Knowledge.CreateEntity(ctx, node); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "created", "entity_id": node.ID}, nil
}

func parseEntityType(raw string) knowledge.EntityType {
	switch raw {
	case "issue", "person", "system", "concept", "tool", "framework", "":
		kind := raw
		if kind == "" {
			kind = "concept"
		}
		return knowledge.EntityType{Kind: kind}
	default:
		return knowledge.EntityType{Kind: "custom", Custom: raw}
	}
}

func (d *Dispatcher) knowledgeSearch(ctx context.Context, scope knowledge.Scope, p Params) (map[string]interface{}, error) {
	limit, ok := p.Int("limit")
	if !ok || limit <= 0 {
		limit = 20
	}
	var entityType *knowledge.EntityType
	if raw := p.String("entity_type"); raw != "" {
		t := parseEntityType(raw)
		entityType = &t
	}

	entities, err := d.Knowledge.SearchEntities(ctx, scope, p.String("query"), entityType, limit)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "ok", "entities": entities}, nil
}

func (d *Dispatcher) knowledgeGetEntity(ctx context.Context, scope knowledge.Scope, p Params) (map[string]interface{}, error) {
	if id := p.String("id"); id != "" {
		node, err := d.Knowledge.GetEntity(ctx, scope, id)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "ok", "entity_id": node.ID, "entity": node}, nil
	}
	name, err := p.RequireString("name")
	if err != nil {
		return nil, err
	}
	node, err := d.Knowledge.GetEntityByName(ctx, scope, name)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "ok", "entity_id": node.ID, "entity": node}, nil
}

func (d *Dispatcher) knowledgeUpdateEntity(ctx context.Context, scope knowledge.Scope, p Params) (map[string]interface{}, error) {
	id, err := p.RequireString("id")
	if err != nil {
		return nil, err
	}
	node, err := d.Knowledge.GetEntity(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if dn := p.String("display_name"); dn != "" {
		node.DisplayName = dn
	}
	if tags := p.StringSlice("tags"); tags != nil {
		node.Tags = tags
	}
	node.UpdatedAt = uid.NowRFC3339()

	if err := d.Knowledge.UpdateEntity(ctx, *node); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "updated", "entity_id": node.ID}, nil
}

func (d *Dispatcher) knowledgeDeleteEntity(ctx context.Context, scope knowledge.Scope, p Params) (map[string]interface{}, error) {
	id, err := p.RequireString("id")
	if err != nil {
		return nil, err
	}
	if err := d.Knowledge.DeleteEntity(ctx, scope, id, p.String("name")); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "deleted", "entity_id": id}, nil
}

func (d *Dispatcher) knowledgeCreateRelation(ctx context.Context, scope knowledge.Scope, p Params) (map[string]interface{}, error) {
	from, err := p.RequireString("from")
	if err != nil {
		return nil, err
	}
	to, err := p.RequireString("to")
	if err != nil {
		return nil, err
	}
	relType, err := p.RequireString("relationship_type")
	if err != nil {
		return nil, err
	}

	weight, _ := FlexFloat(p["weight"])
	rel := knowledge.Relation{
		ID:               uid.New(),
		From:             from,
		To:               to,
		RelationshipType: relType,
		Scope:            scope,
		Metadata: knowledge.RelationMetadata{
			Bidirectional: p.Bool("bidirectional"),
			Weight:        weight,
		},
	}

	if err := d.Knowledge.CreateRelation(ctx, rel); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "created", "entity_id": rel.ID}, nil
}

func (d *Dispatcher) knowledgeGetRelations(ctx context.Context, scope knowledge.Scope, p Params) (map[string]interface{}, error) {
	entityID, err := p.RequireString("id")
	if err != nil {
		return nil, err
	}
	relations, err := d.Knowledge.GetRelations(ctx, scope, entityID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "ok", "relations": relations}, nil
}
