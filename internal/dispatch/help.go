package dispatch

// helpDocs is the fixed set of tool help documents. ui_help is a pure
// function of tool name and topic: no store access, no state.
var helpDocs = map[string]map[string]interface{}{
	"ui_think": {
		"tool":    "ui_think",
		"summary": "Record a single thought in a reasoning chain.",
		"params":  []string{"thought", "chain_id", "thought_number", "total_thoughts", "next_thought_needed", "framework_state", "importance", "relevance", "tags", "category"},
		"notes":   "framework_state selects the cognitive-mode recommendation; unrecognized states fall back to Conversation.",
	},
	"ui_recall": {
		"tool":    "ui_recall",
		"summary": "Fetch a stored thought or an entire chain.",
		"params":  []string{"mode (thought|chain|help)", "id"},
	},
	"ui_remember": {
		"tool":    "ui_remember",
		"summary": "Conversational query/feedback loop backed by hybrid retrieval and retroactive scoring.",
		"params":  []string{"action (query|feedback|help)", "chain_id", "thought", "style", "top_k", "weights", "feedback", "continue_next"},
	},
	"ui_start": {
		"tool":    "ui_start",
		"summary": "Bootstrap a session: summarize the prior chain, embed it, mint a new chain id.",
		"params":  []string{"user", "scope", "summary_tokens"},
	},
	"ui_knowledge": {
		"tool":    "ui_knowledge",
		"summary": "Knowledge graph entity and relation CRUD.",
		"params":  []string{"mode (create|search|get_entity|update_entity|delete_entity|create_relation|get_relations|set_active|help)", "scope", "name", "entity_type", "id", "from", "to", "relationship_type"},
	},
	"ui_context": {
		"tool":    "ui_context",
		"summary": "Write an ad hoc embedding document outside the normal ingest path.",
		"params":  []string{"type (session-summaries|important|federation|help)", "content", "tags", "importance", "chain_id", "thought_id", "ttl_seconds"},
	},
	"ui_memory": {
		"tool":    "ui_memory",
		"summary": "Search, read, update, or delete ad hoc context documents across embedding prefixes.",
		"params":  []string{"action (search|read|update|delete|help)", "scope", "query", "tags", "importance", "chain_id", "thought_id", "limit", "offset", "keys", "key", "content", "ttl_seconds"},
	},
	"ui_help": {
		"tool":    "ui_help",
		"summary": "Return the help document for a tool.",
		"params":  []string{"tool", "topic"},
	},
}

// HelpDocument returns the static help document for tool, or a listing of
// every known tool when tool is empty or unrecognized.
func HelpDocument(tool, topic string) map[string]interface{} {
	if doc, ok := helpDocs[tool]; ok {
		if topic != "" {
			out := map[string]interface{}{"topic": topic}
			for k, v := range doc {
				out[k] = v
			}
			return out
		}
		return doc
	}

	names := make([]string, 0, len(helpDocs))
	for name := range helpDocs {
		names = append(names, name)
	}
	return map[string]interface{}{"tools": names}
}
