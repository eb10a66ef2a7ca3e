package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHelpDocumentKnownTool(t *testing.T) {
	doc := HelpDocument("ui_think", "")
	assert.Equal(t, "ui_think", doc["tool"])
	assert.NotEmpty(t, doc["summary"])
}

func TestHelpDocumentWithTopicMergesTopicKey(t *testing.T) {
	doc := HelpDocument("ui_recall", "chain")
	assert.Equal(t, "chain", doc["topic"])
	assert.Equal(t, "ui_recall", doc["tool"])
}

func TestHelpDocumentUnknownToolListsAll(t *testing.T) {
	doc := HelpDocument("not_a_tool", "")
	names, ok := doc["tools"].([]string)
	if assert.True(t, ok) {
		assert.Contains(t, names, "ui_think")
		assert.Contains(t, names, "ui_memory")
	}
}

func TestHelpDocumentEmptyToolListsAll(t *testing.T) {
	doc := HelpDocument("", "")
	_, ok := doc["tools"]
	assert.True(t, ok)
}
