package collaborator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8agana/unified-intelligence/internal/synthesis"
)

func TestEmbedSendsModelAndReturnsVector(t *testing.T) {
	var gotPath string
	var gotAuth string
	var gotBody embeddingRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		resp := embeddingResponse{Data: []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{{Embedding: []float32{0.1, 0.2, 0.3}, Index: 0}}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "test-key", EmbeddingModel: "test-embed-model"})
	vec, err := c.Embed(context.Background(), "hello world")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "/embeddings", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "test-embed-model", gotBody.Model)
	assert.Equal(t, []string{"hello world"}, gotBody.Input)
}

func TestEmbedErrorsOnEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embeddingResponse{})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k"})
	_, err := c.Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestEmbedPropagatesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k"})
	_, err := c.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestSynthesizeIncludesQueryAndContextItems(t *testing.T) {
	var gotReq chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		resp := chatResponse{
			Model: "used-model",
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: "synthesized answer"}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k", ChatModel: "chat-model"})
	intent := synthesis.Intent{OriginalQuery: "what did we decide?", TemporalFilter: "last week", SynthesisStyle: "concise"}
	text, model, err := c.Synthesize(context.Background(), intent, []string{"fact one", "fact two"})

	require.NoError(t, err)
	assert.Equal(t, "synthesized answer", text)
	assert.Equal(t, "used-model", model)
	require.Len(t, gotReq.Messages, 2)
	assert.Contains(t, gotReq.Messages[1].Content, "what did we decide?")
	assert.Contains(t, gotReq.Messages[1].Content, "fact one")
	assert.Contains(t, gotReq.Messages[1].Content, "fact two")
	assert.Contains(t, gotReq.Messages[1].Content, "last week")
}

func TestSynthesizeErrorsOnEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k"})
	_, _, err := c.Synthesize(context.Background(), synthesis.Intent{OriginalQuery: "q"}, nil)
	assert.Error(t, err)
}

func TestSummarizeNamesSectionsAndTargetTokens(t *testing.T) {
	var gotReq chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		resp := chatResponse{Choices: []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Content: "the summary"}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k", ChatModel: "chat-model"})
	summary, model, err := c.Summarize(context.Background(), []string{"Decisions", "Open Questions"}, []string{"thought one"}, 500)

	require.NoError(t, err)
	assert.Equal(t, "the summary", summary)
	assert.Equal(t, "chat-model", model)
	assert.Contains(t, gotReq.Messages[0].Content, "Decisions")
	assert.Contains(t, gotReq.Messages[0].Content, "Open Questions")
	assert.Contains(t, gotReq.Messages[0].Content, "500")
	assert.Contains(t, gotReq.Messages[1].Content, "thought one")
}

func TestSummarizeWithNoPriorThoughtsUsesPlaceholder(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		resp := chatResponse{Choices: []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Content: "empty session"}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k"})
	_, _, err := c.Summarize(context.Background(), []string{"Overview"}, nil, 100)

	require.NoError(t, err)
	assert.NotEmpty(t, gotReq.Messages[1].Content)
}

func TestNewAppliesDefaults(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, "https://openrouter.ai/api/v1", c.baseURL)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", c.chatModel)
	assert.Equal(t, "google/gemini-embedding-001", c.embeddingModel)
}
