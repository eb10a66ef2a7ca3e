// Package collaborator implements the external LLM collaborator boundary:
// a single HTTP client satisfying embedding.EmbedTransport,
// synthesis.ChatTransport, and session.Summarizer against an
// OpenAI/OpenRouter-compatible chat-completions and embeddings API.
package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/8agana/unified-intelligence/internal/synthesis"
)

// Config configures the HTTP collaborator client.
type Config struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	Timeout        time.Duration
}

// Client is the sole external-LLM collaborator used by the process.
type Client struct {
	http           *http.Client
	baseURL        string
	apiKey         string
	chatModel      string
	embeddingModel string
}

// New builds a Client, defaulting BaseURL/models to OpenRouter conventions
// when unset.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = "anthropic/claude-3.5-sonnet"
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = "google/gemini-embedding-001"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		http:           &http.Client{Timeout: timeout},
		baseURL:        baseURL,
		apiKey:         cfg.APIKey,
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
	}
}

func (c *Client) do(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collaborator API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed satisfies embedding.EmbedTransport.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embeddingResponse
	if err := c.do(ctx, "/embeddings", embeddingRequest{Input: []string{text}, Model: c.embeddingModel}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return resp.Data[0].Embedding, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) chat(ctx context.Context, system, user string) (text, modelUsed string, err error) {
	var resp chatResponse
	req := chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	if err := c.do(ctx, "/chat/completions", req, &resp); err != nil {
		return "", "", err
	}
	if len(resp.Choices) == 0 {
		return "", "", fmt.Errorf("no chat completion returned")
	}
	model := resp.Model
	if model == "" {
		model = c.chatModel
	}
	return resp.Choices[0].Message.Content, model, nil
}

// Synthesize satisfies synthesis.ChatTransport.
func (c *Client) Synthesize(ctx context.Context, intent synthesis.Intent, context []string) (text, modelUsed string, err error) {
	system := "You are the memory-recall synthesis voice for an agent's reasoning chain. " +
		"Answer the user's query using only the retrieved context provided below."
	var user strings.Builder
	user.WriteString("Query: " + intent.OriginalQuery + "\n")
	if intent.TemporalFilter != "" {
		user.WriteString("Temporal filter: " + intent.TemporalFilter + "\n")
	}
	if intent.SynthesisStyle != "" {
		user.WriteString("Style: " + intent.SynthesisStyle + "\n")
	}
	user.WriteString("Retrieved context:\n")
	for i, item := range context {
		user.WriteString(fmt.Sprintf("[%d] %s\n", i+1, item))
	}
	return c.chat(ctx, system, user.String())
}

// Summarize satisfies session.Summarizer.
func (c *Client) Summarize(ctx context.Context, sections []string, thoughts []string, targetTokens int) (summary, modelUsed string, err error) {
	system := fmt.Sprintf("Summarize the reasoning chain below into exactly these sections, in order: %s. "+
		"Target approximately %d tokens.", strings.Join(sections, ", "), targetTokens)
	var user strings.Builder
	for i, t := range thoughts {
		user.WriteString(fmt.Sprintf("[%d] %s\n", i+1, t))
	}
	if user.Len() == 0 {
		user.WriteString("(no prior thoughts; produce an empty-session summary)")
	}
	return c.chat(ctx, system, user.String())
}
