package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	openaiChatURL       = "https://api.openai.com/v1/chat/completions"
	openaiEmbeddingsURL = "https://api.openai.com/v1/embeddings"
	openaiModerationURL = "https://api.openai.com/v1/moderations"
	openaiModelsURL     = "https://api.openai.com/v1/models"
)

// openaiClient implements Provider using OpenAI's HTTP API.
type openaiClient struct {
	apiKey          string
	completionModel string
	embeddingModel  string
	temperature     float64
	maxTokens       int
	httpClient      *http.Client
	// streamClient has no overall timeout; streamed completions can outlive
	// any fixed deadline and are bounded by the request context instead.
	streamClient *http.Client
}

func newOpenAIClient(cfg Config) *openaiClient {
	timeout := cfg.OpenAITimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &openaiClient{
		apiKey:          cfg.OpenAIKey,
		completionModel: cfg.OpenAICompletionModel,
		embeddingModel:  cfg.OpenAIEmbeddingModel,
		temperature:     cfg.OpenAITemperature,
		maxTokens:       cfg.OpenAIMaxTokens,
		httpClient:      &http.Client{Timeout: timeout},
		streamClient:    &http.Client{},
	}
}

func (c *openaiClient) Name() string { return "openai" }

func (c *openaiClient) post(ctx context.Context, client *http.Client, url string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("API returned status: %d", resp.StatusCode)
	}
	return resp, nil
}

// CreateEmbedding generates embeddings for the given texts.
func (c *openaiClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.post(ctx, c.httpClient, openaiEmbeddingsURL, map[string]interface{}{
		"model": c.embeddingModel,
		"input": texts,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var openaiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&openaiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	vecs := make([][]float32, len(openaiResp.Data))
	for _, d := range openaiResp.Data {
		if d.Index >= 0 && d.Index < len(vecs) {
			vecs[d.Index] = d.Embedding
		}
	}
	return vecs, nil
}

// StreamChat starts a streaming chat completion and relays content deltas.
func (c *openaiClient) StreamChat(ctx context.Context, messages []Message) (<-chan Delta, error) {
	resp, err := c.post(ctx, c.streamClient, openaiChatURL, map[string]interface{}{
		"model":       c.completionModel,
		"messages":    messages,
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
		"stream":      true,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan Delta)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				return
			}
			var chunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
					FinishReason *string `json:"finish_reason"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case out <- Delta{Content: chunk.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			select {
			case out <- Delta{Err: fmt.Errorf("stream read failed: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// Moderate runs the text through OpenAI's moderation endpoint and returns
// the flagged categories, if any.
func (c *openaiClient) Moderate(ctx context.Context, text string) (bool, []string, error) {
	resp, err := c.post(ctx, c.httpClient, openaiModerationURL, map[string]interface{}{
		"input": text,
	})
	if err != nil {
		return false, nil, err
	}
	defer resp.Body.Close()

	var modResp struct {
		Results []struct {
			Flagged    bool            `json:"flagged"`
			Categories map[string]bool `json:"categories"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&modResp); err != nil {
		return false, nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(modResp.Results) == 0 || !modResp.Results[0].Flagged {
		return false, nil, nil
	}
	var categories []string
	for cat, hit := range modResp.Results[0].Categories {
		if hit {
			categories = append(categories, cat)
		}
	}
	return true, categories, nil
}

// Ping verifies the API key against the models endpoint.
func (c *openaiClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", openaiModelsURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status: %d", resp.StatusCode)
	}
	return nil
}
