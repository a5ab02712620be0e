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

// ollamaClient implements Provider against a local Ollama instance.
// Ollama streams chat responses as newline-delimited JSON and has no
// moderation endpoint.
type ollamaClient struct {
	baseURL         string
	completionModel string
	embeddingModel  string
	temperature     float64
	maxTokens       int
	httpClient      *http.Client
	streamClient    *http.Client
}

func newOllamaClient(cfg Config) *ollamaClient {
	timeout := cfg.OllamaTimeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	base := strings.TrimRight(cfg.OllamaBaseURL, "/")
	if base == "" {
		base = "http://localhost:11434"
	}
	return &ollamaClient{
		baseURL:         base,
		completionModel: cfg.OllamaCompletionModel,
		embeddingModel:  cfg.OllamaEmbeddingModel,
		temperature:     cfg.OllamaTemperature,
		maxTokens:       cfg.OllamaMaxTokens,
		httpClient:      &http.Client{Timeout: timeout},
		streamClient:    &http.Client{},
	}
}

func (c *ollamaClient) Name() string { return "ollama" }

func (c *ollamaClient) post(ctx context.Context, client *http.Client, path string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("ollama returned status: %d", resp.StatusCode)
	}
	return resp, nil
}

// CreateEmbedding embeds texts one at a time; the Ollama embeddings API
// takes a single prompt per call.
func (c *ollamaClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs := make([][]float32, 0, len(texts))
	for _, text := range texts {
		resp, err := c.post(ctx, c.httpClient, "/api/embeddings", map[string]interface{}{
			"model":  c.embeddingModel,
			"prompt": text,
		})
		if err != nil {
			return nil, err
		}
		var embResp struct {
			Embedding []float32 `json:"embedding"`
		}
		err = json.NewDecoder(resp.Body).Decode(&embResp)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		vecs = append(vecs, embResp.Embedding)
	}
	return vecs, nil
}

// StreamChat relays Ollama's newline-delimited JSON chunks as deltas.
func (c *ollamaClient) StreamChat(ctx context.Context, messages []Message) (<-chan Delta, error) {
	resp, err := c.post(ctx, c.streamClient, "/api/chat", map[string]interface{}{
		"model":    c.completionModel,
		"messages": messages,
		"stream":   true,
		"options": map[string]interface{}{
			"temperature": c.temperature,
			"num_predict": c.maxTokens,
		},
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
			var chunk struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
				Done  bool   `json:"done"`
				Error string `json:"error"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
				continue
			}
			if chunk.Error != "" {
				select {
				case out <- Delta{Err: fmt.Errorf("ollama: %s", chunk.Error)}:
				case <-ctx.Done():
				}
				return
			}
			if chunk.Message.Content != "" {
				select {
				case out <- Delta{Content: chunk.Message.Content}:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
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

// Moderate is not supported by Ollama; the heuristic gate still applies.
func (c *ollamaClient) Moderate(ctx context.Context, text string) (bool, []string, error) {
	return false, nil, nil
}

// Ping checks the local instance is up.
func (c *ollamaClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status: %d", resp.StatusCode)
	}
	return nil
}
