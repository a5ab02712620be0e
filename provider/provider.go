package provider

import (
	"context"
	"errors"
	"time"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI Client = "openai"
	Ollama Client = "ollama"
	Auto   Client = "auto"
)

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Delta is one chunk of a streamed completion. A Delta with a non-nil Err
// terminates the stream; the channel is closed afterwards.
type Delta struct {
	Content string
	Err     error
}

// Provider is the interface that all generative backends must satisfy.
// Implementations must be safe for concurrent use.
type Provider interface {
	// CreateEmbedding converts texts into dense vectors, one per input.
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)

	// StreamChat starts a streaming completion. Chunks arrive in order on
	// the returned channel, which is closed when the stream ends or ctx is
	// cancelled.
	StreamChat(ctx context.Context, messages []Message) (<-chan Delta, error)

	// Moderate classifies text against the backend's content policy.
	// Backends without a moderation endpoint return (false, nil, nil).
	Moderate(ctx context.Context, text string) (bool, []string, error)

	// Ping checks whether the backend is reachable.
	Ping(ctx context.Context) error

	// Name returns a short label used in health responses.
	Name() string
}

// Config carries the provider settings needed by the constructors, mirrored
// from the application config so this package stays import-light.
type Config struct {
	Selector string // openai, ollama or auto

	OpenAIKey             string
	OpenAICompletionModel string
	OpenAIEmbeddingModel  string
	OpenAITemperature     float64
	OpenAIMaxTokens       int
	OpenAITimeout         time.Duration

	OllamaBaseURL         string
	OllamaCompletionModel string
	OllamaEmbeddingModel  string
	OllamaTemperature     float64
	OllamaMaxTokens       int
	OllamaTimeout         time.Duration
}

// ErrNoProvider indicates no generative backend could be constructed.
var ErrNoProvider = errors.New("no generative backend available")

// New selects and constructs a Provider. "auto" prefers a reachable Ollama
// instance and falls back to OpenAI when an API key is present.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch Client(cfg.Selector) {
	case OpenAI:
		if cfg.OpenAIKey == "" {
			return nil, errors.New("openai api key not configured")
		}
		return newOpenAIClient(cfg), nil
	case Ollama:
		return newOllamaClient(cfg), nil
	case Auto, Client(""):
		ol := newOllamaClient(cfg)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := ol.Ping(pingCtx); err == nil {
			return ol, nil
		}
		if cfg.OpenAIKey != "" {
			return newOpenAIClient(cfg), nil
		}
		return nil, ErrNoProvider
	default:
		return nil, errors.New("unsupported LLM provider: " + cfg.Selector)
	}
}
