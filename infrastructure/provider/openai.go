package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cavepedia/cavepedia/domain/search"
)

// Embedding defaults.
const (
	DefaultEmbeddingModel      = "embed-v4.0"
	DefaultEmbeddingDimensions = 1536
	DefaultEmbeddingAttempts   = 3
	DefaultEmbeddingDelay      = time.Second
	DefaultEmbeddingBackoff    = 30.0
)

// errEmbeddingCountMismatch indicates the API returned no vector for the
// input. This is retryable because routing providers can answer 200 with an
// empty body under load.
var errEmbeddingCountMismatch = errors.New("embedding response count mismatch")

// ErrInvalidEmbedding indicates the provider answered with a vector of the
// wrong dimension. Retrying will not change the model's output.
var ErrInvalidEmbedding = errors.New("invalid embedding")

// EmbeddingConfig holds configuration for the embedding client.
type EmbeddingConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	Dimensions    int
	Timeout       time.Duration
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// OpenAIEmbedder embeds text through any OpenAI-compatible /embeddings endpoint.
// The purpose is sent as input_type so asymmetric models such as Cohere's
// embed-v4.0 place queries and documents correctly.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	retry      RetryPolicy
}

// EmbedderOption customizes an OpenAIEmbedder.
type EmbedderOption func(*OpenAIEmbedder)

// WithEmbeddingRetry replaces the retry policy built from the config.
func WithEmbeddingRetry(policy RetryPolicy) EmbedderOption {
	return func(e *OpenAIEmbedder) { e.retry = policy }
}

// NewOpenAIEmbedder creates an embedder from configuration.
func NewOpenAIEmbedder(cfg EmbeddingConfig, opts ...EmbedderOption) *OpenAIEmbedder {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = DefaultEmbeddingAttempts
	}
	delay := cfg.InitialDelay
	if delay == 0 {
		delay = DefaultEmbeddingDelay
	}
	factor := cfg.BackoffFactor
	if factor == 0 {
		factor = DefaultEmbeddingBackoff
	}

	e := &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(config),
		model:      model,
		dimensions: dimensions,
		retry: NewRetryPolicy(attempts,
			WithBackoff(ExponentialBackoff(delay, factor)),
			WithRetryable(isRetryableEmbedding),
		),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimensions returns the vector length every embedding must have.
func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

// Embed returns the embedding of text for the given purpose.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string, purpose search.Purpose) ([]float64, error) {
	req := openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(e.model),
		Input:      []string{text},
		Dimensions: e.dimensions,
		ExtraBody:  map[string]any{"input_type": inputType(purpose)},
	}

	var resp openai.EmbeddingResponse
	err := e.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Data) != 1 {
			return fmt.Errorf("%w: got %d vectors for 1 text", errEmbeddingCountMismatch, len(resp.Data))
		}
		return nil
	})
	if err != nil {
		provErr := wrapOpenAIError("embedding", err)
		if provErr.Rejected() && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %w", search.ErrEmbeddingRejected, provErr)
		}
		return nil, fmt.Errorf("%w: %w", search.ErrEmbeddingUnavailable, provErr)
	}

	raw := resp.Data[0].Embedding
	if len(raw) != e.dimensions {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrInvalidEmbedding, len(raw), e.dimensions)
	}

	vector := make([]float64, len(raw))
	for i, v := range raw {
		vector[i] = float64(v)
	}
	return vector, nil
}

func inputType(purpose search.Purpose) string {
	if purpose == search.PurposeQuery {
		return "search_query"
	}
	return "search_document"
}

// isRetryableEmbedding retries gateway and server errors, rate limits,
// timeouts and empty responses.
func isRetryableEmbedding(err error) bool {
	if errors.Is(err, errEmbeddingCountMismatch) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}

	// go-openai reports non-JSON error bodies (a proxy's 502 page) and
	// transport failures as RequestError.
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 0 || retryableStatus(reqErr.HTTPStatusCode)
	}

	return false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// wrapOpenAIError converts go-openai errors into a ProviderError.
func wrapOpenAIError(operation string, err error) *ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewProviderError(operation, apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError(operation, reqErr.HTTPStatusCode, "request failed", err)
	}

	return NewProviderError(operation, 0, "unexpected error", err)
}

var _ search.Embedder = (*OpenAIEmbedder)(nil)
