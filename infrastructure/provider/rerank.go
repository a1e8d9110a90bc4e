package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cavepedia/cavepedia/domain/search"
)

// Rerank defaults.
const (
	DefaultRerankModel   = "rerank-v3.5"
	DefaultRerankBaseURL = "https://api.cohere.com"
)

// RerankConfig holds configuration for the rerank client.
type RerankConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// CohereReranker scores documents against a query through a Cohere-style
// /v2/rerank endpoint. Failures are not retried.
type CohereReranker struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewCohereReranker creates a reranker from configuration.
func NewCohereReranker(cfg RerankConfig) *CohereReranker {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultRerankBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultRerankModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &CohereReranker{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

type cohereError struct {
	Message string `json:"message"`
}

// Rerank returns at most topN results, most relevant first. When topN exceeds
// the number of documents every document is returned.
func (r *CohereReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]search.RerankResult, error) {
	if len(documents) == 0 {
		return []search.RerankResult{}, nil
	}
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}

	body, err := json.Marshal(rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", search.ErrRerankUnavailable, NewProviderError("rerank", 0, "failed to marshal request", err))
	}

	resp, err := r.doRequest(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", search.ErrRerankUnavailable, err)
	}

	results := make([]search.RerankResult, 0, len(resp.Results))
	for _, res := range resp.Results {
		if res.Index < 0 || res.Index >= len(documents) {
			return nil, fmt.Errorf("%w: result index %d out of range", search.ErrRerankUnavailable, res.Index)
		}
		results = append(results, search.RerankResult{Index: res.Index, Score: res.RelevanceScore})
	}
	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

func (r *CohereReranker) doRequest(ctx context.Context, body []byte) (rerankResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v2/rerank", bytes.NewReader(body))
	if err != nil {
		return rerankResponse{}, NewProviderError("rerank", 0, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return rerankResponse{}, NewProviderError("rerank", 0, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return rerankResponse{}, NewProviderError("rerank", resp.StatusCode, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr cohereError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			return rerankResponse{}, NewProviderError("rerank", resp.StatusCode, apiErr.Message, nil)
		}
		return rerankResponse{}, NewProviderError("rerank", resp.StatusCode, string(respBody), nil)
	}

	var out rerankResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return rerankResponse{}, NewProviderError("rerank", resp.StatusCode, "failed to unmarshal response", err)
	}
	return out, nil
}

var _ search.Reranker = (*CohereReranker)(nil)
