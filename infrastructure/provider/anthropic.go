package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cavepedia/cavepedia/domain/document"
)

// OCR defaults.
const (
	DefaultOCRBaseURL   = "https://api.anthropic.com"
	DefaultOCRModel     = "claude-haiku-4-5"
	DefaultOCRMaxTokens = 4000
	DefaultOCRAttempts  = 5
	DefaultOCRDelay     = time.Second
	DefaultOCRBackoff   = 2.0
	DefaultURLTTL       = 24 * time.Hour

	// OCRInstruction accompanies every page sent for extraction.
	OCRInstruction = "Extract all text from this document. Do not include any summary or conclusions of your own."

	anthropicVersion = "2023-06-01"

	// statusOverloaded is Anthropic's non-standard "overloaded" status.
	statusOverloaded = 529
)

var errNoTextBlock = errors.New("response has no text block")

// AnthropicConfig holds configuration for the OCR client.
type AnthropicConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxTokens     int
	Timeout       time.Duration
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
	URLTTL        time.Duration
}

// AnthropicOCR extracts page text with a document-capable Claude model. It
// serves single pages synchronously and bulk backlogs through Message Batches.
type AnthropicOCR struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	urlTTL     time.Duration
	signer     document.URLSigner
	retry      RetryPolicy
	httpClient *http.Client
}

// AnthropicOption customizes an AnthropicOCR.
type AnthropicOption func(*AnthropicOCR)

// WithOCRRetry replaces the retry policy built from the config.
func WithOCRRetry(policy RetryPolicy) AnthropicOption {
	return func(p *AnthropicOCR) { p.retry = policy }
}

// NewAnthropicOCR creates an OCR client. The signer turns (bucket, key) into
// a URL the provider can fetch.
func NewAnthropicOCR(cfg AnthropicConfig, signer document.URLSigner, opts ...AnthropicOption) *AnthropicOCR {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOCRBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOCRModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultOCRMaxTokens
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = DefaultOCRAttempts
	}
	delay := cfg.InitialDelay
	if delay == 0 {
		delay = DefaultOCRDelay
	}
	factor := cfg.BackoffFactor
	if factor == 0 {
		factor = DefaultOCRBackoff
	}
	ttl := cfg.URLTTL
	if ttl == 0 {
		ttl = DefaultURLTTL
	}

	p := &AnthropicOCR{
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		model:     model,
		maxTokens: maxTokens,
		urlTTL:    ttl,
		signer:    signer,
		retry: NewRetryPolicy(attempts,
			WithBackoff(ExponentialBackoff(delay, factor)),
			WithRetryable(isOverloaded),
		),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type messageParams struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
	Messages    []ocrMessage `json:"messages"`
}

type ocrMessage struct {
	Role    string     `json:"role"`
	Content []ocrBlock `json:"content"`
}

type ocrBlock struct {
	Type   string     `json:"type"`
	Text   string     `json:"text,omitempty"`
	Source *ocrSource `json:"source,omitempty"`
}

type ocrSource struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type messageResponse struct {
	ID      string     `json:"id"`
	Content []ocrBlock `json:"content"`
}

type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type batchRequest struct {
	CustomID string        `json:"custom_id"`
	Params   messageParams `json:"params"`
}

type batchResponse struct {
	ID               string `json:"id"`
	ProcessingStatus string `json:"processing_status"`
	ResultsURL       string `json:"results_url"`
}

type batchResultLine struct {
	CustomID string `json:"custom_id"`
	Result   struct {
		Type    string          `json:"type"`
		Message messageResponse `json:"message"`
		Error   *struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"result"`
}

func (p *AnthropicOCR) params(documentURL string) messageParams {
	return messageParams{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		Temperature: 1,
		Messages: []ocrMessage{{
			Role: "user",
			Content: []ocrBlock{
				{Type: "document", Source: &ocrSource{Type: "url", URL: documentURL}},
				{Type: "text", Text: OCRInstruction},
			},
		}},
	}
}

// ExtractText runs OCR on one stored page. Overloaded responses are retried
// with backoff; once the budget is spent, or the provider cannot be reached,
// the error wraps document.ErrOCRUnavailable. Other provider errors are
// returned as they are.
func (p *AnthropicOCR) ExtractText(ctx context.Context, bucket, key string) (string, error) {
	signed, err := p.signer.SignedURL(ctx, bucket, key, p.urlTTL)
	if err != nil {
		return "", fmt.Errorf("sign %s/%s: %w", bucket, key, err)
	}

	var resp messageResponse
	err = p.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = p.createMessage(ctx, p.params(signed))
		return err
	})
	if err != nil {
		if provErr, ok := asProviderError(err); ok && provErr.Transient() {
			return "", fmt.Errorf("%w: %w", document.ErrOCRUnavailable, err)
		}
		return "", err
	}

	text, err := firstText(resp.Content)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", document.ErrExtractionFailed, key, err)
	}
	return text, nil
}

// SubmitBatch sends one extraction request per page and returns the
// provider's batch id.
func (p *AnthropicOCR) SubmitBatch(ctx context.Context, requests []document.OCRRequest) (string, error) {
	entries := make([]batchRequest, len(requests))
	for i, r := range requests {
		entries[i] = batchRequest{CustomID: r.CorrelationID(), Params: p.params(r.DocumentURL())}
	}

	body, err := json.Marshal(map[string]any{"requests": entries})
	if err != nil {
		return "", NewProviderError("submit_batch", 0, "failed to marshal request", err)
	}

	raw, err := p.do(ctx, "submit_batch", http.MethodPost, p.baseURL+"/v1/messages/batches", body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", document.ErrOCRUnavailable, err)
	}

	var batch batchResponse
	if err := json.Unmarshal(raw, &batch); err != nil {
		return "", NewProviderError("submit_batch", 0, "failed to unmarshal response", err)
	}
	if batch.ID == "" {
		return "", NewProviderError("submit_batch", 0, "response has no batch id", nil)
	}
	return batch.ID, nil
}

// PollBatch reports whether the batch has finished processing.
func (p *AnthropicOCR) PollBatch(ctx context.Context, batchID string) (document.BatchStatus, error) {
	batch, err := p.retrieveBatch(ctx, batchID)
	if err != nil {
		return "", err
	}
	if batch.ProcessingStatus == "ended" {
		return document.BatchEnded, nil
	}
	return document.BatchPending, nil
}

// FetchResults downloads the JSONL results of an ended batch. Entries that
// did not succeed, or that carry no text, come back as failed results.
func (p *AnthropicOCR) FetchResults(ctx context.Context, batchID string) ([]document.OCRResult, error) {
	resultsURL := p.baseURL + "/v1/messages/batches/" + url.PathEscape(batchID) + "/results"

	raw, err := p.do(ctx, "fetch_results", http.MethodGet, resultsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", document.ErrOCRUnavailable, err)
	}

	var results []document.OCRResult
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry batchResultLine
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, NewProviderError("fetch_results", 0, "failed to unmarshal result line", err)
		}
		results = append(results, toOCRResult(entry))
	}
	if err := scanner.Err(); err != nil {
		return nil, NewProviderError("fetch_results", 0, "failed to read results", err)
	}
	return results, nil
}

func toOCRResult(entry batchResultLine) document.OCRResult {
	if entry.Result.Type != "succeeded" {
		reason := entry.Result.Type
		if entry.Result.Error != nil && entry.Result.Error.Message != "" {
			reason += ": " + entry.Result.Error.Message
		}
		return document.NewFailedOCRResult(entry.CustomID, fmt.Errorf("%w: %s", document.ErrExtractionFailed, reason))
	}
	text, err := firstText(entry.Result.Message.Content)
	if err != nil {
		return document.NewFailedOCRResult(entry.CustomID, fmt.Errorf("%w: %w", document.ErrExtractionFailed, err))
	}
	return document.NewOCRResult(entry.CustomID, text)
}

func (p *AnthropicOCR) retrieveBatch(ctx context.Context, batchID string) (batchResponse, error) {
	raw, err := p.do(ctx, "poll_batch", http.MethodGet, p.baseURL+"/v1/messages/batches/"+url.PathEscape(batchID), nil)
	if err != nil {
		return batchResponse{}, fmt.Errorf("%w: %w", document.ErrOCRUnavailable, err)
	}
	var batch batchResponse
	if err := json.Unmarshal(raw, &batch); err != nil {
		return batchResponse{}, NewProviderError("poll_batch", 0, "failed to unmarshal response", err)
	}
	return batch, nil
}

func (p *AnthropicOCR) createMessage(ctx context.Context, params messageParams) (messageResponse, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return messageResponse{}, NewProviderError("extract_text", 0, "failed to marshal request", err)
	}

	raw, err := p.do(ctx, "extract_text", http.MethodPost, p.baseURL+"/v1/messages", body)
	if err != nil {
		return messageResponse{}, err
	}

	var resp messageResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return messageResponse{}, NewProviderError("extract_text", 0, "failed to unmarshal response", err)
	}
	return resp, nil
}

// do performs one HTTP request against the Anthropic API and returns the body
// of a 200 response.
func (p *AnthropicOCR) do(ctx context.Context, operation, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, NewProviderError(operation, 0, "failed to create request", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewProviderError(operation, 0, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewProviderError(operation, resp.StatusCode, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr anthropicErrorBody
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, NewProviderError(operation, resp.StatusCode, apiErr.Error.Message, nil).WithType(apiErr.Error.Type)
		}
		return nil, NewProviderError(operation, resp.StatusCode, string(respBody), nil)
	}

	return respBody, nil
}

func firstText(blocks []ocrBlock) (string, error) {
	for _, b := range blocks {
		if b.Type == "text" {
			return b.Text, nil
		}
	}
	return "", errNoTextBlock
}

// isOverloaded matches Anthropic's overloaded error class, the only OCR
// failure worth retrying.
func isOverloaded(err error) bool {
	provErr, ok := asProviderError(err)
	if !ok {
		return false
	}
	return provErr.StatusCode() == statusOverloaded || provErr.Type() == "overloaded_error"
}

var (
	_ document.TextExtractor = (*AnthropicOCR)(nil)
	_ document.BatchOCR      = (*AnthropicOCR)(nil)
)
