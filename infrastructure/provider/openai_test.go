package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cavepedia/cavepedia/domain/search"
)

type embeddingCall struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
	InputType  string   `json:"input_type"`
}

// fakeEmbeddingServer mimics the embeddings endpoint, returning vectors of
// the given dimension and recording the last request body.
func fakeEmbeddingServer(t *testing.T, dims int, counter *atomic.Int64, last *embeddingCall) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.Add(1)

		var body embeddingCall
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if last != nil {
			*last = body
		}

		vector := make([]float32, dims)
		for i := range vector {
			vector[i] = 0.5
		}
		resp := map[string]any{
			"object": "list",
			"data": []map[string]any{{
				"object":    "embedding",
				"index":     0,
				"embedding": vector,
			}},
			"model": body.Model,
			"usage": map[string]int{"prompt_tokens": 4, "total_tokens": 4},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func noSleep(context.Context, time.Duration) error { return nil }

func testEmbedder(baseURL string, dims int) *OpenAIEmbedder {
	return NewOpenAIEmbedder(EmbeddingConfig{
		APIKey:     "test-key",
		BaseURL:    baseURL,
		Model:      "test-model",
		Dimensions: dims,
	}, WithEmbeddingRetry(NewRetryPolicy(3,
		WithRetryable(isRetryableEmbedding),
		WithSleep(noSleep),
	)))
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	var counter atomic.Int64
	var last embeddingCall
	srv := fakeEmbeddingServer(t, 8, &counter, &last)
	defer srv.Close()

	vec, err := testEmbedder(srv.URL, 8).Embed(context.Background(), "bat survey", search.PurposeDocument)
	require.NoError(t, err)
	require.Len(t, vec, 8)
	assert.InDelta(t, 0.5, vec[0], 1e-6)
	assert.Equal(t, int64(1), counter.Load())

	assert.Equal(t, []string{"bat survey"}, last.Input)
	assert.Equal(t, "test-model", last.Model)
	assert.Equal(t, 8, last.Dimensions)
	assert.Equal(t, "search_document", last.InputType)
}

func TestOpenAIEmbedder_QueryPurpose(t *testing.T) {
	var counter atomic.Int64
	var last embeddingCall
	srv := fakeEmbeddingServer(t, 4, &counter, &last)
	defer srv.Close()

	_, err := testEmbedder(srv.URL, 4).Embed(context.Background(), "where is the cave", search.PurposeQuery)
	require.NoError(t, err)
	assert.Equal(t, "search_query", last.InputType)
}

func TestOpenAIEmbedder_DimensionMismatch(t *testing.T) {
	var counter atomic.Int64
	srv := fakeEmbeddingServer(t, 3, &counter, nil)
	defer srv.Close()

	_, err := testEmbedder(srv.URL, 1536).Embed(context.Background(), "text", search.PurposeDocument)
	require.ErrorIs(t, err, ErrInvalidEmbedding)
	assert.NotErrorIs(t, err, search.ErrEmbeddingUnavailable)
	assert.Equal(t, int64(1), counter.Load(), "wrong dimension is not retried")
}

func TestOpenAIEmbedder_RetriesBadGatewayThreeTimes(t *testing.T) {
	var counter atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		counter.Add(1)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testEmbedder(srv.URL, 4).Embed(context.Background(), "text", search.PurposeDocument)
	require.ErrorIs(t, err, search.ErrEmbeddingUnavailable)
	assert.Equal(t, int64(3), counter.Load(), "exactly three attempts")

	provErr, ok := asProviderError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, provErr.StatusCode())
}

func TestOpenAIEmbedder_RecoversAfterTransientError(t *testing.T) {
	var counter atomic.Int64
	ok := fakeEmbeddingServer(t, 4, &atomic.Int64{}, nil)
	defer ok.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if counter.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"try later","type":"server_error"}}`))
			return
		}
		ok.Config.Handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	vec, err := testEmbedder(srv.URL, 4).Embed(context.Background(), "text", search.PurposeDocument)
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, int64(2), counter.Load())
}

func TestOpenAIEmbedder_ClientErrorNotRetried(t *testing.T) {
	var counter atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		counter.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := testEmbedder(srv.URL, 4).Embed(context.Background(), "text", search.PurposeDocument)
	require.ErrorIs(t, err, search.ErrEmbeddingUnavailable)
	assert.NotErrorIs(t, err, search.ErrEmbeddingRejected, "a bad key fails every input")
	assert.Equal(t, int64(1), counter.Load())
}

func TestOpenAIEmbedder_BadRequestRejected(t *testing.T) {
	var counter atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		counter.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"input is too long","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := testEmbedder(srv.URL, 4).Embed(context.Background(), "text", search.PurposeDocument)
	require.ErrorIs(t, err, search.ErrEmbeddingRejected)
	assert.NotErrorIs(t, err, search.ErrEmbeddingUnavailable)
	assert.Equal(t, int64(1), counter.Load())

	provErr, ok := asProviderError(err)
	require.True(t, ok)
	assert.True(t, provErr.Rejected())
	assert.False(t, provErr.Transient())
}

func TestOpenAIEmbedder_EmptyDataRetried(t *testing.T) {
	var counter atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		counter.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[],"model":"m","usage":{"prompt_tokens":0,"total_tokens":0}}`))
	}))
	defer srv.Close()

	_, err := testEmbedder(srv.URL, 4).Embed(context.Background(), "text", search.PurposeDocument)
	require.ErrorIs(t, err, search.ErrEmbeddingUnavailable)
	require.ErrorIs(t, err, errEmbeddingCountMismatch)
	assert.Equal(t, int64(3), counter.Load())
}

func TestNewOpenAIEmbedder_Defaults(t *testing.T) {
	e := NewOpenAIEmbedder(EmbeddingConfig{APIKey: "k"})
	assert.Equal(t, DefaultEmbeddingModel, e.model)
	assert.Equal(t, DefaultEmbeddingDimensions, e.Dimensions())
	assert.Equal(t, DefaultEmbeddingAttempts, e.retry.MaxAttempts())
	assert.Equal(t, time.Second, e.retry.Backoff(0))
	assert.Equal(t, 30*time.Second, e.retry.Backoff(1))
}
