package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cavepedia/cavepedia/domain/document"
)

type fakeSigner struct {
	err error
}

func (f fakeSigner) SignedURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://storage.test/" + bucket + "/" + key + "?sig=1", nil
}

func testOCR(baseURL string, signer document.URLSigner) *AnthropicOCR {
	return NewAnthropicOCR(AnthropicConfig{APIKey: "key", BaseURL: baseURL}, signer,
		WithOCRRetry(NewRetryPolicy(5, WithRetryable(isOverloaded), WithSleep(noSleep))))
}

func TestAnthropicOCR_ExtractText(t *testing.T) {
	var got messageParams
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"id":"msg_1","content":[{"type":"text","text":"Page one text"}]}`))
	}))
	defer srv.Close()

	text, err := testOCR(srv.URL, fakeSigner{}).ExtractText(context.Background(), "pages", "nss/a.pdf/page-1.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Page one text", text)

	assert.Equal(t, DefaultOCRModel, got.Model)
	assert.Equal(t, DefaultOCRMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	blocks := got.Messages[0].Content
	require.Len(t, blocks, 2)
	assert.Equal(t, "document", blocks[0].Type)
	assert.Equal(t, "https://storage.test/pages/nss/a.pdf/page-1.pdf?sig=1", blocks[0].Source.URL)
	assert.Equal(t, OCRInstruction, blocks[1].Text)
}

func TestAnthropicOCR_RetriesOverloaded(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(statusOverloaded)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer srv.Close()

	text, err := testOCR(srv.URL, fakeSigner{}).ExtractText(context.Background(), "b", "k")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int64(3), calls.Load())
}

func TestAnthropicOCR_OverloadedExhausted(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(statusOverloaded)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer srv.Close()

	_, err := testOCR(srv.URL, fakeSigner{}).ExtractText(context.Background(), "b", "k")
	require.ErrorIs(t, err, document.ErrOCRUnavailable)
	assert.Equal(t, int64(5), calls.Load())
}

func TestAnthropicOCR_BadRequestNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad pdf"}}`))
	}))
	defer srv.Close()

	_, err := testOCR(srv.URL, fakeSigner{}).ExtractText(context.Background(), "b", "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, document.ErrOCRUnavailable)
	assert.Equal(t, int64(1), calls.Load())

	provErr, ok := asProviderError(err)
	require.True(t, ok)
	assert.Equal(t, "invalid_request_error", provErr.Type())
	assert.Equal(t, "bad pdf", provErr.Message())
}

func TestAnthropicOCR_NoTextBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	_, err := testOCR(srv.URL, fakeSigner{}).ExtractText(context.Background(), "b", "k")
	require.ErrorIs(t, err, document.ErrExtractionFailed)
}

func TestAnthropicOCR_SignerFailure(t *testing.T) {
	signErr := errors.New("no credentials")
	_, err := testOCR("http://127.0.0.1:0", fakeSigner{err: signErr}).ExtractText(context.Background(), "b", "k")
	require.ErrorIs(t, err, signErr)
}

func TestAnthropicOCR_SubmitBatch(t *testing.T) {
	var got struct {
		Requests []batchRequest `json:"requests"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages/batches", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"msgbatch_01","processing_status":"in_progress"}`))
	}))
	defer srv.Close()

	id, err := testOCR(srv.URL, fakeSigner{}).SubmitBatch(context.Background(), []document.OCRRequest{
		document.NewOCRRequest("doc-1", "https://u/1"),
		document.NewOCRRequest("doc-2", "https://u/2"),
	})
	require.NoError(t, err)
	assert.Equal(t, "msgbatch_01", id)

	require.Len(t, got.Requests, 2)
	assert.Equal(t, "doc-2", got.Requests[1].CustomID)
	assert.Equal(t, "https://u/2", got.Requests[1].Params.Messages[0].Content[0].Source.URL)
}

func TestAnthropicOCR_SubmitBatchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testOCR(srv.URL, fakeSigner{}).SubmitBatch(context.Background(), []document.OCRRequest{
		document.NewOCRRequest("doc-1", "https://u/1"),
	})
	require.ErrorIs(t, err, document.ErrOCRUnavailable)
}

func TestAnthropicOCR_PollBatch(t *testing.T) {
	status := "in_progress"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages/batches/msgbatch_01", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"msgbatch_01","processing_status":"` + status + `"}`))
	}))
	defer srv.Close()

	ocr := testOCR(srv.URL, fakeSigner{})

	got, err := ocr.PollBatch(context.Background(), "msgbatch_01")
	require.NoError(t, err)
	assert.Equal(t, document.BatchPending, got)

	status = "ended"
	got, err = ocr.PollBatch(context.Background(), "msgbatch_01")
	require.NoError(t, err)
	assert.Equal(t, document.BatchEnded, got)
}

func TestAnthropicOCR_FetchResults(t *testing.T) {
	lines := `{"custom_id":"doc-1","result":{"type":"succeeded","message":{"content":[{"type":"text","text":"first page"}]}}}
{"custom_id":"doc-2","result":{"type":"errored","error":{"type":"invalid_request_error","message":"unreadable"}}}

{"custom_id":"doc-3","result":{"type":"succeeded","message":{"content":[]}}}
{"custom_id":"doc-4","result":{"type":"expired"}}
`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages/batches/msgbatch_01/results", r.URL.Path)
		w.Header().Set("Content-Type", "application/x-jsonl")
		_, _ = w.Write([]byte(lines))
	}))
	defer srv.Close()

	results, err := testOCR(srv.URL, fakeSigner{}).FetchResults(context.Background(), "msgbatch_01")
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "doc-1", results[0].CorrelationID())
	assert.Equal(t, "first page", results[0].Text())
	require.NoError(t, results[0].Err())

	for _, r := range results[1:] {
		assert.ErrorIs(t, r.Err(), document.ErrExtractionFailed, r.CorrelationID())
	}
	assert.Contains(t, results[1].Err().Error(), "unreadable")
}
