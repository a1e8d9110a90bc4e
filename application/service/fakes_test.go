package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cavepedia/cavepedia/domain/document"
	"github.com/cavepedia/cavepedia/domain/search"
	"github.com/cavepedia/cavepedia/infrastructure/persistence"
	"github.com/cavepedia/cavepedia/infrastructure/storage"
	"github.com/cavepedia/cavepedia/internal/config"
	"github.com/cavepedia/cavepedia/internal/testdb"
)

const testDimensions = 4

// fakeSplitter treats "|" as a page break. Input starting with "corrupt"
// cannot be parsed.
type fakeSplitter struct{}

func (fakeSplitter) Split(_ context.Context, data []byte) ([][]byte, error) {
	if bytes.HasPrefix(data, []byte("corrupt")) {
		return nil, errors.New("malformed pdf")
	}
	if len(data) == 0 {
		return nil, nil
	}
	return bytes.Split(data, []byte("|")), nil
}

type fakeBatchOCR struct {
	mu        sync.Mutex
	submitted [][]document.OCRRequest
	submitErr error
	status    document.BatchStatus
	pollErr   error
	results   func(requests []document.OCRRequest) []document.OCRResult
}

func (f *fakeBatchOCR) SubmitBatch(_ context.Context, requests []document.OCRRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, requests)
	return fmt.Sprintf("msgbatch_%d", len(f.submitted)), nil
}

func (f *fakeBatchOCR) PollBatch(_ context.Context, _ string) (document.BatchStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollErr != nil {
		return "", f.pollErr
	}
	if f.status == "" {
		return document.BatchEnded, nil
	}
	return f.status, nil
}

func (f *fakeBatchOCR) FetchResults(_ context.Context, batchID string) ([]document.OCRResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	if _, err := fmt.Sscanf(batchID, "msgbatch_%d", &n); err != nil || n < 1 || n > len(f.submitted) {
		return nil, fmt.Errorf("unknown batch %s", batchID)
	}
	requests := f.submitted[n-1]
	if f.results != nil {
		return f.results(requests), nil
	}
	out := make([]document.OCRResult, len(requests))
	for i, r := range requests {
		out[i] = document.NewOCRResult(r.CorrelationID(), "text of "+r.CorrelationID())
	}
	return out, nil
}

// fakeExtractor returns the page object's own bytes as its text.
type fakeExtractor struct {
	objects *storage.Memory
	fail    map[string]error
	calls   int
}

func (f *fakeExtractor) ExtractText(ctx context.Context, bucket, key string) (string, error) {
	f.calls++
	if err, ok := f.fail[key]; ok {
		return "", err
	}
	data, err := f.objects.Get(ctx, bucket, key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// fakeEmbedder maps text to a fixed-width vector derived from its length.
type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	purposes []search.Purpose
	width    int
	failOn   map[string]error
	vectors  map[string][]float64
}

func (f *fakeEmbedder) Embed(_ context.Context, text string, purpose search.Purpose) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.purposes = append(f.purposes, purpose)
	for marker, err := range f.failOn {
		if strings.Contains(text, marker) {
			return nil, err
		}
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	width := f.width
	if width == 0 {
		width = testDimensions
	}
	v := make([]float64, width)
	v[0] = float64(len(text))
	v[width-1] = 1
	return v, nil
}

type fakeReranker struct {
	calls  int
	topN   int
	docs   []string
	scores map[string]float64
	err    error
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, docs []string, topN int) ([]search.RerankResult, error) {
	f.calls++
	f.topN = topN
	f.docs = docs
	if f.err != nil {
		return nil, f.err
	}
	out := make([]search.RerankResult, len(docs))
	for i, d := range docs {
		out[i] = search.RerankResult{Index: i, Score: f.scores[d]}
	}
	// Highest first, like the provider.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Score > out[j-1].Score; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if topN < len(out) {
		out = out[:topN]
	}
	return out, nil
}

type pipelineFixture struct {
	pipeline  *Pipeline
	objects   *storage.Memory
	documents persistence.DocumentStore
	units     persistence.UnitStore
	batches   persistence.BatchStore
	ocr       *fakeBatchOCR
	extractor *fakeExtractor
	embedder  *fakeEmbedder
	storage   config.StorageConfig
}

func newPipelineFixture(t *testing.T, settings config.PipelineConfig) *pipelineFixture {
	t.Helper()
	db := testdb.New(t)
	objects := storage.NewMemory("http://objects.test")
	f := &pipelineFixture{
		objects:   objects,
		documents: persistence.NewDocumentStore(db),
		units:     persistence.NewUnitStore(db),
		batches:   persistence.NewBatchStore(db),
		ocr:       &fakeBatchOCR{},
		extractor: &fakeExtractor{objects: objects},
		embedder:  &fakeEmbedder{},
		storage:   config.NewStorageConfig().WithBuckets("import", "files", "pages"),
	}
	f.pipeline = NewPipeline(settings, f.storage, testDimensions, PipelineDeps{
		Objects:       objects,
		Splitter:      fakeSplitter{},
		Documents:     f.documents,
		Units:         f.units,
		Batches:       f.batches,
		BatchOCR:      f.ocr,
		TextExtractor: f.extractor,
		Embedder:      f.embedder,
	}, quietLogger())
	return f
}

func (f *pipelineFixture) upload(t *testing.T, key, body string) {
	t.Helper()
	require.NoError(t, f.objects.Put(context.Background(), "import", key, []byte(body)))
}
