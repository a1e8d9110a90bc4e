package document

import (
	"context"
	"time"
)

// ObjectStore reads and writes blobs by bucket and key.
type ObjectStore interface {
	URLSigner
	Put(ctx context.Context, bucket, key string, data []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
	Delete(ctx context.Context, bucket, key string) error
	// List returns every key in bucket except directory markers.
	List(ctx context.Context, bucket string) ([]string, error)
}

// URLSigner produces time-limited read URLs for external services.
type URLSigner interface {
	SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// Splitter breaks a PDF into single-page PDFs, in page order.
type Splitter interface {
	Split(ctx context.Context, pdf []byte) ([][]byte, error)
}

// TextExtractor runs OCR on one stored page and waits for the text.
type TextExtractor interface {
	ExtractText(ctx context.Context, bucket, key string) (string, error)
}

// BatchStatus is the provider-side state of an OCR batch.
type BatchStatus string

// BatchStatus values.
const (
	BatchPending BatchStatus = "pending"
	BatchEnded   BatchStatus = "ended"
)

// OCRRequest is one entry of a batch submission.
type OCRRequest struct {
	correlationID string
	documentURL   string
}

// NewOCRRequest pairs a correlation id with a readable document URL.
func NewOCRRequest(correlationID, documentURL string) OCRRequest {
	return OCRRequest{correlationID: correlationID, documentURL: documentURL}
}

// CorrelationID returns the caller-chosen request id.
func (r OCRRequest) CorrelationID() string { return r.correlationID }

// DocumentURL returns the signed URL of the page.
func (r OCRRequest) DocumentURL() string { return r.documentURL }

// OCRResult is one entry of a finished batch.
type OCRResult struct {
	correlationID string
	text          string
	err           error
}

// NewOCRResult creates a successful result.
func NewOCRResult(correlationID, text string) OCRResult {
	return OCRResult{correlationID: correlationID, text: text}
}

// NewFailedOCRResult creates a result for a request the provider could not serve.
func NewFailedOCRResult(correlationID string, err error) OCRResult {
	return OCRResult{correlationID: correlationID, err: err}
}

// CorrelationID returns the request id the result answers.
func (r OCRResult) CorrelationID() string { return r.correlationID }

// Text returns the extracted text.
func (r OCRResult) Text() string { return r.text }

// Err returns the per-request failure, if any.
func (r OCRResult) Err() error { return r.err }

// BatchOCR submits OCR work asynchronously and collects it later.
type BatchOCR interface {
	SubmitBatch(ctx context.Context, requests []OCRRequest) (string, error)
	PollBatch(ctx context.Context, batchID string) (BatchStatus, error)
	FetchResults(ctx context.Context, batchID string) ([]OCRResult, error)
}
