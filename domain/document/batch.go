package document

import "strings"

// Platform and type tags recorded on batches.
const (
	PlatformClaude = "claude"
	BatchTypeOCR   = "ocr"
)

// Batch tracks one asynchronous OCR submission until its results are applied.
type Batch struct {
	id       int64
	platform string
	batchID  string
	kind     string
	done     bool
}

// NewBatch creates an open batch for a provider-assigned id.
func NewBatch(platform, batchID, kind string) Batch {
	return Batch{platform: platform, batchID: batchID, kind: kind}
}

// ReconstructBatch recreates a Batch from persistence.
func ReconstructBatch(id int64, platform, batchID, kind string, done bool) Batch {
	return Batch{id: id, platform: platform, batchID: batchID, kind: kind, done: done}
}

// ID returns the surrogate id.
func (b Batch) ID() int64 { return b.id }

// Platform returns the provider tag.
func (b Batch) Platform() string { return b.platform }

// BatchID returns the provider-assigned id.
func (b Batch) BatchID() string { return b.batchID }

// Type returns the batch type tag.
func (b Batch) Type() string { return b.kind }

// Done reports whether the results were applied.
func (b Batch) Done() bool { return b.done }

// Extraction is the content to write into one claimed unit: the extracted
// text, or ContentFailed.
type Extraction struct {
	unitID  int64
	content string
}

// NewExtraction creates a successful extraction. Blank text is recorded as
// a failure.
func NewExtraction(unitID int64, text string) Extraction {
	if strings.TrimSpace(text) == "" {
		return FailedExtraction(unitID)
	}
	return Extraction{unitID: unitID, content: text}
}

// FailedExtraction creates an extraction that marks the unit as failed.
func FailedExtraction(unitID int64) Extraction {
	return Extraction{unitID: unitID, content: ContentFailed}
}

// UnitID returns the target unit id.
func (e Extraction) UnitID() int64 { return e.unitID }

// Content returns the value to store.
func (e Extraction) Content() string { return e.content }

// Failed reports whether the extraction records a failure.
func (e Extraction) Failed() bool { return e.content == ContentFailed }
