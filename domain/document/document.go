// Package document models the ingestion side of the corpus: uploaded files,
// the page units split out of them, and the OCR batches that fill them in.
package document

// Document is the ledger entry for one uploaded file. It is created when the
// file is imported and marked split exactly once, after its pages have been
// recorded as units.
type Document struct {
	id     int64
	bucket string
	key    string
	split  bool
}

// NewDocument creates a Document for a freshly imported file.
func NewDocument(bucket, key string) Document {
	return Document{bucket: bucket, key: key}
}

// ReconstructDocument recreates a Document from persistence.
func ReconstructDocument(id int64, bucket, key string, split bool) Document {
	return Document{id: id, bucket: bucket, key: key, split: split}
}

// ID returns the surrogate id (zero until persisted).
func (d Document) ID() int64 { return d.id }

// Bucket returns the bucket holding the permanent copy of the file.
func (d Document) Bucket() string { return d.bucket }

// Key returns the object key of the file.
func (d Document) Key() string { return d.key }

// Split reports whether the file's pages have been recorded.
func (d Document) Split() bool { return d.split }

// Role returns the access tag derived from the key.
func (d Document) Role() string { return RoleFromKey(d.key) }
