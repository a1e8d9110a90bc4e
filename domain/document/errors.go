package document

import "errors"

var (
	// ErrStorage indicates an object store operation failed.
	ErrStorage = errors.New("object storage error")

	// ErrOCRUnavailable indicates the OCR provider could not be reached or
	// exhausted its retries.
	ErrOCRUnavailable = errors.New("ocr unavailable")

	// ErrExtractionFailed indicates OCR returned no usable text for a unit.
	ErrExtractionFailed = errors.New("extraction failed")
)
