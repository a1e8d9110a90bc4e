// Package search defines role-scoped semantic retrieval over extracted units.
package search

import (
	"context"
	"errors"

	"github.com/cavepedia/cavepedia/domain/document"
)

var (
	// ErrEmbeddingUnavailable indicates the embedding provider failed or
	// exhausted its retries.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrEmbeddingRejected indicates the provider refused one input, for
	// example because it is too long. Other inputs may still embed.
	ErrEmbeddingRejected = errors.New("embedding rejected")

	// ErrRerankUnavailable indicates the rerank provider failed.
	ErrRerankUnavailable = errors.New("rerank unavailable")

	// ErrNotFound indicates no readable unit has the requested key.
	ErrNotFound = errors.New("document not found")
)

// Purpose tells the embedding model which side of an asymmetric search a
// text is on.
type Purpose string

// Purpose values.
const (
	PurposeQuery    Purpose = "query"
	PurposeDocument Purpose = "document"
)

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string, purpose Purpose) ([]float64, error)
}

// RerankResult scores one input document against a query.
type RerankResult struct {
	Index int
	Score float64
}

// Reranker orders documents by relevance to a query and returns at most topN.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error)
}

// Candidate is a unit returned by nearest-neighbour search.
type Candidate struct {
	Unit     document.Unit
	Distance float64
}

// NearestQuery selects candidates for a query vector.
type NearestQuery struct {
	Vector []float64
	Roles  []string
	// MinContentLength excludes units with this many characters or fewer.
	// Zero disables the filter.
	MinContentLength int
	Limit            int
}

// Index reads embedded units for retrieval. Implementations never write.
type Index interface {
	// Nearest returns embedded units readable by the query roles, nearest first.
	Nearest(ctx context.Context, query NearestQuery) ([]Candidate, error)
	// Page returns the unit with key if one of roles may read it and its
	// text has been extracted.
	Page(ctx context.Context, key string, roles []string) (document.Unit, error)
}
