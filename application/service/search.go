// Package service provides application layer services that orchestrate domain operations.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/cavepedia/cavepedia/domain/document"
	"github.com/cavepedia/cavepedia/domain/search"
	"github.com/cavepedia/cavepedia/internal/config"
)

// Search answers role-scoped questions against the embedded corpus. It only
// reads, so any number of calls may run at once.
type Search struct {
	index    search.Index
	embedder search.Embedder
	reranker search.Reranker
	settings config.SearchConfig
	closed   *atomic.Bool
	logger   *slog.Logger
}

// NewSearch creates a new Search service.
func NewSearch(
	index search.Index,
	embedder search.Embedder,
	reranker search.Reranker,
	settings config.SearchConfig,
	closed *atomic.Bool,
	logger *slog.Logger,
) *Search {
	if logger == nil {
		logger = slog.Default()
	}
	return &Search{
		index:    index,
		embedder: embedder,
		reranker: reranker,
		settings: settings,
		closed:   closed,
		logger:   logger,
	}
}

// scored is a candidate carrying its rerank relevance.
type scored struct {
	unit  document.Unit
	score float64
}

// Search runs one retrieval. A caller without roles gets an empty response
// and no remote call is made. When a remote model fails, the returned
// response is still usable: it is empty and says so.
func (s *Search) Search(ctx context.Context, request search.Request) (search.Response, error) {
	if s.closed != nil && s.closed.Load() {
		return search.EmptyResponse(search.NoteUnavailable), ErrClientClosed
	}

	roles := cleanRoles(request.Roles())
	if len(roles) == 0 {
		s.logger.DebugContext(ctx, "search without roles")
		return search.EmptyResponse(search.NoteNoAccess), nil
	}

	topN := request.TopN()
	if topN <= 0 {
		topN = s.settings.TopN()
	}
	maxLen := request.MaxContentLength()
	if maxLen <= 0 {
		maxLen = s.settings.MaxContentLength()
	}

	vector, err := s.embedder.Embed(ctx, request.Query(), search.PurposeQuery)
	if err != nil {
		return search.EmptyResponse(search.NoteUnavailable), fmt.Errorf("embed query: %w", err)
	}

	candidates, err := s.index.Nearest(ctx, search.NearestQuery{
		Vector:           vector,
		Roles:            roles,
		MinContentLength: s.settings.MinContentLength(),
		Limit:            topN * s.settings.CandidateMultiplier(),
	})
	if err != nil {
		return search.EmptyResponse(search.NoteUnavailable), fmt.Errorf("nearest units: %w", err)
	}
	if len(candidates) == 0 {
		return search.EmptyResponse(search.NoteNoMatches), nil
	}

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Unit.Text()
	}

	reranked, err := s.reranker.Rerank(ctx, request.Query(), docs, min(topN*2, len(docs)))
	if err != nil {
		return search.EmptyResponse(search.NoteUnavailable), fmt.Errorf("rerank: %w", err)
	}

	ranked := make([]scored, 0, len(reranked))
	for _, r := range reranked {
		if r.Index < 0 || r.Index >= len(candidates) {
			continue
		}
		ranked = append(ranked, scored{unit: candidates[r.Index].Unit, score: r.Score})
	}

	ranked = boost(ranked, request.PriorityPrefixes(), s.settings.BoostFactor())
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	results := make([]search.Result, len(ranked))
	for i, r := range ranked {
		results[i] = search.Result{Key: r.unit.Key(), Relevance: r.score}
		if !request.SourcesOnly() {
			results[i].Content = search.Truncate(r.unit.Key(), r.unit.Text(), maxLen)
		}
	}

	s.logger.DebugContext(ctx, "search completed",
		slog.Int("candidates", len(candidates)),
		slog.Int("results", len(results)),
	)
	return search.Response{Results: results, Note: search.NoteFinal}, nil
}

// Page returns the full text of one unit the caller may read.
func (s *Search) Page(ctx context.Context, key string, roles []string) (search.Result, error) {
	if s.closed != nil && s.closed.Load() {
		return search.Result{}, ErrClientClosed
	}
	roles = cleanRoles(roles)
	if len(roles) == 0 {
		return search.Result{}, fmt.Errorf("%w: %s", search.ErrNotFound, key)
	}
	unit, err := s.index.Page(ctx, key, roles)
	if err != nil {
		return search.Result{}, err
	}
	return search.Result{Key: unit.Key(), Content: unit.Text()}, nil
}

// boost multiplies the score of every result under one of prefixes by
// factor, capped at 1.0, then sorts by score descending. A boost never
// lowers a score.
func boost(ranked []scored, prefixes []string, factor float64) []scored {
	if len(prefixes) > 0 && factor > 1 {
		for i := range ranked {
			if !search.HasAnyPrefix(ranked[i].unit.Key(), prefixes) {
				continue
			}
			if boosted := math.Min(ranked[i].score*factor, 1.0); boosted > ranked[i].score {
				ranked[i].score = boosted
			}
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	return ranked
}

func cleanRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
