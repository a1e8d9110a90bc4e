package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cavepedia/cavepedia/domain/document"
	"github.com/cavepedia/cavepedia/domain/search"
	"github.com/cavepedia/cavepedia/infrastructure/persistence"
	"github.com/cavepedia/cavepedia/internal/config"
	"github.com/cavepedia/cavepedia/internal/testdb"
)

type corpusPage struct {
	key    string
	text   string
	vector []float64
}

// seedCorpus stores every page as its own single-page file, extracted and
// embedded.
func seedCorpus(t *testing.T, pages []corpusPage) persistence.UnitStore {
	t.Helper()
	ctx := context.Background()
	db := testdb.New(t)
	docs := persistence.NewDocumentStore(db)
	units := persistence.NewUnitStore(db)

	for _, p := range pages {
		_, err := docs.Create(ctx, document.NewDocument("files", p.key))
		require.NoError(t, err)
		doc, err := docs.FindOne(ctx, document.WithKey(p.key))
		require.NoError(t, err)
		pageKey := document.PageKey(p.key, 1)
		require.NoError(t, docs.CompleteSplit(ctx, doc, []document.Unit{document.NewUnit("pages", pageKey, p.key)}))

		u, err := units.FindOne(ctx, document.WithKey(pageKey))
		require.NoError(t, err)
		_, err = units.Claim(ctx, []int64{u.ID()})
		require.NoError(t, err)
		require.NoError(t, units.SaveExtraction(ctx, document.NewExtraction(u.ID(), p.text)))
		if p.vector != nil {
			require.NoError(t, units.SaveEmbedding(ctx, u.ID(), p.vector))
		}
	}
	return units
}

func longText(label string) string {
	return label + ": " + strings.Repeat("survey notes for the streamway passage. ", 4)
}

func pageKey(key string) string { return document.PageKey(key, 1) }

func newTestSearch(index search.Index, embedder search.Embedder, reranker search.Reranker, settings config.SearchConfig) *Search {
	return NewSearch(index, embedder, reranker, settings, nil, quietLogger())
}

func TestSearch_FailsClosedWithoutRoles(t *testing.T) {
	embedder := &fakeEmbedder{}
	reranker := &fakeReranker{}
	units := seedCorpus(t, []corpusPage{{key: "public/a.pdf", text: longText("a"), vector: []float64{1, 0, 0, 0}}})
	s := newTestSearch(units, embedder, reranker, config.NewSearchConfig())

	for _, roles := range [][]string{nil, {}, {"", "  "}} {
		resp, err := s.Search(context.Background(), search.NewRequest("sump", roles))
		require.NoError(t, err)
		assert.Empty(t, resp.Results)
		assert.NotNil(t, resp.Results)
		assert.Equal(t, search.NoteNoAccess, resp.Note)
	}
	assert.Zero(t, embedder.calls)
	assert.Zero(t, reranker.calls)
}

func TestSearch_ScopedToRolesAndRankedByRelevance(t *testing.T) {
	var pages []corpusPage
	scores := map[string]float64{}
	for i := range 5 {
		key := fmt.Sprintf("public/doc-%d.pdf", i)
		text := longText(key)
		pages = append(pages, corpusPage{key: key, text: text, vector: []float64{1, float64(i) / 10, 0, 0}})
		scores[text] = 0.1 * float64(i+1)
	}
	secret := longText("private/secret.pdf")
	pages = append(pages, corpusPage{key: "private/secret.pdf", text: secret, vector: []float64{1, 0, 0, 0}})
	scores[secret] = 0.99

	units := seedCorpus(t, pages)
	reranker := &fakeReranker{scores: scores}
	embedder := &fakeEmbedder{vectors: map[string][]float64{"water": {1, 0, 0, 0}}}
	s := newTestSearch(units, embedder, reranker, config.NewSearchConfig())

	resp, err := s.Search(context.Background(), search.NewRequest("water", []string{"public"}, search.WithTopN(2)))
	require.NoError(t, err)
	assert.Equal(t, search.NoteFinal, resp.Note)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, pageKey("public/doc-4.pdf"), resp.Results[0].Key)
	assert.Equal(t, pageKey("public/doc-3.pdf"), resp.Results[1].Key)
	assert.GreaterOrEqual(t, resp.Results[0].Relevance, resp.Results[1].Relevance)
	for _, r := range resp.Results {
		assert.True(t, strings.HasPrefix(r.Key, "public/"))
		assert.NotEmpty(t, r.Content)
	}

	assert.Equal(t, []search.Purpose{search.PurposeQuery}, embedder.purposes)
	assert.Len(t, reranker.docs, 5, "all readable candidates are reranked")
	assert.Equal(t, 4, reranker.topN, "twice topN, bounded by the candidates")
	for _, d := range reranker.docs {
		assert.NotEqual(t, secret, d)
	}
}

func TestSearch_CandidateLimit(t *testing.T) {
	var pages []corpusPage
	for i := range 10 {
		key := fmt.Sprintf("public/%d.pdf", i)
		pages = append(pages, corpusPage{key: key, text: longText(key), vector: []float64{1, float64(i), 0, 0}})
	}
	units := seedCorpus(t, pages)
	reranker := &fakeReranker{}
	s := newTestSearch(units, &fakeEmbedder{}, reranker, config.NewSearchConfig())

	_, err := s.Search(context.Background(), search.NewRequest("q", []string{"public"}, search.WithTopN(2)))
	require.NoError(t, err)
	assert.Len(t, reranker.docs, 8, "topN times the candidate multiplier")
	assert.Equal(t, 4, reranker.topN)
}

func TestSearch_MinContentLengthFiltersCandidates(t *testing.T) {
	units := seedCorpus(t, []corpusPage{
		{key: "public/blank.pdf", text: "p. 4", vector: []float64{1, 0, 0, 0}},
		{key: "public/full.pdf", text: longText("full"), vector: []float64{1, 0, 0, 0}},
	})
	reranker := &fakeReranker{}

	s := newTestSearch(units, &fakeEmbedder{}, reranker, config.NewSearchConfig())
	_, err := s.Search(context.Background(), search.NewRequest("q", []string{"public"}))
	require.NoError(t, err)
	assert.Len(t, reranker.docs, 1)

	s = newTestSearch(units, &fakeEmbedder{}, reranker, config.NewSearchConfig().WithMinContentLength(0))
	_, err = s.Search(context.Background(), search.NewRequest("q", []string{"public"}))
	require.NoError(t, err)
	assert.Len(t, reranker.docs, 2)
}

func TestSearch_NoCandidates(t *testing.T) {
	units := seedCorpus(t, []corpusPage{{key: "private/a.pdf", text: longText("a"), vector: []float64{1, 0, 0, 0}}})
	reranker := &fakeReranker{}
	s := newTestSearch(units, &fakeEmbedder{}, reranker, config.NewSearchConfig())

	resp, err := s.Search(context.Background(), search.NewRequest("q", []string{"public"}))
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, search.NoteNoMatches, resp.Note)
	assert.Zero(t, reranker.calls)
}

func TestSearch_PriorityPrefixBoost(t *testing.T) {
	accident := longText("accident")
	survey := longText("survey")
	trip := longText("trip")
	units := seedCorpus(t, []corpusPage{
		{key: "public/accidents/1999.pdf", text: accident, vector: []float64{1, 0, 0, 0}},
		{key: "public/surveys/a.pdf", text: survey, vector: []float64{1, 0, 0, 0}},
		{key: "public/trips/b.pdf", text: trip, vector: []float64{1, 0, 0, 0}},
	})
	reranker := &fakeReranker{scores: map[string]float64{accident: 0.6, survey: 0.7, trip: 0.9}}
	s := newTestSearch(units, &fakeEmbedder{}, reranker, config.NewSearchConfig())

	resp, err := s.Search(context.Background(), search.NewRequest("rescue", []string{"public"},
		search.WithTopN(3),
		search.WithPriorityPrefixes([]string{"public/accidents/", "public/trips/"}),
	))
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)

	assert.Equal(t, pageKey("public/trips/b.pdf"), resp.Results[0].Key)
	assert.InDelta(t, 1.0, resp.Results[0].Relevance, 1e-9, "capped at 1.0")
	assert.Equal(t, pageKey("public/accidents/1999.pdf"), resp.Results[1].Key)
	assert.InDelta(t, 0.78, resp.Results[1].Relevance, 1e-9)
	assert.Equal(t, pageKey("public/surveys/a.pdf"), resp.Results[2].Key)
	assert.InDelta(t, 0.7, resp.Results[2].Relevance, 1e-9)
}

func TestBoost_NeverLowersOrExceedsOne(t *testing.T) {
	unit := func(key string) document.Unit {
		return document.ReconstructUnit(1, "public", "pages", key, nil, nil)
	}
	in := []scored{
		{unit: unit("a/1"), score: 0.2},
		{unit: unit("b/1"), score: 0.95},
		{unit: unit("a/2"), score: 0.9},
		{unit: unit("c/1"), score: 1.2},
	}
	before := map[string]float64{}
	for _, s := range in {
		before[s.unit.Key()] = s.score
	}

	out := boost(in, []string{"a/", "c/"}, 1.3)
	for i, s := range out {
		assert.GreaterOrEqual(t, s.score, before[s.unit.Key()])
		if before[s.unit.Key()] <= 1 {
			assert.LessOrEqual(t, s.score, 1.0)
		}
		if i > 0 {
			assert.GreaterOrEqual(t, out[i-1].score, s.score)
		}
	}
}

func TestSearch_ShapesOutput(t *testing.T) {
	body := strings.Repeat("x", 300)
	units := seedCorpus(t, []corpusPage{{key: "public/a.pdf", text: body, vector: []float64{1, 0, 0, 0}}})
	reranker := &fakeReranker{scores: map[string]float64{body: 0.5}}
	s := newTestSearch(units, &fakeEmbedder{}, reranker, config.NewSearchConfig())

	resp, err := s.Search(context.Background(), search.NewRequest("q", []string{"public"}, search.WithMaxContentLength(100)))
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.True(t, strings.HasPrefix(resp.Results[0].Content, strings.Repeat("x", 100)+"\n\n[Truncated."))
	assert.Contains(t, resp.Results[0].Content, pageKey("public/a.pdf"))

	resp, err = s.Search(context.Background(), search.NewRequest("q", []string{"public"}, search.WithSourcesOnly(true)))
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Empty(t, resp.Results[0].Content)
	assert.Equal(t, pageKey("public/a.pdf"), resp.Results[0].Key)
	assert.InDelta(t, 0.5, resp.Results[0].Relevance, 1e-9)
}

func TestSearch_RemoteFailuresDegrade(t *testing.T) {
	units := seedCorpus(t, []corpusPage{{key: "public/a.pdf", text: longText("a"), vector: []float64{1, 0, 0, 0}}})

	embedder := &fakeEmbedder{failOn: map[string]error{"q": search.ErrEmbeddingUnavailable}}
	s := newTestSearch(units, embedder, &fakeReranker{}, config.NewSearchConfig())
	resp, err := s.Search(context.Background(), search.NewRequest("q", []string{"public"}))
	require.ErrorIs(t, err, search.ErrEmbeddingUnavailable)
	assert.Empty(t, resp.Results)
	assert.Equal(t, search.NoteUnavailable, resp.Note)

	s = newTestSearch(units, &fakeEmbedder{}, &fakeReranker{err: search.ErrRerankUnavailable}, config.NewSearchConfig())
	resp, err = s.Search(context.Background(), search.NewRequest("q", []string{"public"}))
	require.ErrorIs(t, err, search.ErrRerankUnavailable)
	assert.Empty(t, resp.Results)
	assert.Equal(t, search.NoteUnavailable, resp.Note)
}

func TestSearch_Page(t *testing.T) {
	units := seedCorpus(t, []corpusPage{{key: "public/a.pdf", text: "full text of the page"}})
	s := newTestSearch(units, &fakeEmbedder{}, &fakeReranker{}, config.NewSearchConfig())
	ctx := context.Background()

	page, err := s.Page(ctx, pageKey("public/a.pdf"), []string{"public"})
	require.NoError(t, err)
	assert.Equal(t, "full text of the page", page.Content)

	_, err = s.Page(ctx, pageKey("public/a.pdf"), []string{"members"})
	assert.ErrorIs(t, err, search.ErrNotFound)

	_, err = s.Page(ctx, pageKey("public/a.pdf"), nil)
	assert.ErrorIs(t, err, search.ErrNotFound)
}

func TestSearch_Closed(t *testing.T) {
	closed := &atomic.Bool{}
	closed.Store(true)
	s := NewSearch(nil, nil, nil, config.NewSearchConfig(), closed, quietLogger())

	_, err := s.Search(context.Background(), search.NewRequest("q", []string{"public"}))
	assert.ErrorIs(t, err, ErrClientClosed)
}
