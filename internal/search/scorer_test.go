package search

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/newspulse/internal/index"
	"github.com/mohammad-safakhou/newspulse/models"
)

type fixedEmbedder struct {
	vec []float32
}

func (f fixedEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

type testArticle struct {
	id      int64
	title   string
	content string
	vec     []float32
	age     time.Duration
}

func buildTestSnapshot(t *testing.T, articles []testArticle) *index.Snapshot {
	t.Helper()
	kw, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		t.Fatalf("bleve: %v", err)
	}
	snap := &index.Snapshot{
		Generation: 1,
		Keyword:    kw,
		Meta:       map[int64]models.Article{},
		BuiltAt:    time.Now(),
	}
	for _, a := range articles {
		doc := struct {
			Title   string `json:"title"`
			Content string `json:"content"`
		}{a.title, a.content}
		if err := kw.Index(itoa(a.id), doc); err != nil {
			t.Fatalf("index doc %d: %v", a.id, err)
		}
		snap.Vectors = append(snap.Vectors, index.Vector{ID: a.id, Vec: a.vec})
		snap.Meta[a.id] = models.Article{
			ID:          a.id,
			Title:       a.title,
			Content:     a.content,
			PublishedAt: time.Now().Add(-a.age),
		}
		snap.IDs = append(snap.IDs, a.id)
	}
	return snap
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func TestScoreDenseOnlyOrdering(t *testing.T) {
	snap := buildTestSnapshot(t, []testArticle{
		{id: 1, title: "Pump.fun frenzy", content: "traders pile into pump.fun tokens", vec: []float32{0, 1, 0}},
		{id: 2, title: "Ethereum upgrade", content: "the merge ships next month", vec: []float32{0.2, 0.9798, 0}},
		{id: 3, title: "Old news", content: "nothing relevant here", vec: []float32{-1, 0, 0}},
	})
	s := &Scorer{Embedder: fixedEmbedder{vec: []float32{1, 0, 0}}}

	results, err := s.Score(context.Background(), "pump.fun news", snap, Options{TopK: 3, KeywordWeight: 0})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].ArticleID != 2 {
		t.Fatalf("with zero keyword weight the dense-closest article should rank first, got %d", results[0].ArticleID)
	}
}

func TestScoreKeywordBoostLiftsExactToken(t *testing.T) {
	snap := buildTestSnapshot(t, []testArticle{
		{id: 1, title: "Pump.fun frenzy", content: "traders pile into pump.fun tokens", vec: []float32{0, 1, 0}},
		{id: 2, title: "Ethereum upgrade", content: "the merge ships next month", vec: []float32{0.2, 0.9798, 0}},
		{id: 3, title: "Old news", content: "nothing relevant here", vec: []float32{-1, 0, 0}},
	})
	s := &Scorer{Embedder: fixedEmbedder{vec: []float32{1, 0, 0}}}

	results, err := s.Score(context.Background(), "pump.fun latest", snap, Options{TopK: 3, KeywordWeight: 0.3})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].ArticleID != 1 {
		t.Fatalf("keyword boost should rank the pump.fun article first, got %d", results[0].ArticleID)
	}
	if results[0].SparseScore != 1 {
		t.Fatalf("only keyword match should have sparse score 1, got %f", results[0].SparseScore)
	}
}

func TestScoreKeywordWeightNeverDemotesMatchingArticle(t *testing.T) {
	snap := buildTestSnapshot(t, []testArticle{
		{id: 1, title: "Pump.fun frenzy", content: "traders pile into pump.fun tokens", vec: []float32{0, 1, 0}},
		{id: 2, title: "Ethereum upgrade", content: "the merge ships next month", vec: []float32{0.2, 0.9798, 0}},
		{id: 3, title: "Old news", content: "nothing relevant here", vec: []float32{-1, 0, 0}},
	})
	s := &Scorer{Embedder: fixedEmbedder{vec: []float32{1, 0, 0}}}

	// Article 1 is the only keyword match; raising the weight must never
	// worsen its rank.
	prevRank := len(snap.IDs)
	for _, w := range []float64{0, 0.25, 0.5, 0.75, 1} {
		results, err := s.Score(context.Background(), "pump.fun latest", snap, Options{TopK: 3, KeywordWeight: w})
		if err != nil {
			t.Fatalf("Score at weight %.2f: %v", w, err)
		}
		rank := -1
		for i, r := range results {
			if r.ArticleID == 1 {
				rank = i
			}
		}
		if rank == -1 {
			t.Fatalf("keyword match missing from results at weight %.2f", w)
		}
		if rank > prevRank {
			t.Fatalf("rank worsened from %d to %d at weight %.2f", prevRank, rank, w)
		}
		prevRank = rank
	}
}

func TestScoreThresholdFiltersBeforeTruncation(t *testing.T) {
	snap := buildTestSnapshot(t, []testArticle{
		{id: 1, title: "a", content: "alpha", vec: []float32{-1, 0, 0}},
		{id: 2, title: "b", content: "beta", vec: []float32{-1, 0, 0}},
	})
	s := &Scorer{Embedder: fixedEmbedder{vec: []float32{1, 0, 0}}}

	// Both articles have cosine -1, dense 0, and no keyword overlap.
	results, err := s.Score(context.Background(), "unrelated question", snap, Options{TopK: 2, KeywordWeight: 0.3, MinCombined: 0.3})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected all results filtered by threshold, got %d", len(results))
	}
}

func TestScoreTieBreaksByID(t *testing.T) {
	snap := buildTestSnapshot(t, []testArticle{
		{id: 2, title: "b", content: "beta", vec: []float32{1, 0, 0}},
		{id: 1, title: "a", content: "alpha", vec: []float32{1, 0, 0}},
	})
	s := &Scorer{Embedder: fixedEmbedder{vec: []float32{1, 0, 0}}}

	results, err := s.Score(context.Background(), "something else entirely", snap, Options{TopK: 2, KeywordWeight: 0})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ArticleID != 1 || results[1].ArticleID != 2 {
		t.Fatalf("equal scores should order by id, got %d then %d", results[0].ArticleID, results[1].ArticleID)
	}
}

func TestScoreRecencyWindowExcludesOldArticles(t *testing.T) {
	snap := buildTestSnapshot(t, []testArticle{
		{id: 1, title: "fresh", content: "fresh", vec: []float32{1, 0, 0}, age: time.Hour},
		{id: 2, title: "stale", content: "stale", vec: []float32{1, 0, 0}, age: 90 * 24 * time.Hour},
	})
	s := &Scorer{Embedder: fixedEmbedder{vec: []float32{1, 0, 0}}}

	results, err := s.Score(context.Background(), "anything", snap, Options{TopK: 5, Recency: 7 * 24 * time.Hour})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(results) != 1 || results[0].ArticleID != 1 {
		t.Fatalf("expected only the fresh article, got %v", results)
	}
}

func TestScoreEmptySnapshot(t *testing.T) {
	snap := buildTestSnapshot(t, nil)
	s := &Scorer{Embedder: fixedEmbedder{vec: []float32{1, 0, 0}}}
	results, err := s.Score(context.Background(), "anything", snap, Options{TopK: 5})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results from empty snapshot, got %d", len(results))
	}
}

func TestTokenizeKeepsInternalPunctuation(t *testing.T) {
	got := tokenize("What's new with Pump.fun, BTC?")
	want := map[string]bool{"what's": true, "new": true, "with": true, "pump.fun": true, "btc": true}
	if len(got) != len(want) {
		t.Fatalf("unexpected tokens: %v", got)
	}
	for _, tok := range got {
		if !want[tok] {
			t.Fatalf("unexpected token %q in %v", tok, got)
		}
	}
}
