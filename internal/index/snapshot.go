package index

import (
	"fmt"
	"math"
	"time"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/newspulse/models"
)

// Vector pairs an article id with its embedding.
type Vector struct {
	ID  int64
	Vec []float32
}

// Snapshot is an immutable view of the corpus: a mem-only BM25 index, the
// dense vectors and the article metadata, all built from the same article
// set. Readers never see a partially built snapshot; the manager swaps the
// whole thing atomically.
type Snapshot struct {
	Generation uint64
	Keyword    bleve.Index
	Vectors    []Vector
	Meta       map[int64]models.Article
	IDs        []int64
	BuiltAt    time.Time
}

// Size returns the number of indexed articles.
func (s *Snapshot) Size() int { return len(s.IDs) }

// SourceCounts tallies indexed articles per source name.
func (s *Snapshot) SourceCounts() map[string]int {
	out := make(map[string]int)
	for _, a := range s.Meta {
		out[a.Source]++
	}
	return out
}

// keywordDoc is what gets indexed per article. Only title and content are
// searchable; metadata stays in Snapshot.Meta.
type keywordDoc struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// emptySnapshot is the generation-zero snapshot served before the first
// successful rebuild.
func emptySnapshot() (*Snapshot, error) {
	kw, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Generation: 0,
		Keyword:    kw,
		Meta:       map[int64]models.Article{},
		BuiltAt:    time.Now().UTC(),
	}, nil
}

// buildSnapshot assembles a snapshot from articles and their embeddings.
// Vectors are L2-normalized here so scoring can use a plain dot product.
func buildSnapshot(generation uint64, articles []models.Article, embeddings [][]float32) (*Snapshot, error) {
	if len(articles) != len(embeddings) {
		return nil, fmt.Errorf("article/embedding count mismatch: %d vs %d", len(articles), len(embeddings))
	}
	kw, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("keyword index: %w", err)
	}

	snap := &Snapshot{
		Generation: generation,
		Keyword:    kw,
		Vectors:    make([]Vector, 0, len(articles)),
		Meta:       make(map[int64]models.Article, len(articles)),
		IDs:        make([]int64, 0, len(articles)),
		BuiltAt:    time.Now().UTC(),
	}

	batch := kw.NewBatch()
	for i, a := range articles {
		if err := batch.Index(fmt.Sprintf("%d", a.ID), keywordDoc{Title: a.Title, Content: a.Content}); err != nil {
			return nil, fmt.Errorf("index article %d: %w", a.ID, err)
		}
		snap.Vectors = append(snap.Vectors, Vector{ID: a.ID, Vec: normalize(embeddings[i])})
		snap.Meta[a.ID] = a
		snap.IDs = append(snap.IDs, a.ID)
	}
	if err := kw.Batch(batch); err != nil {
		return nil, fmt.Errorf("keyword batch: %w", err)
	}
	return snap, nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
