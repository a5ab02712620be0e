package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/search/query"

	"github.com/mohammad-safakhou/newspulse/internal/index"
	"github.com/mohammad-safakhou/newspulse/models"
)

// Embedder produces the query vector.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Options tunes a single scoring pass.
type Options struct {
	TopK          int
	KeywordWeight float64 // weight of the sparse signal, in [0,1]
	MinCombined   float64 // results below this combined score are dropped
	Recency       time.Duration
	Now           time.Time // zero means time.Now
}

// Scorer ranks snapshot articles for a question by blending dense cosine
// similarity with BM25 keyword scores.
type Scorer struct {
	Embedder Embedder
}

// Score embeds the question, gathers dense candidates and blends in keyword
// scores. Ordering is combined score desc, then dense score desc, then id
// asc. The threshold filter applies before truncation, so fewer than TopK
// results, including none, is a valid outcome.
func (s *Scorer) Score(ctx context.Context, question string, snap *index.Snapshot, opts Options) ([]models.ScoredResult, error) {
	if snap.Size() == 0 || opts.TopK <= 0 {
		return nil, nil
	}

	vecs, err := s.Embedder.CreateEmbedding(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vecs))
	}
	qvec := vecs[0]

	eligible := eligibleIDs(snap, opts)
	if len(eligible) == 0 {
		return nil, nil
	}

	dense := denseScores(snap, qvec, eligible)

	// Dense candidate pool: 4x the requested size, keyword scores only
	// rerank within it.
	pool := 4 * opts.TopK
	if pool > len(dense) {
		pool = len(dense)
	}
	sort.Slice(dense, func(i, j int) bool {
		if dense[i].DenseScore != dense[j].DenseScore {
			return dense[i].DenseScore > dense[j].DenseScore
		}
		return dense[i].ArticleID < dense[j].ArticleID
	})
	candidates := dense[:pool]

	sparse, err := keywordScores(snap, question, eligible)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	w := opts.KeywordWeight
	for i := range candidates {
		candidates[i].SparseScore = sparse[candidates[i].ArticleID]
		candidates[i].CombinedScore = (1-w)*candidates[i].DenseScore + w*candidates[i].SparseScore
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CombinedScore != candidates[j].CombinedScore {
			return candidates[i].CombinedScore > candidates[j].CombinedScore
		}
		if candidates[i].DenseScore != candidates[j].DenseScore {
			return candidates[i].DenseScore > candidates[j].DenseScore
		}
		return candidates[i].ArticleID < candidates[j].ArticleID
	})

	out := make([]models.ScoredResult, 0, opts.TopK)
	for _, c := range candidates {
		if c.CombinedScore < opts.MinCombined {
			continue
		}
		out = append(out, c)
		if len(out) == opts.TopK {
			break
		}
	}
	return out, nil
}

// eligibleIDs applies the optional recency window.
func eligibleIDs(snap *index.Snapshot, opts Options) map[int64]bool {
	out := make(map[int64]bool, len(snap.IDs))
	if opts.Recency <= 0 {
		for _, id := range snap.IDs {
			out[id] = true
		}
		return out
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	cutoff := now.Add(-opts.Recency)
	for _, id := range snap.IDs {
		if !snap.Meta[id].PublishedAt.Before(cutoff) {
			out[id] = true
		}
	}
	return out
}

// denseScores computes cosine similarity against every eligible vector and
// maps it from [-1,1] into [0,1]. Snapshot vectors are pre-normalized so a
// dot product with the normalized query suffices.
func denseScores(snap *index.Snapshot, qvec []float32, eligible map[int64]bool) []models.ScoredResult {
	var qnorm float64
	for _, x := range qvec {
		qnorm += float64(x) * float64(x)
	}
	out := make([]models.ScoredResult, 0, len(eligible))
	for _, v := range snap.Vectors {
		if !eligible[v.ID] {
			continue
		}
		var dot float64
		n := len(qvec)
		if len(v.Vec) < n {
			n = len(v.Vec)
		}
		for i := 0; i < n; i++ {
			dot += float64(qvec[i]) * float64(v.Vec[i])
		}
		cos := 0.0
		if qnorm > 0 {
			cos = dot / math.Sqrt(qnorm)
		}
		out = append(out, models.ScoredResult{ArticleID: v.ID, DenseScore: (cos + 1) / 2})
	}
	return out
}

// keywordScores runs a disjunction of term queries over the mem-only index
// and normalizes hit scores by the best hit, giving sparse scores in (0,1].
func keywordScores(snap *index.Snapshot, question string, eligible map[int64]bool) (map[int64]float64, error) {
	terms := tokenize(question)
	if len(terms) == 0 {
		return map[int64]float64{}, nil
	}
	queries := make([]query.Query, 0, len(terms))
	for _, t := range terms {
		queries = append(queries, bleve.NewTermQuery(t))
	}
	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(queries...), len(eligible), 0, false)
	res, err := snap.Keyword.Search(req)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]float64, len(res.Hits))
	var max float64
	for _, hit := range res.Hits {
		if hit.Score > max {
			max = hit.Score
		}
	}
	if max == 0 {
		return out, nil
	}
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		if eligible[id] {
			out[id] = hit.Score / max
		}
	}
	return out, nil
}

// tokenize lowercases and splits on whitespace, trimming edge punctuation
// while keeping internal punctuation so tokens like "pump.fun" survive the
// way the standard analyzer keeps them.
func tokenize(q string) []string {
	fields := strings.FieldsFunc(strings.ToLower(q), unicode.IsSpace)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
