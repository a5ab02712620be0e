package index

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/mohammad-safakhou/newspulse/models"
)

// ArticleSource supplies the corpus for snapshot builds.
type ArticleSource interface {
	ListArticles(ctx context.Context) ([]models.Article, error)
	Count(ctx context.Context) (int, error)
}

// Embedder turns article texts into dense vectors.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// StalenessProbe decides whether the live snapshot still reflects the
// corpus. Probes should be cheap; they run on every scheduler tick.
type StalenessProbe interface {
	Stale(ctx context.Context, current *Snapshot) (bool, error)
}

// CountProbe reports staleness when the stored article count differs from
// the snapshot size. Edits that keep the count unchanged are only picked up
// by a forced rebuild.
type CountProbe struct {
	Source ArticleSource
}

func (p CountProbe) Stale(ctx context.Context, current *Snapshot) (bool, error) {
	n, err := p.Source.Count(ctx)
	if err != nil {
		return false, err
	}
	return n != current.Size(), nil
}

// ErrRebuildInProgress is returned when a rebuild is requested while
// another one is already running.
var ErrRebuildInProgress = errors.New("index rebuild already in progress")

// Manager owns the live snapshot and coordinates rebuilds. Reads are
// lock-free; at most one rebuild runs at a time and a failed rebuild never
// touches the live snapshot.
type Manager struct {
	source     ArticleSource
	embedder   Embedder
	probe      StalenessProbe
	embedBatch int

	current    atomic.Pointer[Snapshot]
	rebuilding atomic.Bool
	lastReload atomic.Pointer[time.Time]
}

// NewManager seeds the manager with an empty generation-zero snapshot so
// Current never returns nil.
func NewManager(source ArticleSource, embedder Embedder, probe StalenessProbe, embedBatch int) (*Manager, error) {
	if embedBatch <= 0 {
		embedBatch = 64
	}
	empty, err := emptySnapshot()
	if err != nil {
		return nil, err
	}
	m := &Manager{source: source, embedder: embedder, probe: probe, embedBatch: embedBatch}
	m.current.Store(empty)
	return m, nil
}

// Current returns the live snapshot. Safe to call from any goroutine.
func (m *Manager) Current() *Snapshot { return m.current.Load() }

// MaybeReload rebuilds only when the staleness probe fires. Returns whether
// a rebuild happened.
func (m *Manager) MaybeReload(ctx context.Context) (bool, error) {
	stale, err := m.probe.Stale(ctx, m.Current())
	if err != nil {
		return false, fmt.Errorf("staleness probe: %w", err)
	}
	if !stale {
		return false, nil
	}
	if _, err := m.ForceReload(ctx); err != nil {
		if errors.Is(err, ErrRebuildInProgress) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ForceReload rebuilds unconditionally and returns the new generation.
// Concurrent callers beyond the first get ErrRebuildInProgress; queries keep
// being served from the prior snapshot throughout, and on failure the prior
// snapshot stays live.
func (m *Manager) ForceReload(ctx context.Context) (uint64, error) {
	if !m.rebuilding.CompareAndSwap(false, true) {
		return 0, ErrRebuildInProgress
	}
	defer m.rebuilding.Store(false)

	started := time.Now()
	articles, err := m.source.ListArticles(ctx)
	if err != nil {
		return 0, fmt.Errorf("list articles: %w", err)
	}

	embeddings, err := m.embedAll(ctx, articles)
	if err != nil {
		return 0, fmt.Errorf("embed articles: %w", err)
	}

	generation := m.Current().Generation + 1
	snap, err := buildSnapshot(generation, articles, embeddings)
	if err != nil {
		return 0, err
	}

	m.current.Store(snap)
	now := time.Now().UTC()
	m.lastReload.Store(&now)
	log.Printf("[INDEX] rebuilt generation %d: %d articles in %s", generation, snap.Size(), time.Since(started).Round(time.Millisecond))
	return generation, nil
}

func (m *Manager) embedAll(ctx context.Context, articles []models.Article) ([][]float32, error) {
	out := make([][]float32, 0, len(articles))
	for start := 0; start < len(articles); start += m.embedBatch {
		end := start + m.embedBatch
		if end > len(articles) {
			end = len(articles)
		}
		texts := make([]string, 0, end-start)
		for _, a := range articles[start:end] {
			texts = append(texts, a.Title+"\n\n"+a.Content)
		}
		vecs, err := m.embedder.CreateEmbedding(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Stats describes the live snapshot for the stats endpoint.
type Stats struct {
	Generation uint64         `json:"generation"`
	Articles   int            `json:"articles"`
	PerSource  map[string]int `json:"per_source"`
	BuiltAt    time.Time      `json:"built_at"`
	LastReload *time.Time     `json:"last_reload,omitempty"`
	Rebuilding bool           `json:"rebuilding"`
}

func (m *Manager) Stats() Stats {
	snap := m.Current()
	return Stats{
		Generation: snap.Generation,
		Articles:   snap.Size(),
		PerSource:  snap.SourceCounts(),
		BuiltAt:    snap.BuiltAt,
		LastReload: m.lastReload.Load(),
		Rebuilding: m.rebuilding.Load(),
	}
}
