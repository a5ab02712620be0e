package index

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/newspulse/models"
)

type fakeSource struct {
	mu       sync.Mutex
	articles []models.Article
	listErr  error
}

func (f *fakeSource) ListArticles(ctx context.Context) ([]models.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.Article, len(f.articles))
	copy(out, f.articles)
	return out, nil
}

func (f *fakeSource) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.articles), nil
}

func (f *fakeSource) add(a models.Article) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.articles = append(f.articles, a)
}

type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func article(id int64) models.Article {
	return models.Article{ID: id, Title: "t", Content: "c", URL: "https://example.com/a", PublishedAt: time.Now()}
}

func newTestManager(t *testing.T, src *fakeSource, emb fakeEmbedder) *Manager {
	t.Helper()
	m, err := NewManager(src, emb, CountProbe{Source: src}, 2)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestManagerServesEmptySnapshotBeforeFirstBuild(t *testing.T) {
	m := newTestManager(t, &fakeSource{}, fakeEmbedder{})
	snap := m.Current()
	if snap == nil {
		t.Fatal("Current returned nil before first build")
	}
	if snap.Generation != 0 || snap.Size() != 0 {
		t.Fatalf("expected empty generation-zero snapshot, got gen %d size %d", snap.Generation, snap.Size())
	}
}

func TestForceReloadSwapsAndIncrementsGeneration(t *testing.T) {
	src := &fakeSource{articles: []models.Article{article(1), article(2), article(3)}}
	m := newTestManager(t, src, fakeEmbedder{})

	generation, err := m.ForceReload(context.Background())
	if err != nil {
		t.Fatalf("ForceReload: %v", err)
	}
	if generation != 1 {
		t.Fatalf("expected generation 1, got %d", generation)
	}
	if got := m.Current().Size(); got != 3 {
		t.Fatalf("expected 3 articles in snapshot, got %d", got)
	}

	generation, err = m.ForceReload(context.Background())
	if err != nil {
		t.Fatalf("second ForceReload: %v", err)
	}
	if generation != 2 {
		t.Fatalf("expected generation 2, got %d", generation)
	}
}

func TestMaybeReloadSkipsWhenCountUnchanged(t *testing.T) {
	src := &fakeSource{articles: []models.Article{article(1)}}
	m := newTestManager(t, src, fakeEmbedder{})

	reloaded, err := m.MaybeReload(context.Background())
	if err != nil {
		t.Fatalf("MaybeReload: %v", err)
	}
	if !reloaded {
		t.Fatal("expected initial MaybeReload to rebuild")
	}

	reloaded, err = m.MaybeReload(context.Background())
	if err != nil {
		t.Fatalf("second MaybeReload: %v", err)
	}
	if reloaded {
		t.Fatal("expected no rebuild when the count is unchanged")
	}

	src.add(article(2))
	reloaded, err = m.MaybeReload(context.Background())
	if err != nil {
		t.Fatalf("third MaybeReload: %v", err)
	}
	if !reloaded {
		t.Fatal("expected a rebuild after the corpus grew")
	}
	if got := m.Current().Size(); got != 2 {
		t.Fatalf("expected 2 articles after rebuild, got %d", got)
	}
}

func TestFailedRebuildKeepsPriorSnapshot(t *testing.T) {
	src := &fakeSource{articles: []models.Article{article(1)}}
	m := newTestManager(t, src, fakeEmbedder{})
	if _, err := m.ForceReload(context.Background()); err != nil {
		t.Fatalf("ForceReload: %v", err)
	}
	prior := m.Current()

	failing, err := NewManager(src, fakeEmbedder{err: errors.New("embedder down")}, CountProbe{Source: src}, 2)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	failing.current.Store(prior)

	if _, err := failing.ForceReload(context.Background()); err == nil {
		t.Fatal("expected ForceReload to fail")
	}
	if failing.Current() != prior {
		t.Fatal("failed rebuild must leave the prior snapshot live")
	}
	if failing.rebuilding.Load() {
		t.Fatal("rebuilding flag must clear after a failed rebuild")
	}
}

func TestConcurrentCurrentDuringRebuild(t *testing.T) {
	src := &fakeSource{articles: []models.Article{article(1), article(2)}}
	m := newTestManager(t, src, fakeEmbedder{})
	if _, err := m.ForceReload(context.Background()); err != nil {
		t.Fatalf("ForceReload: %v", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := m.Current()
				if snap == nil || snap.Generation == 0 {
					t.Error("reader observed a missing or unbuilt snapshot")
					return
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		if _, err := m.ForceReload(context.Background()); err != nil && !errors.Is(err, ErrRebuildInProgress) {
			t.Fatalf("ForceReload: %v", err)
		}
	}
	close(done)
	wg.Wait()
}
