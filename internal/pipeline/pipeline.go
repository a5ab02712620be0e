package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/newspulse/internal/agent"
	"github.com/mohammad-safakhou/newspulse/internal/index"
	"github.com/mohammad-safakhou/newspulse/internal/moderation"
	"github.com/mohammad-safakhou/newspulse/internal/search"
	"github.com/mohammad-safakhou/newspulse/models"
	"github.com/mohammad-safakhou/newspulse/provider"
	"github.com/mohammad-safakhou/newspulse/session"
)

const persistTimeout = 5 * time.Second

// Pipeline runs one question end to end: route it, retrieve context from
// the live snapshot, stream the completion and record the exchange.
type Pipeline struct {
	Index    *index.Manager
	Scorer   *search.Scorer
	Sessions session.Store
	Provider provider.Provider
	Agent    *agent.Engine
	Gate     *moderation.Gate

	DefaultTopK   int
	KeywordWeight float64
	MinCombined   float64
	Recency       time.Duration
}

// Moderate validates the question before any streaming starts. A non-nil
// error is a *moderation.RejectionError and maps to a client error.
func (p *Pipeline) Moderate(ctx context.Context, question string) error {
	return p.Gate.Check(ctx, question)
}

// Run processes an already-moderated query. Events arrive on the returned
// channel, which closes when the run ends. Cancelling ctx stops generation;
// a partially generated answer is still recorded, an empty one is not.
func (p *Pipeline) Run(ctx context.Context, q models.Query) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		p.run(ctx, q, out)
	}()
	return out
}

func (p *Pipeline) run(ctx context.Context, q models.Query, out chan<- Event) {
	history, err := p.Sessions.History(ctx, q.SessionID)
	if err != nil {
		log.Printf("[PIPE] history load failed for %s: %v", q.SessionID, err)
		history = nil
	}

	decision := p.Agent.Decide(q.Question, history)

	sources := make([]models.SourceInfo, 0)
	var articles []models.Article
	var scores []float64
	if decision.NeedRetrieval {
		sources, articles, scores, err = p.retrieve(ctx, q, decision.Query)
		if err != nil {
			if len(history) == 0 {
				log.Printf("[PIPE] retrieval failed with no history to fall back on: %v", err)
				emit(ctx, out, ErrorEvent{Message: "retrieval is temporarily unavailable"})
				return
			}
			// Degrade to a history-only answer.
			log.Printf("[PIPE] retrieval failed, answering from history: %v", err)
			sources, articles, scores = []models.SourceInfo{}, nil, nil
		}
	}

	// Sources are announced only when retrieval actually produced some;
	// content follows either way.
	if len(sources) > 0 {
		if !emit(ctx, out, SourcesEvent{Sources: sources}) {
			return
		}
	}

	deltas, err := p.Provider.StreamChat(ctx, buildMessages(q.Question, history, articles, scores))
	if err != nil {
		emit(ctx, out, ErrorEvent{Message: "generation failed to start"})
		return
	}

	var answer strings.Builder
	for d := range deltas {
		if d.Err != nil {
			log.Printf("[PIPE] stream interrupted: %v", d.Err)
			emit(ctx, out, ErrorEvent{Message: "generation was interrupted"})
			p.persist(q.SessionID, q.Question, answer.String())
			return
		}
		answer.WriteString(d.Content)
		if !emit(ctx, out, ContentEvent{Content: d.Content}) {
			p.persist(q.SessionID, q.Question, answer.String())
			return
		}
	}
	if ctx.Err() != nil {
		p.persist(q.SessionID, q.Question, answer.String())
		return
	}

	emit(ctx, out, DoneEvent{})
	p.persist(q.SessionID, q.Question, answer.String())
}

// retrieve scores the live snapshot and resolves results into citations and
// prompt context. Sources are deduplicated by URL, keeping the best ranked.
func (p *Pipeline) retrieve(ctx context.Context, q models.Query, query string) ([]models.SourceInfo, []models.Article, []float64, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = p.DefaultTopK
	}
	weight := p.KeywordWeight
	if q.KeywordWeight != nil {
		weight = *q.KeywordWeight
	}
	snap := p.Index.Current()
	results, err := p.Scorer.Score(ctx, query, snap, search.Options{
		TopK:          topK,
		KeywordWeight: weight,
		MinCombined:   p.MinCombined,
		Recency:       p.Recency,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("score: %w", err)
	}

	seen := make(map[string]bool, len(results))
	sources := make([]models.SourceInfo, 0, len(results))
	articles := make([]models.Article, 0, len(results))
	scores := make([]float64, 0, len(results))
	for _, r := range results {
		a, ok := snap.Meta[r.ArticleID]
		if !ok || seen[a.URL] {
			continue
		}
		seen[a.URL] = true
		articles = append(articles, a)
		scores = append(scores, r.CombinedScore)
		sources = append(sources, models.SourceInfo{
			ID:              a.ID,
			Title:           a.Title,
			Source:          a.Source,
			URL:             a.URL,
			PublishedAt:     a.PublishedAt.Format("2006-01-02"),
			SimilarityScore: r.CombinedScore,
		})
	}
	return sources, articles, scores, nil
}

// persist records the exchange. It runs on a background context so a
// cancelled request cannot lose the write; an empty answer records nothing.
func (p *Pipeline) persist(sessionID, question, answer string) {
	if answer == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	now := time.Now().UTC()
	err := p.Sessions.AppendExchange(ctx, sessionID,
		models.Turn{Role: models.RoleUser, Content: question, Timestamp: now},
		models.Turn{Role: models.RoleAssistant, Content: answer, Timestamp: now},
	)
	if err != nil {
		log.Printf("[PIPE] failed to record exchange for %s: %v", sessionID, err)
	}
}

func emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
