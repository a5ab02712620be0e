package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mohammad-safakhou/newspulse/internal/store"
	"github.com/mohammad-safakhou/newspulse/models"
)

func TestStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	pgC, err := tcPostgres.RunContainer(ctx,
		tcPostgres.WithDatabase("newspulse"),
		tcPostgres.WithUsername("newspulse"),
		tcPostgres.WithPassword("newspulse"),
		tcPostgres.WithInitScripts("../../migrations/0001_articles.up.sql"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	defer func() { _ = pgC.Terminate(ctx) }()

	host, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := pgC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://newspulse:newspulse@%s:%s/newspulse?sslmode=disable", host, port.Port())

	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("NewWithDSN: %v", err)
	}
	defer st.Close()

	published := time.Now().UTC().Truncate(time.Second)
	id, err := st.InsertArticle(ctx, models.Article{
		Title:       "Bitcoin rallies",
		Content:     "markets move",
		URL:         "https://example.com/btc",
		Source:      "coindesk",
		PublishedAt: published,
	})
	if err != nil {
		t.Fatalf("InsertArticle: %v", err)
	}

	// Re-inserting the same URL must update in place, not duplicate.
	sameID, err := st.InsertArticle(ctx, models.Article{
		Title:       "Bitcoin rallies harder",
		Content:     "markets move more",
		URL:         "https://example.com/btc",
		Source:      "coindesk",
		PublishedAt: published,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if sameID != id {
		t.Fatalf("upsert minted a new id: %d vs %d", sameID, id)
	}

	n, err := st.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 article, got %d", n)
	}

	articles, err := st.ListArticles(ctx)
	if err != nil {
		t.Fatalf("ListArticles: %v", err)
	}
	if len(articles) != 1 || articles[0].Title != "Bitcoin rallies harder" {
		t.Fatalf("unexpected articles %+v", articles)
	}

	byID, err := st.ArticlesByIDs(ctx, []int64{id})
	if err != nil {
		t.Fatalf("ArticlesByIDs: %v", err)
	}
	if byID[id].URL != "https://example.com/btc" {
		t.Fatalf("unexpected lookup %+v", byID)
	}
}
