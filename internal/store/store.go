package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/mohammad-safakhou/newspulse/models"
)

// Store is the Postgres-backed article store. Articles are written by the
// ingest command and read by the index manager and stats endpoints; the
// serving path treats the table as a keyed read-only lookup.
type Store struct {
	DB *sql.DB
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

const articleColumns = `id, title, content, url, source, published_at, scraped_at, created_at`

func scanArticle(row interface{ Scan(...interface{}) error }) (models.Article, error) {
	var a models.Article
	err := row.Scan(&a.ID, &a.Title, &a.Content, &a.URL, &a.Source, &a.PublishedAt, &a.ScrapedAt, &a.CreatedAt)
	return a, err
}

// ListArticles returns every article, ordered by id for deterministic
// snapshot builds.
func (s *Store) ListArticles(ctx context.Context) ([]models.Article, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+articleColumns+` FROM articles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ArticlesByIDs resolves a batch of article ids.
func (s *Store) ArticlesByIDs(ctx context.Context, ids []int64) (map[int64]models.Article, error) {
	if len(ids) == 0 {
		return map[int64]models.Article{}, nil
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]models.Article, len(ids))
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

// Count returns the number of stored articles. The index manager uses this
// as its staleness signal.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&n)
	return n, err
}

// SourceCounts returns the article count per source name.
func (s *Store) SourceCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT source, COUNT(*) FROM articles GROUP BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		out[source] = n
	}
	return out, rows.Err()
}

// DateRange returns the oldest and newest published dates, nil when the
// table is empty.
func (s *Store) DateRange(ctx context.Context) (oldest, newest *time.Time, err error) {
	err = s.DB.QueryRowContext(ctx,
		`SELECT MIN(published_at), MAX(published_at) FROM articles`).Scan(&oldest, &newest)
	return oldest, newest, err
}

// LatestIngest returns when an article was last inserted.
func (s *Store) LatestIngest(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	err := s.DB.QueryRowContext(ctx, `SELECT MAX(created_at) FROM articles`).Scan(&t)
	return t, err
}

// LatestScrape returns when an article was last scraped upstream.
func (s *Store) LatestScrape(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	err := s.DB.QueryRowContext(ctx, `SELECT MAX(scraped_at) FROM articles`).Scan(&t)
	return t, err
}

// InsertArticle upserts one article keyed by URL and returns its id.
func (s *Store) InsertArticle(ctx context.Context, a models.Article) (int64, error) {
	if a.ScrapedAt.IsZero() {
		a.ScrapedAt = time.Now().UTC()
	}
	var id int64
	err := s.DB.QueryRowContext(ctx, `
        INSERT INTO articles (title, content, url, source, published_at, scraped_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (url) DO UPDATE SET
            title = EXCLUDED.title,
            content = EXCLUDED.content,
            source = EXCLUDED.source,
            published_at = EXCLUDED.published_at,
            scraped_at = EXCLUDED.scraped_at
        RETURNING id`,
		a.Title, a.Content, a.URL, a.Source, a.PublishedAt, a.ScrapedAt).Scan(&id)
	return id, err
}
