package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/mohammad-safakhou/newspulse/config"
	"github.com/mohammad-safakhou/newspulse/internal/agent"
	"github.com/mohammad-safakhou/newspulse/internal/index"
	"github.com/mohammad-safakhou/newspulse/internal/moderation"
	"github.com/mohammad-safakhou/newspulse/internal/pipeline"
	"github.com/mohammad-safakhou/newspulse/internal/search"
	"github.com/mohammad-safakhou/newspulse/internal/store"
	"github.com/mohammad-safakhou/newspulse/provider"
	"github.com/mohammad-safakhou/newspulse/session"
	"github.com/mohammad-safakhou/newspulse/session/inmemory"
	redis_session "github.com/mohammad-safakhou/newspulse/session/redis"
)

// Server bundles the handlers' dependencies. Tests construct one directly
// with fakes and call router.
type Server struct {
	Cfg      *appconfig.Config
	Pipeline *pipeline.Pipeline
	Index    *index.Manager
	Sessions session.Store
	Articles *store.Store
	Provider provider.Provider

	metrics *metrics
}

// router builds the echo instance with all routes registered.
func (s *Server) router() *echo.Echo {
	if s.metrics == nil {
		s.metrics = newMetrics()
	}
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", sessionHeader},
		ExposeHeaders: []string{sessionHeader},
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	api := e.Group("/api")
	api.POST("/ask", s.handleAsk)
	api.DELETE("/session/:id", s.handleDeleteSession)
	api.GET("/sessions/stats", s.handleSessionStats)
	api.GET("/index-stats", s.handleIndexStats)
	api.POST("/rebuild-index", s.handleRebuildIndex)
	api.GET("/health", s.handleHealth)
	api.GET("/sources", s.handleSources)
	return e
}

// Run wires the full service from config and serves until the listener
// fails.
func Run(cfgPath string) error {
	cfg := appconfig.LoadConfig(cfgPath)
	ctx := context.Background()

	if err := cfg.Databases.Postgres.Validate(); err != nil {
		return err
	}
	if err := Migrate("file://migrations", cfg.Databases.Postgres.DSN(), "up", 0); err != nil {
		log.Printf("[SRV] migrations: %v", err)
	}
	st, err := store.NewWithDSN(ctx, cfg.Databases.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	prov, err := provider.New(ctx, providerConfig(cfg))
	if err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	log.Printf("[SRV] using provider %s", prov.Name())

	var rdb *redis.Client
	if cfg.Databases.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Databases.Redis.Addr(),
			Password: cfg.Databases.Redis.Pass,
			DB:       cfg.Databases.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Databases.Redis.Addr(), err)
		}
	}

	var sessions session.Store
	if cfg.Session.Backend == "redis" {
		if rdb == nil {
			return fmt.Errorf("session.backend is redis but databases.redis is not configured")
		}
		sessions = redis_session.NewRedisSessionStore(rdb, cfg.Session.TTL(), cfg.Session.MaxTurns)
	} else {
		sessions = inmemory.NewInMemorySessionStore(cfg.Session.TTL(), cfg.Session.MaxTurns)
	}

	mgr, err := index.NewManager(st, prov, index.CountProbe{Source: st}, cfg.Index.EmbedBatch)
	if err != nil {
		return fmt.Errorf("index manager: %w", err)
	}
	if _, err := mgr.ForceReload(ctx); err != nil {
		// Serve the empty snapshot; the scheduler retries.
		log.Printf("[SRV] initial index build failed: %v", err)
	}

	pipe := &pipeline.Pipeline{
		Index:         mgr,
		Scorer:        &search.Scorer{Embedder: prov},
		Sessions:      sessions,
		Provider:      prov,
		Agent:         agent.NewEngine(),
		Gate:          &moderation.Gate{Remote: prov},
		DefaultTopK:   cfg.Search.TopK,
		KeywordWeight: cfg.Search.KeywordBoost,
		MinCombined:   cfg.Search.SimilarityThreshold,
		Recency:       time.Duration(cfg.Search.RecencyWindowDays) * 24 * time.Hour,
	}

	srv := &Server{
		Cfg:      cfg,
		Pipeline: pipe,
		Index:    mgr,
		Sessions: sessions,
		Articles: st,
		Provider: prov,
		metrics:  newMetrics(),
	}

	sched := &Scheduler{
		Index:         mgr,
		Sessions:      sessions,
		Rdb:           rdb,
		Schedule:      cfg.Index.CheckSchedule,
		Interval:      cfg.Index.CheckInterval,
		SweepInterval: cfg.Session.SweepInterval,
		Metrics:       srv.metrics,
		Stop:          make(chan struct{}),
	}
	sched.Start()
	defer close(sched.Stop)

	e := srv.router()
	addr := cfg.General.Listen
	if addr != "" && addr[0] != ':' {
		addr = ":" + addr
	}
	return e.Start(addr)
}

func providerConfig(cfg *appconfig.Config) provider.Config {
	return provider.Config{
		Selector:              cfg.Providers.LLMProvider,
		OpenAIKey:             cfg.Providers.OpenAi.APIKey,
		OpenAICompletionModel: cfg.Providers.OpenAi.CompletionModel,
		OpenAIEmbeddingModel:  cfg.Providers.OpenAi.EmbeddingModel,
		OpenAITemperature:     cfg.Providers.OpenAi.Temperature,
		OpenAIMaxTokens:       cfg.Providers.OpenAi.MaxTokens,
		OpenAITimeout:         cfg.Providers.OpenAi.Timeout,
		OllamaBaseURL:         cfg.Providers.Ollama.BaseURL,
		OllamaCompletionModel: cfg.Providers.Ollama.CompletionModel,
		OllamaEmbeddingModel:  cfg.Providers.Ollama.EmbeddingModel,
		OllamaTemperature:     cfg.Providers.Ollama.Temperature,
		OllamaMaxTokens:       cfg.Providers.Ollama.MaxTokens,
		OllamaTimeout:         cfg.Providers.Ollama.Timeout,
	}
}
