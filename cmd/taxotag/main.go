package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lumina-cloud/taxotag/internal/config"
	"github.com/lumina-cloud/taxotag/internal/db"
	dbRedis "github.com/lumina-cloud/taxotag/internal/db/redis"
	"github.com/lumina-cloud/taxotag/internal/domain"
	"github.com/lumina-cloud/taxotag/internal/domain/taxonomy"
	logpkg "github.com/lumina-cloud/taxotag/internal/logger"
	"github.com/lumina-cloud/taxotag/internal/metrics"
	budgetrepo "github.com/lumina-cloud/taxotag/internal/repository/budget"
	"github.com/lumina-cloud/taxotag/internal/repository/embcache"
	taxonomyrepo "github.com/lumina-cloud/taxotag/internal/repository/taxonomy"
	chiTransport "github.com/lumina-cloud/taxotag/internal/transport/chi"
	"github.com/lumina-cloud/taxotag/internal/transport/clipserver"
	"github.com/lumina-cloud/taxotag/internal/transport/fetch"
	openaiEmb "github.com/lumina-cloud/taxotag/internal/transport/openai"
	embeddinguc "github.com/lumina-cloud/taxotag/internal/usecase/embedding"
	healthuc "github.com/lumina-cloud/taxotag/internal/usecase/health"
	reportuc "github.com/lumina-cloud/taxotag/internal/usecase/report"
	tagginguc "github.com/lumina-cloud/taxotag/internal/usecase/tagging"
	taxonomyuc "github.com/lumina-cloud/taxotag/internal/usecase/taxonomy"
	"github.com/lumina-cloud/taxotag/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting taxotag API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("cache_addrs", cfg.Cache.Addrs),
	)

	ctx := context.Background()

	// Cache store is optional: without it the service runs uncached and the
	// budget counters stay in memory.
	var store db.Store
	if len(cfg.Cache.Addrs) > 0 {
		redisStore, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer redisStore.Close()

		readiness := time.Duration(cfg.Cache.ReadinessTimeout) * time.Second
		if err := redisStore.WaitForReady(ctx, readiness); err != nil {
			logger.Fatal("Cache not ready", zap.Error(err))
		}
		store = redisStore
		logger.Info("Connected to cache")
	} else {
		logger.Warn("No cache configured, embeddings will not be cached")
	}

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterMatchingMetrics()

	builder := newEmbedderBuilder(&cfg, store, logger)

	categorySet, err := builder.set(ctx, cfg.Taxonomy.CategoryProfile)
	if err != nil {
		logger.Fatal("Failed to build category embedders", zap.Error(err))
	}
	attributeSet, err := builder.set(ctx, cfg.Taxonomy.AttributeProfile)
	if err != nil {
		logger.Fatal("Failed to build attribute embedders", zap.Error(err))
	}

	// Load raw taxonomies and embed them at startup. Per-node provider
	// failures degrade to unscorable nodes, they never abort startup.
	loader := taxonomyrepo.NewLoader(cfg.Taxonomy.Dir)

	rawCategories, err := loader.LoadCategories()
	if err != nil {
		logger.Fatal("Failed to load category taxonomy", zap.Error(err))
	}
	attributeGroups, err := loader.LoadAttributes()
	if err != nil {
		logger.Fatal("Failed to load attribute taxonomies", zap.Error(err))
	}

	categoryBuilder := taxonomyuc.NewBuilder(categorySet.Text, categorySet.Profile, logger)
	categoryTree, _, err := categoryBuilder.Build(
		ctx, "categories", rawCategories, taxonomy.LabelEmbedding)
	if err != nil {
		logger.Fatal("Failed to build category tree", zap.Error(err))
	}

	attributeBuilder := taxonomyuc.NewBuilder(attributeSet.Text, attributeSet.Profile, logger)
	attributeTrees := make([]*taxonomy.Tree, 0, len(attributeGroups))
	for _, group := range attributeGroups {
		tree, _, err := attributeBuilder.Build(
			ctx, group.Name, group.Roots, taxonomy.PathEmbedding)
		if err != nil {
			logger.Fatal("Failed to build attribute tree",
				zap.String("tree", group.Name), zap.Error(err))
		}
		attributeTrees = append(attributeTrees, tree)
	}

	fetcher := fetch.New(&fetch.Config{
		Timeout:      time.Duration(cfg.Fetch.TimeoutSec) * time.Second,
		PrimeCookies: cfg.Fetch.PrimeCookies,
		Logger:       logger,
	})

	taggingSvc := tagginguc.New(&tagginguc.Config{
		CategoryTree:   categoryTree,
		AttributeTrees: attributeTrees,
		Category:       categorySet,
		Attribute:      attributeSet,
		Fetcher:        fetcher,
		TextFields:     cfg.Tagging.TextFields,
		TextFieldsFull: cfg.Tagging.TextFieldsFull,
		TagThreshold:   cfg.Taxonomy.TagThreshold,
		Logger:         logger,
	})

	reportSvc := reportuc.New(cfg.Report.SimilarityFloor, cfg.Report.Threshold, logger)

	var cachePinger healthuc.CachePinger
	if store != nil {
		cachePinger = store
	}
	healthSvc := healthuc.New(cachePinger, builder.healthProviders())

	server := chiTransport.NewServer(taggingSvc, reportSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Mount("/", server.Routes(cfg.Auth.APIKeys))

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// embedderBuilder assembles per-profile decorator chains:
// transport -> cached -> instrumented. One budget tracker per provider,
// shared between the text and image sides and across profiles.
type embedderBuilder struct {
	cfg     *config.Config
	store   db.Store
	logger  *zap.Logger
	budgets map[string]embeddinguc.BudgetChecker
	health  []healthuc.Provider
}

func newEmbedderBuilder(cfg *config.Config, store db.Store, logger *zap.Logger) *embedderBuilder {
	return &embedderBuilder{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		budgets: make(map[string]embeddinguc.BudgetChecker),
	}
}

func (b *embedderBuilder) set(ctx context.Context, profileName string) (domain.EmbedderSet, error) {
	profile, err := domain.ParseProfile(profileName)
	if err != nil {
		return domain.EmbedderSet{}, err
	}

	vecCfg, ok := b.cfg.Embedding.Vectorizers[profileName]
	if !ok {
		return domain.EmbedderSet{}, fmt.Errorf("no vectorizer configured for profile %q", profileName)
	}
	provCfg := b.cfg.Embedding.Providers[vecCfg.Provider]

	budget := b.budget(ctx, vecCfg.Provider, provCfg.Budget)

	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     provCfg.APIKey,
		BaseURL:    provCfg.BaseURL,
		Model:      vecCfg.TextModel,
		Dimensions: vecCfg.Dimensions,
		Provider:   vecCfg.Provider,
		Logger:     b.logger,
	})
	b.health = append(b.health, healthuc.Provider{
		Name:    "embedding:" + profileName,
		Checker: base,
	})

	var text domain.Embedder = base
	if b.store != nil {
		text = embcache.New(text, b.store, profile, metrics.EmbeddingCacheTotal, b.logger)
	}
	text = embeddinguc.NewInstrumentedEmbedder(text, vecCfg.Provider, vecCfg.TextModel, budget, b.logger)

	imageModel := vecCfg.ImageModel
	if imageModel == "" {
		imageModel = vecCfg.TextModel
	}
	var image domain.ImageEmbedder = clipserver.NewEmbedder(&clipserver.Config{
		APIKey:   provCfg.APIKey,
		BaseURL:  provCfg.BaseURL,
		Model:    imageModel,
		Provider: vecCfg.Provider,
		Logger:   b.logger,
	})
	if b.store != nil {
		image = embcache.NewImage(image, b.store, profile, metrics.EmbeddingCacheTotal, b.logger)
	}
	image = embeddinguc.NewInstrumentedImageEmbedder(image, vecCfg.Provider, imageModel, budget, b.logger)

	b.logger.Info("Embedders created",
		zap.String("profile", profileName),
		zap.String("provider", vecCfg.Provider),
		zap.String("text_model", vecCfg.TextModel),
		zap.String("image_model", imageModel),
		zap.Int("dimensions", vecCfg.Dimensions),
	)

	return domain.EmbedderSet{Profile: profile, Text: text, Image: image}, nil
}

// budget returns the shared tracker for a provider, creating it on first
// use. A nil interface (not a typed nil pointer) disables budgeting.
func (b *embedderBuilder) budget(
	ctx context.Context, provider string, budgetCfg config.BudgetConfig,
) embeddinguc.BudgetChecker {
	if checker, ok := b.budgets[provider]; ok {
		return checker
	}

	var checker embeddinguc.BudgetChecker
	if budgetCfg.DailyTokenLimit > 0 || budgetCfg.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if budgetCfg.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		tracker := embeddinguc.NewBudgetTracker(
			provider, budgetCfg.DailyTokenLimit, budgetCfg.MonthlyTokenLimit, action, b.logger,
		)
		if b.store != nil {
			// Loads current counters from the store.
			tracker.WithStore(ctx, budgetrepo.New(b.store, 48*time.Hour, 62*24*time.Hour))
		}
		checker = tracker
	}

	b.budgets[provider] = checker
	return checker
}

func (b *embedderBuilder) healthProviders() []healthuc.Provider {
	return b.health
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
