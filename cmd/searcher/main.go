// Command searcher serves free-text and AND queries over the index
// generation in indexer.indexRoot and reloads it when a new one is announced.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/notify"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/redis"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup("searcher", cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "index_root", cfg.Indexer.Root())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	engine := indexer.NewEngine(cfg.Indexer,
		indexer.WithMetrics(m),
		indexer.WithLookupParallelism(cfg.Search.ParallelLookups),
	)
	defer engine.Close()
	if err := engine.Load(ctx); err != nil {
		if !errors.Is(err, apperrors.ErrIndexNotBuilt) {
			slog.Error("failed to load index", "error", err)
			os.Exit(1)
		}
		slog.Warn("no index yet, serving 503 until one is announced", "index_dir", engine.IndexDir())
	}

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	compression, err := cache.ParseCompression(cfg.Redis.Compression)
	if err != nil {
		slog.Error("invalid redis config", "error", err)
		os.Exit(1)
	}
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			if cfg.Metrics.Enabled {
				prometheus.MustRegister(redisClient.Collector())
			}
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL,
				cache.WithMetrics(m),
				cache.WithCompression(compression),
			)
			slog.Info("search cache enabled",
				"addr", cfg.Redis.Addr,
				"ttl", cfg.Redis.CacheTTL,
				"compression", compression.String(),
			)
		}
	}

	if cfg.Kafka.Enabled {
		var inv consumer.Invalidator
		if queryCache != nil {
			inv = queryCache
		}
		// Every searcher must see every event, so the group is per instance.
		group := cfg.Kafka.ConsumerGroup + "-" + instanceID()
		kc := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, group,
			consumer.HandleIndexComplete(engine, inv),
			kafka.WithEventType(notify.EventType))
		reload := consumer.New(kc)
		go func() {
			if err := reload.Start(ctx); err != nil {
				slog.Error("reload consumer error", "error", err)
			}
		}()
		slog.Info("reload consumer started", "topic", cfg.Kafka.Topics.IndexComplete, "group", group)
	}

	aggregator := analytics.NewAggregator(0)
	analyticsH := analytics.NewHandler(aggregator)

	checker := health.NewChecker(health.WithCacheFor(time.Second))
	checker.Add(health.Dependency{Name: "index", Check: func(context.Context) error {
		if !engine.Loaded() {
			return apperrors.ErrIndexNotBuilt
		}
		return nil
	}})
	checker.Add(health.Dependency{Name: "redis", Optional: true, Check: func(ctx context.Context) error {
		if redisClient == nil {
			return errors.New("not configured")
		}
		return redisClient.Ping(ctx)
	}})

	exec := executor.New(engine,
		executor.WithMetrics(m),
		executor.WithTimeout(cfg.Search.QueryTimeout),
	)
	h := handler.New(exec, engine, cfg.Search,
		handler.WithCache(queryCache),
		handler.WithAnalytics(aggregator),
		handler.WithMetrics(m),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/search/stats", analyticsH.Stats)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	var chain http.Handler = mux
	chain = gzhttp.GzipHandler(chain)
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		chain = middleware.RateLimit(middleware.NewLimiter(ctx, cfg.Server.RateLimit, time.Minute))(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	summary := aggregator.Stats()
	slog.Info("search service stopped",
		"searches", summary.TotalSearches,
		"zero_result", summary.ZeroResultCount,
		"cache_hits", summary.CacheHits,
		"p95_latency_ms", summary.P95LatencyMs,
	)
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "searcher"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
