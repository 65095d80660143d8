// Command indexer builds the positional index for a corpus directory, saves
// it as a new generation and announces it to searchers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/buildlog"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/notify"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/postgres"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	corpus := flag.String("corpus", "", "corpus directory (overrides indexer.corpusDir)")
	force := flag.Bool("force", false, "rebuild even if an index already exists")
	history := flag.Int("history", 0, "print the last N recorded builds and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *corpus != "" {
		cfg.Indexer.CorpusDir = *corpus
	}

	logger.Setup("indexer", cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg, *force, *history); err != nil {
		slog.Error("indexer failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, force bool, history int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(shutdownCtx)
		}()
		if gw := cfg.Metrics.PushGateway; gw != "" {
			defer func() {
				pushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := metrics.Push(pushCtx, gw, "positional-indexer"); err != nil {
					slog.Warn("metrics push failed", "gateway", gw, "error", err)
				}
			}()
		}
	}

	var reporters []indexer.Reporter
	var builds *buildlog.Store
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pg.Close()
		if m != nil {
			prometheus.MustRegister(pg.Collector())
		}
		if err := pg.Migrate(ctx, buildlog.Schema()...); err != nil {
			return fmt.Errorf("migrating build log: %w", err)
		}
		builds = buildlog.New(pg.DB)
		reporters = append(reporters, builds)
		slog.Info("build history enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}
	if history > 0 {
		if builds == nil {
			return fmt.Errorf("build history requires postgres.enabled")
		}
		return printHistory(ctx, builds, history)
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		reporters = append(reporters, notify.New(producer))
		slog.Info("index events enabled", "topic", producer.Topic())
	}

	engine := indexer.NewEngine(cfg.Indexer,
		indexer.WithMetrics(m),
		indexer.WithReporters(reporters...),
		indexer.WithLookupParallelism(cfg.Search.ParallelLookups),
	)
	defer engine.Close()

	if engine.IsIndexed() && !force {
		if err := engine.Load(ctx); err != nil {
			return fmt.Errorf("existing index failed to load, rerun with -force: %w", err)
		}
		stats, err := engine.Stats()
		if err != nil {
			return err
		}
		slog.Info("index already present",
			"index_dir", stats.IndexDir,
			"generation", stats.Generation,
			"documents", stats.Documents,
			"terms", stats.Terms,
			"built_at", stats.BuiltAt,
		)
		return nil
	}

	slog.Info("building index",
		"corpus", cfg.Indexer.CorpusDir,
		"index_dir", engine.IndexDir(),
		"workers", cfg.Indexer.Workers,
	)
	report, err := engine.Rebuild(ctx, cfg.Indexer.CorpusDir)
	if err != nil {
		return fmt.Errorf("building index: %w", err)
	}
	slog.Info("index built",
		"generation", report.Generation,
		"documents", report.Documents,
		"skipped", report.Skipped,
		"terms", report.Terms,
		"postings", report.Postings,
		"duration", report.Duration,
	)
	return nil
}

func printHistory(ctx context.Context, builds *buildlog.Store, limit int) error {
	recent, err := builds.Recent(ctx, limit)
	if err != nil {
		return err
	}
	for _, b := range recent {
		fmt.Printf("%d\t%s\tdocs=%d skipped=%d terms=%d postings=%d\t%s\n",
			b.Generation, b.FinishedAt.Format(time.RFC3339), b.Documents, b.Skipped,
			b.Terms, b.Postings, b.Duration)
	}
	return nil
}
