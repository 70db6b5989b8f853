package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paperindex/docsearch/internal/engine"
	"github.com/paperindex/docsearch/internal/httpapi"
	"github.com/paperindex/docsearch/pkg/config"
	"github.com/paperindex/docsearch/pkg/health"
	"github.com/paperindex/docsearch/pkg/logger"
)

// mergeInterval sets how often the delta index is folded into its owning
// barrels. Kept independent of the writer's flush interval: a flush makes a
// batch durable and searchable via the delta immediately, while the merge
// keeps the delta from growing without bound.
const mergeInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting document search service", "port", cfg.Server.Port)

	e, err := engine.New(cfg)
	if err != nil {
		slog.Error("failed to build engine", "error", err)
		os.Exit(1)
	}
	e.CleanTempDirs()
	slog.Info("engine initialized",
		"lexicon_size", e.Lexicon.Size(),
		"documents", e.Forward.LineCount(),
		"delta_size", e.Delta.Size(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e.Pool.Start(ctx)
	defer e.Pool.Stop()
	e.Writer.Start(ctx)
	defer e.Writer.Stop()
	slog.Info("ingestion pipeline started", "pool_workers", cfg.Pool.Workers)

	go runMergeLoop(ctx, e)

	checker := health.NewChecker()
	checker.Register("lexicon", func(ctx context.Context) health.ComponentHealth {
		if e.Lexicon.Size() == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "lexicon is empty"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d words", e.Lexicon.Size())}
	})
	checker.Register("forward_index", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d documents", e.Forward.LineCount())}
	})
	checker.Register("pool", func(ctx context.Context) health.ComponentHealth {
		stats := e.Pool.Stats()
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d completed, %d failed", stats.Completed, stats.Failed)}
	})
	checker.Register("writer", func(ctx context.Context) health.ComponentHealth {
		stats := e.Writer.Stats()
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d indexed across %d batches", stats.Indexed, stats.Batches)}
	})
	if cfg.Redis.Enabled() {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if e.Redis == nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "not connected"}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	handler := httpapi.NewRouter(e, checker, cfg.Server.RequestTimeout)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
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

	slog.Info("document search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("document search service stopped")
}

// runMergeLoop periodically folds the delta index into its owning barrels
// until ctx is cancelled.
func runMergeLoop(ctx context.Context, e *engine.Engine) {
	ticker := time.NewTicker(mergeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.MergeDelta(); err != nil {
				slog.Error("delta merge failed", "error", err)
				continue
			}
			slog.Info("delta merged into barrels")
		}
	}
}
