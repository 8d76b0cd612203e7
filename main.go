package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/reelnn/streamvault/config"
	"github.com/reelnn/streamvault/internal/cache"
	"github.com/reelnn/streamvault/internal/catalog"
	"github.com/reelnn/streamvault/internal/enrich"
	"github.com/reelnn/streamvault/internal/httpapi"
	"github.com/reelnn/streamvault/internal/ingest"
	"github.com/reelnn/streamvault/internal/streamer"
	"github.com/reelnn/streamvault/internal/telegram"
	"github.com/reelnn/streamvault/internal/tokens"
	"github.com/reelnn/streamvault/internal/workerpool"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		slog.Info("shutdown signal received")
		cancel()
	}()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		slog.Error("failed to build zap logger", "error", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	store, err := catalog.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		slog.Error("failed to connect to catalog store", "error", err)
		os.Exit(1)
	}

	pool, err := workerpool.Connect(ctx, workerpool.Config{
		APIID:              cfg.APIID,
		APIHash:            cfg.APIHash,
		PrimarySessionPath: cfg.PrimarySession,
		AuxSessionPaths:    cfg.AuxSessionFiles,
	})
	if err != nil {
		slog.Error("failed to connect worker pool", "error", err)
		os.Exit(1)
	}

	str := streamer.New(pool)
	go str.RunCacheCleaner(ctx)

	tgClient := telegram.New(pool, str, telegram.Config{
		LogsChatID: cfg.LogsChatID,
		PostChatID: cfg.PostChatID,
	})

	tokenSvc := tokens.New(tokens.Config{
		Secret:        cfg.SigningSecret,
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
	})

	catalogCache := cache.New(store)
	go catalogCache.Run(ctx)

	metadataProvider := enrich.NewTMDBProvider(cfg.MetadataAPIKey)
	enrichClient, err := enrich.New(metadataProvider)
	if err != nil {
		slog.Error("failed to build enrichment client", "error", err)
		os.Exit(1)
	}

	ingestWorker := ingest.NewWorker(ingest.WorkerConfig{
		Enrich:              enrichClient,
		Store:               store,
		Fetcher:             tgClient,
		Notifier:            tgClient,
		PostUpdatesEnabled:  cfg.PostUpdatesEnabled,
		MergeMovieQualities: cfg.MergeMovieQualities,
		OnUpsert:            func() { catalogCache.Refresh(ctx) },
	})
	queue := ingest.New(ingestWorker)
	// The batch seeder is invoked from the chat command surface, which is an
	// external collaborator per the scope boundary; wiring it here keeps it
	// constructed and ready for that entry point to call Run on.
	_ = ingest.NewSeeder(queue, tgClient)

	apiServer := httpapi.NewServer(httpapi.Config{
		Store:    store,
		Cache:    catalogCache,
		Streamer: str,
		Tokens:   tokenSvc,
		Logger:   zapLogger,
	})

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: apiServer.Router(),
	}

	go func() {
		slog.Info("starting http server", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	if err := queue.Join(shutdownCtx); err != nil {
		slog.Warn("ingestion queue did not drain before shutdown timeout", "error", err)
	}
	pool.Close()
	if err := store.Close(shutdownCtx); err != nil {
		slog.Error("catalog store close error", "error", err)
	}

	slog.Info("server stopped")
}
