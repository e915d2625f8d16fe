// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/imagerelay/imagerelay/internal/api"
	"github.com/imagerelay/imagerelay/internal/api/handlers"
	"github.com/imagerelay/imagerelay/internal/cleanup"
	"github.com/imagerelay/imagerelay/internal/config"
	"github.com/imagerelay/imagerelay/internal/queue"
	"github.com/imagerelay/imagerelay/internal/storage"
	"github.com/imagerelay/imagerelay/internal/syncqueue"
	"github.com/imagerelay/imagerelay/internal/transform"
	"github.com/imagerelay/imagerelay/internal/upload"
	"github.com/imagerelay/imagerelay/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "imagerelay",
		Usage: "chunked upload coordinator with durable S3 relay",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the upload coordinator server",
				Action: serve,
			},
			{
				Name:   "sweep",
				Usage:  "run one orphan sweep pass and exit; do not run beside a live server",
				Action: sweepOnce,
			},
		},
		Action: serve,
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("imagerelay exited with error")
	}
}

func serve(c *cli.Context) error {
	cfg := config.Load()

	logger.SetLevel(cfg.Server.Mode)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	store, err := storage.NewMinioClient(storage.MinioConfig{
		Endpoint:  cfg.Sync.S3Endpoint,
		AccessKey: cfg.Sync.S3AccessKey,
		SecretKey: cfg.Sync.S3SecretKey,
		Bucket:    cfg.Sync.S3Bucket,
		Region:    cfg.Sync.S3Region,
		UseSSL:    cfg.Sync.S3UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	var transformer transform.Transformer
	if cfg.Transform.ServiceURL != "" {
		transformer = transform.NewHTTPTransformer(cfg.Transform.ServiceURL)
	} else {
		transformer = transform.NewPreserveTransformer()
	}

	syncQueue := syncqueue.New(engine, store, syncqueue.Config{
		MaxConcurrent: cfg.Sync.MaxConcurrent,
		MaxRetries:    cfg.Sync.MaxRetries,
		RetryDelay:    cfg.Sync.RetryDelay,
	})

	ledger := cleanup.NewLedger(cfg.Dirs.ChunkDir, cfg.Dirs.OutputDir, cfg.Cleanup.LedgerRetention)
	sweeper := cleanup.NewSweeper(ledger, cfg.Dirs.ChunkDir, cfg.Dirs.ProcessingDir, cfg.Dirs.OutputDir, cleanup.SweeperConfig{
		Interval:         cfg.Cleanup.SweepInterval,
		ChunkMaxAge:      cfg.Cleanup.ChunkMaxAge,
		ProcessingMaxAge: cfg.Cleanup.ProcessingMaxAge,
		OutputMaxAge:     cfg.Cleanup.OutputMaxAge,
	})

	coordinator := upload.NewCoordinator(
		upload.NewRegistry(),
		upload.NewGate(),
		upload.NewCombiner(cfg.Dirs.ChunkDir),
		ledger,
		transformer,
		syncQueue,
		upload.CoordinatorConfig{
			ChunkDir:          cfg.Dirs.ChunkDir,
			ProcessingDir:     cfg.Dirs.ProcessingDir,
			OutputDir:         cfg.Dirs.OutputDir,
			KeyPrefix:         cfg.Sync.KeyPrefix,
			DeleteAfterUpload: cfg.Sync.DeleteAfterUpload,
		},
	)

	router := api.NewRouter(&api.Handlers{
		Upload: handlers.NewUploadHandler(coordinator, cfg.Dirs.ChunkDir, cfg.Transform.DefaultType, cfg.Transform.DefaultQuality),
		Sync:   handlers.NewSyncHandler(syncQueue),
	}, cfg.Server.AllowedOrigins)

	syncQueue.Start(context.Background())
	sweeper.Start()

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error().Err(err).Msg("Server forced to shutdown")
	}

	sweeper.Stop()
	syncQueue.Stop()

	logger.Log.Info().Msg("Server exiting")
	return nil
}

func buildEngine(cfg *config.Config) (queue.Engine, error) {
	if cfg.Sync.Driver != "redis" {
		logger.Log.Warn().Msg("using in-memory sync queue; queued transfers will not survive restart")
		return queue.NewMemoryEngine(), nil
	}

	engine, err := queue.NewRedisEngine(queue.RedisConfig{
		URL:      cfg.Sync.RedisURL,
		Host:     cfg.Sync.RedisHost,
		Port:     cfg.Sync.RedisPort,
		Password: cfg.Sync.RedisPassword,
		DB:       cfg.Sync.RedisDB,
	}, "imagerelay:sync")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis queue: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	recovered, err := engine.Recover(ctx)
	if err != nil {
		return nil, err
	}
	if recovered > 0 {
		logger.Log.Info().Int("recovered", recovered).Msg("requeued transfers stranded by previous run")
	}
	return engine, nil
}

func sweepOnce(c *cli.Context) error {
	cfg := config.Load()
	logger.SetLevel(cfg.Server.Mode)

	// A fresh ledger cannot know which artifacts a running server still has
	// queued for sync, so those would not be protected from this sweep.
	logger.Log.Warn().Msg("standalone sweep does not see a running server's sync queue; stop the server first")

	ledger := cleanup.NewLedger(cfg.Dirs.ChunkDir, cfg.Dirs.OutputDir, cfg.Cleanup.LedgerRetention)
	sweeper := cleanup.NewSweeper(ledger, cfg.Dirs.ChunkDir, cfg.Dirs.ProcessingDir, cfg.Dirs.OutputDir, cleanup.SweeperConfig{
		Interval:         cfg.Cleanup.SweepInterval,
		ChunkMaxAge:      cfg.Cleanup.ChunkMaxAge,
		ProcessingMaxAge: cfg.Cleanup.ProcessingMaxAge,
		OutputMaxAge:     cfg.Cleanup.OutputMaxAge,
	})
	sweeper.Sweep()
	return nil
}
