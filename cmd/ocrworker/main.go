package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"document-archive/internal/broker"
	"document-archive/internal/config"
	"document-archive/internal/ocr"
	"document-archive/internal/storage"
	"document-archive/internal/worker"
)

func main() {
	// Load configuration
	config.LoadConfig()
	cfg := config.AppConfig

	logger := newLogger(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Message channel
	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddress})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Redis not available at %s: %v", cfg.RedisAddress, err)
	}

	// Object store
	store, err := storage.NewMinioStore(ctx, storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		UseSSL:    cfg.MinioUseSSL,
		Bucket:    cfg.MinioBucket,
	}, logger)
	if err != nil {
		log.Fatalf("Object store init failed: %v", err)
	}

	engine := ocr.NewTesseractCLI(cfg.TesseractCmd, cfg.OCRLanguages, cfg.OCRPageSegMode, cfg.OCREngineMode, cfg.OCRDpi, cfg.OCRTimeout, logger)
	renderer := ocr.NewPDFRenderer()
	publisher := broker.NewPublisher(redisClient, logger)

	w := worker.New(store, renderer, engine, publisher, worker.Config{
		MaxPages:     cfg.OCRMaxPages,
		StoreText:    cfg.OCRStoreText,
		ResultStream: cfg.OCRResultStream,
		Retry:        storage.RetryPolicy{MaxAttempts: cfg.StoreMaxAttempts, BaseDelay: cfg.StoreRetryDelay},
	}, logger)

	consumer := broker.NewConsumer(redisClient, cfg.OCRJobStream, cfg.WorkerGroup, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.WorkerMetricsPort),
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("ocr worker consuming", "stream", cfg.OCRJobStream, "group", cfg.WorkerGroup)
		return consumer.Run(gctx, w.HandleMessage)
	})
	g.Go(func() error {
		err := metricsServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Worker exited with error: %v", err)
	}
	logger.Info("worker shutdown complete")
}

func newLogger(environment string) *slog.Logger {
	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
