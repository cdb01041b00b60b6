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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"document-archive/internal/broker"
	"document-archive/internal/config"
	"document-archive/internal/db"
	"document-archive/internal/document"
	"document-archive/internal/indexer"
	"document-archive/internal/middleware"
	"document-archive/internal/search"
	"document-archive/internal/storage"
	"document-archive/internal/tags"
)

func main() {
	// Load configuration
	config.LoadConfig()
	cfg := config.AppConfig

	logger := newLogger(cfg.Environment)

	// Connect to database
	db.ConnectDb()
	defer db.CloseDb()

	// Migrate database schema
	db.Migrate()

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

	// Search index
	index, err := search.NewElasticIndex(ctx, cfg.ElasticsearchURL, cfg.SearchIndexName, logger)
	if err != nil {
		log.Fatalf("Search index init failed: %v", err)
	}

	retry := storage.RetryPolicy{MaxAttempts: cfg.StoreMaxAttempts, BaseDelay: cfg.StoreRetryDelay}

	// Initialize repository
	docRepo := document.NewRepository(db.AppDb)
	tagRepo := tags.NewRepository(db.AppDb)
	// Initialize service
	publisher := broker.NewPublisher(redisClient, logger)
	trigger := indexer.NewTrigger(publisher, cfg.ReindexStream, logger)
	indexingService := indexer.NewService(docRepo, tagRepo, store, index, retry, logger)
	tagService := tags.NewService(docRepo, tagRepo, trigger, logger)
	searchService := search.NewService(index, docRepo, logger)
	// Initialize handler
	tagHandler := tags.NewHandler(tagService)
	searchHandler := search.NewHandler(searchService)

	// Initialize Gin router
	router := gin.Default()

	// cors setting
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}
	if cfg.Environment == "development" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{"https://archive.example.com"}
	}
	router.Use(cors.New(corsConfig))
	router.Use(middleware.ErrorHandler())

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Tag routes
	router.GET("/documents/:id/tags", tagHandler.List)
	router.PUT("/documents/:id/tags", tagHandler.Replace)
	router.POST("/documents/:id/tags", tagHandler.Add)
	router.DELETE("/documents/:id/tags/:name", tagHandler.Remove)

	// Search route
	router.GET("/search", searchHandler.Query)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router.Handler(),
	}

	resultConsumer := broker.NewConsumer(redisClient, cfg.OCRResultStream, cfg.IndexerGroup, logger)
	reindexConsumer := broker.NewConsumer(redisClient, cfg.ReindexStream, cfg.IndexerGroup, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return resultConsumer.Run(gctx, indexingService.HandleResultMessage)
	})
	g.Go(func() error {
		return reindexConsumer.Run(gctx, indexingService.HandleReindexMessage)
	})
	g.Go(func() error {
		logger.Info("server listening", "port", cfg.ServerPort)
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
	logger.Info("server shutdown complete")
}

func newLogger(environment string) *slog.Logger {
	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
