package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"document-archive/internal/broker"
	apperrors "document-archive/internal/errors"
	"document-archive/internal/ocr"
	"document-archive/internal/storage"
)

var (
	jobsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocr_jobs_processed_total",
		Help: "Jobs that finished with stored text and an emitted result.",
	})
	jobsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocr_jobs_skipped_total",
		Help: "Redelivered jobs skipped because the text blob already existed.",
	})
	jobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocr_jobs_failed_total",
		Help: "Jobs that failed, by failure kind.",
	}, []string{"kind"})
	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ocr_job_duration_seconds",
		Help:    "End-to-end OCR processing time per job.",
		Buckets: prometheus.DefBuckets,
	})
)

// Publisher is the slice of the message channel the worker needs.
type Publisher interface {
	Publish(ctx context.Context, stream string, msg any) error
}

type Config struct {
	MaxPages     int
	StoreText    bool
	ResultStream string
	Retry        storage.RetryPolicy
}

// Worker turns stored documents into extracted text. Processing is
// idempotent per stored path and isolates the failure of one document
// from all others.
type Worker struct {
	store    storage.ObjectStore
	renderer ocr.PageRenderer
	engine   ocr.Engine
	pub      Publisher
	cfg      Config
	logger   *slog.Logger
}

func New(store storage.ObjectStore, renderer ocr.PageRenderer, engine ocr.Engine, pub Publisher, cfg Config, logger *slog.Logger) *Worker {
	return &Worker{
		store:    store,
		renderer: renderer,
		engine:   engine,
		pub:      pub,
		cfg:      cfg,
		logger:   logger.With("component", "ocr_worker"),
	}
}

// HandleMessage is the broker handler: decode, validate, process.
func (w *Worker) HandleMessage(ctx context.Context, payload []byte) error {
	var job broker.OCRJobMessage
	if err := json.Unmarshal(payload, &job); err != nil {
		jobsFailed.WithLabelValues("malformed").Inc()
		return apperrors.Fatal(fmt.Errorf("decode ocr job: %w", err))
	}
	if err := job.Validate(); err != nil {
		jobsFailed.WithLabelValues("malformed").Inc()
		return apperrors.Fatal(err)
	}
	return w.Process(ctx, job)
}

// Process extracts text for one job. Every temporary artifact lives in a
// scratch directory released on all exit paths.
func (w *Worker) Process(ctx context.Context, job broker.OCRJobMessage) error {
	logger := w.logger.With("documentId", job.DocumentID, "filename", job.Filename)
	start := time.Now()
	defer func() {
		jobDuration.Observe(time.Since(start).Seconds())
	}()

	textKey := job.StoredPath + ".txt"

	// Idempotency guard: redelivered jobs find the text blob already
	// there and do no recognition work.
	if w.cfg.StoreText {
		exists, err := w.store.Exists(ctx, textKey)
		if err != nil {
			return err
		}
		if exists {
			logger.Info("skip OCR; text already exists", "textKey", textKey)
			jobsSkipped.Inc()
			return w.publishResult(ctx, job, textKey)
		}
	}

	scratchDir, err := os.MkdirTemp("", "ocr_job_")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	data, err := storage.FetchWithRetry(ctx, w.store, job.StoredPath, w.cfg.Retry, logger)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			// Upload row exists but the blob does not; no retry fixes that.
			logger.Warn("stored object missing", "storedPath", job.StoredPath)
			jobsFailed.WithLabelValues("not_found").Inc()
			return apperrors.Fatal(err)
		}
		jobsFailed.WithLabelValues("store").Inc()
		return err
	}

	srcPath := filepath.Join(scratchDir, "source"+extensionOf(job.Filename))
	if err := os.WriteFile(srcPath, data, 0o600); err != nil {
		return fmt.Errorf("write source copy: %w", err)
	}

	rasters, err := w.renderPages(ctx, srcPath, job.Filename)
	if err != nil {
		logger.Error("rendering failed", "error", err)
		jobsFailed.WithLabelValues("render").Inc()
		return apperrors.Fatal(err)
	}

	pageTexts := make([]string, 0, len(rasters))
	for i, raster := range rasters {
		text, err := w.engine.Recognize(ctx, raster)
		if err != nil {
			logger.Error("recognition failed", "page", i+1, "error", err)
			jobsFailed.WithLabelValues("recognition").Inc()
			return apperrors.Fatal(fmt.Errorf("recognize page %d of %s: %w", i+1, job.Filename, err))
		}
		pageTexts = append(pageTexts, text)
	}
	text := strings.Join(pageTexts, "\n")
	logger.Info("ocr complete", "pages", len(rasters), "chars", len(text))
	logger.Debug("ocr preview", "text", preview(text))

	// An empty result still gets a blob: the result message points at
	// textKey and the indexer treats a missing blob as fatal.
	if w.cfg.StoreText {
		err := storage.PutWithRetry(ctx, w.store, textKey, []byte(text), "text/plain; charset=utf-8", w.cfg.Retry, logger)
		if err != nil {
			jobsFailed.WithLabelValues("store").Inc()
			return err
		}
		logger.Info("stored ocr text", "textKey", textKey)
	}

	if err := w.publishResult(ctx, job, textKey); err != nil {
		return err
	}
	jobsProcessed.Inc()
	return nil
}

func (w *Worker) renderPages(ctx context.Context, path, filename string) ([]*image.Gray, error) {
	if isPDF(filename) {
		return w.renderer.RenderPDF(ctx, path, w.cfg.MaxPages)
	}
	gray, err := w.renderer.LoadImage(path)
	if err != nil {
		return nil, err
	}
	return []*image.Gray{gray}, nil
}

func (w *Worker) publishResult(ctx context.Context, job broker.OCRJobMessage, textKey string) error {
	msg := broker.OCRResultMessage{
		DocumentID:  job.DocumentID,
		StoredPath:  job.StoredPath,
		TextKey:     textKey,
		ProcessedAt: time.Now().UTC(),
	}
	if err := w.pub.Publish(ctx, w.cfg.ResultStream, msg); err != nil {
		return fmt.Errorf("publish ocr result for document %d: %w", job.DocumentID, err)
	}
	return nil
}

func isPDF(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

func extensionOf(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return ".bin"
	}
	return strings.ToLower(ext)
}

func preview(text string) string {
	const max = 400
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
