package indexer

import (
	"context"
	"encoding/json"
	defError "errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"

	"document-archive/internal/broker"
	"document-archive/internal/document"
	apperrors "document-archive/internal/errors"
	"document-archive/internal/search"
	"document-archive/internal/storage"
	"document-archive/internal/tags"
)

var (
	documentsIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_documents_indexed_total",
		Help: "Search projections rebuilt from OCR results.",
	})
	documentsReindexed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_documents_reindexed_total",
		Help: "Search projections rebuilt after tag changes.",
	})
	indexFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_failures_total",
		Help: "Indexing failures, by stage.",
	}, []string{"stage"})
)

// TagLister is the slice of the tag repository the indexer needs.
type TagLister interface {
	ListForDocument(ctx context.Context, documentID uint64) ([]tags.Tag, error)
}

// Service is the single writer of OCR provenance fields on document
// records and the sole producer of the search projection. A projection
// is always built from a consistent (text, tag-set) pair; it is never
// partially updated.
type Service struct {
	documents document.DocumentRepository
	tags      TagLister
	store     storage.ObjectStore
	index     search.Index
	retry     storage.RetryPolicy
	logger    *slog.Logger
}

func NewService(documents document.DocumentRepository, tagLister TagLister, store storage.ObjectStore, index search.Index, retry storage.RetryPolicy, logger *slog.Logger) *Service {
	return &Service{
		documents: documents,
		tags:      tagLister,
		store:     store,
		index:     index,
		retry:     retry,
		logger:    logger.With("component", "indexing_service"),
	}
}

// HandleResultMessage is the broker handler for OCR results.
func (s *Service) HandleResultMessage(ctx context.Context, payload []byte) error {
	var msg broker.OCRResultMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		indexFailures.WithLabelValues("malformed").Inc()
		return apperrors.Fatal(fmt.Errorf("decode ocr result: %w", err))
	}
	if err := msg.Validate(); err != nil {
		indexFailures.WithLabelValues("malformed").Inc()
		return apperrors.Fatal(err)
	}
	return s.HandleResult(ctx, msg)
}

// HandleResult rebuilds the search projection from the freshly stored
// text and the document's current tags, then records OCR provenance.
// The record is touched only after the projection upsert succeeded.
func (s *Service) HandleResult(ctx context.Context, msg broker.OCRResultMessage) error {
	logger := s.logger.With("documentId", msg.DocumentID, "textKey", msg.TextKey)

	doc, err := s.documents.FindByID(ctx, msg.DocumentID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			// Deleted after the job was dispatched; nothing to index.
			logger.Warn("ocr result for unknown document")
			indexFailures.WithLabelValues("not_found").Inc()
			return apperrors.Fatal(err)
		}
		return err
	}

	projection, err := s.buildProjection(ctx, doc, msg.TextKey)
	if err != nil {
		return err
	}

	if err := s.index.Upsert(ctx, *projection); err != nil {
		// Leave the record untouched: text and index state must never
		// disagree about whether this document has been indexed.
		indexFailures.WithLabelValues("upsert").Inc()
		return err
	}

	processedAt := msg.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}
	indexedAt := time.Now().UTC()
	if indexedAt.Before(processedAt) {
		indexedAt = processedAt
	}
	if err := s.documents.SetOCRResult(ctx, doc.ID, msg.TextKey, processedAt, indexedAt); err != nil {
		indexFailures.WithLabelValues("record").Inc()
		return fmt.Errorf("record ocr provenance for document %d: %w", doc.ID, err)
	}

	logger.Info("indexed document", "tags", len(projection.Tags))
	documentsIndexed.Inc()
	return nil
}

// HandleReindexMessage is the broker handler for reindex requests.
func (s *Service) HandleReindexMessage(ctx context.Context, payload []byte) error {
	var msg broker.ReindexMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		indexFailures.WithLabelValues("malformed").Inc()
		return apperrors.Fatal(fmt.Errorf("decode reindex message: %w", err))
	}
	if err := msg.Validate(); err != nil {
		indexFailures.WithLabelValues("malformed").Inc()
		return apperrors.Fatal(err)
	}
	return s.Reindex(ctx, msg.DocumentID)
}

// Reindex rebuilds the projection from stored text and current tags.
// No OCR runs again; only ocr_indexed_at is refreshed. A document
// without extracted text has no projection to rebuild.
func (s *Service) Reindex(ctx context.Context, documentID uint64) error {
	logger := s.logger.With("documentId", documentID)

	doc, err := s.documents.FindByID(ctx, documentID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			// Record is gone; drop the stale projection as well.
			logger.Warn("reindex for unknown document, removing projection")
			if derr := s.index.Delete(ctx, documentID); derr != nil {
				logger.Warn("stale projection delete failed", "error", derr)
			}
			return nil
		}
		return err
	}

	if doc.OcrTextKey == nil || *doc.OcrTextKey == "" {
		return nil
	}

	projection, err := s.buildProjection(ctx, doc, *doc.OcrTextKey)
	if err != nil {
		return err
	}

	if err := s.index.Upsert(ctx, *projection); err != nil {
		indexFailures.WithLabelValues("upsert").Inc()
		return err
	}

	if err := s.documents.MarkIndexed(ctx, doc.ID, time.Now().UTC()); err != nil {
		indexFailures.WithLabelValues("record").Inc()
		return fmt.Errorf("refresh indexed-at for document %d: %w", doc.ID, err)
	}

	logger.Info("re-indexed document", "tags", len(projection.Tags))
	documentsReindexed.Inc()
	return nil
}

func (s *Service) buildProjection(ctx context.Context, doc *document.Document, textKey string) (*search.IndexedDocument, error) {
	text, err := storage.FetchWithRetry(ctx, s.store, textKey, s.retry, s.logger)
	if err != nil {
		indexFailures.WithLabelValues("fetch").Inc()
		if defError.Is(err, storage.ErrObjectNotFound) {
			return nil, apperrors.Fatal(fmt.Errorf("text blob %q missing for document %d: %w", textKey, doc.ID, err))
		}
		return nil, err
	}

	names, err := s.loadTagNames(ctx, doc.ID)
	if err != nil {
		indexFailures.WithLabelValues("tags").Inc()
		return nil, err
	}

	return &search.IndexedDocument{
		ID:         doc.ID,
		Filename:   doc.Filename,
		UploadedAt: doc.UploadedAt,
		Content:    string(text),
		Tags:       names,
	}, nil
}

// loadTagNames returns the current tag names sorted lexicographically;
// deterministic ordering keeps rebuilds idempotent.
func (s *Service) loadTagNames(ctx context.Context, documentID uint64) ([]string, error) {
	current, err := s.tags.ListForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(current))
	for _, t := range current {
		if t.Name != "" {
			names = append(names, t.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}
