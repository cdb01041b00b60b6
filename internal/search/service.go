package search

import (
	"context"
	defError "errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"document-archive/internal/document"
)

// Result is one search result hydrated with the relational record.
type Result struct {
	ID         uint64    `json:"id"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploaded_at"`
	Score      float64   `json:"score"`
}

// Service defines the interface for document search
type Service interface {
	Search(ctx context.Context, query string, tags []string, limit int) ([]Result, error)
}

// DefaultService implements Service
type DefaultService struct {
	index      Index
	repository document.DocumentRepository
	logger     *slog.Logger
}

// NewService creates a new search service
func NewService(index Index, repository document.DocumentRepository, logger *slog.Logger) Service {
	return &DefaultService{
		index:      index,
		repository: repository,
		logger:     logger.With("component", "search_service"),
	}
}

// Search queries the index and hydrates each hit from the relational
// store. Hits whose record is gone are dropped; the index entry is a
// stale projection waiting for cleanup.
func (s *DefaultService) Search(ctx context.Context, query string, tags []string, limit int) ([]Result, error) {
	hits, err := s.index.Search(ctx, query, tags, limit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		doc, err := s.repository.FindByID(ctx, hit.DocumentID)
		if err != nil {
			if defError.Is(err, gorm.ErrRecordNotFound) {
				s.logger.Warn("search hit without document record", "documentId", hit.DocumentID)
				continue
			}
			return nil, err
		}
		results = append(results, Result{
			ID:         doc.ID,
			Filename:   doc.Filename,
			UploadedAt: doc.UploadedAt,
			Score:      hit.Score,
		})
	}
	return results, nil
}
