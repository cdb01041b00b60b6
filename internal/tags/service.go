package tags

import (
	"context"
	defError "errors"
	"fmt"
	"log/slog"
	"sort"

	"gorm.io/gorm"

	"document-archive/internal/document"
	apperrors "document-archive/internal/errors"
)

// ReindexTrigger asks the indexing service to rebuild a document's
// search projection. The trigger fires after the tag transaction has
// committed and is best-effort: its failure never unwinds the mutation.
type ReindexTrigger interface {
	TriggerReindex(ctx context.Context, documentID uint64) error
}

// Service defines the interface for tag business logic
type Service interface {
	GetTags(ctx context.Context, documentID uint64) ([]Tag, error)
	SetTags(ctx context.Context, documentID uint64, rawNames []string) ([]Tag, error)
	AddTag(ctx context.Context, documentID uint64, rawName string) (*Tag, error)
	RemoveTag(ctx context.Context, documentID uint64, rawName string) error
}

// DefaultService implements Service
type DefaultService struct {
	documents document.DocumentRepository
	tags      TagRepository
	reindex   ReindexTrigger
	logger    *slog.Logger
}

// NewService creates a new tag service
func NewService(documents document.DocumentRepository, tags TagRepository, reindex ReindexTrigger, logger *slog.Logger) Service {
	return &DefaultService{
		documents: documents,
		tags:      tags,
		reindex:   reindex,
		logger:    logger.With("component", "tag_service"),
	}
}

// GetTags returns the document's tags sorted by name.
func (s *DefaultService) GetTags(ctx context.Context, documentID uint64) ([]Tag, error) {
	if err := s.requireDocument(ctx, documentID); err != nil {
		return nil, err
	}

	result, err := s.tags.ListForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// SetTags replaces the document's tag set with the normalized,
// order-preserving deduplicated input. Tags come back in the caller's
// requested order.
func (s *DefaultService) SetTags(ctx context.Context, documentID uint64, rawNames []string) ([]Tag, error) {
	if err := s.requireDocument(ctx, documentID); err != nil {
		return nil, err
	}

	desired, err := normalizeList(rawNames)
	if err != nil {
		return nil, err
	}

	result, err := s.tags.ReplaceForDocument(ctx, documentID, desired)
	if err != nil {
		return nil, err
	}

	s.triggerReindex(ctx, documentID)
	return result, nil
}

// AddTag attaches one tag to the document; re-adding an existing tag is
// a no-op.
func (s *DefaultService) AddTag(ctx context.Context, documentID uint64, rawName string) (*Tag, error) {
	if err := s.requireDocument(ctx, documentID); err != nil {
		return nil, err
	}

	count, err := s.tags.CountForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if count >= MaxTagsPerDocument {
		return nil, capacityError()
	}

	name, err := Normalize(rawName)
	if err != nil {
		return nil, err
	}

	tag, err := s.tags.AddToDocument(ctx, documentID, name)
	if err != nil {
		return nil, err
	}

	s.triggerReindex(ctx, documentID)
	return tag, nil
}

// RemoveTag detaches one tag by name. An unknown name is a no-op.
func (s *DefaultService) RemoveTag(ctx context.Context, documentID uint64, rawName string) error {
	if err := s.requireDocument(ctx, documentID); err != nil {
		return err
	}

	name, err := Normalize(rawName)
	if err != nil {
		return err
	}

	known, err := s.tags.RemoveFromDocument(ctx, documentID, name)
	if err != nil {
		return err
	}
	if !known {
		return nil
	}

	s.triggerReindex(ctx, documentID)
	return nil
}

func (s *DefaultService) requireDocument(ctx context.Context, documentID uint64) error {
	_, err := s.documents.FindByID(ctx, documentID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound(err).WithMessage(fmt.Sprintf("Document not found: %d", documentID))
		}
		return err
	}
	return nil
}

func (s *DefaultService) triggerReindex(ctx context.Context, documentID uint64) {
	if err := s.reindex.TriggerReindex(ctx, documentID); err != nil {
		// Search consistency is eventual; a failed trigger only delays it.
		s.logger.Warn("reindex trigger failed", "documentId", documentID, "error", err)
	}
}

func normalizeList(rawNames []string) ([]string, error) {
	seen := make(map[string]struct{}, len(rawNames))
	desired := make([]string, 0, len(rawNames))
	for _, raw := range rawNames {
		name, err := Normalize(raw)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		desired = append(desired, name)
	}
	if len(desired) > MaxTagsPerDocument {
		return nil, capacityError()
	}
	return desired, nil
}

func capacityError() error {
	return apperrors.ErrCapacityExceeded(nil).
		WithMessage(fmt.Sprintf("A document can have at most %d tags", MaxTagsPerDocument))
}
