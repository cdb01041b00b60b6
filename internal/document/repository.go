package document

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// DocumentRepository defines the interface for document data access
type DocumentRepository interface {
	FindByID(ctx context.Context, id uint64) (*Document, error)
	// SetOCRResult records a successful extraction + index pass:
	// text key, processed-at and indexed-at in one update.
	SetOCRResult(ctx context.Context, id uint64, textKey string, processedAt, indexedAt time.Time) error
	// MarkIndexed refreshes only ocr_indexed_at after a projection rebuild.
	MarkIndexed(ctx context.Context, id uint64, indexedAt time.Time) error
}

type DocumentRepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new document repository
func NewRepository(db *gorm.DB) DocumentRepository {
	return &DocumentRepositoryImpl{db: db}
}

func (r *DocumentRepositoryImpl) FindByID(ctx context.Context, id uint64) (*Document, error) {
	var doc Document
	err := r.db.WithContext(ctx).First(&doc, id).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepositoryImpl) SetOCRResult(ctx context.Context, id uint64, textKey string, processedAt, indexedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"ocr_text_key":     textKey,
			"ocr_processed_at": processedAt,
			"ocr_indexed_at":   indexedAt,
		}).Error
}

func (r *DocumentRepositoryImpl) MarkIndexed(ctx context.Context, id uint64, indexedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&Document{}).
		Where("id = ?", id).
		Update("ocr_indexed_at", indexedAt).Error
}
