package search

import (
	"context"
	"time"
)

// IndexedDocument is the search projection of a document. It has no
// independent lifecycle: it is always rebuilt whole from the document
// record, the stored text blob and the current tag set.
type IndexedDocument struct {
	ID         uint64    `json:"id"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploadedAt"`
	Content    string    `json:"content"`
	Tags       []string  `json:"tags"`
}

// Hit is one search match.
type Hit struct {
	DocumentID uint64
	Score      float64
}

// Index is the contract the pipeline needs from the search backend.
type Index interface {
	Upsert(ctx context.Context, doc IndexedDocument) error
	Delete(ctx context.Context, id uint64) error
	Search(ctx context.Context, query string, tags []string, limit int) ([]Hit, error)
}
