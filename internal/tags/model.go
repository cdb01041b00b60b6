package tags

import (
	"time"
)

// Tag is one entry of the normalized tag vocabulary.
type Tag struct {
	ID        uint64 `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"uniqueIndex;size:50;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// DocumentTag links a document to a tag. Created and deleted only by
// the tag service.
type DocumentTag struct {
	ID         uint64 `gorm:"primaryKey"`
	DocumentID uint64 `gorm:"uniqueIndex:idx_document_tag;not null"`
	TagID      uint64 `gorm:"uniqueIndex:idx_document_tag;not null"`
	Tag        Tag
	AssignedAt time.Time
}
