package document

import (
	"time"
)

// Document is the relational record for an uploaded document. The OCR*
// fields are written only by the indexing service; everything else is
// owned by the upload path.
type Document struct {
	ID             uint64 `gorm:"primaryKey"`
	Filename       string
	ContentType    string
	Size           int64
	UploadedAt     time.Time
	ObjectKey      string
	OcrTextKey     *string
	OcrProcessedAt *time.Time
	OcrIndexedAt   *time.Time
}
