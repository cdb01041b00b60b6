package broker

import (
	"errors"
	"time"
)

// OCRJobMessage instructs the worker to extract text from one stored
// document. Produced once per upload by the upload path.
type OCRJobMessage struct {
	DocumentID  uint64    `json:"documentId"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	StoredPath  string    `json:"storedPath"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Validate checks the fields without which the job cannot be processed.
func (m *OCRJobMessage) Validate() error {
	if m.DocumentID == 0 {
		return errors.New("ocr job message has no documentId")
	}
	if m.StoredPath == "" {
		return errors.New("ocr job message has no storedPath")
	}
	return nil
}

// OCRResultMessage announces that extracted text is available at TextKey.
type OCRResultMessage struct {
	DocumentID  uint64    `json:"documentId"`
	StoredPath  string    `json:"storedPath"`
	TextKey     string    `json:"textKey"`
	ProcessedAt time.Time `json:"processedAt"`
}

// Validate checks the fields without which the result cannot be indexed.
func (m *OCRResultMessage) Validate() error {
	if m.DocumentID == 0 {
		return errors.New("ocr result message has no documentId")
	}
	if m.TextKey == "" {
		return errors.New("ocr result message has no textKey")
	}
	return nil
}

// ReindexMessage asks the indexing service to rebuild the search
// projection of one document from stored text and current tags.
type ReindexMessage struct {
	DocumentID uint64 `json:"documentId"`
}

// Validate checks that the reindex target is set.
func (m *ReindexMessage) Validate() error {
	if m.DocumentID == 0 {
		return errors.New("reindex message has no documentId")
	}
	return nil
}
