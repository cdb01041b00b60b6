package broker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestOCRJobMessage_Validate tests the required job fields
func TestOCRJobMessage_Validate(t *testing.T) {
	valid := OCRJobMessage{
		DocumentID: 7,
		Filename:   "scan.pdf",
		StoredPath: "folder/scan.pdf",
		UploadedAt: time.Now().UTC(),
	}
	assert.NoError(t, valid.Validate())

	noID := valid
	noID.DocumentID = 0
	assert.Error(t, noID.Validate())

	noPath := valid
	noPath.StoredPath = ""
	assert.Error(t, noPath.Validate())
}

// TestOCRResultMessage_Validate tests the required result fields
func TestOCRResultMessage_Validate(t *testing.T) {
	valid := OCRResultMessage{DocumentID: 7, TextKey: "folder/scan.pdf.txt"}
	assert.NoError(t, valid.Validate())

	noKey := valid
	noKey.TextKey = ""
	assert.Error(t, noKey.Validate())
}

// TestReindexMessage_Validate tests the reindex target
func TestReindexMessage_Validate(t *testing.T) {
	assert.NoError(t, (&ReindexMessage{DocumentID: 1}).Validate())
	assert.Error(t, (&ReindexMessage{}).Validate())
}

// TestOCRJobMessage_WireFormat tests the field names other services see
func TestOCRJobMessage_WireFormat(t *testing.T) {
	msg := OCRJobMessage{
		DocumentID:  7,
		Filename:    "scan.pdf",
		ContentType: "application/pdf",
		Size:        1024,
		StoredPath:  "folder/scan.pdf",
	}
	data, err := json.Marshal(msg)
	assert.NoError(t, err)

	var decoded map[string]any
	assert.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "documentId")
	assert.Contains(t, decoded, "storedPath")
	assert.Contains(t, decoded, "contentType")
}

// TestDeadLetterStream tests the dead-letter naming convention
func TestDeadLetterStream(t *testing.T) {
	assert.Equal(t, "ocr:jobs:dead", DeadLetterStream("ocr:jobs"))
}
