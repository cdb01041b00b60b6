package tags

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"document-archive/internal/document"
	apperrors "document-archive/internal/errors"
)

// mock implementation of document.DocumentRepository
type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) FindByID(ctx context.Context, id uint64) (*document.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*document.Document), args.Error(1)
}

func (m *MockDocumentRepository) SetOCRResult(ctx context.Context, id uint64, textKey string, processedAt, indexedAt time.Time) error {
	args := m.Called(ctx, id, textKey, processedAt, indexedAt)
	return args.Error(0)
}

func (m *MockDocumentRepository) MarkIndexed(ctx context.Context, id uint64, indexedAt time.Time) error {
	args := m.Called(ctx, id, indexedAt)
	return args.Error(0)
}

// mock implementation of TagRepository
type MockTagRepository struct {
	mock.Mock
}

func (m *MockTagRepository) ListForDocument(ctx context.Context, documentID uint64) ([]Tag, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Tag), args.Error(1)
}

func (m *MockTagRepository) CountForDocument(ctx context.Context, documentID uint64) (int64, error) {
	args := m.Called(ctx, documentID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTagRepository) ReplaceForDocument(ctx context.Context, documentID uint64, names []string) ([]Tag, error) {
	args := m.Called(ctx, documentID, names)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Tag), args.Error(1)
}

func (m *MockTagRepository) AddToDocument(ctx context.Context, documentID uint64, name string) (*Tag, error) {
	args := m.Called(ctx, documentID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tag), args.Error(1)
}

func (m *MockTagRepository) RemoveFromDocument(ctx context.Context, documentID uint64, name string) (bool, error) {
	args := m.Called(ctx, documentID, name)
	return args.Bool(0), args.Error(1)
}

// mock implementation of ReindexTrigger
type MockTrigger struct {
	mock.Mock
}

func (m *MockTrigger) TriggerReindex(ctx context.Context, documentID uint64) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService() (*MockDocumentRepository, *MockTagRepository, *MockTrigger, Service) {
	docs := new(MockDocumentRepository)
	repo := new(MockTagRepository)
	trigger := new(MockTrigger)
	service := NewService(docs, repo, trigger, testLogger())
	return docs, repo, trigger, service
}

func existingDocument(id uint64) *document.Document {
	return &document.Document{ID: id, Filename: "scan.pdf"}
}

// TestSetTags_DeduplicatesAfterNormalization tests that raw names that
// normalize to the same tag collapse into one, in first-seen order
func TestSetTags_DeduplicatesAfterNormalization(t *testing.T) {
	docs, repo, trigger, service := newTestService()

	docs.On("FindByID", mock.Anything, uint64(1)).Return(existingDocument(1), nil)
	repo.On("ReplaceForDocument", mock.Anything, uint64(1), []string{"invoice-2026"}).
		Return([]Tag{{ID: 7, Name: "invoice-2026"}}, nil)
	trigger.On("TriggerReindex", mock.Anything, uint64(1)).Return(nil)

	result, err := service.SetTags(context.Background(), 1, []string{"Invoice 2026", "invoice-2026"})

	assert.NoError(t, err)
	assert.Len(t, result, 1)
	assert.Equal(t, "invoice-2026", result[0].Name)
	repo.AssertExpectations(t)
	trigger.AssertNumberOfCalls(t, "TriggerReindex", 1)
}

// TestSetTags_TooManyTags tests the per-document capacity limit
func TestSetTags_TooManyTags(t *testing.T) {
	docs, repo, _, service := newTestService()

	docs.On("FindByID", mock.Anything, uint64(1)).Return(existingDocument(1), nil)

	rawNames := []string{"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9", "a10"}
	_, err := service.SetTags(context.Background(), 1, rawNames)

	assert.Error(t, err)
	assert.True(t, apperrors.IsCapacityExceeded(err))
	repo.AssertNotCalled(t, "ReplaceForDocument", mock.Anything, mock.Anything, mock.Anything)
}

// TestSetTags_DocumentNotFound tests the missing-document case
func TestSetTags_DocumentNotFound(t *testing.T) {
	docs, _, _, service := newTestService()

	docs.On("FindByID", mock.Anything, uint64(99)).Return(nil, gorm.ErrRecordNotFound)

	_, err := service.SetTags(context.Background(), 99, []string{"invoice"})

	assert.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

// TestSetTags_InvalidName tests that one bad name fails the whole request
func TestSetTags_InvalidName(t *testing.T) {
	docs, repo, trigger, service := newTestService()

	docs.On("FindByID", mock.Anything, uint64(1)).Return(existingDocument(1), nil)

	_, err := service.SetTags(context.Background(), 1, []string{"valid", "   "})

	assert.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	repo.AssertNotCalled(t, "ReplaceForDocument", mock.Anything, mock.Anything, mock.Anything)
	trigger.AssertNotCalled(t, "TriggerReindex", mock.Anything, mock.Anything)
}

// TestSetTags_TriggerFailureDoesNotFailRequest tests that a failed
// reindex trigger never unwinds a committed tag change
func TestSetTags_TriggerFailureDoesNotFailRequest(t *testing.T) {
	docs, repo, trigger, service := newTestService()

	docs.On("FindByID", mock.Anything, uint64(1)).Return(existingDocument(1), nil)
	repo.On("ReplaceForDocument", mock.Anything, uint64(1), []string{"invoice"}).
		Return([]Tag{{ID: 1, Name: "invoice"}}, nil)
	trigger.On("TriggerReindex", mock.Anything, uint64(1)).Return(assert.AnError)

	result, err := service.SetTags(context.Background(), 1, []string{"invoice"})

	assert.NoError(t, err)
	assert.Len(t, result, 1)
}

// TestAddTag_CapacityReached tests that the eleventh tag is rejected
func TestAddTag_CapacityReached(t *testing.T) {
	docs, repo, _, service := newTestService()

	docs.On("FindByID", mock.Anything, uint64(1)).Return(existingDocument(1), nil)
	repo.On("CountForDocument", mock.Anything, uint64(1)).Return(int64(MaxTagsPerDocument), nil)

	_, err := service.AddTag(context.Background(), 1, "one-more")

	assert.Error(t, err)
	assert.True(t, apperrors.IsCapacityExceeded(err))
	repo.AssertNotCalled(t, "AddToDocument", mock.Anything, mock.Anything, mock.Anything)
}

// TestAddTag_Success tests adding a tag and triggering a reindex
func TestAddTag_Success(t *testing.T) {
	docs, repo, trigger, service := newTestService()

	docs.On("FindByID", mock.Anything, uint64(1)).Return(existingDocument(1), nil)
	repo.On("CountForDocument", mock.Anything, uint64(1)).Return(int64(2), nil)
	repo.On("AddToDocument", mock.Anything, uint64(1), "receipt").Return(&Tag{ID: 3, Name: "receipt"}, nil)
	trigger.On("TriggerReindex", mock.Anything, uint64(1)).Return(nil)

	tag, err := service.AddTag(context.Background(), 1, "  Receipt ")

	assert.NoError(t, err)
	assert.Equal(t, "receipt", tag.Name)
	trigger.AssertNumberOfCalls(t, "TriggerReindex", 1)
}

// TestRemoveTag_UnknownName tests that removing an unknown tag is a
// no-op and skips the reindex
func TestRemoveTag_UnknownName(t *testing.T) {
	docs, repo, trigger, service := newTestService()

	docs.On("FindByID", mock.Anything, uint64(1)).Return(existingDocument(1), nil)
	repo.On("RemoveFromDocument", mock.Anything, uint64(1), "ghost").Return(false, nil)

	err := service.RemoveTag(context.Background(), 1, "ghost")

	assert.NoError(t, err)
	trigger.AssertNotCalled(t, "TriggerReindex", mock.Anything, mock.Anything)
}

// TestRemoveTag_KnownName tests that removing an attached tag triggers
// a reindex
func TestRemoveTag_KnownName(t *testing.T) {
	docs, repo, trigger, service := newTestService()

	docs.On("FindByID", mock.Anything, uint64(1)).Return(existingDocument(1), nil)
	repo.On("RemoveFromDocument", mock.Anything, uint64(1), "invoice").Return(true, nil)
	trigger.On("TriggerReindex", mock.Anything, uint64(1)).Return(nil)

	err := service.RemoveTag(context.Background(), 1, "invoice")

	assert.NoError(t, err)
	trigger.AssertNumberOfCalls(t, "TriggerReindex", 1)
}

// TestGetTags_SortedByName tests that listed tags come back sorted
func TestGetTags_SortedByName(t *testing.T) {
	docs, repo, _, service := newTestService()

	docs.On("FindByID", mock.Anything, uint64(1)).Return(existingDocument(1), nil)
	repo.On("ListForDocument", mock.Anything, uint64(1)).
		Return([]Tag{{Name: "zebra"}, {Name: "archive"}, {Name: "invoice"}}, nil)

	result, err := service.GetTags(context.Background(), 1)

	assert.NoError(t, err)
	assert.Equal(t, []string{"archive", "invoice", "zebra"}, []string{result[0].Name, result[1].Name, result[2].Name})
}
