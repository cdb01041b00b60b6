package tags

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// TagRepository defines the interface for tag data access. Mutating
// operations run in a single transaction each; concurrent tag changes on
// one document are serialized by the store's transaction discipline.
type TagRepository interface {
	ListForDocument(ctx context.Context, documentID uint64) ([]Tag, error)
	CountForDocument(ctx context.Context, documentID uint64) (int64, error)
	// ReplaceForDocument makes the document's association set equal to
	// names, creating unknown tags. Returns the tags in the order of names.
	ReplaceForDocument(ctx context.Context, documentID uint64, names []string) ([]Tag, error)
	AddToDocument(ctx context.Context, documentID uint64, name string) (*Tag, error)
	// RemoveFromDocument reports whether the tag name was known at all;
	// removing an unknown tag is not an error.
	RemoveFromDocument(ctx context.Context, documentID uint64, name string) (bool, error)
}

type TagRepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new tag repository
func NewRepository(db *gorm.DB) TagRepository {
	return &TagRepositoryImpl{db: db}
}

func (r *TagRepositoryImpl) ListForDocument(ctx context.Context, documentID uint64) ([]Tag, error) {
	var result []Tag
	err := r.db.WithContext(ctx).
		Joins("JOIN document_tags ON document_tags.tag_id = tags.id").
		Where("document_tags.document_id = ?", documentID).
		Find(&result).Error
	return result, err
}

func (r *TagRepositoryImpl) CountForDocument(ctx context.Context, documentID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&DocumentTag{}).
		Where("document_id = ?", documentID).
		Count(&count).Error
	return count, err
}

func (r *TagRepositoryImpl) ReplaceForDocument(ctx context.Context, documentID uint64, names []string) ([]Tag, error) {
	var result []Tag

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := listLinksWithTags(tx, documentID)
		if err != nil {
			return err
		}
		currentByName := make(map[string]DocumentTag, len(current))
		for _, link := range current {
			currentByName[link.Tag.Name] = link
		}

		result = make([]Tag, 0, len(names))
		for _, name := range names {
			if link, ok := currentByName[name]; ok {
				delete(currentByName, name)
				result = append(result, link.Tag)
				continue
			}

			tag, err := getOrCreateTag(tx, name)
			if err != nil {
				return err
			}
			if err := associate(tx, documentID, tag.ID); err != nil {
				return err
			}
			result = append(result, *tag)
		}

		// whatever is left is no longer desired
		for _, link := range currentByName {
			if err := tx.Delete(&DocumentTag{}, link.ID).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *TagRepositoryImpl) AddToDocument(ctx context.Context, documentID uint64, name string) (*Tag, error) {
	var result *Tag
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tag, err := getOrCreateTag(tx, name)
		if err != nil {
			return err
		}
		if err := associate(tx, documentID, tag.ID); err != nil {
			return err
		}
		result = tag
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *TagRepositoryImpl) RemoveFromDocument(ctx context.Context, documentID uint64, name string) (bool, error) {
	found := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tag Tag
		err := tx.Where("name = ?", name).First(&tag).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return tx.Where("document_id = ? AND tag_id = ?", documentID, tag.ID).
			Delete(&DocumentTag{}).Error
	})
	return found, err
}

func listLinksWithTags(tx *gorm.DB, documentID uint64) ([]DocumentTag, error) {
	var links []DocumentTag
	err := tx.Preload("Tag").Where("document_id = ?", documentID).Find(&links).Error
	return links, err
}

// getOrCreateTag resolves a normalized name to a tag row. A concurrent
// creator losing the insert race is handled by re-fetching once after the
// uniqueness violation, not by pre-checking existence (which itself races).
func getOrCreateTag(tx *gorm.DB, name string) (*Tag, error) {
	var tag Tag
	err := tx.Where("name = ?", name).First(&tag).Error
	if err == nil {
		return &tag, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	tag = Tag{Name: name, CreatedAt: time.Now().UTC()}
	err = tx.Create(&tag).Error
	if err == nil {
		return &tag, nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		var existing Tag
		if ferr := tx.Where("name = ?", name).First(&existing).Error; ferr == nil {
			return &existing, nil
		}
		return nil, err
	}
	return nil, err
}

func associate(tx *gorm.DB, documentID, tagID uint64) error {
	var link DocumentTag
	err := tx.Where("document_id = ? AND tag_id = ?", documentID, tagID).First(&link).Error
	if err == nil {
		return nil // already associated
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	err = tx.Create(&DocumentTag{
		DocumentID: documentID,
		TagID:      tagID,
		AssignedAt: time.Now().UTC(),
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}
