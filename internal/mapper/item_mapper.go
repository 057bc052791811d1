package mapper

import (
	"encoding/json"
	"time"

	"tabkeeper-be/internal/entity"
	"tabkeeper-be/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type ItemMapper struct{}

func NewItemMapper() *ItemMapper {
	return &ItemMapper{}
}

func (m *ItemMapper) TabToEntity(t *model.Tab) *entity.Item {
	if t == nil {
		return nil
	}
	item := m.baseToEntity(&t.ItemBase, entity.ItemKindTab)
	item.LastAccessed = t.LastAccessed
	item.AccessCount = t.AccessCount
	return item
}

func (m *ItemMapper) BookmarkToEntity(b *model.Bookmark) *entity.Item {
	if b == nil {
		return nil
	}
	item := m.baseToEntity(&b.ItemBase, entity.ItemKindBookmark)
	item.Folder = b.Folder
	return item
}

func (m *ItemMapper) ToTab(i *entity.Item) *model.Tab {
	if i == nil {
		return nil
	}
	return &model.Tab{
		ItemBase:     m.entityToBase(i),
		LastAccessed: i.LastAccessed,
		AccessCount:  i.AccessCount,
	}
}

func (m *ItemMapper) ToBookmark(i *entity.Item) *model.Bookmark {
	if i == nil {
		return nil
	}
	return &model.Bookmark{
		ItemBase: m.entityToBase(i),
		Folder:   i.Folder,
	}
}

func (m *ItemMapper) TabsToEntities(tabs []*model.Tab) []*entity.Item {
	entities := make([]*entity.Item, len(tabs))
	for i, t := range tabs {
		entities[i] = m.TabToEntity(t)
	}
	return entities
}

func (m *ItemMapper) BookmarksToEntities(bookmarks []*model.Bookmark) []*entity.Item {
	entities := make([]*entity.Item, len(bookmarks))
	for i, b := range bookmarks {
		entities[i] = m.BookmarkToEntity(b)
	}
	return entities
}

// EmbeddingValue converts a slice into the column value, nil when absent.
func (m *ItemMapper) EmbeddingValue(embedding []float32) *pgvector.Vector {
	if len(embedding) == 0 {
		return nil
	}
	v := pgvector.NewVector(embedding)
	return &v
}

// EntitiesValue encodes the entities map for the jsonb column.
func (m *ItemMapper) EntitiesValue(entities map[string]interface{}) datatypes.JSON {
	if len(entities) == 0 {
		return nil
	}
	raw, err := json.Marshal(entities)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func (m *ItemMapper) baseToEntity(b *model.ItemBase, kind entity.ItemKind) *entity.Item {
	var updatedAt *time.Time
	if !b.UpdatedAt.IsZero() {
		t := b.UpdatedAt
		updatedAt = &t
	}

	var embedding []float32
	if b.Embedding != nil {
		embedding = b.Embedding.Slice()
	}

	var entities map[string]interface{}
	if len(b.Entities) > 0 {
		_ = json.Unmarshal(b.Entities, &entities)
	}

	return &entity.Item{
		Id:         b.Id,
		OwnerId:    b.OwnerId,
		Kind:       kind,
		Url:        b.Url,
		Title:      b.Title,
		Favicon:    b.Favicon,
		Content:    b.Content,
		Summary:    b.Summary,
		Category:   b.Category,
		Tags:       []string(b.Tags),
		Entities:   entities,
		Embedding:  embedding,
		IsArchived: b.IsArchived,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  updatedAt,
	}
}

func (m *ItemMapper) entityToBase(i *entity.Item) model.ItemBase {
	var updatedAt time.Time
	if i.UpdatedAt != nil {
		updatedAt = *i.UpdatedAt
	}

	return model.ItemBase{
		Id:         i.Id,
		OwnerId:    i.OwnerId,
		Url:        i.Url,
		Title:      i.Title,
		Favicon:    i.Favicon,
		Content:    i.Content,
		Summary:    i.Summary,
		Category:   i.Category,
		Tags:       i.Tags,
		Entities:   m.EntitiesValue(i.Entities),
		Embedding:  m.EmbeddingValue(i.Embedding),
		IsArchived: i.IsArchived,
		CreatedAt:  i.CreatedAt,
		UpdatedAt:  updatedAt,
	}
}
