package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EmbeddingDimension is the vector size produced by the ML service.
const EmbeddingDimension = 384

var (
	ErrInvalidEmbedding = errors.New("invalid embedding")
	ErrItemNotFound     = errors.New("item not found")
)

type ItemKind string

const (
	ItemKindTab      ItemKind = "tab"
	ItemKindBookmark ItemKind = "bookmark"
)

// ItemKinds lists every stored kind, in scan order.
var ItemKinds = []ItemKind{ItemKindTab, ItemKindBookmark}

func (k ItemKind) Valid() bool {
	return k == ItemKindTab || k == ItemKindBookmark
}

// Item is a captured tab or bookmark. LastAccessed and AccessCount are only
// meaningful for tabs, Folder only for bookmarks.
type Item struct {
	Id         uuid.UUID
	OwnerId    uuid.UUID
	Kind       ItemKind
	Url        string
	Title      string
	Favicon    string
	Content    string
	Summary    string
	Category   string
	Tags       []string
	Entities   map[string]interface{}
	Embedding  []float32
	IsArchived bool
	CreatedAt  time.Time
	UpdatedAt  *time.Time

	LastAccessed *time.Time
	AccessCount  int

	Folder string
}

// ReferenceTime is the instant staleness is measured from.
func (i *Item) ReferenceTime() time.Time {
	if i.LastAccessed != nil {
		return *i.LastAccessed
	}
	return i.CreatedAt
}

func (i *Item) HasEmbedding() bool {
	return len(i.Embedding) > 0
}

// ItemAnalysis is what the content-analysis job writes back.
type ItemAnalysis struct {
	Summary   string
	Category  string
	Tags      []string
	Entities  map[string]interface{}
	Embedding []float32
}

func ValidateEmbedding(embedding []float32) error {
	if len(embedding) == 0 {
		return nil
	}
	if len(embedding) != EmbeddingDimension {
		return fmt.Errorf("%w: expected %d dimensions, got %d", ErrInvalidEmbedding, EmbeddingDimension, len(embedding))
	}
	return nil
}

// DuplicateGroup is a set of non-archived items of one owner sharing a URL.
type DuplicateGroup struct {
	Url     string
	ItemIds []uuid.UUID
}

// Neighbor is one nearest-neighbor hit with its vector distance.
type Neighbor struct {
	ItemId   uuid.UUID
	Kind     ItemKind
	Distance float64
}

type AccessStats struct {
	Kind           ItemKind
	TotalItems     int64
	AvgAccessCount float64
	ArchivedCount  int64
}
