package dto

import (
	"github.com/google/uuid"
)

// ContentAnalysisJob asks a worker to run ML analysis over a stored item.
type ContentAnalysisJob struct {
	ItemId   uuid.UUID `json:"itemId" validate:"required"`
	ItemType string    `json:"itemType" validate:"required,oneof=tab bookmark"`
	Url      string    `json:"url" validate:"required"`
	Content  string    `json:"content"`
}

// ArchivalJob archives a page. ItemId, ItemType and OwnerId are optional
// for ad-hoc archival of a URL that is not stored as an item.
type ArchivalJob struct {
	Url      string     `json:"url" validate:"required,url"`
	ItemId   *uuid.UUID `json:"itemId,omitempty"`
	ItemType string     `json:"itemType,omitempty" validate:"omitempty,oneof=tab bookmark"`
	OwnerId  *uuid.UUID `json:"ownerId,omitempty"`
}

// SuggestionJob runs the suggestion engine for one owner, or for every
// owner when OwnerId is nil.
type SuggestionJob struct {
	OwnerId *uuid.UUID `json:"ownerId,omitempty"`
}

type BulkImportJob struct {
	Items   []ImportItem `json:"items" validate:"required,min=1,dive"`
	OwnerId uuid.UUID    `json:"ownerId" validate:"required"`
	Type    string       `json:"type" validate:"required,oneof=tab bookmark"`
}

type ImportItem struct {
	Url     string   `json:"url" validate:"required"`
	Title   string   `json:"title"`
	Favicon string   `json:"favicon"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
	Folder  string   `json:"folder"`
}
