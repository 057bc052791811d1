package dto

import (
	"time"

	"github.com/google/uuid"
)

type SuggestionResponse struct {
	Id         uuid.UUID   `json:"id"`
	Type       string      `json:"type"`
	ItemIds    []uuid.UUID `json:"itemIds"`
	Reason     string      `json:"reason"`
	Confidence float64     `json:"confidence"`
	Status     string      `json:"status"`
	CreatedAt  time.Time   `json:"createdAt"`
}

type SuggestionListQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=pending accepted rejected"`
}

type ImportRequest struct {
	Type  string       `json:"type" validate:"required,oneof=tab bookmark"`
	Items []ImportItem `json:"items" validate:"required,min=1,max=1000,dive"`
}

type ArchiveRequest struct {
	Url      string     `json:"url" validate:"required,url"`
	ItemId   *uuid.UUID `json:"itemId,omitempty"`
	ItemType string     `json:"itemType,omitempty" validate:"omitempty,oneof=tab bookmark"`
}
