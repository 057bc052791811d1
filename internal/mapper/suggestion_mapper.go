package mapper

import (
	"tabkeeper-be/internal/dto"
	"tabkeeper-be/internal/entity"
	"tabkeeper-be/internal/model"

	"github.com/google/uuid"
)

type SuggestionMapper struct{}

func NewSuggestionMapper() *SuggestionMapper {
	return &SuggestionMapper{}
}

func (m *SuggestionMapper) ToEntity(s *model.Suggestion) *entity.Suggestion {
	if s == nil {
		return nil
	}

	itemIds := make([]uuid.UUID, 0, len(s.ItemIds))
	for _, raw := range s.ItemIds {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		itemIds = append(itemIds, id)
	}

	return &entity.Suggestion{
		Id:         s.Id,
		OwnerId:    s.OwnerId,
		Type:       entity.SuggestionType(s.Type),
		ItemIds:    itemIds,
		Reason:     s.Reason,
		Confidence: s.Confidence,
		Status:     entity.SuggestionStatus(s.Status),
		DedupKey:   s.DedupKey,
		CreatedAt:  s.CreatedAt,
	}
}

func (m *SuggestionMapper) ToModel(s *entity.Suggestion) *model.Suggestion {
	if s == nil {
		return nil
	}

	itemIds := make([]string, len(s.ItemIds))
	for i, id := range s.ItemIds {
		itemIds[i] = id.String()
	}

	dedupKey := s.DedupKey
	if dedupKey == "" {
		dedupKey = entity.SuggestionKey(s.OwnerId, s.Type, s.ItemIds)
	}

	return &model.Suggestion{
		Id:         s.Id,
		OwnerId:    s.OwnerId,
		Type:       string(s.Type),
		ItemIds:    itemIds,
		Reason:     s.Reason,
		Confidence: s.Confidence,
		Status:     string(s.Status),
		DedupKey:   dedupKey,
		CreatedAt:  s.CreatedAt,
	}
}

func (m *SuggestionMapper) ToEntities(suggestions []*model.Suggestion) []*entity.Suggestion {
	entities := make([]*entity.Suggestion, len(suggestions))
	for i, s := range suggestions {
		entities[i] = m.ToEntity(s)
	}
	return entities
}

func (m *SuggestionMapper) ToResponse(s *entity.Suggestion) dto.SuggestionResponse {
	return dto.SuggestionResponse{
		Id:         s.Id,
		Type:       string(s.Type),
		ItemIds:    s.ItemIds,
		Reason:     s.Reason,
		Confidence: s.Confidence,
		Status:     string(s.Status),
		CreatedAt:  s.CreatedAt,
	}
}

func (m *SuggestionMapper) ToResponses(list []*entity.Suggestion) []dto.SuggestionResponse {
	out := make([]dto.SuggestionResponse, 0, len(list))
	for _, s := range list {
		out = append(out, m.ToResponse(s))
	}
	return out
}
