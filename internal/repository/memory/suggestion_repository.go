package memory

import (
	"context"
	"sort"
	"time"

	"tabkeeper-be/internal/entity"

	"github.com/google/uuid"
)

type suggestionRepository struct {
	store *Store
}

func (r *suggestionRepository) CreateIfAbsent(ctx context.Context, suggestion *entity.Suggestion) (bool, error) {
	if err := r.store.fault("CreateIfAbsent"); err != nil {
		return false, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if suggestion.DedupKey == "" {
		suggestion.DedupKey = entity.SuggestionKey(suggestion.OwnerId, suggestion.Type, suggestion.ItemIds)
	}
	if _, exists := r.store.suggestionKeys[suggestion.DedupKey]; exists {
		return false, nil
	}
	if suggestion.Id == uuid.Nil {
		suggestion.Id = uuid.New()
	}
	if suggestion.Status == "" {
		suggestion.Status = entity.SuggestionStatusPending
	}
	if suggestion.CreatedAt.IsZero() {
		suggestion.CreatedAt = time.Now()
	}

	r.store.suggestions[suggestion.Id] = cloneSuggestion(suggestion)
	r.store.suggestionKeys[suggestion.DedupKey] = suggestion.Id
	return true, nil
}

func (r *suggestionRepository) FindById(ctx context.Context, id uuid.UUID) (*entity.Suggestion, error) {
	if err := r.store.fault("FindSuggestionById"); err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	sg, ok := r.store.suggestions[id]
	if !ok {
		return nil, nil
	}
	return cloneSuggestion(sg), nil
}

func (r *suggestionRepository) FindByOwner(ctx context.Context, ownerId uuid.UUID, status *entity.SuggestionStatus) ([]*entity.Suggestion, error) {
	if err := r.store.fault("FindByOwner"); err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*entity.Suggestion
	for _, sg := range r.store.suggestions {
		if sg.OwnerId != ownerId {
			continue
		}
		if status != nil && sg.Status != *status {
			continue
		}
		out = append(out, cloneSuggestion(sg))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *suggestionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, ownerId uuid.UUID, from entity.SuggestionStatus, to entity.SuggestionStatus) (bool, error) {
	if err := r.store.fault("UpdateStatus"); err != nil {
		return false, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	sg, ok := r.store.suggestions[id]
	if !ok || sg.OwnerId != ownerId || sg.Status != from {
		return false, nil
	}
	sg.Status = to
	if to != entity.SuggestionStatusPending && r.store.suggestionKeys[sg.DedupKey] == id {
		delete(r.store.suggestionKeys, sg.DedupKey)
	}
	return true, nil
}

func (r *suggestionRepository) DeleteRejectedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := r.store.fault("DeleteRejectedBefore"); err != nil {
		return 0, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var deleted int64
	for id, sg := range r.store.suggestions {
		if sg.Status == entity.SuggestionStatusRejected && sg.CreatedAt.Before(cutoff) {
			delete(r.store.suggestions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *suggestionRepository) Count(ctx context.Context, ownerId uuid.UUID, suggestionType entity.SuggestionType) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var count int64
	for _, sg := range r.store.suggestions {
		if sg.OwnerId == ownerId && sg.Type == suggestionType {
			count++
		}
	}
	return count, nil
}
