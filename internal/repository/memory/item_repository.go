package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tabkeeper-be/internal/entity"

	"github.com/google/uuid"
)

type itemRepository struct {
	store *Store
	kind  entity.ItemKind
}

func (r *itemRepository) Kind() entity.ItemKind {
	return r.kind
}

func (r *itemRepository) table() map[uuid.UUID]*entity.Item {
	return r.store.items[r.kind]
}

func (r *itemRepository) Create(ctx context.Context, item *entity.Item) error {
	if err := r.store.fault("Create"); err != nil {
		return err
	}
	if err := entity.ValidateEmbedding(item.Embedding); err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if item.Id == uuid.Nil {
		item.Id = uuid.New()
	}
	if _, exists := r.table()[item.Id]; exists {
		return fmt.Errorf("duplicate key value: %s %s", r.kind, item.Id)
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	item.Kind = r.kind
	r.table()[item.Id] = cloneItem(item)
	return nil
}

func (r *itemRepository) CreateBulk(ctx context.Context, items []*entity.Item) (int64, error) {
	if err := r.store.fault("CreateBulk"); err != nil {
		return 0, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var inserted int64
	for _, item := range items {
		if item.Id == uuid.Nil {
			item.Id = uuid.New()
		}
		if _, exists := r.table()[item.Id]; exists {
			continue
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = time.Now()
		}
		item.Kind = r.kind
		r.table()[item.Id] = cloneItem(item)
		inserted++
	}
	return inserted, nil
}

func (r *itemRepository) FindById(ctx context.Context, id uuid.UUID) (*entity.Item, error) {
	if err := r.store.fault("FindById"); err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	item, ok := r.table()[id]
	if !ok {
		return nil, nil
	}
	return cloneItem(item), nil
}

func (r *itemRepository) UpdateAnalysis(ctx context.Context, id uuid.UUID, analysis *entity.ItemAnalysis) error {
	if err := r.store.fault("UpdateAnalysis"); err != nil {
		return err
	}
	if err := entity.ValidateEmbedding(analysis.Embedding); err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	item, ok := r.table()[id]
	if !ok {
		return fmt.Errorf("%w: %s %s", entity.ErrItemNotFound, r.kind, id)
	}
	item.Summary = analysis.Summary
	item.Category = analysis.Category
	item.Tags = append([]string(nil), analysis.Tags...)
	item.Entities = analysis.Entities
	if len(analysis.Embedding) > 0 {
		item.Embedding = append([]float32(nil), analysis.Embedding...)
	}
	now := time.Now()
	item.UpdatedAt = &now
	return nil
}

func (r *itemRepository) MarkArchived(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := r.store.fault("MarkArchived"); err != nil {
		return false, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	item, ok := r.table()[id]
	if !ok || item.IsArchived {
		return false, nil
	}
	item.IsArchived = true
	now := time.Now()
	item.UpdatedAt = &now
	return true, nil
}

func (r *itemRepository) ListOwnerIds(ctx context.Context) ([]uuid.UUID, error) {
	if err := r.store.fault("ListOwnerIds"); err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	seen := map[uuid.UUID]bool{}
	var ids []uuid.UUID
	for _, item := range r.table() {
		if !seen[item.OwnerId] {
			seen[item.OwnerId] = true
			ids = append(ids, item.OwnerId)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// filter returns clones of the kind's items matching pred, oldest first.
func (r *itemRepository) filter(pred func(*entity.Item) bool) []*entity.Item {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*entity.Item
	for _, item := range r.table() {
		if pred(item) {
			out = append(out, cloneItem(item))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Id.String() < out[j].Id.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *itemRepository) FindDuplicateGroups(ctx context.Context, ownerId uuid.UUID) ([]*entity.DuplicateGroup, error) {
	if err := r.store.fault("FindDuplicateGroups"); err != nil {
		return nil, err
	}

	items := r.filter(func(i *entity.Item) bool {
		return i.OwnerId == ownerId && !i.IsArchived
	})

	byUrl := map[string][]uuid.UUID{}
	for _, item := range items {
		byUrl[item.Url] = append(byUrl[item.Url], item.Id)
	}

	var groups []*entity.DuplicateGroup
	for url, ids := range byUrl {
		if len(ids) > 1 {
			groups = append(groups, &entity.DuplicateGroup{Url: url, ItemIds: entity.SortItemIds(ids)})
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Url < groups[j].Url })
	return groups, nil
}

func (r *itemRepository) FindStale(ctx context.Context, ownerId uuid.UUID, cutoff time.Time) ([]*entity.Item, error) {
	if err := r.store.fault("FindStale"); err != nil {
		return nil, err
	}

	trackAccess := r.kind == entity.ItemKindTab
	return r.filter(func(i *entity.Item) bool {
		if i.OwnerId != ownerId || i.IsArchived {
			return false
		}
		reference := i.CreatedAt
		if trackAccess {
			reference = i.ReferenceTime()
		}
		return reference.Before(cutoff)
	}), nil
}

func (r *itemRepository) FindEmbedded(ctx context.Context, ownerId uuid.UUID) ([]*entity.Item, error) {
	if err := r.store.fault("FindEmbedded"); err != nil {
		return nil, err
	}

	return r.filter(func(i *entity.Item) bool {
		return i.OwnerId == ownerId && !i.IsArchived && i.HasEmbedding()
	}), nil
}

func (r *itemRepository) NearestNeighbors(ctx context.Context, ownerId uuid.UUID, vector []float32, exclude uuid.UUID, limit int) ([]*entity.Neighbor, error) {
	if err := r.store.fault("NearestNeighbors"); err != nil {
		return nil, err
	}
	if err := entity.ValidateEmbedding(vector); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	candidates := r.filter(func(i *entity.Item) bool {
		return i.OwnerId == ownerId && !i.IsArchived && i.HasEmbedding() && i.Id != exclude
	})

	neighbors := make([]*entity.Neighbor, 0, len(candidates))
	for _, c := range candidates {
		neighbors = append(neighbors, &entity.Neighbor{
			ItemId:   c.Id,
			Kind:     r.kind,
			Distance: euclidean(vector, c.Embedding),
		})
	}
	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})
	if len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}
	return neighbors, nil
}

func (r *itemRepository) FindArchivalCandidates(ctx context.Context, ownerId uuid.UUID, createdBefore time.Time, limit int) ([]*entity.Item, error) {
	if err := r.store.fault("FindArchivalCandidates"); err != nil {
		return nil, err
	}

	items := r.filter(func(i *entity.Item) bool {
		return i.OwnerId == ownerId && !i.IsArchived && i.CreatedAt.Before(createdBefore)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r *itemRepository) AccessStats(ctx context.Context) (*entity.AccessStats, error) {
	if err := r.store.fault("AccessStats"); err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	stats := &entity.AccessStats{Kind: r.kind}
	var accessSum int64
	for _, item := range r.table() {
		stats.TotalItems++
		accessSum += int64(item.AccessCount)
		if item.IsArchived {
			stats.ArchivedCount++
		}
	}
	if stats.TotalItems > 0 && r.kind == entity.ItemKindTab {
		stats.AvgAccessCount = float64(accessSum) / float64(stats.TotalItems)
	}
	return stats, nil
}
