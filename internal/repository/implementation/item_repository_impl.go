package implementation

import (
	"context"
	"fmt"
	"time"

	"tabkeeper-be/internal/entity"
	"tabkeeper-be/internal/mapper"
	"tabkeeper-be/internal/model"
	"tabkeeper-be/internal/repository/contract"
	"tabkeeper-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ItemRepositoryImpl struct {
	db     *gorm.DB
	kind   entity.ItemKind
	mapper *mapper.ItemMapper
}

func NewItemRepository(db *gorm.DB, kind entity.ItemKind) contract.ItemRepository {
	return &ItemRepositoryImpl{
		db:     db,
		kind:   kind,
		mapper: mapper.NewItemMapper(),
	}
}

func (r *ItemRepositoryImpl) Kind() entity.ItemKind {
	return r.kind
}

func (r *ItemRepositoryImpl) newModel() interface{} {
	if r.kind == entity.ItemKindBookmark {
		return &model.Bookmark{}
	}
	return &model.Tab{}
}

func (r *ItemRepositoryImpl) query(ctx context.Context, specs ...specification.Specification) *gorm.DB {
	return specification.Apply(r.db.WithContext(ctx).Model(r.newModel()), specs...)
}

func (r *ItemRepositoryImpl) findItems(query *gorm.DB) ([]*entity.Item, error) {
	if r.kind == entity.ItemKindBookmark {
		var models []*model.Bookmark
		if err := query.Find(&models).Error; err != nil {
			return nil, err
		}
		return r.mapper.BookmarksToEntities(models), nil
	}

	var models []*model.Tab
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.TabsToEntities(models), nil
}

func (r *ItemRepositoryImpl) Create(ctx context.Context, item *entity.Item) error {
	if err := entity.ValidateEmbedding(item.Embedding); err != nil {
		return err
	}

	if r.kind == entity.ItemKindBookmark {
		m := r.mapper.ToBookmark(item)
		if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
			return err
		}
		*item = *r.mapper.BookmarkToEntity(m)
		return nil
	}

	m := r.mapper.ToTab(item)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*item = *r.mapper.TabToEntity(m)
	return nil
}

func (r *ItemRepositoryImpl) CreateBulk(ctx context.Context, items []*entity.Item) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}

	var result *gorm.DB
	if r.kind == entity.ItemKindBookmark {
		models := make([]*model.Bookmark, len(items))
		for i, item := range items {
			models[i] = r.mapper.ToBookmark(item)
		}
		result = r.db.WithContext(ctx).Clauses(onConflict).Create(&models)
	} else {
		models := make([]*model.Tab, len(items))
		for i, item := range items {
			models[i] = r.mapper.ToTab(item)
		}
		result = r.db.WithContext(ctx).Clauses(onConflict).Create(&models)
	}

	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *ItemRepositoryImpl) FindById(ctx context.Context, id uuid.UUID) (*entity.Item, error) {
	items, err := r.findItems(r.query(ctx, specification.ByID{ID: id}).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

func (r *ItemRepositoryImpl) UpdateAnalysis(ctx context.Context, id uuid.UUID, analysis *entity.ItemAnalysis) error {
	if err := entity.ValidateEmbedding(analysis.Embedding); err != nil {
		return err
	}

	updates := map[string]interface{}{
		"summary":    analysis.Summary,
		"category":   analysis.Category,
		"tags":       pq.StringArray(analysis.Tags),
		"entities":   r.mapper.EntitiesValue(analysis.Entities),
		"updated_at": time.Now(),
	}
	if len(analysis.Embedding) > 0 {
		updates["embedding"] = pgvector.NewVector(analysis.Embedding)
	}

	result := r.query(ctx, specification.ByID{ID: id}).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %s", entity.ErrItemNotFound, r.kind, id)
	}
	return nil
}

func (r *ItemRepositoryImpl) MarkArchived(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.query(ctx, specification.ByID{ID: id}, specification.NotArchived{}).
		Updates(map[string]interface{}{"is_archived": true, "updated_at": time.Now()})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *ItemRepositoryImpl) ListOwnerIds(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.query(ctx).Distinct("owner_id").Order("owner_id").Pluck("owner_id", &ids).Error
	return ids, err
}

func (r *ItemRepositoryImpl) FindDuplicateGroups(ctx context.Context, ownerId uuid.UUID) ([]*entity.DuplicateGroup, error) {
	type row struct {
		Url     string
		ItemIds pq.StringArray `gorm:"type:text[]"`
	}
	var rows []row

	err := r.query(ctx, specification.ByOwner{OwnerID: ownerId}, specification.NotArchived{}).
		Select("url, array_agg(id::text ORDER BY id::text) AS item_ids").
		Group("url").
		Having("COUNT(*) > 1").
		Order("url").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	groups := make([]*entity.DuplicateGroup, 0, len(rows))
	for _, row := range rows {
		ids := make([]uuid.UUID, 0, len(row.ItemIds))
		for _, raw := range row.ItemIds {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("parse item id %q: %w", raw, err)
			}
			ids = append(ids, id)
		}
		groups = append(groups, &entity.DuplicateGroup{Url: row.Url, ItemIds: ids})
	}
	return groups, nil
}

func (r *ItemRepositoryImpl) FindStale(ctx context.Context, ownerId uuid.UUID, cutoff time.Time) ([]*entity.Item, error) {
	return r.findItems(r.query(ctx,
		specification.ByOwner{OwnerID: ownerId},
		specification.NotArchived{},
		specification.ReferencedBefore{Cutoff: cutoff, TrackAccess: r.kind == entity.ItemKindTab},
		specification.OrderBy{Field: "created_at"},
	))
}

func (r *ItemRepositoryImpl) FindEmbedded(ctx context.Context, ownerId uuid.UUID) ([]*entity.Item, error) {
	return r.findItems(r.query(ctx,
		specification.ByOwner{OwnerID: ownerId},
		specification.NotArchived{},
		specification.HasEmbedding{},
		specification.OrderBy{Field: "created_at"},
	))
}

func (r *ItemRepositoryImpl) NearestNeighbors(ctx context.Context, ownerId uuid.UUID, vector []float32, exclude uuid.UUID, limit int) ([]*entity.Neighbor, error) {
	if err := entity.ValidateEmbedding(vector); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	type row struct {
		Id       uuid.UUID
		Distance float64
	}
	var rows []row

	// <-> is L2 distance, served by the HNSW vector_l2_ops index.
	err := r.query(ctx,
		specification.ByOwner{OwnerID: ownerId},
		specification.NotArchived{},
		specification.HasEmbedding{},
		specification.ExcludeID{ID: exclude},
	).
		Select("id, embedding <-> ? AS distance", pgvector.NewVector(vector)).
		Order("distance").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	neighbors := make([]*entity.Neighbor, len(rows))
	for i, row := range rows {
		neighbors[i] = &entity.Neighbor{ItemId: row.Id, Kind: r.kind, Distance: row.Distance}
	}
	return neighbors, nil
}

func (r *ItemRepositoryImpl) FindArchivalCandidates(ctx context.Context, ownerId uuid.UUID, createdBefore time.Time, limit int) ([]*entity.Item, error) {
	return r.findItems(r.query(ctx,
		specification.ByOwner{OwnerID: ownerId},
		specification.NotArchived{},
		specification.CreatedBefore{Cutoff: createdBefore},
		specification.OrderBy{Field: "created_at"},
		specification.Limit{N: limit},
	))
}

func (r *ItemRepositoryImpl) AccessStats(ctx context.Context) (*entity.AccessStats, error) {
	avgExpr := "0"
	if r.kind == entity.ItemKindTab {
		avgExpr = "COALESCE(AVG(access_count), 0)"
	}

	var stats struct {
		TotalItems     int64
		AvgAccessCount float64
		ArchivedCount  int64
	}
	err := r.query(ctx).
		Select(fmt.Sprintf("COUNT(*) AS total_items, %s AS avg_access_count, COUNT(*) FILTER (WHERE is_archived) AS archived_count", avgExpr)).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}

	return &entity.AccessStats{
		Kind:           r.kind,
		TotalItems:     stats.TotalItems,
		AvgAccessCount: stats.AvgAccessCount,
		ArchivedCount:  stats.ArchivedCount,
	}, nil
}
