package implementation

import (
	"context"
	"errors"
	"time"

	"tabkeeper-be/internal/entity"
	"tabkeeper-be/internal/mapper"
	"tabkeeper-be/internal/model"
	"tabkeeper-be/internal/repository/contract"
	"tabkeeper-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// pendingOnly must match the predicate of idx_suggestions_pending_dedup_key
// literally; a bound parameter would not infer the partial index.
var pendingOnly = clause.Where{Exprs: []clause.Expression{
	clause.Expr{SQL: "status = 'pending'"},
}}

type SuggestionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.SuggestionMapper
}

func NewSuggestionRepository(db *gorm.DB) contract.SuggestionRepository {
	return &SuggestionRepositoryImpl{
		db:     db,
		mapper: mapper.NewSuggestionMapper(),
	}
}

func (r *SuggestionRepositoryImpl) query(ctx context.Context, specs ...specification.Specification) *gorm.DB {
	return specification.Apply(r.db.WithContext(ctx).Model(&model.Suggestion{}), specs...)
}

func (r *SuggestionRepositoryImpl) CreateIfAbsent(ctx context.Context, suggestion *entity.Suggestion) (bool, error) {
	m := r.mapper.ToModel(suggestion)

	// dedup_key is unique among pending rows only, so concurrent or retried
	// runs collapse onto one pending row while accepted and rejected rows
	// leave the group free to be proposed again.
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:     []clause.Column{{Name: "dedup_key"}},
			TargetWhere: pendingOnly,
			DoNothing:   true,
		}).
		Create(m)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	*suggestion = *r.mapper.ToEntity(m)
	return true, nil
}

func (r *SuggestionRepositoryImpl) FindById(ctx context.Context, id uuid.UUID) (*entity.Suggestion, error) {
	var m model.Suggestion
	if err := r.query(ctx, specification.ByID{ID: id}).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *SuggestionRepositoryImpl) FindByOwner(ctx context.Context, ownerId uuid.UUID, status *entity.SuggestionStatus) ([]*entity.Suggestion, error) {
	specs := []specification.Specification{specification.ByOwner{OwnerID: ownerId}}
	if status != nil {
		specs = append(specs, specification.ByStatus{Status: string(*status)})
	}
	specs = append(specs, specification.OrderBy{Field: "created_at", Desc: true})

	var models []*model.Suggestion
	if err := r.query(ctx, specs...).Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *SuggestionRepositoryImpl) UpdateStatus(ctx context.Context, id uuid.UUID, ownerId uuid.UUID, from entity.SuggestionStatus, to entity.SuggestionStatus) (bool, error) {
	result := r.query(ctx,
		specification.ByID{ID: id},
		specification.ByOwner{OwnerID: ownerId},
		specification.ByStatus{Status: string(from)},
	).Update("status", string(to))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *SuggestionRepositoryImpl) DeleteRejectedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := specification.Apply(r.db.WithContext(ctx),
		specification.ByStatus{Status: string(entity.SuggestionStatusRejected)},
		specification.CreatedBefore{Cutoff: cutoff},
	).Delete(&model.Suggestion{})
	return result.RowsAffected, result.Error
}

func (r *SuggestionRepositoryImpl) Count(ctx context.Context, ownerId uuid.UUID, suggestionType entity.SuggestionType) (int64, error) {
	var count int64
	err := r.query(ctx,
		specification.ByOwner{OwnerID: ownerId},
		specification.ByType{Type: string(suggestionType)},
	).Count(&count).Error
	return count, err
}
