package implementation

import (
	"context"
	"time"

	"tabkeeper-be/internal/entity"
	"tabkeeper-be/internal/mapper"
	"tabkeeper-be/internal/model"
	"tabkeeper-be/internal/repository/contract"
	"tabkeeper-be/internal/repository/specification"

	"gorm.io/gorm"
)

type RevokedTokenRepositoryImpl struct {
	db *gorm.DB
}

func NewRevokedTokenRepository(db *gorm.DB) contract.RevokedTokenRepository {
	return &RevokedTokenRepositoryImpl{db: db}
}

func (r *RevokedTokenRepositoryImpl) IsRevoked(ctx context.Context, token string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.RevokedToken{}).
		Where("token = ?", token).
		Count(&count).Error
	return count > 0, err
}

func (r *RevokedTokenRepositoryImpl) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := specification.Apply(r.db.WithContext(ctx), specification.ExpiresBefore{Cutoff: now}).
		Delete(&model.RevokedToken{})
	return result.RowsAffected, result.Error
}

type ArchivedPageRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ArchiveMapper
}

func NewArchivedPageRepository(db *gorm.DB) contract.ArchivedPageRepository {
	return &ArchivedPageRepositoryImpl{db: db, mapper: mapper.NewArchiveMapper()}
}

func (r *ArchivedPageRepositoryImpl) Create(ctx context.Context, page *entity.ArchivedPage) error {
	m := r.mapper.PageToModel(page)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*page = *r.mapper.PageToEntity(m)
	return nil
}

type DeadLetterRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ArchiveMapper
}

func NewDeadLetterRepository(db *gorm.DB) contract.DeadLetterRepository {
	return &DeadLetterRepositoryImpl{db: db, mapper: mapper.NewArchiveMapper()}
}

func (r *DeadLetterRepositoryImpl) Create(ctx context.Context, job *entity.DeadLetterJob) error {
	m := r.mapper.DeadLetterToModel(job)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	job.Id = m.Id
	job.CreatedAt = m.CreatedAt
	return nil
}

func (r *DeadLetterRepositoryImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.DeadLetterJob{}).Count(&count).Error
	return count, err
}
