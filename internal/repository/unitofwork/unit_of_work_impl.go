package unitofwork

import (
	"context"
	"fmt"

	"tabkeeper-be/internal/entity"
	"tabkeeper-be/internal/repository/contract"
	"tabkeeper-be/internal/repository/implementation"

	"gorm.io/gorm"
)

type UnitOfWorkImpl struct {
	db *gorm.DB
	tx *gorm.DB // active transaction, nil outside Begin/Commit
}

func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &UnitOfWorkImpl{
		db: db,
	}
}

func (u *UnitOfWorkImpl) getDB() *gorm.DB {
	if u.tx != nil {
		return u.tx
	}
	return u.db
}

func (u *UnitOfWorkImpl) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}
	tx := u.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	u.tx = tx
	return nil
}

func (u *UnitOfWorkImpl) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}
	err := u.tx.Commit().Error
	u.tx = nil
	return err
}

func (u *UnitOfWorkImpl) Rollback() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to rollback")
	}
	err := u.tx.Rollback().Error
	u.tx = nil
	return err
}

// Repository Accessors

func (u *UnitOfWorkImpl) ItemRepository(kind entity.ItemKind) contract.ItemRepository {
	return implementation.NewItemRepository(u.getDB(), kind)
}

func (u *UnitOfWorkImpl) SuggestionRepository() contract.SuggestionRepository {
	return implementation.NewSuggestionRepository(u.getDB())
}

func (u *UnitOfWorkImpl) RevokedTokenRepository() contract.RevokedTokenRepository {
	return implementation.NewRevokedTokenRepository(u.getDB())
}

func (u *UnitOfWorkImpl) ArchivedPageRepository() contract.ArchivedPageRepository {
	return implementation.NewArchivedPageRepository(u.getDB())
}

func (u *UnitOfWorkImpl) DeadLetterRepository() contract.DeadLetterRepository {
	return implementation.NewDeadLetterRepository(u.getDB())
}
