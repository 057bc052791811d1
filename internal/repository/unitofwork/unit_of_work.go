package unitofwork

import (
	"context"

	"tabkeeper-be/internal/entity"
	"tabkeeper-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ItemRepository(kind entity.ItemKind) contract.ItemRepository
	SuggestionRepository() contract.SuggestionRepository
	RevokedTokenRepository() contract.RevokedTokenRepository
	ArchivedPageRepository() contract.ArchivedPageRepository
	DeadLetterRepository() contract.DeadLetterRepository
}
