package contract

import (
	"context"
	"time"

	"tabkeeper-be/internal/entity"

	"github.com/google/uuid"
)

type SuggestionRepository interface {
	// CreateIfAbsent inserts unless a pending row with the same dedup key
	// exists. It reports whether a row was inserted.
	CreateIfAbsent(ctx context.Context, suggestion *entity.Suggestion) (bool, error)
	FindById(ctx context.Context, id uuid.UUID) (*entity.Suggestion, error)
	FindByOwner(ctx context.Context, ownerId uuid.UUID, status *entity.SuggestionStatus) ([]*entity.Suggestion, error)
	// UpdateStatus moves the owner's suggestion from one status to another
	// and reports false when no row matched.
	UpdateStatus(ctx context.Context, id uuid.UUID, ownerId uuid.UUID, from entity.SuggestionStatus, to entity.SuggestionStatus) (bool, error)
	DeleteRejectedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context, ownerId uuid.UUID, suggestionType entity.SuggestionType) (int64, error)
}
