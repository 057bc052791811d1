package contract

import (
	"context"
	"time"

	"tabkeeper-be/internal/entity"

	"github.com/google/uuid"
)

// ItemRepository is bound to one item kind; tabs and bookmarks share it.
type ItemRepository interface {
	Kind() entity.ItemKind

	Create(ctx context.Context, item *entity.Item) error
	// CreateBulk skips rows whose id already exists and returns how many were inserted.
	CreateBulk(ctx context.Context, items []*entity.Item) (int64, error)
	FindById(ctx context.Context, id uuid.UUID) (*entity.Item, error)
	UpdateAnalysis(ctx context.Context, id uuid.UUID, analysis *entity.ItemAnalysis) error
	// MarkArchived reports false when the item is missing or already archived.
	MarkArchived(ctx context.Context, id uuid.UUID) (bool, error)

	ListOwnerIds(ctx context.Context) ([]uuid.UUID, error)
	FindDuplicateGroups(ctx context.Context, ownerId uuid.UUID) ([]*entity.DuplicateGroup, error)
	// FindStale returns non-archived items whose reference time is before cutoff.
	FindStale(ctx context.Context, ownerId uuid.UUID, cutoff time.Time) ([]*entity.Item, error)
	FindEmbedded(ctx context.Context, ownerId uuid.UUID) ([]*entity.Item, error)
	// NearestNeighbors orders non-archived embedded items of the owner by
	// Euclidean distance to vector, ascending.
	NearestNeighbors(ctx context.Context, ownerId uuid.UUID, vector []float32, exclude uuid.UUID, limit int) ([]*entity.Neighbor, error)
	FindArchivalCandidates(ctx context.Context, ownerId uuid.UUID, createdBefore time.Time, limit int) ([]*entity.Item, error)
	AccessStats(ctx context.Context) (*entity.AccessStats, error)
}
