package contract

import (
	"context"
	"time"

	"tabkeeper-be/internal/entity"
)

type RevokedTokenRepository interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type ArchivedPageRepository interface {
	Create(ctx context.Context, page *entity.ArchivedPage) error
}

type DeadLetterRepository interface {
	Create(ctx context.Context, job *entity.DeadLetterJob) error
	Count(ctx context.Context) (int64, error)
}
