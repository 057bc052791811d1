package memory

import (
	"context"
	"time"

	"tabkeeper-be/internal/entity"

	"github.com/google/uuid"
)

type revokedTokenRepository struct {
	store *Store
}

func (r *revokedTokenRepository) IsRevoked(ctx context.Context, token string) (bool, error) {
	if err := r.store.fault("IsRevoked"); err != nil {
		return false, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	_, ok := r.store.revokedTokens[token]
	return ok, nil
}

func (r *revokedTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := r.store.fault("DeleteExpired"); err != nil {
		return 0, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var deleted int64
	for token, expiresAt := range r.store.revokedTokens {
		if expiresAt.Before(now) {
			delete(r.store.revokedTokens, token)
			deleted++
		}
	}
	return deleted, nil
}

type archivedPageRepository struct {
	store *Store
}

func (r *archivedPageRepository) Create(ctx context.Context, page *entity.ArchivedPage) error {
	if err := r.store.fault("CreateArchivedPage"); err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if page.Id == uuid.Nil {
		page.Id = uuid.New()
	}
	if page.CreatedAt.IsZero() {
		page.CreatedAt = time.Now()
	}
	cp := *page
	r.store.archivedPages = append(r.store.archivedPages, &cp)
	return nil
}

type deadLetterRepository struct {
	store *Store
}

func (r *deadLetterRepository) Create(ctx context.Context, job *entity.DeadLetterJob) error {
	if err := r.store.fault("CreateDeadLetter"); err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if job.Id == uuid.Nil {
		job.Id = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	cp := *job
	r.store.deadLetters = append(r.store.deadLetters, &cp)
	return nil
}

func (r *deadLetterRepository) Count(ctx context.Context) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return int64(len(r.store.deadLetters)), nil
}
