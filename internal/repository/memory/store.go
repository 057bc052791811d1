package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"tabkeeper-be/internal/entity"
	"tabkeeper-be/internal/repository/contract"
	"tabkeeper-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

// Store keeps every table in process memory. It backs the local profile
// and hermetic tests, and mirrors the conflict-ignore semantics of the
// postgres repositories.
type Store struct {
	mu             sync.RWMutex
	items          map[entity.ItemKind]map[uuid.UUID]*entity.Item
	suggestions    map[uuid.UUID]*entity.Suggestion
	suggestionKeys map[string]uuid.UUID // dedup key of pending rows only
	revokedTokens  map[string]time.Time
	archivedPages  []*entity.ArchivedPage
	deadLetters    []*entity.DeadLetterJob
	faults         map[string]error
}

func NewStore() *Store {
	return &Store{
		items: map[entity.ItemKind]map[uuid.UUID]*entity.Item{
			entity.ItemKindTab:      {},
			entity.ItemKindBookmark: {},
		},
		suggestions:    map[uuid.UUID]*entity.Suggestion{},
		suggestionKeys: map[string]uuid.UUID{},
		revokedTokens:  map[string]time.Time{},
		faults:         map[string]error{},
	}
}

// InjectFault makes every call to the named operation fail with err until
// cleared with a nil err.
func (s *Store) InjectFault(operation string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, operation)
		return
	}
	s.faults[operation] = err
}

func (s *Store) fault(operation string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.faults[operation]
}

func (s *Store) AddRevokedToken(token string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokedTokens[token] = expiresAt
}

func (s *Store) RevokedTokenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.revokedTokens)
}

// Suggestions returns a snapshot ordered by creation time.
func (s *Store) Suggestions() []*entity.Suggestion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.Suggestion, 0, len(s.suggestions))
	for _, sg := range s.suggestions {
		out = append(out, cloneSuggestion(sg))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) ArchivedPages() []*entity.ArchivedPage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.ArchivedPage, len(s.archivedPages))
	for i, p := range s.archivedPages {
		cp := *p
		out[i] = &cp
	}
	return out
}

func (s *Store) DeadLetters() []*entity.DeadLetterJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.DeadLetterJob, len(s.deadLetters))
	for i, d := range s.deadLetters {
		cp := *d
		out[i] = &cp
	}
	return out
}

func cloneItem(i *entity.Item) *entity.Item {
	cp := *i
	if i.Tags != nil {
		cp.Tags = append([]string(nil), i.Tags...)
	}
	if i.Embedding != nil {
		cp.Embedding = append([]float32(nil), i.Embedding...)
	}
	if i.Entities != nil {
		cp.Entities = make(map[string]interface{}, len(i.Entities))
		for k, v := range i.Entities {
			cp.Entities[k] = v
		}
	}
	return &cp
}

func cloneSuggestion(sg *entity.Suggestion) *entity.Suggestion {
	cp := *sg
	cp.ItemIds = append([]uuid.UUID(nil), sg.ItemIds...)
	return &cp
}

// euclidean matches the pgvector <-> operator.
func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

type repositoryFactory struct {
	store *Store
}

func NewRepositoryFactory(store *Store) unitofwork.RepositoryFactory {
	return &repositoryFactory{store: store}
}

func (f *repositoryFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &unitOfWork{store: f.store}
}

// unitOfWork applies writes immediately; a rolled back transaction keeps
// whatever was written before the failure.
type unitOfWork struct {
	store *Store
	inTx  bool
}

func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.inTx {
		return fmt.Errorf("transaction already started")
	}
	if err := u.store.fault("Begin"); err != nil {
		return err
	}
	u.inTx = true
	return nil
}

func (u *unitOfWork) Commit() error {
	if !u.inTx {
		return fmt.Errorf("no transaction to commit")
	}
	u.inTx = false
	return u.store.fault("Commit")
}

func (u *unitOfWork) Rollback() error {
	if !u.inTx {
		return fmt.Errorf("no transaction to rollback")
	}
	u.inTx = false
	return nil
}

func (u *unitOfWork) ItemRepository(kind entity.ItemKind) contract.ItemRepository {
	return &itemRepository{store: u.store, kind: kind}
}

func (u *unitOfWork) SuggestionRepository() contract.SuggestionRepository {
	return &suggestionRepository{store: u.store}
}

func (u *unitOfWork) RevokedTokenRepository() contract.RevokedTokenRepository {
	return &revokedTokenRepository{store: u.store}
}

func (u *unitOfWork) ArchivedPageRepository() contract.ArchivedPageRepository {
	return &archivedPageRepository{store: u.store}
}

func (u *unitOfWork) DeadLetterRepository() contract.DeadLetterRepository {
	return &deadLetterRepository{store: u.store}
}
