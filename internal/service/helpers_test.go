package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tabkeeper-be/internal/dto"
	"tabkeeper-be/internal/entity"
	"tabkeeper-be/internal/pkg/logger"
	"tabkeeper-be/internal/repository/memory"
	"tabkeeper-be/internal/repository/unitofwork"
	"tabkeeper-be/pkg/queue"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func daysAgo(n int) time.Time {
	return testNow.Add(-time.Duration(n) * 24 * time.Hour)
}

type fixture struct {
	store   *memory.Store
	factory unitofwork.RepositoryFactory
	engine  *suggestionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	factory := memory.NewRepositoryFactory(store)
	return &fixture{
		store:   store,
		factory: factory,
		engine:  newSuggestionService(factory, logger.NewNopLogger(), DefaultSuggestionConfig(), fixedClock),
	}
}

func (f *fixture) addItem(t *testing.T, item *entity.Item) *entity.Item {
	t.Helper()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = daysAgo(1)
	}
	repo := f.factory.NewUnitOfWork(context.Background()).ItemRepository(item.Kind)
	require.NoError(t, repo.Create(context.Background(), item))
	return item
}

func (f *fixture) item(t *testing.T, kind entity.ItemKind, id uuid.UUID) *entity.Item {
	t.Helper()
	repo := f.factory.NewUnitOfWork(context.Background()).ItemRepository(kind)
	item, err := repo.FindById(context.Background(), id)
	require.NoError(t, err)
	return item
}

func (f *fixture) suggestionsOf(sgType entity.SuggestionType) []*entity.Suggestion {
	var out []*entity.Suggestion
	for _, sg := range f.store.Suggestions() {
		if sg.Type == sgType {
			out = append(out, sg)
		}
	}
	return out
}

// embedding returns a unit vector on axis 0 moved by offset along axis 1,
// so two embeddings built this way are |a-b| apart.
func embedding(offset float32) []float32 {
	v := make([]float32, entity.EmbeddingDimension)
	v[0] = 1
	v[1] = offset
	return v
}

type publishCall struct {
	lane    queue.Lane
	payload interface{}
}

type recordingPublisher struct {
	mu    sync.Mutex
	calls []publishCall
	fail  func(lane queue.Lane, payload interface{}) bool
}

func (p *recordingPublisher) record(lane queue.Lane, payload interface{}) (queue.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil && p.fail(lane, payload) {
		return queue.Handle{}, errors.New("broker unavailable")
	}
	p.calls = append(p.calls, publishCall{lane: lane, payload: payload})
	return queue.Handle{ID: uuid.NewString(), Lane: lane}, nil
}

func (p *recordingPublisher) PublishContentAnalysis(ctx context.Context, job *dto.ContentAnalysisJob) (queue.Handle, error) {
	return p.record(queue.LaneContentAnalysis, job)
}

func (p *recordingPublisher) PublishArchival(ctx context.Context, job *dto.ArchivalJob) (queue.Handle, error) {
	return p.record(queue.LaneArchival, job)
}

func (p *recordingPublisher) PublishSuggestionGeneration(ctx context.Context, ownerId *uuid.UUID) (queue.Handle, error) {
	return p.record(queue.LaneSuggestionGeneration, &dto.SuggestionJob{OwnerId: ownerId})
}

func (p *recordingPublisher) PublishBulkImport(ctx context.Context, job *dto.BulkImportJob) (queue.Handle, error) {
	return p.record(queue.LaneBulkImport, job)
}

func (p *recordingPublisher) byLane(lane queue.Lane) []interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []interface{}
	for _, c := range p.calls {
		if c.lane == lane {
			out = append(out, c.payload)
		}
	}
	return out
}
