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
	"tabkeeper-be/internal/pkg/mailer"
	"tabkeeper-be/pkg/queue"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAutomationFixture(t *testing.T) (*fixture, *recordingPublisher, *automationService) {
	f := newFixture(t)
	publisher := &recordingPublisher{}
	svc := newAutomationService(f.factory, f.engine, publisher, logger.NewNopLogger(), DefaultAutomationConfig(), fixedClock)
	return f, publisher, svc
}

func TestCleanupRejectedSuggestions_Retention(t *testing.T) {
	f, _, svc := newAutomationFixture(t)
	owner := uuid.New()
	repo := f.factory.NewUnitOfWork(context.Background()).SuggestionRepository()

	seed := func(status entity.SuggestionStatus, createdAt time.Time) uuid.UUID {
		sg := entity.NewSuggestion(owner, entity.SuggestionTypeStale, []uuid.UUID{uuid.New()}, "Tab not accessed for 45 days", 0.8)
		sg.Status = status
		sg.CreatedAt = createdAt
		created, err := repo.CreateIfAbsent(context.Background(), sg)
		require.NoError(t, err)
		require.True(t, created)
		return sg.Id
	}

	seed(entity.SuggestionStatusRejected, daysAgo(31))
	keptRejected := seed(entity.SuggestionStatusRejected, daysAgo(29))
	keptPending := seed(entity.SuggestionStatusPending, daysAgo(90))
	keptAccepted := seed(entity.SuggestionStatusAccepted, daysAgo(90))

	require.NoError(t, svc.CleanupRejectedSuggestions(context.Background()))

	var remaining []uuid.UUID
	for _, sg := range f.store.Suggestions() {
		remaining = append(remaining, sg.Id)
	}
	assert.ElementsMatch(t, []uuid.UUID{keptRejected, keptPending, keptAccepted}, remaining)
}

func TestArchiveStaleTabs_QueuesOldUnarchivedTabs(t *testing.T) {
	f, publisher, svc := newAutomationFixture(t)
	owner := uuid.New()
	old := f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://old.example", CreatedAt: daysAgo(120)})
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://new.example", CreatedAt: daysAgo(10)})
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://done.example", CreatedAt: daysAgo(120), IsArchived: true})
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindBookmark, Url: "https://bm.example", CreatedAt: daysAgo(400)})

	require.NoError(t, svc.ArchiveStaleTabs(context.Background()))

	jobs := publisher.byLane(queue.LaneArchival)
	require.Len(t, jobs, 1)
	job := jobs[0].(*dto.ArchivalJob)
	assert.Equal(t, "https://old.example", job.Url)
	assert.Equal(t, old.Id, *job.ItemId)
	assert.Equal(t, owner, *job.OwnerId)
	assert.Equal(t, "tab", job.ItemType)
}

func TestArchiveStaleTabs_RespectsBatchSize(t *testing.T) {
	f := newFixture(t)
	publisher := &recordingPublisher{}
	cfg := DefaultAutomationConfig()
	cfg.ArchivalBatchSize = 2
	svc := newAutomationService(f.factory, f.engine, publisher, logger.NewNopLogger(), cfg, fixedClock)

	owner := uuid.New()
	for i := 0; i < 5; i++ {
		f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://old.example", CreatedAt: daysAgo(100 + i)})
	}

	require.NoError(t, svc.ArchiveStaleTabs(context.Background()))
	assert.Len(t, publisher.byLane(queue.LaneArchival), 2)
}

func TestEnqueueSuggestionSweep_OneJobPerOwner(t *testing.T) {
	f, publisher, svc := newAutomationFixture(t)
	failing := uuid.New()
	healthy := uuid.New()
	f.addItem(t, &entity.Item{OwnerId: failing, Kind: entity.ItemKindTab, Url: "https://a.example"})
	f.addItem(t, &entity.Item{OwnerId: healthy, Kind: entity.ItemKindBookmark, Url: "https://b.example"})

	publisher.fail = func(lane queue.Lane, payload interface{}) bool {
		job := payload.(*dto.SuggestionJob)
		return *job.OwnerId == failing
	}

	err := svc.EnqueueSuggestionSweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), failing.String())

	jobs := publisher.byLane(queue.LaneSuggestionGeneration)
	require.Len(t, jobs, 1)
	assert.Equal(t, healthy, *jobs[0].(*dto.SuggestionJob).OwnerId)
}

func TestSweepDuplicateTabs_OnlyTabs(t *testing.T) {
	f, _, svc := newAutomationFixture(t)
	owner := uuid.New()
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://t.example"})
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://t.example"})
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindBookmark, Url: "https://b.example"})
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindBookmark, Url: "https://b.example"})

	require.NoError(t, svc.SweepDuplicateTabs(context.Background()))

	dups := f.suggestionsOf(entity.SuggestionTypeDuplicate)
	require.Len(t, dups, 1)
	assert.Equal(t, "2 tabs with the same URL: https://t.example", dups[0].Reason)
}

func TestCleanupRevokedTokens(t *testing.T) {
	f, _, svc := newAutomationFixture(t)
	f.store.AddRevokedToken("expired", daysAgo(1))
	f.store.AddRevokedToken("active", testNow.Add(time.Hour))

	require.NoError(t, svc.CleanupRevokedTokens(context.Background()))
	assert.Equal(t, 1, f.store.RevokedTokenCount())
}

func TestAutomationTasks_SurfaceStoreErrors(t *testing.T) {
	f, _, svc := newAutomationFixture(t)
	boom := errors.New("relation does not exist")
	f.store.InjectFault("AccessStats", boom)
	f.store.InjectFault("DeleteExpired", boom)
	f.store.InjectFault("DeleteRejectedBefore", boom)

	assert.ErrorIs(t, svc.AggregateAccessStats(context.Background()), boom)
	assert.ErrorIs(t, svc.CleanupRevokedTokens(context.Background()), boom)
	assert.ErrorIs(t, svc.CleanupRejectedSuggestions(context.Background()), boom)
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []mailer.DeadLetterAlert
}

func (r *recordingAlerts) SendDeadLetterAlert(alert mailer.DeadLetterAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return nil
}

func (r *recordingAlerts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func TestDeadLetterSink_PersistsAndAlerts(t *testing.T) {
	f := newFixture(t)
	alerts := &recordingAlerts{}
	sink := NewDeadLetterSink(f.factory, alerts, logger.NewNopLogger())

	err := sink.Save(context.Background(), &queue.DeadLetter{
		Job:       &queue.Job{ID: "job-9", Lane: queue.LaneArchival, Payload: []byte(`{"url":"https://a.example"}`)},
		Err:       errors.New("archiver returned status 502"),
		Attempts:  5,
		Permanent: false,
	})
	require.NoError(t, err)

	letters := f.store.DeadLetters()
	require.Len(t, letters, 1)
	assert.Equal(t, "job-9", letters[0].JobId)
	assert.Equal(t, "archival", letters[0].Lane)
	assert.Equal(t, 5, letters[0].Attempts)

	require.Eventually(t, func() bool { return alerts.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDeadLetterSink_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.InjectFault("CreateDeadLetter", errors.New("disk full"))
	sink := NewDeadLetterSink(f.factory, nil, logger.NewNopLogger())

	err := sink.Save(context.Background(), &queue.DeadLetter{
		Job: &queue.Job{ID: "job-9", Lane: queue.LaneBulkImport},
		Err: errors.New("boom"),
	})
	assert.Error(t, err)
}
