package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"tabkeeper-be/internal/entity"
	"tabkeeper-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDuplicates_GroupsByUrl(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	var aIds []uuid.UUID
	for _, url := range []string{"https://a.example", "https://a.example", "https://b.example", "https://a.example", "https://c.example"} {
		tab := f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: url})
		if url == "https://a.example" {
			aIds = append(aIds, tab.Id)
		}
	}

	report := f.engine.DetectDuplicates(context.Background(), owner, entity.ItemKinds...)
	assert.Empty(t, report.Error)
	assert.Equal(t, 1, report.Created)

	dups := f.suggestionsOf(entity.SuggestionTypeDuplicate)
	require.Len(t, dups, 1)
	assert.Equal(t, entity.SortItemIds(aIds), dups[0].ItemIds)
	assert.Equal(t, "3 tabs with the same URL: https://a.example", dups[0].Reason)
	assert.Equal(t, 0.95, dups[0].Confidence)
	assert.Equal(t, entity.SuggestionStatusPending, dups[0].Status)
}

func TestDetectDuplicates_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindBookmark, Url: "https://go.dev"})
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindBookmark, Url: "https://go.dev"})

	first := f.engine.DetectDuplicates(context.Background(), owner, entity.ItemKinds...)
	second := f.engine.DetectDuplicates(context.Background(), owner, entity.ItemKinds...)

	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, f.suggestionsOf(entity.SuggestionTypeDuplicate), 1)
}

func TestDetectDuplicates_IgnoresArchivedAndOtherOwners(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://x.example"})
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://x.example", IsArchived: true})
	f.addItem(t, &entity.Item{OwnerId: uuid.New(), Kind: entity.ItemKindTab, Url: "https://x.example"})
	// Same URL across kinds is not a duplicate.
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindBookmark, Url: "https://x.example"})

	report := f.engine.DetectDuplicates(context.Background(), owner, entity.ItemKinds...)
	assert.Equal(t, 0, report.Created)
	assert.Empty(t, f.store.Suggestions())
}

func TestDetectStale_ThirtyDayBoundary(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	accessed31 := daysAgo(31)
	accessed29 := daysAgo(29)
	old := f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://old.example", CreatedAt: daysAgo(60), LastAccessed: &accessed31})
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://recent.example", CreatedAt: daysAgo(60), LastAccessed: &accessed29})
	never := f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://never.example", CreatedAt: daysAgo(40)})
	// Bookmarks are never stale.
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindBookmark, Url: "https://bm.example", CreatedAt: daysAgo(400)})

	report := f.engine.DetectStale(context.Background(), owner)
	assert.Empty(t, report.Error)
	assert.Equal(t, 2, report.Created)

	reasons := map[uuid.UUID]string{}
	for _, sg := range f.suggestionsOf(entity.SuggestionTypeStale) {
		require.Len(t, sg.ItemIds, 1)
		reasons[sg.ItemIds[0]] = sg.Reason
		assert.Equal(t, 0.8, sg.Confidence)
	}
	assert.Equal(t, map[uuid.UUID]string{
		old.Id:   "Tab not accessed for 31 days",
		never.Id: "Tab not accessed for 40 days",
	}, reasons)
}

func TestDetectStale_ProposesAgainAfterAccept(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	accessed := daysAgo(31)
	tab := f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://old.example", CreatedAt: daysAgo(60), LastAccessed: &accessed})

	first := f.engine.DetectStale(context.Background(), owner)
	require.Equal(t, 1, first.Created)
	stale := f.suggestionsOf(entity.SuggestionTypeStale)
	require.Len(t, stale, 1)

	_, err := f.engine.Accept(context.Background(), owner, stale[0].Id)
	require.NoError(t, err)

	later := newSuggestionService(f.factory, logger.NewNopLogger(), DefaultSuggestionConfig(), func() time.Time {
		return testNow.Add(60 * 24 * time.Hour)
	})
	second := later.DetectStale(context.Background(), owner)
	assert.Equal(t, 1, second.Created)
	assert.Equal(t, 0, second.Skipped)

	third := later.DetectStale(context.Background(), owner)
	assert.Equal(t, 0, third.Created)
	assert.Equal(t, 1, third.Skipped)

	status := entity.SuggestionStatusPending
	pending, err := later.List(context.Background(), owner, &status)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, []uuid.UUID{tab.Id}, pending[0].ItemIds)
	assert.Equal(t, "Tab not accessed for 91 days", pending[0].Reason)
}

func TestDetectDuplicates_RejectedGroupIsProposedAgain(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://a.example"})
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://a.example"})

	f.engine.DetectDuplicates(context.Background(), owner, entity.ItemKindTab)
	dups := f.suggestionsOf(entity.SuggestionTypeDuplicate)
	require.Len(t, dups, 1)
	_, err := f.engine.Reject(context.Background(), owner, dups[0].Id)
	require.NoError(t, err)

	report := f.engine.DetectDuplicates(context.Background(), owner, entity.ItemKindTab)
	assert.Equal(t, 1, report.Created)
	assert.Len(t, f.suggestionsOf(entity.SuggestionTypeDuplicate), 2)
}

func TestDetectRelated_Threshold(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	near := f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://a.example", Embedding: embedding(0)})
	nearTwin := f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindBookmark, Url: "https://b.example", Embedding: embedding(0.25)})

	report := f.engine.DetectRelated(context.Background(), owner)
	assert.Empty(t, report.Error)
	// Each side proposes the same group; the second is folded onto the first.
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Skipped)

	related := f.suggestionsOf(entity.SuggestionTypeRelated)
	require.Len(t, related, 1)
	assert.ElementsMatch(t, []uuid.UUID{near.Id, nearTwin.Id}, related[0].ItemIds)
	assert.Equal(t, "Items with similar content", related[0].Reason)
	assert.Equal(t, 0.7, related[0].Confidence)
}

func TestDetectRelated_AboveThresholdIsIgnored(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://a.example", Embedding: embedding(0)})
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://b.example", Embedding: embedding(0.35)})
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://c.example"})

	report := f.engine.DetectRelated(context.Background(), owner)
	assert.Empty(t, report.Error)
	assert.Equal(t, 0, report.Created)
	assert.Empty(t, f.suggestionsOf(entity.SuggestionTypeRelated))
}

func TestDetectRelated_ListsItemThenNeighborsByDistance(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	self := f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://self.example", Embedding: embedding(0), CreatedAt: daysAgo(3)})
	closest := f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://n1.example", Embedding: embedding(0.1), CreatedAt: daysAgo(2)})
	farther := f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindBookmark, Url: "https://n2.example", Embedding: embedding(0.9)})

	f.engine.DetectRelated(context.Background(), owner)

	var found bool
	for _, sg := range f.suggestionsOf(entity.SuggestionTypeRelated) {
		if sg.ItemIds[0] == self.Id {
			found = true
			assert.Equal(t, []uuid.UUID{self.Id, closest.Id, farther.Id}, sg.ItemIds)
		}
	}
	assert.True(t, found)
}

func TestGenerateForOwner_PassFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://dup.example"})
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://dup.example"})
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://r1.example", Embedding: embedding(0)})
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://r2.example", Embedding: embedding(0.05)})

	f.store.InjectFault("FindStale", errors.New("connection refused"))

	report := f.engine.GenerateForOwner(context.Background(), owner)
	assert.Contains(t, report.Stale.Error, "connection refused")
	assert.Empty(t, report.Duplicate.Error)
	assert.Empty(t, report.Related.Error)
	assert.Equal(t, 1, report.Duplicate.Created)
	assert.Equal(t, 1, report.Related.Created)
	assert.False(t, report.Failed())
}

func TestGenerate_FailsWhenEveryPassFails(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://a.example"})

	boom := errors.New("database is down")
	f.store.InjectFault("FindDuplicateGroups", boom)
	f.store.InjectFault("FindStale", boom)
	f.store.InjectFault("FindEmbedded", boom)

	reports, err := f.engine.Generate(context.Background(), nil)
	require.Error(t, err)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Failed())
}

func TestGenerate_CoversEveryOwner(t *testing.T) {
	f := newFixture(t)
	tabOwner, bookmarkOwner := uuid.New(), uuid.New()
	f.addItem(t, &entity.Item{OwnerId: tabOwner, Kind: entity.ItemKindTab, Url: "https://a.example"})
	f.addItem(t, &entity.Item{OwnerId: bookmarkOwner, Kind: entity.ItemKindBookmark, Url: "https://b.example"})
	f.addItem(t, &entity.Item{OwnerId: bookmarkOwner, Kind: entity.ItemKindBookmark, Url: "https://b.example"})

	reports, err := f.engine.Generate(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	created := map[uuid.UUID]int{}
	for _, r := range reports {
		created[r.OwnerId] = r.Duplicate.Created
	}
	assert.Equal(t, map[uuid.UUID]int{tabOwner: 0, bookmarkOwner: 1}, created)
}

func TestGenerate_OwnerListingFailure(t *testing.T) {
	f := newFixture(t)
	f.store.InjectFault("ListOwnerIds", errors.New("timeout"))

	_, err := f.engine.Generate(context.Background(), nil)
	assert.Error(t, err)
}

func TestAcceptReject(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://a.example"})
	f.addItem(t, &entity.Item{OwnerId: owner, Kind: entity.ItemKindTab, Url: "https://a.example"})
	f.engine.DetectDuplicates(context.Background(), owner, entity.ItemKindTab)

	pending := f.suggestionsOf(entity.SuggestionTypeDuplicate)
	require.Len(t, pending, 1)
	id := pending[0].Id

	_, err := f.engine.Accept(context.Background(), uuid.New(), id)
	assert.ErrorIs(t, err, ErrSuggestionNotFound)

	accepted, err := f.engine.Accept(context.Background(), owner, id)
	require.NoError(t, err)
	assert.Equal(t, entity.SuggestionStatusAccepted, accepted.Status)

	_, err = f.engine.Reject(context.Background(), owner, id)
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)

	status := entity.SuggestionStatusAccepted
	list, err := f.engine.List(context.Background(), owner, &status)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].Id)
}
