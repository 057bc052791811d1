package integration

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"tabkeeper-be/internal/entity"
	"tabkeeper-be/internal/model"
	"tabkeeper-be/internal/pkg/logger"
	"tabkeeper-be/internal/repository/unitofwork"
	"tabkeeper-be/internal/service"
	"tabkeeper-be/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func connect(t *testing.T) *gorm.DB {
	t.Helper()

	// Load .env from root
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	gormDB, err := database.NewGormDBFromDSN(dsn, "silent")
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}
	return gormDB
}

func vector(offset float32) []float32 {
	v := make([]float32, entity.EmbeddingDimension)
	v[0] = 1
	v[1] = offset
	return v
}

func TestGormRepositories(t *testing.T) {
	gormDB := connect(t)
	ctx := context.Background()

	owner := uuid.New()
	t.Cleanup(func() {
		gormDB.Where("owner_id = ?", owner).Delete(&model.Tab{})
		gormDB.Where("owner_id = ?", owner).Delete(&model.Bookmark{})
		gormDB.Where("owner_id = ?", owner).Delete(&model.Suggestion{})
	})

	uowFactory := unitofwork.NewRepositoryFactory(gormDB)
	uow := uowFactory.NewUnitOfWork(ctx)
	tabs := uow.ItemRepository(entity.ItemKindTab)
	bookmarks := uow.ItemRepository(entity.ItemKindBookmark)

	old := time.Now().Add(-45 * 24 * time.Hour)
	for _, item := range []*entity.Item{
		{OwnerId: owner, Url: "https://dup.example", Title: "one", Embedding: vector(0)},
		{OwnerId: owner, Url: "https://dup.example", Title: "two", Embedding: vector(0.2)},
		{OwnerId: owner, Url: "https://stale.example", Title: "stale", LastAccessed: &old},
	} {
		require.NoError(t, tabs.Create(ctx, item))
	}
	require.NoError(t, bookmarks.Create(ctx, &entity.Item{OwnerId: owner, Url: "https://bm.example", Embedding: vector(0.1), Folder: "go"}))

	t.Run("Duplicate groups", func(t *testing.T) {
		groups, err := tabs.FindDuplicateGroups(ctx, owner)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Len(t, groups[0].ItemIds, 2)
	})

	t.Run("Stale tabs", func(t *testing.T) {
		stale, err := tabs.FindStale(ctx, owner, time.Now().Add(-30*24*time.Hour))
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, "https://stale.example", stale[0].Url)
	})

	t.Run("Nearest neighbors", func(t *testing.T) {
		neighbors, err := bookmarks.NearestNeighbors(ctx, owner, vector(0), uuid.Nil, 5)
		require.NoError(t, err)
		require.Len(t, neighbors, 1)
		assert.InDelta(t, 0.1, neighbors[0].Distance, 1e-4)
	})

	t.Run("Engine is idempotent", func(t *testing.T) {
		engine := service.NewSuggestionService(uowFactory, logger.NewNopLogger(), service.DefaultSuggestionConfig())

		first := engine.GenerateForOwner(ctx, owner)
		second := engine.GenerateForOwner(ctx, owner)

		assert.False(t, first.Failed())
		assert.Equal(t, 1, first.Duplicate.Created)
		assert.Equal(t, 1, first.Stale.Created)
		assert.Positive(t, first.Related.Created)
		assert.Equal(t, 0, second.Duplicate.Created+second.Stale.Created+second.Related.Created)
	})

	t.Run("Suggestion lifecycle", func(t *testing.T) {
		status := entity.SuggestionStatusPending
		pending, err := uow.SuggestionRepository().FindByOwner(ctx, owner, &status)
		require.NoError(t, err)
		require.NotEmpty(t, pending)

		id := pending[0].Id
		ok, err := uow.SuggestionRepository().UpdateStatus(ctx, id, owner, entity.SuggestionStatusPending, entity.SuggestionStatusRejected)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = uow.SuggestionRepository().UpdateStatus(ctx, id, owner, entity.SuggestionStatusPending, entity.SuggestionStatusAccepted)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Dedup key is scoped to pending rows", func(t *testing.T) {
		repo := uow.SuggestionRepository()
		itemIds := []uuid.UUID{uuid.New()}
		newStale := func() *entity.Suggestion {
			return entity.NewSuggestion(owner, entity.SuggestionTypeStale, itemIds, "Tab not accessed for 40 days", 0.8)
		}

		first := newStale()
		created, err := repo.CreateIfAbsent(ctx, first)
		require.NoError(t, err)
		require.True(t, created)

		created, err = repo.CreateIfAbsent(ctx, newStale())
		require.NoError(t, err)
		assert.False(t, created)

		ok, err := repo.UpdateStatus(ctx, first.Id, owner, entity.SuggestionStatusPending, entity.SuggestionStatusAccepted)
		require.NoError(t, err)
		require.True(t, ok)

		again := newStale()
		created, err = repo.CreateIfAbsent(ctx, again)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, first.Id, again.Id)
	})
}
