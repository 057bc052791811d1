package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"tabkeeper-be/internal/dto"
	"tabkeeper-be/internal/entity"
	"tabkeeper-be/internal/pkg/logger"
	"tabkeeper-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

const (
	duplicateConfidence = 0.95
	staleConfidence     = 0.8
	relatedConfidence   = 0.7

	relatedReason = "Items with similar content"

	engineModule = "SuggestionEngine"
)

var ErrSuggestionNotFound = errors.New("suggestion not found")

type SuggestionConfig struct {
	StaleAfter       time.Duration
	RelatedThreshold float64
	RelatedNeighbors int
}

func DefaultSuggestionConfig() SuggestionConfig {
	return SuggestionConfig{
		StaleAfter:       30 * 24 * time.Hour,
		RelatedThreshold: 0.3,
		RelatedNeighbors: 5,
	}
}

type ISuggestionService interface {
	// Generate runs every pass for ownerId, or for every owner when nil.
	Generate(ctx context.Context, ownerId *uuid.UUID) ([]*dto.SuggestionRunReport, error)
	GenerateForOwner(ctx context.Context, ownerId uuid.UUID) *dto.SuggestionRunReport
	DetectDuplicates(ctx context.Context, ownerId uuid.UUID, kinds ...entity.ItemKind) dto.PassReport
	DetectStale(ctx context.Context, ownerId uuid.UUID) dto.PassReport
	DetectRelated(ctx context.Context, ownerId uuid.UUID) dto.PassReport
	ListOwners(ctx context.Context) ([]uuid.UUID, error)

	List(ctx context.Context, ownerId uuid.UUID, status *entity.SuggestionStatus) ([]*entity.Suggestion, error)
	Accept(ctx context.Context, ownerId uuid.UUID, id uuid.UUID) (*entity.Suggestion, error)
	Reject(ctx context.Context, ownerId uuid.UUID, id uuid.UUID) (*entity.Suggestion, error)
}

type suggestionService struct {
	uowFactory unitofwork.RepositoryFactory
	logger     logger.ILogger
	cfg        SuggestionConfig
	now        func() time.Time
}

func NewSuggestionService(
	uowFactory unitofwork.RepositoryFactory,
	log logger.ILogger,
	cfg SuggestionConfig,
) ISuggestionService {
	return newSuggestionService(uowFactory, log, cfg, time.Now)
}

func newSuggestionService(
	uowFactory unitofwork.RepositoryFactory,
	log logger.ILogger,
	cfg SuggestionConfig,
	now func() time.Time,
) *suggestionService {
	def := DefaultSuggestionConfig()
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.RelatedThreshold <= 0 {
		cfg.RelatedThreshold = def.RelatedThreshold
	}
	if cfg.RelatedNeighbors <= 0 {
		cfg.RelatedNeighbors = def.RelatedNeighbors
	}

	return &suggestionService{
		uowFactory: uowFactory,
		logger:     log,
		cfg:        cfg,
		now:        now,
	}
}

func (s *suggestionService) ListOwners(ctx context.Context) ([]uuid.UUID, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	seen := make(map[uuid.UUID]bool)
	var owners []uuid.UUID
	for _, kind := range entity.ItemKinds {
		ids, err := uow.ItemRepository(kind).ListOwnerIds(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s owners: %w", kind, err)
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				owners = append(owners, id)
			}
		}
	}
	return owners, nil
}

func (s *suggestionService) Generate(ctx context.Context, ownerId *uuid.UUID) ([]*dto.SuggestionRunReport, error) {
	var owners []uuid.UUID
	if ownerId != nil {
		owners = []uuid.UUID{*ownerId}
	} else {
		var err error
		owners, err = s.ListOwners(ctx)
		if err != nil {
			return nil, err
		}
	}

	reports := make([]*dto.SuggestionRunReport, 0, len(owners))
	var failed []string
	for _, owner := range owners {
		report := s.GenerateForOwner(ctx, owner)
		reports = append(reports, report)
		if report.Failed() {
			failed = append(failed, owner.String())
		}
	}

	if len(failed) > 0 {
		return reports, fmt.Errorf("suggestion generation failed for %d owner(s): %v", len(failed), failed)
	}
	return reports, nil
}

// GenerateForOwner runs the three passes in sequence. A failing pass is
// recorded on the report and does not stop the others.
func (s *suggestionService) GenerateForOwner(ctx context.Context, ownerId uuid.UUID) *dto.SuggestionRunReport {
	report := &dto.SuggestionRunReport{
		OwnerId:   ownerId,
		Duplicate: s.DetectDuplicates(ctx, ownerId, entity.ItemKinds...),
		Stale:     s.DetectStale(ctx, ownerId),
		Related:   s.DetectRelated(ctx, ownerId),
	}

	s.logger.Info(engineModule, "Suggestion generation completed", map[string]interface{}{
		"owner_id":          ownerId.String(),
		"duplicate_created": report.Duplicate.Created,
		"stale_created":     report.Stale.Created,
		"related_created":   report.Related.Created,
		"failed":            report.Failed(),
	})
	return report
}

func (s *suggestionService) passFailed(pass string, ownerId uuid.UUID, report *dto.PassReport, err error) dto.PassReport {
	report.Error = err.Error()
	s.logger.Error(engineModule, fmt.Sprintf("%s detection failed", pass), map[string]interface{}{
		"owner_id": ownerId.String(),
		"created":  report.Created,
		"error":    err.Error(),
	})
	return *report
}

func (s *suggestionService) record(ctx context.Context, report *dto.PassReport, suggestion *entity.Suggestion) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	created, err := uow.SuggestionRepository().CreateIfAbsent(ctx, suggestion)
	if err != nil {
		return fmt.Errorf("save %s suggestion: %w", suggestion.Type, err)
	}
	if created {
		report.Created++
	} else {
		report.Skipped++
	}
	return nil
}

// DetectDuplicates groups the owner's non-archived items of each kind by
// exact URL. Ids are stored sorted so the same group always maps to the
// same row.
func (s *suggestionService) DetectDuplicates(ctx context.Context, ownerId uuid.UUID, kinds ...entity.ItemKind) dto.PassReport {
	var report dto.PassReport
	uow := s.uowFactory.NewUnitOfWork(ctx)

	for _, kind := range kinds {
		groups, err := uow.ItemRepository(kind).FindDuplicateGroups(ctx, ownerId)
		if err != nil {
			return s.passFailed("Duplicate", ownerId, &report, fmt.Errorf("find %s duplicates: %w", kind, err))
		}

		for _, group := range groups {
			suggestion := entity.NewSuggestion(
				ownerId,
				entity.SuggestionTypeDuplicate,
				entity.SortItemIds(group.ItemIds),
				fmt.Sprintf("%d %ss with the same URL: %s", len(group.ItemIds), kind, group.Url),
				duplicateConfidence,
			)
			suggestion.CreatedAt = s.now()
			if err := s.record(ctx, &report, suggestion); err != nil {
				return s.passFailed("Duplicate", ownerId, &report, err)
			}
		}
	}

	return report
}

// DetectStale flags tabs whose last access, or creation when never
// accessed, is more than StaleAfter ago.
func (s *suggestionService) DetectStale(ctx context.Context, ownerId uuid.UUID) dto.PassReport {
	var report dto.PassReport
	uow := s.uowFactory.NewUnitOfWork(ctx)

	now := s.now()
	tabs, err := uow.ItemRepository(entity.ItemKindTab).FindStale(ctx, ownerId, now.Add(-s.cfg.StaleAfter))
	if err != nil {
		return s.passFailed("Stale", ownerId, &report, fmt.Errorf("find stale tabs: %w", err))
	}

	for _, tab := range tabs {
		days := int(now.Sub(tab.ReferenceTime()) / (24 * time.Hour))
		suggestion := entity.NewSuggestion(
			ownerId,
			entity.SuggestionTypeStale,
			[]uuid.UUID{tab.Id},
			fmt.Sprintf("Tab not accessed for %d days", days),
			staleConfidence,
		)
		suggestion.CreatedAt = now
		if err := s.record(ctx, &report, suggestion); err != nil {
			return s.passFailed("Stale", ownerId, &report, err)
		}
	}

	return report
}

// DetectRelated looks up the nearest neighbors of every embedded item
// across both kinds. A group is suggested when the closest neighbor is
// under the threshold; it lists the item first, then its neighbors by
// distance.
func (s *suggestionService) DetectRelated(ctx context.Context, ownerId uuid.UUID) dto.PassReport {
	var report dto.PassReport
	uow := s.uowFactory.NewUnitOfWork(ctx)

	for _, kind := range entity.ItemKinds {
		items, err := uow.ItemRepository(kind).FindEmbedded(ctx, ownerId)
		if err != nil {
			return s.passFailed("Related", ownerId, &report, fmt.Errorf("find embedded %ss: %w", kind, err))
		}

		for _, item := range items {
			if err := entity.ValidateEmbedding(item.Embedding); err != nil {
				s.logger.Warn(engineModule, "Skipping item with malformed embedding", map[string]interface{}{
					"item_id": item.Id.String(),
					"kind":    string(kind),
					"error":   err.Error(),
				})
				continue
			}

			neighbors, err := s.nearestNeighbors(ctx, uow, ownerId, item)
			if err != nil {
				return s.passFailed("Related", ownerId, &report, err)
			}
			if len(neighbors) == 0 || neighbors[0].Distance >= s.cfg.RelatedThreshold {
				continue
			}

			ids := make([]uuid.UUID, 0, len(neighbors)+1)
			ids = append(ids, item.Id)
			for _, n := range neighbors {
				ids = append(ids, n.ItemId)
			}

			suggestion := entity.NewSuggestion(ownerId, entity.SuggestionTypeRelated, ids, relatedReason, relatedConfidence)
			suggestion.CreatedAt = s.now()
			if err := s.record(ctx, &report, suggestion); err != nil {
				return s.passFailed("Related", ownerId, &report, err)
			}
		}
	}

	return report
}

func (s *suggestionService) nearestNeighbors(ctx context.Context, uow unitofwork.UnitOfWork, ownerId uuid.UUID, item *entity.Item) ([]*entity.Neighbor, error) {
	var merged []*entity.Neighbor
	for _, kind := range entity.ItemKinds {
		neighbors, err := uow.ItemRepository(kind).NearestNeighbors(ctx, ownerId, item.Embedding, item.Id, s.cfg.RelatedNeighbors)
		if err != nil {
			return nil, fmt.Errorf("nearest %ss for %s: %w", kind, item.Id, err)
		}
		merged = append(merged, neighbors...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Distance < merged[j].Distance
	})
	if len(merged) > s.cfg.RelatedNeighbors {
		merged = merged[:s.cfg.RelatedNeighbors]
	}
	return merged, nil
}

func (s *suggestionService) List(ctx context.Context, ownerId uuid.UUID, status *entity.SuggestionStatus) ([]*entity.Suggestion, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	return uow.SuggestionRepository().FindByOwner(ctx, ownerId, status)
}

func (s *suggestionService) Accept(ctx context.Context, ownerId uuid.UUID, id uuid.UUID) (*entity.Suggestion, error) {
	return s.transition(ctx, ownerId, id, entity.SuggestionStatusAccepted)
}

func (s *suggestionService) Reject(ctx context.Context, ownerId uuid.UUID, id uuid.UUID) (*entity.Suggestion, error) {
	return s.transition(ctx, ownerId, id, entity.SuggestionStatusRejected)
}

func (s *suggestionService) transition(ctx context.Context, ownerId uuid.UUID, id uuid.UUID, next entity.SuggestionStatus) (*entity.Suggestion, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	repo := uow.SuggestionRepository()

	suggestion, err := repo.FindById(ctx, id)
	if err != nil {
		return nil, err
	}
	if suggestion == nil || suggestion.OwnerId != ownerId {
		return nil, ErrSuggestionNotFound
	}

	current := suggestion.Status
	if err := suggestion.Transition(next); err != nil {
		return nil, err
	}

	// Conditional on the status read above, so a concurrent accept/reject loses cleanly.
	updated, err := repo.UpdateStatus(ctx, id, ownerId, current, next)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, fmt.Errorf("%w: suggestion %s changed concurrently", entity.ErrInvalidTransition, id)
	}

	s.logger.Info(engineModule, "Suggestion status changed", map[string]interface{}{
		"suggestion_id": id.String(),
		"owner_id":      ownerId.String(),
		"status":        string(next),
	})
	return suggestion, nil
}
