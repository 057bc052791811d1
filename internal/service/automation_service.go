package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tabkeeper-be/internal/config"
	"tabkeeper-be/internal/dto"
	"tabkeeper-be/internal/entity"
	"tabkeeper-be/internal/pkg/logger"
	"tabkeeper-be/internal/repository/unitofwork"
)

const automationModule = "Automation"

type AutomationConfig struct {
	RejectedRetention    time.Duration
	ArchiveTabsOlderThan time.Duration
	ArchivalBatchSize    int
}

func DefaultAutomationConfig() AutomationConfig {
	return AutomationConfig{
		RejectedRetention:    30 * 24 * time.Hour,
		ArchiveTabsOlderThan: 90 * 24 * time.Hour,
		ArchivalBatchSize:    100,
	}
}

// AutomationConfigFrom picks the housekeeping settings out of the
// suggestion section.
func AutomationConfigFrom(cfg config.SuggestionsConfig) AutomationConfig {
	return AutomationConfig{
		RejectedRetention:    cfg.RejectedRetention,
		ArchiveTabsOlderThan: cfg.ArchiveTabsOlderThan,
		ArchivalBatchSize:    cfg.ArchivalBatchSize,
	}
}

// IAutomationService holds the bodies of the scheduled tasks.
type IAutomationService interface {
	EnqueueSuggestionSweep(ctx context.Context) error
	CleanupRejectedSuggestions(ctx context.Context) error
	ArchiveStaleTabs(ctx context.Context) error
	AggregateAccessStats(ctx context.Context) error
	SweepDuplicateTabs(ctx context.Context) error
	CleanupRevokedTokens(ctx context.Context) error
}

type automationService struct {
	uowFactory  unitofwork.RepositoryFactory
	suggestions ISuggestionService
	publisher   IPublisherService
	logger      logger.ILogger
	cfg         AutomationConfig
	now         func() time.Time
}

func NewAutomationService(
	uowFactory unitofwork.RepositoryFactory,
	suggestions ISuggestionService,
	publisher IPublisherService,
	log logger.ILogger,
	cfg AutomationConfig,
) IAutomationService {
	return newAutomationService(uowFactory, suggestions, publisher, log, cfg, time.Now)
}

func newAutomationService(
	uowFactory unitofwork.RepositoryFactory,
	suggestions ISuggestionService,
	publisher IPublisherService,
	log logger.ILogger,
	cfg AutomationConfig,
	now func() time.Time,
) *automationService {
	def := DefaultAutomationConfig()
	if cfg.RejectedRetention <= 0 {
		cfg.RejectedRetention = def.RejectedRetention
	}
	if cfg.ArchiveTabsOlderThan <= 0 {
		cfg.ArchiveTabsOlderThan = def.ArchiveTabsOlderThan
	}
	if cfg.ArchivalBatchSize <= 0 {
		cfg.ArchivalBatchSize = def.ArchivalBatchSize
	}

	return &automationService{
		uowFactory:  uowFactory,
		suggestions: suggestions,
		publisher:   publisher,
		logger:      log,
		cfg:         cfg,
		now:         now,
	}
}

// EnqueueSuggestionSweep queues one suggestion-generation job per owner so
// owners are processed independently by the workers.
func (a *automationService) EnqueueSuggestionSweep(ctx context.Context) error {
	owners, err := a.suggestions.ListOwners(ctx)
	if err != nil {
		return err
	}

	var errs []error
	queued := 0
	for _, owner := range owners {
		if _, err := a.publisher.PublishSuggestionGeneration(ctx, &owner); err != nil {
			errs = append(errs, fmt.Errorf("owner %s: %w", owner, err))
			continue
		}
		queued++
	}

	a.logger.Info(automationModule, "Suggestion sweep queued", map[string]interface{}{
		"owners": len(owners),
		"queued": queued,
		"failed": len(errs),
	})
	return errors.Join(errs...)
}

func (a *automationService) CleanupRejectedSuggestions(ctx context.Context) error {
	cutoff := a.now().Add(-a.cfg.RejectedRetention)

	uow := a.uowFactory.NewUnitOfWork(ctx)
	deleted, err := uow.SuggestionRepository().DeleteRejectedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete rejected suggestions: %w", err)
	}

	a.logger.Info(automationModule, "Rejected suggestions cleaned up", map[string]interface{}{
		"deleted": deleted,
		"cutoff":  cutoff.Format(time.RFC3339),
	})
	return nil
}

// ArchiveStaleTabs queues archival for each owner's oldest unarchived tabs.
// The worker marks the tab archived once the page is captured.
func (a *automationService) ArchiveStaleTabs(ctx context.Context) error {
	repo := a.uowFactory.NewUnitOfWork(ctx).ItemRepository(entity.ItemKindTab)

	owners, err := repo.ListOwnerIds(ctx)
	if err != nil {
		return fmt.Errorf("list tab owners: %w", err)
	}

	cutoff := a.now().Add(-a.cfg.ArchiveTabsOlderThan)
	var errs []error
	queued := 0
	for _, owner := range owners {
		tabs, err := repo.FindArchivalCandidates(ctx, owner, cutoff, a.cfg.ArchivalBatchSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("owner %s: %w", owner, err))
			continue
		}

		for _, tab := range tabs {
			ownerId := owner
			itemId := tab.Id
			_, err := a.publisher.PublishArchival(ctx, &dto.ArchivalJob{
				Url:      tab.Url,
				ItemId:   &itemId,
				ItemType: string(entity.ItemKindTab),
				OwnerId:  &ownerId,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("tab %s: %w", tab.Id, err))
				continue
			}
			queued++
		}
	}

	a.logger.Info(automationModule, "Stale tab archival queued", map[string]interface{}{
		"owners": len(owners),
		"queued": queued,
		"failed": len(errs),
	})
	return errors.Join(errs...)
}

func (a *automationService) AggregateAccessStats(ctx context.Context) error {
	uow := a.uowFactory.NewUnitOfWork(ctx)

	for _, kind := range entity.ItemKinds {
		stats, err := uow.ItemRepository(kind).AccessStats(ctx)
		if err != nil {
			return fmt.Errorf("%s access stats: %w", kind, err)
		}

		a.logger.Info(automationModule, "Access statistics", map[string]interface{}{
			"kind":             string(stats.Kind),
			"total_items":      stats.TotalItems,
			"avg_access_count": stats.AvgAccessCount,
			"archived_count":   stats.ArchivedCount,
		})
	}
	return nil
}

// SweepDuplicateTabs runs only the tab duplicate pass for every owner.
func (a *automationService) SweepDuplicateTabs(ctx context.Context) error {
	owners, err := a.uowFactory.NewUnitOfWork(ctx).ItemRepository(entity.ItemKindTab).ListOwnerIds(ctx)
	if err != nil {
		return fmt.Errorf("list tab owners: %w", err)
	}

	var errs []error
	created := 0
	for _, owner := range owners {
		report := a.suggestions.DetectDuplicates(ctx, owner, entity.ItemKindTab)
		created += report.Created
		if report.Error != "" {
			errs = append(errs, fmt.Errorf("owner %s: %s", owner, report.Error))
		}
	}

	a.logger.Info(automationModule, "Duplicate tab sweep completed", map[string]interface{}{
		"owners":  len(owners),
		"created": created,
		"failed":  len(errs),
	})
	return errors.Join(errs...)
}

func (a *automationService) CleanupRevokedTokens(ctx context.Context) error {
	uow := a.uowFactory.NewUnitOfWork(ctx)
	deleted, err := uow.RevokedTokenRepository().DeleteExpired(ctx, a.now())
	if err != nil {
		return fmt.Errorf("delete expired revoked tokens: %w", err)
	}

	a.logger.Info(automationModule, "Expired revoked tokens cleaned up", map[string]interface{}{
		"deleted": deleted,
	})
	return nil
}
