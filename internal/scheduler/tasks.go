package scheduler

import (
	"tabkeeper-be/internal/config"
	"tabkeeper-be/internal/service"
)

const (
	TaskSuggestionSweep     = "suggestion-sweep"
	TaskRejectedCleanup     = "rejected-suggestion-cleanup"
	TaskStaleTabArchival    = "stale-tab-archival"
	TaskAccessStats         = "access-stats"
	TaskDuplicateTabSweep   = "duplicate-tab-sweep"
	TaskRevokedTokenCleanup = "revoked-token-cleanup"
)

// AutomationTasks binds the housekeeping service to its schedules.
func AutomationTasks(svc service.IAutomationService, cfg config.SchedulerConfig) []Task {
	return []Task{
		{Name: TaskSuggestionSweep, Spec: cfg.SuggestionSweepSpec, Run: svc.EnqueueSuggestionSweep},
		{Name: TaskRejectedCleanup, Spec: cfg.RejectedCleanupSpec, Run: svc.CleanupRejectedSuggestions},
		{Name: TaskStaleTabArchival, Spec: cfg.StaleArchivalSpec, Run: svc.ArchiveStaleTabs},
		{Name: TaskAccessStats, Spec: cfg.AccessStatsSpec, Run: svc.AggregateAccessStats},
		{Name: TaskDuplicateTabSweep, Spec: cfg.DuplicateSweepSpec, Run: svc.SweepDuplicateTabs},
		{Name: TaskRevokedTokenCleanup, Spec: cfg.RevokedTokenSpec, Run: svc.CleanupRevokedTokens},
	}
}

// RegisterAll registers every task, stopping at the first failure.
func (s *Scheduler) RegisterAll(tasks []Task) error {
	for _, task := range tasks {
		if err := s.Register(task); err != nil {
			return err
		}
	}
	return nil
}
