package service

import (
	"context"
	"fmt"

	"tabkeeper-be/internal/dto"
	"tabkeeper-be/pkg/queue"

	"github.com/google/uuid"
)

// JobEnqueuer is the producer side of the dispatcher.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, lane queue.Lane, payload interface{}) (queue.Handle, error)
}

type IPublisherService interface {
	PublishContentAnalysis(ctx context.Context, job *dto.ContentAnalysisJob) (queue.Handle, error)
	PublishArchival(ctx context.Context, job *dto.ArchivalJob) (queue.Handle, error)
	PublishSuggestionGeneration(ctx context.Context, ownerId *uuid.UUID) (queue.Handle, error)
	PublishBulkImport(ctx context.Context, job *dto.BulkImportJob) (queue.Handle, error)
}

type publisherService struct {
	enqueuer JobEnqueuer
}

func NewPublisherService(enqueuer JobEnqueuer) IPublisherService {
	return &publisherService{enqueuer: enqueuer}
}

func (p *publisherService) publish(ctx context.Context, lane queue.Lane, payload interface{}) (queue.Handle, error) {
	if err := validate.Struct(payload); err != nil {
		return queue.Handle{}, fmt.Errorf("invalid %s payload: %w", lane, err)
	}
	return p.enqueuer.Enqueue(ctx, lane, payload)
}

func (p *publisherService) PublishContentAnalysis(ctx context.Context, job *dto.ContentAnalysisJob) (queue.Handle, error) {
	return p.publish(ctx, queue.LaneContentAnalysis, job)
}

func (p *publisherService) PublishArchival(ctx context.Context, job *dto.ArchivalJob) (queue.Handle, error) {
	return p.publish(ctx, queue.LaneArchival, job)
}

func (p *publisherService) PublishSuggestionGeneration(ctx context.Context, ownerId *uuid.UUID) (queue.Handle, error) {
	return p.publish(ctx, queue.LaneSuggestionGeneration, &dto.SuggestionJob{OwnerId: ownerId})
}

func (p *publisherService) PublishBulkImport(ctx context.Context, job *dto.BulkImportJob) (queue.Handle, error) {
	return p.publish(ctx, queue.LaneBulkImport, job)
}
