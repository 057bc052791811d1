package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"tabkeeper-be/internal/dto"
	"tabkeeper-be/internal/entity"
	"tabkeeper-be/internal/pkg/logger"
	"tabkeeper-be/internal/repository/unitofwork"
	"tabkeeper-be/pkg/archiver"
	"tabkeeper-be/pkg/httpclient"
	"tabkeeper-be/pkg/ml"
	"tabkeeper-be/pkg/queue"

	"github.com/google/uuid"
)

const consumerModule = "Consumer"

type MLAnalyzer interface {
	Analyze(ctx context.Context, text, url string) (*ml.Analysis, error)
}

type PageArchiver interface {
	Archive(ctx context.Context, url string) (*archiver.Result, error)
}

// WorkerRegistry is the consumer side of the dispatcher.
type WorkerRegistry interface {
	RegisterWorker(lane queue.Lane, handler queue.Handler, concurrency int) error
}

type IConsumerService interface {
	Register(registry WorkerRegistry, concurrency map[queue.Lane]int) error
	HandleContentAnalysis(ctx context.Context, job *queue.Job) error
	HandleArchival(ctx context.Context, job *queue.Job) error
	HandleSuggestionGeneration(ctx context.Context, job *queue.Job) error
	HandleBulkImport(ctx context.Context, job *queue.Job) error
}

type consumerService struct {
	uowFactory  unitofwork.RepositoryFactory
	analyzer    MLAnalyzer
	archiver    PageArchiver
	suggestions ISuggestionService
	publisher   IPublisherService
	logger      logger.ILogger
}

func NewConsumerService(
	uowFactory unitofwork.RepositoryFactory,
	analyzer MLAnalyzer,
	pageArchiver PageArchiver,
	suggestions ISuggestionService,
	publisher IPublisherService,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		uowFactory:  uowFactory,
		analyzer:    analyzer,
		archiver:    pageArchiver,
		suggestions: suggestions,
		publisher:   publisher,
		logger:      log,
	}
}

func (cs *consumerService) Register(registry WorkerRegistry, concurrency map[queue.Lane]int) error {
	handlers := map[queue.Lane]queue.Handler{
		queue.LaneContentAnalysis:      cs.HandleContentAnalysis,
		queue.LaneArchival:             cs.HandleArchival,
		queue.LaneSuggestionGeneration: cs.HandleSuggestionGeneration,
		queue.LaneBulkImport:           cs.HandleBulkImport,
	}

	for _, lane := range queue.Lanes {
		if err := registry.RegisterWorker(lane, handlers[lane], concurrency[lane]); err != nil {
			return fmt.Errorf("register %s worker: %w", lane, err)
		}
	}
	return nil
}

// externalError marks 4xx answers from a collaborator as permanent.
func externalError(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	if httpclient.IsClientError(err) {
		return queue.Permanent(wrapped)
	}
	return wrapped
}

func (cs *consumerService) HandleContentAnalysis(ctx context.Context, job *queue.Job) error {
	var payload dto.ContentAnalysisJob
	if err := decodeJob(job, &payload); err != nil {
		return err
	}

	kind := entity.ItemKind(payload.ItemType)
	repo := cs.uowFactory.NewUnitOfWork(ctx).ItemRepository(kind)

	item, err := repo.FindById(ctx, payload.ItemId)
	if err != nil {
		return fmt.Errorf("load %s %s: %w", kind, payload.ItemId, err)
	}
	if item == nil {
		cs.logger.Info(consumerModule, "Item deleted before analysis, skipping", map[string]interface{}{
			"job_id":  job.ID,
			"item_id": payload.ItemId.String(),
			"kind":    string(kind),
		})
		return nil
	}

	text := payload.Content
	if text == "" {
		text = item.Content
	}
	if text == "" {
		cs.logger.Info(consumerModule, "No content to analyze, skipping", map[string]interface{}{
			"job_id":  job.ID,
			"item_id": item.Id.String(),
		})
		return nil
	}

	analysis, err := cs.analyzer.Analyze(ctx, text, payload.Url)
	if err != nil {
		return externalError("analyze content", err)
	}
	if err := entity.ValidateEmbedding(analysis.Embedding); err != nil {
		return queue.Permanent(err)
	}

	err = repo.UpdateAnalysis(ctx, item.Id, &entity.ItemAnalysis{
		Summary:   analysis.Summary,
		Category:  analysis.Category,
		Tags:      analysis.Tags,
		Entities:  analysis.Entities,
		Embedding: analysis.Embedding,
	})
	if errors.Is(err, entity.ErrItemNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("save analysis for %s %s: %w", kind, item.Id, err)
	}

	cs.logger.Info(consumerModule, "Content analysis completed", map[string]interface{}{
		"job_id":   job.ID,
		"item_id":  item.Id.String(),
		"kind":     string(kind),
		"category": analysis.Category,
	})
	return nil
}

func (cs *consumerService) HandleArchival(ctx context.Context, job *queue.Job) error {
	var payload dto.ArchivalJob
	if err := decodeJob(job, &payload); err != nil {
		return err
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)

	var item *entity.Item
	if payload.ItemId != nil && payload.ItemType != "" {
		var err error
		item, err = uow.ItemRepository(entity.ItemKind(payload.ItemType)).FindById(ctx, *payload.ItemId)
		if err != nil {
			return fmt.Errorf("load %s %s: %w", payload.ItemType, *payload.ItemId, err)
		}
		if item == nil || item.IsArchived {
			cs.logger.Info(consumerModule, "Item missing or already archived, skipping", map[string]interface{}{
				"job_id":  job.ID,
				"item_id": payload.ItemId.String(),
			})
			return nil
		}
	}

	result, err := cs.archiver.Archive(ctx, payload.Url)
	if err != nil {
		return externalError("archive page", err)
	}

	page := &entity.ArchivedPage{
		OwnerId:        payload.OwnerId,
		ItemId:         payload.ItemId,
		ItemKind:       entity.ItemKind(payload.ItemType),
		Url:            payload.Url,
		HtmlPath:       result.HtmlPath,
		ScreenshotPath: result.ScreenshotPath,
		PdfPath:        result.PdfPath,
	}
	if err := cs.saveArchive(ctx, page, item); err != nil {
		return err
	}

	cs.logger.Info(consumerModule, "Archival completed", map[string]interface{}{
		"job_id": job.ID,
		"url":    payload.Url,
	})
	return nil
}

// saveArchive records the page and flags the item in one transaction.
func (cs *consumerService) saveArchive(ctx context.Context, page *entity.ArchivedPage, item *entity.Item) error {
	uow := cs.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("begin archival transaction: %w", err)
	}

	if err := uow.ArchivedPageRepository().Create(ctx, page); err != nil {
		_ = uow.Rollback()
		return fmt.Errorf("save archived page: %w", err)
	}
	if item != nil {
		if _, err := uow.ItemRepository(item.Kind).MarkArchived(ctx, item.Id); err != nil {
			_ = uow.Rollback()
			return fmt.Errorf("mark %s %s archived: %w", item.Kind, item.Id, err)
		}
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("commit archival: %w", err)
	}
	return nil
}

func (cs *consumerService) HandleSuggestionGeneration(ctx context.Context, job *queue.Job) error {
	var payload dto.SuggestionJob
	if err := decodeJob(job, &payload); err != nil {
		return err
	}

	reports, err := cs.suggestions.Generate(ctx, payload.OwnerId)
	if err != nil {
		return err
	}

	cs.logger.Info(consumerModule, "Suggestion job completed", map[string]interface{}{
		"job_id": job.ID,
		"owners": len(reports),
	})
	return nil
}

// bulkItemId derives a stable id from the job and position so a redelivered
// import inserts nothing new.
func bulkItemId(jobID string, index int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(jobID+":"+strconv.Itoa(index)))
}

func (cs *consumerService) HandleBulkImport(ctx context.Context, job *queue.Job) error {
	var payload dto.BulkImportJob
	if err := decodeJob(job, &payload); err != nil {
		return err
	}

	kind := entity.ItemKind(payload.Type)
	items := make([]*entity.Item, len(payload.Items))
	for i, in := range payload.Items {
		items[i] = &entity.Item{
			Id:      bulkItemId(job.ID, i),
			OwnerId: payload.OwnerId,
			Kind:    kind,
			Url:     in.Url,
			Title:   in.Title,
			Favicon: in.Favicon,
			Content: in.Content,
			Tags:    in.Tags,
			Folder:  in.Folder,
		}
	}

	repo := cs.uowFactory.NewUnitOfWork(ctx).ItemRepository(kind)
	inserted, err := repo.CreateBulk(ctx, items)
	if err != nil {
		return fmt.Errorf("bulk insert %ss: %w", kind, err)
	}

	queued := 0
	for _, item := range items {
		if item.Content == "" {
			continue
		}
		_, err := cs.publisher.PublishContentAnalysis(ctx, &dto.ContentAnalysisJob{
			ItemId:   item.Id,
			ItemType: string(kind),
			Url:      item.Url,
			Content:  item.Content,
		})
		if err != nil {
			return fmt.Errorf("queue analysis for %s: %w", item.Id, err)
		}
		queued++
	}

	cs.logger.Info(consumerModule, "Bulk import completed", map[string]interface{}{
		"job_id":          job.ID,
		"owner_id":        payload.OwnerId.String(),
		"kind":            string(kind),
		"received":        len(items),
		"inserted":        inserted,
		"analysis_queued": queued,
	})
	return nil
}
