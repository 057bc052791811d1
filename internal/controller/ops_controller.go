package controller

import (
	"context"
	"errors"
	"strconv"
	"time"

	"tabkeeper-be/internal/dto"
	"tabkeeper-be/internal/pkg/logger"
	"tabkeeper-be/internal/pkg/serverutils"
	"tabkeeper-be/internal/repository/unitofwork"
	"tabkeeper-be/internal/scheduler"
	"tabkeeper-be/internal/service"
	"tabkeeper-be/pkg/queue"

	"github.com/gofiber/fiber/v2"
)

// QueueStats exposes per-lane dispatcher counters.
type QueueStats interface {
	Stats() []queue.LaneStats
}

// TaskRunner is the part of the scheduler the ops surface drives.
type TaskRunner interface {
	Tasks() []scheduler.TaskInfo
	RunNow(ctx context.Context, name string) error
}

type IOpsController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	Health(ctx *fiber.Ctx) error
	QueueStats(ctx *fiber.Ctx) error
	SchedulerTasks(ctx *fiber.Ctx) error
	RunTask(ctx *fiber.Ctx) error
	GenerateSuggestions(ctx *fiber.Ctx) error
	GetLogs(ctx *fiber.Ctx) error
	GetLogDetail(ctx *fiber.Ctx) error
}

type opsController struct {
	queue      QueueStats
	tasks      TaskRunner
	publisher  service.IPublisherService
	uowFactory unitofwork.RepositoryFactory
	logger     logger.ILogger
}

func NewOpsController(
	queueStats QueueStats,
	tasks TaskRunner,
	publisher service.IPublisherService,
	uowFactory unitofwork.RepositoryFactory,
	log logger.ILogger,
) IOpsController {
	return &opsController{
		queue:      queueStats,
		tasks:      tasks,
		publisher:  publisher,
		uowFactory: uowFactory,
		logger:     log,
	}
}

func (c *opsController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	r.Get("/health", c.Health)

	h := r.Group("/ops")
	h.Use(auth)
	h.Get("/queue/stats", c.QueueStats)
	h.Get("/scheduler/tasks", c.SchedulerTasks)
	h.Post("/scheduler/tasks/:name/run", c.RunTask)
	h.Post("/suggestions/generate", c.GenerateSuggestions)
	h.Get("/logs", c.GetLogs)
	h.Get("/logs/:id", c.GetLogDetail)
}

func (c *opsController) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("OK", fiber.Map{
		"time": time.Now().UTC(),
	}))
}

func (c *opsController) QueueStats(ctx *fiber.Ctx) error {
	stats := c.queue.Stats()
	res := dto.QueueStatsResponse{
		Lanes: make([]dto.LaneStatsResponse, 0, len(stats)),
	}
	for _, s := range stats {
		res.Lanes = append(res.Lanes, dto.LaneStatsResponse{
			Lane:         string(s.Lane),
			Enqueued:     s.Enqueued,
			Succeeded:    s.Succeeded,
			Retried:      s.Retried,
			DeadLettered: s.DeadLettered,
			Duplicates:   s.Duplicates,
		})
	}

	total, err := c.uowFactory.NewUnitOfWork(ctx.UserContext()).DeadLetterRepository().Count(ctx.UserContext())
	if err != nil {
		return err
	}
	res.DeadLetterTotal = total

	return ctx.JSON(serverutils.SuccessResponse("Queue statistics", res))
}

func (c *opsController) SchedulerTasks(ctx *fiber.Ctx) error {
	infos := c.tasks.Tasks()
	res := make([]dto.SchedulerTaskResponse, 0, len(infos))
	for _, info := range infos {
		item := dto.SchedulerTaskResponse{
			Name:      info.Name,
			Spec:      info.Spec,
			Running:   info.Running,
			LastError: info.LastError,
		}
		if !info.Next.IsZero() {
			next := info.Next
			item.NextRun = &next
		}
		if !info.Prev.IsZero() {
			prev := info.Prev
			item.PrevRun = &prev
		}
		res = append(res, item)
	}
	return ctx.JSON(serverutils.SuccessResponse("Scheduled tasks", res))
}

func (c *opsController) RunTask(ctx *fiber.Ctx) error {
	name := ctx.Params("name")

	err := c.tasks.RunNow(ctx.UserContext(), name)
	switch {
	case errors.Is(err, scheduler.ErrTaskNotFound):
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(404, err.Error()))
	case errors.Is(err, scheduler.ErrTaskRunning):
		return ctx.Status(fiber.StatusConflict).JSON(serverutils.ErrorResponse(409, err.Error()))
	case err != nil:
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}

	return ctx.JSON(serverutils.SuccessResponse("Task completed", fiber.Map{"name": name}))
}

func (c *opsController) GenerateSuggestions(ctx *fiber.Ctx) error {
	var req dto.GenerateSuggestionsRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
		}
	}

	handle, err := c.publisher.PublishSuggestionGeneration(ctx.UserContext(), req.OwnerId)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Suggestion generation queued", dto.EnqueueResponse{
		JobId: handle.ID,
		Lane:  string(handle.Lane),
	}))
}

func (c *opsController) GetLogs(ctx *fiber.Ctx) error {
	page, _ := strconv.Atoi(ctx.Query("page", "1"))
	limit, _ := strconv.Atoi(ctx.Query("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}

	logs, err := c.logger.GetLogs(logger.LogFilter{
		Level:  ctx.Query("level"),
		Module: ctx.Query("module"),
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("System logs", logs))
}

func (c *opsController) GetLogDetail(ctx *fiber.Ctx) error {
	entry, err := c.logger.GetLogById(ctx.Params("id"))
	if errors.Is(err, logger.ErrLogNotFound) {
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(404, "Log not found"))
	}
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("Log detail", entry))
}
