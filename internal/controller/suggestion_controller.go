package controller

import (
	"context"
	"errors"

	"tabkeeper-be/internal/dto"
	"tabkeeper-be/internal/entity"
	"tabkeeper-be/internal/mapper"
	"tabkeeper-be/internal/pkg/serverutils"
	"tabkeeper-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ISuggestionController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	GetAll(ctx *fiber.Ctx) error
	Accept(ctx *fiber.Ctx) error
	Reject(ctx *fiber.Ctx) error
	Import(ctx *fiber.Ctx) error
	Archive(ctx *fiber.Ctx) error
}

type suggestionController struct {
	suggestions service.ISuggestionService
	publisher   service.IPublisherService
	mapper      *mapper.SuggestionMapper
}

func NewSuggestionController(suggestions service.ISuggestionService, publisher service.IPublisherService) ISuggestionController {
	return &suggestionController{
		suggestions: suggestions,
		publisher:   publisher,
		mapper:      mapper.NewSuggestionMapper(),
	}
}

func (c *suggestionController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/suggestions")
	h.Use(auth)
	h.Get("", c.GetAll)
	h.Post(":id/accept", c.Accept)
	h.Post(":id/reject", c.Reject)

	r.Post("/imports", auth, c.Import)
	r.Post("/archive", auth, c.Archive)
}

func (c *suggestionController) GetAll(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserId(ctx)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}

	var query dto.SuggestionListQuery
	if err := ctx.QueryParser(&query); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid query"))
	}
	if err := serverutils.ValidateRequest(query); err != nil {
		return err
	}

	var status *entity.SuggestionStatus
	if query.Status != "" {
		s := entity.SuggestionStatus(query.Status)
		status = &s
	}

	res, err := c.suggestions.List(ctx.UserContext(), userId, status)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get suggestions", c.mapper.ToResponses(res)))
}

func (c *suggestionController) Accept(ctx *fiber.Ctx) error {
	return c.transition(ctx, c.suggestions.Accept, "Suggestion accepted")
}

func (c *suggestionController) Reject(ctx *fiber.Ctx) error {
	return c.transition(ctx, c.suggestions.Reject, "Suggestion rejected")
}

func (c *suggestionController) transition(
	ctx *fiber.Ctx,
	apply func(ctx context.Context, ownerId, id uuid.UUID) (*entity.Suggestion, error),
	message string,
) error {
	userId, err := serverutils.UserId(ctx)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid suggestion id"))
	}

	res, err := apply(ctx.UserContext(), userId, id)
	switch {
	case errors.Is(err, service.ErrSuggestionNotFound):
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(404, err.Error()))
	case errors.Is(err, entity.ErrInvalidTransition):
		return ctx.Status(fiber.StatusConflict).JSON(serverutils.ErrorResponse(409, err.Error()))
	case err != nil:
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse(message, c.mapper.ToResponse(res)))
}

func (c *suggestionController) Import(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserId(ctx)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}

	var req dto.ImportRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	handle, err := c.publisher.PublishBulkImport(ctx.UserContext(), &dto.BulkImportJob{
		Items:   req.Items,
		OwnerId: userId,
		Type:    req.Type,
	})
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Import queued", dto.EnqueueResponse{
		JobId: handle.ID,
		Lane:  string(handle.Lane),
	}))
}

func (c *suggestionController) Archive(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserId(ctx)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}

	var req dto.ArchiveRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	handle, err := c.publisher.PublishArchival(ctx.UserContext(), &dto.ArchivalJob{
		Url:      req.Url,
		ItemId:   req.ItemId,
		ItemType: req.ItemType,
		OwnerId:  &userId,
	})
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Archival queued", dto.EnqueueResponse{
		JobId: handle.ID,
		Lane:  string(handle.Lane),
	}))
}
