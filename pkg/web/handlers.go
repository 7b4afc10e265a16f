package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	workflowService *services.Workflow
	runService      *services.Run
	validator       *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	runService *services.Run,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		runService:      runService,
		validator:       validator,
	}
}

// Register mounts every handler on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/actions", h.GetActions)

	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Put("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Get("/:id/runs", h.GetWorkflowRuns)

	r := router.Group("/runs")
	r.Get("/:id", h.GetRun)
	r.Get("/:id/actions", h.GetRunActions)
	r.Post("/:id/retry", h.RetryRun)

	router.Post("/events/cart-orders", h.CreateCartOrder)

	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) GetActions(c fiber.Ctx) error {
	return c.JSON(h.workflowService.Actions())
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req := services.ListWorkflowsRequest{
		WorkspaceID: c.Query("workspace_id"),
	}

	if includeArchived := c.Query("include_archived"); includeArchived != "" {
		include, err := strconv.ParseBool(includeArchived)
		if err != nil {
			return badRequest(c, "Invalid include_archived: "+err.Error())
		}

		req.IncludeArchived = include
	}

	workflows, err := h.workflowService.ListWorkflows(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflows)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req WorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.WorkspaceID == "" {
		return badRequest(c, "workspace_id is required")
	}

	created, err := h.workflowService.Create(c.Context(), req.toModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req WorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflowService.Update(c.Context(), c.Params("id"), req.toModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	cancelled, err := h.workflowService.Archive(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ArchiveResponse{WorkflowID: id, CancelledRuns: cancelled})
}

func (h *APIHandlers) GetWorkflowRuns(c fiber.Ctx) error {
	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit: "+err.Error())
		}

		limit = parsed
	}

	runs, err := h.runService.ListByWorkflow(c.Context(), c.Params("id"), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(runs)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.runService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) GetRunActions(c fiber.Ctx) error {
	records, err := h.runService.ListActions(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if records == nil {
		records = []*models.WorkflowRunAction{}
	}

	return c.JSON(records)
}

func (h *APIHandlers) RetryRun(c fiber.Ctx) error {
	run, err := h.runService.Retry(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) CreateCartOrder(c fiber.Ctx) error {
	var req CartOrderRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event := req.toEvent()

	runs, err := h.runService.StartFromEvent(c.Context(), event)
	if err != nil && len(runs) == 0 {
		return handleServiceError(c, err)
	}

	if runs == nil {
		runs = []*models.WorkflowRun{}
	}

	return c.Status(fiber.StatusAccepted).JSON(StartedRunsResponse{EventID: event.ID, Runs: runs})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Flows API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Flows API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
