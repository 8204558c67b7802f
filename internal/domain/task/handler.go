package task

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/readmit/readmit/internal/platform/apperr"
	"github.com/readmit/readmit/internal/platform/audit"
	"github.com/readmit/readmit/internal/platform/auth"
)

type Handler struct {
	svc   *Service
	audit *audit.Log
}

func NewHandler(svc *Service, auditLog *audit.Log) *Handler {
	return &Handler{svc: svc, audit: auditLog}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/tasks/me", h.mine)
	api.POST("/tasks/create", h.create)
	api.PATCH("/tasks/:id", h.updateStatus)
}

func (h *Handler) mine(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	list, err := h.svc.Mine(c.Request().Context(), actor, c.QueryParam("status"))
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) create(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := h.svc.Create(c.Request().Context(), actor, in)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	h.audit.Action(c.Request().Context(), &actor.ID, "create_task", c.Path(), map[string]any{
		"task_id":     t.ID.String(),
		"assigned_to": t.AssignedTo.String(),
	})
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) updateStatus(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	var t *Task
	switch req.Status {
	case StatusCompleted:
		t, err = h.svc.Complete(c.Request().Context(), actor, id)
	case StatusCancelled:
		t, err = h.svc.Cancel(c.Request().Context(), actor, id)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "status must be completed or cancelled")
	}
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	h.audit.Action(c.Request().Context(), &actor.ID, "update_task", c.Path(), map[string]any{
		"task_id": id.String(),
		"status":  req.Status,
	})
	return c.JSON(http.StatusOK, t)
}
