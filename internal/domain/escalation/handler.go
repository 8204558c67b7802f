package escalation

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/readmit/readmit/internal/platform/apperr"
	"github.com/readmit/readmit/internal/platform/audit"
	"github.com/readmit/readmit/internal/platform/auth"
	"github.com/readmit/readmit/pkg/pagination"
)

type Handler struct {
	svc   *Service
	audit *audit.Log
}

func NewHandler(svc *Service, auditLog *audit.Log) *Handler {
	return &Handler{svc: svc, audit: auditLog}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/escalations/create", h.create)
	api.GET("/escalations/all", h.list, auth.RequireAdmin())
	api.GET("/escalations/me", h.mine)
	api.GET("/escalations/:id", h.get)
	api.PUT("/escalations/:id", h.decide, auth.RequireAdmin())
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
	e, err := h.svc.Create(c.Request().Context(), actor, in)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	h.audit.Action(c.Request().Context(), &actor.ID, "create_escalation", c.Path(), map[string]any{
		"escalation_id": e.ID.String(),
		"patient_id":    e.PatientID,
		"new_risk":      string(e.NewRisk),
	})
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) list(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	f := Filter{
		Status:    c.QueryParam("status"),
		PatientID: c.QueryParam("patient_id"),
	}
	resp, err := h.svc.List(c.Request().Context(), actor, f, pagination.FromContext(c))
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) mine(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	f := Filter{
		Status:      c.QueryParam("status"),
		RequestedBy: actor.ID,
	}
	resp, err := h.svc.List(c.Request().Context(), actor, f, pagination.FromContext(c))
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) get(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid escalation id")
	}
	e, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, e)
}

type decideRequest struct {
	Status        string `json:"status"`
	RejectionNote string `json:"rejection_note"`
}

func (h *Handler) decide(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid escalation id")
	}
	var req decideRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	var d Decision
	switch req.Status {
	case StatusAccepted:
		d = Decision{Accept: true}
	case StatusRejected:
		d = Decision{Accept: false, RejectionNote: req.RejectionNote}
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "status must be accepted or rejected")
	}

	e, err := h.svc.Decide(c.Request().Context(), actor, id, d)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	h.audit.Action(c.Request().Context(), &actor.ID, "decide_escalation", c.Path(), map[string]any{
		"escalation_id": id.String(),
		"status":        e.Status,
	})
	return c.JSON(http.StatusOK, e)
}
