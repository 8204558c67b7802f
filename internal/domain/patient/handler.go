package patient

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
	api.GET("/patients/assigned/me", h.assignedToMe)
	api.GET("/patients/:id", h.getPatient)
	api.POST("/patients/:id/assign", h.assign, auth.RequireAdmin())
	api.POST("/patients/:id/followups", h.addFollowUp)
	api.PATCH("/followups/:id", h.updateFollowUpStatus)
}

func (h *Handler) assignedToMe(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	patients, err := h.svc.AssignedPatients(c.Request().Context(), actor)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, patients)
}

func (h *Handler) getPatient(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	details, err := h.svc.Details(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, details)
}

func (h *Handler) assign(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var req struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	patientID := c.Param("id")
	if err := h.svc.Assign(c.Request().Context(), actor, req.UserID, patientID); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	h.audit.Action(c.Request().Context(), &actor.ID, "assign_patient", c.Path(), map[string]any{
		"patient_id": patientID,
		"user_id":    req.UserID.String(),
	})
	return c.JSON(http.StatusOK, map[string]string{"message": "patient assigned"})
}

func (h *Handler) addFollowUp(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var in FollowUpInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	f, err := h.svc.AddFollowUp(c.Request().Context(), actor, c.Param("id"), in)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	h.audit.Action(c.Request().Context(), &actor.ID, "create_follow_up", c.Path(), map[string]any{
		"patient_id": f.PatientID,
		"status":     f.Status,
	})
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) updateFollowUpStatus(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid follow-up id")
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	f, err := h.svc.UpdateFollowUpStatus(c.Request().Context(), actor, id, req.Status)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	h.audit.Action(c.Request().Context(), &actor.ID, "update_follow_up", c.Path(), map[string]any{
		"follow_up_id": id.String(),
		"status":       req.Status,
	})
	return c.JSON(http.StatusOK, f)
}
