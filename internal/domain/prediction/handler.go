package prediction

import (
	"net/http"

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
	api.POST("/predict/:condition", h.predict)
	api.GET("/patients/:id/predictions", h.history)
}

type predictRequest struct {
	PatientID string                 `json:"patient_id"`
	Input     map[string]interface{} `json:"input"`
}

func (h *Handler) predict(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var req predictRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.Predict(c.Request().Context(), actor, c.Param("condition"), req.PatientID, req.Input)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	h.audit.Action(c.Request().Context(), &actor.ID, "predict", c.Path(), map[string]any{
		"patient_id": p.PatientID,
		"condition":  p.Condition,
		"risk":       string(p.Risk),
	})
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) history(c echo.Context) error {
	if _, err := auth.RequireActor(c); err != nil {
		return err
	}
	list, err := h.svc.History(c.Request().Context(), c.Param("id"), 20)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	if list == nil {
		list = []*Prediction{}
	}
	return c.JSON(http.StatusOK, list)
}
