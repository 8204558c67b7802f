package user

import (
	"net/http"

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

// RegisterRoutes wires the auth endpoints. Login is the only route outside
// the authenticated group.
func (h *Handler) RegisterRoutes(public, api *echo.Group) {
	public.POST("/auth/login", h.Login)

	api.POST("/auth/register", h.Register, auth.RequireAdmin())
	api.PUT("/auth/password", h.ChangePassword)
	api.POST("/auth/delete", h.Delete, auth.RequireAdmin())
	api.GET("/users", h.List, auth.RequireAdmin())
}

func (h *Handler) Register(c echo.Context) error {
	actor, _ := auth.ActorFromContext(c.Request().Context())

	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.Register(c.Request().Context(), actor, in)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}

	h.audit.Action(c.Request().Context(), &actor.ID, "user_registered", "/auth/register",
		map[string]interface{}{"username": u.Username, "role": u.Role})
	return c.JSON(http.StatusCreated, map[string]interface{}{"id": u.ID, "username": u.Username})
}

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	token, u, err := h.svc.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}

	h.audit.Action(c.Request().Context(), &u.ID, "login_success", "/auth/login",
		map[string]interface{}{"username": u.Username})
	return c.JSON(http.StatusOK, loginResponse{AccessToken: token, TokenType: "bearer"})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) ChangePassword(c echo.Context) error {
	actor, _ := auth.ActorFromContext(c.Request().Context())

	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.ChangePassword(c.Request().Context(), actor, req.OldPassword, req.NewPassword); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}

	h.audit.Action(c.Request().Context(), &actor.ID, "password_changed", "/auth/password", nil)
	return c.JSON(http.StatusOK, map[string]string{"message": "password updated"})
}

type deleteRequest struct {
	Username string `json:"username"`
}

func (h *Handler) Delete(c echo.Context) error {
	actor, _ := auth.ActorFromContext(c.Request().Context())

	var req deleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Delete(c.Request().Context(), actor, req.Username); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}

	h.audit.Action(c.Request().Context(), &actor.ID, "user_deleted", "/auth/delete",
		map[string]interface{}{"username": req.Username})
	return c.JSON(http.StatusOK, map[string]string{"message": "user deleted"})
}

func (h *Handler) List(c echo.Context) error {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	pg := pagination.FromContext(c)

	items, total, err := h.svc.List(c.Request().Context(), actor, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
