package rules

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/bscode-watanabejun/nasreco-visiting-nursing-sub008/pkg/pagination"
)

// Handler exposes read-only rule master data endpoints. Rule authoring
// happens in the administration tool, not here.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/bonus-rules", h.listActive)
	g.GET("/bonus-rules/:code", h.listByCode)
	g.GET("/bonus-rules/:code/versions/:version", h.getVersion)
}

func (h *Handler) listActive(c echo.Context) error {
	defs, err := h.svc.ListActive(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list bonus rules")
	}

	p := pagination.FromContext(c)
	start, end := p.Slice(len(defs))
	page := defs[start:end]
	if page == nil {
		page = []*RuleDefinition{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(page, len(defs), p.Limit, p.Offset))
}

func (h *Handler) listByCode(c echo.Context) error {
	code := c.Param("code")
	defs, err := h.svc.ListByCode(c.Request().Context(), code)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list rule versions")
	}
	if len(defs) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "bonus rule not found")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"code": code, "versions": defs})
}

func (h *Handler) getVersion(c echo.Context) error {
	code := c.Param("code")
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid version")
	}

	def, err := h.svc.GetVersion(c.Request().Context(), code, version)
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "bonus rule not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get rule version")
	}
	return c.JSON(http.StatusOK, def)
}
