package bonus

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/visits/:id/bonuses/calculate", h.calculateVisit)
	g.GET("/visits/:id/bonuses", h.listVisitBonuses)
	g.POST("/bonuses/recalculate", h.recalculate)
	g.GET("/patients/:id/bonuses", h.listPatientBonuses)
}

func (h *Handler) calculateVisit(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}

	bonuses, err := h.svc.CalculateVisit(c.Request().Context(), visitID)
	if err != nil {
		if errors.Is(err, ErrPersistenceConflict) {
			return echo.NewHTTPError(http.StatusConflict, "concurrent calculation in progress, retry")
		}
		if errors.Is(err, ErrVisitNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "visit not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to calculate bonuses")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"visit_id": visitID,
		"bonuses":  bonuses,
	})
}

func (h *Handler) listVisitBonuses(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}

	records, err := h.svc.ListVisitBonuses(c.Request().Context(), visitID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list bonuses")
	}
	if records == nil {
		records = []*HistoryRecord{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"visit_id": visitID,
		"bonuses":  records,
	})
}

type recalculateRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	Month     string    `json:"month"`
}

func (h *Handler) recalculate(c echo.Context) error {
	var req recalculateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	period, err := ParsePeriod(req.Month)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	summary, err := h.svc.Recalculate(c.Request().Context(), req.PatientID, period)
	if err != nil {
		if errors.Is(err, ErrPersistenceConflict) {
			return echo.NewHTTPError(http.StatusConflict, "concurrent calculation in progress, retry")
		}
		// the error carries the halt position; operators resume from it
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) listPatientBonuses(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	period, err := ParsePeriod(c.QueryParam("month"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	records, err := h.svc.ListPatientBonuses(c.Request().Context(), patientID, period)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list bonuses")
	}
	if records == nil {
		records = []*HistoryRecord{}
	}

	total := 0
	for _, r := range records {
		total += r.Points
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient_id":   patientID,
		"month":        period.String(),
		"total_points": total,
		"bonuses":      records,
	})
}
