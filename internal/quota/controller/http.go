package controller

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	authmw "github.com/hivelearn/relay/internal/auth/middleware"
	"github.com/hivelearn/relay/internal/platform/validation"
	"github.com/hivelearn/relay/internal/quota/domain"
	svc "github.com/hivelearn/relay/internal/quota/service"
)

type Controller struct {
	svc svc.Service
}

func New(s svc.Service) *Controller {
	return &Controller{svc: s}
}

func (h *Controller) RegisterV1(g *echo.Group) {
	g.GET("/quota", h.getQuota)
	g.PUT("/quota/limits", h.setLimits)
}

type quotaResp struct {
	TenantID         string `json:"tenant_id"`
	DailyLimit       int    `json:"daily_limit"`
	MonthlyLimit     int    `json:"monthly_limit"`
	DailyCount       int    `json:"daily_count"`
	MonthlyCount     int    `json:"monthly_count"`
	LastDailyReset   string `json:"last_daily_reset"`
	LastMonthlyReset string `json:"last_monthly_reset"`
}

func (h *Controller) getQuota(c echo.Context) error {
	tenantID, ok := authmw.TenantID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing tenant"})
	}
	q, err := h.svc.Get(c.Request().Context(), tenantID)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "quota store unavailable"})
	}
	return c.JSON(http.StatusOK, quotaResp{
		TenantID:         q.TenantID.String(),
		DailyLimit:       q.DailyLimit,
		MonthlyLimit:     q.MonthlyLimit,
		DailyCount:       q.DailyCount,
		MonthlyCount:     q.MonthlyCount,
		LastDailyReset:   q.LastDailyReset.UTC().Format(time.RFC3339),
		LastMonthlyReset: q.LastMonthlyReset.UTC().Format(time.RFC3339),
	})
}

type setLimitsReq struct {
	Daily   int `json:"daily" validate:"gte=0"`
	Monthly int `json:"monthly" validate:"gte=0"`
}

func (h *Controller) setLimits(c echo.Context) error {
	tenantID, ok := authmw.TenantID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing tenant"})
	}
	var req setLimitsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid json"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, validation.ErrorResponse(err))
	}
	if err := h.svc.SetLimits(c.Request().Context(), tenantID, domain.Limits{Daily: req.Daily, Monthly: req.Monthly}); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}
