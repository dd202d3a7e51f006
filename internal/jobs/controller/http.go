package controller

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	authmw "github.com/hivelearn/relay/internal/auth/middleware"
	"github.com/hivelearn/relay/internal/jobs/domain"
	svc "github.com/hivelearn/relay/internal/jobs/service"
	qdomain "github.com/hivelearn/relay/internal/quota/domain"
)

const maxPayloadBytes = 256 << 10

type Controller struct {
	svc *svc.Service
}

func New(s *svc.Service) *Controller {
	return &Controller{svc: s}
}

// RegisterV1 registers job routes on an authenticated group. submitMW is
// applied to the submit route only (burst rate limiting).
func (h *Controller) RegisterV1(g *echo.Group, submitMW ...echo.MiddlewareFunc) {
	g.POST("/jobs/:kind", h.submit, submitMW...)
	g.GET("/jobs/:kind/:id", h.getJob)
	g.POST("/jobs/:kind/:id/replay", h.replay)
	g.GET("/stats/:kind", h.stats)
}

type jobResp struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	TenantID      string `json:"tenant_id"`
	State         string `json:"state"`
	Attempts      int    `json:"attempts"`
	MaxAttempts   int    `json:"max_attempts"`
	Error         string `json:"error,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
	LastAttemptAt string `json:"last_attempt_at,omitempty"`
	NextAttemptAt string `json:"next_attempt_at,omitempty"`
}

func toTimeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toJobResp(j *domain.Job) jobResp {
	return jobResp{
		ID:            j.ID.String(),
		Kind:          string(j.Kind),
		TenantID:      j.TenantID.String(),
		State:         string(j.State),
		Attempts:      j.Attempts,
		MaxAttempts:   j.MaxAttempts,
		Error:         j.Error,
		CreatedAt:     toTimeString(j.CreatedAt),
		LastAttemptAt: toTimeString(j.LastAttemptAt),
		NextAttemptAt: toTimeString(j.NextAttemptAt),
	}
}

// submit accepts a kind-specific payload as the request body and enqueues
// it for the caller's tenant. 202 {id} on acceptance; 400 on payload
// errors, 429 on quota, 503 when the store is down.
func (h *Controller) submit(c echo.Context) error {
	kind, err := domain.ParseKind(c.Param("kind"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown kind"})
	}
	tenantID, ok := authmw.TenantID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing tenant"})
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPayloadBytes))
	if err != nil || len(body) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "empty payload"})
	}

	job, err := h.svc.Submit(c.Request().Context(), kind, tenantID, body)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidPayload):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, qdomain.ErrDailyLimitExceeded):
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "quota exceeded", "limit": "daily"})
		case errors.Is(err, qdomain.ErrMonthlyLimitExceeded):
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "quota exceeded", "limit": "monthly"})
		case errors.Is(err, domain.ErrStoreUnavailable):
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"id": job.ID.String()})
}

func (h *Controller) getJob(c echo.Context) error {
	kind, err := domain.ParseKind(c.Param("kind"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown kind"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}
	tenantID, _ := authmw.TenantID(c)

	job, err := h.svc.Get(c.Request().Context(), kind, id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
	}
	// A tenant may only see its own jobs.
	if job.TenantID != tenantID {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	}
	return c.JSON(http.StatusOK, toJobResp(job))
}

func (h *Controller) replay(c echo.Context) error {
	kind, err := domain.ParseKind(c.Param("kind"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown kind"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}
	tenantID, _ := authmw.TenantID(c)

	job, err := h.svc.Get(c.Request().Context(), kind, id)
	if err != nil || job.TenantID != tenantID {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	}
	if err := h.svc.Replay(c.Request().Context(), kind, id); err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFailed):
			return c.JSON(http.StatusConflict, map[string]string{"error": "job is not failed"})
		case errors.Is(err, domain.ErrJobNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Controller) stats(c echo.Context) error {
	kind, err := domain.ParseKind(c.Param("kind"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown kind"})
	}
	st, err := h.svc.Stats(c.Request().Context(), kind)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
	}
	return c.JSON(http.StatusOK, st)
}
