package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hivelearn/relay/internal/quota/domain"
)

// Memory is an in-process Ledger for tests and local development. The
// single mutex serializes the check-and-increment, mirroring the row-level
// serialization the Postgres implementation gets from its conditional
// UPDATE.
type Memory struct {
	mu       sync.Mutex
	quotas   map[uuid.UUID]*domain.Quota
	defaults domain.Limits

	now func() time.Time
}

var _ domain.Ledger = (*Memory)(nil)

func NewMemory(defaults domain.Limits) *Memory {
	return &Memory{
		quotas:   make(map[uuid.UUID]*domain.Quota),
		defaults: defaults,
		now:      time.Now,
	}
}

func (r *Memory) get(tenantID uuid.UUID) *domain.Quota {
	q, ok := r.quotas[tenantID]
	if !ok {
		now := r.now().UTC()
		q = &domain.Quota{
			TenantID:         tenantID,
			DailyLimit:       r.defaults.Daily,
			MonthlyLimit:     r.defaults.Monthly,
			LastDailyReset:   startOfDay(now),
			LastMonthlyReset: startOfMonth(now),
		}
		r.quotas[tenantID] = q
	}
	return q
}

func (r *Memory) rollover(q *domain.Quota) {
	now := r.now().UTC()
	if q.LastDailyReset.Before(startOfDay(now)) {
		q.DailyCount = 0
		q.LastDailyReset = startOfDay(now)
	}
	if q.LastMonthlyReset.Before(startOfMonth(now)) {
		q.MonthlyCount = 0
		q.LastMonthlyReset = startOfMonth(now)
	}
}

func (r *Memory) TryConsume(ctx context.Context, tenantID uuid.UUID, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	q := r.get(tenantID)
	r.rollover(q)
	if q.DailyLimit > 0 && q.DailyCount+n > q.DailyLimit {
		return domain.ErrDailyLimitExceeded
	}
	if q.MonthlyLimit > 0 && q.MonthlyCount+n > q.MonthlyLimit {
		return domain.ErrMonthlyLimitExceeded
	}
	q.DailyCount += n
	q.MonthlyCount += n
	return nil
}

func (r *Memory) Get(ctx context.Context, tenantID uuid.UUID) (domain.Quota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q := r.get(tenantID)
	r.rollover(q)
	return *q, nil
}

func (r *Memory) SetLimits(ctx context.Context, tenantID uuid.UUID, l domain.Limits) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	q := r.get(tenantID)
	q.DailyLimit = l.Daily
	q.MonthlyLimit = l.Monthly
	return nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
