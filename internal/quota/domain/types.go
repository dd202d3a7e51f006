package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Quota is a tenant's sending budget. Counters roll over lazily: the start
// of the current UTC day/month is the reset boundary, applied on the next
// check after it is crossed. A limit of 0 means unlimited.
type Quota struct {
	TenantID         uuid.UUID
	DailyLimit       int
	MonthlyLimit     int
	DailyCount       int
	MonthlyCount     int
	LastDailyReset   time.Time
	LastMonthlyReset time.Time
}

// Limits are the configurable ceilings.
type Limits struct {
	Daily   int
	Monthly int
}

var (
	ErrDailyLimitExceeded   = errors.New("daily sending limit exceeded")
	ErrMonthlyLimitExceeded = errors.New("monthly sending limit exceeded")
)

// Ledger tracks per-tenant consumption. A tenant's record is created lazily
// with the configured default limits on first use and never deleted here.
type Ledger interface {
	// TryConsume atomically checks both limits (after rollover) and, when
	// allowed, increments both counters by n. On denial nothing is mutated
	// and the error names the exceeded limit. The check and increment are a
	// single atomic decision per tenant.
	TryConsume(ctx context.Context, tenantID uuid.UUID, n int) error

	// Get returns the quota with rollover applied to the reported counts.
	Get(ctx context.Context, tenantID uuid.UUID) (Quota, error)

	// SetLimits updates the tenant's ceilings without touching counters.
	SetLimits(ctx context.Context, tenantID uuid.UUID, l Limits) error
}
