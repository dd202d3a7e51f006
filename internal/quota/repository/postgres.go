package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hivelearn/relay/internal/quota/domain"
)

// Postgres persists quotas in the tenant_quotas table (see db/migrations).
// The consume path is a single conditional UPDATE so that rollover, limit
// check and increment are one atomic statement; concurrent submissions for
// the same tenant serialize on the row lock instead of racing a
// read-then-write in application code.
type Postgres struct {
	db       *pgxpool.Pool
	defaults domain.Limits
}

var _ domain.Ledger = (*Postgres)(nil)

func NewPostgres(db *pgxpool.Pool, defaults domain.Limits) *Postgres {
	return &Postgres{db: db, defaults: defaults}
}

// ensure creates the tenant's row with default ceilings if it is missing.
func (r *Postgres) ensure(ctx context.Context, tenantID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		insert into tenant_quotas (tenant_id, daily_limit, monthly_limit)
		values ($1, $2, $3)
		on conflict (tenant_id) do nothing`,
		tenantID, r.defaults.Daily, r.defaults.Monthly)
	if err != nil {
		return fmt.Errorf("quota ensure: %w", err)
	}
	return nil
}

func (r *Postgres) TryConsume(ctx context.Context, tenantID uuid.UUID, n int) error {
	if err := r.ensure(ctx, tenantID); err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, `
		update tenant_quotas set
			daily_count = (case when last_daily_reset < date_trunc('day', now()) then 0 else daily_count end) + $2,
			monthly_count = (case when last_monthly_reset < date_trunc('month', now()) then 0 else monthly_count end) + $2,
			last_daily_reset = greatest(last_daily_reset, date_trunc('day', now())),
			last_monthly_reset = greatest(last_monthly_reset, date_trunc('month', now())),
			updated_at = now()
		where tenant_id = $1
		  and (daily_limit = 0 or (case when last_daily_reset < date_trunc('day', now()) then 0 else daily_count end) + $2 <= daily_limit)
		  and (monthly_limit = 0 or (case when last_monthly_reset < date_trunc('month', now()) then 0 else monthly_count end) + $2 <= monthly_limit)`,
		tenantID, n)
	if err != nil {
		return fmt.Errorf("quota consume: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Denied: classify which ceiling blocked the request. Read-only; the
	// denied consume must leave counters untouched.
	q, err := r.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	if q.DailyLimit > 0 && q.DailyCount+n > q.DailyLimit {
		return domain.ErrDailyLimitExceeded
	}
	return domain.ErrMonthlyLimitExceeded
}

func (r *Postgres) Get(ctx context.Context, tenantID uuid.UUID) (domain.Quota, error) {
	if err := r.ensure(ctx, tenantID); err != nil {
		return domain.Quota{}, err
	}
	q := domain.Quota{TenantID: tenantID}
	err := r.db.QueryRow(ctx, `
		select daily_limit, monthly_limit,
			case when last_daily_reset < date_trunc('day', now()) then 0 else daily_count end,
			case when last_monthly_reset < date_trunc('month', now()) then 0 else monthly_count end,
			last_daily_reset, last_monthly_reset
		from tenant_quotas where tenant_id = $1`,
		tenantID).Scan(&q.DailyLimit, &q.MonthlyLimit, &q.DailyCount, &q.MonthlyCount, &q.LastDailyReset, &q.LastMonthlyReset)
	if err != nil {
		return domain.Quota{}, fmt.Errorf("quota get: %w", err)
	}
	return q, nil
}

func (r *Postgres) SetLimits(ctx context.Context, tenantID uuid.UUID, l domain.Limits) error {
	if err := r.ensure(ctx, tenantID); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `
		update tenant_quotas
		set daily_limit = $2, monthly_limit = $3, updated_at = now()
		where tenant_id = $1`,
		tenantID, l.Daily, l.Monthly)
	if err != nil {
		return fmt.Errorf("quota set limits: %w", err)
	}
	return nil
}
