package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hivelearn/relay/internal/quota/domain"
)

func TestMemoryTryConsume_DailyLimit(t *testing.T) {
	ctx := context.Background()
	r := NewMemory(domain.Limits{Daily: 2, Monthly: 0})
	tenant := uuid.New()

	if err := r.TryConsume(ctx, tenant, 1); err != nil {
		t.Fatalf("consume #1: %v", err)
	}
	if err := r.TryConsume(ctx, tenant, 1); err != nil {
		t.Fatalf("consume #2: %v", err)
	}
	err := r.TryConsume(ctx, tenant, 1)
	if !errors.Is(err, domain.ErrDailyLimitExceeded) {
		t.Fatalf("consume #3: expected daily limit error, got %v", err)
	}

	// A denied consume must not mutate counters.
	q, err := r.Get(ctx, tenant)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if q.DailyCount != 2 || q.MonthlyCount != 2 {
		t.Fatalf("expected counts 2/2 after denial, got %d/%d", q.DailyCount, q.MonthlyCount)
	}
}

func TestMemoryTryConsume_MonthlyLimit(t *testing.T) {
	ctx := context.Background()
	r := NewMemory(domain.Limits{Daily: 0, Monthly: 1})
	tenant := uuid.New()

	if err := r.TryConsume(ctx, tenant, 1); err != nil {
		t.Fatalf("consume #1: %v", err)
	}
	if err := r.TryConsume(ctx, tenant, 1); !errors.Is(err, domain.ErrMonthlyLimitExceeded) {
		t.Fatalf("expected monthly limit error, got %v", err)
	}
}

func TestMemoryTryConsume_ZeroLimitIsUnlimited(t *testing.T) {
	ctx := context.Background()
	r := NewMemory(domain.Limits{})
	tenant := uuid.New()

	for i := 0; i < 500; i++ {
		if err := r.TryConsume(ctx, tenant, 1); err != nil {
			t.Fatalf("consume #%d: %v", i, err)
		}
	}
}

func TestMemoryRollover_ResetsDailyCount(t *testing.T) {
	ctx := context.Background()
	r := NewMemory(domain.Limits{Daily: 2})
	tenant := uuid.New()

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	if err := r.TryConsume(ctx, tenant, 1); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := r.TryConsume(ctx, tenant, 1); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := r.TryConsume(ctx, tenant, 1); !errors.Is(err, domain.ErrDailyLimitExceeded) {
		t.Fatalf("expected daily limit error, got %v", err)
	}

	// More than a day later the exhausted counter rolls over and the next
	// check succeeds.
	r.now = func() time.Time { return base.Add(25 * time.Hour) }
	if err := r.TryConsume(ctx, tenant, 1); err != nil {
		t.Fatalf("consume after rollover: %v", err)
	}
	q, _ := r.Get(ctx, tenant)
	if q.DailyCount != 1 {
		t.Fatalf("expected daily count 1 after rollover, got %d", q.DailyCount)
	}
	if q.MonthlyCount != 4 {
		t.Fatalf("expected monthly count 4 (no monthly rollover), got %d", q.MonthlyCount)
	}
}

func TestMemoryTryConsume_ConcurrentSameTenant(t *testing.T) {
	ctx := context.Background()
	r := NewMemory(domain.Limits{Daily: 50})
	tenant := uuid.New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.TryConsume(ctx, tenant, 1); err == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Fatalf("expected exactly 50 allowed, got %d", allowed)
	}
	q, _ := r.Get(ctx, tenant)
	if q.DailyCount != 50 {
		t.Fatalf("expected daily count 50, got %d", q.DailyCount)
	}
}

func TestMemorySetLimits_KeepsCounters(t *testing.T) {
	ctx := context.Background()
	r := NewMemory(domain.Limits{Daily: 1})
	tenant := uuid.New()

	if err := r.TryConsume(ctx, tenant, 1); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := r.SetLimits(ctx, tenant, domain.Limits{Daily: 10, Monthly: 100}); err != nil {
		t.Fatalf("set limits: %v", err)
	}
	q, _ := r.Get(ctx, tenant)
	if q.DailyLimit != 10 || q.MonthlyLimit != 100 {
		t.Fatalf("limits not applied: %+v", q)
	}
	if q.DailyCount != 1 {
		t.Fatalf("counter changed by SetLimits: %d", q.DailyCount)
	}
	if err := r.TryConsume(ctx, tenant, 1); err != nil {
		t.Fatalf("consume after raise: %v", err)
	}
}
