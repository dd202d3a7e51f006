package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hivelearn/relay/internal/config"
	"github.com/hivelearn/relay/internal/jobs/domain"
	"github.com/hivelearn/relay/internal/jobs/repository"
	qdomain "github.com/hivelearn/relay/internal/quota/domain"
	qrepo "github.com/hivelearn/relay/internal/quota/repository"
)

func testPolicies() map[domain.Kind]Policy {
	return map[domain.Kind]Policy{
		domain.KindMail:         {MaxAttempts: 3, RetryBase: 2 * time.Second},
		domain.KindNotification: {MaxAttempts: 1, RetryBase: 2 * time.Second},
	}
}

func newTestService(limits qdomain.Limits) (*Service, *repository.Memory, *qrepo.Memory) {
	store := repository.NewMemory(100, 50)
	ledger := qrepo.NewMemory(limits)
	return New(store, ledger, nil, testPolicies()), store, ledger
}

func TestPoliciesFromConfig_PerKindKnobs(t *testing.T) {
	cfg := config.Config{
		MailMaxAttempts:   3,
		MailRetryBase:     2 * time.Second,
		NotifyMaxAttempts: 2,
		NotifyRetryBase:   500 * time.Millisecond,
	}
	p := PoliciesFromConfig(cfg)
	require.Equal(t, Policy{MaxAttempts: 3, RetryBase: 2 * time.Second}, p[domain.KindMail])
	// The notification backoff follows its own knob, not the mail one.
	require.Equal(t, Policy{MaxAttempts: 2, RetryBase: 500 * time.Millisecond}, p[domain.KindNotification])
}

func validMail() json.RawMessage {
	return json.RawMessage(`{"to":["a@example.com"],"subject":"hi","body":"hello"}`)
}

func TestSubmit_AcceptedJobShape(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newTestService(qdomain.Limits{})
	tenant := uuid.New()

	job, err := s.Submit(ctx, domain.KindMail, tenant, validMail())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.ID == uuid.Nil {
		t.Fatal("job has no id")
	}
	if job.State != domain.StateWaiting || job.Attempts != 0 {
		t.Fatalf("state=%s attempts=%d", job.State, job.Attempts)
	}
	if job.MaxAttempts != 3 {
		t.Fatalf("max attempts = %d, want 3 for mail", job.MaxAttempts)
	}
	if job.TenantID != tenant {
		t.Fatalf("tenant = %s, want %s", job.TenantID, tenant)
	}

	stored, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("stored job: %v", err)
	}
	if stored.State != domain.StateWaiting {
		t.Fatalf("stored state = %s", stored.State)
	}
}

func TestSubmit_NotificationSingleAttempt(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(qdomain.Limits{})

	job, err := s.Submit(ctx, domain.KindNotification, uuid.New(), json.RawMessage(`{"event":"course.published"}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.MaxAttempts != 1 {
		t.Fatalf("max attempts = %d, want 1 for notification", job.MaxAttempts)
	}
}

func TestSubmit_InvalidPayloadConsumesNoQuota(t *testing.T) {
	ctx := context.Background()
	s, store, ledger := newTestService(qdomain.Limits{Daily: 5})
	tenant := uuid.New()

	cases := []json.RawMessage{
		json.RawMessage(`not json`),
		json.RawMessage(`{"subject":"hi","body":"x"}`),              // missing recipients
		json.RawMessage(`{"to":["nope"],"subject":"s","body":"b"}`), // bad address
	}
	for _, payload := range cases {
		if _, err := s.Submit(ctx, domain.KindMail, tenant, payload); !errors.Is(err, domain.ErrInvalidPayload) {
			t.Fatalf("payload %s: expected invalid payload, got %v", payload, err)
		}
	}

	q, err := ledger.Get(ctx, tenant)
	if err == nil && q.DailyCount != 0 {
		t.Fatalf("daily count = %d after rejected submissions, want 0", q.DailyCount)
	}
	st, _ := store.Stats(ctx, domain.KindMail)
	if st.Waiting != 0 {
		t.Fatalf("waiting = %d, want 0", st.Waiting)
	}
}

func TestSubmit_UnknownKind(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(qdomain.Limits{})

	if _, err := s.Submit(ctx, domain.Kind("sms"), uuid.New(), validMail()); !errors.Is(err, domain.ErrUnknownKind) {
		t.Fatalf("expected unknown kind, got %v", err)
	}
}

func TestSubmit_QuotaDenialDoesNotEnqueue(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newTestService(qdomain.Limits{Daily: 2})
	tenant := uuid.New()

	for i := 0; i < 2; i++ {
		if _, err := s.Submit(ctx, domain.KindMail, tenant, validMail()); err != nil {
			t.Fatalf("submit #%d: %v", i+1, err)
		}
	}
	if _, err := s.Submit(ctx, domain.KindMail, tenant, validMail()); !errors.Is(err, qdomain.ErrDailyLimitExceeded) {
		t.Fatalf("expected daily limit, got %v", err)
	}

	st, _ := store.Stats(ctx, domain.KindMail)
	if st.Waiting != 2 {
		t.Fatalf("waiting = %d, want 2", st.Waiting)
	}
}

func TestSubmit_QuotaIsPerTenant(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(qdomain.Limits{Daily: 1})
	a, b := uuid.New(), uuid.New()

	if _, err := s.Submit(ctx, domain.KindMail, a, validMail()); err != nil {
		t.Fatalf("tenant a: %v", err)
	}
	if _, err := s.Submit(ctx, domain.KindMail, a, validMail()); !errors.Is(err, qdomain.ErrDailyLimitExceeded) {
		t.Fatalf("tenant a second submit: %v", err)
	}
	// Tenant b has its own ledger row.
	if _, err := s.Submit(ctx, domain.KindMail, b, validMail()); err != nil {
		t.Fatalf("tenant b: %v", err)
	}
}

func TestGet_KindMismatchIsNotFound(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(qdomain.Limits{})

	job, err := s.Submit(ctx, domain.KindMail, uuid.New(), validMail())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.Get(ctx, domain.KindNotification, job.ID); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("expected not found across kinds, got %v", err)
	}
	if _, err := s.Get(ctx, domain.KindMail, job.ID); err != nil {
		t.Fatalf("same kind: %v", err)
	}
}

func TestReplay_RequiresFailedState(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newTestService(qdomain.Limits{})
	tenant := uuid.New()

	job, err := s.Submit(ctx, domain.KindNotification, tenant, json.RawMessage(`{"event":"x"}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := s.Replay(ctx, domain.KindNotification, job.ID); !errors.Is(err, domain.ErrJobNotFailed) {
		t.Fatalf("replay of waiting job: %v", err)
	}

	// Exhaust the single attempt so the job fails.
	if _, err := store.ClaimNext(ctx, domain.KindNotification, time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.RetryOrFail(ctx, domain.KindNotification, job.ID, "webhook 500", 2*time.Second); err != nil {
		t.Fatalf("fail: %v", err)
	}

	if err := s.Replay(ctx, domain.KindNotification, job.ID); err != nil {
		t.Fatalf("replay: %v", err)
	}
	got, _ := store.Get(ctx, job.ID)
	if got.State != domain.StateWaiting || got.Attempts != 0 {
		t.Fatalf("after replay: state=%s attempts=%d", got.State, got.Attempts)
	}
}
