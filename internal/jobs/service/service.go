package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hivelearn/relay/internal/config"
	edomain "github.com/hivelearn/relay/internal/events/domain"
	"github.com/hivelearn/relay/internal/jobs/domain"
	"github.com/hivelearn/relay/internal/metrics"
	qdomain "github.com/hivelearn/relay/internal/quota/domain"
)

// Policy is the per-kind delivery policy. Mail retries with exponential
// backoff; notifications get a single attempt (losing one is cheaper than
// re-nagging a user). Both are configuration, not guesses.
type Policy struct {
	MaxAttempts int
	RetryBase   time.Duration
}

// PoliciesFromConfig builds the per-kind policy table.
func PoliciesFromConfig(cfg config.Config) map[domain.Kind]Policy {
	return map[domain.Kind]Policy{
		domain.KindMail:         {MaxAttempts: cfg.MailMaxAttempts, RetryBase: cfg.MailRetryBase},
		domain.KindNotification: {MaxAttempts: cfg.NotifyMaxAttempts, RetryBase: cfg.NotifyRetryBase},
	}
}

// Service is the job producer: it admits submissions (schema + quota) and
// enqueues them, and serves the read paths (job detail, stats, replay).
type Service struct {
	store     domain.Store
	ledger    qdomain.Ledger
	events    edomain.Publisher
	admission *admission
	policies  map[domain.Kind]Policy
}

func New(store domain.Store, ledger qdomain.Ledger, events edomain.Publisher, policies map[domain.Kind]Policy) *Service {
	return &Service{
		store:     store,
		ledger:    ledger,
		events:    events,
		admission: newAdmission(),
		policies:  policies,
	}
}

// Policy returns the delivery policy for a kind.
func (s *Service) Policy(kind domain.Kind) Policy {
	return s.policies[kind]
}

// Submit admits and enqueues one job. The order is fixed: validation first
// (a rejected payload must not consume quota), then the atomic quota
// consume, then enqueue. If the enqueue fails after quota was consumed the
// consumption is not rolled back; the tenant is over-counted by one for the
// period. Accepted jobs start at attempts=0, state=waiting, eligible
// immediately.
func (s *Service) Submit(ctx context.Context, kind domain.Kind, tenantID uuid.UUID, payload json.RawMessage) (*domain.Job, error) {
	if err := s.admission.checkPayload(kind, payload); err != nil {
		metrics.IncSubmission(string(kind), "invalid_payload")
		return nil, err
	}

	if err := s.ledger.TryConsume(ctx, tenantID, 1); err != nil {
		switch {
		case errors.Is(err, qdomain.ErrDailyLimitExceeded):
			metrics.IncSubmission(string(kind), "quota_daily")
		case errors.Is(err, qdomain.ErrMonthlyLimitExceeded):
			metrics.IncSubmission(string(kind), "quota_monthly")
		default:
			metrics.IncSubmission(string(kind), "store_error")
		}
		s.publish(ctx, "job.quota_rejected", tenantID, uuid.Nil, map[string]string{"kind": string(kind)})
		return nil, err
	}

	now := time.Now()
	job := &domain.Job{
		ID:            uuid.New(),
		Kind:          kind,
		TenantID:      tenantID,
		Payload:       payload,
		Attempts:      0,
		MaxAttempts:   s.policies[kind].MaxAttempts,
		State:         domain.StateWaiting,
		CreatedAt:     now,
		NextAttemptAt: now,
	}
	if err := s.store.Enqueue(ctx, job); err != nil {
		metrics.IncSubmission(string(kind), "store_error")
		return nil, err
	}

	metrics.IncSubmission(string(kind), "accepted")
	s.publish(ctx, "job.accepted", tenantID, job.ID, map[string]string{"kind": string(kind)})
	return job, nil
}

// Get returns a job of the given kind by ID.
func (s *Service) Get(ctx context.Context, kind domain.Kind, id uuid.UUID) (*domain.Job, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Kind != kind {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

// Stats returns the per-state snapshot for a kind and mirrors it to the
// queue depth gauge.
func (s *Service) Stats(ctx context.Context, kind domain.Kind) (domain.Stats, error) {
	st, err := s.store.Stats(ctx, kind)
	if err != nil {
		return domain.Stats{}, err
	}
	metrics.SetQueueDepth(string(kind), st.Waiting, st.Active, st.Completed, st.Failed)
	return st, nil
}

// Replay requeues a failed job with its attempt budget reset. Replay does
// not pass admission again: the payload was valid and quota was paid when
// the job was first accepted.
func (s *Service) Replay(ctx context.Context, kind domain.Kind, id uuid.UUID) error {
	job, err := s.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := s.store.Replay(ctx, kind, id); err != nil {
		return err
	}
	s.publish(ctx, "job.replayed", job.TenantID, id, map[string]string{
		"kind":     string(kind),
		"attempts": strconv.Itoa(job.Attempts),
	})
	return nil
}

func (s *Service) publish(ctx context.Context, typ string, tenantID, jobID uuid.UUID, meta map[string]string) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, edomain.Event{
		Type:     typ,
		TenantID: tenantID,
		JobID:    jobID,
		Meta:     meta,
		Time:     time.Now().UTC(),
	})
}
