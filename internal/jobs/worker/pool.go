package worker

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	edomain "github.com/hivelearn/relay/internal/events/domain"
	"github.com/hivelearn/relay/internal/jobs/domain"
	"github.com/hivelearn/relay/internal/metrics"
)

const deliverTimeout = 30 * time.Second

// Config sets up one pool. A pool serves a single kind; run one pool per
// kind per worker process.
type Config struct {
	Kind         domain.Kind
	Concurrency  int
	PollInterval time.Duration
	Lease        time.Duration
	RetryBase    time.Duration
}

// Pool runs Concurrency claim-deliver loops against the store. Workers are
// stateless and interchangeable; the store's atomic claim is what prevents
// two of them delivering the same job. A worker that dies mid-delivery
// leaves the job active until its lease expires and the sweeper requeues it.
type Pool struct {
	store  domain.Store
	sender domain.Sender
	events edomain.Publisher
	cfg    Config
	log    zerolog.Logger

	wg sync.WaitGroup
}

func New(store domain.Store, sender domain.Sender, events edomain.Publisher, cfg Config, log zerolog.Logger) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = time.Minute
	}
	return &Pool{store: store, sender: sender, events: events, cfg: cfg, log: log}
}

// Run starts the workers and blocks until ctx is cancelled and all
// in-flight deliveries have finished.
func (p *Pool) Run(ctx context.Context) {
	p.log.Info().
		Str("kind", string(p.cfg.Kind)).
		Int("concurrency", p.cfg.Concurrency).
		Dur("lease", p.cfg.Lease).
		Msg("worker pool starting")

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.loop(ctx)
		}()
	}
	p.wg.Wait()
}

func (p *Pool) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := p.store.ClaimNext(ctx, p.cfg.Kind, p.cfg.Lease)
		if err != nil {
			// Infrastructure fault: no attempt was consumed, keep polling.
			p.log.Warn().Err(err).Str("kind", string(p.cfg.Kind)).Msg("claim failed")
			p.sleep(ctx)
			continue
		}
		if job == nil {
			p.sleep(ctx)
			continue
		}
		p.execute(ctx, job)
	}
}

func (p *Pool) execute(ctx context.Context, job *domain.Job) {
	dctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	err := p.sender.Deliver(dctx, job)
	cancel()

	if err == nil {
		if ackErr := p.store.Ack(ctx, job.Kind, job.ID); ackErr != nil {
			p.log.Error().Err(ackErr).Stringer("job_id", job.ID).Msg("ack failed")
			return
		}
		metrics.IncDelivery(string(job.Kind), "delivered")
		p.publish(ctx, "job.completed", job.TenantID, job.ID, map[string]string{
			"kind":     string(job.Kind),
			"attempts": strconv.Itoa(job.Attempts + 1),
		})
		return
	}

	after, rErr := p.store.RetryOrFail(ctx, job.Kind, job.ID, err.Error(), p.cfg.RetryBase)
	if rErr != nil {
		p.log.Error().Err(rErr).Stringer("job_id", job.ID).Msg("retry-or-fail failed")
		return
	}
	if after.State == domain.StateFailed {
		metrics.IncDelivery(string(job.Kind), "failed")
		p.log.Warn().
			Stringer("job_id", job.ID).
			Str("kind", string(job.Kind)).
			Int("attempts", after.Attempts).
			Str("cause", after.Error).
			Msg("job failed permanently")
		p.publish(ctx, "job.failed", job.TenantID, job.ID, map[string]string{
			"kind":     string(job.Kind),
			"attempts": strconv.Itoa(after.Attempts),
			"error":    after.Error,
		})
		return
	}
	metrics.IncDelivery(string(job.Kind), "retried")
	p.log.Debug().
		Stringer("job_id", job.ID).
		Int("attempts", after.Attempts).
		Time("next_attempt_at", after.NextAttemptAt).
		Msg("job rescheduled")
}

func (p *Pool) sleep(ctx context.Context) {
	t := time.NewTimer(p.cfg.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (p *Pool) publish(ctx context.Context, typ string, tenantID, jobID uuid.UUID, meta map[string]string) {
	if p.events == nil {
		return
	}
	_ = p.events.Publish(ctx, edomain.Event{
		Type:     typ,
		TenantID: tenantID,
		JobID:    jobID,
		Meta:     meta,
		Time:     time.Now().UTC(),
	})
}
