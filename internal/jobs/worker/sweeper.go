package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hivelearn/relay/internal/jobs/domain"
	"github.com/hivelearn/relay/internal/metrics"
)

// Sweeper periodically requeues active jobs whose lease has expired, so a
// job claimed by a crashed worker is eventually delivered again. Requeueing
// does not consume an attempt; the interrupted delivery may or may not have
// gone out, which is the at-least-once trade-off.
type Sweeper struct {
	store    domain.Store
	kinds    []domain.Kind
	interval time.Duration
	log      zerolog.Logger
}

func NewSweeper(store domain.Store, kinds []domain.Kind, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Sweeper{store: store, kinds: kinds, interval: interval, log: log}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	for _, kind := range s.kinds {
		n, err := s.store.RequeueExpired(ctx, kind)
		if err != nil {
			s.log.Warn().Err(err).Str("kind", string(kind)).Msg("lease sweep failed")
			continue
		}
		if n > 0 {
			metrics.AddLeaseRequeues(string(kind), n)
			s.log.Info().Str("kind", string(kind)).Int("requeued", n).Msg("requeued expired leases")
		}
	}
}
