package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hivelearn/relay/internal/jobs/domain"
	"github.com/hivelearn/relay/internal/platform/backoff"
)

// Memory is an in-process Store with the same transition semantics as the
// Redis store. It backs tests and single-process local development; it is
// durable only for the life of the process.
type Memory struct {
	mu sync.Mutex

	jobs  map[uuid.UUID]*domain.Job
	kinds map[domain.Kind]*memKind

	retainCompleted int
	retainFailed    int

	now func() time.Time
}

type memKind struct {
	// completed/failed hold retained terminal jobs, most recent first.
	completed []uuid.UUID
	failed    []uuid.UUID
}

var _ domain.Store = (*Memory)(nil)

func NewMemory(retainCompleted, retainFailed int) *Memory {
	return &Memory{
		jobs:            make(map[uuid.UUID]*domain.Job),
		kinds:           make(map[domain.Kind]*memKind),
		retainCompleted: retainCompleted,
		retainFailed:    retainFailed,
		now:             time.Now,
	}
}

func (m *Memory) kind(k domain.Kind) *memKind {
	mk, ok := m.kinds[k]
	if !ok {
		mk = &memKind{}
		m.kinds[k] = mk
	}
	return mk
}

func (m *Memory) Enqueue(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *Memory) ClaimNext(ctx context.Context, kind domain.Kind, lease time.Duration) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var pick *domain.Job
	for _, j := range m.jobs {
		if j.Kind != kind || j.State != domain.StateWaiting || j.NextAttemptAt.After(now) {
			continue
		}
		if pick == nil || j.NextAttemptAt.Before(pick.NextAttemptAt) {
			pick = j
		}
	}
	if pick == nil {
		return nil, nil
	}
	pick.State = domain.StateActive
	pick.LastAttemptAt = now
	pick.LeaseExpiresAt = now.Add(lease)
	cp := *pick
	return &cp, nil
}

func (m *Memory) Ack(ctx context.Context, kind domain.Kind, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if j.State == domain.StateCompleted {
		return nil
	}
	j.State = domain.StateCompleted
	j.LeaseExpiresAt = time.Time{}
	j.Error = ""

	mk := m.kind(kind)
	mk.completed = append([]uuid.UUID{id}, mk.completed...)
	mk.completed = m.trim(mk.completed, m.retainCompleted)
	return nil
}

func (m *Memory) RetryOrFail(ctx context.Context, kind domain.Kind, id uuid.UUID, cause string, base time.Duration) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	now := m.now()
	j.Attempts++
	j.Error = cause
	j.LastAttemptAt = now
	j.LeaseExpiresAt = time.Time{}

	if j.Attempts < j.MaxAttempts {
		j.State = domain.StateWaiting
		j.NextAttemptAt = now.Add(backoff.Exponential{Base: base}.Delay(j.Attempts))
	} else {
		j.State = domain.StateFailed
		mk := m.kind(kind)
		mk.failed = append([]uuid.UUID{id}, mk.failed...)
		mk.failed = m.trim(mk.failed, m.retainFailed)
	}
	cp := *j
	return &cp, nil
}

func (m *Memory) RequeueExpired(ctx context.Context, kind domain.Kind) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for _, j := range m.jobs {
		if j.Kind != kind || j.State != domain.StateActive {
			continue
		}
		if j.LeaseExpiresAt.IsZero() || j.LeaseExpiresAt.After(now) {
			continue
		}
		j.State = domain.StateWaiting
		j.NextAttemptAt = now
		j.LeaseExpiresAt = time.Time{}
		n++
	}
	return n, nil
}

func (m *Memory) Replay(ctx context.Context, kind domain.Kind, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if j.State != domain.StateFailed {
		return domain.ErrJobNotFailed
	}
	mk := m.kind(kind)
	mk.failed = remove(mk.failed, id)
	j.State = domain.StateWaiting
	j.Attempts = 0
	j.Error = ""
	j.NextAttemptAt = m.now()
	return nil
}

func (m *Memory) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *Memory) Stats(ctx context.Context, kind domain.Kind) (domain.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s domain.Stats
	for _, j := range m.jobs {
		if j.Kind != kind {
			continue
		}
		switch j.State {
		case domain.StateWaiting:
			s.Waiting++
		case domain.StateActive:
			s.Active++
		case domain.StateCompleted:
			s.Completed++
		case domain.StateFailed:
			s.Failed++
		}
	}
	return s, nil
}

// trim drops records beyond the retention count and deletes their jobs.
func (m *Memory) trim(ids []uuid.UUID, retain int) []uuid.UUID {
	if retain <= 0 || len(ids) <= retain {
		return ids
	}
	for _, id := range ids[retain:] {
		delete(m.jobs, id)
	}
	return ids[:retain]
}

func remove(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
