package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hivelearn/relay/internal/jobs/domain"
	"github.com/hivelearn/relay/internal/jobs/repository"
)

// flakySender fails the first failures deliveries, then succeeds.
type flakySender struct {
	mu        sync.Mutex
	failures  int
	calls     int
	delivered []uuid.UUID
}

func (s *flakySender) Deliver(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("transport unavailable")
	}
	s.delivered = append(s.delivered, job.ID)
	return nil
}

func (s *flakySender) deliveredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func enqueue(t *testing.T, store *repository.Memory, kind domain.Kind, maxAttempts int) *domain.Job {
	t.Helper()
	now := time.Now()
	j := &domain.Job{
		ID:            uuid.New(),
		Kind:          kind,
		TenantID:      uuid.New(),
		Payload:       []byte(`{}`),
		MaxAttempts:   maxAttempts,
		State:         domain.StateWaiting,
		CreatedAt:     now,
		NextAttemptAt: now,
	}
	if err := store.Enqueue(context.Background(), j); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return j
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func runPool(t *testing.T, p *Pool) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestPool_DeliversAndAcks(t *testing.T) {
	store := repository.NewMemory(100, 50)
	sender := &flakySender{}
	for i := 0; i < 5; i++ {
		enqueue(t, store, domain.KindMail, 3)
	}

	p := New(store, sender, nil, Config{
		Kind:         domain.KindMail,
		Concurrency:  3,
		PollInterval: 5 * time.Millisecond,
		Lease:        time.Minute,
		RetryBase:    time.Millisecond,
	}, zerolog.Nop())
	runPool(t, p)

	waitFor(t, 2*time.Second, func() bool {
		st, _ := store.Stats(context.Background(), domain.KindMail)
		return st.Completed == 5
	})
	if sender.deliveredCount() != 5 {
		t.Fatalf("delivered = %d, want 5", sender.deliveredCount())
	}
}

func TestPool_RetriesUntilSuccess(t *testing.T) {
	store := repository.NewMemory(100, 50)
	sender := &flakySender{failures: 2}
	j := enqueue(t, store, domain.KindMail, 3)

	p := New(store, sender, nil, Config{
		Kind:         domain.KindMail,
		Concurrency:  1,
		PollInterval: 5 * time.Millisecond,
		Lease:        time.Minute,
		RetryBase:    time.Millisecond,
	}, zerolog.Nop())
	runPool(t, p)

	waitFor(t, 2*time.Second, func() bool {
		got, err := store.Get(context.Background(), j.ID)
		return err == nil && got.State == domain.StateCompleted
	})
	got, _ := store.Get(context.Background(), j.ID)
	if got.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2 failed attempts before success", got.Attempts)
	}
}

func TestPool_SingleAttemptKindFailsPermanently(t *testing.T) {
	store := repository.NewMemory(100, 50)
	sender := &flakySender{failures: 100}
	j := enqueue(t, store, domain.KindNotification, 1)

	p := New(store, sender, nil, Config{
		Kind:         domain.KindNotification,
		Concurrency:  1,
		PollInterval: 5 * time.Millisecond,
		Lease:        time.Minute,
		RetryBase:    time.Millisecond,
	}, zerolog.Nop())
	runPool(t, p)

	waitFor(t, 2*time.Second, func() bool {
		got, err := store.Get(context.Background(), j.ID)
		return err == nil && got.State == domain.StateFailed
	})
	got, _ := store.Get(context.Background(), j.ID)
	if got.Attempts != 1 {
		t.Fatalf("attempts = %d, want exactly 1", got.Attempts)
	}
	if got.Error == "" {
		t.Fatal("failure cause not recorded")
	}
}

func TestPool_ExhaustsBudgetThenFails(t *testing.T) {
	store := repository.NewMemory(100, 50)
	sender := &flakySender{failures: 100}
	j := enqueue(t, store, domain.KindMail, 3)

	p := New(store, sender, nil, Config{
		Kind:         domain.KindMail,
		Concurrency:  1,
		PollInterval: 5 * time.Millisecond,
		Lease:        time.Minute,
		RetryBase:    time.Millisecond,
	}, zerolog.Nop())
	runPool(t, p)

	waitFor(t, 2*time.Second, func() bool {
		got, err := store.Get(context.Background(), j.ID)
		return err == nil && got.State == domain.StateFailed
	})
	got, _ := store.Get(context.Background(), j.ID)
	if got.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", got.Attempts)
	}
}

func TestSweeper_RequeuesExpiredLeases(t *testing.T) {
	store := repository.NewMemory(100, 50)
	j := enqueue(t, store, domain.KindMail, 3)

	// Claim with a lease that is already as good as expired.
	if _, err := store.ClaimNext(context.Background(), domain.KindMail, time.Millisecond); err != nil {
		t.Fatalf("claim: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	s := NewSweeper(store, []domain.Kind{domain.KindMail}, 5*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitFor(t, 2*time.Second, func() bool {
		got, err := store.Get(context.Background(), j.ID)
		return err == nil && got.State == domain.StateWaiting
	})
}
