package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind selects one of the two delivery pipelines. Each kind has its own
// queue, retry policy and payload schema.
type Kind string

const (
	KindMail         Kind = "mail"
	KindNotification Kind = "notification"
)

// ParseKind validates a kind string from an untrusted source (URL param).
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindMail, KindNotification:
		return Kind(s), nil
	}
	return "", ErrUnknownKind
}

// State is the job lifecycle state. Transitions are owned by the store:
// waiting -> active (claim), active -> completed (ack),
// active -> waiting (retry) and active -> failed (exhausted).
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Job is one unit of outbound communication.
type Job struct {
	ID          uuid.UUID
	Kind        Kind
	TenantID    uuid.UUID
	Payload     json.RawMessage
	Attempts    int
	MaxAttempts int
	State       State

	CreatedAt     time.Time
	LastAttemptAt time.Time // zero until first claim
	NextAttemptAt time.Time // earliest claim eligibility

	// LeaseExpiresAt is set while the job is active; a job whose lease has
	// expired is presumed orphaned by a dead worker and may be requeued.
	LeaseExpiresAt time.Time

	// Error holds the last failure reason. Set on retry and failed
	// transitions, cleared on completion.
	Error string
}

// MailPayload is the schema for kind=mail jobs.
type MailPayload struct {
	To      []string `json:"to" validate:"required,min=1,dive,email"`
	Subject string   `json:"subject" validate:"required"`
	Body    string   `json:"body" validate:"required"`
}

// NotificationPayload is the schema for kind=notification jobs. Data is an
// opaque structured event the platform fans out to users.
type NotificationPayload struct {
	Event       string         `json:"event" validate:"required"`
	RecipientID string         `json:"recipient_id,omitempty" validate:"omitempty,uuid"`
	Data        map[string]any `json:"data,omitempty"`
}

// Stats is a point-in-time snapshot of per-state job counts for one kind.
// It is eventually consistent with concurrent producers and workers.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

var (
	ErrUnknownKind    = errors.New("unknown job kind")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrJobNotFound    = errors.New("job not found")
	ErrJobNotFailed   = errors.New("job is not in failed state")
	// ErrStoreUnavailable wraps infrastructure faults from the backing
	// store. Producers surface it as a server error; workers treat it as
	// transient and keep polling without consuming an attempt.
	ErrStoreUnavailable = errors.New("queue store unavailable")
)

// Store is the durable queue backing both producer and workers. All
// mutating operations are durable before they return, and every multi-step
// transition is atomic with respect to concurrent callers.
type Store interface {
	// Enqueue persists the job and makes it claimable at job.NextAttemptAt.
	Enqueue(ctx context.Context, job *Job) error

	// ClaimNext atomically moves one eligible waiting job (NextAttemptAt <=
	// now) of the given kind to active under a lease and returns it. At most
	// one caller receives any given job. Returns (nil, nil) when no job is
	// eligible.
	ClaimNext(ctx context.Context, kind Kind, lease time.Duration) (*Job, error)

	// Ack marks an active job completed and applies the completed-retention
	// trim. Acking an already-completed job is a no-op.
	Ack(ctx context.Context, kind Kind, id uuid.UUID) error

	// RetryOrFail records a delivery failure: it increments Attempts and
	// either reschedules the job (state back to waiting, NextAttemptAt set
	// by exponential backoff on base) or, when attempts have reached
	// MaxAttempts, marks it failed and applies the failed-retention trim.
	// The returned job reflects the post-transition record.
	RetryOrFail(ctx context.Context, kind Kind, id uuid.UUID, cause string, base time.Duration) (*Job, error)

	// RequeueExpired returns expired-lease active jobs of the kind to
	// waiting without consuming an attempt. Returns how many were requeued.
	RequeueExpired(ctx context.Context, kind Kind) (int, error)

	// Replay resets a failed job (attempts back to zero) and requeues it for
	// immediate claim. Returns ErrJobNotFailed unless the job is failed.
	Replay(ctx context.Context, kind Kind, id uuid.UUID) error

	// Get returns a job by ID or ErrJobNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Job, error)

	// Stats returns a snapshot of per-state counts for the kind. Completed
	// and failed counts reflect retained records only.
	Stats(ctx context.Context, kind Kind) (Stats, error)
}

// Sender delivers a claimed job's payload. Implementations are the actual
// transports (SMTP/provider API for mail, platform webhook for
// notifications); any returned error counts as a delivery failure.
type Sender interface {
	Deliver(ctx context.Context, job *Job) error
}
