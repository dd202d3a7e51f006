package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event represents a job lifecycle/audit event.
// Type examples: "job.accepted", "job.completed", "job.failed",
// "job.quota_rejected", "job.lease_requeued".
// Meta may contain kind, attempts, error, etc.
type Event struct {
	Type     string
	TenantID uuid.UUID
	JobID    uuid.UUID
	Meta     map[string]string
	Time     time.Time
}

// Publisher publishes events to an external system (log, queue, etc.).
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
