package domain

import (
	"context"

	"github.com/google/uuid"
)

// Sender is a pluggable email sending interface. tenantID identifies the
// sending tenant for provider-side attribution; use uuid.Nil for global.
// subject/body are plain text; HTML can be added later if needed.
type Sender interface {
	Send(ctx context.Context, tenantID uuid.UUID, to []string, subject string, body string) error
}
