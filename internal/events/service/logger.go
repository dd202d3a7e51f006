package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/hivelearn/relay/internal/events/domain"
)

// Logger is a Publisher that writes events to the injected process logger.
// In production, replace with a queue or external sink.

type Logger struct {
	log zerolog.Logger
}

func NewLogger(log zerolog.Logger) *Logger {
	return &Logger{log: log}
}

func (l *Logger) Publish(ctx context.Context, e domain.Event) error {
	l.log.Info().
		Str("type", e.Type).
		Str("tenant_id", e.TenantID.String()).
		Str("job_id", e.JobID.String()).
		Fields(map[string]any{"meta": e.Meta}).
		Time("ts", e.Time).
		Msg("event")
	return nil
}
