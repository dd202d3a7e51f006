package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/hivelearn/relay/internal/config"
	edomain "github.com/hivelearn/relay/internal/email/domain"
)

// Ensure Router implements domain.Sender
var _ edomain.Sender = (*Router)(nil)

// Router picks the provider configured via EMAIL_PROVIDER.
type Router struct {
	cfg   config.Config
	smtp  edomain.Sender
	brevo edomain.Sender
}

func NewRouter(cfg config.Config) *Router {
	return &Router{cfg: cfg, smtp: NewSMTP(cfg), brevo: NewBrevo(cfg)}
}

func (r *Router) Send(ctx context.Context, tenantID uuid.UUID, to []string, subject, body string) error {
	switch strings.ToLower(r.cfg.EmailProvider) {
	case "brevo":
		return r.brevo.Send(ctx, tenantID, to, subject, body)
	default:
		return r.smtp.Send(ctx, tenantID, to, subject, body)
	}
}
