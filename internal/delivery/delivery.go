// Package delivery adapts the concrete transports (email provider,
// notification webhook) onto the worker-facing Sender contract.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	edomain "github.com/hivelearn/relay/internal/email/domain"
	"github.com/hivelearn/relay/internal/jobs/domain"
	"github.com/hivelearn/relay/internal/notify"
)

// Mail delivers kind=mail jobs through an email Sender.
type Mail struct {
	email edomain.Sender
}

var _ domain.Sender = (*Mail)(nil)

func NewMail(email edomain.Sender) *Mail { return &Mail{email: email} }

func (m *Mail) Deliver(ctx context.Context, job *domain.Job) error {
	var p domain.MailPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		// Admission validated this payload; a parse failure here means the
		// stored record is corrupt, not that the transport failed.
		return fmt.Errorf("corrupt mail payload: %w", err)
	}
	return m.email.Send(ctx, job.TenantID, p.To, p.Subject, p.Body)
}

// Notification delivers kind=notification jobs to the platform webhook.
type Notification struct {
	webhook *notify.Webhook
}

var _ domain.Sender = (*Notification)(nil)

func NewNotification(webhook *notify.Webhook) *Notification {
	return &Notification{webhook: webhook}
}

func (n *Notification) Deliver(ctx context.Context, job *domain.Job) error {
	return n.webhook.Post(ctx, job.TenantID.String(), job.Payload)
}
