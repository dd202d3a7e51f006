package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hivelearn/relay/internal/config"
	edomain "github.com/hivelearn/relay/internal/email/domain"
)

// Ensure Brevo implements domain.Sender
var _ edomain.Sender = (*Brevo)(nil)

type Brevo struct {
	cfg  config.Config
	http *http.Client
}

func NewBrevo(cfg config.Config) *Brevo {
	return &Brevo{cfg: cfg, http: &http.Client{Timeout: 10 * time.Second}}
}

type brevoEmail struct {
	To          []map[string]string `json:"to"`
	Sender      map[string]string   `json:"sender"`
	Subject     string              `json:"subject"`
	TextContent string              `json:"textContent"`
}

func (b *Brevo) Send(ctx context.Context, tenantID uuid.UUID, to []string, subject, body string) error {
	if b.cfg.BrevoAPIKey == "" || b.cfg.BrevoSender == "" {
		return fmt.Errorf("brevo not configured")
	}
	recipients := make([]map[string]string, 0, len(to))
	for _, rcpt := range to {
		recipients = append(recipients, map[string]string{"email": rcpt})
	}
	payload := brevoEmail{
		To:          recipients,
		Sender:      map[string]string{"email": b.cfg.BrevoSender},
		Subject:     subject,
		TextContent: body,
	}
	buf, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.brevo.com/v3/smtp/email", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", b.cfg.BrevoAPIKey)
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("brevo send failed: %s", resp.Status)
	}
	return nil
}
