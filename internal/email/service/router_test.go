package service

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/hivelearn/relay/internal/config"
)

type captureSender struct {
	called     bool
	lastTo     []string
	lastSub    string
	lastBody   string
	lastTenant uuid.UUID
}

func (c *captureSender) Send(ctx context.Context, tenantID uuid.UUID, to []string, subject, body string) error {
	c.called = true
	c.lastTo, c.lastSub, c.lastBody = to, subject, body
	c.lastTenant = tenantID
	return nil
}

func TestRouter_SelectsSMTP(t *testing.T) {
	tenant := uuid.New()
	cfg, _ := config.Load()
	cfg.EmailProvider = "smtp"
	r := NewRouter(cfg)
	// swap implementations with captures so we don't hit network
	smtpCap := &captureSender{}
	brevoCap := &captureSender{}
	r.smtp = smtpCap
	r.brevo = brevoCap

	if err := r.Send(context.Background(), tenant, []string{"a@b.com"}, "sub", "body"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !smtpCap.called || brevoCap.called {
		t.Fatalf("expected smtp called, brevo not called")
	}
}

func TestRouter_SelectsBrevo(t *testing.T) {
	tenant := uuid.New()
	cfg, _ := config.Load()
	cfg.EmailProvider = "brevo"
	r := NewRouter(cfg)
	smtpCap := &captureSender{}
	brevoCap := &captureSender{}
	r.smtp = smtpCap
	r.brevo = brevoCap

	if err := r.Send(context.Background(), tenant, []string{"a@b.com"}, "sub", "body"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !brevoCap.called || smtpCap.called {
		t.Fatalf("expected brevo called, smtp not called")
	}
}
