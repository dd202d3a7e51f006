// Package notify delivers in-app notification events back to the platform
// over a webhook; the web application fans them out to connected users.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

type Webhook struct {
	url  string
	http *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{url: url, http: &http.Client{Timeout: 10 * time.Second}}
}

// Post sends the raw notification event JSON. The tenant travels in a
// header so the receiver can route without parsing the body.
func (w *Webhook) Post(ctx context.Context, tenantID string, event []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(event))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Relay-Tenant", tenantID)
	resp, err := w.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook failed: %s", resp.Status)
	}
	return nil
}
