// Package sms hands rendered messages to the delivery provider. Provider
// specifics stay behind a JSON webhook so this service never holds carrier
// credentials.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type Sender interface {
	Send(ctx context.Context, to string, body string) error
	ProviderID() string
}

type WebhookSender struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookSender(url string, token string) (*WebhookSender, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("sms webhook url not configured")
	}
	return &WebhookSender{
		url:   url,
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}, nil
}

func (s *WebhookSender) ProviderID() string {
	return "sms-webhook"
}

func (s *WebhookSender) Send(ctx context.Context, to string, body string) error {
	raw, err := json.Marshal(map[string]string{
		"to":   to,
		"body": body,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms webhook returned %d", resp.StatusCode)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them. Used when
// no provider is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) ProviderID() string {
	return "sms-log"
}

func (s LogSender) Send(ctx context.Context, to string, body string) error {
	s.Logger.InfoContext(ctx, "sms not delivered (log provider)", "to", to, "body", body)
	return nil
}
