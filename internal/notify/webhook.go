package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// SignatureHeader carries the hex HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-Recap-Signature"

// WebhookPayload is the JSON body posted to webhook recipients.
type WebhookPayload struct {
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// WebhookSender posts JSON notifications with resty.
type WebhookSender struct {
	client *resty.Client
	secret string
}

// NewWebhookSender creates a webhook sender.
func NewWebhookSender(timeout time.Duration, secret string) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &WebhookSender{client: client, secret: secret}
}

func (s *WebhookSender) Send(ctx context.Context, url, subject, body string) error {
	payload, err := json.Marshal(WebhookPayload{Subject: subject, Body: body, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req := s.client.R().SetContext(ctx).SetBody(payload)
	if s.secret != "" {
		req.SetHeader(SignatureHeader, Sign(s.secret, payload))
	}
	resp, err := req.Post(url)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode())
	}
	return nil
}

// Sign computes the signature receivers verify against SignatureHeader.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
