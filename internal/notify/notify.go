// Package notify delivers "report ready" messages over Slack, webhooks, email
// and an in-process log channel.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
)

var (
	// ErrInvalidRecipient is returned for a recipient no channel accepts.
	ErrInvalidRecipient = errors.New("invalid recipient")
	// ErrNoChannel is returned when the recipient's channel is not configured.
	ErrNoChannel = errors.New("notification channel not configured")
)

// Channel names.
const (
	ChannelSlack   = "slack"
	ChannelWebhook = "webhook"
	ChannelEmail   = "email"
	ChannelLog     = "log"
)

// Sender delivers one message to one recipient.
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// ChannelOf classifies a recipient by its shape:
//
//	slack:#general, slack:C0123     -> slack
//	https://hooks.example.com/x     -> webhook
//	alice@example.com, mailto:a@b.c -> email
//	log:anything                    -> log
func ChannelOf(recipient string) (channel, address string, err error) {
	r := strings.TrimSpace(recipient)
	lower := strings.ToLower(r)
	switch {
	case strings.HasPrefix(lower, "slack:") && len(r) > len("slack:"):
		return ChannelSlack, r[len("slack:"):], nil
	case strings.HasPrefix(lower, "log:") && len(r) > len("log:"):
		return ChannelLog, r[len("log:"):], nil
	case strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://"):
		return ChannelWebhook, r, nil
	case strings.HasPrefix(lower, "mailto:"):
		r = r[len("mailto:"):]
	}
	if strings.Contains(r, "@") {
		addr, perr := mail.ParseAddress(r)
		if perr == nil {
			return ChannelEmail, addr.Address, nil
		}
	}
	return "", "", fmt.Errorf("%w: %q", ErrInvalidRecipient, recipient)
}

// FanOutResult is the outcome of sending one message to many recipients.
type FanOutResult struct {
	Delivered []string
	Failed    map[string]string
}

// AllFailed reports whether nothing was delivered.
func (r *FanOutResult) AllFailed() bool {
	return len(r.Delivered) == 0
}

// Summary renders a short, stable description for run records.
func (r *FanOutResult) Summary() string {
	s := fmt.Sprintf("delivered %d/%d", len(r.Delivered), len(r.Delivered)+len(r.Failed))
	if len(r.Failed) == 0 {
		return s
	}
	failed := make([]string, 0, len(r.Failed))
	for recipient, reason := range r.Failed {
		failed = append(failed, recipient+": "+reason)
	}
	sort.Strings(failed)
	return s + "; failed " + strings.Join(failed, "; ")
}

// FanOut sends the message to every recipient. A failing recipient never
// aborts the batch.
func FanOut(ctx context.Context, s Sender, recipients []string, subject, body string) *FanOutResult {
	res := &FanOutResult{Failed: map[string]string{}}
	for _, recipient := range recipients {
		if err := s.Send(ctx, recipient, subject, body); err != nil {
			res.Failed[recipient] = err.Error()
			continue
		}
		res.Delivered = append(res.Delivered, recipient)
	}
	return res
}
