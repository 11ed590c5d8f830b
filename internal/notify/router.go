package notify

import (
	"context"
	"fmt"

	"github.com/timmy/recap/internal/logger"
	"github.com/timmy/recap/internal/metrics"
)

// Router dispatches each recipient to the sender of its channel.
type Router struct {
	senders map[string]Sender
	metrics metrics.Sink
}

// NewRouter creates an empty router. A nil sink disables metrics.
func NewRouter(sink metrics.Sink) *Router {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Router{senders: map[string]Sender{}, metrics: sink}
}

// Register installs the sender for a channel, replacing any previous one.
func (r *Router) Register(channel string, s Sender) *Router {
	r.senders[channel] = s
	return r
}

// Has reports whether a channel has a sender.
func (r *Router) Has(channel string) bool {
	_, ok := r.senders[channel]
	return ok
}

// Send validates the recipient and forwards to its channel.
func (r *Router) Send(ctx context.Context, recipient, subject, body string) error {
	channel, address, err := ChannelOf(recipient)
	if err != nil {
		r.metrics.NotificationSent(metrics.ChannelUnknown, false)
		return err
	}
	s, ok := r.senders[channel]
	if !ok {
		r.metrics.NotificationSent(channel, false)
		return fmt.Errorf("%w: %s", ErrNoChannel, channel)
	}
	if err := s.Send(ctx, address, subject, body); err != nil {
		r.metrics.NotificationSent(channel, false)
		logger.FromContext(ctx).WithError(err).WithField("channel", channel).Warn("notification failed")
		return fmt.Errorf("%s: %w", channel, err)
	}
	r.metrics.NotificationSent(channel, true)
	return nil
}
