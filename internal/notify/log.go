package notify

import (
	"context"
	"sync"

	"github.com/timmy/recap/internal/logger"
)

// Message is a notification captured by LogSender.
type Message struct {
	Recipient string
	Subject   string
	Body      string
}

// LogSender writes notifications to the log and keeps them in memory.
// It backs the log: channel used by local runs and synthetic QA meetings.
type LogSender struct {
	mu       sync.Mutex
	messages []Message
	reject   map[string]error
}

// NewLogSender creates an empty LogSender.
func NewLogSender() *LogSender {
	return &LogSender{reject: map[string]error{}}
}

// FailFor makes every send to recipient return err.
func (s *LogSender) FailFor(recipient string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject[recipient] = err
}

func (s *LogSender) Send(ctx context.Context, recipient, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reject[recipient]; err != nil {
		return err
	}
	s.messages = append(s.messages, Message{Recipient: recipient, Subject: subject, Body: body})
	logger.FromContext(ctx).WithField("recipient", recipient).Infof("notification: %s", subject)
	return nil
}

// Messages returns a copy of everything sent so far.
func (s *LogSender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}
