package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

// SlackSender posts to a channel or user id with a bot token.
type SlackSender struct {
	api *slack.Client
}

// NewSlackSender creates a Slack sender. Extra options such as
// slack.OptionAPIURL are passed through to the client.
func NewSlackSender(botToken string, opts ...slack.Option) (*SlackSender, error) {
	if botToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	return &SlackSender{api: slack.New(botToken, opts...)}, nil
}

func (s *SlackSender) Send(ctx context.Context, channelID, subject, body string) error {
	channelID = strings.TrimPrefix(channelID, "#")
	text := fmt.Sprintf("*%s*\n%s", subject, body)
	_, _, err := s.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}
	return nil
}
