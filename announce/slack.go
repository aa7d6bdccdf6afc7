// Package announce posts freshly submitted stories to a Slack channel.
package announce

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/tommell/broadsheet"
)

// A SlackAnnouncer publishes new stories to a channel. Wire its Hook into
// the server's story hooks.
type SlackAnnouncer struct {
	client    *slack.Client
	channelID string
	baseURL   string
	logger    zerolog.Logger
}

func NewSlackAnnouncer(token string, channelID string, baseURL string, logger zerolog.Logger) *SlackAnnouncer {
	return &SlackAnnouncer{
		client:    slack.New(token),
		channelID: channelID,
		baseURL:   baseURL,
		logger:    logger,
	}
}

// Hook returns the story hook announcing submissions. Failures are logged
// and swallowed, a missing announcement must not fail a submission.
func (a *SlackAnnouncer) Hook() func(*broadsheet.Story) error {
	return func(story *broadsheet.Story) error {
		text := fmt.Sprintf("%s (%s) submitted by %s — %s/stories/%d/comments",
			story.Title, story.BaseURL, story.Author, a.baseURL, story.ID)
		if story.URL == "" {
			text = fmt.Sprintf("%s submitted by %s — %s/stories/%d/comments",
				story.Title, story.Author, a.baseURL, story.ID)
		}

		_, _, err := a.client.PostMessage(a.channelID, slack.MsgOptionText(text, false))
		if err != nil {
			a.logger.Warn().Err(err).Int64("story", story.ID).Msg("failed to announce story")
		}

		return nil
	}
}
