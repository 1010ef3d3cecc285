package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Discord)(nil)

const colorAlert = 0xff0000

// embedSender is the subset of *discordgo.Session used for alerts.
type embedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts alerts as embeds to a moderator channel.
type Discord struct {
	session   embedSender
	channelID string
	source    string
}

// NewDiscord creates a bot session for token. The session is REST-only: no
// gateway connection is opened.
func NewDiscord(token, channelID, source string) (*Discord, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return newDiscord(s, channelID, source), nil
}

func newDiscord(s embedSender, channelID, source string) *Discord {
	return &Discord{session: s, channelID: channelID, source: source}
}

// Alert sends message to the configured channel.
func (d *Discord) Alert(ctx context.Context, message string) error {
	embed := &discordgo.MessageEmbed{
		Title:       "Trade confirmation alert",
		Description: message,
		Color:       colorAlert,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: d.source},
	}

	if _, err := d.session.ChannelMessageSendEmbed(d.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord alert: %w", err)
	}
	return nil
}
