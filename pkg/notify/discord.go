// Package notify relays selected bus traffic to outside audiences. The
// Discord notifier posts the agent's responses and error-level system
// notices to a channel so a community can follow the run without the
// dashboard.
package notify

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/grvsrs/playclaw/pkg/bus"
	"github.com/grvsrs/playclaw/pkg/logger"
)

// DiscordNotifier is a sequential bus subscriber posting to one channel.
type DiscordNotifier struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscordNotifier opens a Discord session. The gateway connection is
// not needed for plain channel posts, so Open is skipped.
func NewDiscordNotifier(token, channelID string) (*DiscordNotifier, error) {
	if token == "" || channelID == "" {
		return nil, fmt.Errorf("discord token and channel are required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &DiscordNotifier{session: session, channelID: channelID}, nil
}

// Attach registers the notifier on the bus. Sequential: Discord rate
// limits make one in-flight post at a time the right shape, and the
// bounded subscriber queue absorbs bursts.
func (n *DiscordNotifier) Attach(mb *bus.MessageBus) error {
	return mb.Subscribe("discord-notify", n.handle, false)
}

func (n *DiscordNotifier) handle(msg bus.Message) error {
	var text string
	switch content := msg.Content.(type) {
	case bus.ResponseContent:
		text = content.Text
	case bus.SystemContent:
		if content.Level != bus.LevelError {
			return nil
		}
		text = "⚠ " + content.Message
	default:
		return nil
	}

	if len(text) > 1900 {
		text = text[:1900] + "…"
	}
	if _, err := n.session.ChannelMessageSend(n.channelID, text); err != nil {
		return fmt.Errorf("post to discord: %w", err)
	}
	logger.DebugCF("notify", "Posted to Discord", map[string]interface{}{"message_id": msg.ID})
	return nil
}

// Close releases the session.
func (n *DiscordNotifier) Close() error {
	return n.session.Close()
}
