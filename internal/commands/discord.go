package commands

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/tarumae-dj/pkg/logging"
	"github.com/latoulicious/tarumae-dj/pkg/playback"
)

// MessageSender is the part of a discordgo session used for replies
type MessageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordReplier sends command output through a Discord session
type DiscordReplier struct {
	session MessageSender
}

func NewDiscordReplier(session MessageSender) *DiscordReplier {
	return &DiscordReplier{session: session}
}

func (d *DiscordReplier) Send(channelID, content string) error {
	_, err := d.session.ChannelMessageSend(channelID, content)
	return err
}

func (d *DiscordReplier) Reply(channelID, messageID, content string) error {
	if messageID == "" {
		return d.Send(channelID, content)
	}
	_, err := d.session.ChannelMessageSendReply(channelID, content, &discordgo.MessageReference{
		MessageID: messageID,
		ChannelID: channelID,
	})
	return err
}

func (d *DiscordReplier) SendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	_, err := d.session.ChannelMessageSendEmbed(channelID, embed)
	return err
}

// Presence is the bot status shown while guilds are playing
type Presence interface {
	SetPlaying(guildID, title string)
	ClearGuild(guildID string)
}

// Notifier announces playback events in the guild's text channel.
// Its methods are called from the controller loop: presence updates happen in call
// order, and announcements are sent per guild in call order off the loop.
type Notifier struct {
	replier  Replier
	presence Presence
	log      logging.Logger

	lanes *lanes
}

// NewNotifier creates a playback notifier. presence may be nil.
func NewNotifier(replier Replier, presence Presence, logger logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &Notifier{replier: replier, presence: presence, log: logger, lanes: newLanes()}
}

func (n *Notifier) NowPlaying(guildID, textChannelID string, track playback.Track) {
	if n.presence != nil {
		n.presence.SetPlaying(guildID, track.Title)
	}
	n.lanes.submit(guildID, func() {
		if err := n.replier.Send(textChannelID, fmt.Sprintf("🎶 Now playing: **%s**", track.Title)); err != nil {
			n.log.Warn("Failed to announce track",
				logging.String("guild_id", guildID),
				logging.String("channel_id", textChannelID),
				logging.Err(err))
		}
	})
}

func (n *Notifier) SessionEnded(guildID, textChannelID string) {
	if n.presence != nil {
		n.presence.ClearGuild(guildID)
	}
	n.log.Info("Playback session ended", logging.String("guild_id", guildID))
}
