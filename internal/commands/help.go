package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/tarumae-dj/pkg/logging"
)

func (r *Router) help(msg Message) {
	p := r.prefix
	embed := &discordgo.MessageEmbed{
		Title:       "Hokko Tarumae",
		Description: "Here are all the available commands for the bot:",
		Color:       0x00ff00,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "Music Commands",
				Value: strings.Join([]string{
					fmt.Sprintf("• `%splay <url>` - Play a YouTube video by URL", p),
					fmt.Sprintf("• `%splay <keywords>` - Search and play a YouTube video", p),
					fmt.Sprintf("• `%sskip` - Skip the currently playing track", p),
					fmt.Sprintf("• `%sstop` - Stop playback and disconnect from voice channel", p),
					fmt.Sprintf("• `%squeue` - Show the current queue", p),
					fmt.Sprintf("• `%shistory` - Show recently played tracks", p),
				}, "\n"),
			},
			{
				Name:  "Information Commands",
				Value: fmt.Sprintf("• `%shelp` - Show this help message", p),
			},
			{
				Name: "💡 Tips",
				Value: strings.Join([]string{
					"• Join a voice channel **before** using music commands",
					"• Only **YouTube links and searches** are currently supported",
				}, "\n"),
			},
		},
	}

	if err := r.replier.SendEmbed(msg.ChannelID, embed); err != nil {
		r.log.Warn("Failed to send help", logging.String("channel_id", msg.ChannelID), logging.Err(err))
	}
}
