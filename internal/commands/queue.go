package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/tarumae-dj/pkg/logging"
	"github.com/latoulicious/tarumae-dj/pkg/playback"
)

// maxQueueLines caps how many upcoming tracks the queue embed lists
const maxQueueLines = 10

func (r *Router) queue(ctx context.Context, msg Message) {
	snap, ok, err := r.player.Snapshot(ctx, msg.GuildID)
	if err != nil {
		r.reply(msg, describeError(err))
		return
	}
	if !ok || len(snap.Songs) == 0 {
		r.send(msg.ChannelID, "📭 The queue is empty.")
		return
	}

	if err := r.replier.SendEmbed(msg.ChannelID, queueEmbed(snap)); err != nil {
		r.log.Warn("Failed to send queue", logging.String("channel_id", msg.ChannelID), logging.Err(err))
	}
}

func queueEmbed(snap playback.Snapshot) *discordgo.MessageEmbed {
	current := snap.Songs[0]
	heading := "🎵 Now Playing"
	if snap.State == playback.StateJoining {
		heading = "⏳ Up First"
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: heading, Value: describeTrack(current)},
	}

	upcoming := snap.Songs[1:]
	if len(upcoming) > 0 {
		lines := make([]string, 0, maxQueueLines+1)
		for i, track := range upcoming {
			if i == maxQueueLines {
				lines = append(lines, fmt.Sprintf("...and %d more", len(upcoming)-maxQueueLines))
				break
			}
			lines = append(lines, fmt.Sprintf("`%d.` %s", i+1, describeTrack(track)))
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("Up Next (%d)", len(upcoming)),
			Value: strings.Join(lines, "\n"),
		})
	}

	return &discordgo.MessageEmbed{
		Title:     "📋 Queue",
		Color:     0x3498db,
		Fields:    fields,
		Timestamp: time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Volume %d/5", snap.Volume),
		},
	}
}

func describeTrack(t playback.Track) string {
	s := "**" + t.Title + "**"
	if t.Duration > 0 {
		s += " (" + formatDuration(t.Duration) + ")"
	}
	if t.RequestedBy != "" {
		s += " - requested by " + t.RequestedBy
	}
	return s
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
