package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/latoulicious/tarumae-dj/pkg/logging"
)

const historyLimit = 10

func (r *Router) recent(ctx context.Context, msg Message) {
	if r.history == nil {
		r.send(msg.ChannelID, "Play history is disabled.")
		return
	}

	records, err := r.history.RecentPlays(ctx, msg.GuildID, historyLimit)
	if err != nil {
		r.log.Error("Failed to read play history", logging.String("guild_id", msg.GuildID), logging.Err(err))
		r.reply(msg, "❌ Could not read the play history.")
		return
	}
	if len(records) == 0 {
		r.send(msg.ChannelID, "Nothing has been played here yet.")
		return
	}

	lines := make([]string, 0, len(records)+1)
	lines = append(lines, "📜 **Recently played**")
	for i, rec := range records {
		line := fmt.Sprintf("`%d.` **%s** %s", i+1, rec.Title, humanize.Time(rec.StartedAt))
		if rec.RequestedBy != "" {
			line += " by " + rec.RequestedBy
		}
		lines = append(lines, line)
	}
	r.send(msg.ChannelID, strings.Join(lines, "\n"))
}
