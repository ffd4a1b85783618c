package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/latoulicious/tarumae-dj/pkg/logging"
	"github.com/latoulicious/tarumae-dj/pkg/playback"
)

// resolveTimeout bounds a single lookup of a link or search query
const resolveTimeout = 30 * time.Second

func (r *Router) play(ctx context.Context, msg Message, args []string) {
	if len(args) == 0 {
		r.reply(msg, fmt.Sprintf("Usage: `%splay <YouTube URL or search keywords>`", r.prefix))
		return
	}

	// Fail fast before spending time on a lookup that could not be played anyway
	if err := playback.CheckRequester(msg.Requester); err != nil {
		r.reply(msg, describeError(err))
		return
	}

	ref := strings.Join(args, " ")
	resolveCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
	track, err := r.resolver.Resolve(resolveCtx, ref)
	cancel()
	if err != nil {
		r.log.Warn("Failed to resolve track",
			logging.String("guild_id", msg.GuildID),
			logging.String("query", ref),
			logging.Err(err))
		r.reply(msg, describeError(err))
		return
	}
	track.RequestedBy = msg.Requester.Username

	res, err := r.player.Enqueue(ctx, msg.GuildID, msg.ChannelID, msg.Requester, track)
	if err != nil {
		r.log.Warn("Failed to enqueue track",
			logging.String("guild_id", msg.GuildID),
			logging.String("title", track.Title),
			logging.Err(err))
		r.reply(msg, describeError(err))
		return
	}

	// A fresh session announces itself through the now playing message
	if res.Started {
		return
	}
	r.send(msg.ChannelID, fmt.Sprintf("✅ **%s** has been added to the queue! (%s in line)",
		res.Track.Title, humanize.Ordinal(res.Position)))
}
