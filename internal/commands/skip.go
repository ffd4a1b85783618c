package commands

import "context"

func (r *Router) skip(ctx context.Context, msg Message) {
	if err := r.player.Skip(ctx, msg.GuildID, msg.Requester); err != nil {
		r.reply(msg, describeError(err))
		return
	}
	r.send(msg.ChannelID, "⏭️ Skipped to the next song.")
}
