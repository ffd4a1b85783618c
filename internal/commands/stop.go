package commands

import "context"

func (r *Router) stop(ctx context.Context, msg Message) {
	if err := r.player.Stop(ctx, msg.GuildID, msg.Requester); err != nil {
		r.reply(msg, describeError(err))
		return
	}
	r.send(msg.ChannelID, "⏹️ Playback stopped.")
}
