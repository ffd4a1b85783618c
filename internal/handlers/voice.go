package handlers

import (
	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/tarumae-dj/pkg/playback"
)

// BuildRequester looks up the author's voice channel and what the bot may do there
func BuildRequester(state *discordgo.State, guildID, userID, username string) playback.Requester {
	r := playback.Requester{UserID: userID, Username: username}
	if state == nil {
		return r
	}

	vs, err := state.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return r
	}
	r.VoiceChannelID = vs.ChannelID

	if state.User == nil {
		return r
	}
	perms, err := state.UserChannelPermissions(state.User.ID, vs.ChannelID)
	if err != nil {
		return r
	}
	r.CanConnect = perms&discordgo.PermissionVoiceConnect != 0
	r.CanSpeak = perms&discordgo.PermissionVoiceSpeak != 0
	return r
}
