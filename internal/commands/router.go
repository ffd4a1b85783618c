package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/tarumae-dj/pkg/database"
	"github.com/latoulicious/tarumae-dj/pkg/logging"
	"github.com/latoulicious/tarumae-dj/pkg/playback"
)

// commandTimeout bounds one command, including resolving and joining voice
const commandTimeout = 2 * time.Minute

// Replier sends messages to text channels
type Replier interface {
	Send(channelID, content string) error
	Reply(channelID, messageID, content string) error
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) error
}

// Player is the playback controller as seen by commands
type Player interface {
	Enqueue(ctx context.Context, guildID, textChannelID string, requester playback.Requester, track playback.Track) (playback.EnqueueResult, error)
	Skip(ctx context.Context, guildID string, requester playback.Requester) error
	Stop(ctx context.Context, guildID string, requester playback.Requester) error
	Snapshot(ctx context.Context, guildID string) (playback.Snapshot, bool, error)
}

// Resolver turns a link or search query into a track
type Resolver interface {
	Resolve(ctx context.Context, ref string) (playback.Track, error)
}

// History lists tracks played in a guild
type History interface {
	RecentPlays(ctx context.Context, guildID string, limit int) ([]database.PlayRecord, error)
}

// Message is an incoming command message
type Message struct {
	ID        string
	GuildID   string
	ChannelID string
	Requester playback.Requester
}

// Router dispatches parsed commands
type Router struct {
	player   Player
	resolver Resolver
	history  History
	replier  Replier
	prefix   string
	log      logging.Logger

	lanes *lanes
}

// NewRouter creates a command router. history may be nil.
func NewRouter(player Player, resolver Resolver, history History, replier Replier, prefix string, logger logging.Logger) *Router {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &Router{
		player:   player,
		resolver: resolver,
		history:  history,
		replier:  replier,
		prefix:   prefix,
		log:      logger,
		lanes:    newLanes(),
	}
}

// Prefix returns the command prefix
func (r *Router) Prefix() string {
	return r.prefix
}

// ParseCommand splits "<prefix>name arg1 arg2" into its name and arguments.
// The name keeps its case and may be empty for a bare prefix.
func ParseCommand(prefix, content string) (string, []string, bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	words := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(words) == 0 {
		return "", []string{}, true
	}
	return words[0], words[1:], true
}

// Dispatch queues a command behind the guild's earlier commands and runs it with
// its own timeout. The returned channel is closed once the command has finished.
func (r *Router) Dispatch(ctx context.Context, msg Message, command string, args []string) <-chan struct{} {
	return r.lanes.submit(msg.GuildID, func() {
		if ctx.Err() != nil {
			return
		}
		cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		r.Handle(cmdCtx, msg, command, args)
	})
}

// Handle runs one command on the calling goroutine; Dispatch orders commands per guild.
func (r *Router) Handle(ctx context.Context, msg Message, command string, args []string) {
	r.log.Debug("Handling command",
		logging.String("guild_id", msg.GuildID),
		logging.String("user", msg.Requester.Username),
		logging.String("command", command))

	switch strings.ToLower(command) {
	case "help":
		r.help(msg)
	case "play":
		r.play(ctx, msg, args)
	case "skip":
		r.skip(ctx, msg)
	case "stop":
		r.stop(ctx, msg)
	case "queue":
		r.queue(ctx, msg)
	case "history":
		r.recent(ctx, msg)
	default:
		r.reply(msg, fmt.Sprintf("You used the command '%s%s' with these arguments: [%s]",
			r.prefix, command, strings.Join(args, ", ")))
	}
}

func (r *Router) send(channelID, content string) {
	if err := r.replier.Send(channelID, content); err != nil {
		r.log.Warn("Failed to send message", logging.String("channel_id", channelID), logging.Err(err))
	}
}

func (r *Router) reply(msg Message, content string) {
	if err := r.replier.Reply(msg.ChannelID, msg.ID, content); err != nil {
		r.log.Warn("Failed to send reply", logging.String("channel_id", msg.ChannelID), logging.Err(err))
	}
}

// describeError turns a command error into the text shown to the user
func describeError(err error) string {
	switch {
	case errors.Is(err, playback.ErrNotInVoiceChannel):
		return "You need to be in a voice channel to play some tunes!"
	case errors.Is(err, playback.ErrInsufficientPermissions):
		return "I need the permissions to join and speak in your voice channel!"
	case errors.Is(err, playback.ErrNoActiveQueue):
		return "Nothing is playing."
	case errors.Is(err, playback.ErrResolution):
		return "❌ Failed to get audio stream: " + err.Error()
	case errors.Is(err, playback.ErrJoin):
		return "❌ " + err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "❌ That took too long, please try again."
	default:
		return "❌ Something went wrong: " + err.Error()
	}
}
