package handlers

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/tarumae-dj/internal/commands"
	"github.com/latoulicious/tarumae-dj/pkg/logging"
)

var mentionResponses = []string{
	"I'm Hokko Tarumae, Tomakomai's Tourism Ambassador!★",
	"Hmm, would ah look cuter if ah was lookin' up more?",
	"A paper-winged migrating bird from the port in the north ♪ The name's Hokko Tarumae, eh!",
}

// Session is the part of the Discord session the handler writes to
type Session interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// MessageHandler routes chat messages to commands
type MessageHandler struct {
	router *commands.Router
	ctx    context.Context
	log    logging.Logger
}

// NewMessageHandler creates a handler whose commands are cancelled with ctx
func NewMessageHandler(ctx context.Context, router *commands.Router, logger logging.Logger) *MessageHandler {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &MessageHandler{router: router, ctx: ctx, log: logger}
}

// Handle is registered with discordgo for MessageCreate events
func (h *MessageHandler) Handle(s *discordgo.Session, m *discordgo.MessageCreate) {
	h.handle(s, s.State, m)
}

// handle returns a channel closed once a routed command has finished, or nil when nothing was routed
func (h *MessageHandler) handle(s Session, state *discordgo.State, m *discordgo.MessageCreate) <-chan struct{} {
	if m.Author == nil || m.Author.Bot {
		return nil
	}
	botID := ""
	if state != nil && state.User != nil {
		botID = state.User.ID
	}
	// Ignore all messages created by the bot itself
	if m.Author.ID == botID {
		return nil
	}

	if m.Content == "ping" {
		if _, err := s.ChannelMessageSendReply(m.ChannelID, "pong", m.Reference()); err != nil {
			h.log.Warn("Failed to reply to ping", logging.Err(err))
		}
		return nil
	}

	if botID != "" && mentions(m.Mentions, botID) {
		resp := fmt.Sprintf("%s Try `%shelp` to see what I can play.",
			mentionResponses[rand.Intn(len(mentionResponses))], h.router.Prefix())
		if _, err := s.ChannelMessageSend(m.ChannelID, resp); err != nil {
			h.log.Warn("Failed to answer mention", logging.Err(err))
		}
		return nil
	}

	command, args, ok := commands.ParseCommand(h.router.Prefix(), m.Content)
	if !ok || m.GuildID == "" {
		return nil
	}

	msg := commands.Message{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Requester: BuildRequester(state, m.GuildID, m.Author.ID, m.Author.Username),
	}
	return h.router.Dispatch(h.ctx, msg, command, args)
}

func mentions(users []*discordgo.User, id string) bool {
	for _, u := range users {
		if u.ID == id {
			return true
		}
	}
	return false
}
