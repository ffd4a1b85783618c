package presence

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/tarumae-dj/pkg/logging"
)

// StatusUpdater is the part of the Discord session presence needs
type StatusUpdater interface {
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

// Manager manages the bot's presence.
// While any guild is playing it shows a track title, otherwise the server count.
type Manager struct {
	session StatusUpdater
	guilds  func() int
	prefix  string
	log     logging.Logger

	// mu is held across each gateway write so updates land in call order
	mu      sync.Mutex
	playing map[string]string // guild ID -> title
	current string
}

// NewManager creates a presence manager; guilds reports how many servers the bot is in
// and prefix is the command prefix advertised in the default activity.
func NewManager(session StatusUpdater, guilds func() int, prefix string, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &Manager{
		session: session,
		guilds:  guilds,
		prefix:  prefix,
		log:     logger,
		playing: make(map[string]string),
	}
}

// SessionGuildCount counts the guilds known to the session state
func SessionGuildCount(s *discordgo.Session) func() int {
	return func() int {
		if s.State == nil {
			return 0
		}
		s.State.RLock()
		defer s.State.RUnlock()
		return len(s.State.Guilds)
	}
}

// SetPlaying shows title as the bot's activity for guildID
func (m *Manager) SetPlaying(guildID, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.playing[guildID] = title
	m.updateMusicPresence(title)
}

// ClearGuild drops the guild's track and falls back to another playing guild or the default presence
func (m *Manager) ClearGuild(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.playing, guildID)
	if len(m.playing) > 0 {
		ids := make([]string, 0, len(m.playing))
		for id := range m.playing {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		m.updateMusicPresence(m.playing[ids[0]])
		return
	}
	m.updateDefaultPresence()
}

// UpdateDefaultPresence shows how many servers the bot is in, unless a guild is playing
func (m *Manager) UpdateDefaultPresence() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.playing) > 0 {
		return
	}
	m.updateDefaultPresence()
}

func (m *Manager) updateDefaultPresence() {
	count := 0
	if m.guilds != nil {
		count = m.guilds()
	}

	err := m.session.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name:  m.prefix + "help",
				Type:  discordgo.ActivityTypeListening,
				State: "in " + strconv.Itoa(count) + " servers",
			},
		},
	})
	if err != nil {
		m.log.Warn("Failed to update bot presence", logging.Err(err))
	}
	m.current = "default"
}

func (m *Manager) updateMusicPresence(title string) {
	err := m.session.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name:  title,
				Type:  discordgo.ActivityTypeListening,
				State: title,
			},
		},
	})
	if err != nil {
		m.log.Warn("Failed to update music presence", logging.Err(err))
	}
	m.current = "music"
}

// Current returns the current presence type
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// StartPeriodicUpdates refreshes the default presence until stop is closed
func (m *Manager) StartPeriodicUpdates(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.UpdateDefaultPresence()
			}
		}
	}()
}
