package playback

import (
	"time"
)

// DefaultVolume is the playback volume on a 0-5 scale
const DefaultVolume = 4

// Track represents a single resolved song
type Track struct {
	Title       string
	Locator     string // Stream URL handed to the audio output
	URL         string // Page the track was resolved from
	Duration    time.Duration
	RequestedBy string
}

// State is the playback state of a guild that has a queue
type State int

const (
	StateIdle State = iota
	StateJoining
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StatePlaying:
		return "playing"
	default:
		return "idle"
	}
}

// GuildQueue is the playback state of one guild
type GuildQueue struct {
	GuildID        string
	Songs          []Track // Songs[0] is now playing while State is StatePlaying
	VoiceChannelID string
	TextChannelID  string
	Conn           Connection
	Dispatcher     Dispatcher
	Volume         int
	Playing        bool
	State          State

	// pending is the play command waiting for the join
	pending *enqueueCmd
}

// Gain returns the linear gain handed to the dispatcher
func (q *GuildQueue) Gain() float64 {
	return float64(q.Volume) / 5
}

// Snapshot is a read-only copy of a guild queue
type Snapshot struct {
	GuildID        string
	Songs          []Track
	VoiceChannelID string
	Volume         int
	Playing        bool
	State          State
}

func (q *GuildQueue) snapshot() Snapshot {
	songs := make([]Track, len(q.Songs))
	copy(songs, q.Songs)
	return Snapshot{
		GuildID:        q.GuildID,
		Songs:          songs,
		VoiceChannelID: q.VoiceChannelID,
		Volume:         q.Volume,
		Playing:        q.Playing,
		State:          q.State,
	}
}

// Store maps guild IDs to their queue.
// It is not safe for concurrent use; the controller loop is its only user.
type Store struct {
	queues map[string]*GuildQueue
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{queues: make(map[string]*GuildQueue)}
}

// Get returns the queue of a guild
func (s *Store) Get(guildID string) (*GuildQueue, bool) {
	q, ok := s.queues[guildID]
	return q, ok
}

// CreateIfAbsent stores initial unless the guild already has a queue.
// It returns the stored queue and whether it was created.
func (s *Store) CreateIfAbsent(guildID string, initial *GuildQueue) (*GuildQueue, bool) {
	if q, ok := s.queues[guildID]; ok {
		return q, false
	}
	initial.GuildID = guildID
	s.queues[guildID] = initial
	return initial, true
}

// Remove deletes the queue of a guild
func (s *Store) Remove(guildID string) {
	delete(s.queues, guildID)
}

// GuildIDs returns the guilds that have a queue, in no particular order
func (s *Store) GuildIDs() []string {
	ids := make([]string, 0, len(s.queues))
	for id := range s.queues {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of guilds with a queue
func (s *Store) Len() int {
	return len(s.queues)
}
