package playback

import "context"

// AudioOutput joins voice channels on behalf of the controller.
type AudioOutput interface {
	Join(ctx context.Context, guildID, channelID string) (Connection, error)
}

// Connection is an established voice session in one guild.
type Connection interface {
	// Play starts streaming the locator. The returned dispatcher reports completion exactly once.
	Play(locator string) (Dispatcher, error)
	Leave() error
}

// Dispatcher controls a single running stream.
type Dispatcher interface {
	SetVolume(gain float64)
	// Stop forces the stream to end. Done then delivers nil.
	Stop()
	// Done delivers nil on a natural or forced end, or an error when streaming failed.
	Done() <-chan error
}

// Notifier receives user facing announcements from the controller.
type Notifier interface {
	NowPlaying(guildID, textChannelID string, track Track)
	SessionEnded(guildID, textChannelID string)
}

// Recorder stores tracks that started playing.
type Recorder interface {
	RecordPlay(ctx context.Context, guildID string, track Track) error
}
