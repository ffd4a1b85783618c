package playback

import "errors"

// Command precondition errors. These end a single command and never mutate state.
var (
	ErrNotInVoiceChannel       = errors.New("you need to be in a voice channel to play some tunes")
	ErrInsufficientPermissions = errors.New("I need the permissions to join and speak in your voice channel")
	ErrNoActiveQueue           = errors.New("nothing is playing in this server")
)

// Errors that abort an in-flight play attempt or a single track.
var (
	ErrResolution = errors.New("could not resolve track")
	ErrJoin       = errors.New("could not join voice channel")
	ErrStream     = errors.New("audio stream failed")
)

// ErrControllerClosed is returned when the controller loop is no longer running.
var ErrControllerClosed = errors.New("playback controller is not running")
