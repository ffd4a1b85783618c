package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/latoulicious/tarumae-dj/pkg/logging"
	"github.com/latoulicious/tarumae-dj/pkg/playback"
)

var (
	ErrEmptyReference   = errors.New("empty track reference")
	ErrUnsupportedURL   = errors.New("only YouTube links are supported")
	ErrNoAudioFormat    = errors.New("no audio formats found for video")
	ErrNoSearchResults  = errors.New("no search results found")
	videoIDPattern      = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	videoIDFallbackExpr = regexp.MustCompile(`[a-zA-Z0-9_-]{11}`)
)

// Searcher turns a free text query into a video URL
type Searcher func(ctx context.Context, query string) (string, error)

// YouTubeResolver resolves YouTube links and search queries into playable tracks
type YouTubeResolver struct {
	client *youtube.Client
	search Searcher
	log    logging.Logger
}

// NewYouTubeResolver creates a resolver that searches with the given yt-dlp binary
func NewYouTubeResolver(ytdlpPath string, logger logging.Logger) *YouTubeResolver {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &YouTubeResolver{
		client: &youtube.Client{
			HTTPClient: &http.Client{Timeout: 15 * time.Second},
		},
		search: YtDlpSearcher(ytdlpPath),
		log:    logger,
	}
}

// Resolve fetches the title and stream locator of a YouTube link or search query.
// Every failure wraps playback.ErrResolution.
func (r *YouTubeResolver) Resolve(ctx context.Context, ref string) (playback.Track, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return playback.Track{}, fmt.Errorf("%w: %w", playback.ErrResolution, ErrEmptyReference)
	}

	videoURL := ref
	if !IsURL(ref) {
		r.log.Info("Treating input as search query", logging.String("query", ref))
		found, err := r.search(ctx, ref)
		if err != nil {
			return playback.Track{}, fmt.Errorf("%w: %w", playback.ErrResolution, err)
		}
		videoURL = found
	}

	if !IsYouTubeURL(videoURL) {
		return playback.Track{}, fmt.Errorf("%w: %w", playback.ErrResolution, ErrUnsupportedURL)
	}

	videoID := ExtractYouTubeVideoID(videoURL)
	if videoID == "" {
		return playback.Track{}, fmt.Errorf("%w: %w", playback.ErrResolution, ErrUnsupportedURL)
	}
	videoURL = "https://www.youtube.com/watch?v=" + videoID

	video, err := r.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return playback.Track{}, fmt.Errorf("%w: %v", playback.ErrResolution, err)
	}

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return playback.Track{}, fmt.Errorf("%w: %w", playback.ErrResolution, ErrNoAudioFormat)
	}
	// Prefer audio only formats, fall back to muxed ones
	if audioOnly := formats.Type("audio"); len(audioOnly) > 0 {
		formats = audioOnly
	}
	formats.Sort()

	streamURL, err := r.client.GetStreamURLContext(ctx, video, &formats[0])
	if err != nil {
		return playback.Track{}, fmt.Errorf("%w: %v", playback.ErrResolution, err)
	}

	title := video.Title
	if title == "" {
		title = "Unknown Title"
	}

	r.log.Info("Resolved track",
		logging.String("title", title),
		logging.Duration("duration", video.Duration),
		logging.String("video_id", video.ID))

	return playback.Track{
		Title:    title,
		Locator:  streamURL,
		URL:      videoURL,
		Duration: video.Duration,
	}, nil
}

// YtDlpSearcher searches YouTube with yt-dlp and returns the first result's URL
func YtDlpSearcher(binary string) Searcher {
	if binary == "" {
		binary = "yt-dlp"
	}
	return func(ctx context.Context, query string) (string, error) {
		cmd := exec.CommandContext(ctx, binary,
			"--no-playlist",
			"--no-warnings",
			"--print", "webpage_url",
			"--max-downloads", "1",
			"ytsearch1:"+query)

		var out, stderr bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &stderr

		runErr := cmd.Run()
		// yt-dlp exits non-zero once --max-downloads is hit, so trust the output first.
		found := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out.String()), "\n", 2)[0])
		if found == "" {
			if runErr != nil {
				return "", fmt.Errorf("failed to search YouTube: %v: %s", runErr, strings.TrimSpace(stderr.String()))
			}
			return "", ErrNoSearchResults
		}
		return found, nil
	}
}

// IsYouTubeURL checks if a URL appears to be from YouTube
func IsYouTubeURL(urlStr string) bool {
	return strings.Contains(urlStr, "youtube.com") || strings.Contains(urlStr, "youtu.be")
}

// IsURL checks if a string appears to be a URL
func IsURL(str string) bool {
	return strings.HasPrefix(str, "http://") || strings.HasPrefix(str, "https://") ||
		strings.HasPrefix(str, "www.") || IsYouTubeURL(str)
}

// ExtractYouTubeVideoID extracts the video ID from a YouTube URL
func ExtractYouTubeVideoID(youtubeURL string) string {
	if videoIDPattern.MatchString(youtubeURL) {
		return youtubeURL
	}

	raw := youtubeURL
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	host := strings.TrimPrefix(parsed.Hostname(), "www.")
	switch {
	case host == "youtu.be":
		return strings.Trim(parsed.Path, "/")
	case strings.HasSuffix(host, "youtube.com"):
		if id := parsed.Query().Get("v"); id != "" {
			return id
		}
		for _, prefix := range []string{"/embed/", "/shorts/", "/live/"} {
			if strings.HasPrefix(parsed.Path, prefix) {
				return strings.Trim(strings.TrimPrefix(parsed.Path, prefix), "/")
			}
		}
	}

	// Fallback: first 11-character token that looks like a video ID
	if m := videoIDFallbackExpr.FindString(parsed.Path); m != "" {
		return m
	}
	return ""
}
