package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/tarumae-dj/internal/presence"
	"github.com/latoulicious/tarumae-dj/pkg/database"
	"github.com/latoulicious/tarumae-dj/pkg/playback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	channelID string
	replyTo   string
	content   string
}

type fakeReplier struct {
	mu     sync.Mutex
	msgs   []sent
	embeds []*discordgo.MessageEmbed
}

func (f *fakeReplier) Send(channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{channelID: channelID, content: content})
	return nil
}

func (f *fakeReplier) Reply(channelID, messageID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{channelID: channelID, replyTo: messageID, content: content})
	return nil
}

func (f *fakeReplier) SendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeds = append(f.embeds, embed)
	return nil
}

func (f *fakeReplier) Contents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	for i, m := range f.msgs {
		out[i] = m.content
	}
	return out
}

type fakePlayer struct {
	mu         sync.Mutex
	calls      []string
	enqueued   []playback.Track
	enqueueRes playback.EnqueueResult
	enqueueErr error
	skipErr    error
	stopErr    error
	skips      int
	stops      int
	snap       playback.Snapshot
	snapOK     bool
}

func (p *fakePlayer) Enqueue(ctx context.Context, guildID, textChannelID string, requester playback.Requester, track playback.Track) (playback.EnqueueResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "enqueue "+track.Title)
	if p.enqueueErr != nil {
		return playback.EnqueueResult{}, p.enqueueErr
	}
	p.enqueued = append(p.enqueued, track)
	res := p.enqueueRes
	res.Track = track
	return res, nil
}

func (p *fakePlayer) Skip(ctx context.Context, guildID string, requester playback.Requester) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "skip "+guildID)
	p.skips++
	return p.skipErr
}

func (p *fakePlayer) Stop(ctx context.Context, guildID string, requester playback.Requester) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "stop "+guildID)
	p.stops++
	return p.stopErr
}

func (p *fakePlayer) Snapshot(ctx context.Context, guildID string) (playback.Snapshot, bool, error) {
	return p.snap, p.snapOK, nil
}

func (p *fakePlayer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type fakeResolver struct {
	refs  []string
	track playback.Track
	err   error
}

func (r *fakeResolver) Resolve(ctx context.Context, ref string) (playback.Track, error) {
	r.refs = append(r.refs, ref)
	if r.err != nil {
		return playback.Track{}, r.err
	}
	return r.track, nil
}

type fakeHistory struct {
	records []database.PlayRecord
	err     error
}

func (h *fakeHistory) RecentPlays(ctx context.Context, guildID string, limit int) ([]database.PlayRecord, error) {
	return h.records, h.err
}

func listener() playback.Requester {
	return playback.Requester{
		UserID:         "u1",
		Username:       "alice",
		VoiceChannelID: "vc1",
		CanConnect:     true,
		CanSpeak:       true,
	}
}

func newTestRouter() (*Router, *fakePlayer, *fakeResolver, *fakeReplier) {
	player := &fakePlayer{}
	resolver := &fakeResolver{track: playback.Track{Title: "Song", Locator: "loc"}}
	replier := &fakeReplier{}
	return NewRouter(player, resolver, nil, replier, "-", nil), player, resolver, replier
}

func message(r playback.Requester) Message {
	return Message{ID: "m1", GuildID: "g1", ChannelID: "c1", Requester: r}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		content string
		cmd     string
		args    []string
		ok      bool
	}{
		{"-play never gonna", "play", []string{"never", "gonna"}, true},
		{"-SKIP", "SKIP", []string{}, true},
		{"-foo  a   b", "foo", []string{"a", "b"}, true},
		{"-", "", []string{}, true},
		{"play x", "", nil, false},
		{"ping", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			cmd, args, ok := ParseCommand("-", tt.content)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.cmd, cmd)
			if tt.args != nil {
				assert.Equal(t, tt.args, args)
			}
		})
	}
}

func TestUnknownCommandEchoes(t *testing.T) {
	router, _, _, replier := newTestRouter()

	router.Handle(context.Background(), message(listener()), "foo", []string{"a", "b"})

	assert.Equal(t, []string{"You used the command '-foo' with these arguments: [a, b]"}, replier.Contents())
	assert.Equal(t, "m1", replier.msgs[0].replyTo)
}

func TestPlayAppendedReportsPosition(t *testing.T) {
	router, player, resolver, replier := newTestRouter()
	player.enqueueRes = playback.EnqueueResult{Position: 2}

	router.Handle(context.Background(), message(listener()), "play", []string{"never", "gonna"})

	assert.Equal(t, []string{"never gonna"}, resolver.refs)
	require.Len(t, player.enqueued, 1)
	assert.Equal(t, "alice", player.enqueued[0].RequestedBy)
	assert.Equal(t, []string{"✅ **Song** has been added to the queue! (2nd in line)"}, replier.Contents())
}

func TestPlayStartedIsSilent(t *testing.T) {
	router, player, _, replier := newTestRouter()
	player.enqueueRes = playback.EnqueueResult{Started: true}

	router.Handle(context.Background(), message(listener()), "play", []string{"x"})

	assert.Len(t, player.enqueued, 1)
	assert.Empty(t, replier.Contents())
}

func TestPlayWithoutArgsShowsUsage(t *testing.T) {
	router, player, resolver, replier := newTestRouter()

	router.Handle(context.Background(), message(listener()), "play", nil)

	assert.Empty(t, resolver.refs)
	assert.Empty(t, player.enqueued)
	require.Len(t, replier.Contents(), 1)
	assert.Contains(t, replier.Contents()[0], "Usage")
}

func TestPlayPreconditionsSkipResolve(t *testing.T) {
	tests := []struct {
		name      string
		requester playback.Requester
		want      string
	}{
		{"no voice channel", playback.Requester{Username: "bob"}, "You need to be in a voice channel to play some tunes!"},
		{"cannot speak", playback.Requester{VoiceChannelID: "vc", CanConnect: true}, "I need the permissions to join and speak in your voice channel!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, player, resolver, replier := newTestRouter()

			router.Handle(context.Background(), message(tt.requester), "play", []string{"x"})

			assert.Empty(t, resolver.refs)
			assert.Empty(t, player.enqueued)
			assert.Equal(t, []string{tt.want}, replier.Contents())
		})
	}
}

func TestPlayErrorsAreReported(t *testing.T) {
	t.Run("resolution", func(t *testing.T) {
		router, player, resolver, replier := newTestRouter()
		resolver.err = fmt.Errorf("%w: no such video", playback.ErrResolution)

		router.Handle(context.Background(), message(listener()), "play", []string{"x"})

		assert.Empty(t, player.enqueued)
		require.Len(t, replier.Contents(), 1)
		assert.Contains(t, replier.Contents()[0], "no such video")
	})

	t.Run("join", func(t *testing.T) {
		router, player, _, replier := newTestRouter()
		player.enqueueErr = fmt.Errorf("%w: voice handshake timed out", playback.ErrJoin)

		router.Handle(context.Background(), message(listener()), "play", []string{"x"})

		require.Len(t, replier.Contents(), 1)
		assert.Contains(t, replier.Contents()[0], "voice handshake timed out")
	})
}

func TestSkipAndStop(t *testing.T) {
	router, player, _, replier := newTestRouter()

	router.Handle(context.Background(), message(listener()), "skip", nil)
	router.Handle(context.Background(), message(listener()), "stop", nil)

	assert.Equal(t, 1, player.skips)
	assert.Equal(t, 1, player.stops)
	assert.Equal(t, []string{"⏭️ Skipped to the next song.", "⏹️ Playback stopped."}, replier.Contents())
}

func TestSkipErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"no queue", playback.ErrNoActiveQueue, "Nothing is playing."},
		{"no voice", playback.ErrNotInVoiceChannel, "You need to be in a voice channel to play some tunes!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, player, _, replier := newTestRouter()
			player.skipErr = tt.err
			player.stopErr = tt.err

			router.Handle(context.Background(), message(listener()), "skip", nil)
			router.Handle(context.Background(), message(listener()), "stop", nil)

			assert.Equal(t, []string{tt.want, tt.want}, replier.Contents())
		})
	}
}

func TestHelpSendsEmbed(t *testing.T) {
	router, _, _, replier := newTestRouter()

	router.Handle(context.Background(), message(listener()), "help", nil)

	require.Len(t, replier.embeds, 1)
	assert.Contains(t, replier.embeds[0].Fields[0].Value, "-play")
}

func TestQueue(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		router, _, _, replier := newTestRouter()

		router.Handle(context.Background(), message(listener()), "queue", nil)

		assert.Equal(t, []string{"📭 The queue is empty."}, replier.Contents())
	})

	t.Run("lists songs", func(t *testing.T) {
		router, player, _, replier := newTestRouter()
		player.snapOK = true
		player.snap = playback.Snapshot{
			GuildID: "g1",
			Volume:  4,
			State:   playback.StatePlaying,
			Songs: []playback.Track{
				{Title: "A", Duration: 3*time.Minute + 5*time.Second},
				{Title: "B", RequestedBy: "bob"},
			},
		}

		router.Handle(context.Background(), message(listener()), "queue", nil)

		require.Len(t, replier.embeds, 1)
		embed := replier.embeds[0]
		require.Len(t, embed.Fields, 2)
		assert.Equal(t, "**A** (3:05)", embed.Fields[0].Value)
		assert.Equal(t, "`1.` **B** - requested by bob", embed.Fields[1].Value)
		assert.Equal(t, "Volume 4/5", embed.Footer.Text)
	})
}

func TestHistory(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		router, _, _, replier := newTestRouter()

		router.Handle(context.Background(), message(listener()), "history", nil)

		assert.Equal(t, []string{"Play history is disabled."}, replier.Contents())
	})

	t.Run("lists plays", func(t *testing.T) {
		replier := &fakeReplier{}
		history := &fakeHistory{records: []database.PlayRecord{
			{Title: "A", RequestedBy: "alice", StartedAt: time.Now().Add(-2 * time.Hour)},
		}}
		router := NewRouter(&fakePlayer{}, &fakeResolver{}, history, replier, "-", nil)

		router.Handle(context.Background(), message(listener()), "history", nil)

		require.Len(t, replier.Contents(), 1)
		assert.Contains(t, replier.Contents()[0], "**A** 2 hours ago by alice")
	})

	t.Run("error", func(t *testing.T) {
		replier := &fakeReplier{}
		router := NewRouter(&fakePlayer{}, &fakeResolver{}, &fakeHistory{err: errors.New("disk")}, replier, "-", nil)

		router.Handle(context.Background(), message(listener()), "history", nil)

		assert.Equal(t, []string{"❌ Could not read the play history."}, replier.Contents())
	})
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:09", formatDuration(9*time.Second))
	assert.Equal(t, "4:20", formatDuration(4*time.Minute+20*time.Second))
	assert.Equal(t, "1:02:03", formatDuration(time.Hour+2*time.Minute+3*time.Second))
}

func TestCommandNamesMatchAnyCase(t *testing.T) {
	router, player, _, _ := newTestRouter()

	router.Handle(context.Background(), message(listener()), "SKIP", nil)

	assert.Equal(t, 1, player.skips)
}

func TestUnknownCommandKeepsRawName(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"-Foo x", "You used the command '-Foo' with these arguments: [x]"},
		{"-", "You used the command '-' with these arguments: []"},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			router, _, _, replier := newTestRouter()

			cmd, args, ok := ParseCommand("-", tt.content)
			require.True(t, ok)
			router.Handle(context.Background(), message(listener()), cmd, args)

			assert.Equal(t, []string{tt.want}, replier.Contents())
		})
	}
}

// gatedResolver blocks lookups of gated refs until release is closed
type gatedResolver struct {
	gated   string
	release chan struct{}
}

func (r *gatedResolver) Resolve(ctx context.Context, ref string) (playback.Track, error) {
	if ref == r.gated {
		select {
		case <-r.release:
		case <-ctx.Done():
			return playback.Track{}, ctx.Err()
		}
	}
	return playback.Track{Title: ref, Locator: "loc-" + ref}, nil
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("command did not finish")
	}
}

func assertPending(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
		t.Fatal("command ran before the earlier command of its guild finished")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatchKeepsArrivalOrderWithinGuild(t *testing.T) {
	t.Run("play behind slow play", func(t *testing.T) {
		player := &fakePlayer{}
		resolver := &gatedResolver{gated: "A", release: make(chan struct{})}
		router := NewRouter(player, resolver, nil, &fakeReplier{}, "-", nil)
		ctx := context.Background()

		first := router.Dispatch(ctx, message(listener()), "play", []string{"A"})
		second := router.Dispatch(ctx, message(listener()), "play", []string{"B"})

		assertPending(t, second)
		close(resolver.release)
		waitDone(t, first)
		waitDone(t, second)

		assert.Equal(t, []string{"enqueue A", "enqueue B"}, player.Calls())
	})

	t.Run("stop behind slow play", func(t *testing.T) {
		player := &fakePlayer{}
		resolver := &gatedResolver{gated: "A", release: make(chan struct{})}
		replier := &fakeReplier{}
		router := NewRouter(player, resolver, nil, replier, "-", nil)
		ctx := context.Background()

		play := router.Dispatch(ctx, message(listener()), "play", []string{"A"})
		stop := router.Dispatch(ctx, message(listener()), "stop", nil)

		assertPending(t, stop)
		close(resolver.release)
		waitDone(t, play)
		waitDone(t, stop)

		assert.Equal(t, []string{"enqueue A", "stop g1"}, player.Calls())
	})
}

func TestDispatchDoesNotBlockOtherGuilds(t *testing.T) {
	player := &fakePlayer{}
	resolver := &gatedResolver{gated: "A", release: make(chan struct{})}
	router := NewRouter(player, resolver, nil, &fakeReplier{}, "-", nil)
	ctx := context.Background()

	play := router.Dispatch(ctx, message(listener()), "play", []string{"A"})
	other := message(listener())
	other.GuildID = "g2"
	skip := router.Dispatch(ctx, other, "skip", nil)

	waitDone(t, skip)
	assert.Equal(t, []string{"skip g2"}, player.Calls())

	close(resolver.release)
	waitDone(t, play)
	assert.Equal(t, []string{"skip g2", "enqueue A"}, player.Calls())
}

type fakeStatus struct {
	mu      sync.Mutex
	updates int
}

func (f *fakeStatus) UpdateStatusComplex(usd discordgo.UpdateStatusData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	return nil
}

func TestNotifierLeavesDefaultPresenceAfterSessions(t *testing.T) {
	manager := presence.NewManager(&fakeStatus{}, func() int { return 1 }, "-", nil)
	notifier := NewNotifier(&fakeReplier{}, manager, nil)

	for i := 0; i < 2000; i++ {
		notifier.NowPlaying("g1", "c1", playback.Track{Title: fmt.Sprintf("T%d", i)})
		notifier.SessionEnded("g1", "c1")
	}

	assert.Equal(t, "default", manager.Current())
}

func TestNotifierAnnouncesInOrder(t *testing.T) {
	replier := &fakeReplier{}
	notifier := NewNotifier(replier, nil, nil)

	for _, title := range []string{"A", "B", "C", "D"} {
		notifier.NowPlaying("g1", "c1", playback.Track{Title: title})
	}

	require.Eventually(t, func() bool { return len(replier.Contents()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{
		"🎶 Now playing: **A**",
		"🎶 Now playing: **B**",
		"🎶 Now playing: **C**",
		"🎶 Now playing: **D**",
	}, replier.Contents())
}
