package playback

import (
	"context"
	"fmt"
	"time"

	"github.com/latoulicious/tarumae-dj/pkg/logging"
)

// Requester is the member issuing a command, as seen by the controller
type Requester struct {
	UserID         string
	Username       string
	VoiceChannelID string // Empty when the member is not in a voice channel
	CanConnect     bool   // Bot may connect to VoiceChannelID
	CanSpeak       bool   // Bot may speak in VoiceChannelID
}

// CheckRequester reports whether the bot can play into the requester's voice channel
func CheckRequester(r Requester) error {
	if r.VoiceChannelID == "" {
		return ErrNotInVoiceChannel
	}
	if !r.CanConnect || !r.CanSpeak {
		return ErrInsufficientPermissions
	}
	return nil
}

// EnqueueResult describes where a track ended up
type EnqueueResult struct {
	Track Track
	// Position counts pending tracks ahead of and including this one. Zero when the play started a session.
	Position int
	Started  bool
}

// Options configures a Controller
type Options struct {
	Volume      int
	JoinTimeout time.Duration
	Logger      logging.Logger
	Recorder    Recorder // Optional
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Volume:      DefaultVolume,
		JoinTimeout: 15 * time.Second,
		Logger:      logging.NullLogger(),
	}
}

// Controller runs the per guild playback state machine.
// All store access happens on the goroutine running Run.
type Controller struct {
	store    *Store
	output   AudioOutput
	notifier Notifier
	recorder Recorder
	log      logging.Logger

	volume      int
	joinTimeout time.Duration

	events chan interface{}
	done   chan struct{}
}

type enqueueCmd struct {
	guildID       string
	textChannelID string
	requester     Requester
	track         Track
	reply         chan enqueueReply
}

type enqueueReply struct {
	result EnqueueResult
	err    error
}

type skipCmd struct {
	guildID   string
	requester Requester
	reply     chan error
}

type stopCmd struct {
	guildID   string
	requester Requester
	reply     chan error
}

type snapshotCmd struct {
	guildID string
	reply   chan snapshotReply
}

type snapshotReply struct {
	snapshot Snapshot
	ok       bool
}

type joinResult struct {
	guildID string
	queue   *GuildQueue
	conn    Connection
	err     error
}

type trackEnded struct {
	guildID    string
	dispatcher Dispatcher
	err        error
}

// NewController creates a controller. Run must be started before commands are served.
func NewController(store *Store, output AudioOutput, notifier Notifier, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logging.NullLogger()
	}
	if opts.Volume < 0 {
		opts.Volume = DefaultVolume
	}
	if opts.Volume > 5 {
		opts.Volume = 5
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = DefaultOptions().JoinTimeout
	}

	return &Controller{
		store:       store,
		output:      output,
		notifier:    notifier,
		recorder:    opts.Recorder,
		log:         opts.Logger,
		volume:      opts.Volume,
		joinTimeout: opts.JoinTimeout,
		events:      make(chan interface{}, 64),
		done:        make(chan struct{}),
	}
}

// Run processes commands and playback events until ctx is cancelled.
// Every active session is torn down before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	c.log.Info("Playback controller started")
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

// Enqueue adds a track to the guild queue, starting a session when the guild has none.
// For a new session it returns once the voice join has resolved.
func (c *Controller) Enqueue(ctx context.Context, guildID, textChannelID string, requester Requester, track Track) (EnqueueResult, error) {
	reply := make(chan enqueueReply, 1)
	cmd := enqueueCmd{
		guildID:       guildID,
		textChannelID: textChannelID,
		requester:     requester,
		track:         track,
		reply:         reply,
	}
	if err := c.send(ctx, cmd); err != nil {
		return EnqueueResult{}, err
	}

	select {
	case r := <-reply:
		return r.result, r.err
	case <-c.done:
		return EnqueueResult{}, ErrControllerClosed
	case <-ctx.Done():
		return EnqueueResult{}, ctx.Err()
	}
}

// Skip ends the current track; the queue advances to the next one or drains.
func (c *Controller) Skip(ctx context.Context, guildID string, requester Requester) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, skipCmd{guildID: guildID, requester: requester, reply: reply}); err != nil {
		return err
	}
	return c.wait(ctx, reply)
}

// Stop clears the queue and ends the current track, which tears the session down.
func (c *Controller) Stop(ctx context.Context, guildID string, requester Requester) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, stopCmd{guildID: guildID, requester: requester, reply: reply}); err != nil {
		return err
	}
	return c.wait(ctx, reply)
}

// Snapshot returns a copy of the guild queue, if the guild has one
func (c *Controller) Snapshot(ctx context.Context, guildID string) (Snapshot, bool, error) {
	reply := make(chan snapshotReply, 1)
	if err := c.send(ctx, snapshotCmd{guildID: guildID, reply: reply}); err != nil {
		return Snapshot{}, false, err
	}

	select {
	case r := <-reply:
		return r.snapshot, r.ok, nil
	case <-c.done:
		return Snapshot{}, false, ErrControllerClosed
	case <-ctx.Done():
		return Snapshot{}, false, ctx.Err()
	}
}

func (c *Controller) send(ctx context.Context, ev interface{}) error {
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) wait(ctx context.Context, reply <-chan error) error {
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers an event from a worker goroutine back to the loop
func (c *Controller) post(ev interface{}) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// handle is the transition table of the state machine
func (c *Controller) handle(ctx context.Context, ev interface{}) {
	switch ev := ev.(type) {
	case enqueueCmd:
		c.enqueue(ctx, ev)
	case skipCmd:
		ev.reply <- c.skip(ev)
	case stopCmd:
		ev.reply <- c.stop(ev)
	case snapshotCmd:
		q, ok := c.store.Get(ev.guildID)
		if !ok {
			ev.reply <- snapshotReply{}
			return
		}
		ev.reply <- snapshotReply{snapshot: q.snapshot(), ok: true}
	case joinResult:
		c.joined(ev)
	case trackEnded:
		c.ended(ev)
	default:
		c.log.Warn("Unknown playback event", logging.String("type", fmt.Sprintf("%T", ev)))
	}
}

func (c *Controller) enqueue(ctx context.Context, cmd enqueueCmd) {
	req := cmd.requester
	if err := CheckRequester(req); err != nil {
		cmd.reply <- enqueueReply{err: err}
		return
	}

	// An existing entry, joining or playing, is the guard against a second join.
	q, created := c.store.CreateIfAbsent(cmd.guildID, &GuildQueue{
		Songs:          []Track{cmd.track},
		VoiceChannelID: req.VoiceChannelID,
		TextChannelID:  cmd.textChannelID,
		Volume:         c.volume,
		State:          StateJoining,
		pending:        &cmd,
	})
	if !created {
		q.Songs = append(q.Songs, cmd.track)
		c.log.Info("Added track to queue",
			logging.String("guild_id", cmd.guildID),
			logging.String("title", cmd.track.Title),
			logging.Int("queue_length", len(q.Songs)))
		cmd.reply <- enqueueReply{result: EnqueueResult{Track: cmd.track, Position: len(q.Songs) - 1}}
		return
	}

	c.log.Info("Joining voice channel",
		logging.String("guild_id", cmd.guildID),
		logging.String("channel_id", req.VoiceChannelID))
	go c.join(ctx, q, cmd.guildID, req.VoiceChannelID)
}

func (c *Controller) join(ctx context.Context, q *GuildQueue, guildID, channelID string) {
	joinCtx, cancel := context.WithTimeout(ctx, c.joinTimeout)
	defer cancel()

	conn, err := c.output.Join(joinCtx, guildID, channelID)
	c.post(joinResult{guildID: guildID, queue: q, conn: conn, err: err})
}

func (c *Controller) joined(res joinResult) {
	q, ok := c.store.Get(res.guildID)
	if !ok || q != res.queue {
		// The session this join belonged to is gone.
		if res.conn != nil {
			c.log.Warn("Discarding voice connection of a finished session", logging.String("guild_id", res.guildID))
			c.leave(res.guildID, res.conn)
		}
		return
	}

	pending := q.pending
	q.pending = nil

	if res.err != nil {
		c.store.Remove(res.guildID)
		c.log.Error("Voice join failed, session rolled back",
			logging.String("guild_id", res.guildID),
			logging.Err(res.err))
		if pending != nil {
			pending.reply <- enqueueReply{err: fmt.Errorf("%w: %v", ErrJoin, res.err)}
		}
		return
	}

	q.Conn = res.conn
	q.State = StatePlaying
	if pending != nil {
		pending.reply <- enqueueReply{result: EnqueueResult{Track: pending.track, Started: true}}
	}
	c.advance(q)
}

// advance plays the head of the queue, or tears the session down when the queue is empty
func (c *Controller) advance(q *GuildQueue) {
	for len(q.Songs) > 0 {
		track := q.Songs[0]
		d, err := q.Conn.Play(track.Locator)
		if err != nil {
			c.log.Error("Could not start stream, skipping track",
				logging.String("guild_id", q.GuildID),
				logging.String("title", track.Title),
				logging.Err(fmt.Errorf("%w: %v", ErrStream, err)))
			q.Songs = q.Songs[1:]
			continue
		}

		d.SetVolume(q.Gain())
		q.Dispatcher = d
		q.Playing = true

		c.log.Info("Now playing",
			logging.String("guild_id", q.GuildID),
			logging.String("title", track.Title),
			logging.Int("pending", len(q.Songs)-1))
		c.notifier.NowPlaying(q.GuildID, q.TextChannelID, track)
		c.record(q.GuildID, track)

		go c.watch(q.GuildID, d)
		return
	}

	c.teardown(q)
}

func (c *Controller) watch(guildID string, d Dispatcher) {
	err := <-d.Done()
	c.post(trackEnded{guildID: guildID, dispatcher: d, err: err})
}

func (c *Controller) ended(ev trackEnded) {
	q, ok := c.store.Get(ev.guildID)
	if !ok || q.Dispatcher != ev.dispatcher {
		return
	}
	q.Dispatcher = nil
	q.Playing = false

	if ev.err != nil {
		title := ""
		if len(q.Songs) > 0 {
			title = q.Songs[0].Title
		}
		// TODO: tell the text channel which track failed instead of only logging it.
		c.log.Error("Stream failed, advancing past track",
			logging.String("guild_id", ev.guildID),
			logging.String("title", title),
			logging.Err(fmt.Errorf("%w: %v", ErrStream, ev.err)))
	}

	if len(q.Songs) > 0 {
		q.Songs = q.Songs[1:]
	}
	c.advance(q)
}

func (c *Controller) skip(cmd skipCmd) error {
	if cmd.requester.VoiceChannelID == "" {
		return ErrNotInVoiceChannel
	}
	q, ok := c.store.Get(cmd.guildID)
	if !ok {
		return ErrNoActiveQueue
	}

	if q.Dispatcher != nil {
		q.Dispatcher.Stop()
		return nil
	}

	// Still joining: nothing streams yet, so the join result advances.
	if len(q.Songs) > 0 {
		q.Songs = q.Songs[1:]
	}
	return nil
}

func (c *Controller) stop(cmd stopCmd) error {
	if cmd.requester.VoiceChannelID == "" {
		return ErrNotInVoiceChannel
	}
	q, ok := c.store.Get(cmd.guildID)
	if !ok {
		return ErrNoActiveQueue
	}

	q.Songs = nil
	if q.Dispatcher != nil {
		q.Dispatcher.Stop()
	}
	return nil
}

func (c *Controller) teardown(q *GuildQueue) {
	if q.Conn != nil {
		c.leave(q.GuildID, q.Conn)
	}
	q.Conn = nil
	q.Dispatcher = nil
	q.Playing = false
	q.State = StateIdle
	c.store.Remove(q.GuildID)

	c.log.Info("Queue drained, left voice channel", logging.String("guild_id", q.GuildID))
	c.notifier.SessionEnded(q.GuildID, q.TextChannelID)
}

func (c *Controller) leave(guildID string, conn Connection) {
	if err := conn.Leave(); err != nil {
		c.log.Warn("Failed to leave voice channel", logging.String("guild_id", guildID), logging.Err(err))
	}
}

func (c *Controller) record(guildID string, track Track) {
	if c.recorder == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.recorder.RecordPlay(ctx, guildID, track); err != nil {
			c.log.Warn("Failed to record play history", logging.String("guild_id", guildID), logging.Err(err))
		}
	}()
}

func (c *Controller) shutdown() {
	for _, guildID := range c.store.GuildIDs() {
		q, _ := c.store.Get(guildID)
		if q.pending != nil {
			q.pending.reply <- enqueueReply{err: ErrControllerClosed}
			q.pending = nil
		}
		if q.Dispatcher != nil {
			q.Dispatcher.Stop()
		}
		if q.Conn != nil {
			c.leave(guildID, q.Conn)
		}
		c.store.Remove(guildID)
	}
	c.log.Info("Playback controller stopped")
}
