package playback

import (
	"context"
	"errors"
	"sync"
)

type fakeDispatcher struct {
	locator string
	done    chan error
	once    sync.Once

	mu   sync.Mutex
	gain float64
}

func newFakeDispatcher(locator string) *fakeDispatcher {
	return &fakeDispatcher{locator: locator, done: make(chan error, 1)}
}

func (d *fakeDispatcher) SetVolume(gain float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gain = gain
}

func (d *fakeDispatcher) Gain() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gain
}

func (d *fakeDispatcher) Stop() { d.Finish(nil) }

// Finish ends the stream with err; later calls are ignored
func (d *fakeDispatcher) Finish(err error) {
	d.once.Do(func() { d.done <- err })
}

func (d *fakeDispatcher) Done() <-chan error { return d.done }

type fakeConn struct {
	mu          sync.Mutex
	dispatchers []*fakeDispatcher
	leaves      int
	failPlay    map[string]bool
}

func (c *fakeConn) Play(locator string) (Dispatcher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failPlay[locator] {
		return nil, errors.New("bad locator")
	}
	d := newFakeDispatcher(locator)
	c.dispatchers = append(c.dispatchers, d)
	return d, nil
}

func (c *fakeConn) Leave() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leaves++
	return nil
}

func (c *fakeConn) Played() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.dispatchers))
	for i, d := range c.dispatchers {
		out[i] = d.locator
	}
	return out
}

func (c *fakeConn) Current() *fakeDispatcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.dispatchers) == 0 {
		return nil
	}
	return c.dispatchers[len(c.dispatchers)-1]
}

func (c *fakeConn) Leaves() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leaves
}

type fakeOutput struct {
	mu      sync.Mutex
	conn    *fakeConn
	joins   int
	joinErr error
	gate    chan struct{} // Join blocks until closed when set
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{conn: &fakeConn{failPlay: map[string]bool{}}}
}

func (o *fakeOutput) Join(ctx context.Context, guildID, channelID string) (Connection, error) {
	o.mu.Lock()
	o.joins++
	gate := o.gate
	err := o.joinErr
	o.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return o.conn, nil
}

func (o *fakeOutput) Joins() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.joins
}

type fakeNotifier struct {
	mu         sync.Mutex
	nowPlaying []string
	ended      []string
}

func (n *fakeNotifier) NowPlaying(guildID, textChannelID string, track Track) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nowPlaying = append(n.nowPlaying, track.Title)
}

func (n *fakeNotifier) SessionEnded(guildID, textChannelID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, guildID)
}

func (n *fakeNotifier) NowPlayingTitles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.nowPlaying...)
}

func (n *fakeNotifier) Ended() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.ended...)
}

type fakeRecorder struct {
	mu     sync.Mutex
	titles []string
}

func (r *fakeRecorder) RecordPlay(ctx context.Context, guildID string, track Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, track.Title)
	return nil
}

func (r *fakeRecorder) Titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.titles...)
}
