package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lookahead/internal/app/selector"
	"github.com/osa030/lookahead/internal/domain/queue"
	"github.com/osa030/lookahead/internal/domain/track"
)

// Errors
var (
	ErrClosed = errors.New("playback controller is closed")
)

// RemovalPolicy decides what the backfill loop does after a queued track is removed.
type RemovalPolicy string

const (
	RemovalRoundRobin RemovalPolicy = "roundrobin" // Keep round-robin selection
	RemovalSame       RemovalPolicy = "same"       // Draw the replacement from the removed track's playlist
)

// Settings is the live, user-adjustable configuration read at every decision point.
type Settings interface {
	ActivePlaylists() []string
	Quality() track.Quality
	TargetQueueDepth() int
	HistoryCapacity() int
	RemovalPolicy() RemovalPolicy
	TagFilter() track.TagFilter
}

// Sampler picks a track path from a playlist.
type Sampler interface {
	SampleTrackPath(ctx context.Context, playlist string, filter track.TagFilter) (string, error)
}

// Repository resolves a sampled path to its catalog entry.
type Repository interface {
	FindByPath(path string) (track.Track, error)
}

// Fetcher materializes a track into a playable one.
type Fetcher interface {
	Fetch(ctx context.Context, t track.Track, q track.Quality) (*track.Playable, error)
}

// Releaser frees the resources of a playable track.
type Releaser interface {
	ReleasePlayable(p *track.Playable)
}

// Config holds controller configuration.
type Config struct {
	UnavailableDelay time.Duration // Re-check delay when no playlist can be selected
	ErrorDelay       time.Duration // Retry delay after a failed fill
	EmptyQueueRetry  time.Duration // Retry delay when a track ends with an empty queue
}

// Dependencies are the collaborators of the controller.
type Dependencies struct {
	Settings   Settings
	Sampler    Sampler
	Repository Repository
	Fetcher    Fetcher
	Releaser   Releaser
}

// Snapshot is a read-only copy of the controller state.
type Snapshot struct {
	Queue         []track.Playable
	Current       *track.Playable
	History       []track.Playable // oldest first
	Selector      selector.Snapshot
	FillState     FillState
	BackoffUntil  time.Time // Set while FillState is FillWaitingError
	LastError     string
	TargetDepth   int
	TotalDuration time.Duration
}

// Controller owns the queue, the play history and the playlist selector,
// and keeps the queue filled up to the target depth.
type Controller struct {
	mu sync.Mutex

	store    *queue.Store
	selector *selector.Selector

	// Backfill state
	fillState    FillState
	filling      bool
	backoffUntil time.Time
	lastErr      error

	// Timer
	retryCancel      func() // Cancel function for the backfill retry timer
	emptyRetryCancel func() // Cancel function for the empty queue retry timer

	config Config
	deps   Dependencies
	now    func() time.Time

	// Events
	eventCh chan Event

	// Context
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewController creates a new playback controller. Call Start to begin filling the queue.
func NewController(config Config, deps Dependencies) *Controller {
	if config.UnavailableDelay <= 0 {
		config.UnavailableDelay = 500 * time.Millisecond
	}
	if config.ErrorDelay <= 0 {
		config.ErrorDelay = 5 * time.Second
	}
	if config.EmptyQueueRetry <= 0 {
		config.EmptyQueueRetry = time.Second
	}

	release := func(*track.Playable) {}
	if deps.Releaser != nil {
		release = deps.Releaser.ReleasePlayable
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		store:     queue.New(deps.Settings.HistoryCapacity(), release),
		selector:  selector.New(),
		fillState: FillIdle,
		config:    config,
		deps:      deps,
		now:       time.Now,
		eventCh:   make(chan Event, 64),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Events returns the event channel. It is closed by Close.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Start starts the backfill loop.
func (c *Controller) Start() {
	zlog.Info().Msgf("playback: starting backfill target=%d", c.deps.Settings.TargetQueueDepth())
	c.Trigger()
}

// Trigger re-evaluates the backfill loop. It is a no-op while a fill is in flight.
func (c *Controller) Trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evaluateLocked()
}

// Next makes the head of the queue the current track and moves the previous current
// track into the history. It returns queue.ErrEmpty when nothing is queued.
func (c *Controller) Next() (*track.Playable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextLocked()
}

func (c *Controller) nextLocked() (*track.Playable, error) {
	if c.closed {
		return nil, ErrClosed
	}

	c.store.SetHistoryCapacity(c.deps.Settings.HistoryCapacity())

	var previous *track.Track
	if cur := c.store.Current(); cur != nil {
		t := cur.Track
		previous = &t
	}

	p, err := c.store.ConsumeHead()
	if err != nil {
		c.evaluateLocked()
		return nil, err
	}
	c.stopEmptyRetryLocked()

	zlog.Info().Msgf("playback: now playing path=%s origin=%s queued=%d", p.Track.Path, p.Origin, c.store.Len())

	started := p.Track
	c.sendEventLocked(Event{Type: EventTrackStarted, Track: &started, Previous: previous, FillState: c.fillState})
	c.sendEventLocked(Event{Type: EventQueueChanged, FillState: c.fillState})
	c.evaluateLocked()
	return p, nil
}

// TrackEnded is called by the audio output when the current track finished.
// It advances to the next track, retrying later while the queue is empty.
func (c *Controller) TrackEnded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trackEndedLocked()
}

func (c *Controller) trackEndedLocked() {
	_, err := c.nextLocked()
	if err == nil || !errors.Is(err, queue.ErrEmpty) || c.emptyRetryCancel != nil {
		return
	}

	zlog.Info().Msgf("playback: queue empty, retrying in %s", c.config.EmptyQueueRetry)
	c.emptyRetryCancel = c.startTimerLocked(c.config.EmptyQueueRetry, func() {
		c.emptyRetryCancel = nil
		c.trackEndedLocked()
	})
}

// Previous moves the last history entry back to current and puts the current
// track back at the front of the queue.
func (c *Controller) Previous() (*track.Playable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	p, err := c.store.Previous()
	if err != nil {
		return nil, err
	}

	started := p.Track
	c.sendEventLocked(Event{Type: EventTrackStarted, Track: &started, FillState: c.fillState})
	c.sendEventLocked(Event{Type: EventQueueChanged, FillState: c.fillState})
	return p, nil
}

// RemoveAt removes the queued entry at index and releases its resources.
// With RemovalSame the replacement is drawn from the removed track's playlist.
func (c *Controller) RemoveAt(index int) (track.Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return track.Track{}, ErrClosed
	}

	t, err := c.store.RemoveAt(index)
	if err != nil {
		return track.Track{}, err
	}

	if c.deps.Settings.RemovalPolicy() == RemovalSame {
		c.selector.PushOverride(t.Playlist)
	}
	zlog.Debug().Msgf("playback: removed path=%s index=%d", t.Path, index)

	c.sendEventLocked(Event{Type: EventQueueChanged, FillState: c.fillState})
	c.evaluateLocked()
	return t, nil
}

// InsertAt inserts a playable track at index (Len appends). Ownership of p passes to
// the controller; p is released when the controller is closed.
func (c *Controller) InsertAt(index int, p *track.Playable) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		if c.deps.Releaser != nil {
			c.deps.Releaser.ReleasePlayable(p)
		}
		return ErrClosed
	}

	if err := c.store.InsertAt(index, p); err != nil {
		return err
	}
	c.sendEventLocked(Event{Type: EventQueueChanged, FillState: c.fillState})
	return nil
}

// Append adds a playable track at the end of the queue.
func (c *Controller) Append(p *track.Playable) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		if c.deps.Releaser != nil {
			c.deps.Releaser.ReleasePlayable(p)
		}
		return ErrClosed
	}

	c.store.Append(p)
	c.sendEventLocked(Event{Type: EventQueueChanged, FillState: c.fillState})
	return nil
}

// PlayNext inserts a playable track at the front of the queue.
func (c *Controller) PlayNext(p *track.Playable) error {
	return c.InsertAt(0, p)
}

// MoveItem moves the queued entry at from to position to.
func (c *Controller) MoveItem(from, to int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if err := c.store.MoveItem(from, to); err != nil {
		return err
	}
	c.sendEventLocked(Event{Type: EventQueueChanged, FillState: c.fillState})
	return nil
}

// PushOverride makes the next backfilled track come from playlist.
func (c *Controller) PushOverride(playlist string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.selector.PushOverride(playlist)
	c.evaluateLocked()
}

// TotalDuration returns the summed duration of the queued tracks.
func (c *Controller) TotalDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.TotalDuration()
}

// FillState returns the current backfill state.
func (c *Controller) FillState() FillState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fillState
}

// GetAllTracks returns the current track, the queued tracks and the history.
func (c *Controller) GetAllTracks() []track.Track {
	c.mu.Lock()
	defer c.mu.Unlock()

	tracks := make([]track.Track, 0, c.store.Len()+len(c.store.History())+1)
	if cur := c.store.Current(); cur != nil {
		tracks = append(tracks, cur.Track)
	}
	for _, p := range c.store.Items() {
		tracks = append(tracks, p.Track)
	}
	for _, p := range c.store.History() {
		tracks = append(tracks, p.Track)
	}
	return tracks
}

// Snapshot returns a read-only copy of the controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Queue:         copyPlayables(c.store.Items()),
		History:       copyPlayables(c.store.History()),
		Selector:      c.selector.Snapshot(),
		FillState:     c.fillState,
		TargetDepth:   c.deps.Settings.TargetQueueDepth(),
		TotalDuration: c.store.TotalDuration(),
	}
	if cur := c.store.Current(); cur != nil {
		p := *cur
		snap.Current = &p
	}
	if c.fillState == FillWaitingError {
		snap.BackoffUntil = c.backoffUntil
	}
	if c.lastErr != nil {
		snap.LastError = c.lastErr.Error()
	}
	return snap
}

// Close stops the backfill loop, releases every queued, current and history track,
// waits for an in-flight fill and closes the event channel.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	c.stopRetryLocked()
	c.stopEmptyRetryLocked()
	c.store.Clear()
	close(c.eventCh)
	c.mu.Unlock()

	c.wg.Wait()
	zlog.Debug().Msg("playback: controller closed")
}

// sendEventLocked sends an event without blocking. Must be called with c.mu held.
func (c *Controller) sendEventLocked(e Event) {
	if c.closed {
		return
	}
	select {
	case c.eventCh <- e:
	case <-c.ctx.Done():
	default:
		// Channel full, drop event; subscribers re-read the snapshot on the next one
	}
}

// startTimerLocked runs callback with c.mu held after d, unless the returned cancel
// function (also called with c.mu held) runs first or the controller is closed.
func (c *Controller) startTimerLocked(d time.Duration, callback func()) func() {
	cancelled := false
	timer := time.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if cancelled || c.closed {
			return
		}
		callback()
	})
	return func() {
		cancelled = true
		timer.Stop()
	}
}

func (c *Controller) stopRetryLocked() {
	if c.retryCancel != nil {
		c.retryCancel()
		c.retryCancel = nil
	}
}

func (c *Controller) stopEmptyRetryLocked() {
	if c.emptyRetryCancel != nil {
		c.emptyRetryCancel()
		c.emptyRetryCancel = nil
	}
}

func copyPlayables(items []*track.Playable) []track.Playable {
	out := make([]track.Playable, len(items))
	for i, p := range items {
		out[i] = *p
	}
	return out
}
