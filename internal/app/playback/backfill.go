package playback

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lookahead/internal/app/selector"
	"github.com/osa030/lookahead/internal/domain/track"
)

// evaluateLocked decides the next backfill step. At most one fill is in flight;
// its completion re-enters here until the queue reaches the target depth.
// Must be called with c.mu held.
func (c *Controller) evaluateLocked() {
	if c.closed || c.filling {
		return
	}

	target := c.deps.Settings.TargetQueueDepth()
	if c.store.Len() >= target {
		c.stopRetryLocked()
		c.setFillStateLocked(FillIdle)
		return
	}

	playlist, err := c.selector.ChooseNext(c.deps.Settings.ActivePlaylists())
	if err != nil {
		if !errors.Is(err, selector.ErrSelectionUnavailable) {
			zlog.Warn().Err(err).Msg("playback: playlist selection failed")
		}
		c.setFillStateLocked(FillWaitingPlaylistsUnavailable)
		c.scheduleRetryLocked(c.config.UnavailableDelay)
		return
	}

	c.stopRetryLocked()
	c.filling = true
	c.setFillStateLocked(FillFilling)

	quality := c.deps.Settings.Quality()
	filter := c.deps.Settings.TagFilter()
	zlog.Debug().Msgf("playback: filling from playlist=%s queued=%d target=%d quality=%s", playlist, c.store.Len(), target, quality)

	c.wg.Add(1)
	go c.fill(playlist, quality, filter)
}

// fill materializes one track outside the lock and hands the result back to the loop.
func (c *Controller) fill(playlist string, quality track.Quality, filter track.TagFilter) {
	defer c.wg.Done()

	p, err := c.materialize(c.ctx, playlist, quality, filter)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.filling = false

	if c.closed {
		if p != nil && c.deps.Releaser != nil {
			c.deps.Releaser.ReleasePlayable(p)
		}
		return
	}

	if err != nil {
		c.lastErr = err
		c.backoffUntil = c.now().Add(c.config.ErrorDelay)
		zlog.Warn().Err(err).Msgf("playback: fill failed, retrying in %s", c.config.ErrorDelay)
		c.setFillStateLocked(FillWaitingError)
		c.sendEventLocked(Event{Type: EventFillFailed, FillState: c.fillState, Err: err})
		c.scheduleRetryLocked(c.config.ErrorDelay)
		return
	}

	p.Origin = track.OriginBackfill
	c.store.Append(p)
	c.lastErr = nil
	zlog.Info().Msgf("playback: queued path=%s playlist=%s queued=%d", p.Track.Path, playlist, c.store.Len())

	c.setFillStateLocked(FillIdle)
	c.sendEventLocked(Event{Type: EventQueueChanged, FillState: c.fillState})
	c.evaluateLocked()
}

// materialize samples a path from playlist, resolves it and fetches its resources.
func (c *Controller) materialize(ctx context.Context, playlist string, quality track.Quality, filter track.TagFilter) (*track.Playable, error) {
	path, err := c.deps.Sampler.SampleTrackPath(ctx, playlist, filter)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to sample track from %s", playlist)
	}

	t, err := c.deps.Repository.FindByPath(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve sampled track from %s", playlist)
	}

	return c.deps.Fetcher.Fetch(ctx, t, quality)
}

// scheduleRetryLocked replaces any pending retry with one firing after d.
func (c *Controller) scheduleRetryLocked(d time.Duration) {
	c.stopRetryLocked()
	c.retryCancel = c.startTimerLocked(d, func() {
		c.retryCancel = nil
		c.evaluateLocked()
	})
}

// setFillStateLocked records a state change and emits EventFillStateChanged.
func (c *Controller) setFillStateLocked(s FillState) {
	if c.fillState == s {
		return
	}
	zlog.Debug().Msgf("playback: fill state %s -> %s", c.fillState, s)
	c.fillState = s
	c.sendEventLocked(Event{Type: EventFillStateChanged, FillState: s})
}
