package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/lookahead/internal/domain/track"
)

func TestBackfill_FillsToTarget(t *testing.T) {
	h := newHarness(t, &fakeSettings{playlists: []string{"B", "A"}, target: 4, history: 2, quality: track.QualityLow}, nil)
	h.controller.Start()
	h.waitQueued(t, 4)

	snap := h.controller.Snapshot()
	assert.Equal(t, []string{"A/000.mp3", "B/001.mp3", "A/002.mp3", "B/003.mp3"}, queuedPaths(snap))
	for _, p := range snap.Queue {
		assert.Equal(t, track.OriginBackfill, p.Origin)
		assert.Equal(t, track.QualityLow, p.Quality)
	}
	assert.Equal(t, "B", snap.Selector.Cursor)
	assert.Equal(t, 4, snap.TargetDepth)
	assert.Equal(t, 12*time.Minute, snap.TotalDuration)

	// no further fills once the target is reached
	time.Sleep(50 * time.Millisecond)
	calls, _ := h.fetcher.stats()
	assert.Equal(t, 4, calls)
}

func TestBackfill_SingleFlight(t *testing.T) {
	fetcher := &fakeFetcher{block: make(chan struct{})}
	h := newHarness(t, &fakeSettings{playlists: []string{"A", "B"}, target: 3, history: 2}, fetcher)
	h.controller.Start()

	require.Eventually(t, func() bool {
		calls, _ := fetcher.stats()
		return calls == 1
	}, waitFor, tick)

	for range 10 {
		h.controller.Trigger()
	}
	assert.Equal(t, FillFilling, h.controller.FillState())

	calls, _ := fetcher.stats()
	assert.Equal(t, 1, calls)

	close(fetcher.block)
	h.waitQueued(t, 3)

	calls, maxInFlight := fetcher.stats()
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, maxInFlight)
}

func TestBackfill_RetriesAfterFailure(t *testing.T) {
	fetcher := &fakeFetcher{failures: 2}
	h := newHarness(t, &fakeSettings{playlists: []string{"A"}, target: 2, history: 2}, fetcher)
	h.controller.Start()

	require.Eventually(t, func() bool {
		for {
			select {
			case e := <-h.controller.Events():
				if e.Type == EventFillFailed {
					return e.Err != nil && e.FillState == FillWaitingError
				}
			default:
				return false
			}
		}
	}, waitFor, tick)

	h.waitQueued(t, 2)

	snap := h.controller.Snapshot()
	assert.Empty(t, snap.LastError)
	assert.True(t, snap.BackoffUntil.IsZero())

	calls, _ := fetcher.stats()
	assert.Equal(t, 4, calls)
}

func TestBackfill_FailureKeepsQueueUnchanged(t *testing.T) {
	fetcher := &fakeFetcher{failures: 1000}
	h := newHarness(t, &fakeSettings{playlists: []string{"A"}, target: 2, history: 2}, fetcher)
	h.controller.Start()

	var snap Snapshot
	require.Eventually(t, func() bool {
		snap = h.controller.Snapshot()
		return snap.FillState == FillWaitingError
	}, waitFor, tick)

	assert.Empty(t, snap.Queue)
	assert.Contains(t, snap.LastError, "failed to fetch audio")
	assert.False(t, snap.BackoffUntil.IsZero())
	assert.Empty(t, h.releaser.paths())
}

func TestBackfill_WaitsForPlaylists(t *testing.T) {
	h := newHarness(t, &fakeSettings{target: 2, history: 2}, nil)
	h.controller.Start()

	require.Eventually(t, func() bool {
		return h.controller.FillState() == FillWaitingPlaylistsUnavailable
	}, waitFor, tick)
	assert.Empty(t, h.controller.Snapshot().Queue)

	// the scheduled re-check notices the playlist without an explicit trigger
	h.settings.setPlaylists("A")
	h.waitQueued(t, 2)
}

func TestBackfill_OverrideTakesPrecedence(t *testing.T) {
	h := newHarness(t, &fakeSettings{playlists: []string{"A"}, target: 1, history: 2}, nil)
	h.controller.Start()
	h.waitQueued(t, 1)

	h.controller.PushOverride("Jazz")
	_, err := h.controller.Next()
	require.NoError(t, err)
	h.waitQueued(t, 1)

	snap := h.controller.Snapshot()
	assert.Equal(t, "Jazz", snap.Queue[0].Track.Playlist)
	assert.Equal(t, "A", snap.Selector.Cursor)
}

func TestBackfill_CloseDuringFill(t *testing.T) {
	fetcher := &fakeFetcher{block: make(chan struct{})}
	h := newHarness(t, &fakeSettings{playlists: []string{"A"}, target: 2, history: 2}, fetcher)
	h.controller.Start()

	require.Eventually(t, func() bool {
		calls, _ := fetcher.stats()
		return calls == 1
	}, waitFor, tick)

	done := make(chan struct{})
	go func() {
		h.controller.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Close did not return while a fill was in flight")
	}
	assert.Empty(t, h.controller.Snapshot().Queue)
}

func TestBackfill_ManualChangesDuringFill(t *testing.T) {
	h := newHarness(t, &fakeSettings{playlists: []string{"A"}, target: 4, history: 2}, nil)
	h.controller.Start()
	h.waitQueued(t, 4)

	release := h.fetcher.hold()
	_, err := h.controller.Next()
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		calls, _ := h.fetcher.stats()
		return calls == 5
	}, waitFor, tick)

	// queue: A/001 A/002 A/003, A/004 is being fetched
	_, err = h.controller.RemoveAt(0)
	require.NoError(t, err)
	manual := &track.Playable{
		Track:  track.Track{Path: "Jazz/manual.mp3", Playlist: "Jazz", Duration: time.Minute},
		Origin: track.OriginManual,
	}
	require.NoError(t, h.controller.PlayNext(manual))
	require.NoError(t, h.controller.MoveItem(0, 2))
	for range 2 {
		_, err = h.controller.Next()
		require.NoError(t, err)
	}

	snap := h.controller.Snapshot()
	assert.Equal(t, FillFilling, snap.FillState)
	assert.Equal(t, []string{"Jazz/manual.mp3"}, queuedPaths(snap))
	assert.Equal(t, "A/003.mp3", snap.Current.Track.Path)
	calls, _ := h.fetcher.stats()
	assert.Equal(t, 5, calls)

	close(release)
	h.waitQueued(t, 4)

	snap = h.controller.Snapshot()
	assert.Equal(t, []string{"Jazz/manual.mp3", "A/004.mp3", "A/005.mp3", "A/006.mp3"}, queuedPaths(snap))
	assert.Equal(t, track.OriginManual, snap.Queue[0].Origin)
	assert.Equal(t, track.OriginBackfill, snap.Queue[1].Origin)

	calls, maxInFlight := h.fetcher.stats()
	assert.Equal(t, 7, calls)
	assert.Equal(t, 1, maxInFlight)
	assert.Contains(t, h.releaser.paths(), "A/001.mp3")
}
