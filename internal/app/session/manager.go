// Package session provides the session manager wiring the catalog, the samplers,
// the fetcher and the playback controller together.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lookahead/internal/app/catalog"
	"github.com/osa030/lookahead/internal/app/fetcher"
	"github.com/osa030/lookahead/internal/app/filter"
	"github.com/osa030/lookahead/internal/app/notification"
	"github.com/osa030/lookahead/internal/app/playback"
	"github.com/osa030/lookahead/internal/app/sampler"
	"github.com/osa030/lookahead/internal/app/session/state"
	"github.com/osa030/lookahead/internal/domain/track"
	"github.com/osa030/lookahead/internal/infra/blobstore"
	"github.com/osa030/lookahead/internal/infra/config"
	"github.com/osa030/lookahead/internal/infra/musicserver"
)

var (
	ErrSessionNotRunning = errors.New("session is not running")
	ErrNoCurrentTrack    = errors.New("no track playing")
)

const (
	catalogLoadAttempts = 3
	catalogRetryDelay   = 2 * time.Second
	reportTimeout       = 10 * time.Second
)

// Remote is the music server API used by a session.
type Remote interface {
	catalog.Source
	sampler.RemoteClient
	fetcher.Remote
	NowPlaying(ctx context.Context, path string, paused bool, progress time.Duration) error
	HistoryPlayed(ctx context.Context, req musicserver.HistoryPlayedRequest) error
	DislikeAdd(ctx context.Context, path string) error
}

// Manager manages the playback session.
type Manager struct {
	mu sync.RWMutex

	// Configuration
	config    *config.Config
	sessionID string
	phase     state.Phase

	// Components
	remote       Remote
	settings     *state.Settings
	dislikes     *state.Dislikes
	blobs        *blobstore.Store
	fetcher      *fetcher.Fetcher
	notification *notification.Manager
	catalog      *catalog.Repository
	playback     *playback.Controller

	// Start time of the current track, for history reports
	currentStarted time.Time

	// Background reports to the music server
	reports  sync.WaitGroup
	loopDone chan struct{}

	// Channels
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a new session manager.
func NewManager(cfg *config.Config, remote Remote) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if remote == nil {
		return nil, errors.New("music server client is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	blobs := blobstore.New()

	return &Manager{
		config:       cfg,
		sessionID:    uuid.New().String(),
		phase:        state.PhaseLoading,
		remote:       remote,
		settings:     state.New(cfg.Queue),
		dislikes:     state.NewDislikes(),
		blobs:        blobs,
		fetcher:      fetcher.New(remote, blobs),
		notification: notification.NewManager(),
		loopDone:     make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}, nil
}

// Start loads the catalog, builds the sampling pipeline and starts the backfill loop.
func (m *Manager) Start(ctx context.Context) error {
	repo, err := m.loadCatalog(ctx)
	if err != nil {
		return err
	}

	filterChain, err := filter.NewChainFromConfig(m.config.Filters, filter.Dependencies{
		Queue:    m,
		Dislikes: m.dislikes,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create filter chain")
	}

	samplers, err := sampler.NewProviderChainFromConfig(m.config, m.remote, repo, filterChain)
	if err != nil {
		return errors.Wrap(err, "failed to create sampler chain")
	}

	ctrl := playback.NewController(playback.Config{
		UnavailableDelay: m.config.Backfill.UnavailableDelay(),
		ErrorDelay:       m.config.Backfill.ErrorDelay(),
		EmptyQueueRetry:  m.config.Backfill.EmptyQueueRetry(),
	}, playback.Dependencies{
		Settings:   m.settings,
		Sampler:    samplers,
		Repository: repo,
		Fetcher:    m.fetcher,
		Releaser:   m.blobs,
	})

	m.mu.Lock()
	if m.phase != state.PhaseLoading {
		m.mu.Unlock()
		ctrl.Close()
		return errors.Newf("session cannot start in phase %s", m.phase)
	}
	m.catalog = repo
	m.playback = ctrl
	m.phase = state.PhaseRunning
	m.mu.Unlock()

	zlog.Info().Msgf("session: started: session_id=%s, filters=%d, playlists=%v",
		m.sessionID, len(filterChain.Filters()), m.settings.ActivePlaylists())

	go m.playbackLoop(ctrl)
	ctrl.Start()
	return nil
}

// loadCatalog loads the catalog, retrying a few times while the server is unreachable.
func (m *Manager) loadCatalog(ctx context.Context) (*catalog.Repository, error) {
	var lastErr error
	for attempt := 1; attempt <= catalogLoadAttempts; attempt++ {
		repo, err := catalog.Load(ctx, m.remote)
		if err == nil {
			return repo, nil
		}
		lastErr = err
		zlog.Warn().Err(err).Msgf("session: catalog load failed: attempt=%d/%d", attempt, catalogLoadAttempts)

		if attempt == catalogLoadAttempts {
			break
		}
		select {
		case <-time.After(catalogRetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, errors.Wrap(lastErr, "failed to load catalog")
}

// Done returns a channel that is closed when the session is closed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Phase returns the session phase.
func (m *Manager) Phase() state.Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// SessionID returns the session ID.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// running returns the controller and catalog of a running session.
func (m *Manager) running() (*playback.Controller, *catalog.Repository, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.phase != state.PhaseRunning {
		return nil, nil, ErrSessionNotRunning
	}
	return m.playback, m.catalog, nil
}

// Close stops the backfill loop, releases every resource and removes all subscribers.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.phase == state.PhaseTerminated {
		m.mu.Unlock()
		return
	}
	m.phase = state.PhaseTerminated
	ctrl := m.playback
	m.mu.Unlock()

	m.cancel()
	if ctrl != nil {
		ctrl.Close()
		<-m.loopDone
	}
	m.reports.Wait()
	m.notification.Close()

	zlog.Info().Msgf("session: closed: session_id=%s, remaining=%s", m.sessionID, m.blobs)
	close(m.done)
}

// GetAllTracks returns the current, queued and history tracks. It serves the sampling filters.
func (m *Manager) GetAllTracks() []track.Track {
	ctrl, _, err := m.running()
	if err != nil {
		return nil
	}
	return ctrl.GetAllTracks()
}
