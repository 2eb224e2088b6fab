// Package musicserver provides a client for the remote music server HTTP API.
package musicserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lookahead/internal/domain/playlist"
	"github.com/osa030/lookahead/internal/domain/track"
)

// Client is a music server API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	// Cached CSRF token
	csrf   string
	csrfMu sync.Mutex
}

// Config represents music server client configuration.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// StatusError is returned when the server answers with a non-success status code.
type StatusError struct {
	Route      string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("music server %s returned status %d", e.Route, e.StatusCode)
}

// TrackListResponse represents the response of /track_list.
type TrackListResponse struct {
	Playlists []struct {
		Name       string `json:"name"`
		TrackCount int    `json:"track_count"`
		Favorite   bool   `json:"favorite"`
		Write      bool   `json:"write"`
		Tracks     []struct {
			Path        string   `json:"path"`
			Mtime       int64    `json:"mtime"`
			Display     string   `json:"display"`
			Duration    float64  `json:"duration"`
			Tags        []string `json:"tags"`
			Title       *string  `json:"title"`
			Artists     []string `json:"artists"`
			Album       *string  `json:"album"`
			AlbumArtist *string  `json:"album_artist"`
			Year        *int     `json:"year"`
		} `json:"tracks"`
	} `json:"playlists"`
}

// HistoryPlayedRequest represents the body of /history_played.
type HistoryPlayedRequest struct {
	Track          string `json:"track"`
	Playlist       string `json:"playlist"`
	Timestamp      int64  `json:"timestamp"`
	StartTimestamp int64  `json:"startTimestamp"`
	LastfmEligible bool   `json:"lastfmEligible"`
}

// New creates a new music server client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("music server URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, errors.Wrapf(err, "invalid music server URL: %s", cfg.URL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// TrackList retrieves every playlist visible to the user together with its tracks.
func (c *Client) TrackList(ctx context.Context) ([]playlist.Playlist, error) {
	var response TrackListResponse
	if err := c.getJSON(ctx, "/track_list", nil, &response); err != nil {
		return nil, err
	}

	playlists := make([]playlist.Playlist, 0, len(response.Playlists))
	for _, p := range response.Playlists {
		pl := playlist.Playlist{
			Name:       p.Name,
			TrackCount: p.TrackCount,
			Favorite:   p.Favorite,
			Write:      p.Write,
			Tracks:     make([]track.Track, 0, len(p.Tracks)),
		}
		for _, t := range p.Tracks {
			tr := track.Track{
				Path:     t.Path,
				Playlist: p.Name,
				Display:  t.Display,
				Artists:  t.Artists,
				Tags:     t.Tags,
				Duration: time.Duration(t.Duration * float64(time.Second)),
				Mtime:    t.Mtime,
			}
			if t.Title != nil {
				tr.Title = *t.Title
			}
			if t.Album != nil {
				tr.Album = *t.Album
			}
			if t.AlbumArtist != nil {
				tr.AlbumArtist = *t.AlbumArtist
			}
			if t.Year != nil {
				tr.Year = *t.Year
			}
			pl.Tracks = append(pl.Tracks, tr)
		}
		playlists = append(playlists, pl)
	}

	return playlists, nil
}

// ChooseTrack asks the server for a random track path within a playlist, filtered by tags.
func (c *Client) ChooseTrack(ctx context.Context, playlistName string, filter track.TagFilter) (string, error) {
	if playlistName == "" {
		return "", errors.New("playlist name is required")
	}

	csrf, err := c.CSRF(ctx)
	if err != nil {
		return "", err
	}

	// the server requires a tag mode; an empty deny list accepts every track
	mode := filter.Mode
	if mode == track.TagModeOff {
		mode = track.TagModeDeny
	}

	params := url.Values{}
	params.Set("playlist_dir", playlistName)
	params.Set("tag_mode", string(mode))
	params.Set("tags", strings.Join(filter.Tags, ";"))
	params.Set("csrf", csrf)

	var response struct {
		Path string `json:"path"`
	}
	if err := c.getJSON(ctx, "/choose_track", params, &response); err != nil {
		return "", err
	}
	if response.Path == "" {
		return "", errors.Newf("music server returned no track for playlist %s", playlistName)
	}

	return response.Path, nil
}

// GetAudio downloads the audio of a track in the given quality.
func (c *Client) GetAudio(ctx context.Context, path string, quality track.Quality) ([]byte, string, error) {
	params := url.Values{}
	params.Set("path", path)
	params.Set("quality", string(quality))

	return c.getBytes(ctx, "/get_track", params)
}

// GetAlbumCover downloads the album cover of a track. quality is one of high, low, tiny.
func (c *Client) GetAlbumCover(ctx context.Context, path string, quality string) ([]byte, string, error) {
	params := url.Values{}
	params.Set("path", path)
	params.Set("quality", quality)

	return c.getBytes(ctx, "/get_album_cover", params)
}

// GetLyrics retrieves the lyrics of a track.
func (c *Client) GetLyrics(ctx context.Context, path string) (track.Lyrics, error) {
	params := url.Values{}
	params.Set("path", path)

	var lyrics track.Lyrics
	if err := c.getJSON(ctx, "/get_lyrics", params, &lyrics); err != nil {
		return track.Lyrics{}, err
	}
	if !lyrics.Found {
		return track.LyricsNotFound, nil
	}
	return lyrics, nil
}

// NowPlaying reports the track currently playing.
func (c *Client) NowPlaying(ctx context.Context, path string, paused bool, progress time.Duration) error {
	return c.postJSON(ctx, "/now_playing", map[string]any{
		"track":    path,
		"paused":   paused,
		"progress": int(progress.Seconds()),
	})
}

// HistoryPlayed reports a track that was played.
func (c *Client) HistoryPlayed(ctx context.Context, req HistoryPlayedRequest) error {
	return c.postJSON(ctx, "/history_played", map[string]any{
		"track":          req.Track,
		"playlist":       req.Playlist,
		"timestamp":      req.Timestamp,
		"startTimestamp": req.StartTimestamp,
		"lastfmEligible": req.LastfmEligible,
	})
}

// DislikeAdd marks a track as disliked so the server never chooses it again.
func (c *Client) DislikeAdd(ctx context.Context, path string) error {
	return c.postJSON(ctx, "/dislikes/add", map[string]any{
		"track": path,
	})
}

// CSRF returns the CSRF token, fetching it on first use.
func (c *Client) CSRF(ctx context.Context) (string, error) {
	c.csrfMu.Lock()
	defer c.csrfMu.Unlock()

	if c.csrf != "" {
		return c.csrf, nil
	}

	var response struct {
		Token string `json:"token"`
	}
	if err := c.getJSON(ctx, "/get_csrf", nil, &response); err != nil {
		return "", errors.Wrap(err, "failed to get CSRF token")
	}
	if response.Token == "" {
		return "", errors.New("music server returned an empty CSRF token")
	}

	c.csrf = response.Token
	zlog.Debug().Msg("musicserver: CSRF token cached")
	return c.csrf, nil
}

func (c *Client) newRequest(ctx context.Context, method, route string, params url.Values, body io.Reader) (*http.Request, error) {
	reqURL := c.baseURL + route
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	if c.token != "" {
		req.AddCookie(&http.Cookie{Name: "token", Value: c.token})
	}
	return req, nil
}

func (c *Client) do(req *http.Request, route string) ([]byte, string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to send request: route=%s", route)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to read response body: route=%s", route)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &StatusError{Route: route, StatusCode: resp.StatusCode}
	}

	return body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) getJSON(ctx context.Context, route string, params url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, route, params, nil)
	if err != nil {
		return err
	}

	body, _, err := c.do(req, route)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "failed to parse response: route=%s", route)
	}
	return nil
}

func (c *Client) getBytes(ctx context.Context, route string, params url.Values) ([]byte, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, route, params, nil)
	if err != nil {
		return nil, "", err
	}

	data, contentType, err := c.do(req, route)
	if err != nil {
		return nil, "", err
	}

	zlog.Debug().Msgf("musicserver: downloaded: route=%s, size=%s", route, humanize.Bytes(uint64(len(data))))
	return data, contentType, nil
}

func (c *Client) postJSON(ctx context.Context, route string, payload map[string]any) error {
	csrf, err := c.CSRF(ctx)
	if err != nil {
		return err
	}
	payload["csrf"] = csrf

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to encode request body")
	}

	req, err := c.newRequest(ctx, http.MethodPost, route, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	_, _, err = c.do(req, route)
	return err
}
