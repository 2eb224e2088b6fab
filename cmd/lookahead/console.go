package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	"github.com/osa030/lookahead/internal/app/notification"
	"github.com/osa030/lookahead/internal/app/playback"
	"github.com/osa030/lookahead/internal/app/search"
	"github.com/osa030/lookahead/internal/app/session/state"
	"github.com/osa030/lookahead/internal/domain/playlist"
	"github.com/osa030/lookahead/internal/domain/track"
)

var errUsage = errors.New("invalid arguments")

// consoleSession is the session API driven by the console.
type consoleSession interface {
	Snapshot() (playback.Snapshot, error)
	Settings() state.Values
	Playlists() ([]playlist.Playlist, error)
	Search(query, playlistFilter string) ([]search.Result, error)
	Enqueue(ctx context.Context, path string, top bool) error
	Next() (*track.Playable, error)
	Previous() (*track.Playable, error)
	Remove(index int) (track.Track, error)
	Move(from, to int) error
	Dislike(index int) (track.Track, error)
	Prefer(playlist string) error
	ReloadCatalog(ctx context.Context) error
	EnablePlaylist(name string, enabled bool)
	SetQuality(quality string) error
	SetQueueSize(n int) error
	SetHistorySize(n int) error
	SetRemovalPolicy(policy string) error
	SetTagFilter(f track.TagFilter) error
}

const consoleHelp = `Commands:
  status                 Show the current track and the queue
  next | prev            Skip forward or go back
  rm N                   Remove queue entry N
  mv N M                 Move queue entry N to position M
  dislike N              Remove queue entry N and never pick it again
  search [-p PLAYLIST] Q Search the catalog
  add N | top N          Append or play next search result N
  prefer PLAYLIST        Take the next track from PLAYLIST
  playlists              List playlists
  enable|disable NAME    Toggle a playlist
  quality high|low|verylow
  size N | history N     Set queue size or history size
  removal roundrobin|same
  tags allow|deny T,T | tags off
  settings               Show settings
  reload                 Reload the catalog
  quit
`

// console executes command lines against a session and prints notifications.
type console struct {
	mu      sync.Mutex
	session consoleSession
	out     io.Writer
	results []search.Result
}

func newConsole(s consoleSession, out io.Writer) *console {
	return &console{session: s, out: out}
}

// Send prints a notification.
func (c *console) Send(n *notification.Notification) error {
	switch n.Type {
	case playback.EventTrackStarted.String():
		if cur := n.Snapshot.Current; cur != nil {
			c.printf("> Now playing: %s (%s)\n", cur.Track.DisplayTitle(), formatDuration(cur.Track.Duration))
		}
	case playback.EventFillFailed.String():
		c.printf("! Backfill failed: %s\n", n.Message)
	case notification.TypeDisliked:
		if n.Track != nil {
			c.printf("- Disliked: %s\n", n.Track.DisplayTitle())
		}
	}
	return nil
}

// Execute runs a single command line. It reports whether the console should quit.
func (c *console) Execute(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		c.printf("%s", consoleHelp)
	case "status", "ls":
		return false, c.status()
	case "next", "n":
		p, err := c.session.Next()
		if err != nil {
			return false, err
		}
		c.printf("Playing %s\n", p.Track.DisplayTitle())
	case "prev", "p":
		p, err := c.session.Previous()
		if err != nil {
			return false, err
		}
		c.printf("Playing %s\n", p.Track.DisplayTitle())
	case "rm":
		i, err := c.index(args, 0)
		if err != nil {
			return false, err
		}
		t, err := c.session.Remove(i)
		if err != nil {
			return false, err
		}
		c.printf("Removed %s\n", t.DisplayTitle())
	case "mv":
		from, err := c.index(args, 0)
		if err != nil {
			return false, err
		}
		to, err := c.index(args, 1)
		if err != nil {
			return false, err
		}
		return false, c.session.Move(from, to)
	case "dislike":
		i, err := c.index(args, 0)
		if err != nil {
			return false, err
		}
		_, err = c.session.Dislike(i)
		return false, err
	case "search", "s":
		return false, c.search(args)
	case "add", "top":
		i, err := c.index(args, 0)
		if err != nil {
			return false, err
		}
		c.mu.Lock()
		if i >= len(c.results) {
			c.mu.Unlock()
			return false, errors.Newf("no search result %d", i+1)
		}
		r := c.results[i]
		c.mu.Unlock()
		if err := c.session.Enqueue(ctx, r.Track.Path, cmd == "top"); err != nil {
			return false, err
		}
		c.printf("Queued %s\n", r.Track.DisplayTitle())
	case "prefer":
		if len(args) != 1 {
			return false, errUsage
		}
		return false, c.session.Prefer(args[0])
	case "playlists":
		return false, c.playlists()
	case "enable", "disable":
		if len(args) != 1 {
			return false, errUsage
		}
		c.session.EnablePlaylist(args[0], cmd == "enable")
	case "quality":
		if len(args) != 1 {
			return false, errUsage
		}
		return false, c.session.SetQuality(args[0])
	case "size", "history":
		if len(args) != 1 {
			return false, errUsage
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return false, errors.Wrapf(errUsage, "%q is not a number", args[0])
		}
		if cmd == "size" {
			return false, c.session.SetQueueSize(n)
		}
		return false, c.session.SetHistorySize(n)
	case "removal":
		if len(args) != 1 {
			return false, errUsage
		}
		return false, c.session.SetRemovalPolicy(args[0])
	case "tags":
		f, err := parseTagFilter(args)
		if err != nil {
			return false, err
		}
		return false, c.session.SetTagFilter(f)
	case "settings":
		c.settings()
	case "reload":
		return false, c.session.ReloadCatalog(ctx)
	default:
		return false, errors.Newf("unknown command %q, type 'help'", cmd)
	}
	return false, nil
}

func (c *console) status() error {
	snap, err := c.session.Snapshot()
	if err != nil {
		return err
	}

	if snap.Current != nil {
		c.printf("Now playing: %s (%s)\n", snap.Current.Track.DisplayTitle(), formatDuration(snap.Current.Track.Duration))
	} else {
		c.printf("Now playing: -\n")
	}

	c.printf("Queue: %d/%d tracks, %s, backfill %s\n",
		len(snap.Queue), snap.TargetDepth, formatDuration(snap.TotalDuration), snap.FillState)
	for i, p := range snap.Queue {
		c.printf("%3d. %-60s %6s  %-8s %s\n", i+1, p.Track.DisplayTitle(), formatDuration(p.Track.Duration),
			strings.ToLower(string(p.Origin)), humanize.Time(p.AddedAt))
	}
	if snap.LastError != "" {
		c.printf("Last error: %s (retry %s)\n", snap.LastError, humanize.Time(snap.BackoffUntil))
	}
	if len(snap.Selector.Overrides) > 0 {
		c.printf("Preferred: %s\n", strings.Join(snap.Selector.Overrides, " < "))
	}
	c.printf("History: %d tracks\n", len(snap.History))
	return nil
}

func (c *console) search(args []string) error {
	playlistFilter := search.AllPlaylists
	if len(args) >= 2 && args[0] == "-p" {
		playlistFilter = args[1]
		args = args[2:]
	}
	if len(args) == 0 {
		return errUsage
	}

	results, err := c.session.Search(strings.Join(args, " "), playlistFilter)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.results = results
	c.mu.Unlock()

	if len(results) == 0 {
		c.printf("No matches\n")
		return nil
	}
	for i, r := range results {
		c.printf("%3d. %-60s %6s  %s\n", i+1, r.Track.DisplayTitle(), formatDuration(r.Track.Duration), r.Track.Playlist)
	}
	return nil
}

func (c *console) playlists() error {
	playlists, err := c.session.Playlists()
	if err != nil {
		return err
	}
	enabled := make(map[string]bool)
	for _, name := range c.session.Settings().Playlists {
		enabled[name] = true
	}
	for _, p := range playlists {
		mark := " "
		if enabled[p.Name] {
			mark = "*"
		}
		c.printf("[%s] %-30s %s tracks\n", mark, p.Name, humanize.Comma(int64(len(p.Tracks))))
	}
	return nil
}

func (c *console) settings() {
	v := c.session.Settings()
	c.printf("Playlists: %s\n", strings.Join(v.Playlists, ", "))
	c.printf("Quality:   %s\n", v.Quality)
	c.printf("Queue:     %d\n", v.QueueSize)
	c.printf("History:   %d\n", v.HistorySize)
	c.printf("Removal:   %s\n", v.Removal)
	if v.TagFilter.Mode != track.TagModeOff {
		c.printf("Tags:      %s %s\n", v.TagFilter.Mode, strings.Join(v.TagFilter.Tags, ","))
	}
}

// index parses the 1-based queue or result position at args[pos].
func (c *console) index(args []string, pos int) (int, error) {
	if pos >= len(args) {
		return 0, errUsage
	}
	n, err := strconv.Atoi(args[pos])
	if err != nil || n < 1 {
		return 0, errors.Wrapf(errUsage, "%q is not a position", args[pos])
	}
	return n - 1, nil
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func parseTagFilter(args []string) (track.TagFilter, error) {
	if len(args) == 1 && args[0] == "off" {
		return track.TagFilter{}, nil
	}
	if len(args) != 2 {
		return track.TagFilter{}, errUsage
	}
	mode := track.TagMode(args[0])
	if mode != track.TagModeAllow && mode != track.TagModeDeny {
		return track.TagFilter{}, errors.Wrapf(errUsage, "unknown tag mode %q", args[0])
	}
	var tags []string
	for _, tag := range strings.Split(args[1], ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return track.TagFilter{Mode: mode, Tags: tags}, nil
}

// formatDuration formats d as m:ss, or h:mm:ss for an hour and longer.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
