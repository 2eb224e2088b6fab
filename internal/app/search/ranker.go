// Package search ranks catalog tracks against a free-text query.
package search

import (
	"iter"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/osa030/lookahead/internal/domain/track"
)

// AllPlaylists is the playlist filter that matches every track.
const AllPlaylists = "everyone"

// Result is a ranked track.
type Result struct {
	Track track.Track
	Score int
}

// Rank returns the tracks matching playlistFilter ordered by descending score.
// Ties keep catalog order. Tracks with a non-positive score are left out.
// The ranking is recomputed every time the returned sequence is iterated.
func Rank(tracks iter.Seq[track.Track], playlistFilter, query string) iter.Seq[Result] {
	query = strings.ToLower(strings.TrimSpace(query))

	return func(yield func(Result) bool) {
		results := make([]Result, 0)
		for t := range tracks {
			if !matchesPlaylist(t, playlistFilter) {
				continue
			}
			if score := Score(t, query); score > 0 {
				results = append(results, Result{Track: t, Score: score})
			}
		}

		slices.SortStableFunc(results, func(a, b Result) int {
			return b.Score - a.Score
		})

		for _, r := range results {
			if !yield(r) {
				return
			}
		}
	}
}

// Score computes the relevance of t for a lowercase query.
//
// An empty query scores 1. Otherwise the path and the display name each contribute
// their length minus their edit distance to the query; the sum is doubled when the
// path contains the query and doubled again when the display name does.
func Score(t track.Track, query string) int {
	if query == "" {
		return 1
	}

	path := strings.ToLower(t.Path)
	display := strings.ToLower(t.Display)

	score := similarity(t.Path, path, query) + similarity(t.Display, display, query)
	if strings.Contains(path, query) {
		score *= 2
	}
	if strings.Contains(display, query) {
		score *= 2
	}
	return score
}

// similarity is the length of the original string minus the edit distance of its
// lowercased form to the query.
func similarity(original, lowered, query string) int {
	return utf8.RuneCountInString(original) - levenshtein.ComputeDistance(lowered, query)
}

func matchesPlaylist(t track.Track, filter string) bool {
	return filter == "" || filter == AllPlaylists || t.Playlist == filter
}
