package helpers

import (
	"sort"
	"strings"

	"github.com/deluan/sanitize"
	"github.com/dweymouth/localsonic/backend/mediaprovider"
)

// SearchResult is a playlist entry matching a search query.
type SearchResult struct {
	// position of the track in the searched list
	Index int
	Track *mediaprovider.Track
}

// SearchTracks returns the tracks whose title, artist or album contain
// every term of query, ignoring case and accents. Best matches come first.
func SearchTracks(tracks []*mediaprovider.Track, query string) []SearchResult {
	fullQuery := normalize(strings.TrimSpace(query))
	queryTerms := strings.Fields(fullQuery)
	if len(queryTerms) == 0 {
		return nil
	}

	var results []SearchResult
	names := make(map[int]string)
	for i, tr := range tracks {
		name := normalize(searchName(tr))
		if AllTermsMatch(name, queryTerms) {
			results = append(results, SearchResult{Index: i, Track: tr})
			names[i] = name
		}
	}
	RankSearchResults(results, names, fullQuery, queryTerms)
	return results
}

// name and terms should be pre-converted to the same case
func AllTermsMatch(name string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(name, t) {
			return false
		}
	}
	return true
}

// RankSearchResults orders results by how well the normalized names
// (keyed by result Index) match the query.
func RankSearchResults(results []SearchResult, names map[int]string, fullQuery string, queryTerms []string) {
	if len(queryTerms) == 0 || len(results) < 2 {
		return
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		aName, bName := names[a.Index], names[b.Index]

		// Compare by entire query
		matchesA, matchesB := strings.Contains(aName, fullQuery), strings.Contains(bName, fullQuery)
		if matchesA && !matchesB {
			return true // item A has a direct match with the full query and B does not
		} else if matchesB && !matchesA {
			return false // item B matches but not A
		}

		// Compare by search query terms
		for _, term := range queryTerms {
			firstTermIdxA, firstTermIdxB := strings.Index(aName, term), strings.Index(bName, term)
			if firstTermIdxA < firstTermIdxB {
				return true // item A matches the query term starting at an earlier position
			} else if firstTermIdxB < firstTermIdxA {
				return false // item B matches first
			}
		}
		// Defer to playlist order
		return a.Index < b.Index
	})
}

func searchName(tr *mediaprovider.Track) string {
	return strings.Join([]string{tr.Title, tr.Artist, tr.Album}, " ")
}

func normalize(s string) string {
	return strings.ToLower(sanitize.Accents(s))
}
