package downloads

import (
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Candidate describes a backend item that has not been matched by identity.
type Candidate struct {
	Title     string
	SizeBytes *int64
	Hint      string // backend id, source URL or comment
}

// MatchIndex finds the single best persisted item for a candidate, or nil.
type MatchIndex interface {
	FindMatch(c Candidate) *DownloadItem
}

// ContentMatcher builds lookup indexes for heuristic reconciliation.
type ContentMatcher interface {
	BuildIndex(items []*DownloadItem) MatchIndex
}

const (
	defaultSizeTolerance = 0.05
	minFuzzyNeedle       = 3
)

// TitleMatcher matches by source URL, then normalized title, then fuzzy title
// containment. Sizes, when both sides know them, must agree within
// SizeTolerance. Ambiguous matches return nil.
type TitleMatcher struct {
	SizeTolerance float64
}

var _ ContentMatcher = TitleMatcher{}

type titleIndex struct {
	tolerance float64
	items     []*DownloadItem
	titles    []string
	byURL     map[string]*DownloadItem
	byTitle   map[string][]*DownloadItem
}

func (m TitleMatcher) BuildIndex(items []*DownloadItem) MatchIndex {
	tol := m.SizeTolerance
	if tol <= 0 {
		tol = defaultSizeTolerance
	}
	idx := &titleIndex{
		tolerance: tol,
		byURL:     make(map[string]*DownloadItem, len(items)),
		byTitle:   make(map[string][]*DownloadItem, len(items)),
	}
	for _, item := range items {
		norm := normalizeTitle(item.Title)
		idx.items = append(idx.items, item)
		idx.titles = append(idx.titles, norm)
		if u := strings.ToLower(strings.TrimSpace(item.DownloadURL)); u != "" {
			idx.byURL[u] = item
		}
		if norm != "" {
			idx.byTitle[norm] = append(idx.byTitle[norm], item)
		}
	}
	return idx
}

func (idx *titleIndex) FindMatch(c Candidate) *DownloadItem {
	if hint := strings.ToLower(strings.TrimSpace(c.Hint)); hint != "" {
		if item, ok := idx.byURL[hint]; ok && idx.sizeCompatible(item, c.SizeBytes) {
			return item
		}
	}

	norm := normalizeTitle(c.Title)
	if norm == "" {
		return nil
	}

	if exact := idx.filterBySize(idx.byTitle[norm], c.SizeBytes); len(exact) > 0 {
		if len(exact) == 1 {
			return exact[0]
		}
		return nil
	}

	var best *DownloadItem
	bestRank, ties := -1, 0
	for i, item := range idx.items {
		title := idx.titles[i]
		rank, ok := fuzzyRank(title, norm)
		if !ok || !idx.sizeCompatible(item, c.SizeBytes) {
			continue
		}
		switch {
		case bestRank < 0 || rank < bestRank:
			best, bestRank, ties = item, rank, 0
		case rank == bestRank:
			ties++
		}
	}
	if ties > 0 {
		return nil
	}
	return best
}

// fuzzyRank matches the shorter title inside the longer one.
func fuzzyRank(a, b string) (int, bool) {
	needle, haystack := a, b
	if len(needle) > len(haystack) {
		needle, haystack = haystack, needle
	}
	if len(needle) < minFuzzyNeedle {
		return 0, false
	}
	if !fuzzy.MatchNormalizedFold(needle, haystack) {
		return 0, false
	}
	return fuzzy.RankMatchNormalizedFold(needle, haystack), true
}

func (idx *titleIndex) filterBySize(items []*DownloadItem, size *int64) []*DownloadItem {
	var out []*DownloadItem
	for _, item := range items {
		if idx.sizeCompatible(item, size) {
			out = append(out, item)
		}
	}
	return out
}

func (idx *titleIndex) sizeCompatible(item *DownloadItem, size *int64) bool {
	if size == nil || item.SizeBytes == nil || *size <= 0 || *item.SizeBytes <= 0 {
		return true
	}
	a, b := float64(*size), float64(*item.SizeBytes)
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff/max(a, b) <= idx.tolerance
}

// normalizeTitle lowercases and collapses punctuation and separators so that
// "Frank.Herbert-Dune_(2019)" and "frank herbert dune 2019" compare equal.
func normalizeTitle(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
			continue
		}
		space = true
	}
	return b.String()
}
