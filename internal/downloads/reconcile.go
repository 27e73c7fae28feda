package downloads

import (
	"github.com/bindery/bindery/internal/downloader/types"
)

// MatchedPair joins a persisted item with the backend report describing it.
// Heuristic pairs were matched by content because the item had no identity yet.
type MatchedPair struct {
	Item      *DownloadItem
	Snapshot  types.Snapshot
	Heuristic bool
}

// ReconcileResult partitions both inputs of a reconciliation. Every DB item
// is either matched or in UnmatchedDB, and every backend item is either
// matched or in UnmatchedBackend.
type ReconcileResult struct {
	Matched          []MatchedPair
	UnmatchedDB      []*DownloadItem
	UnmatchedBackend []types.Snapshot
}

// Reconciler aligns persisted items with a backend's item list.
type Reconciler struct {
	matcher ContentMatcher
}

// NewReconciler creates a reconciler. A nil matcher disables the heuristic pass.
func NewReconciler(matcher ContentMatcher) *Reconciler {
	return &Reconciler{matcher: matcher}
}

// Reconcile matches by identity first, then offers the leftover backend
// items to the content matcher for items that still have no identity. It
// never changes an identity that is already assigned and does not mutate
// its inputs.
func (r *Reconciler) Reconcile(dbItems []*DownloadItem, backendItems []types.Snapshot) ReconcileResult {
	var result ReconcileResult

	byID := make(map[string][]int, len(backendItems))
	for i := range backendItems {
		if id := backendItems[i].ID; id.IsAssigned() {
			key := id.Normalized()
			byID[key] = append(byID[key], i)
		}
	}
	consumed := make([]bool, len(backendItems))

	var unmatched []*DownloadItem
	for _, item := range dbItems {
		idx := -1
		if item.ClientItemID.IsAssigned() {
			for _, i := range byID[item.ClientItemID.Normalized()] {
				if !consumed[i] {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			unmatched = append(unmatched, item)
			continue
		}
		consumed[idx] = true
		result.Matched = append(result.Matched, MatchedPair{Item: item, Snapshot: backendItems[idx]})
	}

	pending := make(map[*DownloadItem]bool)
	var unassigned []*DownloadItem
	for _, item := range unmatched {
		if !item.ClientItemID.IsAssigned() {
			pending[item] = true
			unassigned = append(unassigned, item)
		}
	}

	if r.matcher != nil && len(unassigned) > 0 {
		index := r.matcher.BuildIndex(unassigned)
		for i := range backendItems {
			if consumed[i] || len(pending) == 0 {
				continue
			}
			snap := backendItems[i]
			match := index.FindMatch(candidateFor(&snap))
			if match == nil || match.ClientItemID.IsAssigned() || !pending[match] {
				continue
			}
			delete(pending, match)
			consumed[i] = true
			result.Matched = append(result.Matched, MatchedPair{Item: match, Snapshot: snap, Heuristic: true})
		}
	}

	for _, item := range unmatched {
		if item.ClientItemID.IsAssigned() || pending[item] {
			result.UnmatchedDB = append(result.UnmatchedDB, item)
		}
	}
	for i := range backendItems {
		if !consumed[i] {
			result.UnmatchedBackend = append(result.UnmatchedBackend, backendItems[i])
		}
	}

	return result
}

func candidateFor(snap *types.Snapshot) Candidate {
	hint := snap.Comment
	if hint == "" {
		hint = snap.ID.Value()
	}
	return Candidate{Title: snap.Title, SizeBytes: snap.SizeBytes, Hint: hint}
}
