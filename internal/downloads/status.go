package downloads

import "strings"

// StatusMapper normalizes a backend's native status string.
type StatusMapper interface {
	Map(backendStatus string) Status
}

var defaultVocabulary = map[Status][]string{
	StatusQueued: {
		"queued", "waiting", "checking", "checkingdl", "checkingresumedata",
		"queueddl", "allocating", "metadl", "pending", "grabbing", "fetching",
		"propagating",
	},
	StatusDownloading: {
		"downloading", "active", "forceddl", "verifying", "repairing",
		"extracting", "moving", "hash_checking", "finishing", "running",
	},
	StatusPaused:    {"paused", "pauseddl", "stopped", "stoppeddl"},
	StatusStalled:   {"stalled", "stalleddl"},
	StatusSeeding:   {"seeding", "uploading", "stalledup", "forcedup", "queuedup", "checkingup"},
	StatusCompleted: {"completed", "complete", "finished", "done", "success", "pausedup", "stoppedup"},
	StatusFailed:    {"error", "failed", "missingfiles", "unknown_error"},
	StatusRemoved:   {"removed", "deleted"},
}

// VocabularyMapper maps backend statuses through a fixed lookup table.
// Unrecognized strings map to downloading: a backend still reporting an item
// is assumed to be working on it.
type VocabularyMapper struct {
	lookup map[string]Status
}

var _ StatusMapper = (*VocabularyMapper)(nil)

// NewStatusMapper builds a mapper over the built-in vocabulary. Aliases
// extend or override it.
func NewStatusMapper(aliases map[string]Status) *VocabularyMapper {
	lookup := make(map[string]Status)
	for status, words := range defaultVocabulary {
		for _, w := range words {
			lookup[w] = status
		}
	}
	for word, status := range aliases {
		lookup[normalizeStatusWord(word)] = status
	}
	return &VocabularyMapper{lookup: lookup}
}

// Map returns the canonical status for s.
func (m *VocabularyMapper) Map(s string) Status {
	if st, ok := m.lookup[normalizeStatusWord(s)]; ok {
		return st
	}
	return StatusDownloading
}

func normalizeStatusWord(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
