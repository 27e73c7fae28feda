package downloads

import "testing"

func TestVocabularyMapper_Map(t *testing.T) {
	m := NewStatusMapper(nil)

	tests := []struct {
		in   string
		want Status
	}{
		{"queued", StatusQueued},
		{"checkingDL", StatusQueued},
		{"metaDL", StatusQueued},
		{"Downloading", StatusDownloading},
		{"  active ", StatusDownloading},
		{"pausedDL", StatusPaused},
		{"stopped", StatusPaused},
		{"stalledDL", StatusStalled},
		{"stalledUP", StatusSeeding},
		{"uploading", StatusSeeding},
		{"pausedUP", StatusCompleted},
		{"Completed", StatusCompleted},
		{"error", StatusFailed},
		{"missingFiles", StatusFailed},
		{"removed", StatusRemoved},
		{"something-new", StatusDownloading},
		{"", StatusDownloading},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := m.Map(tt.in); got != tt.want {
				t.Errorf("Map(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestVocabularyMapper_Aliases(t *testing.T) {
	m := NewStatusMapper(map[string]Status{
		"Moving":     StatusCompleted,
		"Quarantine": StatusFailed,
	})

	if got := m.Map("moving"); got != StatusCompleted {
		t.Errorf("expected alias to override default, got %s", got)
	}
	if got := m.Map("QUARANTINE"); got != StatusFailed {
		t.Errorf("expected alias to extend vocabulary, got %s", got)
	}
	if got := m.Map("seeding"); got != StatusSeeding {
		t.Errorf("expected defaults to remain, got %s", got)
	}
}

func TestParseStatus(t *testing.T) {
	if st, ok := ParseStatus(" Seeding "); !ok || st != StatusSeeding {
		t.Errorf("ParseStatus = %s, %v", st, ok)
	}
	if _, ok := ParseStatus("pausedUP"); ok {
		t.Error("expected backend words to be rejected")
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	terminal := map[Status]bool{StatusCompleted: true, StatusFailed: true, StatusRemoved: true}
	for _, st := range AllStatuses() {
		if st.IsTerminal() != terminal[st] {
			t.Errorf("%s.IsTerminal() = %v", st, st.IsTerminal())
		}
	}
}
