package dedup

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
)

// Tracker keeps track of document filenames already present in the output
// directory so that re-runs do not rewrite them. It is rebuilt from the
// directory listing on every run; nothing is persisted besides the documents.
type Tracker struct {
	names map[string]struct{}
}

// Load builds a tracker from the Markdown files in dir. A missing directory
// yields an empty tracker.
func Load(fs afero.Fs, dir string) (*Tracker, error) {
	t := &Tracker{names: make(map[string]struct{})}

	exists, err := afero.DirExists(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("stat output dir: %w", err)
	}
	if !exists {
		return t, nil
	}

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("list output dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		t.names[e.Name()] = struct{}{}
	}
	return t, nil
}

// Seen reports whether name is already tracked.
func (t *Tracker) Seen(name string) bool {
	_, ok := t.names[name]
	return ok
}

// MarkSeen adds name to the tracker.
func (t *Tracker) MarkSeen(name string) {
	t.names[name] = struct{}{}
}

// Count returns the number of tracked names.
func (t *Tracker) Count() int {
	return len(t.names)
}
