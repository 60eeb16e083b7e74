package store

import (
	"fmt"
	"strings"

	"snipd/internal/snippet"
)

// ExportFormat selects the pack serialization.
type ExportFormat int

const (
	FormatYAML ExportFormat = iota
	FormatJSON
)

// Export serializes the named triggers as a portable pack. A nil or empty
// trigger list exports everything. All-or-nothing: any trigger that does
// not resolve fails the export with ErrNotFound naming every missing one.
func (s *Store) Export(triggers []string, format ExportFormat) ([]byte, error) {
	snap, err := s.cache.Snapshot()
	if err != nil {
		return nil, err
	}

	var snippets []snippet.Snippet

	if len(triggers) == 0 {
		entries := snap.Entries()
		snippets = make([]snippet.Snippet, 0, len(entries))

		for _, entry := range entries {
			snippets = append(snippets, entry.Snippet)
		}
	} else {
		var missing []string

		snippets = make([]snippet.Snippet, 0, len(triggers))

		for _, trigger := range triggers {
			entry, ok := snap.Get(trigger)
			if !ok {
				missing = append(missing, trigger)
				continue
			}

			snippets = append(snippets, entry.Snippet)
		}

		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.Join(missing, ", "))
		}
	}

	switch format {
	case FormatJSON:
		return snippet.EncodePackJSON(snippets)
	default:
		return snippet.EncodePackYAML(snippets)
	}
}
