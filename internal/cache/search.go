package cache

import (
	"path/filepath"
	"strings"

	"snipd/internal/snippet"
)

// Query describes a search over the flattened view. The zero Query matches
// everything. Free text matches case-insensitively as a substring of
// trigger, label or replace; filters narrow by exact file name, enabled
// state, variable/form presence and label substring. Results keep the
// flattened ledger order; Offset/Limit paginate statelessly over the
// snapshot the search ran against.
type Query struct {
	Text    string
	File    string // base name equality, e.g. "emails.yml"
	Enabled *bool
	HasVars *bool
	HasForm *bool
	Label   string

	Offset int
	Limit  int // 0 = no limit
}

// Search filters the current snapshot. The returned entries are copies
// from the snapshot; they stay coherent even if the cache is invalidated
// afterwards.
func (c *Cache) Search(q Query) ([]Entry, error) {
	snap, err := c.Snapshot()
	if err != nil {
		return nil, err
	}

	return snap.Search(q), nil
}

// Search filters this snapshot's entries.
func (s *Snapshot) Search(q Query) []Entry {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	label := strings.ToLower(q.Label)

	matched := make([]Entry, 0)

	for _, entry := range s.entries {
		snip := &entry.Snippet

		if q.File != "" && filepath.Base(entry.File) != q.File {
			continue
		}

		if q.Enabled != nil && snip.Enabled != *q.Enabled {
			continue
		}

		if q.HasVars != nil && snip.HasVars() != *q.HasVars {
			continue
		}

		if q.HasForm != nil && snip.HasForm() != *q.HasForm {
			continue
		}

		if label != "" && !strings.Contains(strings.ToLower(snip.Label), label) {
			continue
		}

		if text != "" && !matchesText(snip, text) {
			continue
		}

		matched = append(matched, entry)
	}

	return paginate(matched, q.Offset, q.Limit)
}

func matchesText(snip *snippet.Snippet, text string) bool {
	return strings.Contains(strings.ToLower(snip.Trigger), text) ||
		strings.Contains(strings.ToLower(snip.Label), text) ||
		strings.Contains(strings.ToLower(snip.Replace), text)
}

func paginate(entries []Entry, offset, limit int) []Entry {
	if offset > 0 {
		if offset >= len(entries) {
			return []Entry{}
		}

		entries = entries[offset:]
	}

	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	return entries
}
