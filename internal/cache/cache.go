// Package cache provides the in-memory aggregate view over a match
// directory's ledger. Reads never touch disk unless the cache is dirty;
// rebuilds swap a snapshot pointer so concurrent readers never observe a
// half-built ledger.
package cache

import (
	"sync"
	"sync/atomic"

	"snipd/internal/ledger"
	"snipd/internal/snippet"
)

// Entry locates one snippet in the flattened view: the owning file's path
// and the snippet's position within that file. Snippet is a copy; mutating
// it never touches the snapshot.
type Entry struct {
	Snippet  snippet.Snippet
	File     string
	Position int
}

// Snapshot is one immutable generation of the flattened view. Callers may
// hold a snapshot across paginated reads; its ordering and generation never
// change underneath them.
type Snapshot struct {
	Ledger *ledger.Ledger

	entries    []Entry
	byTrigger  map[string]int
	duplicates map[string][]Entry
}

// Entries returns the flattened entries in file-then-position order.
func (s *Snapshot) Entries() []Entry { return s.entries }

// Generation returns the ledger generation this snapshot was built from.
func (s *Snapshot) Generation() uint64 { return s.Ledger.Generation }

// Get resolves a trigger to its first entry in file-then-position order.
func (s *Snapshot) Get(trigger string) (Entry, bool) {
	idx, ok := s.byTrigger[trigger]
	if !ok {
		return Entry{}, false
	}

	return s.entries[idx], true
}

// DuplicateTriggers returns every trigger that resolves to more than one
// entry, with the full entry list per trigger in precedence order.
func (s *Snapshot) DuplicateTriggers() map[string][]Entry { return s.duplicates }

// Cache owns the current snapshot and its dirty flag. Invalidate may be
// called concurrently from the watcher and the store; the next read rebuilds
// exactly once.
type Cache struct {
	dir        string
	extensions []string

	rebuildMu sync.Mutex
	snap      atomic.Pointer[Snapshot]
	dirty     atomic.Bool
}

// New creates a Cache over dir. The first read performs the initial
// rebuild.
func New(dir string, extensions []string) *Cache {
	c := &Cache{dir: dir, extensions: extensions}
	c.dirty.Store(true)

	return c
}

// Dir returns the watched match directory.
func (c *Cache) Dir() string { return c.dir }

// Invalidate marks the cache dirty. Idempotent and safe from any
// goroutine; repeated calls before the next read cost one rebuild total.
func (c *Cache) Invalidate() {
	c.dirty.Store(true)
}

// Snapshot returns the current snapshot, rebuilding first when the cache
// is dirty or was never built.
func (c *Cache) Snapshot() (*Snapshot, error) {
	if snap := c.snap.Load(); snap != nil && !c.dirty.Load() {
		return snap, nil
	}

	return c.rebuild()
}

// Generation returns the current snapshot's generation, rebuilding if
// needed. Readers compare generations to detect stale borrowed snapshots
// without re-stat'ing files.
func (c *Cache) Generation() (uint64, error) {
	snap, err := c.Snapshot()
	if err != nil {
		return 0, err
	}

	return snap.Generation(), nil
}

// List returns the flattened entries of the current snapshot.
func (c *Cache) List() ([]Entry, error) {
	snap, err := c.Snapshot()
	if err != nil {
		return nil, err
	}

	return snap.Entries(), nil
}

// Get resolves trigger through the current snapshot.
func (c *Cache) Get(trigger string) (Entry, bool, error) {
	snap, err := c.Snapshot()
	if err != nil {
		return Entry{}, false, err
	}

	entry, ok := snap.Get(trigger)

	return entry, ok, err
}

// DuplicateTriggers returns the duplicate-trigger diagnostic of the
// current snapshot.
func (c *Cache) DuplicateTriggers() (map[string][]Entry, error) {
	snap, err := c.Snapshot()
	if err != nil {
		return nil, err
	}

	return snap.DuplicateTriggers(), nil
}

// Warnings returns the per-file warnings of the current snapshot.
func (c *Cache) Warnings() ([]ledger.Warning, error) {
	snap, err := c.Snapshot()
	if err != nil {
		return nil, err
	}

	return snap.Ledger.Warnings, nil
}

func (c *Cache) rebuild() (*Snapshot, error) {
	c.rebuildMu.Lock()
	defer c.rebuildMu.Unlock()

	// Another reader may have rebuilt while we waited for the mutex.
	if snap := c.snap.Load(); snap != nil && !c.dirty.Load() {
		return snap, nil
	}

	// Clear the flag before rebuilding so an invalidation that arrives
	// mid-rebuild is not lost: it re-arms the flag and the next read
	// rebuilds again.
	c.dirty.Store(false)

	var prev *ledger.Ledger
	if snap := c.snap.Load(); snap != nil {
		prev = snap.Ledger
	}

	led, err := ledger.Rebuild(c.dir, c.extensions, prev)
	if err != nil {
		c.dirty.Store(true)

		return nil, err
	}

	snap := buildSnapshot(led)
	c.snap.Store(snap)

	return snap, nil
}

func buildSnapshot(led *ledger.Ledger) *Snapshot {
	snap := &Snapshot{
		Ledger:     led,
		byTrigger:  make(map[string]int),
		duplicates: make(map[string][]Entry),
	}

	for _, file := range led.Files {
		for pos := range file.Snippets {
			entry := Entry{
				Snippet:  file.Snippets[pos],
				File:     file.Path,
				Position: pos,
			}

			snap.entries = append(snap.entries, entry)

			trigger := entry.Snippet.Trigger
			if trigger == "" {
				continue
			}

			if _, seen := snap.byTrigger[trigger]; !seen {
				snap.byTrigger[trigger] = len(snap.entries) - 1
			}

			snap.duplicates[trigger] = append(snap.duplicates[trigger], entry)
		}
	}

	for trigger, entries := range snap.duplicates {
		if len(entries) < 2 {
			delete(snap.duplicates, trigger)
		}
	}

	return snap
}
