// Package store is the CRUD authority over a match directory. It is the
// only component that mutates match files: every mutation runs under the
// per-directory lock, writes atomically (temp file + rename, never
// truncate-in-place), re-checks the target file's fingerprint against the
// cache snapshot it planned from, and retries once on a detected conflict
// before surfacing ErrConflict.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/natefinch/atomic"

	"snipd/internal/cache"
	"snipd/internal/ledger"
	"snipd/internal/logging"
	"snipd/internal/snippet"
)

// DefaultFileName is the match file new snippets land in when the caller
// does not pick one.
const DefaultFileName = "base.yml"

// Reloader asks the external expansion runtime to pick up changed files.
// Called fire-and-forget after successful mutations; failures are logged,
// never retried by the store.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Recorder persists an audit row for a successful mutation.
type Recorder interface {
	Record(ctx context.Context, op, trigger, file, detail string) error
}

// Options configures a Store.
type Options struct {
	// Dir is the match directory. Required.
	Dir string

	// DefaultFile is the base name of the file new snippets are created
	// in. Defaults to DefaultFileName.
	DefaultFile string

	// Extensions filters which files count as match files. Defaults to
	// ledger.DefaultExtensions.
	Extensions []string

	// Logger receives operational logging. Defaults to a NopLogger.
	Logger logging.Logger

	// Reloader, when set, is signalled after every successful mutation.
	Reloader Reloader

	// History, when set, records every successful mutation.
	History Recorder
}

// Store mutates match files and drives cache invalidation.
type Store struct {
	dir         string
	defaultFile string
	extensions  []string
	cache       *cache.Cache
	log         logging.Logger
	reloader    Reloader
	history     Recorder
}

// New creates a Store over opts.Dir.
func New(opts Options) *Store {
	if opts.DefaultFile == "" {
		opts.DefaultFile = DefaultFileName
	}

	if len(opts.Extensions) == 0 {
		opts.Extensions = ledger.DefaultExtensions
	}

	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	return &Store{
		dir:         opts.Dir,
		defaultFile: opts.DefaultFile,
		extensions:  opts.Extensions,
		cache:       cache.New(opts.Dir, opts.Extensions),
		log:         opts.Logger,
		reloader:    opts.Reloader,
		history:     opts.History,
	}
}

// Dir returns the match directory.
func (s *Store) Dir() string { return s.dir }

// Cache returns the store's cache, for wiring the watcher and for direct
// reads.
func (s *Store) Cache() *cache.Cache { return s.cache }

// WithLock runs fn while holding the match directory's exclusive lock,
// excluding every store mutation in this and any other process. Callers
// that need a consistent point-in-time view of the directory, such as a
// backup copy or a restore into it, wrap the whole operation in this.
func (s *Store) WithLock(fn func() error) error {
	return withDirLock(s.dir, fn)
}

// List returns the flattened snippet entries in file-then-position order.
func (s *Store) List() ([]cache.Entry, error) { return s.cache.List() }

// Get resolves a trigger to its first entry in file-then-position order.
// Fails with ErrNotFound when the trigger does not resolve.
func (s *Store) Get(trigger string) (cache.Entry, error) {
	entry, ok, err := s.cache.Get(trigger)
	if err != nil {
		return cache.Entry{}, err
	}

	if !ok {
		return cache.Entry{}, fmt.Errorf("%w: %q", ErrNotFound, trigger)
	}

	return entry, nil
}

// Search filters the flattened view.
func (s *Store) Search(q cache.Query) ([]cache.Entry, error) { return s.cache.Search(q) }

// DuplicateTriggers surfaces triggers defined in more than one place.
func (s *Store) DuplicateTriggers() (map[string][]cache.Entry, error) {
	return s.cache.DuplicateTriggers()
}

// Warnings returns the per-file read/parse warnings of the current view.
func (s *Store) Warnings() ([]ledger.Warning, error) { return s.cache.Warnings() }

// Create appends the snippet to fileName (the default file when empty).
// Fails with ErrValidation on malformed input, on a file name outside the
// configured extension set (such a file would never be read back), and
// with ErrDuplicateTrigger when the trigger already resolves.
func (s *Store) Create(ctx context.Context, snip snippet.Snippet, fileName string) error {
	if err := validate(&snip); err != nil {
		return err
	}

	if fileName == "" {
		fileName = s.defaultFile
	}

	if err := s.validFileName(fileName); err != nil {
		return err
	}

	path := filepath.Join(s.dir, fileName)

	err := s.withRetry(func(_ bool) error {
		return withDirLock(s.dir, func() error {
			snap, err := s.cache.Snapshot()
			if err != nil {
				return err
			}

			if _, exists := snap.Get(snip.Trigger); exists {
				return fmt.Errorf("%w: %q", ErrDuplicateTrigger, snip.Trigger)
			}

			file, fp, err := s.loadForWrite(snap, path)
			if err != nil {
				return err
			}

			file.Snippets = append(file.Snippets, snip)

			return s.writeFile(file, fp)
		})
	})
	if err != nil {
		return err
	}

	s.log.Info("snippet created", "trigger", snip.Trigger, "file", fileName)
	s.afterMutation(ctx, "create", snip.Trigger, path, "")

	return nil
}

// Update replaces the snippet resolved by oldTrigger in place, preserving
// its file and position. When the new trigger differs it must not collide
// with any other record; colliding with itself is fine. Fails with
// ErrNotFound when oldTrigger does not resolve.
func (s *Store) Update(ctx context.Context, oldTrigger string, snip snippet.Snippet) error {
	if err := validate(&snip); err != nil {
		return err
	}

	var path string

	err := s.withRetry(func(retry bool) error {
		return withDirLock(s.dir, func() error {
			snap, err := s.cache.Snapshot()
			if err != nil {
				return err
			}

			entry, ok := snap.Get(oldTrigger)
			if !ok {
				if retry {
					return fmt.Errorf("%w: %q no longer resolves", ErrConflict, oldTrigger)
				}

				return fmt.Errorf("%w: %q", ErrNotFound, oldTrigger)
			}

			if snip.Trigger != oldTrigger {
				if other, exists := snap.Get(snip.Trigger); exists {
					if other.File != entry.File || other.Position != entry.Position {
						return fmt.Errorf("%w: %q", ErrDuplicateTrigger, snip.Trigger)
					}
				}
			}

			file, fp, err := s.loadForWrite(snap, entry.File)
			if err != nil {
				return err
			}

			if entry.Position >= len(file.Snippets) || file.Snippets[entry.Position].Trigger != oldTrigger {
				return fmt.Errorf("%w: %s moved on disk", errStale, entry.File)
			}

			// Callers that do not know about preserved unknown keys keep
			// them; passing an explicit empty slice drops them.
			if snip.Extra == nil {
				snip.Extra = file.Snippets[entry.Position].Extra
			}

			file.Snippets[entry.Position] = snip
			path = entry.File

			return s.writeFile(file, fp)
		})
	})
	if err != nil {
		return err
	}

	s.log.Info("snippet updated", "trigger", oldTrigger, "new_trigger", snip.Trigger)
	s.afterMutation(ctx, "update", oldTrigger, path, "new trigger "+snip.Trigger)

	return nil
}

// Delete removes the snippet resolved by trigger from its owning file.
// Deleting the last snippet leaves an empty but valid match file; the file
// itself is never deleted. Fails with ErrNotFound when the trigger does
// not resolve.
func (s *Store) Delete(ctx context.Context, trigger string) error {
	var path string

	err := s.withRetry(func(retry bool) error {
		return withDirLock(s.dir, func() error {
			snap, err := s.cache.Snapshot()
			if err != nil {
				return err
			}

			entry, ok := snap.Get(trigger)
			if !ok {
				if retry {
					return fmt.Errorf("%w: %q no longer resolves", ErrConflict, trigger)
				}

				return fmt.Errorf("%w: %q", ErrNotFound, trigger)
			}

			file, fp, err := s.loadForWrite(snap, entry.File)
			if err != nil {
				return err
			}

			if entry.Position >= len(file.Snippets) || file.Snippets[entry.Position].Trigger != trigger {
				return fmt.Errorf("%w: %s moved on disk", errStale, entry.File)
			}

			file.Snippets = slices.Delete(file.Snippets, entry.Position, entry.Position+1)
			path = entry.File

			return s.writeFile(file, fp)
		})
	})
	if err != nil {
		return err
	}

	s.log.Info("snippet deleted", "trigger", trigger)
	s.afterMutation(ctx, "delete", trigger, path, "")

	return nil
}

// EnsureDefaultFile seeds the default match file with a starter snippet
// when the directory holds no match files at all.
func (s *Store) EnsureDefaultFile() error {
	snap, err := s.cache.Snapshot()
	if err != nil {
		return err
	}

	if len(snap.Ledger.Files) > 0 {
		return nil
	}

	path := filepath.Join(s.dir, s.defaultFile)

	return withDirLock(s.dir, func() error {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil
		}

		file := snippet.NewFile(path)
		file.Snippets = append(file.Snippets, snippet.Snippet{
			Trigger: ":hello",
			Replace: "Hello from snipd!",
			Enabled: true,
		})

		s.log.Info("seeding default match file", "path", path)

		return s.writeFile(file, ledger.Fingerprint{})
	})
}

// withRetry runs attempt, and once more after a cache refresh when it
// failed because the planning snapshot went stale. A second stale failure
// surfaces ErrConflict.
func (s *Store) withRetry(attempt func(retry bool) error) error {
	err := attempt(false)
	if err == nil || !errors.Is(err, errStale) {
		return err
	}

	s.log.Debug("snapshot went stale mid-write, retrying once", "error", err)
	s.cache.Invalidate()

	err = attempt(true)
	if err != nil && errors.Is(err, errStale) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}

	return err
}

// loadForWrite re-reads path from disk under the directory lock and
// verifies it still matches what the planning snapshot observed. Returns
// errStale when it does not, the decoded file and its current fingerprint
// otherwise. A path unknown to both disk and snapshot yields a fresh
// empty file.
func (s *Store) loadForWrite(snap *cache.Snapshot, path string) (*snippet.File, ledger.Fingerprint, error) {
	known := snap.Ledger.File(path)

	diskFP, statErr := ledger.Stat(path)
	if statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			if known != nil {
				return nil, ledger.Fingerprint{}, fmt.Errorf("%w: %s vanished", errStale, path)
			}

			return snippet.NewFile(path), ledger.Fingerprint{}, nil
		}

		return nil, ledger.Fingerprint{}, statErr
	}

	if known != nil && known.Fingerprint != diskFP {
		return nil, ledger.Fingerprint{}, fmt.Errorf("%w: %s changed on disk", errStale, path)
	}

	if known == nil {
		// The file appeared after the snapshot was taken.
		return nil, ledger.Fingerprint{}, fmt.Errorf("%w: %s appeared on disk", errStale, path)
	}

	loaded, err := ledger.Load(path, diskFP)
	if err != nil {
		return nil, ledger.Fingerprint{}, err
	}

	return cloneFile(loaded.File), diskFP, nil
}

// writeFile encodes and atomically replaces file on disk, re-checking the
// fingerprint immediately before the write-and-rename, then invalidates
// the cache. A zero expect means the file must still be absent; a write
// planned against a fresh file is stale the moment someone else creates it.
func (s *Store) writeFile(file *snippet.File, expect ledger.Fingerprint) error {
	data, err := snippet.Encode(file)
	if err != nil {
		return err
	}

	current, statErr := ledger.Stat(file.Path)

	switch {
	case statErr != nil && !errors.Is(statErr, os.ErrNotExist):
		return statErr
	case statErr != nil:
		if !expect.Zero() {
			return fmt.Errorf("%w: %s vanished", errStale, file.Path)
		}
	case expect.Zero():
		return fmt.Errorf("%w: %s appeared on disk", errStale, file.Path)
	case current != expect:
		return fmt.Errorf("%w: %s changed on disk", errStale, file.Path)
	}

	if err := os.MkdirAll(filepath.Dir(file.Path), dirPerms); err != nil {
		return fmt.Errorf("creating match directory: %w", err)
	}

	if err := atomic.WriteFile(file.Path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing %s: %w", file.Path, err)
	}

	s.cache.Invalidate()

	return nil
}

// afterMutation records the audit row and signals the expansion runtime.
// Both are best effort: failures are logged, the mutation already landed.
func (s *Store) afterMutation(ctx context.Context, op, trigger, path, detail string) {
	if s.history != nil {
		if err := s.history.Record(ctx, op, trigger, filepath.Base(path), detail); err != nil {
			s.log.Warn("recording history", "op", op, "error", err)
		}
	}

	if s.reloader != nil {
		if err := s.reloader.Reload(ctx); err != nil {
			s.log.Warn("runtime reload failed", "error", err)
		}
	}
}

// cloneFile deep-copies the snippet slice so in-place edits never alias
// entries still referenced by a reused ledger file.
func cloneFile(file *snippet.File) *snippet.File {
	clone := *file
	clone.Snippets = slices.Clone(file.Snippets)

	return &clone
}

// validFileName accepts only plain, non-hidden base names carrying one of
// the configured match extensions. Anything else the ledger would never
// list, so a write there silently disappears from every read.
func (s *Store) validFileName(name string) error {
	if name != filepath.Base(name) {
		return fmt.Errorf("%w: file name %q must not contain a path", ErrValidation, name)
	}

	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: file name %q is hidden and would never be read back", ErrValidation, name)
	}

	if !slices.Contains(s.extensions, strings.ToLower(filepath.Ext(name))) {
		return fmt.Errorf("%w: file name %q must end in %s", ErrValidation, name, strings.Join(s.extensions, " or "))
	}

	return nil
}

func validate(s *snippet.Snippet) error {
	if strings.TrimSpace(s.Trigger) == "" {
		return fmt.Errorf("%w: trigger must not be empty", ErrValidation)
	}

	if s.Replace == "" {
		return fmt.Errorf("%w: replace must not be empty", ErrValidation)
	}

	if s.DelayMS < 0 {
		return fmt.Errorf("%w: delay must not be negative", ErrValidation)
	}

	switch s.Backend {
	case snippet.BackendDefault, snippet.BackendInject, snippet.BackendClipboard:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrValidation, s.Backend)
	}

	switch s.Uppercase {
	case snippet.UppercaseNone, snippet.UppercaseCapitalize, snippet.UppercaseUpper, snippet.UppercaseLower:
	default:
		return fmt.Errorf("%w: unknown uppercase style %q", ErrValidation, s.Uppercase)
	}

	return nil
}
