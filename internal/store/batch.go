package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"snipd/internal/ledger"
	"snipd/internal/snippet"
)

// ImportMode decides what happens when an imported trigger already exists.
type ImportMode int

const (
	// ImportSkip leaves the existing snippet untouched.
	ImportSkip ImportMode = iota

	// ImportOverwrite replaces the existing snippet in place.
	ImportOverwrite
)

// PackRecord is one snippet of an import batch, with an optional target
// file base name. Empty means the store's default file for new snippets;
// overwrites always land in the file that already owns the trigger.
type PackRecord struct {
	Snippet snippet.Snippet
	File    string
}

// ImportError ties a per-record failure to its trigger.
type ImportError struct {
	Trigger string
	Err     error
}

// ImportResult summarizes a batch import.
type ImportResult struct {
	Created  int
	Replaced int
	Skipped  int
	Errors   []ImportError
}

// ImportPack applies a batch of records with one write per touched file,
// not one write per record. The whole batch runs under a single directory
// lock; cancellation is honored between files, so the file being written
// when ctx fires completes and the rest of the batch is abandoned.
func (s *Store) ImportPack(ctx context.Context, records []PackRecord, mode ImportMode) (ImportResult, error) {
	var result ImportResult

	err := withDirLock(s.dir, func() error {
		return s.importLocked(ctx, records, mode, &result)
	})
	if err != nil {
		if errors.Is(err, errStale) {
			err = fmt.Errorf("%w: %v", ErrConflict, err)
		}

		return result, err
	}

	if result.Created > 0 || result.Replaced > 0 {
		detail := fmt.Sprintf("created=%d replaced=%d skipped=%d", result.Created, result.Replaced, result.Skipped)
		s.log.Info("import finished", "created", result.Created, "replaced", result.Replaced, "skipped", result.Skipped)
		s.afterMutation(ctx, "import", "", s.dir, detail)
	}

	return result, nil
}

func (s *Store) importLocked(ctx context.Context, records []PackRecord, mode ImportMode, result *ImportResult) error {
	snap, err := s.cache.Snapshot()
	if err != nil {
		return err
	}

	// Group records by target file. Creates go to the record's file (or
	// the default); overwrites go to the file already owning the trigger.
	groups := make(map[string][]snippet.Snippet)
	planned := make(map[string]string) // trigger -> target path for in-batch duplicates

	for _, rec := range records {
		snip := rec.Snippet

		if err := validate(&snip); err != nil {
			result.Errors = append(result.Errors, ImportError{Trigger: snip.Trigger, Err: err})
			continue
		}

		target, alreadyPlanned := planned[snip.Trigger]
		if !alreadyPlanned {
			if entry, exists := snap.Get(snip.Trigger); exists {
				target = entry.File
			}
		}

		if target != "" && mode == ImportSkip {
			result.Skipped++
			continue
		}

		if target == "" {
			name := rec.File
			if name == "" {
				name = s.defaultFile
			}

			if err := s.validFileName(name); err != nil {
				result.Errors = append(result.Errors, ImportError{Trigger: snip.Trigger, Err: err})
				continue
			}

			target = filepath.Join(s.dir, name)
		}

		planned[snip.Trigger] = target
		groups[target] = append(groups[target], snip)
	}

	paths := make([]string, 0, len(groups))
	for path := range groups {
		paths = append(paths, path)
	}

	sort.Strings(paths)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("import aborted: %w", err)
		}

		if err := s.importFile(path, groups[path], result); err != nil {
			return err
		}
	}

	return nil
}

// importFile applies a file's worth of records against the fresh on-disk
// state and writes once. The directory lock is already held, so disk is
// authoritative here and per-record conflicts resolve by trigger.
func (s *Store) importFile(path string, incoming []snippet.Snippet, result *ImportResult) error {
	file, fp, err := loadFresh(path)
	if err != nil {
		for _, snip := range incoming {
			result.Errors = append(result.Errors, ImportError{Trigger: snip.Trigger, Err: err})
		}

		// A corrupt or unreadable target fails its records, not the batch.
		return nil
	}

	byTrigger := make(map[string]int, len(file.Snippets))
	for i := range file.Snippets {
		byTrigger[file.Snippets[i].Trigger] = i
	}

	for _, snip := range incoming {
		if pos, exists := byTrigger[snip.Trigger]; exists {
			if snip.Extra == nil {
				snip.Extra = file.Snippets[pos].Extra
			}

			file.Snippets[pos] = snip
			result.Replaced++

			continue
		}

		byTrigger[snip.Trigger] = len(file.Snippets)
		file.Snippets = append(file.Snippets, snip)
		result.Created++
	}

	return s.writeFile(file, fp)
}

// loadFresh reads path directly from disk, yielding an empty file with a
// zero fingerprint when it does not exist yet.
func loadFresh(path string) (*snippet.File, ledger.Fingerprint, error) {
	fp, err := ledger.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return snippet.NewFile(path), ledger.Fingerprint{}, nil
		}

		return nil, ledger.Fingerprint{}, err
	}

	loaded, err := ledger.Load(path, fp)
	if err != nil {
		return nil, ledger.Fingerprint{}, err
	}

	return cloneFile(loaded.File), fp, nil
}
