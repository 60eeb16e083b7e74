// Package ledger materializes the on-disk truth of a match directory:
// which files exist, their fingerprints, and their decoded snippets.
package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"snipd/internal/snippet"
)

// DefaultExtensions are the match-file extensions considered when none are
// configured.
var DefaultExtensions = []string{".yml", ".yaml"}

// Fingerprint is a cheap comparable token for change detection. Two stats
// of an unchanged file compare equal; any rename-based rewrite changes the
// mtime (and usually the size), so re-decoding is skipped only for files
// whose token is unchanged since the previous generation.
type Fingerprint struct {
	Size    int64
	ModTime int64 // unix nanoseconds
}

// Zero reports whether the fingerprint is the zero token (no observation).
func (fp Fingerprint) Zero() bool { return fp == Fingerprint{} }

// Stat fingerprints the file at path.
func Stat(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("stat %s: %w", path, err)
	}

	return Fingerprint{Size: info.Size(), ModTime: info.ModTime().UnixNano()}, nil
}

// MatchFile is one physical match file with its last-observed fingerprint.
type MatchFile struct {
	*snippet.File

	Fingerprint Fingerprint
}

// Warning records a file that could not be read or decoded. The file is
// skipped so one corrupt file never blocks the whole directory.
type Warning struct {
	Path string
	Err  error
}

// Ledger is the in-memory mirror of a match directory at one generation.
// It is immutable once built; Rebuild produces a fresh value.
type Ledger struct {
	Dir        string
	Files      []*MatchFile
	Warnings   []Warning
	Generation uint64
}

// File returns the ledger entry for path, or nil when the ledger does not
// track it.
func (l *Ledger) File(path string) *MatchFile {
	for _, f := range l.Files {
		if f.Path == path {
			return f
		}
	}

	return nil
}

// Rebuild lists the match files in dir (sorted by path), decodes the ones
// whose fingerprint changed since prev, and reuses prev's decode for the
// rest. A missing directory yields an empty ledger; files that fail to
// read or parse are skipped with a recorded warning.
func Rebuild(dir string, extensions []string, prev *Ledger) (*Ledger, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}

	next := &Ledger{Dir: dir, Generation: 1}
	if prev != nil {
		next.Generation = prev.Generation + 1
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return next, nil
		}

		return nil, fmt.Errorf("reading match directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if strings.HasPrefix(name, ".") || !hasExtension(name, extensions) {
			continue
		}

		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)

		fp, fpErr := Stat(path)
		if fpErr != nil {
			next.Warnings = append(next.Warnings, Warning{Path: path, Err: fpErr})

			continue
		}

		if prev != nil {
			if known := prev.File(path); known != nil && known.Fingerprint == fp {
				next.Files = append(next.Files, known)

				continue
			}
		}

		file, loadErr := Load(path, fp)
		if loadErr != nil {
			next.Warnings = append(next.Warnings, Warning{Path: path, Err: loadErr})

			continue
		}

		next.Files = append(next.Files, file)
	}

	return next, nil
}

// Load reads and decodes a single match file. The fingerprint fp must have
// been taken before the read; pass the zero Fingerprint to stat here.
func Load(path string, fp Fingerprint) (*MatchFile, error) {
	if fp.Zero() {
		var err error

		fp, err = Stat(path)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	file, err := snippet.Decode(path, data)
	if err != nil {
		return nil, err
	}

	return &MatchFile{File: file, Fingerprint: fp}, nil
}

func hasExtension(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))

	for _, want := range extensions {
		if ext == want {
			return true
		}
	}

	return false
}
