// Package backup snapshots a match directory into timestamped folders and
// restores them. Every backup carries a JSON sidecar with a stable ID so
// restores can address a backup by ID or by folder name.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"

	"snipd/internal/logging"
)

const (
	metaFileName = "_backup_meta.json"
	timeLayout   = "20060102T150405Z"
	metaVersion  = 1

	dirPerms  = 0o755
	filePerms = 0o644
)

var (
	// ErrNotFound reports that no backup matches the given ID or name.
	ErrNotFound = errors.New("backup not found")

	// ErrTargetNotEmpty reports a restore into a directory that already
	// holds match files without the overwrite flag.
	ErrTargetNotEmpty = errors.New("target directory not empty")
)

// Meta is the sidecar written into every backup folder.
type Meta struct {
	ID        string    `json:"id"`
	Version   int       `json:"version"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// Backup describes one snapshot on disk.
type Backup struct {
	ID        string
	Label     string
	Timestamp time.Time
	Path      string
	Files     int
	Size      int64
}

// Manager owns one backup root directory.
type Manager struct {
	dir string
	log logging.Logger
	now func() time.Time
}

// NewManager creates a Manager rooted at dir. now defaults to time.Now.
func NewManager(dir string, log logging.Logger, now func() time.Time) *Manager {
	if log == nil {
		log = logging.NewNopLogger()
	}

	if now == nil {
		now = time.Now
	}

	return &Manager{dir: dir, log: log, now: now}
}

// Dir returns the backup root.
func (m *Manager) Dir() string { return m.dir }

// Create snapshots srcDir into a new "{label}.{timestamp}" folder. Lock
// bookkeeping (the .locks folder) and hidden files are not part of a
// snapshot.
func (m *Manager) Create(srcDir, label string) (Backup, error) {
	label = sanitizeLabel(label)
	stamp := m.now().UTC()
	name := label + "." + stamp.Format(timeLayout)
	dest := filepath.Join(m.dir, name)

	if err := os.MkdirAll(m.dir, dirPerms); err != nil {
		return Backup{}, fmt.Errorf("creating backup root: %w", err)
	}

	if err := os.Mkdir(dest, dirPerms); err != nil {
		return Backup{}, fmt.Errorf("creating backup folder: %w", err)
	}

	b := Backup{
		ID:        uuid.NewString(),
		Label:     label,
		Timestamp: stamp,
		Path:      dest,
	}

	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path == srcDir {
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}

			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, dirPerms)
		}

		size, err := copyFile(path, target)
		if err != nil {
			return err
		}

		b.Files++
		b.Size += size

		return nil
	})
	if err != nil {
		_ = os.RemoveAll(dest)

		return Backup{}, fmt.Errorf("copying %s: %w", srcDir, err)
	}

	meta := Meta{
		ID:        b.ID,
		Version:   metaVersion,
		Label:     label,
		Timestamp: stamp,
		Source:    srcDir,
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return Backup{}, err
	}

	if err := os.WriteFile(filepath.Join(dest, metaFileName), append(data, '\n'), filePerms); err != nil {
		_ = os.RemoveAll(dest)

		return Backup{}, fmt.Errorf("writing backup metadata: %w", err)
	}

	m.log.Info("backup created", "name", name, "files", b.Files, "bytes", b.Size)

	return b, nil
}

// List returns all backups, newest first. Folders with a corrupt or
// missing sidecar still list, identified by folder name alone.
func (m *Manager) List() ([]Backup, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading backup root: %w", err)
	}

	var backups []Backup

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		backups = append(backups, m.describe(entry.Name()))
	}

	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].Timestamp.Equal(backups[j].Timestamp) {
			return backups[i].Timestamp.After(backups[j].Timestamp)
		}

		return backups[i].Path > backups[j].Path
	})

	return backups, nil
}

// Find resolves a backup by sidecar ID or folder name.
func (m *Manager) Find(ref string) (Backup, error) {
	backups, err := m.List()
	if err != nil {
		return Backup{}, err
	}

	for _, b := range backups {
		if b.ID == ref || filepath.Base(b.Path) == ref {
			return b, nil
		}
	}

	return Backup{}, fmt.Errorf("%w: %q", ErrNotFound, ref)
}

// Restore copies the referenced backup's files into destDir. When destDir
// already holds match files the restore refuses unless overwrite is set;
// overwriting replaces files atomically but never deletes files that only
// exist in the destination.
func (m *Manager) Restore(ref, destDir string, overwrite bool) error {
	b, err := m.Find(ref)
	if err != nil {
		return err
	}

	if !overwrite {
		occupied, err := hasVisibleFiles(destDir)
		if err != nil {
			return err
		}

		if occupied {
			return fmt.Errorf("%w: %s", ErrTargetNotEmpty, destDir)
		}
	}

	err = filepath.WalkDir(b.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path == b.Path || d.Name() == metaFileName {
			return nil
		}

		rel, err := filepath.Rel(b.Path, path)
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, rel)
		if d.IsDir() {
			return os.MkdirAll(target, dirPerms)
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()

		if err := os.MkdirAll(filepath.Dir(target), dirPerms); err != nil {
			return err
		}

		return atomic.WriteFile(target, src)
	})
	if err != nil {
		return fmt.Errorf("restoring %s: %w", ref, err)
	}

	m.log.Info("backup restored", "name", filepath.Base(b.Path), "dest", destDir)

	return nil
}

// describe builds a Backup from a folder, merging the sidecar when it
// parses and degrading to name-derived fields when it does not.
func (m *Manager) describe(name string) Backup {
	path := filepath.Join(m.dir, name)
	b := Backup{Path: path}

	if label, ts, ok := parseFolderName(name); ok {
		b.Label = label
		b.Timestamp = ts
	} else {
		b.Label = name
	}

	if data, err := os.ReadFile(filepath.Join(path, metaFileName)); err == nil {
		var meta Meta
		if err := json.Unmarshal(data, &meta); err == nil {
			b.ID = meta.ID
			b.Label = meta.Label
			b.Timestamp = meta.Timestamp
		} else {
			m.log.Warn("unreadable backup metadata", "name", name, "error", err)
		}
	}

	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || d.Name() == metaFileName {
			return nil
		}

		if info, infoErr := d.Info(); infoErr == nil {
			b.Files++
			b.Size += info.Size()
		}

		return nil
	})

	return b
}

func parseFolderName(name string) (label string, ts time.Time, ok bool) {
	dot := strings.LastIndex(name, ".")
	if dot <= 0 {
		return "", time.Time{}, false
	}

	ts, err := time.Parse(timeLayout, name[dot+1:])
	if err != nil {
		return "", time.Time{}, false
	}

	return name[:dot], ts, true
}

func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "backup"
	}

	mapped := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '-'
		}

		return r
	}, label)

	return mapped
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), dirPerms); err != nil {
		return 0, err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerms)
	if err != nil {
		return 0, err
	}

	size, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()

		return 0, err
	}

	if err := out.Sync(); err != nil {
		_ = out.Close()

		return 0, err
	}

	return size, out.Close()
}

func hasVisibleFiles(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, err
	}

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), ".") {
			return true, nil
		}
	}

	return false, nil
}
