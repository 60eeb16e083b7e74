// Package config loads layered snipd configuration from JSONC files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"

	"snipd/internal/ledger"
)

// Config holds all configuration options.
type Config struct {
	MatchDir    string   `json:"match_dir"`
	BackupDir   string   `json:"backup_dir,omitempty"`
	DefaultFile string   `json:"default_file,omitempty"`
	Extensions  []string `json:"extensions,omitempty"`
	DebounceMS  int      `json:"debounce_ms,omitempty"`
	RuntimeBin  string   `json:"runtime_bin,omitempty"`
	HistoryDB   string   `json:"history_db,omitempty"`
	LogDir      string   `json:"log_dir,omitempty"`
	Editor      string   `json:"editor,omitempty"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // path to global config if loaded, empty otherwise
	Project string // path to project config if loaded, empty otherwise
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MatchDir:    ".snippets",
		BackupDir:   ".snippets-backups",
		DefaultFile: "base.yml",
		Extensions:  ledger.DefaultExtensions,
		DebounceMS:  500,
		RuntimeBin:  "espanso",
		HistoryDB:   filepath.Join(".snipd", "history.db"),
	}
}

// FileName is the default project config file name.
const FileName = ".snipd.json"

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("cannot read config file")
	errConfigInvalid      = errors.New("invalid config file")
	errMatchDirEmpty      = errors.New("match_dir must not be empty")
	errDebounceNegative   = errors.New("debounce_ms must not be negative")
)

// globalPath returns the global config path, preferring XDG_CONFIG_HOME
// from env over the process environment. Empty when no home directory can
// be determined.
func globalPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "snipd", "config.json")
		}
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "snipd", "config.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "snipd", "config.json")
	}

	return ""
}

// Load resolves configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/snipd/config.json)
// 3. Project config file at default location (.snipd.json, if exists)
// 4. Explicit config file via configPath (if non-empty)
// 5. Flag overrides applied by the caller via override.
func Load(workDir, configPath string, override func(*Config), env []string) (Config, Sources, error) {
	cfg := DefaultConfig()

	var sources Sources

	globalCfg, globalFile, err := loadGlobal(env)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Global = globalFile
	cfg = merge(cfg, globalCfg)

	projectCfg, projectFile, err := loadProject(workDir, configPath)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Project = projectFile
	cfg = merge(cfg, projectCfg)

	if override != nil {
		override(&cfg)
	}

	if err := validate(cfg); err != nil {
		return Config{}, Sources{}, err
	}

	// Relative paths resolve against the working directory so the same
	// project config works from any shell location.
	cfg.MatchDir = resolve(workDir, cfg.MatchDir)
	cfg.BackupDir = resolve(workDir, cfg.BackupDir)
	cfg.HistoryDB = resolve(workDir, cfg.HistoryDB)

	if cfg.LogDir != "" {
		cfg.LogDir = resolve(workDir, cfg.LogDir)
	}

	return cfg, sources, nil
}

func loadGlobal(env []string) (Config, string, error) {
	path := globalPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, explicitEmpty, loaded, err := loadFile(path, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["match_dir"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", errConfigInvalid, path, errMatchDirEmpty)
	}

	return cfg, path, nil
}

func loadProject(workDir, configPath string) (Config, string, error) {
	var (
		cfgFile   string
		mustExist bool
	)

	if configPath != "" {
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		mustExist = true

		if _, statErr := os.Stat(cfgFile); statErr != nil {
			return Config{}, "", fmt.Errorf("%w: %s", errConfigFileNotFound, configPath)
		}
	} else {
		cfgFile = filepath.Join(workDir, FileName)
	}

	cfg, explicitEmpty, loaded, err := loadFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["match_dir"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", errConfigInvalid, cfgFile, errMatchDirEmpty)
	}

	return cfg, cfgFile, nil
}

// loadFile loads one config file. Missing optional files return zero
// config without error.
func loadFile(path string, mustExist bool) (Config, map[string]bool, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if mustExist {
			return Config{}, nil, false, fmt.Errorf("%w: %s", errConfigFileRead, path)
		}

		return Config{}, nil, false, nil
	}

	cfg, explicitEmpty, parseErr := parse(data)
	if parseErr != nil {
		return Config{}, nil, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, parseErr)
	}

	return cfg, explicitEmpty, true, nil
}

func parse(data []byte) (Config, map[string]bool, error) {
	// Standardize JSONC to JSON.
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSON: %w", err)
	}

	// Track fields explicitly set to empty so they can be rejected
	// instead of silently falling back to the default.
	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	explicitEmpty := make(map[string]bool)

	if val, exists := raw["match_dir"]; exists {
		if str, ok := val.(string); ok && str == "" {
			explicitEmpty["match_dir"] = true
		}
	}

	return cfg, explicitEmpty, nil
}

func merge(base, overlay Config) Config {
	if overlay.MatchDir != "" {
		base.MatchDir = overlay.MatchDir
	}

	if overlay.BackupDir != "" {
		base.BackupDir = overlay.BackupDir
	}

	if overlay.DefaultFile != "" {
		base.DefaultFile = overlay.DefaultFile
	}

	if len(overlay.Extensions) > 0 {
		base.Extensions = overlay.Extensions
	}

	if overlay.DebounceMS != 0 {
		base.DebounceMS = overlay.DebounceMS
	}

	if overlay.RuntimeBin != "" {
		base.RuntimeBin = overlay.RuntimeBin
	}

	if overlay.HistoryDB != "" {
		base.HistoryDB = overlay.HistoryDB
	}

	if overlay.LogDir != "" {
		base.LogDir = overlay.LogDir
	}

	if overlay.Editor != "" {
		base.Editor = overlay.Editor
	}

	return base
}

func validate(cfg Config) error {
	if cfg.MatchDir == "" {
		return errMatchDirEmpty
	}

	if cfg.DebounceMS < 0 {
		return errDebounceNegative
	}

	return nil
}

func resolve(workDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(workDir, path)
}

// Format returns the config as formatted JSON.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(data), nil
}
