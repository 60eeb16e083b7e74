package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"snipd/internal/config"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	return path
}

// noGlobal points the XDG lookup at an empty directory so developer
// machines do not leak their real global config into tests.
func noGlobal(t *testing.T) []string {
	t.Helper()

	return []string{"XDG_CONFIG_HOME=" + t.TempDir()}
}

func Test_Load_Uses_Defaults_When_No_File_Exists(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	cfg, sources, err := config.Load(workDir, "", nil, noGlobal(t))
	if err != nil {
		t.Fatal(err)
	}

	if sources.Global != "" || sources.Project != "" {
		t.Fatalf("sources = %+v, want none", sources)
	}

	if cfg.MatchDir != filepath.Join(workDir, ".snippets") {
		t.Fatalf("match_dir = %s", cfg.MatchDir)
	}

	if cfg.DefaultFile != "base.yml" || cfg.DebounceMS != 500 || cfg.RuntimeBin != "espanso" {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func Test_Load_Project_Config_Overrides_Global(t *testing.T) {
	t.Parallel()

	xdg := t.TempDir()
	writeConfig(t, xdg, filepath.Join("snipd", "config.json"), `{
		// comments are fine, this is JSONC
		"match_dir": "/global/matches",
		"runtime_bin": "espanso-beta",
	}`)

	workDir := t.TempDir()
	writeConfig(t, workDir, config.FileName, `{"match_dir": "project-matches"}`)

	cfg, sources, err := config.Load(workDir, "", nil, []string{"XDG_CONFIG_HOME=" + xdg})
	if err != nil {
		t.Fatal(err)
	}

	if sources.Global == "" || sources.Project == "" {
		t.Fatalf("sources = %+v, want both layers", sources)
	}

	if cfg.MatchDir != filepath.Join(workDir, "project-matches") {
		t.Fatalf("match_dir = %s, want the project layer to win", cfg.MatchDir)
	}

	// Keys the project file does not set fall through to the global layer.
	if cfg.RuntimeBin != "espanso-beta" {
		t.Fatalf("runtime_bin = %s", cfg.RuntimeBin)
	}
}

func Test_Load_Flag_Override_Wins_Over_Files(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	writeConfig(t, workDir, config.FileName, `{"match_dir": "from-file", "debounce_ms": 100}`)

	cfg, _, err := config.Load(workDir, "", func(c *config.Config) {
		c.MatchDir = "/from/flag"
	}, noGlobal(t))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.MatchDir != "/from/flag" {
		t.Fatalf("match_dir = %s", cfg.MatchDir)
	}

	if cfg.DebounceMS != 100 {
		t.Fatalf("debounce_ms = %d", cfg.DebounceMS)
	}
}

func Test_Load_Fails_When_Explicit_Config_Is_Missing(t *testing.T) {
	t.Parallel()

	_, _, err := config.Load(t.TempDir(), "nope.json", nil, noGlobal(t))
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("err = %v", err)
	}
}

func Test_Load_Rejects_Explicitly_Empty_Match_Dir(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	writeConfig(t, workDir, config.FileName, `{"match_dir": ""}`)

	_, _, err := config.Load(workDir, "", nil, noGlobal(t))
	if err == nil || !strings.Contains(err.Error(), "match_dir must not be empty") {
		t.Fatalf("err = %v", err)
	}
}

func Test_Load_Rejects_Invalid_JSONC(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	writeConfig(t, workDir, config.FileName, `{"match_dir": `)

	_, _, err := config.Load(workDir, "", nil, noGlobal(t))
	if err == nil || !strings.Contains(err.Error(), "invalid config file") {
		t.Fatalf("err = %v", err)
	}
}

func Test_Load_Rejects_Negative_Debounce(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	writeConfig(t, workDir, config.FileName, `{"match_dir": "m", "debounce_ms": -1}`)

	_, _, err := config.Load(workDir, "", nil, noGlobal(t))
	if err == nil || !strings.Contains(err.Error(), "debounce_ms") {
		t.Fatalf("err = %v", err)
	}
}
