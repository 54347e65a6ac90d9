package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"quol-input/internal/testutil"
)

func newConfigPathForSaveTest(t *testing.T, elems ...string) string {
	t.Helper()
	localAppData := t.TempDir()
	t.Setenv("LOCALAPPDATA", localAppData)
	t.Setenv("APPDATA", "")

	defaultPath := DefaultPath()

	return filepath.Join(filepath.Dir(defaultPath), filepath.Join(elems...))
}

func writeConfig(t *testing.T, raw string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestIsZeroConfig(t *testing.T) {
	if !isZeroConfig(Config{}) {
		t.Fatal("isZeroConfig(Config{}) = false, want true")
	}
	if isZeroConfig(DefaultConfig()) {
		t.Fatal("isZeroConfig(DefaultConfig()) = true, want false")
	}
	if isZeroConfig(Config{Keymaps: []KeymapGroup{}}) {
		t.Fatal("isZeroConfig() = true for non-nil empty keymaps")
	}
}

func TestDefaultPath(t *testing.T) {
	t.Run("local app data", func(t *testing.T) {
		t.Setenv("LOCALAPPDATA", `C:\Users\tester\AppData\Local`)
		t.Setenv("APPDATA", "")
		want := filepath.Join(`C:\Users\tester\AppData\Local`, "quol-input", "config.yaml")
		if got := DefaultPath(); got != want {
			t.Fatalf("DefaultPath() = %q, want %q", got, want)
		}
	})

	t.Run("app data", func(t *testing.T) {
		t.Setenv("LOCALAPPDATA", "")
		t.Setenv("APPDATA", `C:\Users\tester\AppData\Roaming`)
		want := filepath.Join(`C:\Users\tester\AppData\Roaming`, "quol-input", "config.yaml")
		if got := DefaultPath(); got != want {
			t.Fatalf("DefaultPath() = %q, want %q", got, want)
		}
	})

	t.Run("home config dir", func(t *testing.T) {
		original := userHomeDirFn
		t.Cleanup(func() { userHomeDirFn = original })
		userHomeDirFn = func() (string, error) { return "/home/tester", nil }
		t.Setenv("LOCALAPPDATA", "")
		t.Setenv("APPDATA", "")
		want := filepath.Join("/home/tester", ".config", "quol-input", "config.yaml")
		if got := DefaultPath(); got != want {
			t.Fatalf("DefaultPath() = %q, want %q", got, want)
		}
	})
}

func TestDefaultPathFallsBackToTempDir(t *testing.T) {
	original := userHomeDirFn
	t.Cleanup(func() { userHomeDirFn = original })
	ConsumeDefaultPathWarnings()
	t.Cleanup(func() { ConsumeDefaultPathWarnings() })

	logBuf := testutil.CaptureLogBuffer(t, slog.LevelWarn)
	userHomeDirFn = func() (string, error) {
		return "", errors.New("simulated home dir resolution failure")
	}
	t.Setenv("LOCALAPPDATA", "")
	t.Setenv("APPDATA", "")

	want := filepath.Join(os.TempDir(), "quol-input", "config.yaml")
	if got := DefaultPath(); got != want {
		t.Fatalf("DefaultPath() = %q, want %q", got, want)
	}
	if !strings.Contains(logBuf.String(), "using temp dir as config path fallback") {
		t.Fatalf("log output = %q, want temp-dir fallback warning", logBuf.String())
	}
	warnings := ConsumeDefaultPathWarnings()
	if len(warnings) != 1 || !strings.Contains(warnings[0], "Config path fallback") {
		t.Fatalf("ConsumeDefaultPathWarnings() = %q, want one fallback message", warnings)
	}
	if again := ConsumeDefaultPathWarnings(); again != nil {
		t.Fatalf("second ConsumeDefaultPathWarnings() = %q, want nil", again)
	}
}

func TestLoadMissingOrEmptyFileReturnsDefaults(t *testing.T) {
	for name, path := range map[string]string{
		"missing": filepath.Join(t.TempDir(), "missing.yaml"),
		"empty":   writeConfig(t, ""),
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if !reflect.DeepEqual(cfg, DefaultConfig()) {
				t.Fatalf("Load() = %+v, want defaults", cfg)
			}
		})
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("Load(\"\") expected error")
	}
}

func TestLoadReturnsDefaultsOnParseError(t *testing.T) {
	path := writeConfig(t, "keymaps: [")

	cfg, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected parse error")
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Fatalf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoadNormalizesValues(t *testing.T) {
	path := writeConfig(t, `
toggle_key: " Ctrl + F12 "
log_level: DEBUG
stop_timeout: 500ms
keymaps:
  - name: "  editing "
    enabled: true
    mappings:
      "Ctrl+J": "Down"
      "alt+h": "left"
      "+": "x"
  - enabled: false
event_feed:
  addr: "localhost:9000"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ToggleKey != "ctrl+f12" {
		t.Errorf("ToggleKey = %q, want ctrl+f12", cfg.ToggleKey)
	}
	if cfg.LogLevel != "debug" || cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("LogLevel = %q (%v), want debug", cfg.LogLevel, cfg.SlogLevel())
	}
	if cfg.StopTimeout != 500*time.Millisecond {
		t.Errorf("StopTimeout = %v, want 500ms", cfg.StopTimeout)
	}
	if len(cfg.Keymaps) != 2 {
		t.Fatalf("len(Keymaps) = %d, want 2", len(cfg.Keymaps))
	}
	first := cfg.Keymaps[0]
	if first.Name != "editing" || !first.Enabled {
		t.Errorf("Keymaps[0] = %+v", first)
	}
	wantMappings := map[string]string{"ctrl+j": "down", "alt+h": "left"}
	if !reflect.DeepEqual(first.Mappings, wantMappings) {
		t.Errorf("Keymaps[0].Mappings = %v, want %v", first.Mappings, wantMappings)
	}
	if cfg.Keymaps[1].Name != "group-2" {
		t.Errorf("Keymaps[1].Name = %q, want group-2", cfg.Keymaps[1].Name)
	}
	if cfg.EventFeed.Addr != "localhost:9000" {
		t.Errorf("EventFeed.Addr = %q", cfg.EventFeed.Addr)
	}
	if !cfg.EventFeed.Enabled || !cfg.Usage.Enabled || !cfg.Control.Enabled {
		t.Errorf("enabled switches = %+v %+v %+v, want defaults kept", cfg.EventFeed, cfg.Usage, cfg.Control)
	}
}

func TestLoadFallsBackOnInvalidValues(t *testing.T) {
	logBuf := testutil.CaptureLogBuffer(t, slog.LevelWarn)
	path := writeConfig(t, `
toggle_key: "+"
log_level: chatty
stop_timeout: -1s
event_feed:
  enabled: false
  addr: "0.0.0.0:80"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ToggleKey != DefaultToggleKey {
		t.Errorf("ToggleKey = %q, want default", cfg.ToggleKey)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %q, want default", cfg.LogLevel)
	}
	if cfg.StopTimeout != DefaultStopTimeout {
		t.Errorf("StopTimeout = %v, want default", cfg.StopTimeout)
	}
	if cfg.EventFeed.Enabled {
		t.Error("EventFeed.Enabled = true, want explicit false preserved")
	}
	if cfg.EventFeed.Addr != DefaultFeedAddr {
		t.Errorf("EventFeed.Addr = %q, want loopback default", cfg.EventFeed.Addr)
	}
	for _, want := range []string{"invalid toggle_key", "unknown log_level", "stop_timeout is negative", "loopback"} {
		if !strings.Contains(logBuf.String(), want) {
			t.Errorf("log output missing %q: %s", want, logBuf.String())
		}
	}
}

func TestSanitizeKeymapsDuplicateSource(t *testing.T) {
	logBuf := testutil.CaptureLogBuffer(t, slog.LevelWarn)
	cfg := Config{Keymaps: []KeymapGroup{{
		Name:     "dups",
		Mappings: map[string]string{"Ctrl+J": "down", "ctrl+j": "up"},
	}}}

	sanitizeKeymaps(&cfg)

	// "Ctrl+J" sorts before "ctrl+j" and wins.
	if got := cfg.Keymaps[0].Mappings; !reflect.DeepEqual(got, map[string]string{"ctrl+j": "down"}) {
		t.Fatalf("Mappings = %v", got)
	}
	if !strings.Contains(logBuf.String(), "duplicate keymap source") {
		t.Fatalf("log output = %q, want duplicate warning", logBuf.String())
	}
}

func TestSanitizeKeymapsAllDroppedNormalizesToNil(t *testing.T) {
	cfg := Config{Keymaps: []KeymapGroup{{Name: "empty", Mappings: map[string]string{"": "a", "b": "+"}}}}
	sanitizeKeymaps(&cfg)
	if cfg.Keymaps[0].Mappings != nil {
		t.Fatalf("Mappings = %v, want nil", cfg.Keymaps[0].Mappings)
	}
}

func TestUsagePath(t *testing.T) {
	cfg := DefaultConfig()
	configPath := filepath.Join("base", "quol-input", "config.yaml")
	if got, want := cfg.UsagePath(configPath), filepath.Join("base", "quol-input", "usage.db"); got != want {
		t.Fatalf("UsagePath() = %q, want %q", got, want)
	}
	cfg.Usage.Path = " /var/lib/usage.db "
	if got := cfg.UsagePath(configPath); got != "/var/lib/usage.db" {
		t.Fatalf("UsagePath() = %q, want explicit path", got)
	}
}

func TestSave(t *testing.T) {
	t.Run("writes normalized config that loads back", func(t *testing.T) {
		path := newConfigPathForSaveTest(t, "config.yaml")
		cfg := DefaultConfig()
		cfg.ToggleKey = "Ctrl+Alt+Q"
		cfg.Keymaps = []KeymapGroup{{Name: "g", Enabled: true, Mappings: map[string]string{"Alt+J": "Down"}}}

		saved, err := Save(path, cfg)
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if saved.ToggleKey != "ctrl+alt+q" {
			t.Fatalf("saved.ToggleKey = %q", saved.ToggleKey)
		}

		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if !reflect.DeepEqual(loaded, saved) {
			t.Fatalf("Load() = %+v, want %+v", loaded, saved)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read config: %v", err)
		}
		if !strings.Contains(string(raw), "stop_timeout: 2s") {
			t.Fatalf("saved yaml = %s, want duration string", raw)
		}
	})

	t.Run("zero config saves defaults", func(t *testing.T) {
		path := newConfigPathForSaveTest(t, "config.yaml")
		saved, err := Save(path, Config{})
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if !reflect.DeepEqual(saved, DefaultConfig()) {
			t.Fatalf("Save(Config{}) = %+v, want defaults", saved)
		}
	})

	t.Run("leaves no temp files", func(t *testing.T) {
		path := newConfigPathForSaveTest(t, "config.yaml")
		if _, err := Save(path, DefaultConfig()); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		entries, err := os.ReadDir(filepath.Dir(path))
		if err != nil {
			t.Fatalf("read dir: %v", err)
		}
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".config.yaml.tmp.") {
				t.Fatalf("temp file left behind: %s", e.Name())
			}
		}
	})
}

func TestSaveOutsideDefaultDir(t *testing.T) {
	newConfigPathForSaveTest(t, "config.yaml")
	path := filepath.Join(t.TempDir(), "custom", "quol.yaml")

	cfg := DefaultConfig()
	cfg.ToggleKey = "F9"
	if _, err := Save(path, cfg); err != nil {
		t.Fatalf("Save(%q) error = %v", path, err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.ToggleKey != "f9" {
		t.Fatalf("loaded.ToggleKey = %q, want f9", loaded.ToggleKey)
	}
}

func TestSaveRejectsBadPaths(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{name: "empty", path: ""},
		{name: "blank", path: "   "},
		{name: "directory", path: t.TempDir()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Save(tt.path, DefaultConfig()); err == nil {
				t.Fatalf("Save(%q) error = nil", tt.path)
			}
		})
	}
}

func TestSaveRenameFailureRemovesTempFile(t *testing.T) {
	original := renameFn
	t.Cleanup(func() { renameFn = original })
	var attempts int
	renameFn = func(string, string) error {
		attempts++
		return errors.New("sharing violation")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if _, err := Save(path, DefaultConfig()); err == nil {
		t.Fatal("Save() error = nil with failing rename")
	}
	wantAttempts := 1
	if runtime.GOOS == "windows" {
		wantAttempts = maxRenameRetry
	}
	if attempts != wantAttempts {
		t.Fatalf("rename attempts = %d, want %d", attempts, wantAttempts)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("dir entries = %v, want none", entries)
	}
}

func TestReadLimitedFile(t *testing.T) {
	dir := t.TempDir()

	oversized := filepath.Join(dir, "large.yaml")
	if err := os.WriteFile(oversized, bytes.Repeat([]byte("a"), int(maxConfigFileBytes+1)), 0o600); err != nil {
		t.Fatalf("write oversized config: %v", err)
	}
	if _, err := readLimitedFile(oversized, maxConfigFileBytes); err == nil {
		t.Fatal("readLimitedFile() expected size limit error")
	}

	exact := filepath.Join(dir, "exact.yaml")
	if err := os.WriteFile(exact, bytes.Repeat([]byte("a"), int(maxConfigFileBytes)), 0o600); err != nil {
		t.Fatalf("write exact-size config: %v", err)
	}
	raw, err := readLimitedFile(exact, maxConfigFileBytes)
	if err != nil {
		t.Fatalf("readLimitedFile() error = %v", err)
	}
	if int64(len(raw)) != maxConfigFileBytes {
		t.Fatalf("read bytes = %d, want %d", len(raw), maxConfigFileBytes)
	}
}

func TestEnsureFile(t *testing.T) {
	t.Run("creates owner-only file", func(t *testing.T) {
		path := newConfigPathForSaveTest(t, "config.yaml")
		if _, err := EnsureFile(path); err != nil {
			t.Fatalf("EnsureFile() error = %v", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat config: %v", err)
		}
		if runtime.GOOS != "windows" && info.Mode().Perm()&0o077 != 0 {
			t.Fatalf("config file permissions = %o, want owner-only", info.Mode().Perm())
		}
	})

	t.Run("keeps existing file", func(t *testing.T) {
		path := newConfigPathForSaveTest(t, "config.yaml")
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			t.Fatalf("mkdir config dir: %v", err)
		}
		initial := "# mine\ntoggle_key: f9\n"
		if err := os.WriteFile(path, []byte(initial), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
		cfg, err := EnsureFile(path)
		if err != nil {
			t.Fatalf("EnsureFile() error = %v", err)
		}
		if cfg.ToggleKey != "f9" {
			t.Fatalf("ToggleKey = %q, want f9", cfg.ToggleKey)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read config: %v", err)
		}
		if string(raw) != initial {
			t.Fatalf("existing config was rewritten: %q", raw)
		}
	})
}

func TestCloneDeepCopyIndependence(t *testing.T) {
	src := DefaultConfig()
	src.Keymaps = []KeymapGroup{{Name: "g", Mappings: map[string]string{"a": "b"}}}

	dst := Clone(src)
	dst.Keymaps[0].Mappings["a"] = "changed"
	dst.Keymaps[0].Name = "other"

	if src.Keymaps[0].Mappings["a"] != "b" || src.Keymaps[0].Name != "g" {
		t.Fatalf("Clone() shares state with source: %+v", src.Keymaps[0])
	}
	if Clone(DefaultConfig()).Keymaps != nil {
		t.Fatal("Clone() turned nil keymaps into non-nil")
	}
}
