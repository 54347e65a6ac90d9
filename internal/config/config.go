package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	"quol-input/internal/keys"
)

const (
	maxConfigFileBytes   int64 = 1 << 20
	maxRenameRetry             = 10
	renameRetryBaseDelay       = 10 * time.Millisecond

	appDirName = "quol-input"

	DefaultToggleKey   = "`"
	DefaultLogLevel    = "info"
	DefaultStopTimeout = 2 * time.Second
	DefaultFeedAddr    = "127.0.0.1:47115"
	defaultUsageFile   = "usage.db"
)

var userHomeDirFn = os.UserHomeDir

// renameFn is swapped by tests to simulate a file held open by a scanner.
var renameFn = os.Rename
var defaultPathWarningState struct {
	mu       sync.Mutex
	messages []string
}

func recordDefaultPathWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	defaultPathWarningState.mu.Lock()
	defaultPathWarningState.messages = append(defaultPathWarningState.messages, trimmed)
	defaultPathWarningState.mu.Unlock()
}

// ConsumeDefaultPathWarnings returns and clears path-resolution warnings
// accumulated during DefaultPath() calls.
func ConsumeDefaultPathWarnings() []string {
	defaultPathWarningState.mu.Lock()
	defer defaultPathWarningState.mu.Unlock()
	if len(defaultPathWarningState.messages) == 0 {
		return nil
	}
	out := make([]string, len(defaultPathWarningState.messages))
	copy(out, defaultPathWarningState.messages)
	defaultPathWarningState.messages = nil
	return out
}

// KeymapGroup is a named set of remaps. Each mapping registers a suppressing
// hotkey on the source combo that types the destination combo.
type KeymapGroup struct {
	Name     string            `yaml:"name" json:"name"`
	Enabled  bool              `yaml:"enabled" json:"enabled"`
	Mappings map[string]string `yaml:"mappings,omitempty" json:"mappings,omitempty"`
}

// EventFeedConfig controls the localhost WebSocket event feed.
type EventFeedConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// UsageConfig controls hotkey usage statistics. An empty Path stores the
// database next to the config file.
type UsageConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
}

// ControlConfig controls the local control channel used by quol-send and by
// second instances.
type ControlConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

type Config struct {
	ToggleKey   string          `yaml:"toggle_key" json:"toggle_key"`
	LogLevel    string          `yaml:"log_level" json:"log_level"`
	StopTimeout time.Duration   `yaml:"stop_timeout" json:"stop_timeout"`
	Keymaps     []KeymapGroup   `yaml:"keymaps,omitempty" json:"keymaps,omitempty"`
	EventFeed   EventFeedConfig `yaml:"event_feed" json:"event_feed"`
	Usage       UsageConfig     `yaml:"usage" json:"usage"`
	Control     ControlConfig   `yaml:"control" json:"control"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		ToggleKey:   DefaultToggleKey,
		LogLevel:    DefaultLogLevel,
		StopTimeout: DefaultStopTimeout,
		EventFeed: EventFeedConfig{
			Enabled: true,
			Addr:    DefaultFeedAddr,
		},
		Usage:   UsageConfig{Enabled: true},
		Control: ControlConfig{Enabled: true},
	}
}

// SlogLevel maps LogLevel to a slog level. Unknown values map to Info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// UsagePath resolves where the usage database lives for a config stored at
// configPath.
func (c Config) UsagePath(configPath string) string {
	if p := strings.TrimSpace(c.Usage.Path); p != "" {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), defaultUsageFile)
}

// DefaultPath resolves the config file path, preferring LOCALAPPDATA over
// APPDATA, falling back to ~/.config when both are unset, and then to
// os.TempDir() if the home directory cannot be resolved.
// The temp-dir fallback is not a stable persistence location and may vary
// between sessions depending on environment configuration.
func DefaultPath() string {
	base := strings.TrimSpace(os.Getenv("LOCALAPPDATA"))
	if base == "" {
		base = strings.TrimSpace(os.Getenv("APPDATA"))
	}
	if base == "" {
		home, err := userHomeDirFn()
		if err != nil {
			slog.Warn("[WARN-CONFIG] using temp dir as config path fallback", "error", err)
			recordDefaultPathWarning(
				"Config path fallback: failed to resolve LOCALAPPDATA/APPDATA/home directory. Using temp directory; settings persistence may be limited.",
			)
			base = os.TempDir()
		} else {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, appDirName, "config.yaml")
}

// Load reads the config file. A missing or empty file yields defaults. A
// file that fails to parse yields defaults together with the parse error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, errors.New("config path required")
	}

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		slog.Warn("[WARN-CONFIG] failed to parse config, using defaults", "path", path, "error", err)
		return DefaultConfig(), err
	}

	// A second decode into a generic map tells absent switches from false.
	var rawMap map[string]any
	if err := yaml.Unmarshal(raw, &rawMap); err == nil {
		restoreMissingSwitches(&cfg, rawMap)
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// EnsureFile writes default config if missing and returns loaded config.
func EnsureFile(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Clone returns a deep copy of cfg.
// Use this when sharing config snapshots across goroutines or package boundaries.
func Clone(src Config) Config {
	dst := src
	if src.Keymaps != nil {
		dst.Keymaps = make([]KeymapGroup, len(src.Keymaps))
		for i, g := range src.Keymaps {
			dst.Keymaps[i] = g
			if g.Mappings != nil {
				dst.Keymaps[i].Mappings = make(map[string]string, len(g.Mappings))
				maps.Copy(dst.Keymaps[i].Mappings, g.Mappings)
			}
		}
	}
	return dst
}

// Save normalizes cfg and replaces the file at path with it. The returned
// config is what ended up on disk.
func Save(path string, cfg Config) (Config, error) {
	target, err := resolveSavePath(path)
	if err != nil {
		return cfg, err
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := replaceFile(target, raw); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}
	slog.Debug("[DEBUG-CONFIG] config saved", "path", target)
	return cfg, nil
}

func resolveSavePath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("config path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("save config: resolve path: %w", err)
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return "", fmt.Errorf("save config: %q is a directory", abs)
	}
	return abs, nil
}

// replaceFile writes data next to path and renames it into place, so a
// watcher or reader never observes a half-written config.
func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()

	writeErr := writeSynced(tmp, data)
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr == nil {
		writeErr = renameWithRetry(tmpPath, path)
	}
	if writeErr != nil {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("[WARN-CONFIG] failed to remove temp file", "path", tmpPath, "error", err)
		}
		return writeErr
	}
	return nil
}

func writeSynced(f *os.File, data []byte) error {
	if err := f.Chmod(0o600); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

// renameWithRetry retries on Windows, where antivirus and indexers briefly
// hold freshly written files open.
func renameWithRetry(from, to string) error {
	var err error
	for attempt := 1; attempt <= maxRenameRetry; attempt++ {
		if err = renameFn(from, to); err == nil {
			return nil
		}
		if runtime.GOOS != "windows" {
			break
		}
		time.Sleep(time.Duration(attempt) * renameRetryBaseDelay)
	}
	return fmt.Errorf("rename: %w", err)
}

// applyDefaultsAndValidate fills missing defaults and normalizes cfg in-place.
// MUTATES: cfg is directly modified.
// Invalid values are logged and replaced rather than failing the load, so a
// bad edit never keeps the engine from starting.
func applyDefaultsAndValidate(cfg *Config) error {
	if isZeroConfig(*cfg) {
		*cfg = DefaultConfig()
		return nil
	}
	defaults := DefaultConfig()

	cfg.ToggleKey = normalizeToggleKey(cfg.ToggleKey)
	cfg.LogLevel = normalizeLogLevel(cfg.LogLevel)
	if cfg.StopTimeout < 0 {
		slog.Warn("[WARN-CONFIG] stop_timeout is negative, using default", "configured", cfg.StopTimeout)
		cfg.StopTimeout = defaults.StopTimeout
	}
	validateFeedAddr(cfg)
	cfg.Usage.Path = strings.TrimSpace(cfg.Usage.Path)
	sanitizeKeymaps(cfg)
	return nil
}

func normalizeToggleKey(key string) string {
	combo, err := keys.ParseCombo(key)
	if err != nil {
		if strings.TrimSpace(key) != "" {
			slog.Warn("[WARN-CONFIG] invalid toggle_key, using default", "configured", key, "error", err)
		}
		return DefaultToggleKey
	}
	return combo.String()
}

func normalizeLogLevel(level string) string {
	trimmed := strings.ToLower(strings.TrimSpace(level))
	if trimmed == "" {
		return DefaultLogLevel
	}
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(trimmed)); err != nil {
		slog.Warn("[WARN-CONFIG] unknown log_level, using default", "configured", level)
		return DefaultLogLevel
	}
	return trimmed
}

// validateFeedAddr keeps the event feed on a loopback interface. Anything
// else is reset to the default address.
func validateFeedAddr(cfg *Config) {
	addr := strings.TrimSpace(cfg.EventFeed.Addr)
	if addr == "" {
		cfg.EventFeed.Addr = DefaultFeedAddr
		return
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		slog.Warn("[WARN-CONFIG] event_feed.addr is not host:port, using default", "configured", addr, "error", err)
		cfg.EventFeed.Addr = DefaultFeedAddr
		return
	}
	if host != "localhost" {
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			slog.Warn("[WARN-CONFIG] event_feed.addr must be a loopback address, using default", "configured", addr)
			cfg.EventFeed.Addr = DefaultFeedAddr
			return
		}
	}
	cfg.EventFeed.Addr = addr
}

// sanitizeKeymaps normalizes every combo to its canonical form and drops
// mappings whose source or destination does not parse. Within a group the
// first source (in sorted order) wins when two spellings normalize alike.
func sanitizeKeymaps(cfg *Config) {
	for i := range cfg.Keymaps {
		group := &cfg.Keymaps[i]
		group.Name = strings.TrimSpace(group.Name)
		if group.Name == "" {
			group.Name = fmt.Sprintf("group-%d", i+1)
		}
		if len(group.Mappings) == 0 {
			group.Mappings = nil
			continue
		}
		cleaned := make(map[string]string, len(group.Mappings))
		for _, src := range slices.Sorted(maps.Keys(group.Mappings)) {
			dst := group.Mappings[src]
			srcCombo, srcErr := keys.ParseCombo(src)
			dstCombo, dstErr := keys.ParseCombo(dst)
			if srcErr != nil || dstErr != nil {
				slog.Warn("[WARN-CONFIG] dropped keymap entry with empty combo",
					"group", group.Name, "src", src, "dst", dst)
				continue
			}
			key := srcCombo.String()
			if _, exists := cleaned[key]; exists {
				slog.Warn("[WARN-CONFIG] duplicate keymap source, keeping first",
					"group", group.Name, "src", src)
				continue
			}
			cleaned[key] = dstCombo.String()
		}
		if len(cleaned) == 0 {
			cleaned = nil
		}
		group.Mappings = cleaned
	}
}

// restoreMissingSwitches puts back the default of every section's enabled
// flag the file does not mention explicitly.
func restoreMissingSwitches(cfg *Config, rawMap map[string]any) {
	defaults := DefaultConfig()
	switches := []struct {
		section string
		target  *bool
		def     bool
	}{
		{"event_feed", &cfg.EventFeed.Enabled, defaults.EventFeed.Enabled},
		{"usage", &cfg.Usage.Enabled, defaults.Usage.Enabled},
		{"control", &cfg.Control.Enabled, defaults.Control.Enabled},
	}
	for _, s := range switches {
		section, ok := rawMap[s.section].(map[string]any)
		if !ok {
			continue
		}
		if _, has := section["enabled"]; !has {
			*s.target = s.def
		}
	}
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	limited := io.LimitReader(file, maxBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}

func isZeroConfig(cfg Config) bool {
	// reflect.DeepEqual guards against field-addition drift that manual checks miss.
	return reflect.DeepEqual(cfg, Config{})
}
