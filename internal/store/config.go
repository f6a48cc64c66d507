package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

type GlobalConfig struct {
	// APIURL overrides the default remote API base URL.
	APIURL string `json:"apiUrl,omitempty"`

	// TimeoutSeconds bounds each HTTP request (0 = client default).
	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`

	// Format is the default CLI output format (json|edn|yaml).
	Format string `json:"format,omitempty"`

	// LogLevel is the default slog level (debug|info|warn|error).
	LogLevel string `json:"logLevel,omitempty"`

	// TUI holds optional user preferences for the interactive TUI.
	TUI *TUIConfig `json:"tui,omitempty"`
}

type TUIConfig struct {
	// Theme forces "light" or "dark"; empty follows the terminal.
	Theme string `json:"theme,omitempty"`
	// MarkdownStyle is a glamour standard style name used for descriptions.
	MarkdownStyle string `json:"markdownStyle,omitempty"`
}

// ConfigKeys lists the keys accepted by Set, in display order.
var ConfigKeys = []string{"apiUrl", "timeoutSeconds", "format", "logLevel", "tui.theme", "tui.markdownStyle"}

func ConfigDir() (string, error) {
	// Test/advanced override (keeps unit tests from touching ~/.todo).
	if v := strings.TrimSpace(os.Getenv("TODO_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".todo"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

func LoadConfig() (*GlobalConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &GlobalConfig{}, nil
		}
		return nil, err
	}
	var cfg GlobalConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

func atomicWriteFile(dir, tmpPattern, path string, b []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tmp, perm)
	return os.Rename(tmp, path)
}

func SaveConfig(cfg *GlobalConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	// Keep a copy of the previous config; ignore errors so a bad backup never blocks a save.
	if prev, err := os.ReadFile(path); err == nil && len(prev) > 0 {
		_ = atomicWriteFile(dir, "config.json.bak.*.tmp", path+".bak", prev, 0o644)
	}

	return atomicWriteFile(dir, "config.json.*.tmp", path, b, 0o600)
}

// Set assigns one of ConfigKeys from its string form.
func (c *GlobalConfig) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "apiUrl":
		c.APIURL = strings.TrimRight(value, "/")
	case "timeoutSeconds":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("timeoutSeconds must be a non-negative integer: %q", value)
		}
		c.TimeoutSeconds = n
	case "format":
		switch value {
		case "", "json", "edn", "yaml":
		default:
			return fmt.Errorf("unknown format: %s", value)
		}
		c.Format = value
	case "logLevel":
		switch strings.ToLower(value) {
		case "", "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("unknown log level: %s", value)
		}
		c.LogLevel = strings.ToLower(value)
	case "tui.theme":
		switch value {
		case "", "light", "dark":
		default:
			return fmt.Errorf("tui.theme must be light or dark: %q", value)
		}
		c.tui().Theme = value
	case "tui.markdownStyle":
		c.tui().MarkdownStyle = value
	default:
		keys := append([]string(nil), ConfigKeys...)
		sort.Strings(keys)
		return fmt.Errorf("unknown config key %q (known: %s)", key, strings.Join(keys, ", "))
	}
	return nil
}

func (c *GlobalConfig) tui() *TUIConfig {
	if c.TUI == nil {
		c.TUI = &TUIConfig{}
	}
	return c.TUI
}
