// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config holds the distributor's runtime settings and the on-disk
// configuration file that seeds them.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Default values for a fresh installation.
const (
	DefaultListenAddr     = ":8080"
	DefaultNetwork        = "mainnet"
	DefaultLogLevel       = "info"
	DefaultIntervalLength = 30 * 24 * time.Hour
	DefaultPayoutWindow   = 7 * 24 * time.Hour
)

// Settings is the mutable configuration shared by every payout component.
// It is handed around by pointer and only changed through the distributor's
// owner-gated operations.
type Settings struct {
	Owner          string        `json:"owner"`           // sole administrative authority
	Registry       string        `json:"registry"`        // address of the ownership registry
	IntervalLength time.Duration `json:"interval_length"` // minimum age of a snapshot before rollover
	PayoutWindow   time.Duration `json:"payout_window"`   // claim window after a rollover (automated mode)
	Automated      bool          `json:"automated"`
	Paused         bool          `json:"paused"`
}

// Config is the process-level configuration loaded from disk.
type Config struct {
	DataDir    string
	ListenAddr string
	Network    string
	LogLevel   string
	Settings   Settings
}

// DefaultDataDir returns ~/.royalty, falling back to ./.royalty when the home
// directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".royalty"
	}
	return filepath.Join(home, ".royalty")
}

// DefaultConfig returns a Config populated with default values.
func DefaultConfig() Config {
	return Config{
		DataDir:    DefaultDataDir(),
		ListenAddr: DefaultListenAddr,
		Network:    DefaultNetwork,
		LogLevel:   DefaultLogLevel,
		Settings: Settings{
			IntervalLength: DefaultIntervalLength,
			PayoutWindow:   DefaultPayoutWindow,
		},
	}
}

// ConfigPath returns the config file location inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config")
}

// DatabasePath returns the bbolt database location inside dataDir.
func DatabasePath(dataDir string) string {
	return filepath.Join(dataDir, "royalty.db")
}

// Mainnet reports whether addresses should be derived for mainnet.
func (c Config) Mainnet() bool {
	return c.Network == "mainnet"
}

// LoadConfig reads a key = value config file. Keys missing from the file keep
// their default values; unknown keys are ignored.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg := DefaultConfig()
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := parseKeyValue(line)
		if !ok {
			return Config{}, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		if err := cfg.set(key, value); err != nil {
			return Config{}, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path, creating parent directories as needed.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Royalty Distributor Configuration\n\n")
	fmt.Fprintf(&b, "datadir = %s\n", cfg.DataDir)
	fmt.Fprintf(&b, "listen = %s\n", cfg.ListenAddr)
	fmt.Fprintf(&b, "network = %s\n", cfg.Network)
	fmt.Fprintf(&b, "loglevel = %s\n", cfg.LogLevel)
	b.WriteString("\n# Payout settings\n")
	fmt.Fprintf(&b, "owner = %s\n", cfg.Settings.Owner)
	fmt.Fprintf(&b, "registry = %s\n", cfg.Settings.Registry)
	fmt.Fprintf(&b, "interval = %s\n", cfg.Settings.IntervalLength)
	fmt.Fprintf(&b, "window = %s\n", cfg.Settings.PayoutWindow)
	fmt.Fprintf(&b, "automated = %t\n", cfg.Settings.Automated)
	fmt.Fprintf(&b, "paused = %t\n", cfg.Settings.Paused)

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// envKeys maps ROYALTY_* environment variables to config file keys.
var envKeys = map[string]string{
	"ROYALTY_DATA_DIR":  "datadir",
	"ROYALTY_LISTEN":    "listen",
	"ROYALTY_NETWORK":   "network",
	"ROYALTY_LOG_LEVEL": "loglevel",
	"ROYALTY_OWNER":     "owner",
	"ROYALTY_REGISTRY":  "registry",
	"ROYALTY_INTERVAL":  "interval",
	"ROYALTY_WINDOW":    "window",
	"ROYALTY_AUTOMATED": "automated",
	"ROYALTY_PAUSED":    "paused",
}

// ApplyEnv overlays non-empty ROYALTY_* variables from env onto cfg.
func ApplyEnv(cfg *Config, env map[string]string) error {
	for name, key := range envKeys {
		v, ok := env[name]
		if !ok || v == "" {
			continue
		}
		if err := cfg.set(key, v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// parseKeyValue splits "key = value" on the first '='.
func parseKeyValue(line string) (string, string, bool) {
	idx := strings.IndexByte(line, '=')
	if idx <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

func (c *Config) set(key, value string) error {
	switch strings.ToLower(key) {
	case "datadir":
		c.DataDir = value
	case "listen":
		c.ListenAddr = value
	case "network":
		c.Network = value
	case "loglevel":
		c.LogLevel = value
	case "owner":
		c.Settings.Owner = value
	case "registry":
		c.Settings.Registry = value
	case "interval":
		d, err := parseDuration(value)
		if err != nil {
			return err
		}
		c.Settings.IntervalLength = d
	case "window":
		d, err := parseDuration(value)
		if err != nil {
			return err
		}
		c.Settings.PayoutWindow = d
	case "automated":
		v, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.Settings.Automated = v
	case "paused":
		v, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.Settings.Paused = v
	}
	return nil
}

// parseDuration accepts Go duration strings ("72h") or plain seconds ("120").
func parseDuration(value string) (time.Duration, error) {
	if secs, err := strconv.ParseUint(value, 10, 63); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, value)
	}
	return d, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%w: %s = %q", ErrInvalidConfigLine, key, value)
	}
	return v, nil
}
