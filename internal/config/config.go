// Package config loads temme settings from TOML files.
//
// Later files override earlier ones key by key: built-in defaults, then
// ~/.config/temme/config.toml, then <project>/.temme/config.toml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/corey/temmekit/internal/domain/links"
	"github.com/corey/temmekit/internal/ports"
)

// FileName is the config file name in both the user and project directories.
const FileName = "config.toml"

// Config holds every user-tunable setting.
type Config struct {
	LanguageID    string   `toml:"language_id"`
	Extensions    []string `toml:"extensions"`
	Output        string   `toml:"output"`
	Links         string   `toml:"links"`
	DebounceMs    int      `toml:"debounce_ms"`
	HTTPTimeoutMs int      `toml:"http_timeout_ms"`
	UserAgent     string   `toml:"user_agent"`
	LogLevel      string   `toml:"log_level"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LanguageID: "temme",
		Extensions: []string{".temme"},
		Output:     string(ports.OutputFile),
		Links:      string(links.ModeAuto),
		DebounceMs: 0,
		UserAgent:  "temmekit",
		LogLevel:   "info",
	}
}

// UserPath returns ~/.config/temme/config.toml, or "" when there is no home.
func UserPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "temme", FileName)
}

// ProjectPath returns <root>/.temme/config.toml.
func ProjectPath(root string) string {
	return filepath.Join(root, ".temme", FileName)
}

// Load reads the user file and the project file over the defaults. Missing
// files are skipped.
func Load(projectRoot string) (*Config, error) {
	return LoadFiles(UserPath(), ProjectPath(projectRoot))
}

// LoadFiles applies each existing file over the defaults, in order.
func LoadFiles(paths ...string) (*Config, error) {
	cfg := Default()
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := toml.DecodeFile(p, cfg); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("parse config %s: %w", p, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the rest of the program cannot act on.
func (c *Config) Validate() error {
	switch ports.OutputKind(c.Output) {
	case ports.OutputFile, ports.OutputPanel:
	default:
		return fmt.Errorf("config: output must be %q or %q, got %q", ports.OutputFile, ports.OutputPanel, c.Output)
	}
	switch links.Mode(c.Links) {
	case links.ModeTagged, links.ModeAll, links.ModeAuto:
	default:
		return fmt.Errorf("config: links must be tagged, all or auto, got %q", c.Links)
	}
	if c.DebounceMs < 0 || c.HTTPTimeoutMs < 0 {
		return errors.New("config: durations cannot be negative")
	}
	if c.LanguageID == "" {
		return errors.New("config: language_id cannot be empty")
	}
	for i, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			c.Extensions[i] = "." + ext
		}
	}
	return nil
}

// OutputKind is Output as a port value.
func (c *Config) OutputKind() ports.OutputKind { return ports.OutputKind(c.Output) }

// LinkMode is Links as a link extraction mode.
func (c *Config) LinkMode() links.Mode { return links.ParseMode(c.Links) }

// Debounce is the diagnostics delay.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// HTTPTimeout bounds a markup fetch. Zero means no timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMs) * time.Millisecond
}

// Recognizes reports whether a document with this language id and path is a
// selector document.
func (c *Config) Recognizes(languageID, path string) bool {
	if languageID != "" && languageID == c.LanguageID {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range c.Extensions {
		if ext != "" && strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
