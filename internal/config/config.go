package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// LogLevel specifies the logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat specifies the log output format.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// Duration decodes TOML strings like "3s" into a time.Duration.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// PathsConfig holds path configuration.
type PathsConfig struct {
	// StateFile stores last-submitted form values per document and action.
	StateFile string `toml:"state_file"`
	// DefaultDocument is the document loaded when -f is not given.
	DefaultDocument string `toml:"default_document"`
}

// RunnerConfig holds process runner settings.
type RunnerConfig struct {
	// KillGracePeriod is the wait between SIGTERM and SIGKILL.
	KillGracePeriod Duration `toml:"kill_grace_period"`
	// DefaultTimeout applies to run steps without timeout_ms. Zero disables it.
	DefaultTimeout Duration `toml:"default_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  LogLevel  `toml:"level"`
	Format LogFormat `toml:"format"`
	File   string    `toml:"file"`
}

// Config is the main configuration struct for deck.
type Config struct {
	Version string        `toml:"version"`
	Paths   PathsConfig   `toml:"paths"`
	Runner  RunnerConfig  `toml:"runner"`
	Logging LoggingConfig `toml:"logging"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Version: "1",
		Paths: PathsConfig{
			StateFile:       "~/.deck/state.yaml",
			DefaultDocument: "deck.yaml",
		},
		Runner: RunnerConfig{
			KillGracePeriod: Duration{3 * time.Second},
		},
		Logging: LoggingConfig{
			Level:  LogLevelWarn,
			Format: LogFormatText,
			File:   "",
		},
	}
}

// Load loads configuration from file, merging with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if no config file
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from the standard locations in a directory.
// Applies in order: defaults -> ~/.deck/config.toml -> <dir>/.deck/config.toml
// Later configs override earlier ones (project-level takes precedence).
func LoadFromDir(dir string) (*Config, error) {
	cfg := Default()

	home, err := os.UserHomeDir()
	if err == nil {
		globalConfig := filepath.Join(home, ".deck", "config.toml")
		if data, err := os.ReadFile(globalConfig); err == nil {
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing global config: %w", err)
			}
		}
	}

	projectConfig := filepath.Join(dir, ".deck", "config.toml")
	if data, err := os.ReadFile(projectConfig); err == nil {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing project config: %w", err)
		}
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("config version is required")
	}
	if c.Paths.DefaultDocument == "" {
		return fmt.Errorf("default_document is required")
	}
	if c.Runner.KillGracePeriod.Duration < 0 {
		return fmt.Errorf("kill_grace_period must not be negative")
	}
	if c.Runner.DefaultTimeout.Duration < 0 {
		return fmt.Errorf("default_timeout must not be negative")
	}
	switch c.Logging.Level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, "":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}

// StatePath returns the absolute state file path; "~" expands to the home
// directory and relative paths resolve against baseDir.
func (c *Config) StatePath(baseDir string) string {
	return expand(c.Paths.StateFile, baseDir)
}

// DocumentPath returns the absolute default document path.
func (c *Config) DocumentPath(baseDir string) string {
	return expand(c.Paths.DefaultDocument, baseDir)
}

// LogFile returns the absolute log file path, or "" when file logging is off.
func (c *Config) LogFile(baseDir string) string {
	if c.Logging.File == "" {
		return ""
	}
	return expand(c.Logging.File, baseDir)
}

func expand(p, baseDir string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
		}
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
