package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// BasicAuthConfig holds HTTP Basic Auth credentials for the HTTP API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Ics2RemConfig holds the rendering defaults of ics2rem and of lines
// written through the HTTP API.
type Ics2RemConfig struct {
	// Label is prepended to every message.
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
	// Priority is written as PRIORITY n when non-zero (0..9999).
	Priority int `yaml:"priority,omitempty" json:"priority,omitempty"`
	// Tags are added as TAG clauses to every line.
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	// Tail is appended after the message, e.g. "%b".
	Tail string `yaml:"tail,omitempty" json:"tail,omitempty"`
	// Sep separates the tokens of a line.
	Sep string `yaml:"sep,omitempty" json:"sep,omitempty"`
	// PostDate and PostTime are injected after the date and the time.
	PostDate string `yaml:"postdate,omitempty" json:"postdate,omitempty"`
	PostTime string `yaml:"posttime,omitempty" json:"posttime,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// RemindFile is the root reminder file.
	RemindFile string `yaml:"remind_file" json:"remind_file"`

	// RemindBinary is the remind executable.
	RemindBinary string `yaml:"remind_binary" json:"remind_binary"`

	// Timezone is the IANA timezone of the reminder files (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	// Months is the number of months remind computes.
	Months int `yaml:"months" json:"months"`

	// StartWeeksBack moves the computed window this many weeks before today.
	StartWeeksBack int `yaml:"start_weeks_back" json:"start_weeks_back"`

	// Host is the identifier suffix. Empty means the machine host name.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// AlarmMinutes adds a display alarm to timed events; 0 disables it.
	AlarmMinutes int `yaml:"alarm_minutes" json:"alarm_minutes"`

	// Listen is the HTTP listen address of serve.
	Listen string `yaml:"listen" json:"listen"`

	// Export is a cron-style schedule string (e.g. "*/15 * * * *") for
	// periodic re-export of the combined calendar by serve.
	Export string `yaml:"export,omitempty" json:"export,omitempty"`

	// ExportPath is where serve writes the combined calendar. Empty
	// disables periodic export.
	ExportPath string `yaml:"export_path,omitempty" json:"export_path,omitempty"`

	// CacheDir holds downloaded remote calendars.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Ics2Rem holds line rendering defaults.
	Ics2Rem Ics2RemConfig `yaml:"ics2rem" json:"ics2rem"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// EnvPrefix prefixes the environment variables read by ApplyEnv.
const EnvPrefix = "REMINDCAL"

// envOverrides are the settings that may come from the environment,
// e.g. REMINDCAL_REMIND_FILE.
type envOverrides struct {
	RemindFile   string `envconfig:"REMIND_FILE"`
	RemindBinary string `envconfig:"REMIND_BINARY"`
	Timezone     string `envconfig:"TIMEZONE"`
	Host         string `envconfig:"HOST"`
	Listen       string `envconfig:"LISTEN"`
	ExportPath   string `envconfig:"EXPORT_PATH"`
	CacheDir     string `envconfig:"CACHE_DIR"`
	AuthUser     string `envconfig:"BASIC_AUTH_USERNAME"`
	AuthPassword string `envconfig:"BASIC_AUTH_PASSWORD"`
}

const (
	defaultTimezone  = "Europe/Berlin"
	defaultListen    = "127.0.0.1:8080"
	defaultMonths    = 15
	defaultWeeksBack = 12
	defaultAlarm     = 10
	defaultExport    = "*/15 * * * *"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		RemindFile:     defaultRemindFile(),
		RemindBinary:   "remind",
		Timezone:       defaultTimezone,
		Months:         defaultMonths,
		StartWeeksBack: defaultWeeksBack,
		AlarmMinutes:   defaultAlarm,
		Listen:         defaultListen,
		Export:         defaultExport,
		CacheDir:       filepath.Join(os.TempDir(), "remindcal-cache"),
		BasicAuth:      nil,
	}
}

func defaultRemindFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".reminders"
	}
	return filepath.Join(home, ".reminders")
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.RemindFile == "" {
		c.RemindFile = defaultRemindFile()
	}
	if c.RemindBinary == "" {
		c.RemindBinary = "remind"
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.Months <= 0 {
		c.Months = defaultMonths
	}
	if c.StartWeeksBack < 0 {
		c.StartWeeksBack = defaultWeeksBack
	}
	if c.AlarmMinutes < 0 {
		c.AlarmMinutes = 0
	}
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Export == "" {
		c.Export = defaultExport
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(os.TempDir(), "remindcal-cache")
	}
	if c.Ics2Rem.Priority < 0 {
		c.Ics2Rem.Priority = 0
	}
	if c.Ics2Rem.Priority > 9999 {
		c.Ics2Rem.Priority = 9999
	}
}

// Location resolves Timezone, falling back to the local zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ApplyEnv overrides c with the REMINDCAL_* variables that are set.
// Basic auth is enabled only when both credentials are given.
func (c *Config) ApplyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.RemindFile, env.RemindFile)
	set(&c.RemindBinary, env.RemindBinary)
	set(&c.Timezone, env.Timezone)
	set(&c.Host, env.Host)
	set(&c.Listen, env.Listen)
	set(&c.ExportPath, env.ExportPath)
	set(&c.CacheDir, env.CacheDir)
	if env.AuthUser != "" && env.AuthPassword != "" {
		c.BasicAuth = &BasicAuthConfig{Username: env.AuthUser, Password: env.AuthPassword}
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Environment overrides (ApplyEnv) are applied last and never written
// back to the file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, cfg.ApplyEnv()
		}
		return nil, err
	}

	cfg := Config{StartWeeksBack: defaultWeeksBack, AlarmMinutes: defaultAlarm}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".remindcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
