// Package config provides reading and writing of quill configuration.
// Supports both global (~/.quill/config.yaml) and local (.quill/config.yaml).
// Reading: uses local if it exists, otherwise global.
// Writing: defaults to global, use --local for local.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jpl-au/quill/internal/repo"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoConfigPath is returned when the config path cannot be determined.
	ErrNoConfigPath = errors.New("cannot determine config path")
	// ErrUnknownKey is returned when getting/setting an unknown config key.
	ErrUnknownKey = errors.New("unknown config key")
	// ErrInvalidValue is returned when a config value is invalid.
	ErrInvalidValue = errors.New("invalid config value")
)

// Scope represents the configuration scope (global or local).
type Scope int

const (
	// ScopeGlobal is user-wide config in ~/.quill/config.yaml (default)
	ScopeGlobal Scope = iota
	// ScopeLocal is workspace-specific config in .quill/config.yaml
	ScopeLocal
)

// Author identifies who locks and snapshots are attributed to.
type Author struct {
	Name  string `yaml:"name,omitempty"`
	Email string `yaml:"email,omitempty"`
}

// Limits holds the section store ceilings.
type Limits struct {
	MaxSections     *int `yaml:"max_sections,omitempty"`
	MaxSectionSize  *int `yaml:"max_section_size,omitempty"`
	MaxDocumentSize *int `yaml:"max_document_size,omitempty"`
}

// Lock holds lock manager settings. Durations use Go syntax ("300s", "5m").
type Lock struct {
	TTL        string `yaml:"ttl,omitempty"`
	Retries    *int   `yaml:"retries,omitempty"`
	RetryDelay string `yaml:"retry_delay,omitempty"`
}

// Versions holds snapshot retention.
type Versions struct {
	Keep *int `yaml:"keep,omitempty"`
}

// Convert holds conversion pipeline settings.
type Convert struct {
	MaxConcurrent  *int                `yaml:"max_concurrent,omitempty"`
	AttemptTimeout string              `yaml:"attempt_timeout,omitempty"`
	OutputDir      string              `yaml:"output_dir,omitempty"`
	KeepTasks      *int                `yaml:"keep_tasks,omitempty"`
	Pandoc         string              `yaml:"pandoc,omitempty"`
	PandocArgs     string              `yaml:"pandoc_args,omitempty"`
	Chrome         string              `yaml:"chrome,omitempty"`
	Fallback       map[string][]string `yaml:"fallback,omitempty"`
	// Template maps a format to its style reference: a stylesheet for html
	// and pdf, a reference document for docx, a pandoc template for latex.
	Template map[string]string `yaml:"template,omitempty"`
}

// Defaults applied when not configured.
const (
	DefaultMaxSections     = 1000
	DefaultMaxSectionSize  = 1 << 20  // 1 MB
	DefaultMaxDocumentSize = 10 << 20 // 10 MB

	DefaultLockTTL        = 300 * time.Second
	DefaultLockRetries    = 3
	DefaultLockRetryDelay = 5 * time.Second

	DefaultVersionsKeep = 5

	DefaultMaxConcurrent  = 2
	DefaultAttemptTimeout = 5 * time.Minute
	DefaultOutputDir      = "output"
	DefaultKeepTasks      = 100
)

// Validation bounds for configuration values.
const (
	MinMaxSections     = 1
	MaxMaxSections     = 100000
	MinMaxSectionSize  = 1
	MaxMaxSectionSize  = 1 << 30 // 1 GB
	MinMaxDocumentSize = 1
	MaxMaxDocumentSize = 1 << 30 // 1 GB

	MinLockTTL      = time.Second
	MaxLockTTL      = 24 * time.Hour
	MinLockRetries  = 0
	MaxLockRetries  = 100
	MaxRetryDelay   = 10 * time.Minute
	MinVersionsKeep = 1
	MaxVersionsKeep = 10000

	MinMaxConcurrent  = 1
	MaxMaxConcurrent  = 64
	MinAttemptTimeout = time.Second
	MaxAttemptTimeout = 24 * time.Hour
	MinKeepTasks      = 1
	MaxKeepTasks      = 100000
)

// Config contains configuration for quill.
type Config struct {
	Author   Author   `yaml:"author,omitempty"`
	Limits   Limits   `yaml:"limits,omitempty"`
	Lock     Lock     `yaml:"lock,omitempty"`
	Versions Versions `yaml:"versions,omitempty"`
	Convert  Convert  `yaml:"convert,omitempty"`

	// path is the file this config was loaded from (for Save)
	path  string
	scope Scope
}

func checkInt(key string, p *int, lo, hi int) error {
	if p == nil {
		return nil
	}
	if *p < lo || *p > hi {
		return fmt.Errorf("%w: %s must be between %d and %d, got %d", ErrInvalidValue, key, lo, hi, *p)
	}
	return nil
}

func checkDuration(key, s string, lo, hi time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%w: %s must be a duration such as 30s or 5m, got %q", ErrInvalidValue, key, s)
	}
	if d < lo || d > hi {
		return fmt.Errorf("%w: %s must be between %s and %s, got %s", ErrInvalidValue, key, lo, hi, d)
	}
	return nil
}

// Validate checks that all configured values are within acceptable bounds.
// Returns nil if all values are valid or not set (defaults will be used).
func (c *Config) Validate() error {
	return errors.Join(
		checkInt("limits.max_sections", c.Limits.MaxSections, MinMaxSections, MaxMaxSections),
		checkInt("limits.max_section_size", c.Limits.MaxSectionSize, MinMaxSectionSize, MaxMaxSectionSize),
		checkInt("limits.max_document_size", c.Limits.MaxDocumentSize, MinMaxDocumentSize, MaxMaxDocumentSize),
		checkDuration("lock.ttl", c.Lock.TTL, MinLockTTL, MaxLockTTL),
		checkInt("lock.retries", c.Lock.Retries, MinLockRetries, MaxLockRetries),
		checkDuration("lock.retry_delay", c.Lock.RetryDelay, 0, MaxRetryDelay),
		checkInt("versions.keep", c.Versions.Keep, MinVersionsKeep, MaxVersionsKeep),
		checkInt("convert.max_concurrent", c.Convert.MaxConcurrent, MinMaxConcurrent, MaxMaxConcurrent),
		checkDuration("convert.attempt_timeout", c.Convert.AttemptTimeout, MinAttemptTimeout, MaxAttemptTimeout),
		checkInt("convert.keep_tasks", c.Convert.KeepTasks, MinKeepTasks, MaxKeepTasks),
		c.checkFallback(),
		c.checkTemplate(),
	)
}

func (c *Config) checkFallback() error {
	for target, chain := range c.Convert.Fallback {
		if !validFormat(target) {
			return fmt.Errorf("%w: convert.fallback.%s: unknown format", ErrInvalidValue, target)
		}
		for _, f := range chain {
			if !validFormat(f) {
				return fmt.Errorf("%w: convert.fallback.%s: unknown format %q", ErrInvalidValue, target, f)
			}
		}
	}
	return nil
}

func (c *Config) checkTemplate() error {
	for f := range c.Convert.Template {
		if !slices.Contains(templateFormats, f) {
			return fmt.Errorf("%w: convert.template.%s: formats with templates are %s",
				ErrInvalidValue, f, strings.Join(templateFormats, ", "))
		}
	}
	return nil
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// MaxSections returns the section count ceiling (defaults to 1000).
func (c *Config) MaxSections() int { return intOr(c.Limits.MaxSections, DefaultMaxSections) }

// MaxSectionSize returns the section size ceiling in bytes (defaults to 1 MB).
func (c *Config) MaxSectionSize() int { return intOr(c.Limits.MaxSectionSize, DefaultMaxSectionSize) }

// MaxDocumentSize returns the document size ceiling in bytes (defaults to 10 MB).
func (c *Config) MaxDocumentSize() int {
	return intOr(c.Limits.MaxDocumentSize, DefaultMaxDocumentSize)
}

// LockTTL returns the lock lifetime without a heartbeat (defaults to 300s).
func (c *Config) LockTTL() time.Duration { return durationOr(c.Lock.TTL, DefaultLockTTL) }

// LockRetries returns how often a busy lock is retried (defaults to 3).
func (c *Config) LockRetries() int { return intOr(c.Lock.Retries, DefaultLockRetries) }

// LockRetryDelay returns the pause between lock retries (defaults to 5s).
func (c *Config) LockRetryDelay() time.Duration {
	return durationOr(c.Lock.RetryDelay, DefaultLockRetryDelay)
}

// VersionsKeep returns how many snapshots prune keeps (defaults to 5).
func (c *Config) VersionsKeep() int { return intOr(c.Versions.Keep, DefaultVersionsKeep) }

// MaxConcurrent returns the number of conversions run at once (defaults to 2).
func (c *Config) MaxConcurrent() int { return intOr(c.Convert.MaxConcurrent, DefaultMaxConcurrent) }

// AttemptTimeout returns the per-format conversion timeout (defaults to 5m).
func (c *Config) AttemptTimeout() time.Duration {
	return durationOr(c.Convert.AttemptTimeout, DefaultAttemptTimeout)
}

// KeepTasks returns how many finished conversion tasks stay queryable
// (defaults to 100).
func (c *Config) KeepTasks() int { return intOr(c.Convert.KeepTasks, DefaultKeepTasks) }

// Template returns the style reference configured for a format, or "".
func (c *Config) Template(format string) string { return c.Convert.Template[format] }

// PandocArgs returns the extra pandoc arguments, split on whitespace.
func (c *Config) PandocArgs() []string { return strings.Fields(c.Convert.PandocArgs) }

// OutputDir returns the conversion output directory relative to the
// workspace root (defaults to "output").
func (c *Config) OutputDir() string {
	if c.Convert.OutputDir == "" {
		return DefaultOutputDir
	}
	return c.Convert.OutputDir
}

// Fallback returns the configured chain for a target format and whether one
// is configured.
func (c *Config) Fallback(target string) ([]string, bool) {
	chain, ok := c.Convert.Fallback[target]
	return chain, ok
}

// LocalPath returns the path to the local (workspace) config file. Inside a
// workspace it resolves against the workspace root.
func LocalPath() string {
	if root, err := repo.Discover(); err == nil {
		return filepath.Join(root, repo.Dir, "config.yaml")
	}
	return filepath.Join(repo.Dir, "config.yaml")
}

// GlobalPath returns the path to the global (user) config file: ~/.quill/config.yaml
func GlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, repo.Dir, "config.yaml")
}

// Load reads configuration: uses local if it exists, otherwise global.
func Load() (*Config, error) {
	if _, err := os.Stat(LocalPath()); err == nil {
		return LoadScope(ScopeLocal)
	}
	return LoadScope(ScopeGlobal)
}

// LoadFor reads configuration for the workspace at root: its local file if
// present, otherwise the global one.
func LoadFor(root string) (*Config, error) {
	local := filepath.Join(root, repo.Dir, "config.yaml")
	if _, err := os.Stat(local); err == nil {
		return LoadFile(local, ScopeLocal)
	}
	return LoadScope(ScopeGlobal)
}

// LoadScope reads configuration from a specific scope.
func LoadScope(scope Scope) (*Config, error) {
	path := pathForScope(scope)
	if path == "" {
		return &Config{scope: scope}, nil
	}
	return LoadFile(path, scope)
}

// LoadFile reads configuration from path. A missing file yields defaults.
func LoadFile(path string, scope Scope) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{path: path, scope: scope}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("malformed config file %s: %w\n\nTo fix: edit the file to correct the YAML syntax, or delete it to use defaults", path, err)
	}
	cfg.path = path
	cfg.scope = scope

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

// Scope returns which scope this config was loaded from.
func (c *Config) Scope() Scope {
	return c.scope
}

// Save writes the configuration to its original location.
func (c *Config) Save() error {
	if c.path == "" {
		c.path = pathForScope(c.scope)
	}
	if c.path == "" {
		return ErrNoConfigPath
	}
	return c.saveToPath(c.path)
}

// SaveScope writes the configuration to the specified scope.
func (c *Config) SaveScope(scope Scope) error {
	path := pathForScope(scope)
	if path == "" {
		return ErrNoConfigPath
	}
	return c.saveToPath(path)
}

// saveToPath writes configuration to a specific filesystem path.
// Creates parent directories as needed with mode 0755.
func (c *Config) saveToPath(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// pathForScope returns the filesystem path for a given scope.
func pathForScope(scope Scope) string {
	switch scope {
	case ScopeLocal:
		return LocalPath()
	case ScopeGlobal:
		return GlobalPath()
	default:
		return ""
	}
}
