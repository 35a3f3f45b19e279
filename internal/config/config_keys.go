// config_keys.go provides key-value access to configuration settings.
//
// Separated from config.go to isolate the key enumeration and string-based
// get/set logic. config.go focuses on YAML structure and loading, while this
// file handles the MCP, HTTP and CLI interfaces where config is accessed by
// string keys (e.g., "lock.ttl").
//
// Pointers and empty strings mark "not set" so defaults only apply when the
// user hasn't chosen a value.

package config

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// formats are the conversion formats accepted in fallback chains.
var formats = []string{"md", "html", "pdf", "docx", "latex"}

func validFormat(s string) bool { return slices.Contains(formats, s) }

// templateFormats are the formats that accept a style reference.
var templateFormats = []string{"html", "pdf", "docx", "latex"}

const (
	fallbackPrefix = "convert.fallback."
	templatePrefix = "convert.template."
)

// ValidKeys returns all valid configuration keys.
func ValidKeys() []string {
	keys := []string{
		"author.name", "author.email",
		"limits.max_sections", "limits.max_section_size", "limits.max_document_size",
		"lock.ttl", "lock.retries", "lock.retry_delay",
		"versions.keep",
		"convert.max_concurrent", "convert.attempt_timeout", "convert.output_dir",
		"convert.keep_tasks", "convert.pandoc", "convert.pandoc_args", "convert.chrome",
	}
	for _, f := range formats {
		keys = append(keys, fallbackPrefix+f)
	}
	for _, f := range templateFormats {
		keys = append(keys, templatePrefix+f)
	}
	return keys
}

// IsValidKey returns true if the key is a valid configuration key.
func IsValidKey(key string) bool {
	return slices.Contains(ValidKeys(), key)
}

// Get returns the value of a configuration key as a string.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "author.name":
		return c.Author.Name, nil
	case "author.email":
		return c.Author.Email, nil
	case "limits.max_sections":
		return strconv.Itoa(c.MaxSections()), nil
	case "limits.max_section_size":
		return strconv.Itoa(c.MaxSectionSize()), nil
	case "limits.max_document_size":
		return strconv.Itoa(c.MaxDocumentSize()), nil
	case "lock.ttl":
		return c.LockTTL().String(), nil
	case "lock.retries":
		return strconv.Itoa(c.LockRetries()), nil
	case "lock.retry_delay":
		return c.LockRetryDelay().String(), nil
	case "versions.keep":
		return strconv.Itoa(c.VersionsKeep()), nil
	case "convert.max_concurrent":
		return strconv.Itoa(c.MaxConcurrent()), nil
	case "convert.attempt_timeout":
		return c.AttemptTimeout().String(), nil
	case "convert.output_dir":
		return c.OutputDir(), nil
	case "convert.keep_tasks":
		return strconv.Itoa(c.KeepTasks()), nil
	case "convert.pandoc":
		return c.Convert.Pandoc, nil
	case "convert.pandoc_args":
		return c.Convert.PandocArgs, nil
	case "convert.chrome":
		return c.Convert.Chrome, nil
	}
	if f, ok := strings.CutPrefix(key, fallbackPrefix); ok && validFormat(f) {
		chain, _ := c.Fallback(f)
		return strings.Join(chain, ","), nil
	}
	if f, ok := strings.CutPrefix(key, templatePrefix); ok && slices.Contains(templateFormats, f) {
		return c.Template(f), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

func positive(key, value string) (*int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("%w: %s must be a positive integer", ErrInvalidValue, key)
	}
	return &n, nil
}

func duration(key, value string) (string, error) {
	if _, err := time.ParseDuration(value); err != nil {
		return "", fmt.Errorf("%w: %s must be a duration such as 30s or 5m", ErrInvalidValue, key)
	}
	return value, nil
}

// Set sets the value of a configuration key. The result is validated
// against the configured bounds.
func (c *Config) Set(key, value string) error {
	next := *c
	next.Convert.Fallback = cloneChains(c.Convert.Fallback)
	next.Convert.Template = maps.Clone(c.Convert.Template)
	if err := next.set(key, value); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

func (c *Config) set(key, value string) error {
	var err error
	switch key {
	case "author.name":
		c.Author.Name = value
	case "author.email":
		c.Author.Email = value
	case "limits.max_sections":
		c.Limits.MaxSections, err = positive(key, value)
	case "limits.max_section_size":
		c.Limits.MaxSectionSize, err = positive(key, value)
	case "limits.max_document_size":
		c.Limits.MaxDocumentSize, err = positive(key, value)
	case "lock.ttl":
		c.Lock.TTL, err = duration(key, value)
	case "lock.retries":
		n, convErr := strconv.Atoi(value)
		if convErr != nil || n < 0 {
			return fmt.Errorf("%w: lock.retries must be a non-negative integer", ErrInvalidValue)
		}
		c.Lock.Retries = &n
	case "lock.retry_delay":
		c.Lock.RetryDelay, err = duration(key, value)
	case "versions.keep":
		c.Versions.Keep, err = positive(key, value)
	case "convert.max_concurrent":
		c.Convert.MaxConcurrent, err = positive(key, value)
	case "convert.attempt_timeout":
		c.Convert.AttemptTimeout, err = duration(key, value)
	case "convert.output_dir":
		c.Convert.OutputDir = value
	case "convert.keep_tasks":
		c.Convert.KeepTasks, err = positive(key, value)
	case "convert.pandoc":
		c.Convert.Pandoc = value
	case "convert.pandoc_args":
		c.Convert.PandocArgs = value
	case "convert.chrome":
		c.Convert.Chrome = value
	default:
		if f, ok := strings.CutPrefix(key, templatePrefix); ok && slices.Contains(templateFormats, f) {
			if value == "" {
				delete(c.Convert.Template, f)
				return nil
			}
			if c.Convert.Template == nil {
				c.Convert.Template = make(map[string]string)
			}
			c.Convert.Template[f] = value
			return nil
		}
		f, ok := strings.CutPrefix(key, fallbackPrefix)
		if !ok || !validFormat(f) {
			return fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
		var chain []string
		for part := range strings.SplitSeq(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				chain = append(chain, part)
			}
		}
		if c.Convert.Fallback == nil {
			c.Convert.Fallback = make(map[string][]string)
		}
		c.Convert.Fallback[f] = chain
	}
	return err
}

func cloneChains(m map[string][]string) map[string][]string {
	if m == nil {
		return nil
	}
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

// All returns all configuration values as a map.
func (c *Config) All() map[string]string {
	out := make(map[string]string)
	for _, k := range ValidKeys() {
		v, _ := c.Get(k)
		out[k] = v
	}
	return out
}

// IsSet returns true if the key has an explicit value (not just defaults).
func (c *Config) IsSet(key string) bool {
	switch key {
	case "author.name":
		return c.Author.Name != ""
	case "author.email":
		return c.Author.Email != ""
	case "limits.max_sections":
		return c.Limits.MaxSections != nil
	case "limits.max_section_size":
		return c.Limits.MaxSectionSize != nil
	case "limits.max_document_size":
		return c.Limits.MaxDocumentSize != nil
	case "lock.ttl":
		return c.Lock.TTL != ""
	case "lock.retries":
		return c.Lock.Retries != nil
	case "lock.retry_delay":
		return c.Lock.RetryDelay != ""
	case "versions.keep":
		return c.Versions.Keep != nil
	case "convert.max_concurrent":
		return c.Convert.MaxConcurrent != nil
	case "convert.attempt_timeout":
		return c.Convert.AttemptTimeout != ""
	case "convert.output_dir":
		return c.Convert.OutputDir != ""
	case "convert.keep_tasks":
		return c.Convert.KeepTasks != nil
	case "convert.pandoc":
		return c.Convert.Pandoc != ""
	case "convert.pandoc_args":
		return c.Convert.PandocArgs != ""
	case "convert.chrome":
		return c.Convert.Chrome != ""
	}
	if f, ok := strings.CutPrefix(key, fallbackPrefix); ok {
		_, set := c.Convert.Fallback[f]
		return set
	}
	if f, ok := strings.CutPrefix(key, templatePrefix); ok {
		_, set := c.Convert.Template[f]
		return set
	}
	return false
}
