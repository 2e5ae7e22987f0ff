package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/insitu/internal/adapters/exec"
	"github.com/bft-labs/insitu/internal/domain"
)

// Defaults of the experiment tooling.
const (
	DefaultBundler       = exec.DefaultBundler
	DefaultStoragePrefix = "/Volumes/imaging/czbiohub-imaging/"
)

// Config holds CLI configuration for insitu.
type Config struct {
	DBPath         string
	MetadataFormat string
	Time           int
	Positions      []int

	OutputDir     string
	StorageDir    string
	StorageURL    string
	StoragePrefix string
	Bundler       string

	ChecksumWorkers int
	ChecksumSource  string
	HTTPTimeout     time.Duration
	StrictRounds    bool
	LogLevel        string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		MetadataFormat:  domain.FormatMicroManager,
		Positions:       []int{0},
		OutputDir:       ".",
		StoragePrefix:   DefaultStoragePrefix,
		Bundler:         DefaultBundler,
		ChecksumWorkers: 1,
		ChecksumSource:  "content",
		HTTPTimeout:     30 * time.Second,
		LogLevel:        "info",
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%w: db-path is required", domain.ErrConfiguration)
	}
	if _, err := domain.LookupMetadataKeys(c.MetadataFormat); err != nil {
		return err
	}
	c.MetadataFormat = strings.ToLower(c.MetadataFormat)

	if c.Time < 0 {
		return fmt.Errorf("%w: time must not be negative", domain.ErrConfiguration)
	}
	for _, p := range c.Positions {
		if p < 0 {
			return fmt.Errorf("%w: negative position %d", domain.ErrConfiguration, p)
		}
	}

	if c.StorageDir != "" && c.StorageURL != "" {
		return fmt.Errorf("%w: storage-dir and storage-url are mutually exclusive", domain.ErrConfiguration)
	}
	c.StorageURL = strings.TrimRight(c.StorageURL, "/")

	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.Bundler == "" {
		c.Bundler = DefaultBundler
	}

	if c.ChecksumWorkers <= 0 {
		return fmt.Errorf("%w: checksum workers must be positive", domain.ErrConfiguration)
	}
	switch c.ChecksumSource {
	case "":
		c.ChecksumSource = "content"
	case "content", "recorded":
	default:
		return fmt.Errorf("%w: checksum source must be content or recorded, got %q", domain.ErrConfiguration, c.ChecksumSource)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("%w: http timeout must be positive", domain.ErrConfiguration)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log level: %w", domain.ErrConfiguration, err)
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setIntPtr sets an int value from a pointer, so zero can be configured.
func (s *configSetter) setIntPtr(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setInts replaces a list if the new one is not empty and flag not changed.
func (s *configSetter) setInts(flag string, value []int, dst *[]int) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = append([]int(nil), value...)
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%w: parse %s: %w", domain.ErrConfiguration, flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Zero is accepted; negative values are rejected by Validate.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%w: parse %s: %w", domain.ErrConfiguration, flag, err)
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
