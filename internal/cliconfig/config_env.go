package cliconfig

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/bft-labs/insitu/internal/domain"
)

// EnvPrefix prefixes every environment variable read by insitu.
const EnvPrefix = "INSITU_"

// EnvConfig is the raw environment view of Config. Numbers and booleans stay
// strings so that an unset variable never overrides a file value.
type EnvConfig struct {
	DBPath          string `env:"DB_PATH"`
	MetadataFormat  string `env:"METADATA_FORMAT"`
	Time            string `env:"TIME"`
	Positions       []int  `env:"POSITIONS" envSeparator:","`
	OutputDir       string `env:"OUTPUT_DIR"`
	StorageDir      string `env:"STORAGE_DIR"`
	StorageURL      string `env:"STORAGE_URL"`
	StoragePrefix   string `env:"STORAGE_PREFIX"`
	Bundler         string `env:"BUNDLER"`
	ChecksumWorkers string `env:"CHECKSUM_WORKERS"`
	ChecksumSource  string `env:"CHECKSUM_SOURCE"`
	HTTPTimeout     string `env:"HTTP_TIMEOUT"`
	StrictRounds    string `env:"STRICT_ROUNDS"`
	LogLevel        string `env:"LOG_LEVEL"`
}

// LoadEnvConfig decodes the INSITU_* environment variables.
func LoadEnvConfig() (EnvConfig, error) {
	var ec EnvConfig
	if err := env.ParseWithOptions(&ec, env.Options{Prefix: EnvPrefix}); err != nil {
		return ec, fmt.Errorf("%w: environment: %w", domain.ErrConfiguration, err)
	}
	return ec, nil
}

// ApplyEnvConfig applies configuration from environment variables (INSITU_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	ec, err := LoadEnvConfig()
	if err != nil {
		return err
	}
	s := newConfigSetter(changed)

	s.setString("db-path", ec.DBPath, &cfg.DBPath)
	s.setString("metadata-format", ec.MetadataFormat, &cfg.MetadataFormat)
	s.setString("output-dir", ec.OutputDir, &cfg.OutputDir)
	s.setString("storage-dir", ec.StorageDir, &cfg.StorageDir)
	s.setString("storage-url", ec.StorageURL, &cfg.StorageURL)
	s.setString("storage-prefix", ec.StoragePrefix, &cfg.StoragePrefix)
	s.setString("bundler", ec.Bundler, &cfg.Bundler)
	s.setString("checksum-source", ec.ChecksumSource, &cfg.ChecksumSource)
	s.setString("log-level", ec.LogLevel, &cfg.LogLevel)
	s.setInts("positions", ec.Positions, &cfg.Positions)

	if err := s.setIntFromString("time", ec.Time, &cfg.Time); err != nil {
		return err
	}
	if err := s.setIntFromString("checksum-workers", ec.ChecksumWorkers, &cfg.ChecksumWorkers); err != nil {
		return err
	}
	if err := s.setDuration("http-timeout", ec.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}

	s.setBoolFromString("strict-rounds", ec.StrictRounds, &cfg.StrictRounds)

	return nil
}
