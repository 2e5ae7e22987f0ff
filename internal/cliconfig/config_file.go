package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	DBPath          string `toml:"db_path"`
	MetadataFormat  string `toml:"metadata_format"`
	Time            *int   `toml:"time"`
	Positions       []int  `toml:"positions"`
	OutputDir       string `toml:"output_dir"`
	StorageDir      string `toml:"storage_dir"`
	StorageURL      string `toml:"storage_url"`
	StoragePrefix   string `toml:"storage_prefix"`
	Bundler         string `toml:"bundler"`
	ChecksumWorkers int    `toml:"checksum_workers"`
	ChecksumSource  string `toml:"checksum_source"`
	HTTPTimeout     string `toml:"http_timeout"`
	StrictRounds    *bool  `toml:"strict_rounds"`
	LogLevel        string `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.insitu/config.toml, or "" without a home directory.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".insitu", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("db-path", fc.DBPath, &cfg.DBPath)
	s.setString("metadata-format", fc.MetadataFormat, &cfg.MetadataFormat)
	s.setString("output-dir", fc.OutputDir, &cfg.OutputDir)
	s.setString("storage-dir", fc.StorageDir, &cfg.StorageDir)
	s.setString("storage-url", fc.StorageURL, &cfg.StorageURL)
	s.setString("storage-prefix", fc.StoragePrefix, &cfg.StoragePrefix)
	s.setString("bundler", fc.Bundler, &cfg.Bundler)
	s.setString("checksum-source", fc.ChecksumSource, &cfg.ChecksumSource)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	s.setIntPtr("time", fc.Time, &cfg.Time)
	s.setInts("positions", fc.Positions, &cfg.Positions)
	s.setInt("checksum-workers", fc.ChecksumWorkers, &cfg.ChecksumWorkers)

	if err := s.setDuration("http-timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}

	s.setBool("strict-rounds", fc.StrictRounds, &cfg.StrictRounds)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
