package cliconfig

import (
	"errors"
	"testing"
	"time"

	"github.com/bft-labs/insitu/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MetadataFormat != domain.FormatMicroManager {
		t.Errorf("MetadataFormat = %v, want %v", cfg.MetadataFormat, domain.FormatMicroManager)
	}
	if cfg.Bundler != DefaultBundler {
		t.Errorf("Bundler = %v, want %v", cfg.Bundler, DefaultBundler)
	}
	if cfg.StoragePrefix != DefaultStoragePrefix {
		t.Errorf("StoragePrefix = %v, want %v", cfg.StoragePrefix, DefaultStoragePrefix)
	}
	if cfg.ChecksumWorkers != 1 {
		t.Errorf("ChecksumWorkers = %v, want 1", cfg.ChecksumWorkers)
	}
	if len(cfg.Positions) != 1 || cfg.Positions[0] != 0 {
		t.Errorf("Positions = %v, want [0]", cfg.Positions)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.DBPath = "/data/imaging.db"
		return cfg
	}

	tests := []struct {
		name           string
		mutate         func(*Config)
		wantErr        bool
		wantStorageURL string
	}{
		{
			name:   "valid defaults with db path",
			mutate: func(*Config) {},
		},
		{
			name:    "missing db path",
			mutate:  func(c *Config) { c.DBPath = "" },
			wantErr: true,
		},
		{
			name:    "unknown metadata format",
			mutate:  func(c *Config) { c.MetadataFormat = "leica" },
			wantErr: true,
		},
		{
			name:    "negative time",
			mutate:  func(c *Config) { c.Time = -1 },
			wantErr: true,
		},
		{
			name:    "negative position",
			mutate:  func(c *Config) { c.Positions = []int{0, -2} },
			wantErr: true,
		},
		{
			name: "storage dir and url together",
			mutate: func(c *Config) {
				c.StorageDir = "/mnt"
				c.StorageURL = "http://localhost"
			},
			wantErr: true,
		},
		{
			name:           "trailing slash stripped from storage url",
			mutate:         func(c *Config) { c.StorageURL = "http://localhost:9000/bucket/" },
			wantStorageURL: "http://localhost:9000/bucket",
		},
		{
			name:    "zero checksum workers",
			mutate:  func(c *Config) { c.ChecksumWorkers = 0 },
			wantErr: true,
		},
		{
			name:    "bad checksum source",
			mutate:  func(c *Config) { c.ChecksumSource = "md5" },
			wantErr: true,
		},
		{
			name:    "zero http timeout",
			mutate:  func(c *Config) { c.HTTPTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "loud" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("Validate() error = %v, want ErrConfiguration", err)
			}
			if tt.wantStorageURL != "" && cfg.StorageURL != tt.wantStorageURL {
				t.Errorf("StorageURL = %v, want %v", cfg.StorageURL, tt.wantStorageURL)
			}
		})
	}
}

func TestConfig_ValidateNormalizes(t *testing.T) {
	cfg := Config{
		DBPath:          "db",
		MetadataFormat:  "MicroManager",
		ChecksumWorkers: 2,
		HTTPTimeout:     time.Second,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.MetadataFormat != domain.FormatMicroManager {
		t.Errorf("MetadataFormat = %v", cfg.MetadataFormat)
	}
	if cfg.OutputDir != "." || cfg.Bundler != DefaultBundler || cfg.ChecksumSource != "content" {
		t.Errorf("derived defaults not set: %+v", cfg)
	}
}
