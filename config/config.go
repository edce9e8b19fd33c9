// Package config reads the settings file shared by the bagger commands.
//
// The file is TOML:
//
//	checksum_types = ["sha1", "sha256"]
//	replica_cache  = "/replica-cache"
//	workers        = 4
//	log_level      = "info"
//	sentry_dsn     = ""
//
//	[audit]
//	rate     = 500      # MB/hour, 0 disables background checking
//	interval = "4320h"  # time between checks of a bag
//	port     = "14001"
//	mysql    = ""       # empty uses an embedded database in replica_cache
//	tokens   = ""       # file of API keys, empty allows everyone
package config

import (
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/replication/fixity"
)

// Defaults applied by Load and Default.
const (
	DefaultReplicaCache = "/replica-cache"
	DefaultPort         = "14001"
	DefaultLogLevel     = "info"
	DefaultAuditRate    = 500
	DefaultInterval     = 180 * 24 * time.Hour
)

// Config holds every setting. Use Load or Default to get one with the
// defaults filled in.
type Config struct {
	ChecksumTypes []string `toml:"checksum_types"`
	ReplicaCache  string   `toml:"replica_cache"`
	Workers       int      `toml:"workers"`
	LogLevel      string   `toml:"log_level"`
	SentryDSN     string   `toml:"sentry_dsn"`
	Audit         Audit    `toml:"audit"`

	types fixity.TypeSet
}

// Audit holds the settings for the fixity auditor and its status server.
type Audit struct {
	Rate     int64    `toml:"rate"`
	Interval Duration `toml:"interval"`
	Port     string   `toml:"port"`
	MySQL    string   `toml:"mysql"`
	Tokens   string   `toml:"tokens"`
}

// Duration is a time.Duration written as a string such as "72h".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration with time.ParseDuration.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when there is no file.
func Default() *Config {
	c := &Config{}
	c.Audit.Rate = DefaultAuditRate
	if err := c.finish(); err != nil {
		// the defaults are always valid
		panic(err)
	}
	return c
}

// Load reads the file at path. Settings missing from the file get their
// defaults. An error is returned if the file cannot be read or lists an
// unknown checksum type.
func Load(path string) (*Config, error) {
	c := &Config{}
	c.Audit.Rate = DefaultAuditRate
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	for _, key := range md.Undecoded() {
		log.WithField("key", key.String()).Warnln("Unknown configuration setting")
	}
	if err := c.finish(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return c, nil
}

func (c *Config) finish() error {
	if len(c.ChecksumTypes) == 0 {
		for _, t := range fixity.DefaultTypes() {
			c.ChecksumTypes = append(c.ChecksumTypes, string(t))
		}
	}
	types, err := fixity.ParseTypes(c.ChecksumTypes)
	if err != nil {
		return err
	}
	c.types = types
	if c.ReplicaCache == "" {
		c.ReplicaCache = DefaultReplicaCache
	}
	if c.Workers <= 0 {
		c.Workers = fixity.DefaultWorkers
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Audit.Rate < 0 {
		return errors.Errorf("audit rate %d is negative", c.Audit.Rate)
	}
	if c.Audit.Interval.Duration <= 0 {
		c.Audit.Interval.Duration = DefaultInterval
	}
	if c.Audit.Port == "" {
		c.Audit.Port = DefaultPort
	}
	return nil
}

// Types returns the validated checksum types.
func (c *Config) Types() fixity.TypeSet {
	return append(fixity.TypeSet(nil), c.types...)
}

// SetTypes replaces the checksum types, for example from a command line
// flag.
func (c *Config) SetTypes(names []string) error {
	types, err := fixity.ParseTypes(names)
	if err != nil {
		return err
	}
	c.ChecksumTypes = names
	c.types = types
	return nil
}

// DatabasePath is where the embedded fixity database is kept when no MySQL
// server is configured.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.ReplicaCache, "fixity.ql")
}
