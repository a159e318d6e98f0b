// Package config loads emailtrace settings from an optional YAML file and
// the environment.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file
const (
	EnvCityDB    = "GEOIP_DB_PATH"
	EnvASNDB     = "GEOIP_ASN_DB_PATH"
	EnvCachePath = "EMAILTRACE_CACHE_PATH"
	EnvLogLevel  = "EMAILTRACE_LOG_LEVEL"
)

// Line ending names accepted by LineEnding. Auto is resolved by the caller
// from the raw message.
const (
	LineEndingAuto = "auto"
	LineEndingUnix = "unix"
	LineEndingDOS  = "dos"
)

type Config struct {
	LineEnding string `yaml:"line_ending"`
	LogLevel   string `yaml:"log_level"`
	GeoIP      GeoIP  `yaml:"geoip"`
	Whois      Whois  `yaml:"whois"`
}

type GeoIP struct {
	Enabled   bool          `yaml:"enabled"`
	CityDB    string        `yaml:"city_db"`
	ASNDB     string        `yaml:"asn_db"`
	CachePath string        `yaml:"cache_path"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

type Whois struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the settings used when nothing is configured
func Default() *Config {
	return &Config{
		LineEnding: LineEndingAuto,
		LogLevel:   logrus.WarnLevel.String(),
		GeoIP: GeoIP{
			Enabled:  true,
			CacheTTL: 24 * time.Hour,
		},
		Whois: Whois{
			Enabled: true,
			Timeout: 10 * time.Second,
		},
	}
}

// Load reads the file at path over the defaults and then applies the
// environment. An empty path skips the file. getenv is usually os.Getenv.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to read config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, eris.Wrapf(err, "failed to parse config %s", path)
		}
	}

	if getenv != nil {
		cfg.applyEnv(getenv)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvCityDB); v != "" {
		c.GeoIP.CityDB = v
	}
	if v := getenv(EnvASNDB); v != "" {
		c.GeoIP.ASNDB = v
	}
	if v := getenv(EnvCachePath); v != "" {
		c.GeoIP.CachePath = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the values a flag or file may have set
func (c *Config) Validate() error {
	switch strings.ToLower(c.LineEnding) {
	case LineEndingAuto, LineEndingUnix, LineEndingDOS:
		c.LineEnding = strings.ToLower(c.LineEnding)
	default:
		return eris.Errorf("invalid line ending %q (want auto, unix or dos)", c.LineEnding)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return eris.Wrapf(err, "invalid log level %q", c.LogLevel)
	}
	if c.GeoIP.CacheTTL < 0 {
		return eris.Errorf("invalid cache ttl %s", c.GeoIP.CacheTTL)
	}
	if c.Whois.Timeout < 0 {
		return eris.Errorf("invalid whois timeout %s", c.Whois.Timeout)
	}
	return nil
}

// Level returns the parsed log level, falling back to warn
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.WarnLevel
	}
	return level
}
