package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "emailtrace.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, logrus.WarnLevel, cfg.Level())
	assert.Equal(t, 24*time.Hour, cfg.GeoIP.CacheTTL)
	assert.True(t, cfg.Whois.Enabled)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
line_ending: DOS
log_level: debug
geoip:
  city_db: /srv/geoip/city.mmdb
  cache_path: /var/cache/emailtrace.db
  cache_ttl: 6h
whois:
  enabled: false
  timeout: 3s
`)

	cfg, err := Load(path, env(nil))
	require.NoError(t, err)
	assert.Equal(t, LineEndingDOS, cfg.LineEnding)
	assert.Equal(t, logrus.DebugLevel, cfg.Level())
	assert.Equal(t, "/srv/geoip/city.mmdb", cfg.GeoIP.CityDB)
	assert.Equal(t, "", cfg.GeoIP.ASNDB)
	assert.Equal(t, "/var/cache/emailtrace.db", cfg.GeoIP.CachePath)
	assert.Equal(t, 6*time.Hour, cfg.GeoIP.CacheTTL)
	assert.True(t, cfg.GeoIP.Enabled)
	assert.False(t, cfg.Whois.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Whois.Timeout)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "geoip:\n  city_db: /from/file.mmdb\nlog_level: info\n")

	cfg, err := Load(path, env(map[string]string{
		EnvCityDB:    "/from/env.mmdb",
		EnvASNDB:     "/from/env-asn.mmdb",
		EnvCachePath: "/tmp/cache.db",
		EnvLogLevel:  "trace",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/from/env.mmdb", cfg.GeoIP.CityDB)
	assert.Equal(t, "/from/env-asn.mmdb", cfg.GeoIP.ASNDB)
	assert.Equal(t, "/tmp/cache.db", cfg.GeoIP.CachePath)
	assert.Equal(t, logrus.TraceLevel, cfg.Level())
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		env      map[string]string
		errMsg   string
	}{
		{"malformed yaml", "line_ending: [unix", nil, "failed to parse config"},
		{"unknown line ending", "line_ending: mac", nil, "invalid line ending"},
		{"unknown log level", "", map[string]string{EnvLogLevel: "loud"}, "invalid log level"},
		{"negative ttl", "geoip:\n  cache_ttl: -1h", nil, "invalid cache ttl"},
		{"negative timeout", "whois:\n  timeout: -1s", nil, "invalid whois timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.contents), env(tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}
