package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, time.Minute, cfg.CacheTTL())

	ws, err := cfg.WeekStart()
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, ws)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"server":{"port":"9000"},"analytics":{"timezone":"Africa/Nairobi","week_start":"monday"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("SERVER_PORT", "9100")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "9100", cfg.Server.Port)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Africa/Nairobi", loc.String())

	ws, err := cfg.WeekStart()
	require.NoError(t, err)
	assert.Equal(t, time.Monday, ws)
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(*Config){
		"cache backend": func(c *Config) { c.Cache.Backend = "memcached" },
		"timezone":      func(c *Config) { c.Analytics.Timezone = "Mars/Olympus" },
		"week start":    func(c *Config) { c.Analytics.WeekStart = "funday" },
		"rate":          func(c *Config) { c.RateLimit.Rate = 0 },
		"retry":         func(c *Config) { c.Persistence.RetryMaxElapsedMs = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := LoadConfig("")
			require.NoError(t, err)
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCalendarHelpers_ReportErrors(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	cfg.Analytics.Timezone = "Mars/Olympus_Mons"
	_, err = cfg.Location()
	assert.Error(t, err)

	cfg.Analytics.WeekStart = "funday"
	_, err = cfg.WeekStart()
	assert.Error(t, err)
}
