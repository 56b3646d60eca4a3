package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "memory", cfg.Storage.Provider)
	require.Equal(t, 1200*time.Second, cfg.CrawlTimeout())
	require.Equal(t, 24*time.Hour, cfg.ResultTTL())
	require.Equal(t, time.Hour, cfg.CacheTTL())
	require.Equal(t, 5, cfg.Notify.Attempts)

	windows, err := cfg.RateWindows()
	require.NoError(t, err)
	require.Len(t, windows, 3)
	require.Equal(t, RateWindow{Seconds: 60, Limit: 3}, windows[0])
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
storage:
  provider: postgres
database:
  dsn: postgres://localhost/diskseek
crawl:
  workers: 4
  timeout_seconds: 600
admission:
  windows: ["10:1"]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "postgres", cfg.Storage.Provider)
	require.Equal(t, 4, cfg.Crawl.Workers)
	require.Equal(t, 600*time.Second, cfg.CrawlTimeout())

	windows, err := cfg.RateWindows()
	require.NoError(t, err)
	require.Equal(t, []RateWindow{{Seconds: 10, Limit: 1}}, windows)
}

func TestValidate_Rejections(t *testing.T) {
	cases := map[string]func(*Config){
		"zero port":           func(c *Config) { c.Server.Port = 0 },
		"unknown provider":    func(c *Config) { c.Storage.Provider = "sqlite" },
		"postgres needs dsn":  func(c *Config) { c.Storage.Provider = "postgres"; c.Database.DSN = "" },
		"zero workers":        func(c *Config) { c.Crawl.Workers = 0 },
		"zero timeout":        func(c *Config) { c.Crawl.TimeoutSeconds = 0 },
		"bad window":          func(c *Config) { c.Admission.Windows = []string{"nope"} },
		"non-positive window": func(c *Config) { c.Admission.Windows = []string{"0:5"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
