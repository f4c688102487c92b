package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brewgator/lightning-rest/pkg/testutils"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	testutils.AssertNoError(t, err)

	testutils.AssertEqual(t, cfg.Server.Host, "127.0.0.1")
	testutils.AssertEqual(t, cfg.Server.Port, 7000)
	testutils.AssertEqual(t, cfg.Lightning.Network, "testnet")
	testutils.AssertEqual(t, cfg.Lightning.Mock, false)
	testutils.AssertEqual(t, cfg.Database.RetentionDays, 30)
	testutils.AssertEqual(t, cfg.RateLimit.Burst, 20)
	testutils.AssertEqual(t, cfg.Log.Level, "info")
	testutils.AssertEqual(t, cfg.Addr(), "127.0.0.1:7000")
	testutils.AssertEqual(t, cfg.RPCTimeout(), 30*time.Second)
	testutils.AssertEqual(t, cfg.Retention(), 30*24*time.Hour)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lightning-rest.yaml")
	content := `
server:
  host: 0.0.0.0
  port: 8080
lightning:
  rpc_path: /home/ln/.lightning/testnet/lightning-rpc
  network: regtest
database:
  path: /var/lib/lightning-rest/calls.db
rate_limit:
  requests_per_second: 5
  burst: 10
log:
  level: debug
`
	testutils.AssertNoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	testutils.AssertNoError(t, err)
	testutils.AssertEqual(t, cfg.Addr(), "0.0.0.0:8080")
	testutils.AssertEqual(t, cfg.Lightning.RPCPath, "/home/ln/.lightning/testnet/lightning-rpc")
	testutils.AssertEqual(t, cfg.Lightning.Network, "regtest")
	testutils.AssertEqual(t, cfg.Database.Path, "/var/lib/lightning-rest/calls.db")
	testutils.AssertEqual(t, cfg.RateLimit.RequestsPerSecond, 5.0)
	testutils.AssertEqual(t, cfg.RateLimit.Burst, 10)
	testutils.AssertEqual(t, cfg.Log.Level, "debug")
	testutils.AssertNoError(t, cfg.Validate())
}

func TestRetention(t *testing.T) {
	tests := []struct {
		name string
		days string
		want time.Duration
	}{
		{"zero falls back to the default", "0", 30 * 24 * time.Hour},
		{"explicit window", "7", 7 * 24 * time.Hour},
		{"negative keeps everything", "-1", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "lightning-rest.yaml")
			content := "database:\n  retention_days: " + tt.days + "\n"
			testutils.AssertNoError(t, os.WriteFile(path, []byte(content), 0600))

			cfg, err := Load(path)
			testutils.AssertNoError(t, err)
			testutils.AssertEqual(t, cfg.Retention(), tt.want)
		})
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LIGHTNING_REST_SERVER_PORT", "9100")
	t.Setenv("LIGHTNING_REST_LIGHTNING_MOCK", "true")

	cfg, err := Load()
	testutils.AssertNoError(t, err)
	testutils.AssertEqual(t, cfg.Server.Port, 9100)
	testutils.AssertEqual(t, cfg.Lightning.Mock, true)
	testutils.AssertNoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func() *Configuration {
		cfg, err := Load()
		testutils.AssertNoError(t, err)
		cfg.Lightning.Mock = true
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Configuration)
		wantErr string
	}{
		{"bad port", func(c *Configuration) { c.Server.Port = 70000 }, "invalid server port"},
		{"missing rpc path", func(c *Configuration) { c.Lightning.Mock = false }, "rpc_path is required"},
		{"negative rate", func(c *Configuration) { c.RateLimit.RequestsPerSecond = -1 }, "requests_per_second"},
		{"zero burst", func(c *Configuration) {
			c.RateLimit.RequestsPerSecond = 2
			c.RateLimit.Burst = 0
		}, "burst must be positive"},
		{"bad log level", func(c *Configuration) { c.Log.Level = "loud" }, "invalid log level"},
	}

	testutils.AssertNoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			testutils.AssertError(t, cfg.Validate(), tt.wantErr)
		})
	}
}
