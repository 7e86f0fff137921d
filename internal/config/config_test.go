package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "fiscal.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8, cfg.Analyze.Workers)
	assert.False(t, cfg.Reports.XLSX)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(64), cfg.Server.MaxUploadMB)
	assert.InDelta(t, 1.0, cfg.Server.RatePerSecond, 0.001)
	assert.Equal(t, 5, cfg.Server.RateBurst)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Contains(t, cfg.Server.BaseDir, "analyze_files")
	assert.Equal(t, 30, cfg.FTP.TimeoutSecs)
	assert.Equal(t, 3, cfg.FTP.MaxRetries)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/fiscal
log:
  level: debug
  format: console
server:
  port: 9090
analyze:
  workers: 4
  copy_numbers: "3, 10"
reports:
  xlsx: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Analyze.Workers)
	assert.Equal(t, "3, 10", cfg.Analyze.CopyNumbers)
	assert.True(t, cfg.Reports.XLSX)
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.FTP.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("FISCAL_STORE_DRIVER", "sqlite")
	t.Setenv("FISCAL_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("FISCAL_SERVER_PORT", "3000")
	t.Setenv("FISCAL_FTP_USER", "batch")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "batch", cfg.FTP.User)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "fiscal.db"
	cfg.Analyze.Workers = 8
	cfg.Server.Port = 8080
	cfg.Server.MaxUploadMB = 64
	cfg.Server.RatePerSecond = 1.0
	cfg.Server.RateBurst = 5
	return cfg
}

func TestValidateAnalyze_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Analyze.Source = "/dados/notas"
	cfg.Analyze.Dest = "/dados/saida"

	assert.NoError(t, cfg.Validate("analyze"))
}

func TestValidateAnalyze_MissingFields(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("analyze")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "analyze.source is required")
	assert.Contains(t, err.Error(), "analyze.dest is required")
}

func TestValidateAnalyze_WorkerBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Analyze.Source = "/dados/notas"
	cfg.Analyze.Dest = "/dados/saida"

	cfg.Analyze.Workers = 0
	err := cfg.Validate("analyze")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "analyze.workers must be between 1 and 64")

	cfg.Analyze.Workers = 65
	err = cfg.Validate("analyze")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "analyze.workers must be between 1 and 64")

	cfg.Analyze.Workers = 64
	assert.NoError(t, cfg.Validate("analyze"))
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServe_UploadBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Server.MaxUploadMB = 0
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.max_upload_mb must be between 1 and 1024")

	cfg.Server.MaxUploadMB = 2048
	err = cfg.Validate("serve")
	assert.Error(t, err)

	cfg.Server.MaxUploadMB = 64
	cfg.Server.RatePerSecond = 0
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.rate_per_second must be > 0")
}

func TestValidateRuns_BadDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "oracle"

	err := cfg.Validate("runs")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
