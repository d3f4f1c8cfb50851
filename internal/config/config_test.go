package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "http://www.localdata.go.kr/platform/rest/TO0/openDataApi", cfg.LocalData.BaseURL)
	assert.Equal(t, 500, cfg.LocalData.PageSize)
	assert.Zero(t, cfg.LocalData.MaxPages)
	assert.InDelta(t, 5.0, cfg.LocalData.RateLimit, 0.001)
	assert.Equal(t, 4, cfg.LocalData.Concurrency)
	assert.Equal(t, 30, cfg.LocalData.TimeoutSecs)
	assert.Equal(t, 3, cfg.LocalData.MaxAttempts)
	assert.True(t, cfg.LocalData.OnlyOperating)
	assert.Empty(t, cfg.Geo.StationsFile)
	assert.Zero(t, cfg.Geo.MaxStationDistanceM)
	assert.True(t, cfg.Dedup.CheckBizID)
	assert.InDelta(t, 0.8, cfg.Dedup.SimilarityThreshold, 0.001)
	assert.True(t, cfg.Dedup.DisplaySimilarity)
	assert.Equal(t, 100, cfg.Dedup.DeleteBatchSize)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: leads.db
localdata:
  service_ids: ["01_01_02_P", "07_24_04_P"]
  page_size: 100
geo:
  max_station_distance_m: 1500
dedup:
  check_biz_id: false
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "leads.db", cfg.Store.DatabaseURL)
	assert.Equal(t, []string{"01_01_02_P", "07_24_04_P"}, cfg.LocalData.ServiceIDs)
	assert.Equal(t, 100, cfg.LocalData.PageSize)
	assert.InDelta(t, 1500.0, cfg.Geo.MaxStationDistanceM, 0.001)
	assert.False(t, cfg.Dedup.CheckBizID)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 4, cfg.LocalData.Concurrency)
	assert.Equal(t, 100, cfg.Dedup.DeleteBatchSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("LEADOPS_STORE_DRIVER", "postgres")
	t.Setenv("LEADOPS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("LEADOPS_SERVER_PORT", "3000")
	t.Setenv("LEADOPS_LOCALDATA_KEY", "secret")
	t.Setenv("LEADOPS_DEDUP_SIMILARITY_THRESHOLD", "0.9")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.LocalData.Key)
	assert.InDelta(t, 0.9, cfg.Dedup.SimilarityThreshold, 0.001)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
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
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/leads"
	cfg.LocalData.Key = "key"
	cfg.LocalData.PageSize = 500
	cfg.LocalData.Concurrency = 4
	cfg.LocalData.RateLimit = 5
	cfg.Dedup.SimilarityThreshold = 0.8
	cfg.Dedup.DeleteBatchSize = 100
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_AllModes(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"migrate", "ingest", "dedup", "serve"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateIngest_MissingKey(t *testing.T) {
	cfg := validDefaults()
	cfg.LocalData.Key = ""

	err := cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "localdata.key is required")

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.Driver = "sqlite"
	assert.NoError(t, cfg.Validate("migrate"))

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateLocalDataBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.LocalData.PageSize = 0
	err := cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page_size")

	cfg.LocalData.PageSize = 1000
	cfg.LocalData.Concurrency = 33
	err = cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency")

	cfg.LocalData.Concurrency = 1
	cfg.LocalData.RateLimit = 0
	err = cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit")

	cfg.LocalData.RateLimit = 1
	assert.NoError(t, cfg.Validate("ingest"))
}

func TestValidateDedup(t *testing.T) {
	cfg := validDefaults()

	cfg.Dedup.SimilarityThreshold = 1.2
	err := cfg.Validate("dedup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "similarity_threshold")

	cfg.Dedup.SimilarityThreshold = 1
	cfg.Dedup.DeleteBatchSize = 0
	err = cfg.Validate("dedup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete_batch_size")

	cfg.Dedup.DeleteBatchSize = 1
	cfg.Geo.MaxStationDistanceM = -1
	err = cfg.Validate("dedup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_station_distance_m")
}
