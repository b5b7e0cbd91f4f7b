package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RegionMetrics/internal/aggregate"
	"RegionMetrics/internal/canon"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		configPathEnv, dataDirEnv, snapshotPathEnv, logLevelEnv, serverAddrEnv, databaseDSNEnv,
		forecastURLEnv, forecastAPIKeyEnv, telegramTokenEnv, telegramChatIDEnv,
	} {
		t.Setenv(key, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Len(t, cfg.Canonical.Entities, 36)
	assert.Equal(t, "ODISHA", cfg.Canonical.Aliases["ORISSA"])
	assert.Equal(t, "TELANGANA", cfg.Canonical.Reassignments["WARANGAL"])
	assert.Equal(t, aggregate.DefaultSettings(), cfg.Aggregation)
	assert.Equal(t, []float64{0.05, 0.05, 0.05}, cfg.Forecast.Steps)
	assert.Equal(t, time.UTC.String(), cfg.Scheduler.Location().String())
}

func TestLoadMergesFile(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
logging:
  level: debug
input:
  baseDir: /srv/batches
  dirs:
    biometric: bio_updates
  schemas:
    biometric:
      volume: [bio_total]
aggregation:
  mode: monthly_mean
  ratioCeiling: 0.9
snapshot:
  path: /srv/out/metrics.json
  disableManifest: true
forecast:
  modelFile: /srv/model.json
  steps: [0.1]
server:
  cacheTtl: 5s
  allowedOrigins: ["https://dash.example.org"]
scheduler:
  timezone: Asia/Kolkata
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/srv/batches", cfg.Input.BaseDir)
	assert.Equal(t, "bio_updates", cfg.Input.Dirs["biometric"])
	assert.Equal(t, []string{"bio_total"}, cfg.Input.Schemas["biometric"].Volume)
	assert.Equal(t, "*.csv", cfg.Input.Pattern)
	assert.Equal(t, aggregate.ModeMonthlyMean, cfg.Aggregation.Mode)
	assert.Equal(t, 0.9, cfg.Aggregation.RatioCeiling)
	assert.Equal(t, 0.12, cfg.Aggregation.RatioFloor)
	assert.True(t, cfg.Snapshot.DisableManifest)
	assert.Equal(t, []float64{0.1}, cfg.Forecast.Steps)
	assert.Equal(t, 3, cfg.Forecast.Horizon)
	assert.Equal(t, 5*time.Second, cfg.Server.CacheTTL)
	assert.Equal(t, []string{"https://dash.example.org"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "Asia/Kolkata", cfg.Scheduler.Location().String())
	assert.Len(t, cfg.Canonical.Entities, 36)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "input:\n  baseDir: /from/file\ndatabase:\n  dsn: postgres://file\n")
	t.Setenv(configPathEnv, path)
	t.Setenv(dataDirEnv, "/from/env")
	t.Setenv(databaseDSNEnv, "postgres://env")
	t.Setenv(forecastURLEnv, "http://forecast:8000")
	t.Setenv(telegramChatIDEnv, "42")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.Input.BaseDir)
	assert.Equal(t, "postgres://env", cfg.Database.DSN)
	assert.Equal(t, "http://forecast:8000", cfg.Forecast.URL)
	assert.Equal(t, "42", cfg.Notifications.Telegram.ChatID)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "input: [not, a, map"))
	require.Error(t, err)
}

func TestUnknownTimezoneFallsBack(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeConfig(t, "scheduler:\n  timezone: Mars/Olympus\n"))
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.Scheduler.Location().String())
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Input.BaseDir = ""
	cfg.Aggregation.RatioFloor = 0.99
	cfg.Forecast.Steps = []float64{-1.5}
	cfg.Canonical.Entities = nil

	err = cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "input.baseDir")
	assert.Contains(t, msg, "aggregation")
	assert.Contains(t, msg, "forecast.steps")
	assert.Contains(t, msg, "canonical.entities")
}

func TestDefaultTablesAreNotShared(t *testing.T) {
	clearEnv(t)

	a, err := Load("")
	require.NoError(t, err)
	a.Canonical.Aliases["ORISSA"] = "KERALA"

	b, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ODISHA", b.Canonical.Aliases["ORISSA"])
}

func TestExplicitZeroValuesAreKept(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeConfig(t, `
aggregation:
  ratioFloor: 0
  ratioCeiling: 1
server:
  cacheTtl: 0s
snapshot:
  disableManifest: false
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.0, cfg.Aggregation.RatioFloor)
	assert.Equal(t, 1.0, cfg.Aggregation.RatioCeiling)
	assert.Equal(t, time.Duration(0), cfg.Server.CacheTTL)
	assert.Equal(t, 1.0, cfg.Aggregation.Epsilon)
	assert.Equal(t, ":5001", cfg.Server.Addr)
}

func TestNarrowedEntitiesDropForeignTables(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeConfig(t, `
canonical:
  entities: [ODISHA, GOA]
  aliases:
    KALINGA: ODISHA
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"ODISHA", "GOA"}, cfg.Canonical.Entities)
	assert.Equal(t, "ODISHA", cfg.Canonical.Aliases["ORISSA"])
	assert.Equal(t, "ODISHA", cfg.Canonical.Aliases["KALINGA"])
	assert.NotContains(t, cfg.Canonical.Aliases, "PONDICHERRY")
	assert.Empty(t, cfg.Canonical.Reassignments)

	universe := canon.NewUniverse(cfg.Canonical.Entities)
	_, err = canon.NewCanonicalizer(universe, cfg.Canonical.Aliases)
	require.NoError(t, err)
	_, err = canon.NewReassigner(universe, cfg.Canonical.Reassignments)
	require.NoError(t, err)
}

func TestFileAliasesExtendBuiltins(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeConfig(t, "canonical:\n  aliases:\n    KALINGA: ODISHA\n"))
	require.NoError(t, err)
	assert.Len(t, cfg.Canonical.Entities, 36)
	assert.Equal(t, "ODISHA", cfg.Canonical.Aliases["KALINGA"])
	assert.Equal(t, "PUDUCHERRY", cfg.Canonical.Aliases["PONDICHERRY"])
	assert.Equal(t, "TELANGANA", cfg.Canonical.Reassignments["WARANGAL"])
}
