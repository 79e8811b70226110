package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 40*time.Second, cfg.Delta.StalenessWindow.Duration)
	assert.Equal(t, []string{"NY", "LONDON", "OTHER"}, []string{cfg.Delta.Groups[0].Name, cfg.Delta.Groups[1].Name, cfg.Delta.Groups[2].Name})
	assert.Len(t, cfg.Delta.GroupBrokers("LONDON"), 20)
	assert.NotContains(t, cfg.Delta.GroupBrokers("LONDON"), "BROKER_LONDON14")
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "detect"

[run]
dates = ["01-02-2024", "02-02-2024"]

[delta]
staleness_window = "300ms"
reporting_group = "EU"

[[delta.groups]]
name = "EU"
brokers = ["X", "Y"]

[[delta.aliases]]
contains = "EU"
segment = 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "detect", cfg.Mode)
	assert.Equal(t, []string{"01-02-2024", "02-02-2024"}, cfg.Run.Dates)
	assert.Equal(t, 300*time.Millisecond, cfg.Delta.StalenessWindow.Duration)
	assert.Equal(t, []GroupConfig{{Name: "EU", Brokers: []string{"X", "Y"}}}, cfg.Delta.Groups)
	assert.Equal(t, []AliasConfig{{Contains: "EU", Segment: 0}}, cfg.Delta.Aliases)
	assert.Equal(t, 7, cfg.Run.StartHour)
}

func TestLoad_KeepsDefaultGroupsWhenAbsent(t *testing.T) {
	cfg, err := Load(writeConfig(t, `log_level = "debug"`))
	require.NoError(t, err)

	assert.Equal(t, Defaults().Delta.Groups, cfg.Delta.Groups)
	assert.Equal(t, Defaults().Delta.Aliases, cfg.Delta.Aliases)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DELTASYNC_MODE", "detect")
	t.Setenv("DELTASYNC_DELTA_THRESHOLD", "-0.0005")
	t.Setenv("DELTASYNC_RUN_DATES", "03-04-2024, 04-04-2024")
	t.Setenv("DELTASYNC_REDIS_ADDR", "redis:6380")
	t.Setenv("DELTASYNC_RUN_LOCK_TTL", "5m")

	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "detect", cfg.Mode)
	assert.Equal(t, -0.0005, cfg.Delta.Threshold)
	assert.Equal(t, []string{"03-04-2024", "04-04-2024"}, cfg.Run.Dates)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Run.LockTTL.Duration)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestValidate_CollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Run.StartHour = 19
	cfg.Run.Dates = []string{"2024-03-14"}
	cfg.Delta.StalenessWindow.Duration = 0
	cfg.Delta.ReportingGroup = "TOKYO"
	cfg.Delta.Groups = append(cfg.Delta.Groups, GroupConfig{Name: "DUP", Brokers: []string{"PARIS"}})
	cfg.Delta.Aliases = append(cfg.Delta.Aliases, AliasConfig{Segment: 1})

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		"hour window 19-18",
		`date "2024-03-14"`,
		"staleness_window must be > 0",
		`reporting_group "TOKYO"`,
		`broker "PARIS" is in groups "OTHER" and "DUP"`,
		"alias 2: contains must not be empty",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_DetectSkipsSupabase(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "detect"
	cfg.Supabase.Host = ""
	cfg.Supabase.PoolMaxConns = 0

	assert.NoError(t, cfg.Validate())

	cfg.Mode = "reconcile"
	assert.Error(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Supabase.Password = "pw"
	cfg.S3.SecretKey = "secret"
	cfg.Notify.TelegramToken = "tok"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Supabase.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Empty(t, out.Redis.Password)
	assert.Equal(t, "pw", cfg.Supabase.Password)

	out.Delta.Groups[0].Brokers[0] = "CHANGED"
	assert.Equal(t, "BROKER_NY_A", cfg.Delta.Groups[0].Brokers[0])
}
