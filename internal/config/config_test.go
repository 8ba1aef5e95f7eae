package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"STOCKWATCH_DATABASE_URL", "STOCKWATCH_CHECK_INTERVAL", "STOCKWATCH_AGGREGATION_INTERVAL",
		"STOCKWATCH_COOLDOWN_SECONDS", "STOCKWATCH_FETCH_TIMEOUT", "STOCKWATCH_MAX_WORKERS",
		"STOCKWATCH_PER_HOST_MIN_DELAY", "STOCKWATCH_CONFIDENCE_THRESHOLD", "STOCKWATCH_ENABLE_RENDER",
		"STOCKWATCH_MAX_BROWSERS", "STOCKWATCH_DAILY_ADD_LIMIT", "STOCKWATCH_ADMIN_IDS",
		"STOCKWATCH_HTTP_ADDR", "STOCKWATCH_JWT_SIGNING_KEY", "STOCKWATCH_SENDGRID_API_KEY",
		"STOCKWATCH_FROM_EMAIL", "STOCKWATCH_FROM_NAME", "STOCKWATCH_REDIS_URL",
	}
	for _, k := range keys {
		os.Unsetenv(k)
		t.Cleanup(func(k string) func() { return func() { os.Unsetenv(k) } }(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "sqlite://./data/stockwatch.db", cfg.DatabaseURL)
	require.Equal(t, 8, cfg.MaxWorkers)
	require.InDelta(t, 1.0,
		cfg.DetectorWeights.Keyword+cfg.DetectorWeights.Dom+cfg.DetectorWeights.APIProbe+cfg.DetectorWeights.Fingerprint,
		0.0001)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("STOCKWATCH_MAX_WORKERS", "16")
	os.Setenv("STOCKWATCH_CHECK_INTERVAL", "90s")
	os.Setenv("STOCKWATCH_ADMIN_IDS", "alice,bob")
	os.Setenv("STOCKWATCH_ENABLE_RENDER", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 16, cfg.MaxWorkers)
	require.Equal(t, 90*time.Second, cfg.CheckInterval)
	require.True(t, cfg.IsAdmin("alice"))
	require.True(t, cfg.IsAdmin("bob"))
	require.False(t, cfg.IsAdmin("carol"))
	require.True(t, cfg.EnableRender)
}

func TestValidate_RejectsBadDatabaseURL(t *testing.T) {
	cfg := Default()
	cfg.DatabaseURL = "mysql://unsupported"
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveMaxWorkers(t *testing.T) {
	cfg := Default()
	cfg.MaxWorkers = 0
	require.Error(t, cfg.Validate())
}

func TestValidate_NormalizesDetectorWeights(t *testing.T) {
	cfg := Default()
	cfg.DetectorWeights = DetectorWeights{Keyword: 1, Dom: 1, APIProbe: 1, Fingerprint: 1}
	require.NoError(t, cfg.Validate())
	require.InDelta(t, 0.25, cfg.DetectorWeights.Keyword, 0.0001)
}

func TestDumpJSON_OmitsSecrets(t *testing.T) {
	cfg := Default()
	cfg.JWTSigningKey = "super-secret"
	cfg.SendGridAPIKey = "also-secret"

	out, err := cfg.DumpJSON()
	require.NoError(t, err)
	require.NotContains(t, out, "super-secret")
	require.NotContains(t, out, "also-secret")
}

func TestValidateFile_RejectsMalformedConfig(t *testing.T) {
	require.Error(t, ValidateFile([]byte(`{"max_workers": 0}`)))
	require.NoError(t, ValidateFile([]byte(`{"max_workers": 4, "database_url": "sqlite://x"}`)))
}
