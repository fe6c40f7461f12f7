package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequired задаёт минимальный набор обязательных переменных.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("AP_ARCHIVE_HOST", "https://tenant.archive.example/")
	t.Setenv("AP_ARCHIVE_CLIENT_ID", "client")
	t.Setenv("AP_ARCHIVE_CLIENT_SECRET", "secret")
	t.Setenv("AP_FIELD_UUID", "700")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8040, cfg.Port)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 15*time.Minute, cfg.TokenMaxDurationShort)
	assert.Equal(t, 8760*time.Hour, cfg.TokenMaxDurationLong)
	assert.Equal(t, 5, cfg.CacheRetryAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.CacheRetryDelay)
	assert.Equal(t, 5, cfg.RenderPollAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RenderPollDelay)
	assert.Equal(t, []string{"5000"}, cfg.Archives)
	assert.Equal(t, 100, cfg.ManifestDefaultLimit)
	assert.Equal(t, 10*time.Second, cfg.AssetCacheTTL)
	assert.Equal(t, 3, cfg.ArchiveRetryAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.ArchiveRetryDelay)
	assert.Equal(t, []RateLimit{
		{Requests: 25, Per: time.Minute},
		{Requests: 50, Per: time.Hour},
		{Requests: 75, Per: 24 * time.Hour},
	}, cfg.RateLimits)
	assert.True(t, cfg.RateLimitEnabled())
	assert.Equal(t, "https://tenant.archive.example", cfg.ArchiveHost, "завершающий слэш убирается")
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, ":8040", cfg.Addr())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("AP_PORT", "9000")
	t.Setenv("AP_LOG_LEVEL", "debug")
	t.Setenv("AP_LOG_FORMAT", "text")
	t.Setenv("AP_ENV", "development")
	t.Setenv("AP_ARCHIVES", "5000, 5001,,")
	t.Setenv("AP_TOKEN_MAX_DURATION_SHORT", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.RateLimitEnabled(), "в режиме разработки без ограничения частоты")
	assert.Equal(t, []string{"5000", "5001"}, cfg.Archives)
	assert.Equal(t, 5*time.Minute, cfg.TokenMaxDurationShort)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"короткий потолок не меньше длинного", "AP_TOKEN_MAX_DURATION_SHORT", "9000h"},
		{"равные потолки", "AP_TOKEN_MAX_DURATION_SHORT", "8760h"},
		{"нулевой потолок", "AP_TOKEN_MAX_DURATION_SHORT", "0s"},
		{"неизвестный уровень логов", "AP_LOG_LEVEL", "verbose"},
		{"неизвестный формат логов", "AP_LOG_FORMAT", "xml"},
		{"некорректная длительность", "AP_CACHE_RETRY_DELAY", "soon"},
		{"ноль попыток", "AP_CACHE_RETRY_ATTEMPTS", "0"},
		{"порт вне диапазона", "AP_PORT", "70000"},
		{"хост без схемы", "AP_ARCHIVE_HOST", "tenant.example"},
		{"пустой список архивов", "AP_ARCHIVES", " , "},
		{"ноль повторов архива", "AP_ARCHIVE_RETRY_ATTEMPTS", "0"},
		{"лимит без единицы", "AP_RATE_LIMIT", "25"},
		{"неизвестная единица лимита", "AP_RATE_LIMIT", "25/week"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseRateLimits(t *testing.T) {
	limits, err := ParseRateLimits(" 10/second, 2/Hours ")
	require.NoError(t, err)
	assert.Equal(t, []RateLimit{{Requests: 10, Per: time.Second}, {Requests: 2, Per: time.Hour}}, limits)

	limits, err = ParseRateLimits("")
	require.NoError(t, err)
	assert.Empty(t, limits)

	_, err = ParseRateLimits("0/minute")
	assert.Error(t, err)

	_, err = ParseRateLimits(" ; ")
	assert.Error(t, err)
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("AP_FIELD_UUID", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("AP_TEST_DOTENV_VALUE=from-file\nAP_TEST_DOTENV_KEEP=from-file\n"), 0o600))

	t.Setenv("AP_TEST_DOTENV_KEEP", "from-env")
	t.Cleanup(func() { os.Unsetenv("AP_TEST_DOTENV_VALUE") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))

	assert.Equal(t, "from-file", os.Getenv("AP_TEST_DOTENV_VALUE"))
	assert.Equal(t, "from-env", os.Getenv("AP_TEST_DOTENV_KEEP"), "окружение приоритетнее .env")
}
