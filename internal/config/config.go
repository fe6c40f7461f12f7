// Пакет config — загрузка и валидация конфигурации Asset Proxy
// из переменных окружения (префикс AP_).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// EnvPrefix — общий префикс переменных окружения.
const EnvPrefix = "AP_"

// EnvDevelopment — режим разработки: включает /-/token/new.
const EnvDevelopment = "development"

// Config содержит все параметры конфигурации Asset Proxy.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int `env:"PORT" envDefault:"8040"`
	// Уровень логирования (debug, info, warn, error)
	LogLevelRaw string `env:"LOG_LEVEL" envDefault:"info"`
	// Формат логов (json, text)
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	// Окружение: production или development
	Environment string `env:"ENV" envDefault:"production"`

	// Разобранный уровень логирования
	LogLevel slog.Level `env:"-"`

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	HTTPWriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	HTTPIdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`

	// --- Токены доступа ---

	// Секрет HS256; пустой — случайный ключ на время жизни процесса
	JWTSecret string `env:"JWT_SECRET"`
	// Потолок длительности токена для файловых эндпоинтов
	TokenMaxDurationShort time.Duration `env:"TOKEN_MAX_DURATION_SHORT" envDefault:"15m"`
	// Потолок длительности токена для сервисных эндпоинтов
	TokenMaxDurationLong time.Duration `env:"TOKEN_MAX_DURATION_LONG" envDefault:"8760h"`
	// Префикс канонических URL ресурсов (для ?resource= и @id в JSON-LD)
	CanonicalHostBase string `env:"CANONICAL_HOST_BASE"`
	// Внешний адрес сервиса для ссылок в JSON-LD; пустой — из запроса
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
	// Размер страницы манифеста по умолчанию
	ManifestDefaultLimit int `env:"MANIFEST_DEFAULT_LIMIT" envDefault:"100"`

	// --- Кэш ---

	// URL Redis; пустой — in-memory кэш
	RedisURL           string        `env:"REDIS_URL"`
	CacheRetryAttempts int           `env:"CACHE_RETRY_ATTEMPTS" envDefault:"5"`
	CacheRetryDelay    time.Duration `env:"CACHE_RETRY_DELAY" envDefault:"50ms"`
	// Размер in-memory кэша содержимого (записей)
	CacheMaxEntries int `env:"CACHE_MAX_ENTRIES" envDefault:"512"`
	// TTL закэшированного содержимого (0 — без истечения)
	CacheContentTTL time.Duration `env:"CACHE_CONTENT_TTL" envDefault:"0s"`
	// TTL кэша записей ассетов (результатов поиска). Столько же после
	// перезаливки файла может отдаваться прежнее содержимое.
	AssetCacheTTL time.Duration `env:"ASSET_CACHE_TTL" envDefault:"10s"`
	// Размер кэша записей ассетов
	AssetCacheMaxEntries int `env:"ASSET_CACHE_MAX_ENTRIES" envDefault:"1024"`

	// --- Удалённый архив ---

	ArchiveHost         string        `env:"ARCHIVE_HOST"`
	ArchiveClientID     string        `env:"ARCHIVE_CLIENT_ID"`
	ArchiveClientSecret string        `env:"ARCHIVE_CLIENT_SECRET"`
	Archives            []string      `env:"ARCHIVES" envSeparator:"," envDefault:"5000"`
	SearchSuffix        string        `env:"SEARCH_SUFFIX"`
	ArchiveTimeout      time.Duration `env:"ARCHIVE_TIMEOUT" envDefault:"60s"`
	// CA-сертификат архива (пустая строка — системный пул)
	ArchiveCACertPath  string        `env:"ARCHIVE_CA_CERT_PATH"`
	RenderPollAttempts int           `env:"RENDER_POLL_ATTEMPTS" envDefault:"5"`
	RenderPollDelay    time.Duration `env:"RENDER_POLL_DELAY" envDefault:"500ms"`
	// Повторы запросов к API архива при сетевых ошибках, 429 и 5xx
	ArchiveRetryAttempts int           `env:"ARCHIVE_RETRY_ATTEMPTS" envDefault:"3"`
	ArchiveRetryDelay    time.Duration `env:"ARCHIVE_RETRY_DELAY" envDefault:"200ms"`

	// --- Ограничение частоты запросов ---

	// Лимиты на IP клиента: "25/minute; 50/hour; 75/day". Пустая строка
	// или режим разработки — без ограничения.
	RateLimitRaw string `env:"RATE_LIMIT" envDefault:"25/minute; 50/hour; 75/day"`
	// Учитывать X-Forwarded-For при определении IP клиента
	RateLimitTrustForwarded bool `env:"RATE_LIMIT_TRUST_FORWARDED" envDefault:"false"`
	// Разобранные лимиты
	RateLimits []RateLimit `env:"-"`

	// --- Поля метаданных ---

	FieldUUID   string `env:"FIELD_UUID"`
	FieldSHA256 string `env:"FIELD_SHA256"`
	PublicField string `env:"PUBLIC_FIELD"`
	PublicValue string `env:"PUBLIC_VALUE" envDefault:"public"`

	// --- Фоновые задачи ---

	WorkerCount     int `env:"WORKER_COUNT" envDefault:"2"`
	WorkerQueueSize int `env:"WORKER_QUEUE_SIZE" envDefault:"64"`

	// --- Dependency health ---

	DephealthCheckInterval time.Duration `env:"DEPHEALTH_CHECK_INTERVAL" envDefault:"15s"`
	DephealthGroup         string        `env:"DEPHEALTH_GROUP" envDefault:"asset-proxy"`
	// Путь архива, опрашиваемый HTTP checker
	ArchiveHealthPath string `env:"ARCHIVE_HEALTH_PATH" envDefault:"/fotoweb/"`
}

// LoadDotEnv подгружает .env-файлы, если они существуют.
// Уже заданные переменные окружения не перезаписываются.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("загрузка %s: %w", path, err)
		}
	}
	return nil
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("разбор переменных окружения: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var err error

	c.LogLevel, err = parseLogLevel(c.LogLevelRaw)
	if err != nil {
		return fmt.Errorf("AP_LOG_LEVEL: %w", err)
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("AP_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", c.LogFormat)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("AP_PORT: порт %d вне диапазона 1-65535", c.Port)
	}

	positive := map[string]time.Duration{
		"AP_HTTP_READ_TIMEOUT":        c.HTTPReadTimeout,
		"AP_HTTP_WRITE_TIMEOUT":       c.HTTPWriteTimeout,
		"AP_HTTP_IDLE_TIMEOUT":        c.HTTPIdleTimeout,
		"AP_SHUTDOWN_TIMEOUT":         c.ShutdownTimeout,
		"AP_TOKEN_MAX_DURATION_SHORT": c.TokenMaxDurationShort,
		"AP_TOKEN_MAX_DURATION_LONG":  c.TokenMaxDurationLong,
		"AP_ARCHIVE_TIMEOUT":          c.ArchiveTimeout,
		"AP_DEPHEALTH_CHECK_INTERVAL": c.DephealthCheckInterval,
	}
	for key, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s: значение должно быть > 0", key)
		}
	}

	// Короткий потолок обязан быть строго меньше длинного
	if c.TokenMaxDurationShort >= c.TokenMaxDurationLong {
		return fmt.Errorf("AP_TOKEN_MAX_DURATION_SHORT (%s) должен быть меньше AP_TOKEN_MAX_DURATION_LONG (%s)",
			c.TokenMaxDurationShort, c.TokenMaxDurationLong)
	}

	if c.CacheRetryAttempts < 1 {
		return errors.New("AP_CACHE_RETRY_ATTEMPTS: значение должно быть >= 1")
	}
	if c.CacheRetryDelay < 0 || c.RenderPollDelay < 0 || c.CacheContentTTL < 0 || c.AssetCacheTTL < 0 {
		return errors.New("длительности задержек и TTL не могут быть отрицательными")
	}
	if c.RenderPollAttempts < 1 {
		return errors.New("AP_RENDER_POLL_ATTEMPTS: значение должно быть >= 1")
	}
	if c.ArchiveRetryAttempts < 1 {
		return errors.New("AP_ARCHIVE_RETRY_ATTEMPTS: значение должно быть >= 1")
	}
	if c.ArchiveRetryDelay < 0 {
		return errors.New("AP_ARCHIVE_RETRY_DELAY: значение не может быть отрицательным")
	}
	if c.RateLimits, err = ParseRateLimits(c.RateLimitRaw); err != nil {
		return fmt.Errorf("AP_RATE_LIMIT: %w", err)
	}
	if c.CacheMaxEntries < 1 || c.AssetCacheMaxEntries < 1 {
		return errors.New("AP_CACHE_MAX_ENTRIES и AP_ASSET_CACHE_MAX_ENTRIES должны быть >= 1")
	}
	if c.ManifestDefaultLimit < 1 {
		return errors.New("AP_MANIFEST_DEFAULT_LIMIT: значение должно быть >= 1")
	}
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
	if c.WorkerCount < 1 || c.WorkerQueueSize < 1 {
		return errors.New("AP_WORKER_COUNT и AP_WORKER_QUEUE_SIZE должны быть >= 1")
	}

	if c.ArchiveHost == "" {
		return errors.New("AP_ARCHIVE_HOST: обязательная переменная окружения не задана")
	}
	u, err := url.Parse(c.ArchiveHost)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("AP_ARCHIVE_HOST: некорректный URL %q", c.ArchiveHost)
	}
	c.ArchiveHost = strings.TrimRight(c.ArchiveHost, "/")

	if c.ArchiveClientID == "" || c.ArchiveClientSecret == "" {
		return errors.New("AP_ARCHIVE_CLIENT_ID и AP_ARCHIVE_CLIENT_SECRET обязательны")
	}
	if c.FieldUUID == "" {
		return errors.New("AP_FIELD_UUID: обязательная переменная окружения не задана")
	}

	archives := c.Archives[:0]
	for _, a := range c.Archives {
		if a = strings.TrimSpace(a); a != "" {
			archives = append(archives, a)
		}
	}
	if len(archives) == 0 {
		return errors.New("AP_ARCHIVES: список архивов пуст")
	}
	c.Archives = archives

	return nil
}

// RateLimitEnabled сообщает, действует ли ограничение частоты запросов.
func (c *Config) RateLimitEnabled() bool {
	return len(c.RateLimits) > 0 && !c.IsDevelopment()
}

// IsDevelopment сообщает, включён ли режим разработки.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, EnvDevelopment)
}

// Addr возвращает адрес прослушивания HTTP.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
