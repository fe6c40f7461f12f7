// main.go — точка входа Asset Proxy.
// Порядок: config → logger → codec → кэш → клиент архива → сервисы →
// пул фоновых задач → dephealth → HTTP-сервер. Остановка в обратном порядке.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"

	"github.com/bigkaa/goartstore/asset-proxy/internal/api/handlers"
	"github.com/bigkaa/goartstore/asset-proxy/internal/api/middleware"
	"github.com/bigkaa/goartstore/asset-proxy/internal/apptoken"
	"github.com/bigkaa/goartstore/asset-proxy/internal/archiveclient"
	"github.com/bigkaa/goartstore/asset-proxy/internal/cache"
	"github.com/bigkaa/goartstore/asset-proxy/internal/config"
	"github.com/bigkaa/goartstore/asset-proxy/internal/server"
	"github.com/bigkaa/goartstore/asset-proxy/internal/service"
	"github.com/bigkaa/goartstore/asset-proxy/internal/worker"
)

func main() {
	// 1. Загрузка конфигурации (.env, затем переменные окружения)
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("Ошибка чтения .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Asset Proxy запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("env", cfg.Environment),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		log.Fatalf("Сервер завершился с ошибкой: %v", err)
	}

	logger.Info("Asset Proxy остановлен")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Codec capability-токенов
	codec, err := apptoken.NewCodec(cfg.JWTSecret)
	if err != nil {
		return err
	}
	if codec.Ephemeral() {
		logger.Warn("AP_JWT_SECRET не задан: ключ подписи сгенерирован случайно, токены недействительны после перезапуска")
	}

	// 4. Хранилище кэша: Redis или in-memory
	store, readiness, closeStore, err := newStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	resilient := cache.NewResilient(store, cfg.CacheRetryAttempts, cfg.CacheRetryDelay, logger)

	// 5. Клиент архива (токен архива хранится в том же кэше)
	archive, err := archiveclient.New(archiveclient.Options{
		Host:         cfg.ArchiveHost,
		ClientID:     cfg.ArchiveClientID,
		ClientSecret: cfg.ArchiveClientSecret,
		CACertPath:   cfg.ArchiveCACertPath,
		Timeout:      cfg.ArchiveTimeout,
		SearchSuffix: cfg.SearchSuffix,
		PollAttempts: cfg.RenderPollAttempts,
		PollDelay:    cfg.RenderPollDelay,

		RetryAttempts: cfg.ArchiveRetryAttempts,
		RetryDelay:    cfg.ArchiveRetryDelay,
	}, resilient, logger)
	if err != nil {
		return err
	}

	// 6. Сервисный слой
	assets := service.NewAssetService(archive, service.AssetOptions{
		Archives:      cfg.Archives,
		IdentityField: cfg.FieldUUID,
		PublicField:   cfg.PublicField,
		PublicValue:   cfg.PublicValue,
		CacheSize:     cfg.AssetCacheMaxEntries,
		CacheTTL:      cfg.AssetCacheTTL,
	}, logger)
	content := service.NewContentService(archive, resilient, cfg.FieldUUID, cfg.CacheContentTTL, logger)
	taskFields := map[service.Task]string{service.TaskUUID: cfg.FieldUUID}
	if cfg.FieldSHA256 != "" {
		taskFields[service.TaskSHA256] = cfg.FieldSHA256
	}
	tasks := service.NewTaskService(archive, content, cfg.Archives, taskFields, logger)

	// 7. Пул фоновых задач
	pool := worker.NewPool(cfg.WorkerCount, cfg.WorkerQueueSize, logger)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Фоновые задачи не завершены", slog.String("error", err.Error()))
		}
	}()

	// 8. Мониторинг архива (topologymetrics)
	dephealthSvc, err := service.NewDephealthService(service.DephealthOptions{
		ServiceID:         "asset-proxy",
		Group:             cfg.DephealthGroup,
		ArchiveURL:        cfg.ArchiveHost,
		ArchiveHealthPath: cfg.ArchiveHealthPath,
		CheckInterval:     cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		return err
	}
	if err := dephealthSvc.Start(ctx); err != nil {
		return err
	}
	defer dephealthSvc.Stop()

	// 9. HTTP: проверка токенов, обработчики, сервер
	gate := middleware.NewGate(codec, cfg.CanonicalHostBase, logger)
	gates := handlers.RouteMiddlewares{
		Original: gate.Middleware(middleware.GateRule{
			Audience:    apptoken.AudienceOriginal,
			MaxDuration: cfg.TokenMaxDurationShort,
		}),
		Preview: gate.Middleware(middleware.GateRule{
			Audience:    apptoken.AudiencePreview,
			MaxDuration: cfg.TokenMaxDurationShort,
		}),
		Rendition: gate.Middleware(middleware.GateRule{
			Audience:    apptoken.AudienceRendition,
			MaxDuration: cfg.TokenMaxDurationShort,
		}),
		Manifest: gate.Middleware(middleware.GateRule{
			Audience:    apptoken.AudienceManifest,
			MaxDuration: cfg.TokenMaxDurationLong,
			Required:    true,
			Identifier:  middleware.NoIdentifier,
		}),
		MetadataUpdate: gate.Middleware(middleware.GateRule{
			Audience:    apptoken.AudienceMetadataUpdate,
			MaxDuration: cfg.TokenMaxDurationLong,
			Required:    true,
			Identifier:  middleware.NoIdentifier,
		}),
	}

	healthHandler := handlers.NewHealthHandler(readiness, dephealthSvc)
	apiHandler := handlers.NewAPIHandler(healthHandler, assets, content, tasks, pool, codec, handlers.Options{
		Archives:          cfg.Archives,
		DefaultLimit:      cfg.ManifestDefaultLimit,
		ArchiveHost:       cfg.ArchiveHost,
		CanonicalHostBase: cfg.CanonicalHostBase,
		PublicBaseURL:     cfg.PublicBaseURL,
	}, logger)

	if cfg.IsDevelopment() {
		logger.Warn("Режим разработки: включён /-/token/new")
	}

	mws := []func(http.Handler) http.Handler{
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	}
	if cfg.RateLimitEnabled() {
		logger.Info("Ограничение частоты запросов по IP",
			slog.String("limits", cfg.RateLimitRaw),
			slog.Bool("trust_forwarded", cfg.RateLimitTrustForwarded),
		)
		limiter := middleware.NewRateLimiter(cfg.RateLimits, cfg.RateLimitTrustForwarded, logger)
		mws = append(mws, limiter.Middleware())
	}

	srv := server.New(cfg, logger, apiHandler, gates, mws...)

	// 10. Запуск сервера (блокирующий вызов с graceful shutdown)
	return srv.Run(ctx)
}

// newStore выбирает бэкенд кэша: Redis при заданном AP_REDIS_URL, иначе in-memory.
func newStore(cfg *config.Config, logger *slog.Logger) (cache.Store, handlers.ReadinessChecker, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info("AP_REDIS_URL не задан: кэш в памяти процесса",
			slog.Int("max_entries", cfg.CacheMaxEntries),
		)
		store := cache.NewMemoryStore(cfg.CacheMaxEntries, 0)
		return store, store, func() {}, nil
	}

	store, err := cache.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("Кэш в Redis")
	closeStore := func() {
		if err := store.Close(); err != nil {
			logger.Warn("Ошибка закрытия Redis", slog.String("error", err.Error()))
		}
	}
	return store, store, closeStore, nil
}

// Проверка соответствия интерфейсу на этапе компиляции.
var _ handlers.ServerInterface = (*handlers.APIHandler)(nil)
