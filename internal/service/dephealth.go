// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Asset Proxy мониторит удалённый архив — HTTP checker (critical).
// Доступность кэша проверяется readiness-пробой (/health/ready), а не здесь:
// in-memory бэкенд не является внешней зависимостью.
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
//   - app_dependency_status_detail — детальный статус
package service

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// DephealthOptions — параметры мониторинга.
type DephealthOptions struct {
	// ServiceID — имя вершины графа текущего приложения
	ServiceID string
	// Group — имя группы в метриках (AP_DEPHEALTH_GROUP)
	Group string
	// ArchiveURL — базовый URL архива
	ArchiveURL string
	// ArchiveHealthPath — путь, опрашиваемый HTTP checker
	ArchiveHealthPath string
	// CheckInterval — интервал проверки (AP_DEPHEALTH_CHECK_INTERVAL)
	CheckInterval time.Duration
	// Registerer — Prometheus registerer (nil — глобальный)
	Registerer prometheus.Registerer
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
func NewDephealthService(opts DephealthOptions, logger *slog.Logger) (*DephealthService, error) {
	healthPath := opts.ArchiveHealthPath
	if healthPath == "" {
		healthPath = "/"
	}

	archiveDepOpts := []dephealth.DependencyOption{
		dephealth.FromURL(opts.ArchiveURL),
		dephealth.WithHTTPHealthPath(healthPath),
		dephealth.CheckInterval(opts.CheckInterval),
		dephealth.Critical(true),
	}
	if parsed, err := url.Parse(opts.ArchiveURL); err == nil && parsed.Scheme == "https" {
		archiveDepOpts = append(archiveDepOpts, dephealth.WithHTTPTLSSkipVerify(false))
	}

	dhOpts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.HTTP("archive", archiveDepOpts...),
	}
	if opts.Registerer != nil {
		dhOpts = append(dhOpts, dephealth.WithRegisterer(opts.Registerer))
	}

	dh, err := dephealth.New(opts.ServiceID, opts.Group, dhOpts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (архив)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
