// assets.go — поиск ассетов в архиве по постоянному идентификатору.
// Записи ассетов кэшируются в per-instance LRU с коротким TTL:
// одна страница обычно порождает несколько запросов к одному ассету.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/asset-proxy/internal/archiveclient"
	"github.com/bigkaa/goartstore/asset-proxy/internal/domain/model"
)

// Prometheus-метрики кэша записей ассетов.
var (
	assetCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ap_asset_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш записей ассетов.",
	})
	assetCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ap_asset_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша записей ассетов.",
	})
)

// AssetOptions — параметры AssetService.
type AssetOptions struct {
	// Archives — архивы для поиска (в порядке приоритета)
	Archives []string
	// IdentityField — поле метаданных с постоянным идентификатором
	IdentityField string
	// PublicField, PublicValue — признак публичного ассета
	PublicField string
	PublicValue string
	// CacheSize, CacheTTL — LRU записей ассетов; CacheTTL = 0 отключает кэш
	CacheSize int
	CacheTTL  time.Duration
}

// AssetService — поиск ассетов по идентификатору с кэшированием записей.
type AssetService struct {
	archive ArchiveAPI
	records *expirable.LRU[string, *model.Asset]
	opts    AssetOptions
	logger  *slog.Logger
}

// NewAssetService создаёт сервис поиска ассетов.
func NewAssetService(archive ArchiveAPI, opts AssetOptions, logger *slog.Logger) *AssetService {
	return &AssetService{
		archive: archive,
		records: expirable.NewLRU[string, *model.Asset](opts.CacheSize, nil, opts.CacheTTL),
		opts:    opts,
		logger:  logger.With(slog.String("component", "asset_service")),
	}
}

// IdentityField возвращает поле метаданных с постоянным идентификатором.
func (s *AssetService) IdentityField() string {
	return s.opts.IdentityField
}

// Find возвращает ассет по идентификатору.
// Не найден или найден больше одного — ErrNotFound.
func (s *AssetService) Find(ctx context.Context, identifier string) (*model.Asset, error) {
	if identifier == "" {
		return nil, ErrNotFound
	}

	cached := s.opts.CacheTTL > 0
	if cached {
		if asset, ok := s.records.Get(identifier); ok {
			assetCacheHitsTotal.Inc()
			return asset, nil
		}
		assetCacheMissesTotal.Inc()
	}

	asset, err := s.archive.FindByIdentifier(ctx, s.opts.Archives, s.opts.IdentityField, identifier)
	if err != nil {
		return nil, upstreamError("поиск ассета "+identifier, err)
	}

	if cached {
		s.records.Add(identifier, asset)
	}
	return asset, nil
}

// Invalidate удаляет запись ассета из кэша.
func (s *AssetService) Invalidate(identifier string) {
	s.records.Remove(identifier)
}

// IsPublic сообщает, доступен ли ассет без токена.
func (s *AssetService) IsPublic(asset *model.Asset) bool {
	if s.opts.PublicField == "" {
		return false
	}
	return asset.MetadataContains(s.opts.PublicField, s.opts.PublicValue)
}

// ManifestParams — параметры выборки манифеста.
type ManifestParams struct {
	// Archives — архивы (пусто — архивы из конфигурации)
	Archives []string
	Limit    int
	// Since — нижняя граница времени изменения (ISO 8601), для пагинации
	Since string
}

// Manifest возвращает ассеты с заполненным идентификатором,
// от старых к новым.
func (s *AssetService) Manifest(ctx context.Context, params ManifestParams) ([]model.Asset, error) {
	archives := params.Archives
	if len(archives) == 0 {
		archives = s.opts.Archives
	}

	query := archiveclient.Empty(s.opts.IdentityField).Not()
	if params.Since != "" {
		query = archiveclient.And(query, archiveclient.ModifiedFrom(params.Since))
	}

	assets, err := s.archive.Search(ctx, archives, query, params.Limit)
	if err != nil {
		return nil, upstreamError("выборка манифеста", err)
	}
	return assets, nil
}
