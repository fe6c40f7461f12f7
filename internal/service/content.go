// content.go — выдача оригиналов, рендишенов и превью через кэш.
// Pipeline: выбор кандидата (selector) → ключ (cachekey) → кэш →
// при промахе запрос в архив и запись в кэш.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/asset-proxy/internal/cachekey"
	"github.com/bigkaa/goartstore/asset-proxy/internal/domain/model"
	"github.com/bigkaa/goartstore/asset-proxy/internal/selector"
)

// Prometheus-метрики выдачи содержимого.
var (
	contentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ap_renditions_total",
		Help: "Количество запросов содержимого по виду и результату.",
	}, []string{"kind", "status"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ap_upstream_fetch_duration_seconds",
		Help:    "Длительность получения содержимого из архива при промахе кэша.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"kind"})

	contentBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ap_content_bytes_total",
		Help: "Общее количество выданных байт содержимого.",
	}, []string{"kind"})
)

// Content — бинарное содержимое для ответа клиенту.
type Content struct {
	Body []byte
	// Key — ключ кэша содержимого
	Key string
	// Cached — содержимое взято из кэша
	Cached bool
}

// ContentService — выдача содержимого ассетов с кэшированием.
type ContentService struct {
	archive       ArchiveAPI
	cache         ContentCache
	identityField string
	ttl           time.Duration
	logger        *slog.Logger
}

// NewContentService создаёт сервис выдачи содержимого.
// ttl — срок хранения содержимого в кэше (0 — без истечения).
func NewContentService(archive ArchiveAPI, contentCache ContentCache, identityField string, ttl time.Duration, logger *slog.Logger) *ContentService {
	return &ContentService{
		archive:       archive,
		cache:         contentCache,
		identityField: identityField,
		ttl:           ttl,
		logger:        logger.With(slog.String("component", "content_service")),
	}
}

// Original возвращает оригинал ассета.
func (s *ContentService) Original(ctx context.Context, asset *model.Asset) (*Content, error) {
	rendition, ok := selector.OriginalRendition(asset.Renditions)
	if !ok {
		contentTotal.WithLabelValues(string(cachekey.KindOriginal), "no_match").Inc()
		return nil, fmt.Errorf("%w: у ассета %s нет оригинала", ErrNoMatch, asset.Href)
	}
	key := cachekey.Derive(asset, cachekey.KindOriginal, "", s.identityField)
	return s.fetchAndCache(ctx, cachekey.KindOriginal, key, s.renderFetcher(rendition))
}

// Rendition возвращает первый рендишен, удовлетворяющий traits.
func (s *ContentService) Rendition(ctx context.Context, asset *model.Asset, traits selector.RenditionTraits) (*Content, error) {
	rendition, ok := selector.FindRendition(asset.Renditions, traits)
	if !ok {
		contentTotal.WithLabelValues(string(cachekey.KindRendition), "no_match").Inc()
		return nil, fmt.Errorf("%w: рендишен для %s", ErrNoMatch, asset.Href)
	}
	key := cachekey.Derive(asset, cachekey.KindRendition, cachekey.RenditionVariant(rendition), s.identityField)
	return s.fetchAndCache(ctx, cachekey.KindRendition, key, s.renderFetcher(rendition))
}

// Preview возвращает первое превью, удовлетворяющее traits.
func (s *ContentService) Preview(ctx context.Context, asset *model.Asset, traits selector.PreviewTraits) (*Content, error) {
	preview, ok := selector.FindPreview(asset.Previews, traits)
	if !ok {
		contentTotal.WithLabelValues(string(cachekey.KindPreview), "no_match").Inc()
		return nil, fmt.Errorf("%w: превью для %s", ErrNoMatch, asset.Href)
	}
	key := cachekey.Derive(asset, cachekey.KindPreview, cachekey.PreviewVariant(preview), s.identityField)
	previewToken := asset.PreviewToken
	return s.fetchAndCache(ctx, cachekey.KindPreview, key, func(ctx context.Context) ([]byte, error) {
		return s.archive.FetchPreview(ctx, preview.Href, previewToken)
	})
}

// renderFetcher — запрос генерации рендишена и опрос результата.
func (s *ContentService) renderFetcher(rendition model.Rendition) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		location, err := s.archive.RequestRender(ctx, rendition.Href)
		if err != nil {
			return nil, err
		}
		return s.archive.FetchRendition(ctx, location)
	}
}

// fetchAndCache читает содержимое из кэша, при промахе получает его из архива
// и записывает в кэш. Последовательность не прерывается отключением клиента:
// уже начатая генерация рендишена не теряется.
func (s *ContentService) fetchAndCache(
	ctx context.Context,
	kind cachekey.Kind,
	key string,
	fetch func(ctx context.Context) ([]byte, error),
) (*Content, error) {
	ctx = context.WithoutCancel(ctx)

	body, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		contentTotal.WithLabelValues(string(kind), "cache_error").Inc()
		return nil, fmt.Errorf("чтение кэша содержимого: %w", err)
	}
	if ok {
		contentTotal.WithLabelValues(string(kind), "hit").Inc()
		contentBytesTotal.WithLabelValues(string(kind)).Add(float64(len(body)))
		return &Content{Body: body, Key: key, Cached: true}, nil
	}

	start := time.Now()
	body, err = fetch(ctx)
	fetchDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		contentTotal.WithLabelValues(string(kind), "upstream_error").Inc()
		s.logger.Error("Не удалось получить содержимое из архива",
			slog.String("kind", string(kind)),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, upstreamError("получение содержимого", err)
	}

	if err := s.cache.Set(ctx, key, body, s.ttl); err != nil {
		contentTotal.WithLabelValues(string(kind), "cache_error").Inc()
		return nil, fmt.Errorf("запись кэша содержимого: %w", err)
	}

	contentTotal.WithLabelValues(string(kind), "miss").Inc()
	contentBytesTotal.WithLabelValues(string(kind)).Add(float64(len(body)))
	s.logger.Debug("Содержимое получено из архива и закэшировано",
		slog.String("kind", string(kind)),
		slog.String("key", key),
		slog.Int("bytes", len(body)),
		slog.Duration("duration", time.Since(start)),
	)
	return &Content{Body: body, Key: key}, nil
}
