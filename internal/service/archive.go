// Пакет service — бизнес-логика Asset Proxy: поиск ассетов в архиве,
// выбор и кэширование рендишенов и превью, фоновые задачи метаданных.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bigkaa/goartstore/asset-proxy/internal/archiveclient"
	"github.com/bigkaa/goartstore/asset-proxy/internal/cache"
	"github.com/bigkaa/goartstore/asset-proxy/internal/domain/model"
)

// Ошибки сервисного слоя.
var (
	// ErrNotFound — ассет не найден (или найден неоднозначно).
	ErrNotFound = errors.New("ассет не найден")
	// ErrNoMatch — ни один рендишен или превью не подходит под запрос.
	ErrNoMatch = errors.New("нет подходящего рендишена")
	// ErrUpstream — архив недоступен или ответил ошибкой.
	ErrUpstream = errors.New("архив недоступен")
)

// ArchiveAPI — операции удалённого архива, нужные сервисам.
// Реализуется archiveclient.Client.
type ArchiveAPI interface {
	FindByIdentifier(ctx context.Context, archiveIDs []string, field, value string) (*model.Asset, error)
	Search(ctx context.Context, archiveIDs []string, q archiveclient.Query, limit int) ([]model.Asset, error)
	RequestRender(ctx context.Context, renditionHref string) (string, error)
	FetchRendition(ctx context.Context, location string) ([]byte, error)
	FetchPreview(ctx context.Context, href, previewToken string) ([]byte, error)
	UpdateMetadata(ctx context.Context, assetHref string, fields map[string]string) error
}

// ContentCache — кэш бинарного содержимого (обычно cache.Resilient).
type ContentCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// upstreamError приводит ошибку архива к ошибкам сервисного слоя.
// Недоступность кэша сохраняется как есть (cache.ErrUnavailable).
func upstreamError(op string, err error) error {
	switch {
	case errors.Is(err, cache.ErrUnavailable):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, archiveclient.ErrNotFound), errors.Is(err, archiveclient.ErrMultipleMatches):
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	default:
		// ErrUpstream, ErrNotSearchable, ErrNoRenderService, retry.ErrExhausted
		return fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
	}
}
